package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/Nishant142k2/pdf-rag/internal/core/domain"
	"github.com/Nishant142k2/pdf-rag/internal/infrastructure/resilience"
)

const workerQueueGroup = "ingest-workers"

// Queue carries staged files from the API to ingest workers.
type Queue struct {
	conn     *nats.Conn
	subject  string
	executor *resilience.Executor
}

// New connects with reconnecting defaults. Options in extra are applied after
// the defaults and win on conflict.
func New(url, subject string, executor *resilience.Executor, extra ...nats.Option) (*Queue, error) {
	opts := append([]nats.Option{
		nats.Name("pdf-rag"),
		nats.Timeout(2 * time.Second),
		nats.ReconnectWait(2 * time.Second),
		nats.MaxReconnects(60),
		nats.RetryOnFailedConnect(true),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				slog.Warn("nats_disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			attrs := []any{"error", err}
			if sub != nil {
				attrs = append(attrs, "subject", sub.Subject)
			}
			slog.Error("nats_async_error", attrs...)
		}),
	}, extra...)

	conn, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", url, err)
	}
	return &Queue{conn: conn, subject: subject, executor: executor}, nil
}

func (q *Queue) Close() {
	if q.conn == nil {
		return
	}
	// Push out pending publishes before the socket closes.
	_ = q.conn.FlushTimeout(2 * time.Second)
	q.conn.Close()
}

func (q *Queue) PublishStagedFile(ctx context.Context, file domain.StagedFile) error {
	payload, err := encodeStagedFile(file)
	if err != nil {
		return err
	}

	err = q.executor.Execute(ctx, "nats.publish", func(context.Context) error {
		if err := q.conn.Publish(q.subject, payload); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		return nil
	}, classifyNATSError)
	return resilience.WrapTemporary("nats publish", err, classifyNATSError)
}

// SubscribeStagedFiles blocks until ctx is done, then drains the subscription.
func (q *Queue) SubscribeStagedFiles(ctx context.Context, handler func(context.Context, domain.StagedFile) error) error {
	sub, err := q.conn.QueueSubscribe(q.subject, workerQueueGroup, func(msg *nats.Msg) {
		if errors.Is(ctx.Err(), context.Canceled) {
			return
		}

		file, err := decodeStagedFile(msg.Data)
		if err != nil {
			slog.Error("nats_message_invalid", "subject", msg.Subject, "error", err)
			return
		}

		handlerCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		if err := handler(handlerCtx, file); err != nil {
			slog.Error("worker_handler_failed", "filename", file.Filename, "staged_id", file.ID, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}

	if err := q.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := q.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}

func encodeStagedFile(file domain.StagedFile) ([]byte, error) {
	if strings.TrimSpace(file.Key) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "encode staged file", errors.New("empty key"))
	}
	payload, err := json.Marshal(file)
	if err != nil {
		return nil, fmt.Errorf("marshal staged file: %w", err)
	}
	return payload, nil
}

func decodeStagedFile(data []byte) (domain.StagedFile, error) {
	var file domain.StagedFile
	if err := json.Unmarshal(data, &file); err != nil {
		return domain.StagedFile{}, fmt.Errorf("unmarshal staged file: %w", err)
	}
	if strings.TrimSpace(file.Key) == "" {
		return domain.StagedFile{}, domain.WrapError(domain.ErrInvalidInput, "decode staged file", errors.New("empty key"))
	}
	if file.Filename == "" {
		file.Filename = file.Key
	}
	return file, nil
}
