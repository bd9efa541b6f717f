package pinecone

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/pinecone-io/go-pinecone/v3/pinecone"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/Nishant142k2/pdf-rag/internal/core/domain"
	"github.com/Nishant142k2/pdf-rag/internal/infrastructure/resilience"
)

const DefaultControlURL = "https://api.pinecone.io"

type Config struct {
	APIKey       string
	IndexName    string
	Cloud        string
	Region       string
	Dimension    int
	Metric       string
	ControlURL   string
	ReadyTimeout time.Duration
	PollInterval time.Duration
	HTTPTimeout  time.Duration
}

func (c Config) normalize() Config {
	out := c
	if out.Cloud == "" {
		out.Cloud = "aws"
	}
	if out.Metric == "" {
		out.Metric = "dotproduct"
	}
	if out.Dimension <= 0 {
		out.Dimension = 768
	}
	if out.ControlURL == "" {
		out.ControlURL = DefaultControlURL
	}
	if out.ReadyTimeout <= 0 {
		out.ReadyTimeout = 2 * time.Minute
	}
	if out.PollInterval <= 0 {
		out.PollInterval = time.Second
	}
	if out.HTTPTimeout <= 0 {
		out.HTTPTimeout = 60 * time.Second
	}
	return out
}

type controlPlane interface {
	DescribeIndex(ctx context.Context, name string) (*pinecone.Index, error)
	CreateServerlessIndex(ctx context.Context, in *pinecone.CreateServerlessIndexRequest) (*pinecone.Index, error)
}

type dataPlane interface {
	UpsertVectors(ctx context.Context, in []*pinecone.Vector) (uint32, error)
	QueryByVectorValues(ctx context.Context, in *pinecone.QueryByVectorValuesRequest) (*pinecone.QueryVectorsResponse, error)
	DescribeIndexStats(ctx context.Context) (*pinecone.DescribeIndexStatsResponse, error)
}

// Client resolves the index through the Pinecone control plane and keeps
// one data plane connection to the index host for upsert, query and stats.
type Client struct {
	cfg      Config
	control  controlPlane
	connect  func(host string) (dataPlane, error)
	executor *resilience.Executor

	ensureMu sync.Mutex
	index    dataPlane
}

func New(cfg Config, executor *resilience.Executor) (*Client, error) {
	cfg = cfg.normalize()
	pc, err := pinecone.NewClient(pinecone.NewClientParams{
		ApiKey:     cfg.APIKey,
		Host:       cfg.ControlURL,
		RestClient: &http.Client{Timeout: cfg.HTTPTimeout},
	})
	if err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "pinecone client", err)
	}
	return newClient(cfg, pc, func(host string) (dataPlane, error) {
		return pc.Index(pinecone.NewIndexConnParams{Host: host})
	}, executor), nil
}

func newClient(cfg Config, control controlPlane, connect func(string) (dataPlane, error), executor *resilience.Executor) *Client {
	return &Client{
		cfg:      cfg.normalize(),
		control:  control,
		connect:  connect,
		executor: executor,
	}
}

// EnsureIndex creates the serverless index when absent and waits until it
// reports ready. The data plane connection is cached for the client lifetime.
func (c *Client) EnsureIndex(ctx context.Context) error {
	_, err := c.dataPlane(ctx)
	return err
}

func (c *Client) dataPlane(ctx context.Context) (dataPlane, error) {
	c.ensureMu.Lock()
	defer c.ensureMu.Unlock()
	if c.index != nil {
		return c.index, nil
	}

	desc, found, err := c.describeIndex(ctx)
	if err != nil {
		return nil, err
	}
	if !found {
		slog.Info("pinecone_index_create", "index", c.cfg.IndexName, "dimension", c.cfg.Dimension, "region", c.cfg.Region)
		if err := c.createIndex(ctx); err != nil {
			return nil, err
		}
	}

	readyCtx, cancel := context.WithTimeout(ctx, c.cfg.ReadyTimeout)
	defer cancel()
	for !found || !ready(desc) {
		timer := time.NewTimer(c.cfg.PollInterval)
		select {
		case <-readyCtx.Done():
			timer.Stop()
			return nil, domain.WrapError(domain.ErrTemporary, "pinecone wait index ready", readyCtx.Err())
		case <-timer.C:
		}
		desc, found, err = c.describeIndex(readyCtx)
		if err != nil {
			return nil, err
		}
	}

	if desc.Dimension != nil && int(*desc.Dimension) != c.cfg.Dimension {
		slog.Warn("pinecone_index_dimension_mismatch",
			"index", c.cfg.IndexName,
			"index_dimension", *desc.Dimension,
			"configured_dimension", c.cfg.Dimension,
		)
	}

	index, err := c.connect(desc.Host)
	if err != nil {
		return nil, fmt.Errorf("pinecone connect %s: %w", desc.Host, err)
	}
	c.index = index
	return c.index, nil
}

func ready(desc *pinecone.Index) bool {
	return desc != nil && desc.Host != "" && desc.Status != nil && desc.Status.Ready
}

func (c *Client) describeIndex(ctx context.Context) (*pinecone.Index, bool, error) {
	desc, err := resilience.Do(ctx, c.executor, "pinecone.describe_index", func(ctx context.Context) (*pinecone.Index, error) {
		return c.control.DescribeIndex(ctx, c.cfg.IndexName)
	}, classify)
	if err != nil {
		if statusCode(err) == http.StatusNotFound {
			return nil, false, nil
		}
		return nil, false, resilience.WrapTemporary("pinecone describe index", err, classify)
	}
	return desc, true, nil
}

func (c *Client) createIndex(ctx context.Context) error {
	dimension := int32(c.cfg.Dimension)
	metric := pinecone.IndexMetric(c.cfg.Metric)
	_, err := c.control.CreateServerlessIndex(ctx, &pinecone.CreateServerlessIndexRequest{
		Name:      c.cfg.IndexName,
		Dimension: &dimension,
		Metric:    &metric,
		Cloud:     pinecone.Cloud(c.cfg.Cloud),
		Region:    c.cfg.Region,
	})
	if err == nil || statusCode(err) == http.StatusConflict {
		return nil
	}
	return resilience.WrapTemporary("pinecone create index", err, classify)
}

func (c *Client) Upsert(ctx context.Context, records []domain.VectorRecord) error {
	if len(records) == 0 {
		return nil
	}
	index, err := c.dataPlane(ctx)
	if err != nil {
		return err
	}

	vectors := make([]*pinecone.Vector, 0, len(records))
	for _, record := range records {
		metadata, err := structpb.NewStruct(record.Metadata)
		if err != nil {
			return domain.WrapError(domain.ErrInvalidInput, "pinecone upsert", fmt.Errorf("metadata for %s: %w", record.ID, err))
		}
		values := record.Values
		vectors = append(vectors, &pinecone.Vector{Id: record.ID, Values: &values, Metadata: metadata})
	}

	err = c.executor.Execute(ctx, "pinecone.upsert", func(ctx context.Context) error {
		_, err := index.UpsertVectors(ctx, vectors)
		return err
	}, classify)
	return resilience.WrapTemporary("pinecone upsert", err, classify)
}

func (c *Client) Query(ctx context.Context, vector []float32, topK int) ([]domain.Match, error) {
	index, err := c.dataPlane(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := resilience.Do(ctx, c.executor, "pinecone.query", func(ctx context.Context) (*pinecone.QueryVectorsResponse, error) {
		return index.QueryByVectorValues(ctx, &pinecone.QueryByVectorValuesRequest{
			Vector:          vector,
			TopK:            uint32(topK),
			IncludeMetadata: true,
		})
	}, classify)
	if err != nil {
		return nil, resilience.WrapTemporary("pinecone query", err, classify)
	}

	out := make([]domain.Match, 0, len(resp.Matches))
	for _, m := range resp.Matches {
		if m == nil || m.Vector == nil {
			continue
		}
		match := domain.Match{ID: m.Vector.Id, Score: float64(m.Score)}
		if m.Vector.Metadata != nil {
			match.Metadata = m.Vector.Metadata.AsMap()
		}
		out = append(out, match)
	}
	return out, nil
}

func (c *Client) Stats(ctx context.Context) (domain.IndexStats, error) {
	index, err := c.dataPlane(ctx)
	if err != nil {
		return domain.IndexStats{}, err
	}

	resp, err := resilience.Do(ctx, c.executor, "pinecone.describe_index_stats", index.DescribeIndexStats, classify)
	if err != nil {
		return domain.IndexStats{}, resilience.WrapTemporary("pinecone describe index stats", err, classify)
	}
	stats := domain.IndexStats{TotalVectorCount: int64(resp.TotalVectorCount)}
	if resp.Dimension != nil {
		stats.Dimension = int(*resp.Dimension)
	}
	return stats, nil
}

// classify maps control plane REST statuses and data plane gRPC codes onto
// the retry policy.
func classify(err error) resilience.ErrorClassification {
	if code := statusCode(err); code != 0 {
		return resilience.ClassifyStatus(code)
	}
	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.Unavailable, codes.ResourceExhausted, codes.Aborted, codes.Internal:
			return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
		default:
			return resilience.ErrorClassification{}
		}
	}
	return resilience.ClassifyHTTP(err)
}

func statusCode(err error) int {
	var pcErr *pinecone.PineconeError
	if errors.As(err, &pcErr) {
		return pcErr.Code
	}
	return 0
}
