package domain

import "encoding/json"

const (
	NoContextAnswer = "I couldn't find relevant information to answer your question. " +
		"The documents may not contain the information you're looking for, " +
		"or they may need to be re-indexed with better content extraction."
	DegradedAnswer = "Something went wrong while processing the query."
	UnknownValue   = "Unknown"
)

// Match is one raw similarity-search hit, in store order.
type Match struct {
	ID       string
	Score    float64
	Metadata map[string]any
}

// Candidate is a filtered passage used as model context. Page is either the
// stored page label (string) or the numeric page.
type Candidate struct {
	Text   string
	Source string
	Page   any
	Title  string
	Score  float64
}

type Source struct {
	Source         string  `json:"source"`
	Page           any     `json:"page"`
	Title          string  `json:"title"`
	RelevanceScore float64 `json:"relevance_score"`
}

type AnswerEnvelope struct {
	Answer  string   `json:"answer"`
	Sources []Source `json:"sources"`
	Error   string   `json:"error,omitempty"`
}

// MarshalJSON also emits the answer under "response" for older clients.
func (e AnswerEnvelope) MarshalJSON() ([]byte, error) {
	type envelope AnswerEnvelope
	return json.Marshal(struct {
		envelope
		Response string `json:"response"`
	}{envelope: envelope(e), Response: e.Answer})
}

func NoContextEnvelope() AnswerEnvelope {
	return AnswerEnvelope{
		Answer:  NoContextAnswer,
		Sources: []Source{},
	}
}

func DegradedEnvelope(err error) AnswerEnvelope {
	env := AnswerEnvelope{
		Answer:  DegradedAnswer,
		Sources: []Source{},
	}
	if err != nil {
		env.Error = err.Error()
	}
	return env
}

// FilterPolicy holds the empirically tuned thresholds of the candidate filter.
type FilterPolicy struct {
	TopK             int `yaml:"top_k"`
	MaxCandidates    int `yaml:"max_candidates"`
	MinContentLength int `yaml:"min_content_length"`
	MinTextLength    int `yaml:"min_text_length"`
}

func DefaultFilterPolicy() FilterPolicy {
	return FilterPolicy{
		TopK:             10,
		MaxCandidates:    5,
		MinContentLength: 3,
		MinTextLength:    20,
	}
}

func (p FilterPolicy) Normalize() FilterPolicy {
	def := DefaultFilterPolicy()
	out := p
	if out.TopK <= 0 {
		out.TopK = def.TopK
	}
	if out.MaxCandidates <= 0 {
		out.MaxCandidates = def.MaxCandidates
	}
	if out.MinContentLength < 0 {
		out.MinContentLength = def.MinContentLength
	}
	if out.MinTextLength < 0 {
		out.MinTextLength = def.MinTextLength
	}
	return out
}
