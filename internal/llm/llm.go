// Package llm defines the embedding and generation service boundary and
// the client-side pacing shared by all provider adapters.
package llm

import (
	"context"
	"errors"
	"unicode/utf8"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of a generation prompt.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ErrUnavailable reports that the upstream service kept failing after the
// retry budget was exhausted.
var ErrUnavailable = errors.New("generation service unavailable")

// Embedder maps text to fixed-dimension dense vectors. The dimension is
// discovered at first call and fixed thereafter.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Generator produces text for an ordered list of messages.
type Generator interface {
	Generate(ctx context.Context, messages []Message) (string, error)
}

// StreamGenerator is an optional capability; callers resolve it once at
// startup rather than probing per call.
type StreamGenerator interface {
	Generator
	GenerateStream(ctx context.Context, messages []Message, emit func(fragment string) error) error
}

// TransientError marks an upstream failure as retryable (rate limit,
// unavailable, deadline exceeded). Adapters wrap such errors before
// returning them through the Pacer.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// TruncateBytes cuts s to at most limit bytes without splitting a rune.
func TruncateBytes(s string, limit int) string {
	if limit <= 0 || len(s) <= limit {
		if limit <= 0 {
			return ""
		}
		return s
	}
	cut := s[:limit]
	for !utf8.ValidString(cut) {
		cut = cut[:len(cut)-1]
	}
	return cut
}
