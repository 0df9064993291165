// Package chat exposes the question-answering endpoints: ask with optional
// SSE streaming, the session transcript, and the retrieval scope.
package chat

import (
	"context"

	"docuchat/internal/retrieval"
)

type askRequest struct {
	Question string   `json:"question" validate:"required,min=1"`
	Mode     string   `json:"mode" validate:"omitempty,oneof=auto docs general"`
	Scope    []string `json:"scope"`
	K        int      `json:"k" validate:"omitempty,min=1,max=50"`
	Stream   bool     `json:"stream"`
}

type scopeRequest struct {
	Scope []string `json:"scope"`
}

// Router is the retrieval pipeline the handlers drive.
type Router interface {
	Route(ctx context.Context, question string, opts retrieval.Options) (*retrieval.Result, error)
	CanStream() bool
}
