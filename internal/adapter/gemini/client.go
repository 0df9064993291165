// Package gemini adapts the Google generative AI API to the llm boundary.
package gemini

import (
	"context"
	"net/http"

	"github.com/google/generative-ai-go/genai"
	"github.com/googleapis/gax-go/v2/apierror"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"

	"docuchat/internal/llm"
)

// headroom reserved below the embedding byte ceiling for request framing.
const truncateHeadroom = 512

type Client struct {
	client     *genai.Client
	embedModel string
	chatModel  string
	maxBytes   int
	pacer      *llm.Pacer
}

func NewClient(ctx context.Context, apiKey, embedModel, chatModel string, maxBytes int, pacer *llm.Pacer, extra ...option.ClientOption) (*Client, error) {
	opts := append([]option.ClientOption{option.WithAPIKey(apiKey)}, extra...)
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return &Client{
		client:     client,
		embedModel: embedModel,
		chatModel:  chatModel,
		maxBytes:   maxBytes,
		pacer:      pacer,
	}, nil
}

func (c *Client) Close() error { return c.client.Close() }

// classify marks rate-limit, unavailable and deadline failures as transient
// so the pacer retries them.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if ae, ok := apierror.FromError(err); ok {
		switch ae.GRPCStatus().Code() {
		case codes.ResourceExhausted, codes.Unavailable, codes.DeadlineExceeded:
			return llm.Transient(err)
		}
		switch ae.HTTPCode() {
		case http.StatusTooManyRequests, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return llm.Transient(err)
		}
	}
	return err
}
