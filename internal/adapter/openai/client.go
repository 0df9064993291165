// Package openai adapts the OpenAI API to the llm boundary, for deployments
// without Gemini access.
package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	goopenai "github.com/sashabaranov/go-openai"

	"docuchat/internal/llm"
)

const truncateHeadroom = 512

type Client struct {
	client     *goopenai.Client
	embedModel string
	chatModel  string
	maxBytes   int
	pacer      *llm.Pacer
}

func NewClient(apiKey, embedModel, chatModel string, maxBytes int, pacer *llm.Pacer) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: API key is required")
	}
	return &Client{
		client:     goopenai.NewClient(apiKey),
		embedModel: embedModel,
		chatModel:  chatModel,
		maxBytes:   maxBytes,
		pacer:      pacer,
	}, nil
}

func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	text = llm.TruncateBytes(text, c.maxBytes-truncateHeadroom)

	var resp goopenai.EmbeddingResponse
	err := c.pacer.Do(ctx, func() error {
		var callErr error
		resp, callErr = c.client.CreateEmbeddings(ctx, goopenai.EmbeddingRequest{
			Model: goopenai.EmbeddingModel(c.embedModel),
			Input: []string{text},
		})
		return classify(callErr)
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("no embedding data returned")
	}
	return resp.Data[0].Embedding, nil
}

func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for i, t := range texts {
		vec, err := c.Embed(ctx, t)
		if err != nil {
			return nil, fmt.Errorf("embedding item %d: %w", i, err)
		}
		out = append(out, vec)
	}
	return out, nil
}

func (c *Client) Generate(ctx context.Context, messages []llm.Message) (string, error) {
	var resp goopenai.ChatCompletionResponse
	err := c.pacer.Do(ctx, func() error {
		var callErr error
		resp, callErr = c.client.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
			Model:    c.chatModel,
			Messages: toChatMessages(messages),
		})
		return classify(callErr)
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no completion choices returned")
	}
	return resp.Choices[0].Message.Content, nil
}

func (c *Client) GenerateStream(ctx context.Context, messages []llm.Message, emit func(string) error) error {
	if err := c.pacer.Wait(ctx); err != nil {
		return err
	}
	stream, err := c.client.CreateChatCompletionStream(ctx, goopenai.ChatCompletionRequest{
		Model:    c.chatModel,
		Messages: toChatMessages(messages),
		Stream:   true,
	})
	if err != nil {
		return classify(err)
	}
	defer stream.Close()

	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return classify(err)
		}
		if len(resp.Choices) == 0 {
			continue
		}
		if frag := resp.Choices[0].Delta.Content; frag != "" {
			if err := emit(frag); err != nil {
				return err
			}
		}
	}
}

func toChatMessages(messages []llm.Message) []goopenai.ChatCompletionMessage {
	out := make([]goopenai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, goopenai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	return out
}

func classify(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case http.StatusTooManyRequests, http.StatusInternalServerError,
			http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return llm.Transient(err)
		}
	}
	return err
}
