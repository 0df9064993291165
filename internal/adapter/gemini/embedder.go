package gemini

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/generative-ai-go/genai"

	"docuchat/internal/llm"
)

func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	text = llm.TruncateBytes(text, c.maxBytes-truncateHeadroom)
	em := c.client.EmbeddingModel(c.embedModel)

	var res *genai.EmbedContentResponse
	err := c.pacer.Do(ctx, func() error {
		var callErr error
		res, callErr = em.EmbedContent(ctx, genai.Text(text))
		return classify(callErr)
	})
	if err != nil {
		slog.ErrorContext(ctx, "embedding failed", "model", c.embedModel, "error", err)
		return nil, err
	}
	if res.Embedding == nil || len(res.Embedding.Values) == 0 {
		return nil, fmt.Errorf("empty embedding received")
	}
	return res.Embedding.Values, nil
}

// EmbedBatch embeds texts one request at a time; per-item submission keeps
// each request under the embedding byte ceiling.
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
