package gemini

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"

	"docuchat/internal/llm"
)

// flatten folds an ordered message list into a single prompt: system turns
// first, then the conversation in order.
func flatten(messages []llm.Message) string {
	var system, convo []string
	for _, m := range messages {
		switch m.Role {
		case llm.RoleSystem:
			system = append(system, m.Content)
		default:
			convo = append(convo, m.Content)
		}
	}
	return strings.TrimSpace(strings.Join(system, "\n") + "\n\n" + strings.Join(convo, "\n"))
}

func (c *Client) Generate(ctx context.Context, messages []llm.Message) (string, error) {
	model := c.client.GenerativeModel(c.chatModel)
	prompt := flatten(messages)

	var res *genai.GenerateContentResponse
	err := c.pacer.Do(ctx, func() error {
		var callErr error
		res, callErr = model.GenerateContent(ctx, genai.Text(prompt))
		return classify(callErr)
	})
	if err != nil {
		slog.ErrorContext(ctx, "generation failed", "model", c.chatModel, "error", err)
		return "", err
	}
	return responseText(res), nil
}

// GenerateStream yields fragments in order through emit. The caller cancels
// mid-stream via ctx; fragments already emitted stand.
func (c *Client) GenerateStream(ctx context.Context, messages []llm.Message, emit func(string) error) error {
	if err := c.pacer.Wait(ctx); err != nil {
		return err
	}
	model := c.client.GenerativeModel(c.chatModel)
	iter := model.GenerateContentStream(ctx, genai.Text(flatten(messages)))

	for {
		res, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			return nil
		}
		if err != nil {
			return classify(err)
		}
		if frag := responseText(res); frag != "" {
			if err := emit(frag); err != nil {
				return err
			}
		}
	}
}

func responseText(res *genai.GenerateContentResponse) string {
	if res == nil {
		return ""
	}
	var b strings.Builder
	for _, cand := range res.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if t, ok := part.(genai.Text); ok {
				b.WriteString(string(t))
			}
		}
	}
	return b.String()
}
