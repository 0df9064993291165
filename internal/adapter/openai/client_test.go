package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	goopenai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docuchat/internal/llm"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	cfg := goopenai.DefaultConfig("test-key")
	cfg.BaseURL = ts.URL + "/v1"
	return &Client{
		client:     goopenai.NewClientWithConfig(cfg),
		embedModel: "text-embedding-3-small",
		chatModel:  "gpt-4o-mini",
		maxBytes:   30000,
		pacer:      llm.NewPacer(0, 1, time.Millisecond),
	}
}

func TestNewClient_RequiresAPIKey(t *testing.T) {
	_, err := NewClient("", "e", "c", 1000, llm.NewPacer(0, 1, time.Second))
	assert.Error(t, err)
}

func TestEmbed(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(goopenai.EmbeddingResponse{
			Data: []goopenai.Embedding{{Embedding: []float32{0.1, 0.2}}},
		})
	})

	vec, err := c.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2}, vec)
}

func TestEmbed_NoData(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(goopenai.EmbeddingResponse{})
	})

	_, err := c.Embed(context.Background(), "hello")
	assert.ErrorContains(t, err, "no embedding data")
}

func TestGenerate(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req goopenai.ChatCompletionRequest
		json.NewDecoder(r.Body).Decode(&req)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(goopenai.ChatCompletionResponse{
			Choices: []goopenai.ChatCompletionChoice{
				{Message: goopenai.ChatCompletionMessage{Content: "canned answer"}},
			},
		})
	})

	out, err := c.Generate(context.Background(), []llm.Message{
		{Role: llm.RoleSystem, Content: "be terse"},
		{Role: llm.RoleUser, Content: "hi"},
	})
	require.NoError(t, err)
	assert.Equal(t, "canned answer", out)
}

func TestGenerateStream_Throttled(t *testing.T) {
	hits := 0
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits++
	})
	c.pacer = llm.NewPacer(0.001, 1, time.Millisecond)
	require.NoError(t, c.pacer.Wait(context.Background())) // drain the burst token

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := c.GenerateStream(ctx, []llm.Message{{Role: llm.RoleUser, Content: "hi"}}, func(string) error {
		t.Fatal("no fragment should be emitted")
		return nil
	})
	assert.Error(t, err)
	assert.Zero(t, hits, "stream opened without passing the throttle")
}

func TestClassify(t *testing.T) {
	rateLimited := &goopenai.APIError{HTTPStatusCode: http.StatusTooManyRequests}
	assert.True(t, llm.IsTransient(classify(rateLimited)))

	badRequest := &goopenai.APIError{HTTPStatusCode: http.StatusBadRequest}
	assert.False(t, llm.IsTransient(classify(badRequest)))

	plain := errors.New("boom")
	assert.False(t, llm.IsTransient(classify(plain)))
	assert.NoError(t, classify(nil))
}
