// Package worker consumes document ingestion tasks from NSQ. The single
// consumer channel is what serializes index builds: only one build runs at a
// time, so the persisted artifacts have exactly one writer.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/nsqio/go-nsq"

	"docuchat/internal/index"
	"docuchat/internal/llm"
	"docuchat/internal/middleware"
	"docuchat/internal/session"
	"docuchat/internal/summary"
)

// TextExtractor turns a stored upload into plain text.
type TextExtractor func(path string) (string, error)

type Summarizer interface {
	Summarize(ctx context.Context, text string) (*summary.Result, error)
}

type IndexBuilder interface {
	BuildOrUpdate(ctx context.Context, docs []index.Document) (*index.Store, int, error)
}

type IngestConsumer struct {
	extract    TextExtractor
	summarizer Summarizer
	builder    IndexBuilder
	handle     *index.Handle
	state      *session.State
	minFiles   int
}

func NewIngestConsumer(ex TextExtractor, sum Summarizer, b IndexBuilder, h *index.Handle, st *session.State, minFiles int) *IngestConsumer {
	if minFiles < 1 {
		minFiles = 1
	}
	return &IngestConsumer{
		extract:    ex,
		summarizer: sum,
		builder:    b,
		handle:     h,
		state:      st,
		minFiles:   minFiles,
	}
}

func (c *IngestConsumer) HandleMessage(m *nsq.Message) error {
	if len(m.Body) == 0 {
		return nil
	}

	var payload IngestTaskPayload
	if err := json.Unmarshal(m.Body, &payload); err != nil {
		// Poison pill: invalid JSON, don't retry.
		slog.Error("poison pill: invalid json", "error", err)
		return nil
	}

	ctx := context.Background()
	if payload.CorrelationID != "" {
		ctx = middleware.WithCorrelationID(ctx, payload.CorrelationID)
	}

	text, err := c.extract(payload.Path)
	if err != nil {
		// Extraction failures are per-document and final; the rest of the
		// batch keeps going.
		slog.ErrorContext(ctx, "extraction failed", "error", err, "doc_id", payload.DocID, "path", payload.Path)
		c.state.SetStatus(payload.DocID, session.StatusFailed, err.Error())
		return nil
	}
	c.state.SetText(payload.DocID, text)

	sumCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
	res, err := c.summarizer.Summarize(sumCtx, text)
	cancel()
	if err != nil {
		// Summaries are best-effort; indexing proceeds without one.
		slog.WarnContext(ctx, "summarization failed", "error", err, "doc_id", payload.DocID)
	} else {
		c.state.SetSummary(payload.DocID, res.Summary, res.KeyPoints)
	}

	if c.state.Count() < c.minFiles {
		slog.InfoContext(ctx, "deferring index build until enough documents",
			"have", c.state.Count(), "need", c.minFiles)
		return nil
	}

	var docs []index.Document
	var pending []string
	for _, d := range c.state.Documents() {
		if d.Text == "" || d.Status == session.StatusFailed {
			continue
		}
		docs = append(docs, index.Document{ID: d.ID, SourcePath: d.Path, Text: d.Text})
		if d.Status != session.StatusReady {
			pending = append(pending, d.ID)
		}
	}

	store, added, err := c.builder.BuildOrUpdate(ctx, docs)
	if err != nil {
		if errors.Is(err, llm.ErrUnavailable) {
			slog.ErrorContext(ctx, "index build unavailable, retrying", "error", err, "doc_id", payload.DocID)
			return err // Retry
		}
		slog.ErrorContext(ctx, "index build failed", "error", err, "doc_id", payload.DocID)
		c.state.SetStatus(payload.DocID, session.StatusFailed, err.Error())
		return nil
	}

	c.handle.Set(store)
	for _, id := range pending {
		c.state.SetStatus(id, session.StatusReady, "")
	}
	slog.InfoContext(ctx, "index build complete", "doc_id", payload.DocID, "added", added, "total", store.Count())
	return nil
}
