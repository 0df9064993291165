package worker_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/nsqio/go-nsq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"docuchat/internal/index"
	"docuchat/internal/llm"
	"docuchat/internal/session"
	"docuchat/internal/summary"
	"docuchat/internal/worker"
)

type MockSummarizer struct{ mock.Mock }

func (m *MockSummarizer) Summarize(ctx context.Context, text string) (*summary.Result, error) {
	args := m.Called(ctx, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*summary.Result), args.Error(1)
}

type MockBuilder struct{ mock.Mock }

func (m *MockBuilder) BuildOrUpdate(ctx context.Context, docs []index.Document) (*index.Store, int, error) {
	args := m.Called(ctx, docs)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	return args.Get(0).(*index.Store), args.Int(1), args.Error(2)
}

func taskBody(t *testing.T, docID, path string) []byte {
	t.Helper()
	body, err := json.Marshal(worker.IngestTaskPayload{DocID: docID, Name: "a.txt", Path: path, CorrelationID: "corr-1"})
	require.NoError(t, err)
	return body
}

func okExtractor(text string) worker.TextExtractor {
	return func(string) (string, error) { return text, nil }
}

func TestHandleMessage_PoisonPill(t *testing.T) {
	sum := new(MockSummarizer)
	b := new(MockBuilder)
	st := session.NewState("sys")

	c := worker.NewIngestConsumer(okExtractor("text"), sum, b, index.NewHandle(t.TempDir()), st, 1)

	assert.NoError(t, c.HandleMessage(&nsq.Message{Body: []byte("invalid json")}))
	assert.NoError(t, c.HandleMessage(&nsq.Message{Body: nil}))
	sum.AssertNotCalled(t, "Summarize")
	b.AssertNotCalled(t, "BuildOrUpdate")
}

func TestHandleMessage_ExtractionFailureIsFinal(t *testing.T) {
	sum := new(MockSummarizer)
	b := new(MockBuilder)
	st := session.NewState("sys")
	st.AddDocument(session.Document{ID: "d1", Status: session.StatusIndexing})

	bad := func(string) (string, error) { return "", errors.New("garbled file") }
	c := worker.NewIngestConsumer(bad, sum, b, index.NewHandle(t.TempDir()), st, 1)

	err := c.HandleMessage(&nsq.Message{Body: taskBody(t, "d1", "/up/a.txt")})

	assert.NoError(t, err) // no retry
	d, _ := st.Document("d1")
	assert.Equal(t, session.StatusFailed, d.Status)
	assert.Contains(t, d.Error, "garbled file")
	b.AssertNotCalled(t, "BuildOrUpdate")
}

func TestHandleMessage_DefersUntilMinFiles(t *testing.T) {
	sum := new(MockSummarizer)
	b := new(MockBuilder)
	st := session.NewState("sys")
	st.AddDocument(session.Document{ID: "d1", Path: "/up/a.txt", Status: session.StatusIndexing})

	sum.On("Summarize", mock.Anything, "doc text").Return(&summary.Result{Summary: "s"}, nil)

	c := worker.NewIngestConsumer(okExtractor("doc text"), sum, b, index.NewHandle(t.TempDir()), st, 2)

	err := c.HandleMessage(&nsq.Message{Body: taskBody(t, "d1", "/up/a.txt")})

	assert.NoError(t, err)
	d, _ := st.Document("d1")
	assert.Equal(t, session.StatusIndexing, d.Status)
	assert.Equal(t, "s", d.Summary)
	b.AssertNotCalled(t, "BuildOrUpdate")
}

func TestHandleMessage_BuildsAndFlipsStatus(t *testing.T) {
	sum := new(MockSummarizer)
	b := new(MockBuilder)
	st := session.NewState("sys")
	st.AddDocument(session.Document{ID: "d1", Path: "/up/a.txt", Status: session.StatusIndexing})

	sum.On("Summarize", mock.Anything, "doc text").
		Return(&summary.Result{Summary: "s", KeyPoints: []string{"k"}}, nil)

	store := index.NewStore(t.TempDir(), 3)
	b.On("BuildOrUpdate", mock.Anything, mock.MatchedBy(func(docs []index.Document) bool {
		return len(docs) == 1 && docs[0].ID == "d1" && docs[0].Text == "doc text"
	})).Return(store, 2, nil)

	h := index.NewHandle(t.TempDir())
	c := worker.NewIngestConsumer(okExtractor("doc text"), sum, b, h, st, 1)

	err := c.HandleMessage(&nsq.Message{Body: taskBody(t, "d1", "/up/a.txt")})

	assert.NoError(t, err)
	d, _ := st.Document("d1")
	assert.Equal(t, session.StatusReady, d.Status)
	assert.Equal(t, "s", d.Summary)
	assert.Zero(t, h.Count()) // empty store, but attached
	b.AssertExpectations(t)
}

func TestHandleMessage_UnavailableBuildRetries(t *testing.T) {
	sum := new(MockSummarizer)
	b := new(MockBuilder)
	st := session.NewState("sys")
	st.AddDocument(session.Document{ID: "d1", Path: "/up/a.txt", Status: session.StatusIndexing})

	sum.On("Summarize", mock.Anything, mock.Anything).Return(&summary.Result{}, nil)
	b.On("BuildOrUpdate", mock.Anything, mock.Anything).
		Return(nil, 0, fmt.Errorf("%w: quota", llm.ErrUnavailable))

	c := worker.NewIngestConsumer(okExtractor("doc text"), sum, b, index.NewHandle(t.TempDir()), st, 1)

	err := c.HandleMessage(&nsq.Message{Body: taskBody(t, "d1", "/up/a.txt")})

	assert.Error(t, err) // NSQ requeues
	d, _ := st.Document("d1")
	assert.Equal(t, session.StatusIndexing, d.Status)
}

func TestHandleMessage_PermanentBuildFailureIsFinal(t *testing.T) {
	sum := new(MockSummarizer)
	b := new(MockBuilder)
	st := session.NewState("sys")
	st.AddDocument(session.Document{ID: "d1", Path: "/up/a.txt", Status: session.StatusIndexing})

	sum.On("Summarize", mock.Anything, mock.Anything).Return(&summary.Result{}, nil)
	b.On("BuildOrUpdate", mock.Anything, mock.Anything).
		Return(nil, 0, errors.New("dimension mismatch"))

	c := worker.NewIngestConsumer(okExtractor("doc text"), sum, b, index.NewHandle(t.TempDir()), st, 1)

	err := c.HandleMessage(&nsq.Message{Body: taskBody(t, "d1", "/up/a.txt")})

	assert.NoError(t, err)
	d, _ := st.Document("d1")
	assert.Equal(t, session.StatusFailed, d.Status)
}

func TestHandleMessage_SummaryFailureDoesNotBlockIndexing(t *testing.T) {
	sum := new(MockSummarizer)
	b := new(MockBuilder)
	st := session.NewState("sys")
	st.AddDocument(session.Document{ID: "d1", Path: "/up/a.txt", Status: session.StatusIndexing})

	sum.On("Summarize", mock.Anything, mock.Anything).Return(nil, errors.New("bad request"))
	store := index.NewStore(t.TempDir(), 3)
	b.On("BuildOrUpdate", mock.Anything, mock.Anything).Return(store, 1, nil)

	c := worker.NewIngestConsumer(okExtractor("doc text"), sum, b, index.NewHandle(t.TempDir()), st, 1)

	err := c.HandleMessage(&nsq.Message{Body: taskBody(t, "d1", "/up/a.txt")})

	assert.NoError(t, err)
	d, _ := st.Document("d1")
	assert.Equal(t, session.StatusReady, d.Status)
	assert.Empty(t, d.Summary)
}
