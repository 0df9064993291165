// Package document owns the upload lifecycle: store the file, record it in
// the session, and queue it for ingestion. Deleting a record does not touch
// index entries; those persist until an explicit index clear.
package document

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"docuchat/internal/index"
	"docuchat/internal/middleware"
	"docuchat/internal/session"
	"docuchat/internal/worker"
)

var ErrDuplicate = errors.New("duplicate document")
var ErrNotFound = errors.New("document not found")

type Publisher interface {
	Publish(topic string, body []byte) error
}

// Stats describes the current index for the stats endpoint.
type Stats struct {
	Documents int    `json:"documents"`
	Chunks    int    `json:"chunks"`
	Dimension int    `json:"dimension"`
	MinFiles  int    `json:"min_files"`
	State     string `json:"state"`
}

type Service struct {
	state     *session.State
	handle    *index.Handle
	publisher Publisher
	minFiles  int
}

func NewService(st *session.State, h *index.Handle, pub Publisher, minFiles int) *Service {
	if minFiles < 1 {
		minFiles = 1
	}
	return &Service{state: st, handle: h, publisher: pub, minFiles: minFiles}
}

// Upload records the stored file and queues an ingest task. The file at path
// is already written; callers clean it up when an error is returned.
func (s *Service) Upload(ctx context.Context, path, fileHash, name string) (session.Document, error) {
	if s.state.HasFileHash(fileHash) {
		return session.Document{}, ErrDuplicate
	}

	doc := session.Document{
		ID:         uuid.New().String(),
		Name:       name,
		Path:       path,
		FileHash:   fileHash,
		Status:     session.StatusIndexing,
		UploadedAt: time.Now(),
	}
	s.state.AddDocument(doc)

	body, err := json.Marshal(worker.IngestTaskPayload{
		DocID:         doc.ID,
		Name:          doc.Name,
		Path:          doc.Path,
		CorrelationID: middleware.GetCorrelationID(ctx),
	})
	if err != nil {
		s.state.RemoveDocument(doc.ID)
		return session.Document{}, fmt.Errorf("marshal ingest task: %w", err)
	}
	if err := s.publisher.Publish(worker.TopicIngestTask, body); err != nil {
		s.state.RemoveDocument(doc.ID)
		return session.Document{}, fmt.Errorf("publish ingest task: %w", err)
	}

	slog.InfoContext(ctx, "document queued for ingestion", "doc_id", doc.ID, "name", doc.Name)
	return doc, nil
}

func (s *Service) List(ctx context.Context) []session.Document {
	return s.state.Documents()
}

func (s *Service) Get(ctx context.Context, id string) (session.Document, error) {
	d, ok := s.state.Document(id)
	if !ok {
		return session.Document{}, ErrNotFound
	}
	return d, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	if !s.state.RemoveDocument(id) {
		return ErrNotFound
	}
	slog.InfoContext(ctx, "document removed", "doc_id", id)
	return nil
}

// ClearIndex drops the persisted index artifacts and resets the scope.
// Document records stay; re-uploading is not needed to list them.
func (s *Service) ClearIndex(ctx context.Context) error {
	if err := s.handle.Clear(); err != nil {
		return fmt.Errorf("clear index: %w", err)
	}
	s.state.ClearScope()
	slog.InfoContext(ctx, "index cleared")
	return nil
}

func (s *Service) Stats(ctx context.Context) Stats {
	st := Stats{
		Documents: s.state.Count(),
		Chunks:    s.handle.Count(),
		Dimension: s.handle.Dimension(),
		MinFiles:  s.minFiles,
		State:     "empty",
	}
	if st.Chunks > 0 {
		st.State = "ready"
	}
	return st
}
