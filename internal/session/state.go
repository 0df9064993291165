// Package session holds the mutable per-session state: uploaded document
// records, chat history and the retrieval scope. One State instance is
// created at startup and shared by the handlers and the ingest worker.
package session

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"docuchat/internal/llm"
)

// Document statuses as flipped by the ingest worker.
const (
	StatusIndexing = "indexing"
	StatusReady    = "ready"
	StatusFailed   = "failed"
)

// Document is one uploaded document record. Records outlive an index clear;
// only an explicit delete removes them.
type Document struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Path       string    `json:"path"`
	FileHash   string    `json:"-"`
	Text       string    `json:"-"`
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
	Summary    string    `json:"summary,omitempty"`
	KeyPoints  []string  `json:"key_points,omitempty"`
	UploadedAt time.Time `json:"uploaded_at"`
}

type State struct {
	mu           sync.RWMutex
	systemPrompt string
	documents    map[string]Document
	history      []llm.Message
	scope        map[string]struct{}
}

func NewState(systemPrompt string) *State {
	return &State{
		systemPrompt: systemPrompt,
		documents:    make(map[string]Document),
		history:      []llm.Message{{Role: llm.RoleSystem, Content: systemPrompt}},
		scope:        make(map[string]struct{}),
	}
}

func (s *State) AddDocument(d Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.documents[d.ID] = d
}

func (s *State) Document(id string) (Document, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.documents[id]
	return d, ok
}

// Documents returns all records ordered by upload time.
func (s *State) Documents() []Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Document, 0, len(s.documents))
	for _, d := range s.documents {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UploadedAt.Before(out[j].UploadedAt) })
	return out
}

func (s *State) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.documents)
}

// RemoveDocument deletes the record and drops its id from the scope.
func (s *State) RemoveDocument(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.documents[id]; !ok {
		return false
	}
	delete(s.documents, id)
	delete(s.scope, id)
	return true
}

// HasFileHash reports whether a document with this raw-file hash exists.
func (s *State) HasFileHash(hash string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, d := range s.documents {
		if d.FileHash == hash {
			return true
		}
	}
	return false
}

func (s *State) SetStatus(id, status, errMsg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.documents[id]
	if !ok {
		return
	}
	d.Status = status
	d.Error = errMsg
	s.documents[id] = d
}

// SetText stores the extracted raw text on the record.
func (s *State) SetText(id, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.documents[id]
	if !ok {
		return
	}
	d.Text = text
	s.documents[id] = d
}

func (s *State) SetSummary(id, summary string, keyPoints []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.documents[id]
	if !ok {
		return
	}
	d.Summary = summary
	d.KeyPoints = keyPoints
	s.documents[id] = d
}

// History returns a copy of the chat transcript.
func (s *State) History() []llm.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]llm.Message{}, s.history...)
}

func (s *State) AppendHistory(msg llm.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, msg)
}

// ResetHistory drops the transcript back to the seeded system prompt.
func (s *State) ResetHistory() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = []llm.Message{{Role: llm.RoleSystem, Content: s.systemPrompt}}
}

// SetScope replaces the retrieval scope. Every id must refer to a known
// document; an empty list clears the scope (all documents).
func (s *State) SetScope(ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := s.documents[id]; !ok {
			return fmt.Errorf("unknown document id %q", id)
		}
		next[id] = struct{}{}
	}
	s.scope = next
	return nil
}

// Scope returns a copy of the allowed document-id set; empty means all.
func (s *State) Scope() map[string]struct{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]struct{}, len(s.scope))
	for id := range s.scope {
		out[id] = struct{}{}
	}
	return out
}

// ClearScope resets the scope without touching document records. Used by
// index clear, which discards the index but keeps the records.
func (s *State) ClearScope() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scope = make(map[string]struct{})
}
