// Package index implements the persistent vector index: an append-only set
// of L2-normalized vectors with parallel chunk metadata, searched by exact
// inner product (cosine similarity for unit vectors).
package index

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

const (
	IndexFile = "index.bin"
	MetaFile  = "meta.json"

	fileMagic   = uint32(0x44434958) // "DCIX"
	fileVersion = uint16(1)

	// magic + version + dim + count
	vectorHeaderSize = 4 + 2 + 4 + 4
)

var (
	// ErrCorrupt reports artifacts that are present but unreadable. A
	// missing artifact is not corruption; it means "no index yet".
	ErrCorrupt = errors.New("corrupt index artifacts")

	// ErrDimensionMismatch reports a persisted index whose dimension does
	// not match the configured embedding dimension.
	ErrDimensionMismatch = errors.New("index dimension mismatch")

	// ErrLengthMismatch reports an Add call with unequal vector and
	// metadata counts.
	ErrLengthMismatch = errors.New("vectors and metadata length mismatch")
)

// Meta is the per-vector record persisted alongside the index.
type Meta struct {
	DocID      string `json:"doc_id"`
	SourcePath string `json:"source_path"`
	Hash       string `json:"hash"`
	Text       string `json:"text"`
}

// Hit is one search result.
type Hit struct {
	Score float32
	Meta  Meta
}

// Store holds the vector index in memory and persists it as two co-located
// artifacts that are only valid together.
type Store struct {
	mu        sync.RWMutex
	indexPath string
	metaPath  string
	dim       int
	vectors   [][]float32
	meta      []Meta
	hashes    map[string]struct{}
}

func NewStore(cacheDir string, dim int) *Store {
	return &Store{
		indexPath: filepath.Join(cacheDir, IndexFile),
		metaPath:  filepath.Join(cacheDir, MetaFile),
		dim:       dim,
		hashes:    make(map[string]struct{}),
	}
}

// Load reads the persisted artifacts. Absence of either file leaves the
// store empty and returns nil; artifacts that exist but cannot be decoded
// return ErrCorrupt, and a dimension conflict returns ErrDimensionMismatch.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.vectors = nil
	s.meta = nil
	s.hashes = make(map[string]struct{})

	_, idxErr := os.Stat(s.indexPath)
	_, metaErr := os.Stat(s.metaPath)
	if os.IsNotExist(idxErr) || os.IsNotExist(metaErr) {
		// One file without the other is an inconsistent pair; treat it
		// the same as no index at all.
		return nil
	}
	if idxErr != nil {
		return idxErr
	}
	if metaErr != nil {
		return metaErr
	}

	vectors, dim, err := readVectors(s.indexPath)
	if err != nil {
		return err
	}
	if dim != s.dim {
		return fmt.Errorf("%w: index has %d, configured %d", ErrDimensionMismatch, dim, s.dim)
	}

	raw, err := os.ReadFile(s.metaPath)
	if err != nil {
		return err
	}
	var meta []Meta
	if err := json.Unmarshal(raw, &meta); err != nil {
		return fmt.Errorf("%w: decoding %s: %v", ErrCorrupt, MetaFile, err)
	}
	if len(meta) != len(vectors) {
		return fmt.Errorf("%w: %d vectors but %d metadata records", ErrCorrupt, len(vectors), len(meta))
	}

	s.vectors = vectors
	s.meta = meta
	for _, m := range meta {
		s.hashes[m.Hash] = struct{}{}
	}
	return nil
}

// Add normalizes the vectors and appends them with their metadata.
func (s *Store) Add(vectors [][]float32, metas []Meta) error {
	if len(vectors) != len(metas) {
		return fmt.Errorf("%w: %d vectors, %d metadata records", ErrLengthMismatch, len(vectors), len(metas))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, v := range vectors {
		if len(v) != s.dim {
			return fmt.Errorf("%w: vector %d has %d, configured %d", ErrDimensionMismatch, i, len(v), s.dim)
		}
		s.vectors = append(s.vectors, normalized(v))
		s.meta = append(s.meta, metas[i])
		s.hashes[metas[i].Hash] = struct{}{}
	}
	return nil
}

// Search returns up to k hits ordered by descending cosine similarity. An
// empty index yields an empty result, never an error.
func (s *Store) Search(query []float32, k int) []Hit {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.vectors) == 0 || k <= 0 || len(query) != s.dim {
		return nil
	}

	q := normalized(query)
	all := make([]scored, len(s.vectors))
	for i, v := range s.vectors {
		all[i] = scored{score: dot(q, v), idx: i}
	}
	// Stable descending order: equal scores keep insertion order, so
	// results are deterministic.
	sort.SliceStable(all, func(i, j int) bool { return all[i].score > all[j].score })

	if k > len(all) {
		k = len(all)
	}
	hits := make([]Hit, k)
	for i := 0; i < k; i++ {
		hits[i] = Hit{Score: all[i].score, Meta: s.meta[all[i].idx]}
	}
	return hits
}

// Save persists both artifacts, writing to temp files and renaming so a
// reload never observes a torn pair.
func (s *Store) Save() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(s.indexPath), 0o750); err != nil {
		return err
	}
	if err := writeVectors(s.indexPath, s.vectors, s.dim); err != nil {
		return err
	}

	raw, err := json.Marshal(s.meta)
	if err != nil {
		return err
	}
	tmp := s.metaPath + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.metaPath)
}

// Clear removes the persisted artifacts and empties the store.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range []string{s.indexPath, s.metaPath} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	s.vectors = nil
	s.meta = nil
	s.hashes = make(map[string]struct{})
	return nil
}

func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.vectors)
}

func (s *Store) Dimension() int { return s.dim }

// HasHash reports whether a chunk with this content hash is already indexed.
func (s *Store) HasHash(hash string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.hashes[hash]
	return ok
}

func normalized(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := math.Sqrt(sum)
	out := make([]float32, len(v))
	if norm == 0 {
		copy(out, v)
		return out
	}
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

func dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

type scored struct {
	score float32
	idx   int
}

func readVectors(path string) ([][]float32, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()
	r := bufio.NewReader(f)

	var (
		magic   uint32
		version uint16
		dim     uint32
		count   uint32
	)
	for _, field := range []any{&magic, &version, &dim, &count} {
		if err := binary.Read(r, binary.LittleEndian, field); err != nil {
			return nil, 0, fmt.Errorf("%w: reading header: %v", ErrCorrupt, err)
		}
	}
	if magic != fileMagic || version != fileVersion {
		return nil, 0, fmt.Errorf("%w: unrecognized header", ErrCorrupt)
	}

	// The header is not trusted: the declared rows must fit in the bytes
	// actually present, or a corrupt count field would drive a huge
	// allocation before the first row read fails.
	fi, err := f.Stat()
	if err != nil {
		return nil, 0, err
	}
	if count > 0 && dim == 0 {
		return nil, 0, fmt.Errorf("%w: zero dimension with %d vectors", ErrCorrupt, count)
	}
	if need := uint64(count) * uint64(dim) * 4; uint64(fi.Size()) < vectorHeaderSize+need {
		return nil, 0, fmt.Errorf("%w: file truncated, %d vectors declared", ErrCorrupt, count)
	}

	vectors := make([][]float32, count)
	for i := range vectors {
		row := make([]float32, dim)
		if err := binary.Read(r, binary.LittleEndian, row); err != nil {
			return nil, 0, fmt.Errorf("%w: reading vector %d: %v", ErrCorrupt, i, err)
		}
		vectors[i] = row
	}
	return vectors, int(dim), nil
}

func writeVectors(path string, vectors [][]float32, dim int) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)

	fields := []any{fileMagic, fileVersion, uint32(dim), uint32(len(vectors))}
	for _, field := range fields {
		if err := binary.Write(w, binary.LittleEndian, field); err != nil {
			f.Close()
			return err
		}
	}
	for _, v := range vectors {
		if err := binary.Write(w, binary.LittleEndian, v); err != nil {
			f.Close()
			return err
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
