// Package retrieval routes a question through widened vector search, scope
// filtering, MMR reranking and a confidence gate, then hands the assembled
// prompt to the generation boundary.
package retrieval

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"docuchat/internal/index"
	"docuchat/internal/llm"
	"docuchat/internal/middleware"
	"docuchat/internal/rerank"
)

// Mode selects the grounding policy for one question.
type Mode string

const (
	// ModeAuto grounds only when retrieval confidence clears the threshold.
	ModeAuto Mode = "auto"
	// ModeDocs always builds a context block, even at low confidence.
	ModeDocs Mode = "docs"
	// ModeGeneral never retrieves.
	ModeGeneral Mode = "general"
)

const contextDelimiter = "\n\n---\n\n"

// Options tune a single Route call. Zero values fall back to the service
// configuration.
type Options struct {
	Mode    Mode
	Scope   map[string]struct{} // allowed doc ids; empty means all
	K       int
	History []llm.Message
	Stream  bool
	Emit    func(fragment string) error // required when Stream is set
}

// Result is the routed answer plus its grounding evidence.
type Result struct {
	Answer     string   `json:"answer"`
	Sources    []string `json:"sources"`
	Grounded   bool     `json:"grounded"`
	Confidence float32  `json:"confidence"`
}

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

type Generator interface {
	Generate(ctx context.Context, messages []llm.Message) (string, error)
}

// StreamGenerator is the optional streaming capability of a Generator.
type StreamGenerator interface {
	Generator
	GenerateStream(ctx context.Context, messages []llm.Message, emit func(string) error) error
}

type Searcher interface {
	Search(query []float32, k int) []index.Hit
	Count() int
}

// Config carries the retrieval tunables resolved from the environment.
type Config struct {
	K             int
	Widen         int
	MinSimilarity float32
	MMRLambda     float64
}

type Service struct {
	embedder Embedder
	gen      Generator
	streamer StreamGenerator // nil when the provider cannot stream
	idx      Searcher
	cfg      Config
	logger   *QueryLogger
}

// NewService wires the router. The streaming capability is resolved here,
// once, by interface assertion on the generator.
func NewService(e Embedder, g Generator, idx Searcher, cfg Config, l *QueryLogger) *Service {
	if cfg.K <= 0 {
		cfg.K = 5
	}
	if cfg.Widen <= 0 {
		cfg.Widen = 6
	}
	if cfg.MinSimilarity == 0 {
		cfg.MinSimilarity = 0.28
	}
	if cfg.MMRLambda == 0 {
		cfg.MMRLambda = 0.6
	}
	streamer, _ := g.(StreamGenerator)
	return &Service{embedder: e, gen: g, streamer: streamer, idx: idx, cfg: cfg, logger: l}
}

// CanStream reports whether the wired generator supports incremental output.
func (s *Service) CanStream() bool { return s.streamer != nil }

// Route answers the question under the requested grounding policy.
func (s *Service) Route(ctx context.Context, question string, opts Options) (*Result, error) {
	start := time.Now()
	mode := opts.Mode
	if mode == "" {
		mode = ModeAuto
	}
	k := opts.K
	if k <= 0 {
		k = s.cfg.K
	}

	var res *Result
	var err error
	defer func() {
		if s.logger != nil && err == nil {
			entry := QueryLogEntry{
				Query:         question,
				Mode:          string(mode),
				Duration:      time.Since(start),
				CorrelationID: middleware.GetCorrelationID(ctx),
			}
			if res != nil {
				entry.Grounded = res.Grounded
				entry.Confidence = res.Confidence
				entry.NumSources = len(res.Sources)
			}
			s.logger.Log(entry)
		}
	}()

	if mode == ModeGeneral || s.idx.Count() == 0 {
		res, err = s.generate(ctx, question, "", opts)
		return res, err
	}

	qvec, err := s.embedder.Embed(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}

	wide := k * s.cfg.Widen
	if wide < 30 {
		wide = 30
	}
	hits := s.idx.Search(qvec, wide)
	hits = s.applyScope(qvec, hits, opts.Scope, k, wide)

	if len(hits) == 0 {
		// A valid outcome, not an error. Docs mode still answers, with a
		// note that nothing matched.
		if mode == ModeDocs {
			res, err = s.generateNoContext(ctx, question, opts)
			return res, err
		}
		res, err = s.generate(ctx, question, "", opts)
		return res, err
	}

	texts := make([]string, len(hits))
	for i, h := range hits {
		texts[i] = h.Meta.Text
	}
	vecs, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed candidates: %w", err)
	}

	selected := rerank.MMR(qvec, vecs, k, s.cfg.MMRLambda)

	var sum float64
	for _, i := range selected {
		sum += float64(hits[i].Score)
	}
	confidence := float32(sum / float64(len(selected)))

	if mode == ModeAuto && confidence < s.cfg.MinSimilarity {
		res, err = s.generate(ctx, question, "", opts)
		return res, err
	}

	blocks := make([]string, 0, len(selected))
	sources := make([]string, 0, len(selected))
	seen := make(map[string]struct{}, len(selected))
	for _, i := range selected {
		name := filepath.Base(hits[i].Meta.SourcePath)
		blocks = append(blocks, fmt.Sprintf("[%s] %s", name, hits[i].Meta.Text))
		if _, ok := seen[name]; !ok {
			seen[name] = struct{}{}
			sources = append(sources, name)
		}
	}

	res, err = s.generate(ctx, question, strings.Join(blocks, contextDelimiter), opts)
	if err != nil {
		return nil, err
	}
	res.Sources = sources
	res.Grounded = true
	res.Confidence = confidence
	return res, nil
}

// applyScope drops out-of-scope hits. When fewer than k survive it re-searches
// once at triple the wide count and appends new in-scope matches in relevance
// order; there is no second retry.
func (s *Service) applyScope(qvec []float32, hits []index.Hit, scope map[string]struct{}, k, wide int) []index.Hit {
	if len(scope) == 0 {
		return hits
	}

	kept := make([]index.Hit, 0, len(hits))
	present := make(map[string]struct{}, len(hits))
	for _, h := range hits {
		if _, ok := scope[h.Meta.DocID]; ok {
			kept = append(kept, h)
			present[h.Meta.Hash] = struct{}{}
		}
	}
	if len(kept) >= k {
		return kept
	}

	for _, h := range s.idx.Search(qvec, wide*3) {
		if _, ok := scope[h.Meta.DocID]; !ok {
			continue
		}
		if _, ok := present[h.Meta.Hash]; ok {
			continue
		}
		present[h.Meta.Hash] = struct{}{}
		kept = append(kept, h)
	}
	return kept
}

const groundedPreamble = "Answer the question using only the document excerpts below. " +
	"If the excerpts do not contain the answer, say so.\n\n"

const noContextNote = "No relevant passages were found in the uploaded documents. " +
	"Answer from general knowledge and say that the documents did not cover this.\n\nQuestion: "

func (s *Service) generateNoContext(ctx context.Context, question string, opts Options) (*Result, error) {
	messages := append(append([]llm.Message{}, opts.History...), llm.Message{
		Role:    llm.RoleUser,
		Content: noContextNote + question,
	})
	answer, err := s.gen.Generate(ctx, messages)
	if err != nil {
		return nil, err
	}
	return &Result{Answer: answer}, nil
}

func (s *Service) generate(ctx context.Context, question, contextBlock string, opts Options) (*Result, error) {
	content := question
	if contextBlock != "" {
		content = groundedPreamble + contextBlock + "\n\nQuestion: " + question
	}
	messages := append(append([]llm.Message{}, opts.History...), llm.Message{
		Role:    llm.RoleUser,
		Content: content,
	})

	if opts.Stream && s.streamer != nil && opts.Emit != nil {
		var b strings.Builder
		err := s.streamer.GenerateStream(ctx, messages, func(fragment string) error {
			b.WriteString(fragment)
			return opts.Emit(fragment)
		})
		if err != nil {
			return nil, err
		}
		return &Result{Answer: b.String()}, nil
	}

	answer, err := s.gen.Generate(ctx, messages)
	if err != nil {
		return nil, err
	}
	return &Result{Answer: answer}, nil
}
