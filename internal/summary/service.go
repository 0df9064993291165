// Package summary produces a per-document summary and key points via the
// generation boundary, degrading to a local heuristic when the upstream
// retry budget is exhausted.
package summary

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"docuchat/internal/llm"
)

const (
	defaultMaxWords = 180
	maxKeyPoints    = 6
)

// Result is a parsed document summary.
type Result struct {
	Summary   string   `json:"summary"`
	KeyPoints []string `json:"key_points"`
}

type Generator interface {
	Generate(ctx context.Context, messages []llm.Message) (string, error)
}

type Service struct {
	gen      Generator
	maxWords int
}

func NewService(g Generator) *Service {
	return &Service{gen: g, maxWords: defaultMaxWords}
}

// Summarize asks the generator for a summary plus key points. When the call
// fails with llm.ErrUnavailable it falls back to a local heuristic so the
// upload flow keeps working; any other error is returned.
func (s *Service) Summarize(ctx context.Context, text string) (*Result, error) {
	prompt := fmt.Sprintf(
		"Summarize the following document in about %d words, then list 3-6 key points under a 'Key Points' heading, one per line prefixed with '- '.\n\n%s",
		s.maxWords, text,
	)
	out, err := s.gen.Generate(ctx, []llm.Message{{Role: llm.RoleUser, Content: prompt}})
	if err != nil {
		if errors.Is(err, llm.ErrUnavailable) {
			slog.WarnContext(ctx, "summarizer unavailable, using heuristic fallback", "error", err)
			return s.heuristic(text), nil
		}
		return nil, err
	}
	return parse(out), nil
}

// parse splits the model output at the first "Key Points" heading and
// collects bullet lines after it.
func parse(out string) *Result {
	res := &Result{Summary: strings.TrimSpace(out)}

	idx := strings.Index(strings.ToLower(out), "key points")
	if idx < 0 {
		return res
	}

	head := strings.TrimSpace(out[:idx])
	head = strings.TrimSpace(strings.TrimSuffix(head, "#"))
	head = strings.TrimSpace(strings.TrimPrefix(head, "Summary"))
	res.Summary = head

	for _, line := range strings.Split(out[idx:], "\n") {
		line = strings.TrimSpace(line)
		if rest, ok := cutBullet(line); ok && rest != "" {
			res.KeyPoints = append(res.KeyPoints, rest)
		}
	}
	return res
}

func cutBullet(line string) (string, bool) {
	for _, prefix := range []string{"- ", "* ", "• "} {
		if strings.HasPrefix(line, prefix) {
			return strings.TrimSpace(strings.TrimPrefix(line, prefix)), true
		}
	}
	return "", false
}

var sentenceRe = regexp.MustCompile(`[^.!?]+[.!?]`)

// heuristic builds a degraded summary locally: the first few sentences capped
// at maxWords, plus the most frequent non-stopword tokens as key points.
func (s *Service) heuristic(text string) *Result {
	collapsed := strings.Join(strings.Fields(text), " ")

	sentences := sentenceRe.FindAllString(collapsed, 5)
	head := collapsed
	if len(sentences) > 0 {
		head = strings.TrimSpace(strings.Join(sentences, " "))
	}
	words := strings.Fields(head)
	if len(words) > s.maxWords {
		head = strings.Join(words[:s.maxWords], " ") + "…"
	}

	return &Result{Summary: head, KeyPoints: frequentWords(collapsed)}
}

func frequentWords(text string) []string {
	freq := make(map[string]int)
	var order []string
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		tok = strings.Trim(tok, ",.;:()[]\"'")
		if len(tok) < 4 || len(tok) > 18 || !alphabetic(tok) {
			continue
		}
		if _, ok := stopwords[tok]; ok {
			continue
		}
		if freq[tok] == 0 {
			order = append(order, tok)
		}
		freq[tok]++
	}

	// Rank by frequency; stable sort keeps first occurrence on ties.
	sort.SliceStable(order, func(i, j int) bool {
		return freq[order[i]] > freq[order[j]]
	})

	if len(order) > maxKeyPoints {
		order = order[:maxKeyPoints]
	}
	return order
}

func alphabetic(s string) bool {
	for _, r := range s {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return len(s) > 0
}

var stopwords = func() map[string]struct{} {
	words := []string{
		"this", "that", "these", "those", "with", "from", "into", "about",
		"between", "through", "during", "before", "after", "above", "below",
		"over", "under", "again", "further", "than", "such", "very", "will",
		"just", "should", "have", "been", "being", "were", "they", "them",
		"their", "there", "where", "when", "which", "while", "would", "could",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}()
