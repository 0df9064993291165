package text

import (
	"regexp"
	"strings"
)

const (
	DefaultMaxChars = 3000
	DefaultOverlap  = 300
)

var (
	crlfRe      = regexp.MustCompile(`\r\n?`)
	blankRunRe  = regexp.MustCompile(`\n{3,}`)
	hashRe      = regexp.MustCompile(`^#{1,6}\s+`)
	outlineRe   = regexp.MustCompile(`^\d+(\.\d+){0,3}\s+`)
	shortHeadRe = regexp.MustCompile(`^[A-Z0-9][\w\s\-:]{0,60}$`)
)

// IsHeading reports whether a paragraph looks like a section heading:
// a markdown # prefix, a numeric outline prefix like "1.2.3 ", or a
// short single-line title starting with a capital or digit.
func IsHeading(p string) bool {
	p = strings.TrimSpace(p)
	if p == "" {
		return false
	}
	if hashRe.MatchString(p) {
		return true
	}
	if outlineRe.MatchString(p) {
		return true
	}
	return !strings.Contains(p, "\n") && shortHeadRe.MatchString(p)
}

// splitParagraphs normalizes line endings, collapses runs of 3+ newlines to a
// single blank line, and splits on blank-line boundaries.
func splitParagraphs(s string) []string {
	s = crlfRe.ReplaceAllString(s, "\n")
	s = strings.TrimSpace(blankRunRe.ReplaceAllString(s, "\n\n"))
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n\n")
}

// attachHeadings merges a heading paragraph with the paragraph that follows
// it, so headings never become orphan chunks.
func attachHeadings(paragraphs []string) []string {
	out := make([]string, 0, len(paragraphs))
	for i := 0; i < len(paragraphs); i++ {
		cur := strings.TrimSpace(paragraphs[i])
		if i+1 < len(paragraphs) && IsHeading(cur) {
			next := strings.TrimSpace(paragraphs[i+1])
			out = append(out, cur+"\n\n"+next)
			i++
			continue
		}
		out = append(out, cur)
	}
	return out
}

// Split chunks raw document text into bounded, overlapping passages.
//
// Pages (form-feed markers, as emitted by PDF extractors) are processed
// independently so chunk boundaries never span unrelated pages. Within a
// page, paragraphs are greedily packed up to maxChars; when a chunk is
// emitted, the next one is seeded with its trailing overlap characters so
// local context carries across the boundary.
//
// A single paragraph longer than maxChars is emitted whole rather than split
// mid-sentence, so one oversized paragraph may produce a chunk above the
// limit.
func Split(text string, maxChars, overlap int) []string {
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	if overlap < 0 {
		overlap = DefaultOverlap
	}

	pages := []string{text}
	if strings.Contains(text, "\f") {
		pages = strings.Split(text, "\f")
	}

	var chunks []string
	for _, page := range pages {
		paras := attachHeadings(splitParagraphs(page))

		var cur strings.Builder
		for _, p := range paras {
			if p == "" {
				continue
			}
			if cur.Len() == 0 {
				cur.WriteString(p)
				continue
			}
			if cur.Len()+len(p)+2 <= maxChars {
				cur.WriteString("\n\n")
				cur.WriteString(p)
				continue
			}

			emitted := cur.String()
			chunks = append(chunks, emitted)
			cur.Reset()

			// Seed the next chunk with the tail of the one just emitted.
			if overlap > 0 && len(emitted) > overlap {
				cur.WriteString(emitted[len(emitted)-overlap:])
				cur.WriteString("\n\n")
			}
			cur.WriteString(p)
		}
		if cur.Len() > 0 {
			chunks = append(chunks, cur.String())
		}
	}

	out := make([]string, 0, len(chunks))
	for _, c := range chunks {
		if c = strings.TrimSpace(c); c != "" {
			out = append(out, c)
		}
	}
	return out
}
