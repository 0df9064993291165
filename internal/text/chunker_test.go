package text

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsHeading(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"# Title", true},
		{"### Deep Title", true},
		{"1.2.3 Numbered Section", true},
		{"2 Short", true},
		{"OVERVIEW", true},
		{"Getting Started", true},
		{"this is an ordinary lowercase paragraph.", false},
		{"Multi\nline paragraphs are not headings either when long", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, IsHeading(tt.in))
		})
	}
}

func TestSplit_HeadingAttachment(t *testing.T) {
	input := "# Intro\n\nThe first paragraph of the introduction.\n\nAnother paragraph."
	chunks := Split(input, 3000, 300)
	require.Len(t, chunks, 1)
	assert.Contains(t, chunks[0], "# Intro\n\nThe first paragraph")
}

func TestSplit_NoOrphanHeading(t *testing.T) {
	body := strings.Repeat("word ", 100)
	input := "Section One\n\n" + body + "\n\nSECTION TWO\n\n" + body
	chunks := Split(input, 650, 0)
	for _, c := range chunks {
		trimmed := strings.TrimSpace(c)
		assert.NotEqual(t, "Section One", trimmed)
		assert.NotEqual(t, "SECTION TWO", trimmed)
	}
}

func TestSplit_PageBreaks(t *testing.T) {
	input := "page one text\fpage two text"
	chunks := Split(input, 3000, 300)
	require.Len(t, chunks, 2)
	assert.Equal(t, "page one text", chunks[0])
	assert.Equal(t, "page two text", chunks[1])
}

func TestSplit_BlankLineCollapse(t *testing.T) {
	input := "first\n\n\n\n\nsecond"
	chunks := Split(input, 3000, 300)
	require.Len(t, chunks, 1)
	assert.Equal(t, "first\n\nsecond", chunks[0])
}

func TestSplit_Bound(t *testing.T) {
	// No single paragraph exceeds maxChars, so no chunk may either.
	var paras []string
	for i := 0; i < 40; i++ {
		paras = append(paras, strings.Repeat("abc ", 50))
	}
	input := strings.Join(paras, "\n\n")

	chunks := Split(input, 500, 50)
	require.NotEmpty(t, chunks)
	for i, c := range chunks {
		assert.LessOrEqual(t, len(c), 500, "chunk %d over limit", i)
	}
}

func TestSplit_Coverage(t *testing.T) {
	paras := []string{
		"alpha paragraph with some content.",
		"beta paragraph with some more content.",
		"gamma paragraph closing things out.",
		"delta paragraph for good measure.",
	}
	input := strings.Join(paras, "\n\n")

	chunks := Split(input, 60, 10)
	joined := strings.Join(chunks, "\n\n")
	for _, p := range paras {
		assert.Contains(t, joined, p, "paragraph dropped: %s", p)
	}
}

func TestSplit_OverlapSeed(t *testing.T) {
	p1 := strings.Repeat("a", 80)
	p2 := strings.Repeat("b", 80)
	chunks := Split(p1+"\n\n"+p2, 100, 20)
	require.Len(t, chunks, 2)
	assert.Equal(t, p1, chunks[0])
	// Second chunk is seeded with the tail of the first.
	assert.True(t, strings.HasPrefix(chunks[1], strings.Repeat("a", 20)+"\n\n"))
	assert.True(t, strings.HasSuffix(chunks[1], p2))
}

func TestSplit_OversizedParagraphEmittedWhole(t *testing.T) {
	big := strings.Repeat("x", 500)
	chunks := Split(big, 100, 10)
	require.Len(t, chunks, 1)
	assert.Equal(t, big, chunks[0])
}

func TestSplit_EmptyInput(t *testing.T) {
	assert.Empty(t, Split("", 3000, 300))
	assert.Empty(t, Split("   \n\n\t  ", 3000, 300))
}

func TestSplit_CRLFNormalized(t *testing.T) {
	chunks := Split("one\r\n\r\ntwo", 3000, 300)
	require.Len(t, chunks, 1)
	assert.Equal(t, "one\n\ntwo", chunks[0])
}
