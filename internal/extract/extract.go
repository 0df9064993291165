// Package extract turns uploaded files into plain text at the ingest
// boundary. PDF pages are separated with form feeds so the chunker can keep
// page structure.
package extract

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

var ErrUnsupported = errors.New("unsupported document type")

// Supported reports whether the file extension can be extracted.
func Supported(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".txt", ".md", ".pdf":
		return true
	}
	return false
}

// Text reads the file and returns its textual content.
func Text(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".md":
		raw, err := os.ReadFile(filepath.Clean(path))
		if err != nil {
			return "", fmt.Errorf("read %s: %w", path, err)
		}
		return string(raw), nil
	case ".pdf":
		return pdfText(path)
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupported, filepath.Ext(path))
}

// pdfText scans each page's content stream for text-showing operators. Good
// enough for simply encoded fonts; scanned or CID-encoded PDFs come out
// empty rather than failing.
func pdfText(path string) (string, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	ctx, err := api.ReadValidateAndOptimize(f, conf)
	if err != nil {
		return "", fmt.Errorf("page count %s: %w", path, err)
	}
	pages := ctx.PageCount

	var b strings.Builder
	for page := 1; page <= pages; page++ {
		r, err := pdfcpu.ExtractPageContent(ctx, page)
		if err != nil {
			return "", fmt.Errorf("extract page %d of %s: %w", page, path, err)
		}
		if r != nil {
			raw, err := io.ReadAll(r)
			if err != nil {
				return "", fmt.Errorf("read page %d of %s: %w", page, path, err)
			}
			b.WriteString(decodeContent(string(raw)))
		}
		if page < pages {
			b.WriteString("\f")
		}
	}
	return b.String(), nil
}

var showTextRe = regexp.MustCompile(`(?s)\(((?:\\.|[^\\()])*)\)\s*(?:Tj|')|\[((?:\\.|[^\]])*)\]\s*TJ`)
var innerStringRe = regexp.MustCompile(`(?s)\(((?:\\.|[^\\()])*)\)`)

// decodeContent collects the arguments of Tj, ' and TJ operators in stream
// order and joins them with spaces.
func decodeContent(stream string) string {
	var parts []string
	for _, m := range showTextRe.FindAllStringSubmatch(stream, -1) {
		switch {
		case m[1] != "":
			parts = append(parts, unescape(m[1]))
		case m[2] != "":
			var run strings.Builder
			for _, inner := range innerStringRe.FindAllStringSubmatch(m[2], -1) {
				run.WriteString(unescape(inner[1]))
			}
			parts = append(parts, run.String())
		}
	}
	return strings.Join(parts, " ")
}

// unescape resolves PDF literal-string escapes, including octal codes.
func unescape(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 >= len(s) {
			b.WriteByte(c)
			continue
		}
		i++
		switch s[i] {
		case 'n':
			b.WriteByte('\n')
		case 'r':
			b.WriteByte('\r')
		case 't':
			b.WriteByte('\t')
		case 'b':
			b.WriteByte('\b')
		case 'f':
			b.WriteByte('\f')
		case '(', ')', '\\':
			b.WriteByte(s[i])
		default:
			if s[i] >= '0' && s[i] <= '7' {
				j := i
				for j < len(s) && j < i+3 && s[j] >= '0' && s[j] <= '7' {
					j++
				}
				if v, err := strconv.ParseUint(s[i:j], 8, 16); err == nil {
					b.WriteByte(byte(v))
				}
				i = j - 1
			} else {
				b.WriteByte(s[i])
			}
		}
	}
	return b.String()
}
