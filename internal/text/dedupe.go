package text

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

var wsRe = regexp.MustCompile(`\s+`)

// Normalize lowercases text and collapses all whitespace runs to single
// spaces. Chunks that differ only in formatting normalize identically.
func Normalize(s string) string {
	return strings.TrimSpace(wsRe.ReplaceAllString(strings.ToLower(s), " "))
}

// ChunkHash returns a stable content hash of the normalized text, used to
// skip re-indexing of identical content.
func ChunkHash(s string) string {
	sum := sha256.Sum256([]byte(Normalize(s)))
	return hex.EncodeToString(sum[:])
}

// FileHash hashes raw bytes, used for duplicate-upload detection.
func FileHash(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
