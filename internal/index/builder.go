package index

import (
	"context"
	"fmt"
	"log/slog"

	"docuchat/internal/llm"
	"docuchat/internal/text"
)

// probeText is embedded once to discover the provider's vector dimension
// before any index exists.
const probeText = "probe dim"

// Document is the builder's view of an uploaded document.
type Document struct {
	ID         string
	SourcePath string
	Text       string
}

type Builder struct {
	embedder     llm.Embedder
	cacheDir     string
	batchSize    int
	chunkSize    int
	chunkOverlap int
}

func NewBuilder(embedder llm.Embedder, cacheDir string, batchSize, chunkSize, chunkOverlap int) *Builder {
	if batchSize <= 0 {
		batchSize = 8
	}
	return &Builder{
		embedder:     embedder,
		cacheDir:     cacheDir,
		batchSize:    batchSize,
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
	}
}

// BuildOrUpdate chunks, deduplicates, embeds and indexes the documents,
// persisting once at the end if anything was added. Chunks whose content
// hash is already indexed, or already seen earlier in this call, are
// skipped, so rebuilding with the same documents adds nothing. The second
// result is the number of chunks added by this call.
func (b *Builder) BuildOrUpdate(ctx context.Context, docs []Document) (*Store, int, error) {
	probe, err := b.embedder.Embed(ctx, probeText)
	if err != nil {
		return nil, 0, fmt.Errorf("probing embedding dimension: %w", err)
	}
	dim := len(probe)

	store := NewStore(b.cacheDir, dim)
	if err := store.Load(); err != nil {
		return nil, 0, fmt.Errorf("loading index: %w", err)
	}

	seen := make(map[string]struct{})
	added := 0

	for _, doc := range docs {
		chunks := text.Split(doc.Text, b.chunkSize, b.chunkOverlap)

		var toEmbed []string
		var toMeta []Meta
		for _, ch := range chunks {
			h := text.ChunkHash(ch)
			if store.HasHash(h) {
				continue
			}
			if _, dup := seen[h]; dup {
				continue
			}
			seen[h] = struct{}{}
			toEmbed = append(toEmbed, ch)
			toMeta = append(toMeta, Meta{
				DocID:      doc.ID,
				SourcePath: doc.SourcePath,
				Hash:       h,
				Text:       ch,
			})
		}

		// Embed in fixed-size batches to respect upstream request limits.
		for start := 0; start < len(toEmbed); start += b.batchSize {
			end := start + b.batchSize
			if end > len(toEmbed) {
				end = len(toEmbed)
			}
			vectors, err := b.embedder.EmbedBatch(ctx, toEmbed[start:end])
			if err != nil {
				return nil, 0, fmt.Errorf("embedding chunks for %s: %w", doc.SourcePath, err)
			}
			if err := store.Add(vectors, toMeta[start:end]); err != nil {
				return nil, 0, err
			}
			added += len(vectors)
		}

		slog.InfoContext(ctx, "document indexed",
			"doc_id", doc.ID, "chunks", len(chunks), "new", len(toEmbed))
	}

	if added > 0 {
		if err := store.Save(); err != nil {
			return nil, 0, fmt.Errorf("persisting index: %w", err)
		}
	}
	return store, added, nil
}
