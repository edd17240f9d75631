package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/portal-treinamento/core/internal/domain"
)

var errNoEmbedding = errors.New("embedder returned no vector")

// Embedder turns texts into vectors, one per input, in order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// ChunkStore persists embedded chunks per tenant.
type ChunkStore interface {
	ReplaceChunks(ctx context.Context, tenantID, sourceName string, chunks []*domain.DocumentChunk) error
	ListChunks(ctx context.Context, tenantID string) ([]*domain.DocumentChunk, error)
}

// Index answers similarity lookups over a tenant's ingested documents.
type Index struct {
	embedder Embedder
	store    ChunkStore
	logger   *slog.Logger
}

// NewIndex creates an index.
func NewIndex(embedder Embedder, store ChunkStore, logger *slog.Logger) *Index {
	if logger == nil {
		logger = slog.Default()
	}
	return &Index{embedder: embedder, store: store, logger: logger}
}

// Lookup implements chat.ContextLookup.
func (ix *Index) Lookup(ctx context.Context, query, tenantID string, threshold float64, topK int) ([]domain.ContextChunk, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}

	vecs, err := ix.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vecs) == 0 || len(vecs[0]) == 0 {
		return nil, errNoEmbedding
	}

	chunks, err := ix.store.ListChunks(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list chunks: %w", err)
	}
	results := Rank(vecs[0], chunks, threshold, topK)
	ix.logger.Debug("Context lookup", "tenant_id", tenantID, "candidates", len(chunks), "matches", len(results))
	return results, nil
}

// IngestOptions controls chunking and batching.
type IngestOptions struct {
	ChunkSize    int
	ChunkOverlap int
	BatchSize    int
	// Progress is called with the number of chunks embedded so far.
	Progress func(done, total int)
}

// Ingest chunks text, embeds the chunks and replaces everything previously
// stored for sourceName in the tenant. It returns the number of chunks.
func (ix *Index) Ingest(ctx context.Context, tenantID, sourceName, text string, opts IngestOptions) (int, error) {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 32
	}
	pieces := Chunk(text, opts.ChunkSize, opts.ChunkOverlap)
	if len(pieces) == 0 {
		return 0, nil
	}

	now := time.Now().UTC()
	chunks := make([]*domain.DocumentChunk, 0, len(pieces))
	for start := 0; start < len(pieces); start += opts.BatchSize {
		end := min(start+opts.BatchSize, len(pieces))
		vecs, err := ix.embedder.Embed(ctx, pieces[start:end])
		if err != nil {
			return 0, fmt.Errorf("embed %s chunks %d-%d: %w", sourceName, start, end, err)
		}
		if len(vecs) != end-start {
			return 0, fmt.Errorf("embed %s: %w", sourceName, errNoEmbedding)
		}
		for i, v := range vecs {
			chunks = append(chunks, &domain.DocumentChunk{
				ID:         uuid.NewString(),
				TenantID:   tenantID,
				SourceName: sourceName,
				Seq:        start + i,
				Text:       pieces[start+i],
				Embedding:  v,
				CreatedAt:  now,
			})
		}
		if opts.Progress != nil {
			opts.Progress(end, len(pieces))
		}
	}

	if err := ix.store.ReplaceChunks(ctx, tenantID, sourceName, chunks); err != nil {
		return 0, fmt.Errorf("store chunks: %w", err)
	}
	ix.logger.Info("Document ingested", "tenant_id", tenantID, "source", sourceName, "chunks", len(chunks))
	return len(chunks), nil
}
