package retrieval

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"

	"github.com/portal-treinamento/core/internal/domain"
)

// letterEmbedder embeds text as normalized vowel counts.
type letterEmbedder struct {
	calls int
	err   error
}

func (e *letterEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v := make([]float32, 5)
		for _, r := range strings.ToLower(text) {
			if idx := strings.IndexRune("aeiou", r); idx >= 0 {
				v[idx]++
			}
		}
		out[i] = v
	}
	return out, nil
}

type memoryChunks struct {
	mu     sync.Mutex
	chunks map[string][]*domain.DocumentChunk
}

func (m *memoryChunks) ReplaceChunks(_ context.Context, tenantID, source string, chunks []*domain.DocumentChunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.chunks == nil {
		m.chunks = make(map[string][]*domain.DocumentChunk)
	}
	var kept []*domain.DocumentChunk
	for _, c := range m.chunks[tenantID] {
		if c.SourceName != source {
			kept = append(kept, c)
		}
	}
	m.chunks[tenantID] = append(kept, chunks...)
	return nil
}

func (m *memoryChunks) ListChunks(_ context.Context, tenantID string) ([]*domain.DocumentChunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.chunks[tenantID], nil
}

func TestCosine(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"length mismatch", []float32{1}, []float32{1, 0}, 0},
		{"zero vector", []float32{0, 0}, []float32{1, 0}, 0},
		{"empty", nil, nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Cosine(tt.a, tt.b); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Cosine = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRankOrdersAndFilters(t *testing.T) {
	t.Parallel()

	chunks := []*domain.DocumentChunk{
		{SourceName: "far", Text: "far", Embedding: []float32{0, 1}},
		{SourceName: "close", Text: "close", Embedding: []float32{1, 0.1}},
		nil,
		{SourceName: "exact", Text: "exact", Embedding: []float32{1, 0}},
		{SourceName: "mid", Text: "mid", Embedding: []float32{1, 1}},
	}
	got := Rank([]float32{1, 0}, chunks, 0.5, 0)
	if len(got) != 3 {
		t.Fatalf("Rank returned %d results, want 3: %+v", len(got), got)
	}
	if got[0].SourceName != "exact" || got[1].SourceName != "close" || got[2].SourceName != "mid" {
		t.Errorf("unexpected order: %+v", got)
	}
	for i := 1; i < len(got); i++ {
		if got[i].Score > got[i-1].Score {
			t.Error("results not sorted by score")
		}
	}
	if top := Rank([]float32{1, 0}, chunks, 0.5, 1); len(top) != 1 || top[0].SourceName != "exact" {
		t.Errorf("topK not applied: %+v", top)
	}
	if none := Rank([]float32{1, 0}, chunks, 1.01, 5); len(none) != 0 {
		t.Errorf("threshold above 1 should match nothing: %+v", none)
	}
}

func TestIngestAndLookup(t *testing.T) {
	t.Parallel()

	store := &memoryChunks{}
	embedder := &letterEmbedder{}
	ix := NewIndex(embedder, store, nil)

	var progress []int
	n, err := ix.Ingest(context.Background(), "claro", "manual.md",
		"aaaa aaaa aaaa. eeee eeee eeee. iiii iiii iiii.",
		IngestOptions{ChunkSize: 15, BatchSize: 2, Progress: func(done, _ int) { progress = append(progress, done) }})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if n != 3 {
		t.Fatalf("ingested %d chunks, want 3", n)
	}
	if len(progress) != 2 || progress[1] != 3 {
		t.Errorf("progress = %v", progress)
	}
	if embedder.calls != 2 {
		t.Errorf("embed calls = %d, want 2 batches", embedder.calls)
	}

	results, err := ix.Lookup(context.Background(), "eee", "claro", 0.9, 5)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if len(results) != 1 || !strings.HasPrefix(results[0].Text, "eeee") || results[0].SourceName != "manual.md" {
		t.Errorf("unexpected results: %+v", results)
	}

	other, err := ix.Lookup(context.Background(), "eee", "vivo", 0.9, 5)
	if err != nil || len(other) != 0 {
		t.Errorf("lookup leaked across tenants: %+v, %v", other, err)
	}
}

func TestIngestReplacesSource(t *testing.T) {
	t.Parallel()

	store := &memoryChunks{}
	ix := NewIndex(&letterEmbedder{}, store, nil)
	ctx := context.Background()

	if _, err := ix.Ingest(ctx, "claro", "a.md", "aaaa eeee iiii oooo", IngestOptions{ChunkSize: 5}); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if _, err := ix.Ingest(ctx, "claro", "a.md", "uuuu", IngestOptions{}); err != nil {
		t.Fatalf("re-Ingest: %v", err)
	}
	chunks, _ := store.ListChunks(ctx, "claro")
	if len(chunks) != 1 || chunks[0].Text != "uuuu" || chunks[0].Seq != 0 {
		t.Errorf("source not replaced: %+v", chunks)
	}
}

func TestLookupErrors(t *testing.T) {
	t.Parallel()

	ix := NewIndex(&letterEmbedder{err: errors.New("quota")}, &memoryChunks{}, nil)
	if _, err := ix.Lookup(context.Background(), "pergunta", "claro", 0.5, 3); err == nil {
		t.Error("expected embedding error")
	}
	if res, err := ix.Lookup(context.Background(), "  ", "claro", 0.5, 3); err != nil || res != nil {
		t.Errorf("blank query = %v, %v", res, err)
	}
}
