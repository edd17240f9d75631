package retrieval

import (
	"cmp"
	"math"
	"slices"

	"github.com/portal-treinamento/core/internal/domain"
)

// Cosine returns the cosine similarity of a and b, or 0 when the vectors
// differ in length or either is zero.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// Rank scores chunks against query and returns those at or above threshold,
// best first, at most topK (all when topK <= 0).
func Rank(query []float32, chunks []*domain.DocumentChunk, threshold float64, topK int) []domain.ContextChunk {
	scored := make([]domain.ContextChunk, 0, len(chunks))
	for _, c := range chunks {
		if c == nil {
			continue
		}
		score := Cosine(query, c.Embedding)
		if score < threshold {
			continue
		}
		scored = append(scored, domain.ContextChunk{SourceName: c.SourceName, Text: c.Text, Score: score})
	}
	slices.SortStableFunc(scored, func(a, b domain.ContextChunk) int {
		return cmp.Compare(b.Score, a.Score)
	})
	if topK > 0 && len(scored) > topK {
		scored = scored[:topK]
	}
	return scored
}
