package retrieval

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestChunkRespectsSize(t *testing.T) {
	t.Parallel()

	text := strings.Repeat("treinamento de atendimento ao cliente ", 60)
	for _, size := range []int{20, 64, 200} {
		chunks := Chunk(text, size, size/4)
		if len(chunks) < 2 {
			t.Fatalf("size %d: expected several chunks, got %d", size, len(chunks))
		}
		for i, c := range chunks {
			if n := utf8.RuneCountInString(c); n > size {
				t.Errorf("size %d: chunk %d has %d runes", size, i, n)
			}
			if strings.TrimSpace(c) == "" {
				t.Errorf("size %d: chunk %d is blank", size, i)
			}
		}
	}
}

func TestChunkOverlap(t *testing.T) {
	t.Parallel()

	chunks := Chunk("um dois três quatro cinco seis sete oito", 15, 6)
	if len(chunks) < 2 {
		t.Fatalf("expected several chunks, got %v", chunks)
	}
	for i := 1; i < len(chunks); i++ {
		prev := strings.Fields(chunks[i-1])
		first := strings.Fields(chunks[i])[0]
		if prev[len(prev)-1] != first {
			t.Errorf("chunk %d does not start with the tail of chunk %d: %q / %q", i, i-1, chunks[i-1], chunks[i])
		}
	}
}

func TestChunkWithoutOverlapCoversAllWords(t *testing.T) {
	t.Parallel()

	text := "Os acessos ao sistema são liberados pelo gestor após a assinatura do contrato."
	chunks := Chunk(text, 25, 0)
	if got := strings.Join(chunks, " "); got != strings.Join(strings.Fields(text), " ") {
		t.Errorf("chunks lost words: %q", got)
	}
}

func TestChunkEdgeCases(t *testing.T) {
	t.Parallel()

	if got := Chunk("   \n\t ", 10, 2); got != nil {
		t.Errorf("blank text = %v", got)
	}
	long := strings.Repeat("á", 25)
	chunks := Chunk(long, 10, 3)
	if len(chunks) != 3 {
		t.Fatalf("long word chunks = %v", chunks)
	}
	for _, c := range chunks {
		if utf8.RuneCountInString(c) > 10 {
			t.Errorf("chunk %q exceeds size", c)
		}
	}
	if got := Chunk("curto", 0, 0); len(got) != 1 || got[0] != "curto" {
		t.Errorf("default size = %v", got)
	}
}
