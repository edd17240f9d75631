package domain

import "time"

// DocumentChunk is an embedded slice of a tenant's reference document.
type DocumentChunk struct {
	ID         string
	TenantID   string
	SourceName string
	Seq        int
	Text       string
	Embedding  []float32
	CreatedAt  time.Time
}
