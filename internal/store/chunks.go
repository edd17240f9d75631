package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/portal-treinamento/core/internal/domain"
	"github.com/portal-treinamento/core/internal/shared"
)

// ReplaceChunks swaps every chunk of a source document in one transaction.
func (s *SQLStore) ReplaceChunks(ctx context.Context, tenantID, sourceName string, chunks []*domain.DocumentChunk) error {
	return shared.Retry(ctx, "replace chunks", s.retry, func() error {
		return s.replaceChunksOnce(ctx, tenantID, sourceName, chunks)
	})
}

func (s *SQLStore) replaceChunksOnce(ctx context.Context, tenantID, sourceName string, chunks []*domain.DocumentChunk) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				slog.Warn("failed to roll back chunk replacement", "error", rbErr)
			}
		}
	}()

	if _, err = tx.ExecContext(ctx,
		`DELETE FROM document_chunks WHERE tenant_id = ? AND source_name = ?`,
		tenantID, sourceName); err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO document_chunks (id, tenant_id, source_name, seq, text, embedding, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer func() {
		if closeErr := stmt.Close(); closeErr != nil {
			slog.Warn("failed to close statement", "error", closeErr)
		}
	}()

	for _, c := range chunks {
		if _, err = stmt.ExecContext(ctx,
			c.ID, tenantID, sourceName, c.Seq, c.Text,
			encodeVector(c.Embedding), toMillis(c.CreatedAt),
		); err != nil {
			return fmt.Errorf("insert chunk %d: %w", c.Seq, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// ListChunks returns a tenant's embedded chunks.
func (s *SQLStore) ListChunks(ctx context.Context, tenantID string) ([]*domain.DocumentChunk, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, source_name, seq, text, embedding, created_at
		FROM document_chunks WHERE tenant_id = ?
		ORDER BY source_name ASC, seq ASC`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("query chunks: %w", err)
	}
	defer closeRows(rows, "chunks")

	var out []*domain.DocumentChunk
	for rows.Next() {
		var r chunkRow
		if err := rows.Scan(&r.id, &r.tenantID, &r.sourceName, &r.seq, &r.text, &r.embedding, &r.createdAt); err != nil {
			return nil, fmt.Errorf("scan chunk row: %w", err)
		}
		c, err := parseChunk(r)
		if err != nil {
			slog.Warn("Skipping chunk row", "error", err)
			continue
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunks: %w", err)
	}
	return out, nil
}
