package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/portal-treinamento/core/internal/domain"
)

// SaveExchange stores a finished chat exchange. Saving the same exchange
// twice keeps a single row.
func (s *SQLStore) SaveExchange(ctx context.Context, ex *domain.Exchange) error {
	query := s.dialect.upsert("chat_exchanges", "id",
		"id", "owner_id", "tenant_id", "user_text", "assistant_text", "elapsed_ms", "created_at")
	_, err := s.exec(ctx, "save exchange", query,
		ex.ID, ex.OwnerID, ex.TenantID, ex.UserText, ex.AssistantText,
		ex.ElapsedMs, toMillis(ex.CreatedAt),
	)
	return err
}

// ListExchanges returns an owner's exchanges, oldest first.
func (s *SQLStore) ListExchanges(ctx context.Context, ownerID string) ([]*domain.Exchange, error) {
	query := `
		SELECT id, owner_id, tenant_id, user_text, assistant_text, elapsed_ms, created_at
		FROM chat_exchanges WHERE owner_id = ?
		ORDER BY created_at ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("query exchanges: %w", err)
	}
	defer closeRows(rows, "exchanges")

	var out []*domain.Exchange
	for rows.Next() {
		var r exchangeRow
		if err := rows.Scan(&r.id, &r.ownerID, &r.tenantID, &r.userText, &r.assistantText, &r.elapsedMs, &r.createdAt); err != nil {
			return nil, fmt.Errorf("scan exchange row: %w", err)
		}
		ex, err := parseExchange(r)
		if err != nil {
			slog.Warn("Skipping exchange row", "error", err)
			continue
		}
		out = append(out, ex)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate exchanges: %w", err)
	}
	return out, nil
}

// DeleteExchanges removes an owner's chat history.
func (s *SQLStore) DeleteExchanges(ctx context.Context, ownerID string) (int64, error) {
	res, err := s.exec(ctx, "delete exchanges", `DELETE FROM chat_exchanges WHERE owner_id = ?`, ownerID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
