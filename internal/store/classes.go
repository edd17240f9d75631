package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/portal-treinamento/core/internal/domain"
)

const classColumns = `id, tenant_id, segment_id, name, start_date, end_date,
	medical_exam_date, contract_signature_date, assisted_service_date,
	status, created_at, updated_at`

// UpsertClass creates or updates a training class.
func (s *SQLStore) UpsertClass(ctx context.Context, c *domain.TrainingClass) error {
	query := s.dialect.upsert("training_classes", "id",
		"id", "tenant_id", "segment_id", "name", "start_date", "end_date",
		"medical_exam_date", "contract_signature_date", "assisted_service_date",
		"status", "created_at", "updated_at")

	_, err := s.exec(ctx, "upsert class", query,
		c.ID, c.TenantID, nullable(c.SegmentID), c.Name, c.StartDate.Format(dateLayout),
		formatDate(c.EndDate), formatDate(c.MedicalExamDate),
		formatDate(c.ContractSignatureDate), formatDate(c.AssistedServiceDate),
		string(c.Status), toMillis(c.CreatedAt), toMillis(c.UpdatedAt),
	)
	return err
}

// GetClass retrieves a class by ID.
func (s *SQLStore) GetClass(ctx context.Context, id string) (*domain.TrainingClass, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+classColumns+` FROM training_classes WHERE id = ?`, id)

	var r classRow
	err := row.Scan(r.dest()...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("class %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan class row: %w", err)
	}
	return parseClass(r)
}

// ListClasses returns a tenant's classes ordered by start date.
func (s *SQLStore) ListClasses(ctx context.Context, tenantID string) ([]*domain.TrainingClass, error) {
	return s.queryClasses(ctx,
		`SELECT `+classColumns+` FROM training_classes WHERE tenant_id = ? ORDER BY start_date ASC, id ASC`,
		tenantID)
}

// ListOpenClasses returns classes of every tenant that are not completed or cancelled.
func (s *SQLStore) ListOpenClasses(ctx context.Context) ([]*domain.TrainingClass, error) {
	return s.queryClasses(ctx,
		`SELECT `+classColumns+` FROM training_classes WHERE status NOT IN (?, ?) ORDER BY start_date ASC, id ASC`,
		string(domain.ClassCompleted), string(domain.ClassCancelled))
}

func (s *SQLStore) queryClasses(ctx context.Context, query string, args ...any) ([]*domain.TrainingClass, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query classes: %w", err)
	}
	defer closeRows(rows, "classes")

	var out []*domain.TrainingClass
	for rows.Next() {
		var r classRow
		if err := rows.Scan(r.dest()...); err != nil {
			return nil, fmt.Errorf("scan class row: %w", err)
		}
		c, err := parseClass(r)
		if err != nil {
			slog.Warn("Skipping class row", "error", err)
			continue
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate classes: %w", err)
	}
	return out, nil
}

// UpdateClassStatus changes only the status of a class.
func (s *SQLStore) UpdateClassStatus(ctx context.Context, id string, status domain.ClassStatus) error {
	if !status.Valid() {
		return fmt.Errorf("%w: %q", domain.ErrInvalidStatus, status)
	}
	res, err := s.exec(ctx, "update class status",
		`UPDATE training_classes SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UnixMilli(), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("class %s: %w", id, ErrNotFound)
	}
	return nil
}

// UpsertSegment creates or updates a segment.
func (s *SQLStore) UpsertSegment(ctx context.Context, seg *domain.Segment) error {
	query := s.dialect.upsert("segments", "id", "id", "tenant_id", "name", "training_days")
	_, err := s.exec(ctx, "upsert segment", query, seg.ID, seg.TenantID, seg.Name, seg.TrainingDays)
	return err
}

// GetSegment retrieves a segment by ID.
func (s *SQLStore) GetSegment(ctx context.Context, id string) (*domain.Segment, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, tenant_id, name, training_days FROM segments WHERE id = ?`, id)

	var r segmentRow
	err := row.Scan(&r.id, &r.tenantID, &r.name, &r.trainingDays)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("segment %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan segment row: %w", err)
	}
	return parseSegment(r)
}
