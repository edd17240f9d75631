package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/portal-treinamento/core/internal/domain"
)

// Rows are scanned into these raw shapes and only become domain values
// through the parse functions below, which validate and fill defaults.

var errBadRow = errors.New("malformed row")

const dateLayout = time.DateOnly

type classRow struct {
	id, tenantID, name, startDate, status string
	segmentID                             sql.NullString
	endDate, medicalExam, contract        sql.NullString
	assisted                              sql.NullString
	createdAt, updatedAt                  int64
}

func (r *classRow) dest() []any {
	return []any{
		&r.id, &r.tenantID, &r.segmentID, &r.name, &r.startDate,
		&r.endDate, &r.medicalExam, &r.contract, &r.assisted,
		&r.status, &r.createdAt, &r.updatedAt,
	}
}

func parseClass(r classRow) (*domain.TrainingClass, error) {
	if r.id == "" {
		return nil, fmt.Errorf("%w: class without id", errBadRow)
	}
	start, err := time.Parse(dateLayout, r.startDate)
	if err != nil {
		return nil, fmt.Errorf("%w: class %s start date %q", errBadRow, r.id, r.startDate)
	}

	status := domain.ClassPlanned
	if strings.TrimSpace(r.status) != "" {
		status, err = domain.ParseClassStatus(r.status)
		if err != nil {
			return nil, fmt.Errorf("%w: class %s: %w", errBadRow, r.id, err)
		}
	}

	name := strings.TrimSpace(r.name)
	if name == "" {
		name = r.id
	}

	return &domain.TrainingClass{
		ID:                    r.id,
		TenantID:              r.tenantID,
		SegmentID:             r.segmentID.String,
		Name:                  name,
		StartDate:             start,
		EndDate:               optionalDate(r.id, "end_date", r.endDate),
		MedicalExamDate:       optionalDate(r.id, "medical_exam_date", r.medicalExam),
		ContractSignatureDate: optionalDate(r.id, "contract_signature_date", r.contract),
		AssistedServiceDate:   optionalDate(r.id, "assisted_service_date", r.assisted),
		Status:                status,
		CreatedAt:             fromMillis(r.createdAt),
		UpdatedAt:             fromMillis(r.updatedAt),
	}, nil
}

// optionalDate treats an unparsable stored date as unset.
func optionalDate(id, column string, v sql.NullString) *time.Time {
	if !v.Valid || strings.TrimSpace(v.String) == "" {
		return nil
	}
	t, err := time.Parse(dateLayout, v.String)
	if err != nil {
		slog.Warn("Ignoring malformed date", "class_id", id, "column", column, "value", v.String)
		return nil
	}
	return &t
}

func formatDate(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(dateLayout)
}

type segmentRow struct {
	id, tenantID, name string
	trainingDays       int64
}

func parseSegment(r segmentRow) (*domain.Segment, error) {
	if r.id == "" {
		return nil, fmt.Errorf("%w: segment without id", errBadRow)
	}
	days := int(r.trainingDays)
	if days < 0 {
		slog.Warn("Segment has negative training days, using 0", "segment_id", r.id, "training_days", r.trainingDays)
		days = 0
	}
	name := strings.TrimSpace(r.name)
	if name == "" {
		name = r.id
	}
	return &domain.Segment{ID: r.id, TenantID: r.tenantID, Name: name, TrainingDays: days}, nil
}

type exchangeRow struct {
	id, ownerID, tenantID, userText, assistantText string
	elapsedMs, createdAt                           int64
}

func parseExchange(r exchangeRow) (*domain.Exchange, error) {
	if r.id == "" || r.ownerID == "" {
		return nil, fmt.Errorf("%w: exchange without id or owner", errBadRow)
	}
	if strings.TrimSpace(r.userText) == "" && strings.TrimSpace(r.assistantText) == "" {
		return nil, fmt.Errorf("%w: exchange %s is empty", errBadRow, r.id)
	}
	return &domain.Exchange{
		ID:            r.id,
		OwnerID:       r.ownerID,
		TenantID:      r.tenantID,
		UserText:      r.userText,
		AssistantText: r.assistantText,
		ElapsedMs:     max(r.elapsedMs, 0),
		CreatedAt:     fromMillis(r.createdAt),
	}, nil
}

type chunkRow struct {
	id, tenantID, sourceName, text string
	seq, createdAt                 int64
	embedding                      []byte
}

func parseChunk(r chunkRow) (*domain.DocumentChunk, error) {
	vec, err := decodeVector(r.embedding)
	if err != nil {
		return nil, fmt.Errorf("%w: chunk %s: %w", errBadRow, r.id, err)
	}
	if len(vec) == 0 {
		return nil, fmt.Errorf("%w: chunk %s has no embedding", errBadRow, r.id)
	}
	return &domain.DocumentChunk{
		ID:         r.id,
		TenantID:   r.tenantID,
		SourceName: r.sourceName,
		Seq:        int(r.seq),
		Text:       r.text,
		Embedding:  vec,
		CreatedAt:  fromMillis(r.createdAt),
	}, nil
}

func fromMillis(ms int64) time.Time {
	if ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return time.Now().UnixMilli()
	}
	return t.UnixMilli()
}
