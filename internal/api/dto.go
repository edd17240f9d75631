package api

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/portal-treinamento/core/internal/domain"
	"github.com/portal-treinamento/core/internal/timeline"
)

// Dates cross the wire as ISO YYYY-MM-DD strings.

type previewRequest struct {
	StartDate    string `json:"start_date"`
	TrainingDays *int   `json:"training_days"`
}

type milestonesResponse struct {
	StartDate             string `json:"start_date"`
	MedicalExamDate       string `json:"medical_exam_date"`
	ContractSignatureDate string `json:"contract_signature_date"`
	EndDate               string `json:"end_date"`
	AssistedServiceDate   string `json:"assisted_service_date"`
}

func newMilestonesResponse(m timeline.Milestones) milestonesResponse {
	return milestonesResponse{
		StartDate:             timeline.FormatDate(m.Start),
		MedicalExamDate:       timeline.FormatDate(m.MedicalExam),
		ContractSignatureDate: timeline.FormatDate(m.ContractSignature),
		EndDate:               timeline.FormatDate(m.End),
		AssistedServiceDate:   timeline.FormatDate(m.AssistedService),
	}
}

type eventResponse struct {
	ID          string `json:"id"`
	Date        string `json:"date"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Type        string `json:"type"`
	Completed   bool   `json:"completed"`
	Overdue     bool   `json:"overdue"`
}

type timelineResponse struct {
	ClassID string          `json:"class_id"`
	Status  string          `json:"status"`
	Events  []eventResponse `json:"events"`
}

func newTimelineResponse(c *domain.TrainingClass, events []domain.TimelineEvent, now time.Time) timelineResponse {
	out := make([]eventResponse, 0, len(events))
	for _, ev := range events {
		out = append(out, eventResponse{
			ID:          ev.ID,
			Date:        timeline.FormatDate(ev.Date),
			Title:       ev.Title,
			Description: ev.Description,
			Type:        string(ev.Type),
			Completed:   ev.Completed,
			Overdue:     !ev.Completed && timeline.IsOverdue(ev.Date, c.Status, now),
		})
	}
	return timelineResponse{ClassID: c.ID, Status: string(c.Status), Events: out}
}

type classRequest struct {
	ID                    string `json:"id"`
	SegmentID             string `json:"segment_id"`
	Name                  string `json:"name"`
	StartDate             string `json:"start_date"`
	EndDate               string `json:"end_date"`
	MedicalExamDate       string `json:"medical_exam_date"`
	ContractSignatureDate string `json:"contract_signature_date"`
	AssistedServiceDate   string `json:"assisted_service_date"`
	Status                string `json:"status"`
}

// toDomain parses the request into a class owned by tenantID.
func (req classRequest) toDomain(tenantID string) (*domain.TrainingClass, error) {
	c := &domain.TrainingClass{
		ID:        strings.TrimSpace(req.ID),
		TenantID:  tenantID,
		SegmentID: strings.TrimSpace(req.SegmentID),
		Name:      strings.TrimSpace(req.Name),
		Status:    domain.ClassPlanned,
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if req.Status != "" {
		status, err := domain.ParseClassStatus(req.Status)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrInvalidClass, err)
		}
		c.Status = status
	}
	if req.StartDate == "" {
		return nil, fmt.Errorf("%w: start date is required", domain.ErrInvalidClass)
	}
	start, err := timeline.ParseDate(req.StartDate)
	if err != nil {
		return nil, fmt.Errorf("%w: start_date: %w", domain.ErrInvalidClass, err)
	}
	c.StartDate = start

	for _, f := range []struct {
		name  string
		value string
		dst   **time.Time
	}{
		{"end_date", req.EndDate, &c.EndDate},
		{"medical_exam_date", req.MedicalExamDate, &c.MedicalExamDate},
		{"contract_signature_date", req.ContractSignatureDate, &c.ContractSignatureDate},
		{"assisted_service_date", req.AssistedServiceDate, &c.AssistedServiceDate},
	} {
		if f.value == "" {
			continue
		}
		t, err := timeline.ParseDate(f.value)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", domain.ErrInvalidClass, f.name, err)
		}
		*f.dst = &t
	}
	return c, nil
}

type classResponse struct {
	ID                    string  `json:"id"`
	SegmentID             string  `json:"segment_id,omitempty"`
	Name                  string  `json:"name"`
	StartDate             string  `json:"start_date"`
	EndDate               *string `json:"end_date"`
	MedicalExamDate       *string `json:"medical_exam_date"`
	ContractSignatureDate *string `json:"contract_signature_date"`
	AssistedServiceDate   *string `json:"assisted_service_date"`
	Status                string  `json:"status"`
	Overdue               bool    `json:"overdue"`
	CreatedAt             string  `json:"created_at"`
	UpdatedAt             string  `json:"updated_at"`
}

func optionalDate(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := timeline.FormatDate(*t)
	return &s
}

// newClassResponse flags a class overdue when its end date has passed
// while it is still open.
func newClassResponse(c *domain.TrainingClass, now time.Time) classResponse {
	resp := classResponse{
		ID:                    c.ID,
		SegmentID:             c.SegmentID,
		Name:                  c.Name,
		StartDate:             timeline.FormatDate(c.StartDate),
		EndDate:               optionalDate(c.EndDate),
		MedicalExamDate:       optionalDate(c.MedicalExamDate),
		ContractSignatureDate: optionalDate(c.ContractSignatureDate),
		AssistedServiceDate:   optionalDate(c.AssistedServiceDate),
		Status:                string(c.Status),
		CreatedAt:             c.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:             c.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if c.EndDate != nil {
		resp.Overdue = timeline.IsOverdue(*c.EndDate, c.Status, now)
	}
	return resp
}

type segmentRequest struct {
	Name         string `json:"name"`
	TrainingDays int    `json:"training_days"`
}

type segmentResponse struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	TrainingDays int    `json:"training_days"`
}

type chatRequest struct {
	Message string `json:"message"`
}

type historyResponse struct {
	Messages []domain.ChatMessage `json:"messages"`
	State    string               `json:"state"`
}
