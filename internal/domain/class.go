package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ClassStatus is the lifecycle state of a training class.
type ClassStatus string

const (
	ClassPlanned    ClassStatus = "planned"
	ClassInProgress ClassStatus = "in_progress"
	ClassCompleted  ClassStatus = "completed"
	ClassCancelled  ClassStatus = "cancelled"
)

var (
	ErrInvalidStatus = errors.New("invalid class status")
	ErrInvalidClass  = errors.New("invalid training class")
	ErrInvalidSeg    = errors.New("invalid segment")
)

// ParseClassStatus accepts the canonical values and the Portuguese labels
// used by the back office.
func ParseClassStatus(s string) (ClassStatus, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "planned", "planejada", "planejado":
		return ClassPlanned, nil
	case "in_progress", "em_andamento", "andamento":
		return ClassInProgress, nil
	case "completed", "concluida", "concluída", "concluido":
		return ClassCompleted, nil
	case "cancelled", "canceled", "cancelada", "cancelado":
		return ClassCancelled, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
}

// IsTerminal reports whether the status is a done state.
func (s ClassStatus) IsTerminal() bool {
	return s == ClassCompleted || s == ClassCancelled
}

// Valid reports whether s is one of the known statuses.
func (s ClassStatus) Valid() bool {
	switch s {
	case ClassPlanned, ClassInProgress, ClassCompleted, ClassCancelled:
		return true
	}
	return false
}

// TrainingClass is one cohort going through a training program.
type TrainingClass struct {
	ID                    string      `json:"id"`
	TenantID              string      `json:"tenant_id"`
	SegmentID             string      `json:"segment_id,omitempty"`
	Name                  string      `json:"name"`
	StartDate             time.Time   `json:"start_date"`
	EndDate               *time.Time  `json:"end_date,omitempty"`
	MedicalExamDate       *time.Time  `json:"medical_exam_date,omitempty"`
	ContractSignatureDate *time.Time  `json:"contract_signature_date,omitempty"`
	AssistedServiceDate   *time.Time  `json:"assisted_service_date,omitempty"`
	Status                ClassStatus `json:"status"`
	CreatedAt             time.Time   `json:"created_at"`
	UpdatedAt             time.Time   `json:"updated_at"`
}

// Validate checks required fields before the class is stored.
func (c *TrainingClass) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidClass)
	}
	if c.StartDate.IsZero() {
		return fmt.Errorf("%w: start date is required", ErrInvalidClass)
	}
	if !c.Status.Valid() {
		return fmt.Errorf("%w: %w: %q", ErrInvalidClass, ErrInvalidStatus, c.Status)
	}
	if c.EndDate != nil && c.EndDate.Before(c.StartDate) {
		return fmt.Errorf("%w: end date before start date", ErrInvalidClass)
	}
	return nil
}

// Segment is the configuration a class inherits its training length from.
type Segment struct {
	ID           string `json:"id"`
	TenantID     string `json:"tenant_id"`
	Name         string `json:"name"`
	TrainingDays int    `json:"training_days"`
}

// Validate checks the segment configuration.
func (s *Segment) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidSeg)
	}
	if s.TrainingDays < 0 {
		return fmt.Errorf("%w: training days must be >= 0", ErrInvalidSeg)
	}
	return nil
}
