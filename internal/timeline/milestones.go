package timeline

import (
	"time"

	"github.com/portal-treinamento/core/internal/domain"
)

// Milestones is the schedule derived from a start date and a segment's
// training length.
type Milestones struct {
	Start             time.Time `json:"start_date"`
	MedicalExam       time.Time `json:"medical_exam_date"`
	ContractSignature time.Time `json:"contract_signature_date"`
	End               time.Time `json:"end_date"`
	AssistedService   time.Time `json:"assisted_service_date"`
}

// ComputeMilestones derives every milestone from start. The medical exam and
// contract signature precede the start by two and one business days; the
// assisted-service phase begins the business day after training ends.
func ComputeMilestones(start time.Time, trainingDays int) Milestones {
	end := AddBusinessDays(start, trainingDays)
	return Milestones{
		Start:             start,
		MedicalExam:       SubtractBusinessDays(start, 2),
		ContractSignature: SubtractBusinessDays(start, 1),
		End:               end,
		AssistedService:   AddBusinessDays(end, 1),
	}
}

// ApplyMilestones fills every unset date on c from the segment's schedule.
// Dates already present are left alone.
func ApplyMilestones(c *domain.TrainingClass, seg *domain.Segment) {
	if c == nil || seg == nil || c.StartDate.IsZero() {
		return
	}
	m := ComputeMilestones(c.StartDate, seg.TrainingDays)
	if c.MedicalExamDate == nil {
		c.MedicalExamDate = &m.MedicalExam
	}
	if c.ContractSignatureDate == nil {
		c.ContractSignatureDate = &m.ContractSignature
	}
	if c.EndDate == nil {
		c.EndDate = &m.End
	}
	if c.AssistedServiceDate == nil {
		c.AssistedServiceDate = &m.AssistedService
	}
}
