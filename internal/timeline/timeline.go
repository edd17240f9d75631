package timeline

import (
	"slices"
	"time"

	"github.com/portal-treinamento/core/internal/domain"
)

// Event titles as shown in the portal.
const (
	TitleStart             = "Início do Treinamento"
	TitleMedicalExam       = "Exame Médico"
	TitleContractSignature = "Assinatura de Contrato"
	TitleAssistedService   = "Início do Atendimento Assistido"
	TitleEnd               = "Fim do Treinamento"
	TitleEndProjected      = "Fim do Treinamento (previsto)"
)

// BuildTimeline projects a class (and optionally its segment) into events
// sorted by date. Completion flags compare against the calendar day of now,
// so the same class yields different flags on different days.
func BuildTimeline(c *domain.TrainingClass, seg *domain.Segment, now time.Time) []domain.TimelineEvent {
	if c == nil || c.StartDate.IsZero() {
		return nil
	}
	today := DateOnly(now)
	reached := func(t time.Time) bool { return !DateOnly(t).After(today) }

	events := []domain.TimelineEvent{{
		ID:        "start",
		Date:      c.StartDate,
		Title:     TitleStart,
		Type:      domain.EventMilestone,
		Completed: true,
	}}

	if c.MedicalExamDate != nil {
		events = append(events, domain.TimelineEvent{
			ID:          "medical-exam",
			Date:        *c.MedicalExamDate,
			Title:       TitleMedicalExam,
			Description: "Exame admissional dos treinandos",
			Type:        domain.EventDeadline,
			Completed:   reached(*c.MedicalExamDate),
		})
	}
	if c.ContractSignatureDate != nil {
		events = append(events, domain.TimelineEvent{
			ID:          "contract-signature",
			Date:        *c.ContractSignatureDate,
			Title:       TitleContractSignature,
			Description: "Assinatura dos contratos de trabalho",
			Type:        domain.EventDeadline,
			Completed:   reached(*c.ContractSignatureDate),
		})
	}
	if c.AssistedServiceDate != nil {
		events = append(events, domain.TimelineEvent{
			ID:          "assisted-service",
			Date:        *c.AssistedServiceDate,
			Title:       TitleAssistedService,
			Description: "Operação assistida após o treinamento",
			Type:        domain.EventGeneric,
			Completed:   reached(*c.AssistedServiceDate),
		})
	}

	switch {
	case c.EndDate != nil:
		events = append(events, domain.TimelineEvent{
			ID:        "end",
			Date:      *c.EndDate,
			Title:     TitleEnd,
			Type:      domain.EventMilestone,
			Completed: c.Status == domain.ClassCompleted,
		})
	case seg != nil:
		m := ComputeMilestones(c.StartDate, seg.TrainingDays)
		events = append(events, domain.TimelineEvent{
			ID:          "end",
			Date:        m.End,
			Title:       TitleEndProjected,
			Description: "Data calculada a partir dos dias de treinamento do segmento",
			Type:        domain.EventMilestone,
		})
	}

	slices.SortStableFunc(events, func(a, b domain.TimelineEvent) int {
		return a.Date.Compare(b.Date)
	})
	return events
}

// IsOverdue reports whether deadline has passed for work that is not done.
// Only whole calendar days count: a deadline of today is not overdue.
func IsOverdue(deadline time.Time, status domain.ClassStatus, now time.Time) bool {
	if status.IsTerminal() {
		return false
	}
	return DateOnly(deadline).Before(DateOnly(now))
}

// DeriveStatus returns the status a class should carry on the day of now.
// Terminal statuses are never changed. The end date is the explicit one
// when set, otherwise the one projected from seg.
func DeriveStatus(c *domain.TrainingClass, seg *domain.Segment, now time.Time) domain.ClassStatus {
	if c.Status.IsTerminal() {
		return c.Status
	}
	today := DateOnly(now)

	var end *time.Time
	if c.EndDate != nil {
		end = c.EndDate
	} else if seg != nil {
		projected := ComputeMilestones(c.StartDate, seg.TrainingDays).End
		end = &projected
	}

	switch {
	case end != nil && DateOnly(*end).Before(today):
		return domain.ClassCompleted
	case !DateOnly(c.StartDate).After(today):
		return domain.ClassInProgress
	default:
		return domain.ClassPlanned
	}
}
