package entity

import (
	"time"

	"github.com/google/uuid"
	"github.com/ignatzorin/consult-backend/internal/domain/valueobject"
)

// CallFeedback - отчёт профессионала после звонка, проходит QC перед выплатой.
type CallFeedback struct {
	ID             uuid.UUID
	BookingID      uuid.UUID
	ProfessionalID uuid.UUID
	Text           string
	Actions        []string
	QCStatus       valueobject.QCStatus
	QCReasons      []string
	SubmittedAt    time.Time
	ReviewedAt     *time.Time
	UpdatedAt      time.Time
}

func (f *CallFeedback) Clone() *CallFeedback {
	if f == nil {
		return nil
	}
	c := *f
	c.Actions = append([]string(nil), f.Actions...)
	c.QCReasons = append([]string(nil), f.QCReasons...)
	return &c
}
