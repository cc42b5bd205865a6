package entity

import (
	"time"

	"github.com/google/uuid"
	"github.com/ignatzorin/consult-backend/internal/domain/valueobject"
)

// Booking - корень агрегата: одна оплачиваемая консультация кандидата с профессионалом.
type Booking struct {
	ID                 uuid.UUID
	CandidateID        uuid.UUID
	ProfessionalID     uuid.UUID
	Status             valueobject.BookingStatus
	StartAt            *time.Time
	EndAt              *time.Time
	PriceCents         int64
	Currency           string
	IsLateCancellation bool
	Attendance         valueobject.AttendanceOutcome
	ExpiresAt          *time.Time

	ProposedStartAt       *time.Time
	ProposedEndAt         *time.Time
	RescheduleRequestedBy *uuid.UUID
	RescheduledAt         *time.Time

	DeclineReason *string
	DeclinedAt    *time.Time
	CancelReason  *string
	CancelledAt   *time.Time
	RefundedAt    *time.Time
	CompletedAt   *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

func NewBooking(candidateID, professionalID uuid.UUID, price valueobject.Money, now time.Time) *Booking {
	return &Booking{
		ID:             uuid.New(),
		CandidateID:    candidateID,
		ProfessionalID: professionalID,
		Status:         valueobject.BookingStatusDraft,
		PriceCents:     price.AmountCents,
		Currency:       price.Currency,
		Attendance:     valueobject.AttendanceUnknown,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func (b *Booking) IsParticipant(userID uuid.UUID) bool {
	return b.CandidateID == userID || b.ProfessionalID == userID
}

// Counterparty возвращает второго участника; для постороннего uuid.Nil.
func (b *Booking) Counterparty(userID uuid.UUID) uuid.UUID {
	switch userID {
	case b.CandidateID:
		return b.ProfessionalID
	case b.ProfessionalID:
		return b.CandidateID
	}
	return uuid.Nil
}

func (b *Booking) Participants() []uuid.UUID {
	return []uuid.UUID{b.CandidateID, b.ProfessionalID}
}

func (b *Booking) SetSchedule(start, end time.Time) {
	b.StartAt = &start
	b.EndAt = &end
}

func (b *Booking) ClearProposal() {
	b.ProposedStartAt = nil
	b.ProposedEndAt = nil
	b.RescheduleRequestedBy = nil
}

func (b *Booking) Touch(now time.Time) {
	b.UpdatedAt = now
}

func (b *Booking) Clone() *Booking {
	if b == nil {
		return nil
	}
	c := *b
	return &c
}
