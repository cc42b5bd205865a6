package dto

import (
	"time"

	"github.com/google/uuid"

	vo "github.com/ignatzorin/consult-backend/internal/domain/valueobject"
	"github.com/ignatzorin/consult-backend/internal/usecase/booking"
)

// CreateBookingRequest - запрос кандидата на консультацию.
type CreateBookingRequest struct {
	ProfessionalID string `json:"professional_id" binding:"required,uuid"`
	PriceCents     int64  `json:"price_cents" binding:"required,gt=0"`
	Currency       string `json:"currency" binding:"omitempty,len=3,alpha"`
	PaymentSource  string `json:"payment_source" binding:"required"`
}

func (r CreateBookingRequest) ToInput(defaultCurrency string) booking.RequestInput {
	currency := r.Currency
	if currency == "" {
		currency = defaultCurrency
	}
	professionalID, _ := uuid.Parse(r.ProfessionalID)
	return booking.RequestInput{
		ProfessionalID: professionalID,
		PriceCents:     r.PriceCents,
		Currency:       currency,
		PaymentSource:  r.PaymentSource,
	}
}

type AcceptBookingRequest struct {
	StartAt             time.Time `json:"start_at" binding:"required"`
	EndAt               time.Time `json:"end_at" binding:"required,gtfield=StartAt"`
	PendingIntegrations bool      `json:"pending_integrations"`
}

func (r AcceptBookingRequest) ToInput() booking.AcceptInput {
	return booking.AcceptInput{StartAt: r.StartAt, EndAt: r.EndAt, PendingIntegrations: r.PendingIntegrations}
}

// ReasonRequest используется для decline и reschedule/reject.
type ReasonRequest struct {
	Reason string `json:"reason" binding:"max=1000"`
}

type CancelBookingRequest struct {
	Reason string `json:"reason" binding:"max=1000"`
}

type RescheduleRequest struct {
	StartAt time.Time `json:"start_at" binding:"required"`
	EndAt   time.Time `json:"end_at" binding:"required,gtfield=StartAt"`
}

func (r RescheduleRequest) ToInput() booking.RescheduleInput {
	return booking.RescheduleInput{StartAt: r.StartAt, EndAt: r.EndAt}
}

type OpenDisputeRequest struct {
	Reason      string `json:"reason" binding:"required,oneof=no_show quality misconduct other"`
	Description string `json:"description" binding:"max=5000"`
}

func (r OpenDisputeRequest) ToInput() booking.DisputeInput {
	return booking.DisputeInput{Reason: vo.DisputeReason(r.Reason), Description: r.Description}
}

type SubmitFeedbackRequest struct {
	Text    string   `json:"text" binding:"required"`
	Actions []string `json:"actions" binding:"required,min=1,dive,required"`
}

func (r SubmitFeedbackRequest) ToInput() booking.FeedbackInput {
	return booking.FeedbackInput{Text: r.Text, Actions: r.Actions}
}

type ResolveDisputeRequest struct {
	Resolution        string `json:"resolution" binding:"required,oneof=dismiss refund partial_refund"`
	RefundAmountCents *int64 `json:"refund_amount_cents" binding:"omitempty,gt=0"`
	Note              string `json:"note" binding:"max=2000"`
}

func (r ResolveDisputeRequest) ToInput() booking.ResolveInput {
	return booking.ResolveInput{
		Resolution:        vo.DisputeResolution(r.Resolution),
		RefundAmountCents: r.RefundAmountCents,
		Note:              r.Note,
	}
}
