package dto

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/ignatzorin/consult-backend/internal/domain/entity"
)

type BookingResponse struct {
	ID                    uuid.UUID  `json:"id"`
	CandidateID           uuid.UUID  `json:"candidate_id"`
	ProfessionalID        uuid.UUID  `json:"professional_id"`
	Status                string     `json:"status"`
	StartAt               *time.Time `json:"start_at,omitempty"`
	EndAt                 *time.Time `json:"end_at,omitempty"`
	PriceCents            int64      `json:"price_cents"`
	Currency              string     `json:"currency"`
	IsLateCancellation    bool       `json:"is_late_cancellation"`
	Attendance            string     `json:"attendance"`
	ExpiresAt             *time.Time `json:"expires_at,omitempty"`
	ProposedStartAt       *time.Time `json:"proposed_start_at,omitempty"`
	ProposedEndAt         *time.Time `json:"proposed_end_at,omitempty"`
	RescheduleRequestedBy *uuid.UUID `json:"reschedule_requested_by,omitempty"`
	RescheduledAt         *time.Time `json:"rescheduled_at,omitempty"`
	DeclineReason         *string    `json:"decline_reason,omitempty"`
	CancelReason          *string    `json:"cancel_reason,omitempty"`
	CompletedAt           *time.Time `json:"completed_at,omitempty"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
}

func NewBookingResponse(b *entity.Booking) BookingResponse {
	return BookingResponse{
		ID:                    b.ID,
		CandidateID:           b.CandidateID,
		ProfessionalID:        b.ProfessionalID,
		Status:                string(b.Status),
		StartAt:               b.StartAt,
		EndAt:                 b.EndAt,
		PriceCents:            b.PriceCents,
		Currency:              b.Currency,
		IsLateCancellation:    b.IsLateCancellation,
		Attendance:            string(b.Attendance),
		ExpiresAt:             b.ExpiresAt,
		ProposedStartAt:       b.ProposedStartAt,
		ProposedEndAt:         b.ProposedEndAt,
		RescheduleRequestedBy: b.RescheduleRequestedBy,
		RescheduledAt:         b.RescheduledAt,
		DeclineReason:         b.DeclineReason,
		CancelReason:          b.CancelReason,
		CompletedAt:           b.CompletedAt,
		CreatedAt:             b.CreatedAt,
		UpdatedAt:             b.UpdatedAt,
	}
}

// PaymentResponse не раскрывает ссылку кастодиана.
type PaymentResponse struct {
	Status              string `json:"status"`
	AmountGrossCents    int64  `json:"amount_gross_cents"`
	RefundedAmountCents int64  `json:"refunded_amount_cents"`
	Currency            string `json:"currency"`
}

type PayoutResponse struct {
	Status         string     `json:"status"`
	AmountNetCents int64      `json:"amount_net_cents"`
	BlockReason    *string    `json:"block_reason,omitempty"`
	PaidAt         *time.Time `json:"paid_at,omitempty"`
}

type DisputeResponse struct {
	Status            string     `json:"status"`
	Reason            string     `json:"reason"`
	Description       string     `json:"description"`
	Resolution        *string    `json:"resolution,omitempty"`
	RefundAmountCents *int64     `json:"refund_amount_cents,omitempty"`
	ResolvedAt        *time.Time `json:"resolved_at,omitempty"`
}

type FeedbackResponse struct {
	Text        string    `json:"text"`
	Actions     []string  `json:"actions"`
	QCStatus    string    `json:"qc_status"`
	QCReasons   []string  `json:"qc_reasons,omitempty"`
	SubmittedAt time.Time `json:"submitted_at"`
}

func NewFeedbackResponse(f *entity.CallFeedback) FeedbackResponse {
	return FeedbackResponse{
		Text:        f.Text,
		Actions:     f.Actions,
		QCStatus:    string(f.QCStatus),
		QCReasons:   f.QCReasons,
		SubmittedAt: f.SubmittedAt,
	}
}

type SnapshotResponse struct {
	Booking  BookingResponse   `json:"booking"`
	Payment  *PaymentResponse  `json:"payment,omitempty"`
	Payout   *PayoutResponse   `json:"payout,omitempty"`
	Dispute  *DisputeResponse  `json:"dispute,omitempty"`
	Feedback *FeedbackResponse `json:"feedback,omitempty"`
}

func NewSnapshotResponse(s *entity.Snapshot) SnapshotResponse {
	resp := SnapshotResponse{Booking: NewBookingResponse(s.Booking)}
	if p := s.Payment; p != nil {
		resp.Payment = &PaymentResponse{
			Status:              string(p.Status),
			AmountGrossCents:    p.AmountGrossCents,
			RefundedAmountCents: p.RefundedAmountCents,
			Currency:            p.Currency,
		}
	}
	if p := s.Payout; p != nil {
		resp.Payout = &PayoutResponse{
			Status:         string(p.Status),
			AmountNetCents: p.AmountNetCents,
			BlockReason:    p.BlockReason,
			PaidAt:         p.PaidAt,
		}
	}
	if d := s.Dispute; d != nil {
		dr := &DisputeResponse{
			Status:            string(d.Status),
			Reason:            string(d.Reason),
			Description:       d.Description,
			RefundAmountCents: d.RefundAmountCents,
			ResolvedAt:        d.ResolvedAt,
		}
		if d.Resolution != nil {
			r := string(*d.Resolution)
			dr.Resolution = &r
		}
		resp.Dispute = dr
	}
	if f := s.Feedback; f != nil {
		fr := NewFeedbackResponse(f)
		resp.Feedback = &fr
	}
	return resp
}

type AuditResponse struct {
	ID             uuid.UUID       `json:"id"`
	ActorID        *uuid.UUID      `json:"actor_id,omitempty"`
	ActorRole      string          `json:"actor_role"`
	PreviousStatus string          `json:"previous_status"`
	NewStatus      string          `json:"new_status"`
	Reason         string          `json:"reason"`
	Metadata       json.RawMessage `json:"metadata,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

func NewAuditResponse(records []entity.AuditRecord) []AuditResponse {
	out := make([]AuditResponse, 0, len(records))
	for _, r := range records {
		out = append(out, AuditResponse{
			ID:             r.ID,
			ActorID:        r.ActorID,
			ActorRole:      r.ActorRole,
			PreviousStatus: string(r.PreviousStatus),
			NewStatus:      string(r.NewStatus),
			Reason:         r.Reason,
			Metadata:       r.Metadata,
			CreatedAt:      r.CreatedAt,
		})
	}
	return out
}
