package persistence

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/ignatzorin/consult-backend/internal/domain/entity"
	vo "github.com/ignatzorin/consult-backend/internal/domain/valueobject"
)

type bookingRow struct {
	ID                    uuid.UUID  `db:"id"`
	CandidateID           uuid.UUID  `db:"candidate_id"`
	ProfessionalID        uuid.UUID  `db:"professional_id"`
	Status                string     `db:"status"`
	StartAt               *time.Time `db:"start_at"`
	EndAt                 *time.Time `db:"end_at"`
	PriceCents            int64      `db:"price_cents"`
	Currency              string     `db:"currency"`
	IsLateCancellation    bool       `db:"is_late_cancellation"`
	Attendance            string     `db:"attendance"`
	ExpiresAt             *time.Time `db:"expires_at"`
	ProposedStartAt       *time.Time `db:"proposed_start_at"`
	ProposedEndAt         *time.Time `db:"proposed_end_at"`
	RescheduleRequestedBy *uuid.UUID `db:"reschedule_requested_by"`
	RescheduledAt         *time.Time `db:"rescheduled_at"`
	DeclineReason         *string    `db:"decline_reason"`
	DeclinedAt            *time.Time `db:"declined_at"`
	CancelReason          *string    `db:"cancel_reason"`
	CancelledAt           *time.Time `db:"cancelled_at"`
	RefundedAt            *time.Time `db:"refunded_at"`
	CompletedAt           *time.Time `db:"completed_at"`
	CreatedAt             time.Time  `db:"created_at"`
	UpdatedAt             time.Time  `db:"updated_at"`
}

const bookingColumns = `id, candidate_id, professional_id, status, start_at, end_at, price_cents, currency,
	is_late_cancellation, attendance, expires_at, proposed_start_at, proposed_end_at, reschedule_requested_by,
	rescheduled_at, decline_reason, declined_at, cancel_reason, cancelled_at, refunded_at, completed_at, created_at, updated_at`

func newBookingRow(b *entity.Booking) bookingRow {
	return bookingRow{
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
		DeclinedAt:            b.DeclinedAt,
		CancelReason:          b.CancelReason,
		CancelledAt:           b.CancelledAt,
		RefundedAt:            b.RefundedAt,
		CompletedAt:           b.CompletedAt,
		CreatedAt:             b.CreatedAt,
		UpdatedAt:             b.UpdatedAt,
	}
}

func (r bookingRow) toEntity() *entity.Booking {
	return &entity.Booking{
		ID:                    r.ID,
		CandidateID:           r.CandidateID,
		ProfessionalID:        r.ProfessionalID,
		Status:                vo.BookingStatus(r.Status),
		StartAt:               r.StartAt,
		EndAt:                 r.EndAt,
		PriceCents:            r.PriceCents,
		Currency:              r.Currency,
		IsLateCancellation:    r.IsLateCancellation,
		Attendance:            vo.AttendanceOutcome(r.Attendance),
		ExpiresAt:             r.ExpiresAt,
		ProposedStartAt:       r.ProposedStartAt,
		ProposedEndAt:         r.ProposedEndAt,
		RescheduleRequestedBy: r.RescheduleRequestedBy,
		RescheduledAt:         r.RescheduledAt,
		DeclineReason:         r.DeclineReason,
		DeclinedAt:            r.DeclinedAt,
		CancelReason:          r.CancelReason,
		CancelledAt:           r.CancelledAt,
		RefundedAt:            r.RefundedAt,
		CompletedAt:           r.CompletedAt,
		CreatedAt:             r.CreatedAt,
		UpdatedAt:             r.UpdatedAt,
	}
}

type paymentRow struct {
	ID                  uuid.UUID `db:"id"`
	BookingID           uuid.UUID `db:"booking_id"`
	AmountGrossCents    int64     `db:"amount_gross_cents"`
	PlatformFeeCents    int64     `db:"platform_fee_cents"`
	RefundedAmountCents int64     `db:"refunded_amount_cents"`
	Currency            string    `db:"currency"`
	ExternalRef         string    `db:"external_ref"`
	RefundRef           *string   `db:"refund_ref"`
	Status              string    `db:"status"`
	CreatedAt           time.Time `db:"created_at"`
	UpdatedAt           time.Time `db:"updated_at"`
}

const paymentColumns = `id, booking_id, amount_gross_cents, platform_fee_cents, refunded_amount_cents, currency,
	external_ref, refund_ref, status, created_at, updated_at`

func newPaymentRow(p *entity.Payment) paymentRow {
	return paymentRow{
		ID:                  p.ID,
		BookingID:           p.BookingID,
		AmountGrossCents:    p.AmountGrossCents,
		PlatformFeeCents:    p.PlatformFeeCents,
		RefundedAmountCents: p.RefundedAmountCents,
		Currency:            p.Currency,
		ExternalRef:         p.ExternalRef,
		RefundRef:           p.RefundRef,
		Status:              string(p.Status),
		CreatedAt:           p.CreatedAt,
		UpdatedAt:           p.UpdatedAt,
	}
}

func (r paymentRow) toEntity() *entity.Payment {
	return &entity.Payment{
		ID:                  r.ID,
		BookingID:           r.BookingID,
		AmountGrossCents:    r.AmountGrossCents,
		PlatformFeeCents:    r.PlatformFeeCents,
		RefundedAmountCents: r.RefundedAmountCents,
		Currency:            r.Currency,
		ExternalRef:         r.ExternalRef,
		RefundRef:           r.RefundRef,
		Status:              vo.PaymentStatus(r.Status),
		CreatedAt:           r.CreatedAt,
		UpdatedAt:           r.UpdatedAt,
	}
}

type payoutRow struct {
	ID             uuid.UUID  `db:"id"`
	BookingID      uuid.UUID  `db:"booking_id"`
	ProfessionalID uuid.UUID  `db:"professional_id"`
	AmountNetCents int64      `db:"amount_net_cents"`
	Destination    *string    `db:"destination"`
	Status         string     `db:"status"`
	BlockReason    *string    `db:"block_reason"`
	TransferRef    *string    `db:"transfer_ref"`
	PaidAt         *time.Time `db:"paid_at"`
	CreatedAt      time.Time  `db:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at"`
}

const payoutColumns = `id, booking_id, professional_id, amount_net_cents, destination, status, block_reason,
	transfer_ref, paid_at, created_at, updated_at`

func newPayoutRow(p *entity.Payout) payoutRow {
	return payoutRow{
		ID:             p.ID,
		BookingID:      p.BookingID,
		ProfessionalID: p.ProfessionalID,
		AmountNetCents: p.AmountNetCents,
		Destination:    p.Destination,
		Status:         string(p.Status),
		BlockReason:    p.BlockReason,
		TransferRef:    p.TransferRef,
		PaidAt:         p.PaidAt,
		CreatedAt:      p.CreatedAt,
		UpdatedAt:      p.UpdatedAt,
	}
}

func (r payoutRow) toEntity() *entity.Payout {
	return &entity.Payout{
		ID:             r.ID,
		BookingID:      r.BookingID,
		ProfessionalID: r.ProfessionalID,
		AmountNetCents: r.AmountNetCents,
		Destination:    r.Destination,
		Status:         vo.PayoutStatus(r.Status),
		BlockReason:    r.BlockReason,
		TransferRef:    r.TransferRef,
		PaidAt:         r.PaidAt,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

type disputeRow struct {
	ID                uuid.UUID  `db:"id"`
	BookingID         uuid.UUID  `db:"booking_id"`
	InitiatorID       *uuid.UUID `db:"initiator_id"`
	Reason            string     `db:"reason"`
	Description       string     `db:"description"`
	Status            string     `db:"status"`
	Resolution        *string    `db:"resolution"`
	ResolutionNote    *string    `db:"resolution_note"`
	RefundAmountCents *int64     `db:"refund_amount_cents"`
	ResolvedBy        *uuid.UUID `db:"resolved_by"`
	ResolvedAt        *time.Time `db:"resolved_at"`
	CreatedAt         time.Time  `db:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at"`
}

const disputeColumns = `id, booking_id, initiator_id, reason, description, status, resolution, resolution_note,
	refund_amount_cents, resolved_by, resolved_at, created_at, updated_at`

func newDisputeRow(d *entity.Dispute) disputeRow {
	row := disputeRow{
		ID:                d.ID,
		BookingID:         d.BookingID,
		InitiatorID:       d.InitiatorID,
		Reason:            string(d.Reason),
		Description:       d.Description,
		Status:            string(d.Status),
		ResolutionNote:    d.ResolutionNote,
		RefundAmountCents: d.RefundAmountCents,
		ResolvedBy:        d.ResolvedBy,
		ResolvedAt:        d.ResolvedAt,
		CreatedAt:         d.CreatedAt,
		UpdatedAt:         d.UpdatedAt,
	}
	if d.Resolution != nil {
		s := string(*d.Resolution)
		row.Resolution = &s
	}
	return row
}

func (r disputeRow) toEntity() *entity.Dispute {
	d := &entity.Dispute{
		ID:                r.ID,
		BookingID:         r.BookingID,
		InitiatorID:       r.InitiatorID,
		Reason:            vo.DisputeReason(r.Reason),
		Description:       r.Description,
		Status:            vo.DisputeStatus(r.Status),
		ResolutionNote:    r.ResolutionNote,
		RefundAmountCents: r.RefundAmountCents,
		ResolvedBy:        r.ResolvedBy,
		ResolvedAt:        r.ResolvedAt,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
	}
	if r.Resolution != nil {
		res := vo.DisputeResolution(*r.Resolution)
		d.Resolution = &res
	}
	return d
}

type feedbackRow struct {
	ID             uuid.UUID      `db:"id"`
	BookingID      uuid.UUID      `db:"booking_id"`
	ProfessionalID uuid.UUID      `db:"professional_id"`
	Text           string         `db:"text"`
	Actions        pq.StringArray `db:"actions"`
	QCStatus       string         `db:"qc_status"`
	QCReasons      pq.StringArray `db:"qc_reasons"`
	SubmittedAt    time.Time      `db:"submitted_at"`
	ReviewedAt     *time.Time     `db:"reviewed_at"`
	UpdatedAt      time.Time      `db:"updated_at"`
}

const feedbackColumns = `id, booking_id, professional_id, text, actions, qc_status, qc_reasons, submitted_at,
	reviewed_at, updated_at`

func newFeedbackRow(f *entity.CallFeedback) feedbackRow {
	return feedbackRow{
		ID:             f.ID,
		BookingID:      f.BookingID,
		ProfessionalID: f.ProfessionalID,
		Text:           f.Text,
		Actions:        pq.StringArray(f.Actions),
		QCStatus:       string(f.QCStatus),
		QCReasons:      pq.StringArray(f.QCReasons),
		SubmittedAt:    f.SubmittedAt,
		ReviewedAt:     f.ReviewedAt,
		UpdatedAt:      f.UpdatedAt,
	}
}

func (r feedbackRow) toEntity() *entity.CallFeedback {
	return &entity.CallFeedback{
		ID:             r.ID,
		BookingID:      r.BookingID,
		ProfessionalID: r.ProfessionalID,
		Text:           r.Text,
		Actions:        []string(r.Actions),
		QCStatus:       vo.QCStatus(r.QCStatus),
		QCReasons:      []string(r.QCReasons),
		SubmittedAt:    r.SubmittedAt,
		ReviewedAt:     r.ReviewedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

type auditRow struct {
	ID             uuid.UUID  `db:"id"`
	BookingID      uuid.UUID  `db:"booking_id"`
	ActorID        *uuid.UUID `db:"actor_id"`
	ActorRole      string     `db:"actor_role"`
	PreviousStatus string     `db:"previous_status"`
	NewStatus      string     `db:"new_status"`
	Reason         string     `db:"reason"`
	Metadata       []byte     `db:"metadata"`
	CreatedAt      time.Time  `db:"created_at"`
}

func (r auditRow) toEntity() entity.AuditRecord {
	return entity.AuditRecord{
		ID:             r.ID,
		BookingID:      r.BookingID,
		ActorID:        r.ActorID,
		ActorRole:      r.ActorRole,
		PreviousStatus: vo.BookingStatus(r.PreviousStatus),
		NewStatus:      vo.BookingStatus(r.NewStatus),
		Reason:         r.Reason,
		Metadata:       r.Metadata,
		CreatedAt:      r.CreatedAt,
	}
}
