package booking

import (
	"context"

	"github.com/google/uuid"

	"github.com/ignatzorin/consult-backend/internal/domain/entity"
	"github.com/ignatzorin/consult-backend/internal/domain/repository"
	"github.com/ignatzorin/consult-backend/internal/domain/settlement"
	vo "github.com/ignatzorin/consult-backend/internal/domain/valueobject"
	"github.com/ignatzorin/consult-backend/internal/jobs"
	"github.com/ignatzorin/consult-backend/internal/pkg/apperror"
)

type CancelInput struct {
	Reason string
	// Attendance заполняет система, когда отмена вызвана неявкой.
	Attendance *vo.AttendanceOutcome
}

// Cancel отменяет принятое бронирование. Поздняя отмена кандидатом или неявка кандидата
// оставляет деньги профессионалу, иначе кандидату возвращается вся сумма.
func (e *Engine) Cancel(ctx context.Context, bookingID uuid.UUID, actor entity.Actor, in CancelInput) (*entity.Booking, error) {
	target := vo.BookingStatusCancelled
	return e.run(ctx, Transition{
		BookingID: bookingID,
		Target:    target,
		Actor:     actor,
		Reason:    "booking_cancelled",
		Guard: func(b *entity.Booking) error {
			return allOf(
				func() error {
					return requireStatus(b, target, vo.BookingStatusAccepted, vo.BookingStatusReschedulePending)
				},
				func() error { return requireParticipantOrSystem(b, actor, target) },
			)
		},
	}, func(ctx context.Context, tx repository.Tx, b *entity.Booking, out *Outbox) (*entity.Booking, error) {
		if in.Attendance != nil {
			b.Attendance = *in.Attendance
			out.Annotate("attendance", b.Attendance)
		}
		b.ClearProposal()
		if err := e.settleCancellation(ctx, tx, b, actor, in.Reason, out); err != nil {
			return nil, err
		}
		return b, nil
	})
}

// settleCancellation распределяет деньги при отмене. Вызов кастодиана идёт до коммита:
// локальный статус refunded без реального возврата невозможен.
func (e *Engine) settleCancellation(ctx context.Context, tx repository.Tx, b *entity.Booking, actor entity.Actor, reason string, out *Outbox) error {
	now := e.now()
	payment, err := tx.GetPayment(ctx, b.ID)
	if err != nil {
		return err
	}

	late := b.Attendance.RequesterNoShow()
	if !late && b.StartAt != nil && settlement.IsLateCancellation(*b.StartAt, now, settlement.LateCancellationCutoff) {
		id, _ := actor.UserID()
		late = actor.IsSystem() || id == b.CandidateID
	}

	switch {
	case payment.Status == vo.PaymentStatusHeld && late:
		payment.Status = vo.PaymentStatusReleased
		b.IsLateCancellation = true

		destination, err := tx.PayoutDestination(ctx, b.ProfessionalID)
		if err != nil {
			return err
		}
		if destination == nil {
			out.Annotate("payout_omitted", "no_payout_destination")
		} else {
			payout := &entity.Payout{
				ID:             uuid.New(),
				BookingID:      b.ID,
				ProfessionalID: b.ProfessionalID,
				AmountNetCents: settlement.NetPayout(payment.AmountGrossCents, payment.PlatformFeeCents),
				Destination:    destination,
				Status:         vo.PayoutStatusPending,
				CreatedAt:      now,
				UpdatedAt:      now,
			}
			if err := tx.SavePayout(ctx, payout); err != nil {
				return err
			}
			out.Annotate("payout_net_cents", payout.AmountNetCents)
			out.Enqueue(jobs.Key(jobs.TypePayoutRelease, b.ID), jobs.New(jobs.TypePayoutRelease, b.ID))
		}

	case payment.Status == vo.PaymentStatusHeld:
		remaining := payment.AmountGrossCents - payment.RefundedAmountCents
		refundRef, err := e.custodian.Refund(ctx, payment.ExternalRef, remaining)
		if err != nil {
			return err
		}
		payment.Status = vo.PaymentStatusRefunded
		payment.RefundedAmountCents = payment.AmountGrossCents
		b.RefundedAt = timePtr(now)
		out.Annotate("refund_ref", refundRef)
		out.Annotate("refunded_cents", remaining)

	case payment.Status.In(vo.PaymentStatusAuthorized, vo.PaymentStatusCaptureFailed):
		if err := e.custodian.CancelAuthorization(ctx, payment.ExternalRef); err != nil {
			return err
		}
		payment.Status = vo.PaymentStatusCancelled

	default:
		return apperror.NewTransitionError(b.ID, string(b.Status), string(vo.BookingStatusCancelled), "оплата в статусе "+string(payment.Status))
	}

	payment.UpdatedAt = now
	if err := tx.UpdatePayment(ctx, payment); err != nil {
		return err
	}

	b.CancelledAt = timePtr(now)
	b.CancelReason = strPtr(reason)
	out.Annotate("late", late)
	out.Annotate("payment_status", payment.Status)
	for _, id := range b.Participants() {
		out.Notify(id, "booking.cancelled", map[string]any{
			"booking_id": b.ID,
			"late":       late,
			"reason":     reason,
		})
	}
	return nil
}
