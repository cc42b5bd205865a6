package booking

import (
	"context"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/consult-backend/internal/domain/entity"
	"github.com/ignatzorin/consult-backend/internal/domain/repository"
	"github.com/ignatzorin/consult-backend/internal/domain/settlement"
	vo "github.com/ignatzorin/consult-backend/internal/domain/valueobject"
	"github.com/ignatzorin/consult-backend/internal/logger"
	"github.com/ignatzorin/consult-backend/internal/pkg/apperror"
)

type DisputeInput struct {
	Reason      vo.DisputeReason
	Description string
	Attendance  *vo.AttendanceOutcome
}

// OpenDispute переводит принятое бронирование в спор.
func (e *Engine) OpenDispute(ctx context.Context, bookingID uuid.UUID, actor entity.Actor, in DisputeInput) (*entity.Booking, error) {
	target := vo.BookingStatusDisputePending
	return e.run(ctx, Transition{
		BookingID: bookingID,
		Target:    target,
		Actor:     actor,
		Reason:    "dispute_opened",
		Guard: func(b *entity.Booking) error {
			return allOf(
				func() error { return requireStatus(b, target, vo.BookingStatusAccepted) },
				func() error { return requireParticipantOrSystem(b, actor, target) },
			)
		},
	}, func(ctx context.Context, tx repository.Tx, b *entity.Booking, out *Outbox) (*entity.Booking, error) {
		existing, err := tx.GetDispute(ctx, b.ID)
		if err != nil {
			return nil, err
		}
		if existing != nil && existing.Status.IsActive() {
			return nil, apperror.NewTransitionError(b.ID, string(b.Status), string(target), "по бронированию уже открыт спор")
		}
		if in.Attendance != nil {
			b.Attendance = *in.Attendance
			out.Annotate("attendance", b.Attendance)
		}

		now := e.now()
		dispute := &entity.Dispute{
			ID:          uuid.New(),
			BookingID:   b.ID,
			InitiatorID: actor.UserIDPtr(),
			Reason:      in.Reason,
			Description: in.Description,
			Status:      vo.DisputeStatusOpen,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if existing != nil {
			dispute.ID = existing.ID
			dispute.CreatedAt = existing.CreatedAt
		}
		if err := tx.SaveDispute(ctx, dispute); err != nil {
			return nil, err
		}

		out.Annotate("dispute_reason", in.Reason)
		for _, id := range b.Participants() {
			out.Notify(id, "dispute.opened", map[string]any{"booking_id": b.ID, "reason": in.Reason})
		}
		return b, nil
	})
}

type ResolveInput struct {
	Resolution        vo.DisputeResolution
	RefundAmountCents *int64
	Note              string
}

// ResolveDispute - решение администратора. Пост-проверка инвариантов отключена,
// причина попадает в аудит.
func (e *Engine) ResolveDispute(ctx context.Context, bookingID uuid.UUID, actor entity.Actor, in ResolveInput) (*entity.Booking, error) {
	current, err := e.reload(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if err := requireAdmin(current, actor, current.Status); err != nil {
		return nil, err
	}
	target, err := resolutionTarget(current, in)
	if err != nil {
		return nil, err
	}

	return e.run(ctx, Transition{
		BookingID:   bookingID,
		Target:      target,
		Actor:       actor,
		Reason:      "dispute_resolved_" + string(in.Resolution),
		Enforcement: SkipPostCheck("admin_dispute_resolution"),
		Guard: func(b *entity.Booking) error {
			return allOf(
				func() error { return requireStatus(b, target, vo.BookingStatusDisputePending) },
				func() error { return requireAdmin(b, actor, target) },
			)
		},
	}, func(ctx context.Context, tx repository.Tx, b *entity.Booking, out *Outbox) (*entity.Booking, error) {
		dispute, err := tx.GetDispute(ctx, b.ID)
		if err != nil {
			return nil, err
		}
		if dispute == nil || !dispute.Status.IsActive() {
			return nil, apperror.NewTransitionError(b.ID, string(b.Status), string(target), "нет активного спора")
		}
		payment, err := tx.GetPayment(ctx, b.ID)
		if err != nil {
			return nil, err
		}
		if payment.Status != vo.PaymentStatusHeld {
			return nil, apperror.NewTransitionError(b.ID, string(b.Status), string(target), "средства не удерживаются")
		}

		now := e.now()
		switch {
		case in.Resolution == vo.DisputeResolutionDismiss:
			if err := e.payoutOnDismiss(ctx, tx, b, payment, out); err != nil {
				return nil, err
			}
			b.CompletedAt = timePtr(now)

		case target == vo.BookingStatusRefunded:
			remaining := payment.AmountGrossCents - payment.RefundedAmountCents
			refundRef, err := e.custodian.Refund(ctx, payment.ExternalRef, remaining)
			if err != nil {
				return nil, err
			}
			payment.Status = vo.PaymentStatusRefunded
			payment.RefundedAmountCents = payment.AmountGrossCents
			b.RefundedAt = timePtr(now)
			out.Annotate("refund_ref", refundRef)
			out.Annotate("refunded_cents", remaining)

		default:
			amount := *in.RefundAmountCents
			refundRef, err := e.custodian.Refund(ctx, payment.ExternalRef, amount)
			if err != nil {
				return nil, err
			}
			payment.Status = vo.PaymentStatusPartiallyRefunded
			payment.RefundedAmountCents = amount
			b.RefundedAt = timePtr(now)
			b.CompletedAt = timePtr(now)
			out.Annotate("refund_ref", refundRef)
			out.Annotate("refunded_cents", amount)
		}

		payment.UpdatedAt = now
		if err := tx.UpdatePayment(ctx, payment); err != nil {
			return nil, err
		}

		resolution := in.Resolution
		dispute.Status = vo.DisputeStatusResolved
		dispute.Resolution = &resolution
		dispute.ResolutionNote = strPtr(in.Note)
		dispute.RefundAmountCents = in.RefundAmountCents
		dispute.ResolvedBy = actor.UserIDPtr()
		dispute.ResolvedAt = timePtr(now)
		dispute.UpdatedAt = now
		if err := tx.SaveDispute(ctx, dispute); err != nil {
			return nil, err
		}

		out.Annotate("resolution", in.Resolution)
		out.Annotate("payment_status", payment.Status)
		for _, id := range b.Participants() {
			out.Notify(id, "dispute.resolved", map[string]any{
				"booking_id": b.ID,
				"resolution": in.Resolution,
			})
		}
		return b, nil
	})
}

// resolutionTarget выбирает итоговый статус. Частичный возврат на всю цену равен полному.
func resolutionTarget(b *entity.Booking, in ResolveInput) (vo.BookingStatus, error) {
	switch in.Resolution {
	case vo.DisputeResolutionDismiss:
		return vo.BookingStatusCompleted, nil
	case vo.DisputeResolutionRefund:
		return vo.BookingStatusRefunded, nil
	case vo.DisputeResolutionPartialRefund:
		if in.RefundAmountCents == nil || *in.RefundAmountCents <= 0 || *in.RefundAmountCents > b.PriceCents {
			return "", apperror.NewTransitionError(b.ID, string(b.Status), string(vo.BookingStatusCompleted), "сумма частичного возврата должна быть от 1 до цены бронирования")
		}
		if *in.RefundAmountCents == b.PriceCents {
			return vo.BookingStatusRefunded, nil
		}
		return vo.BookingStatusCompleted, nil
	}
	return "", apperror.New(apperror.ErrCodeValidation, "некорректное решение по спору")
}

// payoutOnDismiss: спор отклонён, профессионал получает net сразу, если есть реквизиты.
// Без реквизитов выплата блокируется, деньги остаются held.
func (e *Engine) payoutOnDismiss(ctx context.Context, tx repository.Tx, b *entity.Booking, payment *entity.Payment, out *Outbox) error {
	now := e.now()
	destination, err := tx.PayoutDestination(ctx, b.ProfessionalID)
	if err != nil {
		return err
	}
	payout, err := tx.GetPayout(ctx, b.ID)
	if err != nil {
		return err
	}
	if payout == nil {
		payout = &entity.Payout{
			ID:             uuid.New(),
			BookingID:      b.ID,
			ProfessionalID: b.ProfessionalID,
			CreatedAt:      now,
		}
	}
	payout.AmountNetCents = settlement.NetPayout(payment.AmountGrossCents, payment.PlatformFeeCents)
	payout.Destination = destination
	payout.UpdatedAt = now

	if destination == nil {
		payout.Status = vo.PayoutStatusBlocked
		payout.BlockReason = strPtr("no_payout_destination")
		out.Annotate("payout_status", payout.Status)
		return tx.SavePayout(ctx, payout)
	}

	transferRef, err := e.custodian.Transfer(ctx, payout.AmountNetCents, *destination, payment.ExternalRef)
	if err != nil {
		return err
	}
	payment.Status = vo.PaymentStatusReleased
	payout.Status = vo.PayoutStatusPaid
	payout.BlockReason = nil
	payout.TransferRef = &transferRef
	payout.PaidAt = timePtr(now)

	out.Annotate("transfer_ref", transferRef)
	out.Annotate("payout_net_cents", payout.AmountNetCents)
	out.Notify(b.ProfessionalID, "payout.paid", map[string]any{
		"booking_id":   b.ID,
		"amount_cents": payout.AmountNetCents,
	})
	return tx.SavePayout(ctx, payout)
}

// RecordNoShow обрабатывает неявку: неявка одного кандидата - поздняя отмена,
// остальные исходы разбираются в споре.
func (e *Engine) RecordNoShow(ctx context.Context, bookingID uuid.UUID, outcome vo.AttendanceOutcome) (*entity.Booking, error) {
	logger.WithBooking(bookingID).WithFields(logrus.Fields{"attendance": outcome}).Info("обработка неявки")
	switch outcome {
	case vo.AttendanceCandidateNoShow:
		return e.Cancel(ctx, bookingID, entity.System(), CancelInput{Reason: "candidate_no_show", Attendance: &outcome})
	case vo.AttendanceProfessionalNoShow, vo.AttendanceBothNoShow:
		return e.OpenDispute(ctx, bookingID, entity.System(), DisputeInput{
			Reason:      vo.DisputeReasonNoShow,
			Description: string(outcome),
			Attendance:  &outcome,
		})
	default:
		return nil, apperror.New(apperror.ErrCodeValidation, "исход не является неявкой")
	}
}
