package qc

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/consult-backend/internal/domain/entity"
	"github.com/ignatzorin/consult-backend/internal/domain/repository"
	"github.com/ignatzorin/consult-backend/internal/domain/settlement"
	vo "github.com/ignatzorin/consult-backend/internal/domain/valueobject"
	"github.com/ignatzorin/consult-backend/internal/pkg/apperror"
	"github.com/ignatzorin/consult-backend/internal/usecase/booking"
)

const (
	feeSourceSettled  = "settled"
	feeSourceEstimate = "estimate"
)

// HandleTimeout срабатывает через 7 дней после revise: остаток после комиссии эквайринга
// делится пополам между кандидатом и профессионалом.
func (p *Processor) HandleTimeout(ctx context.Context, bookingID uuid.UUID) error {
	snap, err := p.uow().LoadSnapshot(ctx, bookingID)
	if err != nil {
		return err
	}
	b := snap.Booking
	if b.Status.In(vo.BookingStatusCompleted, vo.BookingStatusRefunded) || snap.QCStatus() == vo.QCStatusPassed {
		return nil
	}
	if b.Status != vo.BookingStatusCompletedPendingFeedback {
		p.log(bookingID).WithField("status", b.Status).Warn("таймаут QC для бронирования вне ожидания отчёта, пропуск")
		return nil
	}
	if snap.Payment == nil {
		return apperror.ErrPaymentNotFound
	}

	gross := snap.Payment.AmountGrossCents
	fee, feeSource := p.processorFee(ctx, bookingID, snap.Payment)
	net, share := settlement.SplitShare(gross, fee)

	if share > 0 {
		if err := p.issueTimeoutRefund(ctx, bookingID, share); err != nil {
			return err
		}
	}

	custodian := p.engine.Custodian()
	_, err = booking.Run(ctx, p.engine.Executor(), nil, booking.Transition{
		BookingID:   bookingID,
		Target:      vo.BookingStatusCompleted,
		Actor:       entity.System(),
		Reason:      "qc_revision_timeout",
		Enforcement: booking.SkipPostCheck("qc_revision_timeout"),
		Guard:       awaitingFeedback,
	}, func(ctx context.Context, tx repository.Tx, b *entity.Booking, out *booking.Outbox) (struct{}, error) {
		feedback, err := tx.GetFeedback(ctx, b.ID)
		if err != nil {
			return struct{}{}, err
		}
		if feedback != nil && feedback.QCStatus == vo.QCStatusPassed {
			return struct{}{}, booking.ErrNoChange
		}
		payment, err := tx.GetPayment(ctx, b.ID)
		if err != nil {
			return struct{}{}, err
		}
		if payment.Status != vo.PaymentStatusHeld {
			return struct{}{}, apperror.NewTransitionError(b.ID, string(b.Status), string(vo.BookingStatusCompleted), "средства не удерживаются")
		}
		destination, err := tx.PayoutDestination(ctx, b.ProfessionalID)
		if err != nil {
			return struct{}{}, err
		}

		var refundRef, transferRef string
		if share > 0 {
			if destination != nil && payment.ExternalRef == "" {
				return struct{}{}, apperror.New(apperror.ErrCodeInternal, "перевод профессионалу невозможен: исходный платёж не найден")
			}
			if payment.RefundRef == nil {
				return struct{}{}, apperror.New(apperror.ErrCodeInternal, "возврат кандидату не зафиксирован")
			}
			refundRef = *payment.RefundRef
			if payment.RefundedAmountCents != share {
				p.log(bookingID).WithFields(logrus.Fields{
					"refunded_cents": payment.RefundedAmountCents,
					"share_cents":    share,
				}).Warn("доля пересчитана после возврата, используется зафиксированная сумма")
				share = payment.RefundedAmountCents
			}
			if destination != nil {
				if transferRef, err = custodian.Transfer(ctx, share, *destination, payment.ExternalRef); err != nil {
					return struct{}{}, err
				}
			}
		}

		now := p.engine.Executor().Now()
		payment.Status = vo.PaymentStatusPartiallyRefunded
		payment.RefundedAmountCents = share
		payment.UpdatedAt = now
		if err := tx.UpdatePayment(ctx, payment); err != nil {
			return struct{}{}, err
		}
		b.CompletedAt = &now
		b.RefundedAt = &now

		out.Annotate("gross_cents", gross)
		out.Annotate("processor_fee_cents", fee)
		out.Annotate("fee_source", feeSource)
		out.Annotate("net_cents", net)
		out.Annotate("share_cents", share)
		out.Annotate("refund_ref", refundRef)
		out.Annotate("transfer_ref", transferRef)
		for _, id := range b.Participants() {
			out.Notify(id, "booking.settled", map[string]any{
				"booking_id":  b.ID,
				"share_cents": share,
			})
		}
		return struct{}{}, nil
	})
	if errors.Is(err, booking.ErrNoChange) {
		return nil
	}
	return err
}

// issueTimeoutRefund возвращает кандидату его долю отдельной транзакцией до перевода профессионалу.
// Зафиксированный RefundRef исключает повторный возврат, если перевод упал и задача повторяется.
func (p *Processor) issueTimeoutRefund(ctx context.Context, bookingID uuid.UUID, share int64) error {
	custodian := p.engine.Custodian()
	_, err := booking.Run(ctx, p.engine.Executor(), nil, booking.Transition{
		BookingID: bookingID,
		Actor:     entity.System(),
		Reason:    "qc_timeout_refund_issued",
		Guard:     awaitingFeedback,
	}, func(ctx context.Context, tx repository.Tx, b *entity.Booking, out *booking.Outbox) (struct{}, error) {
		payment, err := tx.GetPayment(ctx, b.ID)
		if err != nil {
			return struct{}{}, err
		}
		if payment.RefundRef != nil {
			return struct{}{}, booking.ErrNoChange
		}
		if payment.Status != vo.PaymentStatusHeld {
			return struct{}{}, apperror.NewTransitionError(b.ID, string(b.Status), string(vo.BookingStatusCompleted), "средства не удерживаются")
		}
		destination, err := tx.PayoutDestination(ctx, b.ProfessionalID)
		if err != nil {
			return struct{}{}, err
		}
		if destination != nil && payment.ExternalRef == "" {
			return struct{}{}, apperror.New(apperror.ErrCodeInternal, "перевод профессионалу невозможен: исходный платёж не найден")
		}

		ref, err := custodian.Refund(ctx, payment.ExternalRef, share)
		if err != nil {
			return struct{}{}, err
		}
		payment.RefundedAmountCents = share
		payment.RefundRef = &ref
		payment.UpdatedAt = p.engine.Executor().Now()
		if err := tx.UpdatePayment(ctx, payment); err != nil {
			return struct{}{}, err
		}
		out.Annotate("share_cents", share)
		out.Annotate("refund_ref", ref)
		return struct{}{}, nil
	})
	if errors.Is(err, booking.ErrNoChange) {
		return nil
	}
	return err
}

// processorFee берёт фактическую комиссию из расчёта кастодиана, иначе оценку.
func (p *Processor) processorFee(ctx context.Context, bookingID uuid.UUID, payment *entity.Payment) (int64, string) {
	if payment.ExternalRef != "" {
		fee, err := p.engine.Custodian().SettledFee(ctx, payment.ExternalRef)
		if err == nil {
			return fee, feeSourceSettled
		}
		p.log(bookingID).WithFields(logrus.Fields{
			"payment_ref": payment.ExternalRef,
			"error":       err.Error(),
		}).Warn("фактическая комиссия недоступна, используется оценка")
	}
	return settlement.EstimateProcessorFee(payment.AmountGrossCents), feeSourceEstimate
}
