package booking

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/ignatzorin/consult-backend/internal/domain/entity"
	"github.com/ignatzorin/consult-backend/internal/domain/repository"
	vo "github.com/ignatzorin/consult-backend/internal/domain/valueobject"
	"github.com/ignatzorin/consult-backend/internal/jobs"
	"github.com/ignatzorin/consult-backend/internal/pkg/apperror"
)

// CompleteCall фиксирует завершение звонка. Неявки сюда не попадают, для них RecordNoShow.
func (e *Engine) CompleteCall(ctx context.Context, bookingID uuid.UUID, actor entity.Actor, attendance vo.AttendanceOutcome) (*entity.Booking, error) {
	if attendance != vo.AttendanceUnknown && attendance != vo.AttendanceBothJoined {
		return nil, apperror.New(apperror.ErrCodeValidation, "неявка обрабатывается отменой или спором")
	}
	target := vo.BookingStatusCompletedPendingFeedback
	return e.run(ctx, Transition{
		BookingID: bookingID,
		Target:    target,
		Actor:     actor,
		Reason:    "call_completed",
		Guard: func(b *entity.Booking) error {
			return allOf(
				func() error { return requireStatus(b, target, vo.BookingStatusAccepted) },
				func() error { return requireSystem(b, actor, target) },
			)
		},
	}, func(ctx context.Context, tx repository.Tx, b *entity.Booking, out *Outbox) (*entity.Booking, error) {
		b.Attendance = attendance
		out.Annotate("attendance", attendance)
		out.Notify(b.ProfessionalID, "booking.feedback_required", map[string]any{"booking_id": b.ID})
		return b, nil
	})
}

type FeedbackInput struct {
	Text    string
	Actions []string
}

// SubmitFeedback сохраняет отчёт профессионала и ставит его на проверку. Статус не меняется.
func (e *Engine) SubmitFeedback(ctx context.Context, bookingID uuid.UUID, actor entity.Actor, in FeedbackInput) (*entity.CallFeedback, error) {
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return nil, apperror.New(apperror.ErrCodeValidation, "текст отчёта обязателен")
	}
	return Run(ctx, e.exec, e.tx, Transition{
		BookingID: bookingID,
		Actor:     actor,
		Reason:    "feedback_submitted",
		Guard: func(b *entity.Booking) error {
			return allOf(
				func() error { return requireStatus(b, b.Status, vo.BookingStatusCompletedPendingFeedback) },
				func() error { return requireProfessional(b, actor, b.Status) },
			)
		},
	}, func(ctx context.Context, tx repository.Tx, b *entity.Booking, out *Outbox) (*entity.CallFeedback, error) {
		feedback, err := tx.GetFeedback(ctx, b.ID)
		if err != nil {
			return nil, err
		}
		if feedback != nil && feedback.QCStatus == vo.QCStatusPassed {
			return nil, apperror.NewTransitionError(b.ID, string(b.Status), string(b.Status), "отчёт уже принят")
		}

		now := e.now()
		if feedback == nil {
			feedback = &entity.CallFeedback{
				ID:             uuid.New(),
				BookingID:      b.ID,
				ProfessionalID: b.ProfessionalID,
			}
		}
		feedback.Text = text
		feedback.Actions = normalizeActions(in.Actions)
		feedback.QCStatus = vo.QCStatusMissing
		feedback.QCReasons = nil
		feedback.ReviewedAt = nil
		feedback.SubmittedAt = now
		feedback.UpdatedAt = now
		if err := tx.SaveFeedback(ctx, feedback); err != nil {
			return nil, err
		}

		out.Annotate("actions", len(feedback.Actions))
		out.Enqueue(
			jobs.Key(jobs.TypeQCProcess, b.ID, strconv.FormatInt(now.UnixNano(), 10)),
			jobs.New(jobs.TypeQCProcess, b.ID),
		)
		return feedback.Clone(), nil
	})
}

func normalizeActions(actions []string) []string {
	result := make([]string, 0, len(actions))
	for _, a := range actions {
		if a = strings.TrimSpace(a); a != "" {
			result = append(result, a)
		}
	}
	return result
}

// CompleteBooking закрывает бронирование после принятого отчёта. Инвариант требует QC passed.
func (e *Engine) CompleteBooking(ctx context.Context, bookingID uuid.UUID, actor entity.Actor) (*entity.Booking, error) {
	target := vo.BookingStatusCompleted
	return e.run(ctx, Transition{
		BookingID: bookingID,
		Target:    target,
		Actor:     actor,
		Reason:    "booking_completed",
		Guard: func(b *entity.Booking) error {
			return allOf(
				func() error { return requireStatus(b, target, vo.BookingStatusCompletedPendingFeedback) },
				func() error { return requireSystem(b, actor, target) },
			)
		},
	}, func(ctx context.Context, tx repository.Tx, b *entity.Booking, out *Outbox) (*entity.Booking, error) {
		b.CompletedAt = timePtr(e.now())
		for _, id := range b.Participants() {
			out.Notify(id, "booking.completed", map[string]any{"booking_id": b.ID})
		}
		return b, nil
	})
}

// ReleasePayout переводит ожидающую выплату профессионалу. Повтор для оплаченной выплаты ничего не делает.
func (e *Engine) ReleasePayout(ctx context.Context, bookingID uuid.UUID, actor entity.Actor) (*entity.Payout, error) {
	payout, err := Run(ctx, e.exec, e.tx, Transition{
		BookingID: bookingID,
		Actor:     actor,
		Reason:    "payout_released",
		Guard: func(b *entity.Booking) error {
			return allOf(
				func() error { return requireSystem(b, actor, b.Status) },
				func() error {
					return requireStatus(b, b.Status, vo.BookingStatusCompleted, vo.BookingStatusCancelled)
				},
			)
		},
	}, func(ctx context.Context, tx repository.Tx, b *entity.Booking, out *Outbox) (*entity.Payout, error) {
		payout, err := tx.GetPayout(ctx, b.ID)
		if err != nil {
			return nil, err
		}
		switch {
		case payout == nil:
			return nil, apperror.NewTransitionError(b.ID, string(b.Status), "", "выплата не создана")
		case payout.Status == vo.PayoutStatusPaid:
			return nil, ErrNoChange
		case payout.Status == vo.PayoutStatusBlocked:
			return nil, apperror.NewTransitionError(b.ID, string(b.Status), "", "выплата заблокирована")
		case payout.Destination == nil:
			return nil, apperror.NewTransitionError(b.ID, string(b.Status), "", "нет реквизитов для выплаты")
		}

		payment, err := tx.GetPayment(ctx, b.ID)
		if err != nil {
			return nil, err
		}
		if !payment.Status.In(vo.PaymentStatusHeld, vo.PaymentStatusReleased) {
			return nil, apperror.NewTransitionError(b.ID, string(b.Status), "", "оплата в статусе "+string(payment.Status))
		}

		transferRef, err := e.custodian.Transfer(ctx, payout.AmountNetCents, *payout.Destination, payment.ExternalRef)
		if err != nil {
			return nil, err
		}

		now := e.now()
		payment.Status = vo.PaymentStatusReleased
		payment.UpdatedAt = now
		if err := tx.UpdatePayment(ctx, payment); err != nil {
			return nil, err
		}
		payout.Status = vo.PayoutStatusPaid
		payout.TransferRef = &transferRef
		payout.PaidAt = timePtr(now)
		payout.UpdatedAt = now
		if err := tx.SavePayout(ctx, payout); err != nil {
			return nil, err
		}

		out.Annotate("transfer_ref", transferRef)
		out.Annotate("payout_net_cents", payout.AmountNetCents)
		out.Notify(b.ProfessionalID, "payout.paid", map[string]any{
			"booking_id":   b.ID,
			"amount_cents": payout.AmountNetCents,
		})
		return payout.Clone(), nil
	})
	if errors.Is(err, ErrNoChange) {
		snap, err := e.snapshot(ctx, bookingID)
		if err != nil {
			return nil, err
		}
		return snap.Payout, nil
	}
	return payout, err
}
