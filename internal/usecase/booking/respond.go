package booking

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/ignatzorin/consult-backend/internal/domain/entity"
	"github.com/ignatzorin/consult-backend/internal/domain/repository"
	vo "github.com/ignatzorin/consult-backend/internal/domain/valueobject"
	"github.com/ignatzorin/consult-backend/internal/logger"
	"github.com/ignatzorin/consult-backend/internal/pkg/apperror"
)

type AcceptInput struct {
	StartAt time.Time
	EndAt   time.Time
	// PendingIntegrations: календарь или комната ещё не готовы.
	PendingIntegrations bool
}

// Accept: профессионал принимает запрос, оплата захватывается (authorized -> held).
func (e *Engine) Accept(ctx context.Context, bookingID uuid.UUID, actor entity.Actor, in AcceptInput) (*entity.Booking, error) {
	if err := validWindow(in.StartAt, in.EndAt, e.now()); err != nil {
		return nil, err
	}
	target := vo.BookingStatusAccepted
	if in.PendingIntegrations {
		target = vo.BookingStatusAcceptedPendingIntegrations
	}

	var captureErr error
	b, err := e.run(ctx, Transition{
		BookingID: bookingID,
		Target:    target,
		Actor:     actor,
		Reason:    "booking_accepted",
		Guard: func(b *entity.Booking) error {
			return allOf(
				func() error { return requireStatus(b, target, vo.BookingStatusRequested) },
				func() error { return requireProfessional(b, actor, target) },
			)
		},
	}, func(ctx context.Context, tx repository.Tx, b *entity.Booking, out *Outbox) (*entity.Booking, error) {
		payment, err := tx.GetPayment(ctx, b.ID)
		if err != nil {
			return nil, err
		}
		if !payment.Status.In(vo.PaymentStatusAuthorized, vo.PaymentStatusCaptureFailed) {
			return nil, apperror.NewTransitionError(b.ID, string(b.Status), string(target), "оплата не в статусе авторизации")
		}
		if err := e.custodian.Capture(ctx, payment.ExternalRef); err != nil {
			captureErr = err
			return nil, err
		}
		payment.Status = vo.PaymentStatusHeld
		payment.UpdatedAt = e.now()
		if err := tx.UpdatePayment(ctx, payment); err != nil {
			return nil, err
		}

		b.SetSchedule(in.StartAt.UTC(), in.EndAt.UTC())
		b.ExpiresAt = nil

		out.Notify(b.CandidateID, "booking.accepted", map[string]any{
			"booking_id": b.ID,
			"start_at":   in.StartAt.UTC(),
			"end_at":     in.EndAt.UTC(),
		})
		return b, nil
	})
	if captureErr != nil && errors.Is(err, captureErr) {
		e.markCaptureFailed(ctx, bookingID, actor, captureErr)
	}
	return b, err
}

// markCaptureFailed фиксирует неудачный захват отдельной транзакцией; бронирование остаётся requested.
func (e *Engine) markCaptureFailed(ctx context.Context, bookingID uuid.UUID, actor entity.Actor, cause error) {
	if e.tx != nil {
		return
	}
	_, err := Run(context.WithoutCancel(ctx), e.exec, nil, Transition{
		BookingID: bookingID,
		Actor:     actor,
		Reason:    "payment_capture_failed",
		Guard: func(b *entity.Booking) error {
			if b.Status != vo.BookingStatusRequested {
				return ErrNoChange
			}
			return nil
		},
	}, func(ctx context.Context, tx repository.Tx, b *entity.Booking, out *Outbox) (struct{}, error) {
		payment, err := tx.GetPayment(ctx, b.ID)
		if err != nil {
			return struct{}{}, err
		}
		if payment.Status != vo.PaymentStatusAuthorized {
			return struct{}{}, ErrNoChange
		}
		payment.Status = vo.PaymentStatusCaptureFailed
		payment.UpdatedAt = e.now()
		out.Annotate("capture_error", cause.Error())
		return struct{}{}, tx.UpdatePayment(ctx, payment)
	})
	if err != nil && !errors.Is(err, ErrNoChange) {
		logger.WithBooking(bookingID).WithError(err).Error("не удалось отметить capture_failed")
	}
}

// Decline: профессионал отказывается, авторизация снимается.
func (e *Engine) Decline(ctx context.Context, bookingID uuid.UUID, actor entity.Actor, reason string) (*entity.Booking, error) {
	target := vo.BookingStatusDeclined
	return e.run(ctx, Transition{
		BookingID: bookingID,
		Target:    target,
		Actor:     actor,
		Reason:    "booking_declined",
		Guard: func(b *entity.Booking) error {
			return allOf(
				func() error { return requireStatus(b, target, vo.BookingStatusRequested) },
				func() error { return requireProfessional(b, actor, target) },
			)
		},
	}, func(ctx context.Context, tx repository.Tx, b *entity.Booking, out *Outbox) (*entity.Booking, error) {
		if err := e.voidAuthorization(ctx, tx, b, out); err != nil {
			return nil, err
		}
		b.DeclineReason = strPtr(reason)
		b.DeclinedAt = timePtr(e.now())
		b.ExpiresAt = nil
		out.Notify(b.CandidateID, "booking.declined", map[string]any{"booking_id": b.ID, "reason": reason})
		return b, nil
	})
}

// Expire: система закрывает запрос без ответа. Повторный вызов для expired ничего не пишет.
func (e *Engine) Expire(ctx context.Context, bookingID uuid.UUID, actor entity.Actor) (*entity.Booking, error) {
	target := vo.BookingStatusExpired
	now := e.now()
	return e.run(ctx, Transition{
		BookingID: bookingID,
		Target:    target,
		Actor:     actor,
		Reason:    "booking_expired",
		Guard: func(b *entity.Booking) error {
			if err := requireSystem(b, actor, target); err != nil {
				return err
			}
			if b.Status == vo.BookingStatusExpired {
				return ErrNoChange
			}
			if err := requireStatus(b, target, vo.BookingStatusRequested); err != nil {
				return err
			}
			if b.ExpiresAt != nil && now.Before(*b.ExpiresAt) {
				return apperror.NewTransitionError(b.ID, string(b.Status), string(target), "срок ответа на запрос ещё не истёк")
			}
			return nil
		},
	}, func(ctx context.Context, tx repository.Tx, b *entity.Booking, out *Outbox) (*entity.Booking, error) {
		if err := e.voidAuthorization(ctx, tx, b, out); err != nil {
			return nil, err
		}
		b.ExpiresAt = nil
		for _, id := range b.Participants() {
			out.Notify(id, "booking.expired", map[string]any{"booking_id": b.ID})
		}
		return b, nil
	})
}

// voidAuthorization снимает холд у кастодиана и переводит оплату в cancelled.
func (e *Engine) voidAuthorization(ctx context.Context, tx repository.Tx, b *entity.Booking, out *Outbox) error {
	payment, err := tx.GetPayment(ctx, b.ID)
	if err != nil {
		return err
	}
	if !payment.Status.In(vo.PaymentStatusAuthorized, vo.PaymentStatusCaptureFailed) {
		return apperror.NewTransitionError(b.ID, string(b.Status), "", "оплата уже не в статусе авторизации")
	}
	if err := e.custodian.CancelAuthorization(ctx, payment.ExternalRef); err != nil {
		return err
	}
	payment.Status = vo.PaymentStatusCancelled
	payment.UpdatedAt = e.now()
	out.Annotate("payment_status", payment.Status)
	return tx.UpdatePayment(ctx, payment)
}

// MarkIntegrationsPending: интеграции (календарь, комната) отвалились после принятия.
func (e *Engine) MarkIntegrationsPending(ctx context.Context, bookingID uuid.UUID, actor entity.Actor) (*entity.Booking, error) {
	return e.toggleIntegrations(ctx, bookingID, actor, vo.BookingStatusAccepted, vo.BookingStatusAcceptedPendingIntegrations)
}

// MarkIntegrationsReady: интеграции готовы, бронирование снова accepted.
func (e *Engine) MarkIntegrationsReady(ctx context.Context, bookingID uuid.UUID, actor entity.Actor) (*entity.Booking, error) {
	return e.toggleIntegrations(ctx, bookingID, actor, vo.BookingStatusAcceptedPendingIntegrations, vo.BookingStatusAccepted)
}

func (e *Engine) toggleIntegrations(ctx context.Context, bookingID uuid.UUID, actor entity.Actor, from, to vo.BookingStatus) (*entity.Booking, error) {
	return e.run(ctx, Transition{
		BookingID: bookingID,
		Target:    to,
		Actor:     actor,
		Reason:    "integrations_" + string(to),
		Guard: func(b *entity.Booking) error {
			return allOf(
				func() error { return requireStatus(b, to, from) },
				func() error { return requireSystem(b, actor, to) },
			)
		},
	}, func(ctx context.Context, tx repository.Tx, b *entity.Booking, out *Outbox) (*entity.Booking, error) {
		return b, nil
	})
}
