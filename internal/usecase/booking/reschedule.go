package booking

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ignatzorin/consult-backend/internal/domain/entity"
	"github.com/ignatzorin/consult-backend/internal/domain/repository"
	vo "github.com/ignatzorin/consult-backend/internal/domain/valueobject"
	"github.com/ignatzorin/consult-backend/internal/pkg/apperror"
)

type RescheduleInput struct {
	StartAt time.Time
	EndAt   time.Time
}

// RequestReschedule: любой участник предлагает новое время (accepted -> reschedule_pending).
func (e *Engine) RequestReschedule(ctx context.Context, bookingID uuid.UUID, actor entity.Actor, in RescheduleInput) (*entity.Booking, error) {
	if err := validWindow(in.StartAt, in.EndAt, e.now()); err != nil {
		return nil, err
	}
	target := vo.BookingStatusReschedulePending
	return e.run(ctx, Transition{
		BookingID: bookingID,
		Target:    target,
		Actor:     actor,
		Reason:    "reschedule_requested",
		Guard: func(b *entity.Booking) error {
			return allOf(
				func() error { return requireStatus(b, target, vo.BookingStatusAccepted) },
				func() error { return requireParticipant(b, actor, target) },
			)
		},
	}, func(ctx context.Context, tx repository.Tx, b *entity.Booking, out *Outbox) (*entity.Booking, error) {
		requester, _ := actor.UserID()
		start, end := in.StartAt.UTC(), in.EndAt.UTC()
		b.ProposedStartAt = &start
		b.ProposedEndAt = &end
		b.RescheduleRequestedBy = &requester

		out.Annotate("proposed_start_at", start)
		out.Annotate("proposed_end_at", end)
		out.Notify(b.Counterparty(requester), "booking.reschedule_requested", map[string]any{
			"booking_id": b.ID,
			"start_at":   start,
			"end_at":     end,
		})
		return b, nil
	})
}

// ConfirmReschedule: вторая сторона подтверждает предложенное время.
// Повтор с тем же временем ничего не меняет, с другим - TransitionConflictError.
// Для бронирования без подтверждённого переноса - TransitionError.
func (e *Engine) ConfirmReschedule(ctx context.Context, bookingID uuid.UUID, actor entity.Actor, in RescheduleInput) (*entity.Booking, error) {
	target := vo.BookingStatusAccepted
	start, end := in.StartAt.UTC(), in.EndAt.UTC()
	return e.run(ctx, Transition{
		BookingID: bookingID,
		Target:    target,
		Actor:     actor,
		Reason:    "reschedule_confirmed",
		Guard: func(b *entity.Booking) error {
			if err := requireParticipant(b, actor, target); err != nil {
				return err
			}
			if b.Status == vo.BookingStatusAccepted && b.ProposedStartAt == nil {
				if b.RescheduledAt == nil {
					return apperror.NewTransitionError(b.ID, string(b.Status), string(target), "перенос не запрашивался")
				}
				if sameTime(b.StartAt, start) && sameTime(b.EndAt, end) {
					return ErrNoChange
				}
				return &apperror.TransitionConflictError{BookingID: b.ID, Reason: "перенос уже подтверждён с другим временем"}
			}
			if err := requireStatus(b, target, vo.BookingStatusReschedulePending); err != nil {
				return err
			}
			return requireCounterparty(b, actor, target)
		},
	}, func(ctx context.Context, tx repository.Tx, b *entity.Booking, out *Outbox) (*entity.Booking, error) {
		if !sameTime(b.ProposedStartAt, start) || !sameTime(b.ProposedEndAt, end) {
			return nil, apperror.NewTransitionError(b.ID, string(b.Status), string(target), "время не совпадает с предложенным")
		}
		out.Annotate("previous_start_at", b.StartAt)
		b.SetSchedule(start, end)
		b.ClearProposal()
		now := e.now()
		b.RescheduledAt = &now

		out.Annotate("start_at", start)
		out.Annotate("end_at", end)
		for _, id := range b.Participants() {
			out.Notify(id, "booking.rescheduled", map[string]any{
				"booking_id": b.ID,
				"start_at":   start,
				"end_at":     end,
			})
		}
		return b, nil
	})
}

// RejectReschedule: вторая сторона отклоняет перенос, бронирование отменяется
// по правилам отмены относительно исходного времени начала.
func (e *Engine) RejectReschedule(ctx context.Context, bookingID uuid.UUID, actor entity.Actor, reason string) (*entity.Booking, error) {
	target := vo.BookingStatusCancelled
	return e.run(ctx, Transition{
		BookingID: bookingID,
		Target:    target,
		Actor:     actor,
		Reason:    "reschedule_rejected",
		Guard: func(b *entity.Booking) error {
			return allOf(
				func() error { return requireStatus(b, target, vo.BookingStatusReschedulePending) },
				func() error { return requireCounterparty(b, actor, target) },
			)
		},
	}, func(ctx context.Context, tx repository.Tx, b *entity.Booking, out *Outbox) (*entity.Booking, error) {
		b.ClearProposal()
		if reason == "" {
			reason = "перенос отклонён"
		}
		if err := e.settleCancellation(ctx, tx, b, actor, reason, out); err != nil {
			return nil, err
		}
		return b, nil
	})
}

// requireCounterparty: действие доступно только стороне, которая не инициировала перенос.
func requireCounterparty(b *entity.Booking, actor entity.Actor, to vo.BookingStatus) error {
	if err := requireParticipant(b, actor, to); err != nil {
		return err
	}
	id, _ := actor.UserID()
	if b.RescheduleRequestedBy != nil && *b.RescheduleRequestedBy == id {
		return apperror.NewTransitionError(b.ID, string(b.Status), string(to), "перенос подтверждает другая сторона")
	}
	return nil
}

func sameTime(a *time.Time, b time.Time) bool {
	return a != nil && a.Equal(b)
}
