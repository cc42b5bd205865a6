// Package qc проверяет отчёты профессионалов после звонка и закрывает расчёт по бронированию.
package qc

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/consult-backend/internal/domain/entity"
	"github.com/ignatzorin/consult-backend/internal/domain/repository"
	"github.com/ignatzorin/consult-backend/internal/domain/settlement"
	vo "github.com/ignatzorin/consult-backend/internal/domain/valueobject"
	"github.com/ignatzorin/consult-backend/internal/jobs"
	"github.com/ignatzorin/consult-backend/internal/logger"
	"github.com/ignatzorin/consult-backend/internal/pkg/apperror"
	"github.com/ignatzorin/consult-backend/internal/usecase/booking"
)

// ReviewResult - вердикт внешнего ревьюера.
type ReviewResult struct {
	Passed  bool
	Reasons []string
}

// ContentReviewer - внешняя проверка качества отчёта.
type ContentReviewer interface {
	Review(ctx context.Context, text string, actions []string) (ReviewResult, error)
}

// Notifier доставляет уведомления вне переходов (напоминания).
type Notifier interface {
	Notify(ctx context.Context, userID uuid.UUID, event string, data map[string]any) error
}

type Outcome struct {
	Status  vo.QCStatus
	Reasons []string
}

type Processor struct {
	engine *booking.Engine
	// reviewer может быть nil: тогда решают только локальные правила
	reviewer ContentReviewer
	rules    settlement.ContentRules
	notifier Notifier
}

func NewProcessor(engine *booking.Engine, reviewer ContentReviewer, rules settlement.ContentRules, notifier Notifier) *Processor {
	return &Processor{
		engine:   engine,
		reviewer: reviewer,
		rules:    rules,
		notifier: notifier,
	}
}

func (p *Processor) uow() repository.UnitOfWork { return p.engine.Executor().UnitOfWork() }

// ProcessOutcome проверяет последний отчёт: локальные правила, затем ревьюер.
// Ошибка ревьюера возвращается как есть, решение о повторе за вызывающим.
func (p *Processor) ProcessOutcome(ctx context.Context, bookingID uuid.UUID) (Outcome, error) {
	snap, err := p.uow().LoadSnapshot(ctx, bookingID)
	if err != nil {
		return Outcome{}, err
	}
	feedback := snap.Feedback
	if feedback == nil {
		return Outcome{}, apperror.ErrFeedbackNotFound
	}
	switch {
	case feedback.QCStatus == vo.QCStatusPassed, snap.Booking.Status == vo.BookingStatusCompleted:
		return Outcome{Status: vo.QCStatusPassed}, nil
	case feedback.QCStatus == vo.QCStatusRevise:
		return Outcome{Status: vo.QCStatusRevise, Reasons: feedback.QCReasons}, nil
	case snap.Booking.Status != vo.BookingStatusCompletedPendingFeedback:
		return Outcome{}, apperror.NewTransitionError(bookingID, string(snap.Booking.Status), string(vo.BookingStatusCompleted), "бронирование не ожидает отчёта")
	}

	reasons := p.rules.Check(feedback.Text, feedback.Actions)
	if len(reasons) == 0 && p.reviewer != nil {
		result, err := p.reviewer.Review(ctx, feedback.Text, feedback.Actions)
		if err != nil {
			return Outcome{}, err
		}
		if !result.Passed {
			reasons = result.Reasons
			if len(reasons) == 0 {
				reasons = []string{"reviewer_rejected"}
			}
		}
	}

	if len(reasons) > 0 {
		if err := p.markRevise(ctx, bookingID, reasons); err != nil {
			return Outcome{}, err
		}
		return Outcome{Status: vo.QCStatusRevise, Reasons: reasons}, nil
	}
	if err := p.markPassed(ctx, bookingID); err != nil {
		return Outcome{}, err
	}
	return Outcome{Status: vo.QCStatusPassed}, nil
}

func awaitingFeedback(b *entity.Booking) error {
	if b.Status != vo.BookingStatusCompletedPendingFeedback {
		return booking.ErrNoChange
	}
	return nil
}

func (p *Processor) markRevise(ctx context.Context, bookingID uuid.UUID, reasons []string) error {
	now := p.engine.Executor().Now()
	_, err := booking.Run(ctx, p.engine.Executor(), nil, booking.Transition{
		BookingID: bookingID,
		Actor:     entity.System(),
		Reason:    "qc_revise",
		Guard:     awaitingFeedback,
	}, func(ctx context.Context, tx repository.Tx, b *entity.Booking, out *booking.Outbox) (struct{}, error) {
		feedback, err := tx.GetFeedback(ctx, b.ID)
		if err != nil {
			return struct{}{}, err
		}
		if feedback == nil {
			return struct{}{}, apperror.ErrFeedbackNotFound
		}
		if feedback.QCStatus != vo.QCStatusMissing {
			return struct{}{}, booking.ErrNoChange
		}
		feedback.QCStatus = vo.QCStatusRevise
		feedback.QCReasons = reasons
		feedback.ReviewedAt = &now
		feedback.UpdatedAt = now
		if err := tx.SaveFeedback(ctx, feedback); err != nil {
			return struct{}{}, err
		}

		out.Annotate("qc_status", feedback.QCStatus)
		out.Annotate("qc_reasons", reasons)
		out.Notify(b.ProfessionalID, "qc.revise", map[string]any{"booking_id": b.ID, "reasons": reasons})
		out.Schedule(jobs.Key(jobs.TypeQCTimeout, b.ID), jobs.New(jobs.TypeQCTimeout, b.ID), settlement.RevisionTimeout)
		for _, delay := range settlement.ReminderDelays {
			out.Schedule(jobs.Key(jobs.TypeQCReminder, b.ID, delay.String()), jobs.New(jobs.TypeQCReminder, b.ID), delay)
		}
		return struct{}{}, nil
	})
	if errors.Is(err, booking.ErrNoChange) {
		return nil
	}
	return err
}

// markPassed принимает отчёт, создаёт (или переиспользует) выплату и закрывает бронирование
// одной транзакцией.
func (p *Processor) markPassed(ctx context.Context, bookingID uuid.UUID) (err error) {
	ex := p.engine.Executor()
	tx, err := p.uow().Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback()
			panic(r)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := ex.Now()
	_, err = booking.Run(ctx, ex, tx, booking.Transition{
		BookingID: bookingID,
		Actor:     entity.System(),
		Reason:    "qc_passed",
		Guard:     awaitingFeedback,
	}, func(ctx context.Context, tx repository.Tx, b *entity.Booking, out *booking.Outbox) (struct{}, error) {
		feedback, err := tx.GetFeedback(ctx, b.ID)
		if err != nil {
			return struct{}{}, err
		}
		if feedback == nil {
			return struct{}{}, apperror.ErrFeedbackNotFound
		}
		feedback.QCStatus = vo.QCStatusPassed
		feedback.QCReasons = nil
		feedback.ReviewedAt = &now
		feedback.UpdatedAt = now
		if err := tx.SaveFeedback(ctx, feedback); err != nil {
			return struct{}{}, err
		}

		payout, err := p.ensurePayout(ctx, tx, b, now)
		if err != nil {
			return struct{}{}, err
		}
		if payout.Status == vo.PayoutStatusPending {
			out.Enqueue(jobs.Key(jobs.TypePayoutRelease, b.ID), jobs.New(jobs.TypePayoutRelease, b.ID))
		}
		out.Annotate("payout_status", payout.Status)
		out.Annotate("payout_net_cents", payout.AmountNetCents)
		out.Notify(b.ProfessionalID, "qc.passed", map[string]any{"booking_id": b.ID})
		return struct{}{}, nil
	})
	if errors.Is(err, booking.ErrNoChange) {
		_ = tx.Rollback()
		return nil
	}
	if err != nil {
		return err
	}

	if _, err = p.engine.WithTx(tx).CompleteBooking(ctx, bookingID, entity.System()); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось зафиксировать результат QC")
	}
	return nil
}

// ensurePayout переиспользует существующую выплату: обработка может повторяться.
func (p *Processor) ensurePayout(ctx context.Context, tx repository.Tx, b *entity.Booking, now time.Time) (*entity.Payout, error) {
	payout, err := tx.GetPayout(ctx, b.ID)
	if err != nil || payout != nil {
		return payout, err
	}
	payment, err := tx.GetPayment(ctx, b.ID)
	if err != nil {
		return nil, err
	}
	destination, err := tx.PayoutDestination(ctx, b.ProfessionalID)
	if err != nil {
		return nil, err
	}

	gross := payment.AmountGrossCents
	payout = &entity.Payout{
		ID:             uuid.New(),
		BookingID:      b.ID,
		ProfessionalID: b.ProfessionalID,
		AmountNetCents: settlement.NetPayout(gross, settlement.PlatformFee(gross)),
		Destination:    destination,
		Status:         vo.PayoutStatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if destination == nil {
		reason := "no_payout_destination"
		payout.Status = vo.PayoutStatusBlocked
		payout.BlockReason = &reason
	}
	if err := tx.SavePayout(ctx, payout); err != nil {
		return nil, err
	}
	return payout, nil
}

// HandleReminder напоминает о доработке, пока отчёт в revise.
func (p *Processor) HandleReminder(ctx context.Context, bookingID uuid.UUID) error {
	snap, err := p.uow().LoadSnapshot(ctx, bookingID)
	if err != nil {
		return err
	}
	if snap.Booking.Status != vo.BookingStatusCompletedPendingFeedback || snap.QCStatus() != vo.QCStatusRevise {
		return nil
	}
	if p.notifier == nil {
		return nil
	}
	return p.notifier.Notify(ctx, snap.Booking.ProfessionalID, "qc.reminder", map[string]any{
		"booking_id": bookingID,
		"reasons":    snap.Feedback.QCReasons,
	})
}

func (p *Processor) log(bookingID uuid.UUID) *logrus.Entry {
	return logger.WithBooking(bookingID).WithField("component", "qc")
}
