package booking

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/ignatzorin/consult-backend/internal/domain/entity"
	"github.com/ignatzorin/consult-backend/internal/domain/repository"
	vo "github.com/ignatzorin/consult-backend/internal/domain/valueobject"
	"github.com/ignatzorin/consult-backend/internal/pkg/apperror"
)

// Engine - по одной функции на каждый допустимый переход бронирования.
type Engine struct {
	exec      *Executor
	custodian PaymentCustodian
	tx        repository.Tx
}

type Option func(*engineOptions)

type engineOptions struct {
	now func() time.Time
}

// WithClock подменяет часы (тесты, воспроизведение).
func WithClock(now func() time.Time) Option {
	return func(o *engineOptions) { o.now = now }
}

func NewEngine(uow repository.UnitOfWork, custodian PaymentCustodian, scheduler Scheduler, opts ...Option) *Engine {
	o := engineOptions{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return &Engine{
		exec:      NewExecutor(uow, scheduler, o.now),
		custodian: custodian,
	}
}

// WithTx возвращает копию движка, которая выполняет переходы внутри открытой транзакции.
// Коммит и откат остаются за вызывающим.
func (e *Engine) WithTx(tx repository.Tx) *Engine {
	c := *e
	c.tx = tx
	return &c
}

func (e *Engine) Executor() *Executor { return e.exec }

func (e *Engine) Custodian() PaymentCustodian { return e.custodian }

func (e *Engine) now() time.Time { return e.exec.Now() }

// run - обёртка над Run для переходов, возвращающих бронирование.
func (e *Engine) run(ctx context.Context, tr Transition, mutate Mutation[*entity.Booking]) (*entity.Booking, error) {
	if e.tx == nil && tr.Guard != nil {
		// ранний отказ без открытия транзакции
		snap, err := e.exec.uow.LoadSnapshot(ctx, tr.BookingID)
		if err != nil {
			return nil, err
		}
		if err := tr.Guard(snap.Booking); err != nil {
			if errors.Is(err, ErrNoChange) {
				return snap.Booking, nil
			}
			return nil, err
		}
	}

	b, err := Run(ctx, e.exec, e.tx, tr, mutate)
	if errors.Is(err, ErrNoChange) {
		return e.reload(ctx, tr.BookingID)
	}
	return b, err
}

func (e *Engine) reload(ctx context.Context, id uuid.UUID) (*entity.Booking, error) {
	snap, err := e.snapshot(ctx, id)
	if err != nil {
		return nil, err
	}
	return snap.Booking, nil
}

// inTx выполняет fn в собственной транзакции движка либо в уже открытой.
func (e *Engine) inTx(ctx context.Context, fn func(tx repository.Tx) error) error {
	if e.tx != nil {
		return fn(e.tx)
	}
	tx, err := e.exec.uow.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось зафиксировать транзакцию")
	}
	return nil
}

// guards

func requireStatus(b *entity.Booking, to vo.BookingStatus, allowed ...vo.BookingStatus) error {
	if b.Status.In(allowed...) {
		return nil
	}
	return apperror.NewTransitionError(b.ID, string(b.Status), string(to), "бронирование в неподходящем статусе")
}

func requireSystem(b *entity.Booking, actor entity.Actor, to vo.BookingStatus) error {
	if actor.IsSystem() {
		return nil
	}
	return apperror.NewTransitionError(b.ID, string(b.Status), string(to), "переход выполняется только системой")
}

func requireAdmin(b *entity.Booking, actor entity.Actor, to vo.BookingStatus) error {
	if actor.IsAdmin() {
		return nil
	}
	return apperror.NewTransitionError(b.ID, string(b.Status), string(to), "требуются права администратора")
}

func requireProfessional(b *entity.Booking, actor entity.Actor, to vo.BookingStatus) error {
	if id, ok := actor.UserID(); ok && id == b.ProfessionalID {
		return nil
	}
	return apperror.NewTransitionError(b.ID, string(b.Status), string(to), "действие доступно только профессионалу")
}

func requireParticipant(b *entity.Booking, actor entity.Actor, to vo.BookingStatus) error {
	if id, ok := actor.UserID(); ok && b.IsParticipant(id) {
		return nil
	}
	return apperror.NewTransitionError(b.ID, string(b.Status), string(to), "действие доступно только участникам бронирования")
}

func requireParticipantOrSystem(b *entity.Booking, actor entity.Actor, to vo.BookingStatus) error {
	if actor.IsSystem() {
		return nil
	}
	return requireParticipant(b, actor, to)
}

func allOf(checks ...func() error) error {
	for _, c := range checks {
		if err := c(); err != nil {
			return err
		}
	}
	return nil
}

func validWindow(start, end, now time.Time) error {
	if !end.After(start) {
		return apperror.New(apperror.ErrCodeValidation, "время окончания должно быть позже начала")
	}
	if !start.After(now) {
		return apperror.New(apperror.ErrCodeValidation, "время начала должно быть в будущем")
	}
	return nil
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func timePtr(t time.Time) *time.Time { return &t }
