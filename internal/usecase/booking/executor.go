package booking

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ignatzorin/consult-backend/internal/domain/entity"
	"github.com/ignatzorin/consult-backend/internal/domain/invariant"
	"github.com/ignatzorin/consult-backend/internal/domain/repository"
	vo "github.com/ignatzorin/consult-backend/internal/domain/valueobject"
	"github.com/ignatzorin/consult-backend/internal/logger"
	"github.com/ignatzorin/consult-backend/internal/pkg/apperror"
)

const tracerName = "github.com/ignatzorin/consult-backend/internal/usecase/booking"

// ErrNoChange возвращается, когда переход уже выполнен и повтор ничего не меняет.
var ErrNoChange = errors.New("booking: переход уже выполнен")

// Enforcement управляет пост-проверкой инвариантов. Нулевое значение - полная проверка.
type Enforcement struct {
	skipReason string
}

var EnforceFull = Enforcement{}

// SkipPostCheck отключает проверку инвариантов; причина пишется в аудит.
func SkipPostCheck(reason string) Enforcement {
	if reason == "" {
		reason = "unspecified"
	}
	return Enforcement{skipReason: reason}
}

func (e Enforcement) Skipped() (string, bool) {
	return e.skipReason, e.skipReason != ""
}

// Transition описывает один вызов исполнителя.
type Transition struct {
	BookingID uuid.UUID
	// Target пустой, если статус бронирования не меняется.
	Target      vo.BookingStatus
	Actor       entity.Actor
	Reason      string
	Enforcement Enforcement
	// Guard проверяет статус и актора на заблокированной строке до мутации.
	Guard func(b *entity.Booking) error
}

// Mutation меняет поля бронирования в памяти и связанные строки через tx.
// Статус бронирования и запись строки booking делает исполнитель.
type Mutation[T any] func(ctx context.Context, tx repository.Tx, b *entity.Booking, out *Outbox) (T, error)

// Executor - транзакционная обёртка над всеми переходами.
type Executor struct {
	uow       repository.UnitOfWork
	scheduler Scheduler
	now       func() time.Time
	tracer    trace.Tracer
}

func NewExecutor(uow repository.UnitOfWork, scheduler Scheduler, now func() time.Time) *Executor {
	if now == nil {
		now = time.Now
	}
	return &Executor{
		uow:       uow,
		scheduler: scheduler,
		now:       now,
		tracer:    otel.Tracer(tracerName),
	}
}

func (ex *Executor) Now() time.Time { return ex.now().UTC() }

func (ex *Executor) UnitOfWork() repository.UnitOfWork { return ex.uow }

// Run блокирует строку, выполняет мутацию, пишет аудит, проверяет инварианты и коммитит.
// Если tx не nil, Run участвует в уже открытой транзакции и не коммитит её.
func Run[T any](ctx context.Context, ex *Executor, tx repository.Tx, tr Transition, mutate Mutation[T]) (result T, err error) {
	ctx, span := ex.tracer.Start(ctx, "booking.transition", trace.WithAttributes(
		attribute.String("booking.id", tr.BookingID.String()),
		attribute.String("booking.target", string(tr.Target)),
		attribute.String("booking.actor", tr.Actor.String()),
	))
	defer func() {
		if err != nil && !errors.Is(err, ErrNoChange) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	owned := tx == nil
	if owned {
		tx, err = ex.uow.Begin(ctx)
		if err != nil {
			return result, err
		}
		defer func() {
			if p := recover(); p != nil {
				_ = tx.Rollback()
				panic(p)
			}
		}()
	}

	result, err = apply(ctx, ex, tx, tr, mutate)
	if err != nil {
		if owned {
			if rbErr := tx.Rollback(); rbErr != nil {
				logger.WithBooking(tr.BookingID).WithError(rbErr).Error("не удалось откатить транзакцию перехода")
			}
		}
		return result, err
	}

	if owned {
		if err = tx.Commit(); err != nil {
			var zero T
			return zero, apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось зафиксировать переход")
		}
	}
	return result, nil
}

func apply[T any](ctx context.Context, ex *Executor, tx repository.Tx, tr Transition, mutate Mutation[T]) (T, error) {
	var zero T

	b, err := tx.LockBooking(ctx, tr.BookingID)
	if err != nil {
		return zero, err
	}
	if tr.Guard != nil {
		if err := tr.Guard(b); err != nil {
			return zero, err
		}
	}

	previous := b.Status
	target := tr.Target
	if target == "" {
		target = previous
	}
	if target != previous && !previous.CanTransitionTo(target) {
		return zero, apperror.NewTransitionError(b.ID, string(previous), string(target), "переход не предусмотрен жизненным циклом")
	}

	out := newOutbox(b.ID)
	result, err := mutate(ctx, tx, b, out)
	if err != nil {
		return result, err
	}

	now := ex.Now()
	b.Status = target
	b.Touch(now)
	if err := tx.UpdateBooking(ctx, b); err != nil {
		return zero, err
	}

	skipReason, skipped := tr.Enforcement.Skipped()
	if skipped {
		out.Annotate("invariant_check_skipped", skipReason)
	}
	meta, err := json.Marshal(out.metadata)
	if err != nil {
		return zero, apperror.Wrap(err, apperror.ErrCodeInternal, "не удалось сериализовать metadata аудита")
	}

	record := &entity.AuditRecord{
		ID:             uuid.New(),
		BookingID:      b.ID,
		ActorID:        tr.Actor.UserIDPtr(),
		ActorRole:      string(tr.Actor.Role()),
		PreviousStatus: previous,
		NewStatus:      target,
		Reason:         tr.Reason,
		Metadata:       meta,
		CreatedAt:      now,
	}
	if err := tx.InsertAudit(ctx, record); err != nil {
		return zero, err
	}

	if !skipped {
		snap, err := tx.Snapshot(ctx, b.ID)
		if err != nil {
			return zero, err
		}
		if broken := invariant.Violations(snap); len(broken) > 0 {
			names := invariant.RuleNames(broken)
			logger.WithBooking(b.ID).WithFields(logrus.Fields{
				"from":       previous,
				"to":         target,
				"actor":      tr.Actor.String(),
				"violations": names,
			}).Error("нарушены инварианты бронирования, транзакция отменена")
			return zero, &apperror.StateInvariantError{BookingID: b.ID, Violations: names}
		}
	}

	tx.OnCommit(func(ctx context.Context) {
		out.dispatch(ctx, ex.scheduler, record.ID)
	})

	logger.WithBooking(b.ID).WithFields(logrus.Fields{
		"from":   previous,
		"to":     target,
		"actor":  tr.Actor.String(),
		"reason": tr.Reason,
	}).Info("переход бронирования выполнен")

	return result, nil
}
