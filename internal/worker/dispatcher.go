// Package worker исполняет отложенные задачи бронирований.
package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/consult-backend/internal/domain/entity"
	vo "github.com/ignatzorin/consult-backend/internal/domain/valueobject"
	"github.com/ignatzorin/consult-backend/internal/jobs"
	"github.com/ignatzorin/consult-backend/internal/logger"
	"github.com/ignatzorin/consult-backend/internal/pkg/apperror"
	"github.com/ignatzorin/consult-backend/internal/usecase/booking"
	"github.com/ignatzorin/consult-backend/internal/usecase/qc"
)

// Notifier доставляет уведомление пользователю.
type Notifier interface {
	Notify(ctx context.Context, userID uuid.UUID, event string, data map[string]any) error
}

type Dispatcher struct {
	engine    *booking.Engine
	processor *qc.Processor
	notifier  Notifier
}

func NewDispatcher(engine *booking.Engine, processor *qc.Processor, notifier Notifier) *Dispatcher {
	return &Dispatcher{engine: engine, processor: processor, notifier: notifier}
}

// Run читает доставки до закрытия канала или отмены контекста.
func (d *Dispatcher) Run(ctx context.Context, deliveries <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-deliveries:
			if !ok {
				return
			}
			d.consume(ctx, msg)
		}
	}
}

func (d *Dispatcher) consume(ctx context.Context, msg amqp.Delivery) {
	log := logger.Get().WithField("message_id", msg.MessageId)

	var job jobs.Job
	if err := json.Unmarshal(msg.Body, &job); err != nil {
		log.WithError(err).Error("worker: некорректное сообщение")
		_ = msg.Nack(false, false)
		return
	}

	log = log.WithFields(logrus.Fields{
		"job_type":   job.Type,
		"job_key":    job.Key,
		"booking_id": job.BookingID.String(),
	})

	if err := d.safeHandle(ctx, job); err != nil {
		// повтор определяется DLX-политикой брокера
		log.WithError(err).Error("worker: задача завершилась ошибкой")
		_ = msg.Nack(false, false)
		return
	}
	if err := msg.Ack(false); err != nil {
		log.WithError(err).Warn("worker: ack не прошёл")
	}
}

func (d *Dispatcher) safeHandle(ctx context.Context, job jobs.Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("worker: panic: %v", r)
		}
	}()
	return d.Handle(ctx, job)
}

// Handle выполняет одну задачу. Устаревшие задачи (переход уже невозможен) не считаются ошибкой.
func (d *Dispatcher) Handle(ctx context.Context, job jobs.Job) error {
	err := d.route(ctx, job)
	if err != nil && apperror.IsTransition(err) {
		logger.WithBooking(job.BookingID).WithFields(logrus.Fields{
			"job_type": job.Type,
			"reason":   err.Error(),
		}).Info("worker: задача устарела, пропускаем")
		return nil
	}
	return err
}

func (d *Dispatcher) route(ctx context.Context, job jobs.Job) error {
	system := entity.System()

	switch job.Type {
	case jobs.TypeBookingExpire:
		_, err := d.engine.Expire(ctx, job.BookingID, system)
		return err
	case jobs.TypeBookingNoShow:
		outcome, err := vo.NewAttendanceOutcome(job.Attendance)
		if err != nil {
			return err
		}
		_, err = d.engine.RecordNoShow(ctx, job.BookingID, outcome)
		return err
	case jobs.TypeQCProcess:
		_, err := d.processor.ProcessOutcome(ctx, job.BookingID)
		return err
	case jobs.TypeQCTimeout:
		return d.processor.HandleTimeout(ctx, job.BookingID)
	case jobs.TypeQCReminder:
		return d.processor.HandleReminder(ctx, job.BookingID)
	case jobs.TypePayoutRelease:
		_, err := d.engine.ReleasePayout(ctx, job.BookingID, system)
		return err
	case jobs.TypeNotify:
		if d.notifier == nil {
			return nil
		}
		return d.notifier.Notify(ctx, job.UserID, job.Event, job.Data)
	default:
		return fmt.Errorf("worker: неизвестный тип задачи %q", job.Type)
	}
}
