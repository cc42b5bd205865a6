package booking

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/consult-backend/internal/jobs"
	"github.com/ignatzorin/consult-backend/internal/logger"
)

type outboxItem struct {
	key   string
	job   jobs.Job
	delay time.Duration
}

// Outbox собирает побочные эффекты перехода. Они отправляются только после коммита
// и не могут откатить финансовое изменение.
type Outbox struct {
	bookingID uuid.UUID
	items     []outboxItem
	metadata  map[string]any
}

func newOutbox(bookingID uuid.UUID) *Outbox {
	return &Outbox{bookingID: bookingID, metadata: map[string]any{}}
}

// Notify ставит уведомление пользователю.
func (o *Outbox) Notify(userID uuid.UUID, event string, data map[string]any) {
	o.items = append(o.items, outboxItem{job: jobs.Notification(o.bookingID, userID, event, data)})
}

// Enqueue ставит задачу на немедленное выполнение.
func (o *Outbox) Enqueue(key string, job jobs.Job) {
	o.items = append(o.items, outboxItem{key: key, job: job})
}

// Schedule ставит задачу с задержкой.
func (o *Outbox) Schedule(key string, job jobs.Job, delay time.Duration) {
	o.items = append(o.items, outboxItem{key: key, job: job, delay: delay})
}

// Annotate добавляет поле в metadata записи аудита.
func (o *Outbox) Annotate(key string, value any) {
	o.metadata[key] = value
}

func (o *Outbox) Len() int { return len(o.items) }

// dispatch вызывается после коммита. Ошибки только логируются.
func (o *Outbox) dispatch(ctx context.Context, scheduler Scheduler, auditID uuid.UUID) {
	if scheduler == nil {
		return
	}
	for _, item := range o.items {
		key := item.key
		if key == "" {
			key = jobs.Key(item.job.Type, o.bookingID, item.job.Event, item.job.UserID.String(), auditID.String())
		}
		item.job.Key = key

		var err error
		if item.delay > 0 {
			err = scheduler.Schedule(ctx, key, item.job, item.delay)
		} else {
			err = scheduler.Enqueue(ctx, key, item.job)
		}
		if err != nil {
			logger.WithBooking(o.bookingID).WithFields(logrus.Fields{
				"job_key": key,
				"error":   err.Error(),
			}).Warn("post-commit задача не поставлена")
		}
	}
}
