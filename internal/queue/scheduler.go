package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/consult-backend/internal/jobs"
	"github.com/ignatzorin/consult-backend/internal/logger"
)

const dedupePrefix = "jobs:dedupe:"

// JobPublisher - транспорт, в который уходит задача после проверки ключа.
type JobPublisher interface {
	Publish(ctx context.Context, job jobs.Job, delay time.Duration) error
}

// Scheduler ставит задачу не более одного раза на ключ.
// Ключ живёт в Redis до срабатывания задачи плюс запас retention.
type Scheduler struct {
	rdb       redis.Cmdable
	publisher JobPublisher
	retention time.Duration
}

func NewScheduler(rdb redis.Cmdable, publisher JobPublisher, retention time.Duration) *Scheduler {
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	return &Scheduler{rdb: rdb, publisher: publisher, retention: retention}
}

func DedupeKey(key string) string { return dedupePrefix + key }

func (s *Scheduler) Enqueue(ctx context.Context, key string, job jobs.Job) error {
	return s.Schedule(ctx, key, job, 0)
}

func (s *Scheduler) Schedule(ctx context.Context, key string, job jobs.Job, delay time.Duration) error {
	if key == "" {
		return fmt.Errorf("scheduler: пустой ключ задачи %s", job.Type)
	}
	job.Key = key

	fresh, err := s.rdb.SetNX(ctx, DedupeKey(key), string(job.Type), delay+s.retention).Result()
	if err != nil {
		return fmt.Errorf("scheduler: redis setnx %s: %w", key, err)
	}
	if !fresh {
		logger.Get().WithFields(logrus.Fields{
			"job_key":  key,
			"job_type": job.Type,
		}).Debug("scheduler: задача уже поставлена")
		return nil
	}

	if err := s.publisher.Publish(ctx, job, delay); err != nil {
		// ключ снимаем, чтобы повторная постановка не потерялась
		if delErr := s.rdb.Del(ctx, DedupeKey(key)).Err(); delErr != nil {
			logger.Get().WithField("job_key", key).Warnf("scheduler: не удалось снять ключ: %v", delErr)
		}
		return err
	}
	return nil
}
