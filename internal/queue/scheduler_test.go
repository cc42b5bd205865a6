package queue_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/consult-backend/internal/jobs"
	"github.com/ignatzorin/consult-backend/internal/queue"
)

type published struct {
	job   jobs.Job
	delay time.Duration
}

type fakePublisher struct {
	sent []published
	err  error
}

func (f *fakePublisher) Publish(ctx context.Context, job jobs.Job, delay time.Duration) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, published{job: job, delay: delay})
	return nil
}

func TestScheduler_PublishesOncePerKey(t *testing.T) {
	db, mockRedis := redismock.NewClientMock()
	pub := &fakePublisher{}
	s := queue.NewScheduler(db, pub, time.Hour)

	id := uuid.New()
	key := jobs.Key(jobs.TypeBookingExpire, id)
	delay := 120 * time.Hour

	mockRedis.ExpectSetNX(queue.DedupeKey(key), string(jobs.TypeBookingExpire), delay+time.Hour).SetVal(true)
	mockRedis.ExpectSetNX(queue.DedupeKey(key), string(jobs.TypeBookingExpire), delay+time.Hour).SetVal(false)

	job := jobs.New(jobs.TypeBookingExpire, id)
	require.NoError(t, s.Schedule(context.Background(), key, job, delay))
	require.NoError(t, s.Schedule(context.Background(), key, job, delay))

	require.Len(t, pub.sent, 1)
	assert.Equal(t, key, pub.sent[0].job.Key)
	assert.Equal(t, delay, pub.sent[0].delay)
	assert.NoError(t, mockRedis.ExpectationsWereMet())
}

func TestScheduler_EnqueueHasNoDelay(t *testing.T) {
	db, mockRedis := redismock.NewClientMock()
	pub := &fakePublisher{}
	s := queue.NewScheduler(db, pub, 0)

	id := uuid.New()
	key := jobs.Key(jobs.TypePayoutRelease, id)
	mockRedis.ExpectSetNX(queue.DedupeKey(key), string(jobs.TypePayoutRelease), 24*time.Hour).SetVal(true)

	require.NoError(t, s.Enqueue(context.Background(), key, jobs.New(jobs.TypePayoutRelease, id)))
	require.Len(t, pub.sent, 1)
	assert.Zero(t, pub.sent[0].delay)
	assert.NoError(t, mockRedis.ExpectationsWereMet())
}

func TestScheduler_PublishFailureReleasesKey(t *testing.T) {
	db, mockRedis := redismock.NewClientMock()
	pub := &fakePublisher{err: errors.New("channel closed")}
	s := queue.NewScheduler(db, pub, time.Hour)

	id := uuid.New()
	key := jobs.Key(jobs.TypeQCProcess, id)
	mockRedis.ExpectSetNX(queue.DedupeKey(key), string(jobs.TypeQCProcess), time.Hour).SetVal(true)
	mockRedis.ExpectDel(queue.DedupeKey(key)).SetVal(1)

	err := s.Enqueue(context.Background(), key, jobs.New(jobs.TypeQCProcess, id))
	require.Error(t, err)
	assert.NoError(t, mockRedis.ExpectationsWereMet())
}

func TestScheduler_RedisErrorIsReturned(t *testing.T) {
	db, mockRedis := redismock.NewClientMock()
	pub := &fakePublisher{}
	s := queue.NewScheduler(db, pub, time.Hour)

	key := jobs.Key(jobs.TypeQCTimeout, uuid.New())
	mockRedis.ExpectSetNX(queue.DedupeKey(key), string(jobs.TypeQCTimeout), time.Hour).SetErr(errors.New("connection refused"))

	err := s.Enqueue(context.Background(), key, jobs.New(jobs.TypeQCTimeout, uuid.New()))
	require.Error(t, err)
	assert.Empty(t, pub.sent)
}

func TestScheduler_RejectsEmptyKey(t *testing.T) {
	db, _ := redismock.NewClientMock()
	s := queue.NewScheduler(db, &fakePublisher{}, time.Hour)
	assert.Error(t, s.Enqueue(context.Background(), "", jobs.New(jobs.TypeNotify, uuid.New())))
}
