package worker_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/consult-backend/internal/domain/entity"
	"github.com/ignatzorin/consult-backend/internal/domain/settlement"
	vo "github.com/ignatzorin/consult-backend/internal/domain/valueobject"
	"github.com/ignatzorin/consult-backend/internal/infrastructure/persistence"
	"github.com/ignatzorin/consult-backend/internal/jobs"
	"github.com/ignatzorin/consult-backend/internal/usecase/booking"
	"github.com/ignatzorin/consult-backend/internal/usecase/qc"
	"github.com/ignatzorin/consult-backend/internal/worker"
)

type mockCustodian struct {
	mock.Mock
}

func (m *mockCustodian) Authorize(ctx context.Context, amount vo.Money, source string) (string, error) {
	args := m.Called(ctx, amount, source)
	return args.String(0), args.Error(1)
}

func (m *mockCustodian) Capture(ctx context.Context, ref string) error {
	return m.Called(ctx, ref).Error(0)
}

func (m *mockCustodian) CancelAuthorization(ctx context.Context, ref string) error {
	return m.Called(ctx, ref).Error(0)
}

func (m *mockCustodian) Refund(ctx context.Context, ref string, amountCents int64) (string, error) {
	args := m.Called(ctx, ref, amountCents)
	return args.String(0), args.Error(1)
}

func (m *mockCustodian) Transfer(ctx context.Context, amountCents int64, destination, sourceCharge string) (string, error) {
	args := m.Called(ctx, amountCents, destination, sourceCharge)
	return args.String(0), args.Error(1)
}

func (m *mockCustodian) SettledFee(ctx context.Context, ref string) (int64, error) {
	args := m.Called(ctx, ref)
	return args.Get(0).(int64), args.Error(1)
}

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) Notify(ctx context.Context, userID uuid.UUID, event string, data map[string]any) error {
	return m.Called(ctx, userID, event, data).Error(0)
}

type nopScheduler struct{}

func (nopScheduler) Enqueue(ctx context.Context, key string, job jobs.Job) error { return nil }

func (nopScheduler) Schedule(ctx context.Context, key string, job jobs.Job, delay time.Duration) error {
	return nil
}

type fakeAcknowledger struct {
	mu     sync.Mutex
	acked  []uint64
	nacked []uint64
}

func (a *fakeAcknowledger) Ack(tag uint64, multiple bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.acked = append(a.acked, tag)
	return nil
}

func (a *fakeAcknowledger) Nack(tag uint64, multiple, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nacked = append(a.nacked, tag)
	return nil
}

func (a *fakeAcknowledger) Reject(tag uint64, requeue bool) error {
	return a.Nack(tag, false, requeue)
}

type fixture struct {
	uow        *persistence.MemoryUnitOfWork
	custodian  *mockCustodian
	notifier   *mockNotifier
	engine     *booking.Engine
	dispatcher *worker.Dispatcher
	clock      time.Time
	candidate  uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		uow:       persistence.NewMemoryUnitOfWork(),
		custodian: &mockCustodian{},
		notifier:  &mockNotifier{},
		clock:     time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC),
		candidate: uuid.New(),
	}
	f.engine = booking.NewEngine(f.uow, f.custodian, nopScheduler{}, booking.WithClock(func() time.Time { return f.clock }))
	processor := qc.NewProcessor(f.engine, nil, settlement.DefaultContentRules(), f.notifier)
	f.dispatcher = worker.NewDispatcher(f.engine, processor, f.notifier)
	return f
}

func (f *fixture) requested(t *testing.T) *entity.Booking {
	t.Helper()
	f.custodian.On("Authorize", mock.Anything, mock.Anything, "tokn_worker").Return("chrg_worker", nil).Once()
	b, err := f.engine.Request(context.Background(), entity.Party(f.candidate, entity.RoleCandidate), booking.RequestInput{
		ProfessionalID: uuid.New(),
		PriceCents:     5000,
		Currency:       "THB",
		PaymentSource:  "tokn_worker",
	})
	require.NoError(t, err)
	return b
}

func (f *fixture) status(t *testing.T, id uuid.UUID) vo.BookingStatus {
	t.Helper()
	snap, err := f.uow.LoadSnapshot(context.Background(), id)
	require.NoError(t, err)
	return snap.Booking.Status
}

func TestDispatcher_ExpireAfterDeadline(t *testing.T) {
	f := newFixture(t)
	b := f.requested(t)
	f.custodian.On("CancelAuthorization", mock.Anything, "chrg_worker").Return(nil).Once()

	f.clock = f.clock.Add(settlement.RequestTTL + time.Minute)
	err := f.dispatcher.Handle(context.Background(), jobs.New(jobs.TypeBookingExpire, b.ID))

	require.NoError(t, err)
	assert.Equal(t, vo.BookingStatusExpired, f.status(t, b.ID))
	f.custodian.AssertExpectations(t)
}

func TestDispatcher_StaleExpireIsAcknowledged(t *testing.T) {
	f := newFixture(t)
	b := f.requested(t)

	err := f.dispatcher.Handle(context.Background(), jobs.New(jobs.TypeBookingExpire, b.ID))

	require.NoError(t, err)
	assert.Equal(t, vo.BookingStatusRequested, f.status(t, b.ID))
	f.custodian.AssertNotCalled(t, "CancelAuthorization", mock.Anything, mock.Anything)
}

func TestDispatcher_NotifyRoutesToNotifier(t *testing.T) {
	f := newFixture(t)
	userID := uuid.New()
	data := map[string]any{"status": "accepted"}
	f.notifier.On("Notify", mock.Anything, userID, "booking.accepted", data).Return(nil).Once()

	job := jobs.Notification(uuid.New(), userID, "booking.accepted", data)
	require.NoError(t, f.dispatcher.Handle(context.Background(), job))
	f.notifier.AssertExpectations(t)
}

func TestDispatcher_InvalidAttendanceIsError(t *testing.T) {
	f := newFixture(t)
	job := jobs.New(jobs.TypeBookingNoShow, uuid.New())
	job.Attendance = "late"

	assert.Error(t, f.dispatcher.Handle(context.Background(), job))
}

func TestDispatcher_UnknownType(t *testing.T) {
	f := newFixture(t)
	job := jobs.New(jobs.Type("booking.teleport"), uuid.New())

	assert.Error(t, f.dispatcher.Handle(context.Background(), job))
}

func TestDispatcher_RunAcksAndNacks(t *testing.T) {
	f := newFixture(t)
	ack := &fakeAcknowledger{}
	userID := uuid.New()
	f.notifier.On("Notify", mock.Anything, userID, "qc.passed", mock.Anything).Return(nil).Once()

	body, err := json.Marshal(jobs.Notification(uuid.New(), userID, "qc.passed", nil))
	require.NoError(t, err)

	deliveries := make(chan amqp.Delivery, 2)
	deliveries <- amqp.Delivery{Acknowledger: ack, DeliveryTag: 1, Body: body}
	deliveries <- amqp.Delivery{Acknowledger: ack, DeliveryTag: 2, Body: []byte("{not json")}
	close(deliveries)

	f.dispatcher.Run(context.Background(), deliveries)

	assert.Equal(t, []uint64{1}, ack.acked)
	assert.Equal(t, []uint64{2}, ack.nacked)
}

func TestSweeper_ExpiresOverdueRequests(t *testing.T) {
	f := newFixture(t)
	overdue := f.requested(t)
	f.clock = f.clock.Add(time.Hour)
	fresh := f.requested(t)

	f.custodian.On("CancelAuthorization", mock.Anything, "chrg_worker").Return(nil).Once()
	f.clock = f.clock.Add(settlement.RequestTTL - 30*time.Minute)

	n, err := worker.NewSweeper(f.engine, time.Minute).Sweep(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, vo.BookingStatusExpired, f.status(t, overdue.ID))
	assert.Equal(t, vo.BookingStatusRequested, f.status(t, fresh.ID))
}
