package qc_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/consult-backend/internal/domain/entity"
	"github.com/ignatzorin/consult-backend/internal/domain/settlement"
	vo "github.com/ignatzorin/consult-backend/internal/domain/valueobject"
	"github.com/ignatzorin/consult-backend/internal/infrastructure/persistence"
	"github.com/ignatzorin/consult-backend/internal/jobs"
	"github.com/ignatzorin/consult-backend/internal/pkg/apperror"
	"github.com/ignatzorin/consult-backend/internal/usecase/booking"
	"github.com/ignatzorin/consult-backend/internal/usecase/qc"
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

type mockReviewer struct {
	mock.Mock
}

func (m *mockReviewer) Review(ctx context.Context, text string, actions []string) (qc.ReviewResult, error) {
	args := m.Called(ctx, text, actions)
	return args.Get(0).(qc.ReviewResult), args.Error(1)
}

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) Notify(ctx context.Context, userID uuid.UUID, event string, data map[string]any) error {
	return m.Called(ctx, userID, event, data).Error(0)
}

type recordingScheduler struct {
	mu   sync.Mutex
	keys map[string]time.Duration
}

func (s *recordingScheduler) Enqueue(ctx context.Context, key string, job jobs.Job) error {
	return s.Schedule(ctx, key, job, 0)
}

func (s *recordingScheduler) Schedule(ctx context.Context, key string, job jobs.Job, delay time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[key] = delay
	return nil
}

func (s *recordingScheduler) delay(key string) (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.keys[key]
	return d, ok
}

const (
	chargeRef   = "chrg_test_qc"
	destination = "recp_test_qc"
)

var goodActions = []string{"Переписать резюме под вакансию", "Пройти два мок-интервью"}

type fixture struct {
	uow          *persistence.MemoryUnitOfWork
	custodian    *mockCustodian
	reviewer     *mockReviewer
	notifier     *mockNotifier
	scheduler    *recordingScheduler
	engine       *booking.Engine
	processor    *qc.Processor
	clock        time.Time
	candidate    uuid.UUID
	professional uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		uow:          persistence.NewMemoryUnitOfWork(),
		custodian:    &mockCustodian{},
		reviewer:     &mockReviewer{},
		notifier:     &mockNotifier{},
		scheduler:    &recordingScheduler{keys: map[string]time.Duration{}},
		clock:        time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC),
		candidate:    uuid.New(),
		professional: uuid.New(),
	}
	f.engine = booking.NewEngine(f.uow, f.custodian, f.scheduler, booking.WithClock(func() time.Time { return f.clock }))
	f.processor = qc.NewProcessor(f.engine, f.reviewer, settlement.DefaultContentRules(), f.notifier)
	return f
}

// awaitingFeedback проводит бронирование до completed_pending_feedback с отправленным отчётом.
func (f *fixture) awaitingFeedback(t *testing.T, text string, actions []string) uuid.UUID {
	t.Helper()
	ctx := context.Background()
	f.custodian.On("Authorize", mock.Anything, mock.Anything, "tokn_qc").Return(chargeRef, nil).Once()
	f.custodian.On("Capture", mock.Anything, chargeRef).Return(nil).Once()

	b, err := f.engine.Request(ctx, entity.Party(f.candidate, entity.RoleCandidate), booking.RequestInput{
		ProfessionalID: f.professional,
		PriceCents:     10000,
		Currency:       "THB",
		PaymentSource:  "tokn_qc",
	})
	require.NoError(t, err)
	_, err = f.engine.Accept(ctx, b.ID, entity.Party(f.professional, entity.RoleProfessional), booking.AcceptInput{
		StartAt: f.clock.Add(24 * time.Hour),
		EndAt:   f.clock.Add(25 * time.Hour),
	})
	require.NoError(t, err)

	f.clock = f.clock.Add(26 * time.Hour)
	_, err = f.engine.CompleteCall(ctx, b.ID, entity.System(), vo.AttendanceBothJoined)
	require.NoError(t, err)
	_, err = f.engine.SubmitFeedback(ctx, b.ID, entity.Party(f.professional, entity.RoleProfessional), booking.FeedbackInput{
		Text:    text,
		Actions: actions,
	})
	require.NoError(t, err)
	return b.ID
}

func longFeedback() string {
	return strings.Repeat("Кандидат уверенно решает алгоритмические задачи, но теряется на system design. ", 4)
}

func TestProcessOutcome_LocalRulesShortCircuit(t *testing.T) {
	f := newFixture(t)
	id := f.awaitingFeedback(t, "Всё хорошо", []string{"Учить Go"})

	outcome, err := f.processor.ProcessOutcome(context.Background(), id)
	require.NoError(t, err)

	assert.Equal(t, vo.QCStatusRevise, outcome.Status)
	assert.Contains(t, outcome.Reasons, "text_too_short")
	f.reviewer.AssertNotCalled(t, "Review", mock.Anything, mock.Anything, mock.Anything)

	snap, err := f.uow.LoadSnapshot(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, vo.QCStatusRevise, snap.Feedback.QCStatus)
	assert.Equal(t, vo.BookingStatusCompletedPendingFeedback, snap.Booking.Status)

	delay, ok := f.scheduler.delay(jobs.Key(jobs.TypeQCTimeout, id))
	require.True(t, ok)
	assert.Equal(t, 7*24*time.Hour, delay)
	for _, d := range []time.Duration{24 * time.Hour, 48 * time.Hour} {
		got, ok := f.scheduler.delay(jobs.Key(jobs.TypeQCReminder, id, d.String()))
		require.True(t, ok)
		assert.Equal(t, d, got)
	}
}

func TestProcessOutcome_ReviewerErrorPropagates(t *testing.T) {
	f := newFixture(t)
	id := f.awaitingFeedback(t, longFeedback(), goodActions)
	reviewErr := errors.New("reviewer timeout")
	f.reviewer.On("Review", mock.Anything, mock.Anything, mock.Anything).Return(qc.ReviewResult{}, reviewErr).Once()

	_, err := f.processor.ProcessOutcome(context.Background(), id)

	assert.ErrorIs(t, err, reviewErr)
	snap, err := f.uow.LoadSnapshot(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, vo.QCStatusMissing, snap.Feedback.QCStatus)
}

func TestProcessOutcome_ReviewerRejects(t *testing.T) {
	f := newFixture(t)
	id := f.awaitingFeedback(t, longFeedback(), goodActions)
	f.reviewer.On("Review", mock.Anything, mock.Anything, mock.Anything).
		Return(qc.ReviewResult{Passed: false, Reasons: []string{"нет конкретики"}}, nil).Once()

	outcome, err := f.processor.ProcessOutcome(context.Background(), id)
	require.NoError(t, err)

	assert.Equal(t, vo.QCStatusRevise, outcome.Status)
	assert.Equal(t, []string{"нет конкретики"}, outcome.Reasons)
}

func TestProcessOutcome_PassCompletesBookingAndCreatesPayout(t *testing.T) {
	f := newFixture(t)
	f.uow.SetPayoutDestination(f.professional, destination)
	id := f.awaitingFeedback(t, longFeedback(), goodActions)
	f.reviewer.On("Review", mock.Anything, mock.Anything, mock.Anything).Return(qc.ReviewResult{Passed: true}, nil).Once()

	outcome, err := f.processor.ProcessOutcome(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, vo.QCStatusPassed, outcome.Status)

	snap, err := f.uow.LoadSnapshot(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, vo.BookingStatusCompleted, snap.Booking.Status)
	require.NotNil(t, snap.Payout)
	assert.Equal(t, vo.PayoutStatusPending, snap.Payout.Status)
	assert.Equal(t, int64(8000), snap.Payout.AmountNetCents)
	_, ok := f.scheduler.delay(jobs.Key(jobs.TypePayoutRelease, id))
	assert.True(t, ok)

	// повторная обработка ничего не меняет
	outcome, err = f.processor.ProcessOutcome(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, vo.QCStatusPassed, outcome.Status)
	f.reviewer.AssertNumberOfCalls(t, "Review", 1)
}

func TestProcessOutcome_PassWithoutDestinationBlocksPayout(t *testing.T) {
	f := newFixture(t)
	id := f.awaitingFeedback(t, longFeedback(), goodActions)
	f.reviewer.On("Review", mock.Anything, mock.Anything, mock.Anything).Return(qc.ReviewResult{Passed: true}, nil).Once()

	_, err := f.processor.ProcessOutcome(context.Background(), id)
	require.NoError(t, err)

	snap, err := f.uow.LoadSnapshot(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, vo.BookingStatusCompleted, snap.Booking.Status)
	assert.Equal(t, vo.PayoutStatusBlocked, snap.Payout.Status)
	_, ok := f.scheduler.delay(jobs.Key(jobs.TypePayoutRelease, id))
	assert.False(t, ok)
}

func TestProcessOutcome_WithoutReviewerLocalRulesDecide(t *testing.T) {
	f := newFixture(t)
	f.processor = qc.NewProcessor(f.engine, nil, settlement.DefaultContentRules(), f.notifier)
	id := f.awaitingFeedback(t, longFeedback(), goodActions)

	outcome, err := f.processor.ProcessOutcome(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, vo.QCStatusPassed, outcome.Status)

	snap, err := f.uow.LoadSnapshot(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, vo.BookingStatusCompleted, snap.Booking.Status)
}

func lastAuditMetadata(t *testing.T, f *fixture, id uuid.UUID) map[string]any {
	t.Helper()
	records, err := f.uow.ListAudit(context.Background(), id)
	require.NoError(t, err)
	require.NotEmpty(t, records)
	var meta map[string]any
	require.NoError(t, json.Unmarshal(records[len(records)-1].Metadata, &meta))
	return meta
}

func TestHandleTimeout_SplitsAfterSettledFee(t *testing.T) {
	f := newFixture(t)
	f.uow.SetPayoutDestination(f.professional, destination)
	id := f.awaitingFeedback(t, "коротко", nil)
	_, err := f.processor.ProcessOutcome(context.Background(), id)
	require.NoError(t, err)

	f.custodian.On("SettledFee", mock.Anything, chargeRef).Return(int64(320), nil).Once()
	f.custodian.On("Refund", mock.Anything, chargeRef, int64(4840)).Return("rfnd_qc", nil).Once()
	f.custodian.On("Transfer", mock.Anything, int64(4840), destination, chargeRef).Return("trsf_qc", nil).Once()

	require.NoError(t, f.processor.HandleTimeout(context.Background(), id))

	snap, err := f.uow.LoadSnapshot(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, vo.BookingStatusCompleted, snap.Booking.Status)
	assert.Equal(t, vo.PaymentStatusPartiallyRefunded, snap.Payment.Status)
	assert.Equal(t, int64(4840), snap.Payment.RefundedAmountCents)

	meta := lastAuditMetadata(t, f, id)
	assert.EqualValues(t, 10000, meta["gross_cents"])
	assert.EqualValues(t, 320, meta["processor_fee_cents"])
	assert.EqualValues(t, 9680, meta["net_cents"])
	assert.EqualValues(t, 4840, meta["share_cents"])
	assert.Equal(t, "settled", meta["fee_source"])
	assert.Equal(t, "qc_revision_timeout", meta["invariant_check_skipped"])
	f.custodian.AssertExpectations(t)

	// повторный таймаут - no-op
	require.NoError(t, f.processor.HandleTimeout(context.Background(), id))
	f.custodian.AssertNumberOfCalls(t, "Refund", 1)
}

func TestHandleTimeout_RetryAfterFailedTransferDoesNotRefundTwice(t *testing.T) {
	f := newFixture(t)
	f.uow.SetPayoutDestination(f.professional, destination)
	id := f.awaitingFeedback(t, "коротко", nil)
	_, err := f.processor.ProcessOutcome(context.Background(), id)
	require.NoError(t, err)

	f.custodian.On("SettledFee", mock.Anything, chargeRef).Return(int64(320), nil)
	f.custodian.On("Refund", mock.Anything, chargeRef, int64(4840)).Return("rfnd_qc", nil).Once()
	f.custodian.On("Transfer", mock.Anything, int64(4840), destination, chargeRef).Return("", errors.New("omise unavailable")).Once()
	f.custodian.On("Transfer", mock.Anything, int64(4840), destination, chargeRef).Return("trsf_qc", nil).Once()

	require.Error(t, f.processor.HandleTimeout(context.Background(), id))

	snap, err := f.uow.LoadSnapshot(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, vo.BookingStatusCompletedPendingFeedback, snap.Booking.Status)
	assert.Equal(t, vo.PaymentStatusHeld, snap.Payment.Status)
	require.NotNil(t, snap.Payment.RefundRef)
	assert.Equal(t, "rfnd_qc", *snap.Payment.RefundRef)
	assert.Equal(t, int64(4840), snap.Payment.RefundedAmountCents)

	require.NoError(t, f.processor.HandleTimeout(context.Background(), id))

	snap, err = f.uow.LoadSnapshot(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, vo.BookingStatusCompleted, snap.Booking.Status)
	assert.Equal(t, vo.PaymentStatusPartiallyRefunded, snap.Payment.Status)
	assert.Equal(t, int64(4840), snap.Payment.RefundedAmountCents)

	meta := lastAuditMetadata(t, f, id)
	assert.Equal(t, "rfnd_qc", meta["refund_ref"])
	assert.Equal(t, "trsf_qc", meta["transfer_ref"])
	f.custodian.AssertNumberOfCalls(t, "Refund", 1)
	f.custodian.AssertNumberOfCalls(t, "Transfer", 2)
}

func TestHandleTimeout_MissingChargeWithDestinationIsFatal(t *testing.T) {
	f := newFixture(t)
	f.uow.SetPayoutDestination(f.professional, destination)
	id := f.awaitingFeedback(t, "коротко", nil)
	_, err := f.processor.ProcessOutcome(context.Background(), id)
	require.NoError(t, err)

	ctx := context.Background()
	tx, err := f.uow.Begin(ctx)
	require.NoError(t, err)
	payment, err := tx.GetPayment(ctx, id)
	require.NoError(t, err)
	payment.ExternalRef = ""
	require.NoError(t, tx.UpdatePayment(ctx, payment))
	require.NoError(t, tx.Commit())

	err = f.processor.HandleTimeout(ctx, id)
	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperror.ErrCodeInternal, appErr.Code)

	snap, err := f.uow.LoadSnapshot(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, vo.BookingStatusCompletedPendingFeedback, snap.Booking.Status)
	assert.Equal(t, vo.PaymentStatusHeld, snap.Payment.Status)
	assert.Nil(t, snap.Payment.RefundRef)
	f.custodian.AssertNotCalled(t, "SettledFee", mock.Anything, mock.Anything)
	f.custodian.AssertNotCalled(t, "Refund", mock.Anything, mock.Anything, mock.Anything)
	f.custodian.AssertNotCalled(t, "Transfer", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleTimeout_FallsBackToEstimateWithoutDestination(t *testing.T) {
	f := newFixture(t)
	id := f.awaitingFeedback(t, "коротко", nil)
	_, err := f.processor.ProcessOutcome(context.Background(), id)
	require.NoError(t, err)

	f.custodian.On("SettledFee", mock.Anything, chargeRef).Return(int64(0), errors.New("not settled yet")).Once()
	f.custodian.On("Refund", mock.Anything, chargeRef, int64(4840)).Return("rfnd_qc", nil).Once()

	require.NoError(t, f.processor.HandleTimeout(context.Background(), id))

	meta := lastAuditMetadata(t, f, id)
	assert.Equal(t, "estimate", meta["fee_source"])
	f.custodian.AssertNotCalled(t, "Transfer", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleTimeout_NoOpAfterPass(t *testing.T) {
	f := newFixture(t)
	id := f.awaitingFeedback(t, longFeedback(), goodActions)
	f.reviewer.On("Review", mock.Anything, mock.Anything, mock.Anything).Return(qc.ReviewResult{Passed: true}, nil).Once()
	_, err := f.processor.ProcessOutcome(context.Background(), id)
	require.NoError(t, err)

	require.NoError(t, f.processor.HandleTimeout(context.Background(), id))
	f.custodian.AssertNotCalled(t, "SettledFee", mock.Anything, mock.Anything)
	f.custodian.AssertNotCalled(t, "Refund", mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleReminder_NotifiesWhileRevise(t *testing.T) {
	f := newFixture(t)
	id := f.awaitingFeedback(t, "коротко", nil)
	_, err := f.processor.ProcessOutcome(context.Background(), id)
	require.NoError(t, err)
	f.notifier.On("Notify", mock.Anything, f.professional, "qc.reminder", mock.Anything).Return(nil).Once()

	require.NoError(t, f.processor.HandleReminder(context.Background(), id))
	f.notifier.AssertExpectations(t)
}
