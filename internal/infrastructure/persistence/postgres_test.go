package persistence

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/consult-backend/internal/domain/entity"
	vo "github.com/ignatzorin/consult-backend/internal/domain/valueobject"
	"github.com/ignatzorin/consult-backend/internal/pkg/apperror"
)

func newMockUnitOfWork(t *testing.T) (*PostgresUnitOfWork, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewPostgresUnitOfWork(sqlx.NewDb(db, "postgres")), mock
}

func TestPostgresTx_LockBooking(t *testing.T) {
	uow, mock := newMockUnitOfWork(t)
	id, candidate, professional := uuid.New(), uuid.New(), uuid.New()
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	start := now.Add(24 * time.Hour)

	columns := []string{
		"id", "candidate_id", "professional_id", "status", "start_at", "end_at", "price_cents", "currency",
		"is_late_cancellation", "attendance", "expires_at", "proposed_start_at", "proposed_end_at", "reschedule_requested_by",
		"rescheduled_at", "decline_reason", "declined_at", "cancel_reason", "cancelled_at", "refunded_at", "completed_at", "created_at", "updated_at",
	}
	rows := sqlmock.NewRows(columns).AddRow(
		id.String(), candidate.String(), professional.String(), "accepted", start, start.Add(time.Hour), int64(10000), "THB",
		false, "unknown", nil, nil, nil, nil,
		nil, nil, nil, nil, nil, nil, nil, now, now,
	)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .+ FROM bookings WHERE id = \$1 FOR UPDATE`).WithArgs(id).WillReturnRows(rows)
	mock.ExpectRollback()

	tx, err := uow.Begin(context.Background())
	require.NoError(t, err)
	b, err := tx.LockBooking(context.Background(), id)
	require.NoError(t, err)
	require.NoError(t, tx.Rollback())

	assert.Equal(t, id, b.ID)
	assert.Equal(t, vo.BookingStatusAccepted, b.Status)
	require.NotNil(t, b.StartAt)
	assert.True(t, start.Equal(*b.StartAt))
	assert.Nil(t, b.RescheduleRequestedBy)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresTx_LockBookingNotFound(t *testing.T) {
	uow, mock := newMockUnitOfWork(t)
	id := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .+ FROM bookings WHERE id = \$1 FOR UPDATE`).WithArgs(id).WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	tx, err := uow.Begin(context.Background())
	require.NoError(t, err)
	_, err = tx.LockBooking(context.Background(), id)
	require.NoError(t, tx.Rollback())

	assert.True(t, apperror.IsNotFound(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresTx_HooksRunOnlyAfterCommit(t *testing.T) {
	uow, mock := newMockUnitOfWork(t)
	record := &entity.AuditRecord{
		ID:             uuid.New(),
		BookingID:      uuid.New(),
		ActorRole:      "system",
		PreviousStatus: vo.BookingStatusRequested,
		NewStatus:      vo.BookingStatusExpired,
		Reason:         "booking_expired",
		Metadata:       []byte(`{"payment_status":"cancelled"}`),
		CreatedAt:      time.Now().UTC(),
	}

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO booking_audit`).
		WithArgs(record.ID, record.BookingID, sqlmock.AnyArg(), "system", "requested", "expired", "booking_expired",
			`{"payment_status":"cancelled"}`, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	tx, err := uow.Begin(context.Background())
	require.NoError(t, err)
	require.NoError(t, tx.InsertAudit(context.Background(), record))

	called := false
	tx.OnCommit(func(ctx context.Context) { called = true })
	assert.False(t, called)

	require.NoError(t, tx.Commit())
	assert.True(t, called)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresTx_RollbackDropsHooks(t *testing.T) {
	uow, mock := newMockUnitOfWork(t)

	mock.ExpectBegin()
	mock.ExpectRollback()

	tx, err := uow.Begin(context.Background())
	require.NoError(t, err)
	called := false
	tx.OnCommit(func(ctx context.Context) { called = true })
	require.NoError(t, tx.Rollback())

	assert.False(t, called)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresTx_UpdatePaymentMissingRow(t *testing.T) {
	uow, mock := newMockUnitOfWork(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE payments SET`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	tx, err := uow.Begin(context.Background())
	require.NoError(t, err)
	err = tx.UpdatePayment(context.Background(), &entity.Payment{ID: uuid.New(), Status: vo.PaymentStatusHeld})
	require.NoError(t, tx.Rollback())

	assert.True(t, apperror.IsNotFound(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresTx_PayoutDestinationMissing(t *testing.T) {
	uow, mock := newMockUnitOfWork(t)
	professional := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT destination FROM payout_destinations`).
		WithArgs(professional).
		WillReturnRows(sqlmock.NewRows([]string{"destination"}))
	mock.ExpectRollback()

	tx, err := uow.Begin(context.Background())
	require.NoError(t, err)
	destination, err := tx.PayoutDestination(context.Background(), professional)
	require.NoError(t, tx.Rollback())

	assert.NoError(t, err)
	assert.Nil(t, destination)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUnitOfWork_ListExpiredRequests(t *testing.T) {
	uow, mock := newMockUnitOfWork(t)
	now := time.Now().UTC()
	first, second := uuid.New(), uuid.New()

	mock.ExpectQuery(`SELECT id FROM bookings`).
		WithArgs("requested", now, 50).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(first.String()).AddRow(second.String()))

	ids, err := uow.ListExpiredRequests(context.Background(), now, 50)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{first, second}, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}
