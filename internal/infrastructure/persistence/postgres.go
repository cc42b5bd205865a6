package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/consult-backend/internal/domain/entity"
	"github.com/ignatzorin/consult-backend/internal/domain/repository"
	vo "github.com/ignatzorin/consult-backend/internal/domain/valueobject"
	"github.com/ignatzorin/consult-backend/internal/pkg/apperror"
)

// PostgresUnitOfWork хранит бронирования в PostgreSQL. Блокировка строки - SELECT ... FOR UPDATE.
type PostgresUnitOfWork struct {
	db *sqlx.DB
}

func NewPostgresUnitOfWork(db *sqlx.DB) *PostgresUnitOfWork {
	return &PostgresUnitOfWork{db: db}
}

func (u *PostgresUnitOfWork) Begin(ctx context.Context) (repository.Tx, error) {
	tx, err := u.db.BeginTxx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось начать транзакцию")
	}
	return &postgresTx{tx: tx}, nil
}

func (u *PostgresUnitOfWork) LoadSnapshot(ctx context.Context, bookingID uuid.UUID) (*entity.Snapshot, error) {
	return loadSnapshot(ctx, u.db, bookingID)
}

func (u *PostgresUnitOfWork) ListAudit(ctx context.Context, bookingID uuid.UUID) ([]entity.AuditRecord, error) {
	var rows []auditRow
	query := `
		SELECT id, booking_id, actor_id, actor_role, previous_status, new_status, reason, metadata, created_at
		FROM booking_audit
		WHERE booking_id = $1
		ORDER BY created_at, id
	`
	if err := u.db.SelectContext(ctx, &rows, query, bookingID); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось получить аудит")
	}
	records := make([]entity.AuditRecord, len(rows))
	for i, r := range rows {
		records[i] = r.toEntity()
	}
	return records, nil
}

func (u *PostgresUnitOfWork) ListExpiredRequests(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	query := `
		SELECT id FROM bookings
		WHERE status = $1 AND expires_at IS NOT NULL AND expires_at <= $2
		ORDER BY expires_at
		LIMIT $3
	`
	if err := u.db.SelectContext(ctx, &ids, query, string(vo.BookingStatusRequested), now, limit); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось получить просроченные запросы")
	}
	return ids, nil
}

type postgresTx struct {
	tx    *sqlx.Tx
	hooks []func(ctx context.Context)
}

func (t *postgresTx) LockBooking(ctx context.Context, id uuid.UUID) (*entity.Booking, error) {
	var row bookingRow
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1 FOR UPDATE`
	if err := t.tx.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.ErrBookingNotFound
		}
		return nil, apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось заблокировать бронирование")
	}
	return row.toEntity(), nil
}

func (t *postgresTx) CreateBooking(ctx context.Context, b *entity.Booking) error {
	query := `
		INSERT INTO bookings (` + bookingColumns + `)
		VALUES (:id, :candidate_id, :professional_id, :status, :start_at, :end_at, :price_cents, :currency,
			:is_late_cancellation, :attendance, :expires_at, :proposed_start_at, :proposed_end_at, :reschedule_requested_by,
			:rescheduled_at, :decline_reason, :declined_at, :cancel_reason, :cancelled_at, :refunded_at, :completed_at, :created_at, :updated_at)
	`
	if _, err := t.tx.NamedExecContext(ctx, query, newBookingRow(b)); err != nil {
		return apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось создать бронирование")
	}
	return nil
}

func (t *postgresTx) UpdateBooking(ctx context.Context, b *entity.Booking) error {
	query := `
		UPDATE bookings SET
			status = :status, start_at = :start_at, end_at = :end_at, is_late_cancellation = :is_late_cancellation,
			attendance = :attendance, expires_at = :expires_at, proposed_start_at = :proposed_start_at,
			proposed_end_at = :proposed_end_at, reschedule_requested_by = :reschedule_requested_by,
			rescheduled_at = :rescheduled_at, decline_reason = :decline_reason, declined_at = :declined_at, cancel_reason = :cancel_reason,
			cancelled_at = :cancelled_at, refunded_at = :refunded_at, completed_at = :completed_at, updated_at = :updated_at
		WHERE id = :id
	`
	res, err := t.tx.NamedExecContext(ctx, query, newBookingRow(b))
	if err != nil {
		return apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось обновить бронирование")
	}
	return expectOneRow(res, apperror.ErrBookingNotFound)
}

func (t *postgresTx) GetPayment(ctx context.Context, bookingID uuid.UUID) (*entity.Payment, error) {
	return getPayment(ctx, t.tx, bookingID)
}

func (t *postgresTx) CreatePayment(ctx context.Context, p *entity.Payment) error {
	query := `
		INSERT INTO payments (` + paymentColumns + `)
		VALUES (:id, :booking_id, :amount_gross_cents, :platform_fee_cents, :refunded_amount_cents, :currency,
			:external_ref, :refund_ref, :status, :created_at, :updated_at)
	`
	if _, err := t.tx.NamedExecContext(ctx, query, newPaymentRow(p)); err != nil {
		return apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось создать платёж")
	}
	return nil
}

func (t *postgresTx) UpdatePayment(ctx context.Context, p *entity.Payment) error {
	query := `
		UPDATE payments SET
			refunded_amount_cents = :refunded_amount_cents, external_ref = :external_ref,
			refund_ref = :refund_ref, status = :status, updated_at = :updated_at
		WHERE id = :id
	`
	res, err := t.tx.NamedExecContext(ctx, query, newPaymentRow(p))
	if err != nil {
		return apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось обновить платёж")
	}
	return expectOneRow(res, apperror.ErrPaymentNotFound)
}

func (t *postgresTx) GetPayout(ctx context.Context, bookingID uuid.UUID) (*entity.Payout, error) {
	return getPayout(ctx, t.tx, bookingID)
}

func (t *postgresTx) SavePayout(ctx context.Context, p *entity.Payout) error {
	query := `
		INSERT INTO payouts (` + payoutColumns + `)
		VALUES (:id, :booking_id, :professional_id, :amount_net_cents, :destination, :status, :block_reason,
			:transfer_ref, :paid_at, :created_at, :updated_at)
		ON CONFLICT (booking_id) DO UPDATE SET
			amount_net_cents = EXCLUDED.amount_net_cents, destination = EXCLUDED.destination,
			status = EXCLUDED.status, block_reason = EXCLUDED.block_reason, transfer_ref = EXCLUDED.transfer_ref,
			paid_at = EXCLUDED.paid_at, updated_at = EXCLUDED.updated_at
	`
	if _, err := t.tx.NamedExecContext(ctx, query, newPayoutRow(p)); err != nil {
		return apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось сохранить выплату")
	}
	return nil
}

func (t *postgresTx) GetDispute(ctx context.Context, bookingID uuid.UUID) (*entity.Dispute, error) {
	return getDispute(ctx, t.tx, bookingID)
}

func (t *postgresTx) SaveDispute(ctx context.Context, d *entity.Dispute) error {
	query := `
		INSERT INTO disputes (` + disputeColumns + `)
		VALUES (:id, :booking_id, :initiator_id, :reason, :description, :status, :resolution, :resolution_note,
			:refund_amount_cents, :resolved_by, :resolved_at, :created_at, :updated_at)
		ON CONFLICT (booking_id) DO UPDATE SET
			initiator_id = EXCLUDED.initiator_id, reason = EXCLUDED.reason, description = EXCLUDED.description,
			status = EXCLUDED.status, resolution = EXCLUDED.resolution, resolution_note = EXCLUDED.resolution_note,
			refund_amount_cents = EXCLUDED.refund_amount_cents, resolved_by = EXCLUDED.resolved_by,
			resolved_at = EXCLUDED.resolved_at, updated_at = EXCLUDED.updated_at
	`
	if _, err := t.tx.NamedExecContext(ctx, query, newDisputeRow(d)); err != nil {
		return apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось сохранить спор")
	}
	return nil
}

func (t *postgresTx) GetFeedback(ctx context.Context, bookingID uuid.UUID) (*entity.CallFeedback, error) {
	return getFeedback(ctx, t.tx, bookingID)
}

func (t *postgresTx) SaveFeedback(ctx context.Context, f *entity.CallFeedback) error {
	query := `
		INSERT INTO call_feedback (` + feedbackColumns + `)
		VALUES (:id, :booking_id, :professional_id, :text, :actions, :qc_status, :qc_reasons, :submitted_at,
			:reviewed_at, :updated_at)
		ON CONFLICT (booking_id) DO UPDATE SET
			text = EXCLUDED.text, actions = EXCLUDED.actions, qc_status = EXCLUDED.qc_status,
			qc_reasons = EXCLUDED.qc_reasons, submitted_at = EXCLUDED.submitted_at,
			reviewed_at = EXCLUDED.reviewed_at, updated_at = EXCLUDED.updated_at
	`
	if _, err := t.tx.NamedExecContext(ctx, query, newFeedbackRow(f)); err != nil {
		return apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось сохранить отчёт")
	}
	return nil
}

func (t *postgresTx) PayoutDestination(ctx context.Context, professionalID uuid.UUID) (*string, error) {
	var destination string
	query := `SELECT destination FROM payout_destinations WHERE professional_id = $1`
	if err := t.tx.GetContext(ctx, &destination, query, professionalID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось получить реквизиты выплаты")
	}
	if destination == "" {
		return nil, nil
	}
	return &destination, nil
}

func (t *postgresTx) InsertAudit(ctx context.Context, r *entity.AuditRecord) error {
	query := `
		INSERT INTO booking_audit (id, booking_id, actor_id, actor_role, previous_status, new_status, reason, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8::jsonb, $9)
	`
	_, err := t.tx.ExecContext(ctx, query,
		r.ID,
		r.BookingID,
		r.ActorID,
		r.ActorRole,
		string(r.PreviousStatus),
		string(r.NewStatus),
		r.Reason,
		string(r.Metadata),
		r.CreatedAt,
	)
	if err != nil {
		return apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось записать аудит")
	}
	return nil
}

func (t *postgresTx) Snapshot(ctx context.Context, bookingID uuid.UUID) (*entity.Snapshot, error) {
	return loadSnapshot(ctx, t.tx, bookingID)
}

func (t *postgresTx) OnCommit(fn func(ctx context.Context)) {
	t.hooks = append(t.hooks, fn)
}

func (t *postgresTx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return err
	}
	runHooks(t.hooks)
	return nil
}

func (t *postgresTx) Rollback() error {
	t.hooks = nil
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return err
	}
	return nil
}

// чтения, общие для транзакции и чтений вне её

func loadSnapshot(ctx context.Context, q sqlx.QueryerContext, bookingID uuid.UUID) (*entity.Snapshot, error) {
	var row bookingRow
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`
	if err := sqlx.GetContext(ctx, q, &row, query, bookingID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.ErrBookingNotFound
		}
		return nil, apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось получить бронирование")
	}

	snap := &entity.Snapshot{Booking: row.toEntity()}
	var err error
	if snap.Payment, err = getPayment(ctx, q, bookingID); err != nil && !apperror.IsNotFound(err) {
		return nil, err
	}
	if snap.Payout, err = getPayout(ctx, q, bookingID); err != nil {
		return nil, err
	}
	if snap.Dispute, err = getDispute(ctx, q, bookingID); err != nil {
		return nil, err
	}
	if snap.Feedback, err = getFeedback(ctx, q, bookingID); err != nil {
		return nil, err
	}
	return snap, nil
}

func getPayment(ctx context.Context, q sqlx.QueryerContext, bookingID uuid.UUID) (*entity.Payment, error) {
	var row paymentRow
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE booking_id = $1`
	if err := sqlx.GetContext(ctx, q, &row, query, bookingID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.ErrPaymentNotFound
		}
		return nil, apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось получить платёж")
	}
	return row.toEntity(), nil
}

func getPayout(ctx context.Context, q sqlx.QueryerContext, bookingID uuid.UUID) (*entity.Payout, error) {
	var row payoutRow
	query := `SELECT ` + payoutColumns + ` FROM payouts WHERE booking_id = $1`
	if err := sqlx.GetContext(ctx, q, &row, query, bookingID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось получить выплату")
	}
	return row.toEntity(), nil
}

func getDispute(ctx context.Context, q sqlx.QueryerContext, bookingID uuid.UUID) (*entity.Dispute, error) {
	var row disputeRow
	query := `SELECT ` + disputeColumns + ` FROM disputes WHERE booking_id = $1`
	if err := sqlx.GetContext(ctx, q, &row, query, bookingID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось получить спор")
	}
	return row.toEntity(), nil
}

func getFeedback(ctx context.Context, q sqlx.QueryerContext, bookingID uuid.UUID) (*entity.CallFeedback, error) {
	var row feedbackRow
	query := `SELECT ` + feedbackColumns + ` FROM call_feedback WHERE booking_id = $1`
	if err := sqlx.GetContext(ctx, q, &row, query, bookingID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, apperror.Wrap(err, apperror.ErrCodeDatabaseError, "не удалось получить отчёт")
	}
	return row.toEntity(), nil
}

func expectOneRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("persistence: rows affected: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}
