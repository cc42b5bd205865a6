package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/ignatzorin/consult-backend/internal/domain/entity"
)

// BookingStore - операции внутри одной транзакции. Все записи видны только после Commit.
type BookingStore interface {
	// LockBooking читает строку с блокировкой до конца транзакции.
	LockBooking(ctx context.Context, id uuid.UUID) (*entity.Booking, error)
	CreateBooking(ctx context.Context, booking *entity.Booking) error
	UpdateBooking(ctx context.Context, booking *entity.Booking) error

	GetPayment(ctx context.Context, bookingID uuid.UUID) (*entity.Payment, error)
	CreatePayment(ctx context.Context, payment *entity.Payment) error
	UpdatePayment(ctx context.Context, payment *entity.Payment) error

	// GetPayout/GetDispute/GetFeedback возвращают nil, nil если строки нет.
	GetPayout(ctx context.Context, bookingID uuid.UUID) (*entity.Payout, error)
	SavePayout(ctx context.Context, payout *entity.Payout) error

	GetDispute(ctx context.Context, bookingID uuid.UUID) (*entity.Dispute, error)
	SaveDispute(ctx context.Context, dispute *entity.Dispute) error

	GetFeedback(ctx context.Context, bookingID uuid.UUID) (*entity.CallFeedback, error)
	SaveFeedback(ctx context.Context, feedback *entity.CallFeedback) error

	// PayoutDestination возвращает nil, если у профессионала нет реквизитов.
	PayoutDestination(ctx context.Context, professionalID uuid.UUID) (*string, error)

	InsertAudit(ctx context.Context, record *entity.AuditRecord) error
	Snapshot(ctx context.Context, bookingID uuid.UUID) (*entity.Snapshot, error)
}

// Tx - открытая единица работы. OnCommit-хуки выполняются только после успешного Commit.
type Tx interface {
	BookingStore
	Commit() error
	Rollback() error
	OnCommit(fn func(ctx context.Context))
}

// UnitOfWork открывает транзакции и обслуживает чтения вне транзакций.
type UnitOfWork interface {
	Begin(ctx context.Context) (Tx, error)
	LoadSnapshot(ctx context.Context, bookingID uuid.UUID) (*entity.Snapshot, error)
	ListAudit(ctx context.Context, bookingID uuid.UUID) ([]entity.AuditRecord, error)
	ListExpiredRequests(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error)
}
