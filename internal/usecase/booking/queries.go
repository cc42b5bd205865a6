package booking

import (
	"context"

	"github.com/google/uuid"

	"github.com/ignatzorin/consult-backend/internal/domain/entity"
	"github.com/ignatzorin/consult-backend/internal/pkg/apperror"
)

// GetSnapshot возвращает все оси бронирования участнику или администратору.
func (e *Engine) GetSnapshot(ctx context.Context, bookingID uuid.UUID, actor entity.Actor) (*entity.Snapshot, error) {
	snap, err := e.snapshot(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if err := canRead(snap.Booking, actor); err != nil {
		return nil, err
	}
	return snap, nil
}

func (e *Engine) ListAudit(ctx context.Context, bookingID uuid.UUID, actor entity.Actor) ([]entity.AuditRecord, error) {
	snap, err := e.snapshot(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if err := canRead(snap.Booking, actor); err != nil {
		return nil, err
	}
	return e.exec.uow.ListAudit(ctx, bookingID)
}

func (e *Engine) snapshot(ctx context.Context, bookingID uuid.UUID) (*entity.Snapshot, error) {
	if e.tx != nil {
		return e.tx.Snapshot(ctx, bookingID)
	}
	return e.exec.uow.LoadSnapshot(ctx, bookingID)
}

func canRead(b *entity.Booking, actor entity.Actor) error {
	if actor.IsSystem() || actor.IsAdmin() {
		return nil
	}
	if id, ok := actor.UserID(); ok && b.IsParticipant(id) {
		return nil
	}
	return apperror.ErrForbidden
}
