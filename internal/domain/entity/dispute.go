package entity

import (
	"time"

	"github.com/google/uuid"
	"github.com/ignatzorin/consult-backend/internal/domain/valueobject"
)

type Dispute struct {
	ID                uuid.UUID
	BookingID         uuid.UUID
	InitiatorID       *uuid.UUID
	Reason            valueobject.DisputeReason
	Description       string
	Status            valueobject.DisputeStatus
	Resolution        *valueobject.DisputeResolution
	ResolutionNote    *string
	RefundAmountCents *int64
	ResolvedBy        *uuid.UUID
	ResolvedAt        *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (d *Dispute) Clone() *Dispute {
	if d == nil {
		return nil
	}
	c := *d
	return &c
}
