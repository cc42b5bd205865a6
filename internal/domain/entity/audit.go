package entity

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/ignatzorin/consult-backend/internal/domain/valueobject"
)

// AuditRecord - неизменяемая запись об одном зафиксированном переходе.
type AuditRecord struct {
	ID             uuid.UUID
	BookingID      uuid.UUID
	ActorID        *uuid.UUID
	ActorRole      string
	PreviousStatus valueobject.BookingStatus
	NewStatus      valueobject.BookingStatus
	Reason         string
	Metadata       json.RawMessage
	CreatedAt      time.Time
}
