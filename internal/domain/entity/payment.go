package entity

import (
	"time"

	"github.com/google/uuid"
	"github.com/ignatzorin/consult-backend/internal/domain/valueobject"
)

// Payment - деньги кандидата у платёжного кастодиана, один к одному с Booking.
type Payment struct {
	ID                  uuid.UUID
	BookingID           uuid.UUID
	AmountGrossCents    int64
	PlatformFeeCents    int64
	RefundedAmountCents int64
	Currency            string
	ExternalRef         string
	// RefundRef фиксирует уже выполненный частичный возврат.
	RefundRef           *string
	Status              valueobject.PaymentStatus
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

func (p *Payment) Clone() *Payment {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}

// Payout - выплата профессионалу, создаётся лениво.
type Payout struct {
	ID             uuid.UUID
	BookingID      uuid.UUID
	ProfessionalID uuid.UUID
	AmountNetCents int64
	Destination    *string
	Status         valueobject.PayoutStatus
	BlockReason    *string
	TransferRef    *string
	PaidAt         *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (p *Payout) Clone() *Payout {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}
