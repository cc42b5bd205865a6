// Package jobs описывает отложенные задачи, которыми обмениваются движок, планировщик и воркер.
package jobs

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	TypeBookingExpire Type = "booking.expire"
	TypeBookingNoShow Type = "booking.no_show"
	TypeQCProcess     Type = "qc.process"
	TypeQCTimeout     Type = "qc.timeout"
	TypeQCReminder    Type = "qc.reminder"
	TypePayoutRelease Type = "payout.release"
	TypeNotify        Type = "notify"
)

// Job - полезная нагрузка сообщения в очереди. Key совпадает с ключом идемпотентности.
type Job struct {
	Key        string         `json:"key"`
	Type       Type           `json:"type"`
	BookingID  uuid.UUID      `json:"booking_id"`
	UserID     uuid.UUID      `json:"user_id,omitempty"`
	Event      string         `json:"event,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
	Attendance string         `json:"attendance,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// RoutingKey используется как routing key в topic exchange.
func (j Job) RoutingKey() string {
	return "jobs." + string(j.Type)
}

func New(t Type, bookingID uuid.UUID) Job {
	return Job{Type: t, BookingID: bookingID, CreatedAt: time.Now().UTC()}
}

func Notification(bookingID, userID uuid.UUID, event string, data map[string]any) Job {
	j := New(TypeNotify, bookingID)
	j.UserID = userID
	j.Event = event
	j.Data = data
	return j
}

// Key собирает ключ идемпотентности: тип, бронирование и уточняющие части.
func Key(t Type, bookingID uuid.UUID, parts ...string) string {
	key := fmt.Sprintf("%s:%s", t, bookingID)
	for _, p := range parts {
		key += ":" + p
	}
	return key
}
