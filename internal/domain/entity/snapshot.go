package entity

import "github.com/ignatzorin/consult-backend/internal/domain/valueobject"

// Snapshot - согласованный срез всех осей одного бронирования.
type Snapshot struct {
	Booking  *Booking
	Payment  *Payment
	Payout   *Payout
	Dispute  *Dispute
	Feedback *CallFeedback
}

// QCStatus: отсутствие отчёта трактуется как missing.
func (s *Snapshot) QCStatus() valueobject.QCStatus {
	if s.Feedback == nil {
		return valueobject.QCStatusMissing
	}
	return s.Feedback.QCStatus
}
