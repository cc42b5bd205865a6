// Package invariant проверяет межсущностные правила одного бронирования.
// Все функции чистые: никакого I/O, одинаковый вход даёт одинаковый результат.
package invariant

import (
	"github.com/ignatzorin/consult-backend/internal/domain/entity"
	vo "github.com/ignatzorin/consult-backend/internal/domain/valueobject"
)

// Rule - идентификатор правила, попадает в StateInvariantError и логи.
type Rule string

const (
	RuleRefundedPaymentBookingStatus Rule = "refunded_payment_requires_closed_booking"
	RuleReleasedPaymentEligibility   Rule = "released_payment_requires_qc_or_late_cancel"
	RuleBlockedPayoutPaymentStatus   Rule = "blocked_payout_requires_held_or_refunded_payment"
	RulePaidPayoutPaymentStatus      Rule = "paid_payout_requires_released_payment"
	RuleAcceptedBookingSchedule      Rule = "accepted_booking_requires_schedule"
	RuleCompletedBookingQC           Rule = "completed_booking_requires_qc_passed"
	RuleAuthorizedPaymentBooking     Rule = "authorized_payment_requires_open_request"
)

type check struct {
	rule Rule
	ok   func(s *entity.Snapshot) bool
}

var checks = []check{
	{RuleRefundedPaymentBookingStatus, func(s *entity.Snapshot) bool {
		if s.Payment == nil || s.Payment.Status != vo.PaymentStatusRefunded {
			return true
		}
		return s.Booking.Status.In(vo.BookingStatusCancelled, vo.BookingStatusRefunded, vo.BookingStatusDeclined, vo.BookingStatusExpired)
	}},
	{RuleReleasedPaymentEligibility, func(s *entity.Snapshot) bool {
		if s.Payment == nil || s.Payment.Status != vo.PaymentStatusReleased {
			return true
		}
		return s.QCStatus() == vo.QCStatusPassed || s.Booking.IsLateCancellation
	}},
	{RuleBlockedPayoutPaymentStatus, func(s *entity.Snapshot) bool {
		if s.Payout == nil || s.Payout.Status != vo.PayoutStatusBlocked {
			return true
		}
		return s.Payment != nil && s.Payment.Status.In(vo.PaymentStatusHeld, vo.PaymentStatusRefunded)
	}},
	{RulePaidPayoutPaymentStatus, func(s *entity.Snapshot) bool {
		if s.Payout == nil || s.Payout.Status != vo.PayoutStatusPaid {
			return true
		}
		return s.Payment != nil && s.Payment.Status == vo.PaymentStatusReleased
	}},
	{RuleAcceptedBookingSchedule, func(s *entity.Snapshot) bool {
		if s.Booking.Status != vo.BookingStatusAccepted {
			return true
		}
		return s.Booking.StartAt != nil && s.Booking.EndAt != nil
	}},
	{RuleCompletedBookingQC, func(s *entity.Snapshot) bool {
		if s.Booking.Status != vo.BookingStatusCompleted {
			return true
		}
		return s.QCStatus() == vo.QCStatusPassed
	}},
	{RuleAuthorizedPaymentBooking, func(s *entity.Snapshot) bool {
		if s.Payment == nil || s.Payment.Status != vo.PaymentStatusAuthorized {
			return true
		}
		return s.Booking.Status.In(vo.BookingStatusRequested, vo.BookingStatusDeclined, vo.BookingStatusExpired)
	}},
}

// Violations возвращает все нарушенные правила, не останавливаясь на первом.
func Violations(s *entity.Snapshot) []Rule {
	if s == nil || s.Booking == nil {
		return nil
	}
	var broken []Rule
	for _, c := range checks {
		if !c.ok(s) {
			broken = append(broken, c.rule)
		}
	}
	return broken
}

// Valid - удобная обёртка для вызывающих, которым не нужен список.
func Valid(s *entity.Snapshot) bool {
	return len(Violations(s)) == 0
}

func RuleNames(rules []Rule) []string {
	names := make([]string, len(rules))
	for i, r := range rules {
		names[i] = string(r)
	}
	return names
}
