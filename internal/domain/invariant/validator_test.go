package invariant

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/ignatzorin/consult-backend/internal/domain/entity"
	vo "github.com/ignatzorin/consult-backend/internal/domain/valueobject"
)

func snapshot(status vo.BookingStatus, payment vo.PaymentStatus) *entity.Snapshot {
	start := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)
	id := uuid.New()
	return &entity.Snapshot{
		Booking: &entity.Booking{ID: id, Status: status, StartAt: &start, EndAt: &end, PriceCents: 10000},
		Payment: &entity.Payment{BookingID: id, AmountGrossCents: 10000, Status: payment},
	}
}

func TestViolations_ValidSnapshots(t *testing.T) {
	cases := []*entity.Snapshot{
		snapshot(vo.BookingStatusRequested, vo.PaymentStatusAuthorized),
		snapshot(vo.BookingStatusAccepted, vo.PaymentStatusHeld),
		snapshot(vo.BookingStatusDeclined, vo.PaymentStatusCancelled),
		snapshot(vo.BookingStatusCancelled, vo.PaymentStatusRefunded),
		snapshot(vo.BookingStatusCompletedPendingFeedback, vo.PaymentStatusHeld),
	}
	for _, s := range cases {
		assert.Empty(t, Violations(s), "status %s/%s", s.Booking.Status, s.Payment.Status)
	}
}

func TestViolations_CollectsEveryBrokenRule(t *testing.T) {
	s := snapshot(vo.BookingStatusCompleted, vo.PaymentStatusAuthorized)
	s.Payout = &entity.Payout{Status: vo.PayoutStatusPaid}

	got := Violations(s)

	assert.ElementsMatch(t, []Rule{
		RuleCompletedBookingQC,
		RuleAuthorizedPaymentBooking,
		RulePaidPayoutPaymentStatus,
	}, got)
}

func TestViolations_RefundedPayment(t *testing.T) {
	s := snapshot(vo.BookingStatusAccepted, vo.PaymentStatusRefunded)
	assert.Equal(t, []Rule{RuleRefundedPaymentBookingStatus}, Violations(s))
}

func TestViolations_ReleasedPayment(t *testing.T) {
	s := snapshot(vo.BookingStatusCancelled, vo.PaymentStatusReleased)
	assert.Equal(t, []Rule{RuleReleasedPaymentEligibility}, Violations(s))

	s.Booking.IsLateCancellation = true
	assert.Empty(t, Violations(s))

	s.Booking.IsLateCancellation = false
	s.Feedback = &entity.CallFeedback{QCStatus: vo.QCStatusPassed}
	assert.Empty(t, Violations(s))
}

func TestViolations_BlockedPayout(t *testing.T) {
	s := snapshot(vo.BookingStatusCompleted, vo.PaymentStatusReleased)
	s.Feedback = &entity.CallFeedback{QCStatus: vo.QCStatusPassed}
	s.Payout = &entity.Payout{Status: vo.PayoutStatusBlocked}
	assert.Equal(t, []Rule{RuleBlockedPayoutPaymentStatus}, Violations(s))

	s.Payment.Status = vo.PaymentStatusHeld
	assert.Empty(t, Violations(s))
}

func TestViolations_AcceptedWithoutSchedule(t *testing.T) {
	s := snapshot(vo.BookingStatusAccepted, vo.PaymentStatusHeld)
	s.Booking.EndAt = nil
	assert.Equal(t, []Rule{RuleAcceptedBookingSchedule}, Violations(s))
}

func TestViolations_IsPure(t *testing.T) {
	s := snapshot(vo.BookingStatusCompleted, vo.PaymentStatusHeld)
	first := Violations(s)
	second := Violations(s)
	assert.Equal(t, first, second)
	assert.Equal(t, vo.BookingStatusCompleted, s.Booking.Status)
	assert.False(t, Valid(s))
	assert.Equal(t, []string{string(RuleCompletedBookingQC)}, RuleNames(first))
}
