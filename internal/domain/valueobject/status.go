package valueobject

import "github.com/ignatzorin/consult-backend/internal/pkg/apperror"

type BookingStatus string

const (
	BookingStatusDraft                       BookingStatus = "draft"
	BookingStatusRequested                   BookingStatus = "requested"
	BookingStatusDeclined                    BookingStatus = "declined"
	BookingStatusExpired                     BookingStatus = "expired"
	BookingStatusAccepted                    BookingStatus = "accepted"
	BookingStatusAcceptedPendingIntegrations BookingStatus = "accepted_pending_integrations"
	BookingStatusReschedulePending           BookingStatus = "reschedule_pending"
	BookingStatusDisputePending              BookingStatus = "dispute_pending"
	BookingStatusCancelled                   BookingStatus = "cancelled"
	BookingStatusCompleted                   BookingStatus = "completed"
	BookingStatusCompletedPendingFeedback    BookingStatus = "completed_pending_feedback"
	BookingStatusRefunded                    BookingStatus = "refunded"
)

var bookingTransitions = map[BookingStatus][]BookingStatus{
	BookingStatusDraft:     {BookingStatusRequested},
	BookingStatusRequested: {BookingStatusDeclined, BookingStatusAccepted, BookingStatusAcceptedPendingIntegrations, BookingStatusExpired},
	BookingStatusAccepted: {
		BookingStatusAcceptedPendingIntegrations,
		BookingStatusReschedulePending,
		BookingStatusCancelled,
		BookingStatusDisputePending,
		BookingStatusCompletedPendingFeedback,
	},
	BookingStatusAcceptedPendingIntegrations: {BookingStatusAccepted},
	BookingStatusReschedulePending:           {BookingStatusAccepted, BookingStatusCancelled},
	BookingStatusCompletedPendingFeedback:    {BookingStatusCompleted},
	BookingStatusDisputePending:              {BookingStatusRefunded, BookingStatusCompleted},
	BookingStatusDeclined:                    {},
	BookingStatusExpired:                     {},
	BookingStatusCancelled:                   {},
	BookingStatusCompleted:                   {},
	BookingStatusRefunded:                    {},
}

func (s BookingStatus) IsValid() bool {
	_, ok := bookingTransitions[s]
	return ok
}

// IsTerminal сообщает, что из статуса нет исходящих переходов.
func (s BookingStatus) IsTerminal() bool {
	return s.IsValid() && len(bookingTransitions[s]) == 0
}

func (s BookingStatus) CanTransitionTo(newStatus BookingStatus) bool {
	for _, status := range bookingTransitions[s] {
		if status == newStatus {
			return true
		}
	}
	return false
}

func (s BookingStatus) In(statuses ...BookingStatus) bool {
	for _, status := range statuses {
		if s == status {
			return true
		}
	}
	return false
}

func NewBookingStatus(status string) (BookingStatus, error) {
	s := BookingStatus(status)
	if !s.IsValid() {
		return "", apperror.New(apperror.ErrCodeValidation, "некорректный статус бронирования")
	}
	return s, nil
}

type PaymentStatus string

const (
	PaymentStatusAuthorized        PaymentStatus = "authorized"
	PaymentStatusHeld              PaymentStatus = "held"
	PaymentStatusReleased          PaymentStatus = "released"
	PaymentStatusRefunded          PaymentStatus = "refunded"
	PaymentStatusPartiallyRefunded PaymentStatus = "partially_refunded"
	PaymentStatusCancelled         PaymentStatus = "cancelled"
	PaymentStatusCaptureFailed     PaymentStatus = "capture_failed"
)

func (s PaymentStatus) IsValid() bool {
	switch s {
	case PaymentStatusAuthorized, PaymentStatusHeld, PaymentStatusReleased, PaymentStatusRefunded,
		PaymentStatusPartiallyRefunded, PaymentStatusCancelled, PaymentStatusCaptureFailed:
		return true
	}
	return false
}

func (s PaymentStatus) In(statuses ...PaymentStatus) bool {
	for _, status := range statuses {
		if s == status {
			return true
		}
	}
	return false
}

type PayoutStatus string

const (
	PayoutStatusPending PayoutStatus = "pending"
	PayoutStatusBlocked PayoutStatus = "blocked"
	PayoutStatusPaid    PayoutStatus = "paid"
)

func (s PayoutStatus) IsValid() bool {
	switch s {
	case PayoutStatusPending, PayoutStatusBlocked, PayoutStatusPaid:
		return true
	}
	return false
}

type DisputeStatus string

const (
	DisputeStatusOpen        DisputeStatus = "open"
	DisputeStatusUnderReview DisputeStatus = "under_review"
	DisputeStatusResolved    DisputeStatus = "resolved"
)

func (s DisputeStatus) IsActive() bool {
	return s == DisputeStatusOpen || s == DisputeStatusUnderReview
}

type DisputeReason string

const (
	DisputeReasonNoShow     DisputeReason = "no_show"
	DisputeReasonQuality    DisputeReason = "quality"
	DisputeReasonMisconduct DisputeReason = "misconduct"
	DisputeReasonOther      DisputeReason = "other"
)

func NewDisputeReason(reason string) (DisputeReason, error) {
	r := DisputeReason(reason)
	switch r {
	case DisputeReasonNoShow, DisputeReasonQuality, DisputeReasonMisconduct, DisputeReasonOther:
		return r, nil
	}
	return "", apperror.New(apperror.ErrCodeValidation, "некорректная причина спора")
}

type DisputeResolution string

const (
	DisputeResolutionDismiss       DisputeResolution = "dismiss"
	DisputeResolutionRefund        DisputeResolution = "refund"
	DisputeResolutionPartialRefund DisputeResolution = "partial_refund"
)

func NewDisputeResolution(resolution string) (DisputeResolution, error) {
	r := DisputeResolution(resolution)
	switch r {
	case DisputeResolutionDismiss, DisputeResolutionRefund, DisputeResolutionPartialRefund:
		return r, nil
	}
	return "", apperror.New(apperror.ErrCodeValidation, "некорректное решение по спору")
}

type QCStatus string

const (
	QCStatusMissing QCStatus = "missing"
	QCStatusRevise  QCStatus = "revise"
	QCStatusPassed  QCStatus = "passed"
)

type AttendanceOutcome string

const (
	AttendanceUnknown            AttendanceOutcome = "unknown"
	AttendanceBothJoined         AttendanceOutcome = "both_joined"
	AttendanceCandidateNoShow    AttendanceOutcome = "candidate_no_show"
	AttendanceProfessionalNoShow AttendanceOutcome = "professional_no_show"
	AttendanceBothNoShow         AttendanceOutcome = "both_no_show"
)

func NewAttendanceOutcome(outcome string) (AttendanceOutcome, error) {
	a := AttendanceOutcome(outcome)
	switch a {
	case AttendanceUnknown, AttendanceBothJoined, AttendanceCandidateNoShow, AttendanceProfessionalNoShow, AttendanceBothNoShow:
		return a, nil
	}
	return "", apperror.New(apperror.ErrCodeValidation, "некорректный исход звонка")
}

// RequesterNoShow: не пришёл только кандидат. Неявка обеих сторон уходит в спор.
func (a AttendanceOutcome) RequesterNoShow() bool {
	return a == AttendanceCandidateNoShow
}
