package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

type ErrorCode string

const (
	ErrCodeNotFound           ErrorCode = "NOT_FOUND"
	ErrCodeUnauthorized       ErrorCode = "UNAUTHORIZED"
	ErrCodeForbidden          ErrorCode = "FORBIDDEN"
	ErrCodeBadRequest         ErrorCode = "BAD_REQUEST"
	ErrCodeConflict           ErrorCode = "CONFLICT"
	ErrCodeInternal           ErrorCode = "INTERNAL_ERROR"
	ErrCodeValidation         ErrorCode = "VALIDATION_ERROR"
	ErrCodeDatabaseError      ErrorCode = "DATABASE_ERROR"
	ErrCodeInvalidTransition  ErrorCode = "INVALID_TRANSITION"
	ErrCodeTransitionConflict ErrorCode = "TRANSITION_CONFLICT"
	ErrCodeStateInvariant     ErrorCode = "STATE_INVARIANT"
)

type AppError struct {
	Code       ErrorCode
	Message    string
	HTTPStatus int
	Cause      error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
	}
}

func Wrap(err error, code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
		Cause:      err,
	}
}

func codeToHTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case ErrCodeForbidden:
		return http.StatusForbidden
	case ErrCodeBadRequest, ErrCodeValidation:
		return http.StatusBadRequest
	case ErrCodeConflict, ErrCodeInvalidTransition, ErrCodeTransitionConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// TransitionError означает недопустимый исходный статус или неподходящего актора.
// Ошибка исправима пользователем.
type TransitionError struct {
	BookingID uuid.UUID
	From      string
	To        string
	Reason    string
}

func (e *TransitionError) Error() string {
	if e.From == "" && e.To == "" {
		return fmt.Sprintf("booking %s: недопустимый переход: %s", e.BookingID, e.Reason)
	}
	return fmt.Sprintf("booking %s: недопустимый переход %s -> %s: %s", e.BookingID, e.From, e.To, e.Reason)
}

// TransitionConflictError возвращается при повторном подтверждении с payload,
// который расходится с уже зафиксированным результатом.
type TransitionConflictError struct {
	BookingID uuid.UUID
	Reason    string
}

func (e *TransitionConflictError) Error() string {
	return fmt.Sprintf("booking %s: конфликт повторного перехода: %s", e.BookingID, e.Reason)
}

// StateInvariantError сигнализирует о нарушении межсущностных инвариантов после мутации.
// Это всегда дефект логики или гонка, пользователю не показывается.
type StateInvariantError struct {
	BookingID  uuid.UUID
	Violations []string
}

func (e *StateInvariantError) Error() string {
	return fmt.Sprintf("booking %s: нарушены инварианты: %s", e.BookingID, strings.Join(e.Violations, ", "))
}

func NewTransitionError(bookingID uuid.UUID, from, to, reason string) *TransitionError {
	return &TransitionError{BookingID: bookingID, From: from, To: to, Reason: reason}
}

func IsNotFound(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == ErrCodeNotFound
}

func IsForbidden(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == ErrCodeForbidden
}

func IsValidation(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == ErrCodeValidation
}

func IsTransition(err error) bool {
	var trErr *TransitionError
	return errors.As(err, &trErr)
}

func IsTransitionConflict(err error) bool {
	var cErr *TransitionConflictError
	return errors.As(err, &cErr)
}

func IsStateInvariant(err error) bool {
	var invErr *StateInvariantError
	return errors.As(err, &invErr)
}

// HTTPStatusOf подбирает HTTP статус для любой ошибки движка.
func HTTPStatusOf(err error) int {
	var (
		appErr *AppError
		trErr  *TransitionError
		cErr   *TransitionConflictError
		invErr *StateInvariantError
	)
	switch {
	case errors.As(err, &trErr), errors.As(err, &cErr):
		return http.StatusConflict
	case errors.As(err, &invErr):
		return http.StatusInternalServerError
	case errors.As(err, &appErr):
		return appErr.HTTPStatus
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage возвращает сообщение, которое можно показать клиенту.
func PublicMessage(err error) string {
	var (
		appErr *AppError
		trErr  *TransitionError
		cErr   *TransitionConflictError
	)
	switch {
	case errors.As(err, &trErr):
		return trErr.Reason
	case errors.As(err, &cErr):
		return cErr.Reason
	case errors.As(err, &appErr) && appErr.HTTPStatus < http.StatusInternalServerError:
		return appErr.Message
	default:
		return "внутренняя ошибка сервера"
	}
}

var (
	ErrBookingNotFound  = New(ErrCodeNotFound, "бронирование не найдено")
	ErrPaymentNotFound  = New(ErrCodeNotFound, "платёж не найден")
	ErrFeedbackNotFound = New(ErrCodeNotFound, "отчёт по звонку не найден")
	ErrUnauthorized     = New(ErrCodeUnauthorized, "требуется авторизация")
	ErrForbidden        = New(ErrCodeForbidden, "недостаточно прав")
)
