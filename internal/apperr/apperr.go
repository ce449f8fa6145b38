// Package apperr is the error taxonomy shared by every service. Handlers map a Kind
// to an HTTP status; the message is meant for the operator's screen.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind int

const (
	KindValidation Kind = iota + 1
	KindConfiguration
	KindInvalidState
	KindOverpayment
	KindSessionAlreadyOpen
	KindNoOpenSession
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "VALIDATION"
	case KindConfiguration:
		return "CONFIGURATION"
	case KindInvalidState:
		return "INVALID_STATE"
	case KindOverpayment:
		return "OVERPAYMENT"
	case KindSessionAlreadyOpen:
		return "SESSION_ALREADY_OPEN"
	case KindNoOpenSession:
		return "NO_OPEN_SESSION"
	case KindNotFound:
		return "NOT_FOUND"
	default:
		return "UNKNOWN"
	}
}

// Error is returned when a request is rejected by business rules.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Validation(message string) *Error { return New(KindValidation, message) }

func Validationf(format string, args ...any) *Error { return Newf(KindValidation, format, args...) }

func Configuration(message string) *Error { return New(KindConfiguration, message) }

func InvalidStatef(format string, args ...any) *Error { return Newf(KindInvalidState, format, args...) }

func Overpaymentf(format string, args ...any) *Error { return Newf(KindOverpayment, format, args...) }

func SessionAlreadyOpen(message string) *Error { return New(KindSessionAlreadyOpen, message) }

func NoOpenSession(message string) *Error { return New(KindNoOpenSession, message) }

func NotFoundf(format string, args ...any) *Error { return Newf(KindNotFound, format, args...) }

// KindOf returns the Kind of the first *Error in err's chain, or 0.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindConfiguration:
		return http.StatusInternalServerError
	case KindInvalidState, KindSessionAlreadyOpen, KindNoOpenSession:
		return http.StatusConflict
	case KindOverpayment:
		return http.StatusUnprocessableEntity
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
