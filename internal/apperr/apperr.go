// Package apperr defines the error taxonomy shared by the chat transport and
// the deal engine. Every failure carries a machine-readable code and, where the
// client needs to tell cases apart, a reason.
package apperr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Code is the top-level error category.
type Code string

const (
	CodeAuth         Code = "AUTH_ERROR"
	CodeNotFound     Code = "NOT_FOUND"
	CodeForbidden    Code = "FORBIDDEN"
	CodeConflict     Code = "CONFLICT"
	CodeUnauthorized Code = "UNAUTHORIZED"
	CodeValidation   Code = "VALIDATION_ERROR"
	CodeTransport    Code = "TRANSPORT_ERROR"
	CodePersistence  Code = "PERSISTENCE_ERROR"
	CodeInternal     Code = "INTERNAL_ERROR"
)

// Reason narrows a Code.
type Reason string

const (
	// AuthError reasons.
	ReasonMissing     Reason = "MISSING"
	ReasonInvalid     Reason = "INVALID"
	ReasonExpired     Reason = "EXPIRED"
	ReasonUnknownUser Reason = "UNKNOWN_USER"

	// NotFound reasons.
	ReasonProperty Reason = "PROPERTY"
	ReasonDeal     Reason = "DEAL"
	ReasonKey      Reason = "KEY"

	// Conflict reasons.
	ReasonPropertyUnavailable Reason = "PROPERTY_UNAVAILABLE"
	ReasonCompetingDeal       Reason = "COMPETING_DEAL"
	ReasonAlreadySigned       Reason = "ALREADY_SIGNED"
	ReasonDealClosed          Reason = "DEAL_CLOSED"
	ReasonSignatureRequired   Reason = "SIGNATURE_REQUIRED"

	// Unauthorized reasons.
	ReasonBadSignature Reason = "BAD_SIGNATURE"
)

// Error is the concrete error type returned by the core.
type Error struct {
	Code    Code   `json:"code"`
	Reason  Reason `json:"reason,omitempty"`
	Message string `json:"message"`
	Cause   error  `json:"-"`
}

func (e *Error) Error() string {
	prefix := string(e.Code)
	if e.Reason != "" {
		prefix += "/" + string(e.Reason)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches on Code, and on Reason when the target sets one.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if e.Code != t.Code {
		return false
	}
	return t.Reason == "" || e.Reason == t.Reason
}

// HTTPStatus maps the error onto a response status.
func (e *Error) HTTPStatus() int {
	switch e.Code {
	case CodeAuth, CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeNotFound:
		return http.StatusNotFound
	case CodeForbidden:
		return http.StatusForbidden
	case CodeConflict:
		return http.StatusConflict
	case CodeValidation:
		return http.StatusBadRequest
	case CodePersistence:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func New(code Code, reason Reason, message string) *Error {
	return &Error{Code: code, Reason: reason, Message: message}
}

// Wrap attaches cause to a new Error. A nil cause yields nil.
func Wrap(err error, code Code, reason Reason, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Reason: reason, Message: message, Cause: err}
}

func Auth(reason Reason, message string) *Error {
	return New(CodeAuth, reason, message)
}

func NotFound(reason Reason, message string) *Error {
	return New(CodeNotFound, reason, message)
}

func Forbidden(message string) *Error {
	return New(CodeForbidden, "", message)
}

func Conflict(reason Reason, message string) *Error {
	return New(CodeConflict, reason, message)
}

func BadSignature(message string) *Error {
	return New(CodeUnauthorized, ReasonBadSignature, message)
}

func Validation(message string) *Error {
	return New(CodeValidation, "", message)
}

func Persistence(err error, message string) *Error {
	return Wrap(err, CodePersistence, "", message)
}

func Transport(err error, message string) *Error {
	return Wrap(err, CodeTransport, "", message)
}

// As returns err as *Error. Errors outside the taxonomy become INTERNAL_ERROR.
func As(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{Code: CodeInternal, Message: "internal error", Cause: err}
}

// HasCode reports whether err is an *Error with the given code and reason.
// An empty reason matches any reason.
func HasCode(err error, code Code, reason Reason) bool {
	return errors.Is(err, &Error{Code: code, Reason: reason})
}

// WriteHTTP writes err as a JSON error body.
func WriteHTTP(w http.ResponseWriter, err error) {
	e := As(err)
	message := e.Message
	if e.Code == CodeInternal {
		message = "internal error"
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.HTTPStatus())
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"code":    e.Code,
			"reason":  e.Reason,
			"message": message,
		},
	})
}
