package errors

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Machine-readable error codes surfaced to clients. Validation, integrity
// and payload failures are terminal for the attempt; only TRANSIENT is
// eligible for client-side retry.
const (
	CodeValidation      = "VALIDATION_ERROR"
	CodeIntegrity       = "INTEGRITY_ERROR"
	CodePayload         = "PAYLOAD_ERROR"
	CodeUnauthorized    = "UNAUTHORIZED"
	CodeForbidden       = "FORBIDDEN"
	CodeNotFound        = "NOT_FOUND"
	CodeConflict        = "CONFLICT"
	CodeAlreadyResolved = "ALREADY_RESOLVED"
	CodeUnprocessable   = "UNPROCESSABLE"
	CodeInternal        = "INTERNAL_ERROR"
	CodeTransient       = "TRANSIENT"
)

// APIError is the application error type. Status maps to the HTTP response
// code at the boundary; Internal carries the wrapped cause and is logged,
// never serialized.
type APIError struct {
	Status   int    `json:"-"`
	Code     string `json:"code"`
	Message  string `json:"error"`
	Internal error  `json:"-"`
}

func (e *APIError) Error() string {
	if e.Internal != nil {
		return e.Message + ": " + e.Internal.Error()
	}
	return e.Message
}

// Unwrap returns the original error
func (e *APIError) Unwrap() error {
	return e.Internal
}

func New(status int, code string, message string, err error) *APIError {
	return &APIError{
		Status:   status,
		Code:     code,
		Message:  message,
		Internal: err,
	}
}

// NewValidationError wraps a binding/validation failure, naming the
// offending fields when the cause is a field validation error.
func NewValidationError(err error) *APIError {
	message := "Invalid input"

	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		fields := make([]string, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			fields = append(fields, fe.Field())
		}
		message = "Invalid input: " + strings.Join(fields, ", ")
	}

	return New(http.StatusBadRequest, CodeValidation, message, err)
}

func BadRequest(message string, err error) *APIError {
	return New(http.StatusBadRequest, CodeValidation, message, err)
}

// Payload signals an unparseable or undecompressable payload. Retrying the
// same bytes cannot succeed, so clients must not retry.
func Payload(message string, err error) *APIError {
	return New(http.StatusBadRequest, CodePayload, message, err)
}

// Integrity signals a content-hash mismatch. This is a corruption signal,
// not a concurrency signal; it is never resolved, only rejected.
func Integrity(message string, err error) *APIError {
	return New(http.StatusUnprocessableEntity, CodeIntegrity, message, err)
}

func Unauthorized(message string, err error) *APIError {
	return New(http.StatusUnauthorized, CodeUnauthorized, message, err)
}

func Forbidden(message string, err error) *APIError {
	return New(http.StatusForbidden, CodeForbidden, message, err)
}

func NotFound(message string, err error) *APIError {
	return New(http.StatusNotFound, CodeNotFound, message, err)
}

func Conflict(message string, err error) *APIError {
	return New(http.StatusConflict, CodeConflict, message, err)
}

// AlreadyResolved is the idempotency guard for conflict resolution.
func AlreadyResolved(message string, err error) *APIError {
	return New(http.StatusConflict, CodeAlreadyResolved, message, err)
}

func UnprocessableEntity(message string, err error) *APIError {
	return New(http.StatusUnprocessableEntity, CodeUnprocessable, message, err)
}

func Internal(err error) *APIError {
	return New(http.StatusInternalServerError, CodeInternal, "Internal server error", err)
}

// Transient marks timeouts and unavailability; the only class clients may
// retry automatically, with backoff.
func Transient(message string, err error) *APIError {
	return New(http.StatusServiceUnavailable, CodeTransient, message, err)
}
