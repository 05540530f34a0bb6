package utils

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode is the machine-checkable reason attached to every denied action.
type ErrorCode string

const (
	CodeValidationFailed       ErrorCode = "validation_failed"
	CodeUnauthorized           ErrorCode = "unauthorized"
	CodeForbiddenActor         ErrorCode = "forbidden_actor"
	CodeNotFound               ErrorCode = "not_found"
	CodeInvalidTransition      ErrorCode = "invalid_status_transition"
	CodeConcurrentModification ErrorCode = "concurrent_modification"
	CodeStripeAccountRequired  ErrorCode = "stripe_account_required"
	CodeAuthorizationMissing   ErrorCode = "authorization_missing"
	CodePaymentProviderError   ErrorCode = "payment_provider_error"
	CodePaymentOutcomeUnknown  ErrorCode = "payment_outcome_unknown"
	CodeCodeNotFound           ErrorCode = "code_not_found"
	CodeCodeInvalid            ErrorCode = "code_invalid"
	CodeCodeExpired            ErrorCode = "code_expired"
	CodeCodeExhausted          ErrorCode = "code_exhausted"
	CodeCancellationNotAllowed ErrorCode = "cancellation_not_allowed"
	CodeEscrowNotHolding       ErrorCode = "escrow_not_holding"
	CodeEscrowNotFound         ErrorCode = "escrow_not_found"
	CodeTripUnavailable        ErrorCode = "trip_unavailable"
	CodeInvalidCredentials     ErrorCode = "invalid_credentials"
	CodeInternal               ErrorCode = "internal_error"
)

// AppError is an expected, typed failure. Message is safe to show to end users.
type AppError struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Status  int            `json:"-"`
	Details map[string]any `json:"details,omitempty"`
	Err     error          `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error { return e.Err }

// WithDetail returns a copy of e carrying an extra detail entry.
func (e *AppError) WithDetail(key string, value any) *AppError {
	cp := *e
	cp.Details = make(map[string]any, len(e.Details)+1)
	for k, v := range e.Details {
		cp.Details[k] = v
	}
	cp.Details[key] = value
	return &cp
}

func NewAppError(code ErrorCode, status int, message string) *AppError {
	return &AppError{Code: code, Status: status, Message: message}
}

func ErrValidation(fields map[string]string) *AppError {
	details := make(map[string]any, len(fields))
	for k, v := range fields {
		details[k] = v
	}
	return &AppError{Code: CodeValidationFailed, Status: http.StatusBadRequest, Message: "Validation failed", Details: details}
}

func ErrNotFound(what string) *AppError {
	return NewAppError(CodeNotFound, http.StatusNotFound, what+" not found")
}

func ErrForbidden(message string) *AppError {
	return NewAppError(CodeForbiddenActor, http.StatusForbidden, message)
}

func ErrInvalidTransition(from, action string) *AppError {
	return &AppError{
		Code:    CodeInvalidTransition,
		Status:  http.StatusConflict,
		Message: fmt.Sprintf("cannot %s a booking in status %s", action, from),
		Details: map[string]any{"status": from, "action": action},
	}
}

func ErrConcurrent() *AppError {
	return NewAppError(CodeConcurrentModification, http.StatusConflict, "booking is being modified by another request, retry shortly")
}

// ErrProvider wraps a payment provider failure. The cause is kept for logs only.
func ErrProvider(unknown bool, cause error) *AppError {
	if unknown {
		return &AppError{Code: CodePaymentOutcomeUnknown, Status: http.StatusBadGateway, Message: "payment provider did not answer in time, the operation is being reconciled", Err: cause}
	}
	return &AppError{Code: CodePaymentProviderError, Status: http.StatusBadGateway, Message: "payment provider rejected the operation", Err: cause}
}

// AsAppError unwraps err into an *AppError when it carries one.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// HasCode reports whether err is an *AppError with the given code.
func HasCode(err error, code ErrorCode) bool {
	appErr, ok := AsAppError(err)
	return ok && appErr.Code == code
}

func ErrUnauthorized(message string) *AppError {
	return NewAppError(CodeUnauthorized, http.StatusUnauthorized, message)
}

// ErrInternal hides cause from the client; it is kept for logs.
func ErrInternal(message string, cause error) *AppError {
	return &AppError{Code: CodeInternal, Status: http.StatusInternalServerError, Message: message, Err: cause}
}
