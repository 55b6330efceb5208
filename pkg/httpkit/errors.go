package httpkit

import (
	"errors"
	"net/http"
)

// Kind is one of the semantic error kinds from the error taxonomy.
type Kind string

const (
	KindInvalidInput        Kind = "INVALID_INPUT"
	KindInvalidAmount       Kind = "INVALID_AMOUNT"
	KindUnauthorized        Kind = "UNAUTHORIZED"
	KindForbidden           Kind = "FORBIDDEN"
	KindNotFound            Kind = "NOT_FOUND"
	KindEmailConflict       Kind = "EMAIL_CONFLICT"
	KindInsufficientBalance Kind = "INSUFFICIENT_BALANCE"
	KindInternal            Kind = "INTERNAL"
)

// AppError is the one error type every handler surfaces to the HTTP layer.
type AppError struct {
	Kind    Kind
	Message string
	Details any
}

func (e *AppError) Error() string { return e.Message }

func NewAppError(kind Kind, message string) *AppError {
	return &AppError{Kind: kind, Message: message}
}

func (e *AppError) WithDetails(details any) *AppError {
	e.Details = details
	return e
}

var kindStatus = map[Kind]int{
	KindInvalidInput:        http.StatusBadRequest,
	KindInvalidAmount:       http.StatusBadRequest,
	KindUnauthorized:        http.StatusUnauthorized,
	KindForbidden:           http.StatusForbidden,
	KindNotFound:            http.StatusNotFound,
	KindEmailConflict:       http.StatusConflict,
	KindInsufficientBalance: http.StatusBadRequest,
	KindInternal:            http.StatusInternalServerError,
}

// StatusFor maps err to its HTTP status. Non-AppError errors map to 500.
func StatusFor(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		if status, ok := kindStatus[appErr.Kind]; ok {
			return status
		}
	}
	return http.StatusInternalServerError
}

// WriteError renders err as the standard {error, details?} envelope.
func WriteError(w http.ResponseWriter, err error) {
	status := StatusFor(err)

	var appErr *AppError
	if errors.As(err, &appErr) {
		body := map[string]any{"error": string(appErr.Kind)}
		if appErr.Details != nil {
			body["details"] = appErr.Details
		}
		WriteJSON(w, status, body)
		return
	}

	// Never leak internals on an unclassified (5xx) failure.
	WriteJSON(w, http.StatusInternalServerError, map[string]any{"error": string(KindInternal)})
}
