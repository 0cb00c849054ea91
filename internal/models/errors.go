package models

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
)

// ConnectionErrorMessage is shown when no server-supplied message is available.
const ConnectionErrorMessage = "Connection error"

// ErrorKind classifies failures the client can observe.
type ErrorKind string

const (
	// KindNetwork means no response was received.
	KindNetwork ErrorKind = "network"
	// KindStatus is a non-success status with a structured {error} body.
	KindStatus ErrorKind = "status"
	// KindUnparsed is a non-success status without a parseable body.
	KindUnparsed ErrorKind = "unparsed"
	// KindValidation is a client-side check that failed before any network call.
	KindValidation ErrorKind = "validation"
	// KindUnauthenticated means the action needs a signed-in viewer.
	KindUnauthenticated ErrorKind = "unauthenticated"
	// KindStale means the request's scope was cancelled and its result discarded.
	KindStale ErrorKind = "stale"
	// KindInternal is anything else.
	KindInternal ErrorKind = "internal"
)

// ErrorResponse represents a standardized API error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// AppError represents a custom application error
type AppError struct {
	Kind    ErrorKind
	Code    string
	Message string
	Status  int
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Predefined error constructors

func NewNetworkError(err error) *AppError {
	return &AppError{
		Kind:    KindNetwork,
		Code:    "NETWORK_ERROR",
		Message: ConnectionErrorMessage,
		Err:     err,
	}
}

func NewStatusError(status int, message string) *AppError {
	return &AppError{
		Kind:    KindStatus,
		Code:    "REQUEST_FAILED",
		Message: message,
		Status:  status,
	}
}

func NewUnparsedError(status int) *AppError {
	return &AppError{
		Kind:    KindUnparsed,
		Code:    "REQUEST_FAILED",
		Message: fmt.Sprintf("request failed with status %d", status),
		Status:  status,
	}
}

func NewValidationError(message string) *AppError {
	return &AppError{
		Kind:    KindValidation,
		Code:    "VALIDATION_ERROR",
		Message: message,
	}
}

func NewUnauthenticatedError(message string) *AppError {
	return &AppError{
		Kind:    KindUnauthenticated,
		Code:    "UNAUTHORIZED",
		Message: message,
	}
}

func NewStaleError(err error) *AppError {
	return &AppError{
		Kind:    KindStale,
		Code:    "STALE",
		Message: "request abandoned",
		Err:     err,
	}
}

func NewNotFoundError(resource string, id interface{}) *AppError {
	return &AppError{
		Kind:    KindStatus,
		Code:    "NOT_FOUND",
		Message: fmt.Sprintf("%s %v not found", resource, id),
		Status:  fiber.StatusNotFound,
	}
}

func NewInternalError(err error) *AppError {
	return &AppError{
		Kind:    KindInternal,
		Code:    "INTERNAL_ERROR",
		Message: "Internal server error",
		Err:     err,
	}
}

// KindOf reports the kind of err. Context cancellation counts as stale.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	if errors.Is(err, context.Canceled) {
		return KindStale
	}
	return KindInternal
}

// IsKind reports whether err is an AppError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}

// UserMessage is the text a notice shows for err: the server message when the
// backend sent one, the local message for validation and auth failures, and a
// generic connection error otherwise.
func UserMessage(err error) string {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return ConnectionErrorMessage
	}
	switch appErr.Kind {
	case KindStatus, KindValidation, KindUnauthenticated:
		if appErr.Message != "" {
			return appErr.Message
		}
	}
	return ConnectionErrorMessage
}

// HTTPStatus maps err onto the status the web shell answers with.
func HTTPStatus(err error) int {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return fiber.StatusInternalServerError
	}
	switch appErr.Kind {
	case KindValidation:
		return fiber.StatusBadRequest
	case KindUnauthenticated:
		return fiber.StatusUnauthorized
	case KindStatus:
		if appErr.Status >= 400 {
			return appErr.Status
		}
		return fiber.StatusBadGateway
	case KindNetwork, KindUnparsed:
		return fiber.StatusBadGateway
	case KindStale:
		return fiber.StatusRequestTimeout
	}
	return fiber.StatusInternalServerError
}

// RespondWithError creates a standardized error response. A zero status is
// derived from the error kind.
func RespondWithError(c *fiber.Ctx, status int, err error) error {
	if status == 0 {
		status = HTTPStatus(err)
	}

	var response ErrorResponse
	var appErr *AppError
	if errors.As(err, &appErr) {
		response = ErrorResponse{
			Error: appErr.Message,
			Code:  appErr.Code,
		}
		if appErr.Err != nil && appErr.Kind != KindNetwork {
			response.Details = appErr.Err.Error()
		}
	} else {
		response = ErrorResponse{
			Error: err.Error(),
		}
	}

	return c.Status(status).JSON(response)
}
