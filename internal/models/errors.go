package models

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gofiber/fiber/v2"
)

// Error codes surfaced to clients.
const (
	CodeNotFound     = "NOT_FOUND"
	CodeValidation   = "VALIDATION_ERROR"
	CodeUnauthorized = "UNAUTHORIZED"
	CodeService      = "SERVICE_ERROR"
	CodeRateLimited  = "RATE_LIMITED"
	CodeInternal     = "INTERNAL_ERROR"
)

// Stages name the remote step that failed in a service error.
const (
	StageProfile  = "profile"
	StageStorage  = "storage"
	StageDatabase = "database"
	StageSigning  = "signing"
)

var statusByCode = map[string]int{
	CodeValidation:   http.StatusBadRequest,
	CodeUnauthorized: http.StatusUnauthorized,
	CodeNotFound:     http.StatusNotFound,
	CodeRateLimited:  http.StatusTooManyRequests,
	CodeService:      http.StatusInternalServerError,
	CodeInternal:     http.StatusInternalServerError,
}

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Stage   string `json:"stage,omitempty"`
	Details string `json:"details,omitempty"`
}

// AppError is an error with a client-facing code and message. Err, when
// set, is the underlying cause and is reported as details.
type AppError struct {
	Code    string
	Message string
	Stage   string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *AppError) Unwrap() error { return e.Err }

// Response renders e for the client.
func (e *AppError) Response() ErrorResponse {
	r := ErrorResponse{Error: e.Message, Code: e.Code, Stage: e.Stage}
	if e.Err != nil {
		r.Details = e.Err.Error()
	}
	return r
}

// NewNotFoundError reports a missing resource.
func NewNotFoundError(resource string, id any) *AppError {
	return &AppError{Code: CodeNotFound, Message: fmt.Sprintf("%s with ID %v not found", resource, id)}
}

func NewValidationError(message string) *AppError {
	return &AppError{Code: CodeValidation, Message: message}
}

func NewUnauthorizedError(message string) *AppError {
	return &AppError{Code: CodeUnauthorized, Message: message}
}

// NewServiceError wraps a failure of a remote dependency at stage.
func NewServiceError(stage, message string, err error) *AppError {
	return &AppError{Code: CodeService, Message: message, Stage: stage, Err: err}
}

func NewRateLimitedError() *AppError {
	return &AppError{Code: CodeRateLimited, Message: "Too many requests, please try again later."}
}

func NewInternalError(err error) *AppError {
	return &AppError{Code: CodeInternal, Message: "Internal server error", Err: err}
}

// ErrorCode returns the code of the AppError in err's chain, or "".
func ErrorCode(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// HTTPStatus maps err's code to a status. Errors without a code are 500s.
func HTTPStatus(err error) int {
	if status, ok := statusByCode[ErrorCode(err)]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// RespondWithError writes err as an ErrorResponse with status.
func RespondWithError(c *fiber.Ctx, status int, err error) error {
	body := ErrorResponse{Error: err.Error()}
	var appErr *AppError
	if errors.As(err, &appErr) {
		body = appErr.Response()
	}
	return c.Status(status).JSON(body)
}
