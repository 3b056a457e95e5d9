package engine

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"configtree/internal/document"
	"configtree/internal/store"
)

type AppError struct {
	Code    string        `json:"code"`
	Status  int           `json:"-"`
	Message string        `json:"message"`
	Details []ErrorDetail `json:"details,omitempty"`
}

type ErrorDetail struct {
	Field   string   `json:"field,omitempty"`
	Value   *string  `json:"value,omitempty"`
	Allowed []string `json:"allowed"`
	Message string   `json:"message"`
}

func (e *AppError) Error() string {
	return e.Message
}

type ErrorResponse struct {
	Error *AppError `json:"error"`
}

func NewAppError(code string, status int, msg string) *AppError {
	return &AppError{Code: code, Status: status, Message: msg}
}

func NotFoundError(entity string, id any) *AppError {
	return &AppError{
		Code:    "NOT_FOUND",
		Status:  http.StatusNotFound,
		Message: fmt.Sprintf("%s with id %v not found", entity, id),
	}
}

func ConflictError(msg string) *AppError {
	return &AppError{Code: "CONFLICT", Status: http.StatusConflict, Message: msg}
}

func ValidationError(details []ErrorDetail) *AppError {
	return &AppError{
		Code:    "VALIDATION_FAILED",
		Status:  http.StatusUnprocessableEntity,
		Message: "Validation failed",
		Details: details,
	}
}

// EnumViolationError rejects a value that matches no literal of its enum family.
type EnumViolationError struct {
	Field   string
	Value   string
	Allowed []string
}

func (e *EnumViolationError) Error() string {
	return fmt.Sprintf("value %q is not allowed for %s; allowed: [%s]",
		e.Value, e.Field, strings.Join(e.Allowed, ", "))
}

// ToAppError maps engine, decoder and store errors to their HTTP form.
// Unknown errors yield nil so the caller can fall through to a 500.
func ToAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	var dup *document.DuplicateKeyError
	if errors.As(err, &dup) {
		return &AppError{
			Code:    "DUPLICATE_KEY",
			Status:  http.StatusBadRequest,
			Message: dup.Error(),
			Details: []ErrorDetail{{Field: dup.Key, Message: "key appears more than once in " + dup.Path}},
		}
	}

	var syn *document.SyntaxError
	if errors.As(err, &syn) {
		return &AppError{Code: "INVALID_JSON", Status: http.StatusBadRequest, Message: syn.Error()}
	}

	var enumErr *EnumViolationError
	if errors.As(err, &enumErr) {
		value := enumErr.Value
		allowed := enumErr.Allowed
		if allowed == nil {
			allowed = []string{}
		}
		return &AppError{
			Code:    "ENUM_VIOLATION",
			Status:  http.StatusBadRequest,
			Message: enumErr.Error(),
			Details: []ErrorDetail{{
				Field:   enumErr.Field,
				Value:   &value,
				Allowed: allowed,
				Message: "value does not match any allowed literal",
			}},
		}
	}

	switch {
	case errors.Is(err, store.ErrNotFound):
		return NewAppError("NOT_FOUND", http.StatusNotFound, "Resource not found")
	case errors.Is(err, store.ErrForeignKeyViolation):
		return ConflictError("Resource is still referenced by other records")
	case errors.Is(err, store.ErrUniqueViolation):
		return ConflictError("A record with this value already exists")
	}
	return nil
}

func UnauthorizedError(msg string) *AppError {
	return &AppError{Code: "UNAUTHORIZED", Status: http.StatusUnauthorized, Message: msg}
}
