package api

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"compliance-rag/types"
)

func ErrorHandler(c *fiber.Ctx, err error) error {
	var (
		apiErr   Error
		valErr   ValidationError
		stageErr *types.StageError
		fiberErr *fiber.Error
	)
	switch {
	case errors.As(err, &apiErr):
	case errors.As(err, &valErr):
		return c.Status(valErr.Status).JSON(valErr)
	case errors.As(err, &stageErr):
		apiErr = FromStageError(stageErr)
	case errors.As(err, &fiberErr):
		apiErr = NewError(fiberErr.Code, fiberErr.Message)
	default:
		apiErr = Error{Code: fiber.StatusInternalServerError, Message: "internal server error", Kind: "internal"}
	}

	if apiErr.Code >= fiber.StatusInternalServerError {
		slog.Error("request failed", "method", c.Method(), "path", c.Path(), "code", apiErr.Code, "error", err)
	}
	return c.Status(apiErr.Code).JSON(apiErr)
}

type Error struct {
	Code       int    `json:"code"`
	Message    string `json:"error"`
	Kind       string `json:"kind,omitempty"`
	InputError bool   `json:"input_error"`
}

type ValidationError struct {
	Status int               `json:"status"`
	Errors map[string]string `json:"errors"`
}

func (e ValidationError) Error() string {
	return "validation failed"
}

func NewValidationError(errors map[string]string) ValidationError {
	return ValidationError{
		Status: fiber.StatusUnprocessableEntity,
		Errors: errors,
	}
}

func (e Error) Error() string {
	return e.Message
}

func NewError(code int, err string) Error {
	return Error{
		Code:       code,
		Message:    err,
		InputError: code >= 400 && code < 500,
	}
}

// StatusFor maps an error kind to its HTTP status.
func StatusFor(kind error) int {
	switch {
	case errors.Is(kind, types.ErrUnsupportedFormat):
		return fiber.StatusUnsupportedMediaType
	case errors.Is(kind, types.ErrExtractionFailed), errors.Is(kind, types.ErrInvalidDocument):
		return fiber.StatusUnprocessableEntity
	case errors.Is(kind, types.ErrGenerationTimeout):
		return fiber.StatusGatewayTimeout
	case errors.Is(kind, types.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(kind, types.ErrRetrievalFailed):
		return fiber.StatusBadGateway
	}
	return fiber.StatusInternalServerError
}

func FromStageError(e *types.StageError) Error {
	return Error{
		Code:       StatusFor(e.Kind),
		Message:    e.Error(),
		Kind:       types.KindName(e.Kind),
		InputError: e.InputError(),
	}
}

func ErrBadRequest(msg string) Error {
	return Error{
		Code:       fiber.StatusBadRequest,
		Message:    msg,
		Kind:       "bad_request",
		InputError: true,
	}
}
