package http

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/samirrijal/fleetview/internal/core/usecases"
)

// APIError is a structured error response.
type APIError struct {
	Status    int    `json:"status"`
	Code      string `json:"code"`    // bad_request, not_found, conflict, bad_gateway, ...
	Message   string `json:"message"` // Human-readable message
	Step      string `json:"step,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// newError builds a JSON error response with a request ID.
func newError(c *fiber.Ctx, status int, code string, message string) error {
	reqID, _ := c.Locals("requestid").(string)
	return c.Status(status).JSON(APIError{
		Status:    status,
		Code:      code,
		Message:   message,
		RequestID: reqID,
	})
}

func errBadRequest(c *fiber.Ctx, msg string) error {
	return newError(c, fiber.StatusBadRequest, "bad_request", msg)
}

func errNotFound(c *fiber.Ctx, msg string) error {
	return newError(c, fiber.StatusNotFound, "not_found", msg)
}

func errInternal(c *fiber.Ctx, msg string) error {
	return newError(c, fiber.StatusInternalServerError, "internal_error", msg)
}

func errConflict(c *fiber.Ctx, msg string) error {
	return newError(c, fiber.StatusConflict, "conflict", msg)
}

// errFetch maps a fetch procedure failure to a response. Backend failures
// surface as 502; caller mistakes as 4xx.
func errFetch(c *fiber.Ctx, err error) error {
	if errors.Is(err, usecases.ErrSuperseded) {
		return errConflict(c, err.Error())
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return newError(c, fiber.StatusGatewayTimeout, "gateway_timeout", err.Error())
	}

	var fe *usecases.FetchError
	if !errors.As(err, &fe) {
		return errInternal(c, err.Error())
	}

	status, code := fiber.StatusBadGateway, "bad_gateway"
	switch fe.Kind {
	case usecases.KindInvalidWindow:
		status, code = fiber.StatusBadRequest, "invalid_window"
	case usecases.KindNoDevice:
		status, code = fiber.StatusNotFound, "no_device"
	}

	LoggerFromCtx(c.UserContext()).Warn("fetch failed",
		"step", fe.Step, "kind", string(fe.Kind), "error", fe.Err)

	reqID, _ := c.Locals("requestid").(string)
	return c.Status(status).JSON(APIError{
		Status:    status,
		Code:      code,
		Message:   fe.Error(),
		Step:      fe.Step,
		RequestID: reqID,
	})
}
