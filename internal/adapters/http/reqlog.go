package http

import (
	"context"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type ctxKey string

const loggerKey ctxKey = "logger"

var tracer = otel.Tracer("github.com/samirrijal/fleetview/internal/adapters/http")

// RequestContextMiddleware opens a server span for the request and stores a
// request-scoped logger carrying the request ID in the user context, so fetch
// procedures started by the handler log and trace under the same request.
func RequestContextMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, span := tracer.Start(c.UserContext(), c.Method()+" "+c.Path(),
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.method", c.Method()),
				attribute.String("http.target", c.OriginalURL()),
			),
		)
		defer span.End()

		reqLogger := slog.Default()
		if rid, ok := c.Locals("requestid").(string); ok && rid != "" {
			reqLogger = reqLogger.With("request_id", rid)
			span.SetAttributes(attribute.String("http.request_id", rid))
		}
		c.SetUserContext(context.WithValue(ctx, loggerKey, reqLogger))

		err := c.Next()

		status := c.Response().StatusCode()
		span.SetAttributes(attribute.Int("http.status_code", status))
		if err != nil || status >= fiber.StatusInternalServerError {
			span.SetStatus(codes.Error, "request failed")
		}
		return err
	}
}

// LoggerFromCtx extracts the per-request slog.Logger from a context.
// Falls back to the default logger if none is set.
func LoggerFromCtx(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}
