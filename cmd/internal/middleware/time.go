package middleware

import (
	"time"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Time stamps the request receipt time into the echo context so every
// handler in the chain agrees on a single authoritative time.
func Time(key string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			_, span := tracer.Start(c.Request().Context(), "Time")
			defer span.End()

			received := time.Now().UTC()
			c.Set(key, received)

			span.SetAttributes(
				attribute.String("key", key),
				attribute.String("time", received.Format(time.RFC3339Nano)),
			)
			span.RecordError(nil)
			span.SetStatus(codes.Ok, "set time")
			return next(c)
		}
	}
}

// RequestTime reads the receipt time stamped by Time, falling back to now
// when the middleware did not run.
func RequestTime(c echo.Context, key string) time.Time {
	if t, ok := c.Get(key).(time.Time); ok {
		return t
	}
	return time.Now().UTC()
}
