package echo

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// RequestLogger assigns each request a uuid and threads a zerolog
// logger carrying it through the request context, so storage and
// issuance log lines correlate back to the request.
func RequestLogger(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			reqID := uuid.NewString()
			reqLogger := logger.With().
				Str("request_id", reqID).
				Str("method", c.Request().Method).
				Str("path", c.Request().URL.Path).
				Logger()

			ctx := reqLogger.WithContext(c.Request().Context())
			c.SetRequest(c.Request().WithContext(ctx))
			c.Response().Header().Set(echo.HeaderXRequestID, reqID)

			return next(c)
		}
	}
}
