package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/auth-service/internal/service"
)

// statusOf maps a service error kind to its HTTP status and error code.
func statusOf(k service.Kind) (int, string) {
	switch k {
	case service.KindValidation:
		return http.StatusBadRequest, "validation_error"
	case service.KindUnauthorized:
		return http.StatusUnauthorized, "unauthorized"
	case service.KindConflict:
		return http.StatusConflict, "conflict"
	case service.KindNotFound:
		return http.StatusNotFound, "not_found"
	case service.KindUnavailable:
		return http.StatusServiceUnavailable, "unavailable"
	}
	return http.StatusInternalServerError, "internal"
}

// fail writes err as the error envelope. Causes of 5xx responses are
// logged; only the client-facing message leaves the process.
func fail(c echo.Context, logger *zap.Logger, err error) error {
	status, code := statusOf(service.KindOf(err))
	if status >= http.StatusInternalServerError {
		logger.Error("request failed",
			zap.String("path", c.Path()),
			zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			zap.Error(err))
	}
	return errorJSON(c, status, code, service.MessageOf(err))
}

func orGlobal(logger *zap.Logger) *zap.Logger {
	if logger == nil {
		return zap.L()
	}
	return logger
}

func errorJSON(c echo.Context, status int, code, message string) error {
	return c.JSON(status, echo.Map{"error": echo.Map{"code": code, "message": message}})
}

func badBody(c echo.Context) error {
	return errorJSON(c, http.StatusBadRequest, "validation_error", "Invalid request body.")
}

func message(c echo.Context, status int, msg string) error {
	return c.JSON(status, echo.Map{"message": msg})
}
