package httpapi

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/Spok95/tutoring-platform/internal/apperr"
	"github.com/Spok95/tutoring-platform/internal/ctxutil"
	"github.com/Spok95/tutoring-platform/internal/metrics"
	"github.com/Spok95/tutoring-platform/internal/observability"
)

var kindStatus = map[apperr.Kind]int{
	apperr.KindBadRequest:   http.StatusBadRequest,
	apperr.KindUnauthorized: http.StatusUnauthorized,
	apperr.KindForbidden:    http.StatusForbidden,
	apperr.KindNotFound:     http.StatusNotFound,
	apperr.KindConflict:     http.StatusConflict,
}

type errorBody struct {
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// newErrorHandler — доменные ошибки в статусы; 5xx логируются и уходят в Sentry,
// клиенту возвращается только общий текст.
func newErrorHandler(log *zap.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		code := http.StatusInternalServerError
		body := errorBody{Message: http.StatusText(http.StatusInternalServerError)}

		var (
			herr *echo.HTTPError
			verr validator.ValidationErrors
			aerr *apperr.Error
		)
		switch {
		case errors.As(err, &verr):
			code = http.StatusBadRequest
			body = errorBody{Message: "validation failed"}
			if v, ok := c.Echo().Validator.(*echoValidator); ok {
				body.Fields = v.fieldErrors(verr)
			}
		case errors.As(err, &aerr) && aerr.Kind != apperr.KindInternal:
			code = kindStatus[aerr.Kind]
			body = errorBody{Message: aerr.Msg}
		case errors.As(err, &herr):
			code = herr.Code
			if msg, ok := herr.Message.(string); ok {
				body = errorBody{Message: msg}
			} else {
				body = errorBody{Message: http.StatusText(code)}
			}
		}

		if code >= http.StatusInternalServerError {
			metrics.HandlerErrors.Inc()
			ctx := c.Request().Context()
			rid, _ := ctxutil.RequestID(ctx)
			uid, _ := ctxutil.UserID(ctx)
			role, _ := ctxutil.Role(ctx)
			log.Error("handler error",
				zap.String("method", c.Request().Method), zap.String("route", c.Path()),
				zap.String("request_id", rid), zap.Int64("user_id", uid), zap.String("role", role),
				zap.Error(err))
			observability.CaptureErrWith(err, map[string]string{"route": c.Path(), "request_id": rid})
			if c.Echo().Debug {
				body.Message = err.Error()
			}
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(code)
		} else {
			err = c.JSON(code, body)
		}
		if err != nil {
			log.Warn("write error response", zap.Error(err))
		}
	}
}
