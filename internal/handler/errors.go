package handler

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/storefront-auth/internal/service"
)

// errorBody is the envelope every failed request receives.
type errorBody struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Detail  string `json:"detail,omitempty"`
}

// ErrorHandler renders service and echo errors as errorBody.  Internal
// causes are included as detail only when dev is true.
func ErrorHandler(dev bool) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		status, body := render(err, dev)
		if status >= http.StatusInternalServerError {
			c.Logger().Errorf("%s %s: %v", c.Request().Method, c.Request().URL.Path, err)
		}
		var werr error
		if c.Request().Method == http.MethodHead {
			werr = c.NoContent(status)
		} else {
			werr = c.JSON(status, body)
		}
		if werr != nil {
			c.Logger().Errorf("write error response: %v", werr)
		}
	}
}

func render(err error, dev bool) (int, errorBody) {
	var ae *service.AppError
	if errors.As(err, &ae) {
		b := errorBody{Message: ae.Message, Code: ae.Code}
		if dev && ae.Err != nil {
			b.Detail = ae.Err.Error()
		}
		return ae.Status, b
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg := http.StatusText(he.Code)
		if s, ok := he.Message.(string); ok && s != "" {
			msg = s
		}
		b := errorBody{Message: msg, Code: codeForStatus(he.Code)}
		if dev && he.Internal != nil {
			b.Detail = he.Internal.Error()
		}
		return he.Code, b
	}

	b := errorBody{Message: "internal server error", Code: service.CodeInternal}
	if dev {
		b.Detail = err.Error()
	}
	return http.StatusInternalServerError, b
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return service.CodeBadRequest
	case http.StatusUnauthorized:
		return service.CodeUnauthorized
	case http.StatusForbidden:
		return service.CodeForbidden
	case http.StatusNotFound:
		return service.CodeNotFound
	case http.StatusConflict:
		return service.CodeConflict
	case http.StatusMethodNotAllowed:
		return "METHOD_NOT_ALLOWED"
	case http.StatusRequestEntityTooLarge:
		return "PAYLOAD_TOO_LARGE"
	case http.StatusTooManyRequests:
		return "TOO_MANY_REQUESTS"
	}
	if status >= http.StatusInternalServerError {
		return service.CodeInternal
	}
	return fmt.Sprintf("HTTP_%d", status)
}
