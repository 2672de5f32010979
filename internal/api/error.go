package api

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

var (
	// ErrInvalid is the inner error for errors that convert to a 400.
	ErrInvalid = errors.New("bad request")
	// ErrNotFound is the inner error for errors that convert to a 404.
	ErrNotFound = errors.New("not found")
)

// AsValidationError returns an error that wraps ErrInvalid, so that errors.Is can identify it.
func AsValidationError(msg string, args ...interface{}) error {
	return errors.Wrapf(ErrInvalid, msg, args...)
}

// AsErrNotFound returns an error that wraps ErrNotFound, so that errors.Is can identify it.
func AsErrNotFound(msg string, args ...interface{}) error {
	return errors.Wrapf(ErrNotFound, msg, args...)
}

// JSONErrorHandler sends a JSON response with a single "message" key containing the error message.
func JSONErrorHandler(err error, c echo.Context) {
	// Default to a 500 internal server error unless the endpoint explicitly returns otherwise.
	var (
		code             = http.StatusInternalServerError
		msg  interface{} = err.Error()
	)
	var he *echo.HTTPError
	switch {
	case errors.As(err, &he):
		code, msg = he.Code, he.Message
	case errors.Is(err, ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, ErrInvalid):
		code = http.StatusBadRequest
	}
	if code >= 500 {
		c.Logger().Error(err)
	}
	if c.Response().Committed {
		return
	}
	// For the HEAD method, the server MUST NOT return a message-body in the response.
	if c.Request().Method == http.MethodHead {
		err = c.NoContent(code)
	} else {
		err = c.JSON(code, map[string]interface{}{"message": fmt.Sprint(msg)})
	}
	if err != nil {
		c.Logger().Error(err)
	}
}
