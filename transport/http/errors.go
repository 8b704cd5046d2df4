package http

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/kng-mtd/kvproxy"
)

// PlatformErrorCodeHeader shows the error code of a failed request.
const PlatformErrorCodeHeader = "X-Platform-Error-Code"

// ErrorHandler encodes errors as {"code", "message"} with a mapped status.
type ErrorHandler struct {
	Log kvproxy.Logger
}

// HandleHTTPError writes err with the status mapped from its code and sets
// the X-Platform-Error-Code header. Store and internal faults get an opaque
// message; the cause is logged instead.
func (h ErrorHandler) HandleHTTPError(ctx context.Context, err error, w http.ResponseWriter) {
	if err == nil {
		return
	}

	code := kvproxy.ErrorCode(err)
	httpCode, ok := statusCodeError[code]
	if !ok {
		httpCode = http.StatusInternalServerError
	}

	var e struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	e.Code = code
	switch code {
	case kvproxy.EStoreFault, kvproxy.EInternal:
		e.Message = "An internal error has occurred."
		if h.Log != nil {
			h.Log.Error("request failed", kvproxy.Fields{"code": code, "err": err, "request_id": RequestIDFromContext(ctx)})
		}
	default:
		e.Message = kvproxy.ErrorMessage(err)
	}

	w.Header().Set(PlatformErrorCodeHeader, code)
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(httpCode)
	b, _ := json.Marshal(e)
	_, _ = w.Write(b)
}

// statusCodeError maps kvproxy error codes to HTTP statuses.
var statusCodeError = map[string]int{
	kvproxy.EInvalid:          http.StatusBadRequest,
	kvproxy.EUnauthorized:     http.StatusUnauthorized,
	kvproxy.ENotFound:         http.StatusNotFound,
	kvproxy.EMethodNotAllowed: http.StatusMethodNotAllowed,
	kvproxy.ETooLarge:         http.StatusRequestEntityTooLarge,
	kvproxy.EStoreFault:       http.StatusInternalServerError,
	kvproxy.EInternal:         http.StatusInternalServerError,
}
