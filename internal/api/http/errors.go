package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/GriffinCanCode/readerfleet/internal/shared/fault"
)

// statusCodes maps each fault kind to a stable HTTP status
var statusCodes = map[fault.Kind]int{
	fault.KindIllegalTransition:   http.StatusConflict,
	fault.KindViewUnrecognized:    http.StatusUnprocessableEntity,
	fault.KindDriverFault:         http.StatusBadGateway,
	fault.KindEmulatorBootTimeout: http.StatusGatewayTimeout,
	fault.KindInstanceCrashed:     http.StatusServiceUnavailable,
	fault.KindNoCapacity:          http.StatusServiceUnavailable,
	fault.KindConcurrencyTimeout:  http.StatusTooManyRequests,
	fault.KindInvalidRequest:      http.StatusBadRequest,
	fault.KindProfileNotFound:     http.StatusNotFound,
}

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error      string            `json:"error"`
	Kind       string            `json:"kind"`
	Hint       fault.Hint        `json:"hint"`
	Diagnostic *fault.Diagnostic `json:"diagnostic,omitempty"`
}

// StatusFor returns the HTTP status for err
func StatusFor(err error) int {
	if e, ok := fault.As(err); ok {
		if code, ok := statusCodes[e.Kind]; ok {
			return code
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func writeError(c *gin.Context, err error) {
	resp := ErrorResponse{
		Error: err.Error(),
		Kind:  fault.KindOf(err).String(),
		Hint:  fault.HintOf(err),
	}
	if e, ok := fault.As(err); ok {
		resp.Diagnostic = e.Diagnostic
	}
	c.AbortWithStatusJSON(StatusFor(err), resp)
}

func badRequest(c *gin.Context, format string, args ...interface{}) {
	writeError(c, fault.New(fault.KindInvalidRequest, "http", format, args...))
}
