package appium

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/GriffinCanCode/readerfleet/internal/domain/device"
	"github.com/GriffinCanCode/readerfleet/internal/infrastructure/resilience"
)

// crashPatterns are message fragments Appium and UiAutomator2 emit when
// the session or the instrumentation behind it is gone
var crashPatterns = []string{
	"instrumentation process is not running",
	"failed to establish a new connection",
	"connection refused",
	"connection reset by peer",
	"a session is either terminated or not started",
	"nosuchdrivererror",
	"invalid session id",
	"invalidsessionidexception",
	"could not proxy command to the remote server",
	"socket hang up",
	"nosuchcontextexception",
	"invalidcontexterror",
}

// CommandError is a W3C error response from the server
type CommandError struct {
	Status  int
	Code    string
	Message string
	cause   error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("appium %d %s: %s", e.Status, e.Code, e.Message)
}

func (e *CommandError) Unwrap() error { return e.cause }

// classifyResponse turns a W3C error body into a typed error. Lost
// sessions unwrap to device.ErrDisconnected and missing elements to
// device.ErrElementNotFound.
func classifyResponse(status int, body []byte) error {
	value := gjson.GetBytes(body, "value")
	e := &CommandError{
		Status:  status,
		Code:    value.Get("error").String(),
		Message: value.Get("message").String(),
	}
	if e.Message == "" {
		e.Message = strings.TrimSpace(string(body))
	}

	switch {
	case e.Code == "no such element" || e.Code == "stale element reference":
		e.cause = device.ErrElementNotFound
	case e.Code == "invalid session id" || isCrashMessage(e.Message):
		e.cause = device.ErrDisconnected
	case status == http.StatusNotFound && e.Code == "":
		e.cause = device.ErrDisconnected
	}
	return e
}

// classifyTransport maps connection-level failures. An unreachable
// server is a lost session from the core's point of view.
func classifyTransport(err error) error {
	if errors.Is(err, device.ErrDisconnected) {
		return err
	}
	if isCrashMessage(err.Error()) || strings.Contains(strings.ToLower(err.Error()), "eof") {
		return fmt.Errorf("%w: %v", device.ErrDisconnected, err)
	}
	return err
}

func isCrashMessage(msg string) bool {
	lower := strings.ToLower(msg)
	for _, p := range crashPatterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

func isUIMiss(err error) bool {
	return errors.Is(err, device.ErrElementNotFound)
}

// normalize makes an open breaker look like a lost session to callers
func normalize(err error) error {
	if err != nil && resilience.IsRejection(err) {
		return fmt.Errorf("%w: %v", device.ErrDisconnected, err)
	}
	return err
}
