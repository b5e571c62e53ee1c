package handlers

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/readerfleet/internal/domain/device"
	"github.com/GriffinCanCode/readerfleet/internal/domain/screen"
	"github.com/GriffinCanCode/readerfleet/internal/domain/statemachine"
	"github.com/GriffinCanCode/readerfleet/internal/domain/view"
	"github.com/GriffinCanCode/readerfleet/internal/shared/fault"
)

// ErrUnsupportedAction is returned when a handler is asked to perform an
// action it does not implement
var ErrUnsupportedAction = errors.New("action not supported by handler")

// Handler performs the device interactions of one family of transitions
type Handler interface {
	Kind() statemachine.HandlerKind
	Handle(ctx context.Context, env *Env, action statemachine.Action) (*Outcome, error)
}

// Outcome is what a handler reports back besides success
type Outcome struct {
	Payload map[string]interface{}
}

func payload(kv ...interface{}) *Outcome {
	out := &Outcome{Payload: make(map[string]interface{}, len(kv)/2)}
	for i := 0; i+1 < len(kv); i += 2 {
		if k, ok := kv[i].(string); ok {
			out.Payload[k] = kv[i+1]
		}
	}
	return out
}

// Env is the per-invocation context a handler works against
type Env struct {
	AccountID string
	Driver    device.Driver
	Tree      *screen.Tree
	Params    Params
	// From is the view the transition starts from
	From view.View

	ElementRetries int
	RetryDelay     time.Duration
	Settle         SettleConfig

	Logger *zap.Logger
}

func (e *Env) log() *zap.Logger {
	if e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger
}

// Params are the caller-supplied action arguments
type Params map[string]interface{}

// String returns a string parameter
func (p Params) String(key string) (string, bool) {
	v, ok := p[key]
	if !ok || v == nil {
		return "", false
	}
	switch s := v.(type) {
	case string:
		return s, s != ""
	case fmt.Stringer:
		return s.String(), true
	default:
		return fmt.Sprint(v), true
	}
}

// Require returns a mandatory string parameter
func (p Params) Require(action statemachine.Action, key string) (string, error) {
	s, ok := p.String(key)
	if !ok {
		return "", fault.New(fault.KindInvalidRequest, "handlers.params", "%s requires parameter %q", action, key).
			WithAction(string(action))
	}
	return s, nil
}

// Int returns a numeric parameter. JSON numbers arrive as float64.
func (p Params) Int(key string, def int) int {
	switch v := p[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

// Bool returns a boolean parameter
func (p Params) Bool(key string, def bool) bool {
	switch v := p[key].(type) {
	case bool:
		return v
	case string:
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

// Registry maps handler kinds to implementations. It is closed: built once
// and never mutated.
type Registry struct {
	handlers map[statemachine.HandlerKind]Handler
}

// NewRegistry builds a registry, rejecting duplicate kinds
func NewRegistry(hs ...Handler) (*Registry, error) {
	r := &Registry{handlers: make(map[statemachine.HandlerKind]Handler, len(hs))}
	for _, h := range hs {
		if h == nil {
			return nil, errors.New("nil handler")
		}
		if _, dup := r.handlers[h.Kind()]; dup {
			return nil, fmt.Errorf("handler %q registered twice", h.Kind())
		}
		r.handlers[h.Kind()] = h
	}
	return r, nil
}

// DefaultRegistry returns the registry of every shipped handler
func DefaultRegistry() *Registry {
	r, err := NewRegistry(
		&AuthHandler{},
		&ChallengeHandler{},
		&DialogHandler{},
		NewLibraryHandler(nil),
		&HomeHandler{},
		&ReaderHandler{},
		&SettingsHandler{},
	)
	if err != nil {
		panic(err)
	}
	return r
}

// Get returns the handler for kind
func (r *Registry) Get(kind statemachine.HandlerKind) (Handler, bool) {
	h, ok := r.handlers[kind]
	return h, ok
}

// Has reports whether kind is registered
func (r *Registry) Has(kind statemachine.HandlerKind) bool {
	_, ok := r.handlers[kind]
	return ok
}

// Kinds lists the registered kinds, sorted
func (r *Registry) Kinds() []statemachine.HandlerKind {
	out := make([]statemachine.HandlerKind, 0, len(r.handlers))
	for k := range r.handlers {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func unsupported(kind statemachine.HandlerKind, action statemachine.Action) error {
	return fmt.Errorf("%s handler, %s: %w", kind, action, ErrUnsupportedAction)
}
