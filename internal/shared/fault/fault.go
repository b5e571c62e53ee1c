package fault

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Kind classifies a failure crossing a component boundary
type Kind int

const (
	KindUnknown Kind = iota
	KindIllegalTransition
	KindViewUnrecognized
	KindDriverFault
	KindEmulatorBootTimeout
	KindInstanceCrashed
	KindConcurrencyTimeout
	KindInvalidRequest
	KindProfileNotFound
	KindNoCapacity
)

var kindNames = map[Kind]string{
	KindUnknown:             "unknown",
	KindIllegalTransition:   "illegal_transition",
	KindViewUnrecognized:    "view_unrecognized",
	KindDriverFault:         "driver_fault",
	KindEmulatorBootTimeout: "emulator_boot_timeout",
	KindInstanceCrashed:     "instance_crashed",
	KindConcurrencyTimeout:  "concurrency_timeout",
	KindInvalidRequest:      "invalid_request",
	KindProfileNotFound:     "profile_not_found",
	KindNoCapacity:          "no_capacity",
}

// String returns the wire name of the kind
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Hint tells the caller what to do next
type Hint string

const (
	HintNone       Hint = "none"
	HintRetry      Hint = "retry"
	HintRecreate   Hint = "recreate"
	HintFixRequest Hint = "fix_request"
)

// defaultHints maps each kind to its remediation when none is given
var defaultHints = map[Kind]Hint{
	KindIllegalTransition:   HintFixRequest,
	KindViewUnrecognized:    HintRetry,
	KindDriverFault:         HintRetry,
	KindEmulatorBootTimeout: HintRetry,
	KindInstanceCrashed:     HintRecreate,
	KindConcurrencyTimeout:  HintRetry,
	KindInvalidRequest:      HintFixRequest,
	KindProfileNotFound:     HintFixRequest,
	KindNoCapacity:          HintRetry,
}

// Diagnostic points at captured artifacts for offline debugging
type Diagnostic struct {
	TreePath       string    `json:"tree_path,omitempty"`
	ScreenshotPath string    `json:"screenshot_path,omitempty"`
	View           string    `json:"view,omitempty"`
	CapturedAt     time.Time `json:"captured_at"`
}

// Error is the typed failure returned by core components
type Error struct {
	Kind       Kind
	Op         string
	AccountID  string
	View       string
	Action     string
	Hint       Hint
	Message    string
	Diagnostic *Diagnostic
	Err        error
}

// New creates an error of the given kind
func New(kind Kind, op, format string, args ...interface{}) *Error {
	return &Error{
		Kind:    kind,
		Op:      op,
		Hint:    defaultHints[kind],
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap attaches a kind to an underlying error
func Wrap(kind Kind, op string, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Kind: kind,
		Op:   op,
		Hint: defaultHints[kind],
		Err:  err,
	}
}

// WithAccount sets the account context
func (e *Error) WithAccount(accountID string) *Error {
	e.AccountID = accountID
	return e
}

// WithView sets the view context
func (e *Error) WithView(view string) *Error {
	e.View = view
	return e
}

// WithAction sets the action context
func (e *Error) WithAction(action string) *Error {
	e.Action = action
	return e
}

// WithHint overrides the default remediation
func (e *Error) WithHint(hint Hint) *Error {
	e.Hint = hint
	return e
}

// WithDiagnostic attaches captured artifacts
func (e *Error) WithDiagnostic(d *Diagnostic) *Error {
	e.Diagnostic = d
	return e
}

func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Kind.String())
	if e.Op != "" {
		sb.WriteString(" in ")
		sb.WriteString(e.Op)
	}

	var ctx []string
	if e.AccountID != "" {
		ctx = append(ctx, "account="+e.AccountID)
	}
	if e.View != "" {
		ctx = append(ctx, "view="+e.View)
	}
	if e.Action != "" {
		ctx = append(ctx, "action="+e.Action)
	}
	if len(ctx) > 0 {
		sb.WriteString(" [")
		sb.WriteString(strings.Join(ctx, " "))
		sb.WriteString("]")
	}

	if e.Message != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Message)
	}
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// As extracts the first *Error in the chain
func As(err error) (*Error, bool) {
	var fe *Error
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}

// KindOf returns the kind of err, or KindUnknown
func KindOf(err error) Kind {
	if fe, ok := As(err); ok {
		return fe.Kind
	}
	return KindUnknown
}

// Is reports whether err carries the given kind
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// HintOf returns the remediation hint of err
func HintOf(err error) Hint {
	if fe, ok := As(err); ok && fe.Hint != "" {
		return fe.Hint
	}
	return HintNone
}
