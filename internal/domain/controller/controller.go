package controller

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/readerfleet/internal/domain/account"
	"github.com/GriffinCanCode/readerfleet/internal/domain/device"
	"github.com/GriffinCanCode/readerfleet/internal/domain/handlers"
	"github.com/GriffinCanCode/readerfleet/internal/domain/screen"
	"github.com/GriffinCanCode/readerfleet/internal/domain/statemachine"
	"github.com/GriffinCanCode/readerfleet/internal/domain/view"
	"github.com/GriffinCanCode/readerfleet/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/readerfleet/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/readerfleet/internal/shared/fault"
)

// Target is the device an action runs against
type Target struct {
	AccountID string
	Driver    device.Driver
}

// ActionResult reports one executed action
type ActionResult struct {
	Action   statemachine.Action    `json:"action"`
	From     view.View              `json:"from"`
	View     view.View              `json:"view"`
	Success  bool                   `json:"success"`
	Warning  string                 `json:"warning,omitempty"`
	Payload  map[string]interface{} `json:"payload,omitempty"`
	Duration time.Duration          `json:"duration_ns"`
	Shared   bool                   `json:"shared,omitempty"`
}

// ProfileUpdater receives the observed outcome of an action. An empty
// auth state means the view proves nothing about sign-in.
type ProfileUpdater interface {
	RecordOutcome(ctx context.Context, accountID string, arrived view.View, auth account.AuthState) error
}

// Capturer persists artifacts of an unrecognized screen
type Capturer interface {
	Capture(ctx context.Context, accountID string, tree *screen.Tree, screenshot []byte, reason string) (*fault.Diagnostic, error)
}

// Hook runs around a handler. Before hooks abort the action by returning
// an error; after hook errors are logged.
type Hook func(ctx context.Context, target Target, tr *statemachine.Transition) error

// Config bounds the controller's local retries
type Config struct {
	UnknownRetries    int
	UnknownRetryDelay time.Duration
	ElementRetries    int
	ElementRetryDelay time.Duration
	Settle            handlers.SettleConfig
}

// DefaultConfig returns the shipped retry bounds
func DefaultConfig() Config {
	return Config{
		UnknownRetries:    3,
		UnknownRetryDelay: time.Second,
		ElementRetries:    3,
		ElementRetryDelay: 500 * time.Millisecond,
		Settle:            handlers.SettleConfig{Attempts: 5, Interval: 300 * time.Millisecond},
	}
}

// Deps are the controller's optional collaborators
type Deps struct {
	Updater     ProfileUpdater
	Diagnostics Capturer
	Before      []Hook
	After       []Hook
	Logger      *zap.Logger
	Metrics     *monitoring.Metrics
	Tracer      *tracing.Tracer
}

// Controller executes actions: observe, validate, dispatch, verify
type Controller struct {
	recognizer *view.Recognizer
	table      *statemachine.Table
	registry   *handlers.Registry
	cfg        Config
	deps       Deps
	logger     *zap.Logger
}

// New creates a controller
func New(recognizer *view.Recognizer, table *statemachine.Table, registry *handlers.Registry, cfg Config, deps Deps) *Controller {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		recognizer: recognizer,
		table:      table,
		registry:   registry,
		cfg:        cfg,
		deps:       deps,
		logger:     logger,
	}
}

// Table returns the transition table the controller validates against
func (c *Controller) Table() *statemachine.Table {
	return c.table
}

// Execute performs action on the target's device. A request that is
// illegal from the current view is rejected before any interaction.
func (c *Controller) Execute(ctx context.Context, target Target, action statemachine.Action, params handlers.Params) (res *ActionResult, err error) {
	start := time.Now()
	log := c.logger.With(zap.String("account_id", target.AccountID), zap.String("action", string(action)))

	span, ctx := c.deps.Tracer.StartSpan(ctx, "controller.execute")
	span.SetTag("account_id", target.AccountID)
	span.SetTag("action", string(action))
	defer func() {
		c.deps.Tracer.End(span, err)
		c.deps.Metrics.RecordAction(string(action), outcomeLabel(res, err), time.Since(start))
	}()

	if !c.table.Knows(action) {
		return nil, fault.New(fault.KindInvalidRequest, "controller.execute", "unknown action %q", action).
			WithAccount(target.AccountID).WithAction(string(action))
	}
	if target.Driver == nil {
		return nil, fault.New(fault.KindDriverFault, "controller.execute", "no driver attached").
			WithAccount(target.AccountID)
	}

	tree, current, err := c.observe(ctx, target, log)
	if err != nil {
		return nil, withContext(err, target.AccountID, "", action)
	}
	if current.View.IsUnknown() {
		return nil, c.unrecognized(ctx, target, tree, action, log)
	}
	log = log.With(zap.String("view", current.View.String()))

	tr, ok := c.table.Lookup(current.View, action)
	if !ok {
		c.deps.Metrics.RecordIllegalTransition(current.View.String(), string(action))
		log.Info("illegal transition rejected", zap.Strings("legal", actionNames(c.table.Actions(current.View))))
		return nil, fault.New(fault.KindIllegalTransition, "controller.execute",
			"%s is not legal from %s", action, current.View).
			WithAccount(target.AccountID).WithView(current.View.String()).WithAction(string(action))
	}

	h, ok := c.registry.Get(tr.Handler)
	if !ok {
		return nil, fault.New(fault.KindInvalidRequest, "controller.execute", "no handler %q", tr.Handler).
			WithAccount(target.AccountID).WithAction(string(action))
	}

	for _, hook := range c.deps.Before {
		if err := hook(ctx, target, tr); err != nil {
			return nil, withContext(err, target.AccountID, current.View.String(), action)
		}
	}

	out, err := c.handle(ctx, h, target, tree, tr, params)
	if err != nil {
		if fault.Is(err, fault.KindDriverFault) {
			c.deps.Metrics.RecordDriverFault(string(action))
		}
		log.Warn("handler failed", zap.Error(err))
		return nil, withContext(err, target.AccountID, current.View.String(), action)
	}

	for _, hook := range c.deps.After {
		if err := hook(ctx, target, tr); err != nil {
			log.Warn("after hook failed", zap.Error(err))
		}
	}

	arrived, err := c.verify(ctx, target, log)
	if err != nil {
		c.deps.Metrics.RecordDriverFault(string(action))
		return nil, withContext(err, target.AccountID, current.View.String(), action)
	}

	res = &ActionResult{
		Action:   action,
		From:     current.View,
		View:     arrived,
		Success:  tr.Accepts(arrived),
		Duration: time.Since(start),
	}
	if out != nil {
		res.Payload = out.Payload
	}
	if !res.Success {
		res.Warning = fmt.Sprintf("expected %s, arrived at %s", viewNames(tr.Targets), arrived)
		log.Warn("action landed outside accepted targets", zap.String("arrived", arrived.String()))
	} else {
		log.Info("action completed", zap.String("arrived", arrived.String()), zap.Duration("duration", res.Duration))
	}

	c.forward(ctx, target.AccountID, arrived, log)
	return res, nil
}

// Observe snapshots and recognizes the current screen without acting
func (c *Controller) Observe(ctx context.Context, target Target) (view.Result, error) {
	_, res, err := c.observe(ctx, target, c.logger.With(zap.String("account_id", target.AccountID)))
	return res, err
}

// observe snapshots and recognizes, retrying while the view is Unknown
func (c *Controller) observe(ctx context.Context, target Target, log *zap.Logger) (*screen.Tree, view.Result, error) {
	span, ctx := c.deps.Tracer.StartSpan(ctx, "controller.recognize")
	var (
		tree *screen.Tree
		res  view.Result
		err  error
	)
	defer func() { c.deps.Tracer.End(span, err) }()

	for attempt := 0; ; attempt++ {
		tree, err = target.Driver.Snapshot(ctx)
		if err != nil {
			err = classify("controller.snapshot", err)
			return nil, view.Result{}, err
		}
		res = c.recognizer.Recognize(tree)
		c.deps.Metrics.RecordRecognition(res.View.String())
		if len(res.Ambiguous) > 0 {
			log.Debug("ambiguous recognition", zap.String("view", res.View.String()), zap.Any("also", res.Ambiguous))
		}
		if !res.View.IsUnknown() || attempt >= c.cfg.UnknownRetries {
			span.SetTag("view", res.View.String())
			return tree, res, nil
		}
		log.Debug("screen unrecognized, retrying", zap.Int("attempt", attempt+1))
		if err = wait(ctx, c.cfg.UnknownRetryDelay); err != nil {
			err = classify("controller.snapshot", err)
			return nil, view.Result{}, err
		}
	}
}

func (c *Controller) unrecognized(ctx context.Context, target Target, tree *screen.Tree, action statemachine.Action, log *zap.Logger) error {
	e := fault.New(fault.KindViewUnrecognized, "controller.execute", "screen matched no known view after %d retries", c.cfg.UnknownRetries).
		WithAccount(target.AccountID).WithAction(string(action)).WithView(view.Of(view.Unknown).String())

	if c.deps.Diagnostics != nil {
		shot, err := target.Driver.Screenshot(ctx)
		if err != nil {
			log.Debug("screenshot for diagnostics failed", zap.Error(err))
		}
		diag, err := c.deps.Diagnostics.Capture(ctx, target.AccountID, tree, shot, "view_unrecognized")
		if err != nil {
			log.Warn("diagnostics capture failed", zap.Error(err))
		} else {
			e = e.WithDiagnostic(diag)
		}
	}

	fields := []zap.Field{}
	if e.Diagnostic != nil {
		fields = append(fields, zap.String("tree_path", e.Diagnostic.TreePath))
	}
	log.Warn("screen unrecognized", fields...)
	return e
}

func (c *Controller) handle(ctx context.Context, h handlers.Handler, target Target, tree *screen.Tree, tr *statemachine.Transition, params handlers.Params) (out *handlers.Outcome, err error) {
	span, ctx := c.deps.Tracer.StartSpan(ctx, "controller.handle")
	span.SetTag("handler", string(tr.Handler))
	defer func() { c.deps.Tracer.End(span, err) }()

	env := &handlers.Env{
		AccountID:      target.AccountID,
		Driver:         target.Driver,
		Tree:           tree,
		Params:         params,
		From:           tr.From,
		ElementRetries: c.cfg.ElementRetries,
		RetryDelay:     c.cfg.ElementRetryDelay,
		Settle:         c.cfg.Settle,
		Logger:         c.logger,
	}
	out, err = h.Handle(ctx, env, tr.Action)
	if errors.Is(err, handlers.ErrUnsupportedAction) {
		return nil, fault.Wrap(fault.KindInvalidRequest, "controller.handle", err)
	}
	if err != nil {
		return nil, classify("controller.handle", err)
	}
	return out, nil
}

// verify settles the screen and recognizes where the action landed
func (c *Controller) verify(ctx context.Context, target Target, log *zap.Logger) (arrived view.View, err error) {
	span, ctx := c.deps.Tracer.StartSpan(ctx, "controller.settle")
	defer func() { c.deps.Tracer.End(span, err) }()

	tree, err := handlers.Settle(ctx, target.Driver, c.cfg.Settle)
	switch {
	case errors.Is(err, handlers.ErrSettleTimeout):
		log.Debug("screen still changing after settle attempts")
		err = nil
	case err != nil:
		err = classify("controller.settle", err)
		return view.View{}, err
	}

	res := c.recognizer.Recognize(tree)
	c.deps.Metrics.RecordRecognition(res.View.String())
	if res.View.IsUnknown() {
		// transitions can pass through blank frames
		_, res, err = c.observe(ctx, target, log)
		if err != nil {
			return view.View{}, err
		}
	}
	return res.View, nil
}

func (c *Controller) forward(ctx context.Context, accountID string, arrived view.View, log *zap.Logger) {
	if c.deps.Updater == nil || arrived.IsUnknown() {
		return
	}
	auth, _ := statemachine.ImpliedAuth(arrived)
	if err := c.deps.Updater.RecordOutcome(ctx, accountID, arrived, auth); err != nil {
		log.Warn("recording outcome failed", zap.Error(err))
	}
}

// classify turns a non-typed failure into a DriverFault
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := fault.As(err); ok {
		return err
	}
	return fault.Wrap(fault.KindDriverFault, op, err)
}

func withContext(err error, accountID, current string, action statemachine.Action) error {
	e, ok := fault.As(err)
	if !ok {
		return err
	}
	if e.AccountID == "" {
		e.AccountID = accountID
	}
	if e.View == "" {
		e.View = current
	}
	if e.Action == "" {
		e.Action = string(action)
	}
	return e
}

func outcomeLabel(res *ActionResult, err error) string {
	switch {
	case err != nil:
		return fault.KindOf(err).String()
	case res != nil && !res.Success:
		return "warning"
	default:
		return "success"
	}
}

func actionNames(actions []statemachine.Action) []string {
	out := make([]string, len(actions))
	for i, a := range actions {
		out[i] = string(a)
	}
	return out
}

func viewNames(views []view.View) string {
	names := make([]string, len(views))
	for i, v := range views {
		names[i] = v.String()
	}
	return strings.Join(names, "|")
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
