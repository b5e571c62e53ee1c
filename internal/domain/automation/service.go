package automation

import (
	"context"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/readerfleet/internal/domain/account"
	"github.com/GriffinCanCode/readerfleet/internal/domain/controller"
	"github.com/GriffinCanCode/readerfleet/internal/domain/guard"
	"github.com/GriffinCanCode/readerfleet/internal/domain/handlers"
	"github.com/GriffinCanCode/readerfleet/internal/domain/lifecycle"
	"github.com/GriffinCanCode/readerfleet/internal/domain/statemachine"
	"github.com/GriffinCanCode/readerfleet/internal/shared/fault"
	"github.com/GriffinCanCode/readerfleet/internal/shared/utils"
)

// Deps are the service's collaborators. Guard, Lifecycle and Controller
// are required.
type Deps struct {
	Guard        *guard.Guard
	Lifecycle    *lifecycle.Orchestrator
	Controller   *controller.Controller
	Fingerprints *utils.Fingerprinter
	Logger       *zap.Logger
}

// Service runs account requests end to end
type Service struct {
	guard        *guard.Guard
	lifecycle    *lifecycle.Orchestrator
	controller   *controller.Controller
	fingerprints *utils.Fingerprinter
	logger       *zap.Logger
}

// New creates a service
func New(deps Deps) *Service {
	s := &Service{
		guard:        deps.Guard,
		lifecycle:    deps.Lifecycle,
		controller:   deps.Controller,
		fingerprints: deps.Fingerprints,
		logger:       deps.Logger,
	}
	if s.fingerprints == nil {
		s.fingerprints = utils.NewFingerprinter(nil)
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s
}

// Lifecycle returns the orchestrator the service drives
func (s *Service) Lifecycle() *lifecycle.Orchestrator {
	return s.lifecycle
}

// Lanes reports request guard usage
func (s *Service) Lanes() guard.Stats {
	return s.guard.Stats()
}

// ExecuteAction performs action on the account's device. Identical
// requests arriving while one is in flight share its result.
func (s *Service) ExecuteAction(ctx context.Context, accountID, action string, params handlers.Params) (*controller.ActionResult, error) {
	if err := account.ValidateID(accountID); err != nil {
		return nil, fault.New(fault.KindInvalidRequest, "automation.execute", "%v", err).WithAccount(accountID)
	}
	accountID = account.NormalizeID(accountID)
	act := statemachine.Action(strings.ToLower(strings.TrimSpace(action)))
	if !s.controller.Table().Knows(act) {
		return nil, fault.New(fault.KindInvalidRequest, "automation.execute", "unknown action %q", action).
			WithAccount(accountID).WithAction(action)
	}
	if params == nil {
		params = handlers.Params{}
	}

	fp, err := s.fingerprint(act, params)
	if err != nil {
		return nil, fault.New(fault.KindInvalidRequest, "automation.execute", "params: %v", err).
			WithAccount(accountID).WithAction(string(act))
	}

	v, shared, err := s.guard.Do(ctx, accountID, fp, string(act), func(ctx context.Context) (interface{}, error) {
		return s.run(ctx, accountID, act, params)
	})
	if err != nil {
		return nil, err
	}
	res := *v.(*controller.ActionResult)
	res.Shared = shared
	return &res, nil
}

func (s *Service) fingerprint(action statemachine.Action, params handlers.Params) (string, error) {
	if statemachine.NonCoalescing[action] {
		return s.fingerprints.Unique(string(action)), nil
	}
	return s.fingerprints.Fingerprint(string(action), params)
}

// run executes on the held lane, retrying once after a fault the driver
// recovers from
func (s *Service) run(ctx context.Context, accountID string, action statemachine.Action, params handlers.Params) (*controller.ActionResult, error) {
	log := s.logger.With(zap.String("account_id", accountID), zap.String("action", string(action)))

	for attempt := 0; ; attempt++ {
		d, err := s.lifecycle.EnsureRunning(ctx, accountID)
		if err != nil {
			return nil, err
		}
		res, err := s.controller.Execute(ctx, controller.Target{AccountID: accountID, Driver: d}, action, params)
		if err == nil || !fault.Is(err, fault.KindDriverFault) {
			return res, err
		}

		healthy, rerr := s.lifecycle.Recover(ctx, accountID)
		switch {
		case rerr != nil:
			log.Error("recovery failed", zap.Error(rerr), zap.NamedError("fault", err))
			return nil, err
		case !healthy:
			log.Error("driver did not recover, instance needs recreate", zap.Error(err))
			return nil, withHint(err, fault.HintRecreate)
		case attempt >= 1:
			log.Warn("action failed again after recovery", zap.Error(err))
			return nil, err
		}
		log.Info("driver recovered, retrying action", zap.Error(err))
	}
}

func withHint(err error, hint fault.Hint) error {
	if e, ok := fault.As(err); ok {
		e.Hint = hint
	}
	return err
}

// Screenshot captures the account's screen. The instance must already be
// running; a screenshot never boots one.
func (s *Service) Screenshot(ctx context.Context, accountID string) ([]byte, string, error) {
	st, err := s.lifecycle.Status(ctx, accountID)
	if err != nil {
		return nil, "", err
	}
	switch st.Instance.Status {
	case lifecycle.StatusRunning:
	case lifecycle.StatusCrashed:
		return nil, "", fault.New(fault.KindInstanceCrashed, "automation.screenshot", "instance %s crashed", st.Instance.InstanceID).
			WithAccount(st.Profile.AccountID)
	default:
		return nil, "", fault.New(fault.KindInvalidRequest, "automation.screenshot", "instance is %s", st.Instance.Status).
			WithAccount(st.Profile.AccountID)
	}

	accountID = st.Profile.AccountID
	v, _, err := s.guard.Do(ctx, accountID, "screenshot", "screenshot", func(ctx context.Context) (interface{}, error) {
		d, err := s.lifecycle.EnsureRunning(ctx, accountID)
		if err != nil {
			return nil, err
		}
		shot, err := d.Screenshot(ctx)
		if err != nil {
			return nil, fault.Wrap(fault.KindDriverFault, "automation.screenshot", err).WithAccount(accountID)
		}
		return shot, nil
	})
	if err != nil {
		return nil, "", err
	}
	shot := v.([]byte)
	return shot, mimetype.Detect(shot).String(), nil
}

// Transitions lists every legal (view, action) edge
func (s *Service) Transitions() []statemachine.Transition {
	return s.controller.Table().Transitions()
}

// IdleSweep pauses instances idle longer than timeout. A zero timeout
// uses the configured idle timeout.
func (s *Service) IdleSweep(ctx context.Context, timeout time.Duration) (lifecycle.SweepReport, error) {
	if timeout < 0 {
		return lifecycle.SweepReport{}, fault.New(fault.KindInvalidRequest, "automation.idle_sweep", "negative timeout %s", timeout)
	}
	return s.lifecycle.IdleSweep(ctx, timeout), nil
}

// CrashGate is a before hook that stops actions on an instance marked
// Crashed while the action was queued
func CrashGate(o *lifecycle.Orchestrator) controller.Hook {
	return func(ctx context.Context, target controller.Target, tr *statemachine.Transition) error {
		if o.Crashed(target.AccountID) {
			return fault.New(fault.KindInstanceCrashed, "automation.hook", "instance crashed").
				WithAccount(target.AccountID).WithAction(string(tr.Action))
		}
		return nil
	}
}

// TouchActivity is an after hook that refreshes the account's last
// activity once a handler has interacted with the device
func TouchActivity(o *lifecycle.Orchestrator) controller.Hook {
	return func(ctx context.Context, target controller.Target, tr *statemachine.Transition) error {
		return o.Touch(ctx, target.AccountID)
	}
}
