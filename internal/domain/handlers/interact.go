package handlers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/readerfleet/internal/domain/device"
	"github.com/GriffinCanCode/readerfleet/internal/domain/screen"
	"github.com/GriffinCanCode/readerfleet/internal/domain/view"
	"github.com/GriffinCanCode/readerfleet/internal/shared/fault"
)

// ErrSettleTimeout means the screen kept changing for every settle attempt
var ErrSettleTimeout = errors.New("screen did not settle")

// SettleConfig bounds the poll-until-stable loop
type SettleConfig struct {
	Attempts int
	Interval time.Duration
}

// Settle snapshots until two consecutive trees share a signature. It
// returns the last tree with ErrSettleTimeout when attempts run out.
func Settle(ctx context.Context, d device.Driver, cfg SettleConfig) (*screen.Tree, error) {
	prev, err := d.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	attempts := cfg.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	for i := 0; i < attempts; i++ {
		if err := sleep(ctx, cfg.Interval); err != nil {
			return prev, err
		}
		cur, err := d.Snapshot(ctx)
		if err != nil {
			return prev, err
		}
		if cur.Signature() == prev.Signature() {
			return cur, nil
		}
		prev = cur
	}
	return prev, ErrSettleTimeout
}

// settle runs Settle against the env and refreshes its tree. A screen that
// never stabilises is not fatal between steps.
func (e *Env) settle(ctx context.Context) error {
	tree, err := Settle(ctx, e.Driver, e.Settle)
	if tree != nil {
		e.Tree = tree
	}
	if errors.Is(err, ErrSettleTimeout) {
		e.log().Debug("intermediate settle timed out", zap.String("account_id", e.AccountID))
		return nil
	}
	return driverFault("handlers.settle", err)
}

// find returns the first element any locator matches, re-snapshotting up
// to ElementRetries times while nothing does
func (e *Env) find(ctx context.Context, name string, locs ...view.Locator) (*screen.Element, view.Locator, error) {
	for attempt := 0; ; attempt++ {
		if el, loc, ok := first(e.Tree, locs); ok {
			return el, loc, nil
		}
		if attempt >= e.ElementRetries {
			break
		}
		if err := sleep(ctx, e.RetryDelay); err != nil {
			return nil, view.Locator{}, err
		}
		tree, err := e.Driver.Snapshot(ctx)
		if err != nil {
			return nil, view.Locator{}, driverFault("handlers.find", err)
		}
		e.Tree = tree
	}
	return nil, view.Locator{}, fault.Wrap(fault.KindDriverFault, "handlers.find",
		fmt.Errorf("%s: %w", name, device.ErrElementNotFound)).WithAccount(e.AccountID)
}

// has checks the current tree without retrying
func (e *Env) has(locs ...view.Locator) bool {
	_, _, ok := first(e.Tree, locs)
	return ok
}

func (e *Env) tap(ctx context.Context, name string, locs ...view.Locator) error {
	el, loc, err := e.find(ctx, name, locs...)
	if err != nil {
		return err
	}
	e.log().Debug("tap", zap.String("account_id", e.AccountID), zap.String("element", el.Describe()))
	return driverFault("handlers.tap", e.Driver.Tap(ctx, targetOf(el, loc, name)))
}

func (e *Env) typeInto(ctx context.Context, name, text string, locs ...view.Locator) error {
	el, loc, err := e.find(ctx, name, locs...)
	if err != nil {
		return err
	}
	return driverFault("handlers.type", e.Driver.TypeText(ctx, targetOf(el, loc, name), text))
}

func (e *Env) tapPoint(ctx context.Context, name string, p screen.Point) error {
	return driverFault("handlers.tap", e.Driver.Tap(ctx, device.Target{Point: p, Label: name}))
}

func targetOf(el *screen.Element, loc view.Locator, label string) device.Target {
	using, value := loc.Selector()
	p, _ := el.Center()
	return device.Target{Using: using, Value: value, Point: p, Label: label}
}

func first(tree *screen.Tree, locs []view.Locator) (*screen.Element, view.Locator, bool) {
	for _, l := range locs {
		if el, ok := l.Match(tree); ok {
			return el, l, true
		}
	}
	return nil, view.Locator{}, false
}

// driverFault classifies a driver error. Typed errors pass through.
func driverFault(op string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := fault.As(err); ok {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fault.Wrap(fault.KindDriverFault, op, err)
}

func sleep(ctx context.Context, d time.Duration) error {
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
