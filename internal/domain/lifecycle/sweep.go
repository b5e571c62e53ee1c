package lifecycle

import (
	"context"
	"errors"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/readerfleet/internal/domain/guard"
)

// SweepReport counts what one idle sweep did. Every examined instance
// lands in exactly one of ShutDown, Active, Failed or Skipped.
type SweepReport struct {
	Examined int               `json:"examined"`
	ShutDown int               `json:"shut_down"`
	Active   int               `json:"active"`
	Failed   int               `json:"failed"`
	Skipped  int               `json:"skipped"`
	Paused   []string          `json:"paused,omitempty"`
	Errors   map[string]string `json:"errors,omitempty"`
	Timeout  time.Duration     `json:"timeout_ns"`
}

// IdleSweep pauses running instances idle for longer than timeout. An
// instance with no recorded activity counts as idle. Booting instances
// and instances with a request in flight count as active.
func (o *Orchestrator) IdleSweep(ctx context.Context, timeout time.Duration) SweepReport {
	if timeout <= 0 {
		timeout = o.cfg.IdleTimeout
	}
	report := SweepReport{Timeout: timeout}
	now := o.now()

	for _, e := range o.snapshotEntries() {
		report.Examined++

		o.fleet.Lock()
		status := e.inst.Status
		accountID := e.profile.AccountID
		last := e.profile.LastActivity
		o.fleet.Unlock()

		switch status {
		case StatusRunning:
		case StatusBooting, StatusSnapshotting:
			report.Active++
			continue
		default:
			report.Skipped++
			continue
		}
		if !last.IsZero() && now.Sub(last) <= timeout {
			report.Active++
			continue
		}

		err := o.whenIdle(ctx, accountID, func(ctx context.Context) error {
			return o.Pause(ctx, accountID)
		})
		switch {
		case err == nil:
			report.ShutDown++
			report.Paused = append(report.Paused, accountID)
		case errors.Is(err, guard.ErrBusy):
			report.Active++
		default:
			report.Failed++
			if report.Errors == nil {
				report.Errors = make(map[string]string)
			}
			report.Errors[accountID] = err.Error()
			o.logger.Warn("idle pause failed", zap.String("account_id", accountID), zap.Error(err))
		}
	}

	sort.Strings(report.Paused)
	o.metrics.RecordSweep(report.ShutDown, report.Active, report.Failed, report.Skipped)
	o.logger.Info("idle sweep finished",
		zap.Int("examined", report.Examined),
		zap.Int("shut_down", report.ShutDown),
		zap.Int("active", report.Active),
		zap.Int("failed", report.Failed),
		zap.Int("skipped", report.Skipped))
	return report
}

// evictIdle pauses the least recently active running instance other than
// exclude whose lane is free. It reports whether a slot was freed.
func (o *Orchestrator) evictIdle(ctx context.Context, exclude string) bool {
	type candidate struct {
		accountID string
		last      time.Time
	}
	var candidates []candidate
	for _, e := range o.snapshotEntries() {
		o.fleet.Lock()
		if e.inst.Status == StatusRunning && e.profile.AccountID != exclude {
			candidates = append(candidates, candidate{e.profile.AccountID, e.profile.LastActivity})
		}
		o.fleet.Unlock()
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].last.Before(candidates[j].last)
	})

	for _, c := range candidates {
		err := o.whenIdle(ctx, c.accountID, func(ctx context.Context) error {
			return o.Pause(ctx, c.accountID)
		})
		if err == nil {
			o.logger.Info("evicted idle instance", zap.String("account_id", c.accountID), zap.String("for", exclude))
			return true
		}
		if !errors.Is(err, guard.ErrBusy) {
			o.logger.Warn("eviction failed", zap.String("account_id", c.accountID), zap.Error(err))
		}
	}
	return false
}

func (o *Orchestrator) whenIdle(ctx context.Context, accountID string, fn func(ctx context.Context) error) error {
	if o.lanes == nil {
		return fn(ctx)
	}
	return o.lanes.TryRun(ctx, accountID, fn)
}
