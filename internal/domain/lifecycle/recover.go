package lifecycle

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/readerfleet/internal/domain/device"
	"github.com/GriffinCanCode/readerfleet/internal/infrastructure/logging"
	"github.com/GriffinCanCode/readerfleet/internal/infrastructure/resilience"
)

// Recover probes the account's driver after a fault. It reports whether
// the instance is usable. Consecutive probe failures trip the
// instance's breaker, which marks the instance Crashed; from there only
// Recreate or Delete help. An emulator whose process is gone trips the
// breaker without probing.
func (o *Orchestrator) Recover(ctx context.Context, accountID string) (bool, error) {
	e, err := o.acquire(ctx, accountID, false)
	if err != nil {
		return false, err
	}
	defer e.mu.Unlock()

	inst := o.instance(e)
	switch inst.Status {
	case StatusCrashed:
		return false, nil
	case StatusRunning:
	default:
		// nothing live to probe; the next EnsureRunning boots it
		return true, nil
	}
	log := logging.ForAccount(o.logger, inst.AccountID).With(zap.String("instance_id", inst.InstanceID))

	if e.breaker == nil {
		e.breaker = o.newBreaker(e)
	}
	if _, err := o.emulator.Status(ctx, inst.Ref()); errors.Is(err, device.ErrNotRunning) {
		log.Warn("emulator process is gone")
		e.breaker.Trip()
		return false, o.markCrashed(ctx, e, log)
	}

	if e.driver == nil {
		d, err := o.connect(ctx, inst.Ref())
		if err != nil {
			log.Warn("reconnect failed", zap.Error(err))
			return false, nil
		}
		e.driver = d
	}

	for attempt := 1; attempt <= o.cfg.ProbeAttempts; attempt++ {
		err := e.breaker.Do(func() error {
			pctx, cancel := context.WithTimeout(ctx, o.cfg.ProbeTimeout)
			defer cancel()
			return e.driver.Health(pctx)
		})
		if err == nil {
			log.Info("driver healthy after fault", zap.Int("attempt", attempt))
			return true, nil
		}
		log.Warn("health probe failed", zap.Int("attempt", attempt), zap.Error(err))
		if resilience.IsRejection(err) || o.instance(e).Status == StatusCrashed {
			break
		}
		if attempt < o.cfg.ProbeAttempts {
			select {
			case <-ctx.Done():
				return false, ctx.Err()
			case <-time.After(o.cfg.ProbeInterval):
			}
		}
	}

	return false, o.markCrashed(ctx, e, log)
}

// markCrashed drops the driver of an instance its breaker marked Crashed
// and persists it. The caller holds e.mu.
func (o *Orchestrator) markCrashed(ctx context.Context, e *entry, log *zap.Logger) error {
	if o.instance(e).Status != StatusCrashed {
		return nil
	}
	o.closeDriver(ctx, e, log)
	log.Error("instance marked crashed")
	return o.save(ctx, e)
}

// newBreaker builds the per-instance probe breaker. Its trip threshold
// equals the probe budget, so one exhausted Recover marks the instance
// Crashed.
func (o *Orchestrator) newBreaker(e *entry) *resilience.Breaker {
	threshold := uint32(o.cfg.ProbeAttempts)
	o.fleet.Lock()
	name := "instance:" + e.inst.InstanceID
	o.fleet.Unlock()

	return resilience.New(name, resilience.Settings{
		MaxRequests: 1,
		Timeout:     time.Hour,
		ReadyToTrip: func(c resilience.Counts) bool {
			return c.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(_ string, from, to resilience.State) {
			if to != resilience.StateOpen {
				return
			}
			// runs inside Recover with e.mu held
			if err := o.transition(e, StatusCrashed); err != nil {
				o.logger.Error("marking instance crashed", zap.Error(err))
				return
			}
			o.fleet.Lock()
			e.inst.LastError = "health probes failed"
			o.fleet.Unlock()
		},
	})
}
