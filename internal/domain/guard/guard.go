package guard

import (
	"container/list"
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/GriffinCanCode/readerfleet/internal/infrastructure/logging"
	"github.com/GriffinCanCode/readerfleet/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/readerfleet/internal/shared/fault"
)

var (
	// ErrBusy is returned by TryRun when the lane is held or has waiters
	ErrBusy = errors.New("account lane busy")

	errAbandoned = errors.New("every waiter left before the request started")
)

// Token describes the request currently holding an account's lane
type Token struct {
	ID          string    `json:"id"`
	AccountID   string    `json:"account_id"`
	Action      string    `json:"action"`
	Fingerprint string    `json:"fingerprint"`
	StartedAt   time.Time `json:"started_at"`
}

// Func is the work a request performs once it owns the lane
type Func func(ctx context.Context) (interface{}, error)

// Config bounds waiting and execution
type Config struct {
	WaitTimeout   time.Duration
	ActionTimeout time.Duration
}

// Stats summarises lane usage
type Stats struct {
	Lanes   int `json:"lanes"`
	Busy    int `json:"busy"`
	Waiting int `json:"waiting"`
}

// Guard serialises requests per account and coalesces identical ones
type Guard struct {
	cfg     Config
	logger  *zap.Logger
	metrics *monitoring.Metrics

	mu    sync.Mutex
	lanes map[string]*lane
}

// New creates a guard
func New(cfg Config, logger *zap.Logger, metrics *monitoring.Metrics) *Guard {
	if cfg.WaitTimeout <= 0 {
		cfg.WaitTimeout = time.Minute
	}
	if cfg.ActionTimeout <= 0 {
		cfg.ActionTimeout = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Guard{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
		lanes:   make(map[string]*lane),
	}
}

// lane is one account's FIFO mutual exclusion plus its open flights
type lane struct {
	mu      sync.Mutex
	held    bool
	waiters *list.List
	current *Token
	group   singleflight.Group
	flights map[string]*flight
	dead    bool // dropped; callers must look the account up again
}

type flight struct {
	waiters int
	started chan struct{}
}

func (g *Guard) lane(accountID string) *lane {
	g.mu.Lock()
	defer g.mu.Unlock()
	l, ok := g.lanes[accountID]
	if !ok {
		l = &lane{waiters: list.New(), flights: make(map[string]*flight)}
		g.lanes[accountID] = l
	}
	return l
}

// lockLane returns the account's live lane with l.mu held. A lane dropped
// between lookup and locking is skipped for its replacement.
func (g *Guard) lockLane(accountID string) *lane {
	for {
		l := g.lane(accountID)
		l.mu.Lock()
		if !l.dead {
			return l
		}
		l.mu.Unlock()
	}
}

// Do runs fn with exclusive use of the account's lane. Callers presenting
// the same fingerprint while a flight is open share its single execution
// and result. Waiting for the flight to start is bounded by the earlier
// of ctx and WaitTimeout; expiry fails only this caller.
func (g *Guard) Do(ctx context.Context, accountID, fingerprint, action string, fn Func) (interface{}, bool, error) {
	log := logging.ForAccount(g.logger, accountID).With(zap.String("action", action))
	queued := time.Now()

	l := g.lockLane(accountID)
	f, joined := l.flights[fingerprint]
	if !joined {
		f = &flight{started: make(chan struct{})}
		l.flights[fingerprint] = f
	}
	f.waiters++
	ch := l.group.DoChan(fingerprint, func() (interface{}, error) {
		return g.run(ctx, l, accountID, fingerprint, action, f, fn)
	})
	l.mu.Unlock()

	if joined {
		g.metrics.IncCoalesced()
		log.Debug("joined in-flight request", zap.String("fingerprint", fingerprint))
	}

	waitCtx, cancel := context.WithTimeout(ctx, g.cfg.WaitTimeout)
	defer cancel()

	select {
	case r := <-ch:
		return r.Val, r.Shared || joined, r.Err
	case <-f.started:
		g.metrics.RecordGuardWait(time.Since(queued))
	case <-waitCtx.Done():
		g.leave(l, f)
		g.metrics.IncGuardTimeouts()
		log.Warn("gave up waiting for account lane", zap.Duration("waited", time.Since(queued)))
		return nil, false, g.timeout(ctx, accountID, action, "request did not start within %s", g.cfg.WaitTimeout)
	}

	select {
	case r := <-ch:
		return r.Val, r.Shared || joined, r.Err
	case <-ctx.Done():
		g.leave(l, f)
		log.Info("caller left while request runs on", zap.Error(ctx.Err()))
		return nil, false, g.timeout(ctx, accountID, action, "caller deadline passed while request was running")
	}
}

func (g *Guard) timeout(ctx context.Context, accountID, action, format string, args ...interface{}) error {
	if errors.Is(ctx.Err(), context.Canceled) {
		return fault.Wrap(fault.KindConcurrencyTimeout, "guard.do", ctx.Err()).
			WithAccount(accountID).WithAction(action).WithHint(fault.HintRetry)
	}
	return fault.New(fault.KindConcurrencyTimeout, "guard.do", format, args...).
		WithAccount(accountID).WithAction(action)
}

func (g *Guard) leave(l *lane, f *flight) {
	l.mu.Lock()
	f.waiters--
	l.mu.Unlock()
}

// run executes inside the singleflight goroutine. The flight is detached
// from its first caller's cancellation: once started it finishes even if
// every caller leaves.
func (g *Guard) run(parent context.Context, l *lane, accountID, fingerprint, action string, f *flight, fn Func) (interface{}, error) {
	detached := context.WithoutCancel(parent)

	laneCtx, cancelLane := context.WithTimeout(detached, g.cfg.WaitTimeout+g.cfg.ActionTimeout)
	err := l.acquire(laneCtx)
	cancelLane()
	if err != nil {
		l.mu.Lock()
		l.finish(fingerprint)
		l.mu.Unlock()
		return nil, fault.New(fault.KindConcurrencyTimeout, "guard.run", "lane not acquired: %v", err).
			WithAccount(accountID).WithAction(action)
	}
	defer l.release()

	l.mu.Lock()
	if f.waiters <= 0 {
		l.finish(fingerprint)
		l.mu.Unlock()
		g.logger.Debug("skipping abandoned request", zap.String("account_id", accountID), zap.String("action", action))
		return nil, errAbandoned
	}
	l.current = &Token{
		ID:          uuid.NewString(),
		AccountID:   accountID,
		Action:      action,
		Fingerprint: fingerprint,
		StartedAt:   time.Now(),
	}
	close(f.started)
	l.mu.Unlock()

	execCtx, cancel := context.WithTimeout(detached, g.cfg.ActionTimeout)
	defer cancel()
	v, err := fn(execCtx)

	l.mu.Lock()
	l.finish(fingerprint)
	l.current = nil
	l.mu.Unlock()
	return v, err
}

// finish closes a flight to new joiners. Called with l.mu held.
func (l *lane) finish(fingerprint string) {
	delete(l.flights, fingerprint)
	l.group.Forget(fingerprint)
}

// acquire takes the lane, queueing FIFO behind earlier requests
func (l *lane) acquire(ctx context.Context) error {
	l.mu.Lock()
	if !l.held && l.waiters.Len() == 0 {
		l.held = true
		l.mu.Unlock()
		return nil
	}
	ready := make(chan struct{})
	el := l.waiters.PushBack(ready)
	l.mu.Unlock()

	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		l.mu.Lock()
		select {
		case <-ready:
			// handed over while timing out; pass it on
			l.mu.Unlock()
			l.release()
		default:
			l.waiters.Remove(el)
			l.mu.Unlock()
		}
		return ctx.Err()
	}
}

// release hands the lane to the oldest waiter, or frees it
func (l *lane) release() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if front := l.waiters.Front(); front != nil {
		l.waiters.Remove(front)
		close(front.Value.(chan struct{}))
		return
	}
	l.held = false
	l.current = nil
}

// TryRun runs fn only if the account's lane is free right now. Sweeps and
// evictions use it so they never queue behind user requests.
func (g *Guard) TryRun(ctx context.Context, accountID string, fn func(ctx context.Context) error) error {
	l := g.lockLane(accountID)
	if l.held || l.waiters.Len() > 0 {
		l.mu.Unlock()
		return ErrBusy
	}
	l.held = true
	l.current = &Token{
		ID:        uuid.NewString(),
		AccountID: accountID,
		Action:    "maintenance",
		StartedAt: time.Now(),
	}
	l.mu.Unlock()
	defer l.release()

	return fn(ctx)
}

// Busy reports whether the account's lane is held or has waiters
func (g *Guard) Busy(accountID string) bool {
	g.mu.Lock()
	l, ok := g.lanes[accountID]
	g.mu.Unlock()
	if !ok {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held || l.waiters.Len() > 0
}

// InFlight returns the token of the request holding the lane
func (g *Guard) InFlight(accountID string) (*Token, bool) {
	g.mu.Lock()
	l, ok := g.lanes[accountID]
	g.mu.Unlock()
	if !ok {
		return nil, false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.current == nil {
		return nil, false
	}
	tok := *l.current
	return &tok, true
}

// Drop removes an idle account's lane
func (g *Guard) Drop(accountID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	l, ok := g.lanes[accountID]
	if !ok {
		return
	}
	l.mu.Lock()
	idle := !l.held && l.waiters.Len() == 0 && len(l.flights) == 0
	if idle {
		l.dead = true
	}
	l.mu.Unlock()
	if idle {
		delete(g.lanes, accountID)
	}
}

// Stats reports lane counts
func (g *Guard) Stats() Stats {
	g.mu.Lock()
	lanes := make([]*lane, 0, len(g.lanes))
	for _, l := range g.lanes {
		lanes = append(lanes, l)
	}
	g.mu.Unlock()

	s := Stats{Lanes: len(lanes)}
	for _, l := range lanes {
		l.mu.Lock()
		if l.held {
			s.Busy++
		}
		s.Waiting += l.waiters.Len()
		l.mu.Unlock()
	}
	return s
}
