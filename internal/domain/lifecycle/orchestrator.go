package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/GriffinCanCode/readerfleet/internal/domain/account"
	"github.com/GriffinCanCode/readerfleet/internal/domain/device"
	"github.com/GriffinCanCode/readerfleet/internal/domain/view"
	"github.com/GriffinCanCode/readerfleet/internal/infrastructure/logging"
	"github.com/GriffinCanCode/readerfleet/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/readerfleet/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/readerfleet/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/readerfleet/internal/shared/fault"
	"github.com/GriffinCanCode/readerfleet/internal/shared/id"
)

// Lanes runs maintenance work only when an account has no request in
// flight. The request guard implements it.
type Lanes interface {
	TryRun(ctx context.Context, accountID string, fn func(ctx context.Context) error) error
}

// Config holds fleet limits and timings
type Config struct {
	Slots            int
	BootTimeout      time.Duration
	BootPollInterval time.Duration
	ProbeAttempts    int
	ProbeTimeout     time.Duration
	ProbeInterval    time.Duration
	IdleTimeout      time.Duration
	SkipSnapshot     bool
	AVDPrefix        string
}

// DefaultConfig returns the production defaults
func DefaultConfig() Config {
	return Config{
		Slots:            4,
		BootTimeout:      3 * time.Minute,
		BootPollInterval: 2 * time.Second,
		ProbeAttempts:    2,
		ProbeTimeout:     10 * time.Second,
		ProbeInterval:    time.Second,
		IdleTimeout:      30 * time.Minute,
		AVDPrefix:        "reader",
	}
}

// Deps are the orchestrator's collaborators
type Deps struct {
	Repository account.Repository
	Emulator   device.Emulator
	Connector  device.Connector
	Lanes      Lanes
	Events     *EventBus
	Logger     *zap.Logger
	Metrics    *monitoring.Metrics
	Tracer     *tracing.Tracer
	Clock      func() time.Time
}

// State is a read-only view of one account's profile and instance
type State struct {
	Profile  *account.Profile `json:"profile"`
	Instance *Instance        `json:"instance"`
}

// FleetStats summarises slot usage
type FleetStats struct {
	Slots   int `json:"slots"`
	InUse   int `json:"in_use"`
	Running int `json:"running"`
}

// entry is one account's registry record. mu serialises lifecycle
// operations; profile and inst are read and written under
// Orchestrator.fleet so status reads never wait behind a boot.
type entry struct {
	mu      sync.Mutex
	deleted bool
	driver  device.Driver
	breaker *resilience.Breaker

	profile *account.Profile
	inst    *Instance
}

// Orchestrator owns profiles and emulator instances. It is the only
// component that writes either.
type Orchestrator struct {
	cfg       Config
	repo      account.Repository
	emulator  device.Emulator
	connector device.Connector
	lanes     Lanes
	events    *EventBus
	logger    *zap.Logger
	metrics   *monitoring.Metrics
	tracer    *tracing.Tracer
	now       func() time.Time

	mu      sync.Mutex
	entries map[string]*entry
	loads   singleflight.Group

	fleet   sync.Mutex
	slots   *slotPool
	running int
}

// New creates an orchestrator
func New(cfg Config, deps Deps) *Orchestrator {
	def := DefaultConfig()
	if cfg.Slots <= 0 {
		cfg.Slots = def.Slots
	}
	if cfg.BootTimeout <= 0 {
		cfg.BootTimeout = def.BootTimeout
	}
	if cfg.BootPollInterval <= 0 {
		cfg.BootPollInterval = def.BootPollInterval
	}
	if cfg.ProbeAttempts <= 0 {
		cfg.ProbeAttempts = def.ProbeAttempts
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = def.ProbeTimeout
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = def.IdleTimeout
	}
	if cfg.AVDPrefix == "" {
		cfg.AVDPrefix = def.AVDPrefix
	}

	o := &Orchestrator{
		cfg:       cfg,
		repo:      deps.Repository,
		emulator:  deps.Emulator,
		connector: deps.Connector,
		lanes:     deps.Lanes,
		events:    deps.Events,
		logger:    deps.Logger,
		metrics:   deps.Metrics,
		tracer:    deps.Tracer,
		now:       deps.Clock,
		entries:   make(map[string]*entry),
		slots:     newSlotPool(cfg.Slots),
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if o.events == nil {
		o.events = NewEventBus(0)
	}
	if o.now == nil {
		o.now = time.Now
	}
	return o
}

// Events returns the bus instance changes are published on
func (o *Orchestrator) Events() *EventBus {
	return o.events
}

// Config returns the effective configuration
func (o *Orchestrator) Config() Config {
	return o.cfg
}

// GetOrCreateProfile returns the account's profile, creating it with a
// fresh Absent instance on first use. Repeated calls never create a
// second profile or instance.
func (o *Orchestrator) GetOrCreateProfile(ctx context.Context, accountID string) (*State, error) {
	e, err := o.entry(ctx, accountID, true)
	if err != nil {
		return nil, err
	}
	return o.state(e), nil
}

// Status returns the account's profile and instance without creating
// either
func (o *Orchestrator) Status(ctx context.Context, accountID string) (*State, error) {
	e, err := o.entry(ctx, accountID, false)
	if err != nil {
		return nil, err
	}
	return o.state(e), nil
}

// List returns every known account, persisted or in memory
func (o *Orchestrator) List(ctx context.Context) ([]*State, error) {
	profiles, err := o.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing profiles: %w", err)
	}
	for _, p := range profiles {
		o.adopt(p)
	}

	o.mu.Lock()
	entries := make([]*entry, 0, len(o.entries))
	for _, e := range o.entries {
		entries = append(entries, e)
	}
	o.mu.Unlock()

	states := make([]*State, 0, len(entries))
	for _, e := range entries {
		states = append(states, o.state(e))
	}
	sort.Slice(states, func(i, j int) bool {
		return states[i].Profile.AccountID < states[j].Profile.AccountID
	})
	return states, nil
}

// Fleet reports slot usage
func (o *Orchestrator) Fleet() FleetStats {
	o.fleet.Lock()
	defer o.fleet.Unlock()
	return FleetStats{Slots: o.slots.size(), InUse: o.slots.inUse(), Running: o.running}
}

// Crashed reports whether the account's instance needs a recreate
func (o *Orchestrator) Crashed(accountID string) bool {
	e, ok := o.cached(account.NormalizeID(accountID))
	if !ok {
		return false
	}
	return o.instance(e).Status == StatusCrashed
}

// EnsureRunning returns a live driver for the account, booting its
// instance if needed
func (o *Orchestrator) EnsureRunning(ctx context.Context, accountID string) (device.Driver, error) {
	e, err := o.acquire(ctx, accountID, true)
	if err != nil {
		return nil, err
	}
	defer e.mu.Unlock()
	return o.ensureRunning(ctx, e)
}

// Switch makes the account's instance the running one, pausing the
// least recently active idle instance when the pool is full
func (o *Orchestrator) Switch(ctx context.Context, accountID string) (device.Driver, error) {
	d, err := o.EnsureRunning(ctx, accountID)
	if !fault.Is(err, fault.KindNoCapacity) {
		return d, err
	}
	if !o.evictIdle(ctx, account.NormalizeID(accountID)) {
		return nil, err
	}
	return o.EnsureRunning(ctx, accountID)
}

// Pause snapshots and stops the account's running instance, releasing
// its slot. Pausing a stopped or absent instance does nothing.
func (o *Orchestrator) Pause(ctx context.Context, accountID string) error {
	e, err := o.acquire(ctx, accountID, false)
	if err != nil {
		return err
	}
	defer e.mu.Unlock()
	return o.pause(ctx, e, false)
}

// Recreate tears the instance down and replaces it with a clean Absent
// one. Auth state resets; the profile record is kept.
func (o *Orchestrator) Recreate(ctx context.Context, accountID string) (*State, error) {
	e, err := o.acquire(ctx, accountID, false)
	if err != nil {
		return nil, err
	}
	defer e.mu.Unlock()

	if err := o.teardown(ctx, e); err != nil {
		return nil, err
	}

	now := o.now()
	o.fleet.Lock()
	old := e.inst.InstanceID
	e.inst = &Instance{
		InstanceID: id.NewInstanceID().String(),
		AccountID:  e.profile.AccountID,
		AVDName:    e.profile.AVDName,
		Status:     StatusAbsent,
		UpdatedAt:  now,
	}
	e.profile.InstanceID = e.inst.InstanceID
	e.profile.AuthState = account.AuthUnauthenticated
	e.profile.HasSnapshot = false
	e.profile.SnapshotAt = time.Time{}
	e.profile.LastView = ""
	e.profile.WasRunning = false
	instanceID := e.inst.InstanceID
	o.fleet.Unlock()
	e.breaker = nil

	o.logger.Info("instance recreated",
		zap.String("account_id", e.profile.AccountID),
		zap.String("old_instance", old),
		zap.String("instance_id", instanceID))
	o.events.Publish(Event{Type: EventRecreated, AccountID: e.profile.AccountID, InstanceID: instanceID, To: StatusAbsent, At: now})

	if err := o.save(ctx, e); err != nil {
		return nil, err
	}
	return o.state(e), nil
}

// Delete tears the instance down and removes the profile
func (o *Orchestrator) Delete(ctx context.Context, accountID string) error {
	e, err := o.acquire(ctx, accountID, false)
	if err != nil {
		return err
	}
	defer e.mu.Unlock()

	if err := o.teardown(ctx, e); err != nil {
		return err
	}
	st := o.state(e)
	if err := o.repo.Delete(ctx, st.Profile.AccountID); err != nil && !errors.Is(err, account.ErrNotFound) {
		return fmt.Errorf("deleting profile %s: %w", st.Profile.AccountID, err)
	}

	e.deleted = true
	o.mu.Lock()
	delete(o.entries, st.Profile.AccountID)
	o.mu.Unlock()

	o.logger.Info("profile deleted", zap.String("account_id", st.Profile.AccountID))
	o.events.Publish(Event{Type: EventDeleted, AccountID: st.Profile.AccountID, InstanceID: st.Instance.InstanceID, At: o.now()})
	return nil
}

// RecordOutcome stores the view an action arrived at and the auth state
// it implies. An empty auth leaves the stored state alone.
func (o *Orchestrator) RecordOutcome(ctx context.Context, accountID string, arrived view.View, auth account.AuthState) error {
	e, err := o.entry(ctx, accountID, false)
	if err != nil {
		return err
	}
	o.fleet.Lock()
	e.profile.LastView = arrived.String()
	if auth != "" {
		e.profile.AuthState = auth
	}
	e.profile.LastActivity = o.now()
	o.fleet.Unlock()
	return o.save(ctx, e)
}

// Touch marks the account active now
func (o *Orchestrator) Touch(ctx context.Context, accountID string) error {
	e, err := o.entry(ctx, accountID, false)
	if err != nil {
		return err
	}
	o.fleet.Lock()
	e.profile.LastActivity = o.now()
	o.fleet.Unlock()
	return o.save(ctx, e)
}

// Shutdown pauses every running instance and flags it for
// ResumeFromRestart
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	var errs []error
	for _, e := range o.snapshotEntries() {
		if o.instance(e).Status != StatusRunning {
			continue
		}
		e.mu.Lock()
		if !e.deleted {
			if err := o.pause(ctx, e, true); err != nil {
				errs = append(errs, err)
			}
		}
		e.mu.Unlock()
	}
	return errors.Join(errs...)
}

// ResumeFromRestart boots every profile that was running at the last
// Shutdown and returns the accounts brought back
func (o *Orchestrator) ResumeFromRestart(ctx context.Context) ([]string, error) {
	profiles, err := o.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing profiles: %w", err)
	}

	var (
		resumed []string
		errs    []error
	)
	for _, p := range profiles {
		if !p.WasRunning {
			continue
		}
		if _, err := o.EnsureRunning(ctx, p.AccountID); err != nil {
			o.logger.Warn("resume failed", zap.String("account_id", p.AccountID), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", p.AccountID, err))
			continue
		}
		resumed = append(resumed, p.AccountID)
	}
	return resumed, errors.Join(errs...)
}

// entry returns the account's registry record, loading it from the
// repository and optionally creating it. Concurrent first loads of one
// account share a single repository round trip.
func (o *Orchestrator) entry(ctx context.Context, accountID string, create bool) (*entry, error) {
	if err := account.ValidateID(accountID); err != nil {
		return nil, fault.New(fault.KindInvalidRequest, "lifecycle.profile", "%v", err).WithAccount(accountID)
	}
	accountID = account.NormalizeID(accountID)
	if e, ok := o.cached(accountID); ok {
		return e, nil
	}

	key := accountID
	if create {
		key = "create:" + accountID
	}
	v, err, _ := o.loads.Do(key, func() (interface{}, error) {
		if e, ok := o.cached(accountID); ok {
			return e, nil
		}
		p, err := o.repo.Load(ctx, accountID)
		switch {
		case err == nil:
		case errors.Is(err, account.ErrNotFound):
			if !create {
				return nil, fault.New(fault.KindProfileNotFound, "lifecycle.profile", "no profile for %s", accountID).
					WithAccount(accountID)
			}
			p = o.newProfile(accountID)
			if err := o.repo.Save(ctx, p); err != nil {
				return nil, fmt.Errorf("saving profile %s: %w", accountID, err)
			}
			o.logger.Info("profile created",
				zap.String("account_id", accountID),
				zap.String("profile_id", p.ProfileID),
				zap.String("instance_id", p.InstanceID))
		default:
			return nil, fmt.Errorf("loading profile %s: %w", accountID, err)
		}
		return o.adopt(p), nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*entry), nil
}

// acquire returns the account's entry with its mutex held
func (o *Orchestrator) acquire(ctx context.Context, accountID string, create bool) (*entry, error) {
	for {
		e, err := o.entry(ctx, accountID, create)
		if err != nil {
			return nil, err
		}
		e.mu.Lock()
		if !e.deleted {
			return e, nil
		}
		e.mu.Unlock()
	}
}

func (o *Orchestrator) cached(accountID string) (*entry, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	e, ok := o.entries[accountID]
	return e, ok
}

// adopt registers a loaded profile unless the account is already known.
// A profile with a snapshot starts Stopped; anything else starts Absent.
func (o *Orchestrator) adopt(p *account.Profile) *entry {
	o.mu.Lock()
	defer o.mu.Unlock()
	if e, ok := o.entries[p.AccountID]; ok {
		return e
	}
	status := StatusAbsent
	if p.HasSnapshot {
		status = StatusStopped
	}
	if p.InstanceID == "" {
		p.InstanceID = id.NewInstanceID().String()
	}
	if p.AVDName == "" {
		p.AVDName = account.AVDName(o.cfg.AVDPrefix, p.AccountID)
	}
	e := &entry{
		profile: p.Clone(),
		inst: &Instance{
			InstanceID: p.InstanceID,
			AccountID:  p.AccountID,
			AVDName:    p.AVDName,
			Status:     status,
			UpdatedAt:  o.now(),
		},
	}
	o.entries[p.AccountID] = e
	return e
}

func (o *Orchestrator) newProfile(accountID string) *account.Profile {
	now := o.now()
	return &account.Profile{
		AccountID:  accountID,
		ProfileID:  id.NewProfileID().String(),
		AuthState:  account.AuthUnauthenticated,
		InstanceID: id.NewInstanceID().String(),
		AVDName:    account.AVDName(o.cfg.AVDPrefix, accountID),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func (o *Orchestrator) snapshotEntries() []*entry {
	o.mu.Lock()
	defer o.mu.Unlock()
	entries := make([]*entry, 0, len(o.entries))
	for _, e := range o.entries {
		entries = append(entries, e)
	}
	return entries
}

func (o *Orchestrator) state(e *entry) *State {
	o.fleet.Lock()
	defer o.fleet.Unlock()
	return &State{Profile: e.profile.Clone(), Instance: e.inst.clone()}
}

func (o *Orchestrator) instance(e *entry) *Instance {
	o.fleet.Lock()
	defer o.fleet.Unlock()
	return e.inst.clone()
}

// transition moves the instance along one edge, acquiring a slot on
// entry to Booting and releasing it on arrival at Stopped or Absent, all
// in one critical section. The caller holds e.mu.
func (o *Orchestrator) transition(e *entry, to Status) error {
	o.fleet.Lock()
	inst := e.inst
	from := inst.Status
	if !CanTransition(from, to) {
		o.fleet.Unlock()
		return fmt.Errorf("instance %s cannot go from %s to %s", inst.InstanceID, from, to)
	}
	if to == StatusBooting && inst.Slot == nil {
		slot, ok := o.slots.acquire()
		if !ok {
			size := o.slots.size()
			o.fleet.Unlock()
			return fault.New(fault.KindNoCapacity, "lifecycle.transition", "all %d emulator slots are in use", size).
				WithAccount(inst.AccountID)
		}
		inst.Slot = &slot
	}
	if !holdsSlot(to) && inst.Slot != nil {
		o.slots.release(inst.Slot.Index)
		inst.Slot = nil
	}
	if from == StatusRunning {
		o.running--
	}
	if to == StatusRunning {
		o.running++
	}
	inst.Status = to
	inst.UpdatedAt = o.now()
	ev := Event{Type: EventTransition, AccountID: inst.AccountID, InstanceID: inst.InstanceID, From: from, To: to, At: inst.UpdatedAt}
	running, inUse := o.running, o.slots.inUse()
	o.fleet.Unlock()

	o.metrics.RecordInstanceTransition(string(from), string(to))
	o.metrics.SetInstancesRunning(running)
	o.metrics.SetSlotsInUse(inUse)
	o.logger.Debug("instance transition",
		zap.String("account_id", ev.AccountID),
		zap.String("instance_id", ev.InstanceID),
		zap.String("from", string(from)),
		zap.String("to", string(to)))
	o.events.Publish(ev)
	return nil
}

// save persists a copy of the profile
func (o *Orchestrator) save(ctx context.Context, e *entry) error {
	o.fleet.Lock()
	e.profile.UpdatedAt = o.now()
	p := e.profile.Clone()
	o.fleet.Unlock()
	if err := o.repo.Save(ctx, p); err != nil {
		o.logger.Error("saving profile failed", zap.String("account_id", p.AccountID), zap.Error(err))
		return fmt.Errorf("saving profile %s: %w", p.AccountID, err)
	}
	return nil
}

func (o *Orchestrator) ensureRunning(ctx context.Context, e *entry) (device.Driver, error) {
	inst := o.instance(e)
	log := logging.ForAccount(o.logger, inst.AccountID).With(zap.String("instance_id", inst.InstanceID))

	switch inst.Status {
	case StatusRunning:
		if e.driver != nil {
			return e.driver, nil
		}
		d, err := o.connect(ctx, inst.Ref())
		if err != nil {
			return nil, err
		}
		e.driver = d
		return d, nil
	case StatusCrashed:
		return nil, fault.New(fault.KindInstanceCrashed, "lifecycle.ensure_running", "instance %s crashed", inst.InstanceID).
			WithAccount(inst.AccountID)
	case StatusAbsent, StatusStopped:
	default:
		return nil, fmt.Errorf("instance %s is %s", inst.InstanceID, inst.Status)
	}

	prev := inst.Status
	o.fleet.Lock()
	hasSnapshot := e.profile.HasSnapshot
	o.fleet.Unlock()

	if err := o.transition(e, StatusBooting); err != nil {
		return nil, err
	}
	ref := o.instance(e).Ref()

	span, ctx := o.tracer.StartSpan(ctx, "lifecycle.boot")
	span.SetTag("account_id", inst.AccountID)
	start := time.Now()

	mode, err := o.boot(ctx, ref, hasSnapshot, log)
	var d device.Driver
	if err == nil {
		d, err = o.connect(ctx, ref)
	}
	if err != nil {
		o.abortBoot(e, ref, prev, err, log)
		o.metrics.RecordBoot(string(mode), "failed", time.Since(start))
		o.tracer.End(span, err)
		return nil, err
	}

	e.driver = d
	if e.breaker == nil {
		e.breaker = o.newBreaker(e)
	} else {
		e.breaker.Reset()
	}
	now := o.now()
	o.fleet.Lock()
	e.inst.BootMode = mode
	e.inst.BootedAt = now
	e.inst.LastError = ""
	e.profile.LastActivity = now
	e.profile.WasRunning = false
	o.fleet.Unlock()
	if err := o.transition(e, StatusRunning); err != nil {
		o.tracer.End(span, err)
		return nil, err
	}

	o.metrics.RecordBoot(string(mode), "ok", time.Since(start))
	o.tracer.End(span, nil)
	log.Info("instance running",
		zap.String("boot_mode", string(mode)),
		zap.Int("slot", ref.Slot.Index),
		zap.Duration("took", time.Since(start)))

	if err := o.save(ctx, e); err != nil {
		return nil, err
	}
	return d, nil
}

// boot starts the emulator and waits for it, trying the snapshot first
// and falling back to a cold boot when the snapshot will not come up
func (o *Orchestrator) boot(ctx context.Context, ref device.InstanceRef, fromSnapshot bool, log *zap.Logger) (BootMode, error) {
	bootCtx, cancel := context.WithTimeout(ctx, o.cfg.BootTimeout)
	defer cancel()

	if fromSnapshot {
		err := o.startAndWait(bootCtx, ref, true)
		if err == nil {
			return BootSnapshot, nil
		}
		if bootCtx.Err() != nil {
			return BootSnapshot, o.bootError(ctx, ref, err)
		}
		log.Warn("snapshot boot failed, falling back to cold boot", zap.Error(err))
		if err := o.emulator.Stop(bootCtx, ref); err != nil {
			log.Debug("stopping failed snapshot boot", zap.Error(err))
		}
	}

	if err := o.startAndWait(bootCtx, ref, false); err != nil {
		return BootCold, o.bootError(ctx, ref, err)
	}
	return BootCold, nil
}

// startAndWait boots and polls until the device reports ready. A device
// that stops running while booting fails immediately; other status
// errors are treated as not ready yet.
func (o *Orchestrator) startAndWait(ctx context.Context, ref device.InstanceRef, fromSnapshot bool) error {
	if err := o.emulator.Boot(ctx, ref, fromSnapshot); err != nil {
		return err
	}
	ticker := time.NewTicker(o.cfg.BootPollInterval)
	defer ticker.Stop()
	for {
		st, err := o.emulator.Status(ctx, ref)
		switch {
		case err == nil && st == device.BootStatusReady:
			return nil
		case errors.Is(err, device.ErrNotRunning):
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// bootError classifies a failed boot. A deadline on either the boot or
// the caller's context is a boot timeout; only cancellation passes
// through untyped.
func (o *Orchestrator) bootError(parent context.Context, ref device.InstanceRef, err error) error {
	if errors.Is(parent.Err(), context.Canceled) {
		return parent.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(parent.Err(), context.DeadlineExceeded) {
		return fault.New(fault.KindEmulatorBootTimeout, "lifecycle.boot",
			"%s not ready within %s", ref.AVDName, o.cfg.BootTimeout).WithAccount(ref.AccountID)
	}
	return fault.Wrap(fault.KindEmulatorBootTimeout, "lifecycle.boot", err).WithAccount(ref.AccountID)
}

func (o *Orchestrator) connect(ctx context.Context, ref device.InstanceRef) (device.Driver, error) {
	d, err := o.connector.Connect(ctx, ref)
	if err != nil {
		if _, ok := fault.As(err); ok {
			return nil, err
		}
		return nil, fault.Wrap(fault.KindDriverFault, "lifecycle.connect", err).WithAccount(ref.AccountID)
	}
	return d, nil
}

// abortBoot stops a failed boot and returns the instance to the status
// it booted from, freeing its slot
func (o *Orchestrator) abortBoot(e *entry, ref device.InstanceRef, prev Status, cause error, log *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := o.emulator.Stop(ctx, ref); err != nil {
		log.Debug("stopping aborted boot", zap.Error(err))
	}
	o.fleet.Lock()
	e.inst.LastError = cause.Error()
	o.fleet.Unlock()
	if err := o.transition(e, prev); err != nil {
		log.Error("aborting boot", zap.Error(err))
	}
	log.Warn("boot aborted", zap.Error(cause))
}

// pause runs Running→Snapshotting→Stopped. The caller holds e.mu.
func (o *Orchestrator) pause(ctx context.Context, e *entry, wasRunning bool) error {
	inst := o.instance(e)
	switch inst.Status {
	case StatusRunning:
	case StatusAbsent, StatusStopped:
		return nil
	case StatusCrashed:
		return fault.New(fault.KindInstanceCrashed, "lifecycle.pause", "instance %s crashed", inst.InstanceID).
			WithAccount(inst.AccountID)
	default:
		return fmt.Errorf("instance %s is %s", inst.InstanceID, inst.Status)
	}
	log := logging.ForAccount(o.logger, inst.AccountID).With(zap.String("instance_id", inst.InstanceID))

	if err := o.transition(e, StatusSnapshotting); err != nil {
		return err
	}
	ref := inst.Ref()

	snapshotted := false
	if !o.cfg.SkipSnapshot {
		if err := o.emulator.SaveSnapshot(ctx, ref); err != nil {
			log.Warn("snapshot failed, next boot will be cold", zap.Error(err))
		} else {
			snapshotted = true
		}
	}
	o.closeDriver(ctx, e, log)
	if err := o.emulator.Stop(ctx, ref); err != nil {
		log.Warn("stopping emulator", zap.Error(err))
	}
	if err := o.transition(e, StatusStopped); err != nil {
		return err
	}

	o.fleet.Lock()
	if snapshotted {
		e.profile.HasSnapshot = true
		e.profile.SnapshotAt = o.now()
	}
	e.profile.WasRunning = wasRunning
	o.fleet.Unlock()

	log.Info("instance paused", zap.Bool("snapshot", snapshotted))
	return o.save(ctx, e)
}

// teardown stops whatever is live and discards the snapshot, leaving the
// instance Absent or Stopped. The caller holds e.mu.
func (o *Orchestrator) teardown(ctx context.Context, e *entry) error {
	inst := o.instance(e)
	log := logging.ForAccount(o.logger, inst.AccountID).With(zap.String("instance_id", inst.InstanceID))
	ref := inst.Ref()

	o.closeDriver(ctx, e, log)
	switch inst.Status {
	case StatusRunning:
		if err := o.transition(e, StatusSnapshotting); err != nil {
			return err
		}
		if err := o.emulator.Stop(ctx, ref); err != nil {
			log.Warn("stopping emulator", zap.Error(err))
		}
		if err := o.transition(e, StatusStopped); err != nil {
			return err
		}
	case StatusCrashed:
		if err := o.emulator.Stop(ctx, ref); err != nil {
			log.Debug("stopping crashed emulator", zap.Error(err))
		}
		if err := o.transition(e, StatusAbsent); err != nil {
			return err
		}
	}

	o.fleet.Lock()
	hadSnapshot := e.profile.HasSnapshot
	o.fleet.Unlock()
	if hadSnapshot {
		if err := o.emulator.DeleteSnapshot(ctx, ref); err != nil {
			log.Warn("deleting snapshot", zap.Error(err))
		}
	}
	return nil
}

func (o *Orchestrator) closeDriver(ctx context.Context, e *entry, log *zap.Logger) {
	if e.driver == nil {
		return
	}
	if err := e.driver.Close(ctx); err != nil {
		log.Debug("closing driver", zap.Error(err))
	}
	e.driver = nil
}
