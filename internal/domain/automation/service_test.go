package automation

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/readerfleet/internal/domain/account"
	"github.com/GriffinCanCode/readerfleet/internal/domain/controller"
	"github.com/GriffinCanCode/readerfleet/internal/domain/device"
	"github.com/GriffinCanCode/readerfleet/internal/domain/guard"
	"github.com/GriffinCanCode/readerfleet/internal/domain/handlers"
	"github.com/GriffinCanCode/readerfleet/internal/domain/lifecycle"
	"github.com/GriffinCanCode/readerfleet/internal/domain/screen"
	"github.com/GriffinCanCode/readerfleet/internal/domain/statemachine"
	"github.com/GriffinCanCode/readerfleet/internal/domain/view"
	"github.com/GriffinCanCode/readerfleet/internal/providers/simulator"
	"github.com/GriffinCanCode/readerfleet/internal/providers/storage"
	"github.com/GriffinCanCode/readerfleet/internal/shared/fault"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	svc   *Service
	farm  *simulator.Farm
	repo  *storage.Memory
	orch  *lifecycle.Orchestrator
	clock *clock
}

func newFixture(t *testing.T, wrap func(device.Connector) device.Connector) *fixture {
	t.Helper()
	f := &fixture{
		farm:  simulator.NewFarm(simulator.DefaultScript(), nil),
		repo:  storage.NewMemory(),
		clock: &clock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)},
	}
	var conn device.Connector = f.farm
	if wrap != nil {
		conn = wrap(conn)
	}

	g := guard.New(guard.Config{WaitTimeout: 5 * time.Second, ActionTimeout: 10 * time.Second}, nil, nil)
	f.orch = lifecycle.New(lifecycle.Config{
		Slots:            3,
		BootTimeout:      2 * time.Second,
		BootPollInterval: time.Millisecond,
		ProbeAttempts:    2,
		ProbeTimeout:     100 * time.Millisecond,
		ProbeInterval:    time.Millisecond,
		IdleTimeout:      30 * time.Minute,
	}, lifecycle.Deps{
		Repository: f.repo,
		Emulator:   f.farm,
		Connector:  conn,
		Lanes:      g,
		Clock:      f.clock.Now,
	})

	registry := handlers.DefaultRegistry()
	table, err := statemachine.New(statemachine.DefaultTransitions(), registry.Has)
	require.NoError(t, err)
	ctrl := controller.New(view.MustRecognizer(view.DefaultCatalog()), table, registry, controller.Config{
		UnknownRetries:    1,
		UnknownRetryDelay: time.Millisecond,
		ElementRetries:    1,
		ElementRetryDelay: time.Millisecond,
		Settle:            handlers.SettleConfig{Attempts: 2, Interval: time.Millisecond},
	}, controller.Deps{
		Updater: f.orch,
		Before:  []controller.Hook{CrashGate(f.orch)},
		After:   []controller.Hook{TouchActivity(f.orch)},
	})

	f.svc = New(Deps{Guard: g, Lifecycle: f.orch, Controller: ctrl})
	return f
}

func (f *fixture) script(accountID string, initial simulator.Screen) {
	s := simulator.DefaultScript()
	s.Initial = initial
	f.farm.Script(accountID, s)
}

func (f *fixture) status(t *testing.T, accountID string) *ProfileStatus {
	t.Helper()
	st, err := f.svc.GetProfileStatus(context.Background(), accountID)
	require.NoError(t, err)
	return st
}

func TestScenarioNewAccountLoginLandsOnTwoFactor(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	const acct = "new@example.com"

	s := simulator.DefaultScript()
	s.LoginResult = simulator.ScreenTwoFactor
	s.OTP = "424242"
	f.farm.Script(acct, s)

	_, err := f.svc.GetProfileStatus(ctx, acct)
	require.True(t, fault.Is(err, fault.KindProfileNotFound), "no profile before the first request")

	res, err := f.svc.ExecuteAction(ctx, acct, "login", handlers.Params{"email": acct, "password": "hunter2"})
	require.NoError(t, err)
	assert.Equal(t, statemachine.Login, res.Action)
	assert.Equal(t, view.Of(view.AuthLogin), res.From)
	assert.Equal(t, view.Of(view.TwoFactor), res.View)
	assert.True(t, res.Success)
	assert.False(t, res.Shared)

	st := f.status(t, acct)
	assert.Equal(t, account.AuthPendingTwoFA, st.AuthState)
	assert.Equal(t, lifecycle.StatusRunning, st.InstanceStatus)
	assert.Equal(t, lifecycle.BootCold, st.Instance.BootMode)
	assert.Equal(t, "two_factor", st.LastView)
	assert.Nil(t, st.InFlight)
	assert.Equal(t, 1, f.farm.Stats(acct).Boots)

	res, err = f.svc.ExecuteAction(ctx, acct, "submit_2fa", handlers.Params{"code": "424242"})
	require.NoError(t, err)
	assert.Equal(t, view.With(view.Library, view.Populated), res.View)
	assert.True(t, res.Success)
	assert.Equal(t, account.AuthAuthenticated, f.status(t, acct).AuthState)
	assert.Equal(t, 1, f.farm.Stats(acct).Boots, "second action reuses the running instance")
}

func TestScenarioNextPageStaysInBook(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	const acct = "reader@example.com"
	f.script(acct, simulator.ScreenLibrary)

	res, err := f.svc.ExecuteAction(ctx, acct, "open_book", handlers.Params{"index": 1})
	require.NoError(t, err)
	require.Equal(t, view.Of(view.BookOpen), res.View)

	res, err = f.svc.ExecuteAction(ctx, acct, "next_page", nil)
	require.NoError(t, err)
	assert.Equal(t, view.Of(view.BookOpen), res.From)
	assert.Equal(t, view.Of(view.BookOpen), res.View)
	assert.True(t, res.Success)

	sc, page, _ := f.farm.Current(acct)
	assert.Equal(t, simulator.ScreenBook, sc)
	assert.Equal(t, 2, page)
}

func TestScenarioLongLibrary(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	const acct = "shelves@example.com"
	s := simulator.DefaultScript()
	s.Initial = simulator.ScreenLibrary
	s.Books = []string{
		"Persuasion", "Middlemarch", "Dracula", "Walden", "Beloved", "Kindred",
		"Solaris", "Ubik", "Dune", "Hyperion", "Neuromancer", "Foundation",
	}
	s.AboutBook = true
	f.farm.Script(acct, s)

	res, err := f.svc.ExecuteAction(ctx, acct, "list_books", nil)
	require.NoError(t, err)
	assert.Equal(t, view.With(view.Library, view.Populated), res.View)
	assert.Equal(t, len(s.Books), res.Payload["count"])
	assert.ElementsMatch(t, s.Books, res.Payload["books"])
	assert.Equal(t, true, res.Payload["complete"])

	res, err = f.svc.ExecuteAction(ctx, acct, "open_book", handlers.Params{"title": "foundation"})
	require.NoError(t, err)
	assert.Equal(t, view.Of(view.AboutBook), res.View)
	assert.Equal(t, "Foundation", res.Payload["title"])
	assert.NotZero(t, res.Payload["scrolls"])

	res, err = f.svc.ExecuteAction(ctx, acct, "dismiss_dialog", nil)
	require.NoError(t, err)
	assert.Equal(t, view.Of(view.AboutBook), res.From)
	assert.Equal(t, view.Of(view.BookOpen), res.View)

	sc, page, _ := f.farm.Current(acct)
	assert.Equal(t, simulator.ScreenBook, sc)
	assert.Equal(t, 1, page)
}

func TestScenarioIdleSweepPausesOnlyStaleInstances(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	stale, recent, fresh := "stale@example.com", "recent@example.com", "fresh@example.com"

	_, err := f.svc.ManageProfile(ctx, stale, "switch")
	require.NoError(t, err)
	f.clock.Advance(33 * time.Minute)
	_, err = f.svc.ManageProfile(ctx, recent, "switch")
	require.NoError(t, err)
	f.clock.Advance(7 * time.Minute)
	_, err = f.svc.ManageProfile(ctx, fresh, "switch")
	require.NoError(t, err)
	f.clock.Advance(5 * time.Minute)

	events, cancel := f.orch.Events().Subscribe()
	defer cancel()

	report, err := f.svc.IdleSweep(ctx, 30*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Examined)
	assert.Equal(t, 1, report.ShutDown)
	assert.Equal(t, 2, report.Active)
	assert.Zero(t, report.Failed)
	assert.Equal(t, []string{stale}, report.Paused)

	var path []string
	for len(events) > 0 {
		ev := <-events
		if ev.AccountID == stale && ev.Type == lifecycle.EventTransition {
			path = append(path, string(ev.From)+"->"+string(ev.To))
		}
	}
	assert.Equal(t, []string{"running->snapshotting", "snapshotting->stopped"}, path)

	assert.Equal(t, lifecycle.StatusStopped, f.status(t, stale).InstanceStatus)
	assert.True(t, f.status(t, stale).Profile.HasSnapshot)
	assert.Equal(t, lifecycle.StatusRunning, f.status(t, recent).InstanceStatus)
	assert.Equal(t, lifecycle.StatusRunning, f.status(t, fresh).InstanceStatus)
	assert.Equal(t, 1, f.farm.Stats(stale).Snapshots)
}

func TestScenarioFailedProbesMarkInstanceCrashed(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	const acct = "flaky@example.com"
	f.script(acct, simulator.ScreenLibrary)

	_, err := f.svc.ManageProfile(ctx, acct, "switch")
	require.NoError(t, err)
	f.farm.SetHealthy(acct, false)

	_, err = f.svc.ExecuteAction(ctx, acct, "open_settings", nil)
	require.Error(t, err)
	assert.True(t, fault.Is(err, fault.KindDriverFault))
	assert.Equal(t, fault.HintRecreate, fault.HintOf(err))
	assert.Equal(t, lifecycle.StatusCrashed, f.status(t, acct).InstanceStatus)

	boots := f.farm.Stats(acct).Boots
	_, err = f.svc.ExecuteAction(ctx, acct, "open_settings", nil)
	require.Error(t, err)
	assert.True(t, fault.Is(err, fault.KindInstanceCrashed))
	assert.Equal(t, fault.HintRecreate, fault.HintOf(err))
	assert.Equal(t, boots, f.farm.Stats(acct).Boots, "no boot attempted")
	assert.Zero(t, f.farm.Stats(acct).SnapshotBoots)

	// recreate gets a clean device back
	res, err := f.svc.ManageProfile(ctx, acct, "recreate")
	require.NoError(t, err)
	require.NotNil(t, res.Status)
	assert.Equal(t, lifecycle.StatusAbsent, res.Status.InstanceStatus)
	assert.Equal(t, account.AuthUnauthenticated, res.Status.AuthState)

	f.farm.SetHealthy(acct, true)
	out, err := f.svc.ExecuteAction(ctx, acct, "open_settings", nil)
	require.NoError(t, err)
	assert.Equal(t, view.Of(view.Settings), out.View)
	assert.Equal(t, 1, f.farm.Stats(acct).Wipes)
}

// flakyConnector hands out drivers whose first snapshot fails
type flakyConnector struct {
	device.Connector
	failures int32
}

func (c *flakyConnector) Connect(ctx context.Context, ref device.InstanceRef) (device.Driver, error) {
	d, err := c.Connector.Connect(ctx, ref)
	if err != nil {
		return nil, err
	}
	return &flakyDriver{Driver: d, failures: &c.failures}, nil
}

type flakyDriver struct {
	device.Driver
	failures *int32
}

func (d *flakyDriver) Snapshot(ctx context.Context) (*screen.Tree, error) {
	if atomic.AddInt32(d.failures, -1) >= 0 {
		return nil, device.ErrDisconnected
	}
	return d.Driver.Snapshot(ctx)
}

func TestTransientDriverFaultRetriesOnce(t *testing.T) {
	conn := &flakyConnector{failures: 1}
	f := newFixture(t, func(c device.Connector) device.Connector {
		conn.Connector = c
		return conn
	})
	const acct = "reader@example.com"
	f.script(acct, simulator.ScreenLibrary)

	res, err := f.svc.ExecuteAction(context.Background(), acct, "open_settings", nil)
	require.NoError(t, err)
	assert.Equal(t, view.Of(view.Settings), res.View)
	assert.Equal(t, lifecycle.StatusRunning, f.status(t, acct).InstanceStatus)
}

func TestRepeatedDriverFaultSurfaces(t *testing.T) {
	conn := &flakyConnector{failures: 2}
	f := newFixture(t, func(c device.Connector) device.Connector {
		conn.Connector = c
		return conn
	})
	const acct = "reader@example.com"
	f.script(acct, simulator.ScreenLibrary)

	_, err := f.svc.ExecuteAction(context.Background(), acct, "open_settings", nil)
	require.Error(t, err)
	assert.True(t, fault.Is(err, fault.KindDriverFault))
	assert.Equal(t, fault.HintRetry, fault.HintOf(err))
	assert.Equal(t, lifecycle.StatusRunning, f.status(t, acct).InstanceStatus)
}

func TestIllegalActionTouchesNothing(t *testing.T) {
	f := newFixture(t, nil)
	const acct = "reader@example.com"

	_, err := f.svc.ExecuteAction(context.Background(), acct, "next_page", nil)
	require.Error(t, err)
	assert.True(t, fault.Is(err, fault.KindIllegalTransition))
	e, ok := fault.As(err)
	require.True(t, ok)
	assert.Equal(t, "auth_login", e.View)
	assert.Zero(t, f.farm.Stats(acct).Taps)
	assert.Zero(t, f.farm.Stats(acct).Swipes)
}

func TestInvalidRequests(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	tests := []struct {
		name string
		run  func() error
	}{
		{"unknown action", func() error {
			_, err := f.svc.ExecuteAction(ctx, "reader@example.com", "teleport", nil)
			return err
		}},
		{"empty account", func() error {
			_, err := f.svc.ExecuteAction(ctx, "  ", "login", nil)
			return err
		}},
		{"unknown operation", func() error {
			_, err := f.svc.ManageProfile(ctx, "reader@example.com", "clone")
			return err
		}},
		{"negative sweep timeout", func() error {
			_, err := f.svc.IdleSweep(ctx, -time.Minute)
			return err
		}},
		{"screenshot of stopped instance", func() error {
			if _, err := f.svc.ManageProfile(ctx, "idle@example.com", "create"); err != nil {
				return err
			}
			_, _, err := f.svc.Screenshot(ctx, "idle@example.com")
			return err
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.run()
			require.Error(t, err)
			assert.True(t, fault.Is(err, fault.KindInvalidRequest), "got %v", err)
		})
	}

	_, err := f.svc.GetProfileStatus(ctx, "reader@example.com")
	assert.True(t, fault.Is(err, fault.KindProfileNotFound), "rejected requests create nothing")
}

func TestManageProfileLifecycle(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	const acct = "Reader@Example.com"

	created, err := f.svc.ManageProfile(ctx, acct, "create")
	require.NoError(t, err)
	assert.Equal(t, OpCreate, created.Operation)
	assert.Equal(t, "reader@example.com", created.AccountID)
	assert.Equal(t, lifecycle.StatusAbsent, created.Status.InstanceStatus)

	again, err := f.svc.ManageProfile(ctx, acct, "CREATE")
	require.NoError(t, err)
	assert.Equal(t, created.Status.Profile.ProfileID, again.Status.Profile.ProfileID)
	assert.Equal(t, created.Status.Instance.InstanceID, again.Status.Instance.InstanceID)

	switched, err := f.svc.ManageProfile(ctx, acct, "switch")
	require.NoError(t, err)
	assert.Equal(t, lifecycle.StatusRunning, switched.Status.InstanceStatus)
	assert.True(t, f.farm.Running(acct))

	list, err := f.svc.ListProfiles(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "reader@example.com", list[0].AccountID)

	deleted, err := f.svc.ManageProfile(ctx, acct, "delete")
	require.NoError(t, err)
	assert.Nil(t, deleted.Status)
	assert.False(t, f.farm.Running(acct))

	_, err = f.svc.GetProfileStatus(ctx, acct)
	assert.True(t, fault.Is(err, fault.KindProfileNotFound))
	_, err = f.repo.Load(ctx, "reader@example.com")
	assert.ErrorIs(t, err, account.ErrNotFound)
}

func TestScreenshot(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	const acct = "reader@example.com"

	_, err := f.svc.ManageProfile(ctx, acct, "switch")
	require.NoError(t, err)

	shot, mime, err := f.svc.Screenshot(ctx, acct)
	require.NoError(t, err)
	assert.NotEmpty(t, shot)
	assert.Equal(t, "image/png", mime)
}

func TestTransitionsListing(t *testing.T) {
	f := newFixture(t, nil)
	assert.Len(t, f.svc.Transitions(), len(statemachine.DefaultTransitions()))
}

func TestConcurrentDistinctActionsSerialize(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	const acct = "reader@example.com"
	f.script(acct, simulator.ScreenLibrary)

	_, err := f.svc.ExecuteAction(ctx, acct, "open_book", handlers.Params{"index": 0})
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.ExecuteAction(ctx, acct, "next_page", handlers.Params{"pages": 1, "n": i})
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		assert.NoError(t, err)
	}
	_, page, _ := f.farm.Current(acct)
	assert.Equal(t, 5, page, "every distinct request turned exactly one page")
}
