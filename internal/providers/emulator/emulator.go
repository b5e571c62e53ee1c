package emulator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zapio"

	"github.com/GriffinCanCode/readerfleet/internal/domain/device"
)

// SnapshotName is the quickboot snapshot every instance uses
const SnapshotName = "default_boot"

// Config locates the SDK tools
type Config struct {
	SDKRoot     string
	AVDHome     string
	EmulatorBin string
	ADBBin      string
	Headless    bool
	ExtraArgs   []string
	StopTimeout time.Duration
}

// Controller implements device.Emulator with the Android emulator and adb
type Controller struct {
	cfg    Config
	runner Runner
	logger *zap.Logger

	mu    sync.Mutex
	procs map[string]*proc
}

type proc struct {
	process Process
	done    chan struct{}
	err     error
}

func (p *proc) exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// New creates a controller. A nil runner uses os/exec.
func New(cfg Config, runner Runner, logger *zap.Logger) *Controller {
	if runner == nil {
		runner = ExecRunner{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.EmulatorBin == "" {
		cfg.EmulatorBin = "emulator"
	}
	if cfg.ADBBin == "" {
		cfg.ADBBin = "adb"
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = 15 * time.Second
	}
	return &Controller{
		cfg:    cfg,
		runner: runner,
		logger: logger,
		procs:  make(map[string]*proc),
	}
}

// Args returns the emulator command line for an instance
func (c *Controller) Args(ref device.InstanceRef, fromSnapshot bool) []string {
	args := []string{
		"-avd", ref.AVDName,
		"-port", strconv.Itoa(ref.Slot.EmulatorPort),
		"-no-audio",
		"-no-boot-anim",
		"-no-snapshot-save",
		"-gpu", "swiftshader_indirect",
	}
	if c.cfg.Headless {
		args = append(args, "-no-window")
	}
	if fromSnapshot {
		args = append(args, "-snapshot", SnapshotName)
	} else {
		args = append(args, "-no-snapshot-load")
	}
	return append(args, c.cfg.ExtraArgs...)
}

func (c *Controller) env(ref device.InstanceRef) []string {
	var env []string
	if c.cfg.SDKRoot != "" {
		env = append(env, "ANDROID_SDK_ROOT="+c.cfg.SDKRoot)
	}
	if c.cfg.AVDHome != "" {
		env = append(env, "ANDROID_AVD_HOME="+c.cfg.AVDHome)
	}
	if !c.cfg.Headless {
		env = append(env, fmt.Sprintf("DISPLAY=:%d", ref.Slot.Display))
	}
	return env
}

func (c *Controller) Boot(ctx context.Context, ref device.InstanceRef, fromSnapshot bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	if p, ok := c.procs[ref.InstanceID]; ok && !p.exited() {
		c.mu.Unlock()
		return fmt.Errorf("instance %s already has an emulator process", ref.InstanceID)
	}
	c.mu.Unlock()

	log := c.logger.With(
		zap.String("account", ref.AccountID),
		zap.String("avd", ref.AVDName),
		zap.String("serial", ref.Slot.Serial()))
	out := &zapio.Writer{Log: log.Named("stdout"), Level: zapcore.DebugLevel}

	process, err := c.runner.Start(c.cfg.EmulatorBin, c.Args(ref, fromSnapshot), c.env(ref), out)
	if err != nil {
		return err
	}
	p := &proc{process: process, done: make(chan struct{})}
	go func() {
		p.err = process.Wait()
		out.Close()
		close(p.done)
		log.Info("Emulator process exited", zap.Error(p.err))
	}()

	c.mu.Lock()
	c.procs[ref.InstanceID] = p
	c.mu.Unlock()

	log.Info("Emulator started",
		zap.Int("pid", process.Pid()),
		zap.Bool("from_snapshot", fromSnapshot))
	return nil
}

// Status reports whether the device has finished booting. A process that
// has exited reports device.ErrNotRunning.
func (c *Controller) Status(ctx context.Context, ref device.InstanceRef) (device.BootStatus, error) {
	c.mu.Lock()
	p, ok := c.procs[ref.InstanceID]
	c.mu.Unlock()
	if !ok {
		return device.BootStatusOff, device.ErrNotRunning
	}
	if p.exited() {
		if p.err != nil {
			return device.BootStatusOff, fmt.Errorf("%w: %v", device.ErrNotRunning, p.err)
		}
		return device.BootStatusOff, device.ErrNotRunning
	}

	out, err := c.adb(ctx, ref, "shell", "getprop", "sys.boot_completed")
	if err != nil {
		// adb reports the device offline until the guest is up
		return device.BootStatusBooting, nil
	}
	if strings.TrimSpace(string(out)) == "1" {
		return device.BootStatusReady, nil
	}
	return device.BootStatusBooting, nil
}

func (c *Controller) SaveSnapshot(ctx context.Context, ref device.InstanceRef) error {
	out, err := c.adb(ctx, ref, "emu", "avd", "snapshot", "save", SnapshotName)
	if err != nil {
		return fmt.Errorf("save snapshot for %s: %w", ref.AVDName, err)
	}
	if strings.Contains(string(out), "KO") {
		return fmt.Errorf("save snapshot for %s: %s", ref.AVDName, strings.TrimSpace(string(out)))
	}
	return nil
}

// DeleteSnapshot removes the quickboot snapshot. It works whether or not
// the emulator is running.
func (c *Controller) DeleteSnapshot(ctx context.Context, ref device.InstanceRef) error {
	if c.running(ref) {
		if _, err := c.adb(ctx, ref, "emu", "avd", "snapshot", "delete", SnapshotName); err != nil {
			c.logger.Debug("online snapshot delete failed", zap.String("avd", ref.AVDName), zap.Error(err))
		}
	}
	dir := filepath.Join(c.avdHome(), ref.AVDName+".avd", "snapshots", SnapshotName)
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("delete snapshot %s: %w", dir, err)
	}
	return nil
}

// Stop asks the console to kill the emulator and waits for the process.
// The process is killed outright if it does not exit in time.
func (c *Controller) Stop(ctx context.Context, ref device.InstanceRef) error {
	c.mu.Lock()
	p, ok := c.procs[ref.InstanceID]
	delete(c.procs, ref.InstanceID)
	c.mu.Unlock()

	if ok && p.exited() {
		return nil
	}
	if _, err := c.adb(ctx, ref, "emu", "kill"); err != nil {
		c.logger.Debug("console kill failed", zap.String("serial", ref.Slot.Serial()), zap.Error(err))
	}
	if !ok {
		return nil
	}

	timer := time.NewTimer(c.cfg.StopTimeout)
	defer timer.Stop()
	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
	case <-timer.C:
	}
	if err := p.process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("kill emulator %s: %w", ref.Slot.Serial(), err)
	}
	<-p.done
	return nil
}

// Running returns the instance IDs with a live emulator process
func (c *Controller) Running() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var ids []string
	for id, p := range c.procs {
		if !p.exited() {
			ids = append(ids, id)
		}
	}
	return ids
}

func (c *Controller) running(ref device.InstanceRef) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.procs[ref.InstanceID]
	return ok && !p.exited()
}

func (c *Controller) adb(ctx context.Context, ref device.InstanceRef, args ...string) ([]byte, error) {
	return c.runner.Run(ctx, c.cfg.ADBBin, append([]string{"-s", ref.Slot.Serial()}, args...)...)
}

func (c *Controller) avdHome() string {
	if c.cfg.AVDHome != "" {
		return c.cfg.AVDHome
	}
	if env := os.Getenv("ANDROID_AVD_HOME"); env != "" {
		return env
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".android", "avd")
	}
	return filepath.Join(home, ".android", "avd")
}
