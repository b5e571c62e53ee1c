package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Logging     LogConfig         `yaml:"logging"`
	RateLimit   RateLimitConfig   `yaml:"rate_limit"`
	Controller  ControllerConfig  `yaml:"controller"`
	Lifecycle   LifecycleConfig   `yaml:"lifecycle"`
	Guard       GuardConfig       `yaml:"guard"`
	Driver      DriverConfig      `yaml:"driver"`
	Emulator    EmulatorConfig    `yaml:"emulator"`
	Storage     StorageConfig     `yaml:"storage"`
	Diagnostics DiagnosticsConfig `yaml:"diagnostics"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            string        `envconfig:"PORT" default:"8000" yaml:"port"`
	Host            string        `envconfig:"HOST" default:"0.0.0.0" yaml:"host"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"2m" yaml:"shutdown_timeout"`
	CORSOrigins     []string      `envconfig:"CORS_ORIGINS" default:"*" yaml:"cors_origins"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string   `envconfig:"LOG_LEVEL" default:"info" yaml:"level"`
	Development bool     `envconfig:"LOG_DEV" default:"false" yaml:"development"`
	OutputPaths []string `envconfig:"LOG_OUTPUT" default:"stdout" yaml:"output_paths"`
}

// RateLimitConfig holds per-account HTTP rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"5" yaml:"requests_per_second"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"20" yaml:"burst"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true" yaml:"enabled"`
}

// ControllerConfig bounds the transition controller's local retries.
type ControllerConfig struct {
	UnknownRetries    int           `envconfig:"UNKNOWN_RETRIES" default:"3" yaml:"unknown_retries"`
	UnknownRetryDelay time.Duration `envconfig:"UNKNOWN_RETRY_DELAY" default:"1s" yaml:"unknown_retry_delay"`
	ElementRetries    int           `envconfig:"ELEMENT_RETRIES" default:"3" yaml:"element_retries"`
	ElementRetryDelay time.Duration `envconfig:"ELEMENT_RETRY_DELAY" default:"500ms" yaml:"element_retry_delay"`
	SettleAttempts    int           `envconfig:"SETTLE_ATTEMPTS" default:"5" yaml:"settle_attempts"`
	SettleInterval    time.Duration `envconfig:"SETTLE_INTERVAL" default:"300ms" yaml:"settle_interval"`
}

// LifecycleConfig holds emulator fleet configuration.
type LifecycleConfig struct {
	Slots            int           `envconfig:"SLOTS" default:"4" yaml:"slots"`
	BootTimeout      time.Duration `envconfig:"BOOT_TIMEOUT" default:"3m" yaml:"boot_timeout"`
	BootPollInterval time.Duration `envconfig:"BOOT_POLL_INTERVAL" default:"2s" yaml:"boot_poll_interval"`
	ProbeAttempts    int           `envconfig:"PROBE_ATTEMPTS" default:"2" yaml:"probe_attempts"`
	ProbeTimeout     time.Duration `envconfig:"PROBE_TIMEOUT" default:"10s" yaml:"probe_timeout"`
	ProbeInterval    time.Duration `envconfig:"PROBE_INTERVAL" default:"1s" yaml:"probe_interval"`
	IdleTimeout      time.Duration `envconfig:"IDLE_TIMEOUT" default:"30m" yaml:"idle_timeout"`
	SweepInterval    time.Duration `envconfig:"SWEEP_INTERVAL" default:"0s" yaml:"sweep_interval"`
	SkipSnapshot     bool          `envconfig:"SKIP_SNAPSHOT" default:"false" yaml:"skip_snapshot"`
	ResumeOnStart    bool          `envconfig:"RESUME_ON_START" default:"true" yaml:"resume_on_start"`
	AVDPrefix        string        `envconfig:"AVD_PREFIX" default:"reader" yaml:"avd_prefix"`
}

// GuardConfig bounds waiting and execution in the request guard.
type GuardConfig struct {
	WaitTimeout   time.Duration `envconfig:"GUARD_WAIT_TIMEOUT" default:"1m" yaml:"wait_timeout"`
	ActionTimeout time.Duration `envconfig:"GUARD_ACTION_TIMEOUT" default:"5m" yaml:"action_timeout"`
}

// DriverConfig selects and configures the device driver.
type DriverConfig struct {
	Mode           string        `envconfig:"DRIVER_MODE" default:"appium" yaml:"mode"`
	AppiumHost     string        `envconfig:"APPIUM_HOST" default:"127.0.0.1" yaml:"appium_host"`
	AppPackage     string        `envconfig:"APP_PACKAGE" default:"com.amazon.kindle" yaml:"app_package"`
	AppActivity    string        `envconfig:"APP_ACTIVITY" default:"com.amazon.kindle.UpgradePage" yaml:"app_activity"`
	RequestTimeout time.Duration `envconfig:"APPIUM_TIMEOUT" default:"30s" yaml:"request_timeout"`
	Retries        int           `envconfig:"APPIUM_RETRIES" default:"2" yaml:"retries"`
}

// EmulatorConfig holds Android SDK tool configuration.
type EmulatorConfig struct {
	SDKRoot     string   `envconfig:"ANDROID_SDK_ROOT" yaml:"sdk_root"`
	AVDHome     string   `envconfig:"ANDROID_AVD_HOME" yaml:"avd_home"`
	EmulatorBin string   `envconfig:"EMULATOR_BIN" default:"emulator" yaml:"emulator_bin"`
	ADBBin      string   `envconfig:"ADB_BIN" default:"adb" yaml:"adb_bin"`
	Headless    bool     `envconfig:"EMULATOR_HEADLESS" default:"true" yaml:"headless"`
	ExtraArgs   []string `envconfig:"EMULATOR_ARGS" yaml:"extra_args"`
}

// StorageConfig selects the profile repository.
type StorageConfig struct {
	Driver string `envconfig:"STORAGE_DRIVER" default:"memory" yaml:"driver"`
	DSN    string `envconfig:"STORAGE_DSN" default:"readerfleet.db" yaml:"dsn"`
}

// DiagnosticsConfig controls failure artifact capture.
type DiagnosticsConfig struct {
	Enabled bool   `envconfig:"DIAGNOSTICS_ENABLED" default:"true" yaml:"enabled"`
	Dir     string `envconfig:"DIAGNOSTICS_DIR" default:"diagnostics" yaml:"dir"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFile reads a YAML file over the defaults, then applies any
// environment variables that are actually set.
func LoadFile(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	var fromEnv Config
	if err := envconfig.Process("", &fromEnv); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	overlayEnv(reflect.ValueOf(cfg).Elem(), reflect.ValueOf(&fromEnv).Elem(), "")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// overlayEnv copies leaf fields from src to dst where the field's
// variable is present in the environment. envconfig accepts both the
// SECTION_NAME form and the bare tag.
func overlayEnv(dst, src reflect.Value, section string) {
	t := dst.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.Type.Kind() == reflect.Struct && f.Type != reflect.TypeOf(time.Time{}) {
			overlayEnv(dst.Field(i), src.Field(i), strings.ToUpper(f.Name))
			continue
		}
		tag := f.Tag.Get("envconfig")
		if tag == "" {
			continue
		}
		_, bare := os.LookupEnv(tag)
		_, qualified := os.LookupEnv(section + "_" + tag)
		if bare || qualified {
			dst.Field(i).Set(src.Field(i))
		}
	}
}

// Validate rejects configurations the core cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Lifecycle.Slots < 1 {
		errs = append(errs, fmt.Errorf("lifecycle.slots must be at least 1, got %d", c.Lifecycle.Slots))
	}
	if c.Lifecycle.BootTimeout <= 0 {
		errs = append(errs, errors.New("lifecycle.boot_timeout must be positive"))
	}
	if c.Guard.WaitTimeout <= 0 || c.Guard.ActionTimeout <= 0 {
		errs = append(errs, errors.New("guard timeouts must be positive"))
	}
	// a boot runs inside an action, so it must get the chance to time out first
	if c.Guard.ActionTimeout > 0 && c.Guard.ActionTimeout <= c.Lifecycle.BootTimeout {
		errs = append(errs, fmt.Errorf("guard.action_timeout (%s) must exceed lifecycle.boot_timeout (%s)",
			c.Guard.ActionTimeout, c.Lifecycle.BootTimeout))
	}
	switch c.Driver.Mode {
	case "appium", "simulator":
	default:
		errs = append(errs, fmt.Errorf("driver.mode must be appium or simulator, got %q", c.Driver.Mode))
	}
	switch c.Storage.Driver {
	case "memory", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("storage.driver must be memory or sqlite, got %q", c.Storage.Driver))
	}
	return errors.Join(errs...)
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            "8000",
			Host:            "0.0.0.0",
			ShutdownTimeout: 2 * time.Minute,
			CORSOrigins:     []string{"*"},
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
			OutputPaths: []string{"stdout"},
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 5,
			Burst:             20,
			Enabled:           true,
		},
		Controller: ControllerConfig{
			UnknownRetries:    3,
			UnknownRetryDelay: time.Second,
			ElementRetries:    3,
			ElementRetryDelay: 500 * time.Millisecond,
			SettleAttempts:    5,
			SettleInterval:    300 * time.Millisecond,
		},
		Lifecycle: LifecycleConfig{
			Slots:            4,
			BootTimeout:      3 * time.Minute,
			BootPollInterval: 2 * time.Second,
			ProbeAttempts:    2,
			ProbeTimeout:     10 * time.Second,
			ProbeInterval:    time.Second,
			IdleTimeout:      30 * time.Minute,
			ResumeOnStart:    true,
			AVDPrefix:        "reader",
		},
		Guard: GuardConfig{
			WaitTimeout:   time.Minute,
			ActionTimeout: 5 * time.Minute,
		},
		Driver: DriverConfig{
			Mode:           "appium",
			AppiumHost:     "127.0.0.1",
			AppPackage:     "com.amazon.kindle",
			AppActivity:    "com.amazon.kindle.UpgradePage",
			RequestTimeout: 30 * time.Second,
			Retries:        2,
		},
		Emulator: EmulatorConfig{
			EmulatorBin: "emulator",
			ADBBin:      "adb",
			Headless:    true,
		},
		Storage: StorageConfig{
			Driver: "memory",
			DSN:    "readerfleet.db",
		},
		Diagnostics: DiagnosticsConfig{
			Enabled: true,
			Dir:     "diagnostics",
		},
	}
}
