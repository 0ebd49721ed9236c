package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/openmined/watchd/internal/ingest"
	"github.com/openmined/watchd/internal/logging"
	"github.com/openmined/watchd/internal/utils"
	"github.com/openmined/watchd/internal/view"
	"github.com/openmined/watchd/internal/watcher"
	"github.com/spf13/viper"
)

// viper keys
const (
	KeyStateDir    = "state_dir"
	KeyLogFile     = "log_file"
	KeyLogLevel    = "log_level"
	KeyBackend     = "backend"
	KeyBatchLimit  = "batch_limit"
	KeyWaitTimeout = "wait_timeout"
	KeySettle      = "settle"
	KeyMaxSettle   = "max_settle"
	KeyFlushOnStop = "flush_on_stop"
	KeySyncTimeout = "sync_timeout"
	KeyIgnore      = "ignore"
	KeyHTTPAddr    = "http_addr"
	KeyHTTPToken   = "http_token"
	KeyRoots       = "roots"
)

const (
	EnvPrefix          = "WATCHD"
	DefaultHTTPAddr    = "localhost:7939"
	DefaultSyncTimeout = time.Minute
	logFileName        = "watchd.log"
)

var (
	home, _           = os.UserHomeDir()
	DefaultStateDir   = filepath.Join(home, ".watchd")
	DefaultConfigPath = filepath.Join(DefaultStateDir, "config.json")
)

var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	Path        string        `json:"-"`
	StateDir    string        `json:"state_dir"`
	LogFile     string        `json:"log_file"`
	LogLevel    string        `json:"log_level"`
	Backend     string        `json:"backend"`
	BatchLimit  int           `json:"batch_limit"`
	WaitTimeout time.Duration `json:"wait_timeout"`
	Settle      time.Duration `json:"settle"`
	MaxSettle   time.Duration `json:"max_settle"`
	FlushOnStop bool          `json:"flush_on_stop"`
	SyncTimeout time.Duration `json:"sync_timeout"`
	Ignore      []string      `json:"ignore"`
	HTTPAddr    string        `json:"http_addr"`
	HTTPToken   string        `json:"http_token"`
	Roots       []string      `json:"roots"`
}

// Default returns a config with every field at its default value.
func Default() *Config {
	return &Config{
		StateDir:    DefaultStateDir,
		LogLevel:    "info",
		Backend:     watcher.BackendNotify,
		BatchLimit:  ingest.DefaultBatchLimit,
		WaitTimeout: ingest.DefaultWaitTimeout,
		Settle:      view.DefaultSettle,
		MaxSettle:   view.DefaultMaxSettle,
		SyncTimeout: DefaultSyncTimeout,
		HTTPAddr:    DefaultHTTPAddr,
	}
}

// SetDefaults registers Default() with v.
func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault(KeyStateDir, d.StateDir)
	v.SetDefault(KeyLogLevel, d.LogLevel)
	v.SetDefault(KeyBackend, d.Backend)
	v.SetDefault(KeyBatchLimit, d.BatchLimit)
	v.SetDefault(KeyWaitTimeout, d.WaitTimeout)
	v.SetDefault(KeySettle, d.Settle)
	v.SetDefault(KeyMaxSettle, d.MaxSettle)
	v.SetDefault(KeySyncTimeout, d.SyncTimeout)
	v.SetDefault(KeyHTTPAddr, d.HTTPAddr)
}

// FromViper reads every key from v. The result is not validated.
func FromViper(v *viper.Viper) *Config {
	return &Config{
		Path:        v.ConfigFileUsed(),
		StateDir:    v.GetString(KeyStateDir),
		LogFile:     v.GetString(KeyLogFile),
		LogLevel:    v.GetString(KeyLogLevel),
		Backend:     v.GetString(KeyBackend),
		BatchLimit:  v.GetInt(KeyBatchLimit),
		WaitTimeout: v.GetDuration(KeyWaitTimeout),
		Settle:      v.GetDuration(KeySettle),
		MaxSettle:   v.GetDuration(KeyMaxSettle),
		FlushOnStop: v.GetBool(KeyFlushOnStop),
		SyncTimeout: v.GetDuration(KeySyncTimeout),
		Ignore:      v.GetStringSlice(KeyIgnore),
		HTTPAddr:    v.GetString(KeyHTTPAddr),
		HTTPToken:   v.GetString(KeyHTTPToken),
		Roots:       v.GetStringSlice(KeyRoots),
	}
}

// Validate normalizes paths and rejects values the daemon cannot run with.
func (c *Config) Validate() error {
	var err error

	if c.StateDir, err = utils.ResolvePath(c.StateDir); err != nil {
		return fmt.Errorf("%w: state dir: %w", ErrInvalidConfig, err)
	}

	if c.LogFile == "" {
		c.LogFile = filepath.Join(c.StateDir, "logs", logFileName)
	}
	if c.LogFile, err = utils.ResolvePath(c.LogFile); err != nil {
		return fmt.Errorf("%w: log file: %w", ErrInvalidConfig, err)
	}

	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	if c.Backend == "" {
		c.Backend = watcher.BackendNotify
	}
	if !slices.Contains(watcher.Backends(), c.Backend) {
		return fmt.Errorf("%w: unknown backend %q, want one of %s", ErrInvalidConfig, c.Backend, strings.Join(watcher.Backends(), ", "))
	}

	if c.BatchLimit <= 0 {
		return fmt.Errorf("%w: batch_limit must be positive, got %d", ErrInvalidConfig, c.BatchLimit)
	}

	for key, d := range map[string]time.Duration{
		KeyWaitTimeout: c.WaitTimeout,
		KeySettle:      c.Settle,
		KeyMaxSettle:   c.MaxSettle,
		KeySyncTimeout: c.SyncTimeout,
	} {
		if d <= 0 {
			return fmt.Errorf("%w: %s must be positive, got %s", ErrInvalidConfig, key, d)
		}
	}
	if c.MaxSettle < c.Settle {
		return fmt.Errorf("%w: max_settle %s is shorter than settle %s", ErrInvalidConfig, c.MaxSettle, c.Settle)
	}

	for _, g := range c.Ignore {
		if !doublestar.ValidatePattern(g) {
			return fmt.Errorf("%w: bad ignore glob %q", ErrInvalidConfig, g)
		}
	}

	for i, r := range c.Roots {
		if c.Roots[i], err = utils.ResolvePath(r); err != nil {
			return fmt.Errorf("%w: root %q: %w", ErrInvalidConfig, r, err)
		}
	}

	if c.Path != "" {
		if c.Path, err = utils.ResolvePath(c.Path); err != nil {
			return fmt.Errorf("%w: config path: %w", ErrInvalidConfig, err)
		}
	}

	return nil
}

// LockPath is the file that keeps a second daemon off the same state dir.
func (c *Config) LockPath() string {
	return filepath.Join(c.StateDir, "watchd.lock")
}
