// Package config loads medd settings from defaults, an optional YAML file
// and MEDD_* environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/sandeepkv93/medd/internal/notify"
)

const (
	envPrefix      = "MEDD"
	configFileName = "medd.yaml"
	reloadDebounce = 250 * time.Millisecond
)

var ErrInvalid = errors.New("config: invalid")

type Config struct {
	DataDir       string              `mapstructure:"data_dir"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Session       SessionConfig       `mapstructure:"session"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
	Sweep         SweepConfig         `mapstructure:"sweep"`
	Reconcile     ReconcileConfig     `mapstructure:"reconcile"`
	Log           LogConfig           `mapstructure:"log"`
	Metrics       MetricsConfig       `mapstructure:"metrics"`

	// File is the config file that was read, empty when none existed.
	File string `mapstructure:"-"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

type SessionConfig struct {
	Path string `mapstructure:"path"`
}

type NotificationsConfig struct {
	Desktop       bool          `mapstructure:"desktop"`
	Permission    string        `mapstructure:"permission"`
	Sound         bool          `mapstructure:"sound"`
	Channel       string        `mapstructure:"channel"`
	MaxTriggers   int           `mapstructure:"max_triggers"`
	RatePerMinute int           `mapstructure:"rate_per_minute"`
	QueueBuffer   int           `mapstructure:"queue_buffer"`
	TestDelay     time.Duration `mapstructure:"test_delay"`
}

type SweepConfig struct {
	Cron string `mapstructure:"cron"`
}

// ReconcileConfig schedules the daemon's periodic reconciliation, which picks
// up medications changed by other medd processes.
type ReconcileConfig struct {
	Cron string `mapstructure:"cron"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

func setDefaults(v *viper.Viper, dataDir string) {
	v.SetDefault("data_dir", dataDir)
	v.SetDefault("database.path", filepath.Join(dataDir, "medd.db"))
	v.SetDefault("session.path", filepath.Join(dataDir, "session.json"))

	policy := notify.DefaultDisplayPolicy()
	v.SetDefault("notifications.desktop", false)
	v.SetDefault("notifications.permission", string(notify.PermissionGranted))
	v.SetDefault("notifications.sound", policy.PlaySound)
	v.SetDefault("notifications.channel", policy.Channel)
	v.SetDefault("notifications.max_triggers", policy.MaxTriggers)
	v.SetDefault("notifications.rate_per_minute", 6)
	v.SetDefault("notifications.queue_buffer", 64)
	v.SetDefault("notifications.test_delay", 2*time.Second)

	v.SetDefault("sweep.cron", "0 0 * * *")
	v.SetDefault("reconcile.cron", "@every 1m")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("metrics.addr", "")
}

// Load resolves configuration. configPath defaults to medd.yaml inside the
// data dir; a missing file is not an error.
func Load(configPath, dataDir string) (*Config, error) {
	v := viper.New()

	if dataDir == "" {
		dataDir = os.Getenv(envPrefix + "_DATA_DIR")
	}
	if dataDir == "" {
		dataDir = defaultDataDir()
	}
	setDefaults(v, dataDir)

	if configPath == "" {
		configPath = filepath.Join(dataDir, configFileName)
	}
	file := ""
	if _, err := os.Stat(configPath); err == nil {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", configPath, err)
		}
		file = configPath
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	cfg.File = file

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Database.Path) == "" {
		return fmt.Errorf("%w: database.path is required", ErrInvalid)
	}
	if _, err := notify.ParsePermissionMode(c.Notifications.Permission); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if c.Notifications.MaxTriggers <= 0 {
		return fmt.Errorf("%w: notifications.max_triggers must be positive", ErrInvalid)
	}
	if c.Notifications.TestDelay <= 0 {
		return fmt.Errorf("%w: notifications.test_delay must be positive", ErrInvalid)
	}
	if _, err := cron.ParseStandard(c.Sweep.Cron); err != nil {
		return fmt.Errorf("%w: sweep.cron %q: %v", ErrInvalid, c.Sweep.Cron, err)
	}
	if _, err := cron.ParseStandard(c.Reconcile.Cron); err != nil {
		return fmt.Errorf("%w: reconcile.cron %q: %v", ErrInvalid, c.Reconcile.Cron, err)
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("%w: log.format %q", ErrInvalid, c.Log.Format)
	}
	return nil
}

// DisplayPolicy maps the notification settings onto the notifier policy.
func (c *Config) DisplayPolicy() notify.DisplayPolicy {
	p := notify.DefaultDisplayPolicy()
	p.PlaySound = c.Notifications.Sound
	p.SetBadge = c.Notifications.Sound
	if c.Notifications.Channel != "" {
		p.Channel = c.Notifications.Channel
	}
	p.MaxTriggers = c.Notifications.MaxTriggers
	return p
}

func (c *Config) PermissionMode() notify.PermissionMode {
	m, err := notify.ParsePermissionMode(c.Notifications.Permission)
	if err != nil {
		return notify.PermissionGranted
	}
	return m
}

// Watch reloads the config file when it changes and passes every valid
// result to onChange. It returns when ctx is done.
func Watch(ctx context.Context, cfg *Config, log *zap.Logger, onChange func(*Config)) error {
	if cfg.File == "" {
		return errors.New("config: no config file to watch")
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: watcher: %w", err)
	}
	defer w.Close()

	dir, file := filepath.Dir(cfg.File), filepath.Base(cfg.File)
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("config: watch %s: %w", dir, err)
	}

	var (
		timerMu sync.Mutex
		timer   *time.Timer
		wg      sync.WaitGroup
	)
	reload := func() {
		defer wg.Done()
		if ctx.Err() != nil {
			return
		}
		next, err := Load(cfg.File, cfg.DataDir)
		if err != nil {
			log.Warn("config reload rejected", zap.String("path", cfg.File), zap.Error(err))
			return
		}
		log.Info("config reloaded", zap.String("path", cfg.File))
		onChange(next)
	}
	debounce := func() {
		timerMu.Lock()
		defer timerMu.Unlock()
		if timer != nil && timer.Stop() {
			wg.Done()
		}
		wg.Add(1)
		timer = time.AfterFunc(reloadDebounce, reload)
	}
	defer func() {
		timerMu.Lock()
		if timer != nil && timer.Stop() {
			wg.Done()
		}
		timerMu.Unlock()
		wg.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) == file && ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				debounce()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Warn("config watcher error", zap.Error(err))
		}
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".medd"
	}
	return filepath.Join(home, ".medd")
}
