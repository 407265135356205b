// Package settings manages the persisted alarm settings.
//
// A missing file yields the defaults. A corrupt file is logged and also
// yields the defaults, so the alarm keeps working with a broken settings file.
package settings

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/oshokin/stop-the-game/internal/config"
	"github.com/oshokin/stop-the-game/internal/logger"
)

// Keys accepted by Get and Update.
const (
	KeyAlarmTime     = "alarm.time"
	KeyAlarmEnabled  = "alarm.enabled"
	KeySoundFile     = "alarm.sound_file"
	KeySoundVolume   = "sound.volume"
	KeySoundDuration = "sound.duration"
	KeyRestartDelay  = "restart.delay"
	KeySleepMethod   = "sleep.method"
	KeyLogLevel      = "log.level"
)

// ErrUnknownKey is returned for keys Update does not know.
var ErrUnknownKey = errors.New("unknown setting")

// field reads and writes one setting as a string.
type field struct {
	get func(cfg *config.Config) string
	set func(cfg *config.Config, value string) error
}

//nolint:gochecknoglobals // Read-only lookup table.
var fields = map[string]field{
	KeyAlarmTime: {
		get: func(cfg *config.Config) string { return cfg.Alarm.Time },
		set: func(cfg *config.Config, value string) error {
			cfg.Alarm.Time = strings.TrimSpace(value)
			return nil
		},
	},
	KeyAlarmEnabled: {
		get: func(cfg *config.Config) string { return strconv.FormatBool(cfg.Alarm.Enabled) },
		set: func(cfg *config.Config, value string) error {
			enabled, err := strconv.ParseBool(strings.TrimSpace(value))
			if err != nil {
				return fmt.Errorf("parse %s: %w", KeyAlarmEnabled, err)
			}

			cfg.Alarm.Enabled = enabled

			return nil
		},
	},
	KeySoundFile: {
		get: func(cfg *config.Config) string { return cfg.Alarm.SoundFile },
		set: func(cfg *config.Config, value string) error {
			cfg.Alarm.SoundFile = value
			return nil
		},
	},
	KeySoundVolume: {
		get: func(cfg *config.Config) string { return strconv.FormatFloat(cfg.Sound.Volume, 'f', -1, 64) },
		set: func(cfg *config.Config, value string) error {
			volume, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
			if err != nil {
				return fmt.Errorf("parse %s: %w", KeySoundVolume, err)
			}

			cfg.Sound.Volume = volume

			return nil
		},
	},
	KeySoundDuration: {
		get: func(cfg *config.Config) string { return cfg.Sound.Duration.String() },
		set: func(cfg *config.Config, value string) error {
			duration, err := parseDuration(value)
			if err != nil {
				return fmt.Errorf("parse %s: %w", KeySoundDuration, err)
			}

			cfg.Sound.Duration = duration

			return nil
		},
	},
	KeyRestartDelay: {
		get: func(cfg *config.Config) string { return cfg.Restart.Delay.String() },
		set: func(cfg *config.Config, value string) error {
			delay, err := parseDuration(value)
			if err != nil {
				return fmt.Errorf("parse %s: %w", KeyRestartDelay, err)
			}

			cfg.Restart.Delay = delay

			return nil
		},
	},
	KeySleepMethod: {
		get: func(cfg *config.Config) string { return cfg.Sleep.Method },
		set: func(cfg *config.Config, value string) error {
			cfg.Sleep.Method = strings.ToLower(strings.TrimSpace(value))
			return nil
		},
	},
	KeyLogLevel: {
		get: func(cfg *config.Config) string { return cfg.Log.Level },
		set: func(cfg *config.Config, value string) error {
			cfg.Log.Level = strings.ToLower(strings.TrimSpace(value))
			return nil
		},
	},
}

// parseDuration accepts Go durations ("45s") and plain seconds ("45").
func parseDuration(value string) (time.Duration, error) {
	value = strings.TrimSpace(value)

	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second, nil
	}

	return time.ParseDuration(value)
}

// Keys returns every key accepted by Update, sorted.
func Keys() []string {
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	return keys
}

// Manager loads, validates and persists settings.
type Manager struct {
	path    string
	current *config.Config
	mu      sync.RWMutex
}

// NewManager creates a manager for the settings file at path.
func NewManager(path string) *Manager {
	if path == "" {
		path = config.DefaultConfigFilename
	}

	return &Manager{path: path}
}

// Path returns the settings file path.
func (m *Manager) Path() string {
	return m.path
}

// Load reads the settings file, falling back to the defaults when it is missing or broken.
func (m *Manager) Load(ctx context.Context) *config.Config {
	cfg, err := config.Load(m.path)

	switch {
	case err == nil:
		logger.InfoKV(ctx, "Settings loaded", "path", m.path, "alarm_time", cfg.Alarm.Time, "enabled", cfg.Alarm.Enabled)
	case errors.Is(err, os.ErrNotExist):
		logger.InfoKV(ctx, "Settings file not found, using defaults", "path", m.path)

		cfg = config.Defaults()
	default:
		logger.ErrorKV(ctx, "Failed to parse settings file, using defaults", "path", m.path, "error", err)

		cfg = config.Defaults()
	}

	m.mu.Lock()
	m.current = cfg
	m.mu.Unlock()

	return cfg.Clone()
}

// Current returns a copy of the loaded settings, or the defaults before Load.
func (m *Manager) Current() *config.Config {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.current == nil {
		return config.Defaults()
	}

	return m.current.Clone()
}

// Save validates and writes cfg, then makes it current.
func (m *Manager) Save(ctx context.Context, cfg *config.Config) error {
	cloned := cfg.Clone()

	if err := config.Save(m.path, cloned); err != nil {
		logger.WarnKV(ctx, "Cannot save settings", "path", m.path, "error", err)

		return fmt.Errorf("save settings: %w", err)
	}

	m.mu.Lock()
	m.current = cloned
	m.mu.Unlock()

	logger.InfoKV(ctx, "Settings saved", "path", m.path)

	return nil
}

// Get returns one setting formatted as a string.
func (m *Manager) Get(key string) (string, error) {
	f, ok := fields[key]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}

	return f.get(m.Current()), nil
}

// Update changes one setting, validates the result and saves it.
func (m *Manager) Update(ctx context.Context, key, value string) (*config.Config, error) {
	f, ok := fields[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}

	cfg := m.Current()
	if err := f.set(cfg, value); err != nil {
		return nil, err
	}

	if err := m.Save(ctx, cfg); err != nil {
		return nil, err
	}

	logger.InfoKV(ctx, "Setting updated", "key", key, "value", f.get(cfg))

	return cfg.Clone(), nil
}

// Reset writes the defaults.
func (m *Manager) Reset(ctx context.Context) (*config.Config, error) {
	cfg := config.Defaults()

	if err := m.Save(ctx, cfg); err != nil {
		return nil, err
	}

	logger.Info(ctx, "Settings reset to defaults")

	return cfg, nil
}
