package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds every setting of the alarm daemon.
type Config struct {
	// Alarm is the daily alarm definition.
	Alarm Alarm `yaml:"alarm"`
	// Sound controls alarm playback.
	Sound Sound `yaml:"sound"`
	// Restart controls re-arming after a cancellation.
	Restart Restart `yaml:"restart"`
	// Sleep controls how the machine is suspended.
	Sleep Sleep `yaml:"sleep"`
	// Log controls log output.
	Log Log `yaml:"log"`
	// Journal controls the lifecycle event journal.
	Journal Journal `yaml:"journal"`
	// Metrics controls the metrics textfile export.
	Metrics Metrics `yaml:"metrics"`
}

// Alarm is the daily alarm definition.
type Alarm struct {
	// Time is the local wall-clock time in HH:MM format.
	Time string `yaml:"time" env:"STG_ALARM_TIME"`
	// Enabled turns the daily trigger on or off.
	Enabled bool `yaml:"enabled" env:"STG_ALARM_ENABLED"`
	// SoundFile is the audio file played while ringing.
	SoundFile string `yaml:"sound_file" env:"STG_SOUND_FILE"`
}

// Sound controls alarm playback.
type Sound struct {
	// Duration is the hard cap of one ringing period and the cancellation window.
	Duration time.Duration `yaml:"duration" env:"STG_SOUND_DURATION"`
	// Volume is the playback volume from 0.0 to 1.0.
	Volume float64 `yaml:"volume" env:"STG_SOUND_VOLUME"`
	// Backend is "beep" (in-process decoder) or "command" (external player).
	Backend string `yaml:"backend" env:"STG_SOUND_BACKEND"`
	// Command is the external player template used by the command backend.
	// The {file} token is replaced with the sound file path.
	Command string `yaml:"command,omitempty" env:"STG_SOUND_COMMAND"`
}

// Restart controls re-arming after a cancellation.
type Restart struct {
	// Delay is the grace period before the alarm rings again.
	Delay time.Duration `yaml:"delay" env:"STG_RESTART_DELAY"`
}

// Sleep controls how the machine is suspended.
type Sleep struct {
	// Method is auto, powershell, rundll32, systemctl, pmset, shutdown or command.
	Method string `yaml:"method" env:"STG_SLEEP_METHOD"`
	// Command is the custom suspend command used by the "command" method.
	Command string `yaml:"command,omitempty" env:"STG_SLEEP_COMMAND"`
	// Timeout bounds the suspend command execution.
	Timeout time.Duration `yaml:"timeout" env:"STG_SLEEP_TIMEOUT"`
}

// Log controls log output.
type Log struct {
	// Level is the console log level.
	Level string `yaml:"level" env:"STG_LOG_LEVEL"`
	// File is an optional JSON log file path.
	File string `yaml:"file,omitempty" env:"STG_LOG_FILE"`
}

// Journal controls the lifecycle event journal.
type Journal struct {
	// Path is the SQLite database file, empty disables the journal.
	Path string `yaml:"path,omitempty" env:"STG_JOURNAL_PATH"`
}

// Metrics controls the metrics textfile export.
type Metrics struct {
	// Textfile is a node-exporter textfile collector path, empty disables the export.
	Textfile string `yaml:"textfile,omitempty" env:"STG_METRICS_TEXTFILE"`
}

const (
	// DefaultConfigFilename is the default filename for settings.
	DefaultConfigFilename = "stop-the-game.yaml"

	// DefaultAlarmTime is the alarm time used when none is configured.
	DefaultAlarmTime = "21:00"

	// DefaultSoundFile is the alarm sound used when none is configured.
	DefaultSoundFile = "./sounds/alarm.wav"

	// DefaultSoundDuration is the ringing window.
	DefaultSoundDuration = 30 * time.Second

	// DefaultVolume is the playback volume.
	DefaultVolume = 1.0

	// DefaultRestartDelay is the grace period after a cancellation.
	DefaultRestartDelay = 10 * time.Second

	// DefaultSleepTimeout bounds the suspend command.
	DefaultSleepTimeout = 5 * time.Second

	// DefaultLogFile is where the JSON log is written.
	DefaultLogFile = "./logs/app.log"

	// DefaultFilePermissions is the default file permission for config files.
	DefaultFilePermissions = 0o600

	// SoundBackendBeep plays the file in-process.
	SoundBackendBeep = "beep"
	// SoundBackendCommand plays the file with an external program.
	SoundBackendCommand = "command"

	// SleepMethodAuto picks the platform default suspend method.
	SleepMethodAuto = "auto"

	// dotenvFilename is loaded, when present, before applying environment overrides.
	dotenvFilename = ".env"
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// ErrInvalidAlarmTime is returned for times not in HH:MM format.
	ErrInvalidAlarmTime = errors.New("invalid alarm time format")
	// ErrInvalidVolume is returned for volumes outside 0.0..1.0.
	ErrInvalidVolume = errors.New("volume must be between 0.0 and 1.0")
	// ErrInvalidDuration is returned for non-positive sound durations.
	ErrInvalidDuration = errors.New("duration must be a positive number")
	// ErrEmptySoundFile is returned when no sound file is configured.
	ErrEmptySoundFile = errors.New("sound file path cannot be empty")
	// ErrUnknownSoundBackend is returned for unsupported playback backends.
	ErrUnknownSoundBackend = errors.New("unknown sound backend")
	// ErrUnknownSleepMethod is returned for unsupported suspend methods.
	ErrUnknownSleepMethod = errors.New("unknown sleep method")

	// sleepMethods lists the suspend methods the power invoker understands.
	sleepMethods = []string{SleepMethodAuto, "powershell", "rundll32", "systemctl", "pmset", "shutdown", "command"}

	// alarmTimePattern accepts H:MM and HH:MM in 24-hour format.
	alarmTimePattern = regexp.MustCompile(`^([0-1]?[0-9]|2[0-3]):[0-5][0-9]$`)
)

// Defaults returns a configuration with every field set to its default value.
func Defaults() *Config {
	return &Config{
		Alarm: Alarm{
			Time:      DefaultAlarmTime,
			Enabled:   true,
			SoundFile: DefaultSoundFile,
		},
		Sound: Sound{
			Duration: DefaultSoundDuration,
			Volume:   DefaultVolume,
			Backend:  SoundBackendBeep,
		},
		Restart: Restart{
			Delay: DefaultRestartDelay,
		},
		Sleep: Sleep{
			Method:  SleepMethodAuto,
			Timeout: DefaultSleepTimeout,
		},
		Log: Log{
			Level: "info",
			File:  DefaultLogFile,
		},
	}
}

// Clone returns a copy of the configuration.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}

	cloned := *c

	return &cloned
}

// Load reads configuration from the provided path on top of the defaults and validates it.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	cfg := Defaults()
	if err := yaml.Unmarshal(contents, cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes the configuration to the provided path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	if dir := filepath.Dir(filepath.Clean(path)); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil { //nolint:mnd // Owner and group only.
			return fmt.Errorf("create settings directory: %w", err)
		}
	}

	// Restrict permissions.
	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// ApplyEnvironment loads an optional .env file and overrides fields from STG_* variables.
func ApplyEnvironment(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if err := godotenv.Load(dotenvFilename); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load %s: %w", dotenvFilename, err)
	}

	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("parse environment: %w", err)
	}

	return Validate(cfg)
}

// Validate checks the provided settings and fills defaults for optional fields.
func Validate(settings *Config) error {
	if settings == nil {
		return errConfigIsNotSet
	}

	if _, _, err := ParseAlarmTime(settings.Alarm.Time); err != nil {
		return err
	}

	if settings.Sound.Volume < 0.0 || settings.Sound.Volume > 1.0 {
		return ErrInvalidVolume
	}

	if settings.Sound.Duration <= 0 {
		return ErrInvalidDuration
	}

	if strings.TrimSpace(settings.Alarm.SoundFile) == "" {
		return ErrEmptySoundFile
	}

	switch settings.Sound.Backend {
	case "":
		settings.Sound.Backend = SoundBackendBeep
	case SoundBackendBeep, SoundBackendCommand:
	default:
		return fmt.Errorf("%w: %s", ErrUnknownSoundBackend, settings.Sound.Backend)
	}

	// Set default restart delay if not specified.
	if settings.Restart.Delay <= 0 {
		settings.Restart.Delay = DefaultRestartDelay
	}

	// Set default sleep timeout if not specified.
	if settings.Sleep.Timeout <= 0 {
		settings.Sleep.Timeout = DefaultSleepTimeout
	}

	settings.Sleep.Method = strings.ToLower(strings.TrimSpace(settings.Sleep.Method))
	if settings.Sleep.Method == "" {
		settings.Sleep.Method = SleepMethodAuto
	}

	if !slices.Contains(sleepMethods, settings.Sleep.Method) {
		return fmt.Errorf("%w: %s", ErrUnknownSleepMethod, settings.Sleep.Method)
	}

	if settings.Log.Level == "" {
		settings.Log.Level = "info"
	}

	return nil
}

// ParseAlarmTime splits an HH:MM string into hour and minute.
func ParseAlarmTime(value string) (int, int, error) {
	value = strings.TrimSpace(value)
	if !alarmTimePattern.MatchString(value) {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidAlarmTime, value)
	}

	hours, minutes, _ := strings.Cut(value, ":")

	hour, err := strconv.Atoi(hours)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidAlarmTime, value)
	}

	minute, err := strconv.Atoi(minutes)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidAlarmTime, value)
	}

	return hour, minute, nil
}
