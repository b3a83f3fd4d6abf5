// Package config loads and resolves the pomod configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/huh"
	"gopkg.in/yaml.v3"

	"github.com/pomod-sh/pomod/internal/timer"
)

var (
	ErrConfigNotFound = errors.New("config file not found")
	ErrInvalidConfig  = errors.New("invalid config")
)

// Defaults mirror the classic Pomodoro cycle: 25 minute work sessions,
// 5 minute short breaks, a 15 minute long break every 4 sessions.
const (
	DefaultWorkSeconds       = 1500
	DefaultShortBreakSeconds = 300
	DefaultLongBreakSeconds  = 900
	DefaultIntervals         = 4

	pidFileName    = "daemon.pid"
	logFileName    = "daemon.log"
	configFileName = "config.yaml"
	socketFileName = "pomod.sock"
)

// SocketEnv overrides the socket path when set. Used by tests and for
// running a second daemon side by side during development.
const SocketEnv = "POMOD_SOCKET"

// Timers configures the phase durations in whole seconds and the number of
// work sessions before a long break.
type Timers struct {
	Work       int `yaml:"work"`
	ShortBreak int `yaml:"short_break"`
	LongBreak  int `yaml:"long_break"`
	Intervals  int `yaml:"intervals"`
}

// AutoStart controls whether a new phase begins counting immediately or
// waits for an explicit resume.
type AutoStart struct {
	Work   bool `yaml:"work"`
	Breaks bool `yaml:"breaks"`
}

// Notifications configures OS notification dispatch on phase transitions.
type Notifications struct {
	Enabled bool `yaml:"enabled"`
	// BreakSuggestions are picked at random and appended to the
	// break notification text.
	BreakSuggestions []string `yaml:"break_suggestions,omitempty"`
}

// Config represents the application configuration.
type Config struct {
	Timers        Timers        `yaml:"timers"`
	AutoStart     AutoStart     `yaml:"auto_start"`
	Notifications Notifications `yaml:"notifications"`
	LogLevel      string        `yaml:"log_level,omitempty"`

	// path is the file this config was loaded from or should be saved to.
	path string `yaml:"-"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Timers: Timers{
			Work:       DefaultWorkSeconds,
			ShortBreak: DefaultShortBreakSeconds,
			LongBreak:  DefaultLongBreakSeconds,
			Intervals:  DefaultIntervals,
		},
		AutoStart: AutoStart{
			Work:   false,
			Breaks: true,
		},
		Notifications: Notifications{
			Enabled: true,
		},
		LogLevel: "info",
	}
}

// Dir returns the pomod directory (~/.pomod), creating it if needed.
func Dir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	dir := filepath.Join(homeDir, ".pomod")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create pomod directory: %w", err)
	}
	return dir, nil
}

// Path returns the default config file path.
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configFileName), nil
}

// PidPath returns the daemon pid file path.
func PidPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, pidFileName), nil
}

// LogPath returns the daemon log file path.
func LogPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, logFileName), nil
}

// SocketPath returns the local socket path the daemon binds. POMOD_SOCKET
// wins, then $XDG_RUNTIME_DIR, then a per-user file under /tmp.
func SocketPath() string {
	if p := os.Getenv(SocketEnv); p != "" {
		return p
	}
	if runtimeDir := os.Getenv("XDG_RUNTIME_DIR"); runtimeDir != "" {
		return filepath.Join(runtimeDir, socketFileName)
	}
	return filepath.Join(os.TempDir(), fmt.Sprintf("pomod-%d.sock", os.Getuid()))
}

// Load reads the config from path. An empty path means the default location.
func Load(path string) (*Config, error) {
	if path == "" {
		var err error
		path, err = Path()
		if err != nil {
			return nil, err
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	cfg.path = path

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the config to its path.
func (c *Config) Save() error {
	if c.path == "" {
		var err error
		c.path, err = Path()
		if err != nil {
			return err
		}
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(c.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// FilePath returns where this config lives on disk.
func (c *Config) FilePath() string {
	return c.path
}

// Validate checks the configuration for nonsensical values.
func (c *Config) Validate() error {
	if c.Timers.Work <= 0 {
		return fmt.Errorf("%w: timers.work must be positive, got %d", ErrInvalidConfig, c.Timers.Work)
	}
	if c.Timers.ShortBreak <= 0 {
		return fmt.Errorf("%w: timers.short_break must be positive, got %d", ErrInvalidConfig, c.Timers.ShortBreak)
	}
	if c.Timers.LongBreak <= 0 {
		return fmt.Errorf("%w: timers.long_break must be positive, got %d", ErrInvalidConfig, c.Timers.LongBreak)
	}
	if c.Timers.Intervals < 1 {
		return fmt.Errorf("%w: timers.intervals must be at least 1, got %d", ErrInvalidConfig, c.Timers.Intervals)
	}
	return nil
}

// Resolve produces the timer configuration handed to the state machine.
func (c *Config) Resolve() timer.Config {
	return timer.Config{
		WorkSeconds:       c.Timers.Work,
		ShortBreakSeconds: c.Timers.ShortBreak,
		LongBreakSeconds:  c.Timers.LongBreak,
		Intervals:         c.Timers.Intervals,
		AutoStartWork:     c.AutoStart.Work,
		AutoStartBreaks:   c.AutoStart.Breaks,
	}
}

// Exists reports whether a config file is present at the default location.
func Exists() bool {
	path, err := Path()
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}

// EnsureExists checks if a config exists and offers to create one
// interactively if not. Returns true if the config exists or was created,
// false if the user declined.
func EnsureExists() (bool, error) {
	if Exists() {
		return true, nil
	}

	path, err := Path()
	if err != nil {
		return false, err
	}

	create := true
	err = huh.NewConfirm().
		Title("No config file found").
		Description(fmt.Sprintf("Create a default config at %s?", path)).
		Affirmative("Yes, create it").
		Negative("No").
		Value(&create).
		Run()
	if err != nil {
		return false, fmt.Errorf("failed to read response: %w", err)
	}
	if !create {
		fmt.Printf("Config not created. Create %s manually to continue.\n", path)
		return false, nil
	}

	cfg := Default()
	cfg.path = path
	if err := cfg.Save(); err != nil {
		return false, fmt.Errorf("failed to save config: %w", err)
	}
	fmt.Printf("[config] created at %s\n", path)
	return true, nil
}

// Init writes a default config file, refusing to overwrite unless force is
// set. Used by the non-interactive `pomod init` subcommand.
func Init(path string, force bool) (*Config, error) {
	if path == "" {
		var err error
		path, err = Path()
		if err != nil {
			return nil, err
		}
	}
	if _, err := os.Stat(path); err == nil && !force {
		return nil, fmt.Errorf("config already exists at %s (use --force to overwrite)", path)
	}

	cfg := Default()
	cfg.path = path
	if err := cfg.Save(); err != nil {
		return nil, err
	}
	return cfg, nil
}
