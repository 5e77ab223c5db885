package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bryanchriswhite/TaskSwitcher/internal/logger"
	"gopkg.in/yaml.v3"
)

// ErrInvalid is returned for a configuration that fails validation
var ErrInvalid = errors.New("invalid configuration")

// Platform selects the window sources and activation strategies
const (
	PlatformAuto   = "auto"
	PlatformDarwin = "darwin"
	PlatformX11    = "x11"
	PlatformKWin   = "kwin"
)

// HelperConfig describes the external helper commands. Each command is an
// argv list; the raise helper gets the app name and window title appended.
// On macOS an empty list_windows or raise_window runs the bundled swift
// script, installed into ScriptDir.
type HelperConfig struct {
	ListWindows []string      `json:"list_windows" yaml:"list_windows"`
	RaiseWindow []string      `json:"raise_window" yaml:"raise_window"`
	Osascript   []string      `json:"osascript" yaml:"osascript"`
	ScriptDir   string        `json:"script_dir" yaml:"script_dir"`
	Timeout     time.Duration `json:"timeout" yaml:"timeout"`
}

// Config is the application configuration
type Config struct {
	ServerPort   int    `json:"server_port" yaml:"server_port"`
	RelayPort    int    `json:"relay_port" yaml:"relay_port"`
	LogLevel     string `json:"log_level" yaml:"log_level"`
	DatabasePath string `json:"database_path" yaml:"database_path"`
	Platform     string `json:"platform" yaml:"platform"`

	TabRequestTimeout  time.Duration `json:"tab_request_timeout" yaml:"tab_request_timeout"`
	EnumerationTimeout time.Duration `json:"enumeration_timeout" yaml:"enumeration_timeout"`
	CacheTTL           time.Duration `json:"cache_ttl" yaml:"cache_ttl"`
	WindowPollInterval time.Duration `json:"window_poll_interval" yaml:"window_poll_interval"`
	SettleDelay        time.Duration `json:"settle_delay" yaml:"settle_delay"`

	Helpers HelperConfig `json:"helpers" yaml:"helpers"`
}

// Validate checks ports and timeouts
func (c *Config) Validate() error {
	var errs []error

	for name, port := range map[string]int{"server_port": c.ServerPort, "relay_port": c.RelayPort} {
		if port <= 0 || port > 65535 {
			errs = append(errs, fmt.Errorf("%s %d out of range", name, port))
		}
	}
	if c.ServerPort == c.RelayPort {
		errs = append(errs, fmt.Errorf("server_port and relay_port must differ"))
	}

	for name, d := range map[string]time.Duration{
		"tab_request_timeout": c.TabRequestTimeout,
		"enumeration_timeout": c.EnumerationTimeout,
		"cache_ttl":           c.CacheTTL,
		"helpers.timeout":     c.Helpers.Timeout,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	if c.WindowPollInterval < 0 {
		errs = append(errs, fmt.Errorf("window_poll_interval must not be negative"))
	}
	if c.SettleDelay < 0 {
		errs = append(errs, fmt.Errorf("settle_delay must not be negative"))
	}

	switch c.Platform {
	case PlatformAuto, PlatformDarwin, PlatformX11, PlatformKWin:
	default:
		errs = append(errs, fmt.Errorf("unknown platform %q", c.Platform))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

func (c *Config) clone() *Config {
	cp := *c
	cp.Helpers.ListWindows = slices.Clone(c.Helpers.ListWindows)
	cp.Helpers.RaiseWindow = slices.Clone(c.Helpers.RaiseWindow)
	cp.Helpers.Osascript = slices.Clone(c.Helpers.Osascript)
	return &cp
}

// Manager handles configuration
type Manager struct {
	configPath string
	config     *Config
	mu         sync.RWMutex
}

// DefaultConfigDir returns ~/.config/taskswitcher
func DefaultConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "taskswitcher"), nil
}

// NewManager loads configFile, or the default config path when empty. A
// missing file is created with defaults.
func NewManager(configFile string) (*Manager, error) {
	actualConfigPath := configFile
	if actualConfigPath == "" {
		configDir, err := DefaultConfigDir()
		if err != nil {
			return nil, err
		}
		actualConfigPath = filepath.Join(configDir, "config.yaml")
	}

	if err := os.MkdirAll(filepath.Dir(actualConfigPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	m := &Manager{
		configPath: actualConfigPath,
	}

	if err := m.load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		logger.WithComponent("config").Info().
			Str("path", m.configPath).
			Msg("Config file not found, creating new config")
		m.config = m.getDefaults()
		if err := m.Save(); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	}

	logger.WithComponent("config").Info().
		Str("path", m.configPath).
		Str("platform", m.config.Platform).
		Msg("Config loaded")

	return m, nil
}

// getDefaults returns default configuration
func (m *Manager) getDefaults() *Config {
	return &Config{
		ServerPort:         8080,
		RelayPort:          9876,
		LogLevel:           "info",
		DatabasePath:       filepath.Join(m.GetConfigDir(), "tasks.db"),
		Platform:           PlatformAuto,
		TabRequestTimeout:  2 * time.Second,
		EnumerationTimeout: 10 * time.Second,
		CacheTTL:           5 * time.Minute,
		WindowPollInterval: 5 * time.Second,
		SettleDelay:        100 * time.Millisecond,
		Helpers: HelperConfig{
			ListWindows: []string{},
			RaiseWindow: []string{},
			Osascript:   []string{"osascript"},
			ScriptDir:   filepath.Join(m.GetConfigDir(), "helpers"),
			Timeout:     5 * time.Second,
		},
	}
}

// load reads the configuration from disk. Fields missing from the file keep
// their defaults.
func (m *Manager) load() error {
	data, err := os.ReadFile(m.configPath)
	if err != nil {
		return err
	}

	cfg := m.getDefaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.DatabasePath == "" {
		cfg.DatabasePath = filepath.Join(m.GetConfigDir(), "tasks.db")
	}
	if cfg.Helpers.ScriptDir == "" {
		cfg.Helpers.ScriptDir = filepath.Join(m.GetConfigDir(), "helpers")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	m.config = cfg
	m.mu.Unlock()
	return nil
}

// Get returns a copy of the current configuration
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.config == nil {
		return m.getDefaults()
	}
	return m.config.clone()
}

// Save saves the current configuration to disk
func (m *Manager) Save() error {
	m.mu.RLock()
	cfg := m.config
	m.mu.RUnlock()

	if cfg == nil {
		cfg = m.getDefaults()
	}

	configDir := filepath.Dir(m.configPath)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		logger.WithComponent("config").Error().
			Err(err).
			Str("config_dir", configDir).
			Msg("Failed to create config directory")
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(m.configPath, data, 0644); err != nil {
		logger.WithComponent("config").Error().
			Err(err).
			Str("path", m.configPath).
			Msg("Failed to write config")
		return err
	}

	logger.WithComponent("config").Debug().
		Str("path", m.configPath).
		Msg("Config saved")
	return nil
}

// Update validates and replaces the entire configuration
func (m *Manager) Update(cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	m.config = cfg.clone()
	m.mu.Unlock()
	return m.Save()
}

// SetPort sets the HTTP API port
func (m *Manager) SetPort(port int) error {
	return m.modify(func(c *Config) { c.ServerPort = port })
}

// SetRelayPort sets the browser extension relay port
func (m *Manager) SetRelayPort(port int) error {
	return m.modify(func(c *Config) { c.RelayPort = port })
}

// SetLogLevel sets the log level
func (m *Manager) SetLogLevel(level string) error {
	return m.modify(func(c *Config) { c.LogLevel = level })
}

// Set assigns a scalar setting by its YAML key, e.g. "cache_ttl" or
// "helpers.timeout". List settings take a comma separated value.
func (m *Manager) Set(key, value string) error {
	var apply func(c *Config) error

	intField := func(dst func(c *Config) *int) func(c *Config) error {
		return func(c *Config) error {
			n, err := strconv.Atoi(value)
			if err != nil {
				return fmt.Errorf("%s: %w", key, ErrInvalid)
			}
			*dst(c) = n
			return nil
		}
	}
	durationField := func(dst func(c *Config) *time.Duration) func(c *Config) error {
		return func(c *Config) error {
			d, err := time.ParseDuration(value)
			if err != nil {
				return fmt.Errorf("%s: %w", key, ErrInvalid)
			}
			*dst(c) = d
			return nil
		}
	}
	stringField := func(dst func(c *Config) *string) func(c *Config) error {
		return func(c *Config) error {
			*dst(c) = value
			return nil
		}
	}
	listField := func(dst func(c *Config) *[]string) func(c *Config) error {
		return func(c *Config) error {
			*dst(c) = splitList(value)
			return nil
		}
	}

	switch key {
	case "server_port":
		apply = intField(func(c *Config) *int { return &c.ServerPort })
	case "relay_port":
		apply = intField(func(c *Config) *int { return &c.RelayPort })
	case "log_level":
		apply = stringField(func(c *Config) *string { return &c.LogLevel })
	case "database_path":
		apply = stringField(func(c *Config) *string { return &c.DatabasePath })
	case "platform":
		apply = stringField(func(c *Config) *string { return &c.Platform })
	case "tab_request_timeout":
		apply = durationField(func(c *Config) *time.Duration { return &c.TabRequestTimeout })
	case "enumeration_timeout":
		apply = durationField(func(c *Config) *time.Duration { return &c.EnumerationTimeout })
	case "cache_ttl":
		apply = durationField(func(c *Config) *time.Duration { return &c.CacheTTL })
	case "window_poll_interval":
		apply = durationField(func(c *Config) *time.Duration { return &c.WindowPollInterval })
	case "settle_delay":
		apply = durationField(func(c *Config) *time.Duration { return &c.SettleDelay })
	case "helpers.timeout":
		apply = durationField(func(c *Config) *time.Duration { return &c.Helpers.Timeout })
	case "helpers.list_windows":
		apply = listField(func(c *Config) *[]string { return &c.Helpers.ListWindows })
	case "helpers.raise_window":
		apply = listField(func(c *Config) *[]string { return &c.Helpers.RaiseWindow })
	case "helpers.script_dir":
		apply = stringField(func(c *Config) *string { return &c.Helpers.ScriptDir })
	case "helpers.osascript":
		apply = listField(func(c *Config) *[]string { return &c.Helpers.Osascript })
	default:
		return fmt.Errorf("unknown setting %q: %w", key, ErrInvalid)
	}

	cfg := m.Get()
	if err := apply(cfg); err != nil {
		return err
	}
	return m.Update(cfg)
}

func (m *Manager) modify(fn func(c *Config)) error {
	cfg := m.Get()
	fn(cfg)
	return m.Update(cfg)
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// GetConfigPath returns the path to the config file
func (m *Manager) GetConfigPath() string {
	return m.configPath
}

// GetConfigDir returns the config directory path
func (m *Manager) GetConfigDir() string {
	return filepath.Dir(m.configPath)
}
