// Package config loads the console configuration from a YAML file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"AgentConsole/pkg/console/api"

	"gopkg.in/yaml.v3"
)

const (
	DefaultServer         = "http://localhost:8000"
	DefaultModel          = "claude-3-5-sonnet-latest"
	DefaultTimeout        = 180
	DefaultPollInterval   = time.Second
	DefaultRequestTimeout = 120 * time.Second

	stateDirName = ".agent-console"
	fileName     = "config.yaml"
)

// Environment overrides.
const (
	EnvServer    = "AGENT_CONSOLE_SERVER"
	EnvModel     = "AGENT_CONSOLE_MODEL"
	EnvWorkspace = "AGENT_CONSOLE_WORKSPACE"
	EnvYolo      = "AGENT_CONSOLE_YOLO"
	EnvLogLevel  = "LOG_LEVEL"
)

// Config is the effective console configuration.
type Config struct {
	Server         string               `yaml:"server"`
	Model          string               `yaml:"model"`
	Temperature    float64              `yaml:"temperature"`
	Timeout        int                  `yaml:"timeout"`
	WorkspacePath  string               `yaml:"workspace_path,omitempty"`
	PollInterval   time.Duration        `yaml:"poll_interval"`
	RequestTimeout time.Duration        `yaml:"request_timeout"`
	LogLevel       string               `yaml:"log_level,omitempty"`
	RecordStreams  bool                 `yaml:"record_streams"`
	Permissions    api.PermissionPolicy `yaml:"permissions"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server:         DefaultServer,
		Model:          DefaultModel,
		Temperature:    0,
		Timeout:        DefaultTimeout,
		PollInterval:   DefaultPollInterval,
		RequestTimeout: DefaultRequestTimeout,
		Permissions: api.PermissionPolicy{
			CommandAllowlist:     []string{},
			CommandDenylist:      []string{},
			DeleteFileProtection: true,
		},
	}
}

// StateDir is where the config file and logs live.
func StateDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return stateDirName
	}
	return filepath.Join(home, stateDirName)
}

// EventLogDir is where recorded streams are kept.
func EventLogDir() string {
	return filepath.Join(StateDir(), "events")
}

// DefaultPath returns the config file location.
func DefaultPath() string {
	return filepath.Join(StateDir(), fileName)
}

// Load reads path over the defaults. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		path = DefaultPath()
	}
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from the environment. getenv is usually os.Getenv.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := strings.TrimSpace(getenv(EnvServer)); v != "" {
		c.Server = v
	}
	if v := strings.TrimSpace(getenv(EnvModel)); v != "" {
		c.Model = v
	}
	if v := strings.TrimSpace(getenv(EnvWorkspace)); v != "" {
		c.WorkspacePath = v
	}
	if v := strings.TrimSpace(getenv(EnvYolo)); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Permissions.YoloMode = b
		}
	}
	if v := strings.TrimSpace(getenv(EnvLogLevel)); v != "" {
		c.LogLevel = v
	}
}

// Validate reports the first invalid field.
func (c Config) Validate() error {
	u, err := url.Parse(c.Server)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("server %q must be an http(s) URL", c.Server)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive, got %s", c.PollInterval)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive, got %s", c.RequestTimeout)
	}
	return c.SessionContext().Validate()
}

// SessionContext builds the context a new session is created with.
func (c Config) SessionContext() api.SessionContext {
	return api.SessionContext{
		Model:         strings.TrimSpace(c.Model),
		Temperature:   c.Temperature,
		Timeout:       c.Timeout,
		WorkspacePath: strings.TrimSpace(c.WorkspacePath),
		Policy:        c.Permissions.Normalized(),
	}
}

// Marshal renders the configuration as YAML.
func (c Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// Save writes the configuration, creating parent directories.
func (c Config) Save(path string) error {
	if path == "" {
		path = DefaultPath()
	}
	raw, err := c.Marshal()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := os.WriteFile(path, raw, 0644); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}
