package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/fiercefairy/PortOS-sub006/internal/env"
	"github.com/fiercefairy/PortOS-sub006/internal/logger"
	tlsutil "github.com/fiercefairy/PortOS-sub006/internal/tls"
)

// EnvPrefix is the prefix for environment overrides, e.g.
// RUNNERD_SERVER_LISTEN overrides server.listen.
const EnvPrefix = "RUNNERD"

// Default values applied before the file is read.
const (
	DefaultListen           = "127.0.0.1:5560"
	DefaultBasePath         = "/"
	DefaultDataDir          = "./data"
	DefaultGracePeriod      = 5 * time.Second
	DefaultDrainTimeout     = 5 * time.Second
	DefaultOrphanCheckDelay = 2 * time.Second
	DefaultMetricsPath      = "/metrics"
)

// DefaultAllowedCommands are the agent CLIs launched when no allow-list is
// configured.
var DefaultAllowedCommands = []string{"claude", "codex", "gemini", "aider"}

// Config is the top-level TOML structure.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Supervisor SupervisorConfig `mapstructure:"supervisor"`
	Log        logger.Config    `mapstructure:"log"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	History    []HistoryConfig  `mapstructure:"history"`

	// path of the loaded file, empty when built from defaults
	source string
}

type ServerConfig struct {
	Listen   string         `mapstructure:"listen"`
	BasePath string         `mapstructure:"base_path"`
	TLS      tlsutil.Config `mapstructure:"tls"`
}

type StorageConfig struct {
	// DataDir holds the state file and, unless overridden, job output.
	DataDir   string `mapstructure:"data_dir"`
	StateFile string `mapstructure:"state_file"`
	OutputDir string `mapstructure:"output_dir"`
}

type SupervisorConfig struct {
	AllowedCommands  []string      `mapstructure:"allowed_commands"`
	GracePeriod      time.Duration `mapstructure:"grace_period"`
	DrainTimeout     time.Duration `mapstructure:"drain_timeout"`
	OrphanCheckDelay time.Duration `mapstructure:"orphan_check_delay"`
	Env              []string      `mapstructure:"env"`
	EnvFiles         []string      `mapstructure:"env_files"`
	UseOSEnv         bool          `mapstructure:"use_os_env"`
	StripEnv         []string      `mapstructure:"strip_env"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

type HistoryConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	DSN     string `mapstructure:"dsn"`
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("toml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.listen", DefaultListen)
	v.SetDefault("server.base_path", DefaultBasePath)
	v.SetDefault("server.tls.enabled", false)
	v.SetDefault("server.tls.auto_generate", true)
	v.SetDefault("storage.data_dir", DefaultDataDir)
	v.SetDefault("storage.state_file", "")
	v.SetDefault("storage.output_dir", "")
	v.SetDefault("supervisor.allowed_commands", DefaultAllowedCommands)
	v.SetDefault("supervisor.grace_period", DefaultGracePeriod)
	v.SetDefault("supervisor.drain_timeout", DefaultDrainTimeout)
	v.SetDefault("supervisor.orphan_check_delay", DefaultOrphanCheckDelay)
	v.SetDefault("supervisor.use_os_env", true)
	v.SetDefault("supervisor.strip_env", []string{"CLAUDECODE"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", logger.FormatText)
	v.SetDefault("log.file", "")
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.path", DefaultMetricsPath)
	return v
}

// Default returns the configuration used when no file is given, with
// environment overrides applied.
func Default() (*Config, error) {
	return decode(newViper(), "")
}

// Load reads a TOML file. Relative paths inside it are resolved against the
// file's directory.
func Load(path string) (*Config, error) {
	if path == "" {
		return Default()
	}
	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return decode(v, path)
}

func decode(v *viper.Viper, path string) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.source = path
	base := "."
	if path != "" {
		base = filepath.Dir(path)
	}
	cfg.resolve(base)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) resolve(base string) {
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(base, p)
	}
	c.Storage.DataDir = abs(c.Storage.DataDir)
	if c.Storage.StateFile == "" {
		c.Storage.StateFile = filepath.Join(c.Storage.DataDir, "state.json")
	}
	if c.Storage.OutputDir == "" {
		c.Storage.OutputDir = filepath.Join(c.Storage.DataDir, "jobs")
	}
	c.Storage.StateFile = abs(c.Storage.StateFile)
	c.Storage.OutputDir = abs(c.Storage.OutputDir)
	c.Log.File = abs(c.Log.File)
	c.Server.TLS.CertFile = abs(c.Server.TLS.CertFile)
	c.Server.TLS.KeyFile = abs(c.Server.TLS.KeyFile)
	c.Server.TLS.Dir = abs(c.Server.TLS.Dir)
	if c.Server.TLS.Enabled && c.Server.TLS.CertFile == "" && c.Server.TLS.Dir == "" {
		c.Server.TLS.Dir = filepath.Join(c.Storage.DataDir, "tls")
	}
	for i, f := range c.Supervisor.EnvFiles {
		c.Supervisor.EnvFiles[i] = abs(f)
	}
}

// Validate rejects settings the supervisor cannot run with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Server.Listen) == "" {
		return fmt.Errorf("server.listen must not be empty")
	}
	if len(c.Supervisor.AllowedCommands) == 0 {
		return fmt.Errorf("supervisor.allowed_commands must list at least one command")
	}
	if c.Supervisor.GracePeriod <= 0 {
		return fmt.Errorf("supervisor.grace_period must be positive")
	}
	if c.Supervisor.DrainTimeout < 0 || c.Supervisor.OrphanCheckDelay < 0 {
		return fmt.Errorf("supervisor durations must not be negative")
	}
	if c.Server.TLS.Enabled && (c.Server.TLS.CertFile == "") != (c.Server.TLS.KeyFile == "") {
		return fmt.Errorf("server.tls: cert_file and key_file must be set together")
	}
	for i, h := range c.History {
		if h.Enabled && strings.TrimSpace(h.DSN) == "" {
			return fmt.Errorf("history[%d]: dsn is required when enabled", i)
		}
	}
	return nil
}

// Source returns the file the config was loaded from.
func (c *Config) Source() string { return c.source }

// GlobalEnv builds the environment layered under every job.
// Precedence: OS env (when use_os_env), then env_files in order, then the
// env list. strip_env keys are removed from the result.
func (c *Config) GlobalEnv() (*env.Env, error) {
	e := env.New()
	if !c.Supervisor.UseOSEnv {
		e = env.Isolated()
	}
	for _, p := range c.Supervisor.EnvFiles {
		vars, err := env.LoadFile(p)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, fmt.Errorf("env file %s: %w", p, err)
			}
			return nil, err
		}
		for k, v := range vars {
			e.Set(k, v)
		}
	}
	e.SetPairs(c.Supervisor.Env)
	e.Strip(c.Supervisor.StripEnv...)
	return e, nil
}

// EnabledHistory returns the DSNs of enabled history sinks.
func (c *Config) EnabledHistory() []string {
	var out []string
	for _, h := range c.History {
		if h.Enabled {
			out = append(out, h.DSN)
		}
	}
	return out
}
