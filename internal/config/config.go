package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultInterval       = 500 * time.Millisecond
	DefaultWindow         = 30 * time.Second
	DefaultTimeout        = time.Second
	DefaultTimeoutValue   = time.Second
	DefaultTraceHost      = "google.com"
	DefaultLogDir         = "."
	DefaultRedrawInterval = 250 * time.Millisecond
)

// Config holds the monitor settings. Every field can be overridden by a flag.
type Config struct {
	Targets []string `yaml:"targets"`
	// Cmd treats every target as a shell command to time.
	Cmd  bool `yaml:"cmd"`
	IPv4 bool `yaml:"ipv4"`
	IPv6 bool `yaml:"ipv6"`

	Interval time.Duration `yaml:"interval"`
	Window   time.Duration `yaml:"window"`
	Timeout  time.Duration `yaml:"timeout"`
	// TimeoutValue is the latency recorded for a timed-out probe.
	TimeoutValue   time.Duration `yaml:"timeout_value"`
	RedrawInterval time.Duration `yaml:"redraw_interval"`

	LogDir      string   `yaml:"log_dir"`
	TraceHost   string   `yaml:"trace_host"`
	Nameserver  string   `yaml:"nameserver"`
	STUNServers []string `yaml:"stun_servers"`
}

// Load reads and parses a YAML config file.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}

	ApplyDefaults(&cfg)
	return cfg, nil
}

// Save writes a YAML config file to disk.
func Save(path string, cfg Config) error {
	ApplyDefaults(&cfg)
	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o600)
}

// Validate rejects settings the monitor cannot run with.
func Validate(cfg Config) error {
	if cfg.IPv4 && cfg.IPv6 {
		return fmt.Errorf("ipv4 and ipv6 are mutually exclusive")
	}
	if cfg.Interval <= 0 {
		return fmt.Errorf("interval must be > 0")
	}
	if cfg.Window <= 0 {
		return fmt.Errorf("window must be > 0")
	}
	if cfg.Timeout <= 0 {
		return fmt.Errorf("timeout must be > 0")
	}
	if cfg.Cmd && len(cfg.Targets) == 0 {
		return fmt.Errorf("cmd mode requires at least one command")
	}
	for i, t := range cfg.Targets {
		if t == "" {
			return fmt.Errorf("targets[%d] is empty", i)
		}
	}
	return nil
}

// ApplyDefaults fills in default values when empty.
func ApplyDefaults(cfg *Config) {
	if cfg.Interval == 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Window == 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.TimeoutValue == 0 {
		cfg.TimeoutValue = DefaultTimeoutValue
	}
	if cfg.RedrawInterval == 0 {
		cfg.RedrawInterval = DefaultRedrawInterval
	}
	if cfg.LogDir == "" {
		cfg.LogDir = DefaultLogDir
	}
	if cfg.TraceHost == "" {
		cfg.TraceHost = DefaultTraceHost
	}
}
