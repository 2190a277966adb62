package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestApplyDefaults(t *testing.T) {
	t.Parallel()

	var cfg Config
	ApplyDefaults(&cfg)

	if cfg.Interval != DefaultInterval || cfg.Window != DefaultWindow {
		t.Fatalf("interval=%s window=%s", cfg.Interval, cfg.Window)
	}
	if cfg.TimeoutValue != time.Second {
		t.Fatalf("timeout_value=%s", cfg.TimeoutValue)
	}
	if cfg.LogDir != "." || cfg.TraceHost != DefaultTraceHost {
		t.Fatalf("log_dir=%q trace_host=%q", cfg.LogDir, cfg.TraceHost)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	cfg := Config{IPv4: true, IPv6: true}
	ApplyDefaults(&cfg)
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected ipv4/ipv6 conflict")
	}

	cfg = Config{Cmd: true}
	ApplyDefaults(&cfg)
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected cmd without targets to fail")
	}

	cfg = Config{Targets: []string{"example.com"}}
	ApplyDefaults(&cfg)
	if err := Validate(cfg); err != nil {
		t.Fatalf("unexpected: %v", err)
	}

	// Discovery fills targets when none are given.
	cfg = Config{}
	ApplyDefaults(&cfg)
	if err := Validate(cfg); err != nil {
		t.Fatalf("unexpected: %v", err)
	}
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	t.Parallel()

	tmp := t.TempDir()
	path := filepath.Join(tmp, "hopwatch.yaml")
	in := Config{Targets: []string{"1.1.1.1", "udp://10.0.0.2:7777"}, Interval: 2 * time.Second, IPv4: true}
	if err := Save(path, in); err != nil {
		t.Fatalf("Save: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("mode=%o", info.Mode().Perm())
	}

	out, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(out.Targets) != 2 || out.Targets[1] != "udp://10.0.0.2:7777" {
		t.Fatalf("targets=%v", out.Targets)
	}
	if out.Interval != 2*time.Second || !out.IPv4 {
		t.Fatalf("cfg=%+v", out)
	}
	if out.Window != DefaultWindow {
		t.Fatalf("window=%s", out.Window)
	}
}

func TestLoad_DurationStrings(t *testing.T) {
	t.Parallel()

	tmp := t.TempDir()
	path := filepath.Join(tmp, "hopwatch.yaml")
	data := "targets: [a.example]\ninterval: 250ms\nwindow: 1m\n"
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Interval != 250*time.Millisecond || cfg.Window != time.Minute {
		t.Fatalf("interval=%s window=%s", cfg.Interval, cfg.Window)
	}
}
