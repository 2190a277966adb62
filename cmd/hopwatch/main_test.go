package main

import (
	"context"
	"testing"
	"time"

	"hopwatch/internal/config"
	"hopwatch/internal/model"
	"hopwatch/internal/resolve"
)

func TestOverrideRun_FlagsWinOverConfig(t *testing.T) {
	t.Parallel()

	cfg := config.Config{Interval: time.Second, LogDir: "/var/log/hopwatch", STUNServers: []string{"a:1"}}
	overrideRun(&cfg, false, true, false, 200*time.Millisecond, 0, 0, "", "example.com", "", " b:2, ,c:3 ")

	if cfg.Interval != 200*time.Millisecond || !cfg.IPv4 || cfg.Cmd {
		t.Fatalf("cfg=%+v", cfg)
	}
	if cfg.LogDir != "/var/log/hopwatch" || cfg.TraceHost != "example.com" {
		t.Fatalf("cfg=%+v", cfg)
	}
	if len(cfg.STUNServers) != 2 || cfg.STUNServers[1] != "c:3" {
		t.Fatalf("stun=%v", cfg.STUNServers)
	}
}

func TestBuildTargets_ByKind(t *testing.T) {
	t.Parallel()

	cfg := config.Config{Targets: []string{"127.0.0.1", "udp://127.0.0.1:9000", "stun:stun.example.net:3478"}}
	targets, err := buildTargets(context.Background(), resolve.New("127.0.0.1:53"), cfg)
	if err != nil {
		t.Fatalf("buildTargets: %v", err)
	}
	want := []model.Target{
		{Index: 0, Name: "127.0.0.1", Addr: "127.0.0.1", Kind: model.KindHost},
		{Index: 1, Name: "127.0.0.1:9000", Addr: "127.0.0.1:9000", Kind: model.KindUDP},
		{Index: 2, Name: "stun.example.net:3478", Addr: "stun.example.net:3478", Kind: model.KindSTUN},
	}
	for i := range want {
		if targets[i] != want[i] {
			t.Fatalf("targets[%d]=%+v", i, targets[i])
		}
	}
}

func TestBuildTargets_CommandsSkipResolution(t *testing.T) {
	t.Parallel()

	cfg := config.Config{Cmd: true, Targets: []string{"curl -s https://example.com"}}
	targets, err := buildTargets(context.Background(), resolve.New("127.0.0.1:53"), cfg)
	if err != nil {
		t.Fatalf("buildTargets: %v", err)
	}
	if targets[0].Kind != model.KindCommand || targets[0].Addr != "" || targets[0].Label() != "curl -s https://example.com" {
		t.Fatalf("target=%+v", targets[0])
	}
}
