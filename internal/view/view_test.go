package view

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"hopwatch/internal/hopwin"
	"hopwatch/internal/model"
	"hopwatch/internal/monitor"
	"hopwatch/internal/series"
)

func TestSparkline_Scales(t *testing.T) {
	t.Parallel()

	at := time.Unix(0, 0)
	points := []series.Point{
		{At: at, Latency: 10 * time.Millisecond},
		{At: at, Latency: 20 * time.Millisecond},
		{At: at, Latency: 30 * time.Millisecond},
	}
	if got := Sparkline(points, 10, 30, 10); got != "▁▄█" {
		t.Fatalf("got=%q", got)
	}
	if got := Sparkline(points, 10, 30, 2); got != "▄█" {
		t.Fatalf("truncated=%q", got)
	}
	if got := Sparkline(points, 5, 5, 10); got != "▁▁▁" {
		t.Fatalf("flat=%q", got)
	}
}

func TestPrinter_Render(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	p := NewPrinter(&buf, false)
	start := time.Unix(0, 0)
	p.Render(monitor.Snapshot{
		Targets: []monitor.TargetView{
			{
				Target:     model.Target{Name: "router", Addr: "192.168.1.1"},
				Stats:      series.Stats{Count: 2, Last: 4 * time.Millisecond, Min: 2 * time.Millisecond, Avg: 3 * time.Millisecond, Max: 4 * time.Millisecond},
				Points:     []series.Point{{At: start, Latency: 2 * time.Millisecond}, {At: start, Latency: 4 * time.Millisecond}},
				HopLatency: 4 * time.Millisecond,
				Tier:       hopwin.TierGood,
			},
			{Target: model.Target{Name: "example.com"}},
		},
		XMin: start,
		XMax: start.Add(30 * time.Second),
		YMin: 1.8,
		YMax: 4.4,
	})

	out := buf.String()
	if strings.Contains(out, "\x1b[") {
		t.Fatalf("escape codes written to non-terminal:\n%q", out)
	}
	for _, want := range []string{"router (192.168.1.1)", "4.0ms", "3.0ms", "waiting", "example.com"} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in\n%s", want, out)
		}
	}
	if lines := strings.Count(out, "\n"); lines != 4 {
		t.Fatalf("lines=%d\n%s", lines, out)
	}
}
