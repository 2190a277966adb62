package monitor

import (
	"time"

	"hopwatch/internal/hopwin"
	"hopwatch/internal/model"
	"hopwatch/internal/series"
)

// TargetView is the published state of one target.
type TargetView struct {
	Target model.Target
	Stats  series.Stats
	Points []series.Point
	// HopLatency is the latency this hop adds over the previous one.
	HopLatency time.Duration
	Tier       hopwin.Tier
}

// Snapshot is everything a display needs for one frame.
type Snapshot struct {
	At      time.Time
	Targets []TargetView
	XMin    time.Time
	XMax    time.Time
	// YMin and YMax are in milliseconds.
	YMin float64
	YMax float64
}

// Snapshot captures the current state. Reading the hop windows evicts
// entries older than the horizon.
func (m *Monitor) Snapshot() Snapshot {
	now := m.opts.Now()
	since := m.series.Since(now)

	snap := Snapshot{At: now, Targets: make([]TargetView, len(m.targets))}
	snap.XMin, snap.XMax = m.series.XBounds(now)
	snap.YMin, snap.YMax = m.series.YBounds(now)

	for i, t := range m.targets {
		ser := m.series.Series(i)
		hop := m.hops.HopLatency(i, now)
		snap.Targets[i] = TargetView{
			Target:     t,
			Stats:      ser.Stats(since),
			Points:     ser.Within(since),
			HopLatency: hop,
			Tier:       hopwin.Classify(hop),
		}
	}
	return snap
}
