package hopwin

import "time"

// Horizon is how long a sample stays in a hop window.
const Horizon = 10 * time.Second

// Tier classifies a derived hop latency for the map view.
type Tier int

const (
	TierGood Tier = iota // <= 30ms
	TierFair             // <= 60ms
	TierPoor             // <= 90ms
	TierBad              // > 90ms
)

func (t Tier) String() string {
	switch t {
	case TierGood:
		return "good"
	case TierFair:
		return "fair"
	case TierPoor:
		return "poor"
	default:
		return "bad"
	}
}

// Classify maps a hop latency onto its tier.
func Classify(d time.Duration) Tier {
	switch {
	case d <= 30*time.Millisecond:
		return TierGood
	case d <= 60*time.Millisecond:
		return TierFair
	case d <= 90*time.Millisecond:
		return TierPoor
	default:
		return TierBad
	}
}

type entry struct {
	at      time.Time
	latency time.Duration
}

// Window is a FIFO of recent samples for one hop. Entries older than the
// horizon are evicted from the front whenever the window is read.
type Window struct {
	horizon time.Duration
	entries []entry
}

// NewWindow returns an empty window with the given horizon.
func NewWindow(horizon time.Duration) *Window {
	return &Window{horizon: horizon}
}

// Add appends a sample. Arrival instants must be non-decreasing.
func (w *Window) Add(at time.Time, latency time.Duration) {
	w.entries = append(w.entries, entry{at: at, latency: latency})
}

func (w *Window) evict(now time.Time) {
	drop := 0
	for drop < len(w.entries) && now.Sub(w.entries[drop].at) > w.horizon {
		drop++
	}
	if drop > 0 {
		w.entries = append(w.entries[:0:0], w.entries[drop:]...)
	}
}

// Max evicts stale entries and returns the largest latency left, or zero.
func (w *Window) Max(now time.Time) time.Duration {
	w.evict(now)
	var highest time.Duration
	for _, e := range w.entries {
		if e.latency > highest {
			highest = e.latency
		}
	}
	return highest
}

// Len evicts stale entries and returns the number left.
func (w *Window) Len(now time.Time) int {
	w.evict(now)
	return len(w.entries)
}

// Set holds one window per target, ordered nearest hop first.
type Set struct {
	windows []*Window
}

// NewSet returns n windows using the default horizon.
func NewSet(n int) *Set {
	s := &Set{windows: make([]*Window, n)}
	for i := range s.windows {
		s.windows[i] = NewWindow(Horizon)
	}
	return s
}

// Add records a sample for hop idx.
func (s *Set) Add(idx int, at time.Time, latency time.Duration) {
	s.windows[idx].Add(at, latency)
}

// HopLatency is the latency added by hop idx on top of the previous hop:
// the difference between their window maxima, floored at zero when the later
// hop currently looks faster. Hop 0 reports its own maximum.
func (s *Set) HopLatency(idx int, now time.Time) time.Duration {
	this := s.windows[idx].Max(now)
	if idx == 0 {
		return this
	}
	prev := s.windows[idx-1].Max(now)
	if prev > this {
		return 0
	}
	return this - prev
}
