package series

import (
	"math"
	"time"
)

// Point is one plotted sample.
type Point struct {
	At      time.Time
	Latency time.Duration
}

// Stats summarizes the points of one series inside a window.
type Stats struct {
	Count int
	Last  time.Duration
	Min   time.Duration
	Max   time.Duration
	Avg   time.Duration
}

// Series is the append-only sample buffer of a single target. Points older
// than the window are dropped on Add so memory stays bounded; queries filter
// by timestamp and never depend on that pruning.
type Series struct {
	window time.Duration
	points []Point
	last   time.Duration
	seen   bool
}

// NewSeries returns a series that retains at least window worth of points.
func NewSeries(window time.Duration) *Series {
	return &Series{window: window}
}

// Add appends a point. Points are expected in arrival order.
func (s *Series) Add(at time.Time, latency time.Duration) {
	s.points = append(s.points, Point{At: at, Latency: latency})
	s.last = latency
	s.seen = true
	s.prune(at.Add(-s.window))
}

func (s *Series) prune(before time.Time) {
	drop := 0
	for drop < len(s.points) && s.points[drop].At.Before(before) {
		drop++
	}
	if drop == 0 {
		return
	}
	// Keep the backing array from growing without bound.
	s.points = append(s.points[:0:0], s.points[drop:]...)
}

// Last returns the most recent latency.
func (s *Series) Last() (time.Duration, bool) {
	return s.last, s.seen
}

// Within returns the points recorded at or after since.
func (s *Series) Within(since time.Time) []Point {
	for i, p := range s.points {
		if !p.At.Before(since) {
			out := make([]Point, len(s.points)-i)
			copy(out, s.points[i:])
			return out
		}
	}
	return nil
}

// Stats computes last/min/max/avg over the points recorded at or after since.
func (s *Series) Stats(since time.Time) Stats {
	st := Stats{Last: s.last}
	var sum time.Duration
	for _, p := range s.Within(since) {
		if st.Count == 0 || p.Latency < st.Min {
			st.Min = p.Latency
		}
		if p.Latency > st.Max {
			st.Max = p.Latency
		}
		sum += p.Latency
		st.Count++
	}
	if st.Count > 0 {
		st.Avg = sum / time.Duration(st.Count)
	}
	return st
}

// Set holds one series per target and derives chart bounds.
type Set struct {
	started time.Time
	window  time.Duration
	series  []*Series
}

// NewSet returns n empty series sharing one display window.
func NewSet(n int, window time.Duration, started time.Time) *Set {
	set := &Set{started: started, window: window, series: make([]*Series, n)}
	for i := range set.series {
		set.series[i] = NewSeries(window)
	}
	return set
}

// Len returns the number of targets.
func (s *Set) Len() int {
	return len(s.series)
}

// Add records a sample for target idx.
func (s *Set) Add(idx int, at time.Time, latency time.Duration) {
	s.series[idx].Add(at, latency)
}

// Series returns the buffer of target idx.
func (s *Set) Series(idx int) *Series {
	return s.series[idx]
}

// Since returns the start of the display window ending at now.
func (s *Set) Since(now time.Time) time.Time {
	return now.Add(-s.window)
}

// XBounds returns the visible time range. While the run is younger than the
// window the range is anchored at the start time so it never precedes it.
func (s *Set) XBounds(now time.Time) (time.Time, time.Time) {
	if now.Sub(s.started) < s.window {
		return s.started, s.started.Add(s.window)
	}
	return now.Add(-s.window), now
}

// YBounds returns the latency range in milliseconds across all targets in
// the window, padded by 10% below the minimum and above the maximum.
func (s *Set) YBounds(now time.Time) (float64, float64) {
	lo := math.Inf(1)
	hi := 0.0
	since := s.Since(now)
	for _, ser := range s.series {
		for _, p := range ser.Within(since) {
			ms := Millis(p.Latency)
			lo = math.Min(lo, ms)
			hi = math.Max(hi, ms)
		}
	}
	if math.IsInf(lo, 1) {
		return 0, 1
	}
	return lo - lo*0.1, hi + hi*0.1
}

// Millis converts a latency to fractional milliseconds.
func Millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
