package monitor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"hopwatch/internal/config"
	"hopwatch/internal/hopwin"
	"hopwatch/internal/model"
	"hopwatch/internal/probe"
	"hopwatch/internal/series"
)

// State is the sequencer lifecycle.
type State int

const (
	Idle State = iota
	Running
	ShuttingDown
	Terminated
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case ShuttingDown:
		return "shutting-down"
	default:
		return "terminated"
	}
}

// Recorder persists latencies. Close is called exactly once when Run returns.
type Recorder interface {
	Log(idx int, latency time.Duration) error
	Close() error
}

// Renderer consumes snapshots for display.
type Renderer interface {
	Render(Snapshot)
}

// Options tune the sequencer.
type Options struct {
	Window time.Duration
	// TimeoutValue is recorded in place of a latency when a probe times out.
	TimeoutValue time.Duration
	// RedrawInterval throttles Render calls; zero renders after every event.
	RedrawInterval time.Duration
	Now            func() time.Time
}

// Monitor is the single consumer of the event queue and the only writer of
// the aggregation and log state, so that state needs no locking.
type Monitor struct {
	targets  []model.Target
	series   *series.Set
	hops     *hopwin.Set
	recorder Recorder
	renderer Renderer
	opts     Options

	state    State
	lastDraw time.Time
	logErr   error
}

// New builds a monitor for targets. renderer may be nil.
func New(targets []model.Target, recorder Recorder, renderer Renderer, opts Options) *Monitor {
	if opts.Window <= 0 {
		opts.Window = config.DefaultWindow
	}
	if opts.TimeoutValue <= 0 {
		opts.TimeoutValue = config.DefaultTimeoutValue
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Monitor{
		targets:  targets,
		series:   series.NewSet(len(targets), opts.Window, opts.Now()),
		hops:     hopwin.NewSet(len(targets)),
		recorder: recorder,
		renderer: renderer,
		opts:     opts,
	}
}

// State returns the current lifecycle state.
func (m *Monitor) State() State {
	return m.state
}

// Run consumes events until a cancel event arrives or ctx is done, then
// stops the producers, keeps handling their events until all of them have
// returned, and finalizes the recorder. The recorder is closed on every path.
// The returned error joins producer failures, log write failures and the
// finalize result.
func (m *Monitor) Run(ctx context.Context, sup *probe.Supervisor) (err error) {
	defer func() {
		if cerr := m.recorder.Close(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("finalize log: %w", cerr))
		}
		m.state = Terminated
	}()

	m.state = Running
	events := sup.Events()
	reason := m.consume(ctx, events)

	log.Printf("shutting down: %s", reason)
	m.state = ShuttingDown
	sup.Stop()

	joined := make(chan error, 1)
	go func() { joined <- sup.Wait() }()

	var joinErr error
	for waiting := true; waiting; {
		select {
		case ev := <-events:
			m.dispatch(ev)
		case joinErr = <-joined:
			waiting = false
		}
	}
	for {
		select {
		case ev := <-events:
			m.dispatch(ev)
		default:
			return errors.Join(joinErr, m.logErr)
		}
	}
}

func (m *Monitor) consume(ctx context.Context, events <-chan model.Event) string {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err().Error()
		case ev := <-events:
			if ev.Kind == model.EventCancel {
				return ev.Reason
			}
			m.dispatch(ev)
		}
	}
}

func (m *Monitor) dispatch(ev model.Event) {
	if ev.Kind == model.EventProbe {
		m.Handle(ev.Probe)
	}
}

// Handle applies one probe outcome. Timeouts are charted and logged as
// TimeoutValue but kept out of the hop window; indeterminate outcomes are
// dropped.
func (m *Monitor) Handle(ev model.ProbeEvent) {
	idx := ev.Target
	if idx < 0 || idx >= len(m.targets) {
		log.Printf("event for unknown target index=%d", idx)
		return
	}
	at := ev.At
	if at.IsZero() {
		at = m.opts.Now()
	}

	switch ev.Outcome {
	case model.Measured:
		m.series.Add(idx, at, ev.Latency)
		m.hops.Add(idx, at, ev.Latency)
		m.record(idx, ev.Latency)
	case model.TimedOut:
		m.series.Add(idx, at, m.opts.TimeoutValue)
		m.record(idx, m.opts.TimeoutValue)
	default:
		return
	}
	m.redraw()
}

func (m *Monitor) record(idx int, latency time.Duration) {
	if m.logErr != nil {
		return
	}
	if err := m.recorder.Log(idx, latency); err != nil {
		log.Printf("log write failed: %v", err)
		m.logErr = fmt.Errorf("log write: %w", err)
	}
}

func (m *Monitor) redraw() {
	if m.renderer == nil {
		return
	}
	now := m.opts.Now()
	if m.opts.RedrawInterval > 0 && now.Sub(m.lastDraw) < m.opts.RedrawInterval {
		return
	}
	m.lastDraw = now
	m.renderer.Render(m.Snapshot())
}
