package probe

import (
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"hopwatch/internal/model"
)

// DefaultQueue is the capacity of the shared event queue.
const DefaultQueue = 256

// Producer emits probe outcomes for one target until the sink is stopped.
// A producer blocked inside a probe finishes that probe before it notices
// the stop, so shutdown takes up to one probe cycle.
type Producer interface {
	Produce(target model.Target, sink Sink) error
}

// Sink is a producer's handle on the shared queue and the stop flag.
type Sink struct {
	target int
	events chan<- model.Event
	stop   *atomic.Bool
	done   <-chan struct{}
}

// Stopped reports whether shutdown has been requested.
func (s Sink) Stopped() bool {
	return s.stop.Load()
}

// Emit queues one outcome for the sink's target. After shutdown it only
// queues while there is room, so a producer never blocks on a consumer that
// has finished draining.
func (s Sink) Emit(outcome model.Outcome, latency time.Duration) {
	ev := model.Event{
		Kind: model.EventProbe,
		Probe: model.ProbeEvent{
			Target:  s.target,
			Outcome: outcome,
			Latency: latency,
			At:      time.Now(),
		},
	}
	select {
	case s.events <- ev:
		return
	default:
	}
	select {
	case s.events <- ev:
	case <-s.done:
	}
}

// Sleep waits for d or until shutdown. It returns false if shutdown was requested.
func (s Sink) Sleep(d time.Duration) bool {
	if d <= 0 {
		return !s.Stopped()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return !s.Stopped()
	case <-s.done:
		return false
	}
}

// Supervisor runs one producer per target and owns orderly shutdown.
type Supervisor struct {
	events chan model.Event
	stop   atomic.Bool
	done   chan struct{}
	group  errgroup.Group
	live   atomic.Int32
}

// NewSupervisor returns a supervisor whose queue holds up to queue events.
func NewSupervisor(queue int) *Supervisor {
	if queue <= 0 {
		queue = DefaultQueue
	}
	return &Supervisor{
		events: make(chan model.Event, queue),
		done:   make(chan struct{}),
	}
}

// Events is the multiplexed queue. It has a single consumer.
func (s *Supervisor) Events() <-chan model.Event {
	return s.events
}

// Start spawns the producer for target. A producer error is logged when it
// happens and reported again by Wait; it does not stop other producers.
func (s *Supervisor) Start(target model.Target, p Producer) {
	s.live.Add(1)
	s.spawn(target, p)
}

// StartAll starts one producer per target. All producers count as live
// before any of them runs, so an early failure cannot end the run while the
// rest are still being started.
func (s *Supervisor) StartAll(targets []model.Target, producers []Producer) {
	s.live.Add(int32(len(targets)))
	for i, t := range targets {
		s.spawn(t, producers[i])
	}
}

func (s *Supervisor) spawn(target model.Target, p Producer) {
	sink := Sink{target: target.Index, events: s.events, stop: &s.stop, done: s.done}
	s.group.Go(func() error {
		defer s.exited()
		if err := p.Produce(target, sink); err != nil {
			log.Printf("producer failed target=%s: %v", target.Label(), err)
			return fmt.Errorf("%s: %w", target.Label(), err)
		}
		return nil
	})
}

func (s *Supervisor) exited() {
	if s.live.Add(-1) == 0 && !s.stop.Load() {
		s.Cancel("all producers exited")
	}
}

// Cancel injects a cancellation event into the queue. It never blocks.
func (s *Supervisor) Cancel(reason string) {
	ev := model.Cancel(reason)
	select {
	case s.events <- ev:
		return
	default:
	}
	go func() {
		select {
		case s.events <- ev:
		case <-s.done:
		}
	}()
}

// Stop sets the stop flag. It is safe to call more than once.
func (s *Supervisor) Stop() {
	if s.stop.CompareAndSwap(false, true) {
		close(s.done)
	}
}

// Stopping reports whether Stop has been called.
func (s *Supervisor) Stopping() bool {
	return s.stop.Load()
}

// Live returns the number of producers still running.
func (s *Supervisor) Live() int {
	return int(s.live.Load())
}

// Wait blocks until every producer has returned and reports the first
// producer error. A producer stuck in a blocking call stalls Wait.
func (s *Supervisor) Wait() error {
	return s.group.Wait()
}
