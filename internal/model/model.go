package model

import (
	"fmt"
	"strings"
	"time"
)

// TargetKind selects how a target is probed.
type TargetKind int

const (
	KindHost    TargetKind = iota // ICMP echo
	KindCommand                   // timed shell command
	KindUDP                       // udp://host:port echo responder
	KindSTUN                      // stun:host:port binding request
)

func (k TargetKind) String() string {
	switch k {
	case KindHost:
		return "host"
	case KindCommand:
		return "cmd"
	case KindUDP:
		return "udp"
	case KindSTUN:
		return "stun"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Target is one monitored endpoint. Index is stable for the run.
type Target struct {
	Index int
	Name  string
	// Addr is the resolved address (host kinds) or host:port (udp/stun). Empty for commands.
	Addr string
	Kind TargetKind
}

// Label is the display name used in headers and the CSV log.
func (t Target) Label() string {
	if t.Kind == KindCommand || t.Addr == "" || t.Addr == t.Name {
		return t.Name
	}
	return fmt.Sprintf("%s (%s)", t.Name, t.Addr)
}

// ParseTarget derives the kind and bare name from a raw CLI/config entry.
func ParseTarget(raw string, cmdMode bool) (string, TargetKind) {
	s := strings.TrimSpace(raw)
	if cmdMode {
		return s, KindCommand
	}
	switch {
	case strings.HasPrefix(s, "udp://"):
		return strings.TrimPrefix(s, "udp://"), KindUDP
	case strings.HasPrefix(s, "stun:"):
		return strings.TrimPrefix(s, "stun:"), KindSTUN
	default:
		return s, KindHost
	}
}

// Outcome is the result of a single probe cycle.
type Outcome int

const (
	Measured Outcome = iota
	TimedOut
	Indeterminate
)

func (o Outcome) String() string {
	switch o {
	case Measured:
		return "measured"
	case TimedOut:
		return "timeout"
	default:
		return "indeterminate"
	}
}

// ProbeEvent is one probe outcome for one target.
type ProbeEvent struct {
	Target  int
	Outcome Outcome
	Latency time.Duration // valid when Outcome == Measured
	At      time.Time
}

// EventKind tags items on the multiplexed event queue.
type EventKind int

const (
	EventProbe EventKind = iota
	EventCancel
)

// Event is a single item on the multiplexed queue.
type Event struct {
	Kind   EventKind
	Probe  ProbeEvent
	Reason string // set for EventCancel
}

// Cancel builds a cancellation event.
func Cancel(reason string) Event {
	return Event{Kind: EventCancel, Reason: reason}
}
