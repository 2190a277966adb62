package probe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"hopwatch/internal/echo"
	"hopwatch/internal/execx"
	"hopwatch/internal/model"
	"hopwatch/internal/stunutil"
)

// Command times an external command once per interval. Exit status zero is
// a measurement; any other exit status is recorded as a timeout.
type Command struct {
	Runner   execx.Runner
	Interval time.Duration
}

func (c *Command) Produce(target model.Target, sink Sink) error {
	name, args, err := execx.SplitCommand(target.Name)
	if err != nil {
		return err
	}
	for !sink.Stopped() {
		start := time.Now()
		err := c.Runner.Run(name, args...)
		elapsed := time.Since(start)
		switch {
		case err == nil:
			sink.Emit(model.Measured, elapsed)
		case execx.IsExitError(err):
			sink.Emit(model.TimedOut, 0)
		default:
			return fmt.Errorf("spawn %q: %w", target.Name, err)
		}
		if !sink.Sleep(c.Interval - elapsed) {
			break
		}
	}
	return nil
}

// UDPEcho probes a hopwatch echo responder once per interval.
type UDPEcho struct {
	Interval time.Duration
	Timeout  time.Duration
}

func (u *UDPEcho) Produce(target model.Target, sink Sink) error {
	if _, err := net.ResolveUDPAddr("udp", target.Addr); err != nil {
		return err
	}
	for !sink.Stopped() {
		start := time.Now()
		rtt, err := echo.Probe(context.Background(), target.Addr, u.Timeout)
		switch {
		case err == nil:
			sink.Emit(model.Measured, rtt)
		case errors.Is(err, os.ErrDeadlineExceeded):
			sink.Emit(model.TimedOut, 0)
		default:
			sink.Emit(model.Indeterminate, 0)
		}
		if !sink.Sleep(u.Interval - time.Since(start)) {
			break
		}
	}
	return nil
}

// STUN measures binding request round trips to a STUN server.
type STUN struct {
	Interval time.Duration
	Timeout  time.Duration
}

func (s *STUN) Produce(target model.Target, sink Sink) error {
	if _, err := stunutil.NormalizeURI(target.Addr); err != nil {
		return err
	}
	for !sink.Stopped() {
		start := time.Now()
		res, err := stunutil.RoundTrip(context.Background(), target.Addr, s.Timeout)
		switch {
		case err == nil:
			sink.Emit(model.Measured, res.RTT)
		case errors.Is(err, stunutil.ErrTimeout):
			sink.Emit(model.TimedOut, 0)
		default:
			sink.Emit(model.Indeterminate, 0)
		}
		if !sink.Sleep(s.Interval - time.Since(start)) {
			break
		}
	}
	return nil
}

// Options carries the settings shared by every producer.
type Options struct {
	Runner   execx.Runner
	Interval time.Duration
	Timeout  time.Duration
}

// For returns the producer matching the target's kind.
func For(target model.Target, opts Options) (Producer, error) {
	switch target.Kind {
	case model.KindHost:
		return &ICMP{Interval: opts.Interval, Timeout: opts.Timeout, ID: target.Index}, nil
	case model.KindCommand:
		return &Command{Runner: opts.Runner, Interval: opts.Interval}, nil
	case model.KindUDP:
		return &UDPEcho{Interval: opts.Interval, Timeout: opts.Timeout}, nil
	case model.KindSTUN:
		return &STUN{Interval: opts.Interval, Timeout: opts.Timeout}, nil
	default:
		return nil, fmt.Errorf("unsupported target kind %s", target.Kind)
	}
}
