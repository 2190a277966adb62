package hops

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/netip"
	"runtime"
	"strings"

	"hopwatch/internal/execx"
	"hopwatch/internal/resolve"
)

var (
	// ErrSpawn is returned when the trace utility cannot be started.
	ErrSpawn = errors.New("failed to start trace utility")
	// ErrTruncated is returned when trace output ends before three hosts qualify.
	ErrTruncated = errors.New("unexpected end of trace output")
)

// Framing describes how one platform's trace utility is invoked and how its
// output is laid out.
type Framing struct {
	Command string
	// Args are appended after Command; "%s" is replaced with the trace host.
	Args      []string
	SkipLines int
	Field     int
}

var framings = map[string]Framing{
	"windows": {Command: "cmd", Args: []string{"/C", "tracert -d %s"}, SkipLines: 4, Field: 7},
	"linux":   {Command: "sh", Args: []string{"-c", "traceroute -n %s"}, SkipLines: 1, Field: 1},
	"darwin":  {Command: "sh", Args: []string{"-c", "traceroute -n %s"}, SkipLines: 1, Field: 1},
}

// FramingFor returns the framing for goos, defaulting to the unix layout.
func FramingFor(goos string) Framing {
	if f, ok := framings[goos]; ok {
		return f
	}
	return framings["linux"]
}

// Native is the framing for the running platform.
func Native() Framing {
	return FramingFor(runtime.GOOS)
}

func (f Framing) args(host string) []string {
	out := make([]string, len(f.Args))
	for i, a := range f.Args {
		if strings.Contains(a, "%s") {
			a = fmt.Sprintf(a, host)
		}
		out[i] = a
	}
	return out
}

// Resolver is the subset of resolve.Resolver hop discovery needs.
type Resolver interface {
	Lookup(ctx context.Context, host string) ([]netip.Addr, error)
	Resolvable(ctx context.Context, token string) bool
}

// Hop is one parsed trace line.
type Hop struct {
	Addr       string
	Responding bool
}

// Scanner yields one Hop per trace line after the banner.
type Scanner struct {
	lines    *bufio.Scanner
	framing  Framing
	resolver Resolver
	ctx      context.Context
	skipped  bool
	hop      Hop
}

// NewScanner wraps trace output r.
func NewScanner(ctx context.Context, r io.Reader, framing Framing, resolver Resolver) *Scanner {
	return &Scanner{
		lines:    bufio.NewScanner(r),
		framing:  framing,
		resolver: resolver,
		ctx:      ctx,
	}
}

// Next advances to the next hop. It returns false at end of output.
func (s *Scanner) Next() bool {
	if !s.skipped {
		s.skipped = true
		for i := 0; i < s.framing.SkipLines; i++ {
			if !s.lines.Scan() {
				return false
			}
		}
	}
	if !s.lines.Scan() {
		return false
	}
	s.hop = s.parse(s.lines.Text())
	return true
}

// Hop returns the hop parsed by the last call to Next.
func (s *Scanner) Hop() Hop {
	return s.hop
}

// Err returns the first read error, if any.
func (s *Scanner) Err() error {
	return s.lines.Err()
}

func (s *Scanner) parse(line string) Hop {
	fields := strings.Fields(line)
	if len(fields) <= s.framing.Field {
		return Hop{}
	}
	token := fields[s.framing.Field]
	if !s.resolver.Resolvable(s.ctx, token) {
		return Hop{Addr: token}
	}
	return Hop{Addr: token, Responding: true}
}

// Selection is the three hosts chosen from a trace.
type Selection [3]string

// Select applies the selection policy: the first responding hop, then the
// first two responding hops whose address is publicly routable.
func Select(ctx context.Context, s *Scanner, resolver Resolver) (Selection, error) {
	var sel Selection
	found := 0
	for found < len(sel) && s.Next() {
		hop := s.Hop()
		if !hop.Responding {
			continue
		}
		if found == 0 {
			sel[0] = hop.Addr
			found++
			continue
		}
		addrs, err := resolver.Lookup(ctx, hop.Addr)
		if err != nil || len(addrs) == 0 || !resolve.IsPublic(addrs[0]) {
			continue
		}
		sel[found] = hop.Addr
		found++
	}
	if err := s.Err(); err != nil {
		return sel, fmt.Errorf("read trace output: %w", err)
	}
	if found < len(sel) {
		return sel, fmt.Errorf("%w: found %d of 3 hosts", ErrTruncated, found)
	}
	return sel, nil
}

// Discover runs the trace utility towards host and selects three targets.
// The trace process is stopped as soon as the selection is complete.
func Discover(ctx context.Context, runner execx.Runner, resolver Resolver, framing Framing, host string) (Selection, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	out, wait, err := runner.Stream(ctx, framing.Command, framing.args(host)...)
	if err != nil {
		return Selection{}, fmt.Errorf("%w: %v", ErrSpawn, err)
	}
	defer out.Close()

	sel, selErr := Select(ctx, NewScanner(ctx, out, framing, resolver), resolver)
	cancel()
	_ = out.Close()
	// The trace is killed once enough hosts are found, so its exit status is not meaningful.
	_ = wait()
	return sel, selErr
}
