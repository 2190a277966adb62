package hops

import (
	"context"
	"errors"
	"io"
	"net/netip"
	"strings"
	"testing"
)

type fakeResolver struct{}

func (fakeResolver) Lookup(ctx context.Context, host string) ([]netip.Addr, error) {
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return nil, err
	}
	return []netip.Addr{addr}, nil
}

func (f fakeResolver) Resolvable(ctx context.Context, token string) bool {
	_, err := f.Lookup(ctx, token)
	return err == nil
}

type fakeRunner struct {
	output   string
	spawnErr error
	name     string
	args     []string
	waited   bool
}

func (f *fakeRunner) Run(name string, args ...string) error { return nil }

func (f *fakeRunner) Stream(ctx context.Context, name string, args ...string) (io.ReadCloser, func() error, error) {
	f.name, f.args = name, args
	if f.spawnErr != nil {
		return nil, nil, f.spawnErr
	}
	return io.NopCloser(strings.NewReader(f.output)), func() error { f.waited = true; return nil }, nil
}

const linuxTrace = `traceroute to example.com (93.184.216.34), 30 hops max, 60 byte packets
 1  *  *  *
 2  10.0.0.1  1.201 ms  1.100 ms  1.052 ms
 3  203.0.113.5  9.320 ms  9.101 ms  9.250 ms
 4  * * *
 5  198.51.100.9  12.001 ms  11.870 ms  11.902 ms
 6  93.184.216.34  20.1 ms  20.0 ms  19.9 ms
`

const windowsTrace = `
Tracing route to example.com [93.184.216.34]
over a maximum of 30 hops:

  1     *        *        *     Request timed out.
  2    <1 ms    <1 ms    <1 ms  192.168.1.1
  3     5 ms     4 ms     5 ms  100.64.0.1
  4     9 ms     9 ms     9 ms  203.0.113.5
  5    12 ms    11 ms    12 ms  198.51.100.9

Trace complete.
`

func TestSelect_FirstRespondingThenTwoPublic(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewScanner(ctx, strings.NewReader(linuxTrace), FramingFor("linux"), fakeResolver{})
	sel, err := Select(ctx, s, fakeResolver{})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	want := Selection{"10.0.0.1", "203.0.113.5", "198.51.100.9"}
	if sel != want {
		t.Fatalf("sel=%v", sel)
	}
}

func TestSelect_WindowsFraming(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewScanner(ctx, strings.NewReader(windowsTrace), FramingFor("windows"), fakeResolver{})
	sel, err := Select(ctx, s, fakeResolver{})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	// 100.64.0.1 responds but is carrier-grade NAT space.
	want := Selection{"192.168.1.1", "203.0.113.5", "198.51.100.9"}
	if sel != want {
		t.Fatalf("sel=%v", sel)
	}
}

func TestScanner_ShortLinesAreNonResponding(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewScanner(ctx, strings.NewReader("banner\n 1\n 2  *\n"), FramingFor("linux"), fakeResolver{})
	var hops []Hop
	for s.Next() {
		hops = append(hops, s.Hop())
	}
	if len(hops) != 2 {
		t.Fatalf("hops=%v", hops)
	}
	for _, h := range hops {
		if h.Responding {
			t.Fatalf("hop=%+v", h)
		}
	}
}

func TestSelect_TruncatedOutput(t *testing.T) {
	t.Parallel()

	trace := "banner\n 1  10.0.0.1  1 ms\n 2  203.0.113.5  5 ms\n 3  * * *\n"
	ctx := context.Background()
	s := NewScanner(ctx, strings.NewReader(trace), FramingFor("linux"), fakeResolver{})
	if _, err := Select(ctx, s, fakeResolver{}); !errors.Is(err, ErrTruncated) {
		t.Fatalf("err=%v", err)
	}
}

func TestDiscover_UsesFramingAndWaits(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{output: linuxTrace}
	sel, err := Discover(context.Background(), runner, fakeResolver{}, FramingFor("linux"), "example.com")
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if sel[0] != "10.0.0.1" {
		t.Fatalf("sel=%v", sel)
	}
	if runner.name != "sh" || len(runner.args) != 2 || runner.args[1] != "traceroute -n example.com" {
		t.Fatalf("name=%q args=%v", runner.name, runner.args)
	}
	if !runner.waited {
		t.Fatalf("trace process not reaped")
	}
}

func TestDiscover_SpawnFailure(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{spawnErr: errors.New("exec: \"sh\": not found")}
	if _, err := Discover(context.Background(), runner, fakeResolver{}, FramingFor("linux"), "example.com"); !errors.Is(err, ErrSpawn) {
		t.Fatalf("err=%v", err)
	}
}

func TestFramingFor_DefaultsToUnix(t *testing.T) {
	t.Parallel()

	f := FramingFor("freebsd")
	if f.SkipLines != 1 || f.Field != 1 {
		t.Fatalf("framing=%+v", f)
	}
	w := FramingFor("windows")
	if got := w.args("example.com"); got[1] != "tracert -d example.com" {
		t.Fatalf("args=%v", got)
	}
}
