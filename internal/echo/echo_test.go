package echo

import (
	"context"
	"errors"
	"net"
	"os"
	"testing"
	"time"
)

func TestDecode(t *testing.T) {
	t.Parallel()

	kind, token, err := decode(encode(kindReply, 0xdeadbeef))
	if err != nil || kind != kindReply || token != 0xdeadbeef {
		t.Fatalf("kind=%d token=%x err=%v", kind, token, err)
	}
	for _, pkt := range [][]byte{nil, []byte("HWE1"), append([]byte("XXXX"), make([]byte, 9)...)} {
		if _, _, err := decode(pkt); !errors.Is(err, ErrMalformed) {
			t.Fatalf("decode(%q) err=%v", pkt, err)
		}
	}
}

func TestProbe_RoundTrip(t *testing.T) {
	t.Parallel()

	resp, err := Listen("127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer resp.Close()

	for i := 0; i < 3; i++ {
		rtt, err := Probe(context.Background(), resp.Addr(), 2*time.Second)
		if err != nil {
			t.Fatalf("Probe: %v", err)
		}
		if rtt <= 0 {
			t.Fatalf("rtt=%s", rtt)
		}
	}
	if resp.Served() != 3 {
		t.Fatalf("served=%d", resp.Served())
	}
}

func TestProbe_SilentPeerTimesOut(t *testing.T) {
	t.Parallel()

	// A bound socket that never answers.
	silent, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("ListenPacket: %v", err)
	}
	defer silent.Close()

	_, err = Probe(context.Background(), silent.LocalAddr().String(), 50*time.Millisecond)
	if !errors.Is(err, os.ErrDeadlineExceeded) {
		t.Fatalf("err=%v", err)
	}
}

func TestProbe_ContextCancel(t *testing.T) {
	t.Parallel()

	silent, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("ListenPacket: %v", err)
	}
	defer silent.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err = Probe(ctx, silent.LocalAddr().String(), time.Minute)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v", err)
	}
}

func TestResponder_IgnoresForeignPackets(t *testing.T) {
	t.Parallel()

	resp, err := Listen("127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer resp.Close()

	conn, err := net.Dial("udp", resp.Addr())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()
	if _, err := conn.Write([]byte("hello")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, err := conn.Write(encode(kindReply, 1)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, err := Probe(context.Background(), resp.Addr(), 2*time.Second); err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if resp.Served() != 1 {
		t.Fatalf("served=%d", resp.Served())
	}
}
