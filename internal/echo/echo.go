package echo

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"sync/atomic"
	"time"
)

// Packet layout: 4 byte magic, 1 byte kind, 8 byte token.
const packetSize = 13

const (
	kindRequest byte = 1
	kindReply   byte = 2
)

var magic = []byte("HWE1")

// ErrMalformed is returned by decode for anything that is not an echo packet.
var ErrMalformed = errors.New("malformed echo packet")

func encode(kind byte, token uint64) []byte {
	pkt := make([]byte, packetSize)
	copy(pkt, magic)
	pkt[4] = kind
	binary.BigEndian.PutUint64(pkt[5:], token)
	return pkt
}

func decode(pkt []byte) (byte, uint64, error) {
	if len(pkt) != packetSize || !bytes.Equal(pkt[:4], magic) {
		return 0, 0, ErrMalformed
	}
	return pkt[4], binary.BigEndian.Uint64(pkt[5:]), nil
}

// Responder answers echo requests on a UDP socket until closed.
type Responder struct {
	conn   net.PacketConn
	served atomic.Uint64
	done   chan struct{}
}

// Listen binds addr (for example ":7777" or "127.0.0.1:0") and starts
// answering requests.
func Listen(addr string) (*Responder, error) {
	conn, err := net.ListenPacket("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("echo listen %s: %w", addr, err)
	}
	r := &Responder{conn: conn, done: make(chan struct{})}
	go r.loop()
	return r, nil
}

// Addr is the bound address in host:port form.
func (r *Responder) Addr() string {
	return r.conn.LocalAddr().String()
}

// Served counts the requests answered so far.
func (r *Responder) Served() uint64 {
	return r.served.Load()
}

// Close stops the responder and waits for its loop to exit.
func (r *Responder) Close() error {
	err := r.conn.Close()
	<-r.done
	return err
}

func (r *Responder) loop() {
	defer close(r.done)
	buf := make([]byte, 64)
	for {
		n, from, err := r.conn.ReadFrom(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			continue
		}
		kind, token, err := decode(buf[:n])
		if err != nil || kind != kindRequest {
			continue
		}
		if _, err := r.conn.WriteTo(encode(kindReply, token), from); err == nil {
			r.served.Add(1)
		}
	}
}

// Probe sends one request to peer and returns the round trip once the
// matching reply arrives. A missing reply yields an error matching
// os.ErrDeadlineExceeded; cancelling ctx aborts the wait.
func Probe(ctx context.Context, peer string, timeout time.Duration) (time.Duration, error) {
	raddr, err := net.ResolveUDPAddr("udp", peer)
	if err != nil {
		return 0, err
	}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return 0, err
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { _ = conn.SetReadDeadline(time.Now()) })
	defer stop()

	var raw [8]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return 0, fmt.Errorf("echo token: %w", err)
	}
	token := binary.BigEndian.Uint64(raw[:])

	sent := time.Now()
	if timeout > 0 {
		if err := conn.SetReadDeadline(sent.Add(timeout)); err != nil {
			return 0, err
		}
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if _, err := conn.Write(encode(kindRequest, token)); err != nil {
		return 0, err
	}

	buf := make([]byte, 64)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			if cerr := ctx.Err(); cerr != nil {
				return 0, cerr
			}
			return 0, err
		}
		kind, got, err := decode(buf[:n])
		if err == nil && kind == kindReply && got == token {
			return time.Since(sent), nil
		}
	}
}
