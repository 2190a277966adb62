package probe

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"os"
	"time"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"

	"hopwatch/internal/model"
)

const (
	protocolICMP   = 1
	protocolICMPv6 = 58
)

var echoPayload = []byte("hopwatch")

// ICMP pings the target's resolved address once per interval. Each cycle
// waits up to Timeout for the matching echo reply.
type ICMP struct {
	Interval time.Duration
	Timeout  time.Duration
	// ID distinguishes concurrent pingers on raw sockets.
	ID int
}

type icmpSocket struct {
	conn       *icmp.PacketConn
	dst        net.Addr
	proto      int
	echoType   icmp.Type
	replyType  icmp.Type
	privileged bool
}

// listenICMP prefers an unprivileged datagram socket and falls back to a raw one.
func listenICMP(addr netip.Addr) (*icmpSocket, error) {
	ip := net.IP(addr.AsSlice())
	sock := &icmpSocket{proto: protocolICMP, echoType: ipv4.ICMPTypeEcho, replyType: ipv4.ICMPTypeEchoReply}
	dgram, raw, laddr := "udp4", "ip4:icmp", "0.0.0.0"
	if addr.Is6() {
		sock.proto, sock.echoType, sock.replyType = protocolICMPv6, ipv6.ICMPTypeEchoRequest, ipv6.ICMPTypeEchoReply
		dgram, raw, laddr = "udp6", "ip6:ipv6-icmp", "::"
	}

	conn, err := icmp.ListenPacket(dgram, laddr)
	if err == nil {
		sock.conn, sock.dst = conn, &net.UDPAddr{IP: ip, Zone: addr.Zone()}
		return sock, nil
	}
	conn, rawErr := icmp.ListenPacket(raw, laddr)
	if rawErr != nil {
		return nil, fmt.Errorf("open icmp socket: %w", errors.Join(err, rawErr))
	}
	sock.conn, sock.dst, sock.privileged = conn, &net.IPAddr{IP: ip, Zone: addr.Zone()}, true
	return sock, nil
}

func (p *ICMP) Produce(target model.Target, sink Sink) error {
	addr, err := netip.ParseAddr(target.Addr)
	if err != nil {
		return fmt.Errorf("target %s has no resolved address: %w", target.Name, err)
	}
	sock, err := listenICMP(addr)
	if err != nil {
		return err
	}
	defer sock.conn.Close()

	id := (os.Getpid() + p.ID) & 0xffff
	buf := make([]byte, 1500)
	for seq := 1; !sink.Stopped(); seq++ {
		start := time.Now()
		outcome, rtt := p.ping(sock, id, seq&0xffff, buf)
		sink.Emit(outcome, rtt)
		if !sink.Sleep(p.Interval - time.Since(start)) {
			break
		}
	}
	return nil
}

func (p *ICMP) ping(sock *icmpSocket, id, seq int, buf []byte) (model.Outcome, time.Duration) {
	msg := icmp.Message{
		Type: sock.echoType,
		Body: &icmp.Echo{ID: id, Seq: seq, Data: echoPayload},
	}
	wb, err := msg.Marshal(nil)
	if err != nil {
		return model.Indeterminate, 0
	}

	start := time.Now()
	if _, err := sock.conn.WriteTo(wb, sock.dst); err != nil {
		return model.Indeterminate, 0
	}
	if err := sock.conn.SetReadDeadline(start.Add(p.Timeout)); err != nil {
		return model.Indeterminate, 0
	}

	for {
		n, peer, err := sock.conn.ReadFrom(buf)
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				return model.TimedOut, 0
			}
			return model.Indeterminate, 0
		}
		reply, err := icmp.ParseMessage(sock.proto, buf[:n])
		if err != nil {
			continue
		}
		if sock.isReply(reply, peer, id, seq) {
			return model.Measured, time.Since(start)
		}
	}
}

// isReply matches an echo reply to the outstanding request. Datagram sockets
// have their echo ID rewritten by the kernel, so only raw sockets check it.
func (sock *icmpSocket) isReply(msg *icmp.Message, peer net.Addr, id, seq int) bool {
	if msg.Type != sock.replyType {
		return false
	}
	body, ok := msg.Body.(*icmp.Echo)
	if !ok || body.Seq != seq {
		return false
	}
	if sock.privileged && body.ID != id {
		return false
	}
	return sameHost(peer, sock.dst)
}

func sameHost(a, b net.Addr) bool {
	return addrIP(a).Equal(addrIP(b))
}

func addrIP(a net.Addr) net.IP {
	switch v := a.(type) {
	case *net.UDPAddr:
		return v.IP
	case *net.IPAddr:
		return v.IP
	default:
		return nil
	}
}
