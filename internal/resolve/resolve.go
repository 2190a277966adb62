package resolve

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"time"

	"github.com/miekg/dns"
	"github.com/patrickmn/go-cache"
)

// ErrNoAddress is returned when a name resolves but not to the requested family.
var ErrNoAddress = errors.New("no address for requested family")

const (
	DefaultTTL     = time.Minute
	DefaultTimeout = 3 * time.Second
	resolvConf     = "/etc/resolv.conf"
)

// Family is the IPv4/IPv6 resolution preference.
type Family int

const (
	Any Family = iota
	V4
	V6
)

func (f Family) String() string {
	switch f {
	case V4:
		return "IPv4"
	case V6:
		return "IPv6"
	default:
		return "IP"
	}
}

type lookupFunc func(ctx context.Context, host string) ([]netip.Addr, error)

type result struct {
	addrs []netip.Addr
	err   error
}

// Resolver turns host names into addresses. Names are queried with a DNS
// client against the configured nameserver and fall back to the system
// resolver (which also honours /etc/hosts). Answers and failures are cached.
type Resolver struct {
	client *dns.Client
	server string
	cache  *cache.Cache
	lookup lookupFunc
}

// New builds a resolver. nameserver may be "host" or "host:port"; when empty
// the first server from /etc/resolv.conf is used if present.
func New(nameserver string) *Resolver {
	r := &Resolver{
		client: &dns.Client{Timeout: DefaultTimeout},
		server: serverAddr(nameserver),
		cache:  cache.New(DefaultTTL, 2*DefaultTTL),
	}
	r.lookup = r.lookupDNS
	return r
}

func serverAddr(nameserver string) string {
	if nameserver != "" {
		if _, _, err := net.SplitHostPort(nameserver); err == nil {
			return nameserver
		}
		return net.JoinHostPort(nameserver, "53")
	}
	conf, err := dns.ClientConfigFromFile(resolvConf)
	if err != nil || len(conf.Servers) == 0 {
		return ""
	}
	return net.JoinHostPort(conf.Servers[0], conf.Port)
}

// Lookup returns every address for host. IP literals are returned as-is.
func (r *Resolver) Lookup(ctx context.Context, host string) ([]netip.Addr, error) {
	if addr, err := netip.ParseAddr(host); err == nil {
		return []netip.Addr{addr.Unmap()}, nil
	}
	if cached, ok := r.cache.Get(host); ok {
		res := cached.(result)
		return res.addrs, res.err
	}

	addrs, err := r.lookup(ctx, host)
	if err == nil && len(addrs) == 0 {
		err = fmt.Errorf("could not resolve hostname %s", host)
	}
	r.cache.SetDefault(host, result{addrs: addrs, err: err})
	return addrs, err
}

// Pick resolves host and returns the first address matching family.
func (r *Resolver) Pick(ctx context.Context, host string, family Family) (netip.Addr, error) {
	addrs, err := r.Lookup(ctx, host)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("could not resolve hostname %s: %w", host, err)
	}
	for _, a := range addrs {
		switch {
		case family == Any:
			return a, nil
		case family == V4 && a.Is4():
			return a, nil
		case family == V6 && a.Is6():
			return a, nil
		}
	}
	return netip.Addr{}, fmt.Errorf("could not resolve %q to %s: %w", host, family, ErrNoAddress)
}

// Resolvable reports whether token is an address or a name that resolves.
// Trace tools print localized error text in the address column, so this is
// how a non-responding hop is told apart from a real one.
func (r *Resolver) Resolvable(ctx context.Context, token string) bool {
	addrs, err := r.Lookup(ctx, token)
	return err == nil && len(addrs) > 0
}

func (r *Resolver) lookupDNS(ctx context.Context, host string) ([]netip.Addr, error) {
	if _, ok := dns.IsDomainName(host); ok && r.server != "" {
		addrs, err := r.query(ctx, host)
		if err == nil && len(addrs) > 0 {
			return addrs, nil
		}
	}
	return net.DefaultResolver.LookupNetIP(ctx, "ip", host)
}

func (r *Resolver) query(ctx context.Context, host string) ([]netip.Addr, error) {
	var addrs []netip.Addr
	var lastErr error
	for _, qtype := range []uint16{dns.TypeA, dns.TypeAAAA} {
		msg := new(dns.Msg)
		msg.SetQuestion(dns.Fqdn(host), qtype)
		msg.RecursionDesired = true

		in, _, err := r.client.ExchangeContext(ctx, msg, r.server)
		if err != nil {
			lastErr = err
			continue
		}
		if in.Rcode != dns.RcodeSuccess {
			lastErr = fmt.Errorf("%s: %s", host, dns.RcodeToString[in.Rcode])
			continue
		}
		addrs = append(addrs, answerAddrs(in)...)
	}
	if len(addrs) == 0 && lastErr != nil {
		return nil, lastErr
	}
	return addrs, nil
}

func answerAddrs(msg *dns.Msg) []netip.Addr {
	var addrs []netip.Addr
	for _, rr := range msg.Answer {
		var ip net.IP
		switch v := rr.(type) {
		case *dns.A:
			ip = v.A
		case *dns.AAAA:
			ip = v.AAAA
		default:
			continue
		}
		if a, ok := netip.AddrFromSlice(ip); ok {
			addrs = append(addrs, a.Unmap())
		}
	}
	return addrs
}

var sharedAddressSpace = netip.MustParsePrefix("100.64.0.0/10")

// IsPublic reports whether addr is publicly routable: global unicast and not
// private, loopback, link-local or carrier-grade NAT space.
func IsPublic(addr netip.Addr) bool {
	addr = addr.Unmap()
	if !addr.IsValid() || !addr.IsGlobalUnicast() {
		return false
	}
	if addr.IsPrivate() || addr.IsLoopback() || addr.IsLinkLocalUnicast() || addr.IsUnspecified() {
		return false
	}
	return !sharedAddressSpace.Contains(addr)
}
