// Package netguard validates outbound destinations so that crawls cannot be
// steered at internal infrastructure, either directly or through DNS records
// that point a public name at a private address.
package netguard

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/brandscan/internal/metrics"
)

// Sentinel reasons wrapped by ValidationError.
var (
	ErrInvalidURL     = errors.New("invalid url")
	ErrInvalidScheme  = errors.New("only http and https are allowed")
	ErrBlockedHost    = errors.New("hostname is blocked")
	ErrSuspiciousHost = errors.New("hostname contains suspicious characters")
	ErrBlockedIP      = errors.New("destination resolves to a private or reserved address")
	ErrResolve        = errors.New("hostname could not be resolved")
)

// blockedPrefixes lists private, loopback, link-local and otherwise reserved ranges.
var blockedPrefixes = mustPrefixes(
	// RFC1918
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	// loopback, link-local/APIPA, "this" network
	"127.0.0.0/8",
	"169.254.0.0/16",
	"0.0.0.0/8",
	// carrier-grade NAT
	"100.64.0.0/10",
	// IETF, documentation, benchmarking, multicast, reserved
	"192.0.0.0/24",
	"192.0.2.0/24",
	"198.18.0.0/15",
	"198.51.100.0/24",
	"203.0.113.0/24",
	"224.0.0.0/4",
	"240.0.0.0/4",
	// IPv6
	"::1/128",
	"::/128",
	"64:ff9b::/96",
	"100::/64",
	"2001:db8::/32",
	"fc00::/7",
	"fe80::/10",
	"ff00::/8",
)

// Resolver resolves hostnames without consulting a cache. *net.Resolver
// satisfies it.
type Resolver interface {
	LookupNetIP(ctx context.Context, network, host string) ([]netip.Addr, error)
}

// ValidationError reports why a URL was rejected.
type ValidationError struct {
	URL    string
	Reason error
	Addr   netip.Addr
}

func (e *ValidationError) Error() string {
	if e.Addr.IsValid() {
		return fmt.Sprintf("url %q rejected: %v (%s)", e.URL, e.Reason, e.Addr)
	}
	return fmt.Sprintf("url %q rejected: %v", e.URL, e.Reason)
}

// Unwrap exposes the sentinel reason to errors.Is.
func (e *ValidationError) Unwrap() error {
	return e.Reason
}

// Option customizes a Guard.
type Option func(*Guard)

// WithResolver swaps the DNS resolver.
func WithResolver(r Resolver) Option {
	return func(g *Guard) {
		if r != nil {
			g.resolver = r
		}
	}
}

// WithAllowedPrefixes exempts ranges from the blocklist. Intended for local
// development against loopback fixtures.
func WithAllowedPrefixes(prefixes ...netip.Prefix) Option {
	return func(g *Guard) {
		g.allowed = append(g.allowed, prefixes...)
	}
}

// WithBlockedHosts refuses extra hostnames on top of the defaults. Patterns
// are exact names or "*.example.com" suffixes.
func WithBlockedHosts(patterns ...string) Option {
	return func(g *Guard) {
		g.hosts.add(patterns...)
	}
}

// WithLogger attaches a logger for rejected destinations.
func WithLogger(logger *zap.Logger) Option {
	return func(g *Guard) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// Guard validates URLs and dials only to addresses that pass validation.
type Guard struct {
	resolver Resolver
	hosts    *hostBlocklist
	allowed  []netip.Prefix
	logger   *zap.Logger
	dialer   *net.Dialer
}

// New builds a Guard. The default resolver is a dedicated pure-Go resolver so
// every lookup goes to the network.
func New(opts ...Option) *Guard {
	g := &Guard{
		resolver: &net.Resolver{PreferGo: true},
		hosts:    newHostBlocklist(defaultBlockedHosts...),
		logger:   zap.NewNop(),
		dialer: &net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// ValidateURL parses raw and rejects it unless it is http(s), names an
// acceptable host, and every address the host resolves to is public.
func (g *Guard) ValidateURL(ctx context.Context, raw string) (*url.URL, error) {
	if strings.ContainsAny(authority(raw), "@%") {
		return nil, g.reject(raw, ErrSuspiciousHost, netip.Addr{})
	}
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, g.reject(raw, ErrInvalidURL, netip.Addr{})
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return nil, g.reject(raw, ErrInvalidScheme, netip.Addr{})
	}
	if u.User != nil {
		return nil, g.reject(raw, ErrSuspiciousHost, netip.Addr{})
	}
	host := strings.ToLower(strings.TrimSuffix(u.Hostname(), "."))
	if host == "" {
		return nil, g.reject(raw, ErrInvalidURL, netip.Addr{})
	}
	if g.hosts.Blocked(host) {
		return nil, g.reject(raw, ErrBlockedHost, netip.Addr{})
	}
	addrs, err := g.resolve(ctx, host)
	if err != nil {
		return nil, g.reject(raw, fmt.Errorf("%w: %v", ErrResolve, err), netip.Addr{})
	}
	if addr, blocked := g.firstBlocked(addrs); blocked {
		return nil, g.reject(raw, ErrBlockedIP, addr)
	}
	return u, nil
}

// IsBlocked reports whether addr falls inside a blocked range that has not
// been explicitly allowed.
func (g *Guard) IsBlocked(addr netip.Addr) bool {
	addr = addr.Unmap()
	for _, p := range g.allowed {
		if p.Contains(addr) {
			return false
		}
	}
	if addr.IsLoopback() || addr.IsPrivate() || addr.IsLinkLocalUnicast() ||
		addr.IsLinkLocalMulticast() || addr.IsMulticast() || addr.IsUnspecified() {
		return true
	}
	for _, p := range blockedPrefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// DialContext resolves the target itself, refuses blocked addresses and
// connects to the vetted address, so a second lookup cannot be rebound.
func (g *Guard) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	host, port, err := net.SplitHostPort(address)
	if err != nil {
		return nil, fmt.Errorf("split host port: %w", err)
	}
	addrs, err := g.resolve(ctx, host)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResolve, err)
	}
	if addr, blocked := g.firstBlocked(addrs); blocked {
		metrics.ObserveBlockedDestination("dial")
		return nil, fmt.Errorf("dial %s: %w (%s)", host, ErrBlockedIP, addr)
	}
	conn, err := g.dialer.DialContext(ctx, network, net.JoinHostPort(addrs[0].String(), port))
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", host, err)
	}
	return conn, nil
}

// CheckRedirect validates every redirect hop for http.Client.
func (g *Guard) CheckRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= 10 {
		return errors.New("stopped after 10 redirects")
	}
	if _, err := g.ValidateURL(req.Context(), req.URL.String()); err != nil {
		return err
	}
	return nil
}

// Transport returns an http.Transport that dials through the guard.
func (g *Guard) Transport() *http.Transport {
	return &http.Transport{
		DialContext:           g.DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: time.Second,
		MaxIdleConns:          50,
		IdleConnTimeout:       90 * time.Second,
	}
}

func (g *Guard) resolve(ctx context.Context, host string) ([]netip.Addr, error) {
	if addr, err := netip.ParseAddr(strings.Trim(host, "[]")); err == nil {
		return []netip.Addr{addr}, nil
	}
	addrs, err := g.resolver.LookupNetIP(ctx, "ip", host)
	if err != nil {
		return nil, fmt.Errorf("lookup %s: %w", host, err)
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("lookup %s: no addresses", host)
	}
	return addrs, nil
}

func (g *Guard) firstBlocked(addrs []netip.Addr) (netip.Addr, bool) {
	for _, addr := range addrs {
		if g.IsBlocked(addr) {
			return addr, true
		}
	}
	return netip.Addr{}, false
}

func (g *Guard) reject(raw string, reason error, addr netip.Addr) error {
	err := &ValidationError{URL: raw, Reason: reason, Addr: addr}
	metrics.ObserveBlockedDestination(reasonLabel(reason))
	g.logger.Warn("destination rejected", zap.String("url", raw), zap.Error(err))
	return err
}

func reasonLabel(reason error) string {
	switch {
	case errors.Is(reason, ErrInvalidScheme):
		return "scheme"
	case errors.Is(reason, ErrBlockedHost):
		return "host"
	case errors.Is(reason, ErrSuspiciousHost):
		return "suspicious"
	case errors.Is(reason, ErrBlockedIP):
		return "private_ip"
	case errors.Is(reason, ErrResolve):
		return "resolve"
	default:
		return "invalid"
	}
}

// authority returns the raw host section of an absolute URL before any
// decoding, so encoded tricks are still visible.
func authority(raw string) string {
	rest := raw
	if i := strings.Index(rest, "://"); i >= 0 {
		rest = rest[i+3:]
	}
	if i := strings.IndexAny(rest, "/?#"); i >= 0 {
		rest = rest[:i]
	}
	return rest
}

func mustPrefixes(cidrs ...string) []netip.Prefix {
	out := make([]netip.Prefix, 0, len(cidrs))
	for _, c := range cidrs {
		out = append(out, netip.MustParsePrefix(c))
	}
	return out
}
