// Package security keeps alert outputs from reaching internal infrastructure.
//
// Output URLs come from credentials that operators paste into Parameter Store,
// so a typo or a hostile value could point a webhook at the instance metadata
// service or a private subnet. Guard checks every address a request would
// connect to, including each redirect hop, against types.SSRFBlockedCIDRs.
package security

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"time"

	"alertprocessor/internal/types"
)

// DefaultDNSTimeout bounds each DNS lookup done by the Guard.
const DefaultDNSTimeout = 500 * time.Millisecond

var (
	// ErrSSRFBlocked is returned when a request targets a blocked IP range.
	ErrSSRFBlocked = errors.New("ssrf: request to blocked IP range")
	// ErrSSRFDNSTimeout is returned when DNS resolution exceeds the timeout.
	ErrSSRFDNSTimeout = errors.New("ssrf: DNS resolution timeout")
	// ErrSSRFDNSFailed is returned when DNS resolution fails entirely.
	ErrSSRFDNSFailed = errors.New("ssrf: DNS resolution failed")
	// ErrSSRFTooManyRedirects is returned when the redirect limit is exceeded.
	ErrSSRFTooManyRedirects = errors.New("ssrf: too many redirects")
	// ErrSSRFScheme is returned for URLs that are not http or https.
	ErrSSRFScheme = errors.New("ssrf: unsupported URL scheme")
)

// Resolver abstracts DNS resolution for testability. *net.Resolver satisfies it.
type Resolver interface {
	LookupNetIP(ctx context.Context, network, host string) ([]netip.Addr, error)
}

// Guard validates outbound destinations.
type Guard struct {
	blocked    []netip.Prefix
	resolver   Resolver
	dnsTimeout time.Duration
	dialer     *net.Dialer
}

// GuardOption configures a Guard.
type GuardOption func(*Guard)

// WithResolver replaces net.DefaultResolver.
func WithResolver(r Resolver) GuardOption {
	return func(g *Guard) { g.resolver = r }
}

// WithDNSTimeout overrides DefaultDNSTimeout.
func WithDNSTimeout(d time.Duration) GuardOption {
	return func(g *Guard) { g.dnsTimeout = d }
}

// NewGuard parses the blocklist and returns a Guard.
func NewGuard(opts ...GuardOption) (*Guard, error) {
	g := &Guard{
		resolver:   net.DefaultResolver,
		dnsTimeout: DefaultDNSTimeout,
		dialer:     &net.Dialer{Timeout: 5 * time.Second},
	}
	for _, cidr := range types.SSRFBlockedCIDRs {
		p, err := netip.ParsePrefix(cidr)
		if err != nil {
			return nil, fmt.Errorf("ssrf: failed to parse CIDR %q: %w", cidr, err)
		}
		g.blocked = append(g.blocked, p)
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// CheckAddr reports ErrSSRFBlocked when ip falls in a blocked range.
// IPv4-mapped IPv6 addresses are checked as IPv4.
func (g *Guard) CheckAddr(ip netip.Addr) error {
	ip = ip.Unmap()
	for _, p := range g.blocked {
		if p.Contains(ip) {
			return fmt.Errorf("%w: %s", ErrSSRFBlocked, ip)
		}
	}
	return nil
}

// Resolve returns the addresses of host after checking every one of them.
// All addresses must be safe: a single private answer rejects the host, so a
// rebinding record cannot mix public and internal targets.
func (g *Guard) Resolve(ctx context.Context, host string) ([]netip.Addr, error) {
	if ip, err := netip.ParseAddr(host); err == nil {
		if err := g.CheckAddr(ip); err != nil {
			return nil, err
		}
		return []netip.Addr{ip}, nil
	}

	dnsCtx, cancel := context.WithTimeout(ctx, g.dnsTimeout)
	defer cancel()

	ips, err := g.resolver.LookupNetIP(dnsCtx, "ip", host)
	if err != nil {
		if dnsCtx.Err() != nil {
			return nil, fmt.Errorf("%w: host %q", ErrSSRFDNSTimeout, host)
		}
		return nil, fmt.Errorf("%w: host %q: %v", ErrSSRFDNSFailed, host, err)
	}
	if len(ips) == 0 {
		return nil, fmt.Errorf("%w: host %q resolved to no addresses", ErrSSRFDNSFailed, host)
	}

	for _, ip := range ips {
		if err := g.CheckAddr(ip); err != nil {
			return nil, fmt.Errorf("%w (resolved from %s)", err, host)
		}
	}
	return ips, nil
}

// ValidateURL checks the scheme and host of rawURL.
func (g *Guard) ValidateURL(ctx context.Context, rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSSRFBlocked, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: %q", ErrSSRFScheme, u.Scheme)
	}
	if u.Hostname() == "" {
		return fmt.Errorf("%w: URL has no host", ErrSSRFBlocked)
	}
	_, err = g.Resolve(ctx, u.Hostname())
	return err
}

// Validator adapts ValidateURL to types.SSRFValidator.
func (g *Guard) Validator() types.SSRFValidator {
	return func(rawURL string) error {
		return g.ValidateURL(context.Background(), rawURL)
	}
}

// DialContext resolves and checks addr, then dials the first safe address.
// Dialing the checked IP rather than the hostname closes the window between
// validation and connect.
func (g *Guard) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("ssrf: invalid address %q: %w", addr, err)
	}
	ips, err := g.Resolve(ctx, host)
	if err != nil {
		return nil, err
	}
	return g.dialer.DialContext(ctx, network, net.JoinHostPort(ips[0].String(), port))
}

// CheckRedirect returns an http.Client CheckRedirect func that enforces
// maxRedirects and validates each hop.
func (g *Guard) CheckRedirect(maxRedirects int) func(req *http.Request, via []*http.Request) error {
	return func(req *http.Request, via []*http.Request) error {
		if len(via) >= maxRedirects {
			return fmt.Errorf("%w: limit is %d", ErrSSRFTooManyRedirects, maxRedirects)
		}
		if err := g.ValidateURL(req.Context(), req.URL.String()); err != nil {
			return fmt.Errorf("redirect to %s: %w", req.URL.Redacted(), err)
		}
		return nil
	}
}

// NewSafeHTTPClient returns an http.Client whose every connection and
// redirect is validated by g.
func (g *Guard) NewSafeHTTPClient(timeout time.Duration, maxRedirects int) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = nil
	transport.DialContext = g.DialContext

	return &http.Client{
		Transport:     transport,
		Timeout:       timeout,
		CheckRedirect: g.CheckRedirect(maxRedirects),
	}
}
