package security

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"websearch/internal/domain"
)

// privateRanges lists the private and reserved CIDR blocks that result pages
// may never be fetched from.
var privateRanges = []string{
	"0.0.0.0/8",
	"10.0.0.0/8",
	"100.64.0.0/10",
	"127.0.0.0/8",
	"169.254.0.0/16",
	"172.16.0.0/12",
	"192.0.0.0/24",
	"192.168.0.0/16",
	"198.18.0.0/15",
	"224.0.0.0/4",
	"240.0.0.0/4",
	"::/128",
	"::1/128",
	"fc00::/7",
	"fe80::/10",
	"ff00::/8",
}

var parsedRanges []*net.IPNet

func init() {
	for _, cidr := range privateRanges {
		_, ipnet, err := net.ParseCIDR(cidr)
		if err != nil {
			panic(fmt.Sprintf("invalid CIDR %q: %v", cidr, err))
		}
		parsedRanges = append(parsedRanges, ipnet)
	}
}

// IsPrivateIP checks if an IP falls within any private/reserved range.
func IsPrivateIP(ip net.IP) bool {
	if v4 := ip.To4(); v4 != nil {
		ip = v4
	}
	for _, ipnet := range parsedRanges {
		if ipnet.Contains(ip) {
			return true
		}
	}
	return false
}

// Resolver looks up host addresses. *net.Resolver satisfies it.
type Resolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

// URLGuard rejects URLs that are not http(s) or that resolve to private
// addresses. Hosts in the allow list bypass the address check.
type URLGuard struct {
	resolver   Resolver
	allowHosts map[string]bool
	dialer     *net.Dialer
}

// GuardOption configures a URLGuard.
type GuardOption func(*URLGuard)

// WithResolver overrides the DNS resolver.
func WithResolver(r Resolver) GuardOption {
	return func(g *URLGuard) { g.resolver = r }
}

// WithAllowedHosts exempts the given host names (e.g. a self-hosted search
// backend on localhost) from the private-address check.
func WithAllowedHosts(hosts ...string) GuardOption {
	return func(g *URLGuard) {
		for _, h := range hosts {
			if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
				g.allowHosts[h] = true
			}
		}
	}
}

// NewURLGuard creates a guard using the default resolver.
func NewURLGuard(opts ...GuardOption) *URLGuard {
	g := &URLGuard{
		resolver:   net.DefaultResolver,
		allowHosts: make(map[string]bool),
		dialer:     &net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second},
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

func blocked(op, detail string) error {
	return domain.NewSubSystemError("extract", op, domain.ErrSSRFBlocked, detail)
}

// CheckURL validates scheme and host of rawURL and resolves it once.
func (g *URLGuard) CheckURL(ctx context.Context, rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return blocked("URLGuard.CheckURL", fmt.Sprintf("invalid URL: %v", err))
	}

	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	case "":
		return blocked("URLGuard.CheckURL", "missing URL scheme, only http/https allowed")
	default:
		return blocked("URLGuard.CheckURL", fmt.Sprintf("scheme %q not allowed, only http/https", u.Scheme))
	}

	host := u.Hostname()
	if host == "" {
		return blocked("URLGuard.CheckURL", "empty hostname")
	}
	_, err = g.resolve(ctx, host)
	return err
}

// resolve returns the validated addresses for host.
func (g *URLGuard) resolve(ctx context.Context, host string) ([]net.IP, error) {
	if ip := net.ParseIP(host); ip != nil {
		if IsPrivateIP(ip) && !g.allowHosts[strings.ToLower(host)] {
			return nil, blocked("URLGuard.resolve", fmt.Sprintf("IP %s is private/reserved", ip))
		}
		return []net.IP{ip}, nil
	}

	addrs, err := g.resolver.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, blocked("URLGuard.resolve", fmt.Sprintf("DNS lookup failed: %v", err))
	}
	if len(addrs) == 0 {
		return nil, blocked("URLGuard.resolve", fmt.Sprintf("no addresses for %s", host))
	}

	allowed := g.allowHosts[strings.ToLower(host)]
	ips := make([]net.IP, 0, len(addrs))
	for _, a := range addrs {
		if IsPrivateIP(a.IP) && !allowed {
			return nil, blocked("URLGuard.resolve", fmt.Sprintf("host %s resolves to private IP %s", host, a.IP))
		}
		ips = append(ips, a.IP)
	}
	return ips, nil
}

// Transport returns an HTTP transport that validates addresses at dial time
// and connects to the validated IP, so a DNS answer cannot change between
// the check and the connection.
func (g *URLGuard) Transport() *http.Transport {
	return &http.Transport{
		Proxy: nil,
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			host, port, err := net.SplitHostPort(addr)
			if err != nil {
				return nil, fmt.Errorf("invalid address: %w", err)
			}
			ips, err := g.resolve(ctx, host)
			if err != nil {
				return nil, err
			}
			return g.dialer.DialContext(ctx, network, net.JoinHostPort(ips[0].String(), port))
		},
		MaxIdleConns:          50,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

// CheckRedirect rejects redirects to blocked URLs and caps the chain length.
func (g *URLGuard) CheckRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= 5 {
		return fmt.Errorf("stopped after %d redirects", len(via))
	}
	return g.CheckURL(req.Context(), req.URL.String())
}
