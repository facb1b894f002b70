package check

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strings"
	"sync"

	"github.com/miekg/dns"
	"golang.org/x/sync/errgroup"

	"github.com/optimode/emailguard/internal/parse"
	"github.com/optimode/emailguard/types"
)

// DefaultIPBlacklists are the IP based DNSBL zones queried by default.
var DefaultIPBlacklists = []string{
	"zen.spamhaus.org",
	"bl.spamcop.net",
	"b.barracudacentral.org",
}

// DefaultDomainBlacklists are the domain based DNSBL zones queried by default.
var DefaultDomainBlacklists = []string{
	"dbl.spamhaus.org",
}

// BlacklistConfig is the DNSBL checker configuration.
type BlacklistConfig struct {
	IPZones     []string
	DomainZones []string
	// MaxAddresses caps how many of the domain's A records are checked (default: 2).
	MaxAddresses int
}

// BlacklistChecker queries DNS blacklists for the domain and its addresses.
// Any lookup error counts as "not listed".
type BlacklistChecker struct {
	cfg      BlacklistConfig
	resolver Resolver
}

func NewBlacklistChecker(cfg BlacklistConfig, r Resolver) *BlacklistChecker {
	if cfg.IPZones == nil {
		cfg.IPZones = DefaultIPBlacklists
	}
	if cfg.DomainZones == nil {
		cfg.DomainZones = DefaultDomainBlacklists
	}
	if cfg.MaxAddresses <= 0 {
		cfg.MaxAddresses = 2
	}
	return &BlacklistChecker{cfg: cfg, resolver: r}
}

func (c *BlacklistChecker) Check(ctx context.Context, email parse.Email) types.BlacklistCheck {
	if !email.Valid {
		return types.BlacklistCheck{Skipped: true, Lists: []string{}}
	}

	var queries []dnsblQuery
	for _, zone := range c.cfg.DomainZones {
		queries = append(queries, dnsblQuery{name: email.Domain + "." + zone, zone: zone})
	}
	for _, ip := range c.addresses(ctx, email.Domain) {
		rev := reverseIPv4(ip)
		for _, zone := range c.cfg.IPZones {
			queries = append(queries, dnsblQuery{name: rev + "." + zone, zone: zone})
		}
	}

	var (
		mu     sync.Mutex
		listed = map[string]struct{}{}
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, q := range queries {
		g.Go(func() error {
			if c.isListed(gctx, q.name) {
				mu.Lock()
				listed[q.zone] = struct{}{}
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	lists := make([]string, 0, len(listed))
	for zone := range listed {
		lists = append(lists, zone)
	}
	sort.Strings(lists)

	if len(lists) == 0 {
		return types.BlacklistCheck{Lists: lists, Message: "not listed"}
	}
	return types.BlacklistCheck{
		IsBlacklisted: true,
		Lists:         lists,
		Message:       fmt.Sprintf("listed on %d blacklist(s)", len(lists)),
	}
}

type dnsblQuery struct {
	name string
	zone string
}

// addresses returns up to MaxAddresses IPv4 addresses of domain.
func (c *BlacklistChecker) addresses(ctx context.Context, domain string) []net.IP {
	res, err := c.resolver.Query(ctx, domain, "A")
	if err != nil || !res.Success {
		return nil
	}
	var ips []net.IP
	for _, rec := range res.Records {
		ip := net.ParseIP(rec).To4()
		if ip == nil {
			continue
		}
		ips = append(ips, ip)
		if len(ips) == c.cfg.MaxAddresses {
			break
		}
	}
	return ips
}

// isListed treats 127.255.255.x answers as errors: DNSBL operators return them
// to resolvers that are refused service, not to signal a listing.
func (c *BlacklistChecker) isListed(ctx context.Context, name string) bool {
	res, err := c.resolver.Query(ctx, name, "A")
	if err != nil || !res.Success {
		return false
	}
	for _, rec := range res.Records {
		ip := net.ParseIP(rec).To4()
		if ip == nil || ip[0] != 127 {
			continue
		}
		if ip[1] == 255 && ip[2] == 255 {
			continue
		}
		return true
	}
	return false
}

// reverseIPv4 turns 192.0.2.1 into 1.2.0.192.
func reverseIPv4(ip net.IP) string {
	rev, err := dns.ReverseAddr(ip.String())
	if err != nil {
		return ""
	}
	return strings.TrimSuffix(rev, ".in-addr.arpa.")
}
