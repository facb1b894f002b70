package resolver

import (
	"context"
	"net"
	"sort"
	"strconv"
	"strings"

	"github.com/miekg/dns"
)

// ParseMX converts DoH MX record data ("10 mx.example.com.") into MX records
// sorted by preference. Malformed entries are ignored.
func ParseMX(records []string) []*net.MX {
	out := make([]*net.MX, 0, len(records))
	for _, rec := range records {
		fields := strings.Fields(rec)
		if len(fields) != 2 {
			continue
		}
		pref, err := strconv.ParseUint(fields[0], 10, 16)
		if err != nil {
			continue
		}
		host := strings.TrimSuffix(fields[1], ".")
		if host == "" {
			continue
		}
		out = append(out, &net.MX{Host: host, Pref: uint16(pref)})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Pref < out[j].Pref })
	return out
}

// LookupMX resolves and parses the MX records of domain.
func (r *Resolver) LookupMX(ctx context.Context, domain string) ([]*net.MX, Result, error) {
	res, err := r.Query(ctx, domain, dns.TypeToString[dns.TypeMX])
	if err != nil {
		return nil, res, err
	}
	return ParseMX(res.Records), res, nil
}

// LookupA resolves the IPv4 addresses of domain.
func (r *Resolver) LookupA(ctx context.Context, domain string) ([]net.IP, Result, error) {
	res, err := r.Query(ctx, domain, dns.TypeToString[dns.TypeA])
	if err != nil {
		return nil, res, err
	}
	ips := make([]net.IP, 0, len(res.Records))
	for _, rec := range res.Records {
		if ip := net.ParseIP(rec); ip != nil {
			ips = append(ips, ip)
		}
	}
	return ips, res, nil
}
