package check

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/optimode/emailguard/internal/parse"
	"github.com/optimode/emailguard/types"
)

// DefaultDKIMSelectors are the selectors probed for a DKIM key. DKIM keys
// cannot be enumerated, so only well known selectors are tried.
var DefaultDKIMSelectors = []string{
	"default",
	"google",
	"selector1",
	"selector2",
	"k1",
	"mail",
}

// AuthConfig is the authentication checker configuration.
type AuthConfig struct {
	DKIMSelectors []string
}

// AuthChecker looks up the SPF, DMARC and DKIM records of the domain.
type AuthChecker struct {
	cfg      AuthConfig
	resolver Resolver
}

func NewAuthChecker(cfg AuthConfig, r Resolver) *AuthChecker {
	if cfg.DKIMSelectors == nil {
		cfg.DKIMSelectors = DefaultDKIMSelectors
	}
	return &AuthChecker{cfg: cfg, resolver: r}
}

func (c *AuthChecker) Check(ctx context.Context, email parse.Email) types.AuthenticationCheck {
	if !email.Valid || email.IsLiteral() {
		return types.AuthenticationCheck{DKIM: types.DKIMResult{Selectors: []string{}}, Message: "skipped: no domain"}
	}

	var (
		out      = types.AuthenticationCheck{Checked: true}
		mu       sync.Mutex
		failures []string
	)
	lookup := func(ctx context.Context, name string) []string {
		records, err := c.txt(ctx, name)
		if err != nil {
			mu.Lock()
			failures = append(failures, name)
			mu.Unlock()
		}
		return records
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	g.Go(func() error {
		out.SPF = parseSPF(lookup(gctx, email.Domain))
		return nil
	})
	g.Go(func() error {
		out.DMARC = parseDMARC(lookup(gctx, "_dmarc."+email.Domain))
		return nil
	})
	selectors := make([]string, 0, len(c.cfg.DKIMSelectors))
	for _, sel := range c.cfg.DKIMSelectors {
		g.Go(func() error {
			for _, rec := range lookup(gctx, sel+"._domainkey."+email.Domain) {
				if hasDKIMKey(rec) {
					mu.Lock()
					selectors = append(selectors, sel)
					mu.Unlock()
					return nil
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	sort.Strings(selectors)
	out.DKIM = types.DKIMResult{Found: len(selectors) > 0, Selectors: selectors}
	out.Score = authScore(out)
	out.Message = fmt.Sprintf("spf=%s dmarc=%s dkim=%t", orMissing(out.SPF.Policy), orMissing(out.DMARC.Policy), out.DKIM.Found)
	if len(failures) > 0 {
		sort.Strings(failures)
		out.Message += "; lookup failed: " + strings.Join(failures, ", ")
	}
	return out
}

// txt returns the TXT strings of name with multi-string records joined.
func (c *AuthChecker) txt(ctx context.Context, name string) ([]string, error) {
	res, err := c.resolver.Query(ctx, name, "TXT")
	if err != nil {
		return nil, err
	}
	records := make([]string, 0, len(res.Records))
	for _, rec := range res.Records {
		records = append(records, strings.ReplaceAll(rec, `" "`, ""))
	}
	return records, nil
}

// parseSPF follows RFC 7208: more than one v=spf1 record is a permanent error.
func parseSPF(records []string) types.SPFResult {
	var spf []string
	for _, rec := range records {
		if strings.EqualFold(rec, "v=spf1") || hasPrefixFold(rec, "v=spf1 ") {
			spf = append(spf, rec)
		}
	}
	switch len(spf) {
	case 0:
		return types.SPFResult{}
	case 1:
	default:
		return types.SPFResult{Found: true, Record: spf[0]}
	}

	out := types.SPFResult{Found: true, Valid: true, Record: spf[0]}
	for _, term := range strings.Fields(spf[0])[1:] {
		term = strings.ToLower(term)
		switch {
		case strings.HasPrefix(term, "redirect="):
			if out.Policy == "" {
				out.Policy = "redirect"
			}
		case strings.TrimLeft(term, "+-~?") == "all":
			out.Policy = spfQualifier(term[0])
		}
	}
	if out.Policy == "" {
		// No terminal mechanism: the default result is neutral.
		out.Policy = "neutral"
	}
	return out
}

func spfQualifier(q byte) string {
	switch q {
	case '-':
		return "fail"
	case '~':
		return "softfail"
	case '?':
		return "neutral"
	default:
		return "pass"
	}
}

func parseDMARC(records []string) types.DMARCResult {
	for _, rec := range records {
		tags := tagList(rec)
		if !strings.EqualFold(tags["v"], "DMARC1") {
			continue
		}
		out := types.DMARCResult{Found: true, Record: rec, Policy: strings.ToLower(tags["p"])}
		switch out.Policy {
		case "none", "quarantine", "reject":
			out.Valid = true
		}
		return out
	}
	return types.DMARCResult{}
}

// tagList splits a DMARC or DKIM record such as "v=DMARC1; p=reject"
// into a tag map.
func tagList(rec string) map[string]string {
	tags := map[string]string{}
	for _, part := range strings.Split(rec, ";") {
		k, v, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		tags[strings.ToLower(strings.TrimSpace(k))] = strings.TrimSpace(v)
	}
	return tags
}

// hasDKIMKey reports a key record with a non-empty p= tag. An empty p=
// means the key was revoked.
func hasDKIMKey(rec string) bool {
	tags := tagList(rec)
	if v, ok := tags["v"]; ok && !strings.EqualFold(v, "DKIM1") {
		return false
	}
	return tags["p"] != ""
}

func authScore(a types.AuthenticationCheck) int {
	s := 0
	switch {
	case !a.SPF.Found:
	case !a.SPF.Valid:
		s += 5
	case a.SPF.Policy == "fail", a.SPF.Policy == "softfail":
		s += 35
	case a.SPF.Policy == "pass":
		s += 10
	default:
		s += 25
	}
	switch {
	case !a.DMARC.Valid:
	case a.DMARC.Policy == "reject":
		s += 40
	case a.DMARC.Policy == "quarantine":
		s += 35
	default:
		s += 20
	}
	if a.DKIM.Found {
		s += 25
	}
	return s
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}

func orMissing(s string) string {
	if s == "" {
		return "missing"
	}
	return s
}
