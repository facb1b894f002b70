package check

import (
	"context"
	"strings"

	"github.com/optimode/emailguard/internal/parse"
	"github.com/optimode/emailguard/types"
)

// knownCatchAll lists alias services that accept any local part, including
// on per-user subdomains.
var knownCatchAll = map[string]struct{}{
	"33mail.com":      {},
	"addy.io":         {},
	"anonaddy.com":    {},
	"anonaddy.me":     {},
	"mailgun.org":     {},
	"spamgourmet.com": {},
}

// catchAllLabels are domain labels used by forwarding and alias services.
var catchAllLabels = []string{
	"catchall",
	"catch-all",
	"forward",
	"relay",
}

// CatchAllChecker applies the static catch-all heuristic. A live probe
// result, when present, replaces it in the orchestrator.
type CatchAllChecker struct{}

func NewCatchAllChecker() *CatchAllChecker {
	return &CatchAllChecker{}
}

func (c *CatchAllChecker) Check(_ context.Context, email parse.Email) types.CatchAllCheck {
	if !email.Valid {
		return types.CatchAllCheck{Skipped: true}
	}
	for d := email.Domain; d != ""; {
		if _, ok := knownCatchAll[d]; ok {
			return types.CatchAllCheck{IsCatchAll: true, Reason: "known catch-all domain"}
		}
		i := strings.IndexByte(d, '.')
		if i < 0 {
			break
		}
		d = d[i+1:]
	}
	for _, label := range strings.Split(email.Domain, ".") {
		for _, p := range catchAllLabels {
			if strings.Contains(label, p) {
				return types.CatchAllCheck{IsCatchAll: true, Reason: "domain name pattern " + p}
			}
		}
	}
	return types.CatchAllCheck{}
}
