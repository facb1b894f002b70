package check

import (
	"context"

	"github.com/optimode/emailguard/internal/levenshtein"
	"github.com/optimode/emailguard/internal/parse"
	"github.com/optimode/emailguard/types"
)

// knownTypos maps common misspellings to the intended domain.
var knownTypos = map[string]string{
	"gamil.com":     "gmail.com",
	"gmai.com":      "gmail.com",
	"gmail.co":      "gmail.com",
	"gmail.cm":      "gmail.com",
	"gmail.con":     "gmail.com",
	"gmail.om":      "gmail.com",
	"gmaill.com":    "gmail.com",
	"gmal.com":      "gmail.com",
	"gmial.com":     "gmail.com",
	"gnail.com":     "gmail.com",
	"hotmai.com":    "hotmail.com",
	"hotmal.com":    "hotmail.com",
	"hotmial.com":   "hotmail.com",
	"hotmil.com":    "hotmail.com",
	"hotmail.co":    "hotmail.com",
	"hotmail.con":   "hotmail.com",
	"icloud.co":     "icloud.com",
	"iclod.com":     "icloud.com",
	"outlok.com":    "outlook.com",
	"outlook.co":    "outlook.com",
	"outlook.con":   "outlook.com",
	"yahho.com":     "yahoo.com",
	"yaho.com":      "yahoo.com",
	"yahoo.co":      "yahoo.com",
	"yahoo.con":     "yahoo.com",
	"yhoo.com":      "yahoo.com",
	"protonmal.com": "protonmail.com",
}

// popularDomains are the fuzzy-match targets, most popular first.
var popularDomains = []string{
	"gmail.com",
	"yahoo.com",
	"hotmail.com",
	"outlook.com",
	"icloud.com",
	"aol.com",
	"live.com",
	"msn.com",
	"protonmail.com",
	"gmx.com",
	"yandex.com",
	"mail.ru",
}

// TypoConfig is the typo checker configuration.
type TypoConfig struct {
	// MaxDistance bounds the Levenshtein fallback (default: 2).
	MaxDistance int
}

// TypoChecker suggests a corrected address for likely domain misspellings.
type TypoChecker struct {
	cfg TypoConfig
}

func NewTypoChecker(cfg TypoConfig) *TypoChecker {
	if cfg.MaxDistance <= 0 {
		cfg.MaxDistance = 2
	}
	return &TypoChecker{cfg: cfg}
}

func (c *TypoChecker) Check(_ context.Context, email parse.Email) types.TypoCheck {
	if !email.Valid {
		return types.TypoCheck{Skipped: true}
	}

	domain := email.DomainUnicode
	fixed, ok := knownTypos[domain]
	if !ok && !IsFreeProvider(email.Domain) {
		fixed, _, ok = levenshtein.Closest(domain, popularDomains, c.maxDistance(domain))
	}
	if !ok {
		return types.TypoCheck{}
	}

	email.Domain = fixed
	suggestion := email.Address()
	return types.TypoCheck{HasTypo: true, Suggestion: &suggestion}
}

// maxDistance tightens the bound for short domains, where two edits
// reach unrelated real domains.
func (c *TypoChecker) maxDistance(domain string) int {
	if len(domain) < 9 {
		return 1
	}
	return c.cfg.MaxDistance
}
