package check

import (
	"fmt"

	"github.com/optimode/emailguard/types"
)

// ReputationChecker scores the domain from the outcomes of the other
// checks. It makes no lookups of its own.
type ReputationChecker struct{}

func NewReputationChecker() *ReputationChecker {
	return &ReputationChecker{}
}

// Check starts at 100 and subtracts a penalty per signal. Authentication
// only counts when it was checked.
func (c *ReputationChecker) Check(checks types.Checks) types.ReputationCheck {
	if !checks.Syntax.Valid {
		return types.ReputationCheck{Risk: "high", Reasons: []string{"skipped: invalid syntax"}}
	}

	score := 100
	reasons := []string{}
	penalize := func(points int, reason string) {
		score -= points
		reasons = append(reasons, reason)
	}

	if n := len(checks.Blacklisted.Lists); n > 0 {
		penalize(min(30*n, 60), fmt.Sprintf("listed on %d blacklist(s)", n))
	}
	if checks.Disposable.IsDisposable {
		penalize(40, "disposable provider")
	}
	if !checks.MX.Valid && !checks.MX.Unknown {
		penalize(20, "no mail exchanger")
	}
	if a := checks.Authentication; a != nil && a.Checked {
		if !a.SPF.Valid {
			penalize(10, "no valid SPF record")
		}
		if !a.DMARC.Valid {
			penalize(10, "no DMARC policy")
		}
	}
	score = max(score, 0)

	return types.ReputationCheck{
		Checked: true,
		Score:   score,
		Risk:    reputationRisk(score),
		Reasons: reasons,
	}
}

func reputationRisk(score int) string {
	switch {
	case score >= 70:
		return "low"
	case score >= 40:
		return "medium"
	default:
		return "high"
	}
}
