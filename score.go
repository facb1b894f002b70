package emailguard

import "math"

// Weights are the points each check contributes to the score. The sum is
// normalised to 0..100, so only the ratios matter.
type Weights struct {
	Syntax     int `json:"syntax"`
	Domain     int `json:"domain"`
	MX         int `json:"mx"`
	Disposable int `json:"disposable"`
	RoleBased  int `json:"roleBased"`
	Typo       int `json:"typo"`
	Blacklist  int `json:"blacklist"`
}

// DefaultWeights returns the default score weights.
func DefaultWeights() Weights {
	return Weights{
		Syntax:     20,
		Domain:     20,
		MX:         25,
		Disposable: 15,
		RoleBased:  5,
		Typo:       10,
		Blacklist:  5,
	}
}

func (w Weights) total() int {
	return w.Syntax + w.Domain + w.MX + w.Disposable + w.RoleBased + w.Typo + w.Blacklist
}

func (w Weights) valid() bool {
	for _, x := range []int{w.Syntax, w.Domain, w.MX, w.Disposable, w.RoleBased, w.Typo, w.Blacklist} {
		if x < 0 {
			return false
		}
	}
	return w.total() > 0
}

// Score thresholds shared by deliverability and risk.
const (
	highScore = 80
	midScore  = 50
)

// score is a pure function of the checks.
func score(c Checks, w Weights) int {
	if !c.Syntax.Valid {
		return 0
	}
	earned := w.Syntax
	if c.Domain.Valid && c.Domain.Exists {
		earned += w.Domain
	}
	if c.MX.Valid {
		earned += w.MX
	}
	if !c.Disposable.IsDisposable {
		earned += w.Disposable
	}
	if !c.RoleBased.IsRoleBased {
		earned += w.RoleBased
	}
	if !c.Typo.HasTypo {
		earned += w.Typo
	}
	if !c.Blacklisted.IsBlacklisted {
		earned += w.Blacklist
	}
	return int(math.Round(100 * float64(earned) / float64(w.total())))
}

// classify derives deliverability and risk from the score, then applies the
// hard overrides in order of precedence.
func classify(c Checks, s int) (Deliverability, Risk) {
	if !c.Syntax.Valid {
		return Undeliverable, RiskHigh
	}

	d, r := Undeliverable, RiskHigh
	switch {
	case s >= highScore:
		d, r = Deliverable, RiskLow
	case s >= midScore:
		d, r = Risky, RiskMedium
	}

	switch {
	case c.MX.Unknown:
		d, r = Unknown, r.atLeast(RiskMedium)
	case !c.MX.Valid:
		d, r = Undeliverable, RiskHigh
	}

	if c.Disposable.IsDisposable || c.Blacklisted.IsBlacklisted {
		if d == Deliverable {
			d = Risky
		}
		r = r.atLeast(RiskMedium)
	}
	if c.CatchAll.IsCatchAll && d == Deliverable {
		d = Risky
	}
	if c.Reputation != nil && c.Reputation.Risk == string(RiskHigh) {
		r = r.atLeast(RiskMedium)
	}

	if c.SMTP != nil && c.SMTP.Exists != nil && !*c.SMTP.Exists {
		d, r = Undeliverable, RiskHigh
	}
	return d, r
}
