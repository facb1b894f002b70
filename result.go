package emailguard

import (
	"slices"
	"time"
)

// Deliverability is the verdict on whether mail to the address would arrive.
type Deliverability string

const (
	Deliverable   Deliverability = "deliverable"
	Risky         Deliverability = "risky"
	Undeliverable Deliverability = "undeliverable"
	Unknown       Deliverability = "unknown"
)

// Risk is the sender-side risk of mailing the address.
type Risk string

const (
	RiskLow    Risk = "low"
	RiskMedium Risk = "medium"
	RiskHigh   Risk = "high"
)

var riskRank = map[Risk]int{RiskLow: 0, RiskMedium: 1, RiskHigh: 2}

// atLeast returns the higher of r and floor.
func (r Risk) atLeast(floor Risk) Risk {
	if riskRank[r] < riskRank[floor] {
		return floor
	}
	return r
}

// Result is the full outcome of an email validation.
// Valid is true when the address is deliverable or risky.
type Result struct {
	Email          string         `json:"email"`
	Valid          bool           `json:"valid"`
	Score          int            `json:"score"`
	Checks         Checks         `json:"checks"`
	Deliverability Deliverability `json:"deliverability"`
	Risk           Risk           `json:"risk"`
	Suggestions    []string       `json:"suggestions"`
	ValidatedAt    time.Time      `json:"validatedAt"`
}

// forCaller returns a copy of a cached result that shares no memory with
// it, reporting the address as this caller spelled it.
func (r Result) forCaller(email string) Result {
	r.Email = email
	r.Suggestions = slices.Clone(r.Suggestions)

	c := &r.Checks
	c.MX.Records = slices.Clone(c.MX.Records)
	c.MX.Priority = slices.Clone(c.MX.Priority)
	c.Blacklisted.Lists = slices.Clone(c.Blacklisted.Lists)
	c.RoleBased.Role = clonePtr(c.RoleBased.Role)
	c.FreeProvider.Provider = clonePtr(c.FreeProvider.Provider)
	c.Typo.Suggestion = clonePtr(c.Typo.Suggestion)
	if c.SMTP != nil {
		smtp := *c.SMTP
		smtp.Exists = clonePtr(smtp.Exists)
		c.SMTP = &smtp
	}
	if c.Authentication != nil {
		auth := *c.Authentication
		auth.DKIM.Selectors = slices.Clone(auth.DKIM.Selectors)
		c.Authentication = &auth
	}
	if c.Reputation != nil {
		rep := *c.Reputation
		rep.Reasons = slices.Clone(rep.Reasons)
		c.Reputation = &rep
	}
	return r
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// BulkMetadata describes a ValidateBulk run.
type BulkMetadata struct {
	Total          int           `json:"total"`
	Completed      int           `json:"completed"`
	TimedOut       bool          `json:"timedOut"`
	ProcessingTime time.Duration `json:"processingTime"`
}

// BulkResult holds the completed results in input order.
type BulkResult struct {
	Results  []Result     `json:"results"`
	Metadata BulkMetadata `json:"metadata"`
}

// Summary counts results per deliverability verdict.
type Summary struct {
	Total   int `json:"total"`
	Valid   int `json:"valid"`
	Invalid int `json:"invalid"`
	Risky   int `json:"risky"`
	Unknown int `json:"unknown"`
}

// Summarize tallies results: deliverable counts as valid, undeliverable as invalid.
func Summarize(results []Result) Summary {
	s := Summary{Total: len(results)}
	for _, r := range results {
		switch r.Deliverability {
		case Deliverable:
			s.Valid++
		case Risky:
			s.Risky++
		case Undeliverable:
			s.Invalid++
		default:
			s.Unknown++
		}
	}
	return s
}
