package check

import (
	"context"
	"errors"
	"fmt"

	"github.com/optimode/emailguard/internal/circuitbreaker"
	"github.com/optimode/emailguard/internal/parse"
	"github.com/optimode/emailguard/internal/resolver"
	"github.com/optimode/emailguard/types"
)

// MXConfig is the MX checker configuration.
type MXConfig struct {
	// FallbackToA accepts an A record when the domain has no MX (RFC 5321 implicit MX).
	FallbackToA bool
}

// MXChecker verifies the existence of MX records.
type MXChecker struct {
	cfg      MXConfig
	resolver Resolver
}

func NewMXChecker(cfg MXConfig, r Resolver) *MXChecker {
	return &MXChecker{cfg: cfg, resolver: r}
}

func (c *MXChecker) Check(ctx context.Context, email parse.Email) types.MXCheck {
	if !email.Valid {
		return types.MXCheck{Skipped: true, Records: []string{}, Message: "skipped: invalid email"}
	}

	res, err := c.resolver.Query(ctx, email.Domain, "MX")
	if err != nil {
		return types.MXCheck{
			Records: []string{},
			Unknown: true,
			Message: lookupFailure("MX lookup failed", err),
		}
	}

	records := resolver.ParseMX(res.Records)
	if len(records) == 0 {
		if c.cfg.FallbackToA {
			if a, aErr := c.resolver.Query(ctx, email.Domain, "A"); aErr == nil && a.Success {
				return types.MXCheck{
					Valid:    true,
					Records:  []string{email.Domain},
					Priority: []int{0},
					Message:  "no MX record, but A record found (fallback)",
				}
			}
		}
		return types.MXCheck{Records: []string{}, Message: "no MX records found"}
	}

	out := types.MXCheck{
		Valid:    true,
		Records:  make([]string, len(records)),
		Priority: make([]int, len(records)),
		Message:  fmt.Sprintf("%d MX record(s) found", len(records)),
	}
	for i, mx := range records {
		out.Records[i] = mx.Host
		out.Priority[i] = int(mx.Pref)
	}
	return out
}

// lookupFailure renders a transient resolver error for a check message.
func lookupFailure(prefix string, err error) string {
	var openErr *circuitbreaker.OpenError
	var exhausted *resolver.ExhaustedError
	switch {
	case errors.As(err, &openErr):
		return prefix + ": dependency temporarily disabled"
	case errors.As(err, &exhausted):
		return prefix + ": all DNS providers failed"
	default:
		return fmt.Sprintf("%s: %v", prefix, err)
	}
}
