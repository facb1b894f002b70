package check

import (
	"context"

	"github.com/miekg/dns"

	"github.com/optimode/emailguard/internal/parse"
	"github.com/optimode/emailguard/types"
)

// DomainChecker validates the domain format and whether the domain resolves.
type DomainChecker struct {
	resolver Resolver
}

func NewDomainChecker(r Resolver) *DomainChecker {
	return &DomainChecker{resolver: r}
}

func (c *DomainChecker) Check(ctx context.Context, email parse.Email) types.DomainCheck {
	if !email.Valid {
		return types.DomainCheck{Skipped: true, Message: "skipped: invalid email"}
	}

	if msg := domainFormatError(email); msg != "" {
		return types.DomainCheck{Valid: false, Message: msg}
	}

	res, err := c.resolver.Query(ctx, email.Domain, "A")
	if err != nil {
		return types.DomainCheck{
			Valid:   true,
			Exists:  false,
			Message: lookupFailure("domain lookup failed", err),
		}
	}
	if !res.Success {
		return types.DomainCheck{Valid: true, Exists: false, Message: "domain has no address records"}
	}
	return types.DomainCheck{Valid: true, Exists: true, Message: "domain ok"}
}

// domainFormatError returns why the domain cannot receive mail, or "".
func domainFormatError(email parse.Email) string {
	if email.IsLiteral() {
		return "IP address literals are not accepted"
	}
	if len(email.Domain) > 253 {
		return "domain exceeds 253 characters"
	}
	if _, ok := dns.IsDomainName(email.Domain); !ok {
		return "domain is not a valid DNS name"
	}
	for _, rule := range []func(parse.Email) string{domainLabels, numericTLD} {
		if msg := rule(email); msg != "" {
			return msg
		}
	}
	return ""
}
