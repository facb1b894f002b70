// Package emailguard assesses whether an email address is real, reachable
// and safe to send to, without sending mail. It runs a pipeline of
// independent checks (syntax, domain, MX, disposable, role, free provider,
// typo, DNS blacklists, catch-all, plus optional SMTP probe, sender
// authentication and domain reputation) over a fault-tolerant
// DNS-over-HTTPS resolver and folds them into a score, a deliverability
// verdict and a risk level.
//
// Basic usage:
//
//	result, err := emailguard.New().Validate(ctx, "user@example.com")
//
// With SMTP probing available per call:
//
//	v := emailguard.New().
//	    WithSMTP(emailguard.SMTPOptions{
//	        HeloDomain: "myapp.com",
//	        MailFrom:   "verify@myapp.com",
//	    })
//	defer v.Close()
//	result, err := v.Validate(ctx, "user@example.com", emailguard.CheckOptions{SMTP: true})
package emailguard

import (
	"github.com/optimode/emailguard/check"
	"github.com/optimode/emailguard/internal/cache"
	"github.com/optimode/emailguard/internal/resolver"
	"github.com/optimode/emailguard/internal/smtppool"
	"github.com/optimode/emailguard/types"
)

// Re-exports so that consumers don't need to import the types package directly.
type (
	Checks              = types.Checks
	SyntaxCheck         = types.SyntaxCheck
	DomainCheck         = types.DomainCheck
	MXCheck             = types.MXCheck
	DisposableCheck     = types.DisposableCheck
	RoleBasedCheck      = types.RoleBasedCheck
	FreeProviderCheck   = types.FreeProviderCheck
	TypoCheck           = types.TypoCheck
	BlacklistCheck      = types.BlacklistCheck
	CatchAllCheck       = types.CatchAllCheck
	SMTPCheck           = types.SMTPCheck
	AuthenticationCheck = types.AuthenticationCheck
	ReputationCheck     = types.ReputationCheck
)

// Resolver answers DNS queries for the checks. *resolver.Resolver, the
// DNS-over-HTTPS client with provider failover, is the default.
type Resolver = check.Resolver

// Prober performs the optional SMTP mailbox probe.
type Prober = check.Prober

// DNSProvider is one DNS-over-HTTPS endpoint.
type DNSProvider = resolver.Provider

// CacheStats reports result cache occupancy and hit rate.
type CacheStats = cache.Stats

// SMTPPoolStats reports pooled SMTP connections.
type SMTPPoolStats = smtppool.Stats
