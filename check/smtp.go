package check

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/optimode/emailguard/internal/circuitbreaker"
	"github.com/optimode/emailguard/internal/parse"
	"github.com/optimode/emailguard/internal/smtppool"
	"github.com/optimode/emailguard/types"
)

// Prober verifies a mailbox against the domain's mail exchangers.
// mxHosts are ordered by preference. Implementations never send mail.
type Prober interface {
	Probe(ctx context.Context, email parse.Email, mxHosts []string) types.SMTPCheck
}

// RCPTProber runs RCPT TO transactions against one MX host.
// *smtppool.Pool implements it.
type RCPTProber interface {
	Probe(ctx context.Context, mxHost string, rcpts ...string) ([]smtppool.Reply, error)
}

// SMTPConfig is the SMTP checker configuration.
type SMTPConfig struct {
	MaxMXHosts int
	// DetectCatchAll adds a RCPT TO for a random local part in the same
	// transaction. Acceptance of both marks the domain catch-all.
	DetectCatchAll bool
}

// SMTPChecker performs SMTP RCPT TO probes to verify email existence.
// Each MX host is guarded by its own circuit breaker ("smtp:<host>").
type SMTPChecker struct {
	cfg      SMTPConfig
	pool     RCPTProber
	breakers *circuitbreaker.Registry
}

// NewSMTPChecker creates an SMTP checker on top of a connection pool.
// breakers may be nil.
func NewSMTPChecker(cfg SMTPConfig, pool RCPTProber, breakers *circuitbreaker.Registry) *SMTPChecker {
	if cfg.MaxMXHosts <= 0 {
		cfg.MaxMXHosts = 2
	}
	return &SMTPChecker{cfg: cfg, pool: pool, breakers: breakers}
}

func (c *SMTPChecker) Probe(ctx context.Context, email parse.Email, mxHosts []string) types.SMTPCheck {
	if !email.Valid {
		return types.SMTPCheck{Message: "skipped: invalid email"}
	}
	if len(mxHosts) == 0 {
		return types.SMTPCheck{Message: "skipped: no MX records"}
	}

	rcpts := []string{email.Address()}
	if c.cfg.DetectCatchAll {
		rcpts = append(rcpts, randomLocalPart()+"@"+email.Domain)
	}

	maxHosts := min(c.cfg.MaxMXHosts, len(mxHosts))

	var lastErr error
	for _, host := range mxHosts[:maxHosts] {
		if err := ctx.Err(); err != nil {
			return types.SMTPCheck{Checked: true, Message: "context cancelled"}
		}

		replies, err := c.probeHost(ctx, host, rcpts)
		if err != nil {
			lastErr = err
			continue
		}

		result := interpret(replies)
		result.MXHost = host
		if result.Exists == nil && !result.Greylisted {
			// 4xx other than greylisting: try the next exchanger.
			lastErr = fmt.Errorf("temporary failure %d", result.SMTPCode)
			continue
		}
		return result
	}

	return types.SMTPCheck{
		Checked: true,
		Message: fmt.Sprintf("SMTP probe failed on all MX hosts: %v", lastErr),
	}
}

func (c *SMTPChecker) probeHost(ctx context.Context, host string, rcpts []string) ([]smtppool.Reply, error) {
	if c.breakers == nil {
		return c.pool.Probe(ctx, host, rcpts...)
	}
	return circuitbreaker.Execute(ctx, c.breakers.Get("smtp:"+host), func(ctx context.Context) ([]smtppool.Reply, error) {
		return c.pool.Probe(ctx, host, rcpts...)
	})
}

// interpret maps RCPT replies to a verdict. 2xx means the mailbox exists,
// 5xx that it does not, 450/451 is greylisting and leaves Exists unset.
func interpret(replies []smtppool.Reply) types.SMTPCheck {
	r := replies[0]
	out := types.SMTPCheck{Checked: true, SMTPCode: r.Code}

	switch {
	case r.Code >= 200 && r.Code < 300:
		exists := true
		out.Exists = &exists
		out.Message = "RCPT TO accepted"
		if len(replies) > 1 && replies[1].Code >= 200 && replies[1].Code < 300 {
			out.CatchAll = true
			out.Message = "RCPT TO accepted, domain accepts any recipient"
		}
	case r.Code >= 500:
		exists := false
		out.Exists = &exists
		out.Message = "RCPT rejected: " + r.Message
	case r.Code == 450 || r.Code == 451:
		out.Greylisted = true
		out.Message = "greylisted: " + r.Message
	default:
		out.Message = "temporary failure: " + r.Message
	}
	return out
}

func randomLocalPart() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return "eg-probe-" + hex.EncodeToString(b)
}

