package check

import (
	"context"

	"github.com/optimode/emailguard/internal/disposable"
	"github.com/optimode/emailguard/internal/parse"
	"github.com/optimode/emailguard/types"
)

// DisposableChecker flags temporary mailbox providers.
type DisposableChecker struct {
	extra map[string]struct{}
}

// NewDisposableChecker creates a checker. Extra domains are matched
// in addition to the embedded list.
func NewDisposableChecker(extra ...string) *DisposableChecker {
	c := &DisposableChecker{extra: make(map[string]struct{}, len(extra))}
	for _, d := range extra {
		c.extra[parse.Normalize(d)] = struct{}{}
	}
	return c
}

func (c *DisposableChecker) Check(_ context.Context, email parse.Email) types.DisposableCheck {
	if !email.Valid {
		return types.DisposableCheck{Skipped: true, Message: "skipped: invalid email"}
	}
	if _, ok := c.extra[email.Domain]; ok {
		return types.DisposableCheck{IsDisposable: true, Message: "domain is on the custom disposable list"}
	}
	if reason, ok := disposable.Lookup(email.Domain); ok {
		return types.DisposableCheck{IsDisposable: true, Message: "disposable email provider (" + reason + ")"}
	}
	return types.DisposableCheck{Message: "not a disposable provider"}
}
