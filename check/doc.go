// Package check contains the individual validation checks for emailguard.
// Every checker is independent: it takes a parsed address and returns its
// own result type from the types package. Network-backed checkers resolve
// through the Resolver interface and fail open on transient errors.
// These types can be used directly, but the recommended approach is
// to use the fluent builder API from the github.com/optimode/emailguard package.
package check

import (
	"context"

	"github.com/optimode/emailguard/internal/resolver"
)

// Resolver answers DNS queries. *resolver.Resolver implements it.
type Resolver interface {
	Query(ctx context.Context, domain, recordType string) (resolver.Result, error)
}
