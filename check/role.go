package check

import (
	"context"
	"strings"

	"github.com/optimode/emailguard/internal/parse"
	"github.com/optimode/emailguard/types"
)

// rolePrefixes are local parts that address a function rather than a person.
var rolePrefixes = []string{
	"abuse", "accounting", "accounts", "admin", "administrator", "billing",
	"contact", "customerservice", "dev", "devnull", "enquiries", "feedback",
	"finance", "hello", "help", "helpdesk", "hostmaster", "hr", "info",
	"inquiries", "it", "jobs", "legal", "mail", "mailer-daemon", "marketing",
	"media", "no-reply", "noc", "noreply", "office", "orders", "postmaster",
	"press", "privacy", "recruitment", "root", "sales", "security", "service",
	"staff", "support", "sysadmin", "team", "tech", "webmaster",
}

var roleSet = func() map[string]struct{} {
	m := make(map[string]struct{}, len(rolePrefixes))
	for _, r := range rolePrefixes {
		m[r] = struct{}{}
	}
	return m
}()

// RoleChecker flags role-based local parts such as admin@ or support@.
type RoleChecker struct{}

func NewRoleChecker() *RoleChecker {
	return &RoleChecker{}
}

func (c *RoleChecker) Check(_ context.Context, email parse.Email) types.RoleBasedCheck {
	if !email.Valid {
		return types.RoleBasedCheck{Skipped: true}
	}
	if role, ok := matchRole(email.LocalLower()); ok {
		return types.RoleBasedCheck{IsRoleBased: true, Role: &role}
	}
	return types.RoleBasedCheck{}
}

// matchRole tolerates trailing digits and a separator suffix,
// so "support2", "info.de" and "sales_team" all match.
func matchRole(local string) (string, bool) {
	if _, ok := roleSet[local]; ok {
		return local, true
	}
	base := strings.TrimRight(local, "0123456789")
	if _, ok := roleSet[base]; ok && base != "" {
		return base, true
	}
	if i := strings.IndexAny(local, "._"); i > 0 {
		head := strings.TrimRight(local[:i], "0123456789")
		if _, ok := roleSet[head]; ok {
			return head, true
		}
	}
	return "", false
}
