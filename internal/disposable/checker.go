// Package disposable recognises temporary mailbox providers from an embedded
// domain list and a small set of name patterns.
package disposable

import "strings"

// patterns are substrings that only appear in throwaway mailbox brands.
var patterns = []string{
	"10minute",
	"disposable",
	"guerrillamail",
	"mailinator",
	"tempmail",
	"temp-mail",
	"throwaway",
	"trashmail",
	"yopmail",
}

// Lookup reports whether domain is disposable. The returned reason names the
// listed domain or the pattern that matched.
func Lookup(domain string) (reason string, ok bool) {
	domain = strings.TrimSuffix(strings.ToLower(domain), ".")
	if domain == "" {
		return "", false
	}

	set := domains()
	for d := domain; ; {
		if _, ok := set[d]; ok {
			return d, true
		}
		i := strings.IndexByte(d, '.')
		if i < 0 || !strings.Contains(d[i+1:], ".") {
			break
		}
		d = d[i+1:]
	}

	for _, p := range patterns {
		if strings.Contains(domain, p) {
			return "pattern " + p, true
		}
	}
	return "", false
}

// IsDisposable returns whether the given domain is a known disposable domain.
func IsDisposable(domain string) bool {
	_, ok := Lookup(domain)
	return ok
}

// Len returns the number of listed domains.
func Len() int {
	return len(domains())
}
