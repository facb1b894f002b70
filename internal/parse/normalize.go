package parse

import "strings"

// Normalize returns the canonical form used for cache and dedup keys:
// surrounding whitespace trimmed and lower-cased. It is idempotent.
func Normalize(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// CleanList normalizes emails, drops empty entries and removes duplicates
// while keeping first-seen order. It returns the cleaned list and the
// number of duplicates removed.
func CleanList(emails []string) ([]string, int) {
	seen := make(map[string]struct{}, len(emails))
	out := make([]string, 0, len(emails))
	dups := 0
	for _, e := range emails {
		n := Normalize(e)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			dups++
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out, dups
}
