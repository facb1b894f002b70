// Package levenshtein measures edit distance between domain names.
package levenshtein

// Distance is the Levenshtein edit distance between s and t, counted in runes.
func Distance(s, t string) int {
	d, _ := Within(s, t, -1)
	return d
}

// Within computes the distance but gives up once it must exceed limit,
// returning ok=false. A negative limit means no bound.
func Within(s, t string, limit int) (dist int, ok bool) {
	a, b := []rune(s), []rune(t)
	if len(a) > len(b) {
		a, b = b, a
	}
	if limit >= 0 && len(b)-len(a) > limit {
		return limit + 1, false
	}
	if len(a) == 0 {
		return len(b), true
	}

	// row[i] is the distance between a[:i] and the prefix of b seen so far.
	row := make([]int, len(a)+1)
	for i := range row {
		row[i] = i
	}
	for j, bc := range b {
		diag := row[0]
		row[0] = j + 1
		best := row[0]
		for i, ac := range a {
			sub := diag
			if ac != bc {
				sub++
			}
			diag = row[i+1]
			row[i+1] = min(row[i]+1, row[i+1]+1, sub)
			best = min(best, row[i+1])
		}
		if limit >= 0 && best > limit {
			return limit + 1, false
		}
	}

	d := row[len(a)]
	return d, limit < 0 || d <= limit
}

// Closest returns the candidate nearest to s within maxDist edits.
// Exact matches are not suggestions and yield ok=false. Ties keep the
// earlier candidate, so callers order candidates by popularity.
func Closest(s string, candidates []string, maxDist int) (best string, dist int, ok bool) {
	for _, c := range candidates {
		if c == s {
			return "", 0, false
		}
	}
	limit := maxDist
	for _, c := range candidates {
		if d, within := Within(s, c, limit); within && (!ok || d < dist) {
			best, dist, ok = c, d, true
			limit = d - 1
			if limit < 0 {
				break
			}
		}
	}
	return best, dist, ok
}
