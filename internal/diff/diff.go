// Package diff computes the two directional differences between a fresh
// remote following-snapshot and the persisted following-state. Both
// functions are pure; identifiers are treated as sets, so result order
// is unspecified.
package diff

// Gained returns, per target present in current, the identifiers present
// in current but absent from previous. A target with no previous state
// contributes its entire current list (first-observation bootstrap).
// Targets present only in previous do not appear in the result.
func Gained(current, previous map[string][]string) map[string][]string {
	out := make(map[string][]string, len(current))
	for target, now := range current {
		if before, ok := previous[target]; ok {
			out[target] = subtract(now, before)
		} else {
			out[target] = now
		}
	}
	return out
}

// Lost is the symmetric direction: per target present in previous, the
// identifiers that disappeared from current. A target absent from
// current (e.g. its fetch failed and was dropped upstream) contributes
// its entire previous list.
func Lost(previous, current map[string][]string) map[string][]string {
	out := make(map[string][]string, len(previous))
	for target, before := range previous {
		if now, ok := current[target]; ok {
			out[target] = subtract(before, now)
		} else {
			out[target] = before
		}
	}
	return out
}

// subtract returns the elements of a not present in b, duplicates
// collapsed.
func subtract(a, b []string) []string {
	drop := make(map[string]struct{}, len(b))
	for _, v := range b {
		drop[v] = struct{}{}
	}
	out := make([]string, 0, len(a))
	seen := make(map[string]struct{}, len(a))
	for _, v := range a {
		if _, skip := drop[v]; skip {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
