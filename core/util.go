package core

import (
	"strings"
	"time"
)

var NowFunc = time.Now // mockable

// Now returns the current time in UTC, truncated to the microsecond (the store's precision).
func Now() time.Time {
	return NowFunc().UTC().Truncate(time.Microsecond)
}

// CleanString trims all leading and trailing whitespace in `s` and optionally lowers it.
func CleanString(s string, lower ...bool) string {
	s = strings.TrimSpace(s)
	if len(lower) > 0 && lower[0] {
		return strings.ToLower(s)
	}
	return s
}

// SplitList splits `s` on any of `seps`, trims every item, drops empty ones and duplicates
// (keeping the first occurrence) and stops after `max` items when max > 0.
func SplitList(s, seps string, max int, transform ...func(string) string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool { return strings.ContainsRune(seps, r) })
	seen := make(map[string]struct{}, len(fields))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimSpace(f)
		for _, fn := range transform {
			f = fn(f)
		}
		if f == "" {
			continue
		}
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
		if max > 0 && len(out) == max {
			break
		}
	}
	return out
}

// SafeRedirectPath returns `next` when it is a local absolute path, `fallback` otherwise.
func SafeRedirectPath(next, fallback string) string {
	next = strings.TrimSpace(next)
	if next == "" ||
		!strings.HasPrefix(next, "/") ||
		strings.HasPrefix(next, "//") ||
		strings.Contains(next, "://") ||
		strings.ContainsAny(next, "\\\r\n") {
		return fallback
	}
	return next
}

// Truncate shortens `s` to at most n runes.
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
