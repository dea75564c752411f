package common

import "strings"

// HasAny reports whether s contains any of the substrings.
// Empty substrings are ignored.
func HasAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if sub != "" && strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// SplitList splits a comma separated value, trimming blanks and dropping
// empty items.
func SplitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
