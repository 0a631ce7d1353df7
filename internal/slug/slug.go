// Package slug normalises free text into the lowercase codes used for entry
// categories and dictionary keys.
package slug

import (
	"regexp"
	"strings"
)

const maxLen = 40

var reSlug = regexp.MustCompile(`^[a-z0-9_]{2,40}$`)

// IsSlug reports whether s matches ^[a-z0-9_]{2,40}$.
func IsSlug(s string) bool { return reSlug.MatchString(s) }

// Slugify lowercases s, folds runs of other characters into a single '_',
// trims underscores at both ends and caps the result at 40 characters.
func Slugify(s string) string {
	var b strings.Builder
	pending := false
	for _, r := range strings.ToLower(s) {
		ok := (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
		if !ok {
			pending = b.Len() > 0
			continue
		}
		if pending {
			if b.Len()+1 >= maxLen {
				break
			}
			b.WriteByte('_')
			pending = false
		}
		b.WriteRune(r)
		if b.Len() >= maxLen {
			break
		}
	}
	return b.String()
}
