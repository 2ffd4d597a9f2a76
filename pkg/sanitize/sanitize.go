// Package sanitize strips markup from user supplied text before it is
// stored or broadcast.
package sanitize

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var strict = bluemonday.StrictPolicy()

// Text removes every HTML element from s and trims surrounding space.
// Entities produced by the policy are unescaped again because clients
// render message text as text, not HTML.
func Text(s string) string {
	return strings.TrimSpace(html.UnescapeString(strict.Sanitize(s)))
}
