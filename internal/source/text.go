package source

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var strict = bluemonday.StrictPolicy()

// Text strips any markup left in scraped text, unescapes entities and collapses
// whitespace, tabs included, to single spaces.
func Text(raw string) string {
	clean := html.UnescapeString(strict.Sanitize(raw))
	return strings.Join(strings.Fields(clean), " ")
}
