package utils

import (
	"html"
	"html/template"

	"github.com/microcosm-cc/bluemonday"
)

var (
	ugcPolicy   = bluemonday.UGCPolicy()
	plainPolicy = bluemonday.StrictPolicy()
)

// SanitizeText strips every tag and returns plain text. Entities escaped by
// the policy are decoded again since templates escape on output.
func SanitizeText(input string) string {
	return html.UnescapeString(plainPolicy.Sanitize(input))
}

// SafeHTML is the template func used to render stored post bodies as markup.
func SafeHTML(input string) template.HTML {
	return template.HTML(ugcPolicy.Sanitize(input)) // #nosec G203 -- sanitized above
}
