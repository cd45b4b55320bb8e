package sanitize

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// StrictPolicy removes all HTML tags and attributes.
var StrictPolicy = bluemonday.StrictPolicy()

// Text strips markup from user input and returns plain text. Entities
// escaped by the policy are decoded again because output is escaped at
// render time (html/template, JSON).
// Use for: city names, competition names, notes, ultimatum messages.
func Text(input string) string {
	return strings.TrimSpace(html.UnescapeString(StrictPolicy.Sanitize(input)))
}

// OptionalText sanitizes a pointer value, returning nil when the result is empty.
func OptionalText(input *string) *string {
	if input == nil {
		return nil
	}
	clean := Text(*input)
	if clean == "" {
		return nil
	}
	return &clean
}

// Lines sanitizes multi-line input line by line and drops trailing blank
// lines. Used for notes, where line breaks carry meaning.
func Lines(input string) string {
	lines := strings.Split(strings.ReplaceAll(input, "\r\n", "\n"), "\n")
	for i, line := range lines {
		lines[i] = Text(line)
	}
	return strings.TrimRight(strings.Join(lines, "\n"), "\n")
}
