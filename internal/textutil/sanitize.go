// Package textutil cleans free text customers and admins type into orders.
package textutil

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var strict = bluemonday.StrictPolicy()

// MaxNoteLength bounds special instructions and tracking notes.
const MaxNoteLength = 500

// Plain strips all markup from s, collapses whitespace and truncates to
// MaxNoteLength runes.
func Plain(s string) string {
	s = html.UnescapeString(strict.Sanitize(s))
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > MaxNoteLength {
		s = string(r[:MaxNoteLength])
	}
	return s
}
