package template

import "strings"

var htmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&#39;",
)

// Escape HTML-escapes s. Escaping is safe to repeat: already-escaped text
// never reduces back to unescaped special characters.
func Escape(s string) string {
	return htmlEscaper.Replace(s)
}
