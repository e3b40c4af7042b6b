package telegramutil

import "strings"

// Telegram MarkdownV2 reserves these characters; every occurrence in
// free-form text must be backslash-escaped or sendMessage rejects the
// payload with a parse error.
var markdownV2Escapes = map[byte]bool{
	'_': true,
	'*': true,
	'[': true,
	']': true,
	'(': true,
	')': true,
	'~': true,
	'`': true,
	'>': true,
	'#': true,
	'+': true,
	'-': true,
	'=': true,
	'|': true,
	'{': true,
	'}': true,
	'.': true,
	'!': true,
}

// EscapeMarkdownV2 prefixes each reserved MarkdownV2 character with a
// backslash. It is not idempotent: escaping already-escaped text
// doubles the backslashes, so callers must escape exactly once.
func EscapeMarkdownV2(text string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}
	var b strings.Builder
	b.Grow(len(text) + 8)
	for i := 0; i < len(text); i++ {
		ch := text[i]
		if markdownV2Escapes[ch] {
			b.WriteByte('\\')
		}
		b.WriteByte(ch)
	}
	return b.String()
}
