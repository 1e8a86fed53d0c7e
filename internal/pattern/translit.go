package pattern

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// stripMarks decomposes accented characters and removes the combining
// marks, turning "é" into "e" and "ñ" into "n".
var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// foldRunes covers letters that NFD cannot decompose into a base letter
// plus marks.
var foldRunes = map[rune]string{
	'ø': "o",
	'æ': "ae",
	'œ': "oe",
	'ß': "ss",
	'ł': "l",
	'đ': "d",
	'ð': "d",
	'þ': "th",
}

// Transliterate maps a name component to the lowercase ASCII letters used
// in email local parts. Digits, punctuation and whitespace are dropped.
// The mapping is deterministic: the same input always yields the same
// output, which keeps candidate generation reproducible.
func Transliterate(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ""
	}

	stripped, _, err := transform.String(stripMarks, s)
	if err == nil {
		s = stripped
	}

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= 'a' && r <= 'z' {
			b.WriteRune(r)
			continue
		}
		if folded, ok := foldRunes[r]; ok {
			b.WriteString(folded)
		}
	}
	return b.String()
}
