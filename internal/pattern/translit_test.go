package pattern_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/contactsift/contact-verifier/internal/pattern"
)

func TestTransliterate(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"plain ascii", "Smith", "smith"},
		{"accented latin", "José", "jose"},
		{"combining marks", "Müller", "muller"},
		{"eszett", "Großmann", "grossmann"},
		{"slashed o", "Sørensen", "sorensen"},
		{"ash ligature", "Kjær", "kjaer"},
		{"polish l", "Michałek", "michalek"},
		{"icelandic thorn", "Þór", "thor"},
		{"apostrophe dropped", "O'Brien", "obrien"},
		{"hyphen dropped", "Smith-Jones", "smithjones"},
		{"internal whitespace dropped", "van der Berg", "vanderberg"},
		{"surrounding whitespace trimmed", "  Smith  ", "smith"},
		{"digits dropped", "Smith3rd", "smithrd"},
		{"no latin letters at all", "Алексей", ""},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, pattern.Transliterate(tt.input))
		})
	}
}

func TestTransliterateDeterministic(t *testing.T) {
	in := "Ødegård-Müßig"
	first := pattern.Transliterate(in)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, pattern.Transliterate(in))
	}
}
