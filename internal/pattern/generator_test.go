package pattern_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contactsift/contact-verifier/internal/core"
	"github.com/contactsift/contact-verifier/internal/pattern"
)

func addresses(cands []core.CandidateEmail) []string {
	out := make([]string, 0, len(cands))
	for _, c := range cands {
		out = append(out, c.Address)
	}
	return out
}

func TestGenerateFullCatalog(t *testing.T) {
	g := pattern.NewGenerator()
	cands := g.Generate(core.Person{FirstName: "John", LastName: "Smith"}, "example.com")

	assert.Equal(t, []string{
		"john.smith@example.com",
		"jsmith@example.com",
		"john@example.com",
		"john_smith@example.com",
		"j.smith@example.com",
		"johns@example.com",
		"smith@example.com",
	}, addresses(cands))

	// Priors descend with the catalog order.
	for i := 1; i < len(cands); i++ {
		assert.GreaterOrEqual(t, cands[i-1].PriorRank, cands[i].PriorRank)
	}
	assert.Equal(t, "first.last", cands[0].PatternID)
	assert.Equal(t, 1.0, cands[0].PriorRank)
}

func TestGenerateDeterministic(t *testing.T) {
	g := pattern.NewGenerator()
	person := core.Person{FirstName: "María", LastName: "García-López", Nickname: "Mari"}

	first := g.Generate(person, "example.org")
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, g.Generate(person, "example.org"))
	}
}

func TestGenerateTransliteratesComponents(t *testing.T) {
	g := pattern.NewGenerator()
	cands := g.Generate(core.Person{FirstName: "Jürgen", LastName: "Großmann"}, "example.de")

	require.NotEmpty(t, cands)
	assert.Equal(t, "jurgen.grossmann@example.de", cands[0].Address)
	for _, c := range cands {
		assert.Regexp(t, `^[a-z._]+@example\.de$`, c.Address)
	}
}

func TestGenerateDedupKeepsHighestPrior(t *testing.T) {
	g := pattern.NewGenerator()
	// first == last makes the "first" and "last" rules collide on lee@.
	cands := g.Generate(core.Person{FirstName: "Lee", LastName: "Lee"}, "example.com")

	var hits []core.CandidateEmail
	for _, c := range cands {
		if c.Address == "lee@example.com" {
			hits = append(hits, c)
		}
	}
	require.Len(t, hits, 1)
	assert.Equal(t, "first", hits[0].PatternID)
	assert.Equal(t, 0.8, hits[0].PriorRank)
}

func TestGenerateNicknameVariants(t *testing.T) {
	g := pattern.NewGenerator()
	cands := g.Generate(core.Person{FirstName: "Robert", LastName: "Smith", Nickname: "Bob"}, "example.com")

	byAddr := make(map[string]core.CandidateEmail)
	for _, c := range cands {
		byAddr[c.Address] = c
	}

	require.Contains(t, byAddr, "bob.smith@example.com")
	nick := byAddr["bob.smith@example.com"]
	assert.Equal(t, "nick:first.last", nick.PatternID)
	assert.InDelta(t, 0.85, nick.PriorRank, 1e-9)

	// The legal first name stays the better prior.
	assert.Greater(t, byAddr["robert.smith@example.com"].PriorRank, nick.PriorRank)
}

func TestGenerateNicknameSameAsFirstIsNotDoubled(t *testing.T) {
	g := pattern.NewGenerator()
	with := g.Generate(core.Person{FirstName: "Bob", LastName: "Smith", Nickname: "Bob"}, "example.com")
	without := g.Generate(core.Person{FirstName: "Bob", LastName: "Smith"}, "example.com")
	assert.Equal(t, without, with)
}

func TestGenerateMiddleInitialVariants(t *testing.T) {
	g := pattern.NewGenerator()
	cands := g.Generate(core.Person{FirstName: "John", MiddleInitial: "Quincy", LastName: "Adams"}, "example.com")

	byAddr := make(map[string]core.CandidateEmail)
	for _, c := range cands {
		byAddr[c.Address] = c
	}
	require.Contains(t, byAddr, "john.q.adams@example.com")
	assert.Equal(t, "first.m.last", byAddr["john.q.adams@example.com"].PatternID)
	require.Contains(t, byAddr, "jqadams@example.com")
	assert.Equal(t, "fmlast", byAddr["jqadams@example.com"].PatternID)
}

func TestGenerateDegenerateInputs(t *testing.T) {
	g := pattern.NewGenerator()

	t.Run("empty domain", func(t *testing.T) {
		assert.Nil(t, g.Generate(core.Person{FirstName: "John", LastName: "Smith"}, ""))
	})

	t.Run("empty person", func(t *testing.T) {
		assert.Nil(t, g.Generate(core.Person{}, "example.com"))
	})

	t.Run("name transliterates to nothing", func(t *testing.T) {
		assert.Nil(t, g.Generate(core.Person{FirstName: "Алексей", LastName: "Иванов"}, "example.com"))
	})

	t.Run("first name only", func(t *testing.T) {
		cands := g.Generate(core.Person{FirstName: "Madonna"}, "example.com")
		assert.Equal(t, []string{"madonna@example.com"}, addresses(cands))
	})

	t.Run("last name only", func(t *testing.T) {
		cands := g.Generate(core.Person{LastName: "Smith"}, "example.com")
		assert.Equal(t, []string{"smith@example.com"}, addresses(cands))
	})

	t.Run("single-initial first name only", func(t *testing.T) {
		assert.Nil(t, g.Generate(core.Person{FirstName: "J"}, "example.com"))
	})

	t.Run("single-letter last name only", func(t *testing.T) {
		assert.Nil(t, g.Generate(core.Person{LastName: "O"}, "example.com"))
	})
}

func TestGenerateSingleInitialFirstSkipsBareForm(t *testing.T) {
	g := pattern.NewGenerator()
	cands := g.Generate(core.Person{FirstName: "J", LastName: "Smith"}, "example.com")

	got := addresses(cands)
	assert.NotContains(t, got, "j@example.com")
	// Initial-based combined forms still apply.
	assert.Contains(t, got, "jsmith@example.com")
	assert.Contains(t, got, "j.smith@example.com")
	assert.Contains(t, got, "smith@example.com")
}
