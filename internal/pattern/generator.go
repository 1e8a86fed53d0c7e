// Package pattern generates ranked candidate email addresses from a
// person's name and a validated mail domain. Generation is a pure function
// of its inputs: no network access, deterministic output ordering.
package pattern

import (
	"sort"

	"github.com/contactsift/contact-verifier/internal/core"
)

// rule is one address-form template. rank is the empirically observed
// prevalence of the form, used as the candidate's prior.
type rule struct {
	id        string
	rank      float64
	needsLast bool
	build     func(first, last string) string
}

// The catalog is fixed and ordered by prevalence. firstInitial-based rules
// are skipped for empty first names by the needsFirst guard in apply.
var catalog = []rule{
	{"first.last", 1.00, true, func(f, l string) string { return f + "." + l }},
	{"flast", 0.90, true, func(f, l string) string { return f[:1] + l }},
	{"first", 0.80, false, func(f, _ string) string { return f }},
	{"first_last", 0.70, true, func(f, l string) string { return f + "_" + l }},
	{"f.last", 0.60, true, func(f, l string) string { return f[:1] + "." + l }},
	{"firstl", 0.50, true, func(f, l string) string { return f + l[:1] }},
	{"last", 0.40, true, func(_, l string) string { return l }},
}

// nicknameDiscount reduces the prior of forms built from a nickname
// instead of the legal first name.
const nicknameDiscount = 0.85

// middle-initial variants are rare but cheap to check.
const (
	middleDottedRank  = 0.35
	middleCompactRank = 0.30
)

// Generator implements core.PatternGenerator.
type Generator struct{}

// NewGenerator creates a pattern generator.
func NewGenerator() *Generator {
	return &Generator{}
}

// Generate returns the ranked, deduplicated candidate addresses for the
// person at the domain. Addresses that coincide across rules keep the
// highest-ranked rule's prior. The sequence is finite and identical for
// identical inputs.
func (g *Generator) Generate(person core.Person, domain string) []core.CandidateEmail {
	first := Transliterate(person.FirstName)
	last := Transliterate(person.LastName)
	nick := Transliterate(person.Nickname)
	middle := Transliterate(person.MiddleInitial)

	if domain == "" || (first == "" && last == "") {
		return nil
	}

	var out []core.CandidateEmail
	seen := make(map[string]float64)

	add := func(local, patternID string, rank float64) {
		if local == "" {
			return
		}
		addr := local + "@" + domain
		if prev, ok := seen[addr]; ok && prev >= rank {
			return
		}
		if _, ok := seen[addr]; ok {
			// Coincided with a lower-ranked form: keep the better prior.
			for i := range out {
				if out[i].Address == addr {
					out[i].PriorRank = rank
					out[i].PatternID = patternID
					break
				}
			}
			seen[addr] = rank
			return
		}
		seen[addr] = rank
		out = append(out, core.CandidateEmail{Address: addr, PatternID: patternID, PriorRank: rank})
	}

	applyCatalog(add, first, last, 1.0, "")
	if nick != "" && nick != first {
		applyCatalog(add, nick, last, nicknameDiscount, "nick:")
	}
	if middle != "" && first != "" && last != "" {
		add(first+"."+middle[:1]+"."+last, "first.m.last", middleDottedRank)
		add(first[:1]+middle[:1]+last, "fmlast", middleCompactRank)
	}

	// Deterministic ordering: best prior first, ties by address.
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].PriorRank != out[j].PriorRank {
			return out[i].PriorRank > out[j].PriorRank
		}
		return out[i].Address < out[j].Address
	})

	return out
}

// applyCatalog runs every catalog rule whose inputs are present.
func applyCatalog(add func(local, patternID string, rank float64), first, last string, discount float64, idPrefix string) {
	for _, r := range catalog {
		if r.needsLast && last == "" {
			continue
		}
		needsFirst := r.id != "last"
		if needsFirst && first == "" {
			continue
		}
		// A lone initial is not a plausible mailbox on its own.
		if (r.id == "first" && len(first) < 2) || (r.id == "last" && len(last) < 2) {
			continue
		}
		add(r.build(first, last), idPrefix+r.id, r.rank*discount)
	}
}
