// Package phonetic provides a pronunciation-aware similarity score for the
// correction engine's fuzzy pass.
//
// The score proceeds in two stages:
//
//  1. Phonetic gate: Double Metaphone codes are computed for the space-stripped
//     candidate and target. If any code overlaps, the pair is considered a
//     phonetic match.
//
//  2. Ranking: phonetic matches are scored with Jaro-Winkler similarity on the
//     space-stripped, lower-cased strings, which rewards the shared prefixes
//     typical of mis-segmented English medical terms ("thyroidnod ule").
//     Pairs without phonetic overlap (including all Hangul text, which has no
//     Metaphone encoding) fall back to the caller-supplied edit-distance score.
package phonetic

import (
	"strings"

	"github.com/antzucaro/matchr"
)

// Scorer is a string similarity in [0, 1].
type Scorer func(a, b string) float64

// Matcher scores candidate/target pairs. It is read-only after construction
// and safe for concurrent use.
type Matcher struct {
	fallback Scorer
}

// New returns a Matcher that uses fallback for pairs without phonetic overlap.
// fallback must not be nil.
func New(fallback Scorer) *Matcher {
	return &Matcher{fallback: fallback}
}

// Score returns the similarity of a and b. Both are compared case-insensitively.
func (m *Matcher) Score(a, b string) float64 {
	la, lb := strings.ToLower(a), strings.ToLower(b)
	ca, cb := strings.Join(strings.Fields(la), ""), strings.Join(strings.Fields(lb), "")
	if ca == "" || cb == "" {
		return m.fallback(la, lb)
	}
	if !codesOverlap(codes(ca), codes(cb)) {
		return m.fallback(la, lb)
	}
	return matchr.JaroWinkler(ca, cb, false)
}

// codes returns the non-empty Double Metaphone codes of s.
func codes(s string) []string {
	p, sec := matchr.DoubleMetaphone(s)
	out := make([]string, 0, 2)
	if p != "" {
		out = append(out, p)
	}
	if sec != "" && sec != p {
		out = append(out, sec)
	}
	return out
}

func codesOverlap(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}
