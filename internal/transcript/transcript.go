// Package transcript rewrites raw speech-to-text output into canonical
// medical vocabulary.
//
// Recognisers routinely mangle domain terms: transliterated abbreviations
// ("엘엔비" for "LNB"), split compounds ("thyroidnod ule") and inconsistent
// casing. The [Corrector] applies two passes over every transcript:
//
//  1. Direct replacement: every alias and canonical form of every term is
//     looked up case-insensitively, longest first, and its first occurrence
//     is replaced by the canonical form.
//
//  2. Fuzzy replacement: a greedy left-to-right window of up to three
//     whitespace tokens is scored against every canonical form and alias with
//     a normalised edit-distance ratio. Windows scoring at or above the
//     threshold are replaced by the best target's canonical form.
//
// Each [Correction] records which pass produced the substitution and its
// score, so callers can audit or display the changes.
//
// A Corrector is immutable after construction and safe for concurrent use.
// Dictionary reloads build a new Corrector and swap it in through a [Holder].
package transcript

// Well-known values of [Correction.Method].
const (
	MethodDirect = "direct"
	MethodFuzzy  = "fuzzy"
)

// Correction captures a single substitution made by the [Corrector].
type Correction struct {
	// From is the matched text. For direct matches it is the lower-cased table
	// key; for fuzzy matches it is the original token window.
	From string `json:"from"`

	// To is the canonical form written in its place.
	To string `json:"to"`

	// Score is 1.0 for direct matches and the similarity ratio for fuzzy ones.
	Score float64 `json:"score"`

	// Method is [MethodDirect] or [MethodFuzzy].
	Method string `json:"method"`
}

// Result is the output of [Corrector.Correct].
type Result struct {
	// Original is the text as received from the recogniser.
	Original string `json:"original"`

	// Corrected is the text with every substitution applied.
	Corrected string `json:"corrected"`

	// Corrections lists every substitution in the order it was applied. An
	// empty (non-nil) slice means no corrections were necessary.
	Corrections []Correction `json:"corrections"`
}

// Changed reports whether any correction was applied.
func (r Result) Changed() bool { return len(r.Corrections) > 0 }
