package transcript

import (
	"fmt"
	"unicode/utf8"

	"github.com/antzucaro/matchr"

	"github.com/MrWong99/sonoscribe/internal/transcript/phonetic"
)

// SimilarityFunc scores two lower-cased strings in [0, 1], where 1 means
// identical.
type SimilarityFunc func(a, b string) float64

// IndelRatio returns 2·LCS(a, b) / (|a| + |b|) over runes: the normalised
// insertion/deletion similarity. Two empty strings score 1.
func IndelRatio(a, b string) float64 {
	total := utf8.RuneCountInString(a) + utf8.RuneCountInString(b)
	if total == 0 {
		return 1
	}
	return float64(2*matchr.LongestCommonSubsequence(a, b)) / float64(total)
}

// LevenshteinRatio returns 1 - lev(a, b) / max(|a|, |b|) over runes.
func LevenshteinRatio(a, b string) float64 {
	longest := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if longest == 0 {
		return 1
	}
	return 1 - float64(matchr.Levenshtein(a, b))/float64(longest)
}

// JaroWinkler returns the Jaro-Winkler similarity of a and b.
func JaroWinkler(a, b string) float64 {
	return matchr.JaroWinkler(a, b, false)
}

// Phonetic returns a SimilarityFunc that scores phonetically matching pairs
// with Jaro-Winkler and everything else with [IndelRatio].
func Phonetic() SimilarityFunc {
	return phonetic.New(IndelRatio).Score
}

// SimilarityByName resolves a configured similarity name. The empty string
// selects the default, "indel".
func SimilarityByName(name string) (SimilarityFunc, error) {
	switch name {
	case "", "indel":
		return IndelRatio, nil
	case "levenshtein":
		return LevenshteinRatio, nil
	case "jaro_winkler":
		return JaroWinkler, nil
	case "phonetic":
		return Phonetic(), nil
	default:
		return nil, fmt.Errorf("transcript: unknown similarity %q", name)
	}
}
