package transcript

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/MrWong99/sonoscribe/internal/dictionary"
)

const (
	// DefaultThreshold is the minimum fuzzy similarity that triggers a
	// replacement.
	DefaultThreshold = 0.86

	defaultMaxWindow       = 3
	defaultMinCandidateLen = 4
)

// Option is a functional option for configuring a [Corrector].
type Option func(*Corrector)

// WithThreshold sets the minimum fuzzy similarity (inclusive) required for a
// replacement. Default: 0.86.
func WithThreshold(threshold float64) Option {
	return func(c *Corrector) { c.threshold = threshold }
}

// WithMaxWindow sets the largest number of tokens considered as one fuzzy
// candidate. Default: 3.
func WithMaxWindow(n int) Option {
	return func(c *Corrector) { c.maxWindow = n }
}

// WithMinCandidateLen sets the minimum candidate length in runes (spaces
// included). Shorter candidates are never fuzzy-matched. Default: 4.
func WithMinCandidateLen(n int) Option {
	return func(c *Corrector) { c.minCandidateLen = n }
}

// WithSimilarity replaces the fuzzy similarity function. Default: [IndelRatio].
func WithSimilarity(fn SimilarityFunc) Option {
	return func(c *Corrector) {
		if fn != nil {
			c.similarity = fn
		}
	}
}

// directEntry is one row of the direct replacement table.
type directEntry struct {
	key       string // lower-cased alias or canonical form
	canonical string
}

// target is one fuzzy comparison target.
type target struct {
	lower     string
	canonical string
}

// Corrector rewrites transcripts against a term dictionary. Build one with
// [NewCorrector]; it is immutable and safe for concurrent use.
type Corrector struct {
	threshold       float64
	maxWindow       int
	minCandidateLen int
	similarity      SimilarityFunc

	// direct is ordered by descending key length in runes, ties in load order.
	direct    []directEntry
	directMap map[string]string

	// targets lists every canonical form and alias in load order, canonical
	// before its aliases. Iteration order decides fuzzy tie-breaks.
	targets []target

	terms int
}

// NewCorrector indexes dict. It fails, without returning a partial index, if
// dict is nil or invalid or if an option is out of range.
func NewCorrector(dict *dictionary.Dictionary, opts ...Option) (*Corrector, error) {
	if dict == nil {
		return nil, errors.New("transcript: dictionary must not be nil")
	}
	if err := dictionary.Validate(dict); err != nil {
		return nil, fmt.Errorf("transcript: build corrector: %w", err)
	}

	c := &Corrector{
		threshold:       DefaultThreshold,
		maxWindow:       defaultMaxWindow,
		minCandidateLen: defaultMinCandidateLen,
		similarity:      IndelRatio,
		directMap:       make(map[string]string),
		terms:           len(dict.Terms),
	}
	for _, o := range opts {
		o(c)
	}
	if c.threshold <= 0 || c.threshold > 1 {
		return nil, fmt.Errorf("transcript: threshold %v out of range (0, 1]", c.threshold)
	}
	if c.maxWindow < 1 {
		return nil, fmt.Errorf("transcript: max window %d must be at least 1", c.maxWindow)
	}

	for _, t := range dict.Terms {
		for _, s := range t.Targets() {
			lower := strings.ToLower(s)
			c.targets = append(c.targets, target{lower: lower, canonical: t.Canonical})
			if _, exists := c.directMap[lower]; exists {
				continue
			}
			c.directMap[lower] = t.Canonical
			c.direct = append(c.direct, directEntry{key: lower, canonical: t.Canonical})
		}
	}
	slices.SortStableFunc(c.direct, func(a, b directEntry) int {
		return utf8.RuneCountInString(b.key) - utf8.RuneCountInString(a.key)
	})
	return c, nil
}

// Threshold returns the configured fuzzy threshold.
func (c *Corrector) Threshold() float64 { return c.threshold }

// Terms returns the number of dictionary terms indexed.
func (c *Corrector) Terms() int { return c.terms }

// Lookup returns the canonical form for a direct-table key. key is matched
// case-insensitively.
func (c *Corrector) Lookup(key string) (string, bool) {
	canon, ok := c.directMap[strings.ToLower(key)]
	return canon, ok
}

// DirectKeys returns the direct-table keys in the order Pass 1 applies them.
func (c *Corrector) DirectKeys() []string {
	out := make([]string, len(c.direct))
	for i, e := range c.direct {
		out[i] = e.key
	}
	return out
}

// Correct applies the direct and fuzzy passes to text. The result is a pure
// function of text and the dictionary.
func (c *Corrector) Correct(text string) Result {
	corrections := []Correction{}
	raw, corrections := c.directPass(text, corrections)
	raw, corrections = c.fuzzyPass(raw, corrections)
	return Result{
		Original:    text,
		Corrected:   raw,
		Corrections: corrections,
	}
}

// directPass replaces the first case-insensitive occurrence of every direct
// key, longest keys first. Each key is applied at most once.
func (c *Corrector) directPass(raw string, out []Correction) (string, []Correction) {
	lowered := strings.ToLower(raw)
	for _, e := range c.direct {
		if !strings.Contains(lowered, e.key) {
			continue
		}
		next := replaceFirstFold(raw, e.key, e.canonical)
		if next == raw {
			continue
		}
		raw = next
		lowered = strings.ToLower(raw)
		out = append(out, Correction{From: e.key, To: e.canonical, Score: 1.0, Method: MethodDirect})
	}
	return raw, out
}

// fuzzyPass scans whitespace tokens left to right and replaces the longest
// window at each position whose best similarity reaches the threshold. The
// output tokens are re-joined with single spaces.
func (c *Corrector) fuzzyPass(raw string, out []Correction) (string, []Correction) {
	tokens := strings.Fields(raw)
	for i := 0; i < len(tokens); i++ {
		for j := min(i+c.maxWindow, len(tokens)); j > i; j-- {
			cand := strings.Join(tokens[i:j], " ")
			if utf8.RuneCountInString(cand) < c.minCandidateLen {
				continue
			}
			candLower := strings.ToLower(cand)
			if _, direct := c.directMap[candLower]; direct {
				continue
			}
			score, to := c.best(candLower)
			if to == "" || score < c.threshold {
				continue
			}
			tokens = slices.Replace(tokens, i, j, to)
			out = append(out, Correction{From: cand, To: to, Score: score, Method: MethodFuzzy})
			break
		}
	}
	return strings.Join(tokens, " "), out
}

// best returns the highest similarity over all targets and the canonical form
// of the first target reaching it.
func (c *Corrector) best(candLower string) (float64, string) {
	var (
		bestScore float64
		bestTo    string
	)
	for _, t := range c.targets {
		if s := c.similarity(candLower, t.lower); s > bestScore {
			bestScore = s
			bestTo = t.canonical
		}
	}
	return bestScore, bestTo
}

// replaceFirstFold replaces the first occurrence of needleLower in text,
// comparing rune-wise against the lower-cased text, and keeps the casing of
// the rest of text.
func replaceFirstFold(text, needleLower, replacement string) string {
	start, end := indexFold(text, needleLower)
	if start < 0 {
		return text
	}
	return text[:start] + replacement + text[end:]
}

// indexFold returns the byte span [start, end) of the first match of
// needleLower in text under unicode.ToLower, or -1, -1.
func indexFold(text, needleLower string) (int, int) {
	needle := []rune(needleLower)
	if len(needle) == 0 {
		return -1, -1
	}
	for i := 0; i < len(text); {
		j, k := i, 0
		for k < len(needle) && j < len(text) {
			r, size := utf8.DecodeRuneInString(text[j:])
			if unicode.ToLower(r) != needle[k] {
				break
			}
			j += size
			k++
		}
		if k == len(needle) {
			return i, j
		}
		_, size := utf8.DecodeRuneInString(text[i:])
		i += size
	}
	return -1, -1
}
