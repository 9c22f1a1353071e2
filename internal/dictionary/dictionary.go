// Package dictionary loads the curated medical term vocabulary used for
// transcript correction and report structuring.
//
// A dictionary file is a JSON or YAML document with two sections:
//
//	terms:
//	  - key: lnb
//	    canonical: "lymph node, benign"
//	    aliases: ["LN benign", "엘엔비"]
//	categories:
//	  lesion: [lnb]
//
// Loading is all-or-nothing: any validation failure rejects the whole file so
// callers never build a correction index from a partial vocabulary.
package dictionary

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"
)

// Sentinel errors returned (wrapped) by [Validate].
var (
	ErrMissingTerms = errors.New("dictionary: missing terms section")
	ErrDuplicateKey = errors.New("dictionary: duplicate term key")
	ErrInvalidTerm  = errors.New("dictionary: invalid term")
)

// Term is one vocabulary entry.
type Term struct {
	// Key is the stable identifier referenced by categories. Unique per file.
	Key string `yaml:"key"`

	// Canonical is the single preferred spelling written into transcripts.
	Canonical string `yaml:"canonical"`

	// Aliases are alternative spellings, transliterations or common
	// mis-recognitions that map to Canonical.
	Aliases []string `yaml:"aliases"`
}

// Targets returns the canonical form followed by every alias, in file order.
func (t Term) Targets() []string {
	out := make([]string, 0, 1+len(t.Aliases))
	out = append(out, t.Canonical)
	return append(out, t.Aliases...)
}

// Dictionary is a validated, NFC-normalised vocabulary. Treat it as read-only
// once loaded; reloads produce a new Dictionary.
type Dictionary struct {
	Terms      []Term     `yaml:"terms"`
	Categories Categories `yaml:"categories"`
}

// KeyToCanonical returns a fresh map from every term key to its canonical form.
func (d *Dictionary) KeyToCanonical() map[string]string {
	m := make(map[string]string, len(d.Terms))
	for _, t := range d.Terms {
		m[t.Key] = t.Canonical
	}
	return m
}

// Load reads and validates a dictionary file from disk.
func Load(path string) (*Dictionary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("dictionary: open %q: %w", path, err)
	}
	defer f.Close()

	d, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("dictionary: load %q: %w", path, err)
	}
	return d, nil
}

// LoadFromReader decodes, normalises and validates a dictionary document.
// JSON is accepted because it is a subset of YAML. Fields other than terms
// and categories are ignored.
func LoadFromReader(r io.Reader) (*Dictionary, error) {
	var d Dictionary
	if err := yaml.NewDecoder(r).Decode(&d); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrMissingTerms
		}
		return nil, fmt.Errorf("dictionary: decode: %w", err)
	}
	d.normalize()
	if err := Validate(&d); err != nil {
		return nil, err
	}
	warnUnknownCategoryKeys(&d)
	return &d, nil
}

// normalize converts every string to Unicode NFC so that
// Hangul typed in decomposed form compares equal to recogniser output.
func (d *Dictionary) normalize() {
	for i := range d.Terms {
		t := &d.Terms[i]
		t.Key = norm.NFC.String(t.Key)
		t.Canonical = norm.NFC.String(t.Canonical)
		for j, a := range t.Aliases {
			t.Aliases[j] = norm.NFC.String(a)
		}
	}
	for i := range d.Categories {
		c := &d.Categories[i]
		for j, k := range c.Keys {
			c.Keys[j] = norm.NFC.String(k)
		}
	}
}

// Validate checks d for structural errors and returns all of them joined.
// A nil return means the dictionary is safe to index.
func Validate(d *Dictionary) error {
	if d.Terms == nil {
		return ErrMissingTerms
	}

	var errs []error
	seen := make(map[string]int, len(d.Terms))
	for i, t := range d.Terms {
		if t.Key == "" {
			errs = append(errs, fmt.Errorf("%w: terms[%d]: key is required", ErrInvalidTerm, i))
		} else if prev, dup := seen[t.Key]; dup {
			errs = append(errs, fmt.Errorf("%w: %q (terms[%d] and terms[%d])", ErrDuplicateKey, t.Key, prev, i))
		} else {
			seen[t.Key] = i
		}
		if t.Canonical == "" {
			errs = append(errs, fmt.Errorf("%w: terms[%d] (%q): canonical is required", ErrInvalidTerm, i, t.Key))
		}
		for j, a := range t.Aliases {
			if a == "" {
				errs = append(errs, fmt.Errorf("%w: terms[%d] (%q): aliases[%d] is empty", ErrInvalidTerm, i, t.Key, j))
			}
		}
	}
	for _, c := range d.Categories {
		if c.Name == "" {
			errs = append(errs, errors.New("dictionary: category name must not be empty"))
		}
	}
	return errors.Join(errs...)
}

// warnUnknownCategoryKeys logs category entries that reference no term. Such
// keys are still honoured: extraction falls back to matching the key itself.
func warnUnknownCategoryKeys(d *Dictionary) {
	keys := d.KeyToCanonical()
	for _, c := range d.Categories {
		for _, k := range c.Keys {
			if _, ok := keys[k]; !ok {
				slog.Warn("dictionary: category references unknown term key", "category", c.Name, "key", k)
			}
		}
	}
}
