// Package structure extracts report fields from corrected dictation text.
//
// Extraction is a plain substring scan: for every dictionary category, each
// referenced term's canonical form is looked for in the text and the last
// one found (in category order) becomes the field value.
package structure

import (
	"strings"

	"github.com/MrWong99/sonoscribe/internal/dictionary"
)

// Well-known category names mapped onto the typed [Record] fields.
const (
	CategoryLocation = "location"
	CategoryLesion   = "lesion"
	CategoryFeature  = "feature"
)

// Notes is the provenance note attached to every extracted record.
const Notes = "Auto-extracted (PoC)"

// Record is the structured form of one dictation. A nil field means the
// category had no match.
type Record struct {
	Location *string `json:"location"`
	Lesion   *string `json:"lesion"`
	Feature  *string `json:"feature"`
	Notes    string  `json:"notes"`

	// Extra holds matches for any category other than the three above,
	// keyed by category name.
	Extra map[string]string `json:"extra,omitempty"`
}

// Extractor is built once per dictionary and is safe for concurrent use.
type Extractor struct {
	categories     dictionary.Categories
	keyToCanonical map[string]string
}

// NewExtractor returns an Extractor for dict. A nil dict yields an Extractor
// that finds nothing.
func NewExtractor(dict *dictionary.Dictionary) *Extractor {
	if dict == nil {
		return &Extractor{keyToCanonical: map[string]string{}}
	}
	return &Extractor{
		categories:     dict.Categories,
		keyToCanonical: dict.KeyToCanonical(),
	}
}

// Extract scans text and returns the record. Matching is case-sensitive.
// Keys without a term fall back to matching the key itself.
func (e *Extractor) Extract(text string) Record {
	rec := Record{Notes: Notes}
	for _, cat := range e.categories {
		var found string
		for _, key := range cat.Keys {
			canon, ok := e.keyToCanonical[key]
			if !ok {
				canon = key
			}
			if canon != "" && strings.Contains(text, canon) {
				found = canon
			}
		}
		if found == "" {
			continue
		}
		switch cat.Name {
		case CategoryLocation:
			rec.Location = &found
		case CategoryLesion:
			rec.Lesion = &found
		case CategoryFeature:
			rec.Feature = &found
		default:
			if rec.Extra == nil {
				rec.Extra = make(map[string]string)
			}
			rec.Extra[cat.Name] = found
		}
	}
	return rec
}
