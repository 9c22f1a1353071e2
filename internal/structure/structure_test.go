package structure_test

import (
	"strings"
	"testing"

	"github.com/MrWong99/sonoscribe/internal/dictionary"
	"github.com/MrWong99/sonoscribe/internal/structure"
)

const dictJSON = `{
  "terms": [
    {"key": "rt_lobe", "canonical": "right lobe"},
    {"key": "lt_lobe", "canonical": "left lobe"},
    {"key": "thy_nod", "canonical": "thyroid nodule"},
    {"key": "cyst", "canonical": "cyst"},
    {"key": "hypo", "canonical": "hypoechoic"},
    {"key": "tr3", "canonical": "TR3"}
  ],
  "categories": {
    "location": ["rt_lobe", "lt_lobe"],
    "lesion": ["thy_nod", "cyst"],
    "feature": ["hypo", "calcified"],
    "tirads": ["tr3"]
  }
}`

func load(t *testing.T) *dictionary.Dictionary {
	t.Helper()
	d, err := dictionary.LoadFromReader(strings.NewReader(dictJSON))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	return d
}

func deref(p *string) string {
	if p == nil {
		return "<nil>"
	}
	return *p
}

func TestExtract(t *testing.T) {
	t.Parallel()

	e := structure.NewExtractor(load(t))
	tests := []struct {
		name                       string
		text                       string
		location, lesion, feature string
		extra                      map[string]string
	}{
		{
			name:     "all fields",
			text:     "right lobe hypoechoic thyroid nodule, TR3",
			location: "right lobe", lesion: "thyroid nodule", feature: "hypoechoic",
			extra: map[string]string{"tirads": "TR3"},
		},
		{
			name:     "last found wins in category order",
			text:     "left lobe and right lobe",
			location: "left lobe", lesion: "<nil>", feature: "<nil>",
		},
		{
			name:     "key without term matches itself",
			text:     "calcified cyst",
			location: "<nil>", lesion: "cyst", feature: "calcified",
		},
		{
			name:     "case sensitive",
			text:     "Right Lobe THYROID NODULE",
			location: "<nil>", lesion: "<nil>", feature: "<nil>",
		},
		{
			name:     "empty",
			text:     "",
			location: "<nil>", lesion: "<nil>", feature: "<nil>",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := e.Extract(tc.text)
			if got := deref(rec.Location); got != tc.location {
				t.Errorf("Location = %q, want %q", got, tc.location)
			}
			if got := deref(rec.Lesion); got != tc.lesion {
				t.Errorf("Lesion = %q, want %q", got, tc.lesion)
			}
			if got := deref(rec.Feature); got != tc.feature {
				t.Errorf("Feature = %q, want %q", got, tc.feature)
			}
			if rec.Notes != structure.Notes {
				t.Errorf("Notes = %q", rec.Notes)
			}
			if len(rec.Extra) != len(tc.extra) {
				t.Fatalf("Extra = %v, want %v", rec.Extra, tc.extra)
			}
			for k, v := range tc.extra {
				if rec.Extra[k] != v {
					t.Errorf("Extra[%s] = %q, want %q", k, rec.Extra[k], v)
				}
			}
		})
	}
}

func TestExtract_NilDictionary(t *testing.T) {
	t.Parallel()

	rec := structure.NewExtractor(nil).Extract("right lobe")
	if rec.Location != nil || rec.Lesion != nil || rec.Feature != nil {
		t.Errorf("expected empty record, got %+v", rec)
	}
	if rec.Notes != structure.Notes {
		t.Errorf("Notes = %q", rec.Notes)
	}
}
