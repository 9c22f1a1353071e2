package dictionary

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Category is a named, ordered list of term keys.
type Category struct {
	Name string
	Keys []string
}

// Categories preserves the document order of the categories mapping, which
// decides the extraction order of structured report fields.
type Categories []Category

// UnmarshalYAML implements [yaml.Unmarshaler].
func (c *Categories) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("dictionary: categories must be a mapping (line %d)", value.Line)
	}
	out := make(Categories, 0, len(value.Content)/2)
	for i := 0; i+1 < len(value.Content); i += 2 {
		var cat Category
		if err := value.Content[i].Decode(&cat.Name); err != nil {
			return fmt.Errorf("dictionary: category name (line %d): %w", value.Content[i].Line, err)
		}
		if err := value.Content[i+1].Decode(&cat.Keys); err != nil {
			return fmt.Errorf("dictionary: category %q (line %d): %w", cat.Name, value.Content[i+1].Line, err)
		}
		out = append(out, cat)
	}
	*c = out
	return nil
}

// Names returns the category names in document order.
func (c Categories) Names() []string {
	out := make([]string, len(c))
	for i, cat := range c {
		out[i] = cat.Name
	}
	return out
}

// Keys returns the term keys of the named category, or nil.
func (c Categories) Keys(name string) []string {
	for _, cat := range c {
		if cat.Name == name {
			return cat.Keys
		}
	}
	return nil
}
