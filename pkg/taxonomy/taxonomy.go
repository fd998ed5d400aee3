// Package taxonomy holds the directory attribute filters the assistant can
// apply, grouped by category.
package taxonomy

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

//go:embed default.toml
var defaultTable []byte

// Attribute is one filterable directory attribute.
type Attribute struct {
	ID   int    `toml:"id"`
	Name string `toml:"name"`
}

// Category groups related attributes.
type Category struct {
	Name       string      `toml:"name"`
	Attributes []Attribute `toml:"attribute"`
}

// Taxonomy is the full filter table.
type Taxonomy struct {
	Categories []Category `toml:"category"`

	index map[int]int
}

// Default returns the built-in taxonomy.
func Default() *Taxonomy {
	t, err := Parse(defaultTable)
	if err != nil {
		panic(fmt.Sprintf("taxonomy: invalid built-in table: %v", err))
	}
	return t
}

// Load reads a taxonomy from a TOML file. An empty path returns Default.
func Load(path string) (*Taxonomy, error) {
	if path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read taxonomy: %w", err)
	}

	t, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// Parse decodes and checks a TOML taxonomy table. Every category needs a
// name and at least one attribute; attribute ids must be positive and unique.
func Parse(data []byte) (*Taxonomy, error) {
	var t Taxonomy
	if _, err := toml.Decode(string(data), &t); err != nil {
		return nil, fmt.Errorf("decode taxonomy: %w", err)
	}
	if len(t.Categories) == 0 {
		return nil, fmt.Errorf("taxonomy has no categories")
	}

	t.index = make(map[int]int)
	for ci, c := range t.Categories {
		if c.Name == "" {
			return nil, fmt.Errorf("category %d has no name", ci)
		}
		if len(c.Attributes) == 0 {
			return nil, fmt.Errorf("category %q has no attributes", c.Name)
		}
		for _, a := range c.Attributes {
			if a.ID <= 0 {
				return nil, fmt.Errorf("category %q: attribute %q has invalid id %d", c.Name, a.Name, a.ID)
			}
			if prev, dup := t.index[a.ID]; dup {
				return nil, fmt.Errorf("attribute id %d appears in both %q and %q", a.ID, t.Categories[prev].Name, c.Name)
			}
			t.index[a.ID] = ci
		}
	}

	return &t, nil
}

// Lookup finds an attribute and the name of its category.
func (t *Taxonomy) Lookup(id int) (Attribute, string, bool) {
	ci, ok := t.index[id]
	if !ok {
		return Attribute{}, "", false
	}
	c := t.Categories[ci]
	for _, a := range c.Attributes {
		if a.ID == id {
			return a, c.Name, true
		}
	}
	return Attribute{}, "", false
}

// Find returns the id of the attribute with the given name, ignoring case.
func (t *Taxonomy) Find(name string) (int, bool) {
	for _, c := range t.Categories {
		for _, a := range c.Attributes {
			if strings.EqualFold(a.Name, name) {
				return a.ID, true
			}
		}
	}
	return 0, false
}

// String renders the table for the system prompt.
func (t *Taxonomy) String() string {
	var b strings.Builder
	for i, c := range t.Categories {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%s:\n", c.Name)
		for _, a := range c.Attributes {
			fmt.Fprintf(&b, "  - %s: %d\n", a.Name, a.ID)
		}
	}
	return b.String()
}
