// Package matching scores offers against a keyword/phrase catalog of
// business categories. The catalog is YAML, loaded once at startup; a
// compiled default ships with the binary for installs without one.
package matching

import (
	_ "embed"
	"os"

	"github.com/pkg/errors"
	yaml "gopkg.in/yaml.v3"
)

//go:embed default_catalog.yaml
var _defaultCatalogYAML []byte

// Keyword is a single phrase with its contribution weight. Phrases are
// matched against folded text on word boundaries; multi-word phrases are
// allowed.
type Keyword struct {
	Phrase string `yaml:"phrase"`
	Weight int    `yaml:"weight"`
}

// Category is one catalog entry.
type Category struct {
	ID       int64     `yaml:"id"`
	Label    string    `yaml:"label"`
	Keywords []Keyword `yaml:"keywords"`
}

// Catalog is the full category set.
type Catalog struct {
	Categories []Category `yaml:"categories"`

	labels map[int64]string
}

// ParseCatalog decodes and validates a YAML catalog.
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, errors.Wrap(err, "failed to parse catalog yaml")
	}
	if len(c.Categories) == 0 {
		return nil, errors.New("catalog has no categories")
	}
	c.labels = make(map[int64]string, len(c.Categories))
	for _, cat := range c.Categories {
		if cat.ID <= 0 {
			return nil, errors.Errorf("category %q has invalid id %d", cat.Label, cat.ID)
		}
		if cat.Label == "" {
			return nil, errors.Errorf("category %d has empty label", cat.ID)
		}
		if _, ok := c.labels[cat.ID]; ok {
			return nil, errors.Errorf("duplicate category id %d", cat.ID)
		}
		for _, kw := range cat.Keywords {
			if kw.Phrase == "" {
				return nil, errors.Errorf("category %d has an empty phrase", cat.ID)
			}
			if kw.Weight <= 0 {
				return nil, errors.Errorf("category %d phrase %q has invalid weight %d", cat.ID, kw.Phrase, kw.Weight)
			}
		}
		c.labels[cat.ID] = cat.Label
	}
	return &c, nil
}

// LoadCatalog reads and parses a catalog file.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read catalog %s", path)
	}
	return ParseCatalog(data)
}

// DefaultCatalog returns the compiled-in catalog.
func DefaultCatalog() *Catalog {
	c, err := ParseCatalog(_defaultCatalogYAML)
	if err != nil {
		// The embedded catalog is validated by tests; reaching this means
		// the binary was built from a broken tree.
		panic(err)
	}
	return c
}

// Label resolves a category id to its display label.
func (c *Catalog) Label(categoryID int64) (string, bool) {
	label, ok := c.labels[categoryID]
	return label, ok
}
