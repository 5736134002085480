package room

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

//go:embed symbols.yaml
var defaultSymbolsYAML []byte

// DefaultCatalogSize is the number of symbols in the built-in catalog.
const DefaultCatalogSize = 80

// Symbol is one guessable catalog entry.
type Symbol struct {
	Emoji string `yaml:"emoji"`
	Name  string `yaml:"name"`
}

// Catalog is an immutable, ordered set of unique symbols.
type Catalog struct {
	symbols []Symbol
	byEmoji map[string]Symbol
}

type catalogFile struct {
	Symbols []Symbol `yaml:"symbols"`
}

// ParseCatalog decodes a YAML symbol catalog.
//
// Postcondition: Returns a non-empty Catalog with unique, non-empty emoji, or
// a non-nil error.
func ParseCatalog(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing symbol catalog: %w", err)
	}
	if len(f.Symbols) == 0 {
		return nil, errors.New("symbol catalog is empty")
	}
	c := &Catalog{
		symbols: make([]Symbol, 0, len(f.Symbols)),
		byEmoji: make(map[string]Symbol, len(f.Symbols)),
	}
	for i, s := range f.Symbols {
		if s.Emoji == "" {
			return nil, fmt.Errorf("symbol catalog entry %d has no emoji", i)
		}
		if _, dup := c.byEmoji[s.Emoji]; dup {
			return nil, fmt.Errorf("symbol catalog entry %d duplicates %q", i, s.Emoji)
		}
		c.byEmoji[s.Emoji] = s
		c.symbols = append(c.symbols, s)
	}
	return c, nil
}

// LoadCatalog reads a YAML symbol catalog from path.
//
// Precondition: path must name a readable YAML file.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading symbol catalog %q: %w", path, err)
	}
	return ParseCatalog(data)
}

// DefaultCatalog returns the built-in 80-symbol catalog.
//
// Postcondition: Len() == DefaultCatalogSize.
func DefaultCatalog() *Catalog {
	c, err := ParseCatalog(defaultSymbolsYAML)
	if err != nil {
		panic("room: embedded symbol catalog is invalid: " + err.Error())
	}
	return c
}

// Len returns the number of symbols.
func (c *Catalog) Len() int { return len(c.symbols) }

// Symbols returns a copy of the symbols in catalog order.
func (c *Catalog) Symbols() []Symbol { return slices.Clone(c.symbols) }

// Lookup returns the symbol entry for emoji.
func (c *Catalog) Lookup(emoji string) (Symbol, bool) {
	s, ok := c.byEmoji[emoji]
	return s, ok
}

// Contains reports whether emoji is in the catalog.
func (c *Catalog) Contains(emoji string) bool {
	_, ok := c.byEmoji[emoji]
	return ok
}
