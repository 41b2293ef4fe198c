// Package catalog holds the read-only list of tracked people. A Catalog is
// loaded once at startup and passed to the components that need it.
package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed people.yaml
var defaultPeople []byte

type Person struct {
	Name     string `yaml:"name" json:"name"`
	Slug     string `yaml:"slug" json:"slug"`
	Summary  string `yaml:"summary" json:"summary"`
	Category string `yaml:"category" json:"category"`
}

type file struct {
	People []Person `yaml:"people"`
}

// Catalog is immutable after construction and safe for concurrent use.
type Catalog struct {
	people []Person
	bySlug map[string]int
}

// Default returns the catalog compiled into the binary.
func Default() (*Catalog, error) {
	return Parse(defaultPeople)
}

// Load reads a catalog from path, or returns the embedded one when path is
// empty.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML people file. Entries without a slug get one derived
// from the name.
func Parse(data []byte) (*Catalog, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing catalog: %w", err)
	}
	return New(f.People)
}

func New(people []Person) (*Catalog, error) {
	c := &Catalog{
		people: make([]Person, 0, len(people)),
		bySlug: make(map[string]int, len(people)),
	}
	for i, p := range people {
		p.Name = strings.TrimSpace(p.Name)
		if p.Name == "" {
			return nil, fmt.Errorf("catalog entry %d: name is required", i)
		}
		if p.Slug == "" {
			p.Slug = Slugify(p.Name)
		}
		if _, dup := c.bySlug[p.Slug]; dup {
			return nil, fmt.Errorf("catalog entry %d: duplicate slug %q", i, p.Slug)
		}
		c.bySlug[p.Slug] = len(c.people)
		c.people = append(c.people, p)
	}
	return c, nil
}

// Lookup returns the person with the given slug.
func (c *Catalog) Lookup(slug string) (Person, bool) {
	i, ok := c.bySlug[slug]
	if !ok {
		return Person{}, false
	}
	return c.people[i], true
}

// All returns a copy of every person in declaration order.
func (c *Catalog) All() []Person {
	out := make([]Person, len(c.people))
	copy(out, c.people)
	return out
}

func (c *Catalog) Has(slug string) bool {
	_, ok := c.bySlug[slug]
	return ok
}

func (c *Catalog) Len() int {
	return len(c.people)
}

// DisplayName returns the catalog name for slug, or fallback when the slug
// is unknown.
func (c *Catalog) DisplayName(slug, fallback string) string {
	if p, ok := c.Lookup(slug); ok {
		return p.Name
	}
	return fallback
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

func Slugify(name string) string {
	return strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(name), "-"), "-")
}
