package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/text/cases"
	"gopkg.in/yaml.v3"
)

//go:embed locations.yaml
var defaultLocations []byte

var (
	ErrEmptyCatalog     = errors.New("catalog has no locations")
	ErrDuplicateName    = errors.New("duplicate location name")
	ErrLocationNotFound = errors.New("location not found")
)

// Location is a single secret candidate together with the roles that may be
// handed out while it is the secret.
type Location struct {
	Name  string   `yaml:"name" json:"name"`
	Roles []string `yaml:"roles" json:"roles"`
}

type document struct {
	Locations []Location `yaml:"locations"`
}

// Catalog is an immutable, ordered list of locations. Order matters: a room's
// pool size selects a prefix of the list.
type Catalog struct {
	locations []Location
	byName    map[string]int
}

// Default returns the catalog compiled into the binary.
func Default() (*Catalog, error) {
	return Parse(defaultLocations)
}

// Load reads a catalog from a YAML file. An empty path yields the default catalog.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}

	return Parse(data)
}

// Parse builds a catalog from YAML.
func Parse(data []byte) (*Catalog, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	return New(doc.Locations)
}

// New validates and copies the given locations into a Catalog.
func New(locations []Location) (*Catalog, error) {
	if len(locations) == 0 {
		return nil, ErrEmptyCatalog
	}

	c := &Catalog{
		locations: make([]Location, 0, len(locations)),
		byName:    make(map[string]int, len(locations)),
	}
	for _, loc := range locations {
		name := strings.TrimSpace(loc.Name)
		if name == "" {
			return nil, fmt.Errorf("location at index %d has no name", len(c.locations))
		}
		key := fold(name)
		if _, exists := c.byName[key]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateName, name)
		}

		roles := make([]string, 0, len(loc.Roles))
		for _, role := range loc.Roles {
			if role = strings.TrimSpace(role); role != "" {
				roles = append(roles, role)
			}
		}

		c.byName[key] = len(c.locations)
		c.locations = append(c.locations, Location{Name: name, Roles: roles})
	}

	return c, nil
}

// Len reports the number of locations.
func (c *Catalog) Len() int {
	return len(c.locations)
}

// Pool returns the names of the first n locations. n is clamped to [1, Len()].
func (c *Catalog) Pool(n int) []string {
	if n < 1 {
		n = 1
	}
	if n > len(c.locations) {
		n = len(c.locations)
	}

	names := make([]string, n)
	for i := 0; i < n; i++ {
		names[i] = c.locations[i].Name
	}
	return names
}

// Roles returns a copy of the role list for the named location.
func (c *Catalog) Roles(name string) ([]string, error) {
	idx, ok := c.byName[fold(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLocationNotFound, name)
	}
	return append([]string(nil), c.locations[idx].Roles...), nil
}

// Lookup returns the canonical location matching name, ignoring case.
func (c *Catalog) Lookup(name string) (Location, bool) {
	idx, ok := c.byName[fold(strings.TrimSpace(name))]
	if !ok {
		return Location{}, false
	}
	loc := c.locations[idx]
	loc.Roles = append([]string(nil), loc.Roles...)
	return loc, true
}

func fold(s string) string {
	return cases.Fold().String(s)
}
