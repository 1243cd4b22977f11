package resolver

import (
	"github.com/turtacn/rid-registry/internal/domain/registry"
)

// Cache holds the entities resolved during one reconciliation run.  It is
// created per run and dropped with it; it is not safe for concurrent use.
type Cache struct {
	persons   map[registry.NameParts]*registry.Person
	orgs      map[string]*registry.Organization
	countries map[string]*registry.Country

	// reference table, loaded on first country lookup
	countriesLoaded bool
	byAlpha2        map[string]*registry.Country
	byAlpha3        map[string]*registry.Country
}

// NewCache returns an empty run cache.
func NewCache() *Cache {
	return &Cache{
		persons:   make(map[registry.NameParts]*registry.Person),
		orgs:      make(map[string]*registry.Organization),
		countries: make(map[string]*registry.Country),
	}
}

// Person returns a cached person by name parts.
func (c *Cache) Person(parts registry.NameParts) (*registry.Person, bool) {
	p, ok := c.persons[parts]
	return p, ok
}

func (c *Cache) putPerson(p *registry.Person) {
	c.persons[p.Parts()] = p
}

// Organization returns a cached organization by the raw name that resolved
// to it.
func (c *Cache) Organization(name string) (*registry.Organization, bool) {
	o, ok := c.orgs[name]
	return o, ok
}

func (c *Cache) putOrganization(name string, o *registry.Organization) {
	c.orgs[name] = o
}

// Len reports the number of cached persons, organizations and country
// lookups.
func (c *Cache) Len() (persons, orgs, countries int) {
	return len(c.persons), len(c.orgs), len(c.countries)
}
