// Package resolver turns free-text author and rights-holder strings into
// canonical Person, Organization and Country entities, creating the missing
// ones with unique slugs and sequence-issued keys.
package resolver

import (
	"context"

	"github.com/turtacn/rid-registry/internal/domain/registry"
	"github.com/turtacn/rid-registry/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/rid-registry/internal/intelligence/entitykind"
	apperrors "github.com/turtacn/rid-registry/pkg/errors"
)

const (
	defaultChunkSize   = 500
	defaultSlugRetries = 10
	maxShortNameRunes  = 500
)

// Options tunes a Resolver.
type Options struct {
	// ChunkSize bounds lookups and bulk inserts.
	ChunkSize int
	// SlugRetries bounds per-row insert attempts after a failed bulk insert.
	SlugRetries int
	// Preview resolves without writing: missing entities are returned with
	// zero IDs and nothing is inserted.
	Preview bool
}

// Stats counts resolver outcomes for one run.
type Stats struct {
	PersonsMatched   int `json:"persons_matched"`
	PersonsCreated   int `json:"persons_created"`
	OrgsMatched      int `json:"orgs_matched"`
	OrgsFuzzyMatched int `json:"orgs_fuzzy_matched"`
	OrgsCreated      int `json:"orgs_created"`
	CountriesMissed  int `json:"countries_missed"`
	CreateFailures   int `json:"create_failures"`
}

// Resolver resolves entity names for one run.  Not safe for concurrent use.
type Resolver struct {
	persons   registry.PersonRepository
	orgs      registry.OrganizationRepository
	countries registry.CountryRepository
	parser    entitykind.NameParser
	cache     *Cache
	opts      Options
	stats     Stats
	logger    logging.Logger
}

// New builds a Resolver.  A nil cache gets a fresh one; a nil parser means
// whitespace splitting.
func New(
	persons registry.PersonRepository,
	orgs registry.OrganizationRepository,
	countries registry.CountryRepository,
	parser entitykind.NameParser,
	cache *Cache,
	opts Options,
	logger logging.Logger,
) *Resolver {
	if opts.ChunkSize < 1 {
		opts.ChunkSize = defaultChunkSize
	}
	if opts.SlugRetries < 1 {
		opts.SlugRetries = defaultSlugRetries
	}
	if cache == nil {
		cache = NewCache()
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Resolver{
		persons:   persons,
		orgs:      orgs,
		countries: countries,
		parser:    parser,
		cache:     cache,
		opts:      opts,
		logger:    logger.Named("resolver"),
	}
}

// Stats returns the counters accumulated so far.
func (r *Resolver) Stats() Stats { return r.stats }

// Cache exposes the run cache.
func (r *Resolver) Cache() *Cache { return r.cache }

// ParseName splits a raw person name through the configured parser.
func (r *Resolver) ParseName(ctx context.Context, raw string) registry.NameParts {
	return entitykind.ParseName(ctx, r.parser, registry.CleanFragment(raw))
}

// ─────────────────────────────────────────────────────────────────────────────
// Persons
// ─────────────────────────────────────────────────────────────────────────────

// ResolvePerson finds or creates the person named raw.  Names with fewer than
// two tokens are labels, not persons, and are rejected.
func (r *Resolver) ResolvePerson(ctx context.Context, raw string) (*registry.Person, error) {
	parts := r.ParseName(ctx, raw)
	if parts.Last == "" || parts.IsLabel() {
		return nil, apperrors.InvalidParam("not a person name").WithDetail(raw)
	}
	resolved, err := r.resolvePersonParts(ctx, []registry.NameParts{parts})
	if err != nil {
		return nil, err
	}
	p, ok := resolved[parts]
	if !ok {
		return nil, apperrors.New(apperrors.CodeSlugExhausted, "person could not be created").WithDetail(parts.Full())
	}
	return p, nil
}

// ResolvePersonsBulk resolves many names at once.  Labels and names whose
// creation failed are absent from the result.
func (r *Resolver) ResolvePersonsBulk(ctx context.Context, names []string) (map[string]*registry.Person, error) {
	partsByName := make(map[string]registry.NameParts, len(names))
	var all []registry.NameParts
	for _, name := range names {
		if _, seen := partsByName[name]; seen {
			continue
		}
		parts := r.ParseName(ctx, name)
		if parts.Last == "" || parts.IsLabel() {
			r.logger.Debug("skipping label in person group", logging.String("name", name))
			continue
		}
		partsByName[name] = parts
		all = append(all, parts)
	}

	resolved, err := r.resolvePersonParts(ctx, all)
	if err != nil {
		return nil, err
	}
	out := make(map[string]*registry.Person, len(partsByName))
	for name, parts := range partsByName {
		if p, ok := resolved[parts]; ok {
			out[name] = p
		}
	}
	return out, nil
}

func (r *Resolver) resolvePersonParts(ctx context.Context, all []registry.NameParts) (map[registry.NameParts]*registry.Person, error) {
	out := make(map[registry.NameParts]*registry.Person, len(all))
	var pending []registry.NameParts
	seen := make(map[registry.NameParts]struct{}, len(all))
	for _, parts := range all {
		if _, dup := seen[parts]; dup {
			continue
		}
		seen[parts] = struct{}{}
		if p, ok := r.cache.Person(parts); ok {
			out[parts] = p
			continue
		}
		pending = append(pending, parts)
	}

	for start := 0; start < len(pending); start += r.opts.ChunkSize {
		end := min(start+r.opts.ChunkSize, len(pending))
		chunk := pending[start:end]

		found, err := r.persons.FindByNameParts(ctx, chunk)
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.CodeUnknown, "looking up persons")
		}
		var missing []*registry.Person
		for _, parts := range chunk {
			if p, ok := found[parts]; ok {
				r.cache.putPerson(p)
				out[parts] = p
				r.stats.PersonsMatched++
				continue
			}
			missing = append(missing, &registry.Person{LastName: parts.Last, FirstName: parts.First, MiddleName: parts.Middle})
		}

		created, err := createAll(ctx, r, personCreation(r), missing)
		if err != nil {
			return nil, err
		}
		for _, p := range created {
			if p == nil {
				continue
			}
			r.cache.putPerson(p)
			out[p.Parts()] = p
			r.stats.PersonsCreated++
		}
	}
	return out, nil
}

func personCreation(r *Resolver) creation[*registry.Person] {
	return creation[*registry.Person]{
		kind:  "person",
		store: r.persons,
		base:  func(p *registry.Person) string { return registry.BaseSlug(p.Parts().Full(), "person") },
		assign: func(p *registry.Person, slug string, key int64) {
			p.Slug, p.Key = slug, key
		},
		existing: func(ctx context.Context, p *registry.Person) (*registry.Person, error) {
			found, err := r.persons.FindByNameParts(ctx, []registry.NameParts{p.Parts()})
			if err != nil {
				return nil, err
			}
			return found[p.Parts()], nil
		},
		describe: func(p *registry.Person) string { return p.Parts().Full() },
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Organizations
// ─────────────────────────────────────────────────────────────────────────────

// ResolveOrganization finds or creates the organization named raw.  Empty
// and null input resolves to nil without error.
func (r *Resolver) ResolveOrganization(ctx context.Context, raw string) (*registry.Organization, error) {
	name := registry.CleanFragment(raw)
	if name == "" {
		return nil, nil
	}
	resolved, err := r.ResolveOrganizationsBulk(ctx, []string{name})
	if err != nil {
		return nil, err
	}
	return resolved[name], nil
}

// ResolveOrganizationsBulk resolves many organization names: a batched exact
// lookup first, the fuzzy strategies for the misses, then one bulk insert
// per chunk for whatever is left.  Fuzzy matching only sees stored
// organizations: two new names in one call that would match each other
// (`ООО "Ромашка"` and `Ромашка`) create two organizations.
func (r *Resolver) ResolveOrganizationsBulk(ctx context.Context, names []string) (map[string]*registry.Organization, error) {
	out := make(map[string]*registry.Organization, len(names))
	var pending []string
	for _, raw := range uniqueStrings(names) {
		name := registry.CleanFragment(raw)
		if name == "" {
			continue
		}
		if o, ok := r.cache.Organization(name); ok {
			out[raw] = o
			continue
		}
		pending = append(pending, name)
	}
	pending = uniqueStrings(pending)

	for start := 0; start < len(pending); start += r.opts.ChunkSize {
		end := min(start+r.opts.ChunkSize, len(pending))
		chunk := pending[start:end]

		exact, err := r.orgs.FindExact(ctx, chunk)
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.CodeUnknown, "looking up organizations")
		}

		var missing []*registry.Organization
		for _, name := range chunk {
			if o, ok := exact[name]; ok {
				r.cache.putOrganization(name, o)
				r.stats.OrgsMatched++
				continue
			}
			o, err := r.fuzzyMatch(ctx, name)
			if err != nil {
				return nil, err
			}
			if o != nil {
				r.cache.putOrganization(name, o)
				r.stats.OrgsFuzzyMatched++
				continue
			}
			missing = append(missing, newOrganization(name))
		}

		created, err := createAll(ctx, r, orgCreation(r), missing)
		if err != nil {
			return nil, err
		}
		for i, o := range created {
			if o == nil {
				continue
			}
			r.cache.putOrganization(missing[i].Name, o)
			r.stats.OrgsCreated++
		}
	}

	for _, raw := range names {
		if _, done := out[raw]; done {
			continue
		}
		if o, ok := r.cache.Organization(registry.CleanFragment(raw)); ok {
			out[raw] = o
		}
	}
	return out, nil
}

// newOrganization keeps the source text verbatim in every name field.
func newOrganization(name string) *registry.Organization {
	return &registry.Organization{
		Name:       name,
		FullName:   name,
		ShortName:  registry.RunePrefix(name, maxShortNameRunes),
		SearchName: registry.NormalizeOrgName(name),
	}
}

func orgCreation(r *Resolver) creation[*registry.Organization] {
	return creation[*registry.Organization]{
		kind:  "organization",
		store: r.orgs,
		base:  func(o *registry.Organization) string { return registry.BaseSlug(o.Name, "organization") },
		assign: func(o *registry.Organization, slug string, key int64) {
			o.Slug, o.Key = slug, key
		},
		existing: func(ctx context.Context, o *registry.Organization) (*registry.Organization, error) {
			found, err := r.orgs.FindExact(ctx, []string{o.Name})
			if err != nil {
				return nil, err
			}
			return found[o.Name], nil
		},
		describe: func(o *registry.Organization) string { return o.Name },
	}
}
