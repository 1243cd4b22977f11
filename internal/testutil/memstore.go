package testutil

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/turtacn/rid-registry/internal/domain/registry"
	apperrors "github.com/turtacn/rid-registry/pkg/errors"
)

type objectKey struct {
	category registry.Category
	number   string
}

// MemStore is an in-memory implementation of every registry repository with
// the same uniqueness rules as the PostgreSQL schema.  It backs the engine,
// reconciler and resolver tests.
type MemStore struct {
	mu  sync.Mutex
	Now func() time.Time

	objects   map[objectKey]*registry.RegisteredObject
	objectSeq int64

	persons      []*registry.Person
	personSeq    int64
	personKeySeq int64

	orgs      []*registry.Organization
	orgSeq    int64
	orgKeySeq int64

	countries []*registry.Country

	edges map[registry.RelationKind]map[registry.Edge]struct{}

	snapshots   map[int64]*registry.Snapshot
	snapshotSeq int64

	categories map[registry.Category]*registry.CategoryRef

	// FailBulkInserts makes every person and organization InsertBatch fail
	// with a conflict, forcing the per-row path.
	FailBulkInserts bool
	// FailAll makes every call fail with a database error.
	FailAll bool

	// Calls counts repository calls by name.
	Calls map[string]int
}

// NewMemStore returns an empty store whose category table holds every
// category.
func NewMemStore() *MemStore {
	s := &MemStore{
		Now:        time.Now,
		objects:    make(map[objectKey]*registry.RegisteredObject),
		edges:      make(map[registry.RelationKind]map[registry.Edge]struct{}),
		snapshots:  make(map[int64]*registry.Snapshot),
		categories: make(map[registry.Category]*registry.CategoryRef),
		Calls:      make(map[string]int),
	}
	for i, c := range registry.Categories {
		s.categories[c] = &registry.CategoryRef{ID: int64(i + 1), Code: c, Title: string(c)}
	}
	return s
}

func (s *MemStore) enter(call string) error {
	s.Calls[call]++
	if s.FailAll {
		return apperrors.New(apperrors.CodeDBConnectionError, "store unavailable")
	}
	return nil
}

// CallCount returns how many times call was made.
func (s *MemStore) CallCount(call string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Calls[call]
}

// Objects returns the object repository view.
func (s *MemStore) Objects() registry.ObjectRepository { return memObjects{s} }

// Persons returns the person repository view.
func (s *MemStore) Persons() registry.PersonRepository { return memPersons{s} }

// Organizations returns the organization repository view.
func (s *MemStore) Organizations() registry.OrganizationRepository { return memOrgs{s} }

// Countries returns the country repository view.
func (s *MemStore) Countries() registry.CountryRepository { return memCountries{s} }

// Relations returns the relation repository view.
func (s *MemStore) Relations() registry.RelationRepository { return memRelations{s} }

// Snapshots returns the snapshot repository view.
func (s *MemStore) Snapshots() registry.SnapshotRepository { return memSnapshots{s} }

// Categories returns the category repository view.
func (s *MemStore) Categories() registry.CategoryRepository { return memCategories{s} }

// ─────────────────────────────────────────────────────────────────────────────
// Seeding and inspection
// ─────────────────────────────────────────────────────────────────────────────

// SeedCountries replaces the country table.
func (s *MemStore) SeedCountries(countries ...*registry.Country) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.countries = countries
}

// RemoveCategory deletes a category reference row.
func (s *MemStore) RemoveCategory(c registry.Category) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.categories, c)
}

// SeedObject stores obj as-is, keeping its UpdatedAt when set.
func (s *MemStore) SeedObject(obj *registry.RegisteredObject) *registry.RegisteredObject {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objectSeq++
	cp := *obj
	cp.ID = s.objectSeq
	if cp.UpdatedAt.IsZero() {
		cp.UpdatedAt = s.Now()
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = cp.UpdatedAt
	}
	s.objects[objectKey{cp.Category, cp.RegistrationNumber}] = &cp
	out := cp
	return &out
}

// Object returns a copy of the stored object or nil.
func (s *MemStore) Object(category registry.Category, number string) *registry.RegisteredObject {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.objects[objectKey{category, number}]
	if !ok {
		return nil
	}
	cp := *o
	return &cp
}

// ObjectCount returns the number of stored objects.
func (s *MemStore) ObjectCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}

// AllPersons returns copies of every stored person ordered by ID.
func (s *MemStore) AllPersons() []registry.Person {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]registry.Person, len(s.persons))
	for i, p := range s.persons {
		out[i] = *p
	}
	return out
}

// AllOrganizations returns copies of every stored organization ordered by ID.
func (s *MemStore) AllOrganizations() []registry.Organization {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]registry.Organization, len(s.orgs))
	for i, o := range s.orgs {
		out[i] = *o
	}
	return out
}

// SeedOrganization stores an organization, deriving its search name.
func (s *MemStore) SeedOrganization(name, slug string) *registry.Organization {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orgSeq++
	s.orgKeySeq++
	o := &registry.Organization{
		ID: s.orgSeq, Key: s.orgKeySeq, Slug: slug,
		Name: name, FullName: name, ShortName: name,
		SearchName: registry.NormalizeOrgName(name),
	}
	s.orgs = append(s.orgs, o)
	cp := *o
	return &cp
}

// SeedPerson stores a person.
func (s *MemStore) SeedPerson(parts registry.NameParts, slug string) *registry.Person {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.personSeq++
	s.personKeySeq++
	p := &registry.Person{
		ID: s.personSeq, Key: s.personKeySeq, Slug: slug,
		LastName: parts.Last, FirstName: parts.First, MiddleName: parts.Middle,
	}
	s.persons = append(s.persons, p)
	cp := *p
	return &cp
}

// Edges returns the stored edges of kind sorted by object then entity.
func (s *MemStore) Edges(kind registry.RelationKind) []registry.Edge {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]registry.Edge, 0, len(s.edges[kind]))
	for e := range s.edges[kind] {
		out = append(out, e)
	}
	sortEdges(out)
	return out
}

func sortEdges(edges []registry.Edge) {
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].ObjectID != edges[j].ObjectID {
			return edges[i].ObjectID < edges[j].ObjectID
		}
		return edges[i].EntityID < edges[j].EntityID
	})
}

// ─────────────────────────────────────────────────────────────────────────────
// Objects
// ─────────────────────────────────────────────────────────────────────────────

type memObjects struct{ s *MemStore }

func (m memObjects) FindByRegistrationNumbers(_ context.Context, category registry.Category, numbers []string) (map[string]*registry.RegisteredObject, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if err := m.s.enter("objects.find"); err != nil {
		return nil, err
	}
	out := make(map[string]*registry.RegisteredObject)
	for _, n := range numbers {
		if o, ok := m.s.objects[objectKey{category, n}]; ok {
			cp := *o
			out[n] = &cp
		}
	}
	return out, nil
}

func (m memObjects) CreateBatch(_ context.Context, objects []*registry.RegisteredObject) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if err := m.s.enter("objects.create_batch"); err != nil {
		return err
	}
	seen := make(map[objectKey]struct{}, len(objects))
	for _, o := range objects {
		k := objectKey{o.Category, o.RegistrationNumber}
		if _, exists := m.s.objects[k]; exists {
			return apperrors.Conflict("duplicate registered object").WithDetail(o.RegistrationNumber)
		}
		if _, dup := seen[k]; dup {
			return apperrors.Conflict("duplicate registered object in batch").WithDetail(o.RegistrationNumber)
		}
		seen[k] = struct{}{}
	}
	now := m.s.Now()
	for _, o := range objects {
		m.s.objectSeq++
		o.ID = m.s.objectSeq
		o.CreatedAt, o.UpdatedAt = now, now
		cp := *o
		m.s.objects[objectKey{o.Category, o.RegistrationNumber}] = &cp
	}
	return nil
}

func (m memObjects) UpdateBatch(_ context.Context, updates []registry.ObjectUpdate) (int, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if err := m.s.enter("objects.update_batch"); err != nil {
		return 0, err
	}
	byID := make(map[int64]*registry.RegisteredObject, len(m.s.objects))
	for _, o := range m.s.objects {
		byID[o.ID] = o
	}
	for _, u := range updates {
		if _, ok := byID[u.ID]; !ok {
			return 0, apperrors.NotFound("registered object").WithDetail(strconv.FormatInt(u.ID, 10))
		}
	}
	now := m.s.Now()
	n := 0
	for _, u := range updates {
		if len(u.Changes) == 0 {
			continue
		}
		o := byID[u.ID]
		for _, c := range u.Changes {
			o.Set(c.Field, c.NewValue)
		}
		o.UpdatedAt = now
		n++
	}
	return n, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Persons
// ─────────────────────────────────────────────────────────────────────────────

type memPersons struct{ s *MemStore }

func (m memPersons) FindByNameParts(_ context.Context, parts []registry.NameParts) (map[registry.NameParts]*registry.Person, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if err := m.s.enter("persons.find"); err != nil {
		return nil, err
	}
	want := make(map[registry.NameParts]struct{}, len(parts))
	for _, p := range parts {
		want[p] = struct{}{}
	}
	out := make(map[registry.NameParts]*registry.Person)
	for _, p := range m.s.persons {
		if _, ok := want[p.Parts()]; ok {
			if _, dup := out[p.Parts()]; !dup {
				cp := *p
				out[p.Parts()] = &cp
			}
		}
	}
	return out, nil
}

func (m memPersons) TakenSlugs(_ context.Context, bases []string) (map[string]struct{}, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if err := m.s.enter("persons.taken_slugs"); err != nil {
		return nil, err
	}
	slugs := make([]string, len(m.s.persons))
	for i, p := range m.s.persons {
		slugs[i] = p.Slug
	}
	return takenSlugs(slugs, bases), nil
}

func (m memPersons) NextKeys(_ context.Context, n int) ([]int64, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if err := m.s.enter("persons.next_keys"); err != nil {
		return nil, err
	}
	return nextKeys(&m.s.personKeySeq, n), nil
}

func (m memPersons) InsertBatch(_ context.Context, persons []*registry.Person) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if err := m.s.enter("persons.insert_batch"); err != nil {
		return err
	}
	if m.s.FailBulkInserts {
		return apperrors.Conflict("simulated bulk conflict")
	}
	for i, p := range persons {
		if err := m.checkPerson(p, persons[:i]); err != nil {
			return err
		}
	}
	for _, p := range persons {
		m.add(p)
	}
	return nil
}

func (m memPersons) Insert(_ context.Context, p *registry.Person) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if err := m.s.enter("persons.insert"); err != nil {
		return err
	}
	if err := m.checkPerson(p, nil); err != nil {
		return err
	}
	m.add(p)
	return nil
}

func (m memPersons) checkPerson(p *registry.Person, pending []*registry.Person) error {
	for _, other := range append(append([]*registry.Person{}, m.s.persons...), pending...) {
		if other.Slug == p.Slug {
			return apperrors.Conflict("person slug taken").WithDetail(p.Slug)
		}
		if other.Parts() == p.Parts() {
			return apperrors.Conflict("person exists").WithDetail(p.Parts().Full())
		}
		if other.Key == p.Key {
			return apperrors.Conflict("person key taken")
		}
	}
	return nil
}

func (m memPersons) add(p *registry.Person) {
	m.s.personSeq++
	p.ID = m.s.personSeq
	cp := *p
	m.s.persons = append(m.s.persons, &cp)
}

// ─────────────────────────────────────────────────────────────────────────────
// Organizations
// ─────────────────────────────────────────────────────────────────────────────

type memOrgs struct{ s *MemStore }

func (m memOrgs) FindExact(_ context.Context, names []string) (map[string]*registry.Organization, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if err := m.s.enter("orgs.find_exact"); err != nil {
		return nil, err
	}
	out := make(map[string]*registry.Organization)
	for _, n := range names {
		for _, o := range m.s.orgs {
			if o.Name == n || o.FullName == n || o.ShortName == n {
				cp := *o
				out[n] = &cp
				break
			}
		}
	}
	return out, nil
}

func (m memOrgs) FindBySearchFragment(_ context.Context, fragment string) (*registry.Organization, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if err := m.s.enter("orgs.find_fragment"); err != nil {
		return nil, err
	}
	if fragment == "" {
		return nil, nil
	}
	for _, o := range m.s.orgs {
		if strings.Contains(o.SearchName, fragment) {
			cp := *o
			return &cp, nil
		}
	}
	return nil, nil
}

func (m memOrgs) TakenSlugs(_ context.Context, bases []string) (map[string]struct{}, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if err := m.s.enter("orgs.taken_slugs"); err != nil {
		return nil, err
	}
	slugs := make([]string, len(m.s.orgs))
	for i, o := range m.s.orgs {
		slugs[i] = o.Slug
	}
	return takenSlugs(slugs, bases), nil
}

func (m memOrgs) NextKeys(_ context.Context, n int) ([]int64, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if err := m.s.enter("orgs.next_keys"); err != nil {
		return nil, err
	}
	return nextKeys(&m.s.orgKeySeq, n), nil
}

func (m memOrgs) InsertBatch(_ context.Context, orgs []*registry.Organization) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if err := m.s.enter("orgs.insert_batch"); err != nil {
		return err
	}
	if m.s.FailBulkInserts {
		return apperrors.Conflict("simulated bulk conflict")
	}
	for i, o := range orgs {
		if err := m.checkOrg(o, orgs[:i]); err != nil {
			return err
		}
	}
	for _, o := range orgs {
		m.add(o)
	}
	return nil
}

func (m memOrgs) Insert(_ context.Context, o *registry.Organization) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if err := m.s.enter("orgs.insert"); err != nil {
		return err
	}
	if err := m.checkOrg(o, nil); err != nil {
		return err
	}
	m.add(o)
	return nil
}

func (m memOrgs) checkOrg(o *registry.Organization, pending []*registry.Organization) error {
	for _, other := range append(append([]*registry.Organization{}, m.s.orgs...), pending...) {
		if other.Slug == o.Slug {
			return apperrors.Conflict("organization slug taken").WithDetail(o.Slug)
		}
		if other.Key == o.Key {
			return apperrors.Conflict("organization key taken")
		}
	}
	return nil
}

func (m memOrgs) add(o *registry.Organization) {
	m.s.orgSeq++
	o.ID = m.s.orgSeq
	if o.SearchName == "" {
		o.SearchName = registry.NormalizeOrgName(o.Name)
	}
	cp := *o
	m.s.orgs = append(m.s.orgs, &cp)
}

// ─────────────────────────────────────────────────────────────────────────────
// Countries
// ─────────────────────────────────────────────────────────────────────────────

type memCountries struct{ s *MemStore }

func (m memCountries) All(_ context.Context) ([]*registry.Country, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if err := m.s.enter("countries.all"); err != nil {
		return nil, err
	}
	out := make([]*registry.Country, len(m.s.countries))
	copy(out, m.s.countries)
	return out, nil
}

func (m memCountries) FindByNameContaining(_ context.Context, fragment string) (*registry.Country, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if err := m.s.enter("countries.find_name"); err != nil {
		return nil, err
	}
	f := strings.ToLower(fragment)
	for _, c := range m.s.countries {
		if strings.Contains(strings.ToLower(c.Name), f) {
			return c, nil
		}
	}
	return nil, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Relations
// ─────────────────────────────────────────────────────────────────────────────

type memRelations struct{ s *MemStore }

func (m memRelations) DeleteForObjects(_ context.Context, kind registry.RelationKind, objectIDs []int64) (int64, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if err := m.s.enter("relations.delete"); err != nil {
		return 0, err
	}
	ids := make(map[int64]struct{}, len(objectIDs))
	for _, id := range objectIDs {
		ids[id] = struct{}{}
	}
	var n int64
	for e := range m.s.edges[kind] {
		if _, ok := ids[e.ObjectID]; ok {
			delete(m.s.edges[kind], e)
			n++
		}
	}
	return n, nil
}

func (m memRelations) InsertEdges(_ context.Context, kind registry.RelationKind, edges []registry.Edge) (int64, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if err := m.s.enter("relations.insert"); err != nil {
		return 0, err
	}
	if m.s.edges[kind] == nil {
		m.s.edges[kind] = make(map[registry.Edge]struct{})
	}
	var n int64
	for _, e := range edges {
		if _, exists := m.s.edges[kind][e]; exists {
			continue
		}
		m.s.edges[kind][e] = struct{}{}
		n++
	}
	return n, nil
}

func (m memRelations) EdgesForObjects(_ context.Context, kind registry.RelationKind, objectIDs []int64) ([]registry.Edge, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if err := m.s.enter("relations.list"); err != nil {
		return nil, err
	}
	ids := make(map[int64]struct{}, len(objectIDs))
	for _, id := range objectIDs {
		ids[id] = struct{}{}
	}
	var out []registry.Edge
	for e := range m.s.edges[kind] {
		if _, ok := ids[e.ObjectID]; ok {
			out = append(out, e)
		}
	}
	sortEdges(out)
	return out, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Snapshots and categories
// ─────────────────────────────────────────────────────────────────────────────

type memSnapshots struct{ s *MemStore }

func (m memSnapshots) Get(_ context.Context, id int64) (*registry.Snapshot, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if err := m.s.enter("snapshots.get"); err != nil {
		return nil, err
	}
	snap, ok := m.s.snapshots[id]
	if !ok {
		return nil, apperrors.New(apperrors.CodeSnapshotNotFound, "catalogue snapshot not found").
			WithDetail(strconv.FormatInt(id, 10))
	}
	cp := *snap
	return &cp, nil
}

func (m memSnapshots) List(_ context.Context, filter registry.SnapshotFilter) ([]*registry.Snapshot, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if err := m.s.enter("snapshots.list"); err != nil {
		return nil, err
	}
	var out []*registry.Snapshot
	for _, snap := range m.s.snapshots {
		if filter.Category != "" && snap.Category != filter.Category {
			continue
		}
		if filter.OnlyUnprocessed && snap.Processed() {
			continue
		}
		cp := *snap
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (m memSnapshots) LatestUnprocessed(ctx context.Context, category registry.Category) (*registry.Snapshot, error) {
	list, err := m.List(ctx, registry.SnapshotFilter{Category: category, OnlyUnprocessed: true, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, apperrors.New(apperrors.CodeSnapshotNotFound, "no unprocessed snapshot").WithDetail(string(category))
	}
	return list[0], nil
}

func (m memSnapshots) Create(_ context.Context, snap *registry.Snapshot) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if err := m.s.enter("snapshots.create"); err != nil {
		return err
	}
	m.s.snapshotSeq++
	snap.ID = m.s.snapshotSeq
	if snap.UploadedAt.IsZero() {
		snap.UploadedAt = m.s.Now()
	}
	cp := *snap
	m.s.snapshots[snap.ID] = &cp
	return nil
}

func (m memSnapshots) MarkProcessed(_ context.Context, id int64, at time.Time) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if err := m.s.enter("snapshots.mark"); err != nil {
		return err
	}
	snap, ok := m.s.snapshots[id]
	if !ok {
		return apperrors.New(apperrors.CodeSnapshotNotFound, "catalogue snapshot not found")
	}
	t := at
	snap.LastProcessedAt = &t
	return nil
}

type memCategories struct{ s *MemStore }

func (m memCategories) Get(_ context.Context, code registry.Category) (*registry.CategoryRef, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if err := m.s.enter("categories.get"); err != nil {
		return nil, err
	}
	ref, ok := m.s.categories[code]
	if !ok {
		return nil, apperrors.New(apperrors.CodeCategoryNotFound, "ip category not found").WithDetail(string(code))
	}
	cp := *ref
	return &cp, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// helpers
// ─────────────────────────────────────────────────────────────────────────────

func takenSlugs(existing, bases []string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, slug := range existing {
		for _, base := range bases {
			if slug == base || strings.HasPrefix(slug, base+"-") {
				out[slug] = struct{}{}
				break
			}
		}
	}
	return out
}

func nextKeys(seq *int64, n int) []int64 {
	keys := make([]int64, n)
	for i := range keys {
		*seq++
		keys[i] = *seq
	}
	return keys
}
