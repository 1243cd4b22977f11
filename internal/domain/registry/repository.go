package registry

import (
	"context"
	"time"
)

// ObjectUpdate rewrites only the listed fields of one stored object.
type ObjectUpdate struct {
	ID      int64
	Changes []FieldChange
}

// ObjectRepository persists RegisteredObjects.
type ObjectRepository interface {
	// FindByRegistrationNumbers returns the stored objects of category keyed by
	// registration number.  Unknown numbers are absent from the map.
	FindByRegistrationNumbers(ctx context.Context, category Category, numbers []string) (map[string]*RegisteredObject, error)
	// CreateBatch inserts objects in one statement and sets their IDs.
	CreateBatch(ctx context.Context, objects []*RegisteredObject) error
	// UpdateBatch applies updates in one transaction and returns how many
	// rows were rewritten.
	UpdateBatch(ctx context.Context, updates []ObjectUpdate) (int, error)
}

// PersonRepository persists Persons.
type PersonRepository interface {
	FindByNameParts(ctx context.Context, parts []NameParts) (map[NameParts]*Person, error)
	// TakenSlugs returns every stored slug equal to a base or of the form
	// base-N.
	TakenSlugs(ctx context.Context, bases []string) (map[string]struct{}, error)
	// NextKeys reserves n synthetic keys from the person key sequence.
	NextKeys(ctx context.Context, n int) ([]int64, error)
	// InsertBatch inserts all persons or none and sets their IDs.
	InsertBatch(ctx context.Context, persons []*Person) error
	// Insert inserts one person; a slug or name collision yields a conflict
	// error.
	Insert(ctx context.Context, p *Person) error
}

// OrganizationRepository persists Organizations.
type OrganizationRepository interface {
	// FindExact matches each name against name, full name or short name.
	FindExact(ctx context.Context, names []string) (map[string]*Organization, error)
	// FindBySearchFragment returns the oldest organization whose search name
	// contains fragment, or nil.
	FindBySearchFragment(ctx context.Context, fragment string) (*Organization, error)
	TakenSlugs(ctx context.Context, bases []string) (map[string]struct{}, error)
	NextKeys(ctx context.Context, n int) ([]int64, error)
	InsertBatch(ctx context.Context, orgs []*Organization) error
	Insert(ctx context.Context, o *Organization) error
}

// CountryRepository reads the country reference table.
type CountryRepository interface {
	All(ctx context.Context) ([]*Country, error)
	// FindByNameContaining returns the first country whose name contains
	// fragment case-insensitively, or nil.
	FindByNameContaining(ctx context.Context, fragment string) (*Country, error)
}

// RelationKind identifies one of the edge tables between objects and
// entities.
type RelationKind string

const (
	RelationAuthor       RelationKind = "author"
	RelationPersonHolder RelationKind = "person_holder"
	RelationOrgHolder    RelationKind = "org_holder"
	RelationUsageCountry RelationKind = "usage_country"
)

// RelationKinds lists every edge kind in reconciliation order.
var RelationKinds = []RelationKind{RelationAuthor, RelationPersonHolder, RelationOrgHolder, RelationUsageCountry}

// Edge links a registered object to a person, organization or country.
type Edge struct {
	ObjectID int64
	EntityID int64
}

// RelationRepository persists edges.
type RelationRepository interface {
	// DeleteForObjects removes every edge of kind attached to objectIDs.
	DeleteForObjects(ctx context.Context, kind RelationKind, objectIDs []int64) (int64, error)
	// InsertEdges inserts edges, ignoring ones already present.
	InsertEdges(ctx context.Context, kind RelationKind, edges []Edge) (int64, error)
	// EdgesForObjects lists the stored edges of kind for objectIDs.
	EdgesForObjects(ctx context.Context, kind RelationKind, objectIDs []int64) ([]Edge, error)
}

// SnapshotFilter narrows SnapshotRepository.List.
type SnapshotFilter struct {
	Category        Category
	OnlyUnprocessed bool
	Limit           int
}

// SnapshotRepository persists catalogue snapshots.
type SnapshotRepository interface {
	Get(ctx context.Context, id int64) (*Snapshot, error)
	List(ctx context.Context, filter SnapshotFilter) ([]*Snapshot, error)
	// LatestUnprocessed returns the newest snapshot of category without a
	// processed marker, or a not-found error.
	LatestUnprocessed(ctx context.Context, category Category) (*Snapshot, error)
	Create(ctx context.Context, s *Snapshot) error
	MarkProcessed(ctx context.Context, id int64, at time.Time) error
}

// CategoryRepository reads the category reference table.
type CategoryRepository interface {
	// Get returns the category row or a CodeCategoryNotFound error.
	Get(ctx context.Context, code Category) (*CategoryRef, error)
}
