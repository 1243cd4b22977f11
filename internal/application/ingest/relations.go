package ingest

import (
	"context"
	"sort"

	"github.com/turtacn/rid-registry/internal/application/resolver"
	"github.com/turtacn/rid-registry/internal/domain/registry"
	"github.com/turtacn/rid-registry/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/rid-registry/internal/intelligence/entitykind"
	apperrors "github.com/turtacn/rid-registry/pkg/errors"
)

// Role is the part a free-text entity plays for a registered object.
type Role string

const (
	RoleAuthor  Role = "author"
	RoleHolder  Role = "holder"
	RoleCountry Role = "country"
)

// Candidate is one harvested relation before resolution.  Kind is empty for
// holders until the classifier has run.
type Candidate struct {
	RegistrationNumber string
	Name               string
	Role               Role
	Kind               entitykind.Kind
}

// Classifier decides person vs organization for untyped holder names.
type Classifier interface {
	ClassifyBatch(ctx context.Context, texts []string) map[string]entitykind.Kind
}

// RelationConfig bounds relation writes.
type RelationConfig struct {
	DeleteBatchSize int
	InsertBatchSize int
}

// Reconciler replaces the relation sets of touched objects with the ones
// harvested from the current snapshot.
type Reconciler struct {
	relations  registry.RelationRepository
	resolver   *resolver.Resolver
	classifier Classifier
	cfg        RelationConfig
	preview    bool
	logger     logging.Logger
}

// NewReconciler builds a Reconciler.  In preview mode entities are resolved
// but no edge is deleted or inserted.
func NewReconciler(relations registry.RelationRepository, res *resolver.Resolver, classifier Classifier, cfg RelationConfig, preview bool, logger logging.Logger) *Reconciler {
	if cfg.DeleteBatchSize < 1 {
		cfg.DeleteBatchSize = 500
	}
	if cfg.InsertBatchSize < 1 {
		cfg.InsertBatchSize = 2000
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Reconciler{
		relations:  relations,
		resolver:   res,
		classifier: classifier,
		cfg:        cfg,
		preview:    preview,
		logger:     logger.Named("relations"),
	}
}

// Reconcile resolves candidates and rewrites, for every kind in kinds, the
// edges of exactly the objects in objectIDs.  Objects without candidates end
// up with no edges of those kinds.
func (r *Reconciler) Reconcile(ctx context.Context, kinds []registry.RelationKind, candidates []Candidate, objectIDs map[string]int64) (RelationStats, error) {
	var stats RelationStats
	if len(objectIDs) == 0 || len(kinds) == 0 {
		return stats, nil
	}
	candidates = dedupeCandidates(candidates)
	r.classifyHolders(ctx, candidates)

	personNames, orgNames := r.groupEntities(ctx, candidates)
	persons, err := r.resolver.ResolvePersonsBulk(ctx, personNames)
	if err != nil {
		return stats, err
	}
	orgs, err := r.resolver.ResolveOrganizationsBulk(ctx, orgNames)
	if err != nil {
		return stats, err
	}

	edges := make(map[registry.RelationKind]map[registry.Edge]struct{}, len(kinds))
	for _, k := range kinds {
		edges[k] = make(map[registry.Edge]struct{})
	}
	add := func(kind registry.RelationKind, objectID, entityID int64) {
		if set, ok := edges[kind]; ok {
			set[registry.Edge{ObjectID: objectID, EntityID: entityID}] = struct{}{}
		}
	}

	for _, c := range candidates {
		objectID, ok := objectIDs[c.RegistrationNumber]
		if !ok || objectID == 0 {
			continue
		}
		switch {
		case c.Role == RoleCountry:
			country, err := r.resolver.ResolveCountry(ctx, c.Name)
			if err != nil {
				return stats, err
			}
			if country == nil {
				stats.Unresolved++
				continue
			}
			add(registry.RelationUsageCountry, objectID, country.ID)
		case c.Kind == entitykind.KindPerson:
			p, ok := persons[c.Name]
			if !ok {
				if c.Role == RoleHolder {
					if o, ok := orgs[c.Name]; ok {
						add(registry.RelationOrgHolder, objectID, o.ID)
						continue
					}
				}
				stats.Unresolved++
				continue
			}
			if c.Role == RoleAuthor {
				add(registry.RelationAuthor, objectID, p.ID)
			} else {
				add(registry.RelationPersonHolder, objectID, p.ID)
			}
		default:
			o, ok := orgs[c.Name]
			if !ok {
				stats.Unresolved++
				continue
			}
			add(registry.RelationOrgHolder, objectID, o.ID)
		}
	}

	ids := make([]int64, 0, len(objectIDs))
	for _, id := range objectIDs {
		if id != 0 {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	stats.ObjectsTouched = len(ids)

	if r.preview {
		for _, k := range kinds {
			stats.EdgesInserted += int64(len(edges[k]))
		}
		return stats, nil
	}

	for _, k := range kinds {
		deleted, inserted, err := r.replace(ctx, k, ids, edges[k])
		if err != nil {
			return stats, err
		}
		stats.EdgesDeleted += deleted
		stats.EdgesInserted += inserted
	}
	r.logger.Debug("relations reconciled",
		logging.Int("objects", stats.ObjectsTouched),
		logging.Int64("deleted", stats.EdgesDeleted),
		logging.Int64("inserted", stats.EdgesInserted),
		logging.Int("unresolved", stats.Unresolved))
	return stats, nil
}

// replace deletes every edge of kind for ids, then inserts set.
func (r *Reconciler) replace(ctx context.Context, kind registry.RelationKind, ids []int64, set map[registry.Edge]struct{}) (int64, int64, error) {
	var deleted, inserted int64
	for start := 0; start < len(ids); start += r.cfg.DeleteBatchSize {
		end := min(start+r.cfg.DeleteBatchSize, len(ids))
		n, err := r.relations.DeleteForObjects(ctx, kind, ids[start:end])
		if err != nil {
			return deleted, inserted, apperrors.Wrapf(err, apperrors.CodeUnknown, "deleting %s edges", kind)
		}
		deleted += n
	}

	edges := make([]registry.Edge, 0, len(set))
	for e := range set {
		edges = append(edges, e)
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].ObjectID != edges[j].ObjectID {
			return edges[i].ObjectID < edges[j].ObjectID
		}
		return edges[i].EntityID < edges[j].EntityID
	})
	for start := 0; start < len(edges); start += r.cfg.InsertBatchSize {
		end := min(start+r.cfg.InsertBatchSize, len(edges))
		n, err := r.relations.InsertEdges(ctx, kind, edges[start:end])
		if err != nil {
			return deleted, inserted, apperrors.Wrapf(err, apperrors.CodeUnknown, "inserting %s edges", kind)
		}
		inserted += n
	}
	return deleted, inserted, nil
}

// classifyHolders fills in the kind of untyped holders in one batch.
func (r *Reconciler) classifyHolders(ctx context.Context, candidates []Candidate) {
	var untyped []string
	seen := make(map[string]struct{})
	for _, c := range candidates {
		if c.Role != RoleHolder || c.Kind != "" {
			continue
		}
		if _, dup := seen[c.Name]; dup {
			continue
		}
		seen[c.Name] = struct{}{}
		untyped = append(untyped, c.Name)
	}
	if len(untyped) == 0 {
		return
	}
	kinds := r.classifier.ClassifyBatch(ctx, untyped)
	for i := range candidates {
		if candidates[i].Role == RoleHolder && candidates[i].Kind == "" {
			candidates[i].Kind = kinds[candidates[i].Name]
			if candidates[i].Kind == "" {
				candidates[i].Kind = entitykind.KindOrganization
			}
		}
	}
}

// groupEntities splits the names to resolve into persons and organizations.
// Person-kind holders whose name is a single token are resolved as
// organizations; single-token authors are dropped.
func (r *Reconciler) groupEntities(ctx context.Context, candidates []Candidate) (persons, orgs []string) {
	seenPerson := make(map[string]struct{})
	seenOrg := make(map[string]struct{})
	label := make(map[string]bool)

	for i, c := range candidates {
		if c.Role == RoleCountry {
			continue
		}
		if c.Kind == entitykind.KindPerson {
			isLabel, ok := label[c.Name]
			if !ok {
				isLabel = r.resolver.ParseName(ctx, c.Name).IsLabel()
				label[c.Name] = isLabel
			}
			if !isLabel {
				if _, dup := seenPerson[c.Name]; !dup {
					seenPerson[c.Name] = struct{}{}
					persons = append(persons, c.Name)
				}
				continue
			}
			if c.Role == RoleAuthor {
				r.logger.Debug("dropping single-token author", logging.String("name", c.Name))
				continue
			}
			candidates[i].Kind = entitykind.KindOrganization
		}
		if _, dup := seenOrg[c.Name]; !dup {
			seenOrg[c.Name] = struct{}{}
			orgs = append(orgs, c.Name)
		}
	}
	return persons, orgs
}

func dedupeCandidates(in []Candidate) []Candidate {
	seen := make(map[Candidate]struct{}, len(in))
	out := make([]Candidate, 0, len(in))
	for _, c := range in {
		if c.Name == "" || c.RegistrationNumber == "" {
			continue
		}
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}
