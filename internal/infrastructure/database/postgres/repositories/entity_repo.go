package repositories

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/turtacn/rid-registry/internal/domain/registry"
	"github.com/turtacn/rid-registry/internal/infrastructure/monitoring/logging"
	apperrors "github.com/turtacn/rid-registry/pkg/errors"
)

// ─────────────────────────────────────────────────────────────────────────────
// PersonRepository
// ─────────────────────────────────────────────────────────────────────────────

// PersonRepository stores canonical persons.
type PersonRepository struct {
	pool   *pgxpool.Pool
	logger logging.Logger
}

// NewPersonRepository constructs a PersonRepository.
func NewPersonRepository(pool *pgxpool.Pool, logger logging.Logger) *PersonRepository {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &PersonRepository{pool: pool, logger: logger}
}

var _ registry.PersonRepository = (*PersonRepository)(nil)

func (r *PersonRepository) FindByNameParts(ctx context.Context, parts []registry.NameParts) (map[registry.NameParts]*registry.Person, error) {
	out := make(map[registry.NameParts]*registry.Person, len(parts))
	if len(parts) == 0 {
		return out, nil
	}
	last := make([]string, len(parts))
	first := make([]string, len(parts))
	middle := make([]string, len(parts))
	for i, p := range parts {
		last[i], first[i], middle[i] = p.Last, p.First, p.Middle
	}
	rows, err := r.pool.Query(ctx, `
		SELECT p.id, p.key, p.slug, p.last_name, p.first_name, p.middle_name
		FROM persons p
		JOIN unnest($1::text[], $2::text[], $3::text[]) AS k(last_name, first_name, middle_name)
		  ON p.last_name = k.last_name AND p.first_name = k.first_name AND p.middle_name = k.middle_name`,
		last, first, middle)
	if err != nil {
		r.logger.Error("person lookup failed", logging.Err(err), logging.Int("names", len(parts)))
		return nil, mapError(err, "failed to look up persons")
	}
	defer rows.Close()
	for rows.Next() {
		var p registry.Person
		if err := rows.Scan(&p.ID, &p.Key, &p.Slug, &p.LastName, &p.FirstName, &p.MiddleName); err != nil {
			return nil, mapError(err, "failed to scan person")
		}
		out[p.Parts()] = &p
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err, "failed to iterate persons")
	}
	return out, nil
}

func (r *PersonRepository) TakenSlugs(ctx context.Context, bases []string) (map[string]struct{}, error) {
	if len(bases) == 0 {
		return map[string]struct{}{}, nil
	}
	rows, err := r.pool.Query(ctx,
		`SELECT slug FROM persons WHERE slug = ANY($1) OR slug LIKE ANY($2)`, bases, slugPatterns(bases))
	if err != nil {
		return nil, mapError(err, "failed to read person slugs")
	}
	taken, err := collectSlugs(rows)
	return taken, mapError(err, "failed to read person slugs")
}

func (r *PersonRepository) NextKeys(ctx context.Context, n int) ([]int64, error) {
	keys, err := nextKeys(ctx, r.pool, "person_key_seq", n)
	return keys, mapError(err, "failed to reserve person keys")
}

// InsertBatch copies persons in one transaction.  Any unique violation rolls
// the whole batch back and surfaces as a conflict.
func (r *PersonRepository) InsertBatch(ctx context.Context, persons []*registry.Person) error {
	if len(persons) == 0 {
		return nil
	}
	slugs := make([]string, len(persons))
	for i, p := range persons {
		slugs[i] = p.Slug
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeDBConnectionError, "failed to begin transaction")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	_, err = tx.CopyFrom(ctx, pgx.Identifier{"persons"},
		[]string{"key", "slug", "last_name", "first_name", "middle_name"},
		pgx.CopyFromSlice(len(persons), func(i int) ([]interface{}, error) {
			p := persons[i]
			return []interface{}{p.Key, p.Slug, p.LastName, p.FirstName, p.MiddleName}, nil
		}))
	if err != nil {
		r.logger.Debug("person batch rejected", logging.Err(err), logging.Int("persons", len(persons)))
		return mapError(err, "failed to insert persons")
	}
	ids, err := idsBySlug(ctx, tx, "persons", slugs)
	if err != nil {
		return mapError(err, "failed to read back person ids")
	}
	if err := tx.Commit(ctx); err != nil {
		return mapError(err, "failed to commit persons")
	}
	for _, p := range persons {
		p.ID = ids[p.Slug]
	}
	return nil
}

func (r *PersonRepository) Insert(ctx context.Context, p *registry.Person) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO persons (key, slug, last_name, first_name, middle_name)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		p.Key, p.Slug, p.LastName, p.FirstName, p.MiddleName,
	).Scan(&p.ID)
	return mapError(err, "failed to insert person")
}

// ─────────────────────────────────────────────────────────────────────────────
// OrganizationRepository
// ─────────────────────────────────────────────────────────────────────────────

// OrganizationRepository stores canonical organizations.
type OrganizationRepository struct {
	pool   *pgxpool.Pool
	logger logging.Logger
}

// NewOrganizationRepository constructs an OrganizationRepository.
func NewOrganizationRepository(pool *pgxpool.Pool, logger logging.Logger) *OrganizationRepository {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &OrganizationRepository{pool: pool, logger: logger}
}

var _ registry.OrganizationRepository = (*OrganizationRepository)(nil)

const orgColumns = `o.id, o.key, o.slug, o.name, o.full_name, o.short_name, o.search_name`

func scanOrganization(row pgx.Row, extra ...interface{}) (*registry.Organization, error) {
	var o registry.Organization
	dest := append(extra, &o.ID, &o.Key, &o.Slug, &o.Name, &o.FullName, &o.ShortName, &o.SearchName)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	return &o, nil
}

// FindExact resolves each name to the oldest organization carrying it as
// name, full name or short name.
func (r *OrganizationRepository) FindExact(ctx context.Context, names []string) (map[string]*registry.Organization, error) {
	out := make(map[string]*registry.Organization, len(names))
	if len(names) == 0 {
		return out, nil
	}
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT ON (k.name) k.name, `+orgColumns+`
		FROM unnest($1::text[]) AS k(name)
		JOIN organizations o
		  ON o.name = k.name OR o.full_name = k.name OR o.short_name = k.name
		ORDER BY k.name, o.id`, names)
	if err != nil {
		r.logger.Error("organization lookup failed", logging.Err(err), logging.Int("names", len(names)))
		return nil, mapError(err, "failed to look up organizations")
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		o, err := scanOrganization(rows, &name)
		if err != nil {
			return nil, mapError(err, "failed to scan organization")
		}
		out[name] = o
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err, "failed to iterate organizations")
	}
	return out, nil
}

func (r *OrganizationRepository) FindBySearchFragment(ctx context.Context, fragment string) (*registry.Organization, error) {
	if fragment == "" {
		return nil, nil
	}
	o, err := scanOrganization(r.pool.QueryRow(ctx, `
		SELECT `+orgColumns+`
		FROM organizations o
		WHERE o.search_name LIKE '%' || $1 || '%'
		ORDER BY o.id
		LIMIT 1`, escapeLike(fragment)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, mapError(err, "failed to search organizations")
	}
	return o, nil
}

func (r *OrganizationRepository) TakenSlugs(ctx context.Context, bases []string) (map[string]struct{}, error) {
	if len(bases) == 0 {
		return map[string]struct{}{}, nil
	}
	rows, err := r.pool.Query(ctx,
		`SELECT slug FROM organizations WHERE slug = ANY($1) OR slug LIKE ANY($2)`, bases, slugPatterns(bases))
	if err != nil {
		return nil, mapError(err, "failed to read organization slugs")
	}
	taken, err := collectSlugs(rows)
	return taken, mapError(err, "failed to read organization slugs")
}

func (r *OrganizationRepository) NextKeys(ctx context.Context, n int) ([]int64, error) {
	keys, err := nextKeys(ctx, r.pool, "organization_key_seq", n)
	return keys, mapError(err, "failed to reserve organization keys")
}

// InsertBatch copies orgs in one transaction, all or nothing.
func (r *OrganizationRepository) InsertBatch(ctx context.Context, orgs []*registry.Organization) error {
	if len(orgs) == 0 {
		return nil
	}
	slugs := make([]string, len(orgs))
	for i, o := range orgs {
		slugs[i] = o.Slug
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeDBConnectionError, "failed to begin transaction")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	_, err = tx.CopyFrom(ctx, pgx.Identifier{"organizations"},
		[]string{"key", "slug", "name", "full_name", "short_name", "search_name"},
		pgx.CopyFromSlice(len(orgs), func(i int) ([]interface{}, error) {
			o := orgs[i]
			return []interface{}{o.Key, o.Slug, o.Name, o.FullName, o.ShortName, o.SearchName}, nil
		}))
	if err != nil {
		r.logger.Debug("organization batch rejected", logging.Err(err), logging.Int("organizations", len(orgs)))
		return mapError(err, "failed to insert organizations")
	}
	ids, err := idsBySlug(ctx, tx, "organizations", slugs)
	if err != nil {
		return mapError(err, "failed to read back organization ids")
	}
	if err := tx.Commit(ctx); err != nil {
		return mapError(err, "failed to commit organizations")
	}
	for _, o := range orgs {
		o.ID = ids[o.Slug]
	}
	return nil
}

func (r *OrganizationRepository) Insert(ctx context.Context, o *registry.Organization) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO organizations (key, slug, name, full_name, short_name, search_name)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		o.Key, o.Slug, o.Name, o.FullName, o.ShortName, o.SearchName,
	).Scan(&o.ID)
	return mapError(err, "failed to insert organization")
}

// idsBySlug maps slugs of table to their row IDs.  table is always a
// package constant.
func idsBySlug(ctx context.Context, q querier, table string, slugs []string) (map[string]int64, error) {
	rows, err := q.Query(ctx, `SELECT id, slug FROM `+table+` WHERE slug = ANY($1)`, slugs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]int64, len(slugs))
	for rows.Next() {
		var (
			id   int64
			slug string
		)
		if err := rows.Scan(&id, &slug); err != nil {
			return nil, err
		}
		out[slug] = id
	}
	return out, rows.Err()
}
