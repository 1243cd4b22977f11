package repositories

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/turtacn/rid-registry/internal/domain/registry"
	"github.com/turtacn/rid-registry/internal/infrastructure/monitoring/logging"
	apperrors "github.com/turtacn/rid-registry/pkg/errors"
)

// ─────────────────────────────────────────────────────────────────────────────
// SnapshotRepository
// ─────────────────────────────────────────────────────────────────────────────

// SnapshotRepository stores catalogue snapshots.
type SnapshotRepository struct {
	pool   *pgxpool.Pool
	logger logging.Logger
}

// NewSnapshotRepository constructs a SnapshotRepository.
func NewSnapshotRepository(pool *pgxpool.Pool, logger logging.Logger) *SnapshotRepository {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &SnapshotRepository{pool: pool, logger: logger}
}

var _ registry.SnapshotRepository = (*SnapshotRepository)(nil)

const selectSnapshot = `SELECT id, ip_category, source_uri, uploaded_at, last_processed_at FROM catalogue_snapshots`

func scanSnapshot(row pgx.Row) (*registry.Snapshot, error) {
	var (
		s        registry.Snapshot
		category string
	)
	if err := row.Scan(&s.ID, &category, &s.SourceURI, &s.UploadedAt, &s.LastProcessedAt); err != nil {
		return nil, err
	}
	s.Category = registry.Category(category)
	return &s, nil
}

func (r *SnapshotRepository) Get(ctx context.Context, id int64) (*registry.Snapshot, error) {
	s, err := scanSnapshot(r.pool.QueryRow(ctx, selectSnapshot+` WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.New(apperrors.CodeSnapshotNotFound, "catalogue snapshot not found").
			WithDetail(strconv.FormatInt(id, 10))
	}
	if err != nil {
		return nil, mapError(err, "failed to load snapshot")
	}
	return s, nil
}

// List returns snapshots newest first.
func (r *SnapshotRepository) List(ctx context.Context, filter registry.SnapshotFilter) ([]*registry.Snapshot, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.Category != "" {
		args = append(args, string(filter.Category))
		where = append(where, fmt.Sprintf("ip_category = $%d", len(args)))
	}
	if filter.OnlyUnprocessed {
		where = append(where, "last_processed_at IS NULL")
	}
	query := selectSnapshot
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY uploaded_at DESC, id DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, mapError(err, "failed to list snapshots")
	}
	snapshots, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*registry.Snapshot, error) {
		return scanSnapshot(row)
	})
	return snapshots, mapError(err, "failed to list snapshots")
}

func (r *SnapshotRepository) LatestUnprocessed(ctx context.Context, category registry.Category) (*registry.Snapshot, error) {
	list, err := r.List(ctx, registry.SnapshotFilter{Category: category, OnlyUnprocessed: true, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, apperrors.New(apperrors.CodeSnapshotNotFound, "no unprocessed snapshot").WithDetail(string(category))
	}
	return list[0], nil
}

func (r *SnapshotRepository) Create(ctx context.Context, s *registry.Snapshot) error {
	if s.UploadedAt.IsZero() {
		s.UploadedAt = time.Now().UTC()
	}
	err := r.pool.QueryRow(ctx, `
		INSERT INTO catalogue_snapshots (ip_category, source_uri, uploaded_at)
		VALUES ($1, $2, $3)
		RETURNING id`,
		string(s.Category), s.SourceURI, s.UploadedAt,
	).Scan(&s.ID)
	if err != nil {
		return mapError(err, "failed to register snapshot")
	}
	r.logger.Info("snapshot registered",
		logging.Int64("snapshot_id", s.ID),
		logging.String("category", string(s.Category)),
		logging.String("source_uri", s.SourceURI))
	return nil
}

func (r *SnapshotRepository) MarkProcessed(ctx context.Context, id int64, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `UPDATE catalogue_snapshots SET last_processed_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return mapError(err, "failed to mark snapshot processed")
	}
	if tag.RowsAffected() == 0 {
		return apperrors.New(apperrors.CodeSnapshotNotFound, "catalogue snapshot not found").
			WithDetail(strconv.FormatInt(id, 10))
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Reference tables
// ─────────────────────────────────────────────────────────────────────────────

// CategoryRepository reads ip_categories.
type CategoryRepository struct {
	pool *pgxpool.Pool
}

// NewCategoryRepository constructs a CategoryRepository.
func NewCategoryRepository(pool *pgxpool.Pool) *CategoryRepository {
	return &CategoryRepository{pool: pool}
}

var _ registry.CategoryRepository = (*CategoryRepository)(nil)

func (r *CategoryRepository) Get(ctx context.Context, code registry.Category) (*registry.CategoryRef, error) {
	var (
		ref  registry.CategoryRef
		name string
	)
	err := r.pool.QueryRow(ctx, `SELECT id, code, title FROM ip_categories WHERE code = $1`, string(code)).
		Scan(&ref.ID, &name, &ref.Title)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.New(apperrors.CodeCategoryNotFound, "ip category not found").WithDetail(string(code))
	}
	if err != nil {
		return nil, mapError(err, "failed to load ip category")
	}
	ref.Code = registry.Category(name)
	return &ref, nil
}

// CountryRepository reads countries.
type CountryRepository struct {
	pool *pgxpool.Pool
}

// NewCountryRepository constructs a CountryRepository.
func NewCountryRepository(pool *pgxpool.Pool) *CountryRepository {
	return &CountryRepository{pool: pool}
}

var _ registry.CountryRepository = (*CountryRepository)(nil)

func scanCountry(row pgx.CollectableRow) (*registry.Country, error) {
	var c registry.Country
	err := row.Scan(&c.ID, &c.Code, &c.Alpha3, &c.Name)
	return &c, err
}

func (r *CountryRepository) All(ctx context.Context) ([]*registry.Country, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, code, alpha3, name FROM countries ORDER BY id`)
	if err != nil {
		return nil, mapError(err, "failed to load countries")
	}
	countries, err := pgx.CollectRows(rows, scanCountry)
	return countries, mapError(err, "failed to load countries")
}

func (r *CountryRepository) FindByNameContaining(ctx context.Context, fragment string) (*registry.Country, error) {
	if fragment == "" {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, code, alpha3, name
		FROM countries
		WHERE name ILIKE '%' || $1 || '%'
		ORDER BY id
		LIMIT 1`, escapeLike(fragment))
	if err != nil {
		return nil, mapError(err, "failed to search countries")
	}
	countries, err := pgx.CollectRows(rows, scanCountry)
	if err != nil {
		return nil, mapError(err, "failed to search countries")
	}
	if len(countries) == 0 {
		return nil, nil
	}
	return countries[0], nil
}
