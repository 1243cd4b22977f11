package repositories

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/turtacn/rid-registry/internal/domain/registry"
	"github.com/turtacn/rid-registry/internal/infrastructure/monitoring/logging"
	apperrors "github.com/turtacn/rid-registry/pkg/errors"
)

// ─────────────────────────────────────────────────────────────────────────────
// ObjectRepository
// ─────────────────────────────────────────────────────────────────────────────

// ObjectRepository stores registered objects in registered_objects.
type ObjectRepository struct {
	pool   *pgxpool.Pool
	logger logging.Logger
}

// NewObjectRepository constructs an ObjectRepository.
func NewObjectRepository(pool *pgxpool.Pool, logger logging.Logger) *ObjectRepository {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &ObjectRepository{pool: pool, logger: logger}
}

var _ registry.ObjectRepository = (*ObjectRepository)(nil)

// objectColumns is the insert column list; the tracked field names double as
// column names.
var objectColumns = []string{
	"ip_category", "registration_number",
	"name", "application_date", "registration_date", "expiration_date",
	"actual", "publication_url", "creation_year",
	"abstract", "claims", "first_usage_date", "publication_year", "update_year",
	"created_at", "updated_at",
}

var updatableColumns = map[registry.FieldName]bool{
	registry.FieldObjectName:       true,
	registry.FieldApplicationDate:  true,
	registry.FieldRegistrationDate: true,
	registry.FieldExpirationDate:   true,
	registry.FieldActual:           true,
	registry.FieldPublicationURL:   true,
	registry.FieldCreationYear:     true,
	registry.FieldAbstract:         true,
	registry.FieldClaims:           true,
	registry.FieldFirstUsageDate:   true,
	registry.FieldPublicationYear:  true,
	registry.FieldUpdateYear:       true,
}

const selectObject = `
	SELECT id, ip_category, registration_number,
	       name, application_date, registration_date, expiration_date,
	       actual, publication_url, creation_year,
	       abstract, claims, first_usage_date, publication_year, update_year,
	       created_at, updated_at
	FROM registered_objects`

func scanObject(row pgx.Row) (*registry.RegisteredObject, error) {
	var (
		o        registry.RegisteredObject
		category string
	)
	err := row.Scan(
		&o.ID, &category, &o.RegistrationNumber,
		&o.Name, &o.ApplicationDate, &o.RegistrationDate, &o.ExpirationDate,
		&o.Actual, &o.PublicationURL, &o.CreationYear,
		&o.Abstract, &o.Claims, &o.FirstUsageDate, &o.PublicationYear, &o.UpdateYear,
		&o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	o.Category = registry.Category(category)
	return &o, nil
}

// FindByRegistrationNumbers loads the objects of category with the given
// numbers in one query.
func (r *ObjectRepository) FindByRegistrationNumbers(ctx context.Context, category registry.Category, numbers []string) (map[string]*registry.RegisteredObject, error) {
	out := make(map[string]*registry.RegisteredObject, len(numbers))
	if len(numbers) == 0 {
		return out, nil
	}
	rows, err := r.pool.Query(ctx, selectObject+`
	WHERE ip_category = $1 AND registration_number = ANY($2)`, string(category), numbers)
	if err != nil {
		r.logger.Error("object lookup failed", logging.Err(err), logging.Int("numbers", len(numbers)))
		return nil, mapError(err, "failed to look up registered objects")
	}
	defer rows.Close()
	for rows.Next() {
		o, err := scanObject(rows)
		if err != nil {
			return nil, mapError(err, "failed to scan registered object")
		}
		out[o.RegistrationNumber] = o
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err, "failed to iterate registered objects")
	}
	return out, nil
}

// CreateBatch copies objects into the table inside one transaction and reads
// their generated IDs back.
func (r *ObjectRepository) CreateBatch(ctx context.Context, objects []*registry.RegisteredObject) error {
	if len(objects) == 0 {
		return nil
	}
	now := time.Now().UTC()
	categories := make([]string, len(objects))
	numbers := make([]string, len(objects))
	for i, o := range objects {
		o.CreatedAt, o.UpdatedAt = now, now
		categories[i] = string(o.Category)
		numbers[i] = o.RegistrationNumber
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeDBConnectionError, "failed to begin transaction")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	_, err = tx.CopyFrom(ctx, pgx.Identifier{"registered_objects"}, objectColumns,
		pgx.CopyFromSlice(len(objects), func(i int) ([]interface{}, error) {
			o := objects[i]
			return []interface{}{
				string(o.Category), o.RegistrationNumber,
				o.Name, o.ApplicationDate, o.RegistrationDate, o.ExpirationDate,
				o.Actual, o.PublicationURL, o.CreationYear,
				o.Abstract, o.Claims, o.FirstUsageDate, o.PublicationYear, o.UpdateYear,
				o.CreatedAt, o.UpdatedAt,
			}, nil
		}))
	if err != nil {
		r.logger.Error("object copy failed", logging.Err(err), logging.Int("objects", len(objects)))
		return mapError(err, "failed to insert registered objects")
	}

	rows, err := tx.Query(ctx, `
		SELECT o.id, o.ip_category, o.registration_number
		FROM registered_objects o
		JOIN unnest($1::text[], $2::text[]) AS k(category, number)
		  ON o.ip_category = k.category AND o.registration_number = k.number`,
		categories, numbers)
	if err != nil {
		return mapError(err, "failed to read back object ids")
	}
	ids := make(map[string]int64, len(objects))
	for rows.Next() {
		var (
			id            int64
			category, num string
		)
		if err := rows.Scan(&id, &category, &num); err != nil {
			rows.Close()
			return mapError(err, "failed to scan object id")
		}
		ids[category+"\x00"+num] = id
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return mapError(err, "failed to read back object ids")
	}

	if err := tx.Commit(ctx); err != nil {
		return apperrors.Wrap(err, apperrors.CodeDBConnectionError, "failed to commit transaction")
	}
	for _, o := range objects {
		o.ID = ids[string(o.Category)+"\x00"+o.RegistrationNumber]
	}
	return nil
}

// UpdateBatch rewrites the changed columns of each object in one transaction.
func (r *ObjectRepository) UpdateBatch(ctx context.Context, updates []registry.ObjectUpdate) (int, error) {
	batch := &pgx.Batch{}
	for _, u := range updates {
		if len(u.Changes) == 0 {
			continue
		}
		sql, args, err := buildObjectUpdate(u)
		if err != nil {
			return 0, err
		}
		batch.Queue(sql, args...)
	}
	if batch.Len() == 0 {
		return 0, nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, apperrors.Wrap(err, apperrors.CodeDBConnectionError, "failed to begin transaction")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	results := tx.SendBatch(ctx, batch)
	updated := 0
	for i := 0; i < batch.Len(); i++ {
		tag, err := results.Exec()
		if err != nil {
			results.Close()
			r.logger.Error("object update failed", logging.Err(err))
			return 0, mapError(err, "failed to update registered object")
		}
		updated += int(tag.RowsAffected())
	}
	if err := results.Close(); err != nil {
		return 0, mapError(err, "failed to update registered objects")
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, apperrors.Wrap(err, apperrors.CodeDBConnectionError, "failed to commit transaction")
	}
	return updated, nil
}

// buildObjectUpdate renders one UPDATE touching only the changed columns.
func buildObjectUpdate(u registry.ObjectUpdate) (string, []interface{}, error) {
	sets := make([]string, 0, len(u.Changes)+1)
	args := []interface{}{u.ID}
	for _, c := range u.Changes {
		if !updatableColumns[c.Field] {
			return "", nil, apperrors.InvalidParam("unknown object field").WithDetail(string(c.Field))
		}
		args = append(args, c.NewValue)
		sets = append(sets, fmt.Sprintf("%s = $%d", c.Field, len(args)))
	}
	sets = append(sets, "updated_at = now()")
	return "UPDATE registered_objects SET " + strings.Join(sets, ", ") + " WHERE id = $1", args, nil
}
