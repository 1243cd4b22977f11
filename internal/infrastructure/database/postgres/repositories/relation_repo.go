package repositories

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/turtacn/rid-registry/internal/domain/registry"
	"github.com/turtacn/rid-registry/internal/infrastructure/monitoring/logging"
	apperrors "github.com/turtacn/rid-registry/pkg/errors"
)

type edgeTable struct {
	name         string
	entityColumn string
}

var edgeTables = map[registry.RelationKind]edgeTable{
	registry.RelationAuthor:       {"object_authors", "person_id"},
	registry.RelationPersonHolder: {"object_person_holders", "person_id"},
	registry.RelationOrgHolder:    {"object_org_holders", "organization_id"},
	registry.RelationUsageCountry: {"object_usage_countries", "country_id"},
}

func tableFor(kind registry.RelationKind) (edgeTable, error) {
	t, ok := edgeTables[kind]
	if !ok {
		return edgeTable{}, apperrors.InvalidParam("unknown relation kind").WithDetail(string(kind))
	}
	return t, nil
}

// RelationRepository stores the edge tables between objects and entities.
type RelationRepository struct {
	pool   *pgxpool.Pool
	logger logging.Logger
}

// NewRelationRepository constructs a RelationRepository.
func NewRelationRepository(pool *pgxpool.Pool, logger logging.Logger) *RelationRepository {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &RelationRepository{pool: pool, logger: logger}
}

var _ registry.RelationRepository = (*RelationRepository)(nil)

func (r *RelationRepository) DeleteForObjects(ctx context.Context, kind registry.RelationKind, objectIDs []int64) (int64, error) {
	t, err := tableFor(kind)
	if err != nil || len(objectIDs) == 0 {
		return 0, err
	}
	tag, err := r.pool.Exec(ctx, `DELETE FROM `+t.name+` WHERE object_id = ANY($1)`, objectIDs)
	if err != nil {
		r.logger.Error("edge delete failed", logging.String("kind", string(kind)), logging.Err(err))
		return 0, mapError(err, "failed to delete edges")
	}
	return tag.RowsAffected(), nil
}

func (r *RelationRepository) InsertEdges(ctx context.Context, kind registry.RelationKind, edges []registry.Edge) (int64, error) {
	t, err := tableFor(kind)
	if err != nil || len(edges) == 0 {
		return 0, err
	}
	objects := make([]int64, len(edges))
	entities := make([]int64, len(edges))
	for i, e := range edges {
		objects[i], entities[i] = e.ObjectID, e.EntityID
	}
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO `+t.name+` (object_id, `+t.entityColumn+`)
		SELECT * FROM unnest($1::bigint[], $2::bigint[])
		ON CONFLICT DO NOTHING`, objects, entities)
	if err != nil {
		r.logger.Error("edge insert failed", logging.String("kind", string(kind)), logging.Err(err))
		return 0, mapError(err, "failed to insert edges")
	}
	return tag.RowsAffected(), nil
}

func (r *RelationRepository) EdgesForObjects(ctx context.Context, kind registry.RelationKind, objectIDs []int64) ([]registry.Edge, error) {
	t, err := tableFor(kind)
	if err != nil || len(objectIDs) == 0 {
		return nil, err
	}
	rows, err := r.pool.Query(ctx, `
		SELECT object_id, `+t.entityColumn+`
		FROM `+t.name+`
		WHERE object_id = ANY($1)
		ORDER BY object_id, `+t.entityColumn, objectIDs)
	if err != nil {
		return nil, mapError(err, "failed to list edges")
	}
	edges, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (registry.Edge, error) {
		var e registry.Edge
		err := row.Scan(&e.ObjectID, &e.EntityID)
		return e, err
	})
	return edges, mapError(err, "failed to list edges")
}
