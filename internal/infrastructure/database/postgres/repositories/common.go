// Package repositories provides the PostgreSQL implementations of the
// registry repository interfaces.
package repositories

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	apperrors "github.com/turtacn/rid-registry/pkg/errors"
)

const uniqueViolation = "23505"

// querier is satisfied by *pgxpool.Pool and pgx.Tx.
type querier interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// mapError classifies a driver error: unique violations become conflicts,
// other server errors query errors, anything else a connection error.
func mapError(err error, message string) error {
	if err == nil {
		return nil
	}
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == uniqueViolation {
			return apperrors.Wrap(err, apperrors.CodeConflict, message).WithDetail(pgErr.ConstraintName)
		}
		return apperrors.Wrap(err, apperrors.CodeDBQueryError, message)
	}
	return apperrors.Wrap(err, apperrors.CodeDBConnectionError, message)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike quotes the LIKE wildcards of s.
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// slugPatterns returns the LIKE patterns matching base-N for every base.
func slugPatterns(bases []string) []string {
	out := make([]string, len(bases))
	for i, b := range bases {
		out[i] = escapeLike(b) + "-%"
	}
	return out
}

func collectSlugs(rows pgx.Rows) (map[string]struct{}, error) {
	defer rows.Close()
	out := make(map[string]struct{})
	for rows.Next() {
		var slug string
		if err := rows.Scan(&slug); err != nil {
			return nil, err
		}
		out[slug] = struct{}{}
	}
	return out, rows.Err()
}

func nextKeys(ctx context.Context, q querier, sequence string, n int) ([]int64, error) {
	if n <= 0 {
		return nil, nil
	}
	rows, err := q.Query(ctx, "SELECT nextval('"+sequence+"') FROM generate_series(1, $1)", n)
	if err != nil {
		return nil, err
	}
	keys, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, err
	}
	return keys, nil
}
