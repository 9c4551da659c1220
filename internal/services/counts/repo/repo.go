// Package repo implements the counts service's Postgres side
package repo

import (
	"context"
	"fmt"

	"github.com/wangliang-cs/gharchive-db-builder/internal/modkit/repokit"
	perr "github.com/wangliang-cs/gharchive-db-builder/internal/platform/errors"
	"github.com/wangliang-cs/gharchive-db-builder/internal/services/counts/domain"
)

// PG is the postgres-backed CountsRepo
type PG struct {
	q repokit.Queryer
}

// NewPG returns a binder for the counts repo
func NewPG() repokit.Binder[domain.CountsRepo] {
	return repokit.BindFunc[domain.CountsRepo](func(q repokit.Queryer) domain.CountsRepo {
		return &PG{q: q}
	})
}

// PartitionExists checks the catalog for the events table
func (r *PG) PartitionExists(ctx context.Context, p domain.Partition) (bool, error) {
	var exists bool
	err := r.q.QueryRow(ctx, `SELECT to_regclass($1) IS NOT NULL`, p.EventsTable()).Scan(&exists)
	if err != nil {
		return false, perr.FromPostgres(err, "check partition "+p.EventsTable())
	}
	return exists, nil
}

// EnsureCountsTable creates the counts table keyed on the natural triple
func (r *PG) EnsureCountsTable(ctx context.Context, p domain.Partition) error {
	table := p.CountsTable()
	stmts := []string{
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				proj_id     TEXT NOT NULL,
				user_id     TEXT NOT NULL,
				type        TEXT NOT NULL,
				event_count BIGINT NOT NULL,
				UNIQUE (proj_id, user_id, type)
			)`, table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_proj ON %s (proj_id)`, table, table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_user ON %s (user_id)`, table, table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_proj_type ON %s (proj_id, type)`, table, table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_user_type ON %s (user_id, type)`, table, table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_proj_user ON %s (proj_id, user_id)`, table, table),
	}
	for _, stmt := range stmts {
		if _, err := r.q.Exec(ctx, stmt); err != nil {
			return perr.FromPostgres(err, "ensure counts table "+table)
		}
	}
	return nil
}

// AggregateInto recomputes the partition's aggregates in one statement.
// Re-running converges because the conflict path overwrites the count
func (r *PG) AggregateInto(ctx context.Context, p domain.Partition) (int64, error) {
	stmt := fmt.Sprintf(`
		INSERT INTO %s (proj_id, user_id, type, event_count)
		SELECT proj_id, user_id, type, COUNT(*)
		FROM %s
		GROUP BY proj_id, user_id, type
		ON CONFLICT (proj_id, user_id, type) DO UPDATE SET
			event_count = EXCLUDED.event_count`, p.CountsTable(), p.EventsTable())

	tag, err := r.q.Exec(ctx, stmt)
	if err != nil {
		return 0, perr.FromPostgres(err, "aggregate into "+p.CountsTable())
	}
	return tag.RowsAffected(), nil
}

// FetchCounts reads back the partition's aggregates
func (r *PG) FetchCounts(ctx context.Context, p domain.Partition) ([]domain.CountRow, error) {
	rows, err := r.q.Query(ctx, fmt.Sprintf(
		`SELECT proj_id, user_id, type, event_count FROM %s`, p.CountsTable()))
	if err != nil {
		return nil, perr.FromPostgres(err, "fetch counts "+p.CountsTable())
	}
	defer rows.Close()

	var out []domain.CountRow
	for rows.Next() {
		var row domain.CountRow
		if err := rows.Scan(&row.ProjID, &row.UserID, &row.Type, &row.EventCount); err != nil {
			return nil, perr.FromPostgres(err, "scan counts "+p.CountsTable())
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, perr.FromPostgres(err, "iterate counts "+p.CountsTable())
	}
	return out, nil
}
