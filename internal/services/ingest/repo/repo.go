// Package repo implements the ingest service's partitioned Postgres store
package repo

import (
	"context"
	"fmt"

	"github.com/wangliang-cs/gharchive-db-builder/internal/modkit/repokit"
	perr "github.com/wangliang-cs/gharchive-db-builder/internal/platform/errors"
	"github.com/wangliang-cs/gharchive-db-builder/internal/services/ingest/domain"
)

// PG is the postgres-backed StorageRepo
type PG struct {
	q repokit.Queryer
}

// NewPG returns a binder for the ingest storage repo
func NewPG() repokit.Binder[domain.StorageRepo] {
	return repokit.BindFunc[domain.StorageRepo](func(q repokit.Queryer) domain.StorageRepo {
		return &PG{q: q}
	})
}

// EnsurePartition creates the monthly events table and its indexes. All
// statements are IF NOT EXISTS so concurrent runs and re-runs are safe.
// Partition names are derived from digits internally, never from input,
// so identifier interpolation here is safe
func (r *PG) EnsurePartition(ctx context.Context, p domain.Partition) error {
	table := p.EventsTable()
	stmts := []string{
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				id         TEXT PRIMARY KEY,
				proj_id    TEXT NOT NULL,
				user_id    TEXT NOT NULL,
				type       TEXT NOT NULL,
				created_at TEXT NOT NULL,
				action     TEXT NOT NULL DEFAULT '',
				number     BIGINT
			)`, table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_proj ON %s (proj_id)`, table, table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_user ON %s (user_id)`, table, table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_proj_type ON %s (proj_id, type)`, table, table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_user_type ON %s (user_id, type)`, table, table),
	}
	for _, stmt := range stmts {
		if _, err := r.q.Exec(ctx, stmt); err != nil {
			return perr.FromPostgres(err, "ensure partition "+table)
		}
	}
	return nil
}

// UpsertRecords writes records one at a time so a poison row cannot sink
// its batch. Re-ingesting the same blob converges on identical rows, so
// the conflict path simply rewrites the payload columns
func (r *PG) UpsertRecords(ctx context.Context, p domain.Partition, recs []domain.Record) (ok, failed int, err error) {
	stmt := fmt.Sprintf(`
		INSERT INTO %s (id, proj_id, user_id, type, created_at, action, number)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			proj_id    = EXCLUDED.proj_id,
			user_id    = EXCLUDED.user_id,
			type       = EXCLUDED.type,
			created_at = EXCLUDED.created_at,
			action     = EXCLUDED.action,
			number     = EXCLUDED.number`, p.EventsTable())

	for _, rec := range recs {
		if ctx.Err() != nil {
			return ok, failed, perr.Wrap(ctx.Err(), perr.ErrorCodeUnavailable, "upsert interrupted")
		}
		_, execErr := r.q.Exec(ctx, stmt, rec.ID, rec.ProjID, rec.UserID, rec.Type, rec.CreatedAt, rec.Action, rec.Number)
		if execErr != nil && perr.Retryable(execErr) {
			// deadlocks and dropped connections get one replay; rows are
			// keyed on id so the replay converges
			_, execErr = r.q.Exec(ctx, stmt, rec.ID, rec.ProjID, rec.UserID, rec.Type, rec.CreatedAt, rec.Action, rec.Number)
		}
		if execErr != nil {
			failed++
			continue
		}
		ok++
	}
	return ok, failed, nil
}
