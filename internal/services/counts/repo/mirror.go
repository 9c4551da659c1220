package repo

import (
	"context"

	perr "github.com/wangliang-cs/gharchive-db-builder/internal/platform/errors"
	"github.com/wangliang-cs/gharchive-db-builder/internal/platform/store"
	"github.com/wangliang-cs/gharchive-db-builder/internal/services/counts/domain"
)

const mirrorTable = "gharchive_counts"

var mirrorColumns = []string{"partition", "proj_id", "user_id", "type", "event_count"}

// CHMirror mirrors aggregate rows into ClickHouse for analytic queries.
// ReplacingMergeTree keyed on the partition plus the natural triple makes
// re-mirroring a partition safe
type CHMirror struct {
	ch store.Clickhouse
}

// NewCHMirror wraps the clickhouse seam as a domain.Mirror
func NewCHMirror(ch store.Clickhouse) *CHMirror {
	return &CHMirror{ch: ch}
}

var _ domain.Mirror = (*CHMirror)(nil)

// EnsureTable creates the mirror table if missing
func (m *CHMirror) EnsureTable(ctx context.Context) error {
	err := m.ch.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS `+mirrorTable+` (
			partition   LowCardinality(String),
			proj_id     String,
			user_id     String,
			type        LowCardinality(String),
			event_count UInt64
		)
		ENGINE = ReplacingMergeTree
		ORDER BY (partition, proj_id, user_id, type)`)
	if err != nil {
		return perr.Wrap(err, perr.ErrorCodeDB, "ensure mirror table")
	}
	return nil
}

// WriteCounts appends one partition's aggregates in a single batch
func (m *CHMirror) WriteCounts(ctx context.Context, p domain.Partition, rows []domain.CountRow) error {
	if len(rows) == 0 {
		return nil
	}
	batch := make([][]any, 0, len(rows))
	for _, r := range rows {
		batch = append(batch, []any{string(p), r.ProjID, r.UserID, r.Type, uint64(r.EventCount)})
	}
	if err := m.ch.Insert(ctx, mirrorTable, mirrorColumns, batch); err != nil {
		return perr.Wrap(err, perr.ErrorCodeDB, "mirror counts "+string(p))
	}
	return nil
}
