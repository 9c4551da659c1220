// Package domain holds the counts service's types and ports
package domain

import (
	"context"

	ingest "github.com/wangliang-cs/gharchive-db-builder/internal/services/ingest/domain"
)

// Partition aliases the ingest partition naming; counts shadow the event
// partitions one to one
type Partition = ingest.Partition

// MonthPartitions re-exports the month walk used by the range runner
var MonthPartitions = ingest.MonthPartitions

// CountRow is one aggregate: events by (project, user, type) in a partition
type CountRow struct {
	ProjID     string
	UserID     string
	Type       string
	EventCount int64
}

// RunStats summarizes one aggregation run
type RunStats struct {
	Partitions int
	Rows       int64
	Mirrored   int64
}

// AggregatorPort is the counts service's public surface
type AggregatorPort interface {
	// RunRange aggregates every existing event partition in
	// [startYear, endYear] into its counts table
	RunRange(ctx context.Context, startYear, endYear int) (RunStats, error)
}

// CountsRepo is the relational side of aggregation
type CountsRepo interface {
	// PartitionExists reports whether the events table for p exists
	PartitionExists(ctx context.Context, p Partition) (bool, error)
	// EnsureCountsTable creates the counts table and indexes if missing
	EnsureCountsTable(ctx context.Context, p Partition) error
	// AggregateInto rebuilds p's counts from its events, returning the
	// number of aggregate rows written
	AggregateInto(ctx context.Context, p Partition) (int64, error)
	// FetchCounts reads back p's aggregates for mirroring
	FetchCounts(ctx context.Context, p Partition) ([]CountRow, error)
}

// Mirror receives aggregate rows in an analytic store
type Mirror interface {
	// EnsureTable creates the mirror table if missing
	EnsureTable(ctx context.Context) error
	// WriteCounts appends p's aggregates
	WriteCounts(ctx context.Context, p Partition, rows []CountRow) error
}
