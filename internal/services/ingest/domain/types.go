// Package domain holds the ingest service's core types and ports
package domain

import (
	"fmt"
	"strconv"

	"github.com/wangliang-cs/gharchive-db-builder/internal/adapters/archive/gharchive"
	"github.com/wangliang-cs/gharchive-db-builder/internal/core/eventnorm"
)

// Task aliases the hourly archive unit of work
type Task = gharchive.Task

// Record aliases the canonical event row
type Record = eventnorm.Record

// legacyBoundaryYear splits the archive's two schema eras. Everything at
// or before it lands in a *_neo partition so the eras can be rebuilt or
// dropped independently
const legacyBoundaryYear = 2021

// Partition names one monthly store shard, e.g. 2014_03_neo or 2023_07
type Partition string

// PartitionFor routes a canonical timestamp (2006-01-02T15:04:05Z) to its
// monthly partition. The timestamp is trusted to be canonical; callers
// normalize before routing
func PartitionFor(createdAt string) Partition {
	year, _ := strconv.Atoi(createdAt[:4])
	suffix := ""
	if year <= legacyBoundaryYear {
		suffix = "_neo"
	}
	return Partition(createdAt[:4] + "_" + createdAt[5:7] + suffix)
}

// EventsTable is the store table holding this partition's events
func (p Partition) EventsTable() string { return "events_id_" + string(p) }

// CountsTable is the store table holding this partition's aggregates
func (p Partition) CountsTable() string { return "events_count_" + string(p) }

// MonthPartitions lists both era variants for a calendar month, newest era
// first. Aggregation walks these because either may exist
func MonthPartitions(year, month int) []Partition {
	base := fmt.Sprintf("%04d_%02d", year, month)
	return []Partition{Partition(base), Partition(base + "_neo")}
}

// RunStats accumulates the outcome of one ingest run
type RunStats struct {
	TasksTotal     int
	TasksCompleted int
	TasksFailed    int
	TasksSkipped   int
	Inserted       int64
	Failed         int64
}
