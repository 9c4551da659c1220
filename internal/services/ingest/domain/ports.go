package domain

import "context"

// RunnerPort is the ingest service's public surface
type RunnerPort interface {
	// Run drains the given tasks to the store and returns run totals.
	// A non-nil error means the run aborted, not that some tasks failed
	Run(ctx context.Context, tasks []Task) (RunStats, error)
}

// Fetcher materializes a task's blob in the local cache
type Fetcher interface {
	Ensure(ctx context.Context, task Task) (string, error)
	Validate(path string) error
	Discard(task Task)
}

// LineReader iterates raw event lines from one blob
type LineReader interface {
	Next() ([]byte, error)
	Stats() (lines int, bytes int64)
	Close() error
}

// ReaderFactory opens a blob for line iteration
type ReaderFactory func(path string) (LineReader, error)

// Normalizer turns a raw line into a canonical record
type Normalizer func(line []byte) (Record, error)

// Ledger tracks blobs whose records are fully flushed to the store
type Ledger interface {
	// Load snapshots the set of completed blob paths
	Load() map[string]struct{}
	// Record durably appends a completed blob path
	Record(path string) error
}

// BadLines collects lines that failed normalization
type BadLines interface {
	Append(line []byte)
}

// StorageRepo is the partitioned event store
type StorageRepo interface {
	// EnsurePartition creates the partition table and indexes if missing
	EnsurePartition(ctx context.Context, p Partition) error
	// UpsertRecords writes a batch keyed on id, returning per-item
	// success and failure counts. Row failures do not abort the batch
	UpsertRecords(ctx context.Context, p Partition, recs []Record) (ok, failed int, err error)
}
