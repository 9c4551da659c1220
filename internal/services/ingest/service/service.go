// Package service orchestrates the ingest run: a worker pool draining a
// shared task list through a bounded backpressure channel into one sink
package service

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/wangliang-cs/gharchive-db-builder/internal/core/eventnorm"
	"github.com/wangliang-cs/gharchive-db-builder/internal/services/ingest/domain"
)

// Config sizes the run
type Config struct {
	Workers   int
	HighWater int
	BatchSize int
	IdleFlush time.Duration
}

// Service implements domain.RunnerPort
type Service struct {
	log        zerolog.Logger
	cfg        Config
	fetcher    domain.Fetcher
	openReader domain.ReaderFactory
	normalize  domain.Normalizer
	ledger     domain.Ledger
	badlines   domain.BadLines
	repo       domain.StorageRepo
}

// New wires the ingest service
func New(log zerolog.Logger, cfg Config, fetcher domain.Fetcher, open domain.ReaderFactory, norm domain.Normalizer, led domain.Ledger, bad domain.BadLines, repo domain.StorageRepo) *Service {
	return &Service{
		log:        log,
		cfg:        cfg,
		fetcher:    fetcher,
		openReader: open,
		normalize:  norm,
		ledger:     led,
		badlines:   bad,
		repo:       repo,
	}
}

var _ domain.RunnerPort = (*Service)(nil)

// Run drains tasks to the store. Individual task failures are counted and
// the run keeps going; only context cancellation aborts
func (s *Service) Run(ctx context.Context, tasks []domain.Task) (domain.RunStats, error) {
	stats := domain.RunStats{TasksTotal: len(tasks)}
	if len(tasks) == 0 {
		return stats, nil
	}

	skip := s.ledger.Load()
	ch := make(chan message, s.cfg.HighWater)

	snk := newSink(s.log.With().Str("component", "sink").Logger(), s.repo, s.ledger, s.cfg.BatchSize, s.cfg.IdleFlush, len(tasks))
	sinkDone := make(chan sinkTotals, 1)
	go func() { sinkDone <- snk.run(ctx, ch) }()

	var (
		next    atomic.Int64
		failed  atomic.Int64
		skipped atomic.Int64
		wg      sync.WaitGroup
	)
	s.log.Info().Int("workers", s.cfg.Workers).Int("tasks", len(tasks)).Msg("starting ingest run")

	for w := 0; w < s.cfg.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				if ctx.Err() != nil {
					return
				}
				idx := next.Add(1) - 1
				if idx >= int64(len(tasks)) {
					return
				}
				task := tasks[idx]
				switch s.process(ctx, task, skip, ch) {
				case taskSkipped:
					skipped.Add(1)
				case taskFailed:
					failed.Add(1)
				}
			}
		}()
	}

	wg.Wait()
	// sink always drains, so this send cannot block forever
	ch <- message{kind: msgTerminate}
	totals := <-sinkDone

	stats.TasksCompleted = totals.completed
	stats.TasksFailed = int(failed.Load())
	stats.TasksSkipped = int(skipped.Load())
	stats.Inserted = totals.inserted
	stats.Failed = totals.failed

	s.log.Info().
		Int("completed", stats.TasksCompleted).
		Int("skipped", stats.TasksSkipped).
		Int("failed", stats.TasksFailed).
		Int64("inserted", stats.Inserted).
		Int64("rows_failed", stats.Failed).
		Msg("ingest run finished")
	return stats, ctx.Err()
}

type taskOutcome uint8

const (
	taskEmitted taskOutcome = iota
	taskSkipped
	taskFailed
)

// process handles one task end to end. A blob that is ledgered and still
// valid locally is skipped outright. A blob that downloads but cannot be
// decoded is discarded without a completion message, so the next run
// re-fetches it
func (s *Service) process(ctx context.Context, task domain.Task, skip map[string]struct{}, ch chan<- message) taskOutcome {
	if _, done := skip[task.Path]; done {
		if s.fetcher.Validate(task.Path) == nil {
			s.log.Debug().Str("file", task.Path).Msg("already ingested, skipping")
			return taskSkipped
		}
	}

	path, err := s.fetcher.Ensure(ctx, task)
	if err != nil {
		s.log.Error().Str("url", task.URL).Err(err).Msg("task fetch failed")
		return taskFailed
	}

	r, err := s.openReader(path)
	if err != nil {
		s.log.Error().Str("file", path).Err(err).Msg("blob unreadable, discarding")
		s.fetcher.Discard(task)
		return taskFailed
	}
	defer func() { _ = r.Close() }()

	for {
		line, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			// mid-stream corruption: drop the blob, emit no completion
			s.log.Error().Str("file", path).Err(err).Msg("blob truncated, discarding")
			s.fetcher.Discard(task)
			return taskFailed
		}

		rec, nerr := s.normalize(line)
		if nerr != nil {
			if !errors.Is(nerr, eventnorm.ErrFiltered) {
				s.badlines.Append(line)
			}
			continue
		}

		select {
		case ch <- message{kind: msgRecord, rec: rec, file: task.Path}:
		case <-ctx.Done():
			return taskFailed
		}
	}

	lines, bytes := r.Stats()
	s.log.Debug().Str("file", path).Int("lines", lines).Int64("bytes", bytes).Msg("blob emitted")

	select {
	case ch <- message{kind: msgComplete, file: task.Path}:
	case <-ctx.Done():
		return taskFailed
	}
	return taskEmitted
}
