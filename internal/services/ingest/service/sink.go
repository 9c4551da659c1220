package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/wangliang-cs/gharchive-db-builder/internal/services/ingest/domain"
)

// sinkTotals is what the sink hands back after terminate
type sinkTotals struct {
	completed int
	inserted  int64
	failed    int64
}

// sink is the single consumer of the backpressure channel. It buffers
// records per partition, flushes full batches, flushes everything on blob
// completion before acknowledging the blob in the ledger, and flushes on
// idle so a stalled tail never sits in memory forever
type sink struct {
	log       zerolog.Logger
	repo      domain.StorageRepo
	ledger    domain.Ledger
	batchSize int
	idleFlush time.Duration
	total     int

	buffers map[domain.Partition][]domain.Record
	ensured map[domain.Partition]struct{}
	totals  sinkTotals
	started time.Time
}

func newSink(log zerolog.Logger, repo domain.StorageRepo, led domain.Ledger, batchSize int, idleFlush time.Duration, total int) *sink {
	return &sink{
		log:       log,
		repo:      repo,
		ledger:    led,
		batchSize: batchSize,
		idleFlush: idleFlush,
		total:     total,
		buffers:   make(map[domain.Partition][]domain.Record),
		ensured:   make(map[domain.Partition]struct{}),
	}
}

// run drains ch until a terminate message. It never exits early: workers
// always get to drain their sends, and terminate is guaranteed to arrive
// because the orchestrator posts it after the workers join
func (s *sink) run(ctx context.Context, ch <-chan message) sinkTotals {
	s.started = time.Now()

	timer := time.NewTimer(s.idleFlush)
	defer timer.Stop()

	for {
		select {
		case m := <-ch:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(s.idleFlush)

			switch m.kind {
			case msgRecord:
				p := domain.PartitionFor(m.rec.CreatedAt)
				s.buffers[p] = append(s.buffers[p], m.rec)
				if len(s.buffers[p]) >= s.batchSize {
					s.flush(ctx, p)
				}
			case msgComplete:
				s.flushAll(ctx)
				if err := s.ledger.Record(m.file); err != nil {
					s.log.Error().Str("file", m.file).Err(err).Msg("ledger append failed")
				}
				s.totals.completed++
				s.progress(m.file)
			case msgTerminate:
				s.flushAll(ctx)
				return s.totals
			}

		case <-timer.C:
			s.flushAll(ctx)
			timer.Reset(s.idleFlush)
		}
	}
}

func (s *sink) flushAll(ctx context.Context) {
	for p := range s.buffers {
		s.flush(ctx, p)
	}
}

// flush writes one partition's buffer. Row failures are counted, not
// fatal; a partition that cannot even be created forfeits the whole batch
func (s *sink) flush(ctx context.Context, p domain.Partition) {
	recs := s.buffers[p]
	if len(recs) == 0 {
		return
	}
	delete(s.buffers, p)

	if _, done := s.ensured[p]; !done {
		if err := s.repo.EnsurePartition(ctx, p); err != nil {
			s.log.Error().Str("partition", string(p)).Int("records", len(recs)).Err(err).Msg("ensure partition failed, batch dropped")
			s.totals.failed += int64(len(recs))
			return
		}
		s.ensured[p] = struct{}{}
	}

	ok, failed, err := s.repo.UpsertRecords(ctx, p, recs)
	s.totals.inserted += int64(ok)
	s.totals.failed += int64(failed)
	if err != nil {
		s.totals.failed += int64(len(recs) - ok - failed)
		s.log.Error().Str("partition", string(p)).Err(err).Msg("upsert batch aborted")
		return
	}
	if failed > 0 {
		s.log.Warn().Str("partition", string(p)).Int("ok", ok).Int("failed", failed).Msg("batch flushed with row failures")
	}
}

func (s *sink) progress(file string) {
	elapsed := time.Since(s.started)
	var eta time.Duration
	if s.totals.completed > 0 && s.total > s.totals.completed {
		eta = elapsed / time.Duration(s.totals.completed) * time.Duration(s.total-s.totals.completed)
	}
	s.log.Info().
		Str("file", file).
		Int("completed", s.totals.completed).
		Int("total", s.total).
		Int64("inserted", s.totals.inserted).
		Int64("failed", s.totals.failed).
		Dur("elapsed", elapsed).
		Dur("eta", eta).
		Msg("blob complete")
}
