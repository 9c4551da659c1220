// Package service walks event partitions and rebuilds their aggregates
package service

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/wangliang-cs/gharchive-db-builder/internal/services/counts/domain"
)

// Service implements domain.AggregatorPort
type Service struct {
	log    zerolog.Logger
	repo   domain.CountsRepo
	mirror domain.Mirror // nil when mirroring is off
}

// New wires the counts service. mirror may be nil
func New(log zerolog.Logger, repo domain.CountsRepo, mirror domain.Mirror) *Service {
	return &Service{log: log, repo: repo, mirror: mirror}
}

var _ domain.AggregatorPort = (*Service)(nil)

// RunRange aggregates every existing partition in [startYear, endYear].
// Both era variants of each month are tried; missing ones are skipped.
// A failing partition aborts the run so a partial rebuild is visible
func (s *Service) RunRange(ctx context.Context, startYear, endYear int) (domain.RunStats, error) {
	var stats domain.RunStats

	if s.mirror != nil {
		if err := s.mirror.EnsureTable(ctx); err != nil {
			return stats, err
		}
	}

	for year := startYear; year <= endYear; year++ {
		for month := 1; month <= 12; month++ {
			for _, p := range domain.MonthPartitions(year, month) {
				if err := ctx.Err(); err != nil {
					return stats, err
				}
				ok, err := s.repo.PartitionExists(ctx, p)
				if err != nil {
					return stats, err
				}
				if !ok {
					continue
				}
				rows, err := s.aggregate(ctx, p)
				if err != nil {
					return stats, err
				}
				stats.Partitions++
				stats.Rows += rows

				if s.mirror != nil {
					mirrored, err := s.mirrorPartition(ctx, p)
					if err != nil {
						return stats, err
					}
					stats.Mirrored += mirrored
				}
			}
		}
	}

	s.log.Info().
		Int("partitions", stats.Partitions).
		Int64("rows", stats.Rows).
		Int64("mirrored", stats.Mirrored).
		Msg("aggregation finished")
	return stats, nil
}

func (s *Service) aggregate(ctx context.Context, p domain.Partition) (int64, error) {
	if err := s.repo.EnsureCountsTable(ctx, p); err != nil {
		return 0, err
	}
	rows, err := s.repo.AggregateInto(ctx, p)
	if err != nil {
		return 0, err
	}
	s.log.Info().Str("partition", string(p)).Int64("rows", rows).Msg("partition aggregated")
	return rows, nil
}

func (s *Service) mirrorPartition(ctx context.Context, p domain.Partition) (int64, error) {
	rows, err := s.repo.FetchCounts(ctx, p)
	if err != nil {
		return 0, err
	}
	if err := s.mirror.WriteCounts(ctx, p, rows); err != nil {
		return 0, err
	}
	return int64(len(rows)), nil
}
