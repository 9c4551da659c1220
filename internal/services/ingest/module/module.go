// Package module wires the ingest service from core deps and options
package module

import (
	"github.com/wangliang-cs/gharchive-db-builder/internal/adapters/archive/gharchive"
	"github.com/wangliang-cs/gharchive-db-builder/internal/core/eventnorm"
	"github.com/wangliang-cs/gharchive-db-builder/internal/modkit"
	"github.com/wangliang-cs/gharchive-db-builder/internal/modkit/repokit"
	"github.com/wangliang-cs/gharchive-db-builder/internal/services/ingest/domain"
	"github.com/wangliang-cs/gharchive-db-builder/internal/services/ingest/ledger"
	"github.com/wangliang-cs/gharchive-db-builder/internal/services/ingest/repo"
	"github.com/wangliang-cs/gharchive-db-builder/internal/services/ingest/service"
)

// Module owns the assembled ingest service and its closables
type Module struct {
	runner   domain.RunnerPort
	opts     Options
	badlines *gharchive.BadLineLog
}

// New assembles the ingest module. The returned module must be Closed
func New(deps modkit.Deps, opts Options) (*Module, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	bad, err := gharchive.OpenBadLineLog(opts.BadLinesPath)
	if err != nil {
		return nil, err
	}

	fetcher := gharchive.NewCachedFetcher(
		gharchive.WithLog(deps.Log.With().Str("component", "fetch").Logger()),
		gharchive.WithTimeout(opts.FetchTimeout),
		gharchive.WithChunks(opts.FetchChunks),
		gharchive.WithAttempts(opts.FetchRetries),
	)

	storage := repokit.MustBind(repo.NewPG(), deps.PG)

	svc := service.New(
		deps.Log,
		service.Config{
			Workers:   opts.Workers,
			HighWater: opts.HighWater,
			BatchSize: opts.BatchSize,
			IdleFlush: opts.IdleFlush,
		},
		fetcher,
		func(path string) (domain.LineReader, error) { return gharchive.OpenLines(path) },
		eventnorm.Normalize,
		ledger.New(opts.LedgerPath),
		bad,
		storage,
	)

	return &Module{runner: svc, opts: opts, badlines: bad}, nil
}

// Runner exposes the service port
func (m *Module) Runner() domain.RunnerPort { return m.runner }

// CacheRoot is where task blobs live
func (m *Module) CacheRoot() string { return m.opts.CacheRoot }

// Close releases module-owned files
func (m *Module) Close() error { return m.badlines.Close() }
