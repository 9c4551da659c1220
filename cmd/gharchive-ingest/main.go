package main

import (
	"context"
	"flag"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/wangliang-cs/gharchive-db-builder/internal/adapters/archive/gharchive"
	"github.com/wangliang-cs/gharchive-db-builder/internal/modkit"
	"github.com/wangliang-cs/gharchive-db-builder/internal/platform/config"
	"github.com/wangliang-cs/gharchive-db-builder/internal/platform/logger"
	"github.com/wangliang-cs/gharchive-db-builder/internal/platform/store"

	ingestmod "github.com/wangliang-cs/gharchive-db-builder/internal/services/ingest/module"
)

func main() {
	root := config.New()
	pgCfg := root.Prefix("SERVICE_PGSQL_")

	l := logger.Get()
	st, err := store.Open(context.Background(), store.Config{
		AppName: "gharchive-ingest",
		PG: store.PGConfig{
			Enabled:     true,
			URL:         pgCfg.MustString("DBURL"),
			MaxConns:    int32(pgCfg.MayInt("MAX_CONNS", 16)),
			SlowQueryMs: pgCfg.MayInt("SLOW_MS", 500),
			LogSQL:      pgCfg.MayBool("LOG_SQL", false),
		},
	}, store.WithLogger(*l))
	if err != nil {
		l.Panic().Err(err).Msg("store.Open failed")
	}
	defer func() {
		if err := st.Close(context.Background()); err != nil {
			l.Error().Err(err).Msg("failed to close store")
		}
	}()
	if err := st.Guard(context.Background()); err != nil {
		l.Panic().Err(err).Msg("store not ready")
	}

	var (
		fStartYear = flag.Int("start-year", 2011, "first archive year to ingest")
		fEndYear   = flag.Int("end-year", time.Now().UTC().Year(), "last archive year to ingest (inclusive)")
		fReverse   = flag.Bool("reverse", false, "walk hours newest first")
		fFollow    = flag.Bool("follow", false, "re-run on an interval to pick up newly published hours")
		fInterval  = flag.Duration("interval", 30*time.Minute, "sleep between passes with -follow")
	)
	flag.Parse()

	if *fEndYear < *fStartYear {
		l.Panic().Int("start", *fStartYear).Int("end", *fEndYear).Msg("-end-year before -start-year")
	}

	deps := modkit.Deps{
		Cfg: root,
		PG:  st.PG,
		Log: *l,
	}

	mod, err := ingestmod.New(deps, ingestmod.FromConfig(root))
	if err != nil {
		l.Panic().Err(err).Msg("ingest module wiring failed")
	}
	defer func() { _ = mod.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	for {
		runCtx := logger.WithRun(ctx, uuid.NewString())
		endYear := *fEndYear
		if *fFollow {
			// with -follow the range tracks the current year so passes
			// started near new year do not miss the rollover
			endYear = max(endYear, time.Now().UTC().Year())
		}

		tasks := gharchive.Tasks(*fStartYear, endYear, mod.CacheRoot(), *fReverse)
		if _, err := mod.Runner().Run(runCtx, tasks); err != nil {
			l.Fatal().Err(err).Msg("ingest run aborted")
		}

		if !*fFollow {
			return
		}
		logger.C(runCtx).Info().Dur("interval", *fInterval).Msg("pass finished, sleeping")
		select {
		case <-ctx.Done():
			return
		case <-time.After(*fInterval):
		}
	}
}
