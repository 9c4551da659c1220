package main

import (
	"context"
	"flag"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/wangliang-cs/gharchive-db-builder/internal/modkit"
	"github.com/wangliang-cs/gharchive-db-builder/internal/platform/config"
	"github.com/wangliang-cs/gharchive-db-builder/internal/platform/logger"
	"github.com/wangliang-cs/gharchive-db-builder/internal/platform/store"

	countsmod "github.com/wangliang-cs/gharchive-db-builder/internal/services/counts/module"
)

func main() {
	var (
		fStartYear = flag.Int("start-year", 2011, "first archive year to aggregate")
		fEndYear   = flag.Int("end-year", time.Now().UTC().Year(), "last archive year to aggregate (inclusive)")
		fMirror    = flag.Bool("clickhouse", false, "mirror aggregates into clickhouse")
	)
	flag.Parse()

	root := config.New()
	pgCfg := root.Prefix("SERVICE_PGSQL_")
	chCfg := root.Prefix("SERVICE_CLICKHOUSE_")

	l := logger.Get()
	if *fEndYear < *fStartYear {
		l.Panic().Int("start", *fStartYear).Int("end", *fEndYear).Msg("-end-year before -start-year")
	}

	cfg := store.Config{
		AppName: "gharchive-count",
		PG: store.PGConfig{
			Enabled:     true,
			URL:         pgCfg.MustString("DBURL"),
			MaxConns:    int32(pgCfg.MayInt("MAX_CONNS", 4)),
			SlowQueryMs: pgCfg.MayInt("SLOW_MS", 500),
			LogSQL:      pgCfg.MayBool("LOG_SQL", false),
		},
	}
	if *fMirror {
		cfg.CH = store.CHConfig{
			Enabled:    true,
			URL:        chCfg.MustString("DBURL"),
			ClientName: "gharchive-db-builder",
			ClientTag:  "count",
		}
	}

	st, err := store.Open(context.Background(), cfg, store.WithLogger(*l))
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

	deps := modkit.Deps{
		Cfg: root,
		PG:  st.PG,
		CH:  st.CH,
		Log: *l,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = logger.WithRun(ctx, uuid.NewString())

	mod := countsmod.New(deps)
	stats, err := mod.Aggregator().RunRange(ctx, *fStartYear, *fEndYear)
	if err != nil {
		l.Fatal().Err(err).Msg("aggregation failed")
	}
	logger.C(ctx).Info().
		Int("partitions", stats.Partitions).
		Int64("rows", stats.Rows).
		Int64("mirrored", stats.Mirrored).
		Msg("done")
}
