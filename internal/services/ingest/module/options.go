package module

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/wangliang-cs/gharchive-db-builder/internal/platform/config"
	perr "github.com/wangliang-cs/gharchive-db-builder/internal/platform/errors"
)

// Options sizes and locates one ingest run
type Options struct {
	Workers      int           `validate:"required,min=1,max=256"`
	CacheRoot    string        `validate:"required"`
	LedgerPath   string        `validate:"required"`
	BadLinesPath string        `validate:"required"`
	HighWater    int           `validate:"required,min=1"`
	BatchSize    int           `validate:"required,min=1"`
	IdleFlush    time.Duration `validate:"required"`
	FetchTimeout time.Duration `validate:"required"`
	FetchChunks  int           `validate:"required,min=1,max=64"`
	FetchRetries int           `validate:"required,min=1,max=10"`
}

// FromConfig reads Options from the INGEST_ env namespace
func FromConfig(cfg config.Conf) Options {
	c := cfg.Prefix("INGEST_")
	return Options{
		Workers:      c.MayInt("WORKERS", 10),
		CacheRoot:    c.MayString("CACHE_ROOT", "./gharchive-cache"),
		LedgerPath:   c.MayString("LEDGER_PATH", "./gharchive-complete.log"),
		BadLinesPath: c.MayString("BADLINES_PATH", "./gharchive-unparsable.log"),
		HighWater:    c.MayInt("HIGH_WATER", 1048576),
		BatchSize:    c.MayInt("BATCH_SIZE", 50000),
		IdleFlush:    c.MayDuration("IDLE_FLUSH", 10*time.Second),
		FetchTimeout: c.MayDuration("FETCH_TIMEOUT", 2*time.Minute),
		FetchChunks:  c.MayInt("FETCH_CHUNKS", 8),
		FetchRetries: c.MayInt("FETCH_RETRIES", 3),
	}
}

// Validate checks option sanity before any work starts
func (o Options) Validate() error {
	if err := validator.New().Struct(o); err != nil {
		return perr.Wrap(err, perr.ErrorCodeValidation, "ingest options")
	}
	return nil
}
