// Package modkit provides module wiring and core deps
package modkit

import (
	"github.com/wangliang-cs/gharchive-db-builder/internal/modkit/repokit"
	"github.com/wangliang-cs/gharchive-db-builder/internal/platform/config"
	"github.com/wangliang-cs/gharchive-db-builder/internal/platform/logger"
	"github.com/wangliang-cs/gharchive-db-builder/internal/platform/store"
)

// Deps holds core dependencies passed to modules
// this is wiring only and does not introduce new abstractions
type Deps struct {
	Log logger.Logger
	Cfg config.Conf
	PG  repokit.TxRunner
	CH  store.Clickhouse
}
