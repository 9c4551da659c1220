// Package module wires the counts service from core deps
package module

import (
	"github.com/wangliang-cs/gharchive-db-builder/internal/modkit"
	"github.com/wangliang-cs/gharchive-db-builder/internal/modkit/repokit"
	"github.com/wangliang-cs/gharchive-db-builder/internal/services/counts/domain"
	"github.com/wangliang-cs/gharchive-db-builder/internal/services/counts/repo"
	"github.com/wangliang-cs/gharchive-db-builder/internal/services/counts/service"
)

// Module owns the assembled counts service
type Module struct {
	aggregator domain.AggregatorPort
}

// New assembles the counts module. The ClickHouse mirror engages only
// when deps carry a clickhouse seam
func New(deps modkit.Deps) *Module {
	countsRepo := repokit.MustBind(repo.NewPG(), deps.PG)

	var mirror domain.Mirror
	if deps.CH != nil {
		mirror = repo.NewCHMirror(deps.CH)
	}

	return &Module{aggregator: service.New(deps.Log, countsRepo, mirror)}
}

// Aggregator exposes the service port
func (m *Module) Aggregator() domain.AggregatorPort { return m.aggregator }
