package service

import "github.com/wangliang-cs/gharchive-db-builder/internal/services/ingest/domain"

type msgKind uint8

const (
	// msgRecord carries one canonical event row
	msgRecord msgKind = iota
	// msgComplete marks a blob as fully emitted by its worker
	msgComplete
	// msgTerminate is posted once, after every worker has joined
	msgTerminate
)

// message is the unit flowing over the backpressure channel. The channel
// capacity is the run's high-water mark, so a full channel blocks
// producers until the sink drains
type message struct {
	kind msgKind
	rec  domain.Record
	file string
}
