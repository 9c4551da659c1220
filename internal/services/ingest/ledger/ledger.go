// Package ledger persists which blobs have been fully ingested, making
// runs resumable and repeat work skippable
package ledger

import (
	"bufio"
	"os"
	"strings"
	"sync"

	"github.com/wangliang-cs/gharchive-db-builder/internal/platform/logger"
)

// FileLedger is a newline-delimited append-only file of completed blob
// paths. Appends are synced before returning so a crash cannot lose an
// acknowledged completion
type FileLedger struct {
	mu   sync.Mutex
	path string
}

// New builds a ledger over the given file path. The file need not exist
func New(path string) *FileLedger {
	return &FileLedger{path: path}
}

// Load snapshots the completed set. A missing file means a fresh start;
// a read failure is logged and degrades to an empty set, which only
// costs re-doing idempotent work
func (l *FileLedger) Load() map[string]struct{} {
	done := make(map[string]struct{})

	f, err := os.Open(l.path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Named("ledger").Warn().Str("path", l.path).Err(err).Msg("ledger unreadable, starting empty")
		}
		return done
	}
	defer func() { _ = f.Close() }()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line != "" {
			done[line] = struct{}{}
		}
	}
	if err := sc.Err(); err != nil {
		logger.Named("ledger").Warn().Str("path", l.path).Err(err).Msg("ledger scan failed, using partial set")
	}
	return done
}

// Record durably appends one completed blob path
func (l *FileLedger) Record(path string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(path + "\n"); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
