package gharchive

import (
	"os"
	"sync"
)

// BadLineLog is an append-only sidecar file of lines that could not be
// parsed as events. Safe for concurrent use by many workers; each line is
// written whole so the file stays line-oriented
type BadLineLog struct {
	mu sync.Mutex
	f  *os.File
}

// OpenBadLineLog opens (or creates) the sidecar file for appending
func OpenBadLineLog(path string) (*BadLineLog, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &BadLineLog{f: f}, nil
}

// Append records one unparsable line verbatim
func (b *BadLineLog) Append(line []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, _ = b.f.Write(line)
	_, _ = b.f.Write([]byte("\n"))
}

// Close flushes and closes the sidecar file
func (b *BadLineLog) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.f.Close()
}
