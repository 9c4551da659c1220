package gharchive

import (
	"bufio"
	"compress/gzip"
	"io"
	"os"

	perr "github.com/wangliang-cs/gharchive-db-builder/internal/platform/errors"
)

const (
	scanBuf      = 512 * 1024
	maxLineBytes = 32 * 1024 * 1024
)

// LineReader streams raw JSON lines out of an hourly gzip blob.
// One event per line; callers own parsing
type LineReader struct {
	f     *os.File
	gz    *gzip.Reader
	sc    *bufio.Scanner
	lines int
	bytes int64
}

// OpenLines opens a cached blob for line iteration. A failure here means
// the blob is unreadable and should be discarded by the caller
func OpenLines(path string) (*LineReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, perr.Wrap(err, perr.ErrorCodeCorrupt, "open blob")
	}
	gz, err := gzip.NewReader(f)
	if err != nil {
		_ = f.Close()
		return nil, perr.Wrap(err, perr.ErrorCodeCorrupt, "gzip blob")
	}

	sc := bufio.NewScanner(gz)
	sc.Buffer(make([]byte, scanBuf), maxLineBytes)
	return &LineReader{f: f, gz: gz, sc: sc}, nil
}

// Next returns the next line, or io.EOF when the blob is exhausted.
// The returned slice is a copy and stays valid across calls
func (r *LineReader) Next() ([]byte, error) {
	for r.sc.Scan() {
		raw := r.sc.Bytes()
		r.lines++
		r.bytes += int64(len(raw)) + 1
		if len(raw) == 0 {
			continue
		}
		line := make([]byte, len(raw))
		copy(line, raw)
		return line, nil
	}
	if err := r.sc.Err(); err != nil {
		return nil, perr.Wrap(err, perr.ErrorCodeCorrupt, "scan blob")
	}
	return nil, io.EOF
}

// Stats reports lines seen and approximate decompressed bytes read
func (r *LineReader) Stats() (lines int, bytes int64) {
	return r.lines, r.bytes
}

// Close releases the underlying gzip stream and file
func (r *LineReader) Close() error {
	gerr := r.gz.Close()
	ferr := r.f.Close()
	if gerr != nil {
		return gerr
	}
	return ferr
}
