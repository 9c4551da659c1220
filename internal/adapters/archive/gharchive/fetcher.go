package gharchive

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/avast/retry-go"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	perr "github.com/wangliang-cs/gharchive-db-builder/internal/platform/errors"
	"github.com/wangliang-cs/gharchive-db-builder/internal/platform/logger"
)

const (
	// minChunkedSize is the smallest body worth splitting into range requests
	minChunkedSize = 1 << 20

	// errLogMax bounds the error text carried into attempt failure logs
	errLogMax = 100
)

// CachedFetcher guarantees a locally available, gzip-valid blob per task.
// Local dir holds one .json.gz per hour under a year subdirectory.
// Invalid cached files are deleted and re-downloaded; downloads use ranged
// parallel connections when the host supports them
type CachedFetcher struct {
	log      zerolog.Logger
	client   *http.Client
	timeout  time.Duration
	chunks   int
	attempts uint
}

// FetchOption configures the fetcher
type FetchOption func(*CachedFetcher)

// WithTimeout sets the overall per-download timeout
func WithTimeout(d time.Duration) FetchOption {
	return func(f *CachedFetcher) { f.timeout = d }
}

// WithChunks sets the number of parallel range connections per download
func WithChunks(n int) FetchOption {
	return func(f *CachedFetcher) {
		if n > 0 {
			f.chunks = n
		}
	}
}

// WithAttempts sets the attempt cap per task
func WithAttempts(n int) FetchOption {
	return func(f *CachedFetcher) {
		if n > 0 {
			f.attempts = uint(n)
		}
	}
}

// WithLog replaces the fetcher's logger
func WithLog(l zerolog.Logger) FetchOption {
	return func(f *CachedFetcher) { f.log = l }
}

// NewCachedFetcher builds a fetcher; defaults mirror the archive host's
// tolerances: 8 connections, 2 minute overall timeout, 3 attempts
func NewCachedFetcher(opts ...FetchOption) *CachedFetcher {
	f := &CachedFetcher{
		log:      *logger.Named("fetch"),
		client:   &http.Client{},
		timeout:  2 * time.Minute,
		chunks:   8,
		attempts: 3,
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Validate checks a cached blob by reading one byte through a gzip stream
func (f *CachedFetcher) Validate(path string) error {
	fd, err := os.Open(path)
	if err != nil {
		return perr.Wrap(err, perr.ErrorCodeCorrupt, "open cached blob")
	}
	defer func() { _ = fd.Close() }()

	gz, err := gzip.NewReader(fd)
	if err != nil {
		return perr.Wrap(err, perr.ErrorCodeCorrupt, "gzip header")
	}
	defer func() { _ = gz.Close() }()

	buf := make([]byte, 1)
	if _, err := gz.Read(buf); err != nil && err != io.EOF {
		return perr.Wrap(err, perr.ErrorCodeCorrupt, "gzip read")
	}
	return nil
}

// Discard removes a blob so a later run re-fetches it
func (f *CachedFetcher) Discard(task Task) {
	if err := os.Remove(task.Path); err != nil && !os.IsNotExist(err) {
		f.log.Warn().Str("path", task.Path).Err(err).Msg("discard failed")
	}
}

// Ensure returns a validated local blob path for the task, downloading and
// retrying as needed. After the attempt cap the task is surfaced as failed;
// the caller moves on to its next task
func (f *CachedFetcher) Ensure(ctx context.Context, task Task) (string, error) {
	// reuse a pre-existing valid blob; delete a corrupt one
	if _, err := os.Stat(task.Path); err == nil {
		if verr := f.Validate(task.Path); verr == nil {
			return task.Path, nil
		}
		f.log.Warn().Str("path", task.Path).Msg("corrupt cached blob, deleting")
		_ = os.Remove(task.Path)
	}

	if err := os.MkdirAll(filepath.Dir(task.Path), 0o755); err != nil {
		return "", perr.Wrap(err, perr.ErrorCodeFetch, "create cache dir")
	}

	err := retry.Do(
		func() error {
			dlCtx := ctx
			if f.timeout > 0 {
				var cancel context.CancelFunc
				dlCtx, cancel = context.WithTimeout(ctx, f.timeout)
				defer cancel()
			}
			if err := f.download(dlCtx, task.URL, task.Path); err != nil {
				return err
			}
			if err := f.Validate(task.Path); err != nil {
				_ = os.Remove(task.Path)
				return err
			}
			return nil
		},
		retry.Attempts(f.attempts),
		retry.Delay(500*time.Millisecond),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			f.logAttempt(task.URL, n+1, err)
		}),
	)
	if err != nil {
		// OnRetry never fires for the final attempt, so its failure is
		// logged here through the same truncated path
		f.logAttempt(task.URL, f.attempts, err)
		return "", perr.Wrapf(err, perr.ErrorCodeFetch, "fetch %s after %d attempts", task.URL, f.attempts)
	}
	return task.Path, nil
}

func (f *CachedFetcher) logAttempt(url string, n uint, err error) {
	f.log.Warn().
		Str("url", url).
		Uint("attempt", n).
		Str("error", perr.Truncate(err, errLogMax)).
		Msg("fetch attempt failed")
}

// download writes the remote body atomically to path (.part then rename).
// Large bodies on range-capable hosts are pulled over parallel connections
func (f *CachedFetcher) download(ctx context.Context, url, path string) error {
	size, ranged := f.probe(ctx, url)

	tmp := path + ".part"
	defer func() { _ = os.Remove(tmp) }()

	if ranged && f.chunks > 1 && size >= minChunkedSize {
		if err := f.downloadChunked(ctx, url, tmp, size); err != nil {
			return err
		}
	} else if err := f.downloadSingle(ctx, url, tmp); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// probe asks the host about size and range support; failures degrade to a
// plain single-stream download
func (f *CachedFetcher) probe(ctx context.Context, url string) (int64, bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return 0, false
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return 0, false
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return 0, false
	}
	return resp.ContentLength, resp.Header.Get("Accept-Ranges") == "bytes" && resp.ContentLength > 0
}

func (f *CachedFetcher) downloadSingle(ctx context.Context, url, tmp string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return perr.Fetchf("unexpected status %d for %s", resp.StatusCode, url)
	}

	out, err := os.Create(tmp)
	if err != nil {
		return err
	}
	_, werr := io.Copy(out, resp.Body)
	cerr := out.Close()
	if werr != nil {
		return werr
	}
	return cerr
}

// downloadChunked splits [0,size) into f.chunks ranges fetched concurrently
// into the same sparse temp file
func (f *CachedFetcher) downloadChunked(ctx context.Context, url, tmp string, size int64) error {
	out, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := out.Truncate(size); err != nil {
		_ = out.Close()
		return err
	}

	chunk := size / int64(f.chunks)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < f.chunks; i++ {
		start := int64(i) * chunk
		end := start + chunk - 1
		if i == f.chunks-1 {
			end = size - 1
		}
		g.Go(func() error {
			return f.fetchRange(gctx, url, out, start, end)
		})
	}
	gerr := g.Wait()
	cerr := out.Close()
	if gerr != nil {
		return gerr
	}
	return cerr
}

func (f *CachedFetcher) fetchRange(ctx context.Context, url string, out *os.File, start, end int64) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", start, end))
	resp, err := f.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusPartialContent {
		return perr.Fetchf("unexpected status %d for range %d-%d of %s", resp.StatusCode, start, end, url)
	}

	// os.File WriteAt is safe for concurrent use at disjoint offsets
	buf := make([]byte, 128*1024)
	off := start
	for {
		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := out.WriteAt(buf[:n], off); werr != nil {
				return werr
			}
			off += int64(n)
		}
		if rerr == io.EOF {
			return nil
		}
		if rerr != nil {
			return rerr
		}
	}
}
