package gharchive

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func gzipBytes(t *testing.T, payload []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(payload); err != nil {
		t.Fatal(err)
	}
	if err := gz.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func testTask(t *testing.T, url string) Task {
	t.Helper()
	return Task{
		Hour: HourRef{2014, 1, 1, 0},
		URL:  url,
		Path: filepath.Join(t.TempDir(), "2014", "2014-01-01-0.json.gz"),
	}
}

func TestValidate(t *testing.T) {
	dir := t.TempDir()
	f := NewCachedFetcher()

	good := filepath.Join(dir, "good.json.gz")
	if err := os.WriteFile(good, gzipBytes(t, []byte("{}\n")), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := f.Validate(good); err != nil {
		t.Errorf("valid blob rejected: %v", err)
	}

	empty := filepath.Join(dir, "empty.json.gz")
	if err := os.WriteFile(empty, gzipBytes(t, nil), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := f.Validate(empty); err != nil {
		t.Errorf("empty gzip stream rejected: %v", err)
	}

	bad := filepath.Join(dir, "bad.json.gz")
	if err := os.WriteFile(bad, []byte("not gzip at all"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := f.Validate(bad); err == nil {
		t.Error("garbage blob accepted")
	}
	if err := f.Validate(filepath.Join(dir, "missing.json.gz")); err == nil {
		t.Error("missing blob accepted")
	}
}

func TestEnsureDownloads(t *testing.T) {
	body := gzipBytes(t, []byte(`{"type":"PushEvent"}`+"\n"))
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.ServeContent(w, r, "blob.json.gz", time.Time{}, bytes.NewReader(body))
	}))
	defer srv.Close()

	f := NewCachedFetcher(WithAttempts(1))
	task := testTask(t, srv.URL+"/2014-01-01-0.json.gz")

	path, err := f.Ensure(t.Context(), task)
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, body) {
		t.Error("downloaded blob differs from remote body")
	}
	if _, err := os.Stat(path + ".part"); !os.IsNotExist(err) {
		t.Error("temp file left behind")
	}
}

func TestEnsureReusesValidCachedBlob(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := NewCachedFetcher(WithAttempts(1))
	task := testTask(t, srv.URL+"/2014-01-01-0.json.gz")
	if err := os.MkdirAll(filepath.Dir(task.Path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(task.Path, gzipBytes(t, []byte("{}\n")), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := f.Ensure(t.Context(), task); err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if hits.Load() != 0 {
		t.Errorf("cached blob triggered %d requests", hits.Load())
	}
}

func TestEnsureReplacesCorruptCachedBlob(t *testing.T) {
	body := gzipBytes(t, []byte("{}\n"))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.ServeContent(w, r, "blob.json.gz", time.Time{}, bytes.NewReader(body))
	}))
	defer srv.Close()

	f := NewCachedFetcher(WithAttempts(1))
	task := testTask(t, srv.URL+"/2014-01-01-0.json.gz")
	if err := os.MkdirAll(filepath.Dir(task.Path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(task.Path, []byte("truncated junk"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := f.Ensure(t.Context(), task); err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	got, _ := os.ReadFile(task.Path)
	if !bytes.Equal(got, body) {
		t.Error("corrupt blob was not replaced")
	}
}

func TestEnsureRetriesThenSucceeds(t *testing.T) {
	body := gzipBytes(t, []byte("{}\n"))
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) <= 2 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		http.ServeContent(w, r, "blob.json.gz", time.Time{}, bytes.NewReader(body))
	}))
	defer srv.Close()

	f := NewCachedFetcher(WithAttempts(3))
	if _, err := f.Ensure(t.Context(), testTask(t, srv.URL+"/x.json.gz")); err != nil {
		t.Fatalf("Ensure: %v", err)
	}
}

func TestEnsureGivesUpAfterAttemptCap(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := NewCachedFetcher(WithAttempts(3), WithChunks(1))
	task := testTask(t, srv.URL+"/x.json.gz")
	if _, err := f.Ensure(t.Context(), task); err == nil {
		t.Fatal("expected failure")
	}
	// one GET per attempt (the probe HEAD also counts per attempt)
	if hits.Load() < 3 {
		t.Errorf("hits = %d, want at least one per attempt", hits.Load())
	}
	if _, err := os.Stat(task.Path); !os.IsNotExist(err) {
		t.Error("failed download left a blob behind")
	}
}

func TestEnsureLogsEveryFailedAttempt(t *testing.T) {
	// each failed attempt gets its own truncated log line, the final one
	// included
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	var buf bytes.Buffer
	f := NewCachedFetcher(WithAttempts(3), WithChunks(1), WithLog(zerolog.New(&buf)))
	if _, err := f.Ensure(t.Context(), testTask(t, srv.URL+"/x.json.gz")); err == nil {
		t.Fatal("expected failure")
	}

	logged := buf.String()
	if got := strings.Count(logged, "fetch attempt failed"); got != 3 {
		t.Errorf("attempt log lines = %d, want 3\n%s", got, logged)
	}
	if !strings.Contains(logged, `"attempt":3`) {
		t.Errorf("final attempt not logged:\n%s", logged)
	}
	for _, line := range strings.Split(strings.TrimSpace(logged), "\n") {
		var entry struct {
			Error string `json:"error"`
		}
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("bad log line %q: %v", line, err)
		}
		if len(entry.Error) > 100 {
			t.Errorf("error field not truncated: %d chars", len(entry.Error))
		}
	}
}

func TestEnsureRejectsCorruptDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("this is not gzip"))
	}))
	defer srv.Close()

	f := NewCachedFetcher(WithAttempts(2))
	task := testTask(t, srv.URL+"/x.json.gz")
	if _, err := f.Ensure(t.Context(), task); err == nil {
		t.Fatal("expected failure for non-gzip body")
	}
	if _, err := os.Stat(task.Path); !os.IsNotExist(err) {
		t.Error("invalid blob was kept")
	}
}

func TestEnsureChunkedDownload(t *testing.T) {
	// a body past the chunking threshold served by a range-capable host;
	// random payload so gzip cannot compress it under the threshold
	payload := make([]byte, (minChunkedSize*3)/2)
	rnd := rand.New(rand.NewSource(42))
	for i := range payload {
		payload[i] = byte(rnd.Intn(256))
	}
	body := gzipBytes(t, payload)
	if len(body) < minChunkedSize {
		t.Fatalf("compressed body only %d bytes, below chunk threshold", len(body))
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.ServeContent(w, r, "blob.json.gz", time.Time{}, bytes.NewReader(body))
	}))
	defer srv.Close()

	f := NewCachedFetcher(WithAttempts(1), WithChunks(4))
	path, err := f.Ensure(t.Context(), testTask(t, srv.URL+"/x.json.gz"))
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, body) {
		t.Error("chunked download reassembled incorrectly")
	}
}

func TestDiscard(t *testing.T) {
	f := NewCachedFetcher()
	task := testTask(t, "http://unused/x.json.gz")
	if err := os.MkdirAll(filepath.Dir(task.Path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(task.Path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	f.Discard(task)
	if _, err := os.Stat(task.Path); !os.IsNotExist(err) {
		t.Error("blob not removed")
	}
	// discarding a missing blob is a no-op
	f.Discard(task)
}
