package repo

import (
	"context"
	"fmt"
	"testing"

	"github.com/wangliang-cs/gharchive-db-builder/internal/modkit/repokit"
	perr "github.com/wangliang-cs/gharchive-db-builder/internal/platform/errors"
	"github.com/wangliang-cs/gharchive-db-builder/internal/services/ingest/domain"
)

type fakeTag struct{}

func (fakeTag) String() string      { return "INSERT 0 1" }
func (fakeTag) RowsAffected() int64 { return 1 }

// scriptedQueryer pops one scripted error per Exec; nil means success
type scriptedQueryer struct {
	errs  []error
	execs int
}

func (s *scriptedQueryer) Exec(_ context.Context, _ string, _ ...any) (repokit.CommandTag, error) {
	s.execs++
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return fakeTag{}, nil
}

func (s *scriptedQueryer) Query(context.Context, string, ...any) (repokit.Rows, error) {
	panic("unused")
}

func (s *scriptedQueryer) QueryRow(context.Context, string, ...any) repokit.Row {
	panic("unused")
}

func records(ids ...string) []domain.Record {
	var out []domain.Record
	for _, id := range ids {
		out = append(out, domain.Record{
			ID:        id,
			ProjID:    "github:acme/tool",
			UserID:    "github:alice",
			Type:      "PushEvent",
			CreatedAt: "2015-01-01T00:00:00Z",
		})
	}
	return out
}

func TestUpsertRetriesTransientRowFailure(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"coded unavailable", perr.New(perr.ErrorCodeUnavailable, "server closed the connection unexpectedly")},
		{"driver text", fmt.Errorf("write tcp 10.0.0.1:5432: connection reset by peer")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := &scriptedQueryer{errs: []error{tt.err}}
			pg := repokit.MustBind(NewPG(), q)

			ok, failed, err := pg.UpsertRecords(context.Background(), "2015_01", records("e1", "e2"))
			if err != nil {
				t.Fatalf("UpsertRecords: %v", err)
			}
			if ok != 2 || failed != 0 {
				t.Errorf("ok = %d failed = %d, want 2/0", ok, failed)
			}
			// first row once, its replay, second row once
			if q.execs != 3 {
				t.Errorf("execs = %d, want 3", q.execs)
			}
		})
	}
}

func TestUpsertDoesNotRetryPoisonRow(t *testing.T) {
	q := &scriptedQueryer{errs: []error{perr.New(perr.ErrorCodeValidation, "null value in column")}}
	pg := repokit.MustBind(NewPG(), q)

	ok, failed, err := pg.UpsertRecords(context.Background(), "2015_01", records("e1", "e2"))
	if err != nil {
		t.Fatalf("UpsertRecords: %v", err)
	}
	if ok != 1 || failed != 1 {
		t.Errorf("ok = %d failed = %d, want 1/1", ok, failed)
	}
	if q.execs != 2 {
		t.Errorf("execs = %d, want 2 (no replay for a poison row)", q.execs)
	}
}
