package eventnorm

import (
	"errors"
	"testing"
)

func TestNormalizeModernSchema(t *testing.T) {
	line := []byte(`{
		"id": "2489651045",
		"type": "PushEvent",
		"actor": {"login": "alice"},
		"repo": {"name": "alice/widgets"},
		"payload": {"push_id": 536863970},
		"created_at": "2015-01-01T15:00:01Z"
	}`)

	rec, err := Normalize(line)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if rec.ID != "2489651045" {
		t.Errorf("ID = %q", rec.ID)
	}
	if rec.ProjID != "github:alice/widgets" {
		t.Errorf("ProjID = %q", rec.ProjID)
	}
	if rec.UserID != "github:alice" {
		t.Errorf("UserID = %q", rec.UserID)
	}
	if rec.Type != "PushEvent" {
		t.Errorf("Type = %q", rec.Type)
	}
	if rec.CreatedAt != "2015-01-01T15:00:01Z" {
		t.Errorf("CreatedAt = %q", rec.CreatedAt)
	}
	if rec.Action != "" {
		t.Errorf("Action = %q, want empty", rec.Action)
	}
	if rec.Number != nil {
		t.Errorf("Number = %v, want nil", *rec.Number)
	}
}

func TestNormalizeLegacySchemaEquivalence(t *testing.T) {
	// the same logical event spelled in both schema generations must
	// produce the same project and user ids
	modern := []byte(`{
		"id": "99",
		"type": "WatchEvent",
		"actor": {"login": "bob"},
		"repo": {"name": "acme/tool"},
		"created_at": "2012-03-10T08:00:00Z"
	}`)
	legacy := []byte(`{
		"id": "99",
		"type": "WatchEvent",
		"actor": "bob",
		"actor_attributes": {"login": "bob"},
		"repository": {"owner": "acme", "name": "tool"},
		"created_at": "2012/03/10 08:00:00 +0000"
	}`)

	a, err := Normalize(modern)
	if err != nil {
		t.Fatalf("modern: %v", err)
	}
	b, err := Normalize(legacy)
	if err != nil {
		t.Fatalf("legacy: %v", err)
	}
	if a.ProjID != b.ProjID || a.ProjID != "github:acme/tool" {
		t.Errorf("ProjID mismatch: %q vs %q", a.ProjID, b.ProjID)
	}
	if a.UserID != b.UserID || a.UserID != "github:bob" {
		t.Errorf("UserID mismatch: %q vs %q", a.UserID, b.UserID)
	}
	if a.CreatedAt != b.CreatedAt {
		t.Errorf("CreatedAt mismatch: %q vs %q", a.CreatedAt, b.CreatedAt)
	}
}

func TestNormalizeRepositoryOwnerObject(t *testing.T) {
	line := []byte(`{
		"id": "7",
		"type": "ForkEvent",
		"actor_attributes": {"login": "carol"},
		"repository": {"owner": {"login": "acme"}, "name": "tool"},
		"created_at": "2013-05-05T00:00:00Z"
	}`)
	rec, err := Normalize(line)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if rec.ProjID != "github:acme/tool" {
		t.Errorf("ProjID = %q", rec.ProjID)
	}
}

func TestNormalizeURLFallback(t *testing.T) {
	line := []byte(`{
		"type": "FollowEvent",
		"actor": "dave",
		"url": "https://github.com/acme/tool/pull/3",
		"created_at": "2011-06-01T00:00:00Z"
	}`)
	rec, err := Normalize(line)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if rec.ProjID != "github:acme/tool/pull/3" {
		t.Errorf("ProjID = %q", rec.ProjID)
	}
}

func TestNormalizeGistFiltered(t *testing.T) {
	line := []byte(`{"type":"GistEvent","actor":"x","created_at":"2011-01-01T00:00:00Z"}`)
	if _, err := Normalize(line); !errors.Is(err, ErrFiltered) {
		t.Fatalf("err = %v, want ErrFiltered", err)
	}
}

func TestNormalizeSurrogateIDDeterministic(t *testing.T) {
	line := []byte(`{
		"type": "WatchEvent",
		"actor": {"login": "erin"},
		"repo": {"name": "acme/tool"},
		"created_at": "2011-02-12T00:00:00Z"
	}`)
	a, err := Normalize(line)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	b, _ := Normalize(line)
	if a.ID == "" || a.ID != b.ID {
		t.Errorf("surrogate ids differ: %q vs %q", a.ID, b.ID)
	}
	if len(a.ID) != 64 {
		t.Errorf("surrogate id length = %d, want 64 hex chars", len(a.ID))
	}
}

func TestNormalizeNumericID(t *testing.T) {
	line := []byte(`{
		"id": 12345,
		"type": "PushEvent",
		"actor": {"login": "erin"},
		"repo": {"name": "acme/tool"},
		"created_at": "2015-02-12T00:00:00Z"
	}`)
	rec, err := Normalize(line)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if rec.ID != "12345" {
		t.Errorf("ID = %q", rec.ID)
	}
}

func TestNormalizeNumberPrecedence(t *testing.T) {
	cases := []struct {
		name    string
		payload string
		want    *int64
	}{
		{"issue object", `{"issue": {"number": 42}}`, ptr(42)},
		{"issue scalar falls back to payload number", `{"issue": 7, "number": 41}`, ptr(41)},
		{"issue_id", `{"issue_id": 40}`, ptr(40)},
		{"pull request wins over issue", `{"issue": {"number": 42}, "pull_request": {"number": 43}}`, ptr(43)},
		{"pull request scalar falls back", `{"pull_request": 9, "number": 44}`, ptr(44)},
		{"no reference", `{"action": "opened"}`, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			line := []byte(`{
				"id": "1", "type": "IssuesEvent",
				"actor": {"login": "a"}, "repo": {"name": "a/b"},
				"created_at": "2016-01-01T00:00:00Z",
				"payload": ` + tc.payload + `}`)
			rec, err := Normalize(line)
			if err != nil {
				t.Fatalf("Normalize: %v", err)
			}
			switch {
			case tc.want == nil && rec.Number != nil:
				t.Errorf("Number = %d, want nil", *rec.Number)
			case tc.want != nil && rec.Number == nil:
				t.Errorf("Number = nil, want %d", *tc.want)
			case tc.want != nil && *rec.Number != *tc.want:
				t.Errorf("Number = %d, want %d", *rec.Number, *tc.want)
			}
		})
	}
}

func TestNormalizeAction(t *testing.T) {
	line := []byte(`{
		"id": "1", "type": "IssuesEvent",
		"actor": {"login": "a"}, "repo": {"name": "a/b"},
		"created_at": "2016-01-01T00:00:00Z",
		"payload": {"action": "closed"}}`)
	rec, err := Normalize(line)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if rec.Action != "closed" {
		t.Errorf("Action = %q", rec.Action)
	}
}

func TestNormalizeTimestampOffset(t *testing.T) {
	line := []byte(`{
		"id": "1", "type": "PushEvent",
		"actor": {"login": "a"}, "repo": {"name": "a/b"},
		"created_at": "2012-03-10T00:30:00-08:00"}`)
	rec, err := Normalize(line)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if rec.CreatedAt != "2012-03-10T08:30:00Z" {
		t.Errorf("CreatedAt = %q", rec.CreatedAt)
	}
}

func TestNormalizeRejects(t *testing.T) {
	cases := []struct {
		name string
		line string
	}{
		{"not json", `push event`},
		{"no type", `{"actor":{"login":"a"},"repo":{"name":"a/b"},"created_at":"2016-01-01T00:00:00Z"}`},
		{"no project", `{"type":"PushEvent","actor":{"login":"a"},"created_at":"2016-01-01T00:00:00Z"}`},
		{"no actor", `{"type":"PushEvent","repo":{"name":"a/b"},"created_at":"2016-01-01T00:00:00Z"}`},
		{"no created_at", `{"type":"PushEvent","actor":{"login":"a"},"repo":{"name":"a/b"}}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Normalize([]byte(tc.line)); err == nil {
				t.Fatal("expected error")
			} else if errors.Is(err, ErrFiltered) {
				t.Fatal("rejects must not be reported as filtered")
			}
		})
	}
}

func ptr(n int64) *int64 { return &n }
