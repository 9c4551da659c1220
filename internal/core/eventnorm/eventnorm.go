// Package eventnorm canonicalizes raw GH Archive event lines into the flat
// record shape the store persists. The archive's schema drifted over the
// years (pre-2015 "timeline" shape vs the modern API shape), so every field
// is resolved through an ordered list of strategies and the first hit wins
package eventnorm

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/araddon/dateparse"

	perr "github.com/wangliang-cs/gharchive-db-builder/internal/platform/errors"
)

// ErrFiltered marks events that are dropped on purpose, not by failure.
// Callers must not log or count these as parse errors
var ErrFiltered = errors.New("eventnorm: event filtered")

// Record is one canonical event row. Number is nil when the event carries
// no issue or pull request reference
type Record struct {
	ID        string
	ProjID    string
	UserID    string
	Type      string
	CreatedAt string // UTC, 2006-01-02T15:04:05Z
	Action    string
	Number    *int64
}

// envelope covers both archive schema generations. Fields that changed
// shape over time stay raw and are coerced per strategy
type envelope struct {
	ID         json.RawMessage `json:"id"`
	Type       string          `json:"type"`
	CreatedAt  string          `json:"created_at"`
	URL        string          `json:"url"`
	Repo       *repoRef        `json:"repo"`
	Repository json.RawMessage `json:"repository"`
	Actor      json.RawMessage `json:"actor"`
	ActorAttrs json.RawMessage `json:"actor_attributes"`
	Payload    json.RawMessage `json:"payload"`
}

type repoRef struct {
	Name string `json:"name"`
}

type repositoryRef struct {
	Owner json.RawMessage `json:"owner"`
	Name  string          `json:"name"`
}

type loginRef struct {
	Login string `json:"login"`
}

type payloadRef struct {
	Action      string          `json:"action"`
	Number      json.RawMessage `json:"number"`
	Issue       json.RawMessage `json:"issue"`
	IssueID     json.RawMessage `json:"issue_id"`
	PullRequest json.RawMessage `json:"pull_request"`
}

type numberRef struct {
	Number json.RawMessage `json:"number"`
}

// Normalize parses one raw line into a Record. GistEvents return
// ErrFiltered; anything else that cannot be resolved returns a JSON-coded
// error so the caller can divert the line to the unparsable log
func Normalize(line []byte) (Record, error) {
	var env envelope
	if err := json.Unmarshal(line, &env); err != nil {
		return Record{}, perr.Wrap(err, perr.ErrorCodeJSON, "decode event")
	}

	if env.Type == "GistEvent" {
		return Record{}, ErrFiltered
	}
	if env.Type == "" {
		return Record{}, perr.JSONErrf("event has no type")
	}

	projID, ok := resolveProject(&env)
	if !ok {
		return Record{}, perr.JSONErrf("cannot resolve project for %s", env.Type)
	}
	userID, ok := resolveActor(&env)
	if !ok {
		return Record{}, perr.JSONErrf("cannot resolve actor for %s", env.Type)
	}

	createdAt, err := canonicalTime(env.CreatedAt)
	if err != nil {
		return Record{}, err
	}

	rec := Record{
		ProjID:    "github:" + projID,
		UserID:    "github:" + userID,
		Type:      env.Type,
		CreatedAt: createdAt,
	}
	rec.ID = resolveID(env.ID, rec)
	rec.Action, rec.Number = resolvePayload(env.Payload)
	return rec, nil
}

// resolveProject tries, in order: modern repo.name; legacy repository
// owner+name (owner was a bare string, later an object); the legacy
// top-level url with the github host stripped
func resolveProject(env *envelope) (string, bool) {
	if env.Repo != nil && env.Repo.Name != "" {
		return env.Repo.Name, true
	}
	if len(env.Repository) > 0 {
		var repo repositoryRef
		if err := json.Unmarshal(env.Repository, &repo); err == nil && repo.Name != "" {
			if owner, ok := coerceLogin(repo.Owner); ok {
				return owner + "/" + repo.Name, true
			}
		}
	}
	if env.URL != "" {
		return strings.TrimPrefix(env.URL, "https://github.com/"), true
	}
	return "", false
}

// resolveActor prefers actor_attributes.login (the legacy schema kept the
// richer object there while actor was a bare string), then actor in either
// shape
func resolveActor(env *envelope) (string, bool) {
	if login, ok := coerceLogin(env.ActorAttrs); ok {
		return login, true
	}
	if login, ok := coerceLogin(env.Actor); ok {
		return login, true
	}
	return "", false
}

// coerceLogin accepts either {"login": "x"} or a bare "x"
func coerceLogin(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}
	var obj loginRef
	if err := json.Unmarshal(raw, &obj); err == nil && obj.Login != "" {
		return obj.Login, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil && s != "" {
		return s, true
	}
	return "", false
}

// resolveID keeps the archive id when present (string or numeric), else
// derives a stable surrogate from the canonical fields
func resolveID(raw json.RawMessage, rec Record) string {
	if len(raw) > 0 {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil && s != "" {
			return s
		}
		var n json.Number
		if err := json.Unmarshal(raw, &n); err == nil && n.String() != "" {
			return n.String()
		}
	}
	sum := sha256.Sum256([]byte(rec.ProjID + "_" + rec.UserID + "_" + rec.Type + "_" + rec.CreatedAt))
	return hex.EncodeToString(sum[:])
}

// resolvePayload extracts action and the issue/PR number. Issue shapes:
// an object with number, a bare reference falling back to payload.number,
// or a legacy issue_id. A pull_request number wins over the issue number
// because PR events in old archives carried both
func resolvePayload(raw json.RawMessage) (string, *int64) {
	if len(raw) == 0 {
		return "", nil
	}
	var p payloadRef
	if err := json.Unmarshal(raw, &p); err != nil {
		return "", nil
	}

	var number *int64
	if len(p.Issue) > 0 {
		if n, ok := objectNumber(p.Issue); ok {
			number = &n
		} else if !isObject(p.Issue) {
			if n, ok := rawInt(p.Number); ok {
				number = &n
			}
		}
	} else if n, ok := rawInt(p.IssueID); ok {
		number = &n
	}

	if len(p.PullRequest) > 0 {
		if n, ok := objectNumber(p.PullRequest); ok {
			number = &n
		} else if !isObject(p.PullRequest) {
			if n, ok := rawInt(p.Number); ok {
				number = &n
			}
		}
	}
	return p.Action, number
}

func isObject(raw json.RawMessage) bool {
	for _, b := range raw {
		switch b {
		case ' ', '\t', '\n', '\r':
			continue
		default:
			return b == '{'
		}
	}
	return false
}

func objectNumber(raw json.RawMessage) (int64, bool) {
	if !isObject(raw) {
		return 0, false
	}
	var ref numberRef
	if err := json.Unmarshal(raw, &ref); err != nil {
		return 0, false
	}
	return rawInt(ref.Number)
}

func rawInt(raw json.RawMessage) (int64, bool) {
	if len(raw) == 0 {
		return 0, false
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, false
	}
	i, err := n.Int64()
	if err != nil {
		return 0, false
	}
	return i, true
}

// canonicalTime parses the archive's assorted timestamp spellings and
// rewrites them as UTC RFC 3339 with second precision
func canonicalTime(s string) (string, error) {
	if s == "" {
		return "", perr.JSONErrf("event has no created_at")
	}
	t, err := dateparse.ParseAny(s)
	if err != nil {
		return "", perr.Wrap(err, perr.ErrorCodeJSON, "parse created_at")
	}
	return t.UTC().Format(time.RFC3339), nil
}
