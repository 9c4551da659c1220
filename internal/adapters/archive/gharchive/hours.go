package gharchive

import (
	"fmt"
	"path/filepath"
	"time"
)

const baseURL = "http://data.gharchive.org"

// HourRef identifies a GH Archive hour (UTC)
type HourRef struct {
	Year  int
	Month int
	Day   int
	Hour  int
}

// NewHourRef creates an HourRef from a time.Time, converting to UTC
func NewHourRef(t time.Time) HourRef {
	ut := t.UTC()
	return HourRef{Year: ut.Year(), Month: int(ut.Month()), Day: ut.Day(), Hour: ut.Hour()}
}

// UTC returns the UTC time at the start of the hour
func (h HourRef) UTC() time.Time {
	return time.Date(h.Year, time.Month(h.Month), h.Day, h.Hour, 0, 0, 0, time.UTC)
}

// Valid reports whether the referenced calendar date actually exists.
// time.Date normalizes impossible dates (Feb 30 becomes Mar 2), so a
// round-trip mismatch means the input was not a real date
func (h HourRef) Valid() bool {
	t := h.UTC()
	return t.Year() == h.Year && int(t.Month()) == h.Month && t.Day() == h.Day && t.Hour() == h.Hour
}

// String returns the archive naming for the hour: YYYY-MM-DD-H
// (the hour is deliberately not zero padded, matching the archive)
func (h HourRef) String() string {
	return fmt.Sprintf("%04d-%02d-%02d-%d", h.Year, h.Month, h.Day, h.Hour)
}

// FileName returns the hourly gzip file name
func (h HourRef) FileName() string { return h.String() + ".json.gz" }

// URL returns the remote location of the hourly file
func (h HourRef) URL() string { return fmt.Sprintf("%s/%s", baseURL, h.FileName()) }

// Task is one hourly unit of the archive to fetch and ingest.
// Immutable once generated
type Task struct {
	Hour HourRef
	URL  string
	Path string // local cache path, <root>/<year>/<file>
}

// TaskFor derives the Task for an hour under the given cache root
func TaskFor(h HourRef, cacheRoot string) Task {
	return Task{
		Hour: h,
		URL:  h.URL(),
		Path: filepath.Join(cacheRoot, fmt.Sprintf("%04d", h.Year), h.FileName()),
	}
}
