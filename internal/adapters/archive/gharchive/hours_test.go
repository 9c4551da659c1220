package gharchive

import (
	"path/filepath"
	"testing"
	"time"
)

func TestHourRefString(t *testing.T) {
	cases := []struct {
		h    HourRef
		want string
	}{
		{HourRef{2014, 1, 2, 0}, "2014-01-02-0"},
		{HourRef{2014, 1, 2, 15}, "2014-01-02-15"},
		{HourRef{2023, 12, 31, 23}, "2023-12-31-23"},
	}
	for _, tc := range cases {
		if got := tc.h.String(); got != tc.want {
			t.Errorf("String(%+v) = %q, want %q", tc.h, got, tc.want)
		}
	}
}

func TestHourRefURL(t *testing.T) {
	h := HourRef{2015, 1, 1, 7}
	want := "http://data.gharchive.org/2015-01-01-7.json.gz"
	if got := h.URL(); got != want {
		t.Errorf("URL = %q, want %q", got, want)
	}
}

func TestHourRefValid(t *testing.T) {
	cases := []struct {
		h    HourRef
		want bool
	}{
		{HourRef{2014, 2, 28, 0}, true},
		{HourRef{2014, 2, 30, 0}, false},
		{HourRef{2016, 2, 29, 0}, true}, // leap year
		{HourRef{2015, 2, 29, 0}, false},
		{HourRef{2014, 4, 31, 0}, false},
		{HourRef{2014, 12, 31, 23}, true},
	}
	for _, tc := range cases {
		if got := tc.h.Valid(); got != tc.want {
			t.Errorf("Valid(%+v) = %v, want %v", tc.h, got, tc.want)
		}
	}
}

func TestNewHourRefConvertsToUTC(t *testing.T) {
	loc := time.FixedZone("PST", -8*3600)
	h := NewHourRef(time.Date(2014, 1, 1, 20, 30, 0, 0, loc))
	if h != (HourRef{2014, 1, 2, 4}) {
		t.Errorf("NewHourRef = %+v", h)
	}
}

func TestTaskForPath(t *testing.T) {
	task := TaskFor(HourRef{2014, 3, 10, 5}, "/cache")
	want := filepath.Join("/cache", "2014", "2014-03-10-5.json.gz")
	if task.Path != want {
		t.Errorf("Path = %q, want %q", task.Path, want)
	}
	if task.Hour != (HourRef{2014, 3, 10, 5}) {
		t.Errorf("Hour = %+v", task.Hour)
	}
}
