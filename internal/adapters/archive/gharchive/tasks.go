package gharchive

import "time"

// now is a seam so tests can pin the current wall clock
var now = time.Now

// Tasks enumerates hourly archive tasks for [startYear, endYear], stopping
// at (never including) the current UTC hour rounded down. Impossible
// calendar dates (day 31 in a 30-day month, Feb 30, ...) are silently
// skipped; that is the simplest correct way to walk a non-uniform calendar.
// With reverse set the newest hour comes first.
//
// Re-invoking after time has passed yields more tasks, which is how
// incremental catch-up runs pick up newly published hours
func Tasks(startYear, endYear int, cacheRoot string, reverse bool) []Task {
	cutoff := now().UTC().Truncate(time.Hour)

	var tasks []Task
loop:
	for year := startYear; year <= endYear; year++ {
		for month := 1; month <= 12; month++ {
			for day := 1; day <= 31; day++ {
				for hour := 0; hour < 24; hour++ {
					h := HourRef{Year: year, Month: month, Day: day, Hour: hour}
					if !h.Valid() {
						continue
					}
					if !h.UTC().Before(cutoff) {
						break loop
					}
					tasks = append(tasks, TaskFor(h, cacheRoot))
				}
			}
		}
	}

	if reverse {
		for i, j := 0, len(tasks)-1; i < j; i, j = i+1, j-1 {
			tasks[i], tasks[j] = tasks[j], tasks[i]
		}
	}
	return tasks
}
