// Package daymet adjusts calendar ranges for the Daymet climate dataset.
//
// Daymet keeps every year at 365 days: in leap years December 31 simply
// does not exist in the dataset. Requests spanning that day must be
// trimmed or the download service answers with an error.
package daymet

import (
	"fmt"
	"time"
)

// DateRange is an inclusive span of days within one calendar year.
type DateRange struct {
	First time.Time
	Last  time.Time
}

func (r DateRange) String() string {
	return fmt.Sprintf("%s..%s", r.First.Format("2006-01-02"), r.Last.Format("2006-01-02"))
}

// Ranges splits [start, end] into one range per calendar year, clamped to
// the requested window, with December 31 excluded in leap years. Years
// whose only requested day is a leap-year December 31 produce no range.
func Ranges(start, end time.Time) []DateRange {
	if end.Before(start) {
		return nil
	}

	var ranges []DateRange
	for year := start.Year(); year <= end.Year(); year++ {
		first := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
		if first.Before(start) {
			first = start
		}

		last := time.Date(year, time.December, 31, 0, 0, 0, 0, time.UTC)
		if isLeap(year) {
			// Dec 31 is absent from Daymet in leap years.
			last = time.Date(year, time.December, 30, 0, 0, 0, 0, time.UTC)
		}
		if last.After(end) {
			last = end
		}

		if last.Before(first) {
			continue
		}
		ranges = append(ranges, DateRange{First: first, Last: last})
	}
	return ranges
}

func isLeap(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}
