package application

import (
	"math"
	"time"
)

const (
	dateLayout   = "2006-01-02"
	periodLayout = "2006-01"
)

// RangePreset identifies a calendar range around a reference date.
type RangePreset string

const (
	// RangeNone indicates that explicit bounds are supplied.
	RangeNone RangePreset = ""
	// RangeDay covers the calendar day of the reference date.
	RangeDay RangePreset = "day"
	// RangeWeek covers the Monday-start week containing the reference date.
	RangeWeek RangePreset = "week"
	// RangeMonth covers the month containing the reference date.
	RangeMonth RangePreset = "month"
)

// DefaultLocation is used when no timezone is configured.
func DefaultLocation() *time.Location {
	if loc, err := time.LoadLocation("Asia/Tokyo"); err == nil {
		return loc
	}
	return time.FixedZone("JST", 9*60*60)
}

func locationOrDefault(loc *time.Location) *time.Location {
	if loc == nil {
		return DefaultLocation()
	}
	return loc
}

func computePeriodRange(preset RangePreset, reference time.Time, loc *time.Location) (time.Time, time.Time) {
	switch preset {
	case RangeDay:
		start := startOfDay(reference, loc)
		return start, start.AddDate(0, 0, 1)
	case RangeWeek:
		start := startOfWeek(reference, loc)
		return start, start.AddDate(0, 0, 7)
	case RangeMonth:
		start := startOfMonth(reference, loc)
		return start, start.AddDate(0, 1, 0)
	default:
		return time.Time{}, time.Time{}
	}
}

func startOfDay(t time.Time, loc *time.Location) time.Time {
	loc = locationOrDefault(loc)
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}

func startOfWeek(t time.Time, loc *time.Location) time.Time {
	start := startOfDay(t, loc)
	// Monday is the first day of the week.
	offset := (int(start.Weekday()) + 6) % 7
	return start.AddDate(0, 0, -offset)
}

func startOfMonth(t time.Time, loc *time.Location) time.Time {
	start := startOfDay(t, loc)
	return time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, start.Location())
}

func parseDate(value string, loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(dateLayout, value, locationOrDefault(loc))
}

func formatDate(t time.Time, loc *time.Location) string {
	return t.In(locationOrDefault(loc)).Format(dateLayout)
}

// countWorkingDays counts Monday to Friday dates in the inclusive range.
func countWorkingDays(start, end time.Time) int {
	if end.Before(start) {
		return 0
	}
	days := 0
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		switch d.Weekday() {
		case time.Saturday, time.Sunday:
		default:
			days++
		}
	}
	return days
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func hoursBetween(start, end time.Time) float64 {
	return round2(float64(end.Sub(start).Milliseconds()) / 3_600_000)
}
