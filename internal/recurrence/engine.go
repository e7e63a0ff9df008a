package recurrence

import (
	"errors"
	"strings"
	"time"
)

var jst = time.FixedZone("JST", 9*60*60)

// Frequency represents supported recurrence intervals.
type Frequency int

const (
	// FrequencyNone marks a single, non-repeating event.
	FrequencyNone Frequency = iota
	// FrequencyDaily repeats every day, optionally restricted to Weekdays.
	FrequencyDaily
	// FrequencyWeekly repeats on the selected weekdays, or the first event's weekday when
	// none are selected.
	FrequencyWeekly
)

// ParseFrequency maps the stored recurrence label to a Frequency. The empty string is
// treated as "none".
func ParseFrequency(value string) (Frequency, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "none":
		return FrequencyNone, nil
	case "daily":
		return FrequencyDaily, nil
	case "weekly":
		return FrequencyWeekly, nil
	}
	return FrequencyNone, ErrInvalidFrequency
}

// String returns the stored label of the frequency.
func (f Frequency) String() string {
	switch f {
	case FrequencyDaily:
		return "daily"
	case FrequencyWeekly:
		return "weekly"
	default:
		return "none"
	}
}

// Rule describes how a calendar event repeats.
type Rule struct {
	EventID   string
	Frequency Frequency
	Weekdays  []time.Weekday
	// Until is the last instant an occurrence may start at. Nil repeats forever.
	Until *time.Time
}

// Window is the half-open range [Start, End) occurrences are generated for.
type Window struct {
	Start time.Time
	End   time.Time
}

// Occurrence is a single expanded instance of an event.
type Occurrence struct {
	EventID string
	Start   time.Time
	End     time.Time
}

// Engine expands recurrence rules into occurrences.
type Engine struct {
	location *time.Location
	// limit caps the number of occurrences produced per call.
	limit int
}

// DefaultLimit bounds a single expansion.
const DefaultLimit = 1000

// NewEngine constructs an Engine that evaluates wall clock times in loc. If loc is nil,
// Asia/Tokyo (JST) is used.
func NewEngine(loc *time.Location) *Engine {
	if loc == nil {
		loc = jst
	}
	return &Engine{location: loc, limit: DefaultLimit}
}

// Location returns the zone the engine evaluates dates in.
func (e *Engine) Location() *time.Location {
	if e == nil || e.location == nil {
		return jst
	}
	return e.location
}

var (
	// ErrInvalidFrequency indicates the recurrence frequency is not supported.
	ErrInvalidFrequency = errors.New("recurrence: invalid frequency")
	// ErrInvalidWindow indicates the generation window is empty or reversed.
	ErrInvalidWindow = errors.New("recurrence: window end must be after start")
	// ErrInvalidDuration indicates the base event duration is invalid.
	ErrInvalidDuration = errors.New("recurrence: event duration must be positive")
)

// Expand returns every occurrence of the event starting at baseStart and ending at
// baseEnd that overlaps window, ordered by start.
//
// Repeats keep the wall clock time of baseStart in the engine's location, so a 09:00
// event stays at 09:00 across offset changes. A non-repeating rule yields the base
// event itself when it overlaps the window.
func (e *Engine) Expand(rule Rule, baseStart, baseEnd time.Time, window Window) ([]Occurrence, error) {
	loc := e.Location()

	baseStart = baseStart.In(loc)
	baseEnd = baseEnd.In(loc)
	if !baseEnd.After(baseStart) {
		return nil, ErrInvalidDuration
	}
	if !window.End.After(window.Start) {
		return nil, ErrInvalidWindow
	}
	duration := baseEnd.Sub(baseStart)

	if rule.Frequency == FrequencyNone {
		if overlaps(baseStart, baseEnd, window) {
			return []Occurrence{{EventID: rule.EventID, Start: baseStart, End: baseEnd}}, nil
		}
		return []Occurrence{}, nil
	}
	if rule.Frequency != FrequencyDaily && rule.Frequency != FrequencyWeekly {
		return nil, ErrInvalidFrequency
	}

	weekdays := make(map[time.Weekday]struct{}, len(rule.Weekdays))
	for _, day := range rule.Weekdays {
		weekdays[day] = struct{}{}
	}
	if rule.Frequency == FrequencyWeekly && len(weekdays) == 0 {
		weekdays[baseStart.Weekday()] = struct{}{}
	}

	// Occurrences that started before the window may still overlap it.
	earliest := window.Start.In(loc).Add(-duration)
	day := baseStart
	if earliest.After(day) {
		day = atWallClock(earliest, baseStart, loc)
		if day.Before(earliest) {
			day = day.AddDate(0, 0, 1)
		}
	}

	limit := e.limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	occurrences := make([]Occurrence, 0)
	for day.Before(window.End) {
		if rule.Until != nil && day.After(*rule.Until) {
			break
		}
		if _, ok := weekdays[day.Weekday()]; ok || len(weekdays) == 0 {
			end := day.Add(duration)
			if overlaps(day, end, window) {
				occurrences = append(occurrences, Occurrence{EventID: rule.EventID, Start: day, End: end})
				if len(occurrences) >= limit {
					break
				}
			}
		}
		day = day.AddDate(0, 0, 1)
	}
	return occurrences, nil
}

func overlaps(start, end time.Time, window Window) bool {
	return start.Before(window.End) && end.After(window.Start)
}

// atWallClock returns the date of dateSource combined with the clock time of template.
func atWallClock(dateSource, template time.Time, loc *time.Location) time.Time {
	y, m, d := dateSource.In(loc).Date()
	t := template.In(loc)
	return time.Date(y, m, d, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), loc)
}
