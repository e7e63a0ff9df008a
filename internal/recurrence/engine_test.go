package recurrence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngine_Expand(t *testing.T) {
	t.Parallel()

	engine := NewEngine(nil)
	baseStart := time.Date(2025, time.January, 6, 9, 0, 0, 0, jst) // Monday
	baseEnd := baseStart.Add(time.Hour)

	t.Run("weekly rule honors selected weekdays", func(t *testing.T) {
		t.Parallel()

		rule := Rule{EventID: "ev-1", Frequency: FrequencyWeekly, Weekdays: []time.Weekday{time.Monday, time.Wednesday, time.Friday}}
		window := Window{Start: baseStart, End: baseStart.AddDate(0, 0, 7)}

		got, err := engine.Expand(rule, baseStart, baseEnd, window)
		require.NoError(t, err)
		want := []time.Weekday{time.Monday, time.Wednesday, time.Friday}
		require.Len(t, got, len(want))
		for i, occ := range got {
			assert.Equal(t, want[i], occ.Start.Weekday(), "occurrence %d", i)
			assert.Equal(t, 9, occ.Start.Hour(), "occurrence %d", i)
			assert.Equal(t, time.Hour, occ.End.Sub(occ.Start), "occurrence %d", i)
			assert.Equal(t, "ev-1", occ.EventID)
		}
	})

	t.Run("weekly rule without weekdays repeats on the first weekday", func(t *testing.T) {
		t.Parallel()

		rule := Rule{Frequency: FrequencyWeekly}
		window := Window{Start: baseStart, End: baseStart.AddDate(0, 0, 21)}

		got, err := engine.Expand(rule, baseStart, baseEnd, window)
		require.NoError(t, err)
		assert.Len(t, got, 3)
	})

	t.Run("daily rule stops at until and clips to the window", func(t *testing.T) {
		t.Parallel()

		until := baseStart.AddDate(0, 0, 9)
		rule := Rule{Frequency: FrequencyDaily, Until: &until}
		window := Window{Start: baseStart.AddDate(0, 0, 3), End: baseStart.AddDate(0, 0, 30)}

		got, err := engine.Expand(rule, baseStart, baseEnd, window)
		require.NoError(t, err)
		// day 3 through day 9
		require.Len(t, got, 7)
		assert.True(t, got[0].Start.Equal(baseStart.AddDate(0, 0, 3)), "first %v", got[0].Start)
		assert.True(t, got[6].Start.Equal(until), "last %v", got[6].Start)
	})

	t.Run("includes an occurrence already in progress at window start", func(t *testing.T) {
		t.Parallel()

		rule := Rule{Frequency: FrequencyDaily}
		windowStart := baseStart.AddDate(0, 0, 2).Add(30 * time.Minute)
		window := Window{Start: windowStart, End: windowStart.Add(2 * time.Hour)}

		got, err := engine.Expand(rule, baseStart, baseEnd, window)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.True(t, got[0].Start.Equal(baseStart.AddDate(0, 0, 2)), "got %v", got[0].Start)
	})

	t.Run("single events are returned only when they overlap", func(t *testing.T) {
		t.Parallel()

		inside, err := engine.Expand(Rule{}, baseStart, baseEnd, Window{Start: baseStart.Add(-time.Hour), End: baseStart.Add(time.Minute)})
		require.NoError(t, err)
		assert.Len(t, inside, 1)

		outside, err := engine.Expand(Rule{}, baseStart, baseEnd, Window{Start: baseEnd, End: baseEnd.Add(time.Hour)})
		require.NoError(t, err)
		assert.Empty(t, outside)
	})

	t.Run("rejects invalid input", func(t *testing.T) {
		t.Parallel()

		window := Window{Start: baseStart, End: baseStart.AddDate(0, 0, 1)}
		_, err := engine.Expand(Rule{Frequency: FrequencyDaily}, baseEnd, baseStart, window)
		assert.ErrorIs(t, err, ErrInvalidDuration)
		_, err = engine.Expand(Rule{Frequency: FrequencyDaily}, baseStart, baseEnd, Window{Start: baseStart, End: baseStart})
		assert.ErrorIs(t, err, ErrInvalidWindow)
		_, err = engine.Expand(Rule{Frequency: Frequency(9)}, baseStart, baseEnd, window)
		assert.ErrorIs(t, err, ErrInvalidFrequency)
	})
}

func TestEngine_KeepsWallClockAcrossOffsetChange(t *testing.T) {
	t.Parallel()

	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	engine := NewEngine(ny)
	start := time.Date(2025, time.March, 7, 9, 0, 0, 0, ny)
	window := Window{Start: start, End: start.AddDate(0, 0, 4)}

	got, err := engine.Expand(Rule{Frequency: FrequencyDaily}, start, start.Add(time.Hour), window)
	require.NoError(t, err)
	for _, occ := range got {
		assert.Equal(t, 9, occ.Start.Hour(), "expected 09:00 local start, got %v", occ.Start)
	}
}

func TestParseFrequency(t *testing.T) {
	t.Parallel()

	cases := map[string]Frequency{"": FrequencyNone, "none": FrequencyNone, "Daily": FrequencyDaily, "weekly": FrequencyWeekly}
	for input, want := range cases {
		got, err := ParseFrequency(input)
		require.NoError(t, err, "ParseFrequency(%q)", input)
		assert.Equal(t, want, got, "ParseFrequency(%q)", input)
	}
	assert.Equal(t, "weekly", FrequencyWeekly.String())
	assert.Equal(t, "none", FrequencyNone.String())

	_, err := ParseFrequency("monthly")
	assert.ErrorIs(t, err, ErrInvalidFrequency)
}

func BenchmarkEngineExpand(b *testing.B) {
	engine := NewEngine(nil)
	baseStart := time.Date(2025, time.May, 5, 9, 0, 0, 0, jst)
	rule := Rule{
		EventID:   "ev-1",
		Frequency: FrequencyWeekly,
		Weekdays:  []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday},
	}
	window := Window{Start: baseStart, End: baseStart.AddDate(0, 3, 0)}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := engine.Expand(rule, baseStart, baseStart.Add(90*time.Minute), window); err != nil {
			b.Fatalf("unexpected error: %v", err)
		}
	}
}
