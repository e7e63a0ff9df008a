package application

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputePeriodRange(t *testing.T) {
	t.Parallel()

	loc := time.FixedZone("JST", 9*60*60)
	// Thursday 2025-01-09 01:30 JST.
	reference := time.Date(2025, 1, 8, 16, 30, 0, 0, time.UTC)

	cases := []struct {
		preset    RangePreset
		wantStart time.Time
		wantEnd   time.Time
	}{
		{RangeDay, time.Date(2025, 1, 9, 0, 0, 0, 0, loc), time.Date(2025, 1, 10, 0, 0, 0, 0, loc)},
		{RangeWeek, time.Date(2025, 1, 6, 0, 0, 0, 0, loc), time.Date(2025, 1, 13, 0, 0, 0, 0, loc)},
		{RangeMonth, time.Date(2025, 1, 1, 0, 0, 0, 0, loc), time.Date(2025, 2, 1, 0, 0, 0, 0, loc)},
	}
	for _, tc := range cases {
		t.Run(string(tc.preset), func(t *testing.T) {
			t.Parallel()
			start, end := computePeriodRange(tc.preset, reference, loc)
			assert.True(t, start.Equal(tc.wantStart), "start %s", start)
			assert.True(t, end.Equal(tc.wantEnd), "end %s", end)
		})
	}

	start, end := computePeriodRange(RangeNone, reference, loc)
	assert.True(t, start.IsZero())
	assert.True(t, end.IsZero())
}

func TestStartOfWeekOnSunday(t *testing.T) {
	t.Parallel()

	loc := time.FixedZone("JST", 9*60*60)
	sunday := time.Date(2025, 1, 12, 18, 0, 0, 0, loc)
	assert.Equal(t, time.Date(2025, 1, 6, 0, 0, 0, 0, loc), startOfWeek(sunday, loc))
}

func TestCountWorkingDays(t *testing.T) {
	t.Parallel()

	loc := time.UTC
	friday, err := parseDate("2025-01-10", loc)
	require.NoError(t, err)
	tuesday, err := parseDate("2025-01-14", loc)
	require.NoError(t, err)

	assert.Equal(t, 3, countWorkingDays(friday, tuesday))
	assert.Equal(t, 1, countWorkingDays(friday, friday))
	assert.Equal(t, 0, countWorkingDays(tuesday, friday))

	saturday, err := parseDate("2025-01-11", loc)
	require.NoError(t, err)
	assert.Equal(t, 0, countWorkingDays(saturday, saturday.AddDate(0, 0, 1)))
}

func TestHoursBetweenRoundsToTwoDecimals(t *testing.T) {
	t.Parallel()

	start := time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, 8.0, hoursBetween(start, start.Add(8*time.Hour)))
	assert.Equal(t, 6.49, hoursBetween(start, start.Add(6*time.Hour+29*time.Minute+30*time.Second)))
	assert.Equal(t, 0.01, hoursBetween(start, start.Add(30*time.Second)))
}
