package testfixtures

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClockDefaultsToReferenceTime(t *testing.T) {
	clock := NewClock(time.Time{})
	assert.True(t, clock.Now().Equal(ReferenceTime()), "got %v", clock.Now())
}

func TestClockAdvanceAndSet(t *testing.T) {
	start := time.Date(2024, time.March, 14, 9, 26, 0, 0, time.UTC)
	clock := NewClock(start)

	updated := clock.Advance(90 * time.Minute)
	assert.True(t, updated.Equal(start.Add(90*time.Minute)), "advance returned %v", updated)

	clock.Set(start.Add(2 * time.Hour))
	assert.True(t, clock.Current().Equal(start.Add(2*time.Hour)), "got %v", clock.Current())
}

func TestClockNowFunc(t *testing.T) {
	clock := NewClock(time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC))
	nowFn := clock.NowFunc()
	assert.True(t, nowFn().Equal(clock.Current()))

	clock.Advance(time.Minute)
	assert.True(t, nowFn().Equal(clock.Current()), "NowFunc must follow the clock")
}

func TestClockAdvanceDaysKeepsWallClock(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*60*60)
	clock := NewClock(time.Date(2025, time.January, 6, 9, 0, 0, 0, tokyo))

	got := clock.AdvanceDays(3, tokyo)
	want := time.Date(2025, time.January, 9, 9, 0, 0, 0, tokyo)
	assert.True(t, got.Equal(want), "expected %v, got %v", want, got)
}
