package timeutil

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWindows(t *testing.T) {
	cycle := 15 * time.Minute
	from := time.Date(2024, 5, 6, 9, 7, 0, 0, time.UTC)
	to := time.Date(2024, 5, 6, 9, 52, 0, 0, time.UTC)

	windows := Windows(from, to, cycle)
	require.Len(t, windows, 2)

	assert.Equal(t, time.Date(2024, 5, 6, 9, 15, 0, 0, time.UTC), windows[0].Start)
	assert.Equal(t, windows[0].End, windows[1].Start)
	assert.Equal(t, time.Date(2024, 5, 6, 9, 45, 0, 0, time.UTC), windows[1].End)

	assert.Empty(t, Windows(from, to, 0))
}

func TestWindowContainsIsHalfOpen(t *testing.T) {
	start := time.Date(2024, 5, 6, 9, 0, 0, 0, time.UTC)
	w := Window{Start: start, End: start.Add(15 * time.Minute)}

	assert.True(t, w.Contains(start))
	assert.False(t, w.Contains(w.End))
	assert.Equal(t, 15*time.Minute, w.Duration())
}

func TestKeysSortInTimeOrder(t *testing.T) {
	a := time.Date(2024, 5, 6, 9, 0, 0, 5, time.UTC)
	b := a.Add(time.Nanosecond * 995)
	c := time.Date(2024, 5, 6, 10, 0, 0, 0, time.FixedZone("x", 2*3600))

	assert.Negative(t, bytes.Compare(ToKey(a), ToKey(b)))
	// 10:00+02:00 is 08:00 UTC
	assert.Positive(t, bytes.Compare(ToKey(a), ToKey(c)))

	got, err := FromKey(ToKey(b))
	require.NoError(t, err)
	assert.True(t, got.Equal(b))
}

func TestHumanDuration(t *testing.T) {
	assert.Equal(t, "12m", HumanDuration(12*time.Minute+20*time.Second))
	assert.Equal(t, "1h05m", HumanDuration(65*time.Minute))
	assert.Equal(t, "0m", HumanDuration(0))
}

func TestPeriodRange(t *testing.T) {
	now := time.Date(2024, 5, 8, 14, 30, 0, 0, time.UTC)

	start, end := PeriodRange(Period7Days, now)
	assert.Equal(t, time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, now, end)

	start, end = PeriodRange(PeriodYesterday, now)
	assert.Equal(t, time.Date(2024, 5, 7, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2024, 5, 7, 23, 59, 59, 0, time.UTC), end)
}
