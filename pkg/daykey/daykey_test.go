package daykey

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/velora-fi/poolengine/common/errors"
)

func TestRoundTrip(t *testing.T) {
	dates := []time.Time{
		time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC),
		time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2000, 2, 29, 0, 0, 0, 0, time.UTC),
		time.Date(2100, 3, 1, 0, 0, 0, 0, time.UTC),
	}
	for _, d := range dates {
		key := FromTime(d)
		back, err := DayStart(key)
		require.NoError(t, err)
		assert.True(t, back.Equal(d), "round trip for %v via key %d", d, key)
	}
}

func TestFromTimeEncoding(t *testing.T) {
	assert.Equal(t, Key(20240115), FromTime(time.Date(2024, 1, 15, 13, 45, 12, 0, time.UTC)))
	assert.Equal(t, Key(19700101), FromTime(time.Unix(0, 0)))
	// Before-midnight instants in non-UTC zones resolve to the UTC day.
	est := time.FixedZone("EST", -5*3600)
	assert.Equal(t, Key(20240116), FromTime(time.Date(2024, 1, 15, 22, 0, 0, 0, est)))
}

func TestDayStartRejectsMalformedKeys(t *testing.T) {
	for _, k := range []Key{0, 19691231, 20241301, 20240230, 20240132, 20240100} {
		_, err := DayStart(k)
		assert.ErrorIs(t, err, apperrors.ErrInvalidDayKey, "key %d", k)
	}
}

func TestDaysBetween(t *testing.T) {
	from := time.Date(2023, 12, 31, 23, 59, 0, 0, time.UTC)
	to := time.Date(2024, 1, 1, 0, 1, 0, 0, time.UTC)

	days, err := DaysBetween(from, to)
	require.NoError(t, err)
	assert.Equal(t, 1, days)

	// Leap year: Feb has 29 days.
	days, err = DaysBetween(
		time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	)
	require.NoError(t, err)
	assert.Equal(t, 29, days)

	// Spans past time.Duration's ~292-year ceiling must not truncate.
	// 1970-01-01 to 2500-01-01 is 530 years: 193450 regular days plus
	// 129 leap days (2100, 2200, and 2300 are not leap years).
	days, err = DaysBetween(
		time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2500, 1, 1, 0, 0, 0, 0, time.UTC),
	)
	require.NoError(t, err)
	assert.Equal(t, 193579, days)

	same, err := DaysBetween(to, to)
	require.NoError(t, err)
	assert.Equal(t, 0, same)

	_, err = DaysBetween(to, from)
	assert.ErrorIs(t, err, apperrors.ErrInvalidRange)
}

func TestDaysBetweenKeys(t *testing.T) {
	days, err := DaysBetweenKeys(20231231, 20240101)
	require.NoError(t, err)
	assert.Equal(t, 1, days)

	_, err = DaysBetweenKeys(20240101, 20231231)
	assert.ErrorIs(t, err, apperrors.ErrInvalidRange)
}
