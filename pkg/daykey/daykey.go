// Package daykey converts points in time to deterministic calendar-day
// integer keys (YYYYMMDD) and back. Day keys index the engine's daily
// accounting snapshots. All conversions are UTC on the proleptic
// Gregorian calendar.
package daykey

import (
	"time"

	"github.com/velora-fi/poolengine/common/errors"
)

// Key is a calendar-day integer key, e.g. 20240115.
type Key int

// FromTime returns the day key of the calendar day containing t.
func FromTime(t time.Time) Key {
	y, m, d := t.UTC().Date()
	return Key(y*10000 + int(m)*100 + d)
}

// DayStart returns midnight UTC of the day the key encodes. It fails
// with ErrInvalidDayKey if the key does not name a real calendar date
// on or after 1970-01-01.
func DayStart(k Key) (time.Time, error) {
	y := int(k) / 10000
	m := (int(k) / 100) % 100
	d := int(k) % 100
	if y < 1970 || m < 1 || m > 12 || d < 1 || d > 31 {
		return time.Time{}, errors.ErrInvalidDayKey
	}
	t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
	// time.Date normalizes out-of-range days (Feb 30 becomes Mar 1);
	// a round-trip detects those.
	if FromTime(t) != k {
		return time.Time{}, errors.ErrInvalidDayKey
	}
	return t, nil
}

// DaysBetween returns the number of whole days from the day containing
// from to the day containing to. It fails with ErrInvalidRange when to
// precedes from.
func DaysBetween(from, to time.Time) (int, error) {
	if to.Before(from) {
		return 0, errors.ErrInvalidRange
	}
	fy, fm, fd := from.UTC().Date()
	ty, tm, td := to.UTC().Date()
	f := time.Date(fy, fm, fd, 0, 0, 0, 0, time.UTC)
	t := time.Date(ty, tm, td, 0, 0, 0, 0, time.UTC)
	// Unix day numbers rather than a Duration: time.Duration caps at
	// roughly 292 years and would silently truncate longer spans.
	return int(t.Unix()/86400 - f.Unix()/86400), nil
}

// DaysBetweenKeys returns the whole days separating two day keys.
func DaysBetweenKeys(from, to Key) (int, error) {
	f, err := DayStart(from)
	if err != nil {
		return 0, err
	}
	t, err := DayStart(to)
	if err != nil {
		return 0, err
	}
	return DaysBetween(f, t)
}
