// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package calendar

import (
	"iter"
	"time"

	"cloud.google.com/go/civil"
)

// AddDays returns d shifted by n calendar days.
func AddDays(d civil.Date, n int) civil.Date {
	return d.AddDays(n)
}

// Count returns how many dates Dates yields: floor((end-start)/every)+1, or
// zero when end precedes start or every is not positive.
func Count(start, end civil.Date, every int) int {
	if every < 1 || end.Before(start) {
		return 0
	}
	return end.DaysSince(start)/every + 1
}

// Dates enumerates start, start+every, ... up to and including end. The
// sequence can be ranged over any number of times.
func Dates(start, end civil.Date, every int) iter.Seq[civil.Date] {
	n := Count(start, end, every)
	return func(yield func(civil.Date) bool) {
		for k := 0; k < n; k++ {
			if !yield(AddDays(start, k*every)) {
				return
			}
		}
	}
}

// At combines a date and a local time of day into an instant in loc. A
// wall time skipped by a DST transition comes back shifted by the size of
// the gap, in whichever direction time.Date picks; see Exists and Resolve.
func At(d civil.Date, t civil.Time, loc *time.Location) time.Time {
	return civil.DateTime{Date: d, Time: t}.In(loc)
}

// Exists reports whether the wall time d t occurs in loc.
func Exists(d civil.Date, t civil.Time, loc *time.Location) bool {
	want := civil.DateTime{Date: d, Time: t}
	return civil.DateTimeOf(At(d, t, loc).In(loc)) == want
}

// gapSearch bounds the search for the end of a DST gap.
const gapSearch = 3 * time.Hour

// Resolve is At, except that a wall time skipped by a DST transition
// resolves to the transition itself: the first instant whose local time is
// not earlier than d t.
func Resolve(d civil.Date, t civil.Time, loc *time.Location) time.Time {
	at := At(d, t, loc)
	if Exists(d, t, loc) {
		return at
	}

	want := civil.DateTime{Date: d, Time: t}
	lo, hi := at.Add(-gapSearch), at.Add(gapSearch)
	for hi.Sub(lo) > time.Second {
		mid := lo.Add(hi.Sub(lo) / 2)
		if civil.DateTimeOf(mid.In(loc)).Before(want) {
			lo = mid
		} else {
			hi = mid
		}
	}
	// Transitions fall on whole seconds
	return hi.Truncate(time.Second)
}

// OffsetOfDay returns t as the duration since midnight.
func OffsetOfDay(t civil.Time) time.Duration {
	return time.Duration(t.Hour)*time.Hour +
		time.Duration(t.Minute)*time.Minute +
		time.Duration(t.Second)*time.Second +
		time.Duration(t.Nanosecond)
}

// TimeOfDay is the inverse of OffsetOfDay for offsets within one day.
func TimeOfDay(offset time.Duration) civil.Time {
	return civil.Time{
		Hour:       int(offset / time.Hour),
		Minute:     int(offset % time.Hour / time.Minute),
		Second:     int(offset % time.Minute / time.Second),
		Nanosecond: int(offset % time.Second),
	}
}
