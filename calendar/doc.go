// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package calendar holds the date and clock arithmetic used by signal scheduling.

# Recurrence Dates

A recurrence is a start date, an end date, and a step in days:

	for d := range calendar.Dates(start, end, 1) {
		// 2012-09-11, 2012-09-12, ... 2012-09-15
	}

Count returns the same cardinality without iterating. An end date before the
start date is an empty recurrence, never an error.

# Clocks

Version stamps are taken from a Clock so tests can pin time:

	clock := calendar.Fake(time.Date(2012, 9, 10, 8, 0, 0, 0, time.UTC))
	v := calendar.NextVersion(clock, prior)

NextVersion always returns something strictly after prior, at whole-second
precision, so versions compare exactly against HTTP dates. Other timestamps
(signal instants, event times) are kept at millisecond precision via Stamp.

# Daylight Saving

At follows time.Date for wall times a DST transition skips. Exists detects
them and Resolve maps them onto the transition instant.
*/
package calendar
