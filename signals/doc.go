// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package signals computes when a subject should be prompted.

# Generation

A schedule is a recurrence (active dates) and a daily window (local times of
day). For every active date one instant is drawn uniformly in
[start_time, end_time) and converted from the subject's zone to an absolute
time:

	for at := range signals.Generate(rule, window, loc, src) {
		// one instant per active date
	}

The sequence is lazy and finite. Ranging it again repeats the dates with new
draws from src.

# Degenerate Schedules

  - end_date before start_date: empty sequence
  - start_time == end_time: every instant is exactly start_time

Neither is an error.

# Daylight Saving

On a day where the window spans a DST transition, the draw is spread over
the window's elapsed time rather than its wall-clock width. The instant
stays inside the window: never in a skipped hour, and possibly in either
pass of a repeated one. A window lying wholly inside a skipped hour yields
the transition instant.

# Randomness

All draws come from a RandomSource. A seeded source reproduces the same
schedule:

	a := slices.Collect(signals.Generate(rule, window, loc, signals.NewSource(42)))
	b := slices.Collect(signals.Generate(rule, window, loc, signals.NewSource(42)))
	// a == b

The server shares one NewLockedSource across requests.
*/
package signals
