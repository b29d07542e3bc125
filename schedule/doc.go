// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package schedule owns experiments, their versions and the signals
materialized for every joined subject.

# Versions

Every experiment carries a modification date with millisecond precision.
It moves forward on every update and every re-materialization, even when
the clock does not:

	updated, err := store.Update(ctx, id, prior, func(e *models.Experiment) error {
		e.Published = true
		return nil
	})

Passing the version the caller last saw as prior makes the write
conditional; a stale prior fails with models.ErrVersionConflict. A zero
prior applies the change to whatever is current, retrying a few times if
another writer wins the race.

# Atomic Swaps

An update rewrites the experiment and every joined subject's signals in one
transaction conditioned on the prior version. Readers therefore see either
the old schedule under the old version or the new schedule under the new
one. Enrollment re-checks the version after reading so a read that
straddles a swap is retried.

# Joining

	join, signals, err := store.Join(ctx, subject, id, override, "America/New_York")

Join fails with:

  - models.ErrNotFound: no such experiment
  - models.ErrForbidden: unpublished, or private without subject as a viewer
  - models.ErrNotEditable: override given but the schedule is not editable

Joining again replaces the relation, drops any earlier override unless a
new one is given, and draws fresh signals.

# Deletion

Delete removes the experiment with its join relations and signals. Events
submitted against it stay in storage.
*/
package schedule
