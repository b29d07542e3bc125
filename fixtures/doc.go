// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package fixtures loads experiments from YAML and seeds them into a store.

	file, err := fixtures.Load("fixtures/testdata/experiments.yaml")
	n, err := fixtures.Seed(ctx, store, file)

Dates are written YYYY-MM-DD and times of day HH:MM:SS. Each experiment may
list joins, which are made with the subject's timezone and no override.
Seeding skips experiments already present by (creator, title).
*/
package fixtures
