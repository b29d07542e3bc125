// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

// Package logging builds the slog logger installed by main. Output fans out
// to the console and an optional JSON file; the rest of the code base logs
// through the top-level slog functions.
package logging
