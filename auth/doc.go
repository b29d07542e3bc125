// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package auth resolves caller identity and generates identifiers.

# Identity

Authentication happens upstream. The server trusts two request headers:

	X-User-Email: subject@google.com
	X-Time-Zone:  America/Los_Angeles

UserFromRequest lowercases and validates the address; a missing header is
ErrMissingUser (401), a malformed one ErrInvalidUser (400).

TimezoneFromRequest validates the IANA name and falls back to the server's
configured default when the header is absent. The timezone is recorded on
join and decides where in the day a subject's signals fall.

# Identifiers

Events are identified by random UUIDs:

	id := auth.GenerateID()

Experiments use database-assigned integer ids.
*/
package auth
