// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package conditional answers conditional GETs.

Every readable resource has a version (a modification date). Serve sets
Last-Modified and a weak ETag derived from the resource name and version,
then evaluates the request headers:

	If-Match           no tag matches      → ErrPreconditionFailed (412)
	If-None-Match      a tag matches       → 304 Not Modified
	If-Modified-Since  version not newer   → 304 Not Modified
	otherwise                              → 200 with the JSON body

If-Match is checked first; Serve returns the error and leaves the 412 body
to the caller's error mapping. If-Modified-Since only counts when no
If-None-Match is sent. Experiment versions are whole seconds, so they
compare exactly against HTTP dates; a sub-second version (an event receive
time) is always newer than its own Last-Modified.

Only reads go through this package. Event submission and experiment
updates carry their own version checks.
*/
package conditional
