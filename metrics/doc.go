// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package metrics registers the server's Prometheus collectors.

Collectors are package-level and registered on the default registry at init:

	metrics.EventsSubmitted.WithLabelValues("accepted").Inc()

The router exposes them at GET /metrics via Handler.
*/
package metrics
