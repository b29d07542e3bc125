// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package events collects subject responses.

# Submission

Only subjects who joined the experiment may submit:

	ev, err := collector.Submit(ctx, subject, id, req)

The request must carry the experiment modification date the subject last
saw and a response time. The collector assigns a UUID and a receive time
and appends the event; the experiment itself is never touched.

# Stale Events

An event may be drafted against a version the observer has since replaced.
What happens then is a server setting:

	retain    store as is (default)
	annotate  store with stale=true
	reject    refuse with models.ErrStaleVersion

# Reading

List and Get serve a joined subject's own events. ListForExperiment serves
all subjects' events to the observer. Both return events in the order they
were received.
*/
package events
