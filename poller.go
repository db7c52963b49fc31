// Package poller keeps the apps of a workspace in sync with the object ID
// back end.
//
// One self-rearming loop drives three pieces:
//  1. Builder - collects the eligible apps and their keys into one batched request
//  2. Demultiplexer - splits the combined response into news, consumption and log slices
//     and routes each to its sink
//  3. Backoff - polls every 15s while something is changing, slowing down
//     by x1.25 per quiet cycle up to 15 minutes
//
// Failures never stop the loop. A failed check simply counts as "nothing
// changed"; only Dispose ends polling.
package poller

import "errors"

var (
	// ErrAlreadyStarted is returned by Start on a running poller.
	ErrAlreadyStarted = errors.New("poller already started")

	// ErrDisposed is returned by Start after Dispose.
	ErrDisposed = errors.New("poller disposed")

	// ErrCyclePanic wraps a panic recovered inside a polling cycle.
	ErrCyclePanic = errors.New("polling cycle panicked")

	// ErrMalformedResponse wraps decode failures of the check response.
	ErrMalformedResponse = errors.New("malformed check response")
)
