// Package sse decodes server-sent event streams produced by upstream model
// providers into records of (event name, payload).
//
// The decoder is incremental: bytes are fed as they arrive from the network and
// complete records are returned as soon as their data line is terminated. A
// record split across two network reads is held back until the rest arrives, so
// the sequence of records never depends on how the upstream chunked its writes.
//
// The package only reads events. Writing events to clients is handled by the
// proxy package.
package sse
