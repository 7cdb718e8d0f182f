package stream

import "errors"

// ErrConcurrentAccess is returned by Send or SendCompletion when another
// Send is already outstanding on the same Channel, per spec.md §4.4 — the
// library supports exactly one producer at a time.
var ErrConcurrentAccess = errors.New("stream: concurrent send on channel")

// ErrOutputToFinished is returned by Send or SendCompletion once the
// channel has already reached a terminal completion.
var ErrOutputToFinished = errors.New("stream: send after channel finished")

// ErrCancelled is returned to the producer, and to any subscriber attaching
// afterward, once the channel's active producer has been cancelled.
var ErrCancelled = errors.New("stream: channel cancelled")
