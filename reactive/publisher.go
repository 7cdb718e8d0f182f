// Package reactive adapts a demand-driven, subscription-based publisher
// model into Go's lazy asynchronous iterator shape, per spec.md §4.3.
//
// The upstream contract (Publisher/Subscriber/Subscription) is an
// assumption of spec.md, generalized here from an event bus's
// Subscription (Topic/ID/IsAsync/Cancel) by adding Request(n)
// demand — the same separation reactive-streams-style consumers draw
// between "you may send me N more" and "here is one."
package reactive

// Subscription is held by a Subscriber to request demand from, or cancel,
// its upstream Publisher.
type Subscription interface {
	// Request authorizes up to n further deliveries. n must be positive.
	Request(n int)
	// Cancel stops further deliveries. Idempotent.
	Cancel()
}

// Subscriber receives values from a Publisher. Methods may be invoked from
// any goroutine and must not block for long.
type Subscriber[T any] interface {
	// OnSubscribe is called exactly once, before any OnNext or OnComplete,
	// with the Subscription the subscriber uses to request values.
	OnSubscribe(sub Subscription)
	// OnNext delivers one value. Never called more times than demand has
	// been requested.
	OnNext(v T)
	// OnComplete delivers the terminal Completion. No further OnNext calls
	// follow.
	OnComplete(c Completion)
}

// Publisher is a demand-driven, push-model source of values.
type Publisher[T any] interface {
	// Subscribe registers sub. Subscribe must eventually call
	// sub.OnSubscribe.
	Subscribe(sub Subscriber[T])
}

// Completion is the terminal event delivered to a Subscriber: either a
// clean finish or a failure carrying the publisher's error.
type Completion struct {
	Err error
}

// Finished returns a clean, non-failing Completion.
func Finished() Completion { return Completion{} }

// Failed returns a Completion carrying err.
func Failed(err error) Completion { return Completion{Err: err} }

// IsFailure reports whether this Completion carries an error.
func (c Completion) IsFailure() bool { return c.Err != nil }
