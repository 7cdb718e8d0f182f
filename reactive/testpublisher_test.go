package reactive_test

import (
	"sync"

	"github.com/CrisisTextLine/asyncbridge/reactive"
)

// fakeSubscription is a controllable Subscription: Request accumulates
// demand for the test to observe, Cancel just latches a flag.
type fakeSubscription struct {
	mu        sync.Mutex
	requested int
	cancelled bool
}

func (s *fakeSubscription) Request(n int) {
	s.mu.Lock()
	s.requested += n
	s.mu.Unlock()
}

func (s *fakeSubscription) Cancel() {
	s.mu.Lock()
	s.cancelled = true
	s.mu.Unlock()
}

func (s *fakeSubscription) Requested() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requested
}

func (s *fakeSubscription) Cancelled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelled
}

// scriptedPublisher is a Publisher whose single Subscriber is handed back to
// the test so it can drive OnNext/OnComplete manually, mirroring the
// "test double publisher" convention used throughout the example corpus for
// asynchronous producers.
type scriptedPublisher[T any] struct {
	mu   sync.Mutex
	sub  reactive.Subscriber[T]
	fake *fakeSubscription
}

func newScriptedPublisher[T any]() *scriptedPublisher[T] {
	return &scriptedPublisher[T]{fake: &fakeSubscription{}}
}

func (p *scriptedPublisher[T]) Subscribe(sub reactive.Subscriber[T]) {
	p.mu.Lock()
	p.sub = sub
	p.mu.Unlock()
	sub.OnSubscribe(p.fake)
}

func (p *scriptedPublisher[T]) subscriber() reactive.Subscriber[T] {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sub
}

func (p *scriptedPublisher[T]) emit(v T) {
	p.subscriber().OnNext(v)
}

func (p *scriptedPublisher[T]) finish() {
	p.subscriber().OnComplete(reactive.Finished())
}

func (p *scriptedPublisher[T]) fail(err error) {
	p.subscriber().OnComplete(reactive.Failed(err))
}
