// Package stream implements the rendezvous-style, multi-subscriber async
// channel of spec.md §4.4: a single suspending producer broadcasts to every
// live subscriber and only resumes once each has acknowledged the value and
// is ready for the next one. A Channel is also a reactive.Publisher, so
// reactive.Values(channel) adapts it straight into an async iterator.
package stream

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/CrisisTextLine/asyncbridge/bridge"
	"github.com/CrisisTextLine/asyncbridge/cancel"
	"github.com/CrisisTextLine/asyncbridge/internal/obslog"
	"github.com/CrisisTextLine/asyncbridge/reactive"
)

type chanState int

const (
	csIdle chanState = iota
	csPending
	csSending
	csAwaitingDemand
	csFinished
	csCancelled
)

type subState int

const (
	subIdle subState = iota
	subHasDemand
	subFinished
)

type subEntry[T any] struct {
	id     string
	state  subState
	demand int
	sub    reactive.Subscriber[T]
}

// Option configures a Channel.
type Option func(*settings)

type settings struct {
	logger obslog.Logger
}

// WithLogger attaches a logger for debug-level state-transition tracing.
func WithLogger(l obslog.Logger) Option {
	return func(s *settings) { s.logger = l }
}

// Channel is a single-producer, multi-subscriber broadcast primitive with
// rendezvous backpressure and no buffering, fan-in, or replay (spec.md §1
// Non-goals).
type Channel[T any] struct {
	mu    sync.Mutex
	state chanState

	pendingValue T
	producerK    func(bridge.Result[struct{}])

	subs     map[string]*subEntry[T]
	subOrder []string

	completion reactive.Completion

	id     string
	logger obslog.Logger
}

// NewChannel creates an idle Channel with no subscribers.
func NewChannel[T any](opts ...Option) *Channel[T] {
	s := &settings{logger: obslog.NoOp}
	for _, opt := range opts {
		opt(s)
	}
	return &Channel[T]{
		state:  csIdle,
		subs:   make(map[string]*subEntry[T]),
		id:     uuid.NewString(),
		logger: s.logger,
	}
}

// Send suspends until every current subscriber has positive demand, then
// delivers v to each, then suspends again until every subscriber has demand
// for the next value before returning.
func (c *Channel[T]) Send(ctx context.Context, v T) error {
	_, err := bridge.AwaitCancellable(ctx, func(complete func(bridge.Result[struct{}])) cancel.Handle {
		return c.beginSend(v, complete)
	})
	return err
}

func (c *Channel[T]) beginSend(v T, complete func(bridge.Result[struct{}])) cancel.Handle {
	c.mu.Lock()
	switch c.state {
	case csIdle:
		c.state = csPending
		c.pendingValue = v
		c.producerK = complete
		c.mu.Unlock()
		c.recheckDemand()
		return cancel.NewHandle(c.cancelActiveProducer)
	case csFinished:
		c.mu.Unlock()
		complete(bridge.Failed[struct{}](ErrOutputToFinished))
		return nil
	case csCancelled:
		c.mu.Unlock()
		complete(bridge.Failed[struct{}](ErrCancelled))
		return nil
	default: // pending, sending, awaiting_demand: another send is already active
		c.mu.Unlock()
		complete(bridge.Failed[struct{}](ErrConcurrentAccess))
		return nil
	}
}

// SendCompletion is synchronous and terminal: it delivers c to every current
// subscriber and fails all future Send/SendCompletion calls.
func (c *Channel[T]) SendCompletion(comp reactive.Completion) error {
	c.mu.Lock()
	switch c.state {
	case csIdle:
		snapshot := c.snapshotSubs()
		c.state = csFinished
		c.completion = comp
		c.mu.Unlock()
		for _, e := range snapshot {
			e.sub.OnComplete(comp)
		}
		return nil
	case csFinished:
		c.mu.Unlock()
		return ErrOutputToFinished
	case csCancelled:
		c.mu.Unlock()
		return ErrCancelled
	default: // pending, sending, awaiting_demand: a send is already active
		c.mu.Unlock()
		return ErrConcurrentAccess
	}
}

// Subscribe attaches sub to the channel. A subscriber attaching after a
// terminal completion or cancellation receives that terminal event
// immediately instead of participating in future sends.
func (c *Channel[T]) Subscribe(sub reactive.Subscriber[T]) {
	c.mu.Lock()
	switch c.state {
	case csFinished:
		comp := c.completion
		c.mu.Unlock()
		sub.OnSubscribe(noopSubscription{})
		sub.OnComplete(comp)
		return
	case csCancelled:
		c.mu.Unlock()
		sub.OnSubscribe(noopSubscription{})
		sub.OnComplete(reactive.Failed(ErrCancelled))
		return
	}

	id := uuid.NewString()
	c.subs[id] = &subEntry[T]{id: id, sub: sub}
	c.subOrder = append(c.subOrder, id)
	c.mu.Unlock()

	sub.OnSubscribe(subscriptionHandle[T]{ch: c, id: id})
}

func (c *Channel[T]) request(id string, n int) {
	if n <= 0 {
		return
	}
	c.mu.Lock()
	e, ok := c.subs[id]
	if !ok || e.state == subFinished {
		c.mu.Unlock()
		return
	}
	e.demand += n
	e.state = subHasDemand
	c.mu.Unlock()
	c.recheckDemand()
}

func (c *Channel[T]) cancelSub(id string) {
	c.mu.Lock()
	if _, ok := c.subs[id]; !ok {
		c.mu.Unlock()
		return
	}
	delete(c.subs, id)
	c.subOrder = removeID(c.subOrder, id)
	c.mu.Unlock()
	c.recheckDemand()
}

// cancelActiveProducer is the cancel handle returned to the bridge for an
// in-flight Send. It finalizes the channel as cancelled — the bridge itself
// resumes the producer's continuation with the cancellation error.
func (c *Channel[T]) cancelActiveProducer() {
	c.mu.Lock()
	switch c.state {
	case csPending, csSending, csAwaitingDemand:
		snapshot := c.snapshotSubs()
		c.producerK = nil
		c.state = csCancelled
		c.completion = reactive.Finished()
		c.mu.Unlock()

		c.logger.Debug("channel: producer cancelled, finishing subscribers", "channel_id", c.id)
		for _, e := range snapshot {
			e.sub.OnComplete(reactive.Finished())
		}
	default:
		c.mu.Unlock()
	}
}

// recheckDemand drives the pending -> sending -> idle/awaiting_demand chain
// whenever subscriber demand or membership changes. It is the "actions
// executed outside the lock" step of spec.md §4.4's transition function.
func (c *Channel[T]) recheckDemand() {
	c.mu.Lock()
	switch c.state {
	case csPending:
		if !c.demandReady() {
			c.mu.Unlock()
			return
		}
		v := c.pendingValue
		k := c.producerK
		snapshot := c.snapshotSubs()
		c.state = csSending
		c.mu.Unlock()

		for _, e := range snapshot {
			c.deliverOne(e.id, v)
		}

		c.mu.Lock()
		if c.state != csSending {
			// cancelled concurrently while delivering; that path already
			// resolved the terminal state.
			c.mu.Unlock()
			return
		}
		if c.demandReady() {
			c.producerK = nil
			c.state = csIdle
			c.mu.Unlock()
			k(bridge.Ok(struct{}{}))
			return
		}
		c.state = csAwaitingDemand
		c.mu.Unlock()

	case csAwaitingDemand:
		if !c.demandReady() {
			c.mu.Unlock()
			return
		}
		k := c.producerK
		c.producerK = nil
		c.state = csIdle
		c.mu.Unlock()
		k(bridge.Ok(struct{}{}))

	default:
		c.mu.Unlock()
	}
}

func (c *Channel[T]) deliverOne(id string, v T) {
	c.mu.Lock()
	e, ok := c.subs[id]
	if !ok || e.state == subFinished {
		c.mu.Unlock()
		return
	}
	e.demand--
	if e.demand <= 0 {
		e.demand = 0
		e.state = subIdle
	}
	sub := e.sub
	c.mu.Unlock()

	sub.OnNext(v)
}

// demandReady reports the demand-readiness predicate of spec.md §4.4:
// subscribers non-empty and every subscriber has positive demand. Caller
// must hold c.mu.
func (c *Channel[T]) demandReady() bool {
	if len(c.subs) == 0 {
		return false
	}
	for _, e := range c.subs {
		if e.state != subHasDemand || e.demand <= 0 {
			return false
		}
	}
	return true
}

// snapshotSubs returns the live subscribers in attachment order. Caller
// must hold c.mu. The returned slice is the exact set that must acknowledge
// the in-flight value — subscribers attaching afterward join the next
// rendezvous, not this one.
func (c *Channel[T]) snapshotSubs() []*subEntry[T] {
	out := make([]*subEntry[T], 0, len(c.subOrder))
	for _, id := range c.subOrder {
		if e, ok := c.subs[id]; ok {
			out = append(out, e)
		}
	}
	return out
}

func removeID(ids []string, id string) []string {
	out := ids[:0]
	for _, existing := range ids {
		if existing != id {
			out = append(out, existing)
		}
	}
	return out
}

// subscriptionHandle adapts one subscriber's Request/Cancel calls back to
// its owning Channel.
type subscriptionHandle[T any] struct {
	ch *Channel[T]
	id string
}

func (h subscriptionHandle[T]) Request(n int) { h.ch.request(h.id, n) }
func (h subscriptionHandle[T]) Cancel()       { h.ch.cancelSub(h.id) }

type noopSubscription struct{}

func (noopSubscription) Request(int) {}
func (noopSubscription) Cancel()     {}
