// Package bus implements the asynchronous message channel connecting the
// isolated execution contexts (page agents, coordinator, panel). Messages
// are delivered through a single serialized queue: two messages enqueued in
// order are handled in that order, which is what makes cache invalidation on
// navigation reliable.
//
// Requests carry a correlation id and have at most one in-flight response;
// a response arriving after the requester is gone is inert data and is
// dropped.
package bus

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/entrhq/guardian/pkg/types"
)

// ErrClosed is returned to senders and waiters once the bus is closed.
var ErrClosed = errors.New("bus: channel closed")

// PanelTab addresses messages originating from the panel rather than a tab.
const PanelTab = -1

type response struct {
	value interface{}
	err   error
}

// Envelope is one message in flight: payload plus routing and correlation
// metadata. For request/response kinds the receiver answers via Respond.
type Envelope struct {
	// ID is the correlation id, unique per message.
	ID string

	// TabID identifies the originating tab, or PanelTab for the panel.
	TabID int

	Kind    types.MessageKind
	Payload interface{}

	respondOnce sync.Once
	reply       chan response
}

// OneWay reports whether the sender expects no response.
func (e *Envelope) OneWay() bool { return e.reply == nil }

// Respond delivers the response for a request. Only the first call per
// envelope has effect; responding to a one-way message is a no-op. The reply
// channel is buffered, so responding to a requester that already gave up
// never blocks.
func (e *Envelope) Respond(value interface{}, err error) {
	if e.reply == nil {
		return
	}
	e.respondOnce.Do(func() {
		e.reply <- response{value: value, err: err}
	})
}

// Bus is the shared message queue. One receiver drains Receive; any number
// of goroutines may Send or Request.
type Bus struct {
	inbox chan *Envelope
	done  chan struct{}

	closeOnce sync.Once
}

// New creates a bus with a small delivery buffer.
func New() *Bus {
	return &Bus{
		inbox: make(chan *Envelope, 64),
		done:  make(chan struct{}),
	}
}

// Send enqueues a one-way message. It blocks only when the queue is full and
// returns ErrClosed after Close.
func (b *Bus) Send(kind types.MessageKind, tabID int, payload interface{}) error {
	env := &Envelope{
		ID:      uuid.NewString(),
		TabID:   tabID,
		Kind:    kind,
		Payload: payload,
	}

	select {
	case b.inbox <- env:
		return nil
	case <-b.done:
		return ErrClosed
	}
}

// Request enqueues a request and blocks until its response arrives, the
// context is cancelled, or the bus closes.
func (b *Bus) Request(ctx context.Context, kind types.MessageKind, tabID int, payload interface{}) (interface{}, error) {
	env := &Envelope{
		ID:      uuid.NewString(),
		TabID:   tabID,
		Kind:    kind,
		Payload: payload,
		reply:   make(chan response, 1),
	}

	select {
	case b.inbox <- env:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-b.done:
		return nil, ErrClosed
	}

	select {
	case r := <-env.reply:
		return r.value, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-b.done:
		return nil, ErrClosed
	}
}

// Receive returns the delivery queue. Exactly one consumer should drain it.
func (b *Bus) Receive() <-chan *Envelope { return b.inbox }

// Done is closed when the bus shuts down.
func (b *Bus) Done() <-chan struct{} { return b.done }

// Close shuts the bus down. Pending and future senders and waiters get
// ErrClosed; undelivered messages are dropped.
func (b *Bus) Close() {
	b.closeOnce.Do(func() {
		close(b.done)
	})
}
