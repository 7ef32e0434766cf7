// Package callback correlates asynchronous ResponseReceived events with the
// requests waiting for them and decodes their payloads.
package callback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ethereum/go-ethereum/event"
	"github.com/ruteri/functions-gemini-relay/bindings/consumer"
	"github.com/ruteri/functions-gemini-relay/interfaces"
	"go.uber.org/atomic"
)

// DefaultEarlyBufferSize bounds the number of callbacks kept for requests
// nobody is waiting on yet.
const DefaultEarlyBufferSize = 64

var ErrAlreadyPending = errors.New("request is already awaited")

// Correlator routes callbacks to the PendingRequest registered for their
// request id. A request id maps to at most one PendingRequest.
type Correlator struct {
	mu       sync.Mutex
	pending  map[interfaces.RequestID]*PendingRequest
	wildcard *PendingRequest
	early    []interfaces.CallbackResult
	maxEarly int

	log *slog.Logger
}

func NewCorrelator(log *slog.Logger, earlyBufferSize int) *Correlator {
	if log == nil {
		log = slog.Default()
	}
	if earlyBufferSize <= 0 {
		earlyBufferSize = DefaultEarlyBufferSize
	}
	return &Correlator{
		pending:  make(map[interfaces.RequestID]*PendingRequest),
		maxEarly: earlyBufferSize,
		log:      log,
	}
}

// Expect registers interest in the callback for id. If that callback was
// already observed the returned request is resolved immediately.
func (c *Correlator) Expect(id interfaces.RequestID, returnType interfaces.ReturnType) (*PendingRequest, error) {
	p := newPendingRequest(c, id, false, returnType)

	c.mu.Lock()
	if _, ok := c.pending[id]; ok {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrAlreadyPending, id)
	}
	for i, res := range c.early {
		if res.RequestID == id {
			c.early = append(c.early[:i], c.early[i+1:]...)
			c.mu.Unlock()
			c.log.Debug("callback arrived before expectation", "requestId", id.String())
			p.resolve(c.decode(p, res))
			return p, nil
		}
	}
	c.pending[id] = p
	c.mu.Unlock()

	return p, nil
}

// ExpectAny resolves with the first callback nobody else is waiting for,
// whatever its request id. Used only when the submitting transaction did not
// reveal the request id.
func (c *Correlator) ExpectAny(returnType interfaces.ReturnType) (*PendingRequest, error) {
	p := newPendingRequest(c, interfaces.RequestID{}, true, returnType)

	c.mu.Lock()
	if c.wildcard != nil {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: first-event expectation", ErrAlreadyPending)
	}
	if len(c.early) > 0 {
		res := c.early[0]
		c.early = c.early[1:]
		c.mu.Unlock()
		p.resolve(c.decode(p, res))
		return p, nil
	}
	c.wildcard = p
	c.mu.Unlock()

	return p, nil
}

// Dispatch delivers one callback. It reports whether a waiting request took it;
// otherwise the callback is buffered, dropping the oldest one when full.
func (c *Correlator) Dispatch(res interfaces.CallbackResult) bool {
	c.mu.Lock()
	p, ok := c.pending[res.RequestID]
	if ok {
		delete(c.pending, res.RequestID)
	} else if c.wildcard != nil {
		p = c.wildcard
		c.wildcard = nil
		c.log.Warn("resolving first-event expectation with an unverified request id", "requestId", res.RequestID.String())
	} else {
		c.early = append(c.early, res)
		if len(c.early) > c.maxEarly {
			dropped := c.early[0]
			c.early = c.early[1:]
			c.log.Debug("early callback buffer full, dropping oldest", "requestId", dropped.RequestID.String())
		}
		c.mu.Unlock()
		c.log.Debug("callback for unknown request buffered", "requestId", res.RequestID.String())
		return false
	}
	c.mu.Unlock()

	return p.resolve(c.decode(p, res))
}

// Run pumps a ResponseReceived subscription into Dispatch until ctx is done or
// the subscription fails. A subscription failure fails every waiting request.
func (c *Correlator) Run(ctx context.Context, events <-chan *consumer.ConsumerResponseReceived, sub event.Subscription) error {
	defer sub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err, ok := <-sub.Err():
			if !ok || err == nil {
				return nil
			}
			err = fmt.Errorf("%w: callback subscription failed: %v", interfaces.ErrNetwork, err)
			c.Fail(err)
			return err
		case ev := <-events:
			if ev == nil {
				continue
			}
			c.Dispatch(FromEvent(ev))
		}
	}
}

// Fail resolves every waiting request with err.
func (c *Correlator) Fail(err error) {
	c.mu.Lock()
	waiting := make([]*PendingRequest, 0, len(c.pending)+1)
	for id, p := range c.pending {
		waiting = append(waiting, p)
		delete(c.pending, id)
	}
	if c.wildcard != nil {
		waiting = append(waiting, c.wildcard)
		c.wildcard = nil
	}
	c.mu.Unlock()

	for _, p := range waiting {
		p.resolve(outcome{err: err})
	}
}

// Pending returns the number of registered expectations.
func (c *Correlator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := len(c.pending)
	if c.wildcard != nil {
		n++
	}
	return n
}

// Buffered returns the number of callbacks held for requests not yet expected.
func (c *Correlator) Buffered() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.early)
}

// Reset drops buffered callbacks and returns how many there were. Registered
// expectations are left alone.
func (c *Correlator) Reset() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := len(c.early)
	c.early = nil
	return n
}

func (c *Correlator) deregister(p *PendingRequest) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if p.wildcard {
		if c.wildcard == p {
			c.wildcard = nil
		}
		return
	}
	if c.pending[p.ID] == p {
		delete(c.pending, p.ID)
	}
}

func (c *Correlator) decode(p *PendingRequest, res interfaces.CallbackResult) outcome {
	value, err := Decode(p.returnType, res.Response, res.Err, c.log)
	return outcome{result: res, fromEvent: true, value: value, err: err}
}

// FromEvent converts a bound contract event into a CallbackResult.
func FromEvent(ev *consumer.ConsumerResponseReceived) interfaces.CallbackResult {
	return interfaces.CallbackResult{
		RequestID:   interfaces.RequestID(ev.RequestId),
		Response:    ev.Response,
		Err:         ev.Err,
		BlockNumber: ev.Raw.BlockNumber,
		TxHash:      ev.Raw.TxHash,
	}
}

type outcome struct {
	result    interfaces.CallbackResult
	fromEvent bool
	value     interfaces.Decoded
	err       error
}

// PendingRequest is a single-resolution handle on one expected callback.
// It moves from waiting to resolved exactly once.
type PendingRequest struct {
	ID interfaces.RequestID

	wildcard   bool
	returnType interfaces.ReturnType
	correlator *Correlator

	resolved *atomic.Bool
	done     chan struct{}
	outcome  outcome
}

func newPendingRequest(c *Correlator, id interfaces.RequestID, wildcard bool, returnType interfaces.ReturnType) *PendingRequest {
	return &PendingRequest{
		ID:         id,
		wildcard:   wildcard,
		returnType: returnType,
		correlator: c,
		resolved:   atomic.NewBool(false),
		done:       make(chan struct{}),
	}
}

func (p *PendingRequest) resolve(o outcome) bool {
	if !p.resolved.CompareAndSwap(false, true) {
		return false
	}
	p.outcome = o
	close(p.done)
	return true
}

// Done is closed once the request is resolved.
func (p *PendingRequest) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the callback is decoded or ctx ends. When ctx ends first
// the request is deregistered and ErrTimeout is returned for a deadline.
func (p *PendingRequest) Wait(ctx context.Context) (interfaces.Decoded, error) {
	select {
	case <-p.done:
		return p.outcome.value, p.outcome.err
	case <-ctx.Done():
	}

	p.correlator.deregister(p)

	var err error
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		err = fmt.Errorf("%w: request %s", interfaces.ErrTimeout, p.ID)
	} else {
		err = ctx.Err()
	}
	if !p.resolve(outcome{err: err}) {
		// Resolved concurrently with the deadline; the callback wins.
		<-p.done
		return p.outcome.value, p.outcome.err
	}
	return interfaces.Decoded{}, err
}

// Callback returns the raw event once resolved by one.
func (p *PendingRequest) Callback() (interfaces.CallbackResult, bool) {
	select {
	case <-p.done:
		return p.outcome.result, p.outcome.fromEvent
	default:
		return interfaces.CallbackResult{}, false
	}
}
