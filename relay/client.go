package relay

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ruteri/functions-gemini-relay/bindings/consumer"
	"github.com/ruteri/functions-gemini-relay/callback"
	"github.com/ruteri/functions-gemini-relay/interfaces"
	"github.com/ruteri/functions-gemini-relay/request"
)

// DefaultCallbackTimeout bounds the wait for the DON callback.
const DefaultCallbackTimeout = 5 * time.Minute

// Result is everything learned about one request, also on failure.
type Result struct {
	Receipt     interfaces.SubmitReceipt
	Callback    interfaces.CallbackResult
	Value       interfaces.Decoded
	SubmittedAt time.Time
	CompletedAt time.Time
}

// Client runs the whole request protocol: subscribe, submit, correlate, decode.
type Client struct {
	contract     ConsumerContract
	backend      ChainBackend
	submitter    *Submitter
	correlator   *callback.Correlator
	pollInterval time.Duration
	log          *slog.Logger
}

func NewClient(contract ConsumerContract, backend ChainBackend, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		contract:     contract,
		backend:      backend,
		submitter:    NewSubmitter(contract, backend, log),
		correlator:   callback.NewCorrelator(log, callback.DefaultEarlyBufferSize),
		pollInterval: DefaultPollInterval,
		log:          log,
	}
}

// NewClientFor binds the consumer at address and returns a Client for it.
func NewClientFor(address interfaces.ContractAddress, backend interface {
	bind.ContractBackend
	ChainBackend
}, log *slog.Logger) (*Client, error) {
	contract, err := consumer.NewConsumer(address.Address(), backend)
	if err != nil {
		return nil, err
	}
	return NewClient(contract, backend, log), nil
}

// SetTransactOpts sets the transaction options required for functions that modify state.
func (c *Client) SetTransactOpts(auth *bind.TransactOpts) {
	c.submitter.SetTransactOpts(auth)
}

// SetPollInterval sets how often logs are polled when the endpoint cannot push them.
func (c *Client) SetPollInterval(interval time.Duration) {
	c.pollInterval = interval
}

// Request submits desc and waits up to timeout for its callback. The
// subscription exists before the transaction is sent. When the receipt does
// not reveal the request id, the first callback observed is taken.
// Callbacks left over from earlier calls are discarded, so calls on one
// Client must not overlap.
func (c *Client) Request(ctx context.Context, desc interfaces.RequestDescriptor, timeout time.Duration) (*Result, error) {
	if c.submitter.auth == nil {
		return nil, interfaces.NewConfigError(ErrNoTransactOpts)
	}
	if timeout <= 0 {
		timeout = DefaultCallbackTimeout
	}

	if n := c.correlator.Reset(); n > 0 {
		c.log.Debug("discarded callbacks from earlier requests", "count", n)
	}

	runCtx, stop := context.WithCancel(ctx)
	defer stop()

	sink := make(chan *consumer.ConsumerResponseReceived, 16)
	sub, err := watchResponses(runCtx, c.contract, c.backend, c.pollInterval, sink)
	if err != nil {
		return nil, err
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := c.correlator.Run(runCtx, sink, sub); err != nil && !errors.Is(err, context.Canceled) {
			c.log.Error("callback subscription ended", "err", err)
		}
	}()
	defer func() {
		stop()
		wg.Wait()
	}()
	c.log.Debug("subscribed to ResponseReceived", "consumer", c.contract.Address().Hex())

	result := &Result{SubmittedAt: time.Now()}
	receipt, err := c.submitter.Submit(ctx, desc)
	result.Receipt = receipt
	if err != nil {
		return result, err
	}

	var pending *callback.PendingRequest
	if receipt.HasRequestID {
		pending, err = c.correlator.Expect(receipt.RequestID, desc.ReturnType)
	} else {
		c.log.Warn("receipt carries no RequestSent event, accepting the first callback observed", "txHash", receipt.TxHash.Hex())
		pending, err = c.correlator.ExpectAny(desc.ReturnType)
	}
	if err != nil {
		return result, err
	}

	c.log.Info("waiting for callback", "requestId", receipt.RequestID.String(), "timeout", timeout)
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	value, err := pending.Wait(waitCtx)
	result.CompletedAt = time.Now()
	if cb, ok := pending.Callback(); ok {
		result.Callback = cb
	}
	if err != nil {
		return result, err
	}

	result.Value = value
	return result, nil
}

// BuildAndRequest builds the descriptor from in and runs Request with it.
// Nothing reaches the network when the input is invalid.
func (c *Client) BuildAndRequest(ctx context.Context, in request.Input, loader request.SourceLoader, timeout time.Duration) (interfaces.RequestDescriptor, *Result, error) {
	desc, err := request.Build(in, loader)
	if err != nil {
		return interfaces.RequestDescriptor{}, nil, err
	}
	result, err := c.Request(ctx, desc, timeout)
	return desc, result, err
}
