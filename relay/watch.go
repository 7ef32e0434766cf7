package relay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/ruteri/functions-gemini-relay/bindings/consumer"
	"github.com/ruteri/functions-gemini-relay/interfaces"
)

// DefaultPollInterval is used when the RPC endpoint cannot push logs.
const DefaultPollInterval = 2 * time.Second

// watchResponses subscribes to every ResponseReceived event of the consumer.
// Endpoints without push notifications (plain HTTP) are polled instead; the
// starting block is fixed before this returns so no later event is missed.
func watchResponses(ctx context.Context, contract ConsumerContract, backend ChainBackend, interval time.Duration, sink chan<- *consumer.ConsumerResponseReceived) (event.Subscription, error) {
	sub, err := contract.WatchResponseReceived(&bind.WatchOpts{Context: ctx}, sink, nil)
	if err == nil {
		return sub, nil
	}
	if !errors.Is(err, rpc.ErrNotificationsUnsupported) {
		return nil, fmt.Errorf("%w: could not subscribe to ResponseReceived: %v", interfaces.ErrNetwork, err)
	}

	from, err := backend.BlockNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: could not read block number: %v", interfaces.ErrNetwork, err)
	}
	return pollResponses(ctx, contract, backend, from, interval, sink), nil
}

func pollResponses(ctx context.Context, contract ConsumerContract, backend ChainBackend, from uint64, interval time.Duration, sink chan<- *consumer.ConsumerResponseReceived) event.Subscription {
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	return event.NewSubscription(func(quit <-chan struct{}) error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-quit:
				return nil
			case <-ctx.Done():
				return nil
			case <-ticker.C:
			}

			head, err := backend.BlockNumber(ctx)
			if err != nil {
				return err
			}
			if head < from {
				continue
			}

			end := head
			events, err := contract.FilterResponseReceived(&bind.FilterOpts{Start: from, End: &end, Context: ctx}, nil)
			if err != nil {
				return err
			}
			for _, ev := range events {
				select {
				case sink <- ev:
				case <-quit:
					return nil
				}
			}
			from = head + 1
		}
	})
}
