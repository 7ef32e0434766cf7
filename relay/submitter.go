// Package relay submits Functions requests to the consumer contract and
// waits for their asynchronous callbacks.
package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"
	"github.com/ruteri/functions-gemini-relay/bindings/consumer"
	"github.com/ruteri/functions-gemini-relay/interfaces"
)

// ErrNoTransactOpts is returned when a transaction is attempted without first setting transaction options.
var ErrNoTransactOpts = errors.New("no authorized transactor available")

// ConsumerContract is the subset of the consumer binding the relay uses.
type ConsumerContract interface {
	Address() common.Address
	SendRequest(opts *bind.TransactOpts, source string, secretsSlotId uint8, secretsVersion uint64, args []string, callbackGasLimit uint32) (*types.Transaction, error)
	ParseRequestSent(log types.Log) (*consumer.ConsumerRequestSent, error)
	WatchResponseReceived(opts *bind.WatchOpts, sink chan<- *consumer.ConsumerResponseReceived, requestId [][32]byte) (event.Subscription, error)
	FilterResponseReceived(opts *bind.FilterOpts, requestId [][32]byte) ([]*consumer.ConsumerResponseReceived, error)
}

// ChainBackend waits for receipts and reports the chain head.
type ChainBackend interface {
	bind.DeployBackend
	ethereum.BlockNumberReader
}

// Submitter sends one sendRequest transaction per descriptor and blocks until
// it is included.
type Submitter struct {
	contract ConsumerContract
	backend  ChainBackend
	auth     *bind.TransactOpts
	log      *slog.Logger
}

func NewSubmitter(contract ConsumerContract, backend ChainBackend, log *slog.Logger) *Submitter {
	if log == nil {
		log = slog.Default()
	}
	return &Submitter{contract: contract, backend: backend, log: log}
}

// SetTransactOpts sets the transaction options required for functions that modify state.
func (s *Submitter) SetTransactOpts(auth *bind.TransactOpts) {
	s.auth = auth
}

// Submit sends desc to the consumer and waits for the transaction receipt.
func (s *Submitter) Submit(ctx context.Context, desc interfaces.RequestDescriptor) (interfaces.SubmitReceipt, error) {
	if s.auth == nil {
		return interfaces.SubmitReceipt{}, interfaces.NewConfigError(ErrNoTransactOpts)
	}

	opts := *s.auth
	opts.Context = ctx

	tx, err := s.contract.SendRequest(&opts, desc.Source, desc.Secrets.SlotID, desc.Secrets.Version, desc.Args, desc.CallbackGasLimit)
	if err != nil {
		return interfaces.SubmitReceipt{}, classifySendError(err)
	}
	s.log.Info("request transaction sent", "txHash", tx.Hash().Hex(), "consumer", s.contract.Address().Hex())

	receipt, err := bind.WaitMined(ctx, s.backend, tx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return interfaces.SubmitReceipt{}, fmt.Errorf("%w: transaction %s not mined: %v", interfaces.ErrTimeout, tx.Hash().Hex(), err)
		}
		return interfaces.SubmitReceipt{}, fmt.Errorf("%w: waiting for transaction %s: %v", interfaces.ErrNetwork, tx.Hash().Hex(), err)
	}

	result := interfaces.SubmitReceipt{
		TxHash:      receipt.TxHash,
		BlockNumber: receipt.BlockNumber.Uint64(),
		GasUsed:     receipt.GasUsed,
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return result, fmt.Errorf("%w: transaction %s reverted in block %d", interfaces.ErrOnChainExecution, receipt.TxHash.Hex(), result.BlockNumber)
	}

	for _, l := range receipt.Logs {
		if l == nil || l.Address != s.contract.Address() {
			continue
		}
		ev, err := s.contract.ParseRequestSent(*l)
		if err != nil {
			continue
		}
		result.RequestID = interfaces.RequestID(ev.Id)
		result.HasRequestID = true
		break
	}

	s.log.Info("request transaction mined",
		"txHash", result.TxHash.Hex(),
		"block", result.BlockNumber,
		"gasUsed", result.GasUsed,
		"requestId", result.RequestID.String(),
	)
	return result, nil
}

// classifySendError separates contract-level rejections, which surface during
// gas estimation, from transport failures.
func classifySendError(err error) error {
	var dataErr interface{ ErrorData() interface{} }
	if errors.As(err, &dataErr) || strings.Contains(strings.ToLower(err.Error()), "revert") {
		return fmt.Errorf("%w: sendRequest rejected: %v", interfaces.ErrOnChainExecution, err)
	}
	return fmt.Errorf("%w: sendRequest: %v", interfaces.ErrNetwork, err)
}
