package relay

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"
	"github.com/ruteri/functions-gemini-relay/bindings/consumer"
	"github.com/stretchr/testify/mock"
)

// MockConsumer mocks the ConsumerContract interface
type MockConsumer struct {
	mock.Mock
}

// Address mocks the Address method
func (m *MockConsumer) Address() common.Address {
	args := m.Called()
	return args.Get(0).(common.Address)
}

// SendRequest mocks the SendRequest method
func (m *MockConsumer) SendRequest(opts *bind.TransactOpts, source string, secretsSlotId uint8, secretsVersion uint64, reqArgs []string, callbackGasLimit uint32) (*types.Transaction, error) {
	args := m.Called(opts, source, secretsSlotId, secretsVersion, reqArgs, callbackGasLimit)
	tx, _ := args.Get(0).(*types.Transaction)
	return tx, args.Error(1)
}

// ParseRequestSent mocks the ParseRequestSent method
func (m *MockConsumer) ParseRequestSent(log types.Log) (*consumer.ConsumerRequestSent, error) {
	args := m.Called(log)
	ev, _ := args.Get(0).(*consumer.ConsumerRequestSent)
	return ev, args.Error(1)
}

// WatchResponseReceived mocks the WatchResponseReceived method
func (m *MockConsumer) WatchResponseReceived(opts *bind.WatchOpts, sink chan<- *consumer.ConsumerResponseReceived, requestId [][32]byte) (event.Subscription, error) {
	args := m.Called(opts, sink, requestId)
	sub, _ := args.Get(0).(event.Subscription)
	return sub, args.Error(1)
}

// FilterResponseReceived mocks the FilterResponseReceived method
func (m *MockConsumer) FilterResponseReceived(opts *bind.FilterOpts, requestId [][32]byte) ([]*consumer.ConsumerResponseReceived, error) {
	args := m.Called(opts, requestId)
	evs, _ := args.Get(0).([]*consumer.ConsumerResponseReceived)
	return evs, args.Error(1)
}

// MockChainBackend mocks the ChainBackend interface
type MockChainBackend struct {
	mock.Mock
}

// TransactionReceipt mocks the TransactionReceipt method
func (m *MockChainBackend) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	args := m.Called(ctx, txHash)
	receipt, _ := args.Get(0).(*types.Receipt)
	return receipt, args.Error(1)
}

// CodeAt mocks the CodeAt method
func (m *MockChainBackend) CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error) {
	args := m.Called(ctx, account, blockNumber)
	code, _ := args.Get(0).([]byte)
	return code, args.Error(1)
}

// BlockNumber mocks the BlockNumber method
func (m *MockChainBackend) BlockNumber(ctx context.Context) (uint64, error) {
	args := m.Called(ctx)
	return args.Get(0).(uint64), args.Error(1)
}
