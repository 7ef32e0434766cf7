package relay

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/ruteri/functions-gemini-relay/bindings/consumer"
	logging "github.com/ruteri/functions-gemini-relay/common"
	"github.com/ruteri/functions-gemini-relay/interfaces"
	"github.com/ruteri/functions-gemini-relay/request"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var consumerAddress = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")

func testAuth(t *testing.T) *bind.TransactOpts {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	auth, err := bind.NewKeyedTransactorWithChainID(key, big.NewInt(1337))
	require.NoError(t, err)
	return auth
}

func testDescriptor() interfaces.RequestDescriptor {
	return interfaces.RequestDescriptor{
		Source:           "return Functions.encodeString('42')",
		Secrets:          interfaces.SecretLocation{SlotID: 0, Version: 1750960986},
		Args:             []string{"Say 'hello'."},
		ReturnType:       interfaces.ReturnString,
		CallbackGasLimit: 300000,
		SubscriptionID:   4321,
		DonID:            "fun-ethereum-sepolia-1",
	}
}

func idleSubscription() event.Subscription {
	return event.NewSubscription(func(quit <-chan struct{}) error {
		<-quit
		return nil
	})
}

type mockChain struct {
	consumer *MockConsumer
	backend  *MockChainBackend
	tx       *types.Transaction
	sink     chan<- *consumer.ConsumerResponseReceived
}

// newMockChain wires a consumer whose sendRequest is mined in block 10 and,
// when callback is non-nil, answered with it right after submission.
func newMockChain(t *testing.T, requestID [32]byte, withRequestSent bool, callback *consumer.ConsumerResponseReceived) *mockChain {
	mc := &mockChain{
		consumer: new(MockConsumer),
		backend:  new(MockChainBackend),
		tx:       types.NewTx(&types.LegacyTx{Nonce: 1, Gas: 21000, GasPrice: big.NewInt(1)}),
	}

	mc.consumer.On("Address").Return(consumerAddress)
	mc.consumer.On("WatchResponseReceived", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			mc.sink = args.Get(1).(chan<- *consumer.ConsumerResponseReceived)
		}).
		Return(idleSubscription(), nil)

	mc.consumer.On("SendRequest", mock.Anything, mock.Anything, uint8(0), uint64(1750960986), []string{"Say 'hello'."}, uint32(300000)).
		Run(func(args mock.Arguments) {
			if callback != nil {
				sink := mc.sink
				go func() { sink <- callback }()
			}
		}).
		Return(mc.tx, nil)

	requestSentLog := &types.Log{Address: consumerAddress, Topics: []common.Hash{{0x01}, requestID}}
	receipt := &types.Receipt{
		Status:      types.ReceiptStatusSuccessful,
		TxHash:      mc.tx.Hash(),
		BlockNumber: big.NewInt(10),
		GasUsed:     120000,
	}
	if withRequestSent {
		receipt.Logs = []*types.Log{requestSentLog}
		mc.consumer.On("ParseRequestSent", *requestSentLog).Return(&consumer.ConsumerRequestSent{Id: requestID}, nil)
	}
	mc.backend.On("TransactionReceipt", mock.Anything, mc.tx.Hash()).Return(receipt, nil)

	return mc
}

func (mc *mockChain) client(t *testing.T) *Client {
	c := NewClient(mc.consumer, mc.backend, logging.DiscardLogger())
	c.SetTransactOpts(testAuth(t))
	return c
}

func TestClient_Request_ScenarioA(t *testing.T) {
	requestID := crypto.Keccak256Hash([]byte("request-a"))
	mc := newMockChain(t, requestID, true, &consumer.ConsumerResponseReceived{
		RequestId: requestID,
		Response:  []byte("42"),
		Err:       []byte{},
	})

	result, err := mc.client(t).Request(context.Background(), testDescriptor(), time.Second)
	require.NoError(t, err)

	assert.Equal(t, "42", result.Value.Text)
	assert.Equal(t, interfaces.KindString, result.Value.Kind)
	assert.Equal(t, uint64(10), result.Receipt.BlockNumber)
	assert.Equal(t, interfaces.RequestID(requestID), result.Receipt.RequestID)
	assert.Equal(t, interfaces.RequestID(requestID), result.Callback.RequestID)
	mc.consumer.AssertExpectations(t)
	mc.backend.AssertExpectations(t)
}

func TestClient_Request_ScenarioB(t *testing.T) {
	requestID := crypto.Keccak256Hash([]byte("request-b"))
	mc := newMockChain(t, requestID, true, &consumer.ConsumerResponseReceived{
		RequestId: requestID,
		Response:  []byte{},
		Err:       []byte("insufficient funds"),
	})

	result, err := mc.client(t).Request(context.Background(), testDescriptor(), time.Second)
	require.Error(t, err)
	assert.ErrorIs(t, err, interfaces.ErrOnChainExecution)

	var execErr *interfaces.ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, "insufficient funds", execErr.Message)
	assert.Contains(t, err.Error(), "insufficient funds")

	require.NotNil(t, result)
	assert.Equal(t, []byte("insufficient funds"), result.Callback.Err)
}

func TestClient_BuildAndRequest_ScenarioC(t *testing.T) {
	mc := &mockChain{consumer: new(MockConsumer), backend: new(MockChainBackend)}
	c := NewClient(mc.consumer, mc.backend, logging.DiscardLogger())
	c.SetTransactOpts(testAuth(t))

	loader := new(request.MockSourceLoader)
	in := request.Input{
		SourcePath:     "functions-source.js",
		Args:           request.DefaultArgs,
		SecretsVersion: "1750960986",
		DonID:          "fun-ethereum-sepolia-1",
	}

	_, result, err := c.BuildAndRequest(context.Background(), in, loader, time.Second)
	require.Error(t, err)
	assert.ErrorIs(t, err, interfaces.ErrConfiguration)
	assert.Nil(t, result)

	loader.AssertNotCalled(t, "Load", mock.Anything)
	mc.consumer.AssertNotCalled(t, "WatchResponseReceived", mock.Anything, mock.Anything, mock.Anything)
	mc.consumer.AssertNotCalled(t, "SendRequest", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	mc.backend.AssertNotCalled(t, "TransactionReceipt", mock.Anything, mock.Anything)
	assert.Len(t, mc.consumer.Calls, 0)
	assert.Len(t, mc.backend.Calls, 0)
}

func TestClient_Request_IgnoresForeignCallback(t *testing.T) {
	requestID := crypto.Keccak256Hash([]byte("mine"))
	mc := newMockChain(t, requestID, true, &consumer.ConsumerResponseReceived{
		RequestId: crypto.Keccak256Hash([]byte("someone else")),
		Response:  []byte("not mine"),
	})

	_, err := mc.client(t).Request(context.Background(), testDescriptor(), 100*time.Millisecond)
	assert.ErrorIs(t, err, interfaces.ErrTimeout)
}

func TestClient_Request_FirstEventFallback(t *testing.T) {
	mc := newMockChain(t, [32]byte{}, false, &consumer.ConsumerResponseReceived{
		RequestId: crypto.Keccak256Hash([]byte("unknown")),
		Response:  []byte("42"),
	})

	result, err := mc.client(t).Request(context.Background(), testDescriptor(), time.Second)
	require.NoError(t, err)
	assert.False(t, result.Receipt.HasRequestID)
	assert.Equal(t, "42", result.Value.Text)
}

func TestClient_Request_FallbackIgnoresEarlierCallbacks(t *testing.T) {
	mc := newMockChain(t, [32]byte{}, false, nil)
	c := mc.client(t)

	// left behind by a previous request on the same client
	c.correlator.Dispatch(interfaces.CallbackResult{
		RequestID: interfaces.RequestID(crypto.Keccak256Hash([]byte("previous run"))),
		Response:  []byte("stale"),
	})
	require.Equal(t, 1, c.correlator.Buffered())

	result, err := c.Request(context.Background(), testDescriptor(), 100*time.Millisecond)
	assert.ErrorIs(t, err, interfaces.ErrTimeout)
	require.NotNil(t, result)
	assert.Empty(t, result.Value.Text)
	assert.Equal(t, 0, c.correlator.Buffered())
}

func TestClient_Request_Timeout(t *testing.T) {
	requestID := crypto.Keccak256Hash([]byte("slow"))
	mc := newMockChain(t, requestID, true, nil)
	c := mc.client(t)

	start := time.Now()
	result, err := c.Request(context.Background(), testDescriptor(), 50*time.Millisecond)
	assert.ErrorIs(t, err, interfaces.ErrTimeout)
	assert.Less(t, time.Since(start), 5*time.Second)
	require.NotNil(t, result)
	assert.Equal(t, interfaces.RequestID(requestID), result.Receipt.RequestID)
	assert.Equal(t, 0, c.correlator.Pending())
}

func TestClient_Request_PollsWithoutNotifications(t *testing.T) {
	requestID := crypto.Keccak256Hash([]byte("polled"))
	mc := &mockChain{
		consumer: new(MockConsumer),
		backend:  new(MockChainBackend),
		tx:       types.NewTx(&types.LegacyTx{Nonce: 2}),
	}

	mc.consumer.On("Address").Return(consumerAddress)
	mc.consumer.On("WatchResponseReceived", mock.Anything, mock.Anything, mock.Anything).Return(nil, rpc.ErrNotificationsUnsupported)
	mc.consumer.On("SendRequest", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(mc.tx, nil)

	requestSentLog := &types.Log{Address: consumerAddress, Topics: []common.Hash{{0x01}, requestID}}
	mc.consumer.On("ParseRequestSent", *requestSentLog).Return(&consumer.ConsumerRequestSent{Id: requestID}, nil)
	mc.backend.On("TransactionReceipt", mock.Anything, mc.tx.Hash()).Return(&types.Receipt{
		Status:      types.ReceiptStatusSuccessful,
		TxHash:      mc.tx.Hash(),
		BlockNumber: big.NewInt(11),
		Logs:        []*types.Log{requestSentLog},
	}, nil)
	mc.backend.On("BlockNumber", mock.Anything).Return(uint64(11), nil)
	mc.consumer.On("FilterResponseReceived", mock.MatchedBy(func(opts *bind.FilterOpts) bool {
		return opts.Start == 11 && opts.End != nil && *opts.End == 11
	}), mock.Anything).Return([]*consumer.ConsumerResponseReceived{
		{RequestId: requestID, Response: []byte("polled answer")},
	}, nil).Once()
	mc.consumer.On("FilterResponseReceived", mock.Anything, mock.Anything).Return(nil, nil)

	c := mc.client(t)
	c.SetPollInterval(10 * time.Millisecond)

	result, err := c.Request(context.Background(), testDescriptor(), time.Second)
	require.NoError(t, err)
	assert.Equal(t, "polled answer", result.Value.Text)
}

func TestClient_Request_SubscriptionFailure(t *testing.T) {
	mc := &mockChain{consumer: new(MockConsumer), backend: new(MockChainBackend)}
	mc.consumer.On("WatchResponseReceived", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("dial tcp: connection refused"))

	c := NewClient(mc.consumer, mc.backend, logging.DiscardLogger())
	c.SetTransactOpts(testAuth(t))

	_, err := c.Request(context.Background(), testDescriptor(), time.Second)
	assert.ErrorIs(t, err, interfaces.ErrNetwork)
	mc.consumer.AssertNotCalled(t, "SendRequest", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSubmitter_Errors(t *testing.T) {
	t.Run("no transactor", func(t *testing.T) {
		s := NewSubmitter(new(MockConsumer), new(MockChainBackend), logging.DiscardLogger())
		_, err := s.Submit(context.Background(), testDescriptor())
		assert.ErrorIs(t, err, interfaces.ErrConfiguration)
		assert.ErrorIs(t, err, ErrNoTransactOpts)
	})

	t.Run("reverted receipt", func(t *testing.T) {
		mc := newMockChain(t, [32]byte{}, false, nil)
		mc.backend.ExpectedCalls = nil
		mc.backend.On("TransactionReceipt", mock.Anything, mc.tx.Hash()).Return(&types.Receipt{
			Status:      types.ReceiptStatusFailed,
			TxHash:      mc.tx.Hash(),
			BlockNumber: big.NewInt(10),
		}, nil)

		s := NewSubmitter(mc.consumer, mc.backend, logging.DiscardLogger())
		s.SetTransactOpts(testAuth(t))
		receipt, err := s.Submit(context.Background(), testDescriptor())
		assert.ErrorIs(t, err, interfaces.ErrOnChainExecution)
		assert.Equal(t, uint64(10), receipt.BlockNumber)
	})

	t.Run("rpc failure", func(t *testing.T) {
		c := new(MockConsumer)
		c.On("SendRequest", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(nil, errors.New("Post \"https://rpc\": dial tcp: i/o timeout"))

		s := NewSubmitter(c, new(MockChainBackend), logging.DiscardLogger())
		s.SetTransactOpts(testAuth(t))
		_, err := s.Submit(context.Background(), testDescriptor())
		assert.ErrorIs(t, err, interfaces.ErrNetwork)
	})

	t.Run("estimation revert", func(t *testing.T) {
		c := new(MockConsumer)
		c.On("SendRequest", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(nil, errors.New("execution reverted: EmptySource"))

		s := NewSubmitter(c, new(MockChainBackend), logging.DiscardLogger())
		s.SetTransactOpts(testAuth(t))
		_, err := s.Submit(context.Background(), testDescriptor())
		assert.ErrorIs(t, err, interfaces.ErrOnChainExecution)
	})
}

func TestNewTransactor(t *testing.T) {
	auth, err := NewTransactor("0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80", big.NewInt(11155111))
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"), auth.From)

	_, err = NewTransactor("0x1234", big.NewInt(1))
	assert.ErrorIs(t, err, interfaces.ErrConfiguration)
	assert.NotContains(t, err.Error(), "1234")

	_, err = NewTransactor("ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80", nil)
	assert.ErrorIs(t, err, interfaces.ErrConfiguration)
}

func TestNewKeyedTransactor(t *testing.T) {
	key, err := ParsePrivateKey("0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80")
	require.NoError(t, err)

	auth, err := NewKeyedTransactor(key, big.NewInt(1337))
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"), auth.From)

	_, err = NewKeyedTransactor(nil, big.NewInt(1337))
	assert.ErrorIs(t, err, interfaces.ErrConfiguration)

	_, err = NewKeyedTransactor(key, big.NewInt(0))
	assert.ErrorIs(t, err, interfaces.ErrConfiguration)
}

func TestNewRequestRecord(t *testing.T) {
	desc := testDescriptor()
	addr, err := interfaces.NewContractAddressFromHex(consumerAddress.Hex())
	require.NoError(t, err)

	result := &Result{
		Receipt: interfaces.SubmitReceipt{BlockNumber: 10},
		Value:   interfaces.Decoded{Kind: interfaces.KindString, Text: "42"},
	}
	record := NewRequestRecord(desc, addr, result, nil)
	assert.Equal(t, desc.Hash(), record.DescriptorHash)
	assert.Equal(t, "string", record.OutcomeKind)
	assert.Equal(t, "42", record.Outcome)
	assert.Empty(t, record.Error)

	record = NewRequestRecord(desc, addr, result, interfaces.ErrTimeout)
	assert.Empty(t, record.Outcome)
	assert.Equal(t, interfaces.ErrTimeout.Error(), record.Error)
}
