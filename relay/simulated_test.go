package relay

import (
	"context"
	"crypto/ecdsa"
	"encoding/binary"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient/simulated"
	"github.com/ruteri/functions-gemini-relay/bindings/consumer"
	"github.com/ruteri/functions-gemini-relay/bindings/functions"
	logging "github.com/ruteri/functions-gemini-relay/common"
	"github.com/ruteri/functions-gemini-relay/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// SetupTestChain starts a simulated chain with one funded account.
func SetupTestChain() (*simulated.Backend, *bind.TransactOpts, *ecdsa.PrivateKey, error) {
	privateKey, err := crypto.GenerateKey()
	if err != nil {
		return nil, nil, nil, err
	}

	auth, err := bind.NewKeyedTransactorWithChainID(privateKey, big.NewInt(1337))
	if err != nil {
		return nil, nil, nil, err
	}

	balance := new(big.Int)
	balance.SetString("10000000000000000000", 10) // 10 ETH

	genesisAlloc := map[common.Address]types.Account{
		auth.From: {Balance: balance},
	}

	backend := simulated.NewBackend(genesisAlloc, simulated.WithBlockGasLimit(8000000))
	return backend, auth, privateKey, nil
}

// autoCommit mines a block every few milliseconds until the returned func is called.
func autoCommit(backend *simulated.Backend) func() {
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(20 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				backend.Commit()
			}
		}
	}()
	return func() {
		close(done)
		wg.Wait()
	}
}

type asm []byte

func (a asm) push1(v byte) asm { return append(a, 0x60, v) }

func (a asm) push2(v uint16) asm {
	return binary.BigEndian.AppendUint16(append(a, 0x61), v)
}

func (a asm) push32(v [32]byte) asm { return append(append(a, 0x7f), v[:]...) }

const (
	opCodecopy = 0x39
	opLog2     = 0xa2
	opReturn   = 0xf3
	opRevert   = 0xfd
	opStop     = 0x00
)

// emitterRuntime answers every call by emitting RequestSent(id) followed by
// ResponseReceived(id, response, errPayload), standing in for the consumer
// plus an instantaneous DON.
func emitterRuntime(t *testing.T, id [32]byte, response, errPayload []byte) []byte {
	parsed, err := consumer.ParsedABI()
	require.NoError(t, err)

	data, err := parsed.Events["ResponseReceived"].Inputs.NonIndexed().Pack(response, errPayload)
	require.NoError(t, err)

	requestSent := parsed.Events["RequestSent"].ID
	responseReceived := parsed.Events["ResponseReceived"].ID

	build := func(dataOffset uint16) asm {
		code := asm{}.
			push32(id).push32(requestSent).push1(0).push1(0)
		code = append(code, opLog2)
		code = code.push2(uint16(len(data))).push2(dataOffset).push1(0)
		code = append(code, opCodecopy)
		code = code.push32(id).push32(responseReceived).push2(uint16(len(data))).push1(0)
		code = append(code, opLog2, opStop)
		return code
	}

	code := build(0)
	code = build(uint16(len(code)))
	return append(code, data...)
}

// revertRuntime reverts every call.
func revertRuntime() []byte {
	return append(asm{}.push1(0).push1(0), opRevert)
}

// creationCode wraps a runtime in a constructor that returns it verbatim.
// Constructor arguments appended by the deployer are ignored.
func creationCode(runtime []byte) []byte {
	const prefixLen = 15
	code := asm{}.push2(uint16(len(runtime))).push2(prefixLen).push1(0)
	code = append(code, opCodecopy)
	code = code.push2(uint16(len(runtime))).push1(0)
	code = append(code, opReturn)
	return append(code, runtime...)
}

func deployStub(t *testing.T, backend *simulated.Backend, auth *bind.TransactOpts, runtime []byte) common.Address {
	donID, err := functions.FormatBytes32String("fun-ethereum-sepolia-1")
	require.NoError(t, err)

	addr, tx, _, err := consumer.DeployConsumer(auth, backend.Client(), creationCode(runtime), common.HexToAddress("0xb83E47C2bC239B3bf370bc41e1459A34b41238D0"), donID, 4321)
	require.NoError(t, err)
	backend.Commit()

	receipt, err := backend.Client().TransactionReceipt(context.Background(), tx.Hash())
	require.NoError(t, err)
	require.Equal(t, types.ReceiptStatusSuccessful, receipt.Status)

	code, err := backend.Client().CodeAt(context.Background(), addr, nil)
	require.NoError(t, err)
	require.Equal(t, runtime, code)
	return addr
}

func TestClient_Request_SimulatedChain(t *testing.T) {
	backend, auth, _, err := SetupTestChain()
	require.NoError(t, err)
	defer backend.Close()

	requestID := crypto.Keccak256Hash([]byte("simulated"))
	addr := deployStub(t, backend, auth, emitterRuntime(t, requestID, []byte("42"), nil))

	contractAddr, err := interfaces.NewContractAddressFromBytes(addr.Bytes())
	require.NoError(t, err)
	client, err := NewClientFor(contractAddr, backend.Client(), logging.DiscardLogger())
	require.NoError(t, err)
	client.SetTransactOpts(auth)

	stop := autoCommit(backend)
	defer stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	result, err := client.Request(ctx, testDescriptor(), 20*time.Second)
	require.NoError(t, err)

	assert.True(t, result.Receipt.HasRequestID)
	assert.Equal(t, interfaces.RequestID(requestID), result.Receipt.RequestID)
	assert.Equal(t, "42", result.Value.Text)
	assert.Equal(t, result.Receipt.BlockNumber, result.Callback.BlockNumber)
}

func TestClient_Request_SimulatedChainError(t *testing.T) {
	backend, auth, _, err := SetupTestChain()
	require.NoError(t, err)
	defer backend.Close()

	requestID := crypto.Keccak256Hash([]byte("simulated-error"))
	addr := deployStub(t, backend, auth, emitterRuntime(t, requestID, nil, []byte("insufficient funds")))

	c, err := consumer.NewConsumer(addr, backend.Client())
	require.NoError(t, err)
	client := NewClient(c, backend.Client(), logging.DiscardLogger())
	client.SetTransactOpts(auth)

	stop := autoCommit(backend)
	defer stop()

	_, err = client.Request(context.Background(), testDescriptor(), 20*time.Second)
	require.Error(t, err)
	assert.ErrorIs(t, err, interfaces.ErrOnChainExecution)
	assert.Contains(t, err.Error(), "insufficient funds")
}

func TestSubmitter_SimulatedRevert(t *testing.T) {
	backend, auth, _, err := SetupTestChain()
	require.NoError(t, err)
	defer backend.Close()

	addr := deployStub(t, backend, auth, revertRuntime())
	c, err := consumer.NewConsumer(addr, backend.Client())
	require.NoError(t, err)

	stop := autoCommit(backend)
	defer stop()

	s := NewSubmitter(c, backend.Client(), logging.DiscardLogger())

	// Gas estimation surfaces the revert before anything is sent.
	s.SetTransactOpts(auth)
	_, err = s.Submit(context.Background(), testDescriptor())
	assert.ErrorIs(t, err, interfaces.ErrOnChainExecution)

	// With a fixed gas limit the transaction is mined and fails on chain.
	fixed := *auth
	fixed.GasLimit = 500000
	s.SetTransactOpts(&fixed)
	receipt, err := s.Submit(context.Background(), testDescriptor())
	assert.ErrorIs(t, err, interfaces.ErrOnChainExecution)
	assert.NotZero(t, receipt.BlockNumber)
}

func TestResolveChainID(t *testing.T) {
	backend, _, _, err := SetupTestChain()
	require.NoError(t, err)
	defer backend.Close()

	chainID, err := ResolveChainID(context.Background(), backend.Client(), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1337), chainID.Int64())

	chainID, err = ResolveChainID(context.Background(), backend.Client(), big.NewInt(11155111))
	require.NoError(t, err)
	assert.Equal(t, int64(11155111), chainID.Int64())
}
