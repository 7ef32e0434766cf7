package secrets

import (
	"context"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ruteri/functions-gemini-relay/bindings/functions"
	"github.com/ruteri/functions-gemini-relay/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeFunctionsChain answers router and coordinator calls.
type fakeFunctionsChain struct {
	t           *testing.T
	router      common.Address
	coordinator common.Address
	donKey      []byte
	calls       int
}

func (f *fakeFunctionsChain) CodeAt(ctx context.Context, contract common.Address, blockNumber *big.Int) ([]byte, error) {
	return []byte{0x00}, nil
}

func (f *fakeFunctionsChain) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	f.calls++
	routerABI, err := abi.JSON(strings.NewReader(functions.RouterABI))
	require.NoError(f.t, err)
	coordinatorABI, err := abi.JSON(strings.NewReader(functions.CoordinatorABI))
	require.NoError(f.t, err)

	switch *call.To {
	case f.router:
		method := routerABI.Methods["getContractById"]
		require.Equal(f.t, method.ID, call.Data[:4])
		return method.Outputs.Pack(f.coordinator)
	case f.coordinator:
		method := coordinatorABI.Methods["getDONPublicKey"]
		require.Equal(f.t, method.ID, call.Data[:4])
		return method.Outputs.Pack(f.donKey)
	}
	f.t.Fatalf("unexpected call to %s", call.To.Hex())
	return nil, nil
}

func TestSealOpen(t *testing.T) {
	owner, err := crypto.GenerateKey()
	require.NoError(t, err)
	don, err := crypto.GenerateKey()
	require.NoError(t, err)

	secrets := map[string]string{"GEMINI_API_KEY": "AIza-test"}
	ciphertext, err := Seal(secrets, owner, &don.PublicKey)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(ciphertext, "0x"))
	assert.NotContains(t, ciphertext, "AIza")

	opened, signer, err := Open(ciphertext, don)
	require.NoError(t, err)
	assert.Equal(t, secrets, opened)
	assert.Equal(t, crypto.PubkeyToAddress(owner.PublicKey), signer)

	other, err := crypto.GenerateKey()
	require.NoError(t, err)
	_, _, err = Open(ciphertext, other)
	assert.Error(t, err)
}

func TestParseDONPublicKey(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	uncompressed := crypto.FromECDSAPub(&key.PublicKey)

	pub, err := ParseDONPublicKey(uncompressed)
	require.NoError(t, err)
	assert.Equal(t, key.PublicKey.X, pub.X)

	pub, err = ParseDONPublicKey(uncompressed[1:])
	require.NoError(t, err)
	assert.Equal(t, key.PublicKey.Y, pub.Y)

	_, err = ParseDONPublicKey([]byte{0x04, 0x01})
	assert.Error(t, err)
}

func TestEncryptor(t *testing.T) {
	owner, err := crypto.GenerateKey()
	require.NoError(t, err)
	don, err := crypto.GenerateKey()
	require.NoError(t, err)

	chain := &fakeFunctionsChain{
		t:           t,
		router:      common.HexToAddress("0xb83E47C2bC239B3bf370bc41e1459A34b41238D0"),
		coordinator: common.HexToAddress("0x1111111111111111111111111111111111111111"),
		donKey:      crypto.FromECDSAPub(&don.PublicKey)[1:],
	}

	enc, err := NewEncryptor(chain, chain.router, "fun-ethereum-sepolia-1", owner)
	require.NoError(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(owner.PublicKey), enc.Owner())

	ciphertext, err := enc.Encrypt(context.Background(), map[string]string{"GEMINI_API_KEY": "k"})
	require.NoError(t, err)
	assert.Equal(t, 2, chain.calls)

	opened, _, err := Open(ciphertext, don)
	require.NoError(t, err)
	assert.Equal(t, "k", opened["GEMINI_API_KEY"])

	t.Run("no secrets", func(t *testing.T) {
		_, err := enc.Encrypt(context.Background(), nil)
		assert.ErrorIs(t, err, interfaces.ErrConfiguration)
	})

	t.Run("unknown DON", func(t *testing.T) {
		chain.coordinator = common.Address{}
		_, err := enc.DONPublicKey(context.Background())
		assert.ErrorIs(t, err, interfaces.ErrConfiguration)
	})
}

func TestNewEncryptor_Invalid(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	_, err = NewEncryptor(nil, common.Address{}, strings.Repeat("x", 32), key)
	assert.ErrorIs(t, err, interfaces.ErrConfiguration)

	_, err = NewEncryptor(nil, common.Address{}, "fun-ethereum-sepolia-1", nil)
	assert.ErrorIs(t, err, interfaces.ErrConfiguration)
}
