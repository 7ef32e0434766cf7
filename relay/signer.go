package relay

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ruteri/functions-gemini-relay/interfaces"
)

// ParsePrivateKey decodes a hex secp256k1 key, with or without 0x.
func ParsePrivateKey(privateKeyHex string) (*ecdsa.PrivateKey, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(privateKeyHex), "0x"))
	if err != nil {
		return nil, interfaces.NewConfigError(fmt.Errorf("invalid PRIVATE_KEY: %w", err))
	}
	return key, nil
}

// NewTransactor builds signing options from a hex private key. The key is
// checked before anything touches the network.
func NewTransactor(privateKeyHex string, chainID *big.Int) (*bind.TransactOpts, error) {
	key, err := ParsePrivateKey(privateKeyHex)
	if err != nil {
		return nil, err
	}
	return NewKeyedTransactor(key, chainID)
}

// NewKeyedTransactor builds signing options for an already parsed key.
func NewKeyedTransactor(key *ecdsa.PrivateKey, chainID *big.Int) (*bind.TransactOpts, error) {
	if key == nil {
		return nil, interfaces.NewConfigError(fmt.Errorf("no signing key"))
	}
	if chainID == nil || chainID.Sign() <= 0 {
		return nil, interfaces.NewConfigError(fmt.Errorf("invalid chain id %v", chainID))
	}

	auth, err := bind.NewKeyedTransactorWithChainID(key, chainID)
	if err != nil {
		return nil, interfaces.NewConfigError(err)
	}
	return auth, nil
}

// ResolveChainID returns configured when set and asks the node otherwise.
func ResolveChainID(ctx context.Context, reader ethereum.ChainIDReader, configured *big.Int) (*big.Int, error) {
	if configured != nil {
		return configured, nil
	}
	chainID, err := reader.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: could not query chain id: %v", interfaces.ErrNetwork, err)
	}
	return chainID, nil
}
