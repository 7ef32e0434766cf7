// Package secrets encrypts API credentials for the Functions DON and uploads
// them to the DON gateways as DON-hosted secrets.
package secrets

import (
	"context"
	"crypto/ecdsa"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/crypto/ecies"
	"github.com/ruteri/functions-gemini-relay/bindings/functions"
	"github.com/ruteri/functions-gemini-relay/interfaces"
)

var ErrInvalidSignature = errors.New("secrets signature does not verify")

// envelope is what gets encrypted: the secrets JSON plus the owner's
// EIP-191 signature over it.
type envelope struct {
	Message   string `json:"message"`
	Signature string `json:"signature"`
}

// Encryptor seals secrets to the DON public key published by the coordinator.
type Encryptor struct {
	caller bind.ContractCaller
	router common.Address
	donID  [32]byte
	key    *ecdsa.PrivateKey
}

func NewEncryptor(caller bind.ContractCaller, router common.Address, donID string, key *ecdsa.PrivateKey) (*Encryptor, error) {
	id, err := functions.FormatBytes32String(donID)
	if err != nil {
		return nil, interfaces.NewConfigError(fmt.Errorf("DON id: %w", err))
	}
	if key == nil {
		return nil, interfaces.NewConfigError(errors.New("no signing key"))
	}
	return &Encryptor{caller: caller, router: router, donID: id, key: key}, nil
}

// Owner is the address the secrets are signed by.
func (e *Encryptor) Owner() common.Address {
	return crypto.PubkeyToAddress(e.key.PublicKey)
}

// DONPublicKey resolves the coordinator through the router and reads its key.
func (e *Encryptor) DONPublicKey(ctx context.Context) (*ecdsa.PublicKey, error) {
	opts := &bind.CallOpts{Context: ctx}

	router, err := functions.NewRouter(e.router, e.caller)
	if err != nil {
		return nil, err
	}
	coordinatorAddr, err := router.GetContractById(opts, e.donID)
	if err != nil {
		return nil, fmt.Errorf("%w: router getContractById: %v", interfaces.ErrNetwork, err)
	}
	if coordinatorAddr == (common.Address{}) {
		return nil, interfaces.NewConfigError(fmt.Errorf("router %s has no coordinator for DON %q", e.router.Hex(), functions.ParseBytes32String(e.donID)))
	}

	coordinator, err := functions.NewCoordinator(coordinatorAddr, e.caller)
	if err != nil {
		return nil, err
	}
	raw, err := coordinator.GetDONPublicKey(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: coordinator getDONPublicKey: %v", interfaces.ErrNetwork, err)
	}

	return ParseDONPublicKey(raw)
}

// ParseDONPublicKey accepts an uncompressed secp256k1 key with or without the
// 0x04 prefix.
func ParseDONPublicKey(raw []byte) (*ecdsa.PublicKey, error) {
	if len(raw) == 64 {
		raw = append([]byte{0x04}, raw...)
	}
	pub, err := crypto.UnmarshalPubkey(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid DON public key: %w", err)
	}
	return pub, nil
}

// Encrypt signs the secrets and seals them to the DON key. The result is a
// 0x-prefixed hex string.
func (e *Encryptor) Encrypt(ctx context.Context, secrets map[string]string) (string, error) {
	if len(secrets) == 0 {
		return "", interfaces.NewConfigError(errors.New("no secrets to encrypt"))
	}

	donKey, err := e.DONPublicKey(ctx)
	if err != nil {
		return "", err
	}
	return Seal(secrets, e.key, donKey)
}

// Seal is Encrypt with an already known DON key.
func Seal(secrets map[string]string, owner *ecdsa.PrivateKey, donKey *ecdsa.PublicKey) (string, error) {
	message, err := json.Marshal(secrets)
	if err != nil {
		return "", err
	}

	signature, err := crypto.Sign(accounts.TextHash(message), owner)
	if err != nil {
		return "", fmt.Errorf("could not sign secrets: %w", err)
	}
	signature[crypto.RecoveryIDOffset] += 27

	payload, err := json.Marshal(envelope{
		Message:   string(message),
		Signature: hexutil.Encode(signature),
	})
	if err != nil {
		return "", err
	}

	ciphertext, err := ecies.Encrypt(rand.Reader, ecies.ImportECDSAPublic(donKey), payload, nil, nil)
	if err != nil {
		return "", fmt.Errorf("could not encrypt secrets: %w", err)
	}
	return hexutil.Encode(ciphertext), nil
}

// Open reverses Seal with the DON private key and returns the secrets and the
// address that signed them.
func Open(ciphertextHex string, donKey *ecdsa.PrivateKey) (map[string]string, common.Address, error) {
	ciphertext, err := hex.DecodeString(strings.TrimPrefix(ciphertextHex, "0x"))
	if err != nil {
		return nil, common.Address{}, fmt.Errorf("invalid ciphertext hex: %w", err)
	}

	payload, err := ecies.ImportECDSA(donKey).Decrypt(ciphertext, nil, nil)
	if err != nil {
		return nil, common.Address{}, fmt.Errorf("could not decrypt secrets: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, common.Address{}, fmt.Errorf("malformed secrets envelope: %w", err)
	}

	signature, err := hex.DecodeString(strings.TrimPrefix(env.Signature, "0x"))
	if err != nil || len(signature) != crypto.SignatureLength {
		return nil, common.Address{}, ErrInvalidSignature
	}
	signature[crypto.RecoveryIDOffset] -= 27

	pub, err := crypto.SigToPub(accounts.TextHash([]byte(env.Message)), signature)
	if err != nil {
		return nil, common.Address{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	var secrets map[string]string
	if err := json.Unmarshal([]byte(env.Message), &secrets); err != nil {
		return nil, common.Address{}, fmt.Errorf("malformed secrets message: %w", err)
	}
	return secrets, crypto.PubkeyToAddress(*pub), nil
}
