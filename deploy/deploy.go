// Package deploy deploys the Functions consumer contract from a compiled
// Hardhat artifact.
package deploy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ruteri/functions-gemini-relay/bindings/functions"
	"github.com/ruteri/functions-gemini-relay/interfaces"
)

const DefaultArtifactPath = "artifacts/contracts/DeFiAIChatbot.sol/DeFiAIChatbot.json"

var (
	ErrNoTransactOpts   = errors.New("no transact opts configured")
	ErrArtifactMismatch = errors.New("artifact is not a Functions consumer")
)

// Artifact is the part of a Hardhat build artifact needed to deploy.
type Artifact struct {
	ContractName string
	ABI          abi.ABI
	Bytecode     []byte
}

type hardhatArtifact struct {
	ContractName string          `json:"contractName"`
	ABI          json.RawMessage `json:"abi"`
	Bytecode     string          `json:"bytecode"`
}

// LoadArtifact reads a Hardhat artifact and checks that the contract exposes
// the consumer interface: the (router, donId, subscriptionId) constructor,
// sendRequest and the ResponseReceived event.
func LoadArtifact(path string) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, interfaces.NewConfigError(fmt.Errorf("could not read artifact: %w", err))
	}
	return ParseArtifact(data)
}

func ParseArtifact(data []byte) (*Artifact, error) {
	var raw hardhatArtifact
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, interfaces.NewConfigError(fmt.Errorf("malformed artifact: %w", err))
	}

	parsed, err := abi.JSON(strings.NewReader(string(raw.ABI)))
	if err != nil {
		return nil, interfaces.NewConfigError(fmt.Errorf("malformed artifact ABI: %w", err))
	}

	bytecode, err := hexutil.Decode(raw.Bytecode)
	if err != nil || len(bytecode) == 0 {
		return nil, interfaces.NewConfigError(fmt.Errorf("artifact %q has no creation bytecode", raw.ContractName))
	}

	art := &Artifact{ContractName: raw.ContractName, ABI: parsed, Bytecode: bytecode}
	if err := art.check(); err != nil {
		return nil, err
	}
	return art, nil
}

func (a *Artifact) check() error {
	if _, ok := a.ABI.Methods["sendRequest"]; !ok {
		return fmt.Errorf("%w: %s has no sendRequest method", ErrArtifactMismatch, a.ContractName)
	}
	if _, ok := a.ABI.Events["ResponseReceived"]; !ok {
		return fmt.Errorf("%w: %s has no ResponseReceived event", ErrArtifactMismatch, a.ContractName)
	}

	inputs := a.ABI.Constructor.Inputs
	want := []string{"address", "bytes32", "uint64"}
	if len(inputs) != len(want) {
		return fmt.Errorf("%w: constructor takes %d arguments, want (address,bytes32,uint64)", ErrArtifactMismatch, len(inputs))
	}
	for i, in := range inputs {
		if in.Type.String() != want[i] {
			return fmt.Errorf("%w: constructor argument %d is %s, want %s", ErrArtifactMismatch, i, in.Type.String(), want[i])
		}
	}
	return nil
}

// Backend is what a deployment needs from the chain.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
}

// Deployment describes a mined consumer deployment.
type Deployment struct {
	Address     common.Address
	TxHash      common.Hash
	BlockNumber uint64
	GasUsed     uint64
}

type Deployer struct {
	backend Backend
	auth    *bind.TransactOpts
	log     *slog.Logger
}

func NewDeployer(backend Backend, log *slog.Logger) *Deployer {
	if log == nil {
		log = slog.Default()
	}
	return &Deployer{backend: backend, log: log}
}

func (d *Deployer) SetTransactOpts(auth *bind.TransactOpts) {
	d.auth = auth
}

// Deploy sends the creation transaction and waits until the code is on chain.
func (d *Deployer) Deploy(ctx context.Context, art *Artifact, router common.Address, donID string, subscriptionID uint64) (*Deployment, error) {
	if d.auth == nil {
		return nil, ErrNoTransactOpts
	}
	donBytes, err := functions.FormatBytes32String(donID)
	if err != nil {
		return nil, interfaces.NewConfigError(fmt.Errorf("DON id: %w", err))
	}

	opts := *d.auth
	opts.Context = ctx

	address, tx, _, err := bind.DeployContract(&opts, art.ABI, art.Bytecode, d.backend, router, donBytes, subscriptionID)
	if err != nil {
		return nil, fmt.Errorf("%w: deploying %s: %v", interfaces.ErrNetwork, art.ContractName, err)
	}
	d.log.Info("deployment sent", "contract", art.ContractName, "tx", tx.Hash().Hex(), "address", address.Hex())

	receipt, err := bind.WaitMined(ctx, d.backend, tx)
	if err != nil {
		return nil, fmt.Errorf("%w: waiting for deployment: %v", interfaces.ErrNetwork, err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, fmt.Errorf("%w: deployment reverted in block %d", interfaces.ErrOnChainExecution, receipt.BlockNumber.Uint64())
	}

	if _, err := bind.WaitDeployed(ctx, d.backend, tx); err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrOnChainExecution, err)
	}

	return &Deployment{
		Address:     address,
		TxHash:      tx.Hash(),
		BlockNumber: receipt.BlockNumber.Uint64(),
		GasUsed:     receipt.GasUsed,
	}, nil
}
