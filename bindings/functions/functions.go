// Package functions binds the read-only parts of the Chainlink Functions
// router and coordinator contracts needed to encrypt DON-hosted secrets.
package functions

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
)

const RouterABI = `[
	{"type":"function","name":"getContractById","stateMutability":"view",
	 "inputs":[{"name":"id","type":"bytes32"}],
	 "outputs":[{"name":"","type":"address"}]}
]`

const CoordinatorABI = `[
	{"type":"function","name":"getDONPublicKey","stateMutability":"view","inputs":[],
	 "outputs":[{"name":"","type":"bytes"}]},
	{"type":"function","name":"getThresholdPublicKey","stateMutability":"view","inputs":[],
	 "outputs":[{"name":"","type":"bytes"}]}
]`

// Router is a read-only binding of the FunctionsRouter contract.
type Router struct {
	contract *bind.BoundContract
}

func NewRouter(address common.Address, caller bind.ContractCaller) (*Router, error) {
	parsed, err := abi.JSON(strings.NewReader(RouterABI))
	if err != nil {
		return nil, err
	}
	return &Router{contract: bind.NewBoundContract(address, parsed, caller, nil, nil)}, nil
}

// GetContractById resolves the coordinator registered for a DON id.
//
// Solidity: function getContractById(bytes32 id) view returns(address)
func (r *Router) GetContractById(opts *bind.CallOpts, id [32]byte) (common.Address, error) {
	var out []interface{}
	err := r.contract.Call(opts, &out, "getContractById", id)
	if err != nil {
		return common.Address{}, err
	}
	return *abi.ConvertType(out[0], new(common.Address)).(*common.Address), nil
}

// Coordinator is a read-only binding of the FunctionsCoordinator contract.
type Coordinator struct {
	contract *bind.BoundContract
}

func NewCoordinator(address common.Address, caller bind.ContractCaller) (*Coordinator, error) {
	parsed, err := abi.JSON(strings.NewReader(CoordinatorABI))
	if err != nil {
		return nil, err
	}
	return &Coordinator{contract: bind.NewBoundContract(address, parsed, caller, nil, nil)}, nil
}

// GetDONPublicKey returns the uncompressed secp256k1 key the DON decrypts secrets with.
//
// Solidity: function getDONPublicKey() view returns(bytes)
func (c *Coordinator) GetDONPublicKey(opts *bind.CallOpts) ([]byte, error) {
	return c.callBytes(opts, "getDONPublicKey")
}

// Solidity: function getThresholdPublicKey() view returns(bytes)
func (c *Coordinator) GetThresholdPublicKey(opts *bind.CallOpts) ([]byte, error) {
	return c.callBytes(opts, "getThresholdPublicKey")
}

func (c *Coordinator) callBytes(opts *bind.CallOpts, method string) ([]byte, error) {
	var out []interface{}
	err := c.contract.Call(opts, &out, method)
	if err != nil {
		return nil, err
	}
	return *abi.ConvertType(out[0], new([]byte)).(*[]byte), nil
}

// FormatBytes32String right-pads a short string into a bytes32, rejecting
// strings that would not leave room for a terminating zero byte.
func FormatBytes32String(s string) ([32]byte, error) {
	var out [32]byte
	if len(s) > 31 {
		return out, fmt.Errorf("bytes32 string must be less than 32 bytes, got %d", len(s))
	}
	copy(out[:], s)
	return out, nil
}

// ParseBytes32String is the inverse of FormatBytes32String.
func ParseBytes32String(b [32]byte) string {
	n := 0
	for n < len(b) && b[n] != 0 {
		n++
	}
	return string(b[:n])
}
