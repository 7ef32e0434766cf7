// Package consumer is a Go binding for the DeFiAIChatbot Functions consumer
// contract. It follows the layout abigen produces for the same ABI.
package consumer

import (
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"
)

// ConsumerABI is the input ABI used to generate the binding from.
const ConsumerABI = `[
	{"type":"constructor","stateMutability":"nonpayable","inputs":[
		{"name":"router","type":"address"},
		{"name":"donId","type":"bytes32"},
		{"name":"subscriptionId","type":"uint64"}]},
	{"type":"function","name":"sendRequest","stateMutability":"nonpayable","inputs":[
		{"name":"source","type":"string"},
		{"name":"secretsSlotId","type":"uint8"},
		{"name":"secretsVersion","type":"uint64"},
		{"name":"args","type":"string[]"},
		{"name":"callbackGasLimit","type":"uint32"}],
	 "outputs":[{"name":"requestId","type":"bytes32"}]},
	{"type":"function","name":"s_lastRequestId","stateMutability":"view","inputs":[],
	 "outputs":[{"name":"","type":"bytes32"}]},
	{"type":"function","name":"s_lastResponse","stateMutability":"view","inputs":[],
	 "outputs":[{"name":"","type":"bytes"}]},
	{"type":"function","name":"s_lastError","stateMutability":"view","inputs":[],
	 "outputs":[{"name":"","type":"bytes"}]},
	{"type":"event","name":"ResponseReceived","anonymous":false,"inputs":[
		{"name":"requestId","type":"bytes32","indexed":true},
		{"name":"response","type":"bytes","indexed":false},
		{"name":"err","type":"bytes","indexed":false}]},
	{"type":"event","name":"RequestSent","anonymous":false,"inputs":[
		{"name":"id","type":"bytes32","indexed":true}]},
	{"type":"event","name":"RequestFulfilled","anonymous":false,"inputs":[
		{"name":"id","type":"bytes32","indexed":true}]}
]`

var ErrNoEventSignature = errors.New("log has no event signature")

// ParsedABI returns the parsed ConsumerABI.
func ParsedABI() (abi.ABI, error) {
	return abi.JSON(strings.NewReader(ConsumerABI))
}

// Consumer is an auto-bound wrapper around a deployed DeFiAIChatbot contract.
type Consumer struct {
	address  common.Address
	abi      abi.ABI
	contract *bind.BoundContract
}

// ConsumerResponseReceived represents a ResponseReceived event raised by the Consumer contract.
type ConsumerResponseReceived struct {
	RequestId [32]byte
	Response  []byte
	Err       []byte
	Raw       types.Log
}

// ConsumerRequestSent represents a RequestSent event raised by the Consumer contract.
type ConsumerRequestSent struct {
	Id  [32]byte
	Raw types.Log
}

// NewConsumer creates a new instance of Consumer, bound to a specific deployed contract.
func NewConsumer(address common.Address, backend bind.ContractBackend) (*Consumer, error) {
	parsed, err := ParsedABI()
	if err != nil {
		return nil, err
	}
	contract := bind.NewBoundContract(address, parsed, backend, backend, backend)
	return &Consumer{address: address, abi: parsed, contract: contract}, nil
}

// DeployConsumer deploys the given creation bytecode with the consumer constructor arguments.
func DeployConsumer(auth *bind.TransactOpts, backend bind.ContractBackend, bytecode []byte, router common.Address, donId [32]byte, subscriptionId uint64) (common.Address, *types.Transaction, *Consumer, error) {
	parsed, err := ParsedABI()
	if err != nil {
		return common.Address{}, nil, nil, err
	}
	if len(bytecode) == 0 {
		return common.Address{}, nil, nil, errors.New("empty creation bytecode")
	}

	address, tx, contract, err := bind.DeployContract(auth, parsed, bytecode, backend, router, donId, subscriptionId)
	if err != nil {
		return common.Address{}, nil, nil, err
	}
	return address, tx, &Consumer{address: address, abi: parsed, contract: contract}, nil
}

func (c *Consumer) Address() common.Address {
	return c.address
}

// PackSendRequest returns the calldata of a sendRequest call.
func (c *Consumer) PackSendRequest(source string, secretsSlotId uint8, secretsVersion uint64, args []string, callbackGasLimit uint32) ([]byte, error) {
	return c.abi.Pack("sendRequest", source, secretsSlotId, secretsVersion, args, callbackGasLimit)
}

// SendRequest is a paid mutator transaction binding the contract method sendRequest.
//
// Solidity: function sendRequest(string source, uint8 secretsSlotId, uint64 secretsVersion, string[] args, uint32 callbackGasLimit) returns(bytes32 requestId)
func (c *Consumer) SendRequest(opts *bind.TransactOpts, source string, secretsSlotId uint8, secretsVersion uint64, args []string, callbackGasLimit uint32) (*types.Transaction, error) {
	return c.contract.Transact(opts, "sendRequest", source, secretsSlotId, secretsVersion, args, callbackGasLimit)
}

// SLastRequestId is a free data retrieval call binding the contract method s_lastRequestId.
//
// Solidity: function s_lastRequestId() view returns(bytes32)
func (c *Consumer) SLastRequestId(opts *bind.CallOpts) ([32]byte, error) {
	var out []interface{}
	err := c.contract.Call(opts, &out, "s_lastRequestId")
	if err != nil {
		return [32]byte{}, err
	}
	return *abi.ConvertType(out[0], new([32]byte)).(*[32]byte), nil
}

// SLastResponse is a free data retrieval call binding the contract method s_lastResponse.
//
// Solidity: function s_lastResponse() view returns(bytes)
func (c *Consumer) SLastResponse(opts *bind.CallOpts) ([]byte, error) {
	return c.callBytes(opts, "s_lastResponse")
}

// SLastError is a free data retrieval call binding the contract method s_lastError.
//
// Solidity: function s_lastError() view returns(bytes)
func (c *Consumer) SLastError(opts *bind.CallOpts) ([]byte, error) {
	return c.callBytes(opts, "s_lastError")
}

func (c *Consumer) callBytes(opts *bind.CallOpts, method string) ([]byte, error) {
	var out []interface{}
	err := c.contract.Call(opts, &out, method)
	if err != nil {
		return nil, err
	}
	return *abi.ConvertType(out[0], new([]byte)).(*[]byte), nil
}

// WatchResponseReceived is a free log subscription operation binding the contract event ResponseReceived.
// An empty requestId slice matches every request.
//
// Solidity: event ResponseReceived(bytes32 indexed requestId, bytes response, bytes err)
func (c *Consumer) WatchResponseReceived(opts *bind.WatchOpts, sink chan<- *ConsumerResponseReceived, requestId [][32]byte) (event.Subscription, error) {
	var requestIdRule []interface{}
	for _, requestIdItem := range requestId {
		requestIdRule = append(requestIdRule, requestIdItem)
	}

	logs, sub, err := c.contract.WatchLogs(opts, "ResponseReceived", requestIdRule)
	if err != nil {
		return nil, err
	}
	return event.NewSubscription(func(quit <-chan struct{}) error {
		defer sub.Unsubscribe()
		for {
			select {
			case log := <-logs:
				ev, err := c.ParseResponseReceived(log)
				if err != nil {
					return err
				}

				select {
				case sink <- ev:
				case err := <-sub.Err():
					return err
				case <-quit:
					return nil
				}
			case err := <-sub.Err():
				return err
			case <-quit:
				return nil
			}
		}
	}), nil
}

// FilterResponseReceived is a free log retrieval operation binding the contract event ResponseReceived.
//
// Solidity: event ResponseReceived(bytes32 indexed requestId, bytes response, bytes err)
func (c *Consumer) FilterResponseReceived(opts *bind.FilterOpts, requestId [][32]byte) ([]*ConsumerResponseReceived, error) {
	var requestIdRule []interface{}
	for _, requestIdItem := range requestId {
		requestIdRule = append(requestIdRule, requestIdItem)
	}

	logs, sub, err := c.contract.FilterLogs(opts, "ResponseReceived", requestIdRule)
	if err != nil {
		return nil, err
	}
	defer sub.Unsubscribe()

	var out []*ConsumerResponseReceived
	collect := func(log types.Log) error {
		ev, err := c.ParseResponseReceived(log)
		if err != nil {
			return err
		}
		out = append(out, ev)
		return nil
	}

	for {
		select {
		case log := <-logs:
			if err := collect(log); err != nil {
				return nil, err
			}
		case err := <-sub.Err():
			// The producer has finished; drain what is still buffered.
			for {
				select {
				case log := <-logs:
					if err := collect(log); err != nil {
						return nil, err
					}
				default:
					return out, err
				}
			}
		}
	}
}

// ParseResponseReceived is a log parse operation binding the contract event ResponseReceived.
func (c *Consumer) ParseResponseReceived(log types.Log) (*ConsumerResponseReceived, error) {
	if len(log.Topics) == 0 {
		return nil, ErrNoEventSignature
	}
	ev := new(ConsumerResponseReceived)
	if err := c.contract.UnpackLog(ev, "ResponseReceived", log); err != nil {
		return nil, err
	}
	ev.Raw = log
	return ev, nil
}

// ParseRequestSent is a log parse operation binding the contract event RequestSent.
func (c *Consumer) ParseRequestSent(log types.Log) (*ConsumerRequestSent, error) {
	if len(log.Topics) == 0 {
		return nil, ErrNoEventSignature
	}
	ev := new(ConsumerRequestSent)
	if err := c.contract.UnpackLog(ev, "RequestSent", log); err != nil {
		return nil, err
	}
	ev.Raw = log
	return ev, nil
}

// EventID returns the topic hash of a consumer event by name.
func EventID(name string) (common.Hash, error) {
	parsed, err := ParsedABI()
	if err != nil {
		return common.Hash{}, err
	}
	ev, ok := parsed.Events[name]
	if !ok {
		return common.Hash{}, errors.New("no such event: " + name)
	}
	return ev.ID, nil
}
