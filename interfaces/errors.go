package interfaces

import (
	"encoding/hex"
	"errors"
)

var (
	// ErrConfiguration is returned when a required setting is missing or
	// malformed. It is always detected before any network call.
	ErrConfiguration = errors.New("configuration error")

	// ErrNetwork is returned when an RPC endpoint or gateway cannot be reached.
	ErrNetwork = errors.New("network error")

	// ErrOnChainExecution is returned when a transaction reverts or the DON
	// callback carries a non-empty error payload.
	ErrOnChainExecution = errors.New("on-chain execution failed")

	// ErrDecode is returned when a payload matches none of the decoding rules.
	ErrDecode = errors.New("could not decode payload")

	// ErrTimeout is returned when no callback arrives before the deadline.
	ErrTimeout = errors.New("timed out waiting for callback")

	// ErrUploadRejected is returned when at least one gateway refused the
	// encrypted secrets.
	ErrUploadRejected = errors.New("secrets upload rejected")
)

// ExecutionError carries the decoded error payload of a DON callback.
type ExecutionError struct {
	Message string

	// Raw holds the payload when it was not valid UTF-8. Message is empty then.
	Raw []byte
}

func (e *ExecutionError) Error() string {
	if e.Message == "" && len(e.Raw) > 0 {
		return "Chainlink Functions execution failed with undecodable error: 0x" + hex.EncodeToString(e.Raw)
	}
	return "Chainlink Functions execution failed: " + e.Message
}

func (e *ExecutionError) Unwrap() error {
	return ErrOnChainExecution
}

// ConfigError aggregates every configuration problem found in a single pass.
type ConfigError struct {
	Err error
}

func NewConfigError(err error) error {
	if err == nil {
		return nil
	}
	return &ConfigError{Err: err}
}

func (e *ConfigError) Error() string {
	return "configuration error: " + e.Err.Error()
}

func (e *ConfigError) Is(target error) bool {
	return target == ErrConfiguration
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}
