// Package request assembles immutable Functions request descriptors.
package request

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/ruteri/functions-gemini-relay/bindings/consumer"
	"github.com/ruteri/functions-gemini-relay/config"
	"github.com/ruteri/functions-gemini-relay/interfaces"
)

const DefaultSourcePath = "scripts/functions-source.js"

// DefaultArgs is the query sent when none is given.
var DefaultArgs = []string{"Say 'hello'."}

// Input is the unvalidated material a descriptor is built from. Numeric
// settings stay textual so that malformed values are reported by Build.
type Input struct {
	SourcePath string
	Args       []string
	ReturnType interfaces.ReturnType

	// CallbackGasLimit defaults to config.DefaultCallbackGasLimit and may not
	// exceed MaxCallbackGasLimit (same default).
	CallbackGasLimit    uint32
	MaxCallbackGasLimit uint32

	SubscriptionID string
	SecretsSlotID  string
	SecretsVersion string
	DonID          string
}

// FromConfig prepares an Input from validated configuration.
func FromConfig(cfg *config.Config, sourcePath string, args []string) Input {
	in := Input{
		SourcePath:     sourcePath,
		Args:           args,
		ReturnType:     interfaces.ReturnString,
		SecretsSlotID:  strconv.FormatUint(uint64(cfg.Secrets.SlotID), 10),
		SubscriptionID: strconv.FormatUint(cfg.SubscriptionID, 10),
		DonID:          cfg.DonID,
	}
	if cfg.Secrets.Version != 0 {
		in.SecretsVersion = strconv.FormatUint(cfg.Secrets.Version, 10)
	}
	return in
}

// SourceLoader reads the JavaScript executed by the DON.
type SourceLoader interface {
	Load(path string) (string, error)
}

// FileLoader reads sources from the local filesystem.
type FileLoader struct{}

func (FileLoader) Load(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Build validates in and reads the source through loader. Every validation
// problem is reported together and the loader is never called when there is
// one. Identical inputs and source text yield identical descriptors.
func Build(in Input, loader SourceLoader) (interfaces.RequestDescriptor, error) {
	var result *multierror.Error

	subscriptionID, err := config.ParseSubscriptionID(in.SubscriptionID)
	if err != nil {
		result = multierror.Append(result, err)
	}

	version, err := config.ParseSecretsVersion(in.SecretsVersion)
	if err != nil {
		result = multierror.Append(result, err)
	}

	var slotID uint64
	if strings.TrimSpace(in.SecretsSlotID) != "" {
		slotID, err = strconv.ParseUint(strings.TrimSpace(in.SecretsSlotID), 10, 8)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("secrets slot id must be an integer in 0..255, got %q", in.SecretsSlotID))
		}
	}

	returnType := in.ReturnType
	if returnType == "" {
		returnType = interfaces.ReturnString
	}

	maxGas := in.MaxCallbackGasLimit
	if maxGas == 0 {
		maxGas = config.DefaultCallbackGasLimit
	}
	gasLimit := in.CallbackGasLimit
	if gasLimit == 0 {
		gasLimit = config.DefaultCallbackGasLimit
	}
	if gasLimit > maxGas {
		result = multierror.Append(result, fmt.Errorf("callback gas limit %d exceeds %d", gasLimit, maxGas))
	}

	if in.DonID == "" {
		result = multierror.Append(result, fmt.Errorf("DON id is not set"))
	} else if len(in.DonID) > 31 {
		result = multierror.Append(result, fmt.Errorf("DON id %q does not fit in bytes32", in.DonID))
	}

	if in.SourcePath == "" {
		result = multierror.Append(result, fmt.Errorf("source path is not set"))
	}

	if err := result.ErrorOrNil(); err != nil {
		return interfaces.RequestDescriptor{}, interfaces.NewConfigError(err)
	}

	source, err := loader.Load(in.SourcePath)
	if err != nil {
		return interfaces.RequestDescriptor{}, interfaces.NewConfigError(fmt.Errorf("could not read source %s: %w", in.SourcePath, err))
	}

	args := make([]string, len(in.Args))
	copy(args, in.Args)

	return interfaces.RequestDescriptor{
		Source: source,
		Secrets: interfaces.SecretLocation{
			SlotID:  uint8(slotID),
			Version: version,
		},
		Args:             args,
		ReturnType:       returnType,
		CallbackGasLimit: gasLimit,
		SubscriptionID:   subscriptionID,
		DonID:            in.DonID,
	}, nil
}

// Calldata ABI-encodes the sendRequest call a descriptor stands for.
func Calldata(desc interfaces.RequestDescriptor) ([]byte, error) {
	parsed, err := consumer.ParsedABI()
	if err != nil {
		return nil, err
	}
	return parsed.Pack("sendRequest", desc.Source, desc.Secrets.SlotID, desc.Secrets.Version, desc.Args, desc.CallbackGasLimit)
}
