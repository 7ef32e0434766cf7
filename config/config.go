// Package config loads the process configuration once at start-up from the
// environment (and an optional .env file) and validates it eagerly for the
// flow that is about to run, reporting every problem in a single error.
package config

import (
	"errors"
	"fmt"
	"math/big"
	"os"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-playground/validator"
	"github.com/hashicorp/go-multierror"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/ruteri/functions-gemini-relay/interfaces"
)

const (
	DefaultRouterAddress    = "0xb83E47C2bC239B3bf370bc41e1459A34b41238D0"
	DefaultDonID            = "fun-ethereum-sepolia-1"
	DefaultGatewayURLs      = "https://01.functions-gateway.testnet.chain.link/,https://02.functions-gateway.testnet.chain.link/"
	DefaultCallbackGasLimit = 300000
	DefaultLeaseMinutes     = 4320
	SepoliaChainID          = 11155111
)

// Flow names a command whose required settings differ from the others.
type Flow string

const (
	FlowDeploy        Flow = "deploy"
	FlowUploadSecrets Flow = "upload-secrets"
	FlowSendRequest   Flow = "send-request"
	FlowSimulate      Flow = "simulate"
	FlowGeminiDirect  Flow = "gemini-direct"
	FlowCheckRPC      Flow = "check-rpc"
)

// raw mirrors the environment one to one. Keys are the lower-cased variable names.
type raw struct {
	PrivateKey      string `koanf:"private_key"`
	RPCURL          string `koanf:"rpc_url"`
	SubscriptionID  string `koanf:"functions_subscription_id"`
	ConsumerAddress string `koanf:"functions_consumer_contract_address"`
	GeminiAPIKey    string `koanf:"gemini_api_key"`
	EtherscanAPIKey string `koanf:"etherscan_api_key"`
	SecretsSlotID   string `koanf:"don_hosted_secrets_slot_id"`
	SecretsVersion  string `koanf:"don_hosted_secrets_version"`
	RouterAddress   string `koanf:"functions_router_address"`
	DonID           string `koanf:"functions_don_id"`
	GatewayURLs     string `koanf:"functions_gateway_urls"`
	ChainID         string `koanf:"chain_id"`
	ArchiveURIs     string `koanf:"archive_uris"`
}

// Config is the validated, typed configuration handed to every component.
type Config struct {
	PrivateKey      string
	RPCURL          string
	SubscriptionID  uint64
	ConsumerAddress common.Address
	GeminiAPIKey    string
	EtherscanAPIKey string
	Secrets         interfaces.SecretLocation
	RouterAddress   common.Address
	DonID           string
	GatewayURLs     []string

	// ChainID is nil when unset; callers query the node instead.
	ChainID          *big.Int
	ArchiveLocations []interfaces.StorageBackendLocation
}

var knownKeys = map[string]struct{}{
	"PRIVATE_KEY":                         {},
	"RPC_URL":                             {},
	"FUNCTIONS_SUBSCRIPTION_ID":           {},
	"FUNCTIONS_CONSUMER_CONTRACT_ADDRESS": {},
	"GEMINI_API_KEY":                      {},
	"ETHERSCAN_API_KEY":                   {},
	"DON_HOSTED_SECRETS_SLOT_ID":          {},
	"DON_HOSTED_SECRETS_VERSION":          {},
	"FUNCTIONS_ROUTER_ADDRESS":            {},
	"FUNCTIONS_DON_ID":                    {},
	"FUNCTIONS_GATEWAY_URLS":              {},
	"CHAIN_ID":                            {},
	"ARCHIVE_URIS":                        {},
}

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"functions_router_address":   DefaultRouterAddress,
		"functions_don_id":           DefaultDonID,
		"functions_gateway_urls":     DefaultGatewayURLs,
		"don_hosted_secrets_slot_id": "0",
	}
}

// EnvProvider reads the known variables from the process environment.
func EnvProvider() koanf.Provider {
	return env.Provider("", ".", func(s string) string {
		if _, ok := knownKeys[s]; !ok {
			return ""
		}
		return strings.ToLower(s)
	})
}

// Load reads an optional .env file from the working directory, then the
// process environment, and validates the result for flow.
func Load(flow Flow) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, interfaces.NewConfigError(fmt.Errorf("could not read .env: %w", err))
	}
	return LoadFrom(flow, EnvProvider())
}

// LoadFrom is Load with an explicit provider, layered over the defaults.
func LoadFrom(flow Flow, provider koanf.Provider) (*Config, error) {
	k := koanf.New(".")
	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, interfaces.NewConfigError(err)
	}
	if err := k.Load(provider, nil); err != nil {
		return nil, interfaces.NewConfigError(fmt.Errorf("failed to load environment variables: %w", err))
	}

	var r raw
	if err := k.Unmarshal("", &r); err != nil {
		return nil, interfaces.NewConfigError(fmt.Errorf("could not unmarshal config: %w", err))
	}

	return build(flow, &r)
}

type rule struct {
	name  string
	value func(*raw) string
	tag   string
}

var (
	rulePrivateKey = rule{"PRIVATE_KEY", func(r *raw) string { return strings.TrimPrefix(r.PrivateKey, "0x") }, "required,hexadecimal"}
	ruleRPCURL     = rule{"RPC_URL", func(r *raw) string { return r.RPCURL }, "required,url"}
	ruleSubID      = rule{"FUNCTIONS_SUBSCRIPTION_ID", func(r *raw) string { return r.SubscriptionID }, "required"}
	ruleConsumer   = rule{"FUNCTIONS_CONSUMER_CONTRACT_ADDRESS", func(r *raw) string { return r.ConsumerAddress }, "required,eth_addr"}
	ruleGemini     = rule{"GEMINI_API_KEY", func(r *raw) string { return r.GeminiAPIKey }, "required"}
	ruleVersion    = rule{"DON_HOSTED_SECRETS_VERSION", func(r *raw) string { return r.SecretsVersion }, "required"}
	ruleRouter     = rule{"FUNCTIONS_ROUTER_ADDRESS", func(r *raw) string { return r.RouterAddress }, "required,eth_addr"}
	ruleDonID      = rule{"FUNCTIONS_DON_ID", func(r *raw) string { return r.DonID }, "required,max=31"}
	ruleGateways   = rule{"FUNCTIONS_GATEWAY_URLS", func(r *raw) string { return r.GatewayURLs }, "required"}
)

var flowRules = map[Flow][]rule{
	FlowDeploy:        {rulePrivateKey, ruleRPCURL, ruleSubID, ruleRouter, ruleDonID},
	FlowUploadSecrets: {rulePrivateKey, ruleRPCURL, ruleGemini, ruleRouter, ruleDonID, ruleGateways},
	FlowSendRequest:   {rulePrivateKey, ruleRPCURL, ruleSubID, ruleConsumer, ruleVersion, ruleDonID},
	FlowSimulate:      {},
	FlowGeminiDirect:  {ruleGemini},
	FlowCheckRPC:      {ruleRPCURL},
}

// Required lists the variables a flow cannot run without.
func Required(flow Flow) []string {
	var names []string
	for _, r := range flowRules[flow] {
		names = append(names, r.name)
	}
	return names
}

func build(flow Flow, r *raw) (*Config, error) {
	rules, ok := flowRules[flow]
	if !ok {
		return nil, interfaces.NewConfigError(fmt.Errorf("unknown flow %q", flow))
	}

	var result *multierror.Error
	validate := validator.New()
	for _, ru := range rules {
		if err := validate.Var(ru.value(r), ru.tag); err != nil {
			result = multierror.Append(result, describe(ru.name, ru.value(r), err))
		}
	}

	cfg := &Config{
		PrivateKey:      r.PrivateKey,
		RPCURL:          r.RPCURL,
		GeminiAPIKey:    r.GeminiAPIKey,
		EtherscanAPIKey: r.EtherscanAPIKey,
		DonID:           r.DonID,
	}

	if r.PrivateKey != "" {
		if n := len(strings.TrimPrefix(r.PrivateKey, "0x")); n != 64 {
			result = multierror.Append(result, fmt.Errorf("PRIVATE_KEY must be 32 bytes of hex, got %d characters", n))
		}
	}

	if r.SubscriptionID != "" {
		id, err := ParseSubscriptionID(r.SubscriptionID)
		if err != nil {
			result = multierror.Append(result, err)
		}
		cfg.SubscriptionID = id
	}

	if r.SecretsVersion != "" {
		version, err := ParseSecretsVersion(r.SecretsVersion)
		if err != nil {
			result = multierror.Append(result, err)
		}
		cfg.Secrets.Version = version
	}

	if r.SecretsSlotID != "" {
		slot, err := strconv.ParseUint(strings.TrimSpace(r.SecretsSlotID), 10, 8)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("DON_HOSTED_SECRETS_SLOT_ID must be an integer in 0..255, got %q", r.SecretsSlotID))
		}
		cfg.Secrets.SlotID = uint8(slot)
	}

	if common.IsHexAddress(r.ConsumerAddress) {
		cfg.ConsumerAddress = common.HexToAddress(r.ConsumerAddress)
	}
	if common.IsHexAddress(r.RouterAddress) {
		cfg.RouterAddress = common.HexToAddress(r.RouterAddress)
	}

	cfg.GatewayURLs = splitList(r.GatewayURLs)

	if r.ChainID != "" {
		chainID, ok := new(big.Int).SetString(strings.TrimSpace(r.ChainID), 10)
		if !ok || chainID.Sign() <= 0 {
			result = multierror.Append(result, fmt.Errorf("CHAIN_ID must be a positive integer, got %q", r.ChainID))
		} else {
			cfg.ChainID = chainID
		}
	}

	for _, uri := range splitList(r.ArchiveURIs) {
		loc, err := interfaces.NewStorageBackendLocation(uri)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("ARCHIVE_URIS: %w", err))
			continue
		}
		cfg.ArchiveLocations = append(cfg.ArchiveLocations, loc)
	}

	if err := result.ErrorOrNil(); err != nil {
		return nil, interfaces.NewConfigError(err)
	}
	return cfg, nil
}

// ParseSubscriptionID accepts a non-negative base-10 integer. The returned
// error is unwrapped so that callers can aggregate it.
func ParseSubscriptionID(s string) (uint64, error) {
	id, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("FUNCTIONS_SUBSCRIPTION_ID must be a non-negative integer, got %q", s)
	}
	return id, nil
}

// ParseSecretsVersion accepts a non-zero base-10 integer. An absent version
// is a misconfiguration, never defaulted.
func ParseSecretsVersion(s string) (uint64, error) {
	version, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	if err != nil || version == 0 {
		return 0, fmt.Errorf("DON_HOSTED_SECRETS_VERSION must be a non-zero integer, got %q", s)
	}
	return version, nil
}

func describe(name, value string, err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		switch verrs[0].Tag() {
		case "required":
			return fmt.Errorf("%s is not set", name)
		default:
			return fmt.Errorf("%s is invalid (%s): %q", name, verrs[0].Tag(), redact(name, value))
		}
	}
	return fmt.Errorf("%s: %w", name, err)
}

func redact(name, value string) string {
	if strings.Contains(name, "KEY") {
		return "<redacted>"
	}
	return value
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
