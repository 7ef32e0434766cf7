// Package interfaces defines the core types and interfaces shared by the
// Chainlink Functions relay toolkit, separating them from implementations.
//
// # Request Types
//
// SecretLocation: slot and version of a DON-hosted secret, issued by the
// gateway upload and referenced by every request until its lease expires.
//
// RequestDescriptor: immutable description of one Functions request (source,
// secrets location, arguments, expected return type, callback gas limit,
// subscription and DON identifiers).
//
// CallbackResult and Decoded: the raw ResponseReceived payload and its typed
// decoding (String, Integer or Raw).
//
// # Storage Interfaces
//
// StorageBackend: content-addressed archive for encrypted secrets and request
// records across file, S3, IPFS and Vault backends.
//
// StorageBackendFactory: creates storage backends from URI strings and
// aggregates several of them into a redundant multi-backend.
//
// # Errors
//
// ErrConfiguration, ErrNetwork, ErrOnChainExecution, ErrDecode, ErrTimeout and
// ErrUploadRejected classify every failure the toolkit surfaces. Use errors.Is
// against them; ExecutionError and ConfigError carry details.
package interfaces
