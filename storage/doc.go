// Package storage archives encrypted secrets payloads and request records in
// content-addressed backends.
//
// Content is identified by the SHA-256 hash of its bytes and namespaced by
// interfaces.ContentType ("secrets" or "records"). Backends are selected with
// location URIs:
//
//	file:///var/lib/functions-relay
//	s3://bucket/prefix?region=eu-west-1&endpoint=http://minio:9000
//	ipfs://127.0.0.1:5001?timeout=30s
//	vault://token@vault.example.com:8200/secret/functions?tls=false
//
// A MultiStorageBackend writes to every available backend and reads from
// the first one holding the content.
package storage
