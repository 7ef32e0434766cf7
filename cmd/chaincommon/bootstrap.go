package chaincommon

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ruteri/functions-gemini-relay/config"
	"github.com/ruteri/functions-gemini-relay/interfaces"
	"github.com/ruteri/functions-gemini-relay/relay"
	"github.com/ruteri/functions-gemini-relay/storage"
)

// Chain is a connected RPC endpoint plus the operator key.
type Chain struct {
	Client  *ethclient.Client
	ChainID *big.Int
	Key     *ecdsa.PrivateKey
}

// Dial validates the operator key, then connects to RPC_URL and resolves the
// chain id (CHAIN_ID wins over the node's answer).
func Dial(ctx context.Context, cfg *config.Config, log *slog.Logger) (*Chain, error) {
	key, err := relay.ParsePrivateKey(cfg.PrivateKey)
	if err != nil {
		return nil, err
	}

	client, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("%w: could not dial RPC: %v", interfaces.ErrNetwork, err)
	}

	chainID, err := relay.ResolveChainID(ctx, client, cfg.ChainID)
	if err != nil {
		client.Close()
		return nil, err
	}
	if chainID.Int64() != config.SepoliaChainID {
		log.Warn("connected chain is not Sepolia, make sure the router and DON id match it", "chainId", chainID)
	}

	log.Info("connected", "chainId", chainID, "account", crypto.PubkeyToAddress(key.PublicKey).Hex())
	return &Chain{Client: client, ChainID: chainID, Key: key}, nil
}

func (c *Chain) Transactor() (*bind.TransactOpts, error) {
	return relay.NewKeyedTransactor(c.Key, c.ChainID)
}

func (c *Chain) Close() {
	c.Client.Close()
}

// SetupArchive returns the storage backend for ARCHIVE_URIS, or nil when none
// are configured.
func SetupArchive(cfg *config.Config, log *slog.Logger) (interfaces.StorageBackend, error) {
	if len(cfg.ArchiveLocations) == 0 {
		return nil, nil
	}
	return storage.NewStorageBackendFactory(log).CreateMultiBackend(cfg.ArchiveLocations)
}

// ArchiveRecord stores record in backend. Failures are logged only.
func ArchiveRecord(ctx context.Context, backend interfaces.StorageBackend, record interfaces.RequestRecord, log *slog.Logger) {
	if backend == nil {
		return
	}
	data, err := json.Marshal(record)
	if err != nil {
		log.Warn("could not encode request record", "err", err)
		return
	}
	id, err := backend.Store(ctx, data, interfaces.RequestRecordType)
	if err != nil {
		log.Warn("could not archive request record", "backend", backend.Name(), "err", err)
		return
	}
	log.Info("request record archived", "backend", backend.LocationURI(), "contentId", id.String())
}
