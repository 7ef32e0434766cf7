package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	shell "github.com/ipfs/go-ipfs-api"
	"github.com/ruteri/functions-gemini-relay/interfaces"
)

// IPFSBackend implements a storage backend using an IPFS node's HTTP API.
// IPFS addresses content by CID, so the backend keeps a mutable file system
// (MFS) path per content ID to resolve our SHA-256 IDs.
type IPFSBackend struct {
	shell       *shell.Shell
	host        string
	port        string
	root        string
	log         *slog.Logger
	locationURI string

	mu   sync.Mutex
	cids map[interfaces.ContentID]string
}

// NewIPFSBackend creates a new IPFS storage backend connected to host:port.
func NewIPFSBackend(host, port string, timeout time.Duration, log *slog.Logger) (*IPFSBackend, error) {
	if log == nil {
		log = slog.Default()
	}
	if host == "" {
		return nil, fmt.Errorf("%w: empty IPFS host", interfaces.ErrInvalidLocationURI)
	}

	apiURL := fmt.Sprintf("%s:%s", host, port)
	sh := shell.NewShell(apiURL)
	if timeout > 0 {
		sh.SetTimeout(timeout)
	}

	return &IPFSBackend{
		shell:       sh,
		host:        host,
		port:        port,
		root:        "/functions-gemini-relay",
		log:         log,
		locationURI: fmt.Sprintf("ipfs://%s/?timeout=%s", apiURL, timeout),
		cids:        make(map[interfaces.ContentID]string),
	}, nil
}

// Fetch retrieves data from IPFS by its content identifier and type.
func (b *IPFSBackend) Fetch(ctx context.Context, id interfaces.ContentID, contentType interfaces.ContentType) ([]byte, error) {
	start := time.Now()
	mfsPath := b.getMFSPath(id, contentType)

	if !b.shell.IsUp() {
		b.log.Warn("IPFS node unavailable",
			slog.String("host", b.host),
			slog.String("port", b.port))
		return nil, interfaces.ErrBackendUnavailable
	}

	reader, err := b.shell.FilesRead(ctx, mfsPath)
	if err != nil {
		if strings.Contains(err.Error(), "does not exist") || strings.Contains(err.Error(), "no link named") {
			return nil, interfaces.ErrContentNotFound
		}
		b.log.Error("Failed to fetch data from IPFS",
			slog.String("path", mfsPath),
			"err", err)
		return nil, fmt.Errorf("failed to fetch data from IPFS: %w", err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read data from IPFS: %w", err)
	}

	if interfaces.ComputeID(data) != id {
		return nil, fmt.Errorf("content at %s does not match its id", mfsPath)
	}

	b.log.Debug("Fetched content from IPFS",
		slog.String("path", mfsPath),
		slog.Int("size", len(data)),
		slog.Duration("duration", time.Since(start)))

	return data, nil
}

// Store adds data to IPFS, links it under the MFS path for its content ID
// and returns that ID.
func (b *IPFSBackend) Store(ctx context.Context, data []byte, contentType interfaces.ContentType) (interfaces.ContentID, error) {
	id := interfaces.ComputeID(data)

	if !b.shell.IsUp() {
		return id, interfaces.ErrBackendUnavailable
	}

	cid, err := b.shell.Add(bytes.NewReader(data), shell.Pin(true))
	if err != nil {
		return id, fmt.Errorf("failed to add data to IPFS: %w", err)
	}

	mfsPath := b.getMFSPath(id, contentType)
	if err := b.shell.FilesMkdir(ctx, b.root+"/"+contentType.String(), shell.FilesMkdir.Parents(true)); err != nil {
		return id, fmt.Errorf("failed to create IPFS directory: %w", err)
	}
	if err := b.shell.FilesCp(ctx, "/ipfs/"+cid, mfsPath); err != nil && !strings.Contains(err.Error(), "already exists") {
		return id, fmt.Errorf("failed to link content in IPFS: %w", err)
	}

	b.mu.Lock()
	b.cids[id] = cid
	b.mu.Unlock()

	b.log.Debug("Stored content in IPFS",
		slog.String("ipfsCID", cid),
		slog.String("contentID", id.String()),
		slog.String("contentType", contentType.String()))

	return id, nil
}

// CID returns the IPFS CID of content stored through this backend instance.
func (b *IPFSBackend) CID(id interfaces.ContentID) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	cid, ok := b.cids[id]
	return cid, ok
}

func (b *IPFSBackend) Available(ctx context.Context) bool {
	return b.shell.IsUp()
}

func (b *IPFSBackend) Name() string {
	return fmt.Sprintf("ipfs-%s-%s", b.host, b.port)
}

func (b *IPFSBackend) LocationURI() string {
	return b.locationURI
}

func (b *IPFSBackend) getMFSPath(id interfaces.ContentID, contentType interfaces.ContentType) string {
	return fmt.Sprintf("%s/%s/%s", b.root, contentType.String(), id.String())
}
