package secrets

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/ruteri/functions-gemini-relay/interfaces"
	"github.com/tidwall/gjson"
)

const (
	DefaultLeaseMinutes = 4320
	DefaultSlotID       = 0

	secretsSetMethod = "secrets_set"
	maxResponseBytes = 1 << 20
)

// UploadRequest describes one DON-hosted secrets upload.
type UploadRequest struct {
	EncryptedSecretsHex string
	SlotID              uint8

	// Version defaults to the current unix time in seconds.
	Version uint64

	// LeaseMinutes defaults to DefaultLeaseMinutes. Nothing renews the lease.
	LeaseMinutes int
}

// GatewayClient talks to the Functions gateways over JSON-RPC.
type GatewayClient struct {
	urls   []string
	donID  string
	key    *ecdsa.PrivateKey
	client *http.Client
	now    func() time.Time
	log    *slog.Logger
}

func NewGatewayClient(urls []string, donID string, key *ecdsa.PrivateKey, log *slog.Logger) (*GatewayClient, error) {
	if len(urls) == 0 {
		return nil, interfaces.NewConfigError(errors.New("no gateway URLs"))
	}
	if key == nil {
		return nil, interfaces.NewConfigError(errors.New("no signing key"))
	}
	if log == nil {
		log = slog.Default()
	}
	return &GatewayClient{
		urls:   urls,
		donID:  donID,
		key:    key,
		client: &http.Client{Timeout: 30 * time.Second},
		now:    time.Now,
		log:    log,
	}, nil
}

// SetHTTPClient replaces the HTTP client used for gateway calls.
func (g *GatewayClient) SetHTTPClient(client *http.Client) {
	g.client = client
}

type secretsPayload struct {
	SlotID     uint8  `json:"slot_id"`
	Version    uint64 `json:"version"`
	Payload    string `json:"payload"`
	Expiration int64  `json:"expiration"`
	Signature  string `json:"signature"`
}

type messageBody struct {
	MessageID string          `json:"message_id"`
	Method    string          `json:"method"`
	DonID     string          `json:"don_id"`
	Receiver  string          `json:"receiver"`
	Payload   json.RawMessage `json:"payload"`
}

type rpcRequest struct {
	ID      string `json:"id"`
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  struct {
		Body      messageBody `json:"body"`
		Signature string      `json:"signature"`
	} `json:"params"`
}

// Upload sends the encrypted secrets to every gateway. The upload succeeds
// only if every gateway and every node behind it accepts it; per-gateway
// results are returned either way.
func (g *GatewayClient) Upload(ctx context.Context, req UploadRequest) (*interfaces.UploadResult, error) {
	if req.EncryptedSecretsHex == "" {
		return nil, interfaces.NewConfigError(errors.New("no encrypted secrets"))
	}

	now := g.now()
	version := req.Version
	if version == 0 {
		version = uint64(now.Unix())
	}
	lease := req.LeaseMinutes
	if lease <= 0 {
		lease = DefaultLeaseMinutes
	}
	expiration := now.Add(time.Duration(lease) * time.Minute)

	result := &interfaces.UploadResult{
		Location:   interfaces.SecretLocation{SlotID: req.SlotID, Version: version},
		Expiration: expiration,
	}

	body, err := g.message(req.EncryptedSecretsHex, req.SlotID, version, expiration)
	if err != nil {
		return result, err
	}

	var errs *multierror.Error
	for _, url := range g.urls {
		gw := g.send(ctx, url, body)
		result.Gateways = append(result.Gateways, gw.GatewayResult)
		if gw.err != nil {
			errs = multierror.Append(errs, gw.err)
			g.log.Error("gateway rejected secrets", "gateway", url, "err", gw.err)
			continue
		}
		g.log.Info("gateway accepted secrets", "gateway", url, "nodes", gw.NodeResponses)
	}

	if err := errs.ErrorOrNil(); err != nil {
		return result, err
	}
	return result, nil
}

// message builds and signs the secrets_set JSON-RPC request.
func (g *GatewayClient) message(encryptedHex string, slotID uint8, version uint64, expiration time.Time) ([]byte, error) {
	ciphertext, err := hexutil.Decode(ensure0x(encryptedHex))
	if err != nil {
		return nil, interfaces.NewConfigError(fmt.Errorf("encrypted secrets are not hex: %w", err))
	}

	payload := secretsPayload{
		SlotID:     slotID,
		Version:    version,
		Payload:    base64.StdEncoding.EncodeToString(ciphertext),
		Expiration: expiration.UnixMilli(),
	}
	storageSig, err := g.sign(storageSigningBytes(crypto.PubkeyToAddress(g.key.PublicKey).Hex(), payload))
	if err != nil {
		return nil, err
	}
	payload.Signature = base64.StdEncoding.EncodeToString(storageSig)

	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	var req rpcRequest
	req.ID = uuid.NewString()
	req.JSONRPC = "2.0"
	req.Method = secretsSetMethod
	req.Params.Body = messageBody{
		MessageID: req.ID,
		Method:    secretsSetMethod,
		DonID:     g.donID,
		Receiver:  "",
		Payload:   payloadJSON,
	}

	messageSig, err := g.sign(messageSigningBytes(req.Params.Body))
	if err != nil {
		return nil, err
	}
	req.Params.Signature = hexutil.Encode(messageSig)

	return json.Marshal(req)
}

func (g *GatewayClient) sign(data []byte) ([]byte, error) {
	sig, err := crypto.Sign(accounts.TextHash(data), g.key)
	if err != nil {
		return nil, fmt.Errorf("could not sign gateway message: %w", err)
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}

// storageSigningBytes is what the owner signs for the nodes' secrets store.
func storageSigningBytes(owner string, p secretsPayload) []byte {
	b, _ := json.Marshal(struct {
		Address    string `json:"address"`
		SlotID     uint8  `json:"slotid"`
		Payload    string `json:"payload"`
		Version    uint64 `json:"version"`
		Expiration int64  `json:"expiration"`
	}{Address: strings.ToLower(owner), SlotID: p.SlotID, Payload: p.Payload, Version: p.Version, Expiration: p.Expiration})
	return b
}

// messageSigningBytes lays out the gateway message fields at fixed widths
// followed by the raw payload.
func messageSigningBytes(b messageBody) []byte {
	var out []byte
	out = append(out, padRight(b.MessageID, 128)...)
	out = append(out, padRight(b.Method, 64)...)
	out = append(out, padRight(b.DonID, 64)...)
	out = append(out, padRight(b.Receiver, 42)...)
	out = append(out, b.Payload...)
	return out
}

func padRight(s string, n int) []byte {
	out := make([]byte, n)
	copy(out, s)
	return out
}

type gatewayOutcome struct {
	interfaces.GatewayResult
	err error
}

func (g *GatewayClient) send(ctx context.Context, url string, body []byte) gatewayOutcome {
	out := gatewayOutcome{GatewayResult: interfaces.GatewayResult{URL: url}}
	fail := func(sentinel error, format string, args ...interface{}) gatewayOutcome {
		out.err = fmt.Errorf("%w: gateway %s: %s", sentinel, url, fmt.Sprintf(format, args...))
		out.Error = out.err.Error()
		return out
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fail(interfaces.ErrConfiguration, "%v", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return fail(interfaces.ErrNetwork, "%v", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fail(interfaces.ErrNetwork, "reading response: %v", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fail(interfaces.ErrNetwork, "HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	if !gjson.ValidBytes(respBody) {
		return fail(interfaces.ErrNetwork, "response is not JSON")
	}

	parsed := gjson.ParseBytes(respBody)
	if rpcErr := parsed.Get("error"); rpcErr.Exists() {
		return fail(interfaces.ErrUploadRejected, "%s", rpcErr.Get("message").String())
	}

	nodes := parsed.Get("result.body.payload.node_responses")
	if !nodes.IsArray() || len(nodes.Array()) == 0 {
		return fail(interfaces.ErrUploadRejected, "no node responses")
	}

	out.NodeResponses = len(nodes.Array())
	var rejected int
	for _, node := range nodes.Array() {
		if !node.Get("body.payload.success").Bool() && !node.Get("success").Bool() {
			rejected++
		}
	}
	if rejected > 0 {
		return fail(interfaces.ErrUploadRejected, "%d of %d nodes rejected the secrets", rejected, out.NodeResponses)
	}
	if success := parsed.Get("result.body.payload.success"); success.Exists() && !success.Bool() {
		return fail(interfaces.ErrUploadRejected, "gateway reported failure")
	}

	out.Success = true
	return out
}

func ensure0x(s string) string {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return s
	}
	return "0x" + s
}
