package secrets

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ruteri/functions-gemini-relay/common"
	"github.com/ruteri/functions-gemini-relay/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

const acceptAll = `{"jsonrpc":"2.0","id":"1","result":{"body":{"payload":{"success":true,"node_responses":[
	{"body":{"payload":{"success":true}}},
	{"body":{"payload":{"success":true}}}
]}}}}`

const rejectOne = `{"jsonrpc":"2.0","id":"1","result":{"body":{"payload":{"success":false,"node_responses":[
	{"body":{"payload":{"success":true}}},
	{"body":{"payload":{"success":false,"error_message":"bad signature"}}}
]}}}}`

type recordingGateway struct {
	mu       sync.Mutex
	requests [][]byte
	status   int
	response string
}

func (g *recordingGateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	g.mu.Lock()
	g.requests = append(g.requests, body)
	g.mu.Unlock()

	if g.status != 0 {
		w.WriteHeader(g.status)
	}
	_, _ = w.Write([]byte(g.response))
}

func newTestGatewayClient(t *testing.T, urls ...string) *GatewayClient {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	client, err := NewGatewayClient(urls, "fun-ethereum-sepolia-1", key, common.DiscardLogger())
	require.NoError(t, err)
	client.now = func() time.Time { return time.Unix(1700000000, 0) }
	return client
}

func TestGatewayClient_Upload(t *testing.T) {
	gw1 := &recordingGateway{response: acceptAll}
	gw2 := &recordingGateway{response: acceptAll}
	srv1 := httptest.NewServer(gw1)
	defer srv1.Close()
	srv2 := httptest.NewServer(gw2)
	defer srv2.Close()

	client := newTestGatewayClient(t, srv1.URL, srv2.URL)
	result, err := client.Upload(context.Background(), UploadRequest{EncryptedSecretsHex: "0xdeadbeef"})
	require.NoError(t, err)

	assert.True(t, result.Success())
	assert.Equal(t, uint8(0), result.Location.SlotID)
	assert.Equal(t, uint64(1700000000), result.Location.Version)
	assert.Equal(t, time.Unix(1700000000, 0).Add(4320*time.Minute), result.Expiration)
	require.Len(t, result.Gateways, 2)
	assert.Equal(t, 2, result.Gateways[0].NodeResponses)

	require.Len(t, gw1.requests, 1)
	req := gjson.ParseBytes(gw1.requests[0])
	assert.Equal(t, "secrets_set", req.Get("method").String())
	assert.Equal(t, "fun-ethereum-sepolia-1", req.Get("params.body.don_id").String())
	assert.Equal(t, req.Get("id").String(), req.Get("params.body.message_id").String())
	assert.Equal(t, "3q2+7w==", req.Get("params.body.payload.payload").String())
	assert.Equal(t, int64(1700000000+4320*60)*1000, req.Get("params.body.payload.expiration").Int())

	// The message signature recovers to the uploading account.
	var rpc rpcRequest
	require.NoError(t, json.Unmarshal(gw1.requests[0], &rpc))
	sig, err := hexutil.Decode(rpc.Params.Signature)
	require.NoError(t, err)
	sig[crypto.RecoveryIDOffset] -= 27
	pub, err := crypto.SigToPub(accounts.TextHash(messageSigningBytes(rpc.Params.Body)), sig)
	require.NoError(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(client.key.PublicKey), crypto.PubkeyToAddress(*pub))
}

func TestGatewayClient_UploadRejected(t *testing.T) {
	good := httptest.NewServer(&recordingGateway{response: acceptAll})
	defer good.Close()
	bad := httptest.NewServer(&recordingGateway{response: rejectOne})
	defer bad.Close()

	client := newTestGatewayClient(t, good.URL, bad.URL)
	result, err := client.Upload(context.Background(), UploadRequest{EncryptedSecretsHex: "deadbeef", Version: 7})
	require.ErrorIs(t, err, interfaces.ErrUploadRejected)

	require.NotNil(t, result)
	require.Len(t, result.Gateways, 2)
	assert.True(t, result.Gateways[0].Success)
	assert.False(t, result.Gateways[1].Success)
	assert.Contains(t, result.Gateways[1].Error, "1 of 2 nodes")
	assert.False(t, result.Success())
	assert.Equal(t, uint64(7), result.Location.Version)
}

func TestGatewayClient_UploadErrors(t *testing.T) {
	t.Run("http error", func(t *testing.T) {
		srv := httptest.NewServer(&recordingGateway{status: http.StatusInternalServerError, response: "boom"})
		defer srv.Close()

		client := newTestGatewayClient(t, srv.URL)
		_, err := client.Upload(context.Background(), UploadRequest{EncryptedSecretsHex: "0x01"})
		assert.ErrorIs(t, err, interfaces.ErrNetwork)
	})

	t.Run("rpc error", func(t *testing.T) {
		srv := httptest.NewServer(&recordingGateway{response: `{"jsonrpc":"2.0","id":"1","error":{"code":-32600,"message":"sender not allowlisted"}}`})
		defer srv.Close()

		client := newTestGatewayClient(t, srv.URL)
		_, err := client.Upload(context.Background(), UploadRequest{EncryptedSecretsHex: "0x01"})
		assert.ErrorIs(t, err, interfaces.ErrUploadRejected)
		assert.Contains(t, err.Error(), "sender not allowlisted")
	})

	t.Run("no node responses", func(t *testing.T) {
		srv := httptest.NewServer(&recordingGateway{response: `{"result":{"body":{"payload":{"success":true,"node_responses":[]}}}}`})
		defer srv.Close()

		client := newTestGatewayClient(t, srv.URL)
		_, err := client.Upload(context.Background(), UploadRequest{EncryptedSecretsHex: "0x01"})
		assert.ErrorIs(t, err, interfaces.ErrUploadRejected)
	})

	t.Run("not hex", func(t *testing.T) {
		client := newTestGatewayClient(t, "http://127.0.0.1:1")
		_, err := client.Upload(context.Background(), UploadRequest{EncryptedSecretsHex: "0xzz"})
		assert.ErrorIs(t, err, interfaces.ErrConfiguration)
	})

	t.Run("empty", func(t *testing.T) {
		client := newTestGatewayClient(t, "http://127.0.0.1:1")
		_, err := client.Upload(context.Background(), UploadRequest{})
		assert.ErrorIs(t, err, interfaces.ErrConfiguration)
	})
}

func TestNewGatewayClient_Invalid(t *testing.T) {
	_, err := NewGatewayClient(nil, "don", nil, nil)
	assert.ErrorIs(t, err, interfaces.ErrConfiguration)
}
