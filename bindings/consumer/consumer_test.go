package consumer

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsumerABI_Selectors(t *testing.T) {
	parsed, err := ParsedABI()
	require.NoError(t, err)

	sendRequest := parsed.Methods["sendRequest"]
	assert.Equal(t, "sendRequest(string,uint8,uint64,string[],uint32)", sendRequest.Sig)

	responseReceived := parsed.Events["ResponseReceived"]
	assert.Equal(t, crypto.Keccak256Hash([]byte("ResponseReceived(bytes32,bytes,bytes)")), responseReceived.ID)

	requestSent, err := EventID("RequestSent")
	require.NoError(t, err)
	assert.Equal(t, crypto.Keccak256Hash([]byte("RequestSent(bytes32)")), requestSent)

	_, err = EventID("Nope")
	assert.Error(t, err)
}

func TestParseResponseReceived(t *testing.T) {
	parsed, err := ParsedABI()
	require.NoError(t, err)

	c, err := NewConsumer(common.HexToAddress("0x01"), nil)
	require.NoError(t, err)

	data, err := parsed.Events["ResponseReceived"].Inputs.NonIndexed().Pack([]byte("42"), []byte{})
	require.NoError(t, err)

	requestID := crypto.Keccak256Hash([]byte("request"))
	log := types.Log{
		Address: c.Address(),
		Topics:  []common.Hash{parsed.Events["ResponseReceived"].ID, requestID},
		Data:    data,
	}

	ev, err := c.ParseResponseReceived(log)
	require.NoError(t, err)
	assert.Equal(t, [32]byte(requestID), ev.RequestId)
	assert.Equal(t, []byte("42"), ev.Response)
	assert.Empty(t, ev.Err)

	_, err = c.ParseRequestSent(log)
	assert.Error(t, err, "signature mismatch must not parse")

	_, err = c.ParseResponseReceived(types.Log{})
	assert.ErrorIs(t, err, ErrNoEventSignature)
}

func TestPackSendRequest(t *testing.T) {
	c, err := NewConsumer(common.HexToAddress("0x01"), nil)
	require.NoError(t, err)

	calldata, err := c.PackSendRequest("source", 0, 1750960986, []string{"Say 'hello'."}, 300000)
	require.NoError(t, err)

	parsed, err := ParsedABI()
	require.NoError(t, err)
	assert.Equal(t, parsed.Methods["sendRequest"].ID, calldata[:4])

	args, err := parsed.Methods["sendRequest"].Inputs.Unpack(calldata[4:])
	require.NoError(t, err)
	assert.Equal(t, "source", args[0])
	assert.Equal(t, uint8(0), args[1])
	assert.Equal(t, uint64(1750960986), args[2])
	assert.Equal(t, []string{"Say 'hello'."}, args[3])
	assert.Equal(t, uint32(300000), args[4])
}
