package interfaces

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// ContractAddress represents an Ethereum contract address.
type ContractAddress [20]byte

func NewContractAddressFromBytes(addr []byte) (ContractAddress, error) {
	if len(addr) != 20 {
		return ContractAddress{}, errors.New("invalid address length: must be 20 bytes")
	}

	var res ContractAddress
	copy(res[:], addr)
	return res, nil
}

// NewContractAddressFromHex parses a 40-char hex address with optional 0x prefix.
func NewContractAddressFromHex(addr string) (ContractAddress, error) {
	clean := strings.TrimPrefix(addr, "0x")
	if len(clean) != 40 {
		return ContractAddress{}, errors.New("invalid address length: hex string must be 40 characters")
	}

	addrBytes, err := hex.DecodeString(clean)
	if err != nil {
		return ContractAddress{}, fmt.Errorf("invalid hex format: %w", err)
	}

	return NewContractAddressFromBytes(addrBytes)
}

// String returns the checksummed 0x-prefixed form.
func (addr ContractAddress) String() string {
	return common.Address(addr).Hex()
}

func (addr ContractAddress) Address() common.Address {
	return common.Address(addr)
}

// ReturnType selects how a callback payload is decoded.
type ReturnType string

const (
	ReturnString  ReturnType = "string"
	ReturnUint256 ReturnType = "uint256"
)

// Known reports whether the decoder has a dedicated rule for rt.
func (rt ReturnType) Known() bool {
	return rt == ReturnString || rt == ReturnUint256
}

// SecretLocation addresses a DON-hosted secret. Issued once by the gateways,
// never mutated.
type SecretLocation struct {
	SlotID  uint8  `json:"slotId"`
	Version uint64 `json:"version"`
}

func (l SecretLocation) String() string {
	return fmt.Sprintf("slot %d version %d", l.SlotID, l.Version)
}

// RequestDescriptor is the immutable input of a Functions request. It is
// passed by value; Args is never shared with the caller that built it.
type RequestDescriptor struct {
	Source           string         `json:"source"`
	Secrets          SecretLocation `json:"secrets"`
	Args             []string       `json:"args"`
	ReturnType       ReturnType     `json:"expectedReturnType"`
	CallbackGasLimit uint32         `json:"callbackGasLimit"`
	SubscriptionID   uint64         `json:"subscriptionId"`
	DonID            string         `json:"donId"`
}

// Hash is a keccak256 digest over a length-prefixed encoding of every field.
// Equal descriptors always hash equally.
func (d RequestDescriptor) Hash() common.Hash {
	var buf []byte
	putString := func(s string) {
		buf = binary.BigEndian.AppendUint64(buf, uint64(len(s)))
		buf = append(buf, s...)
	}

	putString(d.Source)
	buf = append(buf, d.Secrets.SlotID)
	buf = binary.BigEndian.AppendUint64(buf, d.Secrets.Version)
	buf = binary.BigEndian.AppendUint64(buf, uint64(len(d.Args)))
	for _, arg := range d.Args {
		putString(arg)
	}
	putString(string(d.ReturnType))
	buf = binary.BigEndian.AppendUint32(buf, d.CallbackGasLimit)
	buf = binary.BigEndian.AppendUint64(buf, d.SubscriptionID)
	putString(d.DonID)

	return crypto.Keccak256Hash(buf)
}

// RequestID is the bytes32 identifier the router assigns to a request.
type RequestID [32]byte

func (id RequestID) String() string {
	return "0x" + hex.EncodeToString(id[:])
}

func (id RequestID) IsZero() bool {
	return id == RequestID{}
}

// SubmitReceipt describes the inclusion of a sendRequest transaction.
type SubmitReceipt struct {
	TxHash      common.Hash `json:"txHash"`
	BlockNumber uint64      `json:"blockNumber"`
	GasUsed     uint64      `json:"gasUsed"`

	// RequestID is only meaningful when HasRequestID is set; it is read from
	// the consumer's RequestSent log.
	RequestID    RequestID `json:"requestId"`
	HasRequestID bool      `json:"hasRequestId"`
}

// CallbackResult is one ResponseReceived event. Per protocol exactly one of
// Response and Err is non-empty.
type CallbackResult struct {
	RequestID   RequestID
	Response    []byte
	Err         []byte
	BlockNumber uint64
	TxHash      common.Hash
}

// DecodedKind tags which decoding rule produced a Decoded value.
type DecodedKind int

const (
	KindString DecodedKind = iota
	KindInteger
	KindRaw
)

func (k DecodedKind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInteger:
		return "integer"
	case KindRaw:
		return "raw"
	default:
		return "unknown"
	}
}

// Decoded is a callback payload after decoding. Exactly one of Text, Int or
// Raw is set, according to Kind.
type Decoded struct {
	Kind DecodedKind
	Text string
	Int  *big.Int
	Raw  []byte
}

// String renders the value for console output.
func (d Decoded) String() string {
	switch d.Kind {
	case KindString:
		return d.Text
	case KindInteger:
		if d.Int == nil {
			return "0"
		}
		return d.Int.String()
	default:
		return "0x" + hex.EncodeToString(d.Raw)
	}
}

// GatewayResult is the outcome of uploading encrypted secrets to one gateway.
type GatewayResult struct {
	URL           string `json:"url"`
	Success       bool   `json:"success"`
	NodeResponses int    `json:"nodeResponses"`
	Error         string `json:"error,omitempty"`
}

// UploadResult is returned by a DON secrets upload, including partial
// per-gateway results when the upload as a whole failed.
type UploadResult struct {
	Location   SecretLocation  `json:"location"`
	Expiration time.Time       `json:"expiration"`
	Gateways   []GatewayResult `json:"gateways"`
}

// Success reports whether every gateway accepted the upload.
func (r *UploadResult) Success() bool {
	if r == nil || len(r.Gateways) == 0 {
		return false
	}
	for _, g := range r.Gateways {
		if !g.Success {
			return false
		}
	}
	return true
}

// RequestRecord is the archived summary of one request run.
type RequestRecord struct {
	DescriptorHash common.Hash    `json:"descriptorHash"`
	Consumer       string         `json:"consumer"`
	Args           []string       `json:"args"`
	Secrets        SecretLocation `json:"secrets"`
	Receipt        SubmitReceipt  `json:"receipt"`
	OutcomeKind    string         `json:"outcomeKind,omitempty"`
	Outcome        string         `json:"outcome,omitempty"`
	Error          string         `json:"error,omitempty"`
	SubmittedAt    time.Time      `json:"submittedAt"`
	CompletedAt    time.Time      `json:"completedAt"`
}
