package callback

import (
	"encoding/hex"
	"fmt"
	"log/slog"
	"math/big"
	"unicode/utf8"

	"github.com/ruteri/functions-gemini-relay/interfaces"
)

const maxIntegerBytes = 32

// Decode turns a ResponseReceived payload into a tagged value. A non-empty
// error payload always wins over the response and is returned as an
// *interfaces.ExecutionError. Otherwise the response is decoded according to
// returnType, falling back from text to integer to raw bytes.
func Decode(returnType interfaces.ReturnType, response, errPayload []byte, log *slog.Logger) (interfaces.Decoded, error) {
	if log == nil {
		log = slog.Default()
	}

	if len(errPayload) > 0 {
		if utf8.Valid(errPayload) {
			return interfaces.Decoded{}, &interfaces.ExecutionError{Message: string(errPayload)}
		}
		return interfaces.Decoded{}, &interfaces.ExecutionError{Raw: clone(errPayload)}
	}

	switch returnType {
	case interfaces.ReturnString:
		if len(response) == 0 || utf8.Valid(response) {
			return interfaces.Decoded{Kind: interfaces.KindString, Text: string(response)}, nil
		}
		if len(response) <= maxIntegerBytes {
			log.Debug("response is not valid UTF-8, decoded as integer", "bytes", len(response))
			return integer(response), nil
		}
		log.Warn("response is neither UTF-8 nor an integer, returning raw bytes", "bytes", len(response))
		return raw(response), nil

	case interfaces.ReturnUint256:
		if len(response) == 0 {
			return interfaces.Decoded{}, fmt.Errorf("%w: empty uint256 response", interfaces.ErrDecode)
		}
		if len(response) <= maxIntegerBytes {
			return integer(response), nil
		}
		log.Warn("uint256 response is longer than 32 bytes, returning raw bytes", "bytes", len(response))
		return raw(response), nil

	default:
		log.Warn("unknown return type, decoding best effort", "returnType", string(returnType))
		if utf8.Valid(response) {
			return interfaces.Decoded{Kind: interfaces.KindString, Text: string(response)}, nil
		}
		return raw(response), nil
	}
}

func integer(b []byte) interfaces.Decoded {
	return interfaces.Decoded{Kind: interfaces.KindInteger, Int: new(big.Int).SetBytes(b)}
}

func raw(b []byte) interfaces.Decoded {
	return interfaces.Decoded{Kind: interfaces.KindRaw, Raw: clone(b)}
}

func clone(b []byte) []byte {
	return append([]byte(nil), b...)
}

// FormatPayload renders bytes for logs: text when printable, hex otherwise.
func FormatPayload(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	return "0x" + hex.EncodeToString(b)
}
