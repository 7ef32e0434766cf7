package simulator

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"strings"

	"github.com/dop251/goja"
	ethmath "github.com/ethereum/go-ethereum/common/math"
)

const maxSafeInteger = 1<<53 - 1

var (
	errNotInteger = errors.New("value is not an integer")
	errOutOfRange = errors.New("value out of range")

	maxInt256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 255), big.NewInt(1))
	minInt256 = new(big.Int).Neg(new(big.Int).Lsh(big.NewInt(1), 255))
)

// toBigInt accepts a safe JS integer or a decimal/0x string.
func toBigInt(v goja.Value) (*big.Int, error) {
	switch exp := v.Export().(type) {
	case int64:
		if exp > maxSafeInteger || exp < -maxSafeInteger {
			return nil, fmt.Errorf("%w: %d is not a safe integer, pass it as a string", errOutOfRange, exp)
		}
		return big.NewInt(exp), nil
	case float64:
		if math.IsNaN(exp) || math.IsInf(exp, 0) || exp != math.Trunc(exp) {
			return nil, errNotInteger
		}
		if math.Abs(exp) > maxSafeInteger {
			return nil, fmt.Errorf("%w: %v is not a safe integer, pass it as a string", errOutOfRange, exp)
		}
		return big.NewInt(int64(exp)), nil
	case string:
		n, ok := new(big.Int).SetString(strings.TrimSpace(exp), 0)
		if !ok {
			return nil, errNotInteger
		}
		return n, nil
	default:
		return nil, errNotInteger
	}
}

func encodeUint256(n *big.Int) ([]byte, error) {
	if n.Sign() < 0 || n.BitLen() > 256 {
		return nil, fmt.Errorf("%w: uint256", errOutOfRange)
	}
	return ethmath.U256Bytes(new(big.Int).Set(n)), nil
}

// encodeInt256 returns the 32-byte two's complement encoding of n.
func encodeInt256(n *big.Int) ([]byte, error) {
	if n.Cmp(maxInt256) > 0 || n.Cmp(minInt256) < 0 {
		return nil, fmt.Errorf("%w: int256", errOutOfRange)
	}
	return ethmath.U256Bytes(new(big.Int).Set(n)), nil
}
