package functions

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatBytes32String(t *testing.T) {
	donID, err := FormatBytes32String("fun-ethereum-sepolia-1")
	require.NoError(t, err)
	assert.Equal(t, byte('f'), donID[0])
	assert.Equal(t, byte(0), donID[31])
	assert.Equal(t, "fun-ethereum-sepolia-1", ParseBytes32String(donID))

	_, err = FormatBytes32String(strings.Repeat("a", 32))
	assert.Error(t, err)
}
