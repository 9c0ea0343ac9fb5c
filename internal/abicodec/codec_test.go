package abicodec

import (
	"encoding/hex"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectorTableMatchesKeccak(t *testing.T) {
	for _, sig := range SupportedSignatures() {
		sel, ok := SelectorFor(sig)
		require.True(t, ok)
		assert.Equal(t, ComputeSelector(sig), sel, "selector mismatch for %s", sig)
	}
}

func TestEncodeBalanceOf(t *testing.T) {
	w, err := AddressWord("0x1234567890AbcdEF1234567890aBcdef12345678")
	require.NoError(t, err)

	data, err := EncodeCall("balanceOf(address)", w)
	require.NoError(t, err)
	require.Len(t, data, 4+WordSize)

	assert.Equal(t, "70a08231", hex.EncodeToString(data[:4]))
	// 12 bytes of left padding, then the address.
	assert.Equal(t,
		"0000000000000000000000001234567890abcdef1234567890abcdef12345678",
		hex.EncodeToString(data[4:]))
}

func TestEncodeUnknownSignatureRejected(t *testing.T) {
	_, err := EncodeCall("customRead(address)")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "customRead(address)")
}

func TestAddressWordRejectsMalformed(t *testing.T) {
	_, err := AddressWord("0x1234")
	require.Error(t, err)
}

func TestUint256Word(t *testing.T) {
	w, err := Uint256Word(big.NewInt(255))
	require.NoError(t, err)
	assert.Equal(t, byte(0xff), w[WordSize-1])

	_, err = Uint256Word(big.NewInt(-1))
	require.Error(t, err)
}

func TestDecodeUint256(t *testing.T) {
	payload := make([]byte, WordSize)
	payload[WordSize-1] = 0x2a
	v, err := DecodeUint256(payload)
	require.NoError(t, err)
	assert.Equal(t, int64(42), v.Int64())

	// Empty return data decodes to zero.
	v, err = DecodeUint256(nil)
	require.NoError(t, err)
	assert.Zero(t, v.Sign())

	_, err = DecodeUint256(make([]byte, 10))
	require.Error(t, err)
}

func TestDecodeUint256LargeBalance(t *testing.T) {
	// 2^200: far beyond uint64, must round-trip exactly.
	want := new(big.Int).Lsh(big.NewInt(1), 200)
	payload := make([]byte, WordSize)
	want.FillBytes(payload)

	got, err := DecodeUint256(payload)
	require.NoError(t, err)
	assert.Zero(t, want.Cmp(got))
}

func TestDecodeStringDynamic(t *testing.T) {
	// offset=32, length=4, "USDC" padded to a word.
	payload := make([]byte, 3*WordSize)
	payload[WordSize-1] = WordSize
	payload[2*WordSize-1] = 4
	copy(payload[2*WordSize:], "USDC")

	s, err := DecodeString(payload)
	require.NoError(t, err)
	assert.Equal(t, "USDC", s)
}

func TestDecodeStringBytes32(t *testing.T) {
	payload := make([]byte, WordSize)
	copy(payload, "MKR")
	s, err := DecodeString(payload)
	require.NoError(t, err)
	assert.Equal(t, "MKR", s)
}

func TestDecodeStringBadOffset(t *testing.T) {
	payload := make([]byte, 2*WordSize)
	payload[WordSize-1] = 0xff // offset beyond payload
	_, err := DecodeString(payload)
	require.Error(t, err)
}
