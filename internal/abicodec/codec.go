// Package abicodec is a narrowly-scoped binary codec for the handful of
// contract reads the scanner performs. It is deliberately not a general ABI
// implementation: the supported signatures live in a selector table, call
// data is a 4-byte selector followed by 32-byte left-padded big-endian
// argument words, and decoding covers unsigned integers plus the standard
// head/tail dynamic string layout. Adding a signature is a table entry plus,
// at most, a decode case.
package abicodec

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// WordSize is the width of one ABI argument or return word.
const WordSize = 32

// selectorTable maps supported read signatures to their 4-byte selectors
// (lowercase hex, no 0x prefix). The table is the allow-list: anything not
// listed here cannot be encoded.
var selectorTable = map[string]string{
	"balanceOf(address)": "70a08231",
	"decimals()":         "313ce567",
	"symbol()":           "95d89b41",
	"name()":             "06fdde03",
}

// SelectorFor returns the 4-byte selector for a supported signature.
func SelectorFor(signature string) (string, bool) {
	sel, ok := selectorTable[signature]
	return sel, ok
}

// SupportedSignatures returns the allow-listed signatures in no particular
// order.
func SupportedSignatures() []string {
	out := make([]string, 0, len(selectorTable))
	for sig := range selectorTable {
		out = append(out, sig)
	}
	return out
}

// ComputeSelector derives the selector from a signature via Keccak-256.
// Used by tests to cross-check the table; runtime encoding reads the table.
func ComputeSelector(signature string) string {
	return hex.EncodeToString(crypto.Keccak256([]byte(signature))[:4])
}

// Word is one 32-byte ABI argument word.
type Word [WordSize]byte

// AddressWord left-pads a 20-byte EVM address into an argument word.
func AddressWord(address string) (Word, error) {
	var w Word
	if !common.IsHexAddress(address) {
		return w, fmt.Errorf("invalid evm address: %s", address)
	}
	addr := common.HexToAddress(address)
	copy(w[WordSize-common.AddressLength:], addr.Bytes())
	return w, nil
}

// Uint256Word left-pads an unsigned integer into an argument word.
func Uint256Word(v *big.Int) (Word, error) {
	var w Word
	if v == nil || v.Sign() < 0 {
		return w, fmt.Errorf("uint256 argument must be a non-negative integer")
	}
	b := v.Bytes()
	if len(b) > WordSize {
		return w, fmt.Errorf("uint256 argument overflows 32 bytes")
	}
	copy(w[WordSize-len(b):], b)
	return w, nil
}

// EncodeCall builds call data for a supported signature: 4-byte selector
// followed by the argument words in order.
func EncodeCall(signature string, args ...Word) ([]byte, error) {
	sel, ok := selectorTable[signature]
	if !ok {
		return nil, fmt.Errorf("signature %s is not in the selector table", signature)
	}
	selBytes, err := hex.DecodeString(sel)
	if err != nil {
		return nil, fmt.Errorf("malformed selector for %s: %w", signature, err)
	}

	data := make([]byte, 0, len(selBytes)+len(args)*WordSize)
	data = append(data, selBytes...)
	for _, w := range args {
		data = append(data, w[:]...)
	}
	return data, nil
}

// DecodeUint256 interprets a return payload as a single big-endian unsigned
// integer word. Empty payloads decode to zero (an eth_call against a
// non-contract address returns no data).
func DecodeUint256(data []byte) (*big.Int, error) {
	if len(data) == 0 {
		return new(big.Int), nil
	}
	if len(data) < WordSize {
		return nil, fmt.Errorf("uint256 payload too short: %d bytes", len(data))
	}
	return new(big.Int).SetBytes(data[:WordSize]), nil
}

// DecodeString interprets a return payload as an ABI string: a head word
// holding the tail offset, then a length word and the bytes at that offset.
// Some older tokens return a fixed bytes32 instead; a bare single word is
// decoded as a NUL-trimmed bytes32 for that reason.
func DecodeString(data []byte) (string, error) {
	if len(data) == 0 {
		return "", nil
	}
	if len(data) == WordSize {
		return strings.TrimRight(string(data), "\x00"), nil
	}
	if len(data) < 2*WordSize {
		return "", fmt.Errorf("string payload too short: %d bytes", len(data))
	}

	offset := new(big.Int).SetBytes(data[:WordSize])
	if !offset.IsInt64() || offset.Int64()+WordSize > int64(len(data)) {
		return "", fmt.Errorf("string payload has out-of-range offset")
	}
	tail := data[offset.Int64():]

	length := new(big.Int).SetBytes(tail[:WordSize])
	if !length.IsInt64() || int64(WordSize)+length.Int64() > int64(len(tail)) {
		return "", fmt.Errorf("string payload has out-of-range length")
	}
	return string(tail[WordSize : WordSize+length.Int64()]), nil
}
