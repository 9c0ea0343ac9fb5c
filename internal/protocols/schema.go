// Package protocols validates and executes user-supplied ABI mappings for
// protocol contracts. Mappings are declarative: a function name, literal
// argument values, and a return type. Validation is structural; support
// checking restricts the inferred signature to a small allow-list before any
// network call happens.
package protocols

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/wallet-scanner/internal/apperrors"
	"github.com/wallet-scanner/internal/models"
)

// WalletPlaceholder is the literal argument value that substitutes the
// scanned wallet's address at execution time.
const WalletPlaceholder = "$walletAddress"

// placeholderSentinel marks placeholder arguments. Anything starting with it
// other than WalletPlaceholder is rejected.
const placeholderSentinel = "$"

// supportedSignatures is the allow-list of executable read signatures. Data,
// not code: extending support is an entry here plus a codec case if the
// return type is new.
var supportedSignatures = map[string]bool{
	"balanceOf(address)": true,
	"decimals()":         true,
}

var (
	hexAddressPattern = regexp.MustCompile(`^(0x)?[0-9a-fA-F]{40}$`)
	decimalPattern    = regexp.MustCompile(`^[0-9]+$`)
	hexNumberPattern  = regexp.MustCompile(`^0x[0-9a-fA-F]{1,64}$`)
)

// ValidateSchema checks the structural shape of an ABI mapping: positionRead
// is required with a non-empty function, an args array, and a non-empty
// returns; decimalsRead, when present, follows the same shape.
func ValidateSchema(mapping *models.AbiMapping) error {
	if mapping == nil {
		return apperrors.NewSchemaError("abiMapping", "is required")
	}
	if err := validateRead("positionRead", mapping.PositionRead, true); err != nil {
		return err
	}
	return validateRead("decimalsRead", mapping.DecimalsRead, false)
}

func validateRead(field string, read *models.AbiRead, required bool) error {
	if read == nil {
		if required {
			return apperrors.NewSchemaError(field, "is required")
		}
		return nil
	}
	if strings.TrimSpace(read.Function) == "" {
		return apperrors.NewSchemaError(field+".function", "must be a non-empty string")
	}
	if read.Args == nil {
		return apperrors.NewSchemaError(field+".args", "must be an array")
	}
	if strings.TrimSpace(read.Returns) == "" {
		return apperrors.NewSchemaError(field+".returns", "must be a non-empty string")
	}
	return nil
}

// InferArgType types one literal argument value by inspection. The wallet
// placeholder and 40-hex-digit strings are addresses; decimal and
// hex-prefixed numeric strings are uint256. Unknown placeholders are
// rejected.
func InferArgType(value string) (string, error) {
	if value == WalletPlaceholder {
		return "address", nil
	}
	if strings.HasPrefix(value, placeholderSentinel) {
		return "", fmt.Errorf("unknown placeholder %q (only %s is supported)", value, WalletPlaceholder)
	}
	if hexAddressPattern.MatchString(value) {
		return "address", nil
	}
	if decimalPattern.MatchString(value) || hexNumberPattern.MatchString(value) {
		return "uint256", nil
	}
	return "", fmt.Errorf("cannot infer argument type for %q", value)
}

// Signature renders the function name plus inferred argument types, e.g.
// "balanceOf(address)".
func Signature(read *models.AbiRead) (string, error) {
	argTypes := make([]string, len(read.Args))
	for i, arg := range read.Args {
		t, err := InferArgType(arg)
		if err != nil {
			return "", err
		}
		argTypes[i] = t
	}
	return fmt.Sprintf("%s(%s)", strings.TrimSpace(read.Function), strings.Join(argTypes, ",")), nil
}

// AssertSupported restricts a structurally valid mapping to the allow-listed
// signatures. Returns UnsupportedReadError naming the rejected signature.
func AssertSupported(mapping *models.AbiMapping) error {
	if err := assertReadSupported(mapping.PositionRead); err != nil {
		return err
	}
	if mapping.DecimalsRead != nil {
		return assertReadSupported(mapping.DecimalsRead)
	}
	return nil
}

func assertReadSupported(read *models.AbiRead) error {
	sig, err := Signature(read)
	if err != nil {
		return apperrors.NewUnsupportedRead(fmt.Sprintf("%s: %v", read.Function, err))
	}
	if !supportedSignatures[sig] {
		return apperrors.NewUnsupportedRead(sig)
	}
	return nil
}
