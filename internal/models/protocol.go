package models

import "time"

// AbiRead declares one contract read: a function name, its literal argument
// values, and the declared return type. Argument types are inferred from the
// values at validation time (see protocols.InferArgType).
type AbiRead struct {
	Function string   `json:"function"`
	Args     []string `json:"args"`
	Returns  string   `json:"returns"`
}

// AbiMapping is the user-supplied declarative description of how to read a
// protocol contract's position. PositionRead is required; DecimalsRead is
// optional and, when present, supplies the scaling factor for the position
// value (default 18 when absent).
type AbiMapping struct {
	PositionRead *AbiRead `json:"positionRead"`
	DecimalsRead *AbiRead `json:"decimalsRead,omitempty"`
}

// ValidationStatus is the stored validation state of a protocol contract's
// ABI mapping.
type ValidationStatus string

const (
	ValidationPending ValidationStatus = "pending"
	ValidationValid   ValidationStatus = "valid"
	ValidationInvalid ValidationStatus = "invalid"
)

// ProtocolContract is a chain-scoped contract whose position is read through
// a constrained, allow-listed ABI mapping rather than the standard token scan.
type ProtocolContract struct {
	ID               string           `json:"id"`
	ChainID          string           `json:"chainId"`
	Label            string           `json:"label"`
	ContractAddress  string           `json:"contractAddress"`
	Symbol           string           `json:"symbol"`
	Mapping          AbiMapping       `json:"abiMapping"`
	ValidationStatus ValidationStatus `json:"validationStatus"`
	IsActive         bool             `json:"isActive"`
	CreatedAt        time.Time        `json:"createdAt"`
}

// ProtocolPosition is the normalized result of resolving a protocol
// contract's position for one wallet.
type ProtocolPosition struct {
	ContractOrMint string  `json:"contractOrMint"`
	Symbol         string  `json:"symbol"`
	Quantity       float64 `json:"quantity"`
}
