// Package apperrors defines the typed failure taxonomy shared by the
// pipeline: not-found, provider unavailability, schema/support rejection for
// ABI mappings, all-resolutions-failed escalation, and dual-source failure.
//
// Item-level failures are converted into per-item markers by the callers;
// the types here are for failures that must be attributable and matchable
// with errors.As.
package apperrors

import (
	"fmt"
	"strings"
)

// NotFoundError reports a missing wallet, chain, or protocol contract. It is
// fatal to the single request and never retried.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// NewNotFound creates a NotFoundError for a resource/id pair.
func NewNotFound(resource, id string) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

// ProviderError reports an RPC/HTTP provider failure (timeout, non-2xx,
// transport error). Depending on the call site it is retried once against a
// fallback endpoint or degrades the affected item to failed/unknown.
type ProviderError struct {
	Provider string
	Op       string
	Cause    error
}

func (e *ProviderError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("provider %s unavailable during %s: %v", e.Provider, e.Op, e.Cause)
	}
	return fmt.Sprintf("provider %s unavailable during %s", e.Provider, e.Op)
}

func (e *ProviderError) Unwrap() error { return e.Cause }

// NewProviderError wraps a provider failure with attribution.
func NewProviderError(provider, op string, cause error) *ProviderError {
	return &ProviderError{Provider: provider, Op: op, Cause: cause}
}

// SchemaError reports a malformed ABI mapping. Rejected before any network
// call, never retried.
type SchemaError struct {
	Field  string
	Reason string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("invalid abi mapping: field %q %s", e.Field, e.Reason)
}

// NewSchemaError creates a SchemaError naming the offending field.
func NewSchemaError(field, reason string) *SchemaError {
	return &SchemaError{Field: field, Reason: reason}
}

// UnsupportedReadError reports an ABI read whose signature is outside the
// allow-list. The signature is embedded so the rejection is attributable.
type UnsupportedReadError struct {
	Signature string
}

func (e *UnsupportedReadError) Error() string {
	return fmt.Sprintf("unsupported read signature: %s", e.Signature)
}

// NewUnsupportedRead creates an UnsupportedReadError for a signature.
func NewUnsupportedRead(signature string) *UnsupportedReadError {
	return &UnsupportedReadError{Signature: signature}
}

// AllResolutionsFailedError reports that every token in a balance resolution
// batch failed. It escalates to run-level failure instead of persisting a
// silently zeroed portfolio.
type AllResolutionsFailedError struct {
	ChainID string
	Count   int
}

func (e *AllResolutionsFailedError) Error() string {
	return fmt.Sprintf("all %d balance resolutions failed on chain %s", e.Count, e.ChainID)
}

// NewAllResolutionsFailed creates an AllResolutionsFailedError.
func NewAllResolutionsFailed(chainID string, count int) *AllResolutionsFailedError {
	return &AllResolutionsFailedError{ChainID: chainID, Count: count}
}

// DualSourceError aggregates the failure reasons of an ordered provider
// fallback chain where every stage failed. Callers use it to preserve prior
// good state rather than overwriting it.
type DualSourceError struct {
	Op       string
	Failures []error
}

func (e *DualSourceError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, f.Error())
	}
	return fmt.Sprintf("%s: all sources failed: %s", e.Op, strings.Join(parts, "; "))
}

// Unwrap exposes the individual stage failures for errors.Is/As chains.
func (e *DualSourceError) Unwrap() []error { return e.Failures }

// NewDualSourceError aggregates stage failures for an operation.
func NewDualSourceError(op string, failures ...error) *DualSourceError {
	return &DualSourceError{Op: op, Failures: failures}
}
