// Package acornerr defines the sentinel error kinds surfaced by the rest of
// AcornDB. Callers use errors.Is/errors.As against these rather than
// matching on string messages.
package acornerr

import (
	"errors"
	"strconv"
)

var (
	// ErrIDUndetectable is returned when Stash is given no explicit id and
	// the payload exposes none of the recognized identity shapes.
	ErrIDUndetectable = errors.New("acorndb: could not detect an id for payload")

	// ErrIDInvalid is returned when an id was supplied or extracted but is empty.
	ErrIDInvalid = errors.New("acorndb: id is empty")

	// ErrDeserialization is returned when a stored blob cannot be decoded.
	// Callers should treat the underlying read as "absent", not fatal.
	ErrDeserialization = errors.New("acorndb: failed to deserialize stored document")

	// ErrHistoryUnsupported is returned by trunks that do not retain history.
	ErrHistoryUnsupported = errors.New("acorndb: trunk does not support history")

	// ErrUniqueConstraintViolation is returned by a unique index on duplicate insert.
	ErrUniqueConstraintViolation = errors.New("acorndb: unique constraint violation")

	// ErrPolicyViolation is returned when an active policy denies an operation.
	ErrPolicyViolation = errors.New("acorndb: policy violation")

	// ErrChainIntegrity is returned when a policy ledger fails hash-chain verification.
	ErrChainIntegrity = errors.New("acorndb: policy ledger chain integrity failure")

	// ErrTransient marks a classified, retryable I/O/network/timeout failure.
	ErrTransient = errors.New("acorndb: transient failure")

	// ErrCircuitOpen is returned by a resilient trunk wrapper while its
	// circuit breaker is open.
	ErrCircuitOpen = errors.New("acorndb: circuit breaker open")
)

// PolicyViolation wraps ErrPolicyViolation with the name of the policy that
// denied the operation, so callers can report it without string-parsing.
type PolicyViolation struct {
	PolicyName string
	Reason     string
}

func (e *PolicyViolation) Error() string {
	if e.Reason == "" {
		return "acorndb: policy violation: " + e.PolicyName
	}
	return "acorndb: policy violation: " + e.PolicyName + ": " + e.Reason
}

func (e *PolicyViolation) Unwrap() error { return ErrPolicyViolation }

// ChainIntegrity wraps ErrChainIntegrity with the first tampered index.
type ChainIntegrity struct {
	Index  int
	Reason string
}

func (e *ChainIntegrity) Error() string {
	return "acorndb: chain integrity failure at index " + strconv.Itoa(e.Index) + ": " + e.Reason
}

func (e *ChainIntegrity) Unwrap() error { return ErrChainIntegrity }
