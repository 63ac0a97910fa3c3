package domain

import (
	"errors"
	"fmt"
)

// validation
var (
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrInvalidDeadline  = errors.New("invalid deadline")
	ErrInvalidTimelock  = errors.New("invalid timelock")
	ErrTimelockOverflow = fmt.Errorf("%w: expiry overflows time representation", ErrInvalidTimelock)
	ErrUnsupportedChain = errors.New("unsupported chain")
	ErrSameChain        = errors.New("source and destination chain must differ")
	ErrOrderExists      = errors.New("order already exists")
	ErrAlreadyExists    = errors.New("escrow already exists")
	ErrInvalidParams    = errors.New("invalid params")
)

// authorization
var (
	ErrUnauthorized  = errors.New("unauthorized")
	ErrReentrantCall = errors.New("reentrant call")
)

// state
var (
	ErrNotActive        = errors.New("not active")
	ErrAlreadyWithdrawn = fmt.Errorf("%w: already withdrawn", ErrNotActive)
	ErrAlreadyCancelled = fmt.Errorf("%w: already cancelled", ErrNotActive)
	ErrOrderNotFound    = errors.New("order not found")
	ErrEscrowNotFound   = errors.New("escrow not found")
	ErrEscrowMismatch   = errors.New("escrow does not match expected parameters")
)

// temporal
var (
	ErrExpired                  = errors.New("expired")
	ErrTimelockNotExpired       = errors.New("timelock not expired")
	ErrCannotCancelYet          = errors.New("cannot cancel yet")
	ErrEmergencyDelayNotElapsed = errors.New("emergency delay not elapsed")
)

// crypto
var ErrInvalidSecret = errors.New("invalid secret")

// transfer
var (
	ErrTransferFailed         = errors.New("transfer failed")
	ErrInsufficientBalance    = fmt.Errorf("%w: insufficient balance", ErrTransferFailed)
	ErrAmountExceedsRemaining = errors.New("amount exceeds remaining")
)

const (
	ErrorKindInternal ErrorKind = iota
	ErrorKindValidation
	ErrorKindAuthorization
	ErrorKindState
	ErrorKindTemporal
	ErrorKindCrypto
	ErrorKindTransfer
)

type ErrorKind int

func (k ErrorKind) String() string {
	switch k {
	case ErrorKindValidation:
		return "VALIDATION"
	case ErrorKindAuthorization:
		return "AUTHORIZATION"
	case ErrorKindState:
		return "STATE"
	case ErrorKindTemporal:
		return "TEMPORAL"
	case ErrorKindCrypto:
		return "CRYPTO"
	case ErrorKindTransfer:
		return "TRANSFER"
	default:
		return "INTERNAL"
	}
}

var errorKinds = []struct {
	kind ErrorKind
	errs []error
}{
	{ErrorKindValidation, []error{
		ErrInvalidAmount, ErrInvalidDeadline, ErrInvalidTimelock, ErrUnsupportedChain,
		ErrSameChain, ErrOrderExists, ErrAlreadyExists, ErrInvalidParams,
		ErrAmountExceedsRemaining,
	}},
	{ErrorKindAuthorization, []error{ErrUnauthorized, ErrReentrantCall}},
	{ErrorKindState, []error{
		ErrNotActive, ErrOrderNotFound, ErrEscrowNotFound, ErrEscrowMismatch,
	}},
	{ErrorKindTemporal, []error{
		ErrExpired, ErrTimelockNotExpired, ErrCannotCancelYet, ErrEmergencyDelayNotElapsed,
	}},
	{ErrorKindCrypto, []error{ErrInvalidSecret}},
	{ErrorKindTransfer, []error{ErrTransferFailed}},
}

// KindOf classifies err so that off-chain agents can decide whether to retry,
// wait or give up and cancel.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ErrorKindInternal
	}
	for _, k := range errorKinds {
		for _, target := range k.errs {
			if errors.Is(err, target) {
				return k.kind
			}
		}
	}
	return ErrorKindInternal
}
