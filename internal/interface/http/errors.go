package httpservice

import (
	"errors"
	"net/http"

	"github.com/13x54n/multiverse/internal/core/application"
	"github.com/13x54n/multiverse/internal/core/domain"
)

// errorCodes maps sentinel errors to stable codes. Wrapping sentinels come
// before the ones they wrap.
var errorCodes = []struct {
	err  error
	code string
}{
	{application.ErrDestinationPending, "DESTINATION_PENDING"},
	{domain.ErrTimelockOverflow, "TIMELOCK_OVERFLOW"},
	{domain.ErrAlreadyWithdrawn, "ALREADY_WITHDRAWN"},
	{domain.ErrAlreadyCancelled, "ALREADY_CANCELLED"},
	{domain.ErrInsufficientBalance, "INSUFFICIENT_BALANCE"},
	{domain.ErrInvalidAmount, "INVALID_AMOUNT"},
	{domain.ErrInvalidDeadline, "INVALID_DEADLINE"},
	{domain.ErrInvalidTimelock, "INVALID_TIMELOCK"},
	{domain.ErrUnsupportedChain, "UNSUPPORTED_CHAIN"},
	{domain.ErrSameChain, "SAME_CHAIN"},
	{domain.ErrOrderExists, "ORDER_EXISTS"},
	{domain.ErrAlreadyExists, "ESCROW_EXISTS"},
	{domain.ErrInvalidParams, "INVALID_PARAMS"},
	{domain.ErrAmountExceedsRemaining, "AMOUNT_EXCEEDS_REMAINING"},
	{domain.ErrUnauthorized, "UNAUTHORIZED"},
	{domain.ErrReentrantCall, "REENTRANT_CALL"},
	{domain.ErrNotActive, "NOT_ACTIVE"},
	{domain.ErrOrderNotFound, "ORDER_NOT_FOUND"},
	{domain.ErrEscrowNotFound, "ESCROW_NOT_FOUND"},
	{domain.ErrEscrowMismatch, "ESCROW_MISMATCH"},
	{domain.ErrExpired, "EXPIRED"},
	{domain.ErrTimelockNotExpired, "TIMELOCK_NOT_EXPIRED"},
	{domain.ErrCannotCancelYet, "CANNOT_CANCEL_YET"},
	{domain.ErrEmergencyDelayNotElapsed, "EMERGENCY_DELAY_NOT_ELAPSED"},
	{domain.ErrInvalidSecret, "INVALID_SECRET"},
	{domain.ErrTransferFailed, "TRANSFER_FAILED"},
}

func errorCode(err error) string {
	for _, c := range errorCodes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return "INTERNAL"
}

func toErrorResponse(err error) errorResponse {
	return errorResponse{
		Code:    errorCode(err),
		Kind:    domain.KindOf(err).String(),
		Message: err.Error(),
	}
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, domain.ErrOrderNotFound), errors.Is(err, domain.ErrEscrowNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrReentrantCall):
		return http.StatusConflict
	}

	switch domain.KindOf(err) {
	case domain.ErrorKindValidation, domain.ErrorKindCrypto:
		return http.StatusBadRequest
	case domain.ErrorKindAuthorization:
		return http.StatusForbidden
	case domain.ErrorKindState, domain.ErrorKindTemporal:
		return http.StatusConflict
	case domain.ErrorKindTransfer:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
