package domain_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/13x54n/multiverse/internal/core/domain"
	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	fixtures := []struct {
		err      error
		expected domain.ErrorKind
	}{
		{domain.ErrInvalidAmount, domain.ErrorKindValidation},
		{domain.ErrTimelockOverflow, domain.ErrorKindValidation},
		{fmt.Errorf("%w: order 0x01", domain.ErrOrderExists), domain.ErrorKindValidation},
		{domain.ErrUnauthorized, domain.ErrorKindAuthorization},
		{domain.ErrReentrantCall, domain.ErrorKindAuthorization},
		{domain.ErrAlreadyWithdrawn, domain.ErrorKindState},
		{domain.ErrAlreadyCancelled, domain.ErrorKindState},
		{domain.ErrOrderNotFound, domain.ErrorKindState},
		{domain.ErrCannotCancelYet, domain.ErrorKindTemporal},
		{domain.ErrTimelockNotExpired, domain.ErrorKindTemporal},
		{domain.ErrInvalidSecret, domain.ErrorKindCrypto},
		{domain.ErrInsufficientBalance, domain.ErrorKindTransfer},
		{errors.New("boom"), domain.ErrorKindInternal},
		{nil, domain.ErrorKindInternal},
	}
	for _, f := range fixtures {
		require.Equal(t, f.expected, domain.KindOf(f.err), "%v", f.err)
	}

	require.ErrorIs(t, domain.ErrAlreadyWithdrawn, domain.ErrNotActive)
	require.ErrorIs(t, domain.ErrAlreadyCancelled, domain.ErrNotActive)
	require.NotErrorIs(t, domain.ErrAlreadyWithdrawn, domain.ErrAlreadyCancelled)
}
