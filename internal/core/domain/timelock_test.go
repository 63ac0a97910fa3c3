package domain_test

import (
	"math"
	"testing"

	"github.com/13x54n/multiverse/internal/core/domain"
	"github.com/stretchr/testify/require"
)

func TestTimelockPolicy(t *testing.T) {
	t.Run("expiry", func(t *testing.T) {
		expiry, err := domain.TimelockExpiry(1000, 1800)
		require.NoError(t, err)
		require.Equal(t, uint64(2800), expiry)

		_, err = domain.TimelockExpiry(1000, 0)
		require.ErrorIs(t, err, domain.ErrInvalidTimelock)

		_, err = domain.TimelockExpiry(math.MaxUint64-10, 11)
		require.ErrorIs(t, err, domain.ErrTimelockOverflow)
		require.ErrorIs(t, err, domain.ErrInvalidTimelock)

		expiry, err = domain.TimelockExpiry(math.MaxUint64-10, 10)
		require.NoError(t, err)
		require.Equal(t, uint64(math.MaxUint64), expiry)
	})

	t.Run("is expired", func(t *testing.T) {
		fixtures := []struct {
			createdAt, duration, now uint64
			expected                 bool
			phase                    domain.EscrowPhase
		}{
			{1000, 1800, 1000, false, domain.EscrowPrivatePhase},
			{1000, 1800, 2799, false, domain.EscrowPrivatePhase},
			{1000, 1800, 2800, false, domain.EscrowPrivatePhase},
			{1000, 1800, 2801, true, domain.EscrowPublicPhase},
			{math.MaxUint64 - 1, 10, math.MaxUint64, false, domain.EscrowPrivatePhase},
		}
		for _, f := range fixtures {
			require.Equal(t, f.expected, domain.IsExpired(f.createdAt, f.duration, f.now))
			require.Equal(t, f.phase, domain.PhaseAt(f.createdAt, f.duration, f.now))
		}
	})

	t.Run("is before deadline", func(t *testing.T) {
		require.True(t, domain.IsBeforeDeadline(100, 99))
		require.True(t, domain.IsBeforeDeadline(100, 100))
		require.False(t, domain.IsBeforeDeadline(100, 101))
	})
}
