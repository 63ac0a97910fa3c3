package domain_test

import (
	"math"
	"math/big"
	"testing"

	"github.com/13x54n/multiverse/internal/core/domain"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

const publicCancelDelay = uint64(600)

func testEscrowParams(role domain.EscrowRole) domain.EscrowParams {
	orderHash, _ := domain.OrderHash(testOrderParams())
	salt := domain.EscrowSalt(orderHash, hashlock, 0)
	depositor, beneficiary := maker, resolver
	if role == domain.EscrowRoleDestination {
		depositor, beneficiary = resolver, maker
	}
	return domain.EscrowParams{
		ChainId:           1,
		Address:           domain.EscrowAddress(factory, orderHash, salt, role),
		OrderHash:         orderHash,
		Salt:              salt,
		Role:              role,
		Depositor:         depositor,
		Beneficiary:       beneficiary,
		Token:             srcToken,
		Amount:            eth(1, 1),
		SafetyDeposit:     eth(1, 100),
		Hashlock:          hashlock,
		Timelock:          timelock,
		PublicCancelDelay: publicCancelDelay,
	}
}

func newActiveEscrow(t *testing.T, role domain.EscrowRole) *domain.Escrow {
	escrow := domain.NewEscrow()
	_, err := escrow.Create(testEscrowParams(role), now)
	require.NoError(t, err)
	return escrow
}

func TestEscrow(t *testing.T) {
	testCreateEscrow(t)

	testWithdrawEscrow(t)

	testPublicWithdrawEscrow(t)

	testCancelEscrow(t)

	testPublicCancelEscrow(t)

	testEmergencyWithdrawEscrow(t)

	testEscrowTerminalStates(t)
}

func testCreateEscrow(t *testing.T) {
	t.Run("create", func(t *testing.T) {
		t.Run("valid", func(t *testing.T) {
			escrow := domain.NewEscrow()
			require.Empty(t, escrow.Events())

			params := testEscrowParams(domain.EscrowRoleSource)
			event, err := escrow.Create(params, now)
			require.NoError(t, err)
			require.Equal(t, domain.EventTypeEscrowCreated, event.GetType())
			require.Equal(t, domain.EscrowTopic, event.GetTopic())
			require.True(t, escrow.IsActive())
			require.Equal(t, params.Address, escrow.Address)
			require.Equal(t, now, escrow.CreatedAt)
			require.Equal(t, now+timelock, escrow.Expiry())
			require.Equal(t, now+timelock+publicCancelDelay, escrow.PublicCancelAt())
			require.Equal(t, domain.EscrowPrivatePhase, escrow.Phase(now+timelock))
			require.Equal(t, domain.EscrowPublicPhase, escrow.Phase(now+timelock+1))

			replayed := domain.NewEscrowFromEvents(escrow.Events())
			require.True(t, replayed.IsActive())
			require.Equal(t, escrow.Address, replayed.Address)
			require.Equal(t, escrow.Amount, replayed.Amount)
		})

		t.Run("invalid", func(t *testing.T) {
			fixtures := []struct {
				mutate      func(p *domain.EscrowParams)
				expectedErr error
			}{
				{func(p *domain.EscrowParams) { p.Amount = big.NewInt(0) }, domain.ErrInvalidAmount},
				{func(p *domain.EscrowParams) { p.Amount = big.NewInt(-5) }, domain.ErrInvalidAmount},
				{func(p *domain.EscrowParams) { p.Timelock = 0 }, domain.ErrInvalidTimelock},
				{func(p *domain.EscrowParams) { p.Timelock = math.MaxUint64 }, domain.ErrTimelockOverflow},
				{func(p *domain.EscrowParams) { p.PublicCancelDelay = math.MaxUint64 }, domain.ErrTimelockOverflow},
				{func(p *domain.EscrowParams) { p.Address = common.Address{} }, domain.ErrInvalidParams},
				{func(p *domain.EscrowParams) { p.Depositor = common.Address{} }, domain.ErrInvalidParams},
				{func(p *domain.EscrowParams) { p.Beneficiary = common.Address{} }, domain.ErrInvalidParams},
				{func(p *domain.EscrowParams) { p.Hashlock = common.Hash{} }, domain.ErrInvalidParams},
				{func(p *domain.EscrowParams) { p.Role = domain.EscrowRoleUndefined }, domain.ErrInvalidParams},
			}

			for _, f := range fixtures {
				params := testEscrowParams(domain.EscrowRoleSource)
				f.mutate(&params)

				escrow := domain.NewEscrow()
				event, err := escrow.Create(params, now)
				require.ErrorIs(t, err, f.expectedErr)
				require.Nil(t, event)
				require.Empty(t, escrow.Events())
				require.False(t, escrow.IsActive())
			}

			escrow := newActiveEscrow(t, domain.EscrowRoleSource)
			_, err := escrow.Create(testEscrowParams(domain.EscrowRoleSource), now)
			require.ErrorIs(t, err, domain.ErrAlreadyExists)
		})
	})
}

func testWithdrawEscrow(t *testing.T) {
	t.Run("withdraw", func(t *testing.T) {
		t.Run("valid", func(t *testing.T) {
			// source escrow pays the caller supplied recipient
			escrow := newActiveEscrow(t, domain.EscrowRoleSource)
			event, err := escrow.Withdraw(secret, resolver, taker, now+timelock)
			require.NoError(t, err)
			withdrawn, ok := event.(domain.EscrowWithdrawn)
			require.True(t, ok)
			require.Equal(t, taker, withdrawn.Recipient)
			require.Equal(t, maker, withdrawn.DepositTo)
			require.Equal(t, secret, []byte(withdrawn.Secret))
			require.Equal(t, eth(1, 1), withdrawn.Amount)
			require.False(t, withdrawn.Public)
			require.True(t, escrow.IsWithdrawn())
			require.False(t, escrow.IsCancelled())
			require.Equal(t, secret, escrow.Secret)
			require.Equal(t, taker, escrow.PaidTo)

			// recipient defaults to the caller
			escrow = newActiveEscrow(t, domain.EscrowRoleSource)
			event, err = escrow.Withdraw(secret, resolver, common.Address{}, now)
			require.NoError(t, err)
			require.Equal(t, resolver, event.(domain.EscrowWithdrawn).Recipient)

			// destination escrow always pays the beneficiary
			escrow = newActiveEscrow(t, domain.EscrowRoleDestination)
			event, err = escrow.Withdraw(secret, maker, stranger, now+1)
			require.NoError(t, err)
			require.Equal(t, maker, event.(domain.EscrowWithdrawn).Recipient)
			require.Equal(t, resolver, event.(domain.EscrowWithdrawn).DepositTo)
		})

		t.Run("invalid", func(t *testing.T) {
			fixtures := []struct {
				caller      common.Address
				secret      []byte
				now         uint64
				expectedErr error
			}{
				{stranger, secret, now, domain.ErrUnauthorized},
				{maker, secret, now, domain.ErrUnauthorized},
				{resolver, secret, now + timelock + 1, domain.ErrExpired},
				{resolver, wrongSecret, now, domain.ErrInvalidSecret},
				{resolver, nil, now, domain.ErrInvalidSecret},
			}

			for _, f := range fixtures {
				escrow := newActiveEscrow(t, domain.EscrowRoleSource)
				event, err := escrow.Withdraw(f.secret, f.caller, f.caller, f.now)
				require.ErrorIs(t, err, f.expectedErr)
				require.Nil(t, event)
				require.True(t, escrow.IsActive())
				require.Len(t, escrow.Events(), 1)
			}
		})
	})
}

func testPublicWithdrawEscrow(t *testing.T) {
	t.Run("public withdraw", func(t *testing.T) {
		t.Run("valid", func(t *testing.T) {
			escrow := newActiveEscrow(t, domain.EscrowRoleDestination)
			event, err := escrow.PublicWithdraw(secret, stranger, now+timelock+1)
			require.NoError(t, err)
			withdrawn := event.(domain.EscrowWithdrawn)
			require.Equal(t, stranger, withdrawn.Recipient)
			require.Equal(t, stranger, withdrawn.DepositTo)
			require.True(t, withdrawn.Public)
			require.True(t, escrow.IsWithdrawn())
			require.Equal(t, stranger, escrow.PaidTo)
		})

		t.Run("invalid", func(t *testing.T) {
			escrow := newActiveEscrow(t, domain.EscrowRoleDestination)

			_, err := escrow.PublicWithdraw(secret, stranger, now+timelock)
			require.ErrorIs(t, err, domain.ErrTimelockNotExpired)
			_, err = escrow.PublicWithdraw(wrongSecret, stranger, now+timelock+1)
			require.ErrorIs(t, err, domain.ErrInvalidSecret)
			require.True(t, escrow.IsActive())
			require.Len(t, escrow.Events(), 1)
		})
	})
}

func testCancelEscrow(t *testing.T) {
	t.Run("cancel", func(t *testing.T) {
		t.Run("valid", func(t *testing.T) {
			escrow := newActiveEscrow(t, domain.EscrowRoleSource)
			event, err := escrow.Cancel(maker, false, now+timelock+1)
			require.NoError(t, err)
			cancelled := event.(domain.EscrowCancelled)
			require.Equal(t, maker, cancelled.Refunded)
			require.Equal(t, maker, cancelled.DepositTo)
			require.Equal(t, eth(1, 1), cancelled.Amount)
			require.False(t, cancelled.Public)
			require.True(t, escrow.IsCancelled())
			require.False(t, escrow.IsWithdrawn())

			// an authorized role refunds the depositor too
			escrow = newActiveEscrow(t, domain.EscrowRoleSource)
			event, err = escrow.Cancel(resolver, true, now+timelock+1)
			require.NoError(t, err)
			require.Equal(t, maker, event.(domain.EscrowCancelled).Refunded)
			require.Equal(t, resolver, escrow.SettledBy)
		})

		t.Run("invalid", func(t *testing.T) {
			escrow := newActiveEscrow(t, domain.EscrowRoleSource)

			_, err := escrow.Cancel(maker, false, now+timelock-1)
			require.ErrorIs(t, err, domain.ErrTimelockNotExpired)
			_, err = escrow.Cancel(maker, false, now+timelock)
			require.ErrorIs(t, err, domain.ErrTimelockNotExpired)
			_, err = escrow.Cancel(stranger, false, now+timelock+1)
			require.ErrorIs(t, err, domain.ErrUnauthorized)
			require.True(t, escrow.IsActive())
			require.Len(t, escrow.Events(), 1)
		})
	})
}

func testPublicCancelEscrow(t *testing.T) {
	t.Run("public cancel", func(t *testing.T) {
		escrow := newActiveEscrow(t, domain.EscrowRoleSource)

		_, err := escrow.PublicCancel(stranger, now+timelock)
		require.ErrorIs(t, err, domain.ErrTimelockNotExpired)
		_, err = escrow.PublicCancel(stranger, escrow.PublicCancelAt())
		require.ErrorIs(t, err, domain.ErrCannotCancelYet)
		require.True(t, escrow.IsActive())

		event, err := escrow.PublicCancel(stranger, escrow.PublicCancelAt()+1)
		require.NoError(t, err)
		cancelled := event.(domain.EscrowCancelled)
		require.True(t, cancelled.Public)
		require.Equal(t, maker, cancelled.Refunded)
		require.Equal(t, stranger, cancelled.DepositTo)
		require.True(t, escrow.IsCancelled())
	})
}

func testEmergencyWithdrawEscrow(t *testing.T) {
	t.Run("emergency withdraw", func(t *testing.T) {
		const emergencyDelay = uint64(86400)
		admin := factory

		escrow := newActiveEscrow(t, domain.EscrowRoleSource)
		_, err := escrow.EmergencyWithdraw(admin, stranger, emergencyDelay, now+timelock+1)
		require.ErrorIs(t, err, domain.ErrEmergencyDelayNotElapsed)
		_, err = escrow.EmergencyWithdraw(admin, common.Address{}, emergencyDelay, now+timelock+emergencyDelay+1)
		require.ErrorIs(t, err, domain.ErrInvalidParams)
		require.True(t, escrow.IsActive())

		event, err := escrow.EmergencyWithdraw(admin, stranger, emergencyDelay, now+timelock+emergencyDelay+1)
		require.NoError(t, err)
		withdrawn := event.(domain.EscrowWithdrawn)
		require.True(t, withdrawn.Emergency)
		require.Empty(t, withdrawn.Secret)
		require.Equal(t, stranger, withdrawn.Recipient)
		require.True(t, escrow.IsWithdrawn())
		require.True(t, escrow.Emergency)
	})
}

func testEscrowTerminalStates(t *testing.T) {
	t.Run("terminal", func(t *testing.T) {
		withdrawn := newActiveEscrow(t, domain.EscrowRoleSource)
		_, err := withdrawn.Withdraw(secret, resolver, resolver, now)
		require.NoError(t, err)

		cancelled := newActiveEscrow(t, domain.EscrowRoleSource)
		_, err = cancelled.Cancel(maker, false, now+timelock+1)
		require.NoError(t, err)

		later := now + timelock + publicCancelDelay + 86400*2
		fixtures := []struct {
			escrow      *domain.Escrow
			expectedErr error
		}{
			{withdrawn, domain.ErrAlreadyWithdrawn},
			{cancelled, domain.ErrAlreadyCancelled},
		}

		for _, f := range fixtures {
			before := len(f.escrow.Events())
			status := f.escrow.Status

			_, err := f.escrow.Withdraw(secret, resolver, resolver, now)
			require.ErrorIs(t, err, f.expectedErr)
			require.ErrorIs(t, err, domain.ErrNotActive)
			_, err = f.escrow.PublicWithdraw(secret, stranger, later)
			require.ErrorIs(t, err, f.expectedErr)
			_, err = f.escrow.Cancel(maker, true, later)
			require.ErrorIs(t, err, f.expectedErr)
			_, err = f.escrow.PublicCancel(stranger, later)
			require.ErrorIs(t, err, f.expectedErr)
			_, err = f.escrow.EmergencyWithdraw(factory, stranger, 1, later)
			require.ErrorIs(t, err, f.expectedErr)

			require.Len(t, f.escrow.Events(), before)
			require.Equal(t, status, f.escrow.Status)
		}

		_, err = domain.NewEscrow().Withdraw(secret, resolver, resolver, now)
		require.ErrorIs(t, err, domain.ErrNotActive)
	})
}
