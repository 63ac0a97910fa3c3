package application_test

import (
	"context"
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/13x54n/multiverse/internal/core/application"
	"github.com/13x54n/multiverse/internal/core/domain"
	"github.com/13x54n/multiverse/internal/core/ports"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

var escrowOrderHash = common.HexToHash("0xfeed")

func (e *testEnv) createEscrow(t *testing.T, role domain.EscrowRole) *domain.Escrow {
	escrow, err := e.svc.Escrows().CreateEscrow(context.Background(), escrowRequest(role))
	require.NoError(t, err)
	return escrow
}

// escrowRequest locks 1000 of dstToken from the resolver for the maker on
// the destination chain.
func escrowRequest(role domain.EscrowRole) application.CreateEscrowRequest {
	return application.CreateEscrowRequest{
		ChainId:       dstChainId,
		OrderHash:     escrowOrderHash,
		Hashlock:      hashlock,
		Role:          role,
		Caller:        resolver,
		Beneficiary:   maker,
		Token:         dstToken,
		Amount:        big.NewInt(1000),
		SafetyDeposit: big.NewInt(20),
		Timelock:      timelock,
	}
}

func TestCreateEscrow(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)

	predicted, salt, err := env.svc.Escrows().PredictEscrowAddress(
		dstChainId, escrowOrderHash, hashlock, 0, domain.EscrowRoleDestination,
	)
	require.NoError(t, err)
	require.Equal(t, domain.EscrowSalt(escrowOrderHash, hashlock, 0), salt)

	escrow := env.createEscrow(t, domain.EscrowRoleDestination)
	require.Equal(t, predicted, escrow.Address)
	require.True(t, escrow.IsActive())
	require.Equal(t, now, escrow.CreatedAt)
	require.Equal(t, publicCancelDelay, escrow.PublicCancelDelay)
	requireBalance(t, env.dst, dstToken, escrow.Address, 1000)
	requireBalance(t, env.dst, domain.NativeToken, escrow.Address, 20)
	requireBalance(t, env.dst, dstToken, resolver, 9_000)

	got, err := env.svc.Escrows().GetEscrow(ctx, dstChainId, escrow.Address)
	require.NoError(t, err)
	require.Equal(t, escrow.Address, got.Address)

	list, err := env.svc.Escrows().ListEscrowsByOrder(ctx, dstChainId, escrowOrderHash)
	require.NoError(t, err)
	require.Len(t, list, 1)

	_, err = env.svc.Escrows().CreateEscrow(ctx, escrowRequest(domain.EscrowRoleDestination))
	require.ErrorIs(t, err, domain.ErrAlreadyExists)

	fixtures := []struct {
		name        string
		update      func(req *application.CreateEscrowRequest)
		expectedErr error
	}{
		{
			name:        "unsupported chain",
			update:      func(req *application.CreateEscrowRequest) { req.ChainId = 42 },
			expectedErr: domain.ErrUnsupportedChain,
		},
		{
			name:        "below min amount",
			update:      func(req *application.CreateEscrowRequest) { req.Amount = big.NewInt(1) },
			expectedErr: domain.ErrInvalidAmount,
		},
		{
			name:        "missing role",
			update:      func(req *application.CreateEscrowRequest) { req.Role = domain.EscrowRoleUndefined },
			expectedErr: domain.ErrInvalidParams,
		},
		{
			name:        "zero timelock",
			update:      func(req *application.CreateEscrowRequest) { req.FillIndex, req.Timelock = 1, 0 },
			expectedErr: domain.ErrInvalidTimelock,
		},
		{
			name:        "missing beneficiary",
			update:      func(req *application.CreateEscrowRequest) { req.FillIndex, req.Beneficiary = 1, common.Address{} },
			expectedErr: domain.ErrInvalidParams,
		},
		{
			name: "insufficient balance",
			update: func(req *application.CreateEscrowRequest) {
				req.FillIndex, req.Amount = 1, big.NewInt(9_001)
			},
			expectedErr: domain.ErrInsufficientBalance,
		},
	}

	for _, f := range fixtures {
		t.Run(f.name, func(t *testing.T) {
			req := escrowRequest(domain.EscrowRoleDestination)
			f.update(&req)
			_, err := env.svc.Escrows().CreateEscrow(ctx, req)
			require.ErrorIs(t, err, f.expectedErr)
		})
	}

	list, err = env.svc.Escrows().ListEscrowsByOrder(ctx, dstChainId, escrowOrderHash)
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestWithdrawEscrow(t *testing.T) {
	ctx := context.Background()

	t.Run("private window", func(t *testing.T) {
		env := newTestEnv(t, nil)
		escrow := env.createEscrow(t, domain.EscrowRoleDestination)

		_, err := env.svc.Escrows().Withdraw(ctx, dstChainId, escrow.Address, secret, stranger, stranger)
		require.ErrorIs(t, err, domain.ErrUnauthorized)
		_, err = env.svc.Escrows().Withdraw(ctx, dstChainId, escrow.Address, wrongSecret, maker, maker)
		require.ErrorIs(t, err, domain.ErrInvalidSecret)
		_, err = env.svc.Escrows().PublicWithdraw(ctx, dstChainId, escrow.Address, secret, stranger)
		require.ErrorIs(t, err, domain.ErrTimelockNotExpired)
		_, err = env.svc.Escrows().Cancel(ctx, dstChainId, escrow.Address, resolver)
		require.ErrorIs(t, err, domain.ErrTimelockNotExpired)

		// the expiry instant still belongs to the private window
		env.advance(time.Duration(timelock) * time.Second)
		escrow, err = env.svc.Escrows().Withdraw(ctx, dstChainId, escrow.Address, secret, maker, stranger)
		require.NoError(t, err)
		require.True(t, escrow.IsWithdrawn())
		require.Equal(t, secret, escrow.Secret)
		require.Equal(t, maker, escrow.PaidTo)
		requireBalance(t, env.dst, dstToken, maker, 1000)
		requireBalance(t, env.dst, domain.NativeToken, resolver, 1_000)
		requireBalance(t, env.dst, dstToken, escrow.Address, 0)

		env.advance(time.Second)
		_, err = env.svc.Escrows().Withdraw(ctx, dstChainId, escrow.Address, secret, maker, maker)
		require.ErrorIs(t, err, domain.ErrAlreadyWithdrawn)
		_, err = env.svc.Escrows().Cancel(ctx, dstChainId, escrow.Address, resolver)
		require.ErrorIs(t, err, domain.ErrAlreadyWithdrawn)
	})

	t.Run("source escrow pays the recipient", func(t *testing.T) {
		env := newTestEnv(t, nil)
		escrow := env.createEscrow(t, domain.EscrowRoleSource)

		escrow, err := env.svc.Escrows().Withdraw(ctx, dstChainId, escrow.Address, secret, maker, taker)
		require.NoError(t, err)
		require.Equal(t, taker, escrow.PaidTo)
		requireBalance(t, env.dst, dstToken, taker, 1000)
	})

	t.Run("public window", func(t *testing.T) {
		env := newTestEnv(t, nil)
		escrow := env.createEscrow(t, domain.EscrowRoleDestination)

		env.advance(time.Duration(timelock+1) * time.Second)
		_, err := env.svc.Escrows().Withdraw(ctx, dstChainId, escrow.Address, secret, maker, maker)
		require.ErrorIs(t, err, domain.ErrExpired)

		escrow, err = env.svc.Escrows().PublicWithdraw(ctx, dstChainId, escrow.Address, secret, stranger)
		require.NoError(t, err)
		require.True(t, escrow.IsWithdrawn())
		requireBalance(t, env.dst, dstToken, stranger, 1000)
		requireBalance(t, env.dst, domain.NativeToken, stranger, 20)
	})
}

func TestCancelEscrow(t *testing.T) {
	ctx := context.Background()

	t.Run("by depositor", func(t *testing.T) {
		env := newTestEnv(t, nil)
		escrow := env.createEscrow(t, domain.EscrowRoleDestination)

		env.advance(time.Duration(timelock+1) * time.Second)
		_, err := env.svc.Escrows().Cancel(ctx, dstChainId, escrow.Address, stranger)
		require.ErrorIs(t, err, domain.ErrUnauthorized)

		escrow, err = env.svc.Escrows().Cancel(ctx, dstChainId, escrow.Address, resolver)
		require.NoError(t, err)
		require.True(t, escrow.IsCancelled())
		requireBalance(t, env.dst, dstToken, resolver, 10_000)
		requireBalance(t, env.dst, domain.NativeToken, resolver, 1_000)

		_, err = env.svc.Escrows().PublicWithdraw(ctx, dstChainId, escrow.Address, secret, stranger)
		require.ErrorIs(t, err, domain.ErrAlreadyCancelled)
	})

	t.Run("by owner", func(t *testing.T) {
		env := newTestEnv(t, nil)
		escrow := env.createEscrow(t, domain.EscrowRoleDestination)

		env.advance(time.Duration(timelock+1) * time.Second)
		_, err := env.svc.Escrows().Cancel(ctx, dstChainId, escrow.Address, owner)
		require.NoError(t, err)
		requireBalance(t, env.dst, dstToken, resolver, 10_000)
	})

	t.Run("public", func(t *testing.T) {
		env := newTestEnv(t, nil)
		escrow := env.createEscrow(t, domain.EscrowRoleDestination)

		env.advance(time.Duration(timelock+publicCancelDelay) * time.Second)
		_, err := env.svc.Escrows().PublicCancel(ctx, dstChainId, escrow.Address, stranger)
		require.ErrorIs(t, err, domain.ErrCannotCancelYet)

		env.advance(time.Second)
		escrow, err = env.svc.Escrows().PublicCancel(ctx, dstChainId, escrow.Address, stranger)
		require.NoError(t, err)
		require.True(t, escrow.IsCancelled())
		requireBalance(t, env.dst, dstToken, resolver, 10_000)
		requireBalance(t, env.dst, domain.NativeToken, resolver, 980)
		requireBalance(t, env.dst, domain.NativeToken, stranger, 20)
	})
}

func TestEmergencyWithdraw(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)
	escrow := env.createEscrow(t, domain.EscrowRoleDestination)
	admin := env.svc.Admin()

	_, err := admin.EmergencyWithdraw(ctx, nil, dstChainId, escrow.Address, owner)
	require.ErrorIs(t, err, domain.ErrUnauthorized)

	capability, err := admin.RequireAdmin(owner)
	require.NoError(t, err)

	env.advance(time.Duration(timelock+emergencyDelay) * time.Second)
	_, err = admin.EmergencyWithdraw(ctx, capability, dstChainId, escrow.Address, owner)
	require.ErrorIs(t, err, domain.ErrEmergencyDelayNotElapsed)

	env.advance(time.Second)
	escrow, err = admin.EmergencyWithdraw(ctx, capability, dstChainId, escrow.Address, owner)
	require.NoError(t, err)
	require.True(t, escrow.IsWithdrawn())
	require.True(t, escrow.Emergency)
	requireBalance(t, env.dst, dstToken, owner, 1000)
	requireBalance(t, env.dst, domain.NativeToken, owner, 20)
}

func TestReentrancy(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)
	escrow := env.createEscrow(t, domain.EscrowRoleDestination)

	var reentrantErrs []error
	env.dst.SetTransferHook(func(ctx context.Context, transfer ports.Transfer) error {
		if transfer.To != maker {
			return nil
		}
		_, err := env.svc.Escrows().Withdraw(ctx, dstChainId, escrow.Address, secret, maker, maker)
		reentrantErrs = append(reentrantErrs, err)
		_, err = env.svc.Escrows().CreateEscrow(ctx, escrowRequest(domain.EscrowRoleSource))
		reentrantErrs = append(reentrantErrs, err)
		return nil
	})

	escrow, err := env.svc.Escrows().Withdraw(ctx, dstChainId, escrow.Address, secret, maker, maker)
	require.NoError(t, err)
	require.True(t, escrow.IsWithdrawn())

	require.Len(t, reentrantErrs, 2)
	for _, err := range reentrantErrs {
		require.ErrorIs(t, err, domain.ErrReentrantCall)
	}
	requireBalance(t, env.dst, dstToken, maker, 1000)

	list, err := env.svc.Escrows().ListEscrowsByOrder(ctx, dstChainId, escrowOrderHash)
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestTransferFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)
	escrow := env.createEscrow(t, domain.EscrowRoleDestination)

	env.dst.SetTransferHook(func(_ context.Context, transfer ports.Transfer) error {
		if transfer.To == maker {
			return fmt.Errorf("receiver reverted")
		}
		return nil
	})

	_, err := env.svc.Escrows().Withdraw(ctx, dstChainId, escrow.Address, secret, maker, maker)
	require.ErrorIs(t, err, domain.ErrTransferFailed)

	got, err := env.svc.Escrows().GetEscrow(ctx, dstChainId, escrow.Address)
	require.NoError(t, err)
	require.True(t, got.IsActive())
	require.Empty(t, got.Secret)
	requireBalance(t, env.dst, dstToken, escrow.Address, 1000)
	requireBalance(t, env.dst, dstToken, maker, 0)

	// a failed creation leaves no escrow behind
	req := escrowRequest(domain.EscrowRoleDestination)
	req.FillIndex = 1
	env.dst.SetTransferHook(func(_ context.Context, transfer ports.Transfer) error {
		return fmt.Errorf("receiver reverted")
	})
	_, err = env.svc.Escrows().CreateEscrow(ctx, req)
	require.ErrorIs(t, err, domain.ErrTransferFailed)
	address, _, err := env.svc.Escrows().PredictEscrowAddress(
		dstChainId, escrowOrderHash, hashlock, 1, domain.EscrowRoleDestination,
	)
	require.NoError(t, err)
	_, err = env.svc.Escrows().GetEscrow(ctx, dstChainId, address)
	require.ErrorIs(t, err, domain.ErrEscrowNotFound)

	env.dst.SetTransferHook(nil)
	escrow, err = env.svc.Escrows().Withdraw(ctx, dstChainId, escrow.Address, secret, maker, maker)
	require.NoError(t, err)
	require.True(t, escrow.IsWithdrawn())
	requireBalance(t, env.dst, dstToken, maker, 1000)
}

func TestPanicReleasesChain(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)
	escrow := env.createEscrow(t, domain.EscrowRoleDestination)

	env.dst.SetTransferHook(func(context.Context, ports.Transfer) error {
		panic("receiver panicked")
	})
	require.Panics(t, func() {
		// nolint:errcheck
		env.svc.Escrows().Withdraw(ctx, dstChainId, escrow.Address, secret, maker, maker)
	})
	env.dst.SetTransferHook(nil)

	req := escrowRequest(domain.EscrowRoleDestination)
	req.FillIndex = 1
	done := make(chan error, 1)
	go func() {
		_, err := env.svc.Escrows().CreateEscrow(ctx, req)
		done <- err
	}()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("chain still locked after a panic")
	}
}
