package application_test

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/13x54n/multiverse/internal/core/application"
	"github.com/13x54n/multiverse/internal/core/domain"
	"github.com/13x54n/multiverse/internal/core/ports"
	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"
)

func TestKeeper(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping keeper test in short mode")
	}

	ctx := context.Background()
	env := newTestEnv(
		t, func() clock.Clock { return clock.New() }, withKeeper, withPublicCancelDelay(1),
	)

	start := uint64(time.Now().Unix())
	params := orderParams(1000)
	params.Deadline = start + 1
	params.Timelock = 1
	order, err := env.svc.Orders().CreateOrder(ctx, application.CreateOrderRequest{
		OrderParams: params,
		Caller:      maker,
	})
	require.NoError(t, err)

	srcReq, _ := lockRequests(order.Hash)
	srcReq.Timelock = 1
	srcReq.SafetyDeposit = big.NewInt(10)
	srcReq.Amount = big.NewInt(500)
	escrow, err := env.svc.Resolver().LockSource(ctx, srcReq)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		o, err := env.svc.Orders().GetOrder(ctx, srcChainId, order.Hash)
		if err != nil || !o.IsCancelled() {
			return false
		}
		e, err := env.svc.Escrows().GetEscrow(ctx, srcChainId, escrow.Address)
		return err == nil && e.IsCancelled()
	}, 10*time.Second, 100*time.Millisecond)

	cancelled, err := env.svc.Orders().GetOrder(ctx, srcChainId, order.Hash)
	require.NoError(t, err)
	require.Equal(t, resolver, cancelled.CancelledBy)

	refunded, err := env.svc.Escrows().GetEscrow(ctx, srcChainId, escrow.Address)
	require.NoError(t, err)
	require.Equal(t, resolver, refunded.SettledBy)
	require.Equal(t, maker, refunded.PaidTo)

	// order and escrow principal back to the maker, the escrow safety
	// deposit to the keeper's resolver
	requireBalance(t, env.src, srcToken, maker, 10_000)
	requireBalance(t, env.src, domain.NativeToken, maker, 990)
	requireBalance(t, env.src, domain.NativeToken, resolver, 1_010)
}

func TestKeeperResumesPendingFills(t *testing.T) {
	ctx := context.Background()
	env := newTestEnvAt(t, t.TempDir(), nil)
	order := env.createOrder(t, 1000)

	env.dst.SetTransferHook(func(context.Context, ports.Transfer) error {
		return errors.New("destination unavailable")
	})
	result, err := env.fillOrder(t, order, 1000)
	require.ErrorIs(t, err, application.ErrDestinationPending)
	env.dst.SetTransferHook(nil)

	// a second service over the same stores resumes the fill on start
	restarted := env.restart(t, withKeeper)
	escrow, err := restarted.Escrows().GetEscrow(ctx, dstChainId, result.DstAddr)
	require.NoError(t, err)
	require.True(t, escrow.IsActive())
	requireBalance(t, env.dst, dstToken, escrow.Address, 1000)
}
