package inmemoryledger_test

import (
	"context"
	"errors"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/13x54n/multiverse/internal/core/domain"
	"github.com/13x54n/multiverse/internal/core/ports"
	inmemoryledger "github.com/13x54n/multiverse/internal/infrastructure/ledger/inmemory"
	"github.com/benbjohnson/clock"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

var (
	token = common.HexToAddress("0xaa")
	alice = common.HexToAddress("0x01")
	bob   = common.HexToAddress("0x02")
	carol = common.HexToAddress("0x03")
)

func TestLedger(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewMock()
	clk.Set(time.Unix(1_700_000_000, 0))

	ledger := inmemoryledger.NewLedger(1, clk)
	require.Equal(t, uint64(1), ledger.ChainId())
	require.Equal(t, uint64(1_700_000_000), ledger.Now())
	clk.Add(10 * time.Second)
	require.Equal(t, uint64(1_700_000_010), ledger.Now())

	require.NoError(t, ledger.Mint(token, alice, big.NewInt(100)))
	require.Error(t, ledger.Mint(token, alice, big.NewInt(0)))

	t.Run("transfer", func(t *testing.T) {
		err := ledger.Transfer(ctx,
			ports.Transfer{Asset: token, From: alice, To: bob, Amount: big.NewInt(60)},
			ports.Transfer{Asset: token, From: bob, To: carol, Amount: big.NewInt(10)},
		)
		require.NoError(t, err)
		requireBalance(t, ledger, alice, 40)
		requireBalance(t, ledger, bob, 50)
		requireBalance(t, ledger, carol, 10)
	})

	t.Run("all or nothing", func(t *testing.T) {
		transfers := []ports.Transfer{
			{Asset: token, From: alice, To: bob, Amount: big.NewInt(40)},
			{Asset: token, From: carol, To: bob, Amount: big.NewInt(11)},
		}
		err := ledger.Validate(ctx, transfers...)
		require.ErrorIs(t, err, domain.ErrInsufficientBalance)
		require.ErrorIs(t, err, domain.ErrTransferFailed)

		err = ledger.Transfer(ctx, transfers...)
		require.ErrorIs(t, err, domain.ErrTransferFailed)
		requireBalance(t, ledger, alice, 40)
		requireBalance(t, ledger, bob, 50)
		requireBalance(t, ledger, carol, 10)
	})

	t.Run("hook revert", func(t *testing.T) {
		calls := 0
		ledger.SetTransferHook(func(ctx context.Context, transfer ports.Transfer) error {
			calls++
			if transfer.To == carol {
				return errors.New("rejected")
			}
			return nil
		})
		defer ledger.SetTransferHook(nil)

		err := ledger.Transfer(ctx,
			ports.Transfer{Asset: token, From: alice, To: bob, Amount: big.NewInt(5)},
			ports.Transfer{Asset: token, From: alice, To: carol, Amount: big.NewInt(5)},
		)
		require.ErrorIs(t, err, domain.ErrTransferFailed)
		require.Equal(t, 2, calls)
		requireBalance(t, ledger, alice, 40)
		requireBalance(t, ledger, bob, 50)
		requireBalance(t, ledger, carol, 10)
	})
}

func TestGenesis(t *testing.T) {
	path := filepath.Join(t.TempDir(), "genesis.json")
	genesis := `[
		{"chainId": 1, "asset": "0x00000000000000000000000000000000000000aa", "account": "0x0000000000000000000000000000000000000001", "amount": "1.5", "decimals": 18},
		{"chainId": 1337, "asset": "0x00000000000000000000000000000000000000aa", "account": "0x0000000000000000000000000000000000000001", "amount": "7", "decimals": 0}
	]`
	require.NoError(t, os.WriteFile(path, []byte(genesis), 0600))

	allocations, err := inmemoryledger.ReadGenesis(path)
	require.NoError(t, err)
	require.Len(t, allocations, 2)

	ledger := inmemoryledger.NewLedger(1, nil)
	require.NoError(t, ledger.ApplyGenesis(allocations))

	balance, err := ledger.BalanceOf(context.Background(), token, alice)
	require.NoError(t, err)
	require.Equal(t, "1500000000000000000", balance.String())

	_, err = inmemoryledger.Allocation{Amount: "0.1", Decimals: 0}.BaseUnits()
	require.Error(t, err)
	_, err = inmemoryledger.Allocation{Amount: "abc"}.BaseUnits()
	require.Error(t, err)
}

func TestPersistentLedger(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	allocations := []inmemoryledger.Allocation{
		{ChainId: 1, Asset: token, Account: alice, Amount: "100"},
		{ChainId: 1, Asset: token, Account: bob, Amount: "20"},
		{ChainId: 2, Asset: token, Account: carol, Amount: "50"},
	}

	ledger, err := inmemoryledger.OpenLedger(1, nil, dir, nil)
	require.NoError(t, err)
	require.NoError(t, ledger.ApplyGenesis(allocations))
	require.NoError(t, ledger.Transfer(ctx,
		ports.Transfer{Asset: token, From: alice, To: carol, Amount: big.NewInt(30)},
	))
	ledger.Close()

	ledger, err = inmemoryledger.OpenLedger(1, nil, dir, nil)
	require.NoError(t, err)
	defer ledger.Close()
	requireBalance(t, ledger, alice, 70)
	requireBalance(t, ledger, bob, 20)
	requireBalance(t, ledger, carol, 30)

	// genesis is minted once per datadir
	require.NoError(t, ledger.ApplyGenesis(allocations))
	requireBalance(t, ledger, alice, 70)
	requireBalance(t, ledger, bob, 20)

	err = ledger.Transfer(ctx,
		ports.Transfer{Asset: token, From: carol, To: bob, Amount: big.NewInt(31)},
	)
	require.ErrorIs(t, err, domain.ErrInsufficientBalance)
	requireBalance(t, ledger, carol, 30)
}

func requireBalance(t *testing.T, ledger *inmemoryledger.Ledger, account common.Address, expected int64) {
	balance, err := ledger.BalanceOf(context.Background(), token, account)
	require.NoError(t, err)
	require.Equal(t, expected, balance.Int64())
}
