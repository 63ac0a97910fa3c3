package inmemoryledger

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/13x54n/multiverse/internal/core/domain"
	"github.com/13x54n/multiverse/internal/core/ports"
	"github.com/benbjohnson/clock"
	"github.com/dgraph-io/badger/v4"
	"github.com/ethereum/go-ethereum/common"
)

// TransferHook is invoked for every executed transfer, after balances are
// updated. Returning an error reverts the whole batch.
type TransferHook func(ctx context.Context, transfer ports.Transfer) error

// Ledger simulates the balances of a single chain. Balances are served from
// memory and, if the ledger was opened with a datadir, written through to a
// badger store before being applied.
type Ledger struct {
	chainId uint64
	clock   clock.Clock

	lock     *sync.RWMutex
	balances map[common.Address]map[common.Address]*big.Int // asset -> account -> balance
	store    *balanceStore

	hookLock *sync.RWMutex
	hook     TransferHook
}

// NewLedger returns a ledger whose balances live only in memory.
func NewLedger(chainId uint64, clk clock.Clock) *Ledger {
	if clk == nil {
		clk = clock.New()
	}
	return &Ledger{
		chainId:  chainId,
		clock:    clk,
		lock:     &sync.RWMutex{},
		balances: make(map[common.Address]map[common.Address]*big.Int),
		hookLock: &sync.RWMutex{},
	}
}

// OpenLedger returns a ledger persisting its balances under dir and restores
// the ones already stored there.
func OpenLedger(chainId uint64, clk clock.Clock, dir string, logger badger.Logger) (*Ledger, error) {
	store, err := openBalanceStore(dir, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open balance store of chain %d: %s", chainId, err)
	}
	balances, err := store.load()
	if err != nil {
		store.close()
		return nil, fmt.Errorf("failed to restore balances of chain %d: %s", chainId, err)
	}

	l := NewLedger(chainId, clk)
	l.store = store
	for k, v := range balances {
		l.setBalance(k.asset, k.account, v)
	}
	return l, nil
}

func (l *Ledger) ChainId() uint64 {
	return l.chainId
}

func (l *Ledger) Now() uint64 {
	return uint64(l.clock.Now().Unix())
}

func (l *Ledger) Clock() clock.Clock {
	return l.clock
}

func (l *Ledger) Close() {
	if l.store != nil {
		l.store.close()
	}
}

func (l *Ledger) SetTransferHook(hook TransferHook) {
	l.hookLock.Lock()
	defer l.hookLock.Unlock()
	l.hook = hook
}

func (l *Ledger) Mint(asset, account common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("%w: mint amount must be greater than 0", domain.ErrInvalidAmount)
	}

	l.lock.Lock()
	defer l.lock.Unlock()

	key := balanceKey{asset, account}
	_, err := l.apply(map[balanceKey]*big.Int{
		key: new(big.Int).Add(l.balanceOf(asset, account), amount),
	}, false)
	return err
}

func (l *Ledger) BalanceOf(
	_ context.Context, asset, account common.Address,
) (*big.Int, error) {
	l.lock.RLock()
	defer l.lock.RUnlock()

	return new(big.Int).Set(l.balanceOf(asset, account)), nil
}

func (l *Ledger) Validate(_ context.Context, transfers ...ports.Transfer) error {
	l.lock.RLock()
	defer l.lock.RUnlock()

	_, err := l.simulate(transfers)
	return err
}

func (l *Ledger) Transfer(ctx context.Context, transfers ...ports.Transfer) error {
	if len(transfers) == 0 {
		return nil
	}

	l.lock.Lock()
	updated, err := l.simulate(transfers)
	if err != nil {
		l.lock.Unlock()
		return err
	}
	previous, err := l.apply(updated, false)
	l.lock.Unlock()
	if err != nil {
		return fmt.Errorf("%w: %s", domain.ErrTransferFailed, err)
	}

	l.hookLock.RLock()
	hook := l.hook
	l.hookLock.RUnlock()
	if hook == nil {
		return nil
	}

	for _, transfer := range transfers {
		if err := hook(ctx, transfer); err != nil {
			l.lock.Lock()
			_, revertErr := l.apply(previous, false)
			l.lock.Unlock()
			if revertErr != nil {
				return fmt.Errorf(
					"%w: receiver rejected transfer: %s, failed to revert: %s",
					domain.ErrTransferFailed, err, revertErr,
				)
			}
			return fmt.Errorf("%w: receiver rejected transfer: %s", domain.ErrTransferFailed, err)
		}
	}
	return nil
}

type balanceKey struct {
	asset   common.Address
	account common.Address
}

// simulate returns the resulting balances of the touched accounts without
// applying them. Transfers are applied in order so a batch may route value
// through an intermediate account.
func (l *Ledger) simulate(transfers []ports.Transfer) (map[balanceKey]*big.Int, error) {
	updated := make(map[balanceKey]*big.Int)
	get := func(k balanceKey) *big.Int {
		if v, ok := updated[k]; ok {
			return v
		}
		return new(big.Int).Set(l.balanceOf(k.asset, k.account))
	}

	for _, t := range transfers {
		if t.Amount == nil || t.Amount.Sign() < 0 {
			return nil, fmt.Errorf("%w: invalid transfer amount", domain.ErrTransferFailed)
		}
		if t.Amount.Sign() == 0 || t.From == t.To {
			continue
		}
		from := balanceKey{t.Asset, t.From}
		to := balanceKey{t.Asset, t.To}

		fromBalance := get(from)
		if fromBalance.Cmp(t.Amount) < 0 {
			return nil, fmt.Errorf(
				"%w: %s holds %s of %s, needs %s",
				domain.ErrInsufficientBalance, t.From, fromBalance, t.Asset, t.Amount,
			)
		}
		updated[from] = new(big.Int).Sub(fromBalance, t.Amount)
		updated[to] = new(big.Int).Add(get(to), t.Amount)
	}
	return updated, nil
}

// apply stores the given balances, then sets them in memory, and returns the
// ones they replaced. Nothing changes if the store rejects the batch.
func (l *Ledger) apply(
	balances map[balanceKey]*big.Int, markGenesis bool,
) (map[balanceKey]*big.Int, error) {
	if l.store != nil {
		if err := l.store.save(balances, markGenesis); err != nil {
			return nil, err
		}
	}

	previous := make(map[balanceKey]*big.Int, len(balances))
	for k, v := range balances {
		previous[k] = l.balanceOf(k.asset, k.account)
		l.setBalance(k.asset, k.account, v)
	}
	return previous, nil
}

func (l *Ledger) balanceOf(asset, account common.Address) *big.Int {
	if accounts, ok := l.balances[asset]; ok {
		if balance, ok := accounts[account]; ok {
			return balance
		}
	}
	return new(big.Int)
}

func (l *Ledger) setBalance(asset, account common.Address, amount *big.Int) {
	if _, ok := l.balances[asset]; !ok {
		l.balances[asset] = make(map[common.Address]*big.Int)
	}
	l.balances[asset][account] = amount
}
