package inmemoryledger

import (
	"encoding/json"
	"fmt"
	"math/big"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

type Allocation struct {
	ChainId  uint64         `json:"chainId"`
	Asset    common.Address `json:"asset"`
	Account  common.Address `json:"account"`
	Amount   string         `json:"amount"`
	Decimals int32          `json:"decimals"`
}

// BaseUnits converts the human readable amount into base units.
func (a Allocation) BaseUnits() (*big.Int, error) {
	amount, err := decimal.NewFromString(a.Amount)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %s", a.Amount, err)
	}
	amount = amount.Shift(a.Decimals)
	if !amount.IsInteger() {
		return nil, fmt.Errorf("amount %q has more than %d decimals", a.Amount, a.Decimals)
	}
	if amount.Sign() <= 0 {
		return nil, fmt.Errorf("amount %q must be greater than 0", a.Amount)
	}
	return amount.BigInt(), nil
}

func ReadGenesis(path string) ([]Allocation, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read genesis file: %s", err)
	}
	allocations := make([]Allocation, 0)
	if err := json.Unmarshal(buf, &allocations); err != nil {
		return nil, fmt.Errorf("failed to parse genesis file: %s", err)
	}
	return allocations, nil
}

// ApplyGenesis mints every allocation targeting this ledger's chain in a
// single batch. A persistent ledger applies its genesis only once, later
// calls are no-ops.
func (l *Ledger) ApplyGenesis(allocations []Allocation) error {
	l.lock.Lock()
	defer l.lock.Unlock()

	if l.store != nil {
		applied, err := l.store.genesisApplied()
		if err != nil {
			return err
		}
		if applied {
			return nil
		}
	}

	updated := make(map[balanceKey]*big.Int)
	for _, a := range allocations {
		if a.ChainId != l.chainId {
			continue
		}
		amount, err := a.BaseUnits()
		if err != nil {
			return err
		}
		key := balanceKey{a.Asset, a.Account}
		balance, ok := updated[key]
		if !ok {
			balance = new(big.Int).Set(l.balanceOf(a.Asset, a.Account))
		}
		updated[key] = balance.Add(balance, amount)
	}

	_, err := l.apply(updated, true)
	return err
}
