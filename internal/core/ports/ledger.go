package ports

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

type Transfer struct {
	Asset  common.Address
	From   common.Address
	To     common.Address
	Amount *big.Int
}

// Ledger is the value-transfer substrate of a single chain. Transfer applies
// all the given transfers or none of them.
type Ledger interface {
	ChainId() uint64
	Now() uint64
	BalanceOf(ctx context.Context, asset, account common.Address) (*big.Int, error)
	Validate(ctx context.Context, transfers ...Transfer) error
	Transfer(ctx context.Context, transfers ...Transfer) error
	Close()
}
