package domain

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

type OrderRepository interface {
	AddOrUpdateOrder(ctx context.Context, order Order) error
	GetOrder(ctx context.Context, hash common.Hash) (*Order, error)
	GetActiveOrders(ctx context.Context) ([]Order, error)
	GetAllOrders(ctx context.Context) ([]Order, error)
	RemoveOrder(ctx context.Context, hash common.Hash) error
	Close()
}

type EscrowRepository interface {
	AddOrUpdateEscrow(ctx context.Context, escrow Escrow) error
	GetEscrow(ctx context.Context, address common.Address) (*Escrow, error)
	GetEscrowsByOrder(ctx context.Context, orderHash common.Hash) ([]Escrow, error)
	GetActiveEscrows(ctx context.Context) ([]Escrow, error)
	RemoveEscrow(ctx context.Context, address common.Address) error
	Close()
}
