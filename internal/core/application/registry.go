package application

import (
	"context"
	"errors"
	"fmt"

	"github.com/13x54n/multiverse/internal/core/domain"
	"github.com/13x54n/multiverse/internal/core/ports"
	"github.com/ethereum/go-ethereum/common"
	log "github.com/sirupsen/logrus"
)

type orderRegistry struct {
	*service
}

// CreateOrder locks amount of the source token and the safety deposit of the
// maker into the order vault.
func (r *orderRegistry) CreateOrder(
	ctx context.Context, req CreateOrderRequest,
) (*domain.Order, error) {
	if req.Caller != req.Maker {
		return nil, fmt.Errorf("%w: only the maker can create its order", domain.ErrUnauthorized)
	}
	c, err := r.getSupportedChain(req.SrcChainId)
	if err != nil {
		return nil, err
	}
	if !r.policy.IsSupportedChain(req.DstChainId) {
		return nil, fmt.Errorf("%w: %d", domain.ErrUnsupportedChain, req.DstChainId)
	}
	if req.SrcChainId == req.DstChainId {
		return nil, domain.ErrSameChain
	}
	if err := r.checkAmount(req.Amount); err != nil {
		return nil, err
	}

	hash, err := domain.OrderHash(req.OrderParams)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidParams, err)
	}

	order := domain.NewOrder()
	if err := c.execute(ctx, "create_order", []string{orderKey(hash)}, func(tx *unitOfWork) error {
		if _, err := tx.getOrder(hash); err == nil {
			return fmt.Errorf("%w: %s", domain.ErrOrderExists, hash)
		} else if !errors.Is(err, domain.ErrOrderNotFound) {
			return err
		}

		if _, err := order.Create(req.OrderParams, tx.now()); err != nil {
			return err
		}
		tx.trackOrder(order)

		vault := domain.OrderVaultAddress(r.registryAddr, order.Hash)
		tx.transfer(
			ports.Transfer{Asset: order.SrcToken, From: order.Maker, To: vault, Amount: order.Amount},
			ports.Transfer{
				Asset: domain.NativeToken, From: order.Maker, To: vault, Amount: order.SafetyDeposit,
			},
		)
		return nil
	}); err != nil {
		return nil, err
	}

	log.Infof("created order %s on chain %d", order.Hash, c.id)
	return order, nil
}

// Fill records a fill against a destination escrow the caller already funded
// at the address predicted for the next fill of the order. Funds are never
// released for a destination escrow that cannot be verified.
func (r *orderRegistry) Fill(ctx context.Context, req FillRequest) (*domain.Order, error) {
	if !r.policy.IsAuthorizedResolver(req.Caller) {
		return nil, fmt.Errorf("%w: %s is not an authorized resolver", domain.ErrUnauthorized, req.Caller)
	}
	if err := r.checkAmount(req.Amount); err != nil {
		return nil, err
	}
	c, err := r.getChain(req.ChainId)
	if err != nil {
		return nil, err
	}
	order, err := c.repoManager.Orders().GetOrder(ctx, req.OrderHash)
	if err != nil {
		return nil, err
	}
	dst, err := r.getSupportedChain(order.DstChainId)
	if err != nil {
		return nil, err
	}

	fillIndex := order.NextFillIndex()
	dstEscrow, _ := r.escrows.predict(order.Hash, order.Hashlock, fillIndex, domain.EscrowRoleDestination)
	if req.DstEscrow != dstEscrow {
		return nil, fmt.Errorf(
			"%w: destination escrow of fill %d is at %s, got %s",
			domain.ErrEscrowMismatch, fillIndex, dstEscrow, req.DstEscrow,
		)
	}
	if _, err := r.resolver.VerifyEscrow(
		ctx, dst.id, dstEscrow, r.resolver.expectedDestination(order, req.Caller, req.Amount),
	); err != nil {
		return nil, err
	}

	filled, _, err := r.fill(ctx, req, func(o *domain.Order, index uint32) (common.Address, error) {
		if index != fillIndex {
			return common.Address{}, fmt.Errorf(
				"%w: order %s moved on to fill %d", domain.ErrEscrowMismatch, o.Hash, index,
			)
		}
		return dstEscrow, nil
	})
	return filled, err
}

// fill releases the filled amount from the vault to the taker and, on the
// last fill, the safety deposit back to the maker. dstEscrowFor derives the
// destination escrow recorded with the fill at the index it gets assigned.
func (r *orderRegistry) fill(
	ctx context.Context, req FillRequest,
	dstEscrowFor func(order *domain.Order, fillIndex uint32) (common.Address, error),
) (*domain.Order, *domain.OrderFilled, error) {
	if !r.policy.IsAuthorizedResolver(req.Caller) {
		return nil, nil, fmt.Errorf("%w: %s is not an authorized resolver", domain.ErrUnauthorized, req.Caller)
	}
	c, err := r.getChain(req.ChainId)
	if err != nil {
		return nil, nil, err
	}

	var (
		order  *domain.Order
		filled domain.OrderFilled
	)
	if err := c.execute(ctx, "fill_order", []string{orderKey(req.OrderHash)}, func(tx *unitOfWork) error {
		o, err := tx.getOrder(req.OrderHash)
		if err != nil {
			return err
		}
		dstEscrow, err := dstEscrowFor(o, o.NextFillIndex())
		if err != nil {
			return err
		}
		events, err := o.Fill(req.Taker, req.Caller, req.Amount, req.Secret, dstEscrow, tx.now())
		if err != nil {
			return err
		}
		order = o
		filled = events[0].(domain.OrderFilled)

		vault := domain.OrderVaultAddress(r.registryAddr, o.Hash)
		tx.transfer(
			ports.Transfer{Asset: o.SrcToken, From: vault, To: filled.Taker, Amount: filled.Amount},
			ports.Transfer{Asset: domain.NativeToken, From: vault, To: o.Maker, Amount: filled.DepositRefund},
		)
		return nil
	}); err != nil {
		return nil, nil, err
	}

	log.Infof(
		"filled %s of order %s (fill %d), remaining %s",
		filled.Amount, order.Hash, filled.FillIndex, filled.Remaining,
	)
	return order, &filled, nil
}

func (r *orderRegistry) CancelOrder(
	ctx context.Context, chainId uint64, orderHash common.Hash, caller common.Address,
) (*domain.Order, error) {
	c, err := r.getChain(chainId)
	if err != nil {
		return nil, err
	}

	var order *domain.Order
	if err := c.execute(ctx, "cancel_order", []string{orderKey(orderHash)}, func(tx *unitOfWork) error {
		o, err := tx.getOrder(orderHash)
		if err != nil {
			return err
		}
		event, err := o.Cancel(caller, tx.now())
		if err != nil {
			return err
		}
		order = o
		cancelled := event.(domain.OrderCancelled)

		vault := domain.OrderVaultAddress(r.registryAddr, o.Hash)
		tx.transfer(
			ports.Transfer{Asset: o.SrcToken, From: vault, To: o.Maker, Amount: cancelled.Refund},
			ports.Transfer{Asset: domain.NativeToken, From: vault, To: o.Maker, Amount: cancelled.Deposit},
		)
		return nil
	}); err != nil {
		return nil, err
	}

	log.Infof("cancelled order %s by %s", order.Hash, caller)
	return order, nil
}

func (r *orderRegistry) GetOrder(
	ctx context.Context, chainId uint64, orderHash common.Hash,
) (*domain.Order, error) {
	c, err := r.getChain(chainId)
	if err != nil {
		return nil, err
	}
	return c.repoManager.Orders().GetOrder(ctx, orderHash)
}

func (r *orderRegistry) ListActiveOrders(ctx context.Context, chainId uint64) ([]domain.Order, error) {
	c, err := r.getChain(chainId)
	if err != nil {
		return nil, err
	}
	return c.repoManager.Orders().GetActiveOrders(ctx)
}
