package application

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/13x54n/multiverse/internal/core/domain"
	"github.com/13x54n/multiverse/internal/core/ports"
	"github.com/13x54n/multiverse/internal/metrics"
	"github.com/ethereum/go-ethereum/common"
	log "github.com/sirupsen/logrus"
)

// chain serializes every mutation of a single ledger and its stores.
type chain struct {
	id          uint64
	label       string
	ledger      ports.Ledger
	repoManager ports.RepoManager
	eventRepo   domain.EventRepository
	notifier    ports.Notifier

	lock *sync.Mutex
}

func newChain(
	ledger ports.Ledger, repoManager ports.RepoManager,
	eventRepo domain.EventRepository, notifier ports.Notifier,
) *chain {
	return &chain{
		id:          ledger.ChainId(),
		label:       strconv.FormatUint(ledger.ChainId(), 10),
		ledger:      ledger,
		repoManager: repoManager,
		eventRepo:   eventRepo,
		notifier:    notifier,
		lock:        &sync.Mutex{},
	}
}

// execute runs op inside a unit of work holding the chain lock. Aggregates
// touched by op are persisted before the staged transfers are executed and
// restored if the transfers fail. Events are published once committed.
func (c *chain) execute(
	ctx context.Context, operation string, entities []string, op func(tx *unitOfWork) error,
) (err error) {
	start := time.Now()
	defer func() {
		outcome := "success"
		if err != nil {
			outcome = domain.KindOf(err).String()
		}
		metrics.OperationsTotal.WithLabelValues(c.label, operation, outcome).Inc()
		metrics.OperationDuration.WithLabelValues(c.label, operation).Observe(time.Since(start).Seconds())
	}()

	ctx, release, err := acquireGuard(ctx, c.id, entities...)
	if err != nil {
		return err
	}
	defer release()

	tx := &unitOfWork{
		ctx:     ctx,
		chain:   c,
		orders:  make(map[common.Hash]*domain.Order),
		escrows: make(map[common.Address]*domain.Escrow),
	}

	err = func() error {
		c.lock.Lock()
		defer c.lock.Unlock()

		if err := op(tx); err != nil {
			return err
		}
		return tx.commit()
	}()
	if err != nil {
		return err
	}

	c.publish(ctx, tx)
	return nil
}

func (c *chain) now() uint64 {
	return c.ledger.Now()
}

func (c *chain) publish(ctx context.Context, tx *unitOfWork) {
	all := make([]domain.Event, 0)
	for _, order := range tx.orderList {
		events := order.Events()
		if err := c.eventRepo.Save(ctx, domain.OrderTopic, order.Hash.Hex(), events); err != nil {
			log.WithError(err).Warnf("failed to publish events of order %s", order.Hash)
		}
		all = append(all, events...)
	}
	for _, escrow := range tx.escrowList {
		events := escrow.Events()
		if err := c.eventRepo.Save(ctx, domain.EscrowTopic, escrow.Address.Hex(), events); err != nil {
			log.WithError(err).Warnf("failed to publish events of escrow %s", escrow.Address)
		}
		all = append(all, events...)
	}

	for _, event := range all {
		switch event.GetType() {
		case domain.EventTypeOrderCreated:
			metrics.ActiveOrders.WithLabelValues(c.label).Inc()
		case domain.EventTypeOrderCancelled:
			metrics.ActiveOrders.WithLabelValues(c.label).Dec()
		case domain.EventTypeOrderFilled:
			if e, ok := event.(domain.OrderFilled); ok && e.Remaining.Sign() == 0 {
				metrics.ActiveOrders.WithLabelValues(c.label).Dec()
			}
		case domain.EventTypeEscrowCreated:
			metrics.ActiveEscrows.WithLabelValues(c.label).Inc()
		case domain.EventTypeEscrowWithdrawn, domain.EventTypeEscrowCancelled:
			metrics.ActiveEscrows.WithLabelValues(c.label).Dec()
		}
	}

	if c.notifier == nil || len(all) <= 0 {
		return
	}
	if err := c.notifier.Notify(context.WithoutCancel(ctx), all); err != nil {
		metrics.NotificationsFailed.Add(float64(len(all)))
		log.WithError(err).Warnf("failed to notify %d events on chain %d", len(all), c.id)
	}
}

// unitOfWork stages the aggregates and transfers of a single operation.
type unitOfWork struct {
	ctx   context.Context
	chain *chain

	orders     map[common.Hash]*domain.Order
	orderList  []*domain.Order
	escrows    map[common.Address]*domain.Escrow
	escrowList []*domain.Escrow
	transfers  []ports.Transfer
}

func (tx *unitOfWork) now() uint64 {
	return tx.chain.now()
}

func (tx *unitOfWork) getOrder(hash common.Hash) (*domain.Order, error) {
	if order, ok := tx.orders[hash]; ok {
		return order, nil
	}
	order, err := tx.chain.repoManager.Orders().GetOrder(tx.ctx, hash)
	if err != nil {
		return nil, err
	}
	tx.trackOrder(order)
	return order, nil
}

func (tx *unitOfWork) trackOrder(order *domain.Order) {
	tx.orders[order.Hash] = order
	tx.orderList = append(tx.orderList, order)
}

func (tx *unitOfWork) getEscrow(address common.Address) (*domain.Escrow, error) {
	if escrow, ok := tx.escrows[address]; ok {
		return escrow, nil
	}
	escrow, err := tx.chain.repoManager.Escrows().GetEscrow(tx.ctx, address)
	if err != nil {
		return nil, err
	}
	tx.trackEscrow(escrow)
	return escrow, nil
}

func (tx *unitOfWork) trackEscrow(escrow *domain.Escrow) {
	tx.escrows[escrow.Address] = escrow
	tx.escrowList = append(tx.escrowList, escrow)
}

func (tx *unitOfWork) transfer(transfers ...ports.Transfer) {
	for _, t := range transfers {
		if t.Amount == nil || t.Amount.Sign() <= 0 {
			continue
		}
		tx.transfers = append(tx.transfers, t)
	}
}

func (tx *unitOfWork) commit() error {
	ctx := tx.ctx
	ledger := tx.chain.ledger

	if len(tx.transfers) > 0 {
		if err := ledger.Validate(ctx, tx.transfers...); err != nil {
			return err
		}
	}

	undo, err := tx.persist()
	if err != nil {
		undo()
		return err
	}

	if len(tx.transfers) > 0 {
		if err := ledger.Transfer(ctx, tx.transfers...); err != nil {
			undo()
			if !errors.Is(err, domain.ErrTransferFailed) {
				err = fmt.Errorf("%w: %s", domain.ErrTransferFailed, err)
			}
			return err
		}
	}
	return nil
}

// persist writes every changed aggregate and returns the func restoring the
// previously stored versions.
func (tx *unitOfWork) persist() (func(), error) {
	ctx := tx.ctx
	orderRepo := tx.chain.repoManager.Orders()
	escrowRepo := tx.chain.repoManager.Escrows()
	restore := make([]func() error, 0)

	undo := func() {
		for i := len(restore) - 1; i >= 0; i-- {
			if err := restore[i](); err != nil {
				log.WithError(err).Errorf("failed to restore state on chain %d", tx.chain.id)
			}
		}
	}

	for _, order := range tx.orderList {
		if len(order.Events()) <= 0 {
			continue
		}
		prev, err := orderRepo.GetOrder(ctx, order.Hash)
		if err != nil && !errors.Is(err, domain.ErrOrderNotFound) {
			return undo, err
		}
		if err := orderRepo.AddOrUpdateOrder(ctx, *order); err != nil {
			return undo, fmt.Errorf("failed to persist order %s: %w", order.Hash, err)
		}
		hash := order.Hash
		restore = append(restore, func() error {
			if prev == nil {
				return orderRepo.RemoveOrder(context.WithoutCancel(ctx), hash)
			}
			return orderRepo.AddOrUpdateOrder(context.WithoutCancel(ctx), *prev)
		})
	}

	for _, escrow := range tx.escrowList {
		if len(escrow.Events()) <= 0 {
			continue
		}
		prev, err := escrowRepo.GetEscrow(ctx, escrow.Address)
		if err != nil && !errors.Is(err, domain.ErrEscrowNotFound) {
			return undo, err
		}
		if err := escrowRepo.AddOrUpdateEscrow(ctx, *escrow); err != nil {
			return undo, fmt.Errorf("failed to persist escrow %s: %w", escrow.Address, err)
		}
		address := escrow.Address
		restore = append(restore, func() error {
			if prev == nil {
				return escrowRepo.RemoveEscrow(context.WithoutCancel(ctx), address)
			}
			return escrowRepo.AddOrUpdateEscrow(context.WithoutCancel(ctx), *prev)
		})
	}

	return undo, nil
}

func orderKey(hash common.Hash) string {
	return "order:" + hash.Hex()
}

func escrowKey(chainId uint64, address common.Address) string {
	return fmt.Sprintf("escrow:%d:%s", chainId, address.Hex())
}
