package badgerdb

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/13x54n/multiverse/internal/core/domain"
	"github.com/ethereum/go-ethereum/common"
	"github.com/timshannon/badgerhold/v4"
)

const orderStoreDir = "orders"

type orderDTO struct {
	Hash   string
	Active bool
	Order  domain.Order
}

type orderRepository struct {
	store *badgerhold.Store
}

func NewOrderRepository(config ...interface{}) (domain.OrderRepository, error) {
	baseDir, logger, ok := parseConfig(config)
	if !ok {
		return nil, fmt.Errorf("invalid config")
	}

	var dir string
	if len(baseDir) > 0 {
		dir = filepath.Join(baseDir, orderStoreDir)
	}
	store, err := createDB(dir, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open order store: %s", err)
	}

	return &orderRepository{store}, nil
}

func (r *orderRepository) AddOrUpdateOrder(_ context.Context, order domain.Order) error {
	dto := orderDTO{
		Hash:   order.Hash.Hex(),
		Active: order.IsActive(),
		Order:  order,
	}
	return withRetry(func() error {
		return r.store.Upsert(dto.Hash, dto)
	})
}

func (r *orderRepository) GetOrder(_ context.Context, hash common.Hash) (*domain.Order, error) {
	var dto orderDTO
	if err := r.store.Get(hash.Hex(), &dto); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", domain.ErrOrderNotFound, hash)
		}
		return nil, err
	}
	return &dto.Order, nil
}

func (r *orderRepository) GetActiveOrders(_ context.Context) ([]domain.Order, error) {
	return r.findOrders(badgerhold.Where("Active").Eq(true))
}

func (r *orderRepository) GetAllOrders(_ context.Context) ([]domain.Order, error) {
	return r.findOrders(&badgerhold.Query{})
}

func (r *orderRepository) RemoveOrder(_ context.Context, hash common.Hash) error {
	err := withRetry(func() error {
		return r.store.Delete(hash.Hex(), orderDTO{})
	})
	if errors.Is(err, badgerhold.ErrNotFound) {
		return nil
	}
	return err
}

func (r *orderRepository) Close() {
	// nolint:all
	r.store.Close()
}

func (r *orderRepository) findOrders(query *badgerhold.Query) ([]domain.Order, error) {
	dtos := make([]orderDTO, 0)
	if err := r.store.Find(&dtos, query); err != nil {
		return nil, err
	}

	orders := make([]domain.Order, 0, len(dtos))
	for _, dto := range dtos {
		orders = append(orders, dto.Order)
	}
	return orders, nil
}
