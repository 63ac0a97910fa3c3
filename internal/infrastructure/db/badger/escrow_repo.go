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

const escrowStoreDir = "escrows"

type escrowDTO struct {
	Address   string
	OrderHash string
	Active    bool
	Escrow    domain.Escrow
}

type escrowRepository struct {
	store *badgerhold.Store
}

func NewEscrowRepository(config ...interface{}) (domain.EscrowRepository, error) {
	baseDir, logger, ok := parseConfig(config)
	if !ok {
		return nil, fmt.Errorf("invalid config")
	}

	var dir string
	if len(baseDir) > 0 {
		dir = filepath.Join(baseDir, escrowStoreDir)
	}
	store, err := createDB(dir, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open escrow store: %s", err)
	}

	return &escrowRepository{store}, nil
}

func (r *escrowRepository) AddOrUpdateEscrow(_ context.Context, escrow domain.Escrow) error {
	dto := escrowDTO{
		Address:   escrow.Address.Hex(),
		OrderHash: escrow.OrderHash.Hex(),
		Active:    escrow.IsActive(),
		Escrow:    escrow,
	}
	return withRetry(func() error {
		return r.store.Upsert(dto.Address, dto)
	})
}

func (r *escrowRepository) GetEscrow(
	_ context.Context, address common.Address,
) (*domain.Escrow, error) {
	var dto escrowDTO
	if err := r.store.Get(address.Hex(), &dto); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", domain.ErrEscrowNotFound, address)
		}
		return nil, err
	}
	return &dto.Escrow, nil
}

func (r *escrowRepository) GetEscrowsByOrder(
	_ context.Context, orderHash common.Hash,
) ([]domain.Escrow, error) {
	return r.findEscrows(badgerhold.Where("OrderHash").Eq(orderHash.Hex()))
}

func (r *escrowRepository) GetActiveEscrows(_ context.Context) ([]domain.Escrow, error) {
	return r.findEscrows(badgerhold.Where("Active").Eq(true))
}

func (r *escrowRepository) RemoveEscrow(_ context.Context, address common.Address) error {
	err := withRetry(func() error {
		return r.store.Delete(address.Hex(), escrowDTO{})
	})
	if errors.Is(err, badgerhold.ErrNotFound) {
		return nil
	}
	return err
}

func (r *escrowRepository) Close() {
	// nolint:all
	r.store.Close()
}

func (r *escrowRepository) findEscrows(query *badgerhold.Query) ([]domain.Escrow, error) {
	dtos := make([]escrowDTO, 0)
	if err := r.store.Find(&dtos, query); err != nil {
		return nil, err
	}

	escrows := make([]domain.Escrow, 0, len(dtos))
	for _, dto := range dtos {
		escrows = append(escrows, dto.Escrow)
	}
	return escrows, nil
}
