package sqlitedb

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/13x54n/multiverse/internal/core/domain"
	"github.com/ethereum/go-ethereum/common"
)

const (
	upsertOrder = `
INSERT INTO swap_order (
	hash, maker, src_chain_id, dst_chain_id, src_token, dst_token, amount,
	safety_deposit, deadline, hashlock, timelock, origin_chain_id, filled,
	remaining, status, created_at, cancelled_by, cancelled_at, version
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(hash) DO UPDATE SET
	filled = EXCLUDED.filled,
	remaining = EXCLUDED.remaining,
	status = EXCLUDED.status,
	cancelled_by = EXCLUDED.cancelled_by,
	cancelled_at = EXCLUDED.cancelled_at,
	version = EXCLUDED.version`

	upsertFill = `
INSERT INTO order_fill (
	order_hash, fill_index, taker, resolver, amount, dst_escrow, timestamp
) VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(order_hash, fill_index) DO UPDATE SET
	dst_escrow = EXCLUDED.dst_escrow`

	selectOrder = `
SELECT hash, maker, src_chain_id, dst_chain_id, src_token, dst_token, amount,
	safety_deposit, deadline, hashlock, timelock, origin_chain_id, filled,
	remaining, status, created_at, cancelled_by, cancelled_at, version
FROM swap_order`

	selectFills = `
SELECT fill_index, taker, resolver, amount, dst_escrow, timestamp
FROM order_fill WHERE order_hash = ? ORDER BY fill_index`
)

type orderRepository struct {
	db *sql.DB
}

func NewOrderRepository(config ...interface{}) (domain.OrderRepository, error) {
	if len(config) != 1 {
		return nil, fmt.Errorf("invalid config")
	}
	db, ok := config[0].(*sql.DB)
	if !ok {
		return nil, fmt.Errorf("cannot open order repository: invalid config, expected db at 0")
	}

	return &orderRepository{db}, nil
}

func (r *orderRepository) AddOrUpdateOrder(ctx context.Context, order domain.Order) error {
	return execTx(ctx, r.db, func(tx *sql.Tx) error {
		hash := order.Hash.Hex()
		if _, err := tx.ExecContext(
			ctx, upsertOrder,
			hash, order.Maker.Hex(), toInt64(order.SrcChainId), toInt64(order.DstChainId),
			order.SrcToken.Hex(), order.DstToken.Hex(), bigToString(order.Amount),
			bigToString(order.SafetyDeposit), toInt64(order.Deadline), order.Hashlock.Hex(),
			toInt64(order.Timelock), toInt64(order.OriginChainId), bigToString(order.Filled),
			bigToString(order.Remaining), int(order.Status), toInt64(order.CreatedAt),
			optionalHex(order.CancelledBy), toInt64(order.CancelledAt), order.Version,
		); err != nil {
			return err
		}

		// fills beyond the current slice belong to a newer version being undone
		if _, err := tx.ExecContext(
			ctx, "DELETE FROM order_fill WHERE order_hash = ? AND fill_index >= ?",
			hash, len(order.Fills),
		); err != nil {
			return err
		}
		for _, fill := range order.Fills {
			if _, err := tx.ExecContext(
				ctx, upsertFill,
				hash, fill.Index, fill.Taker.Hex(), fill.Resolver.Hex(),
				bigToString(fill.Amount), fill.DstEscrow.Hex(), toInt64(fill.Timestamp),
			); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *orderRepository) GetOrder(ctx context.Context, hash common.Hash) (*domain.Order, error) {
	orders, err := r.findOrders(ctx, selectOrder+" WHERE hash = ?", hash.Hex())
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return nil, fmt.Errorf("%w: %s", domain.ErrOrderNotFound, hash)
	}
	return &orders[0], nil
}

func (r *orderRepository) GetActiveOrders(ctx context.Context) ([]domain.Order, error) {
	return r.findOrders(ctx, selectOrder+" WHERE status = ?", int(domain.OrderActive))
}

func (r *orderRepository) GetAllOrders(ctx context.Context) ([]domain.Order, error) {
	return r.findOrders(ctx, selectOrder)
}

func (r *orderRepository) RemoveOrder(ctx context.Context, hash common.Hash) error {
	return execTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(
			ctx, "DELETE FROM order_fill WHERE order_hash = ?", hash.Hex(),
		); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, "DELETE FROM swap_order WHERE hash = ?", hash.Hex())
		return err
	})
}

func (r *orderRepository) Close() {
	_ = r.db.Close()
}

func (r *orderRepository) findOrders(
	ctx context.Context, query string, args ...interface{},
) ([]domain.Order, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}

	orders := make([]domain.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			// nolint:errcheck
			rows.Close()
			return nil, err
		}
		orders = append(orders, *order)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range orders {
		fills, err := r.getFills(ctx, orders[i].Hash)
		if err != nil {
			return nil, err
		}
		orders[i].Fills = fills
	}
	return orders, nil
}

func (r *orderRepository) getFills(ctx context.Context, hash common.Hash) ([]domain.Fill, error) {
	rows, err := r.db.QueryContext(ctx, selectFills, hash.Hex())
	if err != nil {
		return nil, fmt.Errorf("failed to query fills: %w", err)
	}
	// nolint:errcheck
	defer rows.Close()

	fills := make([]domain.Fill, 0)
	for rows.Next() {
		var (
			index                      uint32
			taker, resolver, dstEscrow string
			amount                     string
			timestamp                  int64
		)
		if err := rows.Scan(&index, &taker, &resolver, &amount, &dstEscrow, &timestamp); err != nil {
			return nil, err
		}
		value, err := parseBig(amount)
		if err != nil {
			return nil, err
		}
		fills = append(fills, domain.Fill{
			Index:     index,
			Taker:     parseAddress(taker),
			Resolver:  parseAddress(resolver),
			Amount:    value,
			DstEscrow: parseAddress(dstEscrow),
			Timestamp: toUint64(timestamp),
		})
	}
	return fills, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanOrder(row scanner) (*domain.Order, error) {
	var (
		hash, maker, srcToken, dstToken, hashlock, cancelledBy string
		amount, safetyDeposit, filled, remaining               string
		srcChainId, dstChainId, deadline, timelock             int64
		originChainId, createdAt, cancelledAt                  int64
		status                                                 int
		version                                                uint
	)
	if err := row.Scan(
		&hash, &maker, &srcChainId, &dstChainId, &srcToken, &dstToken, &amount,
		&safetyDeposit, &deadline, &hashlock, &timelock, &originChainId, &filled,
		&remaining, &status, &createdAt, &cancelledBy, &cancelledAt, &version,
	); err != nil {
		return nil, err
	}

	amounts, err := parseBigs(amount, safetyDeposit, filled, remaining)
	if err != nil {
		return nil, err
	}

	return &domain.Order{
		Hash:          common.HexToHash(hash),
		Maker:         parseAddress(maker),
		SrcChainId:    toUint64(srcChainId),
		DstChainId:    toUint64(dstChainId),
		SrcToken:      parseAddress(srcToken),
		DstToken:      parseAddress(dstToken),
		Amount:        amounts[0],
		SafetyDeposit: amounts[1],
		Deadline:      toUint64(deadline),
		Hashlock:      common.HexToHash(hashlock),
		Timelock:      toUint64(timelock),
		OriginChainId: toUint64(originChainId),
		Filled:        amounts[2],
		Remaining:     amounts[3],
		Status:        domain.OrderStatus(status),
		CreatedAt:     toUint64(createdAt),
		CancelledBy:   parseAddress(cancelledBy),
		CancelledAt:   toUint64(cancelledAt),
		Version:       version,
		Fills:         make([]domain.Fill, 0),
	}, nil
}

func optionalHex(addr common.Address) string {
	if addr == (common.Address{}) {
		return ""
	}
	return addr.Hex()
}
