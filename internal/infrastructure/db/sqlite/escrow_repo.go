package sqlitedb

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/13x54n/multiverse/internal/core/domain"
	"github.com/ethereum/go-ethereum/common"
)

const (
	upsertEscrow = `
INSERT INTO escrow (
	address, chain_id, order_hash, salt, role, depositor, beneficiary, token,
	amount, safety_deposit, hashlock, timelock, public_cancel_delay, created_at,
	status, secret, settled_by, paid_to, settled_at, emergency, version
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(address) DO UPDATE SET
	status = EXCLUDED.status,
	secret = EXCLUDED.secret,
	settled_by = EXCLUDED.settled_by,
	paid_to = EXCLUDED.paid_to,
	settled_at = EXCLUDED.settled_at,
	emergency = EXCLUDED.emergency,
	version = EXCLUDED.version`

	selectEscrow = `
SELECT address, chain_id, order_hash, salt, role, depositor, beneficiary, token,
	amount, safety_deposit, hashlock, timelock, public_cancel_delay, created_at,
	status, secret, settled_by, paid_to, settled_at, emergency, version
FROM escrow`
)

type escrowRepository struct {
	db *sql.DB
}

func NewEscrowRepository(config ...interface{}) (domain.EscrowRepository, error) {
	if len(config) != 1 {
		return nil, fmt.Errorf("invalid config")
	}
	db, ok := config[0].(*sql.DB)
	if !ok {
		return nil, fmt.Errorf("cannot open escrow repository: invalid config, expected db at 0")
	}

	return &escrowRepository{db}, nil
}

func (r *escrowRepository) AddOrUpdateEscrow(ctx context.Context, escrow domain.Escrow) error {
	return execTx(ctx, r.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(
			ctx, upsertEscrow,
			escrow.Address.Hex(), toInt64(escrow.ChainId), escrow.OrderHash.Hex(),
			escrow.Salt.Hex(), int(escrow.Role), escrow.Depositor.Hex(),
			escrow.Beneficiary.Hex(), escrow.Token.Hex(), bigToString(escrow.Amount),
			bigToString(escrow.SafetyDeposit), escrow.Hashlock.Hex(), toInt64(escrow.Timelock),
			toInt64(escrow.PublicCancelDelay), toInt64(escrow.CreatedAt), int(escrow.Status),
			escrow.Secret, optionalHex(escrow.SettledBy), optionalHex(escrow.PaidTo),
			toInt64(escrow.SettledAt), escrow.Emergency, escrow.Version,
		)
		return err
	})
}

func (r *escrowRepository) GetEscrow(
	ctx context.Context, address common.Address,
) (*domain.Escrow, error) {
	escrows, err := r.findEscrows(ctx, selectEscrow+" WHERE address = ?", address.Hex())
	if err != nil {
		return nil, err
	}
	if len(escrows) == 0 {
		return nil, fmt.Errorf("%w: %s", domain.ErrEscrowNotFound, address)
	}
	return &escrows[0], nil
}

func (r *escrowRepository) GetEscrowsByOrder(
	ctx context.Context, orderHash common.Hash,
) ([]domain.Escrow, error) {
	return r.findEscrows(
		ctx, selectEscrow+" WHERE order_hash = ? ORDER BY created_at", orderHash.Hex(),
	)
}

func (r *escrowRepository) GetActiveEscrows(ctx context.Context) ([]domain.Escrow, error) {
	return r.findEscrows(ctx, selectEscrow+" WHERE status = ?", int(domain.EscrowActive))
}

func (r *escrowRepository) RemoveEscrow(ctx context.Context, address common.Address) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM escrow WHERE address = ?", address.Hex())
	return err
}

func (r *escrowRepository) Close() {
	_ = r.db.Close()
}

func (r *escrowRepository) findEscrows(
	ctx context.Context, query string, args ...interface{},
) ([]domain.Escrow, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query escrows: %w", err)
	}
	// nolint:errcheck
	defer rows.Close()

	escrows := make([]domain.Escrow, 0)
	for rows.Next() {
		escrow, err := scanEscrow(rows)
		if err != nil {
			return nil, err
		}
		escrows = append(escrows, *escrow)
	}
	return escrows, rows.Err()
}

func scanEscrow(row scanner) (*domain.Escrow, error) {
	var (
		address, orderHash, salt, depositor, beneficiary string
		token, hashlock, settledBy, paidTo               string
		amount, safetyDeposit                            string
		chainId, timelock, publicCancelDelay, createdAt  int64
		settledAt                                        int64
		role, status                                     int
		secret                                           []byte
		emergency                                        bool
		version                                          uint
	)
	if err := row.Scan(
		&address, &chainId, &orderHash, &salt, &role, &depositor, &beneficiary, &token,
		&amount, &safetyDeposit, &hashlock, &timelock, &publicCancelDelay, &createdAt,
		&status, &secret, &settledBy, &paidTo, &settledAt, &emergency, &version,
	); err != nil {
		return nil, err
	}

	amounts, err := parseBigs(amount, safetyDeposit)
	if err != nil {
		return nil, err
	}

	return &domain.Escrow{
		Address:           parseAddress(address),
		ChainId:           toUint64(chainId),
		OrderHash:         common.HexToHash(orderHash),
		Salt:              common.HexToHash(salt),
		Role:              domain.EscrowRole(role),
		Depositor:         parseAddress(depositor),
		Beneficiary:       parseAddress(beneficiary),
		Token:             parseAddress(token),
		Amount:            amounts[0],
		SafetyDeposit:     amounts[1],
		Hashlock:          common.HexToHash(hashlock),
		Timelock:          toUint64(timelock),
		PublicCancelDelay: toUint64(publicCancelDelay),
		CreatedAt:         toUint64(createdAt),
		Status:            domain.EscrowStatus(status),
		Secret:            secret,
		SettledBy:         parseAddress(settledBy),
		PaidTo:            parseAddress(paidTo),
		SettledAt:         toUint64(settledAt),
		Emergency:         emergency,
		Version:           version,
	}, nil
}
