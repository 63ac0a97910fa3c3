package application

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/13x54n/multiverse/internal/core/domain"
	"github.com/13x54n/multiverse/internal/core/ports"
	"github.com/ethereum/go-ethereum/common"
	log "github.com/sirupsen/logrus"
)

type escrowService struct {
	*service
}

func (s *escrowService) PredictEscrowAddress(
	chainId uint64, orderHash, hashlock common.Hash, fillIndex uint32, role domain.EscrowRole,
) (common.Address, common.Hash, error) {
	if _, err := s.getChain(chainId); err != nil {
		return common.Address{}, common.Hash{}, err
	}
	if role == domain.EscrowRoleUndefined {
		return common.Address{}, common.Hash{}, fmt.Errorf("%w: missing escrow role", domain.ErrInvalidParams)
	}
	address, salt := s.predict(orderHash, hashlock, fillIndex, role)
	return address, salt, nil
}

func (s *escrowService) CreateEscrow(
	ctx context.Context, req CreateEscrowRequest,
) (*domain.Escrow, error) {
	c, err := s.getSupportedChain(req.ChainId)
	if err != nil {
		return nil, err
	}
	if err := s.checkAmount(req.Amount); err != nil {
		return nil, err
	}
	if req.Role == domain.EscrowRoleUndefined {
		return nil, fmt.Errorf("%w: missing escrow role", domain.ErrInvalidParams)
	}

	address, salt := s.predict(req.OrderHash, req.Hashlock, req.FillIndex, req.Role)
	var escrow *domain.Escrow
	if err := c.execute(
		ctx, "create_escrow", []string{escrowKey(c.id, address)},
		func(tx *unitOfWork) error {
			e, err := s.create(tx, address, salt, req)
			escrow = e
			return err
		},
	); err != nil {
		return nil, err
	}

	log.Debugf("created %s escrow %s on chain %d", escrow.Role, escrow.Address, c.id)
	return escrow, nil
}

// create stages a new escrow funded by the caller at the given address.
func (s *escrowService) create(
	tx *unitOfWork, address common.Address, salt common.Hash, req CreateEscrowRequest,
) (*domain.Escrow, error) {
	if _, err := tx.getEscrow(address); err == nil {
		return nil, fmt.Errorf("%w: escrow %s", domain.ErrAlreadyExists, address)
	} else if !errors.Is(err, domain.ErrEscrowNotFound) {
		return nil, err
	}

	escrow := domain.NewEscrow()
	if _, err := escrow.Create(domain.EscrowParams{
		ChainId:           tx.chain.id,
		Address:           address,
		OrderHash:         req.OrderHash,
		Salt:              salt,
		Role:              req.Role,
		Depositor:         req.Caller,
		Beneficiary:       req.Beneficiary,
		Token:             req.Token,
		Amount:            req.Amount,
		SafetyDeposit:     req.SafetyDeposit,
		Hashlock:          req.Hashlock,
		Timelock:          req.Timelock,
		PublicCancelDelay: s.publicCancelDelay,
	}, tx.now()); err != nil {
		return nil, err
	}

	tx.trackEscrow(escrow)
	tx.transfer(
		ports.Transfer{Asset: escrow.Token, From: escrow.Depositor, To: address, Amount: escrow.Amount},
		ports.Transfer{
			Asset: domain.NativeToken, From: escrow.Depositor, To: address, Amount: escrow.SafetyDeposit,
		},
	)
	return escrow, nil
}

func (s *escrowService) Withdraw(
	ctx context.Context, chainId uint64, address common.Address,
	secret []byte, caller, recipient common.Address,
) (*domain.Escrow, error) {
	return s.settle(ctx, "withdraw", chainId, address, func(escrow *domain.Escrow, now uint64) (domain.Event, error) {
		return escrow.Withdraw(secret, caller, recipient, now)
	})
}

func (s *escrowService) PublicWithdraw(
	ctx context.Context, chainId uint64, address common.Address, secret []byte, caller common.Address,
) (*domain.Escrow, error) {
	return s.settle(ctx, "public_withdraw", chainId, address, func(escrow *domain.Escrow, now uint64) (domain.Event, error) {
		return escrow.PublicWithdraw(secret, caller, now)
	})
}

func (s *escrowService) Cancel(
	ctx context.Context, chainId uint64, address, caller common.Address,
) (*domain.Escrow, error) {
	authorized := s.policy.IsOwner(caller) || s.policy.IsAuthorizedResolver(caller)
	return s.settle(ctx, "cancel", chainId, address, func(escrow *domain.Escrow, now uint64) (domain.Event, error) {
		return escrow.Cancel(caller, authorized, now)
	})
}

func (s *escrowService) PublicCancel(
	ctx context.Context, chainId uint64, address, caller common.Address,
) (*domain.Escrow, error) {
	return s.settle(ctx, "public_cancel", chainId, address, func(escrow *domain.Escrow, now uint64) (domain.Event, error) {
		return escrow.PublicCancel(caller, now)
	})
}

func (s *escrowService) GetEscrow(
	ctx context.Context, chainId uint64, address common.Address,
) (*domain.Escrow, error) {
	c, err := s.getChain(chainId)
	if err != nil {
		return nil, err
	}
	return c.repoManager.Escrows().GetEscrow(ctx, address)
}

func (s *escrowService) ListEscrowsByOrder(
	ctx context.Context, chainId uint64, orderHash common.Hash,
) ([]domain.Escrow, error) {
	c, err := s.getChain(chainId)
	if err != nil {
		return nil, err
	}
	return c.repoManager.Escrows().GetEscrowsByOrder(ctx, orderHash)
}

// settle applies a terminal transition to the escrow at address and stages
// the payouts it records.
func (s *escrowService) settle(
	ctx context.Context, operation string, chainId uint64, address common.Address,
	transition func(escrow *domain.Escrow, now uint64) (domain.Event, error),
) (*domain.Escrow, error) {
	c, err := s.getChain(chainId)
	if err != nil {
		return nil, err
	}

	var escrow *domain.Escrow
	if err := c.execute(
		ctx, operation, []string{escrowKey(c.id, address)},
		func(tx *unitOfWork) error {
			e, err := tx.getEscrow(address)
			if err != nil {
				return err
			}
			event, err := transition(e, tx.now())
			if err != nil {
				return err
			}
			escrow = e
			tx.transfer(payouts(e, event)...)
			return nil
		},
	); err != nil {
		return nil, err
	}

	log.Debugf("%s escrow %s on chain %d", escrow.Status, escrow.Address, c.id)
	return escrow, nil
}

func (s *escrowService) predict(
	orderHash, hashlock common.Hash, fillIndex uint32, role domain.EscrowRole,
) (common.Address, common.Hash) {
	salt := domain.EscrowSalt(orderHash, hashlock, fillIndex)
	return domain.EscrowAddress(s.factoryAddr, orderHash, salt, role), salt
}

// payouts are the transfers out of the escrow custody recorded by a
// terminal event.
func payouts(escrow *domain.Escrow, event domain.Event) []ports.Transfer {
	var to, depositTo common.Address
	var amount *big.Int
	switch e := event.(type) {
	case domain.EscrowWithdrawn:
		to, amount, depositTo = e.Recipient, e.Amount, e.DepositTo
	case domain.EscrowCancelled:
		to, amount, depositTo = e.Refunded, e.Amount, e.DepositTo
	default:
		return nil
	}
	return []ports.Transfer{
		{Asset: escrow.Token, From: escrow.Address, To: to, Amount: amount},
		{Asset: domain.NativeToken, From: escrow.Address, To: depositTo, Amount: escrow.SafetyDeposit},
	}
}
