package application

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/13x54n/multiverse/internal/core/domain"
	"github.com/13x54n/multiverse/internal/metrics"
	"github.com/ethereum/go-ethereum/common"
	log "github.com/sirupsen/logrus"
)

type resolverCoordinator struct {
	*service
}

// FillOrder fills the order on the source chain and funds the matching
// destination escrow from the caller's liquidity. The two legs are separate
// atomic units: if the destination leg fails after the source fill
// committed, the returned error wraps ErrDestinationPending and the result
// carries the fill index to resume with EnsureDestinationEscrow.
func (r *resolverCoordinator) FillOrder(
	ctx context.Context, req FillOrderRequest,
) (*FillResult, error) {
	src, err := r.getSupportedChain(req.SrcChainId)
	if err != nil {
		return nil, err
	}
	order, err := src.repoManager.Orders().GetOrder(ctx, req.OrderHash)
	if err != nil {
		return nil, err
	}
	dst, err := r.getSupportedChain(order.DstChainId)
	if err != nil {
		return nil, err
	}
	if !r.policy.IsAuthorizedResolver(req.Caller) {
		return nil, fmt.Errorf("%w: %s is not an authorized resolver", domain.ErrUnauthorized, req.Caller)
	}
	if err := r.checkAmount(req.Amount); err != nil {
		return nil, err
	}
	if err := r.checkDestinationLeg(ctx, dst, order, req); err != nil {
		return nil, err
	}

	dstEscrowFor := func(o *domain.Order, fillIndex uint32) (common.Address, error) {
		address, _ := r.escrows.predict(o.Hash, o.Hashlock, fillIndex, domain.EscrowRoleDestination)
		return address, nil
	}
	filledOrder, filled, err := r.registry.fill(ctx, FillRequest{
		ChainId:   req.SrcChainId,
		OrderHash: req.OrderHash,
		Caller:    req.Caller,
		Taker:     req.Taker,
		Amount:    req.Amount,
		Secret:    req.Secret,
	}, dstEscrowFor)
	if err != nil {
		return nil, err
	}

	result := &FillResult{
		Order:     filledOrder,
		FillIndex: filled.FillIndex,
		DstAddr:   filled.DstEscrow,
	}
	escrow, _, err := r.ensureDestination(ctx, dst, filledOrder, filledOrder.Fills[filled.FillIndex])
	if err != nil {
		metrics.PendingDestinations.Inc()
		log.WithError(err).Warnf(
			"destination escrow of order %s fill %d pending", filledOrder.Hash, filled.FillIndex,
		)
		return result, fmt.Errorf("%w: fill %d of order %s: %w", ErrDestinationPending, filled.FillIndex, filledOrder.Hash, err)
	}
	result.DstEscrow = escrow
	return result, nil
}

// EnsureDestinationEscrow deploys the destination escrow of a committed fill
// if it is missing. It is a no-op returning the escrow if already deployed.
func (r *resolverCoordinator) EnsureDestinationEscrow(
	ctx context.Context, caller common.Address, srcChainId uint64,
	orderHash common.Hash, fillIndex uint32,
) (*domain.Escrow, error) {
	src, err := r.getChain(srcChainId)
	if err != nil {
		return nil, err
	}
	order, err := src.repoManager.Orders().GetOrder(ctx, orderHash)
	if err != nil {
		return nil, err
	}
	if int(fillIndex) >= len(order.Fills) {
		return nil, fmt.Errorf("%w: order %s has no fill %d", domain.ErrInvalidParams, orderHash, fillIndex)
	}
	fill := order.Fills[fillIndex]
	if caller != fill.Resolver {
		return nil, fmt.Errorf("%w: fill %d belongs to resolver %s", domain.ErrUnauthorized, fillIndex, fill.Resolver)
	}
	dst, err := r.getSupportedChain(order.DstChainId)
	if err != nil {
		return nil, err
	}
	escrow, created, err := r.ensureDestination(ctx, dst, order, fill)
	if err != nil {
		return nil, err
	}
	if created {
		metrics.PendingDestinations.Dec()
	}
	return escrow, nil
}

// WithdrawFromEscrow claims every active destination escrow of the order for
// the caller in a single atomic unit on the destination chain. Escrows still
// in their private window are withdrawn on behalf of their beneficiary.
func (r *resolverCoordinator) WithdrawFromEscrow(
	ctx context.Context, orderHash common.Hash, secret []byte, caller common.Address,
) ([]domain.Escrow, error) {
	_, order, err := r.findOrder(ctx, orderHash)
	if err != nil {
		return nil, err
	}
	if !domain.VerifySecret(secret, order.Hashlock) {
		return nil, domain.ErrInvalidSecret
	}
	dst, err := r.getChain(order.DstChainId)
	if err != nil {
		return nil, err
	}

	candidates, err := dst.repoManager.Escrows().GetEscrowsByOrder(ctx, order.Hash)
	if err != nil {
		return nil, err
	}
	addresses := make([]common.Address, 0, len(candidates))
	keys := make([]string, 0, len(candidates))
	for _, e := range candidates {
		if e.Role != domain.EscrowRoleDestination || e.Hashlock != order.Hashlock || !e.IsActive() {
			continue
		}
		addresses = append(addresses, e.Address)
		keys = append(keys, escrowKey(dst.id, e.Address))
	}
	if len(addresses) <= 0 {
		return nil, fmt.Errorf("%w: no active destination escrow for order %s", domain.ErrEscrowNotFound, order.Hash)
	}

	withdrawn := make([]domain.Escrow, 0, len(addresses))
	if err := dst.execute(ctx, "withdraw_from_escrow", keys, func(tx *unitOfWork) error {
		now := tx.now()
		for _, address := range addresses {
			escrow, err := tx.getEscrow(address)
			if err != nil {
				return err
			}
			var event domain.Event
			if escrow.IsExpired(now) {
				event, err = escrow.PublicWithdraw(secret, caller, now)
			} else {
				event, err = escrow.Withdraw(secret, caller, common.Address{}, now)
			}
			if err != nil {
				return fmt.Errorf("escrow %s: %w", address, err)
			}
			tx.transfer(payouts(escrow, event)...)
			withdrawn = append(withdrawn, *escrow)
		}
		return nil
	}); err != nil {
		return nil, err
	}

	log.Infof("withdrew %d destination escrows of order %s", len(withdrawn), order.Hash)
	return withdrawn, nil
}

// LockSource funds the source leg of a two-escrow swap.
func (r *resolverCoordinator) LockSource(
	ctx context.Context, req LockRequest,
) (*domain.Escrow, error) {
	return r.escrows.CreateEscrow(ctx, lockToEscrowRequest(req, domain.EscrowRoleSource))
}

// LockDestination funds the destination leg only after the source leg was
// verified at its recomputed address and expires later by more than the
// configured clock skew.
func (r *resolverCoordinator) LockDestination(
	ctx context.Context, req LockDestinationRequest,
) (*domain.Escrow, error) {
	srcChain, err := r.getChain(req.SrcChainId)
	if err != nil {
		return nil, err
	}
	dstChain, err := r.getSupportedChain(req.ChainId)
	if err != nil {
		return nil, err
	}
	if req.SrcChainId == req.ChainId {
		return nil, domain.ErrSameChain
	}

	srcAddr, _ := r.escrows.predict(req.OrderHash, req.Hashlock, 0, domain.EscrowRoleSource)
	if req.SrcAddr != (common.Address{}) && req.SrcAddr != srcAddr {
		return nil, fmt.Errorf(
			"%w: source escrow is at %s, got %s", domain.ErrEscrowMismatch, srcAddr, req.SrcAddr,
		)
	}
	srcToken := req.SrcToken
	srcEscrow, err := r.VerifyEscrow(ctx, req.SrcChainId, srcAddr, ExpectedEscrow{
		OrderHash:   req.OrderHash,
		Hashlock:    req.Hashlock,
		Role:        domain.EscrowRoleSource,
		Beneficiary: req.Caller,
		Token:       &srcToken,
		Amount:      req.SrcAmount,
	})
	if err != nil {
		return nil, err
	}
	if srcEscrow.IsExpired(srcChain.now()) {
		return nil, fmt.Errorf("%w: source escrow %s expired", domain.ErrExpired, srcAddr)
	}

	// expiries are measured on different clocks, the destination escrow must
	// expire more than clockSkew seconds before the source one
	dstExpiry, err := domain.TimelockExpiry(dstChain.now(), req.Timelock)
	if err != nil {
		return nil, err
	}
	if dstExpiry >= srcEscrow.Expiry() || srcEscrow.Expiry()-dstExpiry <= r.clockSkew {
		return nil, fmt.Errorf(
			"%w: destination expiry %d must be more than %ds before source expiry %d",
			domain.ErrInvalidTimelock, dstExpiry, r.clockSkew, srcEscrow.Expiry(),
		)
	}

	return r.escrows.CreateEscrow(ctx, lockToEscrowRequest(req.LockRequest, domain.EscrowRoleDestination))
}

func (r *resolverCoordinator) VerifyEscrow(
	ctx context.Context, chainId uint64, address common.Address, expected ExpectedEscrow,
) (*domain.Escrow, error) {
	c, err := r.getChain(chainId)
	if err != nil {
		return nil, err
	}
	escrow, err := c.repoManager.Escrows().GetEscrow(ctx, address)
	if err != nil {
		return nil, err
	}
	if !escrow.IsActive() {
		return nil, fmt.Errorf("%w: escrow %s is %s", domain.ErrNotActive, address, escrow.Status)
	}
	if err := matchEscrow(escrow, expected); err != nil {
		return nil, err
	}
	return escrow, nil
}

// checkDestinationLeg makes sure the destination escrow of the next fill can
// be deployed before touching the source chain.
func (r *resolverCoordinator) checkDestinationLeg(
	ctx context.Context, dst *chain, order *domain.Order, req FillOrderRequest,
) error {
	address, _ := r.escrows.predict(order.Hash, order.Hashlock, order.NextFillIndex(), domain.EscrowRoleDestination)
	existing, err := dst.repoManager.Escrows().GetEscrow(ctx, address)
	if err == nil {
		return matchEscrow(existing, r.expectedDestination(order, req.Caller, req.Amount))
	}
	if !errors.Is(err, domain.ErrEscrowNotFound) {
		return err
	}

	required := map[common.Address]*big.Int{
		order.DstToken: new(big.Int).Set(req.Amount),
	}
	if r.dstSafetyDeposit != nil && r.dstSafetyDeposit.Sign() > 0 {
		if _, ok := required[domain.NativeToken]; !ok {
			required[domain.NativeToken] = new(big.Int)
		}
		required[domain.NativeToken].Add(required[domain.NativeToken], r.dstSafetyDeposit)
	}
	for asset, amount := range required {
		balance, err := dst.ledger.BalanceOf(ctx, asset, req.Caller)
		if err != nil {
			return err
		}
		if balance.Cmp(amount) < 0 {
			return fmt.Errorf(
				"%w: resolver holds %s of %s on chain %d, needs %s",
				domain.ErrInsufficientBalance, balance, asset, dst.id, amount,
			)
		}
	}
	return nil
}

func (r *resolverCoordinator) ensureDestination(
	ctx context.Context, dst *chain, order *domain.Order, fill domain.Fill,
) (*domain.Escrow, bool, error) {
	address, salt := r.escrows.predict(order.Hash, order.Hashlock, fill.Index, domain.EscrowRoleDestination)
	if fill.DstEscrow != (common.Address{}) && fill.DstEscrow != address {
		return nil, false, fmt.Errorf(
			"%w: fill %d recorded destination %s, expected %s",
			domain.ErrEscrowMismatch, fill.Index, fill.DstEscrow, address,
		)
	}

	var (
		escrow  *domain.Escrow
		created bool
	)
	if err := dst.execute(
		ctx, "ensure_destination", []string{escrowKey(dst.id, address)},
		func(tx *unitOfWork) error {
			existing, err := tx.getEscrow(address)
			if err == nil {
				escrow = existing
				return matchEscrow(existing, r.expectedDestination(order, fill.Resolver, fill.Amount))
			}
			if !errors.Is(err, domain.ErrEscrowNotFound) {
				return err
			}
			escrow, err = r.escrows.create(tx, address, salt, CreateEscrowRequest{
				ChainId:       dst.id,
				OrderHash:     order.Hash,
				Hashlock:      order.Hashlock,
				FillIndex:     fill.Index,
				Role:          domain.EscrowRoleDestination,
				Caller:        fill.Resolver,
				Beneficiary:   order.Maker,
				Token:         order.DstToken,
				Amount:        fill.Amount,
				SafetyDeposit: r.dstSafetyDeposit,
				Timelock:      order.Timelock,
			})
			created = err == nil
			return err
		},
	); err != nil {
		return nil, false, err
	}

	if created {
		log.Infof("deployed destination escrow %s of order %s fill %d on chain %d", address, order.Hash, fill.Index, dst.id)
	}
	return escrow, created, nil
}

func (r *resolverCoordinator) expectedDestination(
	order *domain.Order, resolver common.Address, amount *big.Int,
) ExpectedEscrow {
	token := order.DstToken
	return ExpectedEscrow{
		OrderHash:   order.Hash,
		Hashlock:    order.Hashlock,
		Role:        domain.EscrowRoleDestination,
		Depositor:   resolver,
		Beneficiary: order.Maker,
		Token:       &token,
		Amount:      amount,
	}
}

func matchEscrow(escrow *domain.Escrow, expected ExpectedEscrow) error {
	mismatches := make([]string, 0)
	if expected.OrderHash != (common.Hash{}) && escrow.OrderHash != expected.OrderHash {
		mismatches = append(mismatches, "order hash")
	}
	if expected.Hashlock != (common.Hash{}) && escrow.Hashlock != expected.Hashlock {
		mismatches = append(mismatches, "hashlock")
	}
	if expected.Role != domain.EscrowRoleUndefined && escrow.Role != expected.Role {
		mismatches = append(mismatches, "role")
	}
	if expected.Depositor != (common.Address{}) && escrow.Depositor != expected.Depositor {
		mismatches = append(mismatches, "depositor")
	}
	if expected.Beneficiary != (common.Address{}) && escrow.Beneficiary != expected.Beneficiary {
		mismatches = append(mismatches, "beneficiary")
	}
	if expected.Token != nil && escrow.Token != *expected.Token {
		mismatches = append(mismatches, "token")
	}
	if expected.Amount != nil && escrow.Amount.Cmp(expected.Amount) != 0 {
		mismatches = append(mismatches, "amount")
	}
	if len(mismatches) > 0 {
		return fmt.Errorf(
			"%w: escrow %s differs in %s", domain.ErrEscrowMismatch, escrow.Address, strings.Join(mismatches, ", "),
		)
	}
	return nil
}

func lockToEscrowRequest(req LockRequest, role domain.EscrowRole) CreateEscrowRequest {
	return CreateEscrowRequest{
		ChainId:       req.ChainId,
		OrderHash:     req.OrderHash,
		Hashlock:      req.Hashlock,
		Role:          role,
		Caller:        req.Caller,
		Beneficiary:   req.Beneficiary,
		Token:         req.Token,
		Amount:        req.Amount,
		SafetyDeposit: req.SafetyDeposit,
		Timelock:      req.Timelock,
	}
}
