package application

import (
	"context"
	"fmt"
	"math/big"
	"sort"

	"github.com/13x54n/multiverse/internal/core/domain"
	"github.com/13x54n/multiverse/internal/core/ports"
	"github.com/13x54n/multiverse/internal/metrics"
	"github.com/ethereum/go-ethereum/common"
	log "github.com/sirupsen/logrus"
)

type service struct {
	chains    map[uint64]*chain
	chainIds  []uint64
	policy    ports.AccessPolicy
	eventRepo domain.EventRepository
	notifier  ports.Notifier

	resolverAddr      common.Address
	registryAddr      common.Address
	factoryAddr       common.Address
	minAmount         *big.Int
	maxAmount         *big.Int
	dstSafetyDeposit  *big.Int
	publicCancelDelay uint64
	emergencyDelay    uint64
	clockSkew         uint64

	registry *orderRegistry
	escrows  *escrowService
	resolver *resolverCoordinator
	admin    *adminService
	relay    *secretRelay
	keeper   *keeper
}

func NewService(cfg Config) (Service, error) {
	if len(cfg.Chains) <= 0 {
		return nil, fmt.Errorf("missing chains")
	}
	if cfg.AccessPolicy == nil {
		return nil, fmt.Errorf("missing access policy")
	}
	if cfg.EventRepo == nil {
		return nil, fmt.Errorf("missing event repository")
	}
	// a zero max amount means no limit
	if cfg.MinAmount != nil && cfg.MaxAmount != nil &&
		cfg.MaxAmount.Sign() > 0 && cfg.MinAmount.Cmp(cfg.MaxAmount) > 0 {
		return nil, fmt.Errorf("min amount %s is greater than max amount %s", cfg.MinAmount, cfg.MaxAmount)
	}

	svc := &service{
		chains:            make(map[uint64]*chain),
		policy:            cfg.AccessPolicy,
		eventRepo:         cfg.EventRepo,
		notifier:          cfg.Notifier,
		resolverAddr:      cfg.ResolverAddr,
		registryAddr:      cfg.RegistryAddr,
		factoryAddr:       cfg.FactoryAddr,
		minAmount:         cfg.MinAmount,
		maxAmount:         cfg.MaxAmount,
		dstSafetyDeposit:  cfg.DstSafetyDeposit,
		publicCancelDelay: cfg.PublicCancelDelay,
		emergencyDelay:    cfg.EmergencyDelay,
		clockSkew:         cfg.ClockSkew,
	}
	for _, c := range cfg.Chains {
		if c.Ledger == nil || c.RepoManager == nil {
			return nil, fmt.Errorf("missing ledger or stores for chain")
		}
		id := c.Ledger.ChainId()
		if _, ok := svc.chains[id]; ok {
			return nil, fmt.Errorf("duplicated chain %d", id)
		}
		svc.chains[id] = newChain(c.Ledger, c.RepoManager, cfg.EventRepo, cfg.Notifier)
		svc.chainIds = append(svc.chainIds, id)
	}
	sort.Slice(svc.chainIds, func(i, j int) bool { return svc.chainIds[i] < svc.chainIds[j] })

	svc.escrows = &escrowService{svc}
	svc.registry = &orderRegistry{svc}
	svc.admin = &adminService{svc}
	svc.resolver = &resolverCoordinator{svc}
	svc.relay = &secretRelay{svc}
	if cfg.Scheduler != nil {
		if cfg.ResolverAddr == (common.Address{}) {
			return nil, fmt.Errorf("refund keeper requires a resolver address")
		}
		svc.keeper = newKeeper(svc, cfg.Scheduler)
	}

	return svc, nil
}

func (s *service) Start() error {
	s.eventRepo.RegisterEventsHandler(domain.EscrowTopic, func(events []domain.Event) {
		defer recoverHandler("escrow events")
		s.relay.onEscrowEvents(events)
	})

	s.refreshGauges()

	if s.keeper == nil {
		log.Debug("refund keeper disabled")
		return nil
	}
	s.eventRepo.RegisterEventsHandler(domain.OrderTopic, func(events []domain.Event) {
		defer recoverHandler("order events")
		s.keeper.onOrderEvents(events)
	})
	s.eventRepo.RegisterEventsHandler(domain.EscrowTopic, func(events []domain.Event) {
		defer recoverHandler("escrow events")
		s.keeper.onEscrowEvents(events)
	})

	log.Debug("starting refund keeper")
	return s.keeper.start()
}

func (s *service) Stop() {
	s.eventRepo.ClearRegisteredHandlers()
	if s.keeper != nil {
		s.keeper.stop()
		log.Debug("stopped refund keeper")
	}
	s.eventRepo.Close()
	if s.notifier != nil {
		s.notifier.Close()
	}
	for _, id := range s.chainIds {
		s.chains[id].repoManager.Close()
		s.chains[id].ledger.Close()
	}
	log.Debug("closed connection to db")
}

func (s *service) Orders() OrderRegistry {
	return s.registry
}

func (s *service) Escrows() EscrowService {
	return s.escrows
}

func (s *service) Resolver() ResolverCoordinator {
	return s.resolver
}

func (s *service) Admin() AdminService {
	return s.admin
}

func (s *service) GetInfo(_ context.Context) (*ServiceInfo, error) {
	return &ServiceInfo{
		Owner:             s.policy.Owner(),
		Resolver:          s.resolverAddr,
		Registry:          s.registryAddr,
		Factory:           s.factoryAddr,
		Chains:            append([]uint64{}, s.chainIds...),
		MinAmount:         s.minAmount,
		MaxAmount:         s.maxAmount,
		PublicCancelDelay: s.publicCancelDelay,
		EmergencyDelay:    s.emergencyDelay,
	}, nil
}

func (s *service) GetBalance(
	ctx context.Context, chainId uint64, asset, account common.Address,
) (*big.Int, error) {
	c, err := s.getChain(chainId)
	if err != nil {
		return nil, err
	}
	return c.ledger.BalanceOf(ctx, asset, account)
}

// getChain returns the executor of a configured chain.
func (s *service) getChain(chainId uint64) (*chain, error) {
	c, ok := s.chains[chainId]
	if !ok {
		return nil, fmt.Errorf("%w: chain %d not configured", domain.ErrUnsupportedChain, chainId)
	}
	return c, nil
}

// getSupportedChain also requires chainId to be allowed by the access policy.
func (s *service) getSupportedChain(chainId uint64) (*chain, error) {
	if !s.policy.IsSupportedChain(chainId) {
		return nil, fmt.Errorf("%w: %d", domain.ErrUnsupportedChain, chainId)
	}
	return s.getChain(chainId)
}

func (s *service) checkAmount(amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("%w: amount must be greater than 0", domain.ErrInvalidAmount)
	}
	if s.minAmount != nil && amount.Cmp(s.minAmount) < 0 {
		return fmt.Errorf("%w: %s is below min amount %s", domain.ErrInvalidAmount, amount, s.minAmount)
	}
	if s.maxAmount != nil && s.maxAmount.Sign() > 0 && amount.Cmp(s.maxAmount) > 0 {
		return fmt.Errorf("%w: %s is above max amount %s", domain.ErrInvalidAmount, amount, s.maxAmount)
	}
	return nil
}

// findOrder looks the order up on every configured chain.
func (s *service) findOrder(ctx context.Context, hash common.Hash) (*chain, *domain.Order, error) {
	for _, id := range s.chainIds {
		c := s.chains[id]
		order, err := c.repoManager.Orders().GetOrder(ctx, hash)
		if err == nil {
			return c, order, nil
		}
	}
	return nil, nil, fmt.Errorf("%w: %s", domain.ErrOrderNotFound, hash)
}

func (s *service) refreshGauges() {
	ctx := context.Background()
	for _, id := range s.chainIds {
		c := s.chains[id]
		if orders, err := c.repoManager.Orders().GetActiveOrders(ctx); err == nil {
			metrics.ActiveOrders.WithLabelValues(c.label).Set(float64(len(orders)))
		}
		if escrows, err := c.repoManager.Escrows().GetActiveEscrows(ctx); err == nil {
			metrics.ActiveEscrows.WithLabelValues(c.label).Set(float64(len(escrows)))
		}
	}
}

func recoverHandler(name string) {
	if r := recover(); r != nil {
		log.Errorf("recovered from panic in %s handler: %v", name, r)
	}
}
