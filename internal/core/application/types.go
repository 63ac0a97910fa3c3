package application

import (
	"context"
	"errors"
	"math/big"

	"github.com/13x54n/multiverse/internal/core/domain"
	"github.com/13x54n/multiverse/internal/core/ports"
	"github.com/ethereum/go-ethereum/common"
)

// ErrDestinationPending is returned by FillOrder when the source fill
// committed but the destination escrow could not be deployed. The fill can
// be resumed with EnsureDestinationEscrow.
var ErrDestinationPending = errors.New("destination escrow pending")

type Service interface {
	Start() error
	Stop()
	Orders() OrderRegistry
	Escrows() EscrowService
	Resolver() ResolverCoordinator
	Admin() AdminService
	GetInfo(ctx context.Context) (*ServiceInfo, error)
	GetBalance(ctx context.Context, chainId uint64, asset, account common.Address) (*big.Int, error)
}

type OrderRegistry interface {
	CreateOrder(ctx context.Context, req CreateOrderRequest) (*domain.Order, error)
	Fill(ctx context.Context, req FillRequest) (*domain.Order, error)
	CancelOrder(ctx context.Context, chainId uint64, orderHash common.Hash, caller common.Address) (*domain.Order, error)
	GetOrder(ctx context.Context, chainId uint64, orderHash common.Hash) (*domain.Order, error)
	ListActiveOrders(ctx context.Context, chainId uint64) ([]domain.Order, error)
}

type EscrowService interface {
	PredictEscrowAddress(
		chainId uint64, orderHash, hashlock common.Hash, fillIndex uint32, role domain.EscrowRole,
	) (address common.Address, salt common.Hash, err error)
	CreateEscrow(ctx context.Context, req CreateEscrowRequest) (*domain.Escrow, error)
	Withdraw(
		ctx context.Context, chainId uint64, address common.Address,
		secret []byte, caller, recipient common.Address,
	) (*domain.Escrow, error)
	PublicWithdraw(
		ctx context.Context, chainId uint64, address common.Address, secret []byte, caller common.Address,
	) (*domain.Escrow, error)
	Cancel(ctx context.Context, chainId uint64, address, caller common.Address) (*domain.Escrow, error)
	PublicCancel(ctx context.Context, chainId uint64, address, caller common.Address) (*domain.Escrow, error)
	GetEscrow(ctx context.Context, chainId uint64, address common.Address) (*domain.Escrow, error)
	ListEscrowsByOrder(ctx context.Context, chainId uint64, orderHash common.Hash) ([]domain.Escrow, error)
}

type ResolverCoordinator interface {
	FillOrder(ctx context.Context, req FillOrderRequest) (*FillResult, error)
	EnsureDestinationEscrow(
		ctx context.Context, caller common.Address, srcChainId uint64,
		orderHash common.Hash, fillIndex uint32,
	) (*domain.Escrow, error)
	WithdrawFromEscrow(
		ctx context.Context, orderHash common.Hash, secret []byte, caller common.Address,
	) ([]domain.Escrow, error)
	LockSource(ctx context.Context, req LockRequest) (*domain.Escrow, error)
	LockDestination(ctx context.Context, req LockDestinationRequest) (*domain.Escrow, error)
	VerifyEscrow(
		ctx context.Context, chainId uint64, address common.Address, expected ExpectedEscrow,
	) (*domain.Escrow, error)
}

type AdminService interface {
	RequireAdmin(caller common.Address) (*AdminCapability, error)
	GetAccessList(ctx context.Context) AccessList
	AddResolver(ctx context.Context, capability *AdminCapability, resolver common.Address) error
	RemoveResolver(ctx context.Context, capability *AdminCapability, resolver common.Address) error
	AddSupportedChain(ctx context.Context, capability *AdminCapability, chainId uint64) error
	RemoveSupportedChain(ctx context.Context, capability *AdminCapability, chainId uint64) error
	EmergencyWithdraw(
		ctx context.Context, capability *AdminCapability, chainId uint64,
		address, recipient common.Address,
	) (*domain.Escrow, error)
}

// Chain binds a chain id to its ledger and its stores.
type Chain struct {
	Ledger      ports.Ledger
	RepoManager ports.RepoManager
}

type Config struct {
	Chains            []Chain
	AccessPolicy      ports.AccessPolicy
	EventRepo         domain.EventRepository
	Notifier          ports.Notifier
	Scheduler         ports.SchedulerService // nil disables the refund keeper
	ResolverAddr      common.Address
	RegistryAddr      common.Address
	FactoryAddr       common.Address
	MinAmount         *big.Int
	MaxAmount         *big.Int
	DstSafetyDeposit  *big.Int
	PublicCancelDelay uint64
	EmergencyDelay    uint64
	// ClockSkew is the margin in seconds by which a destination escrow must
	// expire before its source one, chain clocks are not assumed equal.
	ClockSkew uint64
}

type ServiceInfo struct {
	Owner             common.Address
	Resolver          common.Address
	Registry          common.Address
	Factory           common.Address
	Chains            []uint64
	MinAmount         *big.Int
	MaxAmount         *big.Int
	PublicCancelDelay uint64
	EmergencyDelay    uint64
}

type AccessList struct {
	Owner           common.Address
	Resolvers       []common.Address
	SupportedChains []uint64
}

type CreateOrderRequest struct {
	domain.OrderParams
	Caller common.Address
}

type FillRequest struct {
	ChainId   uint64
	OrderHash common.Hash
	Caller    common.Address
	Taker     common.Address
	Amount    *big.Int
	Secret    []byte
	DstEscrow common.Address
}

type CreateEscrowRequest struct {
	ChainId       uint64
	OrderHash     common.Hash
	Hashlock      common.Hash
	FillIndex     uint32
	Role          domain.EscrowRole
	Caller        common.Address
	Beneficiary   common.Address
	Token         common.Address
	Amount        *big.Int
	SafetyDeposit *big.Int
	Timelock      uint64
}

type FillOrderRequest struct {
	SrcChainId uint64
	OrderHash  common.Hash
	Caller     common.Address
	Taker      common.Address
	Amount     *big.Int
	Secret     []byte
}

type FillResult struct {
	Order     *domain.Order
	FillIndex uint32
	DstEscrow *domain.Escrow
	DstAddr   common.Address
}

type LockRequest struct {
	ChainId       uint64
	OrderHash     common.Hash
	Hashlock      common.Hash
	Caller        common.Address
	Beneficiary   common.Address
	Token         common.Address
	Amount        *big.Int
	SafetyDeposit *big.Int
	Timelock      uint64
}

// LockDestinationRequest funds the destination leg once the source leg at
// SrcAddr is verified to lock SrcAmount of SrcToken for the caller.
type LockDestinationRequest struct {
	LockRequest
	SrcChainId uint64
	SrcAddr    common.Address
	SrcToken   common.Address
	SrcAmount  *big.Int
}

// ExpectedEscrow lists the escrow attributes to verify. Zero fields are not
// checked.
type ExpectedEscrow struct {
	OrderHash   common.Hash
	Hashlock    common.Hash
	Role        domain.EscrowRole
	Depositor   common.Address
	Beneficiary common.Address
	Token       *common.Address
	Amount      *big.Int
}
