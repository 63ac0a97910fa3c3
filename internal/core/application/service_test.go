package application_test

import (
	"context"
	"fmt"
	"math/big"
	"path/filepath"
	"testing"
	"time"

	"github.com/13x54n/multiverse/internal/core/application"
	"github.com/13x54n/multiverse/internal/core/domain"
	"github.com/13x54n/multiverse/internal/core/ports"
	"github.com/13x54n/multiverse/internal/infrastructure/acl"
	"github.com/13x54n/multiverse/internal/infrastructure/db"
	inmemoryledger "github.com/13x54n/multiverse/internal/infrastructure/ledger/inmemory"
	noopnotifier "github.com/13x54n/multiverse/internal/infrastructure/notifier/noop"
	timescheduler "github.com/13x54n/multiverse/internal/infrastructure/scheduler/gocron"
	"github.com/benbjohnson/clock"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

const (
	srcChainId = uint64(1)
	dstChainId = uint64(1337)
	now        = uint64(1_700_000_000)
	timelock   = uint64(1800)

	publicCancelDelay = uint64(600)
	emergencyDelay    = uint64(3600)
)

var (
	owner    = common.HexToAddress("0x0000000000000000000000000000000000000a11")
	maker    = common.HexToAddress("0x1000000000000000000000000000000000000001")
	resolver = common.HexToAddress("0x2000000000000000000000000000000000000002")
	taker    = common.HexToAddress("0x3000000000000000000000000000000000000003")
	stranger = common.HexToAddress("0x4000000000000000000000000000000000000004")
	registry = common.HexToAddress("0x5000000000000000000000000000000000000005")
	factory  = common.HexToAddress("0x6000000000000000000000000000000000000006")
	srcToken = common.HexToAddress("0x7000000000000000000000000000000000000007")
	dstToken = common.HexToAddress("0x8000000000000000000000000000000000000008")

	secret      = []byte("0123456789abcdef0123456789abcdef")
	wrongSecret = []byte("fedcba9876543210fedcba9876543210")
	hashlock    = domain.Hashlock(secret)

	dstSafetyDeposit = big.NewInt(5)
)

type testEnv struct {
	svc      application.Service
	src      *inmemoryledger.Ledger
	dst      *inmemoryledger.Ledger
	srcClock *clock.Mock
	dstClock *clock.Mock

	dataDir string
	opts    []envOption
}

type envOption func(cfg *application.Config)

func withKeeper(cfg *application.Config) {
	cfg.Scheduler = timescheduler.NewScheduler()
}

func withPublicCancelDelay(delay uint64) envOption {
	return func(cfg *application.Config) {
		cfg.PublicCancelDelay = delay
	}
}

func withClockSkew(skew uint64) envOption {
	return func(cfg *application.Config) {
		cfg.ClockSkew = skew
	}
}

func newTestEnv(t *testing.T, clk func() clock.Clock, opts ...envOption) *testEnv {
	return newTestEnvAt(t, "", clk, opts...)
}

// newTestEnvAt keeps the stores of each chain under dataDir, in memory if
// empty.
func newTestEnvAt(t *testing.T, dataDir string, clk func() clock.Clock, opts ...envOption) *testEnv {
	env := &testEnv{dataDir: dataDir, opts: opts}
	var srcClock, dstClock clock.Clock
	if clk == nil {
		env.srcClock, env.dstClock = clock.NewMock(), clock.NewMock()
		env.srcClock.Set(time.Unix(int64(now), 0))
		env.dstClock.Set(time.Unix(int64(now), 0))
		srcClock, dstClock = env.srcClock, env.dstClock
	} else {
		srcClock, dstClock = clk(), clk()
	}

	env.src = inmemoryledger.NewLedger(srcChainId, srcClock)
	env.dst = inmemoryledger.NewLedger(dstChainId, dstClock)
	mint(t, env.src, srcToken, maker, 10_000)
	mint(t, env.src, domain.NativeToken, maker, 1_000)
	mint(t, env.src, domain.NativeToken, resolver, 1_000)
	mint(t, env.dst, dstToken, resolver, 10_000)
	mint(t, env.dst, domain.NativeToken, resolver, 1_000)
	mint(t, env.dst, domain.NativeToken, maker, 1_000)

	env.svc = env.newService(t)
	t.Cleanup(func() { env.svc.Stop() })
	return env
}

// restart stops the running service and starts a new one over the same
// ledgers and stores.
func (e *testEnv) restart(t *testing.T, opts ...envOption) application.Service {
	require.NotEmpty(t, e.dataDir, "restart requires persistent stores")
	e.svc.Stop()
	e.opts = append(e.opts, opts...)
	e.svc = e.newService(t)
	return e.svc
}

func (e *testEnv) newService(t *testing.T) application.Service {
	chains := make([]application.Chain, 0, 2)
	for _, ledger := range []*inmemoryledger.Ledger{e.src, e.dst} {
		dir := ""
		if e.dataDir != "" {
			dir = filepath.Join(e.dataDir, fmt.Sprintf("%d", ledger.ChainId()))
		}
		repoManager, err := db.NewService(db.ServiceConfig{
			DataStoreType:   "badger",
			DataStoreConfig: []interface{}{dir, nil},
		})
		require.NoError(t, err)
		chains = append(chains, application.Chain{Ledger: ledger, RepoManager: repoManager})
	}

	eventRepo, err := db.NewEventRepository("watermill")
	require.NoError(t, err)

	policy, err := acl.NewAccessPolicy(
		owner, []common.Address{resolver}, []uint64{srcChainId, dstChainId},
	)
	require.NoError(t, err)

	cfg := application.Config{
		Chains:            chains,
		AccessPolicy:      policy,
		EventRepo:         eventRepo,
		Notifier:          noopnotifier.NewNotifier(),
		ResolverAddr:      resolver,
		RegistryAddr:      registry,
		FactoryAddr:       factory,
		MinAmount:         big.NewInt(10),
		MaxAmount:         big.NewInt(1_000_000),
		DstSafetyDeposit:  dstSafetyDeposit,
		PublicCancelDelay: publicCancelDelay,
		EmergencyDelay:    emergencyDelay,
	}
	for _, opt := range e.opts {
		opt(&cfg)
	}

	svc, err := application.NewService(cfg)
	require.NoError(t, err)
	require.NoError(t, svc.Start())
	return svc
}

func (e *testEnv) advance(d time.Duration) {
	e.srcClock.Add(d)
	e.dstClock.Add(d)
}

func (e *testEnv) createOrder(t *testing.T, amount int64) *domain.Order {
	order, err := e.svc.Orders().CreateOrder(context.Background(), application.CreateOrderRequest{
		OrderParams: orderParams(amount),
		Caller:      maker,
	})
	require.NoError(t, err)
	return order
}

func orderParams(amount int64) domain.OrderParams {
	return domain.OrderParams{
		Maker:         maker,
		SrcChainId:    srcChainId,
		DstChainId:    dstChainId,
		SrcToken:      srcToken,
		DstToken:      dstToken,
		Amount:        big.NewInt(amount),
		SafetyDeposit: big.NewInt(50),
		Deadline:      now + 3600,
		Hashlock:      hashlock,
		Timelock:      timelock,
	}
}

func mint(t *testing.T, ledger *inmemoryledger.Ledger, asset, account common.Address, amount int64) {
	require.NoError(t, ledger.Mint(asset, account, big.NewInt(amount)))
}

func requireBalance(
	t *testing.T, ledger ports.Ledger, asset, account common.Address, expected int64,
) {
	t.Helper()
	balance, err := ledger.BalanceOf(context.Background(), asset, account)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(expected).String(), balance.String())
}

func TestNewService(t *testing.T) {
	policy, err := acl.NewAccessPolicy(owner, nil, nil)
	require.NoError(t, err)
	eventRepo, err := db.NewEventRepository("watermill")
	require.NoError(t, err)
	defer eventRepo.Close()
	repoManager, err := db.NewService(db.ServiceConfig{
		DataStoreType:   "badger",
		DataStoreConfig: []interface{}{"", nil},
	})
	require.NoError(t, err)
	defer repoManager.Close()
	ledger := inmemoryledger.NewLedger(srcChainId, nil)

	fixtures := []struct {
		name        string
		cfg         application.Config
		expectedErr string
	}{
		{
			name:        "missing chains",
			cfg:         application.Config{AccessPolicy: policy, EventRepo: eventRepo},
			expectedErr: "missing chains",
		},
		{
			name: "missing access policy",
			cfg: application.Config{
				Chains:    []application.Chain{{Ledger: ledger, RepoManager: repoManager}},
				EventRepo: eventRepo,
			},
			expectedErr: "missing access policy",
		},
		{
			name: "duplicated chain",
			cfg: application.Config{
				Chains: []application.Chain{
					{Ledger: ledger, RepoManager: repoManager},
					{Ledger: ledger, RepoManager: repoManager},
				},
				AccessPolicy: policy,
				EventRepo:    eventRepo,
			},
			expectedErr: "duplicated chain 1",
		},
		{
			name: "invalid amount bounds",
			cfg: application.Config{
				Chains:       []application.Chain{{Ledger: ledger, RepoManager: repoManager}},
				AccessPolicy: policy,
				EventRepo:    eventRepo,
				MinAmount:    big.NewInt(10),
				MaxAmount:    big.NewInt(1),
			},
			expectedErr: "min amount 10 is greater than max amount 1",
		},
		{
			name: "keeper without resolver",
			cfg: application.Config{
				Chains:       []application.Chain{{Ledger: ledger, RepoManager: repoManager}},
				AccessPolicy: policy,
				EventRepo:    eventRepo,
				Scheduler:    timescheduler.NewScheduler(),
			},
			expectedErr: "refund keeper requires a resolver address",
		},
	}

	for _, f := range fixtures {
		t.Run(f.name, func(t *testing.T) {
			svc, err := application.NewService(f.cfg)
			require.EqualError(t, err, f.expectedErr)
			require.Nil(t, svc)
		})
	}

	t.Run("no max amount", func(t *testing.T) {
		svc, err := application.NewService(application.Config{
			Chains:       []application.Chain{{Ledger: ledger, RepoManager: repoManager}},
			AccessPolicy: policy,
			EventRepo:    eventRepo,
			MinAmount:    big.NewInt(1),
			MaxAmount:    big.NewInt(0),
		})
		require.NoError(t, err)
		require.NotNil(t, svc)
	})
}

func TestGetInfo(t *testing.T) {
	env := newTestEnv(t, nil)

	info, err := env.svc.GetInfo(context.Background())
	require.NoError(t, err)
	require.Equal(t, owner, info.Owner)
	require.Equal(t, resolver, info.Resolver)
	require.Equal(t, []uint64{srcChainId, dstChainId}, info.Chains)
	require.Equal(t, publicCancelDelay, info.PublicCancelDelay)

	balance, err := env.svc.GetBalance(context.Background(), dstChainId, dstToken, resolver)
	require.NoError(t, err)
	require.Equal(t, "10000", balance.String())

	_, err = env.svc.GetBalance(context.Background(), 42, dstToken, resolver)
	require.ErrorIs(t, err, domain.ErrUnsupportedChain)
}

func TestAdmin(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	admin := env.svc.Admin()

	_, err := admin.RequireAdmin(stranger)
	require.ErrorIs(t, err, domain.ErrUnauthorized)

	require.ErrorIs(t, admin.AddResolver(ctx, nil, stranger), domain.ErrUnauthorized)
	require.ErrorIs(t, admin.AddResolver(ctx, &application.AdminCapability{}, stranger), domain.ErrUnauthorized)

	capability, err := admin.RequireAdmin(owner)
	require.NoError(t, err)
	require.Equal(t, owner, capability.Address())

	require.NoError(t, admin.AddResolver(ctx, capability, stranger))
	list := admin.GetAccessList(ctx)
	require.Equal(t, owner, list.Owner)
	require.ElementsMatch(t, []common.Address{resolver, stranger}, list.Resolvers)

	require.NoError(t, admin.RemoveResolver(ctx, capability, stranger))
	require.Error(t, admin.RemoveResolver(ctx, capability, stranger))

	require.ErrorIs(t, admin.AddSupportedChain(ctx, capability, 42), domain.ErrUnsupportedChain)
	require.NoError(t, admin.RemoveSupportedChain(ctx, capability, dstChainId))

	_, err = env.svc.Orders().CreateOrder(ctx, application.CreateOrderRequest{
		OrderParams: orderParams(1000),
		Caller:      maker,
	})
	require.ErrorIs(t, err, domain.ErrUnsupportedChain)

	require.NoError(t, admin.AddSupportedChain(ctx, capability, dstChainId))
	require.ElementsMatch(t, []uint64{srcChainId, dstChainId}, admin.GetAccessList(ctx).SupportedChains)
}
