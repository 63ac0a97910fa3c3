package config

import (
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/13x54n/multiverse/internal/core/application"
	"github.com/13x54n/multiverse/internal/core/domain"
	"github.com/13x54n/multiverse/internal/core/ports"
	"github.com/13x54n/multiverse/internal/infrastructure/acl"
	"github.com/13x54n/multiverse/internal/infrastructure/db"
	inmemoryledger "github.com/13x54n/multiverse/internal/infrastructure/ledger/inmemory"
	natsnotifier "github.com/13x54n/multiverse/internal/infrastructure/notifier/nats"
	noopnotifier "github.com/13x54n/multiverse/internal/infrastructure/notifier/noop"
	timescheduler "github.com/13x54n/multiverse/internal/infrastructure/scheduler/gocron"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

var (
	supportedDbs = supportedType{
		"badger": {},
		"sqlite": {},
	}
	supportedEventDbs = supportedType{
		"watermill": {},
	}
)

type Config struct {
	Datadir           string
	Port              uint32
	LogLevel          int
	DbType            string
	EventDbType       string
	DbDir             string
	Chains            []uint64
	Owner             common.Address
	Resolvers         []common.Address
	ResolverAddr      common.Address
	RegistryAddr      common.Address
	FactoryAddr       common.Address
	MinAmount         *big.Int
	MaxAmount         *big.Int
	DstSafetyDeposit  *big.Int
	PublicCancelDelay uint64
	EmergencyDelay    uint64
	ClockSkew         uint64
	GenesisFile       string
	NatsURL           string
	NatsSubjectPrefix string
	NoKeeper          bool
	RequireSignatures bool

	ledgers   map[uint64]*inmemoryledger.Ledger
	repos     []ports.RepoManager
	eventRepo domain.EventRepository
	notifier  ports.Notifier
	policy    ports.AccessPolicy
	scheduler ports.SchedulerService
	svc       application.Service
}

func (c *Config) String() string {
	json, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Sprintf("error while marshalling config JSON: %s", err)
	}
	return string(json)
}

var (
	Datadir           = "DATADIR"
	Port              = "PORT"
	LogLevel          = "LOG_LEVEL"
	DbType            = "DB_TYPE"
	EventDbType       = "EVENT_DB_TYPE"
	Chains            = "CHAINS"
	Owner             = "OWNER"
	Resolvers         = "RESOLVERS"
	ResolverAddress   = "RESOLVER_ADDRESS"
	RegistryAddress   = "REGISTRY_ADDRESS"
	FactoryAddress    = "FACTORY_ADDRESS"
	MinAmount         = "MIN_AMOUNT"
	MaxAmount         = "MAX_AMOUNT"
	DstSafetyDeposit  = "DST_SAFETY_DEPOSIT"
	PublicCancelDelay = "PUBLIC_CANCEL_DELAY"
	EmergencyDelay    = "EMERGENCY_DELAY"
	ClockSkew         = "CLOCK_SKEW"
	GenesisFile       = "GENESIS_FILE"
	NatsURL           = "NATS_URL"
	NatsSubjectPrefix = "NATS_SUBJECT_PREFIX"
	NoKeeper          = "NO_KEEPER"
	RequireSignatures = "REQUIRE_SIGNATURES"

	defaultDatadir           = btcutil.AppDataDir("multiverse", false)
	DefaultPort              = 7070
	defaultLogLevel          = 4
	defaultDbType            = "badger"
	defaultEventDbType       = "watermill"
	defaultChains            = "1,1337"
	defaultMinAmount         = "1"
	defaultMaxAmount         = "0" // 0 means no limit
	defaultDstSafetyDeposit  = "0"
	defaultPublicCancelDelay = 3600   // 1 hour
	defaultEmergencyDelay    = 604800 // 7 days
	defaultClockSkew         = 60
	defaultNatsSubjectPrefix = "swap"
)

func LoadConfig() (*Config, error) {
	viper.SetEnvPrefix("MULTIVERSE")
	viper.AutomaticEnv()

	viper.SetDefault(Datadir, defaultDatadir)
	viper.SetDefault(Port, DefaultPort)
	viper.SetDefault(LogLevel, defaultLogLevel)
	viper.SetDefault(DbType, defaultDbType)
	viper.SetDefault(EventDbType, defaultEventDbType)
	viper.SetDefault(Chains, defaultChains)
	viper.SetDefault(MinAmount, defaultMinAmount)
	viper.SetDefault(MaxAmount, defaultMaxAmount)
	viper.SetDefault(DstSafetyDeposit, defaultDstSafetyDeposit)
	viper.SetDefault(PublicCancelDelay, defaultPublicCancelDelay)
	viper.SetDefault(EmergencyDelay, defaultEmergencyDelay)
	viper.SetDefault(ClockSkew, defaultClockSkew)
	viper.SetDefault(NatsSubjectPrefix, defaultNatsSubjectPrefix)

	if err := initDatadir(); err != nil {
		return nil, fmt.Errorf("error while creating datadir: %s", err)
	}

	chains, err := parseChains(viper.GetString(Chains))
	if err != nil {
		return nil, err
	}
	owner, err := parseAddress(Owner, viper.GetString(Owner))
	if err != nil {
		return nil, err
	}
	resolvers := make([]common.Address, 0)
	for _, r := range splitList(viper.GetString(Resolvers)) {
		resolver, err := parseAddress(Resolvers, r)
		if err != nil {
			return nil, err
		}
		resolvers = append(resolvers, resolver)
	}
	resolverAddr, err := parseAddress(ResolverAddress, viper.GetString(ResolverAddress))
	if err != nil {
		return nil, err
	}
	registryAddr, err := parseAddress(RegistryAddress, viper.GetString(RegistryAddress))
	if err != nil {
		return nil, err
	}
	factoryAddr, err := parseAddress(FactoryAddress, viper.GetString(FactoryAddress))
	if err != nil {
		return nil, err
	}
	minAmount, err := parseAmount(MinAmount, viper.GetString(MinAmount))
	if err != nil {
		return nil, err
	}
	maxAmount, err := parseAmount(MaxAmount, viper.GetString(MaxAmount))
	if err != nil {
		return nil, err
	}
	dstSafetyDeposit, err := parseAmount(DstSafetyDeposit, viper.GetString(DstSafetyDeposit))
	if err != nil {
		return nil, err
	}

	// registry and factory default to the addresses of the first two
	// contracts deployed by the owner
	if registryAddr == (common.Address{}) && owner != (common.Address{}) {
		registryAddr = crypto.CreateAddress(owner, 0)
	}
	if factoryAddr == (common.Address{}) && owner != (common.Address{}) {
		factoryAddr = crypto.CreateAddress(owner, 1)
	}

	return &Config{
		Datadir:           viper.GetString(Datadir),
		Port:              viper.GetUint32(Port),
		LogLevel:          viper.GetInt(LogLevel),
		DbType:            viper.GetString(DbType),
		EventDbType:       viper.GetString(EventDbType),
		DbDir:             filepath.Join(viper.GetString(Datadir), "db"),
		Chains:            chains,
		Owner:             owner,
		Resolvers:         resolvers,
		ResolverAddr:      resolverAddr,
		RegistryAddr:      registryAddr,
		FactoryAddr:       factoryAddr,
		MinAmount:         minAmount,
		MaxAmount:         maxAmount,
		DstSafetyDeposit:  dstSafetyDeposit,
		PublicCancelDelay: viper.GetUint64(PublicCancelDelay),
		EmergencyDelay:    viper.GetUint64(EmergencyDelay),
		ClockSkew:         viper.GetUint64(ClockSkew),
		GenesisFile:       viper.GetString(GenesisFile),
		NatsURL:           viper.GetString(NatsURL),
		NatsSubjectPrefix: viper.GetString(NatsSubjectPrefix),
		NoKeeper:          viper.GetBool(NoKeeper),
		RequireSignatures: viper.GetBool(RequireSignatures),
	}, nil
}

func initDatadir() error {
	datadir := viper.GetString(Datadir)
	return makeDirectoryIfNotExists(datadir)
}

func makeDirectoryIfNotExists(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return os.MkdirAll(path, os.ModeDir|0755)
	}
	return nil
}

func (c *Config) Validate() error {
	if !supportedDbs.supports(c.DbType) {
		return fmt.Errorf("db type not supported, please select one of: %s", supportedDbs)
	}
	if !supportedEventDbs.supports(c.EventDbType) {
		return fmt.Errorf("event db type not supported, please select one of: %s", supportedEventDbs)
	}
	if len(c.Chains) <= 0 {
		return fmt.Errorf("missing chains")
	}
	if c.Owner == (common.Address{}) {
		return fmt.Errorf("missing owner address")
	}
	if c.MinAmount.Sign() <= 0 {
		return fmt.Errorf("min amount must be greater than 0")
	}
	if c.MaxAmount.Sign() > 0 && c.MinAmount.Cmp(c.MaxAmount) > 0 {
		return fmt.Errorf("min amount must not be greater than max amount")
	}
	if c.PublicCancelDelay <= 0 {
		return fmt.Errorf("public cancel delay must be greater than 0")
	}
	if !c.NoKeeper && c.ResolverAddr == (common.Address{}) {
		return fmt.Errorf("refund keeper requires a resolver address, set %s or %s", ResolverAddress, NoKeeper)
	}

	if err := c.ledgerService(); err != nil {
		return err
	}
	if err := c.repoManagers(); err != nil {
		return err
	}
	if err := c.eventRepository(); err != nil {
		return err
	}
	if err := c.notifierService(); err != nil {
		return err
	}
	if err := c.accessPolicy(); err != nil {
		return err
	}
	if err := c.schedulerService(); err != nil {
		return err
	}
	return nil
}

func (c *Config) AppService() (application.Service, error) {
	if c.svc == nil {
		if err := c.appService(); err != nil {
			return nil, err
		}
	}
	return c.svc, nil
}

// Ledgers returns the simulated ledger of every configured chain. Balances
// are kept under DbDir next to the stores of the chain.
func (c *Config) Ledgers() map[uint64]*inmemoryledger.Ledger {
	return c.ledgers
}

func (c *Config) ledgerService() error {
	var allocations []inmemoryledger.Allocation
	if len(c.GenesisFile) > 0 {
		var err error
		if allocations, err = inmemoryledger.ReadGenesis(c.GenesisFile); err != nil {
			return err
		}
	}

	logger := log.New()
	logger.SetLevel(log.WarnLevel)

	ledgers := make(map[uint64]*inmemoryledger.Ledger)
	closeAll := func() {
		for _, ledger := range ledgers {
			ledger.Close()
		}
	}
	for _, id := range c.Chains {
		dir := filepath.Join(c.DbDir, strconv.FormatUint(id, 10), "ledger")
		ledger, err := inmemoryledger.OpenLedger(id, nil, dir, logger)
		if err != nil {
			closeAll()
			return err
		}
		ledgers[id] = ledger
		if err := ledger.ApplyGenesis(allocations); err != nil {
			closeAll()
			return fmt.Errorf("failed to apply genesis to chain %d: %s", id, err)
		}
	}

	c.ledgers = ledgers
	return nil
}

func (c *Config) repoManagers() error {
	logger := log.New()
	logger.SetLevel(log.WarnLevel)

	repos := make([]ports.RepoManager, 0, len(c.Chains))
	for _, id := range c.Chains {
		dir := filepath.Join(c.DbDir, strconv.FormatUint(id, 10))

		var dataStoreConfig []interface{}
		switch c.DbType {
		case "badger":
			dataStoreConfig = []interface{}{dir, logger}
		case "sqlite":
			if err := makeDirectoryIfNotExists(dir); err != nil {
				return err
			}
			dataStoreConfig = []interface{}{dir}
		default:
			return fmt.Errorf("unknown db type")
		}

		svc, err := db.NewService(db.ServiceConfig{
			DataStoreType:   c.DbType,
			DataStoreConfig: dataStoreConfig,
		})
		if err != nil {
			for _, repo := range repos {
				repo.Close()
			}
			return fmt.Errorf("failed to open stores of chain %d: %s", id, err)
		}
		repos = append(repos, svc)
	}

	c.repos = repos
	return nil
}

func (c *Config) eventRepository() error {
	svc, err := db.NewEventRepository(c.EventDbType)
	if err != nil {
		return err
	}
	c.eventRepo = svc
	return nil
}

func (c *Config) notifierService() error {
	if len(c.NatsURL) <= 0 {
		c.notifier = noopnotifier.NewNotifier()
		return nil
	}

	svc, err := natsnotifier.NewNotifier(c.NatsURL, c.NatsSubjectPrefix)
	if err != nil {
		return err
	}
	c.notifier = svc
	return nil
}

func (c *Config) accessPolicy() error {
	svc, err := acl.NewAccessPolicy(c.Owner, c.Resolvers, c.Chains)
	if err != nil {
		return err
	}
	c.policy = svc
	return nil
}

func (c *Config) schedulerService() error {
	if c.NoKeeper {
		return nil
	}
	c.scheduler = timescheduler.NewScheduler()
	return nil
}

func (c *Config) appService() error {
	if c.ledgers == nil || c.repos == nil {
		return fmt.Errorf("config not validated")
	}

	chains := make([]application.Chain, 0, len(c.Chains))
	for i, id := range c.Chains {
		chains = append(chains, application.Chain{
			Ledger:      c.ledgers[id],
			RepoManager: c.repos[i],
		})
	}

	svc, err := application.NewService(application.Config{
		Chains:            chains,
		AccessPolicy:      c.policy,
		EventRepo:         c.eventRepo,
		Notifier:          c.notifier,
		Scheduler:         c.scheduler,
		ResolverAddr:      c.ResolverAddr,
		RegistryAddr:      c.RegistryAddr,
		FactoryAddr:       c.FactoryAddr,
		MinAmount:         c.MinAmount,
		MaxAmount:         c.MaxAmount,
		DstSafetyDeposit:  c.DstSafetyDeposit,
		PublicCancelDelay: c.PublicCancelDelay,
		EmergencyDelay:    c.EmergencyDelay,
		ClockSkew:         c.ClockSkew,
	})
	if err != nil {
		return err
	}

	c.svc = svc
	return nil
}

func parseChains(value string) ([]uint64, error) {
	chains := make([]uint64, 0)
	seen := make(map[uint64]struct{})
	for _, s := range splitList(value) {
		id, err := strconv.ParseUint(s, 10, 64)
		if err != nil || id == 0 {
			return nil, fmt.Errorf("invalid chain id %q in %s", s, Chains)
		}
		if _, ok := seen[id]; ok {
			return nil, fmt.Errorf("duplicated chain id %d in %s", id, Chains)
		}
		seen[id] = struct{}{}
		chains = append(chains, id)
	}
	sort.Slice(chains, func(i, j int) bool { return chains[i] < chains[j] })
	return chains, nil
}

func parseAddress(key, value string) (common.Address, error) {
	if len(value) <= 0 {
		return common.Address{}, nil
	}
	if !common.IsHexAddress(value) {
		return common.Address{}, fmt.Errorf("invalid address %q for %s", value, key)
	}
	return common.HexToAddress(value), nil
}

func parseAmount(key, value string) (*big.Int, error) {
	amount, ok := new(big.Int).SetString(value, 10)
	if !ok || amount.Sign() < 0 {
		return nil, fmt.Errorf("invalid amount %q for %s", value, key)
	}
	return amount, nil
}

func splitList(value string) []string {
	list := make([]string, 0)
	for _, s := range strings.FieldsFunc(value, func(r rune) bool {
		return r == ',' || r == ' '
	}) {
		list = append(list, strings.TrimSpace(s))
	}
	return list
}

type supportedType map[string]struct{}

func (t supportedType) String() string {
	types := make([]string, 0, len(t))
	for tt := range t {
		types = append(types, tt)
	}
	return strings.Join(types, " | ")
}

func (t supportedType) supports(typeStr string) bool {
	_, ok := t[typeStr]
	return ok
}
