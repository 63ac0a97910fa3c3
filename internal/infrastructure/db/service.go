package db

import (
	"database/sql"
	"fmt"

	"github.com/13x54n/multiverse/internal/core/domain"
	"github.com/13x54n/multiverse/internal/core/ports"
	badgerdb "github.com/13x54n/multiverse/internal/infrastructure/db/badger"
	sqlitedb "github.com/13x54n/multiverse/internal/infrastructure/db/sqlite"
	watermilldb "github.com/13x54n/multiverse/internal/infrastructure/db/watermill"
)

var (
	eventStoreTypes = map[string]func(...interface{}) (domain.EventRepository, error){
		"watermill": watermilldb.NewEventRepository,
	}
	orderStoreTypes = map[string]func(...interface{}) (domain.OrderRepository, error){
		"badger": badgerdb.NewOrderRepository,
		"sqlite": sqlitedb.NewOrderRepository,
	}
	escrowStoreTypes = map[string]func(...interface{}) (domain.EscrowRepository, error){
		"badger": badgerdb.NewEscrowRepository,
		"sqlite": sqlitedb.NewEscrowRepository,
	}
)

// ServiceConfig describes the stores of a single chain. For badger the data
// store config is (baseDir, logger), for sqlite it is (baseDir). An empty
// baseDir keeps everything in memory.
type ServiceConfig struct {
	DataStoreType   string
	DataStoreConfig []interface{}
}

type service struct {
	orderStore  domain.OrderRepository
	escrowStore domain.EscrowRepository
	sqliteDb    *sql.DB
}

func NewService(config ServiceConfig) (ports.RepoManager, error) {
	orderStoreFactory, ok := orderStoreTypes[config.DataStoreType]
	if !ok {
		return nil, fmt.Errorf("invalid data store type: %s", config.DataStoreType)
	}
	escrowStoreFactory, ok := escrowStoreTypes[config.DataStoreType]
	if !ok {
		return nil, fmt.Errorf("invalid data store type: %s", config.DataStoreType)
	}

	storeConfig := config.DataStoreConfig
	var sqliteDb *sql.DB
	if config.DataStoreType == "sqlite" {
		if len(storeConfig) != 1 {
			return nil, fmt.Errorf("invalid config")
		}
		dbDir, ok := storeConfig[0].(string)
		if !ok {
			return nil, fmt.Errorf("invalid base directory")
		}
		db, err := sqlitedb.OpenDb(dbDir)
		if err != nil {
			return nil, err
		}
		if err := sqlitedb.MigrateDb(db); err != nil {
			// nolint:errcheck
			db.Close()
			return nil, fmt.Errorf("failed to migrate sqlite: %w", err)
		}
		sqliteDb = db
		storeConfig = []interface{}{db}
	}

	orderStore, err := orderStoreFactory(storeConfig...)
	if err != nil {
		return nil, fmt.Errorf("failed to create order store: %w", err)
	}
	escrowStore, err := escrowStoreFactory(storeConfig...)
	if err != nil {
		orderStore.Close()
		return nil, fmt.Errorf("failed to create escrow store: %w", err)
	}

	return &service{
		orderStore:  orderStore,
		escrowStore: escrowStore,
		sqliteDb:    sqliteDb,
	}, nil
}

func NewEventRepository(storeType string, config ...interface{}) (domain.EventRepository, error) {
	factory, ok := eventStoreTypes[storeType]
	if !ok {
		return nil, fmt.Errorf("invalid event store type: %s", storeType)
	}
	return factory(config...)
}

func (s *service) Orders() domain.OrderRepository {
	return s.orderStore
}

func (s *service) Escrows() domain.EscrowRepository {
	return s.escrowStore
}

func (s *service) Close() {
	if s.sqliteDb != nil {
		// both repositories share the same handle
		// nolint:errcheck
		s.sqliteDb.Close()
		return
	}
	s.orderStore.Close()
	s.escrowStore.Close()
}
