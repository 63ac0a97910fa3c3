package inmemoryledger

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/dgraph-io/badger/v4"
	"github.com/ethereum/go-ethereum/common"
	"github.com/timshannon/badgerhold/v4"
)

const genesisMarkerKey = "genesis"

type balanceDTO struct {
	Asset   string
	Account string
	Amount  string
}

type genesisMarker struct {
	Applied bool
}

type balanceStore struct {
	store *badgerhold.Store
}

func openBalanceStore(dir string, logger badger.Logger) (*balanceStore, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = logger
	if len(dir) <= 0 {
		opts.InMemory = true
	}

	store, err := badgerhold.Open(badgerhold.Options{
		Encoder:          badgerhold.DefaultEncode,
		Decoder:          badgerhold.DefaultDecode,
		SequenceBandwith: 100,
		Options:          opts,
	})
	if err != nil {
		return nil, err
	}
	return &balanceStore{store}, nil
}

func (s *balanceStore) load() (map[balanceKey]*big.Int, error) {
	dtos := make([]balanceDTO, 0)
	if err := s.store.Find(&dtos, nil); err != nil {
		return nil, err
	}

	balances := make(map[balanceKey]*big.Int, len(dtos))
	for _, dto := range dtos {
		amount, ok := new(big.Int).SetString(dto.Amount, 10)
		if !ok {
			return nil, fmt.Errorf("invalid balance %q of %s", dto.Amount, dto.Account)
		}
		key := balanceKey{common.HexToAddress(dto.Asset), common.HexToAddress(dto.Account)}
		balances[key] = amount
	}
	return balances, nil
}

// save writes the balances in a single badger transaction, together with the
// genesis marker if markGenesis is set.
func (s *balanceStore) save(balances map[balanceKey]*big.Int, markGenesis bool) error {
	return s.store.Badger().Update(func(tx *badger.Txn) error {
		for k, v := range balances {
			dto := balanceDTO{
				Asset:   k.asset.Hex(),
				Account: k.account.Hex(),
				Amount:  v.String(),
			}
			if err := s.store.TxUpsert(tx, dto.Asset+"/"+dto.Account, dto); err != nil {
				return err
			}
		}
		if markGenesis {
			return s.store.TxUpsert(tx, genesisMarkerKey, genesisMarker{Applied: true})
		}
		return nil
	})
}

func (s *balanceStore) genesisApplied() (bool, error) {
	var marker genesisMarker
	if err := s.store.Get(genesisMarkerKey, &marker); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return marker.Applied, nil
}

func (s *balanceStore) close() {
	// nolint:all
	s.store.Close()
}
