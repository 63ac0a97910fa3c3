package acl

import (
	"fmt"
	"sort"
	"sync"

	"github.com/13x54n/multiverse/internal/core/domain"
	"github.com/13x54n/multiverse/internal/core/ports"
	"github.com/ethereum/go-ethereum/common"
)

type policy struct {
	owner common.Address

	lock      *sync.RWMutex
	resolvers map[common.Address]struct{}
	chains    map[uint64]struct{}
}

func NewAccessPolicy(
	owner common.Address, resolvers []common.Address, chains []uint64,
) (ports.AccessPolicy, error) {
	if owner == (common.Address{}) {
		return nil, fmt.Errorf("%w: missing owner", domain.ErrInvalidParams)
	}

	p := &policy{
		owner:     owner,
		lock:      &sync.RWMutex{},
		resolvers: make(map[common.Address]struct{}),
		chains:    make(map[uint64]struct{}),
	}
	for _, r := range resolvers {
		if err := p.AddResolver(r); err != nil {
			return nil, err
		}
	}
	for _, c := range chains {
		if err := p.AddSupportedChain(c); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (p *policy) Owner() common.Address {
	return p.owner
}

func (p *policy) IsOwner(addr common.Address) bool {
	return addr == p.owner
}

func (p *policy) IsAuthorizedResolver(addr common.Address) bool {
	p.lock.RLock()
	defer p.lock.RUnlock()

	_, ok := p.resolvers[addr]
	return ok
}

func (p *policy) IsSupportedChain(chainId uint64) bool {
	p.lock.RLock()
	defer p.lock.RUnlock()

	_, ok := p.chains[chainId]
	return ok
}

func (p *policy) Resolvers() []common.Address {
	p.lock.RLock()
	defer p.lock.RUnlock()

	resolvers := make([]common.Address, 0, len(p.resolvers))
	for r := range p.resolvers {
		resolvers = append(resolvers, r)
	}
	sort.Slice(resolvers, func(i, j int) bool {
		return resolvers[i].Cmp(resolvers[j]) < 0
	})
	return resolvers
}

func (p *policy) SupportedChains() []uint64 {
	p.lock.RLock()
	defer p.lock.RUnlock()

	chains := make([]uint64, 0, len(p.chains))
	for c := range p.chains {
		chains = append(chains, c)
	}
	sort.Slice(chains, func(i, j int) bool { return chains[i] < chains[j] })
	return chains
}

func (p *policy) AddResolver(addr common.Address) error {
	if addr == (common.Address{}) {
		return fmt.Errorf("%w: invalid resolver address", domain.ErrInvalidParams)
	}

	p.lock.Lock()
	defer p.lock.Unlock()

	p.resolvers[addr] = struct{}{}
	return nil
}

func (p *policy) RemoveResolver(addr common.Address) error {
	p.lock.Lock()
	defer p.lock.Unlock()

	if _, ok := p.resolvers[addr]; !ok {
		return fmt.Errorf("resolver %s not found", addr)
	}
	delete(p.resolvers, addr)
	return nil
}

func (p *policy) AddSupportedChain(chainId uint64) error {
	if chainId == 0 {
		return fmt.Errorf("%w: invalid chain id", domain.ErrInvalidParams)
	}

	p.lock.Lock()
	defer p.lock.Unlock()

	p.chains[chainId] = struct{}{}
	return nil
}

func (p *policy) RemoveSupportedChain(chainId uint64) error {
	p.lock.Lock()
	defer p.lock.Unlock()

	if _, ok := p.chains[chainId]; !ok {
		return fmt.Errorf("%w: chain %d", domain.ErrUnsupportedChain, chainId)
	}
	delete(p.chains, chainId)
	return nil
}
