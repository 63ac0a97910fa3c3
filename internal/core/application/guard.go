package application

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/13x54n/multiverse/internal/core/domain"
)

type guardCtxKey struct{}

// reentrancyGuardToken marks a chain and a set of entities as being mutated
// by the call owning the context. Ledger callbacks inherit the context, so a
// nested call into a held chain or entity is detected instead of blocking on
// the chain lock.
type reentrancyGuardToken struct {
	parent   *reentrancyGuardToken
	chainId  uint64
	entities map[string]struct{}
	held     atomic.Bool
}

// acquireGuard returns a context carrying a fresh token for chainId and
// entities, and the func that releases it.
func acquireGuard(
	ctx context.Context, chainId uint64, entities ...string,
) (context.Context, func(), error) {
	parent, _ := ctx.Value(guardCtxKey{}).(*reentrancyGuardToken)
	for t := parent; t != nil; t = t.parent {
		if !t.held.Load() {
			continue
		}
		for _, entity := range entities {
			if _, ok := t.entities[entity]; ok {
				return nil, nil, fmt.Errorf("%w: %s is locked", domain.ErrReentrantCall, entity)
			}
		}
		if t.chainId == chainId {
			return nil, nil, fmt.Errorf(
				"%w: chain %d is locked by the calling operation", domain.ErrReentrantCall, chainId,
			)
		}
	}

	token := &reentrancyGuardToken{
		parent:   parent,
		chainId:  chainId,
		entities: make(map[string]struct{}, len(entities)),
	}
	for _, entity := range entities {
		token.entities[entity] = struct{}{}
	}
	token.held.Store(true)

	return context.WithValue(ctx, guardCtxKey{}, token), func() { token.held.Store(false) }, nil
}
