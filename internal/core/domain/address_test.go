package domain_test

import (
	"math/big"
	"testing"

	"github.com/13x54n/multiverse/internal/core/domain"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func TestOrderHash(t *testing.T) {
	params := testOrderParams()

	hash, err := domain.OrderHash(params)
	require.NoError(t, err)
	require.NotEqual(t, common.Hash{}, hash)

	again, err := domain.OrderHash(params)
	require.NoError(t, err)
	require.Equal(t, hash, again)

	// origin chain defaults to the source chain
	params.OriginChainId = params.SrcChainId
	explicit, err := domain.OrderHash(params)
	require.NoError(t, err)
	require.Equal(t, hash, explicit)

	mutations := []func(p *domain.OrderParams){
		func(p *domain.OrderParams) { p.Maker = resolver },
		func(p *domain.OrderParams) { p.DstChainId = 10 },
		func(p *domain.OrderParams) { p.Amount = big.NewInt(2) },
		func(p *domain.OrderParams) { p.Deadline++ },
		func(p *domain.OrderParams) { p.Hashlock = domain.Hashlock([]byte("other")) },
		func(p *domain.OrderParams) { p.Timelock++ },
		func(p *domain.OrderParams) { p.OriginChainId = 1337 },
	}
	for i, mutate := range mutations {
		p := testOrderParams()
		mutate(&p)
		h, err := domain.OrderHash(p)
		require.NoError(t, err)
		require.NotEqual(t, hash, h, "mutation %d", i)
	}

	// safety deposit is not part of the intent
	p := testOrderParams()
	p.SafetyDeposit = big.NewInt(42)
	h, err := domain.OrderHash(p)
	require.NoError(t, err)
	require.Equal(t, hash, h)

	p.Amount = nil
	_, err = domain.OrderHash(p)
	require.ErrorIs(t, err, domain.ErrInvalidAmount)
}

func TestEscrowAddress(t *testing.T) {
	orderHash, err := domain.OrderHash(testOrderParams())
	require.NoError(t, err)

	salt0 := domain.EscrowSalt(orderHash, hashlock, 0)
	salt1 := domain.EscrowSalt(orderHash, hashlock, 1)
	require.NotEqual(t, salt0, salt1)
	require.Equal(t, salt0, domain.EscrowSalt(orderHash, hashlock, 0))

	src := domain.EscrowAddress(factory, orderHash, salt0, domain.EscrowRoleSource)
	dst := domain.EscrowAddress(factory, orderHash, salt0, domain.EscrowRoleDestination)
	require.NotEqual(t, src, dst)
	require.Equal(t, src, domain.EscrowAddress(factory, orderHash, salt0, domain.EscrowRoleSource))
	require.NotEqual(t, dst, domain.EscrowAddress(factory, orderHash, salt1, domain.EscrowRoleDestination))
	require.NotEqual(t, dst, domain.EscrowAddress(maker, orderHash, salt0, domain.EscrowRoleDestination))

	vault := domain.OrderVaultAddress(factory, orderHash)
	require.NotEqual(t, common.Address{}, vault)
	require.NotEqual(t, vault, src)
	otherHash := common.HexToHash("0x01")
	require.NotEqual(t, vault, domain.OrderVaultAddress(factory, otherHash))
}
