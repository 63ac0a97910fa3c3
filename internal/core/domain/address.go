package domain

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	addressType = mustNewType("address")
	uint256Type = mustNewType("uint256")
	bytes32Type = mustNewType("bytes32")

	orderHashArgs = abi.Arguments{
		{Name: "maker", Type: addressType},
		{Name: "srcChainId", Type: uint256Type},
		{Name: "dstChainId", Type: uint256Type},
		{Name: "srcToken", Type: addressType},
		{Name: "dstToken", Type: addressType},
		{Name: "amount", Type: uint256Type},
		{Name: "deadline", Type: uint256Type},
		{Name: "hashlock", Type: bytes32Type},
		{Name: "timelock", Type: uint256Type},
		{Name: "originChainId", Type: uint256Type},
	}

	escrowSaltArgs = abi.Arguments{
		{Name: "orderHash", Type: bytes32Type},
		{Name: "hashlock", Type: bytes32Type},
		{Name: "fillIndex", Type: uint256Type},
	}

	srcEscrowCodeHash  = crypto.Keccak256Hash([]byte("multiverse.escrow.src"))
	dstEscrowCodeHash  = crypto.Keccak256Hash([]byte("multiverse.escrow.dst"))
	orderVaultCodeHash = crypto.Keccak256Hash([]byte("multiverse.order.vault"))
)

// OrderHash is the cross-chain correlation id of an order. The preimage
// contains no chain-local value so both legs derive the same digest.
func OrderHash(p OrderParams) (common.Hash, error) {
	if p.Amount == nil || p.Amount.Sign() <= 0 {
		return common.Hash{}, fmt.Errorf("%w: amount must be greater than 0", ErrInvalidAmount)
	}
	originChainId := p.OriginChainId
	if originChainId == 0 {
		originChainId = p.SrcChainId
	}

	buf, err := orderHashArgs.Pack(
		p.Maker,
		new(big.Int).SetUint64(p.SrcChainId),
		new(big.Int).SetUint64(p.DstChainId),
		p.SrcToken,
		p.DstToken,
		p.Amount,
		new(big.Int).SetUint64(p.Deadline),
		[32]byte(p.Hashlock),
		new(big.Int).SetUint64(p.Timelock),
		new(big.Int).SetUint64(originChainId),
	)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to encode order: %s", err)
	}
	return crypto.Keccak256Hash(buf), nil
}

// EscrowSalt derives the salt of the escrow deployed for the given fill.
func EscrowSalt(orderHash, hashlock common.Hash, fillIndex uint32) common.Hash {
	buf, err := escrowSaltArgs.Pack(
		[32]byte(orderHash), [32]byte(hashlock), new(big.Int).SetUint64(uint64(fillIndex)),
	)
	if err != nil {
		// static types, packing can't fail
		panic(err)
	}
	return crypto.Keccak256Hash(buf)
}

// EscrowAddress returns the CREATE2-style address at which deployer places
// the escrow for (orderHash, salt, role). Anyone can compute it in advance.
func EscrowAddress(
	deployer common.Address, orderHash, salt common.Hash, role EscrowRole,
) common.Address {
	codeHash := srcEscrowCodeHash
	if role == EscrowRoleDestination {
		codeHash = dstEscrowCodeHash
	}
	return crypto.CreateAddress2(
		deployer, crypto.Keccak256Hash(orderHash[:], salt[:]), codeHash[:],
	)
}

// OrderVaultAddress is the account holding the maker's locked funds for a
// single order on the registry chain.
func OrderVaultAddress(registry common.Address, orderHash common.Hash) common.Address {
	return crypto.CreateAddress2(registry, orderHash, orderVaultCodeHash[:])
}

func mustNewType(t string) abi.Type {
	typ, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(err)
	}
	return typ
}
