package ports

import "github.com/ethereum/go-ethereum/common"

type AccessPolicy interface {
	Owner() common.Address
	IsOwner(addr common.Address) bool
	IsAuthorizedResolver(addr common.Address) bool
	IsSupportedChain(chainId uint64) bool
	Resolvers() []common.Address
	SupportedChains() []uint64

	AddResolver(addr common.Address) error
	RemoveResolver(addr common.Address) error
	AddSupportedChain(chainId uint64) error
	RemoveSupportedChain(chainId uint64) error
}
