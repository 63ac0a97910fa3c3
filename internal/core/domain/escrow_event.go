package domain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

const EscrowTopic = "escrow"

type EscrowEvent struct {
	Id      string
	Type    EventType
	ChainId uint64
}

func (e EscrowEvent) GetTopic() string   { return EscrowTopic }
func (e EscrowEvent) GetType() EventType { return e.Type }
func (e EscrowEvent) GetChainId() uint64 { return e.ChainId }

type EscrowCreated struct {
	EscrowEvent
	Address           common.Address
	OrderHash         common.Hash
	Salt              common.Hash
	Role              EscrowRole
	Depositor         common.Address
	Beneficiary       common.Address
	Token             common.Address
	Amount            *big.Int
	SafetyDeposit     *big.Int
	Hashlock          common.Hash
	Timelock          uint64
	PublicCancelDelay uint64
	CreatedAt         uint64
}

type EscrowWithdrawn struct {
	EscrowEvent
	Address   common.Address
	OrderHash common.Hash
	Hashlock  common.Hash
	Secret    hexutil.Bytes
	Caller    common.Address
	Recipient common.Address
	Amount    *big.Int
	DepositTo common.Address
	Public    bool
	Emergency bool
	Timestamp uint64
}

type EscrowCancelled struct {
	EscrowEvent
	Address   common.Address
	OrderHash common.Hash
	Caller    common.Address
	Refunded  common.Address
	Amount    *big.Int
	DepositTo common.Address
	Public    bool
	Timestamp uint64
}
