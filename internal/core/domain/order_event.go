package domain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

const OrderTopic = "order"

type OrderEvent struct {
	Id      string
	Type    EventType
	ChainId uint64
}

func (e OrderEvent) GetTopic() string   { return OrderTopic }
func (e OrderEvent) GetType() EventType { return e.Type }
func (e OrderEvent) GetChainId() uint64 { return e.ChainId }

type OrderCreated struct {
	OrderEvent
	OrderHash     common.Hash
	Maker         common.Address
	SrcChainId    uint64
	DstChainId    uint64
	SrcToken      common.Address
	DstToken      common.Address
	Amount        *big.Int
	SafetyDeposit *big.Int
	Deadline      uint64
	Hashlock      common.Hash
	Timelock      uint64
	OriginChainId uint64
	Timestamp     uint64
}

type OrderFilled struct {
	OrderEvent
	OrderHash     common.Hash
	FillIndex     uint32
	Taker         common.Address
	Resolver      common.Address
	Amount        *big.Int
	Secret        hexutil.Bytes
	DstEscrow     common.Address
	Filled        *big.Int
	Remaining     *big.Int
	DepositRefund *big.Int
	Timestamp     uint64
}

type OrderPartiallyFilled struct {
	OrderEvent
	OrderHash common.Hash
	FillIndex uint32
	Remaining *big.Int
	Timestamp uint64
}

type OrderCancelled struct {
	OrderEvent
	OrderHash   common.Hash
	CancelledBy common.Address
	Refund      *big.Int
	Deposit     *big.Int
	Timestamp   uint64
}
