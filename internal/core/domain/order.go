package domain

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

const (
	OrderUndefined OrderStatus = iota
	OrderActive
	OrderFilledStatus
	OrderCancelledStatus
)

type OrderStatus int

func (s OrderStatus) String() string {
	switch s {
	case OrderActive:
		return "ORDER_ACTIVE"
	case OrderFilledStatus:
		return "ORDER_FILLED"
	case OrderCancelledStatus:
		return "ORDER_CANCELLED"
	default:
		return "ORDER_UNDEFINED"
	}
}

type OrderParams struct {
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
}

type Fill struct {
	Index     uint32
	Taker     common.Address
	Resolver  common.Address
	Amount    *big.Int
	DstEscrow common.Address
	Timestamp uint64
}

type Order struct {
	Hash          common.Hash
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
	Filled        *big.Int
	Remaining     *big.Int
	Fills         []Fill
	Status        OrderStatus
	CreatedAt     uint64
	CancelledBy   common.Address
	CancelledAt   uint64
	Version       uint
	changes       []Event
}

func NewOrder() *Order {
	return &Order{
		changes: make([]Event, 0),
	}
}

func NewOrderFromEvents(events []Event) *Order {
	o := &Order{}

	for _, event := range events {
		o.on(event, true)
	}

	o.changes = append([]Event{}, events...)

	return o
}

func (o *Order) Create(params OrderParams, now uint64) (Event, error) {
	if o.Status != OrderUndefined {
		return nil, fmt.Errorf("%w: order %s", ErrOrderExists, o.Hash)
	}
	if params.Maker == (common.Address{}) {
		return nil, fmt.Errorf("%w: missing maker", ErrInvalidParams)
	}
	if params.SrcChainId == params.DstChainId {
		return nil, ErrSameChain
	}
	if params.Amount == nil || params.Amount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: amount must be greater than 0", ErrInvalidAmount)
	}
	if params.SafetyDeposit != nil && params.SafetyDeposit.Sign() < 0 {
		return nil, fmt.Errorf("%w: negative safety deposit", ErrInvalidAmount)
	}
	if params.Deadline <= now {
		return nil, fmt.Errorf("%w: deadline must be in the future", ErrInvalidDeadline)
	}
	if _, err := TimelockExpiry(params.Deadline, params.Timelock); err != nil {
		return nil, err
	}
	if params.OriginChainId == 0 {
		params.OriginChainId = params.SrcChainId
	}

	hash, err := OrderHash(params)
	if err != nil {
		return nil, err
	}

	event := OrderCreated{
		OrderEvent: OrderEvent{
			Id:      hash.Hex(),
			Type:    EventTypeOrderCreated,
			ChainId: params.SrcChainId,
		},
		OrderHash:     hash,
		Maker:         params.Maker,
		SrcChainId:    params.SrcChainId,
		DstChainId:    params.DstChainId,
		SrcToken:      params.SrcToken,
		DstToken:      params.DstToken,
		Amount:        new(big.Int).Set(params.Amount),
		SafetyDeposit: bigOrZero(params.SafetyDeposit),
		Deadline:      params.Deadline,
		Hashlock:      params.Hashlock,
		Timelock:      params.Timelock,
		OriginChainId: params.OriginChainId,
		Timestamp:     now,
	}
	o.raise(event)
	return event, nil
}

// Fill records a fill of amount against the remaining balance. It raises
// OrderFilled and, if some amount is left, OrderPartiallyFilled.
func (o *Order) Fill(
	taker, resolver common.Address, amount *big.Int, secret []byte,
	dstEscrow common.Address, now uint64,
) ([]Event, error) {
	if !o.IsActive() {
		return nil, o.inactiveErr()
	}
	if !IsBeforeDeadline(o.Deadline, now) {
		return nil, fmt.Errorf("%w: order deadline %d passed", ErrExpired, o.Deadline)
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: fill amount must be greater than 0", ErrInvalidAmount)
	}
	if amount.Cmp(o.Remaining) > 0 {
		return nil, fmt.Errorf(
			"%w: got %s, remaining %s", ErrAmountExceedsRemaining, amount, o.Remaining,
		)
	}
	if !VerifySecret(secret, o.Hashlock) {
		return nil, ErrInvalidSecret
	}
	if taker == (common.Address{}) {
		taker = resolver
	}

	filled := new(big.Int).Add(o.Filled, amount)
	remaining := new(big.Int).Sub(o.Remaining, amount)
	fillIndex := o.NextFillIndex()

	depositRefund := new(big.Int)
	if remaining.Sign() == 0 {
		depositRefund.Set(o.SafetyDeposit)
	}

	events := []Event{
		OrderFilled{
			OrderEvent:    o.newEvent(EventTypeOrderFilled),
			OrderHash:     o.Hash,
			FillIndex:     fillIndex,
			Taker:         taker,
			Resolver:      resolver,
			Amount:        new(big.Int).Set(amount),
			Secret:        append([]byte{}, secret...),
			DstEscrow:     dstEscrow,
			Filled:        filled,
			Remaining:     remaining,
			DepositRefund: depositRefund,
			Timestamp:     now,
		},
	}
	if remaining.Sign() > 0 {
		events = append(events, OrderPartiallyFilled{
			OrderEvent: o.newEvent(EventTypeOrderPartiallyFilled),
			OrderHash:  o.Hash,
			FillIndex:  fillIndex,
			Remaining:  new(big.Int).Set(remaining),
			Timestamp:  now,
		})
	}

	for _, event := range events {
		o.raise(event)
	}
	return events, nil
}

// Cancel is allowed to the maker at any time while the order is active, and
// to anyone once deadline + timelock has elapsed.
func (o *Order) Cancel(caller common.Address, now uint64) (Event, error) {
	if !o.IsActive() {
		return nil, o.inactiveErr()
	}
	if caller != o.Maker && !o.IsPastGracePeriod(now) {
		return nil, fmt.Errorf(
			"%w: only maker can cancel before %d", ErrCannotCancelYet, o.CancellableAt(),
		)
	}

	event := OrderCancelled{
		OrderEvent:  o.newEvent(EventTypeOrderCancelled),
		OrderHash:   o.Hash,
		CancelledBy: caller,
		Refund:      new(big.Int).Set(o.Remaining),
		Deposit:     new(big.Int).Set(o.SafetyDeposit),
		Timestamp:   now,
	}
	o.raise(event)
	return event, nil
}

// CancellableAt is the last instant before anyone may cancel the order.
func (o *Order) CancellableAt() uint64 {
	return addSaturating(o.Deadline, o.Timelock)
}

func (o *Order) IsPastGracePeriod(now uint64) bool {
	return IsExpired(o.Deadline, o.Timelock, now)
}

func (o *Order) NextFillIndex() uint32 {
	return uint32(len(o.Fills))
}

func (o *Order) IsActive() bool {
	return o.Status == OrderActive
}

func (o *Order) IsFilled() bool {
	return o.Status == OrderFilledStatus
}

func (o *Order) IsCancelled() bool {
	return o.Status == OrderCancelledStatus
}

func (o *Order) Events() []Event {
	return o.changes
}

func (o *Order) inactiveErr() error {
	switch o.Status {
	case OrderFilledStatus:
		return fmt.Errorf("%w: order %s already filled", ErrNotActive, o.Hash)
	case OrderCancelledStatus:
		return fmt.Errorf("%w: order %s already cancelled", ErrNotActive, o.Hash)
	default:
		return fmt.Errorf("%w: order %s", ErrNotActive, o.Hash)
	}
}

func (o *Order) newEvent(eventType EventType) OrderEvent {
	return OrderEvent{
		Id:      o.Hash.Hex(),
		Type:    eventType,
		ChainId: o.SrcChainId,
	}
}

func (o *Order) on(event Event, _ bool) {
	switch e := event.(type) {
	case OrderCreated:
		o.Hash = e.OrderHash
		o.Maker = e.Maker
		o.SrcChainId = e.SrcChainId
		o.DstChainId = e.DstChainId
		o.SrcToken = e.SrcToken
		o.DstToken = e.DstToken
		o.Amount = e.Amount
		o.SafetyDeposit = bigOrZero(e.SafetyDeposit)
		o.Deadline = e.Deadline
		o.Hashlock = e.Hashlock
		o.Timelock = e.Timelock
		o.OriginChainId = e.OriginChainId
		o.Filled = new(big.Int)
		o.Remaining = new(big.Int).Set(e.Amount)
		o.Fills = make([]Fill, 0)
		o.CreatedAt = e.Timestamp
		o.Status = OrderActive
	case OrderFilled:
		o.Fills = append(o.Fills, Fill{
			Index:     e.FillIndex,
			Taker:     e.Taker,
			Resolver:  e.Resolver,
			Amount:    e.Amount,
			DstEscrow: e.DstEscrow,
			Timestamp: e.Timestamp,
		})
		o.Filled = e.Filled
		o.Remaining = e.Remaining
		if o.Remaining.Sign() == 0 {
			o.Status = OrderFilledStatus
		}
	case OrderCancelled:
		o.Status = OrderCancelledStatus
		o.CancelledBy = e.CancelledBy
		o.CancelledAt = e.Timestamp
	}

	o.Version++
}

func (o *Order) raise(event Event) {
	if o.changes == nil {
		o.changes = make([]Event, 0)
	}
	o.changes = append(o.changes, event)
	o.on(event, false)
}

func bigOrZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}
