package domain

import (
	"fmt"
	"math"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

const (
	EscrowRoleUndefined EscrowRole = iota
	EscrowRoleSource
	EscrowRoleDestination
)

type EscrowRole int

func (r EscrowRole) String() string {
	switch r {
	case EscrowRoleSource:
		return "src"
	case EscrowRoleDestination:
		return "dst"
	default:
		return "undefined"
	}
}

func ParseEscrowRole(s string) (EscrowRole, error) {
	switch s {
	case "src", "source":
		return EscrowRoleSource, nil
	case "dst", "destination":
		return EscrowRoleDestination, nil
	default:
		return EscrowRoleUndefined, fmt.Errorf("%w: unknown escrow role %q", ErrInvalidParams, s)
	}
}

const (
	EscrowUndefined EscrowStatus = iota
	EscrowActive
	EscrowWithdrawnStatus
	EscrowCancelledStatus
)

type EscrowStatus int

func (s EscrowStatus) String() string {
	switch s {
	case EscrowActive:
		return "ESCROW_ACTIVE"
	case EscrowWithdrawnStatus:
		return "ESCROW_WITHDRAWN"
	case EscrowCancelledStatus:
		return "ESCROW_CANCELLED"
	default:
		return "ESCROW_UNDEFINED"
	}
}

// NativeToken marks the chain's native currency. Safety deposits are always
// denominated in it.
var NativeToken = common.Address{}

type EscrowParams struct {
	ChainId           uint64
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
}

type Escrow struct {
	Address           common.Address
	ChainId           uint64
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
	Status            EscrowStatus
	Secret            []byte
	SettledBy         common.Address
	PaidTo            common.Address
	SettledAt         uint64
	Emergency         bool
	Version           uint
	changes           []Event
}

func NewEscrow() *Escrow {
	return &Escrow{
		changes: make([]Event, 0),
	}
}

func NewEscrowFromEvents(events []Event) *Escrow {
	e := &Escrow{}

	for _, event := range events {
		e.on(event, true)
	}

	e.changes = append([]Event{}, events...)

	return e
}

func (e *Escrow) Create(params EscrowParams, now uint64) (Event, error) {
	if e.Status != EscrowUndefined {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyExists, e.Address)
	}
	if params.Address == (common.Address{}) {
		return nil, fmt.Errorf("%w: missing escrow address", ErrInvalidParams)
	}
	if params.Role != EscrowRoleSource && params.Role != EscrowRoleDestination {
		return nil, fmt.Errorf("%w: missing escrow role", ErrInvalidParams)
	}
	if params.Depositor == (common.Address{}) {
		return nil, fmt.Errorf("%w: missing depositor", ErrInvalidParams)
	}
	if params.Beneficiary == (common.Address{}) {
		return nil, fmt.Errorf("%w: missing beneficiary", ErrInvalidParams)
	}
	if params.Hashlock == (common.Hash{}) {
		return nil, fmt.Errorf("%w: missing hashlock", ErrInvalidParams)
	}
	if params.Amount == nil || params.Amount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: amount must be greater than 0", ErrInvalidAmount)
	}
	if params.SafetyDeposit != nil && params.SafetyDeposit.Sign() < 0 {
		return nil, fmt.Errorf("%w: negative safety deposit", ErrInvalidAmount)
	}
	expiry, err := TimelockExpiry(now, params.Timelock)
	if err != nil {
		return nil, err
	}
	if expiry > math.MaxUint64-params.PublicCancelDelay {
		return nil, fmt.Errorf("%w: public cancel delay", ErrTimelockOverflow)
	}

	event := EscrowCreated{
		EscrowEvent: EscrowEvent{
			Id:      params.Address.Hex(),
			Type:    EventTypeEscrowCreated,
			ChainId: params.ChainId,
		},
		Address:           params.Address,
		OrderHash:         params.OrderHash,
		Salt:              params.Salt,
		Role:              params.Role,
		Depositor:         params.Depositor,
		Beneficiary:       params.Beneficiary,
		Token:             params.Token,
		Amount:            new(big.Int).Set(params.Amount),
		SafetyDeposit:     bigOrZero(params.SafetyDeposit),
		Hashlock:          params.Hashlock,
		Timelock:          params.Timelock,
		PublicCancelDelay: params.PublicCancelDelay,
		CreatedAt:         now,
	}
	e.raise(event)
	return event, nil
}

// Withdraw is the private path, reserved to the beneficiary until expiry.
// Source escrows pay the given recipient (the caller if unset), destination
// escrows always pay the beneficiary.
func (e *Escrow) Withdraw(
	secret []byte, caller, recipient common.Address, now uint64,
) (Event, error) {
	if err := e.checkActive(); err != nil {
		return nil, err
	}
	if caller != e.Beneficiary {
		return nil, fmt.Errorf("%w: only beneficiary can withdraw before expiry", ErrUnauthorized)
	}
	if e.IsExpired(now) {
		return nil, fmt.Errorf("%w: private window closed at %d", ErrExpired, e.Expiry())
	}
	if !VerifySecret(secret, e.Hashlock) {
		return nil, ErrInvalidSecret
	}

	switch {
	case e.Role == EscrowRoleDestination:
		recipient = e.Beneficiary
	case recipient == (common.Address{}):
		recipient = caller
	}

	event := e.withdrawn(secret, caller, recipient, e.Depositor, now)
	e.raise(event)
	return event, nil
}

// PublicWithdraw lets anyone holding the secret claim the funds once the
// private window is over.
func (e *Escrow) PublicWithdraw(secret []byte, caller common.Address, now uint64) (Event, error) {
	if err := e.checkActive(); err != nil {
		return nil, err
	}
	if !e.IsExpired(now) {
		return nil, fmt.Errorf("%w: public withdrawal opens after %d", ErrTimelockNotExpired, e.Expiry())
	}
	if !VerifySecret(secret, e.Hashlock) {
		return nil, ErrInvalidSecret
	}

	event := e.withdrawn(secret, caller, caller, caller, now)
	event.Public = true
	e.raise(event)
	return event, nil
}

// Cancel refunds the depositor. authorized reports whether the caller holds
// a role allowed to cancel on the depositor's behalf.
func (e *Escrow) Cancel(caller common.Address, authorized bool, now uint64) (Event, error) {
	if err := e.checkActive(); err != nil {
		return nil, err
	}
	if !e.IsExpired(now) {
		return nil, fmt.Errorf("%w: cancellation opens after %d", ErrTimelockNotExpired, e.Expiry())
	}
	if caller != e.Depositor && !authorized {
		return nil, fmt.Errorf("%w: only depositor can cancel", ErrUnauthorized)
	}

	event := e.cancelled(caller, e.Depositor, now)
	e.raise(event)
	return event, nil
}

// PublicCancel refunds the depositor on anyone's request once the public
// cancel delay has elapsed. The caller collects the safety deposit.
func (e *Escrow) PublicCancel(caller common.Address, now uint64) (Event, error) {
	if err := e.checkActive(); err != nil {
		return nil, err
	}
	if !e.IsExpired(now) {
		return nil, fmt.Errorf("%w: cancellation opens after %d", ErrTimelockNotExpired, e.Expiry())
	}
	if now <= e.PublicCancelAt() {
		return nil, fmt.Errorf("%w: public cancellation opens after %d", ErrCannotCancelYet, e.PublicCancelAt())
	}

	event := e.cancelled(caller, caller, now)
	event.Public = true
	e.raise(event)
	return event, nil
}

// EmergencyWithdraw skips the secret check. It must only be reachable with
// an admin capability and only once emergencyDelay has elapsed after expiry.
func (e *Escrow) EmergencyWithdraw(
	admin, recipient common.Address, emergencyDelay, now uint64,
) (Event, error) {
	if err := e.checkActive(); err != nil {
		return nil, err
	}
	if recipient == (common.Address{}) {
		return nil, fmt.Errorf("%w: missing recipient", ErrInvalidParams)
	}
	if availableAt := addSaturating(e.Expiry(), emergencyDelay); now <= availableAt {
		return nil, fmt.Errorf("%w: available after %d", ErrEmergencyDelayNotElapsed, availableAt)
	}

	event := e.withdrawn(nil, admin, recipient, recipient, now)
	event.Emergency = true
	e.raise(event)
	return event, nil
}

func (e *Escrow) Expiry() uint64 {
	return addSaturating(e.CreatedAt, e.Timelock)
}

func (e *Escrow) PublicCancelAt() uint64 {
	return addSaturating(e.Expiry(), e.PublicCancelDelay)
}

func (e *Escrow) IsExpired(now uint64) bool {
	return IsExpired(e.CreatedAt, e.Timelock, now)
}

func (e *Escrow) Phase(now uint64) EscrowPhase {
	return PhaseAt(e.CreatedAt, e.Timelock, now)
}

func (e *Escrow) IsActive() bool {
	return e.Status == EscrowActive
}

func (e *Escrow) IsWithdrawn() bool {
	return e.Status == EscrowWithdrawnStatus
}

func (e *Escrow) IsCancelled() bool {
	return e.Status == EscrowCancelledStatus
}

func (e *Escrow) Events() []Event {
	return e.changes
}

func (e *Escrow) checkActive() error {
	switch e.Status {
	case EscrowActive:
		return nil
	case EscrowWithdrawnStatus:
		return fmt.Errorf("%w: escrow %s", ErrAlreadyWithdrawn, e.Address)
	case EscrowCancelledStatus:
		return fmt.Errorf("%w: escrow %s", ErrAlreadyCancelled, e.Address)
	default:
		return fmt.Errorf("%w: escrow %s", ErrNotActive, e.Address)
	}
}

func (e *Escrow) newEvent(eventType EventType) EscrowEvent {
	return EscrowEvent{
		Id:      e.Address.Hex(),
		Type:    eventType,
		ChainId: e.ChainId,
	}
}

func (e *Escrow) withdrawn(
	secret []byte, caller, recipient, depositTo common.Address, now uint64,
) EscrowWithdrawn {
	return EscrowWithdrawn{
		EscrowEvent: e.newEvent(EventTypeEscrowWithdrawn),
		Address:     e.Address,
		OrderHash:   e.OrderHash,
		Hashlock:    e.Hashlock,
		Secret:      append([]byte{}, secret...),
		Caller:      caller,
		Recipient:   recipient,
		Amount:      new(big.Int).Set(e.Amount),
		DepositTo:   depositTo,
		Timestamp:   now,
	}
}

func (e *Escrow) cancelled(caller, depositTo common.Address, now uint64) EscrowCancelled {
	return EscrowCancelled{
		EscrowEvent: e.newEvent(EventTypeEscrowCancelled),
		Address:     e.Address,
		OrderHash:   e.OrderHash,
		Caller:      caller,
		Refunded:    e.Depositor,
		Amount:      new(big.Int).Set(e.Amount),
		DepositTo:   depositTo,
		Timestamp:   now,
	}
}

func (e *Escrow) on(event Event, _ bool) {
	switch ev := event.(type) {
	case EscrowCreated:
		e.Address = ev.Address
		e.ChainId = ev.ChainId
		e.OrderHash = ev.OrderHash
		e.Salt = ev.Salt
		e.Role = ev.Role
		e.Depositor = ev.Depositor
		e.Beneficiary = ev.Beneficiary
		e.Token = ev.Token
		e.Amount = ev.Amount
		e.SafetyDeposit = bigOrZero(ev.SafetyDeposit)
		e.Hashlock = ev.Hashlock
		e.Timelock = ev.Timelock
		e.PublicCancelDelay = ev.PublicCancelDelay
		e.CreatedAt = ev.CreatedAt
		e.Status = EscrowActive
	case EscrowWithdrawn:
		e.Status = EscrowWithdrawnStatus
		e.Secret = ev.Secret
		e.SettledBy = ev.Caller
		e.PaidTo = ev.Recipient
		e.SettledAt = ev.Timestamp
		e.Emergency = ev.Emergency
	case EscrowCancelled:
		e.Status = EscrowCancelledStatus
		e.SettledBy = ev.Caller
		e.PaidTo = ev.Refunded
		e.SettledAt = ev.Timestamp
	}

	e.Version++
}

func (e *Escrow) raise(event Event) {
	if e.changes == nil {
		e.changes = make([]Event, 0)
	}
	e.changes = append(e.changes, event)
	e.on(event, false)
}
