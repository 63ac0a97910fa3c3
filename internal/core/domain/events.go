package domain

import "context"

type EventType int

const (
	EventTypeUndefined EventType = iota

	// Order
	EventTypeOrderCreated
	EventTypeOrderFilled
	EventTypeOrderPartiallyFilled
	EventTypeOrderCancelled
)

const (
	// Escrow
	EventTypeEscrowCreated EventType = iota + 100
	EventTypeEscrowWithdrawn
	EventTypeEscrowCancelled
)

func (t EventType) String() string {
	switch t {
	case EventTypeOrderCreated:
		return "OrderCreated"
	case EventTypeOrderFilled:
		return "OrderFilled"
	case EventTypeOrderPartiallyFilled:
		return "OrderPartiallyFilled"
	case EventTypeOrderCancelled:
		return "OrderCancelled"
	case EventTypeEscrowCreated:
		return "EscrowCreated"
	case EventTypeEscrowWithdrawn:
		return "EscrowWithdrawn"
	case EventTypeEscrowCancelled:
		return "EscrowCancelled"
	default:
		return "Undefined"
	}
}

type Event interface {
	GetTopic() string
	GetType() EventType
	GetChainId() uint64
}

type EventRepository interface {
	Save(ctx context.Context, topic, id string, events []Event) error
	RegisterEventsHandler(topic string, handler func(events []Event))
	ClearRegisteredHandlers(topic ...string)
	Close()
}
