package watermilldb

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/13x54n/multiverse/internal/core/domain"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

type subscriber struct {
	topic   string
	handler func(events []domain.Event)
}

type eventRepository struct {
	publisher message.Publisher

	subscribers    map[string][]subscriber // topic -> subscribers
	subscriberLock *sync.Mutex
	caches         map[string]*eventCache // topic -> cache
	cacheLock      *sync.Mutex
}

func NewWatermillEventRepository(publisher message.Publisher) domain.EventRepository {
	return &eventRepository{
		publisher:      publisher,
		subscribers:    make(map[string][]subscriber),
		subscriberLock: &sync.Mutex{},
		caches:         make(map[string]*eventCache),
		cacheLock:      &sync.Mutex{},
	}
}

// NewEventRepository builds the repository on top of an in-process go
// channel pubsub.
func NewEventRepository(config ...interface{}) (domain.EventRepository, error) {
	var logger watermill.LoggerAdapter = watermill.NopLogger{}
	if len(config) > 0 && config[0] != nil {
		l, ok := config[0].(watermill.LoggerAdapter)
		if !ok {
			return nil, fmt.Errorf("invalid logger")
		}
		logger = l
	}
	pubsub := gochannel.NewGoChannel(gochannel.Config{}, logger)
	return NewWatermillEventRepository(pubsub), nil
}

func (e *eventRepository) ClearRegisteredHandlers(topics ...string) {
	e.subscriberLock.Lock()
	defer e.subscriberLock.Unlock()

	if len(topics) == 0 {
		e.subscribers = make(map[string][]subscriber)
		return
	}

	for _, topic := range topics {
		delete(e.subscribers, topic)
	}
}

func (e *eventRepository) Close() {
	//nolint:errcheck
	e.publisher.Close()
}

func (e *eventRepository) RegisterEventsHandler(topic string, handler func(events []domain.Event)) {
	e.subscriberLock.Lock()
	defer e.subscriberLock.Unlock()

	if _, ok := e.subscribers[topic]; !ok {
		e.subscribers[topic] = make([]subscriber, 0)
	}

	e.subscribers[topic] = append(e.subscribers[topic], subscriber{
		topic:   topic,
		handler: handler,
	})
}

func (e *eventRepository) Save(ctx context.Context, topic, id string, events []domain.Event) error {
	if len(events) == 0 {
		return nil
	}
	if err := e.publish(topic, events); err != nil {
		return err
	}

	e.cacheLock.Lock()
	defer e.cacheLock.Unlock()

	if _, ok := e.caches[topic]; !ok {
		e.caches[topic] = newEventCache()
	}

	e.caches[topic].add(id, events)

	e.dispatch(topic, id)

	return nil
}

// dispatch hands the whole known history of id to every subscriber of topic.
func (e *eventRepository) dispatch(topic, id string) {
	events := e.caches[topic].get(id)
	if len(events) == 0 {
		return
	}

	e.subscriberLock.Lock()
	for _, subscriber := range e.subscribers[topic] {
		go subscriber.handler(events)
	}
	e.subscriberLock.Unlock()

	lastEvent := events[len(events)-1]
	if noMoreEventsAfter(lastEvent.GetType()) {
		e.caches[topic].remove(id)
	}
}

func (e *eventRepository) publish(topic string, events []domain.Event) error {
	return e.publisher.Publish(topic, toWatermillMessages(events)...)
}

func toWatermillMessages(events []domain.Event) []*message.Message {
	watermillMessages := make([]*message.Message, 0, len(events))
	for _, event := range events {
		payload, err := json.Marshal(event)
		if err != nil {
			continue
		}

		msg := message.NewMessage(watermill.NewUUID(), payload)
		msg.Metadata.Set("type", event.GetType().String())
		msg.Metadata.Set("chain_id", fmt.Sprintf("%d", event.GetChainId()))
		watermillMessages = append(watermillMessages, msg)
	}

	return watermillMessages
}

// OrderFilled is only ever the last event of an order once it is fully
// filled, partial fills are followed by OrderPartiallyFilled.
func noMoreEventsAfter(eventType domain.EventType) bool {
	return eventType == domain.EventTypeOrderFilled ||
		eventType == domain.EventTypeOrderCancelled ||
		eventType == domain.EventTypeEscrowWithdrawn ||
		eventType == domain.EventTypeEscrowCancelled
}
