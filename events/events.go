package events

import (
	"context"
	"slices"
	"sync"

	"github.com/opentip/funnelhub/logger"
)

type Event struct {
	Event      string      `json:"event"`
	Properties interface{} `json:"properties,omitempty"`
}

type EventSubscriber interface {
	ConsumeEvent(ctx context.Context, event *Event, globalProperties map[string]interface{})
}

type EventPublisher interface {
	RegisterSubscriber(subscriber EventSubscriber)
	RemoveSubscriber(subscriber EventSubscriber)
	SetGlobalProperty(key string, value interface{})
	Publish(event *Event)
	PublishSync(event *Event)
}

type eventPublisher struct {
	subscriberMtx    sync.Mutex
	subscribers      []EventSubscriber
	globalProperties map[string]interface{}
}

func NewEventPublisher() *eventPublisher {
	return &eventPublisher{
		subscribers:      []EventSubscriber{},
		globalProperties: map[string]interface{}{},
	}
}

func (ep *eventPublisher) RegisterSubscriber(subscriber EventSubscriber) {
	ep.subscriberMtx.Lock()
	defer ep.subscriberMtx.Unlock()
	ep.subscribers = append(ep.subscribers, subscriber)
}

func (ep *eventPublisher) RemoveSubscriber(subscriberToRemove EventSubscriber) {
	ep.subscriberMtx.Lock()
	defer ep.subscriberMtx.Unlock()
	ep.subscribers = slices.DeleteFunc(ep.subscribers, func(subscriber EventSubscriber) bool {
		return subscriber == subscriberToRemove
	})
}

func (ep *eventPublisher) SetGlobalProperty(key string, value interface{}) {
	ep.subscriberMtx.Lock()
	defer ep.subscriberMtx.Unlock()
	ep.globalProperties[key] = value
}

// Publish delivers the event to every subscriber on its own goroutine.
// Subscribers must tolerate delivery after removal.
func (ep *eventPublisher) Publish(event *Event) {
	ep.publish(event, false)
}

// PublishSync delivers the event inline and returns after every subscriber
// has consumed it.
func (ep *eventPublisher) PublishSync(event *Event) {
	ep.publish(event, true)
}

func (ep *eventPublisher) publish(event *Event, sync bool) {
	ep.subscriberMtx.Lock()
	subscribers := slices.Clone(ep.subscribers)
	globalProperties := ep.globalProperties
	ep.subscriberMtx.Unlock()

	logger.Logger.Debug().
		Str("event", event.Event).
		Int("subscribers", len(subscribers)).
		Msg("Publishing event")

	for _, subscriber := range subscribers {
		if sync {
			subscriber.ConsumeEvent(context.Background(), event, globalProperties)
			continue
		}
		go subscriber.ConsumeEvent(context.Background(), event, globalProperties)
	}
}
