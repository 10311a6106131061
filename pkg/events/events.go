package events

import (
	"sync"
	"time"
)

// EventType names one data-service lifecycle event.
type EventType string

const (
	EventBlockCanonized     EventType = "block.canonized"
	EventTxnSubmitted       EventType = "txn.submitted"
	EventTxnDropped         EventType = "txn.dropped"
	EventTxnPromoted        EventType = "txn.promoted"
	EventGlobalSettingSet   EventType = "global_setting.set"
	EventChildContextClosed EventType = "child_context.closed"
)

// Event is one lifecycle notification. Subject carries what the event
// is about when the publisher has one: a 16-byte block or transaction
// UUID, or the 8-byte key of a global setting. It is empty for events
// without a natural subject.
type Event struct {
	Type      EventType
	Timestamp time.Time
	Subject   []byte
	Metadata  map[string]string
}

// Subscriber is a channel that receives published events.
type Subscriber chan *Event

// Broker fans published events out to subscribers. Publishing never
// blocks the dispatch path: events queue on a buffered channel and a
// subscriber that falls behind misses events rather than stalling the
// service's single loop thread.
type Broker struct {
	subscribers map[Subscriber]bool
	mu          sync.RWMutex
	eventCh     chan *Event
	stopCh      chan struct{}
}

// NewBroker returns a stopped broker; call Start to begin delivery.
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[Subscriber]bool),
		eventCh:     make(chan *Event, 100),
		stopCh:      make(chan struct{}),
	}
}

// Start begins the broker's delivery goroutine.
func (b *Broker) Start() {
	go b.run()
}

// Stop ends delivery. Events published after Stop are discarded.
func (b *Broker) Stop() {
	close(b.stopCh)
}

// Subscribe registers a new subscriber channel.
func (b *Broker) Subscribe() Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := make(Subscriber, 50)
	b.subscribers[sub] = true
	return sub
}

// Unsubscribe removes and closes a subscriber channel.
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.subscribers, sub)
	close(sub)
}

// Publish enqueues an event for delivery, stamping the time if the
// publisher left it zero.
func (b *Broker) Publish(event *Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case b.eventCh <- event:
	case <-b.stopCh:
	}
}

// PublishType publishes a bare event of the given type about subject.
func (b *Broker) PublishType(t EventType, subject []byte) {
	b.Publish(&Event{Type: t, Subject: subject})
}

func (b *Broker) run() {
	for {
		select {
		case event := <-b.eventCh:
			b.broadcast(event)
		case <-b.stopCh:
			return
		}
	}
}

func (b *Broker) broadcast(event *Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subscribers {
		select {
		case sub <- event:
		default:
			// Subscriber buffer full, skip.
		}
	}
}

// SubscriberCount reports the number of active subscribers.
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
