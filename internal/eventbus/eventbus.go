package eventbus

import (
	"sync"
)

// Handler is a function that handles an event
type Handler[T any] func(event T)

// Wildcard subscribes to every topic.
const Wildcard = "*"

type subscription[T any] struct {
	topic   string
	handler Handler[T]
	queue   chan T
}

// EventBus provides in-process pub/sub keyed by topic. Each subscription owns a
// queue drained by one goroutine, so a handler sees events in publish order.
type EventBus[T any] struct {
	mu     sync.RWMutex
	subs   map[string][]*subscription[T]
	buffer int
	closed bool
	wg     sync.WaitGroup
}

// New creates a new EventBus whose subscriptions buffer up to buffer events
// before Publish blocks.
func New[T any](buffer int) *EventBus[T] {
	if buffer < 1 {
		buffer = 1
	}
	return &EventBus[T]{
		subs:   make(map[string][]*subscription[T]),
		buffer: buffer,
	}
}

// Subscribe registers a handler for a topic, or for every topic with Wildcard.
func (e *EventBus[T]) Subscribe(topic string, handler Handler[T]) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}

	s := &subscription[T]{
		topic:   topic,
		handler: handler,
		queue:   make(chan T, e.buffer),
	}
	e.subs[topic] = append(e.subs[topic], s)

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		for ev := range s.queue {
			s.handler(ev)
		}
	}()
}

// Publish queues an event for all subscribers of topic and for wildcard subscribers.
func (e *EventBus[T]) Publish(topic string, event T) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return
	}
	for _, s := range e.matching(topic) {
		s.queue <- event
	}
}

// PublishSync delivers an event on the caller's goroutine, bypassing the queues.
func (e *EventBus[T]) PublishSync(topic string, event T) {
	e.mu.RLock()
	subs := e.matching(topic)
	e.mu.RUnlock()

	for _, s := range subs {
		s.handler(event)
	}
}

func (e *EventBus[T]) matching(topic string) []*subscription[T] {
	out := make([]*subscription[T], 0, len(e.subs[topic])+len(e.subs[Wildcard]))
	out = append(out, e.subs[topic]...)
	if topic != Wildcard {
		out = append(out, e.subs[Wildcard]...)
	}
	return out
}

// HasSubscribers returns true if there are subscribers for the topic
func (e *EventBus[T]) HasSubscribers(topic string) bool {
	return e.SubscriberCount(topic) > 0
}

// SubscriberCount returns the number of subscribers for a topic, wildcard ones excluded.
func (e *EventBus[T]) SubscriberCount(topic string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.subs[topic])
}

// Close stops accepting events and waits until every queued event was handled.
func (e *EventBus[T]) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	for _, subs := range e.subs {
		for _, s := range subs {
			close(s.queue)
		}
	}
	e.mu.Unlock()
	e.wg.Wait()
}
