// Package eventbus is the in-process publish/subscribe bus that carries
// progress notifications and lifecycle events to the host.
package eventbus

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"websearch/internal/domain"
)

// DefaultQueueSize is the per-subscriber buffer used by New.
const DefaultQueueSize = 64

type delivery struct {
	ctx   context.Context
	event domain.Event
}

// subscription delivers events to one handler, in publish order, from its
// own goroutine.
type subscription struct {
	id      uint64
	handler domain.EventHandler
	queue   chan delivery
}

// Bus is an in-process, goroutine-safe event bus. Each subscriber sees
// events in the order they were published; a subscriber whose queue is full
// misses events instead of blocking the publisher.
type Bus struct {
	mu        sync.RWMutex
	typed     map[domain.EventType][]*subscription
	allSubs   []*subscription
	nextID    atomic.Uint64
	queueSize int
	dropped   atomic.Uint64
	logger    *slog.Logger
	wg        sync.WaitGroup
	closed    bool
}

// New creates an event bus with DefaultQueueSize queues.
func New(logger *slog.Logger) *Bus {
	return NewWithQueueSize(logger, DefaultQueueSize)
}

// NewWithQueueSize creates an event bus whose subscribers buffer size events.
func NewWithQueueSize(logger *slog.Logger, size int) *Bus {
	if size < 1 {
		size = 1
	}
	return &Bus{
		typed:     make(map[domain.EventType][]*subscription),
		queueSize: size,
		logger:    logger,
	}
}

// Publish queues event for matching typed subscribers and all-event subscribers.
func (b *Bus) Publish(ctx context.Context, event domain.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}

	for _, sub := range b.typed[event.Type] {
		b.enqueue(ctx, event, sub)
	}
	for _, sub := range b.allSubs {
		b.enqueue(ctx, event, sub)
	}
}

// enqueue must be called with b.mu held for reading.
func (b *Bus) enqueue(ctx context.Context, event domain.Event, sub *subscription) {
	select {
	case sub.queue <- delivery{ctx: ctx, event: event}:
	default:
		b.dropped.Add(1)
		b.logger.Warn("event dropped, subscriber queue full",
			"event", string(event.Type),
			"subscriber", sub.id,
		)
	}
}

// Dropped returns how many deliveries were dropped because a queue was full.
func (b *Bus) Dropped() uint64 { return b.dropped.Load() }

func (b *Bus) start(handler domain.EventHandler) *subscription {
	sub := &subscription{
		id:      b.nextID.Add(1),
		handler: handler,
		queue:   make(chan delivery, b.queueSize),
	}
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for d := range sub.queue {
			b.deliver(sub, d)
		}
	}()
	return sub
}

func (b *Bus) deliver(sub *subscription, d delivery) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				"event", string(d.event.Type),
				"panic", r,
			)
		}
	}()
	sub.handler(d.ctx, d.event)
}

// Subscribe registers a handler for a specific event type.
// Returns an unsubscribe function.
func (b *Bus) Subscribe(eventType domain.EventType, handler domain.EventHandler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return func() {}
	}
	sub := b.start(handler)
	b.typed[eventType] = append(b.typed[eventType], sub)

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.typed[eventType]
		for i, s := range subs {
			if s.id == sub.id {
				b.typed[eventType] = append(subs[:i], subs[i+1:]...)
				close(s.queue)
				return
			}
		}
	}
}

// SubscribeAll registers a handler that receives every event.
// Returns an unsubscribe function.
func (b *Bus) SubscribeAll(handler domain.EventHandler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return func() {}
	}
	sub := b.start(handler)
	b.allSubs = append(b.allSubs, sub)

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, s := range b.allSubs {
			if s.id == sub.id {
				b.allSubs = append(b.allSubs[:i], b.allSubs[i+1:]...)
				close(s.queue)
				return
			}
		}
	}
}

// Close stops new publishes and waits for queued events to be handled.
// It is idempotent.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	for _, subs := range b.typed {
		for _, s := range subs {
			close(s.queue)
		}
	}
	for _, s := range b.allSubs {
		close(s.queue)
	}
	b.typed = nil
	b.allSubs = nil
	b.mu.Unlock()

	b.wg.Wait()
}

var _ domain.EventBus = (*Bus)(nil)
