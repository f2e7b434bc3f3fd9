// Package eventbus implements the in-process, non-blocking fan-out every
// accepted mutation publishes to after commit. Subscribers (the webhook
// dispatcher, operational telemetry) each get their own bounded channel; a
// subscriber that cannot keep up loses its oldest pending event rather than
// blocking the publisher, mirroring the audit writer's drop-on-full idiom.
package eventbus

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event is one published domain event, e.g. "content_item.create".
type Event struct {
	Type      string
	TenantID  uuid.UUID
	EntityID  string
	Detail    map[string]any
	CreatedAt time.Time
}

// Matches reports whether pattern matches e.Type. A pattern of "*" matches
// everything; otherwise an exact match is required, matching the webhook
// subscription pattern semantics in spec.md §4.7.
func (e Event) Matches(pattern string) bool {
	return pattern == "*" || pattern == e.Type
}

const subscriberBuffer = 64

// subscriber is one bus listener's bounded mailbox.
type subscriber struct {
	ch chan Event
}

// Bus is a non-blocking publish/subscribe fan-out. The zero value is not
// usable; construct with New.
type Bus struct {
	mu          sync.Mutex
	subscribers map[int]*subscriber
	nextID      int
	logger      *slog.Logger
	dropped     func()
}

// New creates a Bus. dropped, if non-nil, is called once per event dropped
// due to a full subscriber channel (wired to the events_dropped_total
// counter by the caller).
func New(logger *slog.Logger, dropped func()) *Bus {
	return &Bus{
		subscribers: make(map[int]*subscriber),
		logger:      logger,
		dropped:     dropped,
	}
}

// Subscribe registers a new listener and returns a channel of events plus an
// unsubscribe function. The returned channel must be drained by the caller;
// Unsubscribe closes it.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	sub := &subscriber{ch: make(chan Event, subscriberBuffer)}
	b.subscribers[id] = sub

	unsubscribe := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if s, ok := b.subscribers[id]; ok {
			delete(b.subscribers, id)
			close(s.ch)
		}
	}

	return sub.ch, unsubscribe
}

// Publish fans e out to every subscriber without blocking the caller. If a
// subscriber's channel is full, its oldest pending event is dropped to make
// room — the channel never backs up the publisher.
func (b *Bus) Publish(ctx context.Context, e Event) {
	b.mu.Lock()
	subs := make([]*subscriber, 0, len(b.subscribers))
	for _, s := range b.subscribers {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	for _, s := range subs {
		select {
		case s.ch <- e:
		default:
			// Channel full: drop the oldest pending event to make room, then
			// retry once. If it's still full (a second writer raced us),
			// give up on this subscriber for this event rather than block.
			select {
			case <-s.ch:
				if b.dropped != nil {
					b.dropped()
				}
			default:
			}
			select {
			case s.ch <- e:
			default:
				if b.dropped != nil {
					b.dropped()
				}
				if b.logger != nil {
					b.logger.Warn("eventbus: dropping event, subscriber channel full", "event_type", e.Type)
				}
			}
		}
	}
}
