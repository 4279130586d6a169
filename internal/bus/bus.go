// Package bus implements the generic priority-ordered, scope-filtered
// publish/subscribe fabric of the FlowMail dependency core. Both the
// dependency manager and outer bridge adapters observe graph lifecycle
// and data events through it; the manager's direct callback surface is
// implemented as internal subscriptions so a single dispatch path exists.
package bus

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/flowmail/flowmail/internal/logging"
	"github.com/flowmail/flowmail/internal/types"
)

// Listener handles a dispatched event. Returning false on a cancelable
// event halts further dispatch and marks the event canceled; the return
// value is ignored for non-cancelable events.
type Listener func(event *types.Event) bool

// SubscribeOptions configures a subscription.
type SubscribeOptions struct {
	// Scope limits delivery to events whose scope intersects this one.
	// An empty scope receives every event of the subscribed type.
	Scope []string
	// Priority orders dispatch; higher priorities are invoked first.
	Priority int
	// Once removes the subscription after its first invocation.
	Once bool
}

// PublishOptions configures a publish.
type PublishOptions struct {
	// Source identifies the publisher in the event envelope.
	Source string
	// Scope tags the event for scope-filtered delivery.
	Scope []string
	// Cancelable lets a listener halt dispatch by returning false.
	Cancelable bool
	// Async defers each listener invocation off the caller's turn, so a
	// listener can mutate the subscriber list without re-entrancy.
	Async bool
	// Priority is recorded in the envelope and orders paused replays.
	Priority int
	// Metadata is attached to the envelope untouched.
	Metadata map[string]interface{}
}

type subscription struct {
	id        string
	eventType string
	listener  Listener
	scope     []string
	priority  int
	once      bool
	seq       uint64
}

// EventBus dispatches events to subscribed listeners in descending
// priority order. All operations are safe for concurrent use; dispatch
// runs against a snapshot of the subscriber list so listeners may
// subscribe and unsubscribe freely from inside a callback.
type EventBus struct {
	mu      sync.RWMutex
	subs    map[string][]*subscription
	byID    map[string]*subscription
	paused  bool
	pending []*types.Event
	nextSeq uint64
	logger  logging.Logger
}

// NewEventBus creates a new event bus.
func NewEventBus(logger logging.Logger) *EventBus {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &EventBus{
		subs:   make(map[string][]*subscription),
		byID:   make(map[string]*subscription),
		logger: logger.WithComponent("bus"),
	}
}

// Subscribe registers a listener for an event type and returns the
// subscription id used to unsubscribe.
func (b *EventBus) Subscribe(eventType string, listener Listener, opts SubscribeOptions) string {
	sub := &subscription{
		id:        uuid.NewString(),
		eventType: eventType,
		listener:  listener,
		scope:     append([]string(nil), opts.Scope...),
		priority:  opts.Priority,
		once:      opts.Once,
	}

	b.mu.Lock()
	sub.seq = b.nextSeq
	b.nextSeq++
	b.subs[eventType] = append(b.subs[eventType], sub)
	// Higher priority first; insertion order breaks ties.
	sort.SliceStable(b.subs[eventType], func(i, j int) bool {
		si, sj := b.subs[eventType][i], b.subs[eventType][j]
		if si.priority != sj.priority {
			return si.priority > sj.priority
		}
		return si.seq < sj.seq
	})
	b.byID[sub.id] = sub
	b.mu.Unlock()

	return sub.id
}

// SubscribeOnce registers a listener that is removed after its first
// invocation.
func (b *EventBus) SubscribeOnce(eventType string, listener Listener) string {
	return b.Subscribe(eventType, listener, SubscribeOptions{Once: true})
}

// Unsubscribe removes a subscription by id. It reports whether the
// subscription existed.
func (b *EventBus) Unsubscribe(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.removeLocked(id)
}

func (b *EventBus) removeLocked(id string) bool {
	sub, exists := b.byID[id]
	if !exists {
		return false
	}

	delete(b.byID, id)
	list := b.subs[sub.eventType]
	for i, s := range list {
		if s.id == id {
			b.subs[sub.eventType] = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(b.subs[sub.eventType]) == 0 {
		delete(b.subs, sub.eventType)
	}

	return true
}

// Publish builds a full event envelope from the partial data and
// dispatches it. When the bus is paused the envelope is queued and
// replayed in publish order on resume. The envelope is returned so the
// caller can inspect cancellation.
func (b *EventBus) Publish(eventType string, payload interface{}, opts PublishOptions) *types.Event {
	event := &types.Event{
		Type:       eventType,
		ID:         uuid.NewString(),
		Timestamp:  time.Now(),
		Source:     opts.Source,
		Scope:      append([]string(nil), opts.Scope...),
		Priority:   opts.Priority,
		Cancelable: opts.Cancelable,
		Metadata:   opts.Metadata,
		Payload:    payload,
	}

	b.mu.Lock()
	if b.paused {
		b.pending = append(b.pending, event)
		b.mu.Unlock()
		return event
	}
	b.mu.Unlock()

	if opts.Async {
		go b.dispatch(event)
	} else {
		b.dispatch(event)
	}

	return event
}

// Pause buffers all publishes into an ordered queue until Resume.
func (b *EventBus) Pause() {
	b.mu.Lock()
	b.paused = true
	b.mu.Unlock()
}

// Resume replays the paused queue in publish order and re-enables
// immediate dispatch. Listeners registered during the pause also receive
// the replay; there is no snapshot isolation.
func (b *EventBus) Resume() {
	b.mu.Lock()
	queued := b.pending
	b.pending = nil
	b.paused = false
	b.mu.Unlock()

	for _, event := range queued {
		b.dispatch(event)
	}
}

// SubscriberCount returns the number of live subscriptions for a type.
func (b *EventBus) SubscriberCount(eventType string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return len(b.subs[eventType])
}

// dispatch delivers an event to a snapshot of the matching subscriptions.
func (b *EventBus) dispatch(event *types.Event) {
	b.mu.RLock()
	matching := make([]*subscription, 0, len(b.subs[event.Type]))
	for _, sub := range b.subs[event.Type] {
		if scopeMatches(sub.scope, event.Scope) {
			matching = append(matching, sub)
		}
	}
	b.mu.RUnlock()

	for _, sub := range matching {
		// A once listener may already have fired through a concurrent
		// dispatch; skip it if it was removed.
		if sub.once && !b.claimOnce(sub.id) {
			continue
		}

		proceed := b.invoke(sub, event)

		if !proceed && event.Cancelable {
			event.Canceled = true
			break
		}
		if event.PropagationStopped() {
			break
		}
	}
}

// claimOnce removes a once subscription before its invocation, returning
// false if another dispatch claimed it first.
func (b *EventBus) claimOnce(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.removeLocked(id)
}

// invoke runs a listener, converting a panic into an error log so one
// broken listener cannot take down the dispatch loop.
func (b *EventBus) invoke(sub *subscription, event *types.Event) (proceed bool) {
	defer func() {
		if r := recover(); r != nil {
			proceed = true
			b.logger.Error(context.Background(), nil, "listener panic recovered",
				"event_type", event.Type, "subscription_id", sub.id, "panic", r)
		}
	}()

	return sub.listener(event)
}

// scopeMatches reports whether a listener scope admits an event scope.
// A scopeless listener hears everything; otherwise the two scopes must
// intersect.
func scopeMatches(listenerScope, eventScope []string) bool {
	if len(listenerScope) == 0 {
		return true
	}

	for _, ls := range listenerScope {
		for _, es := range eventScope {
			if ls == es {
				return true
			}
		}
	}

	return false
}
