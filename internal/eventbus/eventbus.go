// Package eventbus implements the in-process topic-keyed pub/sub bus
// from spec §4.11: publishers never block on slow subscribers, and each
// subscriber has a bounded buffer that drops the oldest event on
// overflow, counting drops so a slow consumer is observable rather than
// silently starved.
//
// Grounded on the teacher's internal/dashboard.Broadcaster (register/
// unregister/broadcast channels, non-blocking fan-out), generalized from
// a single broadcast-to-everyone channel into per-topic subscriptions
// with bounded, drop-oldest delivery instead of drop-newest.
package eventbus

import (
	"sync"
)

// Kind names the category of a published event, used for push-transport
// subscription filtering (symbols / account_ids / event_kinds).
type Kind string

// Kind values double as the §6.4 push-transport wire message "type",
// except KindFill and KindFlattenRequested: internal-only signals with
// no client-facing wire type of their own (KindOrderAccepted's payload,
// an *orchestrator.ExecutionEvent, already embeds the Fill).
const (
	KindOrderAccepted       Kind = "execution"
	KindFill                Kind = "fill"
	KindPositionUpdated     Kind = "position_update"
	KindAccountUpdated      Kind = "account_update"
	KindFlattenRequested    Kind = "flatten_requested"
	KindStrategyModeChanged Kind = "strategy_mode_changed"
	KindViolation           Kind = "violation"
)

// Event is one published occurrence. Symbol/AccountID are optional
// filter dimensions; Payload carries the kind-specific data.
type Event struct {
	Kind      Kind
	Symbol    string
	AccountID string
	Payload   interface{}
}

// Topic is how subscribers key their subscription. The bus indexes
// purely by Kind; symbol/account filtering happens in the push-transport
// fan-out layer (internal/dashboard), which sees every event and applies
// its own subscription predicate.
type Topic = Kind

// subscriber is one bounded, drop-oldest delivery channel.
type subscriber struct {
	ch      chan Event
	mu      sync.Mutex
	dropped uint64
}

func newSubscriber(bufSize int) *subscriber {
	return &subscriber{ch: make(chan Event, bufSize)}
}

// deliver pushes an event non-blockingly, dropping the oldest buffered
// event (not the new one) on overflow so subscribers always see the most
// recent state.
func (s *subscriber) deliver(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case s.ch <- e:
		return
	default:
	}
	// Buffer full: drop the oldest, then enqueue the new event.
	select {
	case <-s.ch:
		s.dropped++
	default:
	}
	select {
	case s.ch <- e:
	default:
		// Another goroutine raced us and refilled the buffer; count this
		// event as dropped rather than block the publisher.
		s.dropped++
	}
}

// Subscription is a handle returned by Subscribe; read from C until
// Unsubscribe is called (after which C is closed).
type Subscription struct {
	C       <-chan Event
	sub     *subscriber
	bus     *Bus
	topics  []Topic
	closeOnce sync.Once
}

// Dropped returns how many events this subscription has lost to buffer
// overflow since it was created.
func (s *Subscription) Dropped() uint64 {
	s.sub.mu.Lock()
	defer s.sub.mu.Unlock()
	return s.sub.dropped
}

// Unsubscribe removes the subscription from every topic it was
// registered under and closes its channel.
func (s *Subscription) Unsubscribe() {
	s.closeOnce.Do(func() {
		s.bus.unsubscribe(s)
		close(s.sub.ch)
	})
}

// Bus is the process-wide event bus. Zero value is not usable; use New.
type Bus struct {
	mu    sync.RWMutex
	byTopic map[Topic][]*Subscription
	bufSize int
}

// New creates a Bus whose subscribers buffer up to bufSize events before
// dropping the oldest. A bufSize of 0 uses a sensible default.
func New(bufSize int) *Bus {
	if bufSize <= 0 {
		bufSize = 256
	}
	return &Bus{byTopic: make(map[Topic][]*Subscription), bufSize: bufSize}
}

// Subscribe registers for the given topics (event kinds); an empty list
// subscribes to every kind published so far and in the future via
// Publish's fallback broadcast topic.
func (b *Bus) Subscribe(topics ...Topic) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := newSubscriber(b.bufSize)
	s := &Subscription{C: sub.ch, sub: sub, bus: b, topics: topics}
	for _, t := range topics {
		b.byTopic[t] = append(b.byTopic[t], s)
	}
	if len(topics) == 0 {
		b.byTopic[allTopics] = append(b.byTopic[allTopics], s)
	}
	return s
}

const allTopics Topic = "*"

func (b *Bus) unsubscribe(target *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, t := range target.topics {
		b.byTopic[t] = removeSub(b.byTopic[t], target)
	}
	if len(target.topics) == 0 {
		b.byTopic[allTopics] = removeSub(b.byTopic[allTopics], target)
	}
}

func removeSub(list []*Subscription, target *Subscription) []*Subscription {
	out := list[:0]
	for _, s := range list {
		if s != target {
			out = append(out, s)
		}
	}
	return out
}

// Publish fans e out to every subscriber of e.Kind plus every
// subscriber registered with no specific topics. Never blocks.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	subs := append([]*Subscription(nil), b.byTopic[e.Kind]...)
	subs = append(subs, b.byTopic[allTopics]...)
	b.mu.RUnlock()

	for _, s := range subs {
		s.sub.deliver(e)
	}
}
