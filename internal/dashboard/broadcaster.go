// Package dashboard implements the push-transport half of the event bus
// (spec §4.11): a subscription-filtered WebSocket fan-out that sits in
// front of internal/eventbus, plus a secondary Postgres LISTEN/NOTIFY
// feed (events.go) for events raised outside this process.
//
// Broadcaster is the teacher's register/unregister/broadcast channel
// loop, generalized from "every client gets every message" to per-client
// filtering on symbols, account_ids, and event_kinds (§6.4), keeping the
// exact non-blocking channel-select shape.
package dashboard

import (
	"log"
	"sync"
	"time"

	"github.com/nitinkhare/tradegateway/internal/eventbus"
)

// Filter is a client's subscription predicate. An empty set for any
// dimension means "no restriction on that dimension."
type Filter struct {
	Symbols    map[string]struct{}
	AccountIDs map[string]struct{}
	EventKinds map[string]struct{}
}

// Matches reports whether e passes every non-empty dimension of f.
func (f Filter) Matches(e eventbus.Event) bool {
	if len(f.EventKinds) > 0 {
		if _, ok := f.EventKinds[string(e.Kind)]; !ok {
			return false
		}
	}
	if len(f.Symbols) > 0 {
		if _, ok := f.Symbols[e.Symbol]; !ok {
			return false
		}
	}
	if len(f.AccountIDs) > 0 {
		if _, ok := f.AccountIDs[e.AccountID]; !ok {
			return false
		}
	}
	return true
}

// Client represents a connected WebSocket client.
type Client struct {
	ID   string
	Send chan interface{}

	mu     sync.RWMutex
	filter Filter
}

// SetFilter replaces the client's subscription filter, used when the
// client sends a `subscribe`/`unsubscribe` control message.
func (c *Client) SetFilter(f Filter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.filter = f
}

func (c *Client) matches(e eventbus.Event) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.filter.Matches(e)
}

// WebSocketMessage is the envelope for all messages sent to clients.
type WebSocketMessage struct {
	Type      string      `json:"type"`
	Symbol    string      `json:"symbol,omitempty"`
	AccountID string      `json:"account_id,omitempty"`
	Data      interface{} `json:"data"`
	Timestamp string      `json:"timestamp"`
}

// Broadcaster manages WebSocket client connections and fans out events
// from internal/eventbus to the clients whose Filter matches.
type Broadcaster struct {
	clients    map[*Client]bool
	broadcast  chan eventbus.Event
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
	logger     *log.Logger
	shutdown   chan struct{}
}

// NewBroadcaster creates a new Broadcaster instance.
func NewBroadcaster(logger *log.Logger) *Broadcaster {
	return &Broadcaster{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan eventbus.Event, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		logger:     logger,
		shutdown:   make(chan struct{}),
	}
}

// Register registers a new client for broadcasts.
func (b *Broadcaster) Register(client *Client) {
	b.register <- client
}

// Unregister removes a client from broadcasts.
func (b *Broadcaster) Unregister(client *Client) {
	b.unregister <- client
}

// Broadcast queues an event for fan-out to every client whose filter
// matches it.
func (b *Broadcaster) Broadcast(e eventbus.Event) {
	select {
	case b.broadcast <- e:
	case <-b.shutdown:
		// Broadcaster is shutting down, drop the event.
	}
}

// ConsumeBus subscribes to every kind on bus and starts its own
// goroutine that forwards each event into the broadcaster until the
// subscription closes or Shutdown() is called. It returns immediately;
// call it once, from whatever wires the gateway together.
func (b *Broadcaster) ConsumeBus(bus *eventbus.Bus) {
	sub := bus.Subscribe()
	go func() {
		defer sub.Unsubscribe()
		for {
			select {
			case e, ok := <-sub.C:
				if !ok {
					return
				}
				b.Broadcast(e)
			case <-b.shutdown:
				return
			}
		}
	}()
}

// Run starts the broadcaster loop (should be called in a goroutine).
func (b *Broadcaster) Run() {
	defer func() {
		b.logger.Println("broadcaster: shutting down")
	}()

	for {
		select {
		case client := <-b.register:
			b.mu.Lock()
			b.clients[client] = true
			b.mu.Unlock()
			b.logger.Printf("broadcaster: client registered (total: %d)", len(b.clients))

		case client := <-b.unregister:
			b.mu.Lock()
			if _, ok := b.clients[client]; ok {
				delete(b.clients, client)
				close(client.Send)
			}
			b.mu.Unlock()
			b.logger.Printf("broadcaster: client unregistered (total: %d)", len(b.clients))

		case e := <-b.broadcast:
			msg := WebSocketMessage{
				Type:      string(e.Kind),
				Symbol:    e.Symbol,
				AccountID: e.AccountID,
				Data:      e.Payload,
				Timestamp: time.Now().Format(time.RFC3339),
			}

			b.mu.RLock()
			clients := make([]*Client, 0, len(b.clients))
			for client := range b.clients {
				if client.matches(e) {
					clients = append(clients, client)
				}
			}
			b.mu.RUnlock()

			for _, client := range clients {
				select {
				case client.Send <- msg:
				default:
					// Client's Send channel is full; skip rather than block
					// the broadcaster on one slow consumer.
					b.logger.Printf("broadcaster: client %s send channel full, skipping", client.ID)
				}
			}

		case <-b.shutdown:
			return
		}
	}
}

// Shutdown gracefully shuts down the broadcaster.
func (b *Broadcaster) Shutdown() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for client := range b.clients {
		close(client.Send)
	}
	b.clients = make(map[*Client]bool)

	close(b.shutdown)
}

// ClientCount returns the number of connected clients.
func (b *Broadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}
