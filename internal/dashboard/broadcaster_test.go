package dashboard

import (
	"log"
	"os"
	"testing"
	"time"

	"github.com/nitinkhare/tradegateway/internal/eventbus"
)

func testLogger() *log.Logger {
	return log.New(os.Stdout, "[dashboard-test] ", log.LstdFlags)
}

func TestFilter_MatchesEmptyFilterAllowsEverything(t *testing.T) {
	var f Filter
	e := eventbus.Event{Kind: eventbus.KindFill, Symbol: "ESZ26", AccountID: "acct-1"}
	if !f.Matches(e) {
		t.Error("empty filter should match every event")
	}
}

func TestFilter_MatchesRestrictsByEventKind(t *testing.T) {
	f := Filter{EventKinds: map[string]struct{}{string(eventbus.KindFill): {}}}
	if !f.Matches(eventbus.Event{Kind: eventbus.KindFill}) {
		t.Error("expected Fill to match")
	}
	if f.Matches(eventbus.Event{Kind: eventbus.KindViolation}) {
		t.Error("expected Violation not to match")
	}
}

func TestFilter_MatchesRestrictsBySymbolAndAccount(t *testing.T) {
	f := Filter{
		Symbols:    map[string]struct{}{"ESZ26": {}},
		AccountIDs: map[string]struct{}{"acct-1": {}},
	}
	if !f.Matches(eventbus.Event{Symbol: "ESZ26", AccountID: "acct-1"}) {
		t.Error("expected matching symbol+account to pass")
	}
	if f.Matches(eventbus.Event{Symbol: "CLZ26", AccountID: "acct-1"}) {
		t.Error("expected mismatched symbol to be rejected")
	}
	if f.Matches(eventbus.Event{Symbol: "ESZ26", AccountID: "acct-2"}) {
		t.Error("expected mismatched account to be rejected")
	}
}

func TestBroadcaster_DeliversOnlyToMatchingClients(t *testing.T) {
	b := NewBroadcaster(testLogger())
	go b.Run()
	defer b.Shutdown()

	matching := &Client{ID: "matching", Send: make(chan interface{}, 4)}
	matching.SetFilter(Filter{Symbols: map[string]struct{}{"ESZ26": {}}})
	other := &Client{ID: "other", Send: make(chan interface{}, 4)}
	other.SetFilter(Filter{Symbols: map[string]struct{}{"CLZ26": {}}})

	b.Register(matching)
	b.Register(other)
	time.Sleep(20 * time.Millisecond) // let registration land

	b.Broadcast(eventbus.Event{Kind: eventbus.KindFill, Symbol: "ESZ26"})

	select {
	case msg := <-matching.Send:
		wsMsg, ok := msg.(WebSocketMessage)
		if !ok || wsMsg.Symbol != "ESZ26" {
			t.Errorf("unexpected message for matching client: %+v", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("matching client never received the event")
	}

	select {
	case msg := <-other.Send:
		t.Fatalf("non-matching client should not have received a message, got %+v", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBroadcaster_ConsumeBusForwardsEvents(t *testing.T) {
	b := NewBroadcaster(testLogger())
	go b.Run()
	defer b.Shutdown()

	bus := eventbus.New(8)
	b.ConsumeBus(bus)

	client := &Client{ID: "c1", Send: make(chan interface{}, 4)}
	b.Register(client)
	time.Sleep(20 * time.Millisecond)

	bus.Publish(eventbus.Event{Kind: eventbus.KindAccountUpdated, AccountID: "acct-1"})

	select {
	case msg := <-client.Send:
		wsMsg, ok := msg.(WebSocketMessage)
		if !ok || wsMsg.Type != string(eventbus.KindAccountUpdated) {
			t.Errorf("unexpected message: %+v", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("client never received the bus-forwarded event")
	}
}

func TestBroadcaster_UnregisterClosesSendChannel(t *testing.T) {
	b := NewBroadcaster(testLogger())
	go b.Run()
	defer b.Shutdown()

	client := &Client{ID: "c1", Send: make(chan interface{}, 4)}
	b.Register(client)
	time.Sleep(20 * time.Millisecond)
	b.Unregister(client)
	time.Sleep(20 * time.Millisecond)

	_, ok := <-client.Send
	if ok {
		t.Error("expected Send channel to be closed after unregister")
	}
}

func TestBroadcaster_ClientCount(t *testing.T) {
	b := NewBroadcaster(testLogger())
	go b.Run()
	defer b.Shutdown()

	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients initially, got %d", b.ClientCount())
	}

	client := &Client{ID: "c1", Send: make(chan interface{}, 4)}
	b.Register(client)
	time.Sleep(20 * time.Millisecond)

	if b.ClientCount() != 1 {
		t.Errorf("expected 1 client after register, got %d", b.ClientCount())
	}
}
