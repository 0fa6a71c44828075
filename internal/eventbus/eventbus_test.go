package eventbus

import (
	"testing"
	"time"
)

func TestSubscribe_ReceivesMatchingTopic(t *testing.T) {
	b := New(4)
	sub := b.Subscribe(KindFill)
	defer sub.Unsubscribe()

	b.Publish(Event{Kind: KindFill, Symbol: "ESZ26"})

	select {
	case e := <-sub.C:
		if e.Symbol != "ESZ26" {
			t.Errorf("symbol = %s, want ESZ26", e.Symbol)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestSubscribe_DoesNotReceiveOtherTopics(t *testing.T) {
	b := New(4)
	sub := b.Subscribe(KindFill)
	defer sub.Unsubscribe()

	b.Publish(Event{Kind: KindOrderAccepted})

	select {
	case e := <-sub.C:
		t.Fatalf("unexpected event received: %+v", e)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSubscribe_NoTopicsReceivesEverything(t *testing.T) {
	b := New(4)
	sub := b.Subscribe()
	defer sub.Unsubscribe()

	b.Publish(Event{Kind: KindFill})
	b.Publish(Event{Kind: KindViolation})

	got := 0
	for i := 0; i < 2; i++ {
		select {
		case <-sub.C:
			got++
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for event")
		}
	}
	if got != 2 {
		t.Errorf("got %d events, want 2", got)
	}
}

func TestPublish_DropsOldestOnOverflowAndCountsIt(t *testing.T) {
	b := New(2)
	sub := b.Subscribe(KindFill)
	defer sub.Unsubscribe()

	b.Publish(Event{Kind: KindFill, Symbol: "1"})
	b.Publish(Event{Kind: KindFill, Symbol: "2"})
	b.Publish(Event{Kind: KindFill, Symbol: "3"}) // overflow: drops "1"

	first := <-sub.C
	second := <-sub.C
	if first.Symbol != "2" || second.Symbol != "3" {
		t.Errorf("got %s, %s; want 2, 3 (oldest dropped)", first.Symbol, second.Symbol)
	}
	if sub.Dropped() != 1 {
		t.Errorf("dropped = %d, want 1", sub.Dropped())
	}
}

func TestPublish_NeverBlocksWithNoSubscribers(t *testing.T) {
	b := New(1)
	done := make(chan struct{})
	go func() {
		b.Publish(Event{Kind: KindFill})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked with no subscribers")
	}
}

func TestUnsubscribe_StopsFurtherDelivery(t *testing.T) {
	b := New(4)
	sub := b.Subscribe(KindFill)
	sub.Unsubscribe()

	b.Publish(Event{Kind: KindFill})

	if _, ok := <-sub.C; ok {
		t.Fatal("expected channel to be closed with no pending events")
	}
}

func TestSubscribe_MultipleSubscribersAllReceive(t *testing.T) {
	b := New(4)
	sub1 := b.Subscribe(KindFill)
	sub2 := b.Subscribe(KindFill)
	defer sub1.Unsubscribe()
	defer sub2.Unsubscribe()

	b.Publish(Event{Kind: KindFill})

	for _, s := range []*Subscription{sub1, sub2} {
		select {
		case <-s.C:
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for event")
		}
	}
}
