package broker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
)

func TestLiveAdapter_UnconfiguredReturnsErrNotConfigured(t *testing.T) {
	b, err := New("tastytrade", nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer b.Close()

	if _, err := b.Initialize(context.Background()); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("expected ErrNotConfigured, got %v", err)
	}
}

func TestLiveAdapter_RegistersAllLiveBrokers(t *testing.T) {
	for _, name := range []string{"tastytrade", "tradovate", "alpaca"} {
		if _, ok := Registry[name]; !ok {
			t.Errorf("expected %s to be registered", name)
		}
	}
}

func TestLiveAdapter_ConfiguredStillUnimplemented(t *testing.T) {
	cfg, _ := json.Marshal(liveConfig{APIKey: "k", APISecret: "s"})
	b, err := New("tradovate", cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer b.Close()

	_, err = b.GetPositions(context.Background(), "acct-1")
	if !errors.Is(err, ErrNotConfigured) {
		t.Errorf("expected ErrNotConfigured for unimplemented wire format, got %v", err)
	}
}

func TestNew_UnknownBroker(t *testing.T) {
	_, err := New("nonexistent", nil)
	if err == nil {
		t.Fatal("expected error for unknown broker")
	}
}
