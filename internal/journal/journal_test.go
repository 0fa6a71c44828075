package journal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nitinkhare/tradegateway/internal/alert"
	"github.com/shopspring/decimal"
)

func testEntry(tradeID string) Entry {
	return Entry{
		TradeID:     tradeID,
		AccountID:   "paper_simulator",
		Symbol:      "ESZ26",
		Action:      alert.ActionBuy,
		Quantity:    1,
		Price:       decimal.NewFromInt(5000),
		Commission:  decimal.NewFromFloat(3.52),
		RealizedPnL: decimal.NewFromFloat(125.00),
		FilledAt:    time.Date(2026, 7, 30, 15, 4, 5, 0, time.UTC),
	}
}

type recordingServer struct {
	mu       sync.Mutex
	requests []map[string]interface{}
	failN    int32 // number of leading requests to fail with 500
	calls    int32
}

func (s *recordingServer) handler(w http.ResponseWriter, r *http.Request) {
	n := atomic.AddInt32(&s.calls, 1)
	if n <= s.failN {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	var body map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	s.requests = append(s.requests, body)
	s.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

func (s *recordingServer) requestCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func newTestClient(t *testing.T, srv *recordingServer, opts func(*Config)) *Client {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(srv.handler))
	t.Cleanup(ts.Close)

	cfg := Config{
		BaseURL:       ts.URL,
		AppID:         "app",
		MasterKey:     "key",
		BatchSize:     2,
		FlushInterval: time.Hour, // only the size trigger fires in these tests
		MaxAttempts:   3,
		MaxBackoff:    10 * time.Millisecond,
	}
	if opts != nil {
		opts(&cfg)
	}
	c := New(cfg)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		c.Close(ctx)
	})
	return c
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestEnqueue_FlushesOnceBatchSizeReached(t *testing.T) {
	srv := &recordingServer{}
	c := newTestClient(t, srv, nil)

	c.Enqueue(testEntry("t1"))
	c.Enqueue(testEntry("t2"))

	waitFor(t, time.Second, func() bool { return srv.requestCount() == 1 })

	req := srv.requests[0]
	data, ok := req["data"].([]interface{})
	if !ok || len(data) != 2 {
		t.Fatalf("expected a batch of 2 trades, got %+v", req["data"])
	}
}

func TestEnqueue_DoesNotFlushBelowBatchSize(t *testing.T) {
	srv := &recordingServer{}
	c := newTestClient(t, srv, nil)

	c.Enqueue(testEntry("t1"))
	time.Sleep(50 * time.Millisecond)

	if got := srv.requestCount(); got != 0 {
		t.Errorf("requests = %d, want 0 below batch size", got)
	}
}

func TestDedup_TradeIDNeverUploadedTwice(t *testing.T) {
	srv := &recordingServer{}
	c := newTestClient(t, srv, nil)

	c.Enqueue(testEntry("dup"))
	c.Enqueue(testEntry("filler"))
	waitFor(t, time.Second, func() bool { return srv.requestCount() == 1 })
	time.Sleep(20 * time.Millisecond) // let the client mark the first batch as sent

	c.Enqueue(testEntry("dup")) // already sent: must be a no-op
	c.Enqueue(testEntry("filler2"))
	c.Enqueue(testEntry("filler3")) // with filler2, fills the second batch of 2
	waitFor(t, time.Second, func() bool { return srv.requestCount() == 2 })

	seen := map[string]int{}
	for _, req := range srv.requests {
		for _, raw := range req["data"].([]interface{}) {
			rec := raw.(map[string]interface{})
			seen[rec["Trade ID"].(string)]++
		}
	}
	if seen["dup"] != 1 {
		t.Errorf("trade_id 'dup' uploaded %d times, want exactly 1", seen["dup"])
	}
}

func TestUploadWithRetry_SucceedsAfterTransientFailures(t *testing.T) {
	srv := &recordingServer{failN: 2}
	c := newTestClient(t, srv, nil)

	c.Enqueue(testEntry("r1"))
	c.Enqueue(testEntry("r2"))

	waitFor(t, time.Second, func() bool { return srv.requestCount() == 1 })
	if atomic.LoadInt32(&srv.calls) != 3 {
		t.Errorf("calls = %d, want 3 (2 failures + 1 success)", srv.calls)
	}
}

func TestClose_DrainsRemainingQueue(t *testing.T) {
	srv := &recordingServer{}
	ts := httptest.NewServer(http.HandlerFunc(srv.handler))
	defer ts.Close()

	c := New(Config{
		BaseURL:       ts.URL,
		AppID:         "app",
		MasterKey:     "key",
		BatchSize:     10,
		FlushInterval: time.Hour,
		MaxAttempts:   1,
	})
	c.Enqueue(testEntry("d1")) // below batch size, wouldn't flush on its own

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := c.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if srv.requestCount() != 1 {
		t.Errorf("requests after Close = %d, want 1 (drained)", srv.requestCount())
	}
}

func TestEnqueue_DropsOldestWhenQueueFull(t *testing.T) {
	srv := &recordingServer{}
	c := newTestClient(t, srv, func(cfg *Config) {
		cfg.QueueCapacity = 2
		cfg.BatchSize = 100 // never auto-flush; we only check drop accounting
	})

	c.Enqueue(testEntry("a"))
	c.Enqueue(testEntry("b"))
	c.Enqueue(testEntry("c")) // overflow: drops "a"

	if c.Dropped() != 1 {
		t.Errorf("dropped = %d, want 1", c.Dropped())
	}
}
