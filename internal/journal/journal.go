// Package journal implements the trade-journal client from spec §4.10:
// a bounded in-memory queue feeding a background batch-upload worker,
// with per-trade_id dedupe and exponential-backoff retry that never
// blocks the orchestrator.
//
// Grounded in the teacher's internal/broker/dhan.go HTTP style (a
// *http.Client with a fixed timeout, JSON request/response bodies,
// wrapped errors), adapted here for the TradeNote journal schema
// described in original_source/.../tradenote/{client,models}.py.
package journal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nitinkhare/tradegateway/internal/alert"
	"github.com/shopspring/decimal"
)

// maxConcurrentUploads bounds how many batches a backlog catch-up or
// shutdown drain uploads at once, so a large backlog doesn't open
// unbounded concurrent connections to the journal endpoint.
const maxConcurrentUploads = 4

// Entry is one fill normalized for journaling, handed in by the
// orchestrator ahead of Client's own TradeNote schema mapping.
type Entry struct {
	TradeID     string
	AccountID   string
	Symbol      string
	Action      alert.Action
	Quantity    int
	Price       decimal.Decimal
	Commission  decimal.Decimal
	RealizedPnL decimal.Decimal
	IsPaper     bool
	StrategyID  string
	FilledAt    time.Time
}

// tradeRecord is the TradeNote wire schema (spec §6.5 / §4.10 mapping),
// grounded on TradeNoteTradeData's field set and MM/DD/YYYY + HH:MM:SS
// UTC rendering.
type tradeRecord struct {
	Account         string  `json:"Account"`
	TradeDate       string  `json:"T/D"`
	SettlementDate  string  `json:"S/D"`
	Currency        string  `json:"Currency"`
	Type            string  `json:"Type"`
	Side            string  `json:"Side"`
	Symbol          string  `json:"Symbol"`
	Quantity        int     `json:"Qty"`
	Price           float64 `json:"Price"`
	ExecTime        string  `json:"Exec Time"`
	GrossProceeds   float64 `json:"Gross Proceeds"`
	CommissionsFees float64 `json:"Commissions & Fees"`
	NetProceeds     float64 `json:"Net Proceeds"`
	Strategy        string  `json:"Strategy,omitempty"`
	PaperTrade      string  `json:"Paper Trade"`
	TradeID         string  `json:"Trade ID"`
}

func toTradeRecord(e Entry) tradeRecord {
	info := alert.ResolveSymbol(e.Symbol)
	kind := "stock"
	switch info.Kind {
	case alert.AssetFuture:
		kind = "future"
	case alert.AssetOption:
		kind = "option"
	case alert.AssetCrypto:
		kind = "crypto"
	}

	side := "Buy"
	if e.Action == alert.ActionSell || e.Action == alert.ActionClose {
		side = "Sell"
	}

	gross, _ := e.RealizedPnL.Float64()
	comm, _ := e.Commission.Float64()
	price, _ := e.Price.Float64()
	// net_proceeds = gross_proceeds - commission - |slippage|; this
	// client has no separate slippage figure (it's already folded into
	// the simulator's fill price), so the slippage term is zero here.
	netProceeds := e.RealizedPnL.Sub(e.Commission)
	net, _ := netProceeds.Float64()

	paper := "No"
	if e.IsPaper {
		paper = "Yes"
	}

	date := e.FilledAt.UTC().Format("01/02/2006")
	return tradeRecord{
		Account:         e.AccountID,
		TradeDate:       date,
		SettlementDate:  date,
		Currency:        "USD",
		Type:            kind,
		Side:            side,
		Symbol:          e.Symbol,
		Quantity:        e.Quantity,
		Price:           price,
		ExecTime:        e.FilledAt.UTC().Format("15:04:05"),
		GrossProceeds:   gross,
		CommissionsFees: comm,
		NetProceeds:     net,
		Strategy:        e.StrategyID,
		PaperTrade:      paper,
		TradeID:         e.TradeID,
	}
}

// Config configures a Client.
type Config struct {
	BaseURL       string
	AppID         string
	MasterKey     string
	BrokerName    string
	HTTPClient    *http.Client
	Logger        *log.Logger
	Now           func() time.Time
	QueueCapacity int           // default 1000
	BatchSize     int           // B, default 10
	FlushInterval time.Duration // T, default 30s
	MaxAttempts   int           // M, default 3
	MaxBackoff    time.Duration // cap on 2^n backoff, default 60s
}

// Client queues fills and uploads them to the journal in batches,
// absorbing all of its own transient errors per spec §7 ("the journal
// client absorbs all its own transient errors").
type Client struct {
	cfg    Config
	client *http.Client
	logger *log.Logger
	now    func() time.Time

	mu       sync.Mutex
	queue    []Entry
	sent     map[string]bool // trade_id dedupe, lifetime of the process
	dropped  uint64
	stopCh   chan struct{}
	doneCh   chan struct{}
	flushNow chan struct{}
}

// New creates a Client and starts its background upload worker. Call
// Close to flush and stop it.
func New(cfg Config) *Client {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(log.Writer(), "[journal] ", log.LstdFlags)
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = 1000
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 30 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 60 * time.Second
	}
	if cfg.BrokerName == "" {
		cfg.BrokerName = "tradegateway"
	}

	c := &Client{
		cfg:      cfg,
		client:   cfg.HTTPClient,
		logger:   cfg.Logger,
		now:      cfg.Now,
		sent:     make(map[string]bool),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
		flushNow: make(chan struct{}, 1),
	}
	go c.run()
	return c
}

// Enqueue adds a fill to the bounded queue. On a full queue the oldest
// queued item is dropped (never the orchestrator's call blocked), per
// §5's backpressure rule. A trade_id already uploaded this process
// lifetime is silently ignored.
func (c *Client) Enqueue(entry Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sent[entry.TradeID] {
		return
	}
	if len(c.queue) >= c.cfg.QueueCapacity {
		c.queue = c.queue[1:]
		c.dropped++
	}
	c.queue = append(c.queue, entry)

	select {
	case c.flushNow <- struct{}{}:
	default:
	}
}

// Dropped returns how many queued entries were discarded for capacity.
func (c *Client) Dropped() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropped
}

func (c *Client) run() {
	defer close(c.doneCh)
	ticker := time.NewTicker(c.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			c.drain(context.Background())
			return
		case <-ticker.C:
			c.flushOnce(context.Background())
		case <-c.flushNow:
			if ql := c.queueLen(); ql >= c.cfg.BatchSize {
				// A burst of fills can queue several batches' worth
				// between ticks; catch up with bounded concurrent
				// workers instead of trickling one batch per signal.
				batches := ql / c.cfg.BatchSize
				if batches <= 1 {
					c.flushOnce(context.Background())
				} else {
					c.flushBacklog(context.Background(), batches)
				}
			}
		}
	}
}

func (c *Client) queueLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// flushOnce uploads at most one batch.
func (c *Client) flushOnce(ctx context.Context) {
	batch := c.takeBatch()
	if len(batch) == 0 {
		return
	}
	c.uploadWithRetry(ctx, batch)
}

func (c *Client) takeBatch() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := c.cfg.BatchSize
	if n > len(c.queue) {
		n = len(c.queue)
	}
	batch := append([]Entry(nil), c.queue[:n]...)
	c.queue = c.queue[n:]
	return batch
}

// requeue puts a failed batch back at the front of the queue so it is
// retried ahead of newer entries.
func (c *Client) requeue(batch []Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queue = append(append([]Entry(nil), batch...), c.queue...)
}

func (c *Client) markSent(batch []Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range batch {
		c.sent[e.TradeID] = true
	}
}

// uploadWithRetry uploads batch, retrying the whole batch with
// exponential backoff (2^n, capped) up to MaxAttempts, per §4.10. After
// the final failed attempt it logs and moves on; the batch is dropped
// (not requeued) so a permanently-failing batch can't wedge the queue.
func (c *Client) uploadWithRetry(ctx context.Context, batch []Entry) {
	var lastErr error
	for attempt := 0; attempt < c.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt)) * time.Second
			if backoff > c.cfg.MaxBackoff {
				backoff = c.cfg.MaxBackoff
			}
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				c.requeue(batch)
				return
			}
		}
		if err := c.upload(ctx, batch); err != nil {
			lastErr = err
			continue
		}
		c.markSent(batch)
		return
	}
	c.logger.Printf("journal: batch of %d trades failed after %d attempts: %v", len(batch), c.cfg.MaxAttempts, lastErr)
}

func (c *Client) upload(ctx context.Context, batch []Entry) error {
	records := make([]tradeRecord, 0, len(batch))
	for _, e := range batch {
		records = append(records, toTradeRecord(e))
	}

	payload := map[string]interface{}{
		"data":            records,
		"selectedBroker":  c.cfg.BrokerName,
		"uploadMfePrices": false,
		"appId":           c.cfg.AppID,
		"masterKey":       c.cfg.MasterKey,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("journal: encode batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/api/trades", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("journal: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("journal: upload: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("journal: upload rejected: status %d", resp.StatusCode)
	}
	return nil
}

// flushBacklog uploads up to maxBatches batches concurrently, bounded by
// maxConcurrentUploads, supervising the workers with an errgroup so the
// caller can wait for the whole round instead of joining goroutines by
// hand. uploadWithRetry already absorbs its own errors (spec §7), so
// every worker always returns nil; the group exists to bound and await
// concurrency, not to propagate failures.
func (c *Client) flushBacklog(ctx context.Context, maxBatches int) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentUploads)
	for i := 0; i < maxBatches; i++ {
		batch := c.takeBatch()
		if len(batch) == 0 {
			break
		}
		g.Go(func() error {
			c.uploadWithRetry(gctx, batch)
			return nil
		})
	}
	g.Wait()
}

// drain flushes every remaining queued batch, used on shutdown. Batches
// within each round upload concurrently via flushBacklog so a large
// backlog drains within the shutdown deadline instead of one batch at a
// time.
func (c *Client) drain(ctx context.Context) {
	for {
		ql := c.queueLen()
		if ql == 0 {
			return
		}
		batches := (ql + c.cfg.BatchSize - 1) / c.cfg.BatchSize
		c.flushBacklog(ctx, batches)
	}
}

// Close stops the background worker, draining the queue with the given
// deadline, per spec §5's shutdown sequencing.
func (c *Client) Close(ctx context.Context) error {
	close(c.stopCh)
	select {
	case <-c.doneCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
