package journal

import (
	"github.com/nitinkhare/tradegateway/internal/orchestrator"
)

// OrchestratorAdapter implements orchestrator.Journal on top of a
// *Client, translating the orchestrator's minimal JournalEntry shape
// into this package's own Entry before enqueueing it. Kept as its own
// thin type rather than widening Client.Enqueue's signature, so Client
// stays usable by anything that doesn't want an orchestrator dependency.
type OrchestratorAdapter struct {
	Client *Client
}

// NewOrchestratorAdapter wraps client for use as an orchestrator.Journal.
func NewOrchestratorAdapter(client *Client) *OrchestratorAdapter {
	return &OrchestratorAdapter{Client: client}
}

// Enqueue implements orchestrator.Journal.
func (a *OrchestratorAdapter) Enqueue(entry orchestrator.JournalEntry) {
	a.Client.Enqueue(Entry{
		TradeID:     entry.TradeID,
		AccountID:   entry.AccountID,
		Symbol:      entry.Symbol,
		Action:      entry.Action,
		Quantity:    entry.Quantity,
		Price:       entry.Price,
		Commission:  entry.Commission,
		RealizedPnL: entry.RealizedPnL,
		IsPaper:     entry.IsPaper,
		StrategyID:  entry.StrategyID,
		FilledAt:    entry.FilledAt,
	})
}
