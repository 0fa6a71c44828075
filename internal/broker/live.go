// Package broker - live.go implements the live-adapter registrations for
// tastytrade, tradovate, and alpaca.
//
// These adapters follow the same authenticated-HTTP-client shape as the
// Dhan integration this package generalized from (doRequest helper,
// auth header, JSON request/response types), but none of them has wire
// formats implemented yet: every call returns ErrNotConfigured until
// credentials are present in the vault and the broker-specific order
// translation is built out. They exist so the registry and router can
// already route to a real account_group without a nil-pointer panic.
package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/nitinkhare/tradegateway/internal/alert"
)

// liveConfig is the shared shape of a live adapter's JSON config blob.
type liveConfig struct {
	APIKey    string `json:"api_key"`
	APISecret string `json:"api_secret"`
	BaseURL   string `json:"base_url"`
}

// liveAdapter is the common skeleton for an unconfigured (or
// partially-configured) live broker connection.
type liveAdapter struct {
	name   string
	cfg    liveConfig
	client *http.Client
}

func init() {
	Registry["tastytrade"] = newLiveAdapterFactory("tastytrade", "https://api.tastyworks.com")
	Registry["tradovate"] = newLiveAdapterFactory("tradovate", "https://live.tradovateapi.com/v1")
	Registry["alpaca"] = newLiveAdapterFactory("alpaca", "https://api.alpaca.markets")
}

func newLiveAdapterFactory(name, defaultBaseURL string) func([]byte) (Broker, error) {
	return func(configJSON []byte) (Broker, error) {
		var cfg liveConfig
		if len(configJSON) > 0 {
			if err := json.Unmarshal(configJSON, &cfg); err != nil {
				return nil, fmt.Errorf("%s broker: parse config: %w", name, err)
			}
		}
		if cfg.BaseURL == "" {
			cfg.BaseURL = defaultBaseURL
		}
		return &liveAdapter{
			name:   name,
			cfg:    cfg,
			client: &http.Client{Timeout: 30 * time.Second},
		}, nil
	}
}

func (a *liveAdapter) configured() bool {
	return a.cfg.APIKey != "" && a.cfg.APISecret != ""
}

func (a *liveAdapter) Initialize(ctx context.Context) (*InitResult, error) {
	if !a.configured() {
		return nil, fmt.Errorf("%s broker: %w", a.name, ErrNotConfigured)
	}
	// Real session establishment (OAuth/token exchange, account discovery)
	// is not implemented for this adapter yet.
	return nil, fmt.Errorf("%s broker: %w", a.name, ErrNotConfigured)
}

func (a *liveAdapter) ExecuteAlert(ctx context.Context, al *alert.Alert) (*ExecutionResult, error) {
	if !a.configured() {
		return nil, fmt.Errorf("%s broker: %w", a.name, ErrNotConfigured)
	}
	return nil, fmt.Errorf("%s broker: order translation not implemented: %w", a.name, ErrNotConfigured)
}

func (a *liveAdapter) GetPositions(ctx context.Context, accountID string) ([]Position, error) {
	if !a.configured() {
		return nil, fmt.Errorf("%s broker: %w", a.name, ErrNotConfigured)
	}
	return nil, fmt.Errorf("%s broker: %w", a.name, ErrNotConfigured)
}

func (a *liveAdapter) GetQuote(ctx context.Context, symbol string) (*Quote, error) {
	if !a.configured() {
		return nil, fmt.Errorf("%s broker: %w", a.name, ErrNotConfigured)
	}
	return nil, fmt.Errorf("%s broker: %w", a.name, ErrNotConfigured)
}

func (a *liveAdapter) Close() error { return nil }

// doRequest is retained from the teacher's Dhan HTTP-client idiom for the
// day a real wire format lands here: authenticated JSON request/response
// against the broker's REST API, with standard rate-limit/auth error
// classification.
func (a *liveAdapter) doRequest(ctx context.Context, method, path string, body interface{}) ([]byte, error) {
	url := a.cfg.BaseURL + path
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%s broker: create request: %w", a.name, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.cfg.APIKey)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s broker: http request: %w", a.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, fmt.Errorf("%s broker: authentication failed (401)", a.name)
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("%s broker: rate limited (429)", a.name)
	}
	return nil, fmt.Errorf("%s broker: not implemented", a.name)
}
