// Package alert defines the Alert data model and validates/normalizes
// inbound webhook payloads before they reach the router.
//
// Design rules (from spec):
//   - An Alert is immutable once it passes validation.
//   - Validation never trusts client-supplied types; every field is
//     type-checked and range-checked.
//   - Unknown fields are preserved but their values are still scanned
//     against the content denylist.
package alert

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Action is what the alert is asking the gateway to do.
type Action string

const (
	ActionBuy   Action = "buy"
	ActionSell  Action = "sell"
	ActionClose Action = "close"
)

// OrderType is the requested order style.
type OrderType string

const (
	OrderTypeMarket    OrderType = "market"
	OrderTypeLimit     OrderType = "limit"
	OrderTypeStop      OrderType = "stop"
	OrderTypeStopLimit OrderType = "stop_limit"
)

// AssetKind is the instrument class derived from the symbol.
type AssetKind string

const (
	AssetFuture AssetKind = "future"
	AssetOption AssetKind = "option"
	AssetCrypto AssetKind = "crypto"
	AssetStock  AssetKind = "stock"
)

// ErrorKind classifies a ValidationError per spec §4.1.
type ErrorKind string

const (
	ErrMalformedEncoding   ErrorKind = "malformed_encoding"
	ErrMissingRequiredField ErrorKind = "missing_required_field"
	ErrOutOfRange          ErrorKind = "out_of_range"
	ErrForbiddenContent    ErrorKind = "forbidden_content"
)

// ValidationError reports why Parse rejected a payload.
type ValidationError struct {
	Kind  ErrorKind
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("alert: %s: %s: %s", e.Kind, e.Field, e.Msg)
	}
	return fmt.Sprintf("alert: %s: %s", e.Kind, e.Msg)
}

func newErr(kind ErrorKind, field, msg string) *ValidationError {
	return &ValidationError{Kind: kind, Field: field, Msg: msg}
}

// Alert is a validated, normalized instruction-to-trade.
// It is immutable after Parse returns it.
type Alert struct {
	AlertID      string          `json:"alert_id"`
	Symbol       string          `json:"symbol"`
	Action       Action          `json:"action"`
	Quantity     int             `json:"quantity"`
	OrderType    OrderType       `json:"order_type"`
	Price        decimal.Decimal `json:"price,omitempty"`
	StopPrice    decimal.Decimal `json:"stop_price,omitempty"`
	StrategyID   string          `json:"strategy_id,omitempty"`
	AccountGroup string          `json:"account_group"`
	AlertName    string          `json:"alert_name,omitempty"`
	Comment      string          `json:"comment,omitempty"`
	Timestamp    time.Time       `json:"timestamp"`

	// Extra preserves unknown fields verbatim (not interpreted, but
	// still scanned against the content denylist at parse time).
	Extra map[string]interface{} `json:"-"`
}

// SymbolInfo carries the asset-kind/tick/multiplier facts a symbol
// resolves to, per spec §3 and the authoritative table in §6.7.
type SymbolInfo struct {
	Root       string
	Kind       AssetKind
	Multiplier decimal.Decimal
	Tick       decimal.Decimal
}

// symbolTable is the authoritative futures-root table from spec §6.7.
var symbolTable = map[string]SymbolInfo{
	"ES":  {Root: "ES", Kind: AssetFuture, Multiplier: decimal.NewFromInt(50), Tick: decimal.NewFromFloat(0.25)},
	"NQ":  {Root: "NQ", Kind: AssetFuture, Multiplier: decimal.NewFromInt(20), Tick: decimal.NewFromFloat(0.25)},
	"YM":  {Root: "YM", Kind: AssetFuture, Multiplier: decimal.NewFromInt(5), Tick: decimal.NewFromInt(1)},
	"RTY": {Root: "RTY", Kind: AssetFuture, Multiplier: decimal.NewFromInt(50), Tick: decimal.NewFromFloat(0.10)},
	"GC":  {Root: "GC", Kind: AssetFuture, Multiplier: decimal.NewFromInt(100), Tick: decimal.NewFromFloat(0.10)},
	"SI":  {Root: "SI", Kind: AssetFuture, Multiplier: decimal.NewFromInt(5000), Tick: decimal.NewFromFloat(0.005)},
	"CL":  {Root: "CL", Kind: AssetFuture, Multiplier: decimal.NewFromInt(1000), Tick: decimal.NewFromFloat(0.01)},
	"NG":  {Root: "NG", Kind: AssetFuture, Multiplier: decimal.NewFromInt(10000), Tick: decimal.NewFromFloat(0.001)},
}

var cryptoSymbols = map[string]bool{
	"BTCUSD": true, "ETHUSD": true, "SOLUSD": true, "BTCUSDT": true, "ETHUSDT": true,
}

// equityDefault is the fallback SymbolInfo for any symbol that is not a
// known futures root, option, or crypto symbol.
var equityDefault = SymbolInfo{Kind: AssetStock, Multiplier: decimal.NewFromInt(1), Tick: decimal.NewFromFloat(0.01)}

// ResolveSymbol derives the AssetKind, tick size, and multiplier for a
// (already upper-cased) symbol, per spec §3 and §6.7.
func ResolveSymbol(symbol string) SymbolInfo {
	root := futuresRoot(symbol)
	if info, ok := symbolTable[root]; ok {
		return info
	}
	if strings.Contains(symbol, "/") || strings.HasSuffix(symbol, "C") || strings.HasSuffix(symbol, "P") {
		return SymbolInfo{Kind: AssetOption, Multiplier: decimal.NewFromInt(100), Tick: decimal.NewFromFloat(0.01)}
	}
	if cryptoSymbols[symbol] {
		return SymbolInfo{Kind: AssetCrypto, Multiplier: decimal.NewFromInt(1), Tick: decimal.NewFromFloat(0.01)}
	}
	return equityDefault
}

// futuresRoot strips a trailing contract-month/year code (e.g. "ESZ25" -> "ES").
// Known roots are 1-3 letters; we try the longest known prefix first.
func futuresRoot(symbol string) string {
	for _, n := range []int{3, 2, 1} {
		if len(symbol) > n {
			if _, ok := symbolTable[symbol[:n]]; ok {
				return symbol[:n]
			}
		}
	}
	if _, ok := symbolTable[symbol]; ok {
		return symbol
	}
	return symbol
}

// ────────────────────────────────────────────────────────────────────
// Content denylist
// ────────────────────────────────────────────────────────────────────

var sqlDenylist = regexp.MustCompile(`(?i)\b(union|drop|delete|insert|update|exec|xp_cmdshell)\b|';|--`)
var shellMeta = regexp.MustCompile("[;|`]|\\$\\(|&&")
var htmlInjection = regexp.MustCompile(`(?i)<script|javascript:|data:text/html`)
var controlChars = regexp.MustCompile(`[\x00-\x08\x0b\x0c\x0e-\x1f]`)
var pathTraversal = regexp.MustCompile(`\.\./`)

var symbolAllowed = regexp.MustCompile(`^[A-Z0-9._/-]+$`)

const maxNestedDepth = 3

// scanForbiddenContent applies the §4.1 content denylist to a single
// string value. It reports the first matching rule.
func scanForbiddenContent(field, value string) error {
	switch {
	case sqlDenylist.MatchString(value):
		return newErr(ErrForbiddenContent, field, "sql meta-sequence detected")
	case shellMeta.MatchString(value):
		return newErr(ErrForbiddenContent, field, "shell meta-character detected")
	case htmlInjection.MatchString(value):
		return newErr(ErrForbiddenContent, field, "script/html injection detected")
	case controlChars.MatchString(value):
		return newErr(ErrForbiddenContent, field, "control character detected")
	case pathTraversal.MatchString(value):
		return newErr(ErrForbiddenContent, field, "path traversal sequence detected")
	}
	return nil
}

// scanValue recursively scans an arbitrary JSON-decoded value (string,
// number, bool, map, or slice) for forbidden content, rejecting any
// nesting deeper than maxNestedDepth.
func scanValue(field string, v interface{}, depth int) error {
	if depth > maxNestedDepth {
		return newErr(ErrForbiddenContent, field, "nesting exceeds maximum depth")
	}
	switch val := v.(type) {
	case string:
		return scanForbiddenContent(field, val)
	case map[string]interface{}:
		for k, nested := range val {
			if err := scanValue(field+"."+k, nested, depth+1); err != nil {
				return err
			}
		}
	case []interface{}:
		for i, nested := range val {
			if err := scanValue(fmt.Sprintf("%s[%d]", field, i), nested, depth+1); err != nil {
				return err
			}
		}
	}
	return nil
}

// ────────────────────────────────────────────────────────────────────
// Parse / Serialize
// ────────────────────────────────────────────────────────────────────

// rawAlert mirrors the wire shape for decoding before validation.
type rawAlert struct {
	Symbol       string          `json:"symbol"`
	Action       string          `json:"action"`
	Quantity     json.Number     `json:"quantity"`
	OrderType    string          `json:"order_type"`
	Price        *string         `json:"price"`
	StopPrice    *string         `json:"stop_price"`
	StrategyID   string          `json:"strategy_id"`
	AccountGroup string          `json:"account_group"`
	AlertName    string          `json:"alert_name"`
	Comment      string          `json:"comment"`
	Timestamp    *string         `json:"timestamp"`
	AlertID      string          `json:"alert_id"`
}

// Parse decodes and validates a raw webhook body into an Alert.
// alert_id and timestamp are server-assigned when absent.
func Parse(raw []byte) (*Alert, error) {
	var generic map[string]interface{}
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	dec.UseNumber()
	if err := dec.Decode(&generic); err != nil {
		return nil, newErr(ErrMalformedEncoding, "", err.Error())
	}

	// Scan every field (known and unknown) for forbidden content before
	// interpreting any of them.
	for k, v := range generic {
		if err := scanValue(k, v, 0); err != nil {
			return nil, err
		}
	}

	body, _ := json.Marshal(generic)
	var raw2 rawAlert
	if err := json.Unmarshal(body, &raw2); err != nil {
		return nil, newErr(ErrMalformedEncoding, "", err.Error())
	}

	a := &Alert{}

	if raw2.Symbol == "" {
		return nil, newErr(ErrMissingRequiredField, "symbol", "symbol is required")
	}
	symbol := strings.ToUpper(strings.TrimSpace(raw2.Symbol))
	if len(symbol) > 16 {
		return nil, newErr(ErrOutOfRange, "symbol", "exceeds 16 characters")
	}
	if !symbolAllowed.MatchString(symbol) {
		return nil, newErr(ErrForbiddenContent, "symbol", "contains disallowed characters")
	}
	a.Symbol = symbol

	switch Action(strings.ToLower(raw2.Action)) {
	case ActionBuy, ActionSell, ActionClose:
		a.Action = Action(strings.ToLower(raw2.Action))
	default:
		return nil, newErr(ErrMissingRequiredField, "action", "must be buy, sell, or close")
	}

	if raw2.Quantity == "" {
		return nil, newErr(ErrMissingRequiredField, "quantity", "quantity is required")
	}
	qty, err := raw2.Quantity.Int64()
	if err != nil {
		return nil, newErr(ErrOutOfRange, "quantity", "must be an integer")
	}
	if qty < 1 || qty > 9999 {
		return nil, newErr(ErrOutOfRange, "quantity", "must be in [1, 9999]")
	}
	a.Quantity = int(qty)

	orderType := OrderTypeMarket
	if raw2.OrderType != "" {
		orderType = OrderType(strings.ToLower(raw2.OrderType))
	}
	switch orderType {
	case OrderTypeMarket, OrderTypeLimit, OrderTypeStop, OrderTypeStopLimit:
		a.OrderType = orderType
	default:
		return nil, newErr(ErrOutOfRange, "order_type", "must be market, limit, stop, or stop_limit")
	}

	if raw2.Price != nil {
		p, err := decimal.NewFromString(*raw2.Price)
		if err != nil {
			return nil, newErr(ErrOutOfRange, "price", "not a valid decimal")
		}
		if p.Sign() <= 0 || p.GreaterThan(decimal.NewFromInt(10_000_000)) {
			return nil, newErr(ErrOutOfRange, "price", "must be in (0, 10000000]")
		}
		a.Price = p
	}
	if a.OrderType == OrderTypeLimit || a.OrderType == OrderTypeStopLimit {
		if a.Price.IsZero() {
			return nil, newErr(ErrMissingRequiredField, "price", "required for limit/stop_limit orders")
		}
	}

	if raw2.StopPrice != nil {
		sp, err := decimal.NewFromString(*raw2.StopPrice)
		if err != nil {
			return nil, newErr(ErrOutOfRange, "stop_price", "not a valid decimal")
		}
		if sp.Sign() <= 0 || sp.GreaterThan(decimal.NewFromInt(10_000_000)) {
			return nil, newErr(ErrOutOfRange, "stop_price", "must be in (0, 10000000]")
		}
		a.StopPrice = sp
	}
	if a.OrderType == OrderTypeStop || a.OrderType == OrderTypeStopLimit {
		if a.StopPrice.IsZero() {
			return nil, newErr(ErrMissingRequiredField, "stop_price", "required for stop/stop_limit orders")
		}
	}

	a.StrategyID = raw2.StrategyID
	a.AccountGroup = strings.ToLower(strings.TrimSpace(raw2.AccountGroup))
	a.AlertName = raw2.AlertName
	a.Comment = raw2.Comment

	if raw2.Timestamp != nil && *raw2.Timestamp != "" {
		ts, err := time.Parse(time.RFC3339, *raw2.Timestamp)
		if err != nil {
			return nil, newErr(ErrOutOfRange, "timestamp", "must be RFC3339")
		}
		a.Timestamp = ts
	} else {
		a.Timestamp = time.Now().UTC()
	}

	if raw2.AlertID != "" {
		a.AlertID = raw2.AlertID
	} else {
		a.AlertID = uuid.NewString()
	}

	known := map[string]bool{
		"symbol": true, "action": true, "quantity": true, "order_type": true,
		"price": true, "stop_price": true, "strategy_id": true, "account_group": true,
		"alert_name": true, "comment": true, "timestamp": true, "alert_id": true,
	}
	extra := make(map[string]interface{})
	for k, v := range generic {
		if !known[k] {
			extra[k] = v
		}
	}
	if len(extra) > 0 {
		a.Extra = extra
	}

	return a, nil
}

// Serialize renders the Alert back to the wire JSON shape Parse accepts,
// so that Parse(Serialize(Parse(x))) == Parse(x) (spec property 9).
func (a *Alert) Serialize() ([]byte, error) {
	out := map[string]interface{}{
		"symbol":        a.Symbol,
		"action":        string(a.Action),
		"quantity":      a.Quantity,
		"order_type":    string(a.OrderType),
		"account_group": a.AccountGroup,
		"alert_id":      a.AlertID,
		"timestamp":     a.Timestamp.Format(time.RFC3339Nano),
	}
	if !a.Price.IsZero() {
		out["price"] = a.Price.String()
	}
	if !a.StopPrice.IsZero() {
		out["stop_price"] = a.StopPrice.String()
	}
	if a.StrategyID != "" {
		out["strategy_id"] = a.StrategyID
	}
	if a.AlertName != "" {
		out["alert_name"] = a.AlertName
	}
	if a.Comment != "" {
		out["comment"] = a.Comment
	}
	for k, v := range a.Extra {
		out[k] = v
	}
	return json.Marshal(out)
}
