package alert

import (
	"strings"
	"testing"
)

func TestParse_HappyPath(t *testing.T) {
	a, err := Parse([]byte(`{"symbol":"es","action":"buy","quantity":1,"account_group":"paper_simulator"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.Symbol != "ES" {
		t.Errorf("expected symbol normalized to ES, got %s", a.Symbol)
	}
	if a.OrderType != OrderTypeMarket {
		t.Errorf("expected default order type market, got %s", a.OrderType)
	}
	if a.AlertID == "" {
		t.Error("expected server-assigned alert_id")
	}
	if a.Timestamp.IsZero() {
		t.Error("expected server-assigned timestamp")
	}
}

func TestParse_RejectsBadQuantity(t *testing.T) {
	cases := []string{
		`{"symbol":"ES","action":"buy","quantity":0,"account_group":"paper_simulator"}`,
		`{"symbol":"ES","action":"buy","quantity":10000,"account_group":"paper_simulator"}`,
	}
	for _, c := range cases {
		if _, err := Parse([]byte(c)); err == nil {
			t.Errorf("expected out-of-range error for %s", c)
		}
	}
}

func TestParse_RequiresPriceForLimit(t *testing.T) {
	_, err := Parse([]byte(`{"symbol":"ES","action":"buy","quantity":1,"order_type":"limit","account_group":"paper_simulator"}`))
	if err == nil {
		t.Fatal("expected missing price error for limit order")
	}
	ve, ok := err.(*ValidationError)
	if !ok || ve.Kind != ErrMissingRequiredField {
		t.Errorf("expected missing_required_field, got %v", err)
	}
}

func TestParse_ForbiddenContent(t *testing.T) {
	cases := []string{
		`{"symbol":"ES'; DROP TABLE x; --","action":"buy","quantity":1,"account_group":"g"}`,
		`{"symbol":"ES","action":"buy","quantity":1,"account_group":"g","comment":"<script>alert(1)</script>"}`,
		`{"symbol":"ES","action":"buy","quantity":1,"account_group":"g","comment":"../../etc/passwd"}`,
	}
	for _, c := range cases {
		_, err := Parse([]byte(c))
		if err == nil {
			t.Errorf("expected forbidden_content error for %s", c)
			continue
		}
		ve, ok := err.(*ValidationError)
		if !ok || ve.Kind != ErrForbiddenContent {
			t.Errorf("expected forbidden_content, got %v", err)
		}
	}
}

func TestParse_ScansUnknownFields(t *testing.T) {
	_, err := Parse([]byte(`{"symbol":"ES","action":"buy","quantity":1,"account_group":"g","weird_field":"UNION SELECT *"}`))
	if err == nil {
		t.Fatal("expected forbidden_content error from unknown field scan")
	}
}

func TestParse_SymbolTooLong(t *testing.T) {
	_, err := Parse([]byte(`{"symbol":"THISSYMBOLISWAYTOOLONG","action":"buy","quantity":1,"account_group":"g"}`))
	if err == nil {
		t.Fatal("expected out_of_range error for overlong symbol")
	}
}

func TestResolveSymbol(t *testing.T) {
	cases := map[string]AssetKind{
		"ES":     AssetFuture,
		"NQZ25":  AssetFuture,
		"AAPL":   AssetStock,
		"SPY/C":  AssetOption,
		"BTCUSD": AssetCrypto,
	}
	for sym, want := range cases {
		got := ResolveSymbol(sym)
		if got.Kind != want {
			t.Errorf("ResolveSymbol(%q) = %v, want %v", sym, got.Kind, want)
		}
	}
}

func TestParseSerializeRoundTrip(t *testing.T) {
	a, err := Parse([]byte(`{"symbol":"ES","action":"buy","quantity":2,"order_type":"limit","price":"100.50","account_group":"paper_simulator"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	body, err := a.Serialize()
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}

	a2, err := Parse(body)
	if err != nil {
		t.Fatalf("re-parse: %v", err)
	}

	if a2.Symbol != a.Symbol || a2.Quantity != a.Quantity || !a2.Price.Equal(a.Price) || a2.AlertID != a.AlertID {
		t.Errorf("round trip mismatch: %+v vs %+v", a, a2)
	}
}

func TestParse_MalformedJSON(t *testing.T) {
	_, err := Parse([]byte(`not json`))
	if err == nil {
		t.Fatal("expected malformed_encoding error")
	}
	if !strings.Contains(err.Error(), "malformed_encoding") {
		t.Errorf("expected malformed_encoding in error, got %v", err)
	}
}
