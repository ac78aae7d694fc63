package exchange

import (
	"testing"

	"aitrader/src/apperr"
)

func TestSign_IsDeterministicAndKeyed(t *testing.T) {
	sigA := sign("secret-a", "2024-01-01T00:00:00.000Z", "GET", "/api/v5/account/balance", "")
	sigB := sign("secret-a", "2024-01-01T00:00:00.000Z", "GET", "/api/v5/account/balance", "")
	if sigA != sigB {
		t.Fatalf("expected signing to be deterministic for identical inputs")
	}

	sigDifferentKey := sign("secret-b", "2024-01-01T00:00:00.000Z", "GET", "/api/v5/account/balance", "")
	if sigA == sigDifferentKey {
		t.Fatalf("expected signature to depend on the secret key")
	}
}

func TestMapHTTPError_ClassifiesByStatus(t *testing.T) {
	cases := []struct {
		status int
		kind   apperr.Kind
	}{
		{401, apperr.KindAuth},
		{403, apperr.KindAuth},
		{429, apperr.KindRateLimited},
		{500, apperr.KindTransport},
		{400, apperr.KindBusinessReject},
	}

	for _, tc := range cases {
		err := mapHTTPError("GetBalance", tc.status, []byte(`{"msg":"nope"}`))
		if !apperr.Is(err, tc.kind) {
			t.Fatalf("status %d: expected kind %v, got %v", tc.status, tc.kind, err)
		}
	}
}

func TestSideFromPosSide(t *testing.T) {
	if got := sideFromPosSide("long", 0); got != "buy" {
		t.Fatalf("expected long position to map to buy, got %q", got)
	}
	if got := sideFromPosSide("short", 0); got != "sell" {
		t.Fatalf("expected short position to map to sell, got %q", got)
	}
	if got := sideFromPosSide("net", 5); got != "buy" {
		t.Fatalf("expected positive net size to map to buy, got %q", got)
	}
	if got := sideFromPosSide("net", -5); got != "sell" {
		t.Fatalf("expected negative net size to map to sell, got %q", got)
	}
}
