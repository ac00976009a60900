package postgres

import (
	"context"
	"os"
	"testing"

	"tradefeed/internal/domain/model"
)

func TestEscapeLike(t *testing.T) {
	if got := escapeLike(`BTC_100%`); got != `BTC\_100\%` {
		t.Errorf("escapeLike = %q", got)
	}
}

// TestCatalogRoundTrip 需要 TRADEFEED_TEST_PG_DSN 指向可写的 Postgres
func TestCatalogRoundTrip(t *testing.T) {
	dsn := os.Getenv("TRADEFEED_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("TRADEFEED_TEST_PG_DSN not set")
	}
	repo, err := New(dsn)
	if err != nil {
		t.Fatalf("failed to create repo: %v", err)
	}
	defer repo.Close()

	ctx := context.Background()
	info := model.SymbolInfo{Ticker: "CRYPTO:BTC@USDT_SPOT", Name: "BTC/USDT", Provider: "binance", SupportedResolutions: []string{"1", "60"}}
	if err := repo.SaveSymbol(ctx, info); err != nil {
		t.Fatalf("SaveSymbol failed: %v", err)
	}
	got, err := repo.SearchSymbols(ctx, "btc", 10)
	if err != nil {
		t.Fatalf("SearchSymbols failed: %v", err)
	}
	found := false
	for _, s := range got {
		if s.Ticker == info.Ticker && len(s.SupportedResolutions) == 2 {
			found = true
		}
	}
	if !found {
		t.Errorf("saved symbol not found in %+v", got)
	}
}
