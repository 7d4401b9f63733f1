package pricing

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/zen-systems/modelgate/pkg/adapter"
)

func TestTableCost(t *testing.T) {
	table := NewTable(map[string]map[string]Rate{
		"mock": {
			"mock-1": {
				InputPerToken:  decimal.RequireFromString("0.01"),
				OutputPerToken: decimal.RequireFromString("0.02"),
			},
		},
	})

	cost, known := table.Cost(adapter.Usage{
		Provider:     "mock",
		Model:        "mock-1",
		InputTokens:  300,
		OutputTokens: 150,
	})
	if !known {
		t.Fatal("expected known pricing for mock/mock-1")
	}
	want := decimal.RequireFromString("6")
	if !cost.Equal(want) {
		t.Errorf("cost = %s, want %s", cost, want)
	}
}

func TestTableCostUnknownModel(t *testing.T) {
	table := DefaultTable()

	cost, known := table.Cost(adapter.Usage{
		Provider:     "ollama",
		Model:        "llama3.2",
		InputTokens:  1000,
		OutputTokens: 500,
	})
	if known {
		t.Error("expected unknown pricing for a local model")
	}
	if !cost.IsZero() {
		t.Errorf("unknown cost should be zero, got %s", cost)
	}
}

func TestTableSnapshotIsolation(t *testing.T) {
	rates := map[string]map[string]Rate{
		"mock": {"mock-1": {InputPerToken: PerMillion("1.00"), OutputPerToken: PerMillion("2.00")}},
	}
	table := NewTable(rates)

	// Mutating the source map must not affect an existing snapshot.
	rates["mock"]["mock-1"] = Rate{InputPerToken: PerMillion("99.00"), OutputPerToken: PerMillion("99.00")}

	rate, ok := table.Lookup("mock", "mock-1")
	if !ok {
		t.Fatal("expected rate for mock/mock-1")
	}
	if !rate.InputPerToken.Equal(PerMillion("1.00")) {
		t.Errorf("snapshot rate changed: %s", rate.InputPerToken)
	}
}

func TestPerMillion(t *testing.T) {
	rate := PerMillion("3.00")
	cost := rate.Mul(decimal.NewFromInt(1_000_000))
	if !cost.Equal(decimal.RequireFromString("3.00")) {
		t.Errorf("per-token rate does not round-trip: %s", cost)
	}
}

func TestFetcherUsesCacheWhenFresh(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte(`{"data":[{"id":"openai/gpt-4o","pricing":{"prompt":"0.0000025","completion":"0.00001"}}]}`))
	}))
	defer srv.Close()

	dir := t.TempDir()
	f := NewFetcher(dir, zerolog.Nop())
	f.SetURL(srv.URL)

	table, err := f.Fetch(context.Background())
	if err != nil {
		t.Fatalf("first fetch failed: %v", err)
	}
	if _, ok := table.Lookup("openrouter", "openai/gpt-4o"); !ok {
		t.Error("expected routed rate for openai/gpt-4o")
	}
	if _, ok := table.Lookup("openai", "gpt-4o"); !ok {
		t.Error("expected direct provider rate for gpt-4o")
	}

	if _, err := f.Fetch(context.Background()); err != nil {
		t.Fatalf("second fetch failed: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 upstream call with a fresh cache, got %d", calls)
	}
}

func TestFetcherRefetchesExpiredCache(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte(`{"data":[{"id":"anthropic/claude-sonnet-4","pricing":{"prompt":"0.000003","completion":"0.000015"}}]}`))
	}))
	defer srv.Close()

	dir := t.TempDir()
	f := NewFetcher(dir, zerolog.Nop())
	f.SetURL(srv.URL)
	f.SetCacheTTL(time.Nanosecond)

	for i := 0; i < 2; i++ {
		if _, err := f.Fetch(context.Background()); err != nil {
			t.Fatalf("fetch %d failed: %v", i, err)
		}
	}
	if calls != 2 {
		t.Errorf("expected 2 upstream calls with an expired cache, got %d", calls)
	}
}

func TestFetcherFallsBackToStaleCache(t *testing.T) {
	dir := t.TempDir()
	stale := `{"fetched_at":"2020-01-01T00:00:00Z","rates":{"openai":{"gpt-4o":{"input_per_token":"0.0000025","output_per_token":"0.00001"}}}}`
	if err := os.WriteFile(filepath.Join(dir, cacheFileName), []byte(stale), 0o644); err != nil {
		t.Fatal(err)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := NewFetcher(dir, zerolog.Nop())
	f.SetURL(srv.URL)

	table, err := f.Fetch(context.Background())
	if err != nil {
		t.Fatalf("expected stale-cache fallback, got error: %v", err)
	}
	if _, ok := table.Lookup("openai", "gpt-4o"); !ok {
		t.Error("expected rate from stale cache")
	}
}
