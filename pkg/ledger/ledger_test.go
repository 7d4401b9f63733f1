package ledger

import (
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/zen-systems/modelgate/pkg/adapter"
	"github.com/zen-systems/modelgate/pkg/pricing"
)

func mockTable() *pricing.Table {
	return pricing.NewTable(map[string]map[string]pricing.Rate{
		"mock": {
			"mock-1": {
				InputPerToken:  decimal.RequireFromString("0.01"),
				OutputPerToken: decimal.RequireFromString("0.02"),
			},
		},
	})
}

func TestLedgerRecord(t *testing.T) {
	l := New()
	record := l.Record(adapter.Usage{
		Provider:     "mock",
		Model:        "mock-1",
		InputTokens:  300,
		OutputTokens: 150,
	}, "weather_report", mockTable(), true)

	if record.ID == "" {
		t.Error("expected a record ID")
	}
	if !record.PriceKnown {
		t.Error("expected known pricing")
	}
	want := decimal.RequireFromString("6")
	if !record.Cost.Equal(want) {
		t.Errorf("cost = %s, want %s", record.Cost, want)
	}
	if l.Len() != 1 {
		t.Errorf("ledger length = %d, want 1", l.Len())
	}
}

func TestLedgerUnknownPriceNotZeroBilled(t *testing.T) {
	l := New()
	record := l.Record(adapter.Usage{
		Provider:     "ollama",
		Model:        "llama3.2",
		InputTokens:  1000,
		OutputTokens: 500,
	}, "", mockTable(), true)

	if record.PriceKnown {
		t.Error("expected unknown pricing for unlisted model")
	}

	total, unknown := l.GrandTotal()
	if !total.IsZero() {
		t.Errorf("unknown-price record leaked into total: %s", total)
	}
	if unknown != 1 {
		t.Errorf("unknown count = %d, want 1", unknown)
	}
}

func TestLedgerRepricingDoesNotChangeHistory(t *testing.T) {
	l := New()
	before := l.Record(adapter.Usage{Provider: "mock", Model: "mock-1", InputTokens: 100, OutputTokens: 100}, "", mockTable(), true)

	// A refreshed snapshot with doubled rates only affects new records.
	repriced := pricing.NewTable(map[string]map[string]pricing.Rate{
		"mock": {"mock-1": {
			InputPerToken:  decimal.RequireFromString("0.02"),
			OutputPerToken: decimal.RequireFromString("0.04"),
		}},
	})
	after := l.Record(adapter.Usage{Provider: "mock", Model: "mock-1", InputTokens: 100, OutputTokens: 100}, "", repriced, true)

	records := l.Records()
	if !records[0].Cost.Equal(before.Cost) {
		t.Errorf("historical record changed: %s", records[0].Cost)
	}
	if !after.Cost.Equal(before.Cost.Mul(decimal.NewFromInt(2))) {
		t.Errorf("new record not priced against new snapshot: %s", after.Cost)
	}
}

func TestLedgerTotalsBy(t *testing.T) {
	l := New()
	table := mockTable()
	l.Record(adapter.Usage{Provider: "mock", Model: "mock-1", InputTokens: 300, OutputTokens: 150}, "weather_report", table, true)
	l.Record(adapter.Usage{Provider: "mock", Model: "mock-1", InputTokens: 100, OutputTokens: 50}, "weather_report", table, false)
	l.Record(adapter.Usage{Provider: "ollama", Model: "llama3.2", InputTokens: 10, OutputTokens: 5}, "weather_report", table, true)

	byProvider := l.TotalsBy(GroupByProvider)
	wantMock := decimal.RequireFromString("8") // 6.00 + (0.01*100 + 0.02*50)
	if !byProvider.Cost["mock"].Equal(wantMock) {
		t.Errorf("mock provider total = %s, want %s", byProvider.Cost["mock"], wantMock)
	}
	if byProvider.InputTokens["mock"] != 400 {
		t.Errorf("mock input tokens = %d, want 400", byProvider.InputTokens["mock"])
	}
	if byProvider.UnknownPrice["ollama"] != 1 {
		t.Errorf("ollama unknown count = %d, want 1", byProvider.UnknownPrice["ollama"])
	}

	bySchema := l.TotalsBy(GroupBySchema)
	if bySchema.OutputTokens["weather_report"] != 205 {
		t.Errorf("schema output tokens = %d, want 205", bySchema.OutputTokens["weather_report"])
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	l := New()
	l.Record(adapter.Usage{Provider: "mock", Model: "mock-1", InputTokens: 300, OutputTokens: 150}, "weather_report", mockTable(), true)

	store := NewFileStore(filepath.Join(t.TempDir(), "ledger.json"))
	if err := l.Flush(store); err != nil {
		t.Fatalf("flush failed: %v", err)
	}

	loaded, err := Load(store)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if loaded.Len() != 1 {
		t.Fatalf("loaded %d records, want 1", loaded.Len())
	}
	got := loaded.Records()[0]
	if !got.Cost.Equal(decimal.RequireFromString("6")) {
		t.Errorf("cost after round trip = %s", got.Cost)
	}
	if got.Schema != "weather_report" {
		t.Errorf("schema after round trip = %q", got.Schema)
	}
}

func TestFileStoreMissingFile(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "absent.json"))
	records, err := store.Load()
	if err != nil {
		t.Fatalf("missing file should load as empty, got: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("expected no records, got %d", len(records))
	}
}
