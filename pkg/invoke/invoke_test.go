package invoke

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/zen-systems/modelgate/pkg/adapter"
	"github.com/zen-systems/modelgate/pkg/chain"
	"github.com/zen-systems/modelgate/pkg/ledger"
	"github.com/zen-systems/modelgate/pkg/pricing"
	"github.com/zen-systems/modelgate/pkg/schema"
)

var weatherSchema = schema.Definition{
	Name: "weather_report",
	Fields: []schema.Field{
		{Name: "city", Type: schema.TypeString, Required: true},
		{Name: "temp_c", Type: schema.TypeNumber},
	},
}

func mockPricing() *pricing.Table {
	return pricing.NewTable(map[string]map[string]pricing.Rate{
		"mock": {
			"mock-1": {
				InputPerToken:  decimal.RequireFromString("0.01"),
				OutputPerToken: decimal.RequireFromString("0.02"),
			},
		},
	})
}

func newInvoker(led *ledger.Ledger, adapters ...adapter.Adapter) *Invoker {
	m := make(map[string]adapter.Adapter, len(adapters))
	for _, a := range adapters {
		m[a.Name()] = a
	}
	return New(m, mockPricing(), led, zerolog.Nop())
}

func TestRunWeatherReport(t *testing.T) {
	mock := adapter.NewMockAdapterWithResponses(nil, `{"city": "Paris", "temp_c": "warm"}`).
		WithUsage(adapter.Usage{InputTokens: 300, OutputTokens: 150})

	led := ledger.New()
	outcome, err := newInvoker(led, mock).Run(context.Background(),
		adapter.Request{Prompt: "weather in paris"}, &weatherSchema,
		chain.Spec{Targets: []chain.Target{{Adapter: "mock", Model: "mock-1"}}})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	// "warm" is not coercible to a number, so temp_c is discarded while the
	// required city survives.
	if outcome.Result.Values["city"] != "Paris" {
		t.Errorf("city = %v", outcome.Result.Values["city"])
	}
	if _, ok := outcome.Result.Values["temp_c"]; ok {
		t.Error("non-numeric temp_c should have been discarded")
	}
	if len(outcome.Result.Discarded) != 1 || outcome.Result.Discarded[0].Field != "temp_c" {
		t.Errorf("discards = %+v", outcome.Result.Discarded)
	}
	if outcome.Result.FillRatio != 0.5 {
		t.Errorf("fill ratio = %v, want 0.5", outcome.Result.FillRatio)
	}

	if !outcome.PriceKnown {
		t.Error("expected known pricing")
	}
	want := decimal.RequireFromString("6")
	if !outcome.Cost.Equal(want) {
		t.Errorf("cost = %s, want %s", outcome.Cost, want)
	}
	if led.Len() != 1 {
		t.Errorf("ledger entries = %d, want 1", led.Len())
	}
	record := led.Records()[0]
	if record.Schema != "weather_report" || !record.Succeeded {
		t.Errorf("ledger record = %+v", record)
	}
}

func TestRunEmptyRequestRejected(t *testing.T) {
	mock := adapter.NewMockAdapter()
	led := ledger.New()

	_, err := newInvoker(led, mock).Run(context.Background(),
		adapter.Request{Prompt: "   "}, nil,
		chain.Spec{Targets: []chain.Target{{Adapter: "mock", Model: "mock-1"}}})
	if err == nil {
		t.Fatal("expected error for empty request")
	}
	if mock.Calls() != 0 {
		t.Errorf("backend was called %d times for an empty request", mock.Calls())
	}
	if led.Len() != 0 {
		t.Error("empty request must not touch the ledger")
	}
}

func TestRunRecordsFailedAttemptSpend(t *testing.T) {
	// The primary answers but the payload exhausts validation: its tokens
	// were still spent and must land in the ledger as a failed attempt.
	primary := adapter.NewMockAdapterWithResponses(nil, "sorry, no data").
		WithName("primary").
		WithUsage(adapter.Usage{InputTokens: 100, OutputTokens: 40})
	fallback := adapter.NewMockAdapterWithResponses(nil, `{"city": "Paris"}`).
		WithName("fallback").
		WithUsage(adapter.Usage{InputTokens: 120, OutputTokens: 60})

	led := ledger.New()
	outcome, err := newInvoker(led, primary, fallback).Run(context.Background(),
		adapter.Request{Prompt: "weather"}, &weatherSchema,
		chain.Spec{Targets: []chain.Target{
			{Adapter: "primary", Model: "mock-1"},
			{Adapter: "fallback", Model: "mock-1"},
		}})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if outcome.Target.Adapter != "fallback" {
		t.Errorf("succeeded on %s", outcome.Target)
	}
	if led.Len() != 2 {
		t.Fatalf("ledger entries = %d, want 2", led.Len())
	}
	records := led.Records()
	if records[0].Succeeded {
		t.Error("exhausted attempt should be recorded as failed spend")
	}
	if !records[1].Succeeded {
		t.Error("final attempt should be recorded as succeeded")
	}
}

func TestRunRecordsSpendWhenChainFails(t *testing.T) {
	spent := adapter.NewMockAdapterWithResponses(nil, "garbage").
		WithName("only").
		WithUsage(adapter.Usage{InputTokens: 80, OutputTokens: 30})

	led := ledger.New()
	_, err := newInvoker(led, spent).Run(context.Background(),
		adapter.Request{Prompt: "weather"}, &weatherSchema,
		chain.Spec{Targets: []chain.Target{{Adapter: "only", Model: "mock-1"}}})

	var chainErr *chain.Error
	if !errors.As(err, &chainErr) {
		t.Fatalf("error = %v, want chain failure", err)
	}
	if led.Len() != 1 {
		t.Fatalf("ledger entries = %d, want 1", led.Len())
	}
	if led.Records()[0].Succeeded {
		t.Error("spend from a failed chain should be marked failed")
	}
}

func TestRunNoRecordWithoutConfirmedUsage(t *testing.T) {
	down := adapter.NewMockAdapter().WithName("down").
		WithErrors(&adapter.Error{Kind: adapter.KindUnavailable, Provider: "down", Err: errors.New("unreachable")})

	led := ledger.New()
	_, err := newInvoker(led, down).Run(context.Background(),
		adapter.Request{Prompt: "hi"}, nil,
		chain.Spec{Targets: []chain.Target{{Adapter: "down", Model: "mock-1"}}})
	if err == nil {
		t.Fatal("expected chain failure")
	}
	if led.Len() != 0 {
		t.Errorf("ledger entries = %d, want 0 without confirmed usage", led.Len())
	}
}

func TestRunUnknownPricingSurfaces(t *testing.T) {
	mock := adapter.NewMockAdapterWithResponses(nil, "ok").
		WithName("unpriced").
		WithUsage(adapter.Usage{InputTokens: 10, OutputTokens: 5})

	led := ledger.New()
	outcome, err := newInvoker(led, mock).Run(context.Background(),
		adapter.Request{Prompt: "hi"}, nil,
		chain.Spec{Targets: []chain.Target{{Adapter: "unpriced", Model: "mock-1"}}})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if outcome.PriceKnown {
		t.Error("pricing for an unlisted provider should be reported unknown")
	}
	if !outcome.Cost.IsZero() {
		t.Errorf("unknown pricing must not invent a cost, got %s", outcome.Cost)
	}
}
