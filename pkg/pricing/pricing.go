package pricing

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/zen-systems/modelgate/pkg/adapter"
)

var perMillion = decimal.NewFromInt(1_000_000)

// Rate holds per-token USD prices for one (provider, model) pair.
type Rate struct {
	InputPerToken  decimal.Decimal `json:"input_per_token"`
	OutputPerToken decimal.Decimal `json:"output_per_token"`
}

// Table is an immutable pricing snapshot: provider -> model -> rate.
// Refreshing pricing produces a new Table; existing ones never change, so
// cost recorded against a snapshot stays fixed.
type Table struct {
	rates     map[string]map[string]Rate
	fetchedAt time.Time
}

// NewTable builds a snapshot from the given rates. The maps are copied.
func NewTable(rates map[string]map[string]Rate) *Table {
	copied := make(map[string]map[string]Rate, len(rates))
	for provider, models := range rates {
		m := make(map[string]Rate, len(models))
		for model, rate := range models {
			m[model] = rate
		}
		copied[provider] = m
	}
	return &Table{rates: copied, fetchedAt: time.Now().UTC()}
}

// FetchedAt returns when this snapshot was taken.
func (t *Table) FetchedAt() time.Time {
	return t.fetchedAt
}

// Lookup returns the rate for a (provider, model) pair.
func (t *Table) Lookup(provider, model string) (Rate, bool) {
	if t == nil || t.rates == nil {
		return Rate{}, false
	}
	models, ok := t.rates[provider]
	if !ok {
		return Rate{}, false
	}
	rate, ok := models[model]
	return rate, ok
}

// Cost computes the monetary cost of a usage against this snapshot. The
// second return is false when the (provider, model) pair has no known rate:
// the cost is then a gap to report, never a silent zero.
func (t *Table) Cost(u adapter.Usage) (decimal.Decimal, bool) {
	rate, ok := t.Lookup(u.Provider, u.Model)
	if !ok {
		return decimal.Zero, false
	}
	input := rate.InputPerToken.Mul(decimal.NewFromInt(u.InputTokens))
	output := rate.OutputPerToken.Mul(decimal.NewFromInt(u.OutputTokens))
	return input.Add(output), true
}

// PerMillion converts a USD-per-million-tokens price into a per-token rate.
func PerMillion(usd string) decimal.Decimal {
	return decimal.RequireFromString(usd).Div(perMillion)
}

// DefaultTable returns a static seed snapshot for offline use, covering the
// models the built-in adapters default to. Live rates come from the fetcher.
func DefaultTable() *Table {
	return NewTable(map[string]map[string]Rate{
		"anthropic": {
			"claude-sonnet-4-20250514": {InputPerToken: PerMillion("3.00"), OutputPerToken: PerMillion("15.00")},
			"claude-opus-4-20250514":   {InputPerToken: PerMillion("15.00"), OutputPerToken: PerMillion("75.00")},
		},
		"openai": {
			"gpt-5.2-instant":  {InputPerToken: PerMillion("1.75"), OutputPerToken: PerMillion("14.00")},
			"gpt-5.2-thinking": {InputPerToken: PerMillion("1.75"), OutputPerToken: PerMillion("14.00")},
			"gpt-5.2-codex":    {InputPerToken: PerMillion("1.75"), OutputPerToken: PerMillion("14.00")},
			"gpt-5.2-pro":      {InputPerToken: PerMillion("21.00"), OutputPerToken: PerMillion("168.00")},
		},
		"google": {
			"gemini-2.0-pro": {InputPerToken: PerMillion("1.25"), OutputPerToken: PerMillion("10.00")},
		},
	})
}
