package invoke

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/zen-systems/modelgate/pkg/adapter"
	"github.com/zen-systems/modelgate/pkg/chain"
	"github.com/zen-systems/modelgate/pkg/ledger"
	"github.com/zen-systems/modelgate/pkg/pricing"
	"github.com/zen-systems/modelgate/pkg/schema"
)

// Invoker is the single entry point for running a request through a fallback
// chain. It validates responses against an optional target schema, prices
// every confirmed usage against a pricing snapshot, and appends the spend to
// the ledger, successful or not.
type Invoker struct {
	runner  *chain.Runner
	pricing *pricing.Table
	ledger  *ledger.Ledger
	log     zerolog.Logger
}

// New creates an invoker over the given adapter registry.
func New(adapters map[string]adapter.Adapter, table *pricing.Table, led *ledger.Ledger, log zerolog.Logger) *Invoker {
	return &Invoker{
		runner:  chain.NewRunner(adapters, log),
		pricing: table,
		ledger:  led,
		log:     log,
	}
}

// Outcome is the result of a completed invocation.
type Outcome struct {
	// Text is the raw response text from the target that succeeded.
	Text string
	// ToolCalls is non-empty when the backend chose to call tools instead
	// of answering; the text and schema result are then secondary.
	ToolCalls []adapter.ToolCall
	// Result is the schema-validated view of the response, nil when no
	// schema was requested or the response carried tool calls.
	Result *schema.Result
	// Target identifies the chain entry that produced the response.
	Target chain.Target
	// Attempts is the full chain history, including failed targets.
	Attempts []chain.Attempt
	// Records lists the ledger entries appended by this invocation.
	Records []ledger.CostRecord
	// Cost sums the priced records. PriceKnown is false when any confirmed
	// usage had no known rate; Cost then understates the true spend.
	Cost       decimal.Decimal
	PriceKnown bool
}

// Run executes the request through the chain. Spend is recorded for every
// attempt whose usage the backend confirmed, including attempts that failed
// after consuming tokens; an attempt that never reached the backend records
// nothing.
func (inv *Invoker) Run(ctx context.Context, req adapter.Request, def *schema.Definition, spec chain.Spec) (*Outcome, error) {
	if req.Empty() {
		return nil, fmt.Errorf("request has no prompt and no attachments")
	}

	outcome, err := inv.runner.Run(ctx, req, def, spec)
	if err != nil {
		var chainErr *chain.Error
		if errors.As(err, &chainErr) {
			inv.recordAttempts(def, chainErr.Attempts)
		}
		return nil, err
	}

	records := inv.recordAttempts(def, outcome.Attempts)

	result := &Outcome{
		Text:       outcome.Response.Text,
		ToolCalls:  outcome.Response.ToolCalls,
		Result:     outcome.Result,
		Target:     outcome.Target,
		Attempts:   outcome.Attempts,
		Records:    records,
		Cost:       decimal.Zero,
		PriceKnown: true,
	}
	for _, r := range records {
		if r.PriceKnown {
			result.Cost = result.Cost.Add(r.Cost)
		} else {
			result.PriceKnown = false
		}
	}

	inv.log.Info().
		Stringer("target", result.Target).
		Int("attempts", len(result.Attempts)).
		Str("cost", result.Cost.String()).
		Bool("price_known", result.PriceKnown).
		Msg("invocation complete")
	return result, nil
}

func (inv *Invoker) recordAttempts(def *schema.Definition, attempts []chain.Attempt) []ledger.CostRecord {
	schemaName := ""
	if def != nil {
		schemaName = def.Name
	}
	var records []ledger.CostRecord
	for _, a := range attempts {
		if a.Usage.TotalTokens() == 0 && a.Usage.Provider == "" {
			continue
		}
		records = append(records, inv.ledger.Record(a.Usage, schemaName, inv.pricing, a.Err == nil))
	}
	return records
}
