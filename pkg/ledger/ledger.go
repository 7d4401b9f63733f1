package ledger

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/zen-systems/modelgate/pkg/adapter"
	"github.com/zen-systems/modelgate/pkg/pricing"
)

// CostRecord is one append-only ledger entry for a confirmed backend usage.
// Cost is computed against the pricing snapshot current at record time and
// never recomputed: repricing affects future records only.
type CostRecord struct {
	ID           string          `json:"id"`
	Provider     string          `json:"provider"`
	Model        string          `json:"model"`
	Schema       string          `json:"schema,omitempty"`
	InputTokens  int64           `json:"input_tokens"`
	OutputTokens int64           `json:"output_tokens"`
	Cost         decimal.Decimal `json:"cost"`
	PriceKnown   bool            `json:"price_known"`
	Succeeded    bool            `json:"succeeded"`
	CreatedAt    time.Time       `json:"created_at"`
}

// GroupBy selects the dimension for ledger totals.
type GroupBy string

const (
	GroupByProvider GroupBy = "provider"
	GroupByModel    GroupBy = "model"
	GroupBySchema   GroupBy = "schema"
)

// Totals aggregates a set of records along one dimension.
type Totals struct {
	Cost         map[string]decimal.Decimal
	InputTokens  map[string]int64
	OutputTokens map[string]int64
	// UnknownPrice counts records per group whose cost could not be
	// computed; their tokens are included above but their cost is not.
	UnknownPrice map[string]int
}

// Ledger accumulates cost records for a run. Safe for concurrent use.
type Ledger struct {
	mu      sync.Mutex
	records []CostRecord
}

// New creates an empty ledger.
func New() *Ledger {
	return &Ledger{}
}

// Load creates a ledger pre-populated from a store.
func Load(store Store) (*Ledger, error) {
	records, err := store.Load()
	if err != nil {
		return nil, err
	}
	return &Ledger{records: records}, nil
}

// Record appends an entry for a confirmed usage, pricing it against the
// given snapshot. Usage from failed attempts is recorded too (succeeded
// false): tokens were spent whether or not a result came back.
func (l *Ledger) Record(usage adapter.Usage, schemaName string, table *pricing.Table, succeeded bool) CostRecord {
	cost, known := table.Cost(usage)
	record := CostRecord{
		ID:           uuid.NewString(),
		Provider:     usage.Provider,
		Model:        usage.Model,
		Schema:       schemaName,
		InputTokens:  usage.InputTokens,
		OutputTokens: usage.OutputTokens,
		Cost:         cost,
		PriceKnown:   known,
		Succeeded:    succeeded,
		CreatedAt:    time.Now().UTC(),
	}

	l.mu.Lock()
	l.records = append(l.records, record)
	l.mu.Unlock()
	return record
}

// Records returns a copy of all entries in append order.
func (l *Ledger) Records() []CostRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]CostRecord, len(l.records))
	copy(out, l.records)
	return out
}

// Len returns the number of entries.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

// TotalsBy aggregates the ledger along the given dimension.
func (l *Ledger) TotalsBy(group GroupBy) Totals {
	records := l.Records()

	grouped := lo.GroupBy(records, func(r CostRecord) string {
		switch group {
		case GroupByProvider:
			return r.Provider
		case GroupBySchema:
			return r.Schema
		default:
			return r.Model
		}
	})

	totals := Totals{
		Cost:         make(map[string]decimal.Decimal, len(grouped)),
		InputTokens:  make(map[string]int64, len(grouped)),
		OutputTokens: make(map[string]int64, len(grouped)),
		UnknownPrice: make(map[string]int, len(grouped)),
	}
	for key, entries := range grouped {
		sum := decimal.Zero
		for _, r := range entries {
			totals.InputTokens[key] += r.InputTokens
			totals.OutputTokens[key] += r.OutputTokens
			if r.PriceKnown {
				sum = sum.Add(r.Cost)
			} else {
				totals.UnknownPrice[key]++
			}
		}
		totals.Cost[key] = sum
	}
	return totals
}

// GrandTotal returns the summed cost of all priced records and the count of
// records whose price was unknown.
func (l *Ledger) GrandTotal() (decimal.Decimal, int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	sum := decimal.Zero
	unknown := 0
	for _, r := range l.records {
		if r.PriceKnown {
			sum = sum.Add(r.Cost)
		} else {
			unknown++
		}
	}
	return sum, unknown
}

// Flush writes all entries to the store.
func (l *Ledger) Flush(store Store) error {
	return store.Save(l.Records())
}
