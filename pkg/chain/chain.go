package chain

import (
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/zen-systems/modelgate/pkg/adapter"
	"github.com/zen-systems/modelgate/pkg/schema"
)

// Target names one (adapter, model) pair in a fallback chain.
type Target struct {
	Adapter string `json:"adapter" yaml:"adapter"`
	Model   string `json:"model" yaml:"model"`
}

func (t Target) String() string {
	return t.Adapter + "/" + t.Model
}

// Spec describes a fallback chain: an ordered list of targets tried until
// one yields a usable response.
type Spec struct {
	Targets []Target

	// AttemptTimeout bounds each individual backend call. Zero means the
	// caller's context is the only bound.
	AttemptTimeout time.Duration

	// WaitBudget caps the total time spent honoring retry-after hints
	// between attempts. Zero means hints are ignored and the chain
	// advances immediately.
	WaitBudget time.Duration
}

// Check verifies the spec is runnable: at least one target, no duplicates.
func (s Spec) Check() error {
	if len(s.Targets) == 0 {
		return fmt.Errorf("chain has no targets")
	}
	seen := make(map[Target]bool, len(s.Targets))
	for _, t := range s.Targets {
		if t.Adapter == "" || t.Model == "" {
			return fmt.Errorf("chain target %q is incomplete", t)
		}
		if seen[t] {
			return fmt.Errorf("chain lists target %s twice", t)
		}
		seen[t] = true
	}
	return nil
}

// Adapters returns the distinct adapter names the chain references.
func (s Spec) Adapters() []string {
	return lo.Uniq(lo.Map(s.Targets, func(t Target, _ int) string { return t.Adapter }))
}

// Attempt is the record of one target being tried. Usage is populated
// whenever the backend confirmed token consumption, including attempts that
// ultimately failed validation.
type Attempt struct {
	Target   Target
	Usage    adapter.Usage
	Err      error
	Duration time.Duration
}

// Outcome is a successful chain run. Attempts holds the full history in
// order; the last entry is the one that succeeded.
type Outcome struct {
	Response *adapter.RawResponse
	Result   *schema.Result
	Target   Target
	Attempts []Attempt
}

// Error reports a chain run in which no target yielded a usable response.
// Attempts preserves per-target failures in order.
type Error struct {
	Attempts []Attempt
}

func (e *Error) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%s: %v", a.Target, a.Err))
	}
	return fmt.Sprintf("all %d chain targets failed: %s", len(e.Attempts), strings.Join(parts, "; "))
}

// Unwrap exposes the final attempt's error for errors.Is/As inspection.
func (e *Error) Unwrap() error {
	if len(e.Attempts) == 0 {
		return nil
	}
	return e.Attempts[len(e.Attempts)-1].Err
}
