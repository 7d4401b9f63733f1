package chain

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/zen-systems/modelgate/pkg/adapter"
	"github.com/zen-systems/modelgate/pkg/schema"
)

// Runner executes fallback chains over a set of registered adapters.
type Runner struct {
	adapters map[string]adapter.Adapter
	log      zerolog.Logger
}

// NewRunner creates a chain runner.
func NewRunner(adapters map[string]adapter.Adapter, log zerolog.Logger) *Runner {
	return &Runner{adapters: adapters, log: log}
}

// Run tries each target in order until one produces a usable response.
//
// A response is usable when it carries tool calls, when no schema was
// requested, or when validation against the schema succeeds. Validation
// exhaustion counts as an attempt failure and the chain advances.
//
// Error handling differs by position. On the first target an auth or
// invalid-request failure aborts the whole chain: it would fail identically
// everywhere, and silently serving a fallback would mask a broken setup.
// On later targets any failure advances to the next. A rate-limited target
// is never retried in place; its retry-after hint is honored as a pause
// before the next target, bounded by the spec's wait budget.
func (r *Runner) Run(ctx context.Context, req adapter.Request, def *schema.Definition, spec Spec) (*Outcome, error) {
	if err := spec.Check(); err != nil {
		return nil, err
	}
	for _, name := range spec.Adapters() {
		if _, ok := r.adapters[name]; !ok {
			return nil, fmt.Errorf("chain references unknown adapter %q", name)
		}
	}
	if def != nil {
		if err := def.Check(); err != nil {
			return nil, err
		}
	}

	waitLeft := spec.WaitBudget
	var attempts []Attempt

	for i, target := range spec.Targets {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		attempt := r.runAttempt(ctx, req, def, target, spec.AttemptTimeout)
		attempts = append(attempts, attempt.Attempt)

		if attempt.Err == nil {
			r.log.Debug().Stringer("target", target).Int("attempt", i+1).Msg("chain target succeeded")
			return &Outcome{
				Response: attempt.response,
				Result:   attempt.result,
				Target:   target,
				Attempts: attempts,
			}, nil
		}

		kind := adapter.KindOf(attempt.Err)
		r.log.Warn().Stringer("target", target).Str("kind", string(kind)).Err(attempt.Err).Msg("chain target failed")

		if ctx.Err() != nil {
			return nil, &Error{Attempts: attempts}
		}
		if i == 0 && (kind == adapter.KindAuth || kind == adapter.KindInvalidRequest) {
			return nil, &Error{Attempts: attempts}
		}
		if i == len(spec.Targets)-1 {
			break
		}

		if hint, ok := adapter.RetryAfterHint(attempt.Err); ok && hint > 0 && hint <= waitLeft {
			waitLeft -= hint
			r.log.Debug().Dur("wait", hint).Msg("honoring retry-after before next target")
			select {
			case <-time.After(hint):
			case <-ctx.Done():
				return nil, &Error{Attempts: attempts}
			}
		}
	}

	return nil, &Error{Attempts: attempts}
}

type attemptOutcome struct {
	Attempt
	response *adapter.RawResponse
	result   *schema.Result
}

func (r *Runner) runAttempt(ctx context.Context, req adapter.Request, def *schema.Definition, target Target, timeout time.Duration) attemptOutcome {
	attemptCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	out := attemptOutcome{Attempt: Attempt{Target: target}}
	start := time.Now()
	resp, err := r.adapters[target.Adapter].Invoke(attemptCtx, req, target.Model)
	out.Duration = time.Since(start)
	if err != nil {
		out.Err = err
		return out
	}

	out.Usage = resp.Usage
	out.response = resp

	// Tool calls are a structured result in their own right; schema
	// validation applies to text payloads only.
	if def == nil || len(resp.ToolCalls) > 0 {
		return out
	}

	result, err := schema.Validate(resp.Text, *def)
	if err != nil {
		out.Err = err
		return out
	}
	out.result = result
	return out
}
