package adapter

import (
	"context"
	"fmt"
)

// MockAdapter returns deterministic responses for local runs and tests.
// Errors, when scripted, are returned in order before responses are served.
type MockAdapter struct {
	name            string
	responses       map[string]string
	defaultResponse string
	usage           Usage
	errs            []error
	calls           int
}

// NewMockAdapter creates a mock adapter with a default response.
func NewMockAdapter() *MockAdapter {
	return &MockAdapter{
		name:            "mock",
		responses:       make(map[string]string),
		defaultResponse: "mock response:",
	}
}

// NewMockAdapterWithResponses creates a mock adapter with predefined responses
// keyed by prompt.
func NewMockAdapterWithResponses(responses map[string]string, defaultResponse string) *MockAdapter {
	if defaultResponse == "" {
		defaultResponse = "mock response:"
	}
	return &MockAdapter{name: "mock", responses: responses, defaultResponse: defaultResponse}
}

// WithName overrides the adapter identifier so tests can register several mocks.
func (a *MockAdapter) WithName(name string) *MockAdapter {
	a.name = name
	return a
}

// WithUsage sets the usage reported on every successful response.
func (a *MockAdapter) WithUsage(usage Usage) *MockAdapter {
	a.usage = usage
	return a
}

// WithErrors scripts errors returned by successive calls before any response.
func (a *MockAdapter) WithErrors(errs ...error) *MockAdapter {
	a.errs = errs
	return a
}

// Calls reports how many times Invoke was called.
func (a *MockAdapter) Calls() int {
	return a.calls
}

// Name returns the adapter identifier.
func (a *MockAdapter) Name() string {
	return a.name
}

// Models returns the list of supported mock models.
func (a *MockAdapter) Models() []string {
	return []string{"mock-1"}
}

// Invoke returns a deterministic response for the prompt.
func (a *MockAdapter) Invoke(ctx context.Context, req Request, model string) (*RawResponse, error) {
	a.calls++
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(a.errs) > 0 && a.calls <= len(a.errs) {
		return nil, a.errs[a.calls-1]
	}
	if model == "" {
		model = "mock-1"
	}

	text, ok := a.responses[req.Prompt]
	if !ok {
		text = fmt.Sprintf("%s\n%s", a.defaultResponse, req.Prompt)
	}

	usage := a.usage
	usage.Provider = a.name
	usage.Model = model
	return &RawResponse{Text: text, Usage: usage}, nil
}
