package adapter

import (
	"context"
	"encoding/json"
	"strings"
)

// Adapter defines the interface for LLM provider adapters.
type Adapter interface {
	// Invoke sends a normalized request to the model and returns the raw response.
	Invoke(ctx context.Context, req Request, model string) (*RawResponse, error)

	// Name returns the adapter's identifier.
	Name() string

	// Models returns the list of supported models.
	Models() []string
}

// Request is the normalized, provider-independent request value.
type Request struct {
	Prompt      string
	System      string
	Attachments []Attachment
	Tools       []ToolDecl
	// Schema names the target output schema. Adapters carry it only as
	// request metadata; coercion happens downstream.
	Schema    string
	MaxTokens int64
}

// Attachment is a file carried inline with the request.
type Attachment struct {
	Name      string
	MediaType string
	Data      []byte
}

// ToolDecl declares a tool the model may call. Parameters is a JSON schema
// passed through to every backend unmodified in shape.
type ToolDecl struct {
	Name        string
	Description string
	Parameters  json.RawMessage
}

// Empty reports whether the request carries neither prompt text nor attachments.
func (r Request) Empty() bool {
	return strings.TrimSpace(r.Prompt) == "" && len(r.Attachments) == 0
}

func isImageMediaType(mediaType string) bool {
	return strings.HasPrefix(mediaType, "image/")
}

// ParametersMap decodes the tool's JSON schema into a generic map for
// backends that take schemas as untyped values.
func (t ToolDecl) ParametersMap() map[string]any {
	if len(t.Parameters) == 0 {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(t.Parameters, &m); err != nil {
		return nil
	}
	return m
}
