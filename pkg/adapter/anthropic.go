package adapter

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const anthropicDefaultMaxTokens = 4096

// AnthropicAdapter implements the Adapter interface for Claude models.
type AnthropicAdapter struct {
	client anthropic.Client
}

// NewAnthropicAdapter creates a new Anthropic adapter.
func NewAnthropicAdapter(apiKey string) (*AnthropicAdapter, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic API key is required")
	}

	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &AnthropicAdapter{client: client}, nil
}

// Name returns the adapter identifier.
func (a *AnthropicAdapter) Name() string {
	return "anthropic"
}

// Models returns the list of supported Claude models.
func (a *AnthropicAdapter) Models() []string {
	return []string{
		"claude-sonnet-4-20250514",
		"claude-opus-4-20250514",
	}
}

// Invoke sends the request to Claude and returns the normalized response.
func (a *AnthropicAdapter) Invoke(ctx context.Context, req Request, model string) (*RawResponse, error) {
	blocks, err := anthropicContentBlocks(req)
	if err != nil {
		return nil, &Error{Kind: KindInvalidRequest, Provider: a.Name(), Err: err}
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = anthropicDefaultMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(blocks...),
		},
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	for _, tool := range req.Tools {
		params.Tools = append(params.Tools, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        tool.Name,
				Description: anthropic.String(tool.Description),
				InputSchema: anthropicInputSchema(tool),
			},
		})
	}

	resp, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return nil, classifyAnthropicError(a.Name(), err)
	}

	raw := &RawResponse{
		Usage: Usage{
			Provider:     a.Name(),
			Model:        model,
			InputTokens:  resp.Usage.InputTokens + resp.Usage.CacheCreationInputTokens + resp.Usage.CacheReadInputTokens,
			OutputTokens: resp.Usage.OutputTokens,
		},
	}

	var text strings.Builder
	for _, blockUnion := range resp.Content {
		switch block := blockUnion.AsAny().(type) {
		case anthropic.TextBlock:
			text.WriteString(block.Text)
		case anthropic.ToolUseBlock:
			raw.ToolCalls = append(raw.ToolCalls, ToolCall{
				ID:        block.ID,
				Name:      block.Name,
				Arguments: json.RawMessage(block.Input),
			})
		}
	}
	raw.Text = text.String()

	return raw, nil
}

func anthropicContentBlocks(req Request) ([]anthropic.ContentBlockParamUnion, error) {
	var blocks []anthropic.ContentBlockParamUnion
	if req.Prompt != "" {
		blocks = append(blocks, anthropic.NewTextBlock(req.Prompt))
	}
	for _, att := range req.Attachments {
		encoded := base64.StdEncoding.EncodeToString(att.Data)
		switch {
		case strings.HasPrefix(att.MediaType, "image/"):
			blocks = append(blocks, anthropic.NewImageBlockBase64(att.MediaType, encoded))
		case att.MediaType == "application/pdf":
			blocks = append(blocks, anthropic.NewDocumentBlock(anthropic.Base64PDFSourceParam{
				Data: encoded,
			}))
		default:
			return nil, fmt.Errorf("unsupported attachment type %q for %s", att.MediaType, att.Name)
		}
	}
	return blocks, nil
}

func anthropicInputSchema(tool ToolDecl) anthropic.ToolInputSchemaParam {
	var decoded struct {
		Properties map[string]any `json:"properties"`
		Required   []string       `json:"required"`
	}
	if len(tool.Parameters) > 0 {
		_ = json.Unmarshal(tool.Parameters, &decoded)
	}
	return anthropic.ToolInputSchemaParam{
		Properties: decoded.Properties,
		Required:   decoded.Required,
	}
}

func classifyAnthropicError(provider string, err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		classified := FromStatus(provider, apiErr.StatusCode, err)
		if apiErr.Response != nil {
			classified = classified.withRetryAfter(apiErr.Response.Header.Get("Retry-After"))
		}
		return classified
	}
	return &Error{Kind: KindOf(err), Provider: provider, Err: err}
}
