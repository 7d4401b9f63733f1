package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// GoogleAdapter implements the Adapter interface for Gemini models.
type GoogleAdapter struct {
	client *genai.Client
}

// NewGoogleAdapter creates a new Google Gemini adapter.
func NewGoogleAdapter(apiKey string) (*GoogleAdapter, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("google API key is required")
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create google client: %w", err)
	}

	return &GoogleAdapter{client: client}, nil
}

// Name returns the adapter identifier.
func (a *GoogleAdapter) Name() string {
	return "google"
}

// Models returns the list of supported Gemini models.
func (a *GoogleAdapter) Models() []string {
	return []string{
		"gemini-2.0-pro",
	}
}

// Invoke sends the request to Gemini and returns the normalized response.
func (a *GoogleAdapter) Invoke(ctx context.Context, req Request, model string) (*RawResponse, error) {
	parts := []*genai.Part{}
	if req.Prompt != "" {
		parts = append(parts, &genai.Part{Text: req.Prompt})
	}
	for _, att := range req.Attachments {
		parts = append(parts, &genai.Part{
			InlineData: &genai.Blob{MIMEType: att.MediaType, Data: att.Data},
		})
	}
	contents := []*genai.Content{{Role: genai.RoleUser, Parts: parts}}

	cfg := &genai.GenerateContentConfig{CandidateCount: 1}
	if req.System != "" {
		cfg.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: req.System}},
		}
	}
	if len(req.Tools) > 0 {
		var decls []*genai.FunctionDeclaration
		for _, tool := range req.Tools {
			decls = append(decls, &genai.FunctionDeclaration{
				Name:                 tool.Name,
				Description:          tool.Description,
				ParametersJsonSchema: tool.ParametersMap(),
			})
		}
		cfg.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}

	resp, err := a.client.Models.GenerateContent(ctx, model, contents, cfg)
	if err != nil {
		return nil, classifyGoogleError(a.Name(), err)
	}

	if resp == nil || len(resp.Candidates) == 0 {
		return nil, &Error{Kind: KindUnavailable, Provider: a.Name(), Err: fmt.Errorf("google returned no candidates")}
	}

	raw := &RawResponse{
		Usage: Usage{Provider: a.Name(), Model: model},
	}
	if resp.UsageMetadata != nil {
		raw.Usage.InputTokens = int64(resp.UsageMetadata.PromptTokenCount + resp.UsageMetadata.ToolUsePromptTokenCount)
		raw.Usage.OutputTokens = int64(resp.UsageMetadata.CandidatesTokenCount)
	}

	var text strings.Builder
	candidate := resp.Candidates[0]
	if candidate.Content != nil {
		for _, part := range candidate.Content.Parts {
			if part.FunctionCall != nil {
				args, err := json.Marshal(part.FunctionCall.Args)
				if err != nil {
					return nil, &Error{Kind: KindUnknown, Provider: a.Name(), Err: fmt.Errorf("marshal function call args: %w", err)}
				}
				raw.ToolCalls = append(raw.ToolCalls, ToolCall{
					ID:        part.FunctionCall.ID,
					Name:      part.FunctionCall.Name,
					Arguments: args,
				})
				continue
			}
			if part.Text != "" {
				text.WriteString(part.Text)
			}
		}
	}
	raw.Text = text.String()

	return raw, nil
}

func classifyGoogleError(provider string, err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return FromStatus(provider, apiErr.Code, err)
	}
	return &Error{Kind: KindOf(err), Provider: provider, Err: err}
}
