package adapter

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const openaiDefaultMaxTokens = 4096

// OpenAIAdapter implements the Adapter interface for OpenAI models.
type OpenAIAdapter struct {
	client openai.Client
}

// NewOpenAIAdapter creates a new OpenAI adapter.
func NewOpenAIAdapter(apiKey string) (*OpenAIAdapter, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai API key is required")
	}

	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &OpenAIAdapter{client: client}, nil
}

// Name returns the adapter identifier.
func (a *OpenAIAdapter) Name() string {
	return "openai"
}

// Models returns the list of supported OpenAI models.
func (a *OpenAIAdapter) Models() []string {
	return []string{
		"gpt-5.2-instant",
		"gpt-5.2-thinking",
		"gpt-5.2-codex",
		"gpt-5.2-pro",
	}
}

// Invoke sends the request to OpenAI and returns the normalized response.
func (a *OpenAIAdapter) Invoke(ctx context.Context, req Request, model string) (*RawResponse, error) {
	userMsg, err := openaiUserMessage(req)
	if err != nil {
		return nil, &Error{Kind: KindInvalidRequest, Provider: a.Name(), Err: err}
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = openaiDefaultMaxTokens
	}

	params := openai.ChatCompletionNewParams{
		Model:               openai.ChatModel(model),
		MaxCompletionTokens: openai.Int(maxTokens),
	}
	if req.System != "" {
		params.Messages = append(params.Messages, openai.SystemMessage(req.System))
	}
	params.Messages = append(params.Messages, userMsg)

	for _, tool := range req.Tools {
		params.Tools = append(params.Tools, openai.ChatCompletionToolParam{
			Function: openai.FunctionDefinitionParam{
				Name:        tool.Name,
				Description: openai.String(tool.Description),
				Parameters:  openai.FunctionParameters(tool.ParametersMap()),
			},
		})
	}

	resp, err := a.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, classifyOpenAIError(a.Name(), err)
	}

	if len(resp.Choices) == 0 {
		return nil, &Error{Kind: KindUnavailable, Provider: a.Name(), Err: fmt.Errorf("openai returned no choices")}
	}

	choice := resp.Choices[0]
	raw := &RawResponse{
		Text: choice.Message.Content,
		Usage: Usage{
			Provider:     a.Name(),
			Model:        model,
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		},
	}
	for _, tc := range choice.Message.ToolCalls {
		raw.ToolCalls = append(raw.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: json.RawMessage(tc.Function.Arguments),
		})
	}

	return raw, nil
}

func openaiUserMessage(req Request) (openai.ChatCompletionMessageParamUnion, error) {
	if len(req.Attachments) == 0 {
		return openai.UserMessage(req.Prompt), nil
	}

	var parts []openai.ChatCompletionContentPartUnionParam
	if req.Prompt != "" {
		parts = append(parts, openai.TextContentPart(req.Prompt))
	}
	for _, att := range req.Attachments {
		if !isImageMediaType(att.MediaType) {
			return openai.ChatCompletionMessageParamUnion{},
				fmt.Errorf("unsupported attachment type %q for %s", att.MediaType, att.Name)
		}
		dataURL := fmt.Sprintf("data:%s;base64,%s", att.MediaType, base64.StdEncoding.EncodeToString(att.Data))
		parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
			URL: dataURL,
		}))
	}
	return openai.UserMessage(parts), nil
}

func classifyOpenAIError(provider string, err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		classified := FromStatus(provider, apiErr.StatusCode, err)
		if apiErr.Response != nil {
			classified = classified.withRetryAfter(apiErr.Response.Header.Get("Retry-After"))
		}
		return classified
	}
	return &Error{Kind: KindOf(err), Provider: provider, Err: err}
}
