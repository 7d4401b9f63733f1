package adapter

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

const openrouterBaseURL = "https://openrouter.ai/api/v1"

// OpenRouterAdapter implements the Adapter interface for the OpenRouter
// aggregator. OpenRouter uses an OpenAI-compatible API format but is a
// separate adapter from the direct OpenAI one: credentials, model catalogue,
// and the pricing fetch path all differ.
type OpenRouterAdapter struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// openrouterRequest represents the OpenAI-compatible request format.
type openrouterRequest struct {
	Model     string              `json:"model"`
	Messages  []openrouterMessage `json:"messages"`
	Tools     []openrouterTool    `json:"tools,omitempty"`
	MaxTokens int64               `json:"max_tokens,omitempty"`
}

// openrouterMessage is a chat message; content is either a plain string or a
// list of typed parts when attachments are present.
type openrouterMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type openrouterContentPart struct {
	Type     string              `json:"type"`
	Text     string              `json:"text,omitempty"`
	ImageURL *openrouterImageURL `json:"image_url,omitempty"`
}

type openrouterImageURL struct {
	URL string `json:"url"`
}

type openrouterTool struct {
	Type     string             `json:"type"`
	Function openrouterFunction `json:"function"`
}

type openrouterFunction struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// openrouterResponse represents the OpenAI-compatible response format.
type openrouterResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index   int `json:"index"`
		Message struct {
			Role      string `json:"role"`
			Content   string `json:"content"`
			ToolCalls []struct {
				ID       string `json:"id"`
				Type     string `json:"type"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int64 `json:"prompt_tokens"`
		CompletionTokens int64 `json:"completion_tokens"`
		TotalTokens      int64 `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    any    `json:"code"`
	} `json:"error,omitempty"`
}

// NewOpenRouterAdapter creates a new OpenRouter adapter.
func NewOpenRouterAdapter(apiKey string) (*OpenRouterAdapter, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openrouter API key is required")
	}

	return &OpenRouterAdapter{
		apiKey:     apiKey,
		baseURL:    openrouterBaseURL,
		httpClient: &http.Client{},
	}, nil
}

// SetBaseURL overrides the endpoint (for testing).
func (a *OpenRouterAdapter) SetBaseURL(url string) {
	a.baseURL = url
}

// Name returns the adapter identifier.
func (a *OpenRouterAdapter) Name() string {
	return "openrouter"
}

// Models returns a small default catalogue; the full list comes from the
// models endpoint consumed by the pricing fetcher.
func (a *OpenRouterAdapter) Models() []string {
	return []string{
		"openai/gpt-4o-mini",
		"anthropic/claude-sonnet-4",
		"google/gemini-2.5-flash",
	}
}

// Invoke sends the request through OpenRouter and returns the normalized response.
func (a *OpenRouterAdapter) Invoke(ctx context.Context, req Request, model string) (*RawResponse, error) {
	reqBody := openrouterRequest{
		Model:     model,
		MaxTokens: req.MaxTokens,
	}
	if req.System != "" {
		reqBody.Messages = append(reqBody.Messages, openrouterMessage{Role: "system", Content: req.System})
	}
	userMsg, err := a.userMessage(req)
	if err != nil {
		return nil, &Error{Kind: KindInvalidRequest, Provider: a.Name(), Err: err}
	}
	reqBody.Messages = append(reqBody.Messages, userMsg)

	for _, tool := range req.Tools {
		reqBody.Tools = append(reqBody.Tools, openrouterTool{
			Type: "function",
			Function: openrouterFunction{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  tool.Parameters,
			},
		})
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", a.baseURL+"/chat/completions", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+a.apiKey)

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, &Error{Kind: KindOf(err), Provider: a.Name(), Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Kind: KindUnavailable, Provider: a.Name(), Err: fmt.Errorf("failed to read response body: %w", err)}
	}

	if resp.StatusCode != http.StatusOK {
		classified := FromStatus(a.Name(), resp.StatusCode, fmt.Errorf("openrouter API returned status %d: %s", resp.StatusCode, string(body)))
		return nil, classified.withRetryAfter(resp.Header.Get("Retry-After"))
	}

	var orResp openrouterResponse
	if err := json.Unmarshal(body, &orResp); err != nil {
		return nil, &Error{Kind: KindUnknown, Provider: a.Name(), Err: fmt.Errorf("failed to parse response: %w", err)}
	}

	if orResp.Error != nil {
		return nil, &Error{Kind: KindUnknown, Provider: a.Name(), Err: fmt.Errorf("openrouter API error: %s (type: %s)", orResp.Error.Message, orResp.Error.Type)}
	}

	if len(orResp.Choices) == 0 {
		return nil, &Error{Kind: KindUnavailable, Provider: a.Name(), Err: fmt.Errorf("openrouter returned no choices")}
	}

	choice := orResp.Choices[0]
	raw := &RawResponse{
		Text: choice.Message.Content,
		Usage: Usage{
			Provider:     a.Name(),
			Model:        model,
			InputTokens:  orResp.Usage.PromptTokens,
			OutputTokens: orResp.Usage.CompletionTokens,
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

func (a *OpenRouterAdapter) userMessage(req Request) (openrouterMessage, error) {
	if len(req.Attachments) == 0 {
		return openrouterMessage{Role: "user", Content: req.Prompt}, nil
	}

	var parts []openrouterContentPart
	if req.Prompt != "" {
		parts = append(parts, openrouterContentPart{Type: "text", Text: req.Prompt})
	}
	for _, att := range req.Attachments {
		if !isImageMediaType(att.MediaType) {
			return openrouterMessage{}, fmt.Errorf("unsupported attachment type %q for %s", att.MediaType, att.Name)
		}
		dataURL := fmt.Sprintf("data:%s;base64,%s", att.MediaType, base64.StdEncoding.EncodeToString(att.Data))
		parts = append(parts, openrouterContentPart{Type: "image_url", ImageURL: &openrouterImageURL{URL: dataURL}})
	}
	return openrouterMessage{Role: "user", Content: parts}, nil
}
