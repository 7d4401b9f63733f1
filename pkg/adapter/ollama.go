package adapter

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"
)

// OllamaAdapter implements the Adapter interface for locally served Ollama
// models. Local models have no published pricing, so their usage surfaces as
// price-unknown in the ledger.
type OllamaAdapter struct {
	client *api.Client
}

// NewOllamaAdapter creates a new Ollama adapter. If host is empty the client
// is configured from the environment (OLLAMA_HOST or the default localhost).
func NewOllamaAdapter(host string) (*OllamaAdapter, error) {
	if host == "" {
		client, err := api.ClientFromEnvironment()
		if err != nil {
			return nil, fmt.Errorf("failed to create ollama client: %w", err)
		}
		return &OllamaAdapter{client: client}, nil
	}

	if !strings.HasPrefix(host, "http://") && !strings.HasPrefix(host, "https://") {
		host = "http://" + host
	}
	baseURL, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama host: %w", err)
	}
	return &OllamaAdapter{client: api.NewClient(baseURL, &http.Client{})}, nil
}

// Name returns the adapter identifier.
func (a *OllamaAdapter) Name() string {
	return "ollama"
}

// Models returns a default local model list.
func (a *OllamaAdapter) Models() []string {
	return []string{
		"llama3.2",
		"qwen2.5",
	}
}

// Invoke sends the request to the local Ollama server and returns the
// normalized response. Tool declarations are rejected: the local chat API's
// typed tool schema cannot carry arbitrary parameter schemas unmodified.
func (a *OllamaAdapter) Invoke(ctx context.Context, req Request, model string) (*RawResponse, error) {
	if len(req.Tools) > 0 {
		return nil, &Error{Kind: KindInvalidRequest, Provider: a.Name(), Err: fmt.Errorf("ollama adapter does not support tool declarations")}
	}

	msg := api.Message{Role: "user", Content: req.Prompt}
	for _, att := range req.Attachments {
		if !isImageMediaType(att.MediaType) {
			return nil, &Error{Kind: KindInvalidRequest, Provider: a.Name(), Err: fmt.Errorf("unsupported attachment type %q for %s", att.MediaType, att.Name)}
		}
		msg.Images = append(msg.Images, api.ImageData(att.Data))
	}

	messages := []api.Message{}
	if req.System != "" {
		messages = append(messages, api.Message{Role: "system", Content: req.System})
	}
	messages = append(messages, msg)

	chatReq := &api.ChatRequest{
		Model:    model,
		Messages: messages,
		Stream:   new(bool),
		Options:  make(map[string]any),
	}
	if req.MaxTokens > 0 {
		chatReq.Options["num_predict"] = int(req.MaxTokens)
	}

	var chatResp api.ChatResponse
	err := a.client.Chat(ctx, chatReq, func(resp api.ChatResponse) error {
		chatResp = resp
		return nil
	})
	if err != nil {
		return nil, &Error{Kind: KindOf(err), Provider: a.Name(), Err: fmt.Errorf("ollama chat request failed: %w", err)}
	}

	return &RawResponse{
		Text: chatResp.Message.Content,
		Usage: Usage{
			Provider:     a.Name(),
			Model:        model,
			InputTokens:  int64(chatResp.Metrics.PromptEvalCount),
			OutputTokens: int64(chatResp.Metrics.EvalCount),
		},
	}, nil
}
