package adapter

import "encoding/json"

// Usage captures normalized token usage for one backend call.
type Usage struct {
	Provider     string `json:"provider"`
	Model        string `json:"model"`
	InputTokens  int64  `json:"input_tokens"`
	OutputTokens int64  `json:"output_tokens"`
}

// TotalTokens returns the combined token count.
func (u Usage) TotalTokens() int64 {
	return u.InputTokens + u.OutputTokens
}

// Add returns the element-wise sum of two usages. Provider and model are
// taken from the receiver.
func (u Usage) Add(other Usage) Usage {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	return u
}

// ToolCall is a tool invocation requested by the model, passed through
// structurally unchanged.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// RawResponse wraps one backend response: the opaque payload, any tool-call
// requests, and the usage that produced it. It lives for a single attempt.
type RawResponse struct {
	Text      string
	ToolCalls []ToolCall
	Usage     Usage
}
