// Package llm provides chat-completion and embedding access to language
// model APIs. Handlers and the agent runner depend on the Provider interface
// so tests can substitute fakes.
package llm

import "context"

// Message is one turn in a chat-completion conversation.
type Message struct {
	Role       string     `json:"role"` // system, user, assistant, tool
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// ToolCall is a model-issued request to invoke one tool.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// FunctionCall carries the tool name and its JSON-encoded arguments.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Tool declares one callable function to the model.
type Tool struct {
	Type     string       `json:"type"`
	Function ToolFunction `json:"function"`
}

// ToolFunction is the schema half of a tool declaration.
type ToolFunction struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// ResponseFormat constrains model output (e.g. json_object for strict JSON).
type ResponseFormat struct {
	Type string `json:"type"`
}

// ChatRequest is a single completion call.
type ChatRequest struct {
	Model          string
	Messages       []Message
	Tools          []Tool
	ToolChoice     string // "", "auto" or "none"
	Temperature    float64
	MaxTokens      int
	ResponseFormat *ResponseFormat
}

// ChatResponse is the assistant turn returned by a completion call.
type ChatResponse struct {
	Message          Message
	FinishReason     string
	PromptTokens     int64
	CompletionTokens int64
}

// Provider is the contract for chat-completion backends.
type Provider interface {
	// ChatCompletion performs one blocking completion call.
	ChatCompletion(ctx context.Context, req ChatRequest) (ChatResponse, error)

	// StreamChatCompletion performs a streaming completion call, invoking
	// onDelta for every content fragment, and returns the assembled message.
	StreamChatCompletion(ctx context.Context, req ChatRequest, onDelta func(delta string) error) (ChatResponse, error)

	// Embed generates vector embeddings for the provided inputs.
	Embed(ctx context.Context, input []string) ([][]float32, error)
}
