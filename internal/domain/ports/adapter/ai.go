package adapter

import (
	"context"

	"github.com/google/jsonschema-go/jsonschema"
)

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"` // "user", "assistant", "system"
	Content string `json:"content"`
}

// Usage for a single chat call.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// ChatRequest is one streamed chat completion. System is sent as the
// provider's system instruction, Messages in order after it.
type ChatRequest struct {
	Model     string
	System    string
	Messages  []Message
	MaxTokens int
}

// ChatStreamer is the port for streaming LLM chat.
type ChatStreamer interface {
	// ChatStream starts a completion and returns at once. Deltas arrive on
	// the stream; the stream's Err is set once Chunks is closed.
	ChatStream(ctx context.Context, req ChatRequest) (*TextStream, error)
}

// StructuredRequest asks for a single JSON document matching Schema.
type StructuredRequest struct {
	Model       string
	System      string
	Prompt      string
	SchemaName  string
	Schema      *jsonschema.Schema
	MaxTokens   int
	Temperature float64
}

// StructuredCompleter is the port for the emotion classification call.
// It returns the raw completion text; parsing is the caller's job since
// providers do not always honour the schema.
type StructuredCompleter interface {
	CompleteJSON(ctx context.Context, req StructuredRequest) (string, error)
}

// Citation is a URL the provider attached to its answer.
type Citation struct {
	Title string
	URL   string
}

// SearchResult is the provider's free text plus any structured citations.
type SearchResult struct {
	Text      string
	Citations []Citation
}

// ContentSearcher is the port for content lookup on the recommendation track.
type ContentSearcher interface {
	Search(ctx context.Context, query string) (SearchResult, error)
}
