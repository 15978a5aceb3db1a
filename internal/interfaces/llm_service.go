package interfaces

import (
	"context"
)

// LLMMode represents the operational mode of the LLM service
type LLMMode string

const (
	// LLMModeCloud indicates the service uses cloud-based LLM APIs
	LLMModeCloud LLMMode = "cloud"

	// LLMModeOffline indicates the service uses local models
	LLMModeOffline LLMMode = "offline"
)

// Message represents a single message in a chat conversation
type Message struct {
	// Role identifies the message sender: "user", "assistant", or "system"
	Role string

	// Content contains the text content of the message
	Content string
}

// StreamChunk is one unit of streamed completion output. Content carries a
// token or token group. Err, when set, terminates the stream; any content
// already delivered remains valid partial output.
type StreamChunk struct {
	Content string
	Err     error
}

// LLMService defines the interface for chat completion backends. One
// service instance serves the whole application; implementations serialize
// generation internally, so concurrent callers queue rather than contend
// for model resources.
type LLMService interface {
	// Chat generates a completion for the conversation history. The
	// messages slice should contain the full context including system
	// prompts, user messages, and previous assistant responses.
	Chat(ctx context.Context, messages []Message) (string, error)

	// ChatStream generates a completion and delivers it incrementally.
	// The returned channel is closed when generation finishes, fails, or
	// the context is cancelled. Cancellation keeps the tokens already
	// delivered.
	ChatStream(ctx context.Context, messages []Message) (<-chan StreamChunk, error)

	// HealthCheck verifies the backend is operational
	HealthCheck(ctx context.Context) error

	// GetMode reports whether the service is offline or cloud backed
	GetMode() LLMMode

	// Close releases resources; offline implementations stop their
	// inference subprocess.
	Close() error
}

// KeyValueStore is the subset of storage used for API key resolution
type KeyValueStore interface {
	Get(ctx context.Context, key string) (string, error)
}
