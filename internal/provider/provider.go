package provider

import (
	"context"
	"errors"
)

// ErrUnavailable marks a capability whose backing provider cannot be called,
// typically because its credential is absent. Callers fold it into the same
// degraded defaults as a transport failure.
var ErrUnavailable = errors.New("provider unavailable")

// Message is a single turn in a conversation sent to a provider.
type Message struct {
	Role    string `json:"role"` // user or assistant
	Content string `json:"content"`
}

// Provider is a hosted large-language-model behind a completion interface.
// Implementations make a single round trip per call; prompt construction and
// response interpretation belong to the caller.
type Provider interface {
	// Name identifies the provider in logs and metrics.
	Name() string

	// Generate runs a one-shot prompt and returns the raw text response.
	Generate(ctx context.Context, prompt string) (string, error)

	// GenerateWithSystem runs a chat-style request with a system
	// instruction and prior message history.
	GenerateWithSystem(ctx context.Context, system string, messages []Message) (string, error)

	// GenerateStream runs a one-shot prompt, invoking onDelta with each
	// incremental text fragment as it arrives, and returns the full
	// accumulated response.
	GenerateStream(ctx context.Context, prompt string, onDelta func(string)) (string, error)
}
