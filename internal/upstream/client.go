package upstream

import (
	"context"

	"github.com/af-corp/conduit/internal/types"
)

// CompletionRequest is the wire shape sent to the completion endpoint.
type CompletionRequest struct {
	Model       string          `json:"model"`
	Messages    []types.Message `json:"messages"`
	Stream      bool            `json:"stream,omitempty"`
	Temperature *float64        `json:"temperature,omitempty"`
	MaxTokens   *int            `json:"max_tokens,omitempty"`
}

// Completer performs chat completions against the upstream model endpoint.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
	OpenStream(ctx context.Context, req CompletionRequest) (Stream, error)
}

// Stream yields raw text chunks from an in-flight completion.
// Recv returns io.EOF when the stream is exhausted.
type Stream interface {
	Recv() ([]byte, error)
	Close() error
}
