package llm

import (
	"context"
	"errors"
)

// Message is one prior conversation turn. Role is "user" or "model".
type Message struct {
	Role string
	Text string
}

// Image is an inline attachment sent alongside the prompt.
type Image struct {
	MIMEType string
	Data     []byte
}

// Request captures one chat turn with its surrounding context.
type Request struct {
	SystemInstruction string
	History           []Message
	Prompt            string
	Image             *Image
}

// Stream yields response text incrementally. Recv returns io.EOF when the
// model is done.
type Stream interface {
	Recv() (string, error)
	Close() error
}

// Client abstracts chat model providers.
type Client interface {
	StreamChat(ctx context.Context, req Request) (Stream, error)
}

// ErrNotConfigured is returned by the placeholder client.
var ErrNotConfigured = errors.New("LLM not configured")

// PlaceholderClient is used when no provider API key is set.
type PlaceholderClient struct{}

func (PlaceholderClient) StreamChat(ctx context.Context, req Request) (Stream, error) {
	return nil, ErrNotConfigured
}
