// Package llm connects the assistant to a function-calling language model.
package llm

import (
	"context"
	"errors"
	"time"

	"github.com/gzhole/shopbot/internal/protocol"
)

var (
	ErrNoChoices     = errors.New("model returned no choices")
	ErrNotConfigured = errors.New("no language model configured")
)

const DefaultTimeout = 30 * time.Second

// Request is one chat completion call. ToolChoice is "auto" unless set.
type Request struct {
	Model      string
	Messages   []protocol.Message
	Tools      []protocol.Tool
	ToolChoice string
}

// Reply is the model's turn: either text, tool calls, or both.
type Reply struct {
	Content   string
	ToolCalls []protocol.ToolCall
}

// Model is the chat completion collaborator.
type Model interface {
	Generate(ctx context.Context, req Request) (*Reply, error)
}

// Config selects and authenticates the model endpoint.
type Config struct {
	Name    string
	BaseURL string
	APIKey  string
	Timeout time.Duration
}
