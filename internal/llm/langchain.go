package llm

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/gzhole/shopbot/internal/protocol"
)

// ContentGenerator is the part of llms.Model the adapter uses.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error)
}

// LangChain adapts a langchaingo model to Model.
type LangChain struct {
	gen   ContentGenerator
	model string
}

func NewLangChain(gen ContentGenerator, model string) *LangChain {
	return &LangChain{gen: gen, model: model}
}

// NewOpenAI builds a model for any OpenAI-compatible endpoint.
func NewOpenAI(cfg Config) (*LangChain, error) {
	if cfg.APIKey == "" {
		return nil, ErrNotConfigured
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	opts := []openai.Option{
		openai.WithToken(cfg.APIKey),
		openai.WithModel(cfg.Name),
		openai.WithHTTPClient(&http.Client{Timeout: timeout}),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	client, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create model client: %w", err)
	}
	return NewLangChain(client, cfg.Name), nil
}

func (l *LangChain) Generate(ctx context.Context, req Request) (*Reply, error) {
	model := req.Model
	if model == "" {
		model = l.model
	}
	choice := req.ToolChoice
	if choice == "" {
		choice = "auto"
	}

	opts := []llms.CallOption{llms.WithModel(model)}
	if len(req.Tools) > 0 {
		opts = append(opts, llms.WithTools(toLLMTools(req.Tools)), llms.WithToolChoice(choice))
	}

	resp, err := l.gen.GenerateContent(ctx, ToMessageContent(req.Messages), opts...)
	if err != nil {
		return nil, err
	}
	if resp == nil || len(resp.Choices) == 0 {
		return nil, ErrNoChoices
	}

	c := resp.Choices[0]
	reply := &Reply{Content: c.Content}
	for _, tc := range c.ToolCalls {
		if tc.FunctionCall == nil {
			continue
		}
		id := tc.ID
		if id == "" {
			id = "call_" + uuid.NewString()
		}
		reply.ToolCalls = append(reply.ToolCalls, protocol.ToolCall{
			ID:        id,
			Name:      tc.FunctionCall.Name,
			Arguments: tc.FunctionCall.Arguments,
		})
	}
	return reply, nil
}

func toLLMTools(decls []protocol.Tool) []llms.Tool {
	out := make([]llms.Tool, 0, len(decls))
	for _, d := range decls {
		out = append(out, llms.Tool{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        d.Name,
				Description: d.Description,
				Parameters:  d.Parameters,
			},
		})
	}
	return out
}

// ToMessageContent converts a session to langchaingo messages. The history
// window can evict one half of a tool exchange, so tool calls without a
// response and responses without a call are dropped.
func ToMessageContent(msgs []protocol.Message) []llms.MessageContent {
	answered := make(map[string]bool)
	for _, m := range msgs {
		if m.Role == protocol.RoleTool {
			answered[m.ToolCallID] = true
		}
	}

	called := make(map[string]bool)
	out := make([]llms.MessageContent, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case protocol.RoleSystem:
			out = append(out, llms.TextParts(llms.ChatMessageTypeSystem, m.Content))
		case protocol.RoleUser:
			out = append(out, llms.TextParts(llms.ChatMessageTypeHuman, m.Content))
		case protocol.RoleAssistant:
			mc := llms.MessageContent{Role: llms.ChatMessageTypeAI}
			if m.Content != "" {
				mc.Parts = append(mc.Parts, llms.TextContent{Text: m.Content})
			}
			for _, tc := range m.ToolCalls {
				if !answered[tc.ID] {
					continue
				}
				called[tc.ID] = true
				mc.Parts = append(mc.Parts, llms.ToolCall{
					ID:           tc.ID,
					Type:         "function",
					FunctionCall: &llms.FunctionCall{Name: tc.Name, Arguments: tc.Arguments},
				})
			}
			if len(mc.Parts) > 0 {
				out = append(out, mc)
			}
		case protocol.RoleTool:
			if !called[m.ToolCallID] {
				continue
			}
			out = append(out, llms.MessageContent{
				Role: llms.ChatMessageTypeTool,
				Parts: []llms.ContentPart{llms.ToolCallResponse{
					ToolCallID: m.ToolCallID,
					Name:       m.ToolName,
					Content:    m.Content,
				}},
			})
		}
	}
	return out
}
