// Package protocol defines the message and tool shapes exchanged between the
// conversation orchestrator and a language model.
package protocol

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is a model's request to run one tool. Arguments is raw JSON text
// exactly as the model produced it.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	ToolName   string     `json:"tool_name,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
}

func NewMessage(role Role, content string) Message {
	return Message{Role: role, Content: content}
}

// NewToolMessage wraps a tool result so the model can correlate it with the
// call that produced it.
func NewToolMessage(call ToolCall, content string) Message {
	return Message{
		Role:       RoleTool,
		Content:    content,
		ToolName:   call.Name,
		ToolCallID: call.ID,
	}
}

// Tool is a callable declaration advertised to the model. Parameters is a
// JSON-schema object: {"type": "object", "properties": {...}, "required": [...]}.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}
