package tplparser

// Message is one chat turn. Content is usually a string but may be a list of
// typed blocks ({"type":"text","text":...}) as sent by OpenAI-style clients.
type Message struct {
	Role      string     `json:"role" yaml:"role"`
	Content   any        `json:"content,omitempty" yaml:"content,omitempty"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty" yaml:"tool_calls,omitempty"`
	Name      string     `json:"name,omitempty" yaml:"name,omitempty"`
}

type ToolCall struct {
	ID       string           `json:"id,omitempty"`
	Type     string           `json:"type,omitempty"`
	Function ToolCallFunction `json:"function"`
}

type ToolCallFunction struct {
	Name      string `json:"name"`
	Arguments any    `json:"arguments,omitempty"`
}

// RenderOptions carries everything a renderer may need besides the template
// family. AddBOS reports that the tokenizer prepends BOS itself, so
// renderers must not write it. DefaultSystem is emitted when the
// conversation has no system turn.
type RenderOptions struct {
	Template            string
	BOSToken            string
	EOSToken            string
	AddBOS              bool
	AddGenerationPrompt bool
	KeepPastThinking    bool
	DefaultSystem       string
	Messages            []Message
	Tools               []any
}

// Renderer formats a conversation for one template family.
type Renderer func(opts RenderOptions) (string, error)
