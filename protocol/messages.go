package protocol

import "strings"

// MessageKind discriminates between message kinds.
type MessageKind string

const (
	MessageKindUser        MessageKind = "user"
	MessageKindAssistant   MessageKind = "assistant"
	MessageKindSystem      MessageKind = "system"
	MessageKindResult      MessageKind = "result"
	MessageKindStreamEvent MessageKind = "stream_event"
)

// MessageKinds lists every message kind in a stable order.
var MessageKinds = []MessageKind{
	MessageKindUser,
	MessageKindAssistant,
	MessageKindSystem,
	MessageKindResult,
	MessageKindStreamEvent,
}

// MessageEvent carries one agent message. Partial messages are incremental
// renderings superseded by a later complete message of the same kind.
type MessageEvent struct {
	User        *UserMessage        `json:"user,omitempty"`
	Assistant   *AssistantMessage   `json:"assistant,omitempty"`
	System      *SystemMessage      `json:"system,omitempty"`
	Result      *ResultMessage      `json:"result,omitempty"`
	StreamEvent *StreamEventMessage `json:"stream_event,omitempty"`
	IsPartial   bool                `json:"is_partial,omitempty"`
}

// Kind returns the kind of the set variant, or "" when none is set.
func (m *MessageEvent) Kind() MessageKind {
	switch {
	case m == nil:
		return ""
	case m.User != nil:
		return MessageKindUser
	case m.Assistant != nil:
		return MessageKindAssistant
	case m.System != nil:
		return MessageKindSystem
	case m.Result != nil:
		return MessageKindResult
	case m.StreamEvent != nil:
		return MessageKindStreamEvent
	default:
		return ""
	}
}

func (m *MessageEvent) GetUser() *UserMessage {
	if m == nil {
		return nil
	}
	return m.User
}

func (m *MessageEvent) GetAssistant() *AssistantMessage {
	if m == nil {
		return nil
	}
	return m.Assistant
}

func (m *MessageEvent) GetSystem() *SystemMessage {
	if m == nil {
		return nil
	}
	return m.System
}

func (m *MessageEvent) GetResult() *ResultMessage {
	if m == nil {
		return nil
	}
	return m.Result
}

func (m *MessageEvent) GetStreamEvent() *StreamEventMessage {
	if m == nil {
		return nil
	}
	return m.StreamEvent
}

// UserMessage is a user turn or tool results echoed back.
type UserMessage struct {
	CheckpointUUID  string         `json:"checkpoint_uuid,omitempty"`
	ParentToolUseID string         `json:"parent_tool_use_id,omitempty"`
	Content         []ContentBlock `json:"content,omitempty"`
}

// AssistantMessage is a message produced by the agent.
type AssistantMessage struct {
	Model           string         `json:"model,omitempty"`
	ParentToolUseID string         `json:"parent_tool_use_id,omitempty"`
	Error           string         `json:"error,omitempty"`
	Content         []ContentBlock `json:"content,omitempty"`
}

// Text concatenates the text blocks of the message.
func (m *AssistantMessage) Text() string {
	if m == nil {
		return ""
	}
	return blocksText(m.Content)
}

// ToolUses returns the tool_use blocks of the message.
func (m *AssistantMessage) ToolUses() []ContentBlock {
	if m == nil {
		return nil
	}
	var out []ContentBlock
	for _, b := range m.Content {
		if b.Type == BlockToolUse {
			out = append(out, b)
		}
	}
	return out
}

// SystemMessage carries system notifications such as init or compaction.
type SystemMessage struct {
	Subtype string `json:"subtype,omitempty"`
	Data    Value  `json:"data,omitzero"`
}

// ResultMessage contains turn completion metrics.
type ResultMessage struct {
	Usage            Value   `json:"usage,omitzero"`
	StructuredOutput Value   `json:"structured_output,omitzero"`
	Subtype          string  `json:"subtype,omitempty"`
	SessionID        string  `json:"session_id,omitempty"`
	Result           string  `json:"result,omitempty"`
	TotalCostUSD     float64 `json:"total_cost_usd,omitempty"`
	DurationMs       uint64  `json:"duration_ms,omitempty"`
	DurationAPIMs    uint64  `json:"duration_api_ms,omitempty"`
	NumTurns         uint32  `json:"num_turns,omitempty"`
	IsError          bool    `json:"is_error,omitempty"`
}

// StreamEventMessage wraps a raw model streaming event.
type StreamEventMessage struct {
	Event           Value  `json:"event,omitzero"`
	UUID            string `json:"uuid,omitempty"`
	SessionID       string `json:"session_id,omitempty"`
	ParentToolUseID string `json:"parent_tool_use_id,omitempty"`
}

// EventType returns the inner event's type field, e.g. "content_block_delta".
func (m *StreamEventMessage) EventType() string {
	if m == nil {
		return ""
	}
	return m.Event.Str("type")
}

// TextDelta returns the text of a content_block_delta/text_delta event.
func (m *StreamEventMessage) TextDelta() (string, bool) {
	if m.EventType() != "content_block_delta" {
		return "", false
	}
	delta := m.Event.Field("delta")
	if delta.Str("type") != "text_delta" {
		return "", false
	}
	return delta.Str("text"), true
}

// ThinkingDelta returns the text of a content_block_delta/thinking_delta event.
func (m *StreamEventMessage) ThinkingDelta() (string, bool) {
	if m.EventType() != "content_block_delta" {
		return "", false
	}
	delta := m.Event.Field("delta")
	if delta.Str("type") != "thinking_delta" {
		return "", false
	}
	return delta.Str("thinking"), true
}

// BlockType discriminates content blocks.
type BlockType string

const (
	BlockText       BlockType = "text"
	BlockThinking   BlockType = "thinking"
	BlockToolUse    BlockType = "tool_use"
	BlockToolResult BlockType = "tool_result"
	BlockJSON       BlockType = "json"
	BlockImage      BlockType = "image"
)

// ContentBlock is one block of message content. Which fields are meaningful
// depends on Type.
type ContentBlock struct {
	Input     Value     `json:"input,omitzero"`
	Content   Value     `json:"content,omitzero"`
	JSON      Value     `json:"json,omitzero"`
	Type      BlockType `json:"type"`
	Text      string    `json:"text,omitempty"`
	Thinking  string    `json:"thinking,omitempty"`
	Signature string    `json:"signature,omitempty"`
	ID        string    `json:"id,omitempty"`
	Name      string    `json:"name,omitempty"`
	ToolUseID string    `json:"tool_use_id,omitempty"`
	Data      string    `json:"data,omitempty"`
	MimeType  string    `json:"mime_type,omitempty"`
	IsError   bool      `json:"is_error,omitempty"`
}

// TextBlock builds a text content block.
func TextBlock(text string) ContentBlock {
	return ContentBlock{Type: BlockText, Text: text}
}

// JSONBlock builds a json content block.
func JSONBlock(v Value) ContentBlock {
	return ContentBlock{Type: BlockJSON, JSON: v}
}

// ImageBlock builds an image block from base64 data.
func ImageBlock(base64Data, mimeType string) ContentBlock {
	return ContentBlock{Type: BlockImage, Data: base64Data, MimeType: mimeType}
}

// ToolUseBlock builds a tool_use block.
func ToolUseBlock(id, name string, input Value) ContentBlock {
	return ContentBlock{Type: BlockToolUse, ID: id, Name: name, Input: input}
}

// ToolResultBlock builds a tool_result block.
func ToolResultBlock(toolUseID string, content Value, isError bool) ContentBlock {
	return ContentBlock{Type: BlockToolResult, ToolUseID: toolUseID, Content: content, IsError: isError}
}

// Value converts the block into its map form.
func (b ContentBlock) Value() Value {
	v, err := ValueOf(b)
	if err != nil {
		return MapValue(map[string]Value{"type": StringValue(string(b.Type))})
	}
	return v
}

func blocksText(blocks []ContentBlock) string {
	var sb strings.Builder
	for _, b := range blocks {
		if b.Type == BlockText {
			sb.WriteString(b.Text)
		}
	}
	return sb.String()
}
