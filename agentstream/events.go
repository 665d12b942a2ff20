package agentstream

// EventKind identifies the common event category.
type EventKind int

const (
	// KindUnknown is the zero value. Events returning KindUnknown are skipped
	// by Bridge.
	KindUnknown EventKind = iota
	KindText
	KindThinking
	KindToolStart
	KindToolEnd
	KindTurnComplete
	KindError
)

func (k EventKind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindThinking:
		return "thinking"
	case KindToolStart:
		return "tool_start"
	case KindToolEnd:
		return "tool_end"
	case KindTurnComplete:
		return "turn_complete"
	case KindError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is the common interface of translated events.
type Event interface {
	StreamEventKind() EventKind
}

// Text provides streaming text deltas.
// Method names are prefixed with "Stream" to avoid conflicts with struct fields.
type Text interface {
	Event
	StreamDelta() string
}

// ToolStart provides tool invocation start metadata.
type ToolStart interface {
	Event
	StreamToolName() string
	StreamToolCallID() string
	StreamToolInput() map[string]any
}

// ToolEnd provides tool invocation completion metadata.
type ToolEnd interface {
	Event
	StreamToolName() string
	StreamToolCallID() string
	StreamToolInput() map[string]any
	StreamToolResult() any
	StreamToolIsError() bool
}

// TurnComplete provides turn completion metadata.
type TurnComplete interface {
	Event
	StreamTurnNum() int
	StreamIsSuccess() bool
	StreamDuration() int64
	StreamCost() float64
}

// Error provides error information.
type Error interface {
	Event
	StreamErr() error
	StreamErrorContext() string
}

// Scoped is implemented by events that belong to one request. Bridge uses it
// to filter a session-wide channel down to a single query.
type Scoped interface {
	ScopeID() string
}

// scope is embedded by every concrete event.
type scope struct {
	RequestID string
}

func (s scope) ScopeID() string { return s.RequestID }

// TextEvent is assistant text, either a partial delta or a complete block.
type TextEvent struct {
	scope
	Text string
}

func (e TextEvent) StreamEventKind() EventKind { return KindText }
func (e TextEvent) StreamDelta() string        { return e.Text }

// ThinkingEvent is assistant reasoning text.
type ThinkingEvent struct {
	scope
	Thinking string
}

func (e ThinkingEvent) StreamEventKind() EventKind { return KindThinking }
func (e ThinkingEvent) StreamDelta() string        { return e.Thinking }

// ToolStartEvent is a tool_use block from the agent.
type ToolStartEvent struct {
	scope
	Input map[string]any
	Name  string
	ID    string
}

func (e ToolStartEvent) StreamEventKind() EventKind      { return KindToolStart }
func (e ToolStartEvent) StreamToolName() string          { return e.Name }
func (e ToolStartEvent) StreamToolCallID() string        { return e.ID }
func (e ToolStartEvent) StreamToolInput() map[string]any { return e.Input }

// ToolEndEvent is a tool_result block echoed back in a user message. Name and
// Input come from the matching ToolStartEvent when one was seen.
type ToolEndEvent struct {
	scope
	Input   map[string]any
	Result  any
	Name    string
	ID      string
	IsError bool
}

func (e ToolEndEvent) StreamEventKind() EventKind      { return KindToolEnd }
func (e ToolEndEvent) StreamToolName() string          { return e.Name }
func (e ToolEndEvent) StreamToolCallID() string        { return e.ID }
func (e ToolEndEvent) StreamToolInput() map[string]any { return e.Input }
func (e ToolEndEvent) StreamToolResult() any           { return e.Result }
func (e ToolEndEvent) StreamToolIsError() bool         { return e.IsError }

// TurnCompleteEvent is derived from a complete result message.
type TurnCompleteEvent struct {
	scope
	TurnNumber int
	Success    bool
	DurationMs int64
	CostUSD    float64
}

func (e TurnCompleteEvent) StreamEventKind() EventKind { return KindTurnComplete }
func (e TurnCompleteEvent) StreamTurnNum() int         { return e.TurnNumber }
func (e TurnCompleteEvent) StreamIsSuccess() bool      { return e.Success }
func (e TurnCompleteEvent) StreamDuration() int64      { return e.DurationMs }
func (e TurnCompleteEvent) StreamCost() float64        { return e.CostUSD }

// ErrorEvent is a sidecar error or an assistant message that carries an error.
type ErrorEvent struct {
	scope
	Err     error
	Context string
}

func (e ErrorEvent) StreamEventKind() EventKind { return KindError }
func (e ErrorEvent) StreamErr() error           { return e.Err }
func (e ErrorEvent) StreamErrorContext() string { return e.Context }

var (
	_ Text         = TextEvent{}
	_ Text         = ThinkingEvent{}
	_ ToolStart    = ToolStartEvent{}
	_ ToolEnd      = ToolEndEvent{}
	_ TurnComplete = TurnCompleteEvent{}
	_ Error        = ErrorEvent{}
	_ Scoped       = TextEvent{}
)
