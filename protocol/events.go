package protocol

// PayloadKind identifies which payload a ServerEvent carries.
type PayloadKind string

const (
	PayloadUnknown           PayloadKind = ""
	PayloadMessage           PayloadKind = "message"
	PayloadTurn              PayloadKind = "turn"
	PayloadStderr            PayloadKind = "stderr"
	PayloadError             PayloadKind = "error"
	PayloadSessionInit       PayloadKind = "session_init"
	PayloadSessionClosed     PayloadKind = "session_closed"
	PayloadToolRequest       PayloadKind = "tool_request"
	PayloadHookRequest       PayloadKind = "hook_request"
	PayloadPermissionRequest PayloadKind = "permission_request"
)

// BoundaryKind marks the start or end of a turn.
type BoundaryKind string

const (
	BoundaryBegin BoundaryKind = "begin"
	BoundaryEnd   BoundaryKind = "end"
)

// ServerEvent is one record pushed by the sidecar on an attached session.
// Exactly one payload field is set on a well-formed event.
type ServerEvent struct {
	Message           *MessageEvent              `json:"message,omitempty"`
	Turn              *TurnBoundary              `json:"turn,omitempty"`
	Stderr            *StderrLine                `json:"stderr,omitempty"`
	Error             *SidecarError              `json:"error,omitempty"`
	SessionInit       *SessionInit               `json:"session_init,omitempty"`
	SessionClosed     *SessionClosed             `json:"session_closed,omitempty"`
	ToolRequest       *ToolInvocationRequest     `json:"tool_request,omitempty"`
	HookRequest       *HookInvocationRequest     `json:"hook_request,omitempty"`
	PermissionRequest *PermissionDecisionRequest `json:"permission_request,omitempty"`
	SessionID         string                     `json:"session_id,omitempty"`
	RequestID         string                     `json:"request_id,omitempty"`
	TurnID            string                     `json:"turn_id,omitempty"`
	Seq               uint64                     `json:"seq,omitempty"`
}

// TurnBoundary is a BEGIN or END marker for a turn.
type TurnBoundary struct {
	Kind      BoundaryKind `json:"kind"`
	TurnIndex uint32       `json:"turn_index,omitempty"`
}

// StderrLine is one line of agent stderr relayed by the sidecar.
type StderrLine struct {
	Line string `json:"line"`
}

// SidecarError is an error reported by the sidecar itself.
type SidecarError struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
	Fatal   bool   `json:"fatal,omitempty"`
}

func (e *SidecarError) Error() string {
	if e.Code != "" {
		return e.Code + ": " + e.Message
	}
	return e.Message
}

// SessionInit is emitted once the remote agent has initialized.
type SessionInit struct {
	ClaudeSessionID string   `json:"claude_session_id,omitempty"`
	Tools           []string `json:"tools,omitempty"`
	RawInit         Value    `json:"raw_init,omitzero"`
}

// SessionClosed is emitted when the remote session terminates.
type SessionClosed struct {
	Reason string `json:"reason,omitempty"`
}

// PayloadKind reports which payload e carries. Events with no recognized
// payload return PayloadUnknown.
func (e *ServerEvent) PayloadKind() PayloadKind {
	switch {
	case e == nil:
		return PayloadUnknown
	case e.Message != nil:
		return PayloadMessage
	case e.Turn != nil:
		return PayloadTurn
	case e.Stderr != nil:
		return PayloadStderr
	case e.Error != nil:
		return PayloadError
	case e.SessionInit != nil:
		return PayloadSessionInit
	case e.SessionClosed != nil:
		return PayloadSessionClosed
	case e.ToolRequest != nil:
		return PayloadToolRequest
	case e.HookRequest != nil:
		return PayloadHookRequest
	case e.PermissionRequest != nil:
		return PayloadPermissionRequest
	default:
		return PayloadUnknown
	}
}

func (e *ServerEvent) GetRequestID() string {
	if e == nil {
		return ""
	}
	return e.RequestID
}

func (e *ServerEvent) GetTurnID() string {
	if e == nil {
		return ""
	}
	return e.TurnID
}

func (e *ServerEvent) GetMessage() *MessageEvent {
	if e == nil {
		return nil
	}
	return e.Message
}

func (e *ServerEvent) GetTurn() *TurnBoundary {
	if e == nil {
		return nil
	}
	return e.Turn
}

// IsTurnBegin reports whether e is a BEGIN boundary.
func (e *ServerEvent) IsTurnBegin() bool {
	t := e.GetTurn()
	return t != nil && t.Kind == BoundaryBegin
}

// IsTurnEnd reports whether e is an END boundary.
func (e *ServerEvent) IsTurnEnd() bool {
	t := e.GetTurn()
	return t != nil && t.Kind == BoundaryEnd
}

// IsCallback reports whether e asks the client to answer a callback.
func (e *ServerEvent) IsCallback() bool {
	switch e.PayloadKind() {
	case PayloadToolRequest, PayloadHookRequest, PayloadPermissionRequest:
		return true
	}
	return false
}
