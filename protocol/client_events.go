package protocol

// ProtocolVersion is the session protocol spoken by this client.
const ProtocolVersion = "v1"

// ClientPayload identifies which payload a ClientEvent carries.
type ClientPayload string

const (
	ClientUnknown            ClientPayload = ""
	ClientHelloPayload       ClientPayload = "hello"
	ClientQuery              ClientPayload = "query"
	ClientInputChunk         ClientPayload = "input_chunk"
	ClientEndInput           ClientPayload = "end_input"
	ClientInterrupt          ClientPayload = "interrupt"
	ClientCancel             ClientPayload = "cancel"
	ClientSetPermissionMode  ClientPayload = "set_permission_mode"
	ClientSetModel           ClientPayload = "set_model"
	ClientToolResponse       ClientPayload = "tool_response"
	ClientHookResponse       ClientPayload = "hook_response"
	ClientPermissionResponse ClientPayload = "permission_response"
)

// ClientEvent is one record sent by the client on an attached session.
type ClientEvent struct {
	Hello              *ClientHello                `json:"hello,omitempty"`
	Query              *Query                      `json:"query,omitempty"`
	InputChunk         *InputChunk                 `json:"input_chunk,omitempty"`
	EndInput           *EndInput                   `json:"end_input,omitempty"`
	Interrupt          *Interrupt                  `json:"interrupt,omitempty"`
	Cancel             *Cancel                     `json:"cancel,omitempty"`
	SetPermissionMode  *SetPermissionMode          `json:"set_permission_mode,omitempty"`
	SetModel           *SetModel                   `json:"set_model,omitempty"`
	ToolResponse       *ToolInvocationResponse     `json:"tool_response,omitempty"`
	HookResponse       *HookInvocationResponse     `json:"hook_response,omitempty"`
	PermissionResponse *PermissionDecisionResponse `json:"permission_response,omitempty"`
	SessionID          string                      `json:"session_id,omitempty"`
	RequestID          string                      `json:"request_id,omitempty"`
}

// ClientHello opens an attached session.
type ClientHello struct {
	ProtocolVersion string `json:"protocol_version"`
	ClientName      string `json:"client_name,omitempty"`
	ClientVersion   string `json:"client_version,omitempty"`
}

// Query starts a new turn, either from a prompt or from an input stream.
type Query struct {
	Prompt        string `json:"prompt,omitempty"`
	InputStreamID string `json:"input_stream_id,omitempty"`
}

// InputChunk feeds one event into an open input stream.
type InputChunk struct {
	Event         Value  `json:"event,omitzero"`
	InputStreamID string `json:"input_stream_id"`
}

// EndInput closes an input stream.
type EndInput struct {
	InputStreamID string `json:"input_stream_id"`
}

// Interrupt stops the current turn.
type Interrupt struct{}

// Cancel cancels the current turn with a reason.
type Cancel struct {
	Reason string `json:"reason,omitempty"`
}

// SetPermissionMode changes the session permission mode.
type SetPermissionMode struct {
	Mode string `json:"mode"`
}

// SetModel switches the session model.
type SetModel struct {
	Model string `json:"model"`
}

// Payload reports which payload e carries.
func (e *ClientEvent) Payload() ClientPayload {
	switch {
	case e == nil:
		return ClientUnknown
	case e.Hello != nil:
		return ClientHelloPayload
	case e.Query != nil:
		return ClientQuery
	case e.InputChunk != nil:
		return ClientInputChunk
	case e.EndInput != nil:
		return ClientEndInput
	case e.Interrupt != nil:
		return ClientInterrupt
	case e.Cancel != nil:
		return ClientCancel
	case e.SetPermissionMode != nil:
		return ClientSetPermissionMode
	case e.SetModel != nil:
		return ClientSetModel
	case e.ToolResponse != nil:
		return ClientToolResponse
	case e.HookResponse != nil:
		return ClientHookResponse
	case e.PermissionResponse != nil:
		return ClientPermissionResponse
	default:
		return ClientUnknown
	}
}
