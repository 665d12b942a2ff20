package protocol

import "time"

// ServiceName is the gRPC service exposed by the sidecar.
const ServiceName = "agentsidecar.v1.AgentSidecar"

// Full gRPC method names.
const (
	MethodAttachSession = "/" + ServiceName + "/AttachSession"
	MethodGetInfo       = "/" + ServiceName + "/GetInfo"
	MethodHealthCheck   = "/" + ServiceName + "/HealthCheck"
	MethodCreateSession = "/" + ServiceName + "/CreateSession"
	MethodGetSession    = "/" + ServiceName + "/GetSession"
	MethodListSessions  = "/" + ServiceName + "/ListSessions"
	MethodDeleteSession = "/" + ServiceName + "/DeleteSession"
	MethodForkSession   = "/" + ServiceName + "/ForkSession"
	MethodRewindFiles   = "/" + ServiceName + "/RewindFiles"
)

// Capabilities advertised by GetInfo.
const (
	CapabilityHooks               = "hooks"
	CapabilityPermissions         = "permissions"
	CapabilityPermissionSuggest   = "permission_suggestions"
	CapabilityPermissionUpdates   = "permission_updates"
	CapabilityPermissionInterrupt = "permission_interrupt"
	CapabilitySDKMCP              = "sdk_mcp"
	CapabilityMCPExternal         = "mcp_external"
	CapabilityClientTools         = "client_tools"
	CapabilityCheckpointing       = "checkpointing"
	CapabilityRewindFiles         = "rewind_files"
	CapabilityStructuredOutputs   = "structured_outputs"
	CapabilitySandbox             = "sandbox"
	CapabilityAgents              = "agents"
	CapabilityPlugins             = "plugins"
	CapabilitySessions            = "sessions"
	CapabilityResume              = "resume"
	CapabilityFork                = "fork"
	CapabilityInputStream         = "input_stream"
	CapabilityStderr              = "stderr"
	CapabilityPartialMessages     = "partial_messages"
	CapabilityDynamicControl      = "dynamic_control"
)

type GetInfoRequest struct{}

// GetInfoResponse describes the sidecar build and its capabilities.
type GetInfoResponse struct {
	SidecarVersion  string   `json:"sidecar_version,omitempty"`
	ProtocolVersion string   `json:"protocol_version,omitempty"`
	AgentVersion    string   `json:"agent_version,omitempty"`
	Capabilities    []string `json:"capabilities,omitempty"`
}

// HasCapability reports whether the sidecar advertised capability.
func (r *GetInfoResponse) HasCapability(capability string) bool {
	if r == nil || capability == "" {
		return false
	}
	for _, c := range r.Capabilities {
		if c == capability {
			return true
		}
	}
	return false
}

type HealthCheckRequest struct{}

type HealthCheckResponse struct {
	Status string `json:"status"`
}

// ToolSpec declares a client-side tool the agent may invoke.
type ToolSpec struct {
	InputSchema Value  `json:"input_schema,omitzero"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// SessionConfig configures a new remote session.
type SessionConfig struct {
	Options         Value      `json:"options,omitzero"`
	Model           string     `json:"model,omitempty"`
	PermissionMode  string     `json:"permission_mode,omitempty"`
	SystemPrompt    string     `json:"system_prompt,omitempty"`
	Cwd             string     `json:"cwd,omitempty"`
	Resume          string     `json:"resume,omitempty"`
	Tools           []ToolSpec `json:"tools,omitempty"`
	Hooks           []string   `json:"hooks,omitempty"`
	MaxTurns        uint32     `json:"max_turns,omitempty"`
	PartialMessages bool       `json:"include_partial_messages,omitempty"`
}

// SessionState is the lifecycle state of a remote session.
type SessionState string

const (
	SessionStateIdle    SessionState = "idle"
	SessionStateRunning SessionState = "running"
	SessionStateClosed  SessionState = "closed"
)

// SessionSummary describes a remote session.
type SessionSummary struct {
	CreatedAt       time.Time    `json:"created_at,omitzero"`
	SessionID       string       `json:"session_id"`
	ClaudeSessionID string       `json:"claude_session_id,omitempty"`
	State           SessionState `json:"state,omitempty"`
	Model           string       `json:"model,omitempty"`
	Attached        bool         `json:"attached,omitempty"`
}

type CreateSessionRequest struct {
	Config SessionConfig `json:"config"`
}

type CreateSessionResponse struct {
	Session SessionSummary `json:"session"`
}

type GetSessionRequest struct {
	SessionID string `json:"session_id"`
}

type GetSessionResponse struct {
	Session SessionSummary `json:"session"`
}

type ListSessionsRequest struct{}

type ListSessionsResponse struct {
	Sessions []SessionSummary `json:"sessions,omitempty"`
}

type DeleteSessionRequest struct {
	SessionID string `json:"session_id"`
	Force     bool   `json:"force,omitempty"`
}

type DeleteSessionResponse struct {
	Deleted bool `json:"deleted"`
}

type ForkSessionRequest struct {
	SessionID string        `json:"session_id"`
	Config    SessionConfig `json:"config"`
}

type ForkSessionResponse struct {
	Session SessionSummary `json:"session"`
}

type RewindFilesRequest struct {
	SessionID      string `json:"session_id"`
	CheckpointUUID string `json:"checkpoint_uuid"`
}

type RewindFilesResponse struct {
	Message string `json:"message,omitempty"`
	Rewound bool   `json:"rewound"`
}
