package protocol

// ToolInvocationRequest asks the client to execute a client-side tool.
type ToolInvocationRequest struct {
	Input        Value  `json:"input,omitzero"`
	InvocationID string `json:"invocation_id"`
	ToolName     string `json:"tool_name"`
	ToolFQN      string `json:"tool_fqn,omitempty"`
	ToolUseID    string `json:"tool_use_id,omitempty"`
}

// HookInvocationRequest asks the client to run a lifecycle hook.
type HookInvocationRequest struct {
	Input        Value  `json:"input,omitzero"`
	InvocationID string `json:"invocation_id"`
	HookEvent    string `json:"hook_event"`
	ToolName     string `json:"tool_name,omitempty"`
	ToolUseID    string `json:"tool_use_id,omitempty"`
}

// PermissionDecisionRequest asks the client whether a tool may run.
// Attempt starts at 1 and increases when the client answered "ask".
type PermissionDecisionRequest struct {
	Input        Value  `json:"input,omitzero"`
	Suggestions  Value  `json:"permission_suggestions,omitzero"`
	InvocationID string `json:"invocation_id"`
	ToolName     string `json:"tool_name"`
	ToolUseID    string `json:"tool_use_id,omitempty"`
	Prompt       string `json:"prompt,omitempty"`
	Attempt      uint32 `json:"attempt,omitempty"`
}

// PermissionBehavior is the verdict of a permission decision.
type PermissionBehavior string

const (
	PermissionBehaviorAllow PermissionBehavior = "allow"
	PermissionBehaviorDeny  PermissionBehavior = "deny"
	PermissionBehaviorAsk   PermissionBehavior = "ask"
)

// PermissionDecision answers a PermissionDecisionRequest.
type PermissionDecision struct {
	UpdatedInput       Value              `json:"updated_input,omitzero"`
	UpdatedPermissions Value              `json:"updated_permissions,omitzero"`
	Behavior           PermissionBehavior `json:"behavior"`
	Reason             string             `json:"reason,omitempty"`
	Interrupt          bool               `json:"interrupt,omitempty"`
}

// HookOutput answers a HookInvocationRequest. A nil Continue means the agent's
// default, which is to continue.
type HookOutput struct {
	HookSpecificOutput Value  `json:"hook_specific_output,omitzero"`
	Continue           *bool  `json:"continue,omitempty"`
	StopReason         string `json:"stop_reason,omitempty"`
	Decision           string `json:"decision,omitempty"`
	Reason             string `json:"reason,omitempty"`
	SystemMessage      string `json:"system_message,omitempty"`
	AsyncTimeoutMs     uint32 `json:"async_timeout_ms,omitempty"`
	SuppressOutput     bool   `json:"suppress_output,omitempty"`
	Async              bool   `json:"async,omitempty"`
}

// ToolInvocationResponse carries a tool's result payload back to the sidecar.
type ToolInvocationResponse struct {
	Result       Value  `json:"result,omitzero"`
	InvocationID string `json:"invocation_id"`
}

// HookInvocationResponse carries a hook's output back to the sidecar.
type HookInvocationResponse struct {
	Output       *HookOutput `json:"output,omitempty"`
	InvocationID string      `json:"invocation_id"`
}

// PermissionDecisionResponse carries a permission decision back to the sidecar.
type PermissionDecisionResponse struct {
	Decision     *PermissionDecision `json:"decision,omitempty"`
	InvocationID string              `json:"invocation_id"`
}
