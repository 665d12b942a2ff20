package sidecar

import (
	"github.com/bazelment/agent-sidecar/protocol"
)

// PermissionAllow allows the tool to run.
func PermissionAllow(reason string) *protocol.PermissionDecision {
	return &protocol.PermissionDecision{Behavior: protocol.PermissionBehaviorAllow, Reason: reason}
}

// PermissionDeny blocks the tool.
func PermissionDeny(reason string) *protocol.PermissionDecision {
	return &protocol.PermissionDecision{Behavior: protocol.PermissionBehaviorDeny, Reason: reason}
}

// PermissionAsk asks the sidecar to retry the decision with a higher attempt.
func PermissionAsk(reason string) *protocol.PermissionDecision {
	return &protocol.PermissionDecision{Behavior: protocol.PermissionBehaviorAsk, Reason: reason}
}

// WithUpdatedInput replaces the tool input the agent will run with.
func WithUpdatedInput(d *protocol.PermissionDecision, input protocol.Value) *protocol.PermissionDecision {
	if d != nil {
		d.UpdatedInput = input
	}
	return d
}

// WithUpdatedPermissions attaches permission rule updates to d.
func WithUpdatedPermissions(d *protocol.PermissionDecision, updates ...PermissionUpdate) *protocol.PermissionDecision {
	if d != nil && len(updates) > 0 {
		d.UpdatedPermissions = PermissionUpdatesValue(updates...)
	}
	return d
}

// WithInterrupt makes the agent stop the current turn after the decision.
func WithInterrupt(d *protocol.PermissionDecision, interrupt bool) *protocol.PermissionDecision {
	if d != nil {
		d.Interrupt = interrupt
	}
	return d
}

// PermissionRule names a tool, optionally narrowed by rule content such as a
// command prefix.
type PermissionRule struct {
	ToolName    string
	RuleContent string
}

// PermissionUpdate is a permission-rule change carried in updated_permissions
// or permission_suggestions.
type PermissionUpdate struct {
	Type        string
	Behavior    string
	Mode        string
	Destination string
	Rules       []PermissionRule
	Directories []string
}

// Value renders u in its wire form.
func (u PermissionUpdate) Value() protocol.Value {
	out := map[string]protocol.Value{"type": protocol.StringValue(u.Type)}
	if u.Destination != "" {
		out["destination"] = protocol.StringValue(u.Destination)
	}
	if u.Behavior != "" {
		out["behavior"] = protocol.StringValue(u.Behavior)
	}
	if u.Mode != "" {
		out["mode"] = protocol.StringValue(u.Mode)
	}
	if len(u.Directories) > 0 {
		dirs := make([]protocol.Value, len(u.Directories))
		for i, d := range u.Directories {
			dirs[i] = protocol.StringValue(d)
		}
		out["directories"] = protocol.ListValue(dirs...)
	}
	if len(u.Rules) > 0 {
		rules := make([]protocol.Value, len(u.Rules))
		for i, r := range u.Rules {
			item := map[string]protocol.Value{"toolName": protocol.StringValue(r.ToolName)}
			if r.RuleContent != "" {
				item["ruleContent"] = protocol.StringValue(r.RuleContent)
			}
			rules[i] = protocol.MapValue(item)
		}
		out["rules"] = protocol.ListValue(rules...)
	}
	return protocol.MapValue(out)
}

// PermissionUpdatesValue renders a list of updates.
func PermissionUpdatesValue(updates ...PermissionUpdate) protocol.Value {
	items := make([]protocol.Value, len(updates))
	for i, u := range updates {
		items[i] = u.Value()
	}
	return protocol.ListValue(items...)
}

// PermissionSuggestions returns the suggestion list of req as maps.
func PermissionSuggestions(req *protocol.PermissionDecisionRequest) []protocol.Value {
	if req == nil {
		return nil
	}
	list, _ := req.Suggestions.AsList()
	return list
}

func PermissionUpdateSetMode(mode, destination string) PermissionUpdate {
	return PermissionUpdate{Type: "setMode", Mode: mode, Destination: destination}
}

func PermissionUpdateAddRules(behavior, destination string, rules ...PermissionRule) PermissionUpdate {
	return PermissionUpdate{Type: "addRules", Behavior: behavior, Destination: destination, Rules: rules}
}

func PermissionUpdateReplaceRules(behavior, destination string, rules ...PermissionRule) PermissionUpdate {
	return PermissionUpdate{Type: "replaceRules", Behavior: behavior, Destination: destination, Rules: rules}
}

func PermissionUpdateRemoveRules(behavior, destination string, rules ...PermissionRule) PermissionUpdate {
	return PermissionUpdate{Type: "removeRules", Behavior: behavior, Destination: destination, Rules: rules}
}

func PermissionUpdateAddDirectories(destination string, dirs ...string) PermissionUpdate {
	return PermissionUpdate{Type: "addDirectories", Destination: destination, Directories: dirs}
}

func PermissionUpdateRemoveDirectories(destination string, dirs ...string) PermissionUpdate {
	return PermissionUpdate{Type: "removeDirectories", Destination: destination, Directories: dirs}
}

func boolPtr(v bool) *bool {
	return &v
}

// HookDefault leaves every field unset, which the agent treats as continue.
func HookDefault() *protocol.HookOutput {
	return &protocol.HookOutput{}
}

func HookContinue() *protocol.HookOutput {
	return &protocol.HookOutput{Continue: boolPtr(true)}
}

func HookStop(reason string) *protocol.HookOutput {
	return &protocol.HookOutput{Continue: boolPtr(false), StopReason: reason}
}

func HookSuppressOutput(systemMessage string) *protocol.HookOutput {
	return &protocol.HookOutput{Continue: boolPtr(true), SuppressOutput: true, SystemMessage: systemMessage}
}

func HookAsync(timeoutMs uint32) *protocol.HookOutput {
	return &protocol.HookOutput{Continue: boolPtr(true), Async: true, AsyncTimeoutMs: timeoutMs}
}

func HookBlock(reason, systemMessage string) *protocol.HookOutput {
	return &protocol.HookOutput{
		Continue:      boolPtr(false),
		Decision:      "block",
		Reason:        reason,
		SystemMessage: systemMessage,
	}
}

// HookSpecific renders a hook_specific_output payload.
type HookSpecific interface {
	Value() protocol.Value
}

// WithHookSpecific attaches event-specific output. A nil output starts from
// HookContinue.
func WithHookSpecific(output *protocol.HookOutput, specific HookSpecific) *protocol.HookOutput {
	if output == nil {
		output = HookContinue()
	}
	if specific != nil {
		output.HookSpecificOutput = specific.Value()
	}
	return output
}

// HookShouldContinue applies the agent's defaults: an omitted continue means
// true, and decision "block" stops even when continue is omitted.
func HookShouldContinue(output *protocol.HookOutput) bool {
	if output == nil {
		return true
	}
	if output.Decision == "block" {
		return false
	}
	if output.Continue == nil {
		return true
	}
	return *output.Continue
}

type PreToolUseSpecific struct {
	UpdatedInput             protocol.Value
	PermissionDecision       string
	PermissionDecisionReason string
}

func (s PreToolUseSpecific) Value() protocol.Value {
	out := map[string]protocol.Value{"hookEventName": protocol.StringValue("PreToolUse")}
	if s.PermissionDecision != "" {
		out["permissionDecision"] = protocol.StringValue(s.PermissionDecision)
	}
	if s.PermissionDecisionReason != "" {
		out["permissionDecisionReason"] = protocol.StringValue(s.PermissionDecisionReason)
	}
	if !s.UpdatedInput.IsNull() {
		out["updatedInput"] = s.UpdatedInput
	}
	return protocol.MapValue(out)
}

// AdditionalContextSpecific covers the hook events whose specific output is
// only additional context: PostToolUse, UserPromptSubmit and SessionStart.
type AdditionalContextSpecific struct {
	HookEventName     string
	AdditionalContext string
}

func (s AdditionalContextSpecific) Value() protocol.Value {
	out := map[string]protocol.Value{"hookEventName": protocol.StringValue(s.HookEventName)}
	if s.AdditionalContext != "" {
		out["additionalContext"] = protocol.StringValue(s.AdditionalContext)
	}
	return protocol.MapValue(out)
}

func PostToolUseContext(ctx string) AdditionalContextSpecific {
	return AdditionalContextSpecific{HookEventName: "PostToolUse", AdditionalContext: ctx}
}

func UserPromptSubmitContext(ctx string) AdditionalContextSpecific {
	return AdditionalContextSpecific{HookEventName: "UserPromptSubmit", AdditionalContext: ctx}
}

func SessionStartContext(ctx string) AdditionalContextSpecific {
	return AdditionalContextSpecific{HookEventName: "SessionStart", AdditionalContext: ctx}
}
