package sidecar

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bazelment/agent-sidecar/protocol"
)

func TestPermissionDecisionBuilders(t *testing.T) {
	assert.Equal(t, protocol.PermissionBehaviorAllow, PermissionAllow("ok").Behavior)
	assert.Equal(t, protocol.PermissionBehaviorDeny, PermissionDeny("no").Behavior)
	assert.Equal(t, protocol.PermissionBehaviorAsk, PermissionAsk("maybe").Behavior)

	d := WithInterrupt(WithUpdatedInput(PermissionAllow("edited"), protocol.StringValue("ls -la")), true)
	assert.True(t, d.Interrupt)
	cmd, _ := d.UpdatedInput.AsString()
	assert.Equal(t, "ls -la", cmd)

	// nil-safe
	assert.Nil(t, WithInterrupt(nil, true))
	assert.Nil(t, WithUpdatedInput(nil, protocol.NullValue()))
	assert.Nil(t, WithUpdatedPermissions(nil, PermissionUpdateSetMode("plan", "session")))

	unchanged := WithUpdatedPermissions(PermissionAllow(""))
	assert.True(t, unchanged.UpdatedPermissions.IsNull())
}

func TestPermissionUpdates(t *testing.T) {
	d := WithUpdatedPermissions(PermissionAllow("remember"),
		PermissionUpdateAddRules("allow", "localSettings",
			PermissionRule{ToolName: "Bash", RuleContent: "git status"},
			PermissionRule{ToolName: "Read"}),
		PermissionUpdateSetMode("acceptEdits", "session"),
		PermissionUpdateAddDirectories("session", "/tmp/work"),
	)

	updates, ok := d.UpdatedPermissions.AsList()
	require.True(t, ok)
	require.Len(t, updates, 3)

	rules := updates[0]
	assert.Equal(t, "addRules", rules.Str("type"))
	assert.Equal(t, "allow", rules.Str("behavior"))
	assert.Equal(t, "localSettings", rules.Str("destination"))
	list, _ := rules.Field("rules").AsList()
	require.Len(t, list, 2)
	assert.Equal(t, "Bash", list[0].Str("toolName"))
	assert.Equal(t, "git status", list[0].Str("ruleContent"))
	_, hasContent := mustMap(t, list[1])["ruleContent"]
	assert.False(t, hasContent)

	assert.Equal(t, "setMode", updates[1].Str("type"))
	assert.Equal(t, "acceptEdits", updates[1].Str("mode"))

	dirs, _ := updates[2].Field("directories").AsList()
	require.Len(t, dirs, 1)
	assert.Equal(t, "addDirectories", updates[2].Str("type"))

	for _, u := range []PermissionUpdate{
		PermissionUpdateReplaceRules("deny", "session"),
		PermissionUpdateRemoveRules("deny", "session"),
		PermissionUpdateRemoveDirectories("session", "/tmp"),
	} {
		assert.NotEmpty(t, u.Value().Str("type"))
	}
}

func TestPermissionSuggestions(t *testing.T) {
	assert.Nil(t, PermissionSuggestions(nil))

	req := &protocol.PermissionDecisionRequest{
		Suggestions: PermissionUpdatesValue(PermissionUpdateSetMode("plan", "session")),
	}
	got := PermissionSuggestions(req)
	require.Len(t, got, 1)
	assert.Equal(t, "plan", got[0].Str("mode"))
}

func TestHookOutputs(t *testing.T) {
	tests := []struct {
		name         string
		output       *protocol.HookOutput
		wantContinue bool
	}{
		{"nil", nil, true},
		{"default", HookDefault(), true},
		{"continue", HookContinue(), true},
		{"stop", HookStop("halt"), false},
		{"suppress", HookSuppressOutput("quiet"), true},
		{"async", HookAsync(5000), true},
		{"block", HookBlock("unsafe", "blocked"), false},
		{"block without continue", &protocol.HookOutput{Decision: "block"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantContinue, HookShouldContinue(tt.output))
		})
	}

	async := HookAsync(5000)
	assert.True(t, async.Async)
	assert.Equal(t, uint32(5000), async.AsyncTimeoutMs)
	assert.Equal(t, "halt", HookStop("halt").StopReason)
}

func TestHookSpecificOutput(t *testing.T) {
	out := WithHookSpecific(nil, PreToolUseSpecific{
		PermissionDecision:       "deny",
		PermissionDecisionReason: "rm is blocked",
	})
	require.NotNil(t, out.Continue)
	assert.True(t, *out.Continue)
	spec := out.HookSpecificOutput
	assert.Equal(t, "PreToolUse", spec.Str("hookEventName"))
	assert.Equal(t, "deny", spec.Str("permissionDecision"))
	assert.Equal(t, "rm is blocked", spec.Str("permissionDecisionReason"))
	_, hasInput := mustMap(t, spec)["updatedInput"]
	assert.False(t, hasInput)

	for _, s := range []AdditionalContextSpecific{
		PostToolUseContext("ctx"),
		UserPromptSubmitContext("ctx"),
		SessionStartContext("ctx"),
	} {
		v := WithHookSpecific(HookDefault(), s).HookSpecificOutput
		assert.Equal(t, s.HookEventName, v.Str("hookEventName"))
		assert.Equal(t, "ctx", v.Str("additionalContext"))
	}

	stop := WithHookSpecific(HookStop("x"), nil)
	assert.True(t, stop.HookSpecificOutput.IsNull())
}

func mustMap(t *testing.T, v protocol.Value) map[string]protocol.Value {
	t.Helper()
	m, ok := v.AsMap()
	require.True(t, ok, "expected map, got %s", v.Kind())
	return m
}
