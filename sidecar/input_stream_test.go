package sidecar

import (
	"context"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bazelment/agent-sidecar/protocol"
)

func TestUserInputEvent(t *testing.T) {
	v := UserTextEvent("hello").InputValue()
	assert.Equal(t, "user", v.Str("type"))
	assert.Equal(t, "user", v.Field("message").Str("role"))
	assert.Equal(t, "hello", v.Field("message").Str("content"))

	blocks := UserBlocksEvent([]protocol.ContentBlock{protocol.TextBlock("a"), protocol.TextBlock("b")})
	blocks.ParentToolUseID = "toolu_1"
	blocks.SessionID = "claude-1"
	blocks.AdditionalFields = map[string]protocol.Value{"uuid": protocol.StringValue("u-1")}
	bv := blocks.InputValue()

	content, ok := bv.Field("message").Field("content").AsList()
	require.True(t, ok)
	assert.Len(t, content, 2)
	assert.Equal(t, "toolu_1", bv.Str("parent_tool_use_id"))
	assert.Equal(t, "claude-1", bv.Str("session_id"))
	assert.Equal(t, "u-1", bv.Str("uuid"))

	noRole := UserInputEvent{Content: protocol.StringValue("x")}.InputValue()
	assert.Equal(t, "user", noRole.Field("message").Str("role"))
}

func TestControlResponseEvent(t *testing.T) {
	ok := ControlResponseSuccess("ctl-1", protocol.MustValueOf(map[string]any{"mode": "plan"})).InputValue()
	assert.Equal(t, "control_response", ok.Str("type"))
	resp := ok.Field("response")
	assert.Equal(t, "success", resp.Str("subtype"))
	assert.Equal(t, "ctl-1", resp.Str("request_id"))
	assert.Equal(t, "plan", resp.Field("response").Str("mode"))

	failed := ControlResponseError("ctl-2", "unsupported").InputValue().Field("response")
	assert.Equal(t, "error", failed.Str("subtype"))
	assert.Equal(t, "unsupported", failed.Str("error"))
	_, hasResponse := mustMap(t, failed)["response"]
	assert.False(t, hasResponse)

	defaulted := ControlResponseEvent{RequestID: "ctl-3"}.InputValue().Field("response")
	assert.Equal(t, "success", defaulted.Str("subtype"))
}

func TestRawInputEvent(t *testing.T) {
	raw := RawInputEvent{"type": protocol.StringValue("custom"), "n": protocol.NumberValue(1)}
	v := raw.InputValue()
	assert.Equal(t, "custom", v.Str("type"))
	assert.Equal(t, 2, v.Len())
}

func TestSessionInitInfo(t *testing.T) {
	assert.Nil(t, ParseSessionInit(nil))

	var nilInfo *SessionInitInfo
	assert.Empty(t, nilInfo.GetString("model"))
	assert.Nil(t, nilInfo.GetStringSlice("commands"))
	assert.Nil(t, nilInfo.GetMap("x"))
	assert.False(t, nilInfo.HasTool("Read"))

	info := ParseSessionInit(&protocol.SessionInit{
		RawInit: protocol.MustValueOf(map[string]any{
			"max_turns": 12,
			"ratio":     0.5,
			"flags":     map[string]any{"beta": true},
			"mixed":     []any{"a", 1, "b"},
		}),
	})
	assert.Equal(t, "12", info.GetString("max_turns"))
	assert.Equal(t, "0.5", info.GetString("ratio"))
	assert.Equal(t, `{"beta":true}`, info.GetString("flags"))
	assert.Equal(t, []string{"a", "b"}, info.GetStringSlice("mixed"))
	assert.Equal(t, map[string]any{"beta": true}, info.GetMap("flags"))
	assert.Empty(t, info.GetString("missing"))
}

func TestBearerToken(t *testing.T) {
	token, err := GenerateToken()
	require.NoError(t, err)
	assert.Len(t, token, 64)
	_, err = hex.DecodeString(token)
	assert.NoError(t, err)

	other, err := GenerateToken()
	require.NoError(t, err)
	assert.NotEqual(t, token, other)

	creds := NewBearerToken(token, true)
	md, err := creds.GetRequestMetadata(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer "+token, md["authorization"])
	assert.True(t, creds.RequireTransportSecurity())
	assert.False(t, NewBearerToken(token, false).RequireTransportSecurity())
}

func TestRunResult(t *testing.T) {
	var nilResult *RunResult
	assert.Nil(t, nilResult.Assistant())
	assert.Nil(t, nilResult.Result())
	assert.Empty(t, nilResult.Text())
	assert.False(t, nilResult.Failed())

	turn, _ := buildTurn(
		beginEvent("t1", "r1", 1),
		assistantEvent("t1", "r1", "answer", false),
		&protocol.ServerEvent{TurnID: "t1", Message: &protocol.MessageEvent{
			Result: &protocol.ResultMessage{Result: "failed", IsError: true},
		}},
	)
	res := &RunResult{Turn: turn}
	assert.Equal(t, "answer", res.Text())
	assert.True(t, res.Failed())
}
