package sidecar

import (
	"github.com/bazelment/agent-sidecar/protocol"
)

// InputEvent is one event fed into an input stream.
type InputEvent interface {
	InputValue() protocol.Value
}

// RawInputEvent sends a prebuilt payload unchanged.
type RawInputEvent map[string]protocol.Value

func (e RawInputEvent) InputValue() protocol.Value {
	return protocol.MapValue(e)
}

// UserInputEvent is a user message event.
type UserInputEvent struct {
	Content          protocol.Value
	AdditionalFields map[string]protocol.Value
	Role             string
	ParentToolUseID  string
	SessionID        string
}

func UserTextEvent(text string) UserInputEvent {
	return UserInputEvent{Role: "user", Content: protocol.StringValue(text)}
}

func UserBlocksEvent(blocks []protocol.ContentBlock) UserInputEvent {
	items := make([]protocol.Value, len(blocks))
	for i, b := range blocks {
		items[i] = b.Value()
	}
	return UserInputEvent{Role: "user", Content: protocol.ListValue(items...)}
}

func (e UserInputEvent) InputValue() protocol.Value {
	role := e.Role
	if role == "" {
		role = "user"
	}
	out := map[string]protocol.Value{
		"type": protocol.StringValue("user"),
		"message": protocol.MapValue(map[string]protocol.Value{
			"role":    protocol.StringValue(role),
			"content": e.Content,
		}),
	}
	if e.ParentToolUseID != "" {
		out["parent_tool_use_id"] = protocol.StringValue(e.ParentToolUseID)
	}
	if e.SessionID != "" {
		out["session_id"] = protocol.StringValue(e.SessionID)
	}
	for k, v := range e.AdditionalFields {
		out[k] = v
	}
	return protocol.MapValue(out)
}

// ControlResponseEvent answers a control request the agent sent over the
// input stream.
type ControlResponseEvent struct {
	Response  protocol.Value
	Subtype   string
	RequestID string
	Error     string
}

func ControlResponseSuccess(requestID string, response protocol.Value) ControlResponseEvent {
	return ControlResponseEvent{Subtype: "success", RequestID: requestID, Response: response}
}

func ControlResponseError(requestID, err string) ControlResponseEvent {
	return ControlResponseEvent{Subtype: "error", RequestID: requestID, Error: err}
}

func (e ControlResponseEvent) InputValue() protocol.Value {
	subtype := e.Subtype
	if subtype == "" {
		subtype = "success"
	}
	resp := map[string]protocol.Value{
		"subtype":    protocol.StringValue(subtype),
		"request_id": protocol.StringValue(e.RequestID),
	}
	if subtype == "error" {
		resp["error"] = protocol.StringValue(e.Error)
	} else {
		resp["response"] = e.Response
	}
	return protocol.MapValue(map[string]protocol.Value{
		"type":     protocol.StringValue("control_response"),
		"response": protocol.MapValue(resp),
	})
}
