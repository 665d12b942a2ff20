package sidecartest

import (
	"context"
	"errors"
	"fmt"

	"github.com/bazelment/agent-sidecar/protocol"
)

// TurnEvents builds the events of a complete turn: BEGIN, one assistant
// message, a success result and END.
func TurnEvents(requestID, turnID string, index uint32, text string) []*protocol.ServerEvent {
	return []*protocol.ServerEvent{
		{RequestID: requestID, TurnID: turnID, Turn: &protocol.TurnBoundary{Kind: protocol.BoundaryBegin, TurnIndex: index}},
		{RequestID: requestID, TurnID: turnID, Message: &protocol.MessageEvent{
			Assistant: &protocol.AssistantMessage{Content: []protocol.ContentBlock{protocol.TextBlock(text)}},
		}},
		{RequestID: requestID, TurnID: turnID, Message: &protocol.MessageEvent{
			Result: &protocol.ResultMessage{Subtype: "success", Result: text, NumTurns: index},
		}},
		{RequestID: requestID, TurnID: turnID, Turn: &protocol.TurnBoundary{Kind: protocol.BoundaryEnd, TurnIndex: index}},
	}
}

// EchoAgent answers every query with a turn whose assistant text is
// "echo: <prompt>". It stops when the client half-closes.
func EchoAgent(ctx context.Context, c *Conn) error {
	var index uint32
	for {
		ev, err := c.Next(ctx)
		if errors.Is(err, ErrConnClosed) {
			return nil
		}
		if err != nil {
			return err
		}
		if ev.Query == nil {
			continue
		}
		index++
		turnID := fmt.Sprintf("turn-%d", index)
		if err := c.Send(TurnEvents(ev.RequestID, turnID, index, "echo: "+ev.Query.Prompt)...); err != nil {
			return err
		}
	}
}
