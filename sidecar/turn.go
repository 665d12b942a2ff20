package sidecar

import (
	"context"
	"log/slog"

	"github.com/bazelment/agent-sidecar/protocol"
)

// Turn accumulates every event of one logical turn. A Turn is written only by
// the goroutine that builds it; readers should wait for the owning Stream to
// resolve before inspecting it.
type Turn struct {
	latest       map[protocol.MessageKind]*protocol.MessageEvent
	Result       *protocol.ResultMessage
	RequestID    string
	TurnID       string
	Events       []*protocol.ServerEvent
	Messages     []*protocol.MessageEvent
	Partials     []*protocol.MessageEvent
	StreamEvents []*protocol.StreamEventMessage
	Stderr       []string
	Errors       []*protocol.SidecarError

	// RequestIDConflicts counts events whose request id differed from the
	// one the turn was first tagged with.
	RequestIDConflicts int
	TurnIndex          uint32
	Started            bool
	Ended              bool
}

func newTurn(turnID string) *Turn {
	return &Turn{
		TurnID: turnID,
		latest: make(map[protocol.MessageKind]*protocol.MessageEvent),
	}
}

// LatestMessage returns the most recent message of kind, partial or complete.
func (t *Turn) LatestMessage(kind protocol.MessageKind) *protocol.MessageEvent {
	if t == nil {
		return nil
	}
	return t.latest[kind]
}

func (t *Turn) LatestUser() *protocol.UserMessage {
	return t.LatestMessage(protocol.MessageKindUser).GetUser()
}

func (t *Turn) LatestAssistant() *protocol.AssistantMessage {
	return t.LatestMessage(protocol.MessageKindAssistant).GetAssistant()
}

func (t *Turn) LatestSystem() *protocol.SystemMessage {
	return t.LatestMessage(protocol.MessageKindSystem).GetSystem()
}

func (t *Turn) LatestStreamEvent() *protocol.StreamEventMessage {
	return t.LatestMessage(protocol.MessageKindStreamEvent).GetStreamEvent()
}

// LatestResult returns the most recent result message, including one seen
// only through a partial update.
func (t *Turn) LatestResult() *protocol.ResultMessage {
	if t == nil {
		return nil
	}
	if t.Result != nil {
		return t.Result
	}
	return t.LatestMessage(protocol.MessageKindResult).GetResult()
}

// MergedAssistant prefers the last complete assistant message and falls back
// to the most recent partial one.
func (t *Turn) MergedAssistant() *protocol.AssistantMessage {
	if t == nil {
		return nil
	}
	for i := len(t.Messages) - 1; i >= 0; i-- {
		if a := t.Messages[i].GetAssistant(); a != nil {
			return a
		}
	}
	for i := len(t.Partials) - 1; i >= 0; i-- {
		if a := t.Partials[i].GetAssistant(); a != nil {
			return a
		}
	}
	return nil
}

// Text returns the text of the merged assistant message.
func (t *Turn) Text() string {
	a := t.MergedAssistant()
	if a == nil {
		return ""
	}
	return a.Text()
}

// HasErrors reports whether the sidecar reported any error during the turn.
func (t *Turn) HasErrors() bool {
	return t != nil && len(t.Errors) > 0
}

func (t *Turn) addMessage(m *protocol.MessageEvent) {
	if m == nil {
		return
	}
	if m.IsPartial {
		t.Partials = append(t.Partials, m)
	} else {
		t.Messages = append(t.Messages, m)
	}
	if kind := m.Kind(); kind != "" {
		t.latest[kind] = m
	}
	if m.StreamEvent != nil {
		t.StreamEvents = append(t.StreamEvents, m.StreamEvent)
	}
	if m.Result != nil {
		t.Result = m.Result
	}
}

// turnBuilder applies events to a single Turn. The turn is created from the
// first event that carries a turn id; earlier events are skipped.
type turnBuilder struct {
	logger *slog.Logger
	turn   *Turn
}

// apply records ev and reports whether it ended the turn.
func (b *turnBuilder) apply(ev *protocol.ServerEvent) bool {
	if ev == nil {
		return false
	}
	if b.turn == nil {
		if ev.TurnID == "" {
			return false
		}
		b.turn = newTurn(ev.TurnID)
	}
	applyEvent(b.turn, ev, b.logger)
	return b.turn.Ended
}

func applyEvent(t *Turn, ev *protocol.ServerEvent, logger *slog.Logger) {
	if ev.RequestID != "" {
		switch t.RequestID {
		case "":
			t.RequestID = ev.RequestID
		case ev.RequestID:
		default:
			t.RequestIDConflicts++
			if logger != nil {
				logger.Warn("event request id differs from turn request id",
					"turn_id", t.TurnID,
					"request_id", t.RequestID,
					"event_request_id", ev.RequestID)
			}
		}
	}
	t.Events = append(t.Events, ev)

	switch {
	case ev.Turn != nil:
		if t.TurnIndex == 0 {
			t.TurnIndex = ev.Turn.TurnIndex
		}
		switch ev.Turn.Kind {
		case protocol.BoundaryBegin:
			t.Started = true
		case protocol.BoundaryEnd:
			t.Ended = true
		}
	case ev.Message != nil:
		t.addMessage(ev.Message)
	case ev.Stderr != nil:
		t.Stderr = append(t.Stderr, ev.Stderr.Line)
	case ev.Error != nil:
		t.Errors = append(t.Errors, ev.Error)
	}
}

// CollectTurns groups a global event stream into turns by turn id. Each turn
// is emitted when its END boundary arrives. Turns still open when events
// closes are emitted unfinished, in first-seen order.
func CollectTurns(ctx context.Context, events <-chan *protocol.ServerEvent) <-chan *Turn {
	out := make(chan *Turn, 16)
	go func() {
		defer close(out)
		var order []string
		turns := make(map[string]*Turn)
		flush := func() {
			for _, id := range order {
				if t, ok := turns[id]; ok {
					select {
					case out <- t:
					case <-ctx.Done():
						return
					}
				}
			}
		}
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-events:
				if !ok {
					flush()
					return
				}
				if ev.GetTurnID() == "" {
					continue
				}
				t := turns[ev.TurnID]
				if t == nil {
					t = newTurn(ev.TurnID)
					turns[ev.TurnID] = t
					order = append(order, ev.TurnID)
				}
				applyEvent(t, ev, nil)
				if !t.Ended {
					continue
				}
				delete(turns, ev.TurnID)
				select {
				case out <- t:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}
