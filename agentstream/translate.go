package agentstream

import (
	"errors"
	"sync"

	"github.com/bazelment/agent-sidecar/protocol"
)

type toolCall struct {
	input map[string]any
	name  string
}

// Translator turns server events into common events. It is safe for use by
// multiple goroutines, though events of one request should be fed in order.
type Translator struct {
	tools map[string]toolCall
	// streamed holds request ids whose text arrived as partial deltas, so
	// the complete assistant message does not repeat it.
	streamed map[string]bool
	mu       sync.Mutex
}

func NewTranslator() *Translator {
	return &Translator{
		tools:    make(map[string]toolCall),
		streamed: make(map[string]bool),
	}
}

// Translate returns the common events carried by ev, in order. Events with
// no common counterpart (turn boundaries, callbacks, stderr) translate to
// nothing.
func (t *Translator) Translate(ev *protocol.ServerEvent) []Event {
	if ev == nil {
		return nil
	}
	sc := scope{RequestID: ev.RequestID}

	switch {
	case ev.Error != nil:
		return []Event{ErrorEvent{scope: sc, Err: ev.Error, Context: "sidecar"}}
	case ev.IsTurnEnd():
		t.mu.Lock()
		delete(t.streamed, ev.RequestID)
		t.mu.Unlock()
		return nil
	case ev.Message != nil:
		return t.message(sc, ev.Message)
	}
	return nil
}

func (t *Translator) message(sc scope, m *protocol.MessageEvent) []Event {
	switch m.Kind() {
	case protocol.MessageKindStreamEvent:
		if text, ok := m.StreamEvent.TextDelta(); ok {
			t.markStreamed(sc.RequestID)
			return []Event{TextEvent{scope: sc, Text: text}}
		}
		if thinking, ok := m.StreamEvent.ThinkingDelta(); ok {
			t.markStreamed(sc.RequestID)
			return []Event{ThinkingEvent{scope: sc, Thinking: thinking}}
		}
	case protocol.MessageKindAssistant:
		if m.IsPartial {
			return nil
		}
		return t.assistant(sc, m.Assistant)
	case protocol.MessageKindUser:
		if m.IsPartial {
			return nil
		}
		return t.toolResults(sc, m.User)
	case protocol.MessageKindResult:
		if m.IsPartial {
			return nil
		}
		r := m.Result
		return []Event{TurnCompleteEvent{
			scope:      sc,
			TurnNumber: int(r.NumTurns),
			Success:    !r.IsError,
			DurationMs: int64(r.DurationMs),
			CostUSD:    r.TotalCostUSD,
		}}
	}
	return nil
}

func (t *Translator) assistant(sc scope, m *protocol.AssistantMessage) []Event {
	t.mu.Lock()
	defer t.mu.Unlock()

	skipText := t.streamed[sc.RequestID]
	var out []Event
	for _, b := range m.Content {
		switch b.Type {
		case protocol.BlockText:
			if !skipText && b.Text != "" {
				out = append(out, TextEvent{scope: sc, Text: b.Text})
			}
		case protocol.BlockThinking:
			if !skipText && b.Thinking != "" {
				out = append(out, ThinkingEvent{scope: sc, Thinking: b.Thinking})
			}
		case protocol.BlockToolUse:
			input := b.Input.Map()
			t.tools[b.ID] = toolCall{name: b.Name, input: input}
			out = append(out, ToolStartEvent{scope: sc, Name: b.Name, ID: b.ID, Input: input})
		}
	}
	// Text after the next tool call streams again.
	delete(t.streamed, sc.RequestID)
	if m.Error != "" {
		out = append(out, ErrorEvent{scope: sc, Err: errors.New(m.Error), Context: "assistant"})
	}
	return out
}

func (t *Translator) toolResults(sc scope, m *protocol.UserMessage) []Event {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []Event
	for _, b := range m.Content {
		if b.Type != protocol.BlockToolResult {
			continue
		}
		call := t.tools[b.ToolUseID]
		delete(t.tools, b.ToolUseID)
		out = append(out, ToolEndEvent{
			scope:   sc,
			Name:    call.name,
			ID:      b.ToolUseID,
			Input:   call.input,
			Result:  b.Content.Interface(),
			IsError: b.IsError,
		})
	}
	return out
}

func (t *Translator) markStreamed(requestID string) {
	t.mu.Lock()
	t.streamed[requestID] = true
	t.mu.Unlock()
}
