package render

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/bazelment/agent-sidecar/protocol"
)

func TestNewRenderer(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(&buf, true, false)
	if r == nil {
		t.Fatal("NewRenderer returned nil")
	}
	if !r.verbose {
		t.Error("Renderer verbose not set correctly")
	}
	// A bytes.Buffer is not a terminal.
	if !r.noColor {
		t.Error("expected colors to be disabled for non-terminal output")
	}
}

func TestStatus(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(&buf, true, true)
	r.Status("test message")

	output := buf.String()
	if !strings.Contains(output, "[Status]") {
		t.Errorf("Status output missing [Status] prefix: %q", output)
	}
	if !strings.Contains(output, "test message") {
		t.Errorf("Status output missing message: %q", output)
	}
	if strings.Contains(output, "\x1b[") {
		t.Errorf("noColor output contains escape codes: %q", output)
	}
}

func TestSessionInfo(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(&buf, false, true)
	r.SessionInfo("abc-123", "opus")

	output := buf.String()
	if !strings.Contains(output, "session=abc-123") {
		t.Errorf("SessionInfo missing session ID: %q", output)
	}
	if !strings.Contains(output, "model=opus") {
		t.Errorf("SessionInfo missing model: %q", output)
	}

	buf.Reset()
	r.SessionInfo("", "")
	if buf.Len() != 0 {
		t.Errorf("empty SessionInfo should print nothing: %q", buf.String())
	}
}

func TestText(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(&buf, true, true)
	r.Text("hello ")
	r.Text("world")

	if buf.String() != "hello world" {
		t.Errorf("Text output: got %q, want %q", buf.String(), "hello world")
	}
}

func TestTextAfterThinking(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(&buf, true, true)
	r.Thinking("hmm")
	r.Text("answer")

	if buf.String() != "hmm\nanswer" {
		t.Errorf("got %q", buf.String())
	}
}

func TestStatusEndsPartialLine(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(&buf, true, true)
	r.Text("partial")
	r.Status("next")

	if !strings.HasPrefix(buf.String(), "partial\n[Status] next") {
		t.Errorf("got %q", buf.String())
	}
}

func TestToolLifecycle_Verbose(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(&buf, true, true)

	r.ToolStart("Bash", "call1")
	r.ToolEnd("call1", false)
	r.ToolStart("Write", "call2")
	r.ToolEnd("call2", true)

	output := buf.String()
	if !strings.Contains(output, "[Bash] ✓") {
		t.Errorf("Missing success line: %q", output)
	}
	if !strings.Contains(output, "[Write] ✗") {
		t.Errorf("Missing failure line: %q", output)
	}
}

func TestToolLifecycle_NonVerbose(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(&buf, false, true)

	r.ToolStart("Bash", "call1")
	r.ToolEnd("call1", false)

	if strings.Contains(buf.String(), "Bash") {
		t.Errorf("Non-verbose should hide tool calls: %q", buf.String())
	}
}

func TestToolEnd_Unknown(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(&buf, true, true)
	r.ToolEnd("nope", false)
	if buf.Len() != 0 {
		t.Errorf("unknown tool call should print nothing: %q", buf.String())
	}
}

func TestTurnComplete(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(&buf, false, true)
	r.TurnComplete(2, true, 1500, 0.0125)

	output := buf.String()
	if !strings.Contains(output, "✓ Turn 2 complete (1.5s, $0.0125)") {
		t.Errorf("unexpected summary: %q", output)
	}

	buf.Reset()
	r.TurnComplete(3, false, 0, 0)
	if !strings.Contains(buf.String(), "✗ Turn 3") {
		t.Errorf("missing failure mark: %q", buf.String())
	}
}

func TestError(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(&buf, false, true)
	r.Error(errors.New("boom"), "sidecar")

	if !strings.Contains(buf.String(), "[Error: sidecar] boom") {
		t.Errorf("got %q", buf.String())
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"short", 10, "short"},
		{"exactly10!", 10, "exactly10!"},
		{"this is too long", 10, "this is..."},
	}
	for _, tt := range tests {
		if got := truncate(tt.in, tt.max); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
	}
}

func TestPrinter(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(NewRenderer(&buf, true, true))

	events := []*protocol.ServerEvent{
		{SessionInit: &protocol.SessionInit{
			ClaudeSessionID: "cs-1",
			RawInit:         protocol.MustValueOf(map[string]any{"model": "opus"}),
		}},
		{Stderr: &protocol.StderrLine{Line: "warming up"}},
		{RequestID: "r1", Message: &protocol.MessageEvent{Assistant: &protocol.AssistantMessage{
			Content: []protocol.ContentBlock{
				protocol.TextBlock("Let me look."),
				protocol.ToolUseBlock("tu-1", "Read", protocol.NullValue()),
			},
		}}},
		{RequestID: "r1", Message: &protocol.MessageEvent{User: &protocol.UserMessage{
			Content: []protocol.ContentBlock{protocol.ToolResultBlock("tu-1", protocol.StringValue("ok"), false)},
		}}},
		{RequestID: "r1", Message: &protocol.MessageEvent{Result: &protocol.ResultMessage{NumTurns: 1, DurationMs: 100}}},
		{SessionClosed: &protocol.SessionClosed{}},
	}
	for _, ev := range events {
		p.Print(ev)
	}

	output := buf.String()
	for _, want := range []string{
		"[session=cs-1 model=opus]",
		"[stderr] warming up",
		"Let me look.\n",
		"[Read] ✓",
		"Turn 1 complete",
		"session closed: no reason given",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("output missing %q:\n%s", want, output)
		}
	}
}
