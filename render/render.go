// Package render provides colored terminal rendering for sidecar sessions.
package render

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/fatih/color"
	"golang.org/x/term"

	"github.com/bazelment/agent-sidecar/agentstream"
)

// Renderer handles terminal output.
type Renderer struct {
	out io.Writer

	dim     *color.Color
	italic  *color.Color
	red     *color.Color
	green   *color.Color
	yellow  *color.Color
	cyan    *color.Color
	gray    *color.Color
	tools   map[string]string // tool call id → name
	mu      sync.Mutex
	verbose bool
	noColor bool

	inThinking bool
	midLine    bool
}

// NewRenderer creates a new renderer writing to the given output.
// If verbose is true, tool calls are shown as they execute.
// If noColor is true, or out is not a terminal, colors are suppressed.
func NewRenderer(out io.Writer, verbose, noColor bool) *Renderer {
	if !noColor {
		noColor = !isTerminal(out)
	}
	r := &Renderer{
		out:     out,
		verbose: verbose,
		noColor: noColor,
		dim:     color.New(color.Faint),
		italic:  color.New(color.Faint, color.Italic),
		red:     color.New(color.FgRed),
		green:   color.New(color.FgGreen),
		yellow:  color.New(color.FgYellow),
		cyan:    color.New(color.FgCyan),
		gray:    color.New(color.FgHiBlack),
		tools:   make(map[string]string),
	}
	for _, c := range []*color.Color{r.dim, r.italic, r.red, r.green, r.yellow, r.cyan, r.gray} {
		if noColor {
			c.DisableColor()
		} else {
			c.EnableColor()
		}
	}
	return r
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// SessionInfo prints session metadata (e.g. session ID, model).
func (r *Renderer) SessionInfo(sessionID, model string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var parts []string
	if sessionID != "" {
		parts = append(parts, "session="+sessionID)
	}
	if model != "" {
		parts = append(parts, "model="+model)
	}
	if len(parts) > 0 {
		r.line(r.gray.Sprintf("[%s]", strings.Join(parts, " ")))
	}
}

// Status prints a status message.
func (r *Renderer) Status(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.line(r.gray.Sprint("[Status]") + " " + msg)
}

// Stderr prints one relayed agent stderr line.
func (r *Renderer) Stderr(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.line(r.yellow.Sprint("[stderr]") + " " + line)
}

// Text prints streaming text output.
func (r *Renderer) Text(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.inThinking {
		fmt.Fprintln(r.out)
		r.inThinking = false
	}
	fmt.Fprint(r.out, text)
	r.midLine = !strings.HasSuffix(text, "\n")
}

// Thinking prints reasoning output dimmed and italic.
func (r *Renderer) Thinking(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	fmt.Fprint(r.out, r.italic.Sprint(text))
	r.inThinking = true
	r.midLine = !strings.HasSuffix(text, "\n")
}

// ToolStart records a tool call. In verbose mode it prints the call.
func (r *Renderer) ToolStart(name, id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.tools[id] = name
	if r.verbose {
		r.line(r.cyan.Sprintf("[%s]", truncate(name, 60)) + r.dim.Sprint(" …"))
	}
}

// ToolEnd prints the outcome of a tool call in verbose mode. Calls that were
// never started are ignored.
func (r *Renderer) ToolEnd(id string, isError bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name, ok := r.tools[id]
	if !ok {
		return
	}
	delete(r.tools, id)
	if !r.verbose {
		return
	}
	if isError {
		r.line(r.cyan.Sprintf("[%s]", truncate(name, 60)) + " " + r.red.Sprint("✗"))
		return
	}
	r.line(r.cyan.Sprintf("[%s]", truncate(name, 60)) + " " + r.green.Sprint("✓"))
}

// TurnComplete prints a summary of the completed turn.
func (r *Renderer) TurnComplete(turn int, success bool, durationMs int64, costUSD float64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.line("")
	r.line(r.dim.Sprint("───────────────────────────────────────────────────────"))
	c, mark := r.green, "✓"
	if !success {
		c, mark = r.red, "✗"
	}
	r.line(c.Sprintf("%s Turn %d complete (%.1fs, $%.4f)", mark, turn, float64(durationMs)/1000, costUSD))
}

// Error prints an error message.
func (r *Renderer) Error(err error, context string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.line("")
	r.line(r.red.Sprintf("[Error: %s]", context) + fmt.Sprintf(" %v", err))
}

// Handle renders one translated event.
func (r *Renderer) Handle(ev agentstream.Event) {
	switch ev.StreamEventKind() {
	case agentstream.KindText:
		r.Text(ev.(agentstream.Text).StreamDelta())
	case agentstream.KindThinking:
		r.Thinking(ev.(agentstream.Text).StreamDelta())
	case agentstream.KindToolStart:
		ts := ev.(agentstream.ToolStart)
		r.ToolStart(ts.StreamToolName(), ts.StreamToolCallID())
	case agentstream.KindToolEnd:
		te := ev.(agentstream.ToolEnd)
		r.ToolEnd(te.StreamToolCallID(), te.StreamToolIsError())
	case agentstream.KindTurnComplete:
		tc := ev.(agentstream.TurnComplete)
		r.TurnComplete(tc.StreamTurnNum(), tc.StreamIsSuccess(), tc.StreamDuration(), tc.StreamCost())
	case agentstream.KindError:
		e := ev.(agentstream.Error)
		r.Error(e.StreamErr(), e.StreamErrorContext())
	}
}

// line writes s on its own line, ending any partial text line first.
func (r *Renderer) line(s string) {
	if r.midLine {
		fmt.Fprintln(r.out)
		r.midLine = false
	}
	r.inThinking = false
	fmt.Fprintln(r.out, s)
}

// truncate truncates a string to the given max length.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
