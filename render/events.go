package render

import (
	"github.com/bazelment/agent-sidecar/agentstream"
	"github.com/bazelment/agent-sidecar/protocol"
)

// Printer renders raw server events: session metadata, stderr and closure
// directly, everything else through an agentstream.Translator.
type Printer struct {
	r *Renderer
	t *agentstream.Translator
}

func NewPrinter(r *Renderer) *Printer {
	return &Printer{r: r, t: agentstream.NewTranslator()}
}

// Print renders one server event.
func (p *Printer) Print(ev *protocol.ServerEvent) {
	switch {
	case ev == nil:
		return
	case ev.SessionInit != nil:
		model := ""
		if m, ok := ev.SessionInit.RawInit.Field("model").AsString(); ok {
			model = m
		}
		p.r.SessionInfo(ev.SessionInit.ClaudeSessionID, model)
		return
	case ev.Stderr != nil:
		p.r.Stderr(ev.Stderr.Line)
		return
	case ev.SessionClosed != nil:
		reason := ev.SessionClosed.Reason
		if reason == "" {
			reason = "no reason given"
		}
		p.r.Status("session closed: " + reason)
		return
	}
	for _, sev := range p.t.Translate(ev) {
		p.r.Handle(sev)
	}
}
