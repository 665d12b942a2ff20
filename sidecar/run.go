package sidecar

import (
	"github.com/bazelment/agent-sidecar/protocol"
)

// RunResult is the outcome of one query.
type RunResult struct {
	Turn *Turn
}

// Assistant returns the merged assistant message of the turn.
func (r *RunResult) Assistant() *protocol.AssistantMessage {
	if r == nil {
		return nil
	}
	return r.Turn.MergedAssistant()
}

// Result returns the latest result message of the turn.
func (r *RunResult) Result() *protocol.ResultMessage {
	if r == nil {
		return nil
	}
	return r.Turn.LatestResult()
}

func (r *RunResult) Text() string {
	if r == nil {
		return ""
	}
	return r.Turn.Text()
}

// Failed reports whether the turn ended with an error result or a sidecar
// error.
func (r *RunResult) Failed() bool {
	if r == nil {
		return false
	}
	if res := r.Result(); res != nil && res.IsError {
		return true
	}
	return r.Turn.HasErrors()
}
