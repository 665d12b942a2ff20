package sidecar

import (
	"context"
	"time"

	"github.com/bazelment/agent-sidecar/protocol"
)

// dispatchCallback starts the handler for a callback request on its own
// goroutine. It reports whether ev was a callback request.
func (s *Session) dispatchCallback(ev *protocol.ServerEvent) bool {
	switch {
	case ev.ToolRequest != nil:
		go s.handleTool(ev.RequestID, ev.ToolRequest)
	case ev.HookRequest != nil:
		go s.handleHook(ev.RequestID, ev.HookRequest)
	case ev.PermissionRequest != nil:
		go s.handlePermission(ev.RequestID, ev.PermissionRequest)
	default:
		return false
	}
	return true
}

// invoke calls fn, turning a panic into a PanicError.
func invoke[Req, Resp any](ctx context.Context, fn func(context.Context, Req) (Resp, error), req Req) (resp Resp, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r}
		}
	}()
	return fn(ctx, req)
}

func (s *Session) callbackContext() (context.Context, context.CancelFunc) {
	if s.cfg.CallbackTimeout > 0 {
		return context.WithTimeout(s.ctx, s.cfg.CallbackTimeout)
	}
	return context.WithCancel(s.ctx)
}

func (s *Session) handleTool(requestID string, req *protocol.ToolInvocationRequest) {
	ctx, cancel := s.callbackContext()
	defer cancel()
	ctx, span := s.telemetry.startCallback(ctx, CallbackTool, req.InvocationID, req.ToolName)
	started := time.Now()

	var (
		result  protocol.Value
		failure error
		outcome = outcomeHandled
	)
	if s.handlers.Tool == nil {
		result = ToolResultError(missingToolReason)
		outcome = outcomeMissing
	} else if r, err := invoke(ctx, s.handlers.Tool, req); err != nil {
		failure = &HandlerError{Cause: err, Kind: CallbackTool, InvocationID: req.InvocationID}
		result = ToolResultError(err.Error())
		outcome = outcomeFailed
	} else {
		result = r
	}
	s.telemetry.endCallback(span, CallbackTool, outcome, failure, started)
	s.logCallback(CallbackTool, req.InvocationID, req.ToolName, outcome, failure)

	s.respond(&protocol.ClientEvent{
		RequestID: requestID,
		ToolResponse: &protocol.ToolInvocationResponse{
			InvocationID: req.InvocationID,
			Result:       result,
		},
	})
}

func (s *Session) handleHook(requestID string, req *protocol.HookInvocationRequest) {
	ctx, cancel := s.callbackContext()
	defer cancel()
	ctx, span := s.telemetry.startCallback(ctx, CallbackHook, req.InvocationID, req.HookEvent)
	started := time.Now()

	var (
		output  *protocol.HookOutput
		failure error
		outcome = outcomeHandled
	)
	if s.handlers.Hook == nil {
		output = HookStop(missingHookReason)
		outcome = outcomeMissing
	} else if o, err := invoke(ctx, s.handlers.Hook, req); err != nil {
		failure = &HandlerError{Cause: err, Kind: CallbackHook, InvocationID: req.InvocationID}
		output = HookStop(err.Error())
		outcome = outcomeFailed
	} else if o == nil {
		output = HookDefault()
	} else {
		output = o
	}
	s.telemetry.endCallback(span, CallbackHook, outcome, failure, started)
	s.logCallback(CallbackHook, req.InvocationID, req.HookEvent, outcome, failure)

	s.respond(&protocol.ClientEvent{
		RequestID: requestID,
		HookResponse: &protocol.HookInvocationResponse{
			InvocationID: req.InvocationID,
			Output:       output,
		},
	})
}

func (s *Session) handlePermission(requestID string, req *protocol.PermissionDecisionRequest) {
	ctx, cancel := s.callbackContext()
	defer cancel()
	ctx, span := s.telemetry.startCallback(ctx, CallbackPermission, req.InvocationID, req.ToolName)
	started := time.Now()

	var (
		decision *protocol.PermissionDecision
		failure  error
		outcome  = outcomeHandled
	)
	if s.handlers.Permission == nil {
		decision = PermissionDeny(missingPermissionReason)
		outcome = outcomeMissing
	} else if d, err := invoke(ctx, s.handlers.Permission, req); err != nil {
		failure = &HandlerError{Cause: err, Kind: CallbackPermission, InvocationID: req.InvocationID}
		decision = PermissionDeny(err.Error())
		outcome = outcomeFailed
	} else if d == nil {
		decision = PermissionDeny("permission handler returned no decision")
	} else {
		decision = d
	}
	s.telemetry.endCallback(span, CallbackPermission, outcome, failure, started)
	s.logCallback(CallbackPermission, req.InvocationID, req.ToolName, outcome, failure)

	s.respond(&protocol.ClientEvent{
		RequestID: requestID,
		PermissionResponse: &protocol.PermissionDecisionResponse{
			InvocationID: req.InvocationID,
			Decision:     decision,
		},
	})
}

func (s *Session) logCallback(kind CallbackKind, invocationID, name, outcome string, failure error) {
	if failure != nil {
		s.logger.Warn("callback handler failed",
			"kind", kind, "invocation_id", invocationID, "name", name, "error", failure)
		return
	}
	s.logger.Debug("callback answered",
		"kind", kind, "invocation_id", invocationID, "name", name, "outcome", outcome)
}

// respond sends a callback response. Failures are logged only; the receive
// loop reports a broken transport on its own.
func (s *Session) respond(ev *protocol.ClientEvent) {
	if err := s.send(context.Background(), ev); err != nil {
		s.logger.Warn("failed to send callback response",
			"payload", ev.Payload(), "error", err)
	}
}
