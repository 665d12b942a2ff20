package sidecar

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/bazelment/agent-sidecar/protocol"
)

// ToolHandler executes a client-side tool and returns its result payload.
type ToolHandler func(ctx context.Context, req *protocol.ToolInvocationRequest) (protocol.Value, error)

// HookHandler runs a lifecycle hook.
type HookHandler func(ctx context.Context, req *protocol.HookInvocationRequest) (*protocol.HookOutput, error)

// PermissionHandler decides whether a tool may run.
type PermissionHandler func(ctx context.Context, req *protocol.PermissionDecisionRequest) (*protocol.PermissionDecision, error)

// ConfirmHandler asks a human to confirm a permission request. It returns
// whether the request was approved and a reason to report back.
type ConfirmHandler func(ctx context.Context, prompt string, req *protocol.PermissionDecisionRequest) (bool, string, error)

// Handlers bundles the callback handlers of a session. Any of them may be nil;
// a nil handler answers with the default negative response for its kind.
type Handlers struct {
	Tool       ToolHandler
	Hook       HookHandler
	Permission PermissionHandler
}

// Default responses sent when a handler is missing.
const (
	missingToolReason       = "missing tool handler"
	missingHookReason       = "no hook handler"
	missingPermissionReason = "no permission handler"
)

// BypassPermissions allows every tool.
func BypassPermissions() PermissionHandler {
	return func(_ context.Context, req *protocol.PermissionDecisionRequest) (*protocol.PermissionDecision, error) {
		return PermissionAllow("bypass permissions"), nil
	}
}

// readOnlyTools are the tools allowed by ReadOnlyPermissions.
var readOnlyTools = map[string]bool{
	"Read":      true,
	"Glob":      true,
	"Grep":      true,
	"LS":        true,
	"WebFetch":  true,
	"WebSearch": true,
	"TodoWrite": true,
	"Bash":      false, // Most bash commands can modify state
	"Edit":      false,
	"Write":     false,
}

// ReadOnlyPermissions allows read-only tools and denies everything else.
// This is suitable for planning sessions that should not modify anything.
func ReadOnlyPermissions() PermissionHandler {
	return func(_ context.Context, req *protocol.PermissionDecisionRequest) (*protocol.PermissionDecision, error) {
		if readOnlyTools[req.ToolName] {
			return PermissionAllow("read-only tool"), nil
		}
		return PermissionDeny(fmt.Sprintf("tool %s is not allowed in read-only mode", req.ToolName)), nil
	}
}

// DefaultPermissionPrompt renders the confirmation question for req.
func DefaultPermissionPrompt(req *protocol.PermissionDecisionRequest) string {
	if req == nil {
		return "Permission required to proceed."
	}
	if req.Prompt != "" {
		return req.Prompt
	}
	if req.ToolName != "" {
		return fmt.Sprintf("Allow tool %s to run? (y/n): ", req.ToolName)
	}
	return "Allow the requested tool to run? (y/n): "
}

// AskConfirmHandler combines an automatic decider with a human confirmation.
// The first attempt goes to decide; when decide answers "ask" the sidecar
// retries with a higher attempt, which goes to confirm.
func AskConfirmHandler(decide PermissionHandler, confirm ConfirmHandler) PermissionHandler {
	return AskConfirmHandlerWithPrompt(decide, confirm, DefaultPermissionPrompt)
}

// AskConfirmHandlerWithPrompt is AskConfirmHandler with a custom prompt.
func AskConfirmHandlerWithPrompt(
	decide PermissionHandler,
	confirm ConfirmHandler,
	prompt func(*protocol.PermissionDecisionRequest) string,
) PermissionHandler {
	return func(ctx context.Context, req *protocol.PermissionDecisionRequest) (*protocol.PermissionDecision, error) {
		if req.Attempt <= 1 {
			if decide != nil {
				return decide(ctx, req)
			}
			if confirm != nil {
				return PermissionAsk("confirmation required"), nil
			}
			return PermissionDeny(missingPermissionReason), nil
		}
		if confirm == nil {
			if decide != nil {
				return decide(ctx, req)
			}
			return PermissionDeny("no confirmation handler"), nil
		}
		text := DefaultPermissionPrompt(req)
		if prompt != nil {
			text = prompt(req)
		}
		ok, reason, err := confirm(ctx, text, req)
		if err != nil {
			return PermissionDeny(err.Error()), nil
		}
		if ok {
			return PermissionAllow(reason), nil
		}
		return PermissionDeny(reason), nil
	}
}

// ConsoleConfirm reads y/n answers from in, writing prompts to out.
func ConsoleConfirm(in io.Reader, out io.Writer) ConfirmHandler {
	reader := bufio.NewReader(in)
	return func(ctx context.Context, prompt string, _ *protocol.PermissionDecisionRequest) (bool, string, error) {
		for {
			_, _ = fmt.Fprint(out, prompt)
			line, err := reader.ReadString('\n')
			if err != nil && line == "" {
				return false, "confirmation read failed", err
			}
			switch strings.ToLower(strings.TrimSpace(line)) {
			case "y", "yes":
				return true, "confirmed", nil
			case "n", "no":
				return false, "denied", nil
			}
			if err != nil {
				return false, "confirmation read failed", err
			}
			if ctx.Err() != nil {
				return false, "confirmation canceled", ctx.Err()
			}
			prompt = "Please reply y/n: "
		}
	}
}
