package sidecar

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bazelment/agent-sidecar/protocol"
)

func newTestSession(t *testing.T, handlers Handlers, opts ...Option) (*Session, *fakeTransport) {
	t.Helper()
	ft := newFakeTransport()
	opts = append([]Option{WithIdleCheckInterval(10 * time.Millisecond)}, opts...)
	s, err := NewSession(context.Background(), ft, "sess-1", handlers, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, ft
}

func testCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	t.Cleanup(cancel)
	return ctx
}

func toolRequest(requestID, invocationID, tool string) *protocol.ServerEvent {
	return &protocol.ServerEvent{
		RequestID: requestID,
		ToolRequest: &protocol.ToolInvocationRequest{
			InvocationID: invocationID,
			ToolName:     tool,
			Input:        protocol.MapValue(map[string]protocol.Value{"q": protocol.StringValue("x")}),
		},
	}
}

func hookRequest(requestID, invocationID string) *protocol.ServerEvent {
	return &protocol.ServerEvent{
		RequestID:   requestID,
		HookRequest: &protocol.HookInvocationRequest{InvocationID: invocationID, HookEvent: "PreToolUse"},
	}
}

func permissionRequest(requestID, invocationID, tool string) *protocol.ServerEvent {
	return &protocol.ServerEvent{
		RequestID: requestID,
		PermissionRequest: &protocol.PermissionDecisionRequest{
			InvocationID: invocationID,
			ToolName:     tool,
			Attempt:      1,
		},
	}
}

func toolResponseFor(ft *fakeTransport, t *testing.T, invocationID string) *protocol.ClientEvent {
	t.Helper()
	return ft.waitSent(t, func(ev *protocol.ClientEvent) bool {
		return ev.ToolResponse != nil && ev.ToolResponse.InvocationID == invocationID
	})
}

// ============================================================================
// Attach and outbound events
// ============================================================================

func TestSession_SendsHello(t *testing.T) {
	t.Parallel()
	_, ft := newTestSession(t, Handlers{}, WithClientInfo(ClientInfo{Name: "tester", Version: "1.2.3"}))

	sent := ft.sentEvents()
	require.NotEmpty(t, sent)
	hello := sent[0].Hello
	require.NotNil(t, hello)
	assert.Equal(t, protocol.ProtocolVersion, hello.ProtocolVersion)
	assert.Equal(t, "tester", hello.ClientName)
	assert.Equal(t, "1.2.3", hello.ClientVersion)
	assert.Equal(t, "sess-1", sent[0].SessionID)
}

func TestSession_WithoutHello(t *testing.T) {
	t.Parallel()
	_, ft := newTestSession(t, Handlers{}, WithoutHello())
	assert.Empty(t, ft.sentEvents())
}

func TestSession_HelloFailure(t *testing.T) {
	t.Parallel()
	ft := newFakeTransport()
	ft.setSendErr(errors.New("broken pipe"))

	s, err := NewSession(context.Background(), ft, "sess-1", Handlers{})
	require.Error(t, err)
	assert.Nil(t, s)
	assert.Contains(t, err.Error(), "send hello")

	var tErr *TransportError
	assert.ErrorAs(t, err, &tErr)
}

func TestSession_ControlEvents(t *testing.T) {
	t.Parallel()
	s, ft := newTestSession(t, Handlers{})
	ctx := testCtx(t)

	require.NoError(t, s.Interrupt(ctx))
	require.NoError(t, s.Cancel(ctx, "user abort"))
	require.NoError(t, s.SetPermissionMode(ctx, "plan"))
	require.NoError(t, s.SetModel(ctx, "sonnet"))

	assert.NotNil(t, ft.waitPayload(t, protocol.ClientInterrupt).Interrupt)
	assert.Equal(t, "user abort", ft.waitPayload(t, protocol.ClientCancel).Cancel.Reason)
	assert.Equal(t, "plan", ft.waitPayload(t, protocol.ClientSetPermissionMode).SetPermissionMode.Mode)
	assert.Equal(t, "sonnet", ft.waitPayload(t, protocol.ClientSetModel).SetModel.Model)

	for _, ev := range ft.sentEvents() {
		assert.Equal(t, "sess-1", ev.SessionID)
		if ev.Hello == nil {
			assert.True(t, strings.HasPrefix(ev.RequestID, "req_"), "request id %q", ev.RequestID)
		}
	}
}

func TestSession_QueryReturnsRequestID(t *testing.T) {
	t.Parallel()
	s, ft := newTestSession(t, Handlers{})

	id, err := s.Query(testCtx(t), "hello")
	require.NoError(t, err)
	q := ft.lastQuery(t)
	assert.Equal(t, id, q.RequestID)
	assert.Equal(t, "hello", q.Query.Prompt)
}

func TestSession_SendHonorsContext(t *testing.T) {
	t.Parallel()
	s, _ := newTestSession(t, Handlers{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Query(ctx, "late")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSession_SendFailure(t *testing.T) {
	t.Parallel()
	s, ft := newTestSession(t, Handlers{})
	ft.setSendErr(errors.New("write failed"))

	_, err := s.Stream(testCtx(t), "hi")
	var tErr *TransportError
	require.ErrorAs(t, err, &tErr)
	assert.Equal(t, "send", tErr.Op)
	assert.False(t, IsRecoverable(err))
	assert.Zero(t, s.Stats().Requests, "failed send releases the request subscription")
}

// ============================================================================
// Runs and streams
// ============================================================================

func TestSession_Run(t *testing.T) {
	t.Parallel()
	s, ft := newTestSession(t, Handlers{})
	ctx := testCtx(t)

	type outcome struct {
		res *RunResult
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := s.Run(ctx, "hi")
		done <- outcome{res, err}
	}()

	q := ft.waitPayload(t, protocol.ClientQuery)
	ft.push(
		beginEvent("t1", q.RequestID, 1),
		assistantEvent("t1", q.RequestID, "hello back", false),
		resultEvent("t1", q.RequestID, "ok", false),
		endEvent("t1", q.RequestID, 1),
	)

	select {
	case got := <-done:
		require.NoError(t, got.err)
		assert.Equal(t, "hello back", got.res.Text())
		assert.Equal(t, "ok", got.res.Result().Result)
		assert.False(t, got.res.Failed())
	case <-time.After(waitTimeout):
		t.Fatal("run did not finish")
	}
}

func TestSession_QueryTurn(t *testing.T) {
	t.Parallel()
	s, ft := newTestSession(t, Handlers{})
	ctx := testCtx(t)

	turns := make(chan *Turn, 1)
	go func() {
		turn, err := s.QueryTurn(ctx, "hi")
		assert.NoError(t, err)
		turns <- turn
	}()
	q := ft.waitPayload(t, protocol.ClientQuery)
	ft.push(beginEvent("t9", q.RequestID, 4), endEvent("t9", q.RequestID, 4))

	select {
	case turn := <-turns:
		require.NotNil(t, turn)
		assert.Equal(t, "t9", turn.TurnID)
		assert.Equal(t, uint32(4), turn.TurnIndex)
	case <-time.After(waitTimeout):
		t.Fatal("query turn did not finish")
	}
}

// Scenario B: concurrent requests stay separated end to end.
func TestSession_ConcurrentStreams(t *testing.T) {
	t.Parallel()
	s, ft := newTestSession(t, Handlers{})
	ctx := testCtx(t)

	st1, err := s.Stream(ctx, "one")
	require.NoError(t, err)
	defer st1.Close()
	st2, err := s.Stream(ctx, "two")
	require.NoError(t, err)
	defer st2.Close()
	r1, r2 := st1.RequestID(), st2.RequestID()
	require.NotEqual(t, r1, r2)

	ft.push(
		beginEvent("t1", r1, 1),
		beginEvent("t2", r2, 2),
		assistantEvent("t1", r1, "first", false),
		assistantEvent("t2", r2, "second", false),
		endEvent("t2", r2, 2),
		endEvent("t1", r1, 1),
	)

	res1, err := st1.Result(ctx)
	require.NoError(t, err)
	res2, err := st2.Result(ctx)
	require.NoError(t, err)

	assert.Equal(t, "first", res1.Text())
	assert.Equal(t, "second", res2.Text())
	for _, ev := range res1.Turn.Events {
		assert.Equal(t, r1, ev.RequestID)
	}
	for _, ev := range res2.Turn.Events {
		assert.Equal(t, r2, ev.RequestID)
	}
}

// Scenario D end to end: the transport ends with an open turn.
func TestSession_StreamEndsWithPartialTurn(t *testing.T) {
	t.Parallel()
	s, ft := newTestSession(t, Handlers{})
	ctx := testCtx(t)

	st, err := s.Stream(ctx, "hi")
	require.NoError(t, err)
	defer st.Close()

	ft.push(beginEvent("t1", st.RequestID(), 1), assistantEvent("t1", st.RequestID(), "cut", true))
	ft.end()

	res, err := st.Result(ctx)
	require.NoError(t, err)
	assert.False(t, res.Turn.Ended)
	assert.Equal(t, "cut", res.Text())

	requireClosed(t, s.Done())
	assert.NoError(t, s.Err(), "io.EOF is an orderly end")
}

// ============================================================================
// Callbacks
// ============================================================================

// Scenario C: a tool request without a handler gets an error result and does
// not hold up later events.
func TestSession_MissingToolHandler(t *testing.T) {
	t.Parallel()
	s, ft := newTestSession(t, Handlers{})
	ctx := testCtx(t)

	st, err := s.Stream(ctx, "use a tool")
	require.NoError(t, err)
	defer st.Close()
	req := st.RequestID()

	ft.push(
		beginEvent("t1", req, 1),
		toolRequest(req, "inv-1", "lookup"),
		assistantEvent("t1", req, "after tool", false),
		endEvent("t1", req, 1),
	)

	resp := toolResponseFor(ft, t, "inv-1")
	assert.Equal(t, req, resp.RequestID)
	assert.True(t, IsToolResultError(resp.ToolResponse.Result))
	assert.Equal(t, "missing tool handler", ToolResultTextOf(resp.ToolResponse.Result))

	res, err := st.Result(ctx)
	require.NoError(t, err)
	assert.Equal(t, "after tool", res.Text())
}

func TestSession_ToolHandler(t *testing.T) {
	t.Parallel()
	_, ft := newTestSession(t, Handlers{
		Tool: func(_ context.Context, req *protocol.ToolInvocationRequest) (protocol.Value, error) {
			return ToolResultText(req.ToolName + ":" + req.Input.Str("q")), nil
		},
	})
	ft.push(toolRequest("r1", "inv-1", "lookup"))

	resp := toolResponseFor(ft, t, "inv-1")
	assert.False(t, IsToolResultError(resp.ToolResponse.Result))
	assert.Equal(t, "lookup:x", ToolResultTextOf(resp.ToolResponse.Result))
	assert.Equal(t, "sess-1", resp.SessionID)
}

func TestSession_ToolHandlerFailures(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		handler ToolHandler
		want    string
	}{
		{
			name: "error",
			handler: func(context.Context, *protocol.ToolInvocationRequest) (protocol.Value, error) {
				return protocol.Value{}, errors.New("lookup failed")
			},
			want: "lookup failed",
		},
		{
			name: "panic",
			handler: func(context.Context, *protocol.ToolInvocationRequest) (protocol.Value, error) {
				panic("kaboom")
			},
			want: "handler panic: kaboom",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, ft := newTestSession(t, Handlers{Tool: tt.handler})
			ft.push(toolRequest("r1", "inv-1", "lookup"))

			resp := toolResponseFor(ft, t, "inv-1")
			assert.True(t, IsToolResultError(resp.ToolResponse.Result))
			assert.Equal(t, tt.want, ToolResultTextOf(resp.ToolResponse.Result))
		})
	}
}

func TestSession_CallbackTimeout(t *testing.T) {
	t.Parallel()
	_, ft := newTestSession(t, Handlers{
		Tool: func(ctx context.Context, _ *protocol.ToolInvocationRequest) (protocol.Value, error) {
			<-ctx.Done()
			return protocol.Value{}, ctx.Err()
		},
	}, WithCallbackTimeout(20*time.Millisecond))
	ft.push(toolRequest("r1", "inv-1", "slow"))

	resp := toolResponseFor(ft, t, "inv-1")
	assert.True(t, IsToolResultError(resp.ToolResponse.Result))
	assert.Equal(t, context.DeadlineExceeded.Error(), ToolResultTextOf(resp.ToolResponse.Result))
}

func TestSession_SlowHandlerDoesNotBlockEvents(t *testing.T) {
	t.Parallel()
	release := make(chan struct{})
	s, ft := newTestSession(t, Handlers{
		Tool: func(context.Context, *protocol.ToolInvocationRequest) (protocol.Value, error) {
			<-release
			return ToolResultText("late"), nil
		},
	})
	events := s.Events()

	ft.push(toolRequest("r1", "inv-1", "slow"), stderrEvent("", "", "still flowing"))

	assert.NotNil(t, recvEvent(t, events).ToolRequest)
	assert.Equal(t, "still flowing", recvEvent(t, events).Stderr.Line)

	close(release)
	assert.Equal(t, "late", ToolResultTextOf(toolResponseFor(ft, t, "inv-1").ToolResponse.Result))
}

func TestSession_HookCallbacks(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		handler HookHandler
		check   func(t *testing.T, out *protocol.HookOutput)
	}{
		{
			name: "missing handler stops",
			check: func(t *testing.T, out *protocol.HookOutput) {
				assert.False(t, HookShouldContinue(out))
				assert.Equal(t, "no hook handler", out.StopReason)
			},
		},
		{
			name: "nil output is the default",
			handler: func(context.Context, *protocol.HookInvocationRequest) (*protocol.HookOutput, error) {
				return nil, nil
			},
			check: func(t *testing.T, out *protocol.HookOutput) {
				assert.True(t, HookShouldContinue(out))
			},
		},
		{
			name: "error stops with the error text",
			handler: func(context.Context, *protocol.HookInvocationRequest) (*protocol.HookOutput, error) {
				return nil, errors.New("hook broke")
			},
			check: func(t *testing.T, out *protocol.HookOutput) {
				assert.False(t, HookShouldContinue(out))
				assert.Equal(t, "hook broke", out.StopReason)
			},
		},
		{
			name: "handler output is sent",
			handler: func(context.Context, *protocol.HookInvocationRequest) (*protocol.HookOutput, error) {
				return HookBlock("unsafe", "blocked by policy"), nil
			},
			check: func(t *testing.T, out *protocol.HookOutput) {
				assert.Equal(t, "block", out.Decision)
				assert.Equal(t, "unsafe", out.Reason)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, ft := newTestSession(t, Handlers{Hook: tt.handler})
			ft.push(hookRequest("r1", "hook-1"))

			resp := ft.waitPayload(t, protocol.ClientHookResponse)
			assert.Equal(t, "r1", resp.RequestID)
			assert.Equal(t, "hook-1", resp.HookResponse.InvocationID)
			require.NotNil(t, resp.HookResponse.Output)
			tt.check(t, resp.HookResponse.Output)
		})
	}
}

func TestSession_PermissionCallbacks(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		handler  PermissionHandler
		behavior protocol.PermissionBehavior
		reason   string
	}{
		{
			name:     "missing handler denies",
			behavior: protocol.PermissionBehaviorDeny,
			reason:   "no permission handler",
		},
		{
			name:     "bypass allows",
			handler:  BypassPermissions(),
			behavior: protocol.PermissionBehaviorAllow,
			reason:   "bypass permissions",
		},
		{
			name: "nil decision denies",
			handler: func(context.Context, *protocol.PermissionDecisionRequest) (*protocol.PermissionDecision, error) {
				return nil, nil
			},
			behavior: protocol.PermissionBehaviorDeny,
			reason:   "permission handler returned no decision",
		},
		{
			name: "error denies",
			handler: func(context.Context, *protocol.PermissionDecisionRequest) (*protocol.PermissionDecision, error) {
				return nil, errors.New("policy unavailable")
			},
			behavior: protocol.PermissionBehaviorDeny,
			reason:   "policy unavailable",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, ft := newTestSession(t, Handlers{Permission: tt.handler})
			ft.push(permissionRequest("r1", "perm-1", "Bash"))

			resp := ft.waitPayload(t, protocol.ClientPermissionResponse)
			assert.Equal(t, "r1", resp.RequestID)
			assert.Equal(t, "perm-1", resp.PermissionResponse.InvocationID)
			d := resp.PermissionResponse.Decision
			require.NotNil(t, d)
			assert.Equal(t, tt.behavior, d.Behavior)
			assert.Equal(t, tt.reason, d.Reason)
		})
	}
}

// Scenario E: an interrupting permission decision is followed by the remote
// session closing, which every global subscriber sees.
func TestSession_InterruptDecisionThenSessionClosed(t *testing.T) {
	t.Parallel()
	s, ft := newTestSession(t, Handlers{
		Permission: func(context.Context, *protocol.PermissionDecisionRequest) (*protocol.PermissionDecision, error) {
			return WithInterrupt(PermissionDeny("stop now"), true), nil
		},
	})
	events := s.Events()
	extra := s.Subscribe(4)
	defer s.Unsubscribe(extra)

	ft.push(beginEvent("t1", "r1", 1), permissionRequest("r1", "perm-1", "Bash"))

	resp := ft.waitPayload(t, protocol.ClientPermissionResponse)
	assert.True(t, resp.PermissionResponse.Decision.Interrupt)

	ft.push(&protocol.ServerEvent{SessionClosed: &protocol.SessionClosed{Reason: "interrupted"}})
	ft.end()

	for _, ch := range []<-chan *protocol.ServerEvent{events, extra.Events()} {
		got := drain(t, ch)
		require.Len(t, got, 3)
		require.NotNil(t, got[2].SessionClosed)
		assert.Equal(t, "interrupted", got[2].SessionClosed.Reason)
	}
	requireClosed(t, s.Done())
}

// ============================================================================
// Input streams
// ============================================================================

func TestSession_InputStream(t *testing.T) {
	t.Parallel()
	s, ft := newTestSession(t, Handlers{})
	ctx := testCtx(t)

	st, streamID, err := s.StreamInput(ctx)
	require.NoError(t, err)
	defer st.Close()

	q := ft.lastQuery(t)
	assert.Equal(t, streamID, q.Query.InputStreamID)
	assert.Equal(t, st.RequestID(), q.RequestID)

	require.NoError(t, s.SendInputEvent(ctx, streamID, UserTextEvent("part one")))
	chunk := ft.waitPayload(t, protocol.ClientInputChunk)
	assert.Equal(t, st.RequestID(), chunk.RequestID)
	assert.Equal(t, streamID, chunk.InputChunk.InputStreamID)
	assert.Equal(t, "user", chunk.InputChunk.Event.Str("type"))

	require.NoError(t, s.EndInputStream(ctx, streamID))
	end := ft.waitPayload(t, protocol.ClientEndInput)
	assert.Equal(t, streamID, end.EndInput.InputStreamID)

	err = s.SendInputChunk(ctx, streamID, protocol.StringValue("too late"))
	assert.ErrorIs(t, err, ErrUnknownStream)
	assert.ErrorIs(t, s.EndInputStream(ctx, streamID), ErrUnknownStream)
	assert.ErrorIs(t, s.SendInputEvent(ctx, streamID, nil), ErrNilEvent)

	ft.push(beginEvent("t1", st.RequestID(), 1), endEvent("t1", st.RequestID(), 1))
	_, err = st.Result(ctx)
	require.NoError(t, err)
}

func TestSession_StartInputStream(t *testing.T) {
	t.Parallel()
	s, ft := newTestSession(t, Handlers{})
	ctx := testCtx(t)

	requestID, streamID, err := s.StartInputStream(ctx)
	require.NoError(t, err)
	require.NoError(t, s.SendInputChunk(ctx, streamID, RawInputEvent{"type": protocol.StringValue("raw")}.InputValue()))

	chunk := ft.waitPayload(t, protocol.ClientInputChunk)
	assert.Equal(t, requestID, chunk.RequestID)
	assert.Equal(t, "raw", chunk.InputChunk.Event.Str("type"))
}

// ============================================================================
// Subscriptions, init and lifecycle
// ============================================================================

func TestSession_EventsIsLazyAndShared(t *testing.T) {
	t.Parallel()
	s, ft := newTestSession(t, Handlers{})
	assert.Zero(t, s.Stats().Global)

	events := s.Events()
	assert.Equal(t, events, s.Events())
	assert.Equal(t, 1, s.Stats().Global)

	ft.push(stderrEvent("", "", "hello"))
	assert.Equal(t, "hello", recvEvent(t, events).Stderr.Line)
}

func TestSession_Turns(t *testing.T) {
	t.Parallel()
	s, ft := newTestSession(t, Handlers{})
	turns := s.Turns(testCtx(t))

	ft.push(
		beginEvent("t1", "r1", 1),
		assistantEvent("t1", "r1", "one", false),
		endEvent("t1", "r1", 1),
		beginEvent("t2", "r2", 2),
	)
	ft.end()

	got := drain(t, turns)
	require.Len(t, got, 2)
	assert.Equal(t, "one", got[0].Text())
	assert.True(t, got[0].Ended)
	assert.False(t, got[1].Ended)
}

func TestSession_Init(t *testing.T) {
	t.Parallel()
	s, ft := newTestSession(t, Handlers{})
	assert.Nil(t, s.Init())

	ft.push(&protocol.ServerEvent{SessionInit: &protocol.SessionInit{
		ClaudeSessionID: "claude-1",
		Tools:           []string{"Read", "Bash"},
		RawInit: protocol.MustValueOf(map[string]any{
			"model":        "sonnet",
			"commands":     []any{"/help", "/clear"},
			"output_style": "default",
		}),
	}})

	info, err := s.WaitInit(testCtx(t))
	require.NoError(t, err)
	assert.Equal(t, "claude-1", info.ClaudeSessionID)
	assert.True(t, info.HasTool("Bash"))
	assert.False(t, info.HasTool("Write"))
	assert.Equal(t, "sonnet", info.GetString("model"))
	assert.Equal(t, []string{"/help", "/clear"}, info.Commands())
	assert.Equal(t, "default", info.OutputStyle())
	assert.Same(t, info, s.Init())
}

func TestSession_EventsFromAttach(t *testing.T) {
	t.Parallel()
	s, ft := newTestSession(t, Handlers{}, WithEventsFromAttach())

	// Pushed before anyone asked for Events.
	ft.push(&protocol.ServerEvent{SessionInit: &protocol.SessionInit{ClaudeSessionID: "claude-1"}})
	_, err := s.WaitInit(testCtx(t))
	require.NoError(t, err)

	ev := recvEvent(t, s.Events())
	require.NotNil(t, ev.SessionInit)
	assert.Equal(t, "claude-1", ev.SessionInit.ClaudeSessionID)
}

func TestSession_EventsLazyMissesInit(t *testing.T) {
	t.Parallel()
	s, ft := newTestSession(t, Handlers{})

	ft.push(&protocol.ServerEvent{SessionInit: &protocol.SessionInit{ClaudeSessionID: "claude-1"}})
	_, err := s.WaitInit(testCtx(t))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return s.Stats().Dispatched == 1 }, waitTimeout, 5*time.Millisecond)
	events := s.Events()

	ft.push(stderrEvent("", "", "later"))
	ev := recvEvent(t, events)
	assert.Nil(t, ev.SessionInit)
	assert.Equal(t, "later", ev.Stderr.Line)
	assert.Equal(t, "claude-1", s.Init().ClaudeSessionID)
}

func TestSession_WaitInitAfterEnd(t *testing.T) {
	t.Parallel()
	s, ft := newTestSession(t, Handlers{})
	ft.end()
	_, err := s.WaitInit(testCtx(t))
	assert.ErrorIs(t, err, ErrSessionClosed)
}

func TestSession_Close(t *testing.T) {
	t.Parallel()
	s, ft := newTestSession(t, Handlers{})
	ctx := testCtx(t)
	events := s.Events()

	st, err := s.Stream(ctx, "pending")
	require.NoError(t, err)
	defer st.Close()

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	requireClosed(t, s.Done())

	assert.NoError(t, s.Err())
	assert.True(t, ft.halfClosed())
	assert.Empty(t, drain(t, events))

	_, err = st.Result(ctx)
	assert.ErrorIs(t, err, ErrNoTurn)

	_, err = s.Query(ctx, "after close")
	assert.ErrorIs(t, err, ErrSessionClosed)
	assert.False(t, IsRecoverable(err))
}

func TestSession_TransportFailure(t *testing.T) {
	t.Parallel()
	s, ft := newTestSession(t, Handlers{})
	ctx := testCtx(t)

	st, err := s.Stream(ctx, "hi")
	require.NoError(t, err)
	defer st.Close()
	// The failure is queued behind the turn's events and must not overtake them.
	ft.push(
		beginEvent("t1", st.RequestID(), 1),
		assistantEvent("t1", st.RequestID(), "partial answer", false),
	)
	ft.fail(errors.New("connection reset"))
	requireClosed(t, s.Done())

	var tErr *TransportError
	require.ErrorAs(t, s.Err(), &tErr)
	assert.Equal(t, "recv", tErr.Op)
	assert.Contains(t, tErr.Error(), "connection reset")

	res, err := st.Result(ctx)
	require.NoError(t, err, "an open turn resolves as partial")
	assert.False(t, res.Turn.Ended)
	assert.Equal(t, "partial answer", res.Text())

	_, err = s.Query(ctx, "after failure")
	assert.ErrorIs(t, err, ErrSessionClosed)
}
