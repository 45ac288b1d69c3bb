package orchestrator

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"AgentConsole/pkg/console/api"
	"AgentConsole/pkg/console/router"

	"github.com/stretchr/testify/require"
)

const waitFor = 2 * time.Second

func testContext() api.SessionContext {
	return api.SessionContext{
		Model:   "claude-3-5-sonnet-latest",
		Timeout: 180,
		Policy:  api.PermissionPolicy{DeleteFileProtection: true},
	}
}

type harness struct {
	o       *Orchestrator
	backend *fakeBackend
	tickers *tickerSet
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	b := newFakeBackend()
	ts := &tickerSet{}
	o := New(b, Options{PollTicker: ts.factory})
	t.Cleanup(func() { _ = o.Close() })
	return &harness{o: o, backend: b, tickers: ts}
}

func (h *harness) start(t *testing.T) string {
	t.Helper()
	id, err := h.o.StartSession(context.Background(), testContext())
	require.NoError(t, err)
	return id
}

// submitStreamed submits a text turn and returns the stream opened for it.
func (h *harness) submitStreamed(t *testing.T, msg string) (string, *fakeStream) {
	t.Helper()
	ref, err := h.o.SubmitTurn(context.Background(), msg)
	require.NoError(t, err)
	select {
	case s := <-h.backend.streams:
		return ref, s
	case <-time.After(waitFor):
		t.Fatal("stream was never opened")
		return "", nil
	}
}

func (h *harness) wait(t *testing.T, ref string) TurnResult {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	res, err := h.o.Wait(ctx, ref)
	require.NoError(t, err)
	return res
}

func (h *harness) eventually(t *testing.T, cond func(v View) bool, msg string) View {
	t.Helper()
	var last View
	require.Eventually(t, func() bool {
		last = h.o.Snapshot()
		return cond(last)
	}, waitFor, 5*time.Millisecond, msg)
	return last
}

func turnsByRole(v View, role api.Role) []api.Turn {
	var out []api.Turn
	for _, turn := range v.Turns {
		if turn.Role == role {
			out = append(out, turn)
		}
	}
	return out
}

func pendingIDs(v View) []string {
	var ids []string
	for _, p := range v.Pending {
		ids = append(ids, p.RequestID)
	}
	return ids
}

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Sessions
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

func TestStartSession_AppendsBanner(t *testing.T) {
	h := newHarness(t)
	id := h.start(t)
	require.Equal(t, "sess-1", id)

	v := h.o.Snapshot()
	require.Equal(t, id, v.SessionID)
	require.Equal(t, api.TurnIdle, v.TurnState)
	require.Len(t, v.Turns, 1)
	require.Equal(t, api.RoleSystem, v.Turns[0].Role)
	require.Contains(t, v.Turns[0].Content, "claude-3-5-sonnet-latest")
	require.Contains(t, v.Turns[0].Content, "auto-generated")
}

func TestStartSession_InvalidContext(t *testing.T) {
	h := newHarness(t)
	sc := testContext()
	sc.Temperature = 1.5

	_, err := h.o.StartSession(context.Background(), sc)
	var sce *api.SessionCreationError
	require.True(t, errors.As(err, &sce), "got %v", err)
	var pe *api.PolicyError
	require.True(t, errors.As(err, &pe))
	require.Equal(t, api.ErrCodeInvalidTemperature, pe.Code)
	require.Empty(t, h.backend.created, "invalid context must not reach the collaborator")
}

func TestStartSession_TransportFailure(t *testing.T) {
	h := newHarness(t)
	h.backend.createErr = errors.New("connection refused")

	_, err := h.o.StartSession(context.Background(), testContext())
	var sce *api.SessionCreationError
	require.True(t, errors.As(err, &sce), "got %v", err)

	v := h.o.Snapshot()
	require.Empty(t, v.SessionID)
	require.Error(t, v.Err)

	_, err = h.o.SubmitTurn(context.Background(), "hello")
	require.ErrorIs(t, err, api.ErrNoSession)
}

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Stream Path
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

func TestSubmitTurn_HappyPath(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	ref, s := h.submitStreamed(t, "list files")
	s.push(api.EventMessageStart, api.MessagePayload{Message: ""})
	s.push(api.EventMessage, api.MessagePayload{Message: "done"})
	s.push(api.EventChatComplete, nil)

	res := h.wait(t, ref)
	require.Equal(t, api.TurnCompleted, res.State)
	require.NoError(t, res.Err)

	v := h.o.Snapshot()
	users := turnsByRole(v, api.RoleUser)
	assistants := turnsByRole(v, api.RoleAssistant)
	require.Len(t, users, 1)
	require.Equal(t, "list files", users[0].Content)
	require.Len(t, assistants, 1)
	require.Equal(t, "done", assistants[0].Content)
	require.Empty(t, v.Pending)
	require.Equal(t, api.TurnCompleted, v.TurnState)
	require.True(t, s.isClosed())
}

func TestSubmitTurn_RejectedWhileInFlight(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	ref, s := h.submitStreamed(t, "first")
	before := h.o.Snapshot()

	_, err := h.o.SubmitTurn(context.Background(), "second")
	require.ErrorIs(t, err, api.ErrTurnInProgress)

	after := h.o.Snapshot()
	require.Equal(t, before.Turns, after.Turns, "rejected submit must not touch the transcript")
	require.Equal(t, ref, after.TurnRef)

	s.push(api.EventChatComplete, nil)
	h.wait(t, ref)

	_, s2 := h.submitStreamed(t, "second")
	s2.push(api.EventChatComplete, nil)
}

func TestSubmitTurn_EmptyMessage(t *testing.T) {
	h := newHarness(t)
	h.start(t)
	_, err := h.o.SubmitTurn(context.Background(), "   ")
	require.ErrorIs(t, err, api.ErrEmptyTurn)
	require.Len(t, h.o.Snapshot().Turns, 1)
}

func TestPermissionGrant(t *testing.T) {
	h := newHarness(t)
	h.start(t)
	ref, s := h.submitStreamed(t, "delete a.txt")

	s.push(api.EventPermissionRequest, api.PermissionRequestPayload{
		RequestID: "r1",
		Operation: "delete_file",
		Details:   map[string]any{"target_file": "a.txt"},
	})
	v := h.eventually(t, func(v View) bool { return len(v.Pending) == 1 }, "r1 never became pending")
	require.Equal(t, "r1", v.Pending[0].RequestID)
	require.Equal(t, api.OpDeleteFile, v.Pending[0].Operation)
	require.Equal(t, api.StatusPending, v.Pending[0].Status)
	require.True(t, v.HasPendingPermissions)
	require.True(t, v.Polling)

	require.NoError(t, h.o.Decide(context.Background(), "r1", true))
	require.Equal(t, []decision{{requestID: "r1", granted: true}}, h.backend.decisionsMade())

	v = h.o.Snapshot()
	require.Equal(t, []string{"r1"}, pendingIDs(v), "ack alone must not remove the entry")
	require.NotNil(t, v.Pending[0].Decided)

	err := h.o.Decide(context.Background(), "r1", true)
	require.ErrorIs(t, err, api.ErrAlreadyDecided)

	s.push(api.EventPermissionResolved, api.PermissionResolutionPayload{RequestID: "r1", Status: "granted"})
	v = h.eventually(t, func(v View) bool { return len(v.Pending) == 0 }, "r1 never resolved")
	require.False(t, v.Polling)

	s.push(api.EventChatComplete, nil)
	require.Equal(t, api.TurnCompleted, h.wait(t, ref).State)

	assistant := turnsByRole(h.o.Snapshot(), api.RoleAssistant)[0]
	require.Contains(t, assistant.Content, router.ResolvedMarker(api.StatusGranted))
	require.Len(t, h.backend.decisionsMade(), 1)
}

func TestPermissionTimeout(t *testing.T) {
	h := newHarness(t)
	h.start(t)
	ref, s := h.submitStreamed(t, "run tests")

	s.push(api.EventPermissionRequest, api.PermissionRequestPayload{RequestID: "r2", Operation: "run_terminal_command"})
	h.eventually(t, func(v View) bool { return len(v.Pending) == 1 }, "r2 never became pending")

	s.push(api.EventPermissionTimeout, api.PermissionResolutionPayload{RequestID: "r2"})
	v := h.eventually(t, func(v View) bool { return len(v.Pending) == 0 }, "r2 never expired")
	require.NotEmpty(t, v.Warning)

	// A decision arriving after the timeout has nothing to act on.
	require.ErrorIs(t, h.o.Decide(context.Background(), "r2", true), api.ErrUnknownRequest)

	s.push(api.EventChatComplete, nil)
	h.wait(t, ref)

	h.o.DismissError()
	require.Empty(t, h.o.Snapshot().Warning)
}

func TestPermissionTimeoutBeforeRequest(t *testing.T) {
	h := newHarness(t)
	h.start(t)
	ref, s := h.submitStreamed(t, "clean up")

	s.push(api.EventPermissionTimeout, api.PermissionResolutionPayload{RequestID: "r9"})
	s.push(api.EventPermissionRequest, api.PermissionRequestPayload{
		RequestID: "r9",
		Operation: "delete_file",
		Details:   map[string]any{"target_file": "old.log"},
	})

	v := h.eventually(t, func(v View) bool { return len(v.Pending) == 1 }, "r9 never became pending")
	require.Equal(t, []string{"r9"}, pendingIDs(v))
	require.Nil(t, v.Pending[0].Decided)
	require.Empty(t, v.Warning)
	require.True(t, v.Polling)

	assistant := turnsByRole(v, api.RoleAssistant)[0]
	require.NotContains(t, assistant.Content, router.TimeoutMarker())
	require.Contains(t, assistant.Content, "Permission requested")

	require.NoError(t, h.o.Decide(context.Background(), "r9", true))
	s.push(api.EventPermissionResolved, api.PermissionResolutionPayload{RequestID: "r9", Status: "granted"})
	h.eventually(t, func(v View) bool { return len(v.Pending) == 0 }, "r9 never resolved")
	s.push(api.EventChatComplete, nil)
	require.Equal(t, api.TurnCompleted, h.wait(t, ref).State)
	require.Equal(t, []decision{{requestID: "r9", granted: true}}, h.backend.decisionsMade())
}

func TestNoLostResolution_PollBetweenPushes(t *testing.T) {
	h := newHarness(t)
	h.start(t)
	ref, s := h.submitStreamed(t, "edit it")

	s.push(api.EventPermissionRequest, api.PermissionRequestPayload{RequestID: "r1", Operation: "edit_file"})
	h.eventually(t, func(v View) bool { return len(v.Pending) == 1 && v.Polling }, "r1 never became pending")
	tk := h.tickers.last()

	// the server still lists r1 between the request and its resolution
	h.backend.setPending(api.PermissionRequest{RequestID: "r1", Operation: api.OpEditFile})
	tk.c <- time.Now()
	require.Eventually(t, func() bool { return h.backend.pollCount.Load() == 1 }, waitFor, 5*time.Millisecond)
	require.Equal(t, []string{"r1"}, pendingIDs(h.o.Snapshot()))

	// a second poll is in flight, still listing r1, when the resolution lands
	release := h.backend.holdPolls()
	defer release()
	tk.c <- time.Now()
	require.Eventually(t, func() bool { return h.backend.pollCount.Load() == 2 }, waitFor, 5*time.Millisecond)

	s.push(api.EventPermissionResolved, api.PermissionResolutionPayload{RequestID: "r1", Status: "denied"})
	v := h.eventually(t, func(v View) bool { return len(v.Pending) == 0 }, "r1 never resolved")
	require.False(t, v.Polling)
	require.True(t, tk.stopped.Load())
	release()

	// a late re-push of the same id stays resolved
	s.push(api.EventPermissionRequest, api.PermissionRequestPayload{RequestID: "r1", Operation: "edit_file"})
	s.push(api.EventChatComplete, nil)
	require.Equal(t, api.TurnCompleted, h.wait(t, ref).State)

	v = h.o.Snapshot()
	require.Empty(t, v.Pending)
	require.False(t, v.Polling)
	require.Equal(t, 1, h.tickers.count())
	require.EqualValues(t, 2, h.backend.pollCount.Load())
}

func TestChatComplete_ExpiresLeftoverRequests(t *testing.T) {
	h := newHarness(t)
	h.start(t)
	ref, s := h.submitStreamed(t, "go")

	s.push(api.EventPermissionRequest, api.PermissionRequestPayload{RequestID: "r9", Operation: "edit_file"})
	h.eventually(t, func(v View) bool { return len(v.Pending) == 1 }, "r9 never became pending")
	s.push(api.EventChatComplete, nil)

	require.Equal(t, api.TurnCompleted, h.wait(t, ref).State)
	v := h.o.Snapshot()
	require.Empty(t, v.Pending)
	require.False(t, v.Polling)
}

func TestStream_AgentError(t *testing.T) {
	h := newHarness(t)
	h.start(t)
	ref, s := h.submitStreamed(t, "hi")

	s.push(api.EventMessage, api.MessagePayload{Message: "partial"})
	s.push(api.EventError, api.ErrorPayload{Message: "rate limited"})

	res := h.wait(t, ref)
	require.Equal(t, api.TurnErrored, res.State)
	var agentErr *api.AgentError
	require.True(t, errors.As(res.Err, &agentErr))

	v := h.o.Snapshot()
	require.Equal(t, "Error: rate limited", turnsByRole(v, api.RoleAssistant)[0].Content)
	require.Error(t, v.Err)

	h.o.DismissError()
	require.NoError(t, h.o.Snapshot().Err)
}

func TestStream_MalformedFirstEventFailsTurn(t *testing.T) {
	h := newHarness(t)
	h.start(t)
	ref, s := h.submitStreamed(t, "hi")

	s.pushErr(&api.StreamParseError{Raw: "{nope", Err: errors.New("unexpected end of JSON input")})

	res := h.wait(t, ref)
	require.Equal(t, api.TurnErrored, res.State)
	var perr *api.StreamParseError
	require.True(t, errors.As(res.Err, &perr))
}

func TestStream_MalformedLaterEventIsDropped(t *testing.T) {
	h := newHarness(t)
	h.start(t)
	ref, s := h.submitStreamed(t, "hi")

	s.push(api.EventMessageStart, api.MessagePayload{Message: "working"})
	s.pushErr(&api.StreamParseError{Raw: "{nope", Err: errors.New("bad json")})
	s.push(api.EventMessage, api.MessagePayload{Message: "done"})
	s.push(api.EventChatComplete, nil)

	require.Equal(t, api.TurnCompleted, h.wait(t, ref).State)
	require.Equal(t, "done", turnsByRole(h.o.Snapshot(), api.RoleAssistant)[0].Content)
}

func TestStream_TransportFailure(t *testing.T) {
	h := newHarness(t)
	h.start(t)
	ref, s := h.submitStreamed(t, "hi")

	s.push(api.EventMessage, api.MessagePayload{Message: "partial"})
	s.pushErr(errors.New("connection reset by peer"))

	res := h.wait(t, ref)
	require.Equal(t, api.TurnErrored, res.State)
	var te *api.TurnTransportError
	require.True(t, errors.As(res.Err, &te))
	require.Equal(t, "stream", te.Op)

	content := turnsByRole(h.o.Snapshot(), api.RoleAssistant)[0].Content
	require.True(t, strings.HasPrefix(content, "partial"))
	require.Contains(t, content, "Error: ")
	require.Equal(t, int32(1), h.backend.openCount.Load(), "failed turns are not retried")
}

func TestStream_OpenFailure(t *testing.T) {
	h := newHarness(t)
	h.start(t)
	h.backend.mu.Lock()
	h.backend.openErr = errors.New("502 bad gateway")
	h.backend.mu.Unlock()

	ref, err := h.o.SubmitTurn(context.Background(), "hi")
	require.NoError(t, err)
	res := h.wait(t, ref)
	require.Equal(t, api.TurnErrored, res.State)
	var te *api.TurnTransportError
	require.True(t, errors.As(res.Err, &te))
}

func TestAbort(t *testing.T) {
	h := newHarness(t)
	h.start(t)
	ref, s := h.submitStreamed(t, "long task")
	h.eventually(t, func(v View) bool { return v.TurnState == api.TurnAwaitingStream }, "stream never opened")

	stopped, err := h.o.Abort(context.Background())
	require.NoError(t, err)
	require.True(t, stopped)

	res := h.wait(t, ref)
	require.Equal(t, api.TurnErrored, res.State)
	require.ErrorIs(t, res.Err, api.ErrTurnAborted)
	require.True(t, s.isClosed())
	require.Contains(t, turnsByRole(h.o.Snapshot(), api.RoleAssistant)[0].Content, router.AbortedMarker())

	stopped, err = h.o.Abort(context.Background())
	require.NoError(t, err)
	require.False(t, stopped)
}

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Decisions
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

func TestDecide_Failures(t *testing.T) {
	tests := []struct {
		name        string
		kind        api.DecisionFailure
		stillListed bool
	}{
		{name: "already resolved", kind: api.DecisionAlreadyResolved, stillListed: false},
		{name: "expired", kind: api.DecisionExpired, stillListed: false},
		{name: "transient", kind: api.DecisionTransient, stillListed: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.start(t)
			_, s := h.submitStreamed(t, "go")
			s.push(api.EventPermissionRequest, api.PermissionRequestPayload{RequestID: "r1", Operation: "create_file"})
			h.eventually(t, func(v View) bool { return len(v.Pending) == 1 }, "r1 never became pending")

			h.backend.mu.Lock()
			h.backend.decideErrs = []error{&api.DecisionSubmissionError{Kind: tt.kind, Err: errors.New("rejected")}}
			h.backend.mu.Unlock()

			err := h.o.Decide(context.Background(), "r1", true)
			var derr *api.DecisionSubmissionError
			require.True(t, errors.As(err, &derr), "got %v", err)
			require.Equal(t, tt.kind, derr.Kind)
			require.Equal(t, "r1", derr.RequestID)

			v := h.o.Snapshot()
			require.Error(t, v.Err)
			if !tt.stillListed {
				require.Empty(t, v.Pending)
				return
			}
			require.Equal(t, []string{"r1"}, pendingIDs(v))
			require.False(t, v.Pending[0].DecisionPending)

			// Explicit retry goes through.
			require.NoError(t, h.o.Decide(context.Background(), "r1", true))
			require.Len(t, h.backend.decisionsMade(), 2)
		})
	}
}

func TestDecide_Usage(t *testing.T) {
	h := newHarness(t)
	require.ErrorIs(t, h.o.Decide(context.Background(), "r1", true), api.ErrNoSession)

	h.start(t)
	require.ErrorIs(t, h.o.Decide(context.Background(), "missing", false), api.ErrUnknownRequest)
	require.Empty(t, h.backend.decisionsMade())
}

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Attachments and Polling
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

func TestAttachmentPathBypassesStream(t *testing.T) {
	h := newHarness(t)
	h.start(t)
	h.backend.sendResp = api.TurnResponse{
		Message: "I need to create a file",
		PendingPermissions: []api.PermissionRequest{{
			RequestID: "r3",
			Operation: api.OpCreateFile,
			Details:   map[string]any{"file_path": "notes.md"},
		}},
	}

	ref, err := h.o.SubmitTurn(context.Background(), "", api.Attachment{Name: "report.pdf", Data: []byte("%PDF")})
	require.NoError(t, err)
	require.Equal(t, api.TurnCompleted, h.wait(t, ref).State)

	v := h.o.Snapshot()
	require.Equal(t, []string{"r3"}, pendingIDs(v))
	require.Zero(t, h.backend.openCount.Load())
	require.False(t, v.HasPendingPermissions, "only a streamed turn has the pending sub-state")

	users := turnsByRole(v, api.RoleUser)
	require.Equal(t, "Please analyze the following files: report.pdf", users[0].Content)
	require.Equal(t, "I need to create a file", turnsByRole(v, api.RoleAssistant)[0].Content)
	require.Len(t, h.backend.sends, 1)
	require.Len(t, h.backend.sends[0].attachments, 1)
}

func TestAttachmentPath_EmptyReplyWhileAwaitingPermission(t *testing.T) {
	h := newHarness(t)
	h.start(t)
	h.backend.sendResp = api.TurnResponse{
		PendingPermissions: []api.PermissionRequest{{RequestID: "r5", Operation: api.OpDeleteFile}},
	}

	ref, err := h.o.SubmitTurn(context.Background(), "tidy", api.Attachment{Name: "list.txt"})
	require.NoError(t, err)
	h.wait(t, ref)

	v := h.o.Snapshot()
	require.Equal(t, router.AwaitingPermissionContent(), turnsByRole(v, api.RoleAssistant)[0].Content)
	require.Equal(t, []string{"r5"}, pendingIDs(v))
}

func TestAttachmentPath_Failure(t *testing.T) {
	h := newHarness(t)
	h.start(t)
	h.backend.sendErr = errors.New("413 request entity too large")

	ref, err := h.o.SubmitTurn(context.Background(), "read this", api.Attachment{Name: "big.bin"})
	require.NoError(t, err)
	res := h.wait(t, ref)
	require.Equal(t, api.TurnErrored, res.State)

	v := h.o.Snapshot()
	errs := turnsByRole(v, api.RoleError)
	require.Len(t, errs, 1)
	require.Contains(t, errs[0].Content, "413")
	require.Equal(t, "read this\n\nAttachments: big.bin", turnsByRole(v, api.RoleUser)[0].Content)
}

func TestPoll_GatedOnLedger(t *testing.T) {
	h := newHarness(t)
	h.start(t)
	require.Zero(t, h.tickers.count(), "no poll while the ledger is empty")

	h.backend.sendResp = api.TurnResponse{
		Message:            "waiting",
		PendingPermissions: []api.PermissionRequest{{RequestID: "r3", Operation: api.OpCreateFile}},
	}
	ref, err := h.o.SubmitTurn(context.Background(), "x", api.Attachment{Name: "a.txt"})
	require.NoError(t, err)
	h.wait(t, ref)

	h.eventually(t, func(v View) bool { return v.Polling }, "poll never started")
	require.Equal(t, 1, h.tickers.count())
	tk := h.tickers.last()

	// The server still lists r3 and also reports r4 the client never saw.
	h.backend.setPending(
		api.PermissionRequest{RequestID: "r3", Operation: api.OpCreateFile},
		api.PermissionRequest{RequestID: "r4", Operation: api.OpDeleteFile},
	)
	tk.c <- time.Now()
	h.eventually(t, func(v View) bool { return len(v.Pending) == 2 }, "poll did not merge r4")
	require.EqualValues(t, 1, h.backend.pollCount.Load())

	// Absence alone removes nothing.
	h.backend.setPending()
	tk.c <- time.Now()
	require.Eventually(t, func() bool { return h.backend.pollCount.Load() == 2 }, waitFor, 5*time.Millisecond)
	require.Len(t, h.o.Snapshot().Pending, 2)

	// Decided requests absent from a later poll are confirmed.
	require.NoError(t, h.o.Decide(context.Background(), "r3", true))
	require.NoError(t, h.o.Decide(context.Background(), "r4", false))
	tk.c <- time.Now()

	v := h.eventually(t, func(v View) bool { return len(v.Pending) == 0 }, "decisions never confirmed")
	require.False(t, v.Polling)
	require.True(t, tk.stopped.Load())
	require.EqualValues(t, 3, h.backend.pollCount.Load())
}

func TestWait_UnknownTurn(t *testing.T) {
	h := newHarness(t)
	h.start(t)
	_, err := h.o.Wait(context.Background(), "nope")
	require.ErrorIs(t, err, api.ErrUnknownTurn)
}

func TestClose(t *testing.T) {
	h := newHarness(t)
	h.start(t)
	ref, s := h.submitStreamed(t, "hi")
	h.eventually(t, func(v View) bool { return v.TurnState == api.TurnAwaitingStream }, "stream never opened")

	require.NoError(t, h.o.Close())
	require.True(t, s.isClosed())

	_, err := h.o.SubmitTurn(context.Background(), "again")
	require.ErrorIs(t, err, api.ErrClosed)
	_, err = h.o.Wait(context.Background(), ref)
	require.ErrorIs(t, err, api.ErrClosed)
	require.Equal(t, View{}, h.o.Snapshot())

	_, open := <-h.o.Updates()
	for open {
		_, open = <-h.o.Updates()
	}
}
