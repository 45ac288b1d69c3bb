package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"AgentConsole/pkg/console/api"
	"AgentConsole/pkg/console/router"
	"AgentConsole/pkg/logger"

	"github.com/google/uuid"
)

// TurnResult is the terminal outcome of one turn.
type TurnResult struct {
	Ref   string
	State api.TurnState
	Err   error
}

// turnRun is the loop-owned record of the current turn.
type turnRun struct {
	ref      string
	state    api.TurnState
	streamed bool
	userID   int64
	replyID  int64 // placeholder assistant turn on the stream path
	router   *router.Router
	stream   api.EventStream
	cancel   context.CancelFunc
	waiters  []chan TurnResult
}

// stop cancels the turn's effects and closes its stream.
func (t *turnRun) stop() {
	if t.cancel != nil {
		t.cancel()
	}
	if t.stream != nil {
		_ = t.stream.Close()
		t.stream = nil
	}
}

func (t *turnRun) finish(res TurnResult) {
	t.state = res.State
	for _, w := range t.waiters {
		w <- res
	}
	t.waiters = nil
}

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Submission
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

func (o *Orchestrator) onSubmit(in cmdSubmit) {
	st := o.st
	switch {
	case st.starting:
		in.reply <- submitReply{err: api.ErrSessionStarting}
		return
	case st.sessionID == "":
		in.reply <- submitReply{err: api.ErrNoSession}
		return
	case st.turn != nil && st.turn.state.InFlight():
		logger.Warn("orchestrator", "Turn rejected, another turn is in flight", map[string]interface{}{
			"turn_ref": st.turn.ref,
		})
		in.reply <- submitReply{err: api.ErrTurnInProgress}
		return
	}
	if strings.TrimSpace(in.content) == "" && len(in.attachments) == 0 {
		in.reply <- submitReply{err: api.ErrEmptyTurn}
		return
	}

	message, display := composeMessage(in.content, in.attachments)
	ctx, cancel := context.WithCancel(o.ctx)
	turn := &turnRun{
		ref:    uuid.NewString(),
		state:  api.TurnSending,
		cancel: cancel,
	}
	turn.userID = st.transcript.Append(api.RoleUser, display, nil)
	st.turn = turn
	st.err = nil

	logger.Info("orchestrator", "Turn submitted", map[string]interface{}{
		"session_id":  st.sessionID,
		"turn_ref":    turn.ref,
		"attachments": len(in.attachments),
	})
	o.publish(Update{Kind: UpdateTranscript, TurnRef: turn.ref})
	o.publish(Update{Kind: UpdateTurnState, TurnRef: turn.ref, State: turn.state})

	sessionID := st.sessionID
	if len(in.attachments) > 0 {
		// Only the synchronous transport carries attachments.
		go func() {
			resp, err := o.backend.SendTurn(ctx, sessionID, message, in.attachments)
			o.emit(evSendResult{ref: turn.ref, resp: resp, err: err})
		}()
		o.setTurnState(api.TurnAwaitingResponse)
	} else {
		turn.streamed = true
		turn.replyID = st.transcript.Open(api.RoleAssistant, "")
		turn.router = router.New(st.transcript, st.ledger, turn.replyID)
		go o.pump(ctx, turn.ref, sessionID, message)
	}
	in.reply <- submitReply{ref: turn.ref}
}

// pump reads the push channel and forwards everything to the loop.
func (o *Orchestrator) pump(ctx context.Context, ref, sessionID, message string) {
	stream, err := o.backend.OpenStream(ctx, sessionID, message)
	if err != nil {
		o.emit(evStreamOpened{ref: ref, err: err})
		return
	}
	if !o.emit(evStreamOpened{ref: ref, stream: stream}) {
		_ = stream.Close()
		return
	}

	for {
		ev, err := stream.Recv(ctx)
		if err != nil {
			var perr *api.StreamParseError
			switch {
			case errors.As(err, &perr):
				if !o.emit(evStreamMalformed{ref: ref, err: perr}) {
					return
				}
				continue
			case errors.Is(err, io.EOF):
				o.emit(evStreamEnded{ref: ref})
			case ctx.Err() != nil:
				// Aborted or finished by the loop.
			default:
				o.emit(evStreamEnded{ref: ref, err: err})
			}
			return
		}
		if !o.emit(evStreamEvent{ref: ref, ev: ev}) {
			return
		}
		if ev.Type == api.EventChatComplete || ev.Type == api.EventError {
			return
		}
	}
}

// current returns the in-flight turn matching ref.
func (o *Orchestrator) current(ref string) *turnRun {
	t := o.st.turn
	if t == nil || t.ref != ref || !t.state.InFlight() {
		return nil
	}
	return t
}

func (o *Orchestrator) setTurnState(s api.TurnState) {
	t := o.st.turn
	t.state = s
	o.publish(Update{Kind: UpdateTurnState, TurnRef: t.ref, State: s})
}

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Stream Path
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

func (o *Orchestrator) onStreamOpened(in evStreamOpened) {
	t := o.current(in.ref)
	if t == nil {
		if in.stream != nil {
			_ = in.stream.Close()
		}
		return
	}
	if in.err != nil {
		logger.Error("orchestrator", "Failed to open stream", map[string]interface{}{
			"turn_ref": in.ref,
			"error":    in.err,
		})
		o.failStream(&api.TurnTransportError{Op: "stream", Err: in.err})
		return
	}
	t.stream = in.stream
	o.setTurnState(api.TurnAwaitingStream)
}

func (o *Orchestrator) onStreamEvent(in evStreamEvent) {
	t := o.current(in.ref)
	if t == nil {
		return
	}
	o.applyRoute(t, t.router.Route(in.ev))
}

func (o *Orchestrator) onStreamMalformed(in evStreamMalformed) {
	t := o.current(in.ref)
	if t == nil {
		return
	}
	o.applyRoute(t, t.router.Malformed(in.err))
}

func (o *Orchestrator) onStreamEnded(in evStreamEnded) {
	t := o.current(in.ref)
	if t == nil {
		return
	}
	err := in.err
	if err == nil {
		err = io.ErrUnexpectedEOF
	}
	logger.Error("orchestrator", "Stream ended before the turn completed", map[string]interface{}{
		"turn_ref": in.ref,
		"error":    err,
	})
	o.failStream(&api.TurnTransportError{Op: "stream", Err: err})
}

func (o *Orchestrator) applyRoute(t *turnRun, res router.Result) {
	if res.TranscriptChanged {
		o.publish(Update{Kind: UpdateTranscript, TurnRef: t.ref})
	}
	if res.NewRequest != nil {
		req := *res.NewRequest
		o.publish(Update{Kind: UpdatePermissionRequested, TurnRef: t.ref, Request: &req})
	}
	o.publishResolved(res.Resolved)
	if res.LedgerChanged {
		o.publish(Update{Kind: UpdateLedger, TurnRef: t.ref})
	}
	if res.Warning != "" {
		o.setWarning(res.Warning)
	}
	if res.LedgerChanged || res.Terminal {
		o.syncPoll()
	}
	if !res.Terminal {
		return
	}

	if res.Completed {
		// The agent finished; nothing can still be waiting on a decision.
		if expired := o.st.ledger.ExpireAll(); len(expired) > 0 {
			logger.Warn("orchestrator", "Turn completed with requests still pending", map[string]interface{}{
				"turn_ref": t.ref,
				"count":    len(expired),
			})
			o.publishResolved(expired)
			o.publish(Update{Kind: UpdateLedger, TurnRef: t.ref})
			o.syncPoll()
		}
		o.endTurn(t, api.TurnCompleted, nil)
		return
	}
	logger.Error("orchestrator", "Turn failed", map[string]interface{}{
		"turn_ref": t.ref,
		"error":    res.Err,
	})
	o.endTurn(t, api.TurnErrored, res.Err)
}

// failStream ends a streamed turn after a transport failure.
func (o *Orchestrator) failStream(err error) {
	t := o.st.turn
	o.appendError(t.replyID, err.Error())
	o.endTurn(t, api.TurnErrored, err)
}

func (o *Orchestrator) appendError(turnID int64, msg string) {
	err := o.st.transcript.Update(turnID, func(turn *api.Turn) {
		if turn.Content == "" {
			turn.Content = router.ErrorContent(msg)
			return
		}
		turn.Content += "\n\n" + router.ErrorContent(msg)
	})
	if err != nil {
		logger.Warn("orchestrator", "Could not annotate turn", map[string]interface{}{"error": err})
	}
	o.publish(Update{Kind: UpdateTranscript, TurnRef: o.st.turn.ref})
}

// endTurn moves a turn to its terminal state exactly once.
func (o *Orchestrator) endTurn(t *turnRun, s api.TurnState, err error) {
	if !t.state.InFlight() {
		return
	}
	t.stop()
	if t.streamed {
		o.st.transcript.Seal(t.replyID)
	}
	if err != nil {
		o.setError(err)
	}

	res := TurnResult{Ref: t.ref, State: s, Err: err}
	o.st.results[t.ref] = res
	t.finish(res)
	o.syncPoll()

	logger.Info("orchestrator", "Turn finished", map[string]interface{}{
		"turn_ref": t.ref,
		"state":    string(s),
	})
	o.publish(Update{Kind: UpdateTurnState, TurnRef: t.ref, State: s, Err: err})
}

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Synchronous Path
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

func (o *Orchestrator) onSendResult(in evSendResult) {
	t := o.current(in.ref)
	if t == nil {
		return
	}
	st := o.st
	if in.err != nil {
		err := &api.TurnTransportError{Op: "send", Err: in.err}
		logger.Error("orchestrator", "Synchronous turn failed", map[string]interface{}{
			"turn_ref": in.ref,
			"error":    in.err,
		})
		st.transcript.Append(api.RoleError, router.ErrorContent(in.err.Error()), nil)
		o.publish(Update{Kind: UpdateTranscript, TurnRef: t.ref})
		o.endTurn(t, api.TurnErrored, err)
		return
	}

	changed := false
	for _, req := range in.resp.PendingPermissions {
		if !st.ledger.Upsert(req) {
			continue
		}
		changed = true
		stored, _ := st.ledger.Get(req.RequestID)
		o.publish(Update{Kind: UpdatePermissionRequested, TurnRef: t.ref, Request: &stored})
	}
	if changed {
		o.publish(Update{Kind: UpdateLedger, TurnRef: t.ref})
		o.syncPoll()
	}

	content := in.resp.Message
	if content == "" && len(in.resp.PendingPermissions) > 0 {
		content = router.AwaitingPermissionContent()
	}
	st.transcript.Append(api.RoleAssistant, content, in.resp.ToolInvocations)
	o.publish(Update{Kind: UpdateTranscript, TurnRef: t.ref})
	o.endTurn(t, api.TurnCompleted, nil)
}

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Abort and Wait
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

func (o *Orchestrator) abortTurn() bool {
	t := o.st.turn
	if t == nil || !t.state.InFlight() {
		return false
	}
	logger.Info("orchestrator", "Turn aborted", map[string]interface{}{"turn_ref": t.ref})
	if t.streamed {
		err := o.st.transcript.Update(t.replyID, func(turn *api.Turn) {
			turn.Content += router.AbortedMarker()
		})
		if err != nil {
			logger.Warn("orchestrator", "Could not annotate aborted turn", map[string]interface{}{"error": err})
		}
	} else {
		o.st.transcript.Append(api.RoleError, router.ErrorContent("request cancelled"), nil)
	}
	o.publish(Update{Kind: UpdateTranscript, TurnRef: t.ref})
	o.endTurn(t, api.TurnErrored, api.ErrTurnAborted)
	return true
}

func (o *Orchestrator) onWait(in cmdWait) {
	if res, ok := o.st.results[in.ref]; ok {
		in.reply <- waitReply{result: res}
		return
	}
	t := o.st.turn
	if t == nil || t.ref != in.ref {
		in.reply <- waitReply{err: fmt.Errorf("%w: %s", api.ErrUnknownTurn, in.ref)}
		return
	}
	ch := make(chan TurnResult, 1)
	t.waiters = append(t.waiters, ch)
	in.reply <- waitReply{pending: ch}
}

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Helpers
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

// composeMessage returns the text sent to the agent and the text shown in
// the transcript.
func composeMessage(content string, attachments []api.Attachment) (message, display string) {
	message = strings.TrimSpace(content)
	if len(attachments) == 0 {
		return message, message
	}
	names := make([]string, 0, len(attachments))
	for _, a := range attachments {
		names = append(names, a.Name)
	}
	list := strings.Join(names, ", ")
	if message == "" {
		message = "Please analyze the following files: " + list
		return message, message
	}
	return message, message + "\n\nAttachments: " + list
}

func sessionBanner(sc api.SessionContext, sessionID string) string {
	workspace := sc.WorkspacePath
	if workspace == "" {
		workspace = "auto-generated"
	}
	return fmt.Sprintf("Session %s created. Model: %s, workspace: %s", sessionID, sc.Model, workspace)
}
