// Package orchestrator drives a chat session against a remote agent.
//
// A single goroutine owns the transcript, the permission ledger and the turn
// state. Public methods, the push stream, the poll and decision submissions
// all feed that goroutine through one inbox; network calls run in effect
// goroutines that report back as inputs. Handlers run to completion, so the
// stores never see two writers at once.
package orchestrator

import (
	"context"
	"errors"
	"sync"
	"time"

	"AgentConsole/pkg/console/api"
	"AgentConsole/pkg/console/ledger"
	"AgentConsole/pkg/console/reconcile"
	"AgentConsole/pkg/console/transcript"
	"AgentConsole/pkg/logger"
)

// Options configures an Orchestrator.
type Options struct {
	// PollInterval is the reconciliation period. Zero means one second.
	PollInterval time.Duration
	// UpdateBuffer is the capacity of the Updates channel.
	UpdateBuffer int
	// Now stamps turns and ledger entries. Defaults to time.Now.
	Now func() time.Time
	// PollTicker overrides the reconciler ticker, mostly for tests.
	PollTicker func(time.Duration) reconcile.Ticker
}

// Orchestrator is safe for concurrent use.
type Orchestrator struct {
	backend api.Backend
	opts    Options

	inbox   chan input
	updates chan Update

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once

	st *state
}

// state is owned by the loop goroutine.
type state struct {
	sessionID string
	sc        api.SessionContext
	gen       uint64
	starting  bool

	transcript *transcript.Transcript
	ledger     *ledger.Ledger
	reconciler *reconcile.Reconciler

	turn    *turnRun
	results map[string]TurnResult

	err     error
	warning string
}

// New starts the loop goroutine. Call Close to stop it.
func New(backend api.Backend, opts Options) *Orchestrator {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.UpdateBuffer <= 0 {
		opts.UpdateBuffer = 256
	}
	ctx, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		backend: backend,
		opts:    opts,
		inbox:   make(chan input, 64),
		updates: make(chan Update, opts.UpdateBuffer),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	o.st = &state{
		transcript: transcript.New().WithClock(opts.Now),
		ledger:     ledger.New().WithClock(opts.Now),
		results:    make(map[string]TurnResult),
	}

	go o.loop()
	return o
}

// Updates delivers change notifications. Notifications are dropped when the
// consumer falls behind; Snapshot always returns the current state. The
// channel is closed after Close.
func (o *Orchestrator) Updates() <-chan Update { return o.updates }

// Close stops the loop, the poll and any in-flight turn.
func (o *Orchestrator) Close() error {
	o.once.Do(func() {
		o.cancel()
		<-o.done
	})
	return nil
}

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Public Operations
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

// StartSession creates a session and makes it current. A new session starts
// with an empty transcript and ledger.
func (o *Orchestrator) StartSession(ctx context.Context, sc api.SessionContext) (string, error) {
	reply := make(chan startReply, 1)
	if err := o.send(ctx, cmdStartSession{ctx: ctx, sc: sc, reply: reply}); err != nil {
		return "", err
	}
	r, err := await(ctx, o.done, reply)
	if err != nil {
		return "", err
	}
	return r.sessionID, r.err
}

// SubmitTurn starts a turn and returns its reference once accepted. It does
// not wait for the turn to finish; use Wait for that.
func (o *Orchestrator) SubmitTurn(ctx context.Context, content string, attachments ...api.Attachment) (string, error) {
	reply := make(chan submitReply, 1)
	if err := o.send(ctx, cmdSubmit{content: content, attachments: attachments, reply: reply}); err != nil {
		return "", err
	}
	r, err := await(ctx, o.done, reply)
	if err != nil {
		return "", err
	}
	return r.ref, r.err
}

// Decide submits a decision and returns once the collaborator answered. A
// successful decision leaves the request listed until its resolution is
// confirmed. Failures are *api.DecisionSubmissionError or usage errors.
func (o *Orchestrator) Decide(ctx context.Context, requestID string, granted bool) error {
	reply := make(chan error, 1)
	if err := o.send(ctx, cmdDecide{requestID: requestID, granted: granted, reply: reply}); err != nil {
		return err
	}
	err, waitErr := await(ctx, o.done, reply)
	if waitErr != nil {
		return waitErr
	}
	return err
}

// Wait blocks until the referenced turn is terminal.
func (o *Orchestrator) Wait(ctx context.Context, ref string) (TurnResult, error) {
	reply := make(chan waitReply, 1)
	if err := o.send(ctx, cmdWait{ref: ref, reply: reply}); err != nil {
		return TurnResult{}, err
	}
	r, err := await(ctx, o.done, reply)
	if err != nil {
		return TurnResult{}, err
	}
	if r.err != nil {
		return TurnResult{}, r.err
	}
	// The turn was in flight; the loop answers again when it ends.
	if r.pending != nil {
		return await(ctx, o.done, r.pending)
	}
	return r.result, nil
}

// Abort stops the in-flight turn. It reports whether a turn was stopped.
func (o *Orchestrator) Abort(ctx context.Context) (bool, error) {
	reply := make(chan bool, 1)
	if err := o.send(ctx, cmdAbort{reply: reply}); err != nil {
		return false, err
	}
	return await(ctx, o.done, reply)
}

// DismissError clears the session-level error and warning.
func (o *Orchestrator) DismissError() {
	_ = o.send(context.Background(), cmdDismiss{})
}

// Snapshot returns a detached copy of the session state. After Close it
// returns the zero View.
func (o *Orchestrator) Snapshot() View {
	reply := make(chan View, 1)
	if err := o.send(context.Background(), cmdSnapshot{reply: reply}); err != nil {
		return View{}
	}
	v, err := await(context.Background(), o.done, reply)
	if err != nil {
		return View{}
	}
	return v
}

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Loop
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

func (o *Orchestrator) send(ctx context.Context, in input) error {
	select {
	case <-o.done:
		return api.ErrClosed
	default:
	}
	select {
	case o.inbox <- in:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-o.done:
		return api.ErrClosed
	}
}

func await[T any](ctx context.Context, done <-chan struct{}, reply <-chan T) (T, error) {
	var zero T
	select {
	case v := <-reply:
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-done:
		// The loop may have answered just before exiting.
		select {
		case v := <-reply:
			return v, nil
		default:
		}
		return zero, api.ErrClosed
	}
}

// emit feeds an effect result back to the loop. It reports false once the
// orchestrator is closing.
func (o *Orchestrator) emit(in input) bool {
	select {
	case o.inbox <- in:
		return true
	case <-o.ctx.Done():
		return false
	}
}

func (o *Orchestrator) loop() {
	defer close(o.done)
	defer close(o.updates)
	defer o.shutdown()

	for {
		select {
		case <-o.ctx.Done():
			return
		case in := <-o.inbox:
			o.handle(in)
		}
	}
}

func (o *Orchestrator) handle(in input) {
	switch in := in.(type) {
	case cmdStartSession:
		o.onStartSession(in)
	case evSessionCreated:
		o.onSessionCreated(in)
	case cmdSubmit:
		o.onSubmit(in)
	case evStreamOpened:
		o.onStreamOpened(in)
	case evStreamEvent:
		o.onStreamEvent(in)
	case evStreamMalformed:
		o.onStreamMalformed(in)
	case evStreamEnded:
		o.onStreamEnded(in)
	case evSendResult:
		o.onSendResult(in)
	case cmdDecide:
		o.onDecide(in)
	case evDecisionResult:
		o.onDecisionResult(in)
	case evPoll:
		o.onPoll(in)
	case cmdWait:
		o.onWait(in)
	case cmdAbort:
		in.reply <- o.abortTurn()
	case cmdDismiss:
		o.st.err = nil
		o.st.warning = ""
		o.publish(Update{Kind: UpdateError})
	case cmdSnapshot:
		in.reply <- o.view()
	default:
		logger.Warn("orchestrator", "Unhandled input", map[string]interface{}{"input": in})
	}
}

func (o *Orchestrator) shutdown() {
	st := o.st
	if st.turn != nil && st.turn.state.InFlight() {
		st.turn.stop()
		st.turn.finish(TurnResult{Ref: st.turn.ref, State: api.TurnErrored, Err: api.ErrClosed})
	}
	if st.reconciler != nil {
		st.reconciler.Stop()
	}
	logger.Info("orchestrator", "Orchestrator closed", map[string]interface{}{"session_id": st.sessionID})
}

// publish never blocks the loop.
func (o *Orchestrator) publish(u Update) {
	if u.SessionID == "" {
		u.SessionID = o.st.sessionID
	}
	select {
	case o.updates <- u:
	default:
		logger.Debug("orchestrator", "Update dropped, consumer is behind", map[string]interface{}{
			"kind": string(u.Kind),
		})
	}
}

// syncPoll keeps the reconciler running exactly while requests are pending.
func (o *Orchestrator) syncPoll() {
	st := o.st
	if st.reconciler == nil {
		return
	}
	st.reconciler.Sync(!st.ledger.IsEmpty())
}

func (o *Orchestrator) setError(err error) {
	o.st.err = err
	o.publish(Update{Kind: UpdateError, Err: err})
}

func (o *Orchestrator) setWarning(msg string) {
	o.st.warning = msg
	o.publish(Update{Kind: UpdateWarning, Warning: msg})
}

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Sessions
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

func (o *Orchestrator) onStartSession(in cmdStartSession) {
	st := o.st
	switch {
	case st.starting:
		in.reply <- startReply{err: api.ErrSessionStarting}
		return
	case st.turn != nil && st.turn.state.InFlight():
		in.reply <- startReply{err: api.ErrTurnInProgress}
		return
	}

	if err := in.sc.Validate(); err != nil {
		in.reply <- startReply{err: &api.SessionCreationError{Reason: "invalid session context", Err: err}}
		return
	}
	sc := in.sc
	sc.Policy = sc.Policy.Normalized()

	st.starting = true
	go func() {
		id, err := o.backend.CreateSession(in.ctx, sc)
		o.emit(evSessionCreated{sc: sc, sessionID: id, err: err, reply: in.reply})
	}()
}

func (o *Orchestrator) onSessionCreated(in evSessionCreated) {
	st := o.st
	st.starting = false

	err := in.err
	if err == nil && in.sessionID == "" {
		err = &api.SessionCreationError{Reason: "collaborator returned an empty session id"}
	}
	if err != nil {
		var sce *api.SessionCreationError
		if !errors.As(err, &sce) {
			err = &api.SessionCreationError{Reason: "create session", Err: err}
		}
		logger.Error("orchestrator", "Session creation failed", map[string]interface{}{"error": err})
		o.setError(err)
		in.reply <- startReply{err: err}
		return
	}

	if st.reconciler != nil {
		st.reconciler.Stop()
	}
	st.reconciler = o.newReconciler(in.sessionID)
	st.sessionID = in.sessionID
	st.sc = in.sc
	st.gen++
	st.turn = nil
	st.results = make(map[string]TurnResult)
	st.transcript = transcript.New().WithClock(o.opts.Now)
	st.ledger = ledger.New().WithClock(o.opts.Now)
	st.err = nil
	st.warning = ""

	st.transcript.Append(api.RoleSystem, sessionBanner(in.sc, in.sessionID), nil)

	logger.Info("orchestrator", "Session created", map[string]interface{}{
		"session_id": in.sessionID,
		"model":      in.sc.Model,
		"workspace":  in.sc.WorkspacePath,
		"yolo_mode":  in.sc.Policy.YoloMode,
	})
	o.publish(Update{Kind: UpdateSession})
	in.reply <- startReply{sessionID: in.sessionID}
}
