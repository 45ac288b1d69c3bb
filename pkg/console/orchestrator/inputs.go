package orchestrator

import (
	"context"

	"AgentConsole/pkg/console/api"
	"AgentConsole/pkg/console/reconcile"
)

// input is anything delivered to the loop inbox.
type input interface {
	isInput()
}

// Commands from callers. Replies are buffered so the loop never blocks.

type cmdStartSession struct {
	ctx   context.Context
	sc    api.SessionContext
	reply chan startReply
}

type startReply struct {
	sessionID string
	err       error
}

type cmdSubmit struct {
	content     string
	attachments []api.Attachment
	reply       chan submitReply
}

type submitReply struct {
	ref string
	err error
}

type cmdDecide struct {
	requestID string
	granted   bool
	reply     chan error
}

type cmdWait struct {
	ref   string
	reply chan waitReply
}

type waitReply struct {
	result  TurnResult
	pending chan TurnResult
	err     error
}

type cmdAbort struct{ reply chan bool }

type cmdDismiss struct{}

type cmdSnapshot struct{ reply chan View }

// Events from effect goroutines.

type evSessionCreated struct {
	sc        api.SessionContext
	sessionID string
	err       error
	reply     chan startReply
}

type evStreamOpened struct {
	ref    string
	stream api.EventStream
	err    error
}

type evStreamEvent struct {
	ref string
	ev  api.StreamEvent
}

type evStreamMalformed struct {
	ref string
	err *api.StreamParseError
}

// evStreamEnded reports the end of the push channel. err is nil for a clean
// close.
type evStreamEnded struct {
	ref string
	err error
}

type evSendResult struct {
	ref  string
	resp api.TurnResponse
	err  error
}

type evDecisionResult struct {
	gen       uint64
	requestID string
	granted   bool
	err       error
	reply     chan error
}

type evPoll struct {
	src  *reconcile.Reconciler
	poll reconcile.Poll
}

func (cmdStartSession) isInput()   {}
func (cmdSubmit) isInput()         {}
func (cmdDecide) isInput()         {}
func (cmdWait) isInput()           {}
func (cmdAbort) isInput()          {}
func (cmdDismiss) isInput()        {}
func (cmdSnapshot) isInput()       {}
func (evSessionCreated) isInput()  {}
func (evStreamOpened) isInput()    {}
func (evStreamEvent) isInput()     {}
func (evStreamMalformed) isInput() {}
func (evStreamEnded) isInput()     {}
func (evSendResult) isInput()      {}
func (evDecisionResult) isInput()  {}
func (evPoll) isInput()            {}
