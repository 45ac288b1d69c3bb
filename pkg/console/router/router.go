// Package router applies pushed events of one turn to the transcript and the
// permission ledger.
package router

import (
	"encoding/json"
	"fmt"

	"AgentConsole/pkg/console/api"
	"AgentConsole/pkg/console/ledger"
	"AgentConsole/pkg/console/transcript"
	"AgentConsole/pkg/logger"
)

// Result tells the caller what an event changed.
type Result struct {
	// Terminal is set by chat_complete, error, or a malformed first event.
	Terminal bool
	// Completed distinguishes chat_complete from an errored end.
	Completed bool
	// Err is the turn-scoped error to surface at session level.
	Err error
	// Warning is a session-level warning (permission timeouts).
	Warning string

	LedgerChanged     bool
	TranscriptChanged bool
	// NewRequest is set when a permission_request inserted a ledger entry.
	NewRequest *api.PermissionRequest
	// Resolved lists entries removed by this event.
	Resolved []ledger.Resolved
}

// Router consumes the events of a single turn, in arrival order.
type Router struct {
	transcript *transcript.Transcript
	ledger     *ledger.Ledger
	turnID     int64

	seen      int
	announced map[string]bool
}

// New binds a router to the in-flight assistant turn.
func New(t *transcript.Transcript, l *ledger.Ledger, assistantTurnID int64) *Router {
	return &Router{
		transcript: t,
		ledger:     l,
		turnID:     assistantTurnID,
		announced:  make(map[string]bool),
	}
}

// Seen returns how many events (including malformed ones) were routed.
func (r *Router) Seen() int { return r.seen }

// Malformed handles an event the channel could not decode. It only ends the
// turn when nothing valid has been seen yet.
func (r *Router) Malformed(perr *api.StreamParseError) Result {
	first := r.seen == 0
	r.seen++
	if !first {
		logger.Warn("router", "Dropping malformed event", map[string]interface{}{
			"turn_id": r.turnID,
			"error":   perr.Error(),
		})
		return Result{}
	}
	logger.Error("router", "First event malformed, failing turn", map[string]interface{}{
		"turn_id": r.turnID,
		"error":   perr.Error(),
	})
	r.setContent(ErrorContent(perr.Error()))
	return Result{Terminal: true, Err: perr, TranscriptChanged: true}
}

// Route applies one event.
func (r *Router) Route(ev api.StreamEvent) Result {
	switch ev.Type {
	case api.EventMessageStart:
		var p api.MessagePayload
		if !r.decode(ev, &p) {
			return r.dropped(ev)
		}
		r.seen++
		r.setContent(p.Message)
		return Result{TranscriptChanged: true}

	case api.EventMessage:
		var p api.MessagePayload
		if !r.decode(ev, &p) {
			return r.dropped(ev)
		}
		r.seen++
		// Whole-state snapshot: replace, never append.
		r.update(func(turn *api.Turn) {
			turn.Content = p.Message
			if p.ToolCalls != nil {
				turn.ToolInvocations = p.ToolCalls
			}
		})
		return Result{TranscriptChanged: true}

	case api.EventPermissionRequest:
		var p api.PermissionRequestPayload
		if !r.decode(ev, &p) || p.RequestID == "" {
			return r.dropped(ev)
		}
		r.seen++
		req := api.PermissionRequest{
			RequestID: p.RequestID,
			Operation: api.Operation(p.Operation),
			Details:   p.Details,
		}.Normalize()

		res := Result{}
		if r.ledger.Upsert(req) {
			res.LedgerChanged = true
			stored, _ := r.ledger.Get(req.RequestID)
			res.NewRequest = &stored
		}
		if !r.announced[p.RequestID] {
			r.announced[p.RequestID] = true
			r.appendContent(PermissionRequestedMarker(req))
			res.TranscriptChanged = true
		}
		return res

	case api.EventPermissionResponse, api.EventPermissionResolved:
		var p api.PermissionResolutionPayload
		if !r.decode(ev, &p) || p.RequestID == "" {
			return r.dropped(ev)
		}
		outcome, ok := api.ParseResolution(p.Status)
		if !ok {
			return r.dropped(ev)
		}
		r.seen++
		if !r.known(p.RequestID) {
			r.ignoreUnseen(ev, p.RequestID)
			return Result{}
		}
		res := Result{}
		if r.ledger.Resolve(p.RequestID, outcome) {
			res.LedgerChanged = true
			res.Resolved = []ledger.Resolved{{RequestID: p.RequestID, Status: outcome}}
		}
		if ev.Type == api.EventPermissionResolved {
			r.appendContent(ResolvedMarker(outcome))
			res.TranscriptChanged = true
		}
		return res

	case api.EventPermissionTimeout:
		var p api.PermissionResolutionPayload
		if !r.decode(ev, &p) || p.RequestID == "" {
			return r.dropped(ev)
		}
		r.seen++
		if !r.known(p.RequestID) {
			r.ignoreUnseen(ev, p.RequestID)
			return Result{}
		}
		if prior, done := r.ledger.Resolution(p.RequestID); done && prior != api.StatusExpired {
			logger.Warn("router", "Ignoring timeout for already resolved request", map[string]interface{}{
				"request_id": p.RequestID,
				"status":     string(prior),
			})
			return Result{}
		}
		res := Result{Warning: "permission request timed out; the operation was denied"}
		if r.ledger.Resolve(p.RequestID, api.StatusExpired) {
			res.LedgerChanged = true
			res.Resolved = []ledger.Resolved{{RequestID: p.RequestID, Status: api.StatusExpired}}
		}
		r.appendContent(TimeoutMarker())
		res.TranscriptChanged = true
		return res

	case api.EventError:
		var p api.ErrorPayload
		if !r.decode(ev, &p) {
			p.Message = "unknown agent error"
		}
		r.seen++
		if p.Message == "" {
			p.Message = "unknown agent error"
		}
		r.setContent(ErrorContent(p.Message))
		return Result{Terminal: true, Err: &api.AgentError{Message: p.Message}, TranscriptChanged: true}

	case api.EventChatComplete:
		r.seen++
		return Result{Terminal: true, Completed: true}

	default:
		r.seen++
		logger.Debug("router", "Ignoring unknown event kind", map[string]interface{}{
			"type":    string(ev.Type),
			"turn_id": r.turnID,
		})
		return Result{}
	}
}

// known reports whether the ledger holds id live or has resolved it.
func (r *Router) known(id string) bool {
	if _, ok := r.ledger.Get(id); ok {
		return true
	}
	_, done := r.ledger.Resolution(id)
	return done
}

func (r *Router) ignoreUnseen(ev api.StreamEvent, id string) {
	logger.Debug("router", "Ignoring resolution for unseen request", map[string]interface{}{
		"type":       string(ev.Type),
		"request_id": id,
		"turn_id":    r.turnID,
	})
}

func (r *Router) decode(ev api.StreamEvent, out any) bool {
	if len(ev.Data) == 0 {
		return false
	}
	return json.Unmarshal(ev.Data, out) == nil
}

func (r *Router) dropped(ev api.StreamEvent) Result {
	return r.Malformed(&api.StreamParseError{
		Raw: string(ev.Data),
		Err: fmt.Errorf("invalid %s payload", ev.Type),
	})
}

func (r *Router) update(fn func(*api.Turn)) {
	if err := r.transcript.Update(r.turnID, fn); err != nil {
		logger.Warn("router", "Transcript update skipped", map[string]interface{}{
			"turn_id": r.turnID,
			"error":   err.Error(),
		})
	}
}

func (r *Router) setContent(s string) {
	r.update(func(turn *api.Turn) { turn.Content = s })
}

func (r *Router) appendContent(s string) {
	r.update(func(turn *api.Turn) { turn.Content += s })
}
