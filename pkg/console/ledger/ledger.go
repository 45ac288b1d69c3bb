// Package ledger tracks permission requests by id.
//
// Every mutation is an idempotent set operation keyed by request id, so the
// push channel, the poll and local decisions can report the same fact any
// number of times and in any order without producing a duplicate prompt or
// resurrecting a resolved request.
package ledger

import (
	"fmt"
	"time"

	"AgentConsole/pkg/console/api"
)

type decisionState int

const (
	decisionNone decisionState = iota
	decisionInFlight
	decisionAcked
)

type entry struct {
	req      api.PermissionRequest
	decision decisionState
	decided  api.PermissionStatus
	// ackSeq is the last poll sequence issued before the decision was acked.
	ackSeq uint64
}

// Ledger maps request id to request state. Not safe for concurrent use; the
// orchestrator loop is the only writer.
type Ledger struct {
	entries  map[string]*entry
	order    []string
	resolved map[string]api.PermissionStatus
	now      func() time.Time
}

// New creates an empty ledger.
func New() *Ledger {
	return &Ledger{
		entries:  make(map[string]*entry),
		resolved: make(map[string]api.PermissionStatus),
		now:      time.Now,
	}
}

// WithClock replaces the FirstSeen timestamp source.
func (l *Ledger) WithClock(now func() time.Time) *Ledger {
	if now != nil {
		l.now = now
	}
	return l
}

// Upsert inserts a pending entry if the id is neither present nor already
// resolved. It reports whether an entry was inserted.
func (l *Ledger) Upsert(req api.PermissionRequest) bool {
	id := req.RequestID
	if id == "" {
		return false
	}
	if _, done := l.resolved[id]; done {
		return false
	}
	if _, ok := l.entries[id]; ok {
		return false
	}

	req = req.Normalize()
	req.Status = api.StatusPending
	req.DecisionPending = false
	req.Decided = nil
	if req.FirstSeen.IsZero() {
		req.FirstSeen = l.now()
	}
	if req.Details == nil {
		req.Details = map[string]any{}
	}
	l.entries[id] = &entry{req: req}
	l.order = append(l.order, id)
	return true
}

// Resolve moves a live entry to a terminal state and removes it. The id is
// then remembered so a late Upsert cannot bring it back. Resolving an id that
// is not live is a no-op and returns false.
func (l *Ledger) Resolve(id string, outcome api.PermissionStatus) bool {
	if id == "" || !outcome.Terminal() {
		return false
	}
	if _, ok := l.entries[id]; !ok {
		return false
	}
	l.resolved[id] = outcome
	delete(l.entries, id)
	for i, existing := range l.order {
		if existing == id {
			l.order = append(l.order[:i], l.order[i+1:]...)
			break
		}
	}
	return true
}

// Resolution returns the terminal state recorded for id.
func (l *Ledger) Resolution(id string) (api.PermissionStatus, bool) {
	s, ok := l.resolved[id]
	return s, ok
}

// Get returns a copy of a live entry.
func (l *Ledger) Get(id string) (api.PermissionRequest, bool) {
	e, ok := l.entries[id]
	if !ok {
		return api.PermissionRequest{}, false
	}
	return e.view(), true
}

// IsEmpty reports whether no requests are live.
func (l *Ledger) IsEmpty() bool { return len(l.entries) == 0 }

// Len returns the number of live requests.
func (l *Ledger) Len() int { return len(l.entries) }

// Snapshot returns live requests in the order they were first seen.
func (l *Ledger) Snapshot() []api.PermissionRequest {
	out := make([]api.PermissionRequest, 0, len(l.order))
	for _, id := range l.order {
		out = append(out, l.entries[id].view())
	}
	return out
}

func (e *entry) view() api.PermissionRequest {
	v := e.req
	if e.req.Details != nil {
		v.Details = make(map[string]any, len(e.req.Details))
		for k, val := range e.req.Details {
			v.Details[k] = val
		}
	}
	v.DecisionPending = e.decision == decisionInFlight
	if e.decision == decisionAcked {
		d := e.decided
		v.Decided = &d
	}
	return v
}

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Decisions
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

// BeginDecision claims the single decision slot of a request.
func (l *Ledger) BeginDecision(id string) error {
	e, ok := l.entries[id]
	if !ok {
		return fmt.Errorf("%w: %s", api.ErrUnknownRequest, id)
	}
	switch e.decision {
	case decisionInFlight:
		return fmt.Errorf("%w: %s", api.ErrDecisionInFlight, id)
	case decisionAcked:
		return fmt.Errorf("%w: %s", api.ErrAlreadyDecided, id)
	}
	e.decision = decisionInFlight
	return nil
}

// AbortDecision releases the slot after a retryable failure.
func (l *Ledger) AbortDecision(id string) {
	if e, ok := l.entries[id]; ok && e.decision == decisionInFlight {
		e.decision = decisionNone
	}
}

// AckDecision records that the collaborator accepted a decision. The entry
// stays live until a resolution signal arrives. pollSeq is the sequence of
// the most recent poll issued before the ack.
func (l *Ledger) AckDecision(id string, granted bool, pollSeq uint64) bool {
	e, ok := l.entries[id]
	if !ok {
		return false
	}
	e.decision = decisionAcked
	e.decided = api.Outcome(granted)
	e.ackSeq = pollSeq
	return true
}

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Reconciliation
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

// Resolved describes an entry removed by a bulk operation.
type Resolved struct {
	RequestID string
	Status    api.PermissionStatus
}

// ConfirmDecided resolves acknowledged entries that are missing from a poll
// issued after their acknowledgement. Absence alone never removes an entry
// that has no acknowledged decision.
func (l *Ledger) ConfirmDecided(pollSeq uint64, present map[string]bool) []Resolved {
	var out []Resolved
	for _, id := range append([]string(nil), l.order...) {
		e := l.entries[id]
		if e.decision != decisionAcked || pollSeq <= e.ackSeq || present[id] {
			continue
		}
		if l.Resolve(id, e.decided) {
			out = append(out, Resolved{RequestID: id, Status: e.decided})
		}
	}
	return out
}

// ExpireAll resolves every live entry as expired.
func (l *Ledger) ExpireAll() []Resolved {
	var out []Resolved
	for _, id := range append([]string(nil), l.order...) {
		if l.Resolve(id, api.StatusExpired) {
			out = append(out, Resolved{RequestID: id, Status: api.StatusExpired})
		}
	}
	return out
}
