package orchestrator

import (
	"AgentConsole/pkg/console/api"
	"AgentConsole/pkg/console/ledger"
)

// View is a read-only copy of the session state.
type View struct {
	SessionID string
	Context   api.SessionContext
	Starting  bool

	Turns   []api.Turn
	Pending []api.PermissionRequest

	TurnRef   string
	TurnState api.TurnState
	// HasPendingPermissions is true while a streamed turn waits on a decision.
	HasPendingPermissions bool
	Polling               bool

	// Err is the dismissible session-level error.
	Err     error
	Warning string
}

// UpdateKind says what changed.
type UpdateKind string

const (
	UpdateSession             UpdateKind = "session"
	UpdateTranscript          UpdateKind = "transcript"
	UpdateLedger              UpdateKind = "ledger"
	UpdatePermissionRequested UpdateKind = "permission_requested"
	UpdatePermissionResolved  UpdateKind = "permission_resolved"
	UpdateTurnState           UpdateKind = "turn_state"
	UpdateError               UpdateKind = "error"
	UpdateWarning             UpdateKind = "warning"
)

// Update is a change notification. Fields beyond Kind are set only where
// relevant.
type Update struct {
	Kind      UpdateKind
	SessionID string
	TurnRef   string
	State     api.TurnState
	Request   *api.PermissionRequest
	Resolved  *ledger.Resolved
	Err       error
	Warning   string
}

func (o *Orchestrator) view() View {
	st := o.st
	v := View{
		SessionID: st.sessionID,
		Context:   st.sc,
		Starting:  st.starting,
		Turns:     st.transcript.Snapshot(),
		Pending:   st.ledger.Snapshot(),
		TurnState: api.TurnIdle,
		Err:       st.err,
		Warning:   st.warning,
	}
	if st.turn != nil {
		v.TurnRef = st.turn.ref
		v.TurnState = st.turn.state
	}
	v.HasPendingPermissions = v.TurnState == api.TurnAwaitingStream && len(v.Pending) > 0
	if st.reconciler != nil {
		v.Polling = st.reconciler.Active()
	}
	return v
}
