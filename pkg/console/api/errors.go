package api

import (
	"errors"
	"fmt"
)

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Usage Errors
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

var (
	ErrNoSession        = errors.New("no_session: start a session first")
	ErrTurnInProgress   = errors.New("turn_in_progress: a turn is already in flight for this session")
	ErrUnknownRequest   = errors.New("unknown_request: no pending permission request with that id")
	ErrDecisionInFlight = errors.New("decision_in_flight: a decision for this request is already being submitted")
	ErrAlreadyDecided   = errors.New("already_decided: a decision for this request was already accepted")
	ErrTurnAborted      = errors.New("turn_aborted: the turn was aborted by the user")
	ErrClosed           = errors.New("closed: the session orchestrator has been shut down")
	ErrEmptyTurn        = errors.New("empty_turn: a turn needs a message or at least one attachment")
	ErrSessionStarting  = errors.New("session_starting: a session is being created")
	ErrUnknownTurn      = errors.New("unknown_turn: no turn with that reference in this session")
)

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Error Taxonomy
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

// SessionCreationError is fatal to the attempted session.
type SessionCreationError struct {
	Reason string
	Err    error
}

func (e *SessionCreationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("session_creation: %s: %v", e.Reason, e.Err)
	}
	return "session_creation: " + e.Reason
}

func (e *SessionCreationError) Unwrap() error { return e.Err }

// TurnTransportError terminates only the current turn.
type TurnTransportError struct {
	Op  string // "stream" | "send"
	Err error
}

func (e *TurnTransportError) Error() string {
	return fmt.Sprintf("turn_transport(%s): %v", e.Op, e.Err)
}

func (e *TurnTransportError) Unwrap() error { return e.Err }

// DecisionFailure classifies a failed decision submission.
type DecisionFailure string

const (
	DecisionAlreadyResolved DecisionFailure = "already_resolved"
	DecisionExpired         DecisionFailure = "expired"
	DecisionTransient       DecisionFailure = "transient"
)

// DecisionSubmissionError is returned when the collaborator rejects or fails
// to accept a decision. AlreadyResolved and Expired force-resolve the local
// entry; Transient leaves it pending for an explicit retry.
type DecisionSubmissionError struct {
	RequestID string
	Kind      DecisionFailure
	Err       error
}

func (e *DecisionSubmissionError) Error() string {
	return fmt.Sprintf("decision(%s) %s: %v", e.RequestID, e.Kind, e.Err)
}

func (e *DecisionSubmissionError) Unwrap() error { return e.Err }

// Retryable reports whether the user may submit the decision again.
func (e *DecisionSubmissionError) Retryable() bool {
	return e.Kind == DecisionTransient
}

// StreamParseError marks a single malformed pushed event.
type StreamParseError struct {
	Raw string
	Err error
}

func (e *StreamParseError) Error() string {
	raw := e.Raw
	if len(raw) > 120 {
		raw = raw[:120] + "..."
	}
	return fmt.Sprintf("stream_parse: %v (raw=%q)", e.Err, raw)
}

func (e *StreamParseError) Unwrap() error { return e.Err }

// ClassifyDecisionError maps a collaborator error onto the decision taxonomy.
// Errors that already are DecisionSubmissionErrors keep their kind.
func ClassifyDecisionError(requestID string, err error) *DecisionSubmissionError {
	if err == nil {
		return nil
	}
	var de *DecisionSubmissionError
	if errors.As(err, &de) {
		if de.RequestID == "" {
			de.RequestID = requestID
		}
		return de
	}
	return &DecisionSubmissionError{RequestID: requestID, Kind: DecisionTransient, Err: err}
}

// AgentError is an error reported by the remote agent through the push channel.
type AgentError struct {
	Message string
}

func (e *AgentError) Error() string {
	return "agent_error: " + e.Message
}
