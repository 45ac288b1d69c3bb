package api

import "context"

// Backend is the remote collaborator the session core talks to.
type Backend interface {
	// CreateSession establishes a session. Failures are *SessionCreationError.
	CreateSession(ctx context.Context, sc SessionContext) (sessionID string, err error)

	// SendTurn is the synchronous transport; the only one that carries attachments.
	SendTurn(ctx context.Context, sessionID, message string, attachments []Attachment) (TurnResponse, error)

	// OpenStream opens the push channel for one turn.
	OpenStream(ctx context.Context, sessionID, message string) (EventStream, error)

	// PendingPermissions returns the authoritative pending set.
	PendingPermissions(ctx context.Context, sessionID string) ([]PermissionRequest, error)

	// Decide submits a decision. Failures are *DecisionSubmissionError.
	Decide(ctx context.Context, sessionID, requestID string, granted bool) error
}
