// Package api defines the data model shared by the session core, the HTTP
// client and the CLI.
package api

import (
	"strings"
	"time"
)

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Transcript Types
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

// Role identifies who produced a Turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleError     Role = "error"
)

// ToolInvocation is one tool call reported by the agent for a turn.
type ToolInvocation struct {
	Name       string         `json:"name"`
	Parameters map[string]any `json:"parameters"`
	Result     *string        `json:"result,omitempty"`
}

// Turn is one entry of the transcript.
type Turn struct {
	ID              int64            `json:"id"`
	Role            Role             `json:"role"`
	Content         string           `json:"content"`
	CreatedAt       time.Time        `json:"created_at"`
	ToolInvocations []ToolInvocation `json:"tool_invocations,omitempty"`
}

// Clone returns a deep copy so snapshots never alias loop-owned memory.
func (t Turn) Clone() Turn {
	out := t
	if len(t.ToolInvocations) > 0 {
		out.ToolInvocations = make([]ToolInvocation, len(t.ToolInvocations))
		for i, inv := range t.ToolInvocations {
			out.ToolInvocations[i] = inv.clone()
		}
	}
	return out
}

func (inv ToolInvocation) clone() ToolInvocation {
	out := inv
	if inv.Parameters != nil {
		out.Parameters = make(map[string]any, len(inv.Parameters))
		for k, v := range inv.Parameters {
			out.Parameters[k] = v
		}
	}
	if inv.Result != nil {
		r := *inv.Result
		out.Result = &r
	}
	return out
}

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Permission Types
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

// Operation is the kind of action the agent asks permission for.
type Operation string

const (
	OpCreateFile         Operation = "create_file"
	OpEditFile           Operation = "edit_file"
	OpDeleteFile         Operation = "delete_file"
	OpRunTerminalCommand Operation = "run_terminal_command"
	OpOther              Operation = "other"
)

// ParseOperation maps a wire operation name onto a known Operation.
// Unknown names map to OpOther.
func ParseOperation(name string) Operation {
	switch Operation(strings.TrimSpace(name)) {
	case OpCreateFile:
		return OpCreateFile
	case OpEditFile:
		return OpEditFile
	case OpDeleteFile:
		return OpDeleteFile
	case OpRunTerminalCommand:
		return OpRunTerminalCommand
	default:
		return OpOther
	}
}

// PermissionStatus is the lifecycle state of a permission request.
// Transitions are one-directional: pending -> granted | denied | expired.
type PermissionStatus string

const (
	StatusPending PermissionStatus = "pending"
	StatusGranted PermissionStatus = "granted"
	StatusDenied  PermissionStatus = "denied"
	StatusExpired PermissionStatus = "expired"
)

// Terminal reports whether s is a resolved state.
func (s PermissionStatus) Terminal() bool {
	return s == StatusGranted || s == StatusDenied || s == StatusExpired
}

// ParseResolution maps a wire status onto a terminal PermissionStatus.
func ParseResolution(raw string) (PermissionStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "granted", "grant", "allowed", "approve", "approved":
		return StatusGranted, true
	case "denied", "deny", "rejected", "reject":
		return StatusDenied, true
	case "expired", "timeout", "timed_out":
		return StatusExpired, true
	default:
		return "", false
	}
}

// Outcome converts a user decision into the status it resolves to.
func Outcome(granted bool) PermissionStatus {
	if granted {
		return StatusGranted
	}
	return StatusDenied
}

// PermissionRequest is an approval the remote agent is blocked on.
type PermissionRequest struct {
	RequestID string           `json:"request_id"`
	Operation Operation        `json:"operation"`
	RawOp     string           `json:"raw_operation,omitempty"` // wire name when Operation is OpOther
	Details   map[string]any   `json:"details"`
	Status    PermissionStatus `json:"status"`

	// FirstSeen is when this client first learned of the request. Display only.
	FirstSeen time.Time `json:"first_seen"`

	// DecisionPending is true while a decision submission is in flight.
	DecisionPending bool `json:"decision_pending,omitempty"`
	// Decided is set once the collaborator acknowledged a decision.
	Decided *PermissionStatus `json:"decided,omitempty"`
}

// Normalize folds unknown wire operations into OpOther and defaults the status.
func (r PermissionRequest) Normalize() PermissionRequest {
	raw := string(r.Operation)
	r.Operation = ParseOperation(raw)
	if r.Operation == OpOther && raw != string(OpOther) && r.RawOp == "" {
		r.RawOp = raw
	}
	if r.Status == "" {
		r.Status = StatusPending
	}
	return r
}

// OperationName returns the name to show for the request.
func (r PermissionRequest) OperationName() string {
	if r.Operation == OpOther && r.RawOp != "" {
		return r.RawOp
	}
	return string(r.Operation)
}

// DetailString returns a string-valued detail or "".
func (r PermissionRequest) DetailString(key string) string {
	if r.Details == nil {
		return ""
	}
	if s, ok := r.Details[key].(string); ok {
		return s
	}
	return ""
}

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Session Types
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

// PermissionPolicy is forwarded to the collaborator when a session is created.
// The client never enforces it.
type PermissionPolicy struct {
	YoloMode             bool     `json:"yolo_mode" yaml:"yolo_mode"`
	CommandAllowlist     []string `json:"command_allowlist" yaml:"command_allowlist"`
	CommandDenylist      []string `json:"command_denylist" yaml:"command_denylist"`
	DeleteFileProtection bool     `json:"delete_file_protection" yaml:"delete_file_protection"`
}

// SessionContext is fixed for the lifetime of a session.
type SessionContext struct {
	Model         string
	Temperature   float64
	Timeout       int // seconds, enforced by the collaborator
	WorkspacePath string
	Policy        PermissionPolicy
}

// TurnState is the lifecycle of one submitted turn.
type TurnState string

const (
	TurnIdle             TurnState = "idle"
	TurnSending          TurnState = "sending"
	TurnAwaitingStream   TurnState = "awaiting_stream"
	TurnAwaitingResponse TurnState = "awaiting_response"
	TurnCompleted        TurnState = "completed"
	TurnErrored          TurnState = "errored"
)

// InFlight reports whether a turn in state s blocks a new submission.
func (s TurnState) InFlight() bool {
	return s == TurnSending || s == TurnAwaitingStream || s == TurnAwaitingResponse
}

// Attachment is a file sent along with a turn.
type Attachment struct {
	Name        string
	ContentType string
	Data        []byte
}

// TurnResponse is the result of the synchronous turn transport.
type TurnResponse struct {
	Message            string              `json:"message"`
	ToolInvocations    []ToolInvocation    `json:"tool_calls"`
	Thinking           string              `json:"thinking,omitempty"`
	SessionID          string              `json:"session_id"`
	PendingPermissions []PermissionRequest `json:"pending_permissions"`
}

// SessionInfo is the collaborator's view of a session.
type SessionInfo struct {
	SessionID     string         `json:"session_id"`
	Model         string         `json:"model,omitempty"`
	CreatedAt     string         `json:"created_at,omitempty"`
	WorkspacePath string         `json:"workspace_path,omitempty"`
	Extra         map[string]any `json:"-"`
}

// ModelCatalog lists available models grouped by provider.
type ModelCatalog map[string][]string
