package api

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Validation
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

const (
	ErrCodeInvalidModel       = "invalid_model"
	ErrCodeInvalidTemperature = "invalid_temperature"
	ErrCodeInvalidTimeout     = "invalid_timeout"
	ErrCodePolicyConflict     = "policy_conflict"
)

// PolicyError is a validation failure of a SessionContext or its policy.
type PolicyError struct {
	Code    string
	Message string
}

func (e *PolicyError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Validate checks the constraints the collaborator enforces on session creation.
func (sc SessionContext) Validate() error {
	if strings.TrimSpace(sc.Model) == "" {
		return &PolicyError{Code: ErrCodeInvalidModel, Message: "model is required"}
	}
	if sc.Temperature < 0 || sc.Temperature > 1 {
		return &PolicyError{Code: ErrCodeInvalidTemperature, Message: fmt.Sprintf("temperature %.2f outside [0, 1]", sc.Temperature)}
	}
	if sc.Timeout < 1 {
		return &PolicyError{Code: ErrCodeInvalidTimeout, Message: fmt.Sprintf("timeout %d must be >= 1 second", sc.Timeout)}
	}
	return sc.Policy.Validate()
}

// Validate rejects a command that is both allowed and denied.
func (p PermissionPolicy) Validate() error {
	denied := make(map[string]bool, len(p.CommandDenylist))
	for _, c := range p.CommandDenylist {
		denied[strings.TrimSpace(c)] = true
	}
	for _, c := range p.CommandAllowlist {
		if denied[strings.TrimSpace(c)] {
			return &PolicyError{
				Code:    ErrCodePolicyConflict,
				Message: fmt.Sprintf("command %q is on both the allow-list and the deny-list", c),
			}
		}
	}
	return nil
}

// Normalized trims entries, drops blanks and duplicates.
func (p PermissionPolicy) Normalized() PermissionPolicy {
	p.CommandAllowlist = normalizeList(p.CommandAllowlist)
	p.CommandDenylist = normalizeList(p.CommandDenylist)
	return p
}

func normalizeList(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Presentation Helpers
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

// Summary is a one-line description of what the request would do.
func (r PermissionRequest) Summary() string {
	switch r.Operation {
	case OpCreateFile:
		return "create file " + orUnknown(r.DetailString("file_path"))
	case OpEditFile:
		return "edit file " + orUnknown(r.DetailString("target_file"))
	case OpDeleteFile:
		return "delete file " + orUnknown(r.DetailString("target_file"))
	case OpRunTerminalCommand:
		return "run command " + orUnknown(r.DetailString("command"))
	default:
		return "operation " + r.OperationName()
	}
}

// RiskHint is a display warning for destructive operations. It does not
// decide anything; the collaborator owns safety decisions.
func (r PermissionRequest) RiskHint() string {
	switch r.Operation {
	case OpDeleteFile:
		return "this permanently deletes the file and cannot be undone"
	case OpRunTerminalCommand:
		return "the command runs in the session workspace with your privileges"
	default:
		return ""
	}
}

// DetailsJSON renders details for operations without a dedicated layout.
func (r PermissionRequest) DetailsJSON() string {
	if len(r.Details) == 0 {
		return "{}"
	}
	raw, err := json.MarshalIndent(r.Details, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", r.Details)
	}
	return string(raw)
}

func orUnknown(s string) string {
	if s == "" {
		return "(unknown)"
	}
	return s
}
