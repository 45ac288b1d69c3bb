package router

import (
	"fmt"

	"AgentConsole/pkg/console/api"
)

// PermissionRequestedMarker is appended when a request is first announced.
func PermissionRequestedMarker(req api.PermissionRequest) string {
	return fmt.Sprintf("\n\n🔒 Permission requested: %s. Waiting for your decision...", req.Summary())
}

// ResolvedMarker is appended when the collaborator confirms a resolution.
func ResolvedMarker(outcome api.PermissionStatus) string {
	switch outcome {
	case api.StatusGranted:
		return "\n\n✅ Permission granted, continuing..."
	case api.StatusDenied:
		return "\n\n⛔ Permission denied, the operation was not performed."
	default:
		return TimeoutMarker()
	}
}

// TimeoutMarker is appended when a request expires.
func TimeoutMarker() string {
	return "\n\n⏰ Permission request timed out; the operation was denied."
}

// AwaitingPermissionContent stands in for an empty reply that left requests
// pending.
func AwaitingPermissionContent() string {
	return "Waiting for permission confirmation. Review the request above and allow or deny it..."
}

// AbortedMarker is appended when the user stops a streamed turn.
func AbortedMarker() string {
	return "\n\n⏹ Stopped by user."
}

// ErrorContent replaces the content of a failed turn.
func ErrorContent(msg string) string {
	return "Error: " + msg
}
