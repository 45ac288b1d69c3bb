package client

import (
	"bytes"
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	"AgentConsole/pkg/console/api"
	"AgentConsole/pkg/logger"
)

// PendingPermissions implements api.Backend.
func (c *Client) PendingPermissions(ctx context.Context, sessionID string) ([]api.PermissionRequest, error) {
	var out struct {
		PendingPermissions []api.PermissionRequest `json:"pending_permissions"`
	}
	path := "/api/sessions/" + url.PathEscape(sessionID) + "/permissions"
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.PendingPermissions, nil
}

// Decide implements api.Backend. The status travels as a form field.
func (c *Client) Decide(ctx context.Context, sessionID, requestID string, granted bool) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("status", string(api.Outcome(granted))); err != nil {
		return api.ClassifyDecisionError(requestID, err)
	}
	if err := w.Close(); err != nil {
		return api.ClassifyDecisionError(requestID, err)
	}

	path := "/api/sessions/" + url.PathEscape(sessionID) + "/permissions/" + url.PathEscape(requestID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(path, nil), &buf)
	if err != nil {
		return api.ClassifyDecisionError(requestID, err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	if err := c.do(c.http, req, nil); err != nil {
		derr := classifyDecision(requestID, err)
		logger.Warn("client", "Decision not accepted", map[string]interface{}{
			"request_id": requestID,
			"kind":       string(derr.Kind),
		})
		return derr
	}
	return nil
}

// timeoutMarkers identify an expired request in an error detail.
var timeoutMarkers = []string{"超时", "timed out", "timeout", "expired"}

// classifyDecision maps server rejections onto the decision taxonomy.
// Network failures and 5xx responses stay retryable.
func classifyDecision(requestID string, err error) *api.DecisionSubmissionError {
	var herr *HTTPError
	if !errors.As(err, &herr) {
		return &api.DecisionSubmissionError{RequestID: requestID, Kind: api.DecisionTransient, Err: err}
	}
	kind := api.DecisionTransient
	switch herr.StatusCode {
	case http.StatusBadRequest:
		kind = api.DecisionAlreadyResolved
		detail := strings.ToLower(herr.Detail)
		for _, m := range timeoutMarkers {
			if strings.Contains(detail, m) {
				kind = api.DecisionExpired
				break
			}
		}
	case http.StatusNotFound, http.StatusConflict:
		kind = api.DecisionAlreadyResolved
	case http.StatusGone:
		kind = api.DecisionExpired
	}
	return &api.DecisionSubmissionError{RequestID: requestID, Kind: kind, Err: err}
}
