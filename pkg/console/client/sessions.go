package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"AgentConsole/pkg/console/api"
	"AgentConsole/pkg/logger"
)

type createSessionRequest struct {
	Model            string               `json:"model"`
	Temperature      float64              `json:"temperature"`
	Timeout          int                  `json:"timeout"`
	PermissionConfig api.PermissionPolicy `json:"permission_config"`
	WorkspacePath    string               `json:"workspace_path,omitempty"`
}

type createSessionResponse struct {
	SessionID string `json:"session_id"`
	Model     string `json:"model"`
	CreatedAt string `json:"created_at"`
}

// CreateSession implements api.Backend.
func (c *Client) CreateSession(ctx context.Context, sc api.SessionContext) (string, error) {
	body := createSessionRequest{
		Model:            sc.Model,
		Temperature:      sc.Temperature,
		Timeout:          sc.Timeout,
		PermissionConfig: sc.Policy,
		WorkspacePath:    sc.WorkspacePath,
	}
	if body.PermissionConfig.CommandAllowlist == nil {
		body.PermissionConfig.CommandAllowlist = []string{}
	}
	if body.PermissionConfig.CommandDenylist == nil {
		body.PermissionConfig.CommandDenylist = []string{}
	}

	var out createSessionResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/sessions", body, &out); err != nil {
		return "", &api.SessionCreationError{Reason: "create session", Err: err}
	}
	if out.SessionID == "" {
		return "", &api.SessionCreationError{Reason: "server returned no session_id"}
	}
	logger.Info("client", "Session created", map[string]interface{}{
		"session_id": out.SessionID,
		"model":      out.Model,
	})
	return out.SessionID, nil
}

// GetSession returns what the server knows about a session.
func (c *Client) GetSession(ctx context.Context, sessionID string) (api.SessionInfo, error) {
	var raw map[string]any
	if err := c.doJSON(ctx, http.MethodGet, "/api/sessions/"+url.PathEscape(sessionID), nil, &raw); err != nil {
		return api.SessionInfo{}, err
	}
	info := api.SessionInfo{Extra: map[string]any{}}
	for k, v := range raw {
		s, _ := v.(string)
		switch k {
		case "session_id":
			info.SessionID = s
		case "model":
			info.Model = s
		case "created_at":
			info.CreatedAt = s
		case "workspace_path":
			info.WorkspacePath = s
		default:
			info.Extra[k] = v
		}
	}
	return info, nil
}

// DeleteSession removes a session on the server. Files in its workspace are
// kept by the server.
func (c *Client) DeleteSession(ctx context.Context, sessionID string) error {
	return c.doJSON(ctx, http.MethodDelete, "/api/sessions/"+url.PathEscape(sessionID), nil, nil)
}

// ListModels returns the models the server supports, grouped by provider.
func (c *Client) ListModels(ctx context.Context) (api.ModelCatalog, error) {
	var out struct {
		Models json.RawMessage `json:"models"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/models", nil, &out); err != nil {
		return nil, err
	}
	catalog := api.ModelCatalog{}
	if len(out.Models) == 0 || string(out.Models) == "null" {
		return catalog, nil
	}
	if err := json.Unmarshal(out.Models, &catalog); err != nil {
		return nil, err
	}
	return catalog, nil
}
