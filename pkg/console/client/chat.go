package client

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"

	"AgentConsole/pkg/console/api"
	"AgentConsole/pkg/logger"
)

type chatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

// SendTurn implements api.Backend. Attachments switch the body to multipart.
func (c *Client) SendTurn(ctx context.Context, sessionID, message string, attachments []api.Attachment) (api.TurnResponse, error) {
	var out api.TurnResponse
	logger.Info("client", "Sending turn", map[string]interface{}{
		"session_id":  sessionID,
		"attachments": len(attachments),
	})
	if len(attachments) == 0 {
		err := c.doJSON(ctx, http.MethodPost, "/api/chat", chatRequest{SessionID: sessionID, Message: message}, &out)
		return out, err
	}

	body, contentType, err := chatForm(sessionID, message, attachments)
	if err != nil {
		return out, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/api/chat", nil), body)
	if err != nil {
		return out, err
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	err = c.do(c.http, req, &out)
	return out, err
}

func chatForm(sessionID, message string, attachments []api.Attachment) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("session_id", sessionID); err != nil {
		return nil, "", err
	}
	if err := w.WriteField("message", message); err != nil {
		return nil, "", err
	}
	for _, a := range attachments {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="files"; filename=%q`, a.Name))
		ct := a.ContentType
		if ct == "" {
			ct = http.DetectContentType(a.Data)
		}
		h.Set("Content-Type", ct)
		part, err := w.CreatePart(h)
		if err != nil {
			return nil, "", err
		}
		if _, err := part.Write(a.Data); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}
