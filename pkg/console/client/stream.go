package client

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"AgentConsole/pkg/console/api"
	"AgentConsole/pkg/logger"
)

// OpenStream implements api.Backend. The returned stream is bound to ctx.
func (c *Client) OpenStream(ctx context.Context, sessionID, message string) (api.EventStream, error) {
	q := url.Values{}
	q.Set("session_id", sessionID)
	q.Set("message", message)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("/api/chat/stream", q), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.stream.Do(req)
	if err != nil {
		logger.Error("client", "Failed to open event stream", map[string]interface{}{
			"session_id": sessionID,
			"error":      err,
		})
		return nil, err
	}
	if err := checkStatus(req, resp); err != nil {
		resp.Body.Close()
		return nil, err
	}
	logger.Info("client", "Event stream opened", map[string]interface{}{"session_id": sessionID})
	return newSSEStream(resp.Body), nil
}

// sseStream decodes `data:` frames holding {"type": ..., "data": ...}.
type sseStream struct {
	body   io.ReadCloser
	reader *bufio.Reader

	mu   sync.Mutex
	done bool
}

func newSSEStream(body io.ReadCloser) *sseStream {
	return &sseStream{body: body, reader: bufio.NewReader(body)}
}

func (s *sseStream) Recv(ctx context.Context) (api.StreamEvent, error) {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return api.StreamEvent{}, io.EOF
	}
	s.mu.Unlock()

	var data []string
	for {
		select {
		case <-ctx.Done():
			return api.StreamEvent{}, ctx.Err()
		default:
		}

		line, err := s.reader.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return api.StreamEvent{}, err
		}
		eof := err != nil

		line = strings.TrimRight(line, "\r\n")
		switch {
		case strings.HasPrefix(line, ":"):
			// keep-alive comment
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}

		if eof {
			s.markDone()
			if len(data) > 0 {
				return decodeFrame(strings.Join(data, "\n"))
			}
			return api.StreamEvent{}, io.EOF
		}
		// A blank line ends a frame.
		if line == "" && len(data) > 0 {
			return decodeFrame(strings.Join(data, "\n"))
		}
	}
}

func decodeFrame(payload string) (api.StreamEvent, error) {
	var ev api.StreamEvent
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		logger.Warn("client", "Malformed stream frame", map[string]interface{}{
			"error": err,
			"raw":   truncate(payload, 200),
		})
		return api.StreamEvent{}, &api.StreamParseError{Raw: payload, Err: err}
	}
	if ev.Type == "" {
		return api.StreamEvent{}, &api.StreamParseError{Raw: payload, Err: errors.New("missing event type")}
	}
	logger.Debug("client", "Stream event", map[string]interface{}{"type": string(ev.Type)})
	return ev, nil
}

func (s *sseStream) markDone() {
	s.mu.Lock()
	s.done = true
	s.mu.Unlock()
}

func (s *sseStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.body == nil {
		return nil
	}
	s.done = true
	err := s.body.Close()
	s.body = nil
	return err
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
