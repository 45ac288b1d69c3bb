package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"

	"AgentConsole/pkg/console/api"

	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, s api.EventStream) ([]api.StreamEvent, []error) {
	t.Helper()
	var events []api.StreamEvent
	var parseErrs []error
	for {
		ev, err := s.Recv(context.Background())
		if errors.Is(err, io.EOF) {
			return events, parseErrs
		}
		var perr *api.StreamParseError
		if errors.As(err, &perr) {
			parseErrs = append(parseErrs, err)
			continue
		}
		require.NoError(t, err)
		events = append(events, ev)
	}
}

func TestSSEStream_DecodesFrames(t *testing.T) {
	body := strings.Join([]string{
		": keep-alive",
		`data: {"type":"message_start","data":{"message":""}}`,
		"",
		`data: {"type":"permission_request",`,
		`data:  "data":{"request_id":"r1","operation":"delete_file","details":{"target_file":"a.txt"}}}`,
		"",
		"data: {not json}",
		"",
		`data: {"data":{}}`,
		"",
		`data: {"type":"chat_complete","data":{}}`,
	}, "\r\n")

	events, parseErrs := collect(t, newSSEStream(io.NopCloser(strings.NewReader(body))))
	require.Len(t, parseErrs, 2)

	var kinds []api.EventKind
	for _, ev := range events {
		kinds = append(kinds, ev.Type)
	}
	require.Equal(t, []api.EventKind{api.EventMessageStart, api.EventPermissionRequest, api.EventChatComplete}, kinds)
	require.Contains(t, string(events[1].Data), `"request_id":"r1"`)
}

func TestSSEStream_CloseIsIdempotent(t *testing.T) {
	s := newSSEStream(io.NopCloser(strings.NewReader("")))
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	_, err := s.Recv(context.Background())
	require.ErrorIs(t, err, io.EOF)
}

func TestOpenStream(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/chat/stream", r.URL.Path)
		require.Equal(t, "s1", r.URL.Query().Get("session_id"))
		require.Equal(t, "list files & dirs", r.URL.Query().Get("message"))
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"type\":\"message\",\"data\":{\"message\":\"done\"}}\n\n")
		fmt.Fprint(w, "data: {\"type\":\"chat_complete\",\"data\":{}}\n\n")
	})

	s, err := c.OpenStream(context.Background(), "s1", "list files & dirs")
	require.NoError(t, err)
	defer s.Close()

	events, parseErrs := collect(t, s)
	require.Empty(t, parseErrs)
	require.Len(t, events, 2)
	require.Equal(t, api.EventMessage, events[0].Type)
}

func TestOpenStream_NotFound(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"detail":"session not found"}`)
	})

	_, err := c.OpenStream(context.Background(), "nope", "hi")
	var herr *HTTPError
	require.True(t, errors.As(err, &herr))
	require.Equal(t, http.StatusNotFound, herr.StatusCode)
}
