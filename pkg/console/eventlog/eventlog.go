// Package eventlog captures the push channel of every turn to one JSONL file
// per session, so a conversation can be inspected after the fact.
package eventlog

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"AgentConsole/pkg/console/api"
	"AgentConsole/pkg/logger"
)

var ErrInvalidSessionID = errors.New("invalid session id")

// Kinds recorded in addition to the pushed event kinds.
const (
	KindTurnStart api.EventKind = "turn_start"
	KindMalformed api.EventKind = "malformed"
	KindEnd       api.EventKind = "end"
)

// Record is one line of a session log.
type Record struct {
	Ts        time.Time       `json:"ts"`
	SessionID string          `json:"session_id"`
	Kind      api.EventKind   `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Note      string          `json:"note,omitempty"`
}

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Log
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

// Log stores records under baseDir/<session>.jsonl.
type Log struct {
	baseDir string
	now     func() time.Time
	mu      sync.Mutex
}

// Open creates baseDir if needed.
func Open(baseDir string) (*Log, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("create event log directory: %w", err)
	}
	return &Log{baseDir: baseDir, now: time.Now}, nil
}

// path rejects ids that would leave baseDir.
func (l *Log) path(sessionID string) (string, error) {
	if sessionID == "" || strings.ContainsAny(sessionID, `/\`) || sessionID == "." || sessionID == ".." {
		return "", fmt.Errorf("%w: %q", ErrInvalidSessionID, sessionID)
	}
	p := filepath.Join(l.baseDir, sessionID+".jsonl")
	absPath, err := filepath.Abs(p)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidSessionID, err)
	}
	absBase, err := filepath.Abs(l.baseDir)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidSessionID, err)
	}
	if filepath.Dir(absPath) != absBase {
		return "", fmt.Errorf("%w: %q", ErrInvalidSessionID, sessionID)
	}
	return p, nil
}

// Append writes one record, stamping it when Ts is zero.
func (l *Log) Append(rec Record) error {
	p, err := l.path(rec.SessionID)
	if err != nil {
		return err
	}
	if rec.Ts.IsZero() {
		rec.Ts = l.now()
	}
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(p, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open event log: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append record: %w", err)
	}
	return nil
}

// Records reads a session log in order. A missing log is empty. Corrupt
// lines are skipped.
func (l *Log) Records(sessionID string) ([]Record, error) {
	p, err := l.path(sessionID)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}
	defer f.Close()

	var out []Record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var rec Record
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			continue
		}
		out = append(out, rec)
	}
	if err := scanner.Err(); err != nil {
		return out, fmt.Errorf("scan event log: %w", err)
	}
	return out, nil
}

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Recording Backend
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

// Recorder is an api.Backend whose streams are copied into a Log. Failing
// writes are logged and never affect the turn.
type Recorder struct {
	api.Backend
	log *Log
}

var _ api.Backend = (*Recorder)(nil)

// Wrap records every stream b opens.
func Wrap(b api.Backend, log *Log) *Recorder {
	return &Recorder{Backend: b, log: log}
}

func (r *Recorder) OpenStream(ctx context.Context, sessionID, message string) (api.EventStream, error) {
	r.append(Record{SessionID: sessionID, Kind: KindTurnStart, Note: message})
	s, err := r.Backend.OpenStream(ctx, sessionID, message)
	if err != nil {
		r.append(Record{SessionID: sessionID, Kind: KindEnd, Note: err.Error()})
		return nil, err
	}
	return &recordingStream{inner: s, rec: r, sessionID: sessionID}, nil
}

func (r *Recorder) append(rec Record) {
	if err := r.log.Append(rec); err != nil {
		logger.Warn("eventlog", "record dropped", map[string]interface{}{
			"session_id": rec.SessionID,
			"type":       string(rec.Kind),
			"err":        err.Error(),
		})
	}
}

type recordingStream struct {
	inner     api.EventStream
	rec       *Recorder
	sessionID string
	endOnce   sync.Once
}

func (s *recordingStream) Recv(ctx context.Context) (api.StreamEvent, error) {
	ev, err := s.inner.Recv(ctx)
	var perr *api.StreamParseError
	switch {
	case err == nil:
		s.rec.append(Record{SessionID: s.sessionID, Kind: ev.Type, Data: ev.Data})
	case errors.As(err, &perr):
		s.rec.append(Record{SessionID: s.sessionID, Kind: KindMalformed, Note: perr.Raw})
	case errors.Is(err, io.EOF):
		s.end("eof")
	case ctx.Err() == nil:
		s.end(err.Error())
	}
	return ev, err
}

func (s *recordingStream) Close() error {
	s.end("closed")
	return s.inner.Close()
}

func (s *recordingStream) end(note string) {
	s.endOnce.Do(func() {
		s.rec.append(Record{SessionID: s.sessionID, Kind: KindEnd, Note: note})
	})
}
