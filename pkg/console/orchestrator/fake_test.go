package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"AgentConsole/pkg/console/api"
	"AgentConsole/pkg/console/reconcile"
)

type streamItem struct {
	ev  api.StreamEvent
	err error
}

// fakeStream hands out whatever the test pushes.
type fakeStream struct {
	items  chan streamItem
	closed chan struct{}
	once   sync.Once
}

func newFakeStream() *fakeStream {
	return &fakeStream{items: make(chan streamItem), closed: make(chan struct{})}
}

func (s *fakeStream) Recv(ctx context.Context) (api.StreamEvent, error) {
	select {
	case it := <-s.items:
		return it.ev, it.err
	case <-s.closed:
		return api.StreamEvent{}, errors.New("stream closed")
	case <-ctx.Done():
		return api.StreamEvent{}, ctx.Err()
	}
}

func (s *fakeStream) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

func (s *fakeStream) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

func (s *fakeStream) push(kind api.EventKind, payload any) {
	s.items <- streamItem{ev: api.NewStreamEvent(kind, payload)}
}

func (s *fakeStream) pushErr(err error) {
	s.items <- streamItem{err: err}
}

type decision struct {
	requestID string
	granted   bool
}

type sendCall struct {
	message     string
	attachments []api.Attachment
}

// fakeBackend records calls and lets tests script responses.
type fakeBackend struct {
	mu sync.Mutex

	createErr error
	created   []api.SessionContext

	streams   chan *fakeStream
	openErr   error
	openCount atomic.Int32
	messages  []string

	sendResp  api.TurnResponse
	sendErr   error
	sendBlock chan struct{}
	sends     []sendCall

	pending    []api.PermissionRequest
	pollBlock  chan struct{}
	pollCount  atomic.Int32
	decideErrs []error
	decisions  []decision
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{streams: make(chan *fakeStream, 4)}
}

func (b *fakeBackend) CreateSession(_ context.Context, sc api.SessionContext) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.createErr != nil {
		return "", b.createErr
	}
	b.created = append(b.created, sc)
	return fmt.Sprintf("sess-%d", len(b.created)), nil
}

func (b *fakeBackend) SendTurn(ctx context.Context, _ string, message string, atts []api.Attachment) (api.TurnResponse, error) {
	b.mu.Lock()
	b.sends = append(b.sends, sendCall{message: message, attachments: atts})
	block, resp, err := b.sendBlock, b.sendResp, b.sendErr
	b.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return api.TurnResponse{}, ctx.Err()
		}
	}
	return resp, err
}

func (b *fakeBackend) OpenStream(_ context.Context, _ string, message string) (api.EventStream, error) {
	b.openCount.Add(1)
	b.mu.Lock()
	b.messages = append(b.messages, message)
	err := b.openErr
	b.mu.Unlock()
	if err != nil {
		return nil, err
	}
	s := newFakeStream()
	b.streams <- s
	return s, nil
}

func (b *fakeBackend) PendingPermissions(ctx context.Context, _ string) ([]api.PermissionRequest, error) {
	b.mu.Lock()
	snapshot := append([]api.PermissionRequest(nil), b.pending...)
	block := b.pollBlock
	b.mu.Unlock()
	b.pollCount.Add(1)
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return snapshot, nil
}

// holdPolls makes later polls wait until the returned func is called or the
// poll is canceled.
func (b *fakeBackend) holdPolls() (release func()) {
	ch := make(chan struct{})
	b.mu.Lock()
	b.pollBlock = ch
	b.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(ch) }) }
}

func (b *fakeBackend) Decide(_ context.Context, _ string, requestID string, granted bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.decisions = append(b.decisions, decision{requestID: requestID, granted: granted})
	if len(b.decideErrs) > 0 {
		err := b.decideErrs[0]
		b.decideErrs = b.decideErrs[1:]
		return err
	}
	return nil
}

func (b *fakeBackend) setPending(reqs ...api.PermissionRequest) {
	b.mu.Lock()
	b.pending = reqs
	b.mu.Unlock()
}

func (b *fakeBackend) decisionsMade() []decision {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]decision(nil), b.decisions...)
}

// manualTicker fires only when the test says so.
type manualTicker struct {
	c       chan time.Time
	stopped atomic.Bool
}

func (m *manualTicker) Chan() <-chan time.Time { return m.c }
func (m *manualTicker) Stop()                  { m.stopped.Store(true) }

type tickerSet struct {
	mu  sync.Mutex
	all []*manualTicker
}

func (ts *tickerSet) factory(time.Duration) reconcile.Ticker {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	t := &manualTicker{c: make(chan time.Time)}
	ts.all = append(ts.all, t)
	return t
}

func (ts *tickerSet) count() int {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return len(ts.all)
}

func (ts *tickerSet) last() *manualTicker {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.all[len(ts.all)-1]
}
