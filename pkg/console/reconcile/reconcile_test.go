package reconcile

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"AgentConsole/pkg/console/api"

	"github.com/stretchr/testify/require"
)

type manualTicker struct {
	c       chan time.Time
	stopped atomic.Bool
}

func (m *manualTicker) Chan() <-chan time.Time { return m.c }
func (m *manualTicker) Stop()                  { m.stopped.Store(true) }

type tickers struct {
	mu  sync.Mutex
	all []*manualTicker
}

func (ts *tickers) factory(time.Duration) Ticker {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	t := &manualTicker{c: make(chan time.Time)}
	ts.all = append(ts.all, t)
	return t
}

func (ts *tickers) count() int {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return len(ts.all)
}

func (ts *tickers) last() *manualTicker {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.all[len(ts.all)-1]
}

func newManual(t *testing.T, fetch Fetcher) (*Reconciler, *tickers, chan Poll) {
	t.Helper()
	ts := &tickers{}
	polls := make(chan Poll, 16)
	r := New(time.Second, fetch, func(ctx context.Context, p Poll) {
		select {
		case polls <- p:
		case <-ctx.Done():
		}
	}, WithTicker(ts.factory))
	t.Cleanup(r.Stop)
	return r, ts, polls
}

func recvPoll(t *testing.T, polls <-chan Poll) Poll {
	t.Helper()
	select {
	case p := <-polls:
		return p
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for poll")
		return Poll{}
	}
}

func TestSync_NoRequestsWhileInactive(t *testing.T) {
	var calls atomic.Int32
	r, ts, _ := newManual(t, func(context.Context) ([]api.PermissionRequest, error) {
		calls.Add(1)
		return nil, nil
	})

	r.Sync(false)
	require.False(t, r.Active())
	require.Equal(t, 0, ts.count())
	require.Zero(t, calls.Load())
}

func TestSync_OnePollPerTickAndStop(t *testing.T) {
	var calls atomic.Int32
	r, ts, polls := newManual(t, func(context.Context) ([]api.PermissionRequest, error) {
		calls.Add(1)
		return []api.PermissionRequest{{RequestID: "r1"}}, nil
	})

	r.Sync(true)
	r.Sync(true)
	require.Equal(t, 1, ts.count(), "second Sync(true) must not start another ticker")

	tk := ts.last()
	tk.c <- time.Now()
	p1 := recvPoll(t, polls)
	tk.c <- time.Now()
	p2 := recvPoll(t, polls)

	require.Equal(t, uint64(1), p1.Seq)
	require.Equal(t, uint64(2), p2.Seq)
	require.Equal(t, "r1", p2.Requests[0].RequestID)
	require.EqualValues(t, 2, calls.Load())
	require.Equal(t, uint64(2), r.LastIssued())

	r.Sync(false)
	require.True(t, tk.stopped.Load())
	require.False(t, r.Active())

	select {
	case tk.c <- time.Now():
		t.Fatal("stopped reconciler still consumed a tick")
	case <-time.After(20 * time.Millisecond):
	}
	require.EqualValues(t, 2, calls.Load())
	require.True(t, r.Stale(p2))
}

func TestSync_RestartIssuesFreshSequence(t *testing.T) {
	r, ts, polls := newManual(t, func(context.Context) ([]api.PermissionRequest, error) {
		return nil, nil
	})

	r.Sync(true)
	ts.last().c <- time.Now()
	old := recvPoll(t, polls)
	r.Sync(false)

	r.Sync(true)
	require.Equal(t, 2, ts.count())
	ts.last().c <- time.Now()
	fresh := recvPoll(t, polls)

	require.True(t, r.Stale(old))
	require.False(t, r.Stale(fresh))
	require.Greater(t, fresh.Seq, old.Seq)
}

func TestRun_FetchErrorIsDelivered(t *testing.T) {
	boom := errors.New("connection refused")
	r, ts, polls := newManual(t, func(context.Context) ([]api.PermissionRequest, error) {
		return nil, boom
	})

	r.Sync(true)
	ts.last().c <- time.Now()
	p := recvPoll(t, polls)
	require.ErrorIs(t, p.Err, boom)
	require.True(t, r.Active(), "a failed poll does not stop polling")
}

func TestSync_StopCancelsBlockedFetch(t *testing.T) {
	started := make(chan struct{})
	r, ts, _ := newManual(t, func(ctx context.Context) ([]api.PermissionRequest, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})

	r.Sync(true)
	ts.last().c <- time.Now()
	<-started

	stopped := make(chan struct{})
	go func() {
		r.Sync(false)
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Sync(false) did not return while a fetch was blocked")
	}
}

func TestRealTicker_PollsAtInterval(t *testing.T) {
	var calls atomic.Int32
	r := New(10*time.Millisecond, func(context.Context) ([]api.PermissionRequest, error) {
		calls.Add(1)
		return nil, nil
	}, func(context.Context, Poll) {})
	t.Cleanup(r.Stop)

	r.Sync(true)
	require.Eventually(t, func() bool { return calls.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)
	r.Sync(false)

	after := calls.Load()
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, after, calls.Load())
}
