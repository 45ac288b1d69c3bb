// Package reconcile runs the fallback poll of the authoritative pending set.
//
// The Reconciler only produces Poll results; merging them into the ledger is
// the caller's job. It runs while the caller reports an active ledger and
// stops as soon as the caller reports it empty.
package reconcile

import (
	"context"
	"sync"
	"time"

	"AgentConsole/pkg/console/api"
	"AgentConsole/pkg/logger"
)

// DefaultInterval is the poll period.
const DefaultInterval = time.Second

// Fetcher returns the authoritative pending set.
type Fetcher func(ctx context.Context) ([]api.PermissionRequest, error)

// Poll is the outcome of one fetch.
type Poll struct {
	Seq      uint64
	Requests []api.PermissionRequest
	Err      error
}

// Ticker is the part of time.Ticker the Reconciler uses.
type Ticker interface {
	Chan() <-chan time.Time
	Stop()
}

type realTicker struct{ t *time.Ticker }

func (r realTicker) Chan() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()                  { r.t.Stop() }

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithTicker replaces the ticker factory.
func WithTicker(newTicker func(time.Duration) Ticker) Option {
	return func(r *Reconciler) {
		if newTicker != nil {
			r.newTicker = newTicker
		}
	}
}

// Reconciler polls on a fixed interval while active.
type Reconciler struct {
	interval  time.Duration
	fetch     Fetcher
	deliver   func(context.Context, Poll)
	newTicker func(time.Duration) Ticker

	mu     sync.Mutex
	seq    uint64 // last issued
	floor  uint64 // polls with Seq <= floor were issued before the last stop
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a stopped Reconciler. deliver must return promptly once its
// context is canceled.
func New(interval time.Duration, fetch Fetcher, deliver func(context.Context, Poll), opts ...Option) *Reconciler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	r := &Reconciler{
		interval: interval,
		fetch:    fetch,
		deliver:  deliver,
		newTicker: func(d time.Duration) Ticker {
			return realTicker{t: time.NewTicker(d)}
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Sync starts or stops polling. It is a no-op when already in that state.
// Stopping waits for the poll goroutine to exit, so no fetch is issued after
// Sync(false) returns.
func (r *Reconciler) Sync(active bool) {
	r.mu.Lock()
	running := r.cancel != nil
	if active == running {
		r.mu.Unlock()
		return
	}
	if active {
		ctx, cancel := context.WithCancel(context.Background())
		r.cancel = cancel
		r.done = make(chan struct{})
		ticker := r.newTicker(r.interval)
		go r.run(ctx, ticker, r.done)
		r.mu.Unlock()
		logger.Debug("reconcile", "Poll started", map[string]interface{}{"interval": r.interval.String()})
		return
	}

	cancel, done := r.cancel, r.done
	r.cancel, r.done = nil, nil
	r.mu.Unlock()

	cancel()
	<-done

	r.mu.Lock()
	r.floor = r.seq
	r.mu.Unlock()
	logger.Debug("reconcile", "Poll stopped", map[string]interface{}{"last_seq": r.floor})
}

// Stop is Sync(false).
func (r *Reconciler) Stop() { r.Sync(false) }

// Active reports whether polling is running.
func (r *Reconciler) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cancel != nil
}

// LastIssued returns the sequence number of the most recently issued poll.
func (r *Reconciler) LastIssued() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.seq
}

// Stale reports whether p was issued before the last stop.
func (r *Reconciler) Stale(p Poll) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return p.Seq <= r.floor
}

func (r *Reconciler) run(ctx context.Context, ticker Ticker, done chan struct{}) {
	defer close(done)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
		}

		r.mu.Lock()
		r.seq++
		seq := r.seq
		r.mu.Unlock()

		reqs, err := r.fetch(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			logger.Warn("reconcile", "Poll failed", map[string]interface{}{
				"seq":   seq,
				"error": err,
			})
		}
		r.deliver(ctx, Poll{Seq: seq, Requests: reqs, Err: err})
	}
}
