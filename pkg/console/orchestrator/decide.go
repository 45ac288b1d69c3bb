package orchestrator

import (
	"context"
	"time"

	"AgentConsole/pkg/console/api"
	"AgentConsole/pkg/console/ledger"
	"AgentConsole/pkg/console/reconcile"
	"AgentConsole/pkg/logger"
)

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Decisions
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

func (o *Orchestrator) onDecide(in cmdDecide) {
	st := o.st
	if st.sessionID == "" {
		in.reply <- api.ErrNoSession
		return
	}
	if err := st.ledger.BeginDecision(in.requestID); err != nil {
		in.reply <- err
		return
	}
	o.publish(Update{Kind: UpdateLedger})

	logger.Info("orchestrator", "Submitting decision", map[string]interface{}{
		"session_id": st.sessionID,
		"request_id": in.requestID,
		"granted":    in.granted,
	})

	sessionID, gen := st.sessionID, st.gen
	go func() {
		err := o.backend.Decide(o.ctx, sessionID, in.requestID, in.granted)
		o.emit(evDecisionResult{gen: gen, requestID: in.requestID, granted: in.granted, err: err, reply: in.reply})
	}()
}

func (o *Orchestrator) onDecisionResult(in evDecisionResult) {
	st := o.st
	if in.gen != st.gen {
		// The session was replaced while the decision was in flight.
		in.reply <- in.err
		return
	}

	if in.err == nil {
		var seq uint64
		if st.reconciler != nil {
			seq = st.reconciler.LastIssued()
		}
		st.ledger.AckDecision(in.requestID, in.granted, seq)
		logger.Info("orchestrator", "Decision accepted", map[string]interface{}{
			"request_id": in.requestID,
			"granted":    in.granted,
		})
		o.publish(Update{Kind: UpdateLedger})
		in.reply <- nil
		return
	}

	derr := api.ClassifyDecisionError(in.requestID, in.err)
	logger.Warn("orchestrator", "Decision rejected", map[string]interface{}{
		"request_id": in.requestID,
		"kind":       string(derr.Kind),
		"error":      derr.Err,
	})
	if derr.Retryable() {
		st.ledger.AbortDecision(in.requestID)
		o.publish(Update{Kind: UpdateLedger})
	} else if st.ledger.Resolve(in.requestID, api.StatusExpired) {
		// Server-side the request is gone; stop offering it.
		o.publishResolved([]ledger.Resolved{{RequestID: in.requestID, Status: api.StatusExpired}})
		o.publish(Update{Kind: UpdateLedger})
		o.syncPoll()
	}
	o.setError(derr)
	in.reply <- derr
}

func (o *Orchestrator) publishResolved(resolved []ledger.Resolved) {
	for i := range resolved {
		r := resolved[i]
		o.publish(Update{Kind: UpdatePermissionResolved, Resolved: &r})
	}
}

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Reconciliation
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

func (o *Orchestrator) newReconciler(sessionID string) *reconcile.Reconciler {
	var opts []reconcile.Option
	if o.opts.PollTicker != nil {
		opts = append(opts, reconcile.WithTicker(o.opts.PollTicker))
	}
	var r *reconcile.Reconciler
	fetch := func(ctx context.Context) ([]api.PermissionRequest, error) {
		ctx, cancel := context.WithTimeout(ctx, pollTimeout(o.opts.PollInterval))
		defer cancel()
		return o.backend.PendingPermissions(ctx, sessionID)
	}
	deliver := func(ctx context.Context, p reconcile.Poll) {
		select {
		case o.inbox <- evPoll{src: r, poll: p}:
		case <-ctx.Done():
		case <-o.ctx.Done():
		}
	}
	r = reconcile.New(o.opts.PollInterval, fetch, deliver, opts...)
	return r
}

// pollTimeout bounds one fetch so a hung request cannot stall polling.
func pollTimeout(interval time.Duration) time.Duration {
	if interval <= 0 {
		interval = reconcile.DefaultInterval
	}
	if t := 10 * interval; t > 5*time.Second {
		return t
	}
	return 5 * time.Second
}

func (o *Orchestrator) onPoll(in evPoll) {
	st := o.st
	if in.src != st.reconciler || st.reconciler.Stale(in.poll) {
		logger.Debug("orchestrator", "Discarding stale poll", map[string]interface{}{"seq": in.poll.Seq})
		return
	}
	if in.poll.Err != nil {
		// The next tick retries; the push channel may still deliver.
		return
	}

	present := make(map[string]bool, len(in.poll.Requests))
	changed := false
	for _, req := range in.poll.Requests {
		present[req.RequestID] = true
		if !st.ledger.Upsert(req) {
			continue
		}
		changed = true
		stored, _ := st.ledger.Get(req.RequestID)
		logger.Info("orchestrator", "Poll discovered permission request", map[string]interface{}{
			"request_id": req.RequestID,
			"operation":  stored.OperationName(),
		})
		o.publish(Update{Kind: UpdatePermissionRequested, Request: &stored})
	}

	confirmed := st.ledger.ConfirmDecided(in.poll.Seq, present)
	if len(confirmed) > 0 {
		changed = true
		o.publishResolved(confirmed)
	}
	if changed {
		o.publish(Update{Kind: UpdateLedger})
		o.syncPoll()
	}
}
