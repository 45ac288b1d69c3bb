package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"AgentConsole/cmd/ui"
	"AgentConsole/pkg/console/api"
	"AgentConsole/pkg/console/orchestrator"
	"AgentConsole/pkg/logger"
)

const maxDecisionAttempts = 3

// chatSession drives one interactive conversation on top of the orchestrator.
type chatSession struct {
	orch     *orchestrator.Orchestrator
	approver *ui.Approver
	printer  *transcriptPrinter

	prompted    map[string]bool
	attempts    map[string]int
	allowAll    bool
	lastWarning string
}

func newChatSession(orch *orchestrator.Orchestrator) *chatSession {
	return &chatSession{
		orch:     orch,
		approver: ui.NewApprover(),
		printer:  newTranscriptPrinter(func(s string) { ui.Print(s) }),
		prompted: make(map[string]bool),
		attempts: make(map[string]int),
	}
}

// resetForSession clears per-session state after a new session starts.
func (s *chatSession) resetForSession() {
	s.printer.reset()
	s.prompted = make(map[string]bool)
	s.attempts = make(map[string]int)
	s.allowAll = false
	s.lastWarning = ""
}

type turnOutcome struct {
	result orchestrator.TurnResult
	err    error
}

// runTurn submits one message and follows it to the end, prompting for every
// permission request that shows up on the way. submitted is false when the
// orchestrator refused the turn.
func (s *chatSession) runTurn(ctx context.Context, text string, atts []api.Attachment) (submitted bool, err error) {
	ref, err := s.orch.SubmitTurn(ctx, text, atts...)
	if err != nil {
		return false, err
	}
	logger.Debug("cli", "turn submitted", map[string]interface{}{"turn_ref": ref, "attachments": len(atts)})

	done := make(chan turnOutcome, 1)
	go func() {
		r, err := s.orch.Wait(ctx, ref)
		done <- turnOutcome{result: r, err: err}
	}()

	label := "Thinking..."
	if len(atts) > 0 {
		label = "Uploading and waiting for the agent..."
	}
	spin := ui.StartLoading(label)
	abort := func() {
		if ok, err := s.orch.Abort(ctx); err == nil && ok {
			logger.Info("cli", "turn aborted", map[string]interface{}{"turn_ref": ref})
		}
	}
	stopMonitor := monitorAbort(ctx, abort)
	s.printer.onWrite = func() { spin.Stop() }
	defer func() {
		spin.Stop()
		stopMonitor()
		s.printer.onWrite = nil
	}()

	var outcome *turnOutcome
	for {
		v := s.orch.Snapshot()
		s.printer.render(v.Turns)
		s.showNotices(v, spin)

		if req, ok := s.nextUndecided(v); ok {
			spin.Stop()
			stopMonitor()
			s.decide(ctx, req)
			if outcome == nil {
				spin = ui.StartLoading("Continuing...")
				stopMonitor = monitorAbort(ctx, abort)
			}
			continue
		}
		if outcome != nil {
			break
		}

		select {
		case _, ok := <-s.orch.Updates():
			if !ok {
				return true, api.ErrClosed
			}
		case o := <-done:
			outcome = &o
		case <-ctx.Done():
			return true, ctx.Err()
		}
	}

	ui.Print("\n")
	if outcome.err != nil {
		return true, outcome.err
	}
	if outcome.result.State == api.TurnErrored {
		return true, outcome.result.Err
	}
	return true, nil
}

func (s *chatSession) showNotices(v orchestrator.View, spin *ui.Spinner) {
	if v.Warning != "" && v.Warning != s.lastWarning {
		spin.Stop()
		ui.Warnf("%s", v.Warning)
	}
	s.lastWarning = v.Warning
}

// nextUndecided returns the first pending request nobody has answered yet.
func (s *chatSession) nextUndecided(v orchestrator.View) (api.PermissionRequest, bool) {
	for _, r := range v.Pending {
		if r.Status != api.StatusPending || r.DecisionPending || r.Decided != nil {
			continue
		}
		if s.prompted[r.RequestID] {
			continue
		}
		return r, true
	}
	return api.PermissionRequest{}, false
}

// decide asks the user about req and submits the answer.
func (s *chatSession) decide(ctx context.Context, req api.PermissionRequest) {
	s.prompted[req.RequestID] = true
	s.attempts[req.RequestID]++

	choice := ui.ChoiceAllow
	if !s.allowAll {
		var err error
		choice, err = s.approver.Prompt(ctx, req)
		if err != nil {
			logger.Warn("cli", "permission prompt failed", map[string]interface{}{"request_id": req.RequestID, "err": err.Error()})
			if ctx.Err() != nil {
				return
			}
		}
	} else {
		ui.Infof("Auto-allowing %s (%s)", req.Summary(), req.RequestID)
	}
	if choice == ui.ChoiceAllowAll {
		s.allowAll = true
	}

	err := s.orch.Decide(ctx, req.RequestID, choice.Granted())
	s.reportDecision(req, err)
}

func (s *chatSession) reportDecision(req api.PermissionRequest, err error) {
	if err == nil {
		return
	}
	var derr *api.DecisionSubmissionError
	switch {
	case errors.As(err, &derr) && derr.Retryable():
		if s.attempts[req.RequestID] < maxDecisionAttempts {
			ui.Warnf("Could not send the decision (%v); asking again.", derr.Err)
			delete(s.prompted, req.RequestID)
			return
		}
		ui.Errorf("Giving up on %s after %d attempts: %v. Use /pending to retry.", req.RequestID, maxDecisionAttempts, derr.Err)
	case errors.As(err, &derr):
		ui.Warnf("Request %s is no longer waiting (%s).", req.RequestID, derr.Kind)
	case errors.Is(err, api.ErrUnknownRequest), errors.Is(err, api.ErrAlreadyDecided):
		ui.Infof("Request %s was already settled.", req.RequestID)
	default:
		ui.Errorf("Decision failed: %v", err)
	}
}

// reviewPending shows every outstanding request and prompts for the ones
// that are still undecided, including ones skipped earlier.
func (s *chatSession) reviewPending(ctx context.Context) {
	v := s.orch.Snapshot()
	if len(v.Pending) == 0 {
		ui.Infof("No pending permission requests.")
		return
	}
	now := time.Now()
	for _, r := range v.Pending {
		state := "waiting"
		switch {
		case r.DecisionPending:
			state = "sending decision"
		case r.Decided != nil:
			state = fmt.Sprintf("%s, awaiting confirmation", *r.Decided)
		}
		ui.Printf("  %s  %-40s  %s  (%s)\n", r.RequestID, r.Summary(), state, now.Sub(r.FirstSeen).Truncate(time.Second))
	}
	for _, r := range v.Pending {
		if r.Status == api.StatusPending && !r.DecisionPending && r.Decided == nil {
			delete(s.prompted, r.RequestID)
			delete(s.attempts, r.RequestID)
		}
	}
	for {
		req, ok := s.nextUndecided(s.orch.Snapshot())
		if !ok {
			return
		}
		s.decide(ctx, req)
	}
}
