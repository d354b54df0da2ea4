// Package agent runs the phone-answering loop: it answers caller
// questions straight from the knowledge base and escalates everything
// else to a human supervisor through the request lifecycle.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/helpline-dev/helpline/internal/store"
	"github.com/helpline-dev/helpline/internal/transport"
)

// interimMessage is what the caller hears when the agent has no answer
// and hands the question off to a supervisor.
const interimMessage = "Let me check with my supervisor and get back to you shortly."

// AnswerSource looks up a stored answer for a question.
// Implemented by kb.Resolver.
type AnswerSource interface {
	Lookup(ctx context.Context, question string) (string, bool, error)
}

// RequestCreator opens a pending help request for an escalated question.
// Implemented by lifecycle.Manager.
type RequestCreator interface {
	Create(ctx context.Context, callID, callerID, question string) (store.HelpRequest, error)
}

// Agent handles incoming calls on a transport.
type Agent struct {
	transport transport.CallTransport
	answers   AnswerSource
	requests  RequestCreator
	logger    *slog.Logger
}

// New creates an Agent.
func New(t transport.CallTransport, answers AnswerSource, requests RequestCreator) *Agent {
	return &Agent{
		transport: t,
		answers:   answers,
		requests:  requests,
		logger:    slog.Default(),
	}
}

// Run answers calls until ctx is cancelled. A failed call is logged and
// never stops the loop.
func (a *Agent) Run(ctx context.Context) {
	for {
		call, err := a.transport.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			a.logger.Error("receiving call failed", "error", err)
			continue
		}
		if err := a.HandleCall(ctx, call); err != nil {
			a.logger.Error("call handling failed", "call_id", call.ID, "error", err)
		}
	}
}

// HandleCall runs one call end to end: look the question up, answer it or
// escalate it, then hang up. The hang-up always runs, even when an
// earlier step failed, so the caller is never left on a dead line.
func (a *Agent) HandleCall(ctx context.Context, call transport.Call) (err error) {
	defer func() {
		if hErr := a.transport.HangUp(ctx, call.ID); hErr != nil {
			a.logger.Warn("hang-up failed", "call_id", call.ID, "error", hErr)
			if err == nil {
				err = fmt.Errorf("hanging up call %s: %w", call.ID, hErr)
			}
		}
	}()

	answer, found, lookupErr := a.answers.Lookup(ctx, call.Question)
	if lookupErr != nil {
		// A broken knowledge store must not break the call. Treat the
		// lookup as a miss so the question still reaches a supervisor.
		a.logger.Error("answer lookup failed, escalating", "call_id", call.ID, "error", lookupErr)
		found = false
	}

	if found {
		a.logger.Info("answered from knowledge base", "call_id", call.ID, "question", call.Question)
		if rErr := a.transport.Respond(ctx, call.ID, answer); rErr != nil {
			return fmt.Errorf("responding on call %s: %w", call.ID, rErr)
		}
		return nil
	}

	if rErr := a.transport.Respond(ctx, call.ID, interimMessage); rErr != nil {
		err = errors.Join(err, fmt.Errorf("responding on call %s: %w", call.ID, rErr))
	}

	req, cErr := a.requests.Create(ctx, call.ID, call.CallerID, call.Question)
	if cErr != nil {
		return errors.Join(err, fmt.Errorf("escalating call %s: %w", call.ID, cErr))
	}
	a.logger.Info("escalated to supervisor", "call_id", call.ID, "request_id", req.ID)
	return err
}
