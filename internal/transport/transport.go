// Package transport abstracts the call provider the agent answers on.
// Production would plug a real telephony backend in here; the Simulator
// fabricates front-desk calls for local runs and demos.
package transport

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/google/uuid"
)

// Call is one incoming caller question.
type Call struct {
	ID       string `json:"id"`
	CallerID string `json:"callerId"`
	Question string `json:"question"`
}

// CallTransport is the call-provider contract the agent consumes.
type CallTransport interface {
	// Receive blocks until the next incoming call (or ctx is done).
	Receive(ctx context.Context) (Call, error)
	// Respond speaks text on an active call.
	Respond(ctx context.Context, callID, text string) error
	// HangUp terminates an active call.
	HangUp(ctx context.Context, callID string) error
}

var sampleQuestions = []string{
	"What are your hours?",
	"Do you offer haircuts?",
	"Can I book an appointment for next Tuesday?",
	"How much is a color treatment?",
	"Where are you located?",
	"Do you do perms?",
}

// Simulator fabricates incoming salon calls at a fixed interval.
type Simulator struct {
	interval time.Duration
	rng      *rand.Rand
	logger   *slog.Logger
}

// NewSimulator creates a Simulator producing a call every interval.
// Intervals <= 0 default to 5 seconds.
func NewSimulator(interval time.Duration) *Simulator {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Simulator{
		interval: interval,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		logger:   slog.Default(),
	}
}

func (s *Simulator) Receive(ctx context.Context) (Call, error) {
	select {
	case <-ctx.Done():
		return Call{}, ctx.Err()
	case <-time.After(s.interval):
	}

	call := Call{
		ID:       uuid.New().String(),
		CallerID: fmt.Sprintf("555-123-%04d", s.rng.Intn(10000)),
		Question: sampleQuestions[s.rng.Intn(len(sampleQuestions))],
	}
	s.logger.Info("simulated call received", "call_id", call.ID, "caller_id", call.CallerID, "question", call.Question)
	return call, nil
}

func (s *Simulator) Respond(ctx context.Context, callID, text string) error {
	s.logger.Info("simulated response", "call_id", callID, "text", text)
	return nil
}

func (s *Simulator) HangUp(ctx context.Context, callID string) error {
	s.logger.Info("simulated hang-up", "call_id", callID)
	return nil
}
