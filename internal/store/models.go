package store

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrNotPending is returned by ResolveHelpRequest when the target request
// does not exist or is no longer pending. Callers cannot distinguish the
// two cases and do not need to: either way the resolution did not happen
// here, and the request was not mutated.
var ErrNotPending = errors.New("help request missing or not pending")

// Status is the lifecycle state of a help request.
type Status string

const (
	// StatusPending is the initial state: waiting for a supervisor answer.
	StatusPending Status = "pending"
	// StatusResolved is terminal: a supervisor answered.
	StatusResolved Status = "resolved"
	// StatusUnresolved is terminal: the request timed out before an answer.
	StatusUnresolved Status = "unresolved"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusResolved, StatusUnresolved:
		return true
	}
	return false
}

// HelpRequest is a caller question escalated to a human supervisor.
// ResolvedAt and SupervisorAnswer are set exactly once, on the transition
// into StatusResolved, and are zero otherwise.
type HelpRequest struct {
	ID               string    `json:"id"`
	CallID           string    `json:"callId"`
	CallerID         string    `json:"callerId"`
	Question         string    `json:"question"`
	Status           Status    `json:"status"`
	CreatedAt        time.Time `json:"createdAt"`
	ResolvedAt       time.Time `json:"resolvedAt,omitzero"`
	SupervisorAnswer string    `json:"supervisorAnswer,omitempty"`
}

// KnowledgeBaseEntry is a cached question/answer pair reusable by the agent.
// At most one entry exists per distinct question, compared case-insensitively.
type KnowledgeBaseEntry struct {
	ID        string    `json:"id"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
