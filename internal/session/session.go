package session

import (
	"errors"
	"fmt"
	"time"

	"mafia-dossier/internal/flow"
	"mafia-dossier/internal/storage"
)

var (
	ErrNoActiveSession = errors.New("no active session")
	// ErrSessionTimeout is reported once for a session that expired before the
	// user came back. It matches ErrNoActiveSession with errors.Is.
	ErrSessionTimeout = fmt.Errorf("session timed out: %w", ErrNoActiveSession)
)

// Reason explains why a session ended without finalizing.
type Reason string

const (
	ReasonCancelled Reason = "cancelled"
	ReasonTimeout   Reason = "timeout"
	ReasonRestart   Reason = "restart"
	ReasonReplaced  Reason = "replaced"
)

// Session is one user's in-progress dialogue.
type Session struct {
	UserID    int64
	State     flow.State
	CreatedAt time.Time
	ExpiresAt time.Time
}

func (s *Session) expired(now time.Time) bool { return !now.Before(s.ExpiresAt) }

// Snapshot is the persisted form of a session.
type Snapshot struct {
	UserID    int64        `json:"user_id"`
	Partial   flow.Partial `json:"partial"`
	CreatedAt time.Time    `json:"created_at"`
	ExpiresAt time.Time    `json:"expires_at"`
}

func (s *Session) snapshot() Snapshot {
	return Snapshot{UserID: s.UserID, Partial: s.State.Partial(), CreatedAt: s.CreatedAt, ExpiresAt: s.ExpiresAt}
}

// Status is the kind of an Outcome.
type Status int

const (
	Continue Status = iota + 1
	Complete
	Rejected
)

func (s Status) String() string {
	switch s {
	case Continue:
		return "continue"
	case Complete:
		return "complete"
	case Rejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Outcome is the reply to start or advance.
// Continue and Rejected carry the step to present; Rejected also carries Reason.
type Outcome struct {
	Status Status
	Step   flow.StepDef
	Reason error
	Result Result
}

// Result is the product of a completed flow.
type Result struct {
	Flow     flow.Kind
	Nickname string
	// Record is set when a submission was stored.
	Record *storage.Record
	// Text is the listing or narrative of a lookup.
	Text string
	// Empty reports a lookup for a nickname with no history.
	Empty bool
}
