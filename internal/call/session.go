package call

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// State is the lifecycle of one call attempt. Ringing and Active are the only
// non-terminal states; every terminal state discards the session.
type State int

const (
	StateIdle State = iota
	StateRinging
	StateActive
	StateEnded
	StateRejected
	StateMissed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRinging:
		return "ringing"
	case StateActive:
		return "active"
	case StateEnded:
		return "ended"
	case StateRejected:
		return "rejected"
	case StateMissed:
		return "missed"
	default:
		return "unknown"
	}
}

// Session is one call attempt between two identities. The offer blob is
// opaque: the manager routes it and never looks inside.
type Session struct {
	ID         uuid.UUID
	Caller     int64
	Callee     int64
	CallerName string
	Offer      json.RawMessage
	State      State
	CreatedAt  time.Time
	// StartedAt is stamped on the Ringing -> Active transition and is the
	// authoritative base for call duration. Client-side timers are not
	// trusted for the persisted call record.
	StartedAt time.Time
}

// pairKey is the unordered identity pair a session is keyed by.
type pairKey struct {
	low, high int64
}

func keyFor(a, b int64) pairKey {
	if a > b {
		return pairKey{low: b, high: a}
	}
	return pairKey{low: a, high: b}
}

// other returns the session participant that is not id.
func (s *Session) other(id int64) int64 {
	if s.Caller == id {
		return s.Callee
	}
	return s.Caller
}
