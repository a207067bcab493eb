// Package call owns the per-pair call session state machine. It routes
// opaque offer/answer payloads between exactly two identities and never
// interprets them. Coupling to the transport is via the Notifier interface
// only.
package call

import (
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/ipsstech/pairtalk/internal/models"
)

var (
	// ErrAlreadyInCall means a non-terminal session already involves one of
	// the participants. The caller sees an immediate busy signal, no ringing.
	ErrAlreadyInCall = errors.New("already in call")

	// ErrNoSuchSession means the session is gone, usually because the other
	// side canceled first. The issuing side must tolerate this silently.
	ErrNoSuchSession = errors.New("no such call session")

	// ErrPeerOffline means the callee had zero live connections; the attempt
	// resolves as missed without ever ringing.
	ErrPeerOffline = errors.New("peer has no live connections")
)

// Notifier delivers an event to every live connection of an identity and
// reports whether at least one received it. Satisfied by ws.Registry.
type Notifier interface {
	Send(identity int64, event string, data any) bool
}

// EndResult describes a terminated session so the caller can persist a call
// record for sessions that reached Active.
type EndResult struct {
	Caller    int64
	Callee    int64
	Other     int64 // the participant to notify
	WasActive bool
	Duration  time.Duration
}

// Manager holds every non-terminal session, at most one per unordered
// identity pair. All transitions happen under one mutex so check-then-create
// races resolve to exactly one session.
type Manager struct {
	notifier Notifier

	mu       sync.Mutex
	sessions map[pairKey]*Session
}

func NewManager(notifier Notifier) *Manager {
	return &Manager{
		notifier: notifier,
		sessions: make(map[pairKey]*Session),
	}
}

// Initiate creates a Ringing session between caller and callee and forwards
// the offer to every live connection of the callee. Fails with
// ErrAlreadyInCall if either participant is mid-call, and with ErrPeerOffline
// (resolving the attempt as Missed) if the callee is unreachable.
func (m *Manager) Initiate(caller, callee int64, offer json.RawMessage, callerName string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, sess := range m.sessions {
		if sess.Caller == caller || sess.Callee == caller || sess.Caller == callee || sess.Callee == callee {
			return nil, ErrAlreadyInCall
		}
	}

	sess := &Session{
		ID:         uuid.New(),
		Caller:     caller,
		Callee:     callee,
		CallerName: callerName,
		Offer:      offer,
		State:      StateRinging,
		CreatedAt:  time.Now(),
	}

	delivered := m.notifier.Send(callee, models.EventIncomingCall, models.IncomingCallPayload{
		Offer:             offer,
		CallerIdentity:    strconv.FormatInt(caller, 10),
		CallerDisplayName: callerName,
	})
	if !delivered {
		// Zero live connections: resolved as Missed synchronously, the
		// session is never stored and never rings.
		sess.State = StateMissed
		return nil, ErrPeerOffline
	}

	m.sessions[keyFor(caller, callee)] = sess
	log.Info().Int64("caller", caller).Int64("callee", callee).Str("session", sess.ID.String()).Msg("call ringing")
	return sess, nil
}

// Accept transitions the callee's ringing session to Active, stamps the start
// time and forwards the answer to the caller.
func (m *Manager) Accept(callee int64, answer json.RawMessage) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess := m.findLocked(func(s *Session) bool {
		return s.Callee == callee && s.State == StateRinging
	})
	if sess == nil {
		return nil, ErrNoSuchSession
	}

	sess.State = StateActive
	sess.StartedAt = time.Now()
	m.notifier.Send(sess.Caller, models.EventCallAccepted, answer)
	log.Info().Int64("caller", sess.Caller).Int64("callee", sess.Callee).Msg("call active")
	return sess, nil
}

// Reject resolves the callee's ringing session as Rejected and notifies the
// caller.
func (m *Manager) Reject(callee int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess := m.findLocked(func(s *Session) bool {
		return s.Callee == callee && s.State == StateRinging
	})
	if sess == nil {
		return ErrNoSuchSession
	}

	sess.State = StateRejected
	delete(m.sessions, keyFor(sess.Caller, sess.Callee))
	m.notifier.Send(sess.Caller, models.EventCallRejected, struct{}{})
	log.Info().Int64("caller", sess.Caller).Int64("callee", sess.Callee).Msg("call rejected")
	return nil
}

// Cancel withdraws the caller's still-ringing call, resolving it as Missed
// and dismissing any incoming-call presentation on the callee side.
func (m *Manager) Cancel(caller int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess := m.findLocked(func(s *Session) bool {
		return s.Caller == caller && s.State == StateRinging
	})
	if sess == nil {
		return ErrNoSuchSession
	}

	sess.State = StateMissed
	delete(m.sessions, keyFor(sess.Caller, sess.Callee))
	m.notifier.Send(sess.Callee, models.EventCallEnded, struct{}{})
	log.Info().Int64("caller", sess.Caller).Int64("callee", sess.Callee).Msg("call canceled")
	return nil
}

// End terminates whatever non-terminal session the identity participates in
// and notifies the other side. Ending a non-existent session is a no-op: both
// sides hanging up near-simultaneously is an expected race, not an error.
func (m *Manager) End(identity int64) (*EndResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.endLocked(identity), nil
}

// DropConnection is the mandatory cleanup path for a participant whose last
// live connection vanished. Idempotent: once the session is discarded, later
// calls find nothing and no second notification is sent.
func (m *Manager) DropConnection(identity int64) *EndResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	res := m.endLocked(identity)
	if res != nil {
		log.Info().Int64("identity", identity).Msg("call torn down after disconnect")
	}
	return res
}

func (m *Manager) endLocked(identity int64) *EndResult {
	sess := m.findLocked(func(s *Session) bool {
		return s.Caller == identity || s.Callee == identity
	})
	if sess == nil {
		return nil
	}

	res := &EndResult{
		Caller: sess.Caller,
		Callee: sess.Callee,
		Other:  sess.other(identity),
	}
	switch {
	case sess.State == StateActive:
		sess.State = StateEnded
		res.WasActive = true
		res.Duration = time.Since(sess.StartedAt)
	case sess.Caller == identity:
		// Caller withdrew while ringing.
		sess.State = StateMissed
	default:
		// Callee went away while ringing.
		sess.State = StateEnded
	}
	delete(m.sessions, keyFor(sess.Caller, sess.Callee))
	m.notifier.Send(res.Other, models.EventCallEnded, struct{}{})
	log.Info().Int64("caller", sess.Caller).Int64("callee", sess.Callee).Str("state", sess.State.String()).Msg("call finished")
	return res
}

// SessionFor returns the non-terminal session between the pair, if any.
func (m *Manager) SessionFor(a, b int64) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[keyFor(a, b)]
	return sess, ok
}

func (m *Manager) findLocked(match func(*Session) bool) *Session {
	for _, sess := range m.sessions {
		if match(sess) {
			return sess
		}
	}
	return nil
}
