package dialogue

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// ErrSessionNotFound is returned when no session exists for a call id.
var ErrSessionNotFound = errors.New("dialogue session not found")

// Registry maps call ids to live sessions. Its mutex only guards map and
// snapshot bookkeeping and is never held by callers; turn ordering within a
// call is provided separately by Lock.
type Registry struct {
	now func() time.Time

	mu       sync.Mutex
	sessions map[string]*Snapshot
	locks    map[string]*callLock
}

type callLock struct {
	mu   sync.Mutex
	refs int
}

// RegistryOpts holds parameters for creating a Registry.
type RegistryOpts struct {
	Now func() time.Time // defaults to time.Now
}

// NewRegistry creates an empty Registry.
func NewRegistry(opts RegistryOpts) *Registry {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Registry{
		now:      now,
		sessions: make(map[string]*Snapshot),
		locks:    make(map[string]*callLock),
	}
}

// Lock serializes work on one call. Different calls never block each other.
// The returned function releases the lock and is safe to call more than once.
func (r *Registry) Lock(callID string) (unlock func()) {
	r.mu.Lock()
	l, ok := r.locks[callID]
	if !ok {
		l = &callLock{}
		r.locks[callID] = l
	}
	l.refs++
	r.mu.Unlock()

	l.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Unlock()
			r.mu.Lock()
			l.refs--
			if l.refs == 0 {
				delete(r.locks, callID)
			}
			r.mu.Unlock()
		})
	}
}

// GetOrCreate returns the session for callID, creating it from bctx when
// absent. An existing session keeps its original context.
func (r *Registry) GetOrCreate(callID string, bctx BookingContext) Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[callID]; ok {
		return s.clone()
	}
	now := r.now()
	s := &Snapshot{
		CallID:       callID,
		Context:      bctx,
		CreatedAt:    now,
		LastActivity: now,
	}
	r.sessions[callID] = s
	return s.clone()
}

// Restore inserts a previously saved snapshot when no session exists for its
// call id, and returns whichever session is now registered.
func (r *Registry) Restore(snap Snapshot) Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[snap.CallID]; ok {
		return s.clone()
	}
	s := snap.clone()
	s.LastActivity = r.now()
	r.sessions[snap.CallID] = &s
	return s.clone()
}

// Get returns the session for callID.
func (r *Registry) Get(callID string) (Snapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[callID]
	if !ok {
		return Snapshot{}, false
	}
	return s.clone(), true
}

// AppendTurn adds a turn to the session transcript.
func (r *Registry) AppendTurn(callID string, role Role, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[callID]
	if !ok {
		return fmt.Errorf("dialogue: append turn to %s: %w", callID, ErrSessionNotFound)
	}
	now := r.now()
	s.Turns = append(s.Turns, Turn{Role: role, Text: text, At: now})
	s.LastActivity = now
	return nil
}

// Touch refreshes the session's last-activity time. Unknown ids are ignored.
func (r *Registry) Touch(callID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[callID]; ok {
		s.LastActivity = r.now()
	}
}

// MarkTerminated flags the session as ended. Unknown ids are ignored.
func (r *Registry) MarkTerminated(callID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[callID]; ok {
		s.Terminated = true
	}
}

// Discard removes the session. Unknown ids are ignored.
func (r *Registry) Discard(callID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, callID)
}

// Remember records the response sent for a turn webhook carrying token.
func (r *Registry) Remember(callID, token, payload string) {
	if token == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[callID]; ok {
		s.LastToken = token
		s.LastPayload = payload
	}
}

// Replay returns the response previously sent for token, if the most recent
// turn webhook for callID carried it.
func (r *Registry) Replay(callID, token string) (string, bool) {
	if token == "" {
		return "", false
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[callID]
	if !ok || s.LastToken != token {
		return "", false
	}
	return s.LastPayload, true
}

// Idle returns the call ids whose last activity is older than olderThan,
// sorted.
func (r *Registry) Idle(olderThan time.Duration) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-olderThan)
	var ids []string
	for id, s := range r.sessions {
		if s.LastActivity.Before(cutoff) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
