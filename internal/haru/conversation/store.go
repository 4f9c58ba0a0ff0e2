package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/haru-ai/haru/internal/haru/fault"
)

// StoreConfig holds configuration for the session Store.
type StoreConfig struct {
	// IdleTimeout is the duration of inactivity after which a session is
	// eligible for eviction on the next sweep. Default: 30 minutes.
	IdleTimeout time.Duration
}

// DefaultStoreConfig returns a StoreConfig with the documented defaults.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{IdleTimeout: 30 * time.Minute}
}

// slot pairs a session with its own mutex so turns for the same session
// serialize while turns for different sessions proceed in parallel.
type slot struct {
	mu   sync.Mutex
	sess *Session
}

// Store is the registry of active conversations, keyed by session id.
//
// It enforces a single-writer-per-session discipline: Acquire hands out the
// session under a per-session lock, so two concurrent Advance calls on the
// same session never interleave, while sessions for other users are
// untouched. The registry itself is protected by a separate mutex that is
// never held across a collaborator call.
//
// Store offers no persistence: a process restart loses active sessions.
// That is acceptable: a conversation only becomes durable once it has been
// finished and saved as a diary entry.
type Store struct {
	mu       sync.Mutex
	cfg      StoreConfig
	sessions map[string]*slot
}

// NewStore creates an empty session Store.
func NewStore(cfg StoreConfig) *Store {
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultStoreConfig().IdleTimeout
	}
	return &Store{
		cfg:      cfg,
		sessions: make(map[string]*slot),
	}
}

// Create registers a new active session. The id must not already be in use.
func (st *Store) Create(s *Session) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	if _, exists := st.sessions[s.ID]; exists {
		return fmt.Errorf("session store: duplicate session id %q", s.ID)
	}
	st.sessions[s.ID] = &slot{sess: s}
	return nil
}

// Acquire locks the session for exclusive use and returns it together with
// a release function. The caller owns the session until release is called;
// concurrent Acquire calls for the same id block until then.
//
// Returns fault.ErrNotFound when the id is unknown, including the case
// where the session was dropped while the caller was waiting for the lock.
func (st *Store) Acquire(id string) (*Session, func(), error) {
	st.mu.Lock()
	sl, ok := st.sessions[id]
	st.mu.Unlock()
	if !ok {
		return nil, nil, fmt.Errorf("session %s: %w", id, fault.ErrNotFound)
	}

	sl.mu.Lock()

	// The session may have been dropped while we waited for the slot lock.
	st.mu.Lock()
	cur, ok := st.sessions[id]
	st.mu.Unlock()
	if !ok || cur != sl {
		sl.mu.Unlock()
		return nil, nil, fmt.Errorf("session %s: %w", id, fault.ErrNotFound)
	}

	return sl.sess, func() { sl.mu.Unlock() }, nil
}

// Get returns a snapshot of the session. Mutations to the returned copy do
// not affect the store.
func (st *Store) Get(id string) (*Session, error) {
	s, release, err := st.Acquire(id)
	if err != nil {
		return nil, err
	}
	defer release()
	return s.Clone(), nil
}

// Drop removes the session from the registry. Unknown ids are a no-op.
// Waiters currently blocked in Acquire observe fault.ErrNotFound.
func (st *Store) Drop(id string) {
	st.mu.Lock()
	delete(st.sessions, id)
	st.mu.Unlock()
}

// ListActiveForUser returns snapshots of every active session owned by the
// user, in no particular order.
func (st *Store) ListActiveForUser(userID string) []*Session {
	st.mu.Lock()
	slots := make([]*slot, 0, len(st.sessions))
	for _, sl := range st.sessions {
		slots = append(slots, sl)
	}
	st.mu.Unlock()

	var out []*Session
	for _, sl := range slots {
		sl.mu.Lock()
		if sl.sess.UserID == userID {
			out = append(out, sl.sess.Clone())
		}
		sl.mu.Unlock()
	}
	return out
}

// SweepIdle evicts sessions whose last turn is older than the idle timeout
// relative to now and returns snapshots of the evicted sessions so the
// caller can discard any associated draft. Sessions currently mid-turn are
// skipped and picked up by a later sweep.
func (st *Store) SweepIdle(now time.Time) []*Session {
	st.mu.Lock()
	defer st.mu.Unlock()

	var evicted []*Session
	for id, sl := range st.sessions {
		if !sl.mu.TryLock() {
			continue // busy with a turn right now
		}
		if now.Sub(sl.sess.LastTurnAt) > st.cfg.IdleTimeout {
			evicted = append(evicted, sl.sess.Clone())
			delete(st.sessions, id)
		}
		sl.mu.Unlock()
	}
	return evicted
}

// RunSweeper periodically evicts idle sessions until ctx is cancelled.
// onEvict is invoked once per evicted session; a nil onEvict only logs.
func (st *Store) RunSweeper(ctx context.Context, interval time.Duration, onEvict func(*Session)) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, s := range st.SweepIdle(time.Now()) {
				slog.Info("evicted idle session", "session", s.ID, "user", s.UserID)
				if onEvict != nil {
					onEvict(s)
				}
			}
		}
	}
}
