package session

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/aretw0/flux/internal/logging"
	"github.com/aretw0/flux/internal/runtime"
	"github.com/aretw0/flux/pkg/domain"
	"github.com/aretw0/flux/pkg/ports"
)

// DefaultLockTTL bounds how long a distributed session lock is held.
const DefaultLockTTL = 30 * time.Second

// BoardFactory returns the fact store for a new session.
type BoardFactory func(ctx context.Context, sessionID string) (ports.Blackboard, error)

// lockEntry holds the mutex and the reference count.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// Manager orchestrates session access, ensuring safe concurrent operations.
// It uses reference counting to garbage collect unused locks.
type Manager struct {
	engine *runtime.Engine
	boards BoardFactory

	mu       sync.Mutex
	locks    map[string]*lockEntry
	sessions map[string]*runtime.Session

	locker  ports.DistributedLocker
	lockTTL time.Duration
	onClose func(sessionID string)
	logger  *slog.Logger
}

// Option configures the Manager.
type Option func(*Manager)

// WithLocker enables distributed locking.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(m *Manager) {
		m.locker = locker
	}
}

// WithLockTTL sets the expiration of distributed locks.
func WithLockTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.lockTTL = ttl
		}
	}
}

// WithLogger configures a logger for the Manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithOnClose registers a callback run after a session is closed.
func WithOnClose(fn func(sessionID string)) Option {
	return func(m *Manager) {
		m.onClose = fn
	}
}

// NewManager creates a session manager for engine.
func NewManager(engine *runtime.Engine, boards BoardFactory, opts ...Option) *Manager {
	m := &Manager{
		engine:   engine,
		boards:   boards,
		locks:    make(map[string]*lockEntry),
		sessions: make(map[string]*runtime.Session),
		lockTTL:  DefaultLockTTL,
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// acquire gets or creates a lock entry and increments its reference count.
// The caller must lock entry.mu, and call release(sessionID) after unlocking.
func (m *Manager) acquire(sessionID string) *lockEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[sessionID]
	if !exists {
		entry = &lockEntry{}
		m.locks[sessionID] = entry
	}
	entry.refs++
	return entry
}

// release decrements the reference count and deletes the entry if it reaches zero.
func (m *Manager) release(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[sessionID]
	if !exists {
		return
	}
	entry.refs--
	if entry.refs <= 0 {
		delete(m.locks, sessionID)
	}
}

func (m *Manager) lookup(sessionID string) (*runtime.Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	return s, ok
}

// Open returns the session with the given ID, creating and initializing it
// (autostart flows entered) when it does not exist yet.
func (m *Manager) Open(ctx context.Context, sessionID string) (*runtime.Session, error) {
	var out *runtime.Session
	err := m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		if s, ok := m.lookup(sessionID); ok {
			out = s
			return nil
		}
		board, err := m.boards(ctx, sessionID)
		if err != nil {
			return fmt.Errorf("failed to open the board of session %s: %w", sessionID, err)
		}
		s := m.engine.NewSession(sessionID, board)
		if err := s.Init(ctx); err != nil {
			return fmt.Errorf("failed to initialize session %s: %w", sessionID, err)
		}
		m.mu.Lock()
		m.sessions[sessionID] = s
		m.mu.Unlock()
		m.logger.InfoContext(ctx, "session opened", "session_id", sessionID)
		out = s
		return nil
	})
	return out, err
}

// Get returns an open session or domain.ErrSessionNotFound.
func (m *Manager) Get(sessionID string) (*runtime.Session, error) {
	s, ok := m.lookup(sessionID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrSessionNotFound, sessionID)
	}
	return s, nil
}

// WithSession runs fn on an open session while holding its lock.
func (m *Manager) WithSession(ctx context.Context, sessionID string, fn func(context.Context, *runtime.Session) error) error {
	return m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		s, err := m.Get(sessionID)
		if err != nil {
			return err
		}
		return fn(ctx, s)
	})
}

// Close cancels a session and forgets it. Stores exposing Delete(ctx) are cleared.
func (m *Manager) Close(ctx context.Context, sessionID string) error {
	err := m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		s, err := m.Get(sessionID)
		if err != nil {
			return err
		}
		s.Cancel(ctx)
		m.mu.Lock()
		delete(m.sessions, sessionID)
		m.mu.Unlock()

		if d, ok := s.Board().(interface{ Delete(context.Context) error }); ok {
			if err := d.Delete(ctx); err != nil {
				return fmt.Errorf("failed to clear facts of session %s: %w", sessionID, err)
			}
		}
		m.logger.InfoContext(ctx, "session closed", "session_id", sessionID)
		return nil
	})
	if err == nil && m.onClose != nil {
		m.onClose(sessionID)
	}
	return err
}

// List returns the IDs of the open sessions, sorted.
func (m *Manager) List() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Engine returns the engine sessions are created from.
func (m *Manager) Engine() *runtime.Engine { return m.engine }

// WithLock executes a function while holding the lock for the session.
func (m *Manager) WithLock(ctx context.Context, sessionID string, fn func(context.Context) error) error {
	entry := m.acquire(sessionID)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		m.release(sessionID)
	}()

	if m.locker != nil {
		unlock, err := m.locker.Lock(ctx, sessionID, m.lockTTL)
		if err != nil {
			return fmt.Errorf("failed to acquire distributed lock: %w", err)
		}
		defer func() {
			if err := unlock(ctx); err != nil {
				m.logger.Warn("failed to release distributed lock (will expire via TTL)",
					"session_id", sessionID,
					"err", err,
				)
			}
		}()
	}

	return fn(ctx)
}
