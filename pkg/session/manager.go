package session

import (
	"context"
	"sync"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"

	"github.com/jingkaihe/skillforge/pkg/logger"
	"github.com/jingkaihe/skillforge/pkg/types/failure"
)

// DefaultMaxSessions bounds the manager when no size is configured
const DefaultMaxSessions = 256

// ErrNotFound is returned for unknown or evicted session ids
var ErrNotFound = errors.New("session not found")

type entry struct {
	mu      sync.Mutex
	session *Session
}

// Manager keeps isolated sessions keyed by id. The least recently used
// session is evicted once the bound is reached.
type Manager struct {
	services *Services
	cache    *lru.Cache[string, *entry]
}

// NewManager creates a manager holding at most size sessions
func NewManager(services *Services, size int) (*Manager, error) {
	if size <= 0 {
		size = DefaultMaxSessions
	}
	cache, err := lru.NewWithEvict[string, *entry](size, func(id string, _ *entry) {
		logger.G(context.Background()).WithField("session", id).Debug("session evicted")
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create session cache")
	}
	return &Manager{services: services, cache: cache}, nil
}

// Create starts a new empty session
func (m *Manager) Create() *Session {
	s := m.services.NewSession(uuid.New().String())
	m.cache.Add(s.ID(), &entry{session: s})
	return s
}

// Get returns the session id without locking it. Use With to operate on it.
func (m *Manager) Get(id string) (*Session, bool) {
	e, ok := m.cache.Get(id)
	if !ok {
		return nil, false
	}
	return e.session, true
}

// Delete drops the session id, reporting whether it existed
func (m *Manager) Delete(id string) bool {
	return m.cache.Remove(id)
}

// Len returns the number of live sessions
func (m *Manager) Len() int {
	return m.cache.Len()
}

// With runs fn on session id while holding that session's lock. Operations
// on different sessions run concurrently.
func (m *Manager) With(id string, fn func(*Session) error) error {
	e, ok := m.cache.Get(id)
	if !ok {
		return failure.Wrap(failure.KindState, "session", ErrNotFound, id)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return fn(e.session)
}
