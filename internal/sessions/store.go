// Package sessions implements the per-agent conversation Session Store.
package sessions

import (
	"context"
	"fmt"
	"sync"

	"github.com/nexuscore/agentrt/pkg/models"
)

// Session is the per-agent conversational state: an ordered message log
// plus a compaction counter. One session per agent name in this runtime;
// gateways that need per-channel scoping layer their own keying on top.
type Session struct {
	AgentName      string
	History        []models.Message
	CompactionCount int
}

// Store maps agent_name to Session. Implementations must guarantee that,
// within a single agent's session, Append preserves append order and
// ReplaceHistory/Append never interleave torn writes.
type Store interface {
	// GetOrCreate returns the session for agentName, creating it (seeded
	// with systemPrompt as the lone system message) on first access.
	GetOrCreate(ctx context.Context, agentName, systemPrompt string) (*Session, error)

	// Append adds a message to the session's history.
	Append(ctx context.Context, agentName string, msg models.Message) error

	// ReplaceHistory overwrites the session's history (compaction only)
	// and increments CompactionCount by exactly 1.
	ReplaceHistory(ctx context.Context, agentName string, history []models.Message) error

	// Clear drops all non-system history for the agent.
	Clear(ctx context.Context, agentName string) error
}

// MemoryStore is the in-process Store implementation: the runtime carries
// no durable persistence (see Non-goals), so every session lives only for
// the process lifetime.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*Session

	locksMu sync.Mutex
	locks   map[string]*sessionLock
}

// NewMemoryStore creates an empty in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*Session),
		locks:    make(map[string]*sessionLock),
	}
}

func (s *MemoryStore) GetOrCreate(_ context.Context, agentName, systemPrompt string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[agentName]
	if !ok {
		sess = &Session{
			AgentName: agentName,
			History:   []models.Message{{Role: models.RoleSystem, Content: systemPrompt}},
		}
		s.sessions[agentName] = sess
		return sess, nil
	}
	if len(sess.History) == 0 {
		sess.History = append(sess.History, models.Message{Role: models.RoleSystem, Content: systemPrompt})
	}
	return sess, nil
}

func (s *MemoryStore) Append(_ context.Context, agentName string, msg models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[agentName]
	if !ok {
		return fmt.Errorf("sessions: unknown agent %q", agentName)
	}
	sess.History = append(sess.History, msg)
	return nil
}

func (s *MemoryStore) ReplaceHistory(_ context.Context, agentName string, history []models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[agentName]
	if !ok {
		return fmt.Errorf("sessions: unknown agent %q", agentName)
	}
	sess.History = history
	sess.CompactionCount++
	return nil
}

func (s *MemoryStore) Clear(_ context.Context, agentName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[agentName]
	if !ok {
		return nil
	}
	var system []models.Message
	if len(sess.History) > 0 && sess.History[0].Role == models.RoleSystem {
		system = sess.History[:1]
	}
	sess.History = append([]models.Message(nil), system...)
	return nil
}

// Delete removes a session entirely, used to clean up ephemeral
// per-invocation sessions (e.g. team composer worker calls) that should
// not linger for the runtime's lifetime.
func (s *MemoryStore) Delete(agentName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, agentName)
}

// sessionLock is a refcounted mutex: the last unlocker for an agent name
// removes the entry so the lock map does not grow unbounded across the
// runtime's lifetime.
type sessionLock struct {
	mu   sync.Mutex
	refs int
}

// Lock acquires the per-agent exclusive lock, serializing concurrent
// send_to/stream_to calls against the same agent while letting calls to
// different agents proceed in parallel. The returned func releases it.
func (s *MemoryStore) Lock(agentName string) func() {
	s.locksMu.Lock()
	lock := s.locks[agentName]
	if lock == nil {
		lock = &sessionLock{}
		s.locks[agentName] = lock
	}
	lock.refs++
	s.locksMu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		s.locksMu.Lock()
		lock.refs--
		if lock.refs <= 0 {
			delete(s.locks, agentName)
		}
		s.locksMu.Unlock()
	}
}
