package engine

import (
	"context"
	"sync"
	"time"

	"github.com/celerix-dev/celerix-attendance/pkg/schema"
)

// FlushObserver is told how long each flush took and whether it failed.
type FlushObserver func(d time.Duration, err error)

// MemStore is the in-memory session store. When it has a persister, every
// mutation is flushed to disk before it becomes visible.
type MemStore struct {
	mu        sync.RWMutex
	order     []string // users in first-seen order
	data      map[string][]schema.Session
	persister *Persistence
	observe   FlushObserver
}

// NewMemStore initializes a store from previously loaded state (see
// Persistence.LoadSessions). A nil persister keeps everything in memory.
func NewMemStore(order []string, data map[string][]schema.Session, p *Persistence) *MemStore {
	if data == nil {
		data = make(map[string][]schema.Session)
	}
	o := make([]string, 0, len(data))
	for _, userID := range order {
		if _, ok := data[userID]; ok {
			o = append(o, userID)
		}
	}
	return &MemStore{
		order:     o,
		data:      data,
		persister: p,
	}
}

// OnFlush registers an observer for flush timings.
func (m *MemStore) OnFlush(fn FlushObserver) {
	m.mu.Lock()
	m.observe = fn
	m.mu.Unlock()
}

func (m *MemStore) Get(_ context.Context, userID string) ([]schema.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sessions := m.data[userID]
	out := make([]schema.Session, len(sessions))
	copy(out, sessions)
	return out, nil
}

func (m *MemStore) AllUsers(_ context.Context) ([]schema.UserSessions, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]schema.UserSessions, 0, len(m.order))
	for _, userID := range m.order {
		sessions := make([]schema.Session, len(m.data[userID]))
		copy(sessions, m.data[userID])
		out = append(out, schema.UserSessions{UserID: userID, Sessions: sessions})
	}
	return out, nil
}

func (m *MemStore) AppendOpenSession(_ context.Context, userID string, startedAt time.Time, display string) (schema.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	next, s, err := appendOpen(m.data[userID], startedAt, display)
	if err != nil {
		return schema.Session{}, err
	}
	if err := m.commit(userID, next); err != nil {
		return schema.Session{}, err
	}
	return s, nil
}

func (m *MemStore) CloseLastSession(_ context.Context, userID string, endedAt time.Time, display string) (schema.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	next, s, err := closeLast(m.data[userID], endedAt, display)
	if err != nil {
		return schema.Session{}, err
	}
	if err := m.commit(userID, next); err != nil {
		return schema.Session{}, err
	}
	return s, nil
}

// commit installs next as the user's sessions and flushes the whole mapping.
// If the flush fails the previous state is restored.
// It MUST be called while holding m.mu.Lock.
func (m *MemStore) commit(userID string, next []schema.Session) error {
	prev, existed := m.data[userID]
	m.data[userID] = next
	if !existed {
		m.order = append(m.order, userID)
	}

	if m.persister == nil {
		return nil
	}

	start := time.Now()
	err := m.persister.SaveSessions(m.order, m.data)
	if m.observe != nil {
		m.observe(time.Since(start), err)
	}
	if err != nil {
		if existed {
			m.data[userID] = prev
		} else {
			delete(m.data, userID)
			m.order = m.order[:len(m.order)-1]
		}
		return err
	}
	return nil
}
