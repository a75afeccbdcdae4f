package store

import (
	"context"
	"sort"
	"sync"
)

// Memory is a mutex-guarded in-process Store.
type Memory struct {
	mu          sync.RWMutex
	users       map[string]User
	bases       map[string]Base
	investments map[string]int
}

func NewMemory() *Memory {
	return &Memory{
		users:       make(map[string]User),
		bases:       make(map[string]Base),
		investments: make(map[string]int),
	}
}

func (m *Memory) PutUser(user User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[user.ID] = user
}

func (m *Memory) PutBase(base Base) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bases[base.ID] = base
}

// AddInvestment records one more investment in baseID.
func (m *Memory) AddInvestment(baseID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.investments[baseID]++
}

func (m *Memory) UserByID(_ context.Context, id string) (User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	user, ok := m.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return user, nil
}

func (m *Memory) SaveUserBalance(_ context.Context, id string, money float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	user.Money = money
	m.users[id] = user
	return nil
}

// ListBases returns every base ordered by id.
func (m *Memory) ListBases(context.Context) ([]Base, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	bases := make([]Base, 0, len(m.bases))
	for _, base := range m.bases {
		bases = append(bases, base)
	}
	sort.Slice(bases, func(i, j int) bool { return bases[i].ID < bases[j].ID })
	return bases, nil
}

func (m *Memory) CountInvestments(_ context.Context, baseID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.investments[baseID], nil
}

var _ Store = (*Memory)(nil)
