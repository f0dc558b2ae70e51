// Package memory provides an in-memory implementation of the storage interface.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/nbalepur/fact-repetition/pkg/fact"
	"github.com/nbalepur/fact-repetition/pkg/storage"
)

// MemoryStorage implements the Storage interface using in-memory maps.
// All entities are deep-copied on the way in and out, so callers can never
// mutate stored state through a retained pointer.
type MemoryStorage struct {
	mu            sync.RWMutex
	users         map[string]*fact.User
	facts         map[string]*fact.Fact
	decisions     map[string]*fact.Decision
	records       map[string]*fact.Record
	userSnapshots map[string]*fact.UserSnapshot // keyed by record id
	factSnapshots map[string]*fact.FactSnapshot // keyed by record id
}

// NewMemoryStorage creates a new in-memory storage instance.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		users:         make(map[string]*fact.User),
		facts:         make(map[string]*fact.Fact),
		decisions:     make(map[string]*fact.Decision),
		records:       make(map[string]*fact.Record),
		userSnapshots: make(map[string]*fact.UserSnapshot),
		factSnapshots: make(map[string]*fact.FactSnapshot),
	}
}

// SaveUser saves a user to memory.
func (m *MemoryStorage) SaveUser(ctx context.Context, u *fact.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u.Clone()
	return nil
}

// GetUser retrieves a user by ID.
func (m *MemoryStorage) GetUser(ctx context.Context, id string) (*fact.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, exists := m.users[id]
	if !exists {
		return nil, &storage.NotFoundError{EntityType: "user", ID: id}
	}
	return u.Clone(), nil
}

// ListUsers returns all users ordered by id.
func (m *MemoryStorage) ListUsers(ctx context.Context) ([]*fact.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*fact.User, 0, len(m.users))
	for _, u := range m.users {
		result = append(result, u.Clone())
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// SaveFact saves a fact to memory.
func (m *MemoryStorage) SaveFact(ctx context.Context, f *fact.Fact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.facts[f.ID] = f.Clone()
	return nil
}

// GetFact retrieves a fact by ID.
func (m *MemoryStorage) GetFact(ctx context.Context, id string) (*fact.Fact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	f, exists := m.facts[id]
	if !exists {
		return nil, &storage.NotFoundError{EntityType: "fact", ID: id}
	}
	return f.Clone(), nil
}

// SaveDecision saves a scheduling decision.
func (m *MemoryStorage) SaveDecision(ctx context.Context, d *fact.Decision) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.decisions[d.ID]; exists {
		return &storage.DuplicateKeyError{EntityType: "decision", ID: d.ID}
	}
	m.decisions[d.ID] = cloneDecision(d)
	return nil
}

// GetDecision retrieves a decision by ID.
func (m *MemoryStorage) GetDecision(ctx context.Context, id string) (*fact.Decision, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	d, exists := m.decisions[id]
	if !exists {
		return nil, &storage.NotFoundError{EntityType: "decision", ID: id}
	}
	return cloneDecision(d), nil
}

// GetRecord retrieves an audit record by ID.
func (m *MemoryStorage) GetRecord(ctx context.Context, id string) (*fact.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, exists := m.records[id]
	if !exists {
		return nil, &storage.NotFoundError{EntityType: "record", ID: id}
	}
	copied := *r
	return &copied, nil
}

// ListRecords lists audit records matching the filter, ordered by date then id.
func (m *MemoryStorage) ListRecords(ctx context.Context, filter *storage.RecordFilter) ([]*fact.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var matched []*fact.Record
	for _, r := range m.records {
		if filter.Matches(r) {
			copied := *r
			matched = append(matched, &copied)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].Date.Equal(matched[j].Date) {
			return matched[i].Date.Before(matched[j].Date)
		}
		return matched[i].ID < matched[j].ID
	})

	if filter != nil && filter.Limit > 0 {
		start := filter.Offset
		end := filter.Offset + filter.Limit
		if start > len(matched) {
			start = len(matched)
		}
		if end > len(matched) {
			end = len(matched)
		}
		matched = matched[start:end]
	}
	return matched, nil
}

// GetUserSnapshot retrieves the user snapshot attached to a record.
func (m *MemoryStorage) GetUserSnapshot(ctx context.Context, recordID string) (*fact.UserSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, exists := m.userSnapshots[recordID]
	if !exists {
		return nil, &storage.NotFoundError{EntityType: "user snapshot", ID: recordID}
	}
	return cloneUserSnapshot(s), nil
}

// GetFactSnapshot retrieves the fact snapshot attached to a record.
func (m *MemoryStorage) GetFactSnapshot(ctx context.Context, recordID string) (*fact.FactSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, exists := m.factSnapshots[recordID]
	if !exists {
		return nil, &storage.NotFoundError{EntityType: "fact snapshot", ID: recordID}
	}
	return cloneFactSnapshot(s), nil
}

// ApplyUpdate commits a response batch. The single mutex makes the commit
// atomic with respect to every other operation.
func (m *MemoryStorage) ApplyUpdate(ctx context.Context, batch *storage.UpdateBatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if batch.Decision != nil {
		if stored, ok := m.decisions[batch.Decision.ID]; ok && stored.ConsumedAt != nil {
			return &storage.DuplicateKeyError{EntityType: "decision", ID: batch.Decision.ID}
		}
	}

	if batch.User != nil {
		m.users[batch.User.ID] = batch.User.Clone()
	}
	for _, f := range batch.Facts {
		m.facts[f.ID] = f.Clone()
	}
	if batch.Decision != nil {
		m.decisions[batch.Decision.ID] = cloneDecision(batch.Decision)
	}
	for _, r := range batch.Records {
		copied := *r
		m.records[r.ID] = &copied
	}
	for _, s := range batch.UserSnapshots {
		m.userSnapshots[s.RecordID] = cloneUserSnapshot(s)
	}
	for _, s := range batch.FactSnapshots {
		m.factSnapshots[s.RecordID] = cloneFactSnapshot(s)
	}
	return nil
}

// Close closes the storage (no-op for memory storage).
func (m *MemoryStorage) Close() error {
	return nil
}

func cloneDecision(d *fact.Decision) *fact.Decision {
	copied := *d
	copied.Order = append([]string(nil), d.Order...)
	if d.Scores != nil {
		copied.Scores = make(map[string]fact.FactorScores, len(d.Scores))
		for k, v := range d.Scores {
			copied.Scores[k] = v
		}
	}
	if d.ConsumedAt != nil {
		t := *d.ConsumedAt
		copied.ConsumedAt = &t
	}
	return &copied
}

func cloneUserSnapshot(s *fact.UserSnapshot) *fact.UserSnapshot {
	copied := *s
	if s.State != nil {
		copied.State = s.State.Clone()
	}
	return &copied
}

func cloneFactSnapshot(s *fact.FactSnapshot) *fact.FactSnapshot {
	copied := *s
	copied.Results = append([]bool(nil), s.Results...)
	return &copied
}
