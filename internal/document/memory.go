package document

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"autosave-sync-engine/internal/domain"

	"gorm.io/gorm"
)

// MemoryRepository is the in-process document store, used for single-node
// deployments and tests. Each document carries its own mutex so writes to
// the same document serialize while writes to different documents run in
// parallel; the map lock is only held long enough to find the entry.
type MemoryRepository struct {
	mu      sync.RWMutex
	entries map[string]*memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	mu    sync.Mutex
	state domain.DocumentState
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		entries: make(map[string]*memoryEntry),
		now:     time.Now,
	}
}

func (r *MemoryRepository) entry(id string, create bool) *memoryEntry {
	r.mu.RLock()
	e, ok := r.entries[id]
	r.mu.RUnlock()
	if ok || !create {
		return e
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok = r.entries[id]; ok {
		return e
	}
	e = &memoryEntry{}
	r.entries[id] = e
	return e
}

func (r *MemoryRepository) Find(ctx context.Context, id string) (*domain.DocumentState, error) {
	e := r.entry(id, false)
	if e == nil {
		return nil, gorm.ErrRecordNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state.Version == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	state := cloneState(e.state)
	return &state, nil
}

func (r *MemoryRepository) ApplyIfCurrent(ctx context.Context, id string, clientVersion int64, content json.RawMessage, userID string) (*ApplyResult, error) {
	e := r.entry(id, true)

	e.mu.Lock()
	defer e.mu.Unlock()

	now := r.now().UTC()

	if e.state.Version == 0 {
		e.state = domain.DocumentState{
			ID:           id,
			Content:      cloneContent(content),
			Version:      1,
			LastModified: now,
			ModifiedBy:   userID,
			ActiveUsers:  []string{userID},
		}
		state := cloneState(e.state)
		return &ApplyResult{Outcome: OutcomeCreated, State: &state}, nil
	}

	if clientVersion < e.state.Version {
		server := e.state.Snapshot()
		return &ApplyResult{Outcome: OutcomeConflict, Server: &server}, nil
	}

	e.state.Content = cloneContent(content)
	e.state.Version++
	e.state.LastModified = now
	e.state.ModifiedBy = userID
	if !e.state.HasActiveUser(userID) {
		e.state.ActiveUsers = append(e.state.ActiveUsers, userID)
	}

	state := cloneState(e.state)
	return &ApplyResult{Outcome: OutcomeApplied, State: &state}, nil
}

func (r *MemoryRepository) ForceWrite(ctx context.Context, id string, content json.RawMessage, version int64, userID string) (*domain.DocumentState, error) {
	e := r.entry(id, true)

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state.Version == 0 {
		e.state = domain.DocumentState{ID: id, ActiveUsers: []string{}}
	}

	e.state.Content = cloneContent(content)
	e.state.Version = version
	e.state.LastModified = r.now().UTC()
	if userID != "" {
		e.state.ModifiedBy = userID
		if !e.state.HasActiveUser(userID) {
			e.state.ActiveUsers = append(e.state.ActiveUsers, userID)
		}
	}

	state := cloneState(e.state)
	return &state, nil
}

func (r *MemoryRepository) Stats(ctx context.Context) (*StoreStats, error) {
	r.mu.RLock()
	entries := make([]*memoryEntry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	stats := &StoreStats{}
	users := make(map[string]struct{})

	for _, e := range entries {
		e.mu.Lock()
		if e.state.Version > 0 {
			stats.TotalDocuments++
			for _, u := range e.state.ActiveUsers {
				users[u] = struct{}{}
			}
			if e.state.LastModified.After(stats.LastSync) {
				stats.LastSync = e.state.LastModified
			}
		}
		e.mu.Unlock()
	}

	stats.ActiveUsers = int64(len(users))
	return stats, nil
}

func cloneContent(content json.RawMessage) json.RawMessage {
	c := make(json.RawMessage, len(content))
	copy(c, content)
	return c
}

func cloneState(state domain.DocumentState) domain.DocumentState {
	out := state
	out.Content = cloneContent(state.Content)
	out.ActiveUsers = append([]string(nil), state.ActiveUsers...)
	return out
}
