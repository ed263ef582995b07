package document

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

// TestApplyIfCurrent_CreatesAtVersionOne tests first write to an unknown
// document
func TestApplyIfCurrent_CreatesAtVersionOne(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	result, err := repo.ApplyIfCurrent(ctx, "doc-1", 0, json.RawMessage(`{"title":"new"}`), "user-1")
	assert.NoError(t, err)
	assert.Equal(t, OutcomeCreated, result.Outcome)
	assert.Equal(t, int64(1), result.State.Version)
	assert.Equal(t, "user-1", result.State.ModifiedBy)
	assert.Contains(t, result.State.ActiveUsers, "user-1")
}

// TestApplyIfCurrent_CleanUpdate tests a write whose base version matches
func TestApplyIfCurrent_CleanUpdate(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	_, err := repo.ApplyIfCurrent(ctx, "doc-1", 0, json.RawMessage(`{"v":1}`), "user-1")
	assert.NoError(t, err)

	result, err := repo.ApplyIfCurrent(ctx, "doc-1", 1, json.RawMessage(`{"v":2}`), "user-2")
	assert.NoError(t, err)
	assert.Equal(t, OutcomeApplied, result.Outcome)
	assert.Equal(t, int64(2), result.State.Version)
	assert.Equal(t, "user-2", result.State.ModifiedBy)
	assert.ElementsMatch(t, []string{"user-1", "user-2"}, result.State.ActiveUsers)
}

// TestApplyIfCurrent_StaleWriteLeavesState tests that a conflicting write
// changes nothing and returns the server snapshot
func TestApplyIfCurrent_StaleWriteLeavesState(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	_, _ = repo.ApplyIfCurrent(ctx, "doc-1", 0, json.RawMessage(`{"v":1}`), "user-1")
	_, _ = repo.ApplyIfCurrent(ctx, "doc-1", 1, json.RawMessage(`{"v":2}`), "user-1")

	// base version 1 is now stale
	result, err := repo.ApplyIfCurrent(ctx, "doc-1", 1, json.RawMessage(`{"v":"late"}`), "user-2")
	assert.NoError(t, err)
	assert.Equal(t, OutcomeConflict, result.Outcome)
	assert.Nil(t, result.State)
	assert.Equal(t, int64(2), result.Server.Version)
	assert.JSONEq(t, `{"v":2}`, string(result.Server.Content))

	// nothing was written
	state, err := repo.Find(ctx, "doc-1")
	assert.NoError(t, err)
	assert.Equal(t, int64(2), state.Version)
	assert.JSONEq(t, `{"v":2}`, string(state.Content))
	assert.Equal(t, "user-1", state.ModifiedBy)
}

// TestApplyIfCurrent_EqualVersionsIsClean tests that a base version equal
// to the stored version is accepted
func TestApplyIfCurrent_EqualVersionsIsClean(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	_, _ = repo.ApplyIfCurrent(ctx, "doc-1", 0, json.RawMessage(`{"v":1}`), "user-1")

	result, err := repo.ApplyIfCurrent(ctx, "doc-1", 1, json.RawMessage(`{"v":2}`), "user-1")
	assert.NoError(t, err)
	assert.Equal(t, OutcomeApplied, result.Outcome)
}

// TestFind_UnknownDocument tests the not-found path
func TestFind_UnknownDocument(t *testing.T) {
	repo := NewMemoryRepository()

	_, err := repo.Find(context.Background(), "missing")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

// TestForceWrite_SetsExactVersion tests the resolver's bypass path
func TestForceWrite_SetsExactVersion(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	_, _ = repo.ApplyIfCurrent(ctx, "doc-1", 0, json.RawMessage(`{"v":1}`), "user-1")

	state, err := repo.ForceWrite(ctx, "doc-1", json.RawMessage(`{"v":"resolved"}`), 7, "")
	assert.NoError(t, err)
	assert.Equal(t, int64(7), state.Version)
	// resolver writes keep the last editor's attribution
	assert.Equal(t, "user-1", state.ModifiedBy)
}

// TestApplyIfCurrent_ConcurrentWritersOneWinner tests that concurrent
// writes against the same base version admit exactly one winner
func TestApplyIfCurrent_ConcurrentWritersOneWinner(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	_, _ = repo.ApplyIfCurrent(ctx, "doc-1", 0, json.RawMessage(`{"v":0}`), "seed")

	const writers = 16
	var wg sync.WaitGroup
	outcomes := make([]Outcome, writers)

	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			content := json.RawMessage(fmt.Sprintf(`{"writer":%d}`, i))
			result, err := repo.ApplyIfCurrent(ctx, "doc-1", 1, content, fmt.Sprintf("user-%d", i))
			assert.NoError(t, err)
			outcomes[i] = result.Outcome
		}(i)
	}
	wg.Wait()

	applied := 0
	for _, o := range outcomes {
		if o == OutcomeApplied {
			applied++
		}
	}
	assert.Equal(t, 1, applied)

	state, err := repo.Find(ctx, "doc-1")
	assert.NoError(t, err)
	assert.Equal(t, int64(2), state.Version)
}

// TestApplyIfCurrent_ConcurrentCreatesClassify tests that concurrent
// first-writes to the same new document all classify cleanly: exactly one
// creates, the rest come back as conflicts, and none error
func TestApplyIfCurrent_ConcurrentCreatesClassify(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	const writers = 8
	var wg sync.WaitGroup
	outcomes := make([]Outcome, writers)

	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			content := json.RawMessage(fmt.Sprintf(`{"writer":%d}`, i))
			result, err := repo.ApplyIfCurrent(ctx, "fresh-doc", 0, content, fmt.Sprintf("user-%d", i))
			assert.NoError(t, err)
			outcomes[i] = result.Outcome
		}(i)
	}
	wg.Wait()

	created, conflicted := 0, 0
	for _, o := range outcomes {
		switch o {
		case OutcomeCreated:
			created++
		case OutcomeConflict:
			conflicted++
		}
	}
	assert.Equal(t, 1, created)
	assert.Equal(t, writers-1, conflicted)

	state, err := repo.Find(ctx, "fresh-doc")
	assert.NoError(t, err)
	assert.Equal(t, int64(1), state.Version)
}

// TestMemoryRepository_SnapshotIsolation tests that returned state cannot
// be mutated through the caller's copy
func TestMemoryRepository_SnapshotIsolation(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	result, _ := repo.ApplyIfCurrent(ctx, "doc-1", 0, json.RawMessage(`{"v":1}`), "user-1")
	result.State.Content[1] = 'X'
	result.State.ActiveUsers[0] = "mutated"

	state, err := repo.Find(ctx, "doc-1")
	assert.NoError(t, err)
	assert.JSONEq(t, `{"v":1}`, string(state.Content))
	assert.Equal(t, []string{"user-1"}, state.ActiveUsers)
}

// TestStats tests document and user aggregation across entries
func TestStats(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	_, _ = repo.ApplyIfCurrent(ctx, "doc-1", 0, json.RawMessage(`{}`), "user-1")
	_, _ = repo.ApplyIfCurrent(ctx, "doc-2", 0, json.RawMessage(`{}`), "user-1")
	_, _ = repo.ApplyIfCurrent(ctx, "doc-2", 1, json.RawMessage(`{}`), "user-2")

	stats, err := repo.Stats(ctx)
	assert.NoError(t, err)
	assert.Equal(t, int64(2), stats.TotalDocuments)
	assert.Equal(t, int64(2), stats.ActiveUsers)
	assert.False(t, stats.LastSync.IsZero())
}
