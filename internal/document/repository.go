package document

import (
	"context"
	"encoding/json"
	defError "errors"
	"time"

	"autosave-sync-engine/internal/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Classification of a write attempt against the store's current version.
type Outcome int

const (
	OutcomeCreated Outcome = iota // no state existed, document created at version 1
	OutcomeApplied                // clean update, version incremented by 1
	OutcomeConflict               // client base version is stale, nothing written
)

// ApplyResult carries the post-write state for Created/Applied, or the
// server snapshot captured at detection time for Conflict.
type ApplyResult struct {
	Outcome Outcome
	State   *domain.DocumentState
	Server  *domain.VersionSnapshot
}

// StoreStats summarizes the store for status reporting.
type StoreStats struct {
	TotalDocuments int64
	ActiveUsers    int64
	LastSync       time.Time
}

// Repository is the Document State Store. ApplyIfCurrent classifies and
// applies (or refuses) a write in one atomic step: a stale write is never
// applied, and two concurrent clean writes to the same document can't both
// observe the same pre-update version. Writes to different documents do
// not contend.
type Repository interface {
	Find(ctx context.Context, id string) (*domain.DocumentState, error)
	ApplyIfCurrent(ctx context.Context, id string, clientVersion int64, content json.RawMessage, userID string) (*ApplyResult, error)
	// ForceWrite bypasses the version check; only the conflict resolver
	// may call it, since resolution is itself the authority.
	ForceWrite(ctx context.Context, id string, content json.RawMessage, version int64, userID string) (*domain.DocumentState, error)
	Stats(ctx context.Context) (*StoreStats, error)
}

type GormRepository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewRepository creates a postgres-backed document store
func NewRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db, now: time.Now}
}

func (r *GormRepository) Find(ctx context.Context, id string) (*domain.DocumentState, error) {
	var state domain.DocumentState
	err := r.db.WithContext(ctx).First(&state, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &state, nil
}

func (r *GormRepository) ApplyIfCurrent(ctx context.Context, id string, clientVersion int64, content json.RawMessage, userID string) (*ApplyResult, error) {
	result, err := r.applyIfCurrent(ctx, id, clientVersion, content, userID)
	if defError.Is(err, gorm.ErrDuplicatedKey) {
		// FOR UPDATE takes no lock on a missing row, so two first-writes
		// can both enter the create arm; the loser reclassifies against
		// the row the winner committed
		return r.applyIfCurrent(ctx, id, clientVersion, content, userID)
	}
	return result, err
}

func (r *GormRepository) applyIfCurrent(ctx context.Context, id string, clientVersion int64, content json.RawMessage, userID string) (*ApplyResult, error) {
	var result ApplyResult

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := r.now().UTC()

		var state domain.DocumentState
		// row lock serializes concurrent writes per document
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&state, "id = ?", id).Error

		if defError.Is(err, gorm.ErrRecordNotFound) {
			state = domain.DocumentState{
				ID:           id,
				Content:      content,
				Version:      1,
				LastModified: now,
				ModifiedBy:   userID,
				ActiveUsers:  []string{userID},
			}
			if err := tx.Create(&state).Error; err != nil {
				return err
			}
			result = ApplyResult{Outcome: OutcomeCreated, State: &state}
			return nil
		}
		if err != nil {
			return err
		}

		// only strictly older client versions are stale; an equal base
		// version is allowed to proceed
		if clientVersion < state.Version {
			server := state.Snapshot()
			result = ApplyResult{Outcome: OutcomeConflict, Server: &server}
			return nil
		}

		state.Content = content
		state.Version++
		state.LastModified = now
		state.ModifiedBy = userID
		if !state.HasActiveUser(userID) {
			state.ActiveUsers = append(state.ActiveUsers, userID)
		}

		if err := tx.Save(&state).Error; err != nil {
			return err
		}
		result = ApplyResult{Outcome: OutcomeApplied, State: &state}
		return nil
	})

	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (r *GormRepository) ForceWrite(ctx context.Context, id string, content json.RawMessage, version int64, userID string) (*domain.DocumentState, error) {
	var written domain.DocumentState

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := r.now().UTC()

		var state domain.DocumentState
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&state, "id = ?", id).Error

		if defError.Is(err, gorm.ErrRecordNotFound) {
			state = domain.DocumentState{
				ID:          id,
				ActiveUsers: []string{},
			}
		} else if err != nil {
			return err
		}

		state.Content = content
		state.Version = version
		state.LastModified = now
		if userID != "" {
			state.ModifiedBy = userID
			if !state.HasActiveUser(userID) {
				state.ActiveUsers = append(state.ActiveUsers, userID)
			}
		}

		if err := tx.Save(&state).Error; err != nil {
			return err
		}
		written = state
		return nil
	})

	if err != nil {
		return nil, err
	}
	return &written, nil
}

func (r *GormRepository) Stats(ctx context.Context) (*StoreStats, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&domain.DocumentState{}).Count(&total).Error; err != nil {
		return nil, err
	}

	// active_users is a JSON column, so the distinct union happens here
	// rather than in SQL
	var states []domain.DocumentState
	if err := r.db.WithContext(ctx).
		Select("active_users", "last_modified").
		Find(&states).Error; err != nil {
		return nil, err
	}

	users := make(map[string]struct{})
	var lastSync time.Time
	for _, s := range states {
		for _, u := range s.ActiveUsers {
			users[u] = struct{}{}
		}
		if s.LastModified.After(lastSync) {
			lastSync = s.LastModified
		}
	}

	return &StoreStats{
		TotalDocuments: total,
		ActiveUsers:    int64(len(users)),
		LastSync:       lastSync,
	}, nil
}
