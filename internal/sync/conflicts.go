package sync

import (
	"context"
	"errors"
	"sort"
	gosync "sync"
	"time"

	"autosave-sync-engine/internal/domain"

	"gorm.io/gorm"
)

// ErrAlreadyResolved reports a lost claim on a conflict's once-only
// resolved transition.
var ErrAlreadyResolved = errors.New("conflict already resolved")

// ConflictsMeta mirrors the pagination envelope used by the history
// listing.
type ConflictsMeta struct {
	Total       int64 `json:"total"`
	CurrentPage int   `json:"current_page"`
	PerPage     int   `json:"per_page"`
	TotalPage   int   `json:"total_page"`
}

// ConflictCounts summarizes the conflict log for status reporting.
type ConflictCounts struct {
	Total      int64
	Unresolved int64
}

// ConflictRepository is the append-only conflict log. Items are created
// unresolved, marked resolved exactly once, and never deleted.
type ConflictRepository interface {
	Create(ctx context.Context, item *domain.ConflictItem) error
	FindByID(ctx context.Context, id string) (*domain.ConflictItem, error)
	ListUnresolved(ctx context.Context, documentID string) ([]domain.ConflictItem, error)
	List(ctx context.Context, documentID string, page, pageSize int) ([]domain.ConflictItem, ConflictsMeta, error)
	// MarkResolved flips resolved exactly once; a caller that loses the
	// claim gets ErrAlreadyResolved.
	MarkResolved(ctx context.Context, id string, resolution string, at time.Time) error
	Counts(ctx context.Context) (*ConflictCounts, error)
}

type GormConflictRepository struct {
	db *gorm.DB
}

func NewConflictRepository(db *gorm.DB) *GormConflictRepository {
	return &GormConflictRepository{db: db}
}

func (r *GormConflictRepository) Create(ctx context.Context, item *domain.ConflictItem) error {
	return r.db.WithContext(ctx).Create(item).Error
}

func (r *GormConflictRepository) FindByID(ctx context.Context, id string) (*domain.ConflictItem, error) {
	var item domain.ConflictItem
	err := r.db.WithContext(ctx).First(&item, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *GormConflictRepository) ListUnresolved(ctx context.Context, documentID string) ([]domain.ConflictItem, error) {
	var items []domain.ConflictItem
	query := r.db.WithContext(ctx).Where("resolved = ?", false)
	if documentID != "" {
		query = query.Where("document_id = ?", documentID)
	}
	err := query.Order("timestamp ASC").Find(&items).Error
	return items, err
}

func (r *GormConflictRepository) List(ctx context.Context, documentID string, page, pageSize int) ([]domain.ConflictItem, ConflictsMeta, error) {
	var items []domain.ConflictItem
	var total int64

	query := r.db.WithContext(ctx).Model(&domain.ConflictItem{})
	if documentID != "" {
		query = query.Where("document_id = ?", documentID)
	}

	if err := query.Count(&total).Error; err != nil {
		return items, ConflictsMeta{}, err
	}

	offset := (page - 1) * pageSize
	err := query.Order("timestamp DESC").
		Offset(offset).
		Limit(pageSize).
		Find(&items).Error

	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))

	return items, ConflictsMeta{
		Total:       total,
		PerPage:     pageSize,
		TotalPage:   totalPages,
		CurrentPage: page,
	}, err
}

func (r *GormConflictRepository) MarkResolved(ctx context.Context, id string, resolution string, at time.Time) error {
	// compare-and-set on resolved=false so concurrent resolvers can't
	// both claim the item
	res := r.db.WithContext(ctx).Model(&domain.ConflictItem{}).
		Where("id = ? AND resolved = ?", id, false).
		Updates(map[string]interface{}{
			"resolved":    true,
			"resolution":  resolution,
			"resolved_at": at,
		})
	if res.Error != nil {
		return res.Error
	}
	// items are never deleted, so zero rows means a resolver got here first
	if res.RowsAffected == 0 {
		return ErrAlreadyResolved
	}
	return nil
}

func (r *GormConflictRepository) Counts(ctx context.Context) (*ConflictCounts, error) {
	var counts ConflictCounts
	if err := r.db.WithContext(ctx).Model(&domain.ConflictItem{}).Count(&counts.Total).Error; err != nil {
		return nil, err
	}
	if err := r.db.WithContext(ctx).Model(&domain.ConflictItem{}).
		Where("resolved = ?", false).
		Count(&counts.Unresolved).Error; err != nil {
		return nil, err
	}
	return &counts, nil
}

// MemoryConflictRepository backs single-node deployments and tests.
type MemoryConflictRepository struct {
	mu    gosync.RWMutex
	items map[string]*domain.ConflictItem
}

func NewMemoryConflictRepository() *MemoryConflictRepository {
	return &MemoryConflictRepository{items: make(map[string]*domain.ConflictItem)}
}

func (r *MemoryConflictRepository) Create(ctx context.Context, item *domain.ConflictItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := *item
	r.items[item.ID] = &stored
	return nil
}

func (r *MemoryConflictRepository) FindByID(ctx context.Context, id string) (*domain.ConflictItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	item, ok := r.items[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	found := *item
	return &found, nil
}

func (r *MemoryConflictRepository) ListUnresolved(ctx context.Context, documentID string) ([]domain.ConflictItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var items []domain.ConflictItem
	for _, item := range r.items {
		if item.Resolved {
			continue
		}
		if documentID != "" && item.DocumentID != documentID {
			continue
		}
		items = append(items, *item)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Timestamp.Before(items[j].Timestamp) })
	return items, nil
}

func (r *MemoryConflictRepository) List(ctx context.Context, documentID string, page, pageSize int) ([]domain.ConflictItem, ConflictsMeta, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var all []domain.ConflictItem
	for _, item := range r.items {
		if documentID != "" && item.DocumentID != documentID {
			continue
		}
		all = append(all, *item)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Timestamp.After(all[j].Timestamp) })

	total := int64(len(all))
	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))

	start := (page - 1) * pageSize
	if start > len(all) {
		start = len(all)
	}
	end := start + pageSize
	if end > len(all) {
		end = len(all)
	}

	return all[start:end], ConflictsMeta{
		Total:       total,
		PerPage:     pageSize,
		TotalPage:   totalPages,
		CurrentPage: page,
	}, nil
}

func (r *MemoryConflictRepository) MarkResolved(ctx context.Context, id string, resolution string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	if item.Resolved {
		return ErrAlreadyResolved
	}
	item.Resolved = true
	item.Resolution = resolution
	resolvedAt := at
	item.ResolvedAt = &resolvedAt
	return nil
}

func (r *MemoryConflictRepository) Counts(ctx context.Context) (*ConflictCounts, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := &ConflictCounts{Total: int64(len(r.items))}
	for _, item := range r.items {
		if !item.Resolved {
			counts.Unresolved++
		}
	}
	return counts, nil
}
