package autosave

import (
	"context"
	"sort"
	gosync "sync"

	"autosave-sync-engine/internal/domain"

	"gorm.io/gorm"
)

// RecordRepository is the durable append-only event sink for autosave
// records. Records are never updated or deleted.
type RecordRepository interface {
	Append(ctx context.Context, record *domain.AutosaveRecord) error
	CountByDocument(ctx context.Context, guid string) (int64, error)
	Recent(ctx context.Context, guid string, limit int) ([]domain.AutosaveRecord, error)
}

type GormRecordRepository struct {
	db *gorm.DB
}

func NewRecordRepository(db *gorm.DB) *GormRecordRepository {
	return &GormRecordRepository{db: db}
}

func (r *GormRecordRepository) Append(ctx context.Context, record *domain.AutosaveRecord) error {
	return r.db.WithContext(ctx).Create(record).Error
}

func (r *GormRecordRepository) CountByDocument(ctx context.Context, guid string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.AutosaveRecord{}).
		Where("document_guid = ?", guid).
		Count(&count).Error
	return count, err
}

func (r *GormRecordRepository) Recent(ctx context.Context, guid string, limit int) ([]domain.AutosaveRecord, error) {
	var records []domain.AutosaveRecord
	err := r.db.WithContext(ctx).
		Where("document_guid = ?", guid).
		Order("created_at DESC").
		Limit(limit).
		Find(&records).Error
	return records, err
}

// MemoryRecordRepository backs single-node deployments and tests.
type MemoryRecordRepository struct {
	mu      gosync.RWMutex
	records []domain.AutosaveRecord
}

func NewMemoryRecordRepository() *MemoryRecordRepository {
	return &MemoryRecordRepository{}
}

func (r *MemoryRecordRepository) Append(ctx context.Context, record *domain.AutosaveRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, *record)
	return nil
}

func (r *MemoryRecordRepository) CountByDocument(ctx context.Context, guid string) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var count int64
	for _, record := range r.records {
		if record.DocumentGUID == guid {
			count++
		}
	}
	return count, nil
}

func (r *MemoryRecordRepository) Recent(ctx context.Context, guid string, limit int) ([]domain.AutosaveRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []domain.AutosaveRecord
	for _, record := range r.records {
		if record.DocumentGUID == guid {
			matched = append(matched, record)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}
