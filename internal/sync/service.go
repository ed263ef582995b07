package sync

import (
	"context"
	"encoding/json"
	defError "errors"
	"fmt"
	"time"

	"autosave-sync-engine/internal/document"
	"autosave-sync-engine/internal/domain"
	"autosave-sync-engine/internal/errors"
	"autosave-sync-engine/internal/perf"
	"autosave-sync-engine/redis"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const statusCacheTTL = 30 * time.Second

type SyncRequest struct {
	DocumentID string
	Content    json.RawMessage
	Version    int64
	UserID     string
}

// SyncResult is the tagged outcome of a sync attempt. A version conflict
// is a normal result, not an error: Conflict carries the recorded item and
// State stays at the untouched server version.
type SyncResult struct {
	Outcome  document.Outcome
	State    *domain.DocumentState
	Conflict *domain.ConflictItem
}

// StatusResponse summarizes engine state for the dashboard poll.
type StatusResponse struct {
	TotalDocuments      int64      `json:"total_documents"`
	TotalConflicts      int64      `json:"total_conflicts"`
	UnresolvedConflicts int64      `json:"unresolved_conflicts"`
	ActiveUsers         int64      `json:"active_users"`
	LastSync            *time.Time `json:"last_sync"`
}

type Service interface {
	Sync(ctx context.Context, req *SyncRequest) (*SyncResult, error)
	ConflictCheck(ctx context.Context, documentID string) ([]domain.ConflictItem, error)
	ResolveConflict(ctx context.Context, conflictID string, strategy string) (*domain.VersionSnapshot, error)
	Status(ctx context.Context, documentID string) (*StatusResponse, error)
	ConflictHistory(ctx context.Context, documentID string, page, pageSize int) ([]domain.ConflictItem, ConflictsMeta, error)
}

type DefaultService struct {
	documents document.Repository
	conflicts ConflictRepository
	cache     *redis.Cache
	monitor   *perf.Monitor
	now       func() time.Time
}

func NewService(
	documents document.Repository,
	conflicts ConflictRepository,
	cache *redis.Cache,
	monitor *perf.Monitor,
) *DefaultService {
	return &DefaultService{
		documents: documents,
		conflicts: conflicts,
		cache:     cache,
		monitor:   monitor,
		now:       time.Now,
	}
}

// Sync classifies an incoming edit against the store and either applies it
// or records exactly one conflict. The classification and the (non-)write
// happen atomically inside the store; this layer only persists the
// conflict item and bumps the status cache.
func (s *DefaultService) Sync(ctx context.Context, req *SyncRequest) (*SyncResult, error) {
	started := s.now()

	result, err := s.documents.ApplyIfCurrent(ctx, req.DocumentID, req.Version, req.Content, req.UserID)
	if err != nil {
		s.monitor.Record(perf.OpSync, s.now().Sub(started), false)
		return nil, err
	}

	if result.Outcome == document.OutcomeConflict {
		item := &domain.ConflictItem{
			ID:            uuid.NewString(),
			DocumentID:    req.DocumentID,
			Type:          domain.ConflictTypeVersion,
			LocalContent:  req.Content,
			LocalVersion:  req.Version,
			ServerContent: result.Server.Content,
			ServerVersion: result.Server.Version,
			Timestamp:     s.now().UTC(),
			Resolved:      false,
		}
		if err := s.conflicts.Create(ctx, item); err != nil {
			s.monitor.Record(perf.OpSync, s.now().Sub(started), false)
			return nil, err
		}

		s.cache.IncrementVersion(ctx, "sync:status:version")
		s.monitor.Record(perf.OpSync, s.now().Sub(started), true)
		return &SyncResult{Outcome: document.OutcomeConflict, Conflict: item}, nil
	}

	// increase cache key, so any new status fetch sees the write
	s.cache.IncrementVersion(ctx, "sync:status:version")
	s.monitor.Record(perf.OpSync, s.now().Sub(started), true)

	return &SyncResult{Outcome: result.Outcome, State: result.State}, nil
}

func (s *DefaultService) ConflictCheck(ctx context.Context, documentID string) ([]domain.ConflictItem, error) {
	return s.conflicts.ListUnresolved(ctx, documentID)
}

// ResolveConflict applies the chosen strategy and writes the result as the
// new authoritative state, bypassing the normal version check. Resolution
// is a one-shot operation: a second resolve on the same item fails with
// AlreadyResolved and changes nothing.
//
// The merge strategy is a shallow top-level field union with local values
// winning on overlap. Content in this product is a flat option bag; if it
// ever grows nested structure, sibling fields on the server side can be
// lost and this strategy needs product review before changing.
func (s *DefaultService) ResolveConflict(ctx context.Context, conflictID string, strategy string) (*domain.VersionSnapshot, error) {
	started := s.now()

	item, err := s.conflicts.FindByID(ctx, conflictID)
	if err != nil {
		if defError.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.NotFound("Conflict not found", err)
		}
		return nil, err
	}

	if item.Resolved {
		return nil, errors.AlreadyResolved("Conflict already resolved", nil)
	}

	var content json.RawMessage
	var version int64

	switch strategy {
	case domain.ResolutionLocal:
		content = item.LocalContent
		version = item.LocalVersion
	case domain.ResolutionServer:
		content = item.ServerContent
		version = item.ServerVersion
	case domain.ResolutionMerge:
		content, err = s.mergeContents(item.ServerContent, item.LocalContent)
		if err != nil {
			return nil, err
		}
		version = item.LocalVersion
		if item.ServerVersion > version {
			version = item.ServerVersion
		}
		version++
	default:
		return nil, errors.BadRequest(fmt.Sprintf("Unknown resolution strategy %q", strategy), nil)
	}

	// claim the once-only resolved transition before writing; under
	// concurrent resolves only one caller gets past this point
	if err := s.conflicts.MarkResolved(ctx, conflictID, strategy, s.now().UTC()); err != nil {
		if defError.Is(err, ErrAlreadyResolved) {
			return nil, errors.AlreadyResolved("Conflict already resolved", nil)
		}
		s.monitor.Record(perf.OpConflictResolve, s.now().Sub(started), false)
		return nil, err
	}

	if _, err := s.documents.ForceWrite(ctx, item.DocumentID, content, version, ""); err != nil {
		s.monitor.Record(perf.OpConflictResolve, s.now().Sub(started), false)
		return nil, err
	}

	s.cache.IncrementVersion(ctx, "sync:status:version")
	s.monitor.Record(perf.OpConflictResolve, s.now().Sub(started), true)

	return &domain.VersionSnapshot{Content: content, Version: version}, nil
}

func (s *DefaultService) mergeContents(server, local json.RawMessage) (json.RawMessage, error) {
	var serverFields map[string]interface{}
	if err := json.Unmarshal(server, &serverFields); err != nil {
		return nil, errors.UnprocessableEntity("Can't merge non-object server content", err)
	}

	var localFields map[string]interface{}
	if err := json.Unmarshal(local, &localFields); err != nil {
		return nil, errors.UnprocessableEntity("Can't merge non-object local content", err)
	}

	merged := make(map[string]interface{}, len(serverFields)+len(localFields)+1)
	for k, v := range serverFields {
		merged[k] = v
	}
	for k, v := range localFields {
		merged[k] = v
	}
	merged["mergedAt"] = s.now().UTC().Format(time.RFC3339)

	return json.Marshal(merged)
}

func (s *DefaultService) Status(ctx context.Context, documentID string) (*StatusResponse, error) {
	v := s.cache.GetVersion(ctx, "sync:status:version")
	cacheKey := fmt.Sprintf("status:v:%d:doc:%s", v, documentID)

	var cached StatusResponse
	found, _ := s.cache.Get(ctx, cacheKey, &cached)
	if found {
		return &cached, nil
	}

	stats, err := s.documents.Stats(ctx)
	if err != nil {
		return nil, err
	}
	counts, err := s.conflicts.Counts(ctx)
	if err != nil {
		return nil, err
	}

	status := StatusResponse{
		TotalDocuments:      stats.TotalDocuments,
		TotalConflicts:      counts.Total,
		UnresolvedConflicts: counts.Unresolved,
		ActiveUsers:         stats.ActiveUsers,
	}

	if documentID != "" {
		doc, err := s.documents.Find(ctx, documentID)
		if err != nil && !defError.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		if doc != nil {
			status.ActiveUsers = int64(len(doc.ActiveUsers))
			lastSync := doc.LastModified
			status.LastSync = &lastSync
		}
	} else if !stats.LastSync.IsZero() {
		lastSync := stats.LastSync
		status.LastSync = &lastSync
	}

	go s.cache.Set(context.Background(), cacheKey, status, statusCacheTTL)

	return &status, nil
}

func (s *DefaultService) ConflictHistory(ctx context.Context, documentID string, page, pageSize int) ([]domain.ConflictItem, ConflictsMeta, error) {
	return s.conflicts.List(ctx, documentID, page, pageSize)
}
