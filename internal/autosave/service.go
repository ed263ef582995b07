package autosave

import (
	"context"
	"log"
	gosync "sync"
	"time"

	"autosave-sync-engine/internal/compression"
	"autosave-sync-engine/internal/document"
	"autosave-sync-engine/internal/domain"
	"autosave-sync-engine/internal/errors"
	"autosave-sync-engine/internal/integrity"
	"autosave-sync-engine/internal/perf"
	syncpkg "autosave-sync-engine/internal/sync"
	"autosave-sync-engine/internal/worker"

	"github.com/google/uuid"
)

// Conflict status reported on every enhanced save.
const (
	ConflictStatusNone    = "none"
	ConflictStatusPending = "pending"  // unresolved conflicts exist for this document
	ConflictStatusStale   = "conflict" // this save itself lost a version race
)

// highFrequencyChanges is the per-save change count treated as sustained
// rapid editing; highFrequencyStreak saves in a row at or above it shrink
// the advisory interval.
const (
	highFrequencyChanges = 10
	highFrequencyStreak  = 3
)

// Intervals bounds the advisory autosave cadence handed to clients.
type Intervals struct {
	Base time.Duration
	Min  time.Duration
	Max  time.Duration
}

type SaveRequest struct {
	GUID         string
	SessionID    string
	Payload      []byte
	ContentHash  string
	ChangeType   string
	ChangeCount  int
	IsCompressed bool
	Metadata     map[string]string
	UserID       string
}

type SaveResponse struct {
	GUID             string
	SessionID        string
	SavedAt          time.Time
	Version          int64
	SaveCount        int64
	NextSaveIn       time.Duration
	CompressionRatio float64
	ResponseTime     time.Duration
	ConflictStatus   string
	Success          bool
}

type Service interface {
	EnhancedSave(ctx context.Context, req *SaveRequest) (*SaveResponse, error)
	NextInterval(guid string) time.Duration
}

// docCounters is per-document session bookkeeping. Counters only move
// forward; they are incremented exactly once per accepted save.
type docCounters struct {
	saveCount int64
	rapidRuns int
}

// Tracker maintains per-document save counters, appends one immutable
// AutosaveRecord per attempt, and derives the client's next recommended
// save interval.
type Tracker struct {
	documents document.Repository
	records   RecordRepository
	conflicts syncpkg.ConflictRepository
	pool      *worker.WorkerPool
	monitor   *perf.Monitor
	intervals Intervals

	mu       gosync.Mutex
	counters map[string]*docCounters

	now func() time.Time
}

// NewTracker creates the session tracker. pool may be nil, in which case
// records are appended synchronously.
func NewTracker(
	documents document.Repository,
	records RecordRepository,
	conflicts syncpkg.ConflictRepository,
	pool *worker.WorkerPool,
	monitor *perf.Monitor,
	intervals Intervals,
) *Tracker {
	return &Tracker{
		documents: documents,
		records:   records,
		conflicts: conflicts,
		pool:      pool,
		monitor:   monitor,
		intervals: intervals,
		counters:  make(map[string]*docCounters),
		now:       time.Now,
	}
}

// EnhancedSave runs the full save pipeline: normalize the payload, verify
// its integrity, apply the write against the current version, then record
// the attempt. Integrity and payload failures are terminal and recorded
// as failed attempts; they are never retried server-side.
func (t *Tracker) EnhancedSave(ctx context.Context, req *SaveRequest) (*SaveResponse, error) {
	started := t.now()

	if !domain.ValidChangeType(req.ChangeType) {
		return nil, errors.BadRequest("Unknown change type", nil)
	}

	normalizeStart := t.now()
	content, ratio, err := compression.Normalize(req.Payload, req.IsCompressed)
	if err != nil {
		t.recordAttempt(req, 0, 0, t.now().Sub(started), false)
		t.monitor.Record(perf.OpSave, t.now().Sub(started), false)
		return nil, err
	}
	if req.IsCompressed {
		t.monitor.Record(perf.OpCompress, t.now().Sub(normalizeStart), true)
	}

	ok, err := integrity.Verify(content, req.ContentHash)
	if err != nil {
		t.recordAttempt(req, ratio, 0, t.now().Sub(started), false)
		t.monitor.Record(perf.OpSave, t.now().Sub(started), false)
		return nil, errors.Payload("Can't hash content", err)
	}
	if !ok {
		t.recordAttempt(req, ratio, 0, t.now().Sub(started), false)
		t.monitor.Record(perf.OpSave, t.now().Sub(started), false)
		return nil, errors.Integrity("Content hash mismatch", nil)
	}

	// autosave always writes against the latest version it can see; a
	// loss here means another writer slipped in between read and apply
	var baseVersion int64
	if current, err := t.documents.Find(ctx, req.GUID); err == nil {
		baseVersion = current.Version
	}

	result, err := t.documents.ApplyIfCurrent(ctx, req.GUID, baseVersion, content, req.UserID)
	if err != nil {
		t.recordAttempt(req, ratio, 0, t.now().Sub(started), false)
		t.monitor.Record(perf.OpSave, t.now().Sub(started), false)
		return nil, err
	}

	elapsed := t.now().Sub(started)

	if result.Outcome == document.OutcomeConflict {
		t.recordAttempt(req, ratio, result.Server.Version, elapsed, false)
		t.monitor.Record(perf.OpSave, elapsed, false)
		return &SaveResponse{
			GUID:             req.GUID,
			SessionID:        req.SessionID,
			Version:          result.Server.Version,
			SaveCount:        t.saveCount(req.GUID),
			NextSaveIn:       t.NextInterval(req.GUID),
			CompressionRatio: ratio,
			ResponseTime:     elapsed,
			ConflictStatus:   ConflictStatusStale,
			Success:          false,
		}, nil
	}

	saveCount := t.bumpCounters(req.GUID, req.ChangeCount)
	t.recordAttempt(req, ratio, result.State.Version, elapsed, true)
	t.monitor.Record(perf.OpSave, elapsed, true)

	conflictStatus := ConflictStatusNone
	if pending, err := t.conflicts.ListUnresolved(ctx, req.GUID); err == nil && len(pending) > 0 {
		conflictStatus = ConflictStatusPending
	}

	return &SaveResponse{
		GUID:             req.GUID,
		SessionID:        req.SessionID,
		SavedAt:          result.State.LastModified,
		Version:          result.State.Version,
		SaveCount:        saveCount,
		NextSaveIn:       t.NextInterval(req.GUID),
		CompressionRatio: ratio,
		ResponseTime:     elapsed,
		ConflictStatus:   conflictStatus,
		Success:          true,
	}, nil
}

// recordAttempt appends one immutable AutosaveRecord, off the request
// path when a pool is available.
func (t *Tracker) recordAttempt(req *SaveRequest, ratio float64, version int64, elapsed time.Duration, success bool) {
	record := &domain.AutosaveRecord{
		ID:               uuid.NewString(),
		DocumentGUID:     req.GUID,
		SessionID:        req.SessionID,
		ChangeType:       req.ChangeType,
		ChangeCount:      req.ChangeCount,
		ContentHash:      req.ContentHash,
		CompressionRatio: ratio,
		ResponseTime:     elapsed.Milliseconds(),
		ResultingVersion: version,
		Success:          success,
		Metadata:         req.Metadata,
		CreatedAt:        t.now().UTC(),
	}

	if t.pool == nil {
		if err := t.records.Append(context.Background(), record); err != nil {
			log.Printf("Failed to append autosave record for %s: %v", req.GUID, err)
		}
		return
	}

	t.pool.Submit(func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return t.records.Append(ctx, record)
	})
}

func (t *Tracker) bumpCounters(guid string, changeCount int) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	counters, ok := t.counters[guid]
	if !ok {
		counters = &docCounters{}
		t.counters[guid] = counters
	}

	counters.saveCount++
	if changeCount >= highFrequencyChanges {
		counters.rapidRuns++
	} else {
		counters.rapidRuns = 0
	}

	return counters.saveCount
}

func (t *Tracker) saveCount(guid string) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if counters, ok := t.counters[guid]; ok {
		return counters.saveCount
	}
	return 0
}

// NextInterval derives the advisory save cadence: the baseline shrinks
// under sustained high-frequency editing and grows while the perf monitor
// reports degraded health. Advisory only; the server never enforces it.
func (t *Tracker) NextInterval(guid string) time.Duration {
	interval := t.intervals.Base

	t.mu.Lock()
	if counters, ok := t.counters[guid]; ok && counters.rapidRuns >= highFrequencyStreak {
		interval = interval / 2
	}
	t.mu.Unlock()

	if !t.monitor.Healthy() {
		interval = interval * 2
	}

	if interval < t.intervals.Min {
		interval = t.intervals.Min
	}
	if interval > t.intervals.Max {
		interval = t.intervals.Max
	}
	return interval
}
