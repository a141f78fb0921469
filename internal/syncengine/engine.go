// Package syncengine propagates entity records between stores along the
// declared sync links.
//
// Every sync is an upsert-merge into the target: the record is matched by id
// and, failing that, by the secondary key of its kind. Fields present in
// the incoming record overwrite; absent fields are preserved. Concurrent
// writers to the same field resolve last-writer-wins.
package syncengine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/exp/slog"

	"github.com/mesh-intelligence/carsync/internal/logger"
	"github.com/mesh-intelligence/carsync/internal/registry"
	"github.com/mesh-intelligence/carsync/pkg/types"
)

// SyncResult is the outcome of one sync attempt to one target.
type SyncResult struct {
	Source   string     `json:"source_store"`
	Target   string     `json:"target_store"`
	Kind     types.Kind `json:"entity_kind"`
	RecordID string     `json:"record_id,omitempty"`
	Success  bool       `json:"success"`
	Err      error      `json:"-"`
}

// Error returns the failure message, or "".
func (r SyncResult) Error() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// Engine applies sync operations. The merge step of every operation runs
// under one mutex, so two syncs in a process never interleave their merge.
type Engine struct {
	repo  types.Repository
	links *registry.Registry
	log   *slog.Logger
	now   func() time.Time

	mu sync.Mutex
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces the engine clock.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates an Engine over repo, resolving links through links.
func New(repo types.Repository, links *registry.Registry, log *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		repo:  repo,
		links: links,
		log:   logger.OrDiscard(log).With(slog.String("component", "syncengine")),
		now:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Prepare assigns a UUID v7 to a record captured without an id and fills
// its kind tag and secondary key. Records that already have an id keep it.
func Prepare(kind types.Kind, rec types.EntityRecord) (types.EntityRecord, error) {
	s, err := strategyFor(kind)
	if err != nil {
		return types.EntityRecord{}, err
	}
	out := s.normalize(rec)
	if out.ID == "" {
		out.ID = newID()
	}
	return out, nil
}

// Capture writes rec into store as a local mutation, without fanning out.
// The stored record is returned with its id assigned.
func (e *Engine) Capture(ctx context.Context, store string, kind types.Kind, rec types.EntityRecord) (types.EntityRecord, error) {
	rec, err := Prepare(kind, rec)
	if err != nil {
		return types.EntityRecord{}, types.NewSyncError(types.ErrCodeConfiguration, "capture", store, err)
	}
	if !e.repo.HasStore(store) {
		return types.EntityRecord{}, types.NewSyncError(types.ErrCodeConfiguration, "capture", store, types.ErrStoreNotFound)
	}
	if err := checkPayload(rec); err != nil {
		return types.EntityRecord{}, types.NewSyncError(types.ErrCodeSerialization, "capture", store, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	stored, _, err := e.mergeLocked(ctx, store, rec, false)
	if err != nil {
		return types.EntityRecord{}, types.NewSyncError("", "capture", store, err)
	}
	return stored, nil
}

// Sync upsert-merges rec from source into target. The link for the pair is
// marked pending, then success or error; it is created as source_to_target
// when the pair has none in either orientation. A sync log entry is
// appended whatever the outcome. An explicit Sync is not restricted by the
// link direction; direction only governs AutoSync fan-out.
func (e *Engine) Sync(ctx context.Context, source, target string, kind types.Kind, rec types.EntityRecord) SyncResult {
	res := SyncResult{Source: source, Target: target, Kind: kind, RecordID: rec.ID}

	prepared, err := Prepare(kind, rec)
	if err != nil {
		return e.finish(ctx, res, nil, types.NewSyncError(types.ErrCodeConfiguration, "sync", target, err))
	}
	res.RecordID = prepared.ID

	for _, store := range []string{source, target} {
		if !e.repo.HasStore(store) {
			return e.finish(ctx, res, nil, types.NewSyncError(types.ErrCodeConfiguration, "sync", store, types.ErrStoreNotFound))
		}
	}

	link, err := e.ensureLink(ctx, source, target, kind)
	if err != nil {
		return e.finish(ctx, res, nil, err)
	}
	key := link.Key()
	if err := e.links.SetStatus(ctx, key, types.LinkPending, "", nil); err != nil {
		e.log.Warn("marking link pending", slog.String("link", key.String()), logger.Err(err))
	}

	return e.finish(ctx, res, &key, e.apply(ctx, target, prepared, false))
}

// AutoSync fans rec out from current along every link that lets kind flow
// out of current, in registration order. Every target is attempted even
// when an earlier one fails; there is no atomicity across targets.
func (e *Engine) AutoSync(ctx context.Context, current string, kind types.Kind, rec types.EntityRecord) []SyncResult {
	prepared, err := Prepare(kind, rec)
	if err != nil {
		res := SyncResult{Source: current, Kind: kind, RecordID: rec.ID}
		return []SyncResult{e.finish(ctx, res, nil, types.NewSyncError(types.ErrCodeConfiguration, "autosync", current, err))}
	}

	links, err := e.links.LinksFrom(ctx, current, kind)
	if err != nil {
		e.log.Error("resolving links", slog.String("store", current), logger.Err(err))
		return nil
	}

	results := make([]SyncResult, 0, len(links))
	for _, l := range links {
		results = append(results, e.Sync(ctx, current, l.Peer(current), kind, prepared))
	}
	return results
}

// Apply upsert-merges rec into target on behalf of origin, which need not
// be a store (the linking index uses its collection name). No link is
// consulted or updated; a sync log entry is appended.
func (e *Engine) Apply(ctx context.Context, origin, target string, kind types.Kind, rec types.EntityRecord) SyncResult {
	res := SyncResult{Source: origin, Target: target, Kind: kind, RecordID: rec.ID}
	prepared, err := Prepare(kind, rec)
	if err != nil {
		return e.finish(ctx, res, nil, types.NewSyncError(types.ErrCodeConfiguration, "apply", target, err))
	}
	res.RecordID = prepared.ID
	return e.finish(ctx, res, nil, e.apply(ctx, target, prepared, false))
}

// Propagate pushes rec from origin to every store in stores, merging only
// where a matching record already exists. Stores that do not hold the
// record are skipped and produce no result.
func (e *Engine) Propagate(ctx context.Context, origin string, kind types.Kind, rec types.EntityRecord, stores []string) []SyncResult {
	prepared, err := Prepare(kind, rec)
	if err != nil {
		res := SyncResult{Source: origin, Kind: kind, RecordID: rec.ID}
		return []SyncResult{e.finish(ctx, res, nil, types.NewSyncError(types.ErrCodeConfiguration, "propagate", "", err))}
	}

	var results []SyncResult
	for _, store := range stores {
		res := SyncResult{Source: origin, Target: store, Kind: kind, RecordID: prepared.ID}
		err := e.apply(ctx, store, prepared, true)
		if errors.Is(err, errSkipped) {
			continue
		}
		results = append(results, e.finish(ctx, res, nil, err))
	}
	return results
}

// errSkipped reports that a must-exist merge found no matching record.
var errSkipped = errors.New("no matching record")

// apply validates the payload and performs the merge under the engine
// mutex. The returned error is a *types.SyncError or errSkipped.
func (e *Engine) apply(ctx context.Context, target string, rec types.EntityRecord, mustExist bool) error {
	if !e.repo.HasStore(target) {
		return types.NewSyncError(types.ErrCodeConfiguration, "merge", target, types.ErrStoreNotFound)
	}
	if err := checkPayload(rec); err != nil {
		return types.NewSyncError(types.ErrCodeSerialization, "merge", target, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	_, applied, err := e.mergeLocked(ctx, target, rec, mustExist)
	if err != nil {
		return types.NewSyncError("", "merge", target, err)
	}
	if !applied {
		return errSkipped
	}
	return nil
}

// mergeLocked matches rec in store by id, then by secondary key, and
// upserts it. When matched by secondary key the stored record keeps its
// own id. With mustExist, an unmatched record is not inserted and applied
// is false. The caller must hold e.mu.
func (e *Engine) mergeLocked(ctx context.Context, store string, rec types.EntityRecord, mustExist bool) (stored types.EntityRecord, applied bool, err error) {
	matched := false
	_, err = e.repo.Find(ctx, store, rec.ID)
	switch {
	case err == nil:
		matched = true
	case !errors.Is(err, types.ErrNotFound):
		return types.EntityRecord{}, false, err
	case rec.SecondaryKey != "":
		existing, ferr := e.repo.FindBySecondaryKey(ctx, store, rec.Kind, rec.SecondaryKey)
		switch {
		case ferr == nil:
			rec.ID = existing.ID
			matched = true
		case !errors.Is(ferr, types.ErrNotFound):
			return types.EntityRecord{}, false, ferr
		}
	}

	if mustExist && !matched {
		return types.EntityRecord{}, false, nil
	}
	stored, err = e.repo.Upsert(ctx, store, rec)
	if err != nil {
		return types.EntityRecord{}, false, err
	}
	return stored, true, nil
}

// ensureLink returns the link for the pair in either orientation, creating
// a source_to_target link when there is none.
func (e *Engine) ensureLink(ctx context.Context, source, target string, kind types.Kind) (types.SyncLink, error) {
	link, ok, err := e.links.Resolve(ctx, source, target, kind)
	if err != nil {
		return types.SyncLink{}, types.NewSyncError(types.ErrCodePersistence, "resolve link", source, err)
	}
	if ok {
		return link, nil
	}
	link, err = e.links.RegisterLink(ctx, source, target, kind, types.SourceToTarget)
	if err != nil {
		return types.SyncLink{}, err
	}
	e.log.Info("link created on demand", slog.String("link", link.Key().String()))
	return link, nil
}

// finish records the outcome: link status when key is non-nil, a sync log
// entry always, and a log line.
func (e *Engine) finish(ctx context.Context, res SyncResult, key *types.LinkKey, err error) SyncResult {
	now := e.now()
	res.Success = err == nil
	res.Err = err

	if key != nil {
		var serr error
		if err == nil {
			serr = e.links.SetStatus(ctx, *key, types.LinkSuccess, "", &now)
		} else {
			serr = e.links.SetStatus(ctx, *key, types.LinkError, err.Error(), nil)
		}
		if serr != nil {
			e.log.Warn("updating link status", slog.String("link", key.String()), logger.Err(serr))
		}
	}

	entry := types.SyncLogEntry{
		ID:        newID(),
		Timestamp: now,
		Source:    res.Source,
		Target:    res.Target,
		Kind:      res.Kind,
		RecordID:  res.RecordID,
		Success:   res.Success,
	}
	if err != nil {
		entry.ErrorCode = types.Classify(err)
		entry.Error = err.Error()
	}
	if lerr := e.repo.AppendSyncLog(ctx, entry); lerr != nil {
		e.log.Warn("appending sync log", logger.Err(lerr))
	}

	attrs := []any{
		slog.String("source", res.Source),
		slog.String("target", res.Target),
		slog.String("kind", string(res.Kind)),
		slog.String("record", res.RecordID),
	}
	if err != nil {
		e.log.Warn("sync failed", append(attrs, logger.Err(err))...)
	} else {
		e.log.Debug("sync applied", attrs...)
	}
	return res
}

// checkPayload reports a record whose fields cannot be serialized.
func checkPayload(rec types.EntityRecord) error {
	if _, err := json.Marshal(rec.Fields); err != nil {
		return fmt.Errorf("%w: %v", types.ErrInvalidData, err)
	}
	return nil
}

// newID generates a UUID v7, falling back to v4.
func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}
