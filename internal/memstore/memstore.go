// Package memstore provides an in-memory Repository. It backs the "memory"
// backend and the engine's unit tests; nothing survives Detach.
package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/mesh-intelligence/carsync/pkg/types"
)

var _ types.Backend = (*Store)(nil)

// Store is a thread-safe in-memory Repository. Every read returns copies so
// callers cannot mutate internal state.
type Store struct {
	mu       sync.RWMutex
	attached bool
	names    []string
	records  map[string][]types.EntityRecord // store name -> records in insertion order

	links        []types.SyncLink
	syncLog      []types.SyncLogEntry
	clientLinks  []types.ClientCarLink
	integrityLog []types.IntegrityLogEntry

	now func() time.Time
}

// New creates a detached in-memory store. Call Attach before use.
func New() *Store {
	return &Store{now: func() time.Time { return time.Now().UTC() }}
}

// Open creates an attached in-memory store with the given store names, or
// types.DefaultStoreNames when none are given.
func Open(stores ...string) *Store {
	s := New()
	_ = s.Attach(types.Config{Backend: types.BackendMemory, Stores: stores})
	return s
}

// Attach initializes the configured stores.
// Returns ErrAlreadyAttached if already attached.
func (s *Store) Attach(config types.Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.attached {
		return types.ErrAlreadyAttached
	}
	if err := config.Validate(); err != nil {
		return err
	}

	s.names = config.GetStores()
	s.records = make(map[string][]types.EntityRecord, len(s.names))
	for _, name := range s.names {
		s.records[name] = nil
	}
	s.links = nil
	s.syncLog = nil
	s.clientLinks = nil
	s.integrityLog = nil
	s.attached = true
	return nil
}

// Detach drops all data. Idempotent.
func (s *Store) Detach() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.attached = false
	s.records = nil
	return nil
}

// Stores returns the configured store names.
func (s *Store) Stores() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, len(s.names))
	copy(out, s.names)
	return out
}

// HasStore reports whether name is a configured store.
func (s *Store) HasStore(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.records[name]
	return ok
}

// --- Records ---

func (s *Store) Records(ctx context.Context, store string) ([]types.EntityRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	recs, err := s.storeLocked(store)
	if err != nil {
		return nil, err
	}
	out := make([]types.EntityRecord, len(recs))
	for i, r := range recs {
		out[i] = r.Clone()
	}
	return out, nil
}

func (s *Store) Find(ctx context.Context, store, id string) (types.EntityRecord, error) {
	if id == "" {
		return types.EntityRecord{}, types.ErrInvalidID
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	recs, err := s.storeLocked(store)
	if err != nil {
		return types.EntityRecord{}, err
	}
	for _, r := range recs {
		if r.ID == id {
			return r.Clone(), nil
		}
	}
	return types.EntityRecord{}, types.ErrNotFound
}

func (s *Store) FindBySecondaryKey(ctx context.Context, store string, kind types.Kind, key string) (types.EntityRecord, error) {
	if key == "" {
		return types.EntityRecord{}, types.ErrNotFound
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	recs, err := s.storeLocked(store)
	if err != nil {
		return types.EntityRecord{}, err
	}
	for _, r := range recs {
		if r.Kind == kind && r.SecondaryKey == key {
			return r.Clone(), nil
		}
	}
	return types.EntityRecord{}, types.ErrNotFound
}

func (s *Store) Upsert(ctx context.Context, store string, rec types.EntityRecord) (types.EntityRecord, error) {
	if rec.ID == "" {
		return types.EntityRecord{}, types.ErrInvalidID
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	recs, err := s.storeLocked(store)
	if err != nil {
		return types.EntityRecord{}, err
	}

	for i, existing := range recs {
		if existing.ID == rec.ID {
			merged := existing.Merge(rec)
			merged.LastUpdated = s.now()
			recs[i] = merged
			return merged.Clone(), nil
		}
	}

	stored := rec.Clone()
	if stored.Fields == nil {
		stored.Fields = make(map[string]any)
	}
	stored.LastUpdated = s.now()
	s.records[store] = append(recs, stored)
	return stored.Clone(), nil
}

func (s *Store) Remove(ctx context.Context, store, id string) error {
	if id == "" {
		return types.ErrInvalidID
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	recs, err := s.storeLocked(store)
	if err != nil {
		return err
	}
	for i, r := range recs {
		if r.ID == id {
			s.records[store] = append(recs[:i:i], recs[i+1:]...)
			return nil
		}
	}
	return types.ErrNotFound
}

// storeLocked returns the records slice for store.
// It MUST be called while holding s.mu.
func (s *Store) storeLocked(store string) ([]types.EntityRecord, error) {
	if !s.attached {
		return nil, types.ErrDetached
	}
	recs, ok := s.records[store]
	if !ok {
		return nil, types.ErrStoreNotFound
	}
	return recs, nil
}

// --- Sync links ---

func (s *Store) Links(ctx context.Context) ([]types.SyncLink, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.attached {
		return nil, types.ErrDetached
	}
	out := make([]types.SyncLink, len(s.links))
	copy(out, s.links)
	return out, nil
}

func (s *Store) SaveLink(ctx context.Context, link types.SyncLink) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.attached {
		return types.ErrDetached
	}
	for i, l := range s.links {
		if l.Key() == link.Key() {
			s.links[i] = link
			return nil
		}
	}
	s.links = append(s.links, link)
	return nil
}

func (s *Store) DeleteLink(ctx context.Context, key types.LinkKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.attached {
		return types.ErrDetached
	}
	for i, l := range s.links {
		if l.Key() == key {
			s.links = append(s.links[:i:i], s.links[i+1:]...)
			return nil
		}
	}
	return types.ErrLinkNotFound
}

// --- Logs ---

func (s *Store) AppendSyncLog(ctx context.Context, entry types.SyncLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.attached {
		return types.ErrDetached
	}
	s.syncLog = append(s.syncLog, entry)
	return nil
}

func (s *Store) SyncLog(ctx context.Context) ([]types.SyncLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.attached {
		return nil, types.ErrDetached
	}
	out := make([]types.SyncLogEntry, len(s.syncLog))
	copy(out, s.syncLog)
	return out, nil
}

func (s *Store) AppendIntegrityLog(ctx context.Context, entry types.IntegrityLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.attached {
		return types.ErrDetached
	}
	s.integrityLog = append(s.integrityLog, entry)
	return nil
}

func (s *Store) IntegrityLog(ctx context.Context) ([]types.IntegrityLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.attached {
		return nil, types.ErrDetached
	}
	out := make([]types.IntegrityLogEntry, len(s.integrityLog))
	copy(out, s.integrityLog)
	return out, nil
}

// --- Client-car links ---

func (s *Store) ClientLinks(ctx context.Context) ([]types.ClientCarLink, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.attached {
		return nil, types.ErrDetached
	}
	out := make([]types.ClientCarLink, len(s.clientLinks))
	copy(out, s.clientLinks)
	return out, nil
}

func (s *Store) ClientLink(ctx context.Context, carID string) (types.ClientCarLink, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.attached {
		return types.ClientCarLink{}, types.ErrDetached
	}
	for _, l := range s.clientLinks {
		if l.CarID == carID {
			return l, nil
		}
	}
	return types.ClientCarLink{}, types.ErrNotFound
}

func (s *Store) SaveClientLink(ctx context.Context, link types.ClientCarLink) error {
	if link.CarID == "" {
		return types.ErrInvalidID
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.attached {
		return types.ErrDetached
	}
	for i, l := range s.clientLinks {
		if l.CarID == link.CarID {
			s.clientLinks[i] = link
			return nil
		}
	}
	s.clientLinks = append(s.clientLinks, link)
	return nil
}

func (s *Store) DeleteClientLink(ctx context.Context, carID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.attached {
		return types.ErrDetached
	}
	for i, l := range s.clientLinks {
		if l.CarID == carID {
			s.clientLinks = append(s.clientLinks[:i:i], s.clientLinks[i+1:]...)
			return nil
		}
	}
	return types.ErrNotFound
}
