// Package carsync is the public entry point of the engine. A Service owns
// one attached backend and wires the link registry, sync engine, linking
// index and audit log over it.
//
// Example:
//
//	svc, err := carsync.Open(types.Config{
//	    Backend: types.BackendSQLite,
//	    DataDir: ".carsync-db",
//	}, nil)
//	if err != nil {
//	    return err
//	}
//	defer svc.Close()
//	_, err = svc.InitializeTopology(ctx)
package carsync

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"golang.org/x/exp/slog"

	"github.com/mesh-intelligence/carsync/internal/audit"
	"github.com/mesh-intelligence/carsync/internal/linking"
	"github.com/mesh-intelligence/carsync/internal/logger"
	"github.com/mesh-intelligence/carsync/internal/memstore"
	"github.com/mesh-intelligence/carsync/internal/registry"
	"github.com/mesh-intelligence/carsync/internal/syncengine"
	"github.com/mesh-intelligence/carsync/pkg/sqlite"
	"github.com/mesh-intelligence/carsync/pkg/types"
)

// Result types of the facade operations.
type (
	SyncResult    = syncengine.SyncResult
	Topology      = registry.Topology
	TopologyLink  = registry.TopologyLink
	Report        = audit.Report
	DeliveryStats = linking.DeliveryStats
)

// Service is the facade consumed by the CLI, the HTTP API and embedding
// applications. It is safe for concurrent use.
type Service struct {
	config  types.Config
	backend types.Backend
	links   *registry.Registry
	engine  *syncengine.Engine
	index   *linking.Index
	audit   *audit.Log
	log     *slog.Logger
}

// Option configures a Service.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock replaces the clock of every component.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// Open creates the backend named by config, attaches it and wires the
// components. log may be nil.
func Open(config types.Config, log *slog.Logger, opts ...Option) (*Service, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	var backend types.Backend
	switch config.Backend {
	case types.BackendSQLite:
		backend = sqlite.NewBackend()
	case types.BackendMemory:
		backend = memstore.New()
	}
	if err := backend.Attach(config); err != nil {
		return nil, fmt.Errorf("attaching %s backend: %w", config.Backend, err)
	}
	return newService(config, backend, log, opts...), nil
}

func newService(config types.Config, backend types.Backend, log *slog.Logger, opts ...Option) *Service {
	o := options{now: func() time.Time { return time.Now().UTC() }}
	for _, opt := range opts {
		opt(&o)
	}

	log = logger.OrDiscard(log)
	links := registry.New(backend, log)
	engine := syncengine.New(backend, links, log, syncengine.WithClock(o.now))
	auditLog := audit.New(backend, log, audit.WithClock(o.now))
	return &Service{
		config:  config,
		backend: backend,
		links:   links,
		engine:  engine,
		index:   linking.New(backend, engine, auditLog, log, linking.WithClock(o.now)),
		audit:   auditLog,
		log:     log.With(slog.String("component", "service")),
	}
}

// Close detaches the backend, flushing pending writes.
func (s *Service) Close() error {
	return s.backend.Detach()
}

// Config returns the configuration the service was opened with.
func (s *Service) Config() types.Config {
	return s.config
}

// Stores returns the configured store names.
func (s *Service) Stores() []string {
	return s.backend.Stores()
}

// Records returns every record of store in insertion order.
func (s *Service) Records(ctx context.Context, store string) ([]types.EntityRecord, error) {
	return s.backend.Records(ctx, store)
}

// --- Topology ---

// InitializeTopology installs the link topology: the file named by
// Config.TopologyFile when set, the built-in one otherwise. Links whose
// stores are not configured are skipped. It returns the number of links
// registered.
func (s *Service) InitializeTopology(ctx context.Context) (int, error) {
	if s.config.TopologyFile == "" {
		return s.links.InitializeDefaultTopology(ctx)
	}
	t, err := registry.ReadTopologyFile(s.config.TopologyFile)
	if err != nil {
		return 0, err
	}
	return s.links.Apply(ctx, t)
}

// ApplyTopology registers every link of t.
func (s *Service) ApplyTopology(ctx context.Context, t Topology) (int, error) {
	return s.links.Apply(ctx, t)
}

// Topology returns the registered links as a topology document.
func (s *Service) Topology(ctx context.Context) (Topology, error) {
	return s.links.Current(ctx)
}

// CreateLink registers a link, replacing any link with the same source,
// target and kind.
func (s *Service) CreateLink(ctx context.Context, source, target string, kind types.Kind, direction types.Direction) (types.SyncLink, error) {
	return s.links.RegisterLink(ctx, source, target, kind, direction)
}

// RemoveLink removes a link.
func (s *Service) RemoveLink(ctx context.Context, source, target string, kind types.Kind) error {
	return s.links.RemoveLink(ctx, source, target, kind)
}

// Links returns every registered link.
func (s *Service) Links(ctx context.Context) ([]types.SyncLink, error) {
	return s.links.Links(ctx)
}

// GetLinkedStores returns the stores linked to store for kind, or for any
// kind when kind is empty.
func (s *Service) GetLinkedStores(ctx context.Context, store string, kind types.Kind) ([]string, error) {
	return s.links.LinkedStores(ctx, store, kind)
}

// SyncStatus counts links by the outcome of their latest sync.
type SyncStatus struct {
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
	Pending    int `json:"pending"`
	Total      int `json:"total"`
}

// GetSyncStatus counts the links touching store, or every link when store
// is empty.
func (s *Service) GetSyncStatus(ctx context.Context, store string) (SyncStatus, error) {
	links, err := s.links.Links(ctx)
	if err != nil {
		return SyncStatus{}, err
	}
	var st SyncStatus
	for _, l := range links {
		if store != "" && !l.Involves(store) {
			continue
		}
		st.Total++
		switch l.Status {
		case types.LinkSuccess:
			st.Successful++
		case types.LinkError:
			st.Failed++
		case types.LinkPending:
			st.Pending++
		}
	}
	return st, nil
}

// --- Sync ---

// Sync upsert-merges data from source into target and returns the detailed
// outcome.
func (s *Service) Sync(ctx context.Context, source, target string, kind types.Kind, data types.EntityRecord) SyncResult {
	return s.engine.Sync(ctx, source, target, kind, data)
}

// SyncDataBetweenTabs upsert-merges data from source into target and
// reports success. Failures are recorded on the link and in the sync log.
func (s *Service) SyncDataBetweenTabs(ctx context.Context, source, target string, kind types.Kind, data types.EntityRecord) bool {
	return s.Sync(ctx, source, target, kind, data).Success
}

// AutoSyncResults captures data in current and fans it out along every
// link that lets kind flow out of current. A vehicle carrying a
// reservation or sale transition also updates its client link. The
// results are in link registration order.
func (s *Service) AutoSyncResults(ctx context.Context, current string, data types.EntityRecord, kind types.Kind) ([]SyncResult, error) {
	captured, err := s.engine.Capture(ctx, current, kind, data)
	if err != nil {
		return nil, err
	}
	results := s.engine.AutoSync(ctx, current, kind, captured)

	if kind == types.KindVehicle {
		if _, err := s.index.Observe(ctx, current, captured, "autosync:"+current); err != nil {
			s.log.Warn("observing client link transition", slog.String("car", captured.ID), logger.Err(err))
		}
	}
	return results, nil
}

// AutoSync is AutoSyncResults reduced to one success flag per link. A
// failed local capture yields no flags.
func (s *Service) AutoSync(ctx context.Context, current string, data types.EntityRecord, kind types.Kind) []bool {
	results, err := s.AutoSyncResults(ctx, current, data, kind)
	if err != nil {
		s.log.Warn("autosync capture failed", slog.String("store", current), logger.Err(err))
		return []bool{}
	}
	ok := make([]bool, len(results))
	for i, r := range results {
		ok[i] = r.Success
	}
	return ok
}

// RecentSyncs returns the n newest sync log entries, newest first.
func (s *Service) RecentSyncs(ctx context.Context, n int) ([]types.SyncLogEntry, error) {
	return s.audit.RecentSyncs(ctx, n)
}

// --- Cross-store view ---

// originCrossStore is the sync log source of cross-store updates.
const originCrossStore = "cross-store"

// CrossStoreData is the view of one car across every store.
type CrossStoreData struct {
	CarID           string                        `json:"car_id"`
	VIN             string                        `json:"vin,omitempty"`
	CurrentLocation string                        `json:"current_location,omitempty"`
	Locations       map[string]types.EntityRecord `json:"locations"`
	Client          *types.ClientCarLink          `json:"client,omitempty"`
}

// CrossStoreUpdate carries fields to merge into every store holding a car.
type CrossStoreUpdate struct {
	CarID           string         `json:"car_id"`
	CurrentLocation string         `json:"current_location,omitempty"`
	Fields          map[string]any `json:"fields,omitempty"`
}

// GetCrossStoreData collects every store's record for carID and its client
// link. A store holding the car under another id is found by VIN. It
// returns nil when no store holds the car and it has no link. The current
// location is the location field of the car-inventory record, then of any
// other record, then of the client link.
func (s *Service) GetCrossStoreData(ctx context.Context, carID string) (*CrossStoreData, error) {
	data := &CrossStoreData{CarID: carID, Locations: make(map[string]types.EntityRecord)}
	for _, store := range s.backend.Stores() {
		rec, err := s.backend.Find(ctx, store, carID)
		if errors.Is(err, types.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		data.Locations[store] = rec
	}

	link, err := s.index.ClientFor(ctx, carID)
	switch {
	case err == nil:
		data.Client = &link
	case !errors.Is(err, types.ErrNotFound):
		return nil, err
	}

	data.VIN = vinOf(data)
	if data.VIN != "" {
		for _, store := range s.backend.Stores() {
			if _, ok := data.Locations[store]; ok {
				continue
			}
			rec, err := s.backend.FindBySecondaryKey(ctx, store, types.KindVehicle, data.VIN)
			if errors.Is(err, types.ErrNotFound) {
				continue
			}
			if err != nil {
				return nil, err
			}
			data.Locations[store] = rec
		}
	}

	var order []string
	for _, store := range s.backend.Stores() {
		if _, ok := data.Locations[store]; ok {
			order = append(order, store)
		}
	}
	if len(order) == 0 && data.Client == nil {
		return nil, nil
	}

	for _, store := range inventoryFirst(order) {
		if data.CurrentLocation == "" {
			data.CurrentLocation = data.Locations[store].Text(types.FieldLocation)
		}
	}
	if data.Client != nil && data.CurrentLocation == "" {
		data.CurrentLocation = data.Client.Location
	}
	return data, nil
}

// vinOf returns the VIN of the car from its records, car-inventory first,
// then from its client link.
func vinOf(data *CrossStoreData) string {
	stores := make([]string, 0, len(data.Locations))
	for store := range data.Locations {
		stores = append(stores, store)
	}
	sort.Strings(stores)
	for _, store := range inventoryFirst(stores) {
		rec := data.Locations[store]
		if rec.SecondaryKey != "" {
			return rec.SecondaryKey
		}
		if vin := rec.Text(types.FieldVIN); vin != "" {
			return vin
		}
	}
	if data.Client != nil {
		return data.Client.SecondaryKey
	}
	return ""
}

func inventoryFirst(stores []string) []string {
	out := make([]string, 0, len(stores))
	for _, s := range stores {
		if s == types.StoreInventory {
			out = append(out, s)
		}
	}
	for _, s := range stores {
		if s != types.StoreInventory {
			out = append(out, s)
		}
	}
	return out
}

// UpdateCrossStoreData merges u.Fields into every store that holds the
// car, by id or by VIN. A non-empty CurrentLocation is written as the
// location field.
func (s *Service) UpdateCrossStoreData(ctx context.Context, u CrossStoreUpdate) []SyncResult {
	fields := make(map[string]any, len(u.Fields)+1)
	for k, v := range u.Fields {
		fields[k] = v
	}
	if u.CurrentLocation != "" {
		fields[types.FieldLocation] = u.CurrentLocation
	}
	rec := types.EntityRecord{ID: u.CarID, Kind: types.KindVehicle, Fields: fields}
	if rec.Text(types.FieldVIN) == "" {
		current, err := s.GetCrossStoreData(ctx, u.CarID)
		if err != nil {
			s.log.Warn("resolving car VIN", slog.String("car", u.CarID), logger.Err(err))
		} else if current != nil {
			rec.SecondaryKey = current.VIN
		}
	}
	return s.engine.Propagate(ctx, originCrossStore, types.KindVehicle, rec, s.backend.Stores())
}

// --- Client links ---

// LinkClient links carID to client and fans the result out to the stores.
func (s *Service) LinkClient(ctx context.Context, carID string, car types.CarAttributes, client types.ClientInfo, recordedBy string) (types.ClientCarLink, error) {
	link, _, err := s.index.Link(ctx, carID, car, client, recordedBy)
	return link, err
}

// UnlinkClient removes the link for carID and resets the stores.
func (s *Service) UnlinkClient(ctx context.Context, carID string) error {
	_, err := s.index.Unlink(ctx, carID)
	return err
}

// ClientFor returns the link for carID, or nil when there is none.
func (s *Service) ClientFor(ctx context.Context, carID string) (*types.ClientCarLink, error) {
	link, err := s.index.ClientFor(ctx, carID)
	if errors.Is(err, types.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &link, nil
}

// CarsForClient returns the links of the client with phone q or whose
// name contains q.
func (s *Service) CarsForClient(ctx context.Context, q string) ([]types.ClientCarLink, error) {
	return s.index.CarsForClient(ctx, q)
}

// Search returns the links matching q.
func (s *Service) Search(ctx context.Context, q string) ([]types.ClientCarLink, error) {
	return s.index.Search(ctx, q)
}

// DeliveryStats counts links by status and delivery state.
func (s *Service) DeliveryStats(ctx context.Context) (DeliveryStats, error) {
	return s.index.DeliveryStats(ctx)
}

// Reconcile creates client links for reserved or sold vehicles that have
// none. It is idempotent and returns the number created.
func (s *Service) Reconcile(ctx context.Context, recordedBy string) (int, error) {
	return s.index.InitializeFromExistingData(ctx, recordedBy)
}

// IntegrityReport summarizes the completeness of the client links.
func (s *Service) IntegrityReport(ctx context.Context) (Report, error) {
	return s.audit.IntegrityReport(ctx)
}
