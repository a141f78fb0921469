// Package registry holds the declared sync links between stores.
//
// A link is identified by (source, target, kind). Registering the same
// triple again replaces its direction in place and keeps its sync state.
// Links are persisted through the repository's LinkStore, so the registry
// itself holds no state.
package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/exp/slog"

	"github.com/mesh-intelligence/carsync/internal/logger"
	"github.com/mesh-intelligence/carsync/pkg/types"
)

// Repository is the slice of types.Repository the registry needs.
type Repository interface {
	types.LinkStore
	HasStore(name string) bool
}

// Registry manages SyncLinks.
type Registry struct {
	repo Repository
	log  *slog.Logger
}

// New creates a Registry over repo.
func New(repo Repository, log *slog.Logger) *Registry {
	return &Registry{
		repo: repo,
		log:  logger.OrDiscard(log).With(slog.String("component", "registry")),
	}
}

// RegisterLink declares a link from source to target for kind. An existing
// link with the same triple is replaced; its last sync time and status are
// kept. Unknown stores are configuration errors.
func (r *Registry) RegisterLink(ctx context.Context, source, target string, kind types.Kind, direction types.Direction) (types.SyncLink, error) {
	const op = "register link"

	if !kind.Valid() {
		return types.SyncLink{}, types.NewSyncError(types.ErrCodeConfiguration, op, "", fmt.Errorf("%w: %q", types.ErrInvalidKind, kind))
	}
	if !direction.Valid() {
		return types.SyncLink{}, types.NewSyncError(types.ErrCodeConfiguration, op, "", fmt.Errorf("%w: %q", types.ErrInvalidDirection, direction))
	}
	if source == target {
		return types.SyncLink{}, types.NewSyncError(types.ErrCodeConfiguration, op, source, errors.New("source and target must differ"))
	}
	for _, store := range []string{source, target} {
		if !r.repo.HasStore(store) {
			return types.SyncLink{}, types.NewSyncError(types.ErrCodeConfiguration, op, store, types.ErrStoreNotFound)
		}
	}

	link := types.SyncLink{
		SourceStore: source,
		TargetStore: target,
		EntityKind:  kind,
		Direction:   direction,
		Status:      types.LinkPending,
	}
	if existing, ok, err := r.find(ctx, link.Key()); err != nil {
		return types.SyncLink{}, types.NewSyncError(types.ErrCodePersistence, op, source, err)
	} else if ok {
		link.LastSyncTime = existing.LastSyncTime
		link.Status = existing.Status
		link.ErrorDetail = existing.ErrorDetail
	}

	if err := r.repo.SaveLink(ctx, link); err != nil {
		return types.SyncLink{}, types.NewSyncError(types.ErrCodePersistence, op, source, err)
	}
	r.log.Debug("link registered",
		slog.String("link", link.Key().String()),
		slog.String("direction", string(direction)),
	)
	return link, nil
}

// RemoveLink deletes the link with the given triple.
// Returns ErrLinkNotFound if there is none.
func (r *Registry) RemoveLink(ctx context.Context, source, target string, kind types.Kind) error {
	key := types.LinkKey{Source: source, Target: target, Kind: kind}
	if err := r.repo.DeleteLink(ctx, key); err != nil {
		return err
	}
	r.log.Debug("link removed", slog.String("link", key.String()))
	return nil
}

// Links returns every link in registration order.
func (r *Registry) Links(ctx context.Context) ([]types.SyncLink, error) {
	return r.repo.Links(ctx)
}

// LinksFrom returns the links along which a record of kind may flow out of
// store, in registration order. A bidirectional link qualifies from either
// endpoint. Each peer appears once, through its first qualifying link.
func (r *Registry) LinksFrom(ctx context.Context, store string, kind types.Kind) ([]types.SyncLink, error) {
	links, err := r.repo.Links(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var out []types.SyncLink
	for _, l := range links {
		if l.EntityKind != kind || !l.AllowsFrom(store) {
			continue
		}
		peer := l.Peer(store)
		if seen[peer] {
			continue
		}
		seen[peer] = true
		out = append(out, l)
	}
	return out, nil
}

// LinkedStores returns the distinct stores linked to store, in
// registration order. An empty kind matches every kind.
func (r *Registry) LinkedStores(ctx context.Context, store string, kind types.Kind) ([]string, error) {
	links, err := r.repo.Links(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var out []string
	for _, l := range links {
		if kind != "" && l.EntityKind != kind {
			continue
		}
		peer := l.Peer(store)
		if peer == "" || seen[peer] {
			continue
		}
		seen[peer] = true
		out = append(out, peer)
	}
	return out, nil
}

// Resolve returns the link between source and target for kind in either
// declared orientation. ok is false when none exists.
func (r *Registry) Resolve(ctx context.Context, source, target string, kind types.Kind) (link types.SyncLink, ok bool, err error) {
	if link, ok, err = r.find(ctx, types.LinkKey{Source: source, Target: target, Kind: kind}); err != nil || ok {
		return link, ok, err
	}
	return r.find(ctx, types.LinkKey{Source: target, Target: source, Kind: kind})
}

// SetStatus records the outcome of a sync attempt on the link with key.
// A nil at leaves the last sync time unchanged.
func (r *Registry) SetStatus(ctx context.Context, key types.LinkKey, status types.LinkStatus, detail string, at *time.Time) error {
	link, ok, err := r.find(ctx, key)
	if err != nil {
		return err
	}
	if !ok {
		return types.ErrLinkNotFound
	}
	link.Status = status
	link.ErrorDetail = detail
	if at != nil {
		t := *at
		link.LastSyncTime = &t
	}
	return r.repo.SaveLink(ctx, link)
}

// Apply registers every link of t. Links naming a store that is not
// configured are skipped with a warning. It returns the number registered.
func (r *Registry) Apply(ctx context.Context, t Topology) (int, error) {
	n := 0
	for _, tl := range t.Links {
		_, err := r.RegisterLink(ctx, tl.Source, tl.Target, types.Kind(tl.Kind), types.Direction(tl.Direction))
		if errors.Is(err, types.ErrStoreNotFound) {
			r.log.Warn("topology link skipped",
				slog.String("source", tl.Source),
				slog.String("target", tl.Target),
				logger.Err(err),
			)
			continue
		}
		if err != nil {
			return n, err
		}
		n++
	}
	r.log.Info("topology applied", slog.Int("links", n))
	return n, nil
}

// InitializeDefaultTopology installs the built-in link set.
func (r *Registry) InitializeDefaultTopology(ctx context.Context) (int, error) {
	t, err := DefaultTopology()
	if err != nil {
		return 0, err
	}
	return r.Apply(ctx, t)
}

// Current returns the registered links as a Topology document.
func (r *Registry) Current(ctx context.Context) (Topology, error) {
	links, err := r.repo.Links(ctx)
	if err != nil {
		return Topology{}, err
	}
	t := Topology{Links: make([]TopologyLink, 0, len(links))}
	for _, l := range links {
		t.Links = append(t.Links, TopologyLink{
			Source:    l.SourceStore,
			Target:    l.TargetStore,
			Kind:      string(l.EntityKind),
			Direction: string(l.Direction),
		})
	}
	return t, nil
}

func (r *Registry) find(ctx context.Context, key types.LinkKey) (types.SyncLink, bool, error) {
	links, err := r.repo.Links(ctx)
	if err != nil {
		return types.SyncLink{}, false, err
	}
	for _, l := range links {
		if l.Key() == key {
			return l, true, nil
		}
	}
	return types.SyncLink{}, false, nil
}
