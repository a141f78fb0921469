package types

import (
	"fmt"
	"time"
)

// Direction says which way records may flow along a SyncLink.
type Direction string

// Link directions.
const (
	Bidirectional  Direction = "bidirectional"
	SourceToTarget Direction = "source_to_target"
	TargetToSource Direction = "target_to_source"
)

// Valid reports whether d is a known direction.
func (d Direction) Valid() bool {
	switch d {
	case Bidirectional, SourceToTarget, TargetToSource:
		return true
	}
	return false
}

// ParseDirection converts s to a Direction. Returns ErrInvalidDirection if
// s is not known.
func ParseDirection(s string) (Direction, error) {
	d := Direction(s)
	if !d.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidDirection, s)
	}
	return d, nil
}

// LinkStatus is the outcome of the most recent sync attempt over a link.
type LinkStatus string

// Link statuses.
const (
	LinkSuccess LinkStatus = "success"
	LinkError   LinkStatus = "error"
	LinkPending LinkStatus = "pending"
)

// LinkKey identifies a SyncLink. At most one link exists per key.
type LinkKey struct {
	Source string `json:"source_store"`
	Target string `json:"target_store"`
	Kind   Kind   `json:"entity_kind"`
}

// String renders the key as "source->target/kind".
func (k LinkKey) String() string {
	return fmt.Sprintf("%s->%s/%s", k.Source, k.Target, k.Kind)
}

// SyncLink is a declared directional synchronization relationship between
// two stores for one entity kind.
type SyncLink struct {
	SourceStore  string     `json:"source_store"`
	TargetStore  string     `json:"target_store"`
	EntityKind   Kind       `json:"entity_kind"`
	Direction    Direction  `json:"direction"`
	LastSyncTime *time.Time `json:"last_sync_time,omitempty"`
	Status       LinkStatus `json:"status"`
	ErrorDetail  string     `json:"error_detail,omitempty"`
}

// Key returns the identity of the link.
func (l SyncLink) Key() LinkKey {
	return LinkKey{Source: l.SourceStore, Target: l.TargetStore, Kind: l.EntityKind}
}

// Involves reports whether store is either endpoint of the link.
func (l SyncLink) Involves(store string) bool {
	return l.SourceStore == store || l.TargetStore == store
}

// AllowsFrom reports whether records may flow out of store along this link.
// For a bidirectional link either endpoint qualifies.
func (l SyncLink) AllowsFrom(store string) bool {
	switch l.Direction {
	case Bidirectional:
		return l.Involves(store)
	case SourceToTarget:
		return l.SourceStore == store
	case TargetToSource:
		return l.TargetStore == store
	}
	return false
}

// Peer returns the endpoint opposite store. It returns "" when store is not
// an endpoint.
func (l SyncLink) Peer(store string) string {
	switch store {
	case l.SourceStore:
		return l.TargetStore
	case l.TargetStore:
		return l.SourceStore
	}
	return ""
}

// Carries reports whether the link permits a sync of kind from source to
// target, in either declared orientation.
func (l SyncLink) Carries(source, target string, kind Kind) bool {
	if l.EntityKind != kind || source == target {
		return false
	}
	return l.AllowsFrom(source) && l.Peer(source) == target
}
