package syncengine

import (
	"fmt"

	"github.com/mesh-intelligence/carsync/pkg/types"
)

// strategy is the merge strategy for one entity kind. Strategies differ
// only in the field that carries the fallback identity.
type strategy struct {
	kind     types.Kind
	keyField string
}

var strategies = map[types.Kind]strategy{
	types.KindVehicle:   {kind: types.KindVehicle, keyField: types.FieldVIN},
	types.KindPart:      {kind: types.KindPart, keyField: types.FieldPartNumber},
	types.KindOrder:     {kind: types.KindOrder, keyField: types.FieldOrderRef},
	types.KindRepair:    {kind: types.KindRepair, keyField: types.FieldCarID},
	types.KindTestDrive: {kind: types.KindTestDrive, keyField: types.FieldCarID},
	types.KindClient:    {kind: types.KindClient, keyField: types.FieldPhone},
}

// strategyFor returns the strategy for kind.
func strategyFor(kind types.Kind) (strategy, error) {
	s, ok := strategies[kind]
	if !ok {
		return strategy{}, fmt.Errorf("%w: %q", types.ErrInvalidKind, kind)
	}
	return s, nil
}

// SecondaryKeyField returns the field holding the fallback identity of
// kind, or "" for an unknown kind.
func SecondaryKeyField(kind types.Kind) string {
	return strategies[kind].keyField
}

// normalize fills the envelope of rec: the kind tag, and the secondary key
// from the identity field when it was not given explicitly.
func (s strategy) normalize(rec types.EntityRecord) types.EntityRecord {
	out := rec.Clone()
	out.Kind = s.kind
	if out.SecondaryKey == "" {
		out.SecondaryKey = rec.Text(s.keyField)
	}
	return out
}
