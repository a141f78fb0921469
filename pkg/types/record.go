package types

import (
	"fmt"
	"strconv"
	"time"
)

// Kind tags an EntityRecord with its business entity type. The sync engine
// dispatches its merge strategy on this tag.
type Kind string

// Entity kinds.
const (
	KindVehicle   Kind = "vehicle"
	KindClient    Kind = "client"
	KindPart      Kind = "part"
	KindRepair    Kind = "repair"
	KindTestDrive Kind = "test_drive"
	KindOrder     Kind = "order"
)

// AllKinds lists every entity kind in declaration order.
var AllKinds = []Kind{
	KindVehicle,
	KindClient,
	KindPart,
	KindRepair,
	KindTestDrive,
	KindOrder,
}

// Valid reports whether k is a known entity kind.
func (k Kind) Valid() bool {
	switch k {
	case KindVehicle, KindClient, KindPart, KindRepair, KindTestDrive, KindOrder:
		return true
	}
	return false
}

// ParseKind converts s to a Kind. Returns ErrInvalidKind if s is not known.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if !k.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidKind, s)
	}
	return k, nil
}

// Well-known field names carried in EntityRecord.Fields.
const (
	FieldVIN             = "vin"
	FieldBrand           = "brand"
	FieldModel           = "model"
	FieldYear            = "year"
	FieldColor           = "color"
	FieldPrice           = "price"
	FieldStatus          = "status"
	FieldLocation        = "location"
	FieldClientName      = "client_name"
	FieldClientPhone     = "client_phone"
	FieldClientEmail     = "client_email"
	FieldClientAddress   = "client_address"
	FieldLicensePlate    = "license_plate"
	FieldSalePrice       = "sale_price"
	FieldSaleDate        = "sale_date"
	FieldReservationDate = "reservation_date"
	FieldDeliveryDate    = "delivery_date"
	FieldClientNotes     = "client_notes"
	FieldPartNumber      = "part_number"
	FieldOrderRef        = "order_ref"
	FieldCarID           = "car_id"
	FieldName            = "name"
	FieldPhone           = "phone"
)

// Vehicle status values stored under FieldStatus.
const (
	StatusInStock  = "in_stock"
	StatusReserved = "reserved"
	StatusSold     = "sold"
)

// ClientFields lists the vehicle fields owned by the client-car linking
// index. Unlink clears every one of them.
var ClientFields = []string{
	FieldClientName,
	FieldClientPhone,
	FieldClientEmail,
	FieldClientAddress,
	FieldLicensePlate,
	FieldSalePrice,
	FieldSaleDate,
	FieldReservationDate,
	FieldDeliveryDate,
	FieldClientNotes,
}

// EntityRecord is the common envelope for every record held by a store.
// ID is stable and never changes after assignment. SecondaryKey (VIN, part
// number, order reference, car id or phone depending on Kind) is only used
// as a fallback match when no record with the same ID exists.
type EntityRecord struct {
	ID           string         `json:"id"`
	Kind         Kind           `json:"kind"`
	SecondaryKey string         `json:"secondary_key,omitempty"`
	LastUpdated  time.Time      `json:"last_updated"`
	Fields       map[string]any `json:"fields,omitempty"`
}

// Clone returns a copy of r whose Fields map can be mutated independently.
func (r EntityRecord) Clone() EntityRecord {
	out := r
	if r.Fields != nil {
		out.Fields = make(map[string]any, len(r.Fields))
		for k, v := range r.Fields {
			out.Fields[k] = v
		}
	}
	return out
}

// Merge applies incoming on top of r and returns the result. Every field
// present in incoming overwrites the corresponding field of r; fields absent
// from incoming are preserved. ID and Kind of r are kept. A non-empty
// incoming SecondaryKey replaces r's.
func (r EntityRecord) Merge(incoming EntityRecord) EntityRecord {
	out := r.Clone()
	if out.Fields == nil {
		out.Fields = make(map[string]any, len(incoming.Fields))
	}
	for k, v := range incoming.Fields {
		out.Fields[k] = v
	}
	if incoming.SecondaryKey != "" {
		out.SecondaryKey = incoming.SecondaryKey
	}
	if out.Kind == "" {
		out.Kind = incoming.Kind
	}
	return out
}

// Has reports whether field is present in the record, even with a nil or
// empty value.
func (r EntityRecord) Has(field string) bool {
	_, ok := r.Fields[field]
	return ok
}

// Text returns the field value rendered as a string. Missing and nil
// fields yield "".
func (r EntityRecord) Text(field string) string {
	v, ok := r.Fields[field]
	if !ok || v == nil {
		return ""
	}
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case time.Time:
		return x.Format(time.RFC3339)
	default:
		return fmt.Sprint(x)
	}
}

// Time parses the field as an RFC 3339 timestamp. It returns nil when the
// field is missing, empty, or not a timestamp.
func (r EntityRecord) Time(field string) *time.Time {
	v, ok := r.Fields[field]
	if !ok || v == nil {
		return nil
	}
	switch x := v.(type) {
	case time.Time:
		if x.IsZero() {
			return nil
		}
		return &x
	case string:
		if x == "" {
			return nil
		}
		t, err := time.Parse(time.RFC3339, x)
		if err != nil {
			return nil
		}
		return &t
	}
	return nil
}
