package types

import (
	"strings"
	"time"
)

// MinVINLength is the shortest VIN accepted as verified.
const MinVINLength = 10

// CarAttributes describes the vehicle side of a ClientCarLink.
type CarAttributes struct {
	VIN      string  `json:"vin"`
	Brand    string  `json:"brand,omitempty"`
	Model    string  `json:"model,omitempty"`
	Year     int     `json:"year,omitempty"`
	Color    string  `json:"color,omitempty"`
	Price    float64 `json:"price,omitempty"`
	Status   string  `json:"status,omitempty"`
	Location string  `json:"location,omitempty"`
}

// ClientInfo describes the client who reserved or bought a vehicle.
type ClientInfo struct {
	Name            string     `json:"name"`
	Phone           string     `json:"phone"`
	Email           string     `json:"email,omitempty"`
	Address         string     `json:"address,omitempty"`
	LicensePlate    string     `json:"license_plate,omitempty"`
	Price           float64    `json:"price,omitempty"`
	SaleDate        *time.Time `json:"sale_date,omitempty"`
	ReservationDate *time.Time `json:"reservation_date,omitempty"`
	DeliveryDate    *time.Time `json:"delivery_date,omitempty"`
	Notes           string     `json:"notes,omitempty"`
}

// HasDate reports whether at least one of the sale, reservation or delivery
// dates is set.
func (c ClientInfo) HasDate() bool {
	return c.SaleDate != nil || c.ReservationDate != nil || c.DeliveryDate != nil
}

// Integrity carries provenance and completeness flags for a ClientCarLink.
type Integrity struct {
	RecordedAt       time.Time `json:"recorded_at"`
	RecordedBy       string    `json:"recorded_by"`
	VINVerified      bool      `json:"vin_verified"`
	ClientVerified   bool      `json:"client_verified"`
	DateTimeRecorded bool      `json:"date_time_recorded"`
	AllDataPresent   bool      `json:"all_data_present"`
}

// ComputeIntegrity derives the integrity flags for a VIN and client.
// AllDataPresent is the conjunction of the three checks.
func ComputeIntegrity(vin string, client ClientInfo, recordedAt time.Time, recordedBy string) Integrity {
	in := Integrity{
		RecordedAt:       recordedAt,
		RecordedBy:       recordedBy,
		VINVerified:      len(strings.TrimSpace(vin)) >= MinVINLength,
		ClientVerified:   strings.TrimSpace(client.Name) != "" && strings.TrimSpace(client.Phone) != "",
		DateTimeRecorded: client.HasDate(),
	}
	in.AllDataPresent = in.VINVerified && in.ClientVerified && in.DateTimeRecorded
	return in
}

// ClientCarLink is the join record associating a vehicle with its
// reserving or purchasing client. There is at most one per CarID.
type ClientCarLink struct {
	CarID        string        `json:"car_id"`
	SecondaryKey string        `json:"secondary_key"`
	Car          CarAttributes `json:"car"`
	Status       string        `json:"status"`
	Location     string        `json:"location,omitempty"`
	Client       ClientInfo    `json:"client"`
	LastUpdated  time.Time     `json:"last_updated"`
	Integrity    Integrity     `json:"integrity"`
}

// Evaluate recomputes the integrity flags from the link's current fields,
// keeping the recorded provenance. Readers use it instead of trusting the
// stored flags.
func (l ClientCarLink) Evaluate() Integrity {
	return ComputeIntegrity(l.SecondaryKey, l.Client, l.Integrity.RecordedAt, l.Integrity.RecordedBy)
}

// VehicleFields renders the link as the vehicle fields the linking index
// owns in every store: status, location when known, and the client fields.
// Unset optional client fields are written as "" so that a stale value in a
// store is overwritten.
func (l ClientCarLink) VehicleFields() map[string]any {
	f := map[string]any{
		FieldStatus:          l.Status,
		FieldClientName:      l.Client.Name,
		FieldClientPhone:     l.Client.Phone,
		FieldClientEmail:     l.Client.Email,
		FieldClientAddress:   l.Client.Address,
		FieldLicensePlate:    l.Client.LicensePlate,
		FieldSaleDate:        formatDate(l.Client.SaleDate),
		FieldReservationDate: formatDate(l.Client.ReservationDate),
		FieldDeliveryDate:    formatDate(l.Client.DeliveryDate),
		FieldClientNotes:     l.Client.Notes,
	}
	if l.Client.Price != 0 {
		f[FieldSalePrice] = l.Client.Price
	} else {
		f[FieldSalePrice] = ""
	}
	if l.SecondaryKey != "" {
		f[FieldVIN] = l.SecondaryKey
	}
	if l.Location != "" {
		f[FieldLocation] = l.Location
	}
	return f
}

// ResetFields returns the vehicle fields written to every store when a
// link is removed: status back to in_stock and every client field cleared.
func ResetFields() map[string]any {
	f := make(map[string]any, len(ClientFields)+1)
	f[FieldStatus] = StatusInStock
	for _, name := range ClientFields {
		f[name] = ""
	}
	return f
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
