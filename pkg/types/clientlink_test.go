package types

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestComputeIntegrity_AllCombinations(t *testing.T) {
	now := time.Date(2026, 5, 4, 9, 30, 0, 0, time.UTC)

	for _, vinOK := range []bool{false, true} {
		for _, clientOK := range []bool{false, true} {
			for _, dateOK := range []bool{false, true} {
				name := fmt.Sprintf("vin=%t client=%t date=%t", vinOK, clientOK, dateOK)
				t.Run(name, func(t *testing.T) {
					vin := "SHORT"
					if vinOK {
						vin = "1HGCM82633A004352"
					}
					client := ClientInfo{}
					if clientOK {
						client.Name = "Ana Petrova"
						client.Phone = "+359888123456"
					}
					if dateOK {
						client.DeliveryDate = &now
					}

					in := ComputeIntegrity(vin, client, now, "clerk")
					assert.Equal(t, vinOK, in.VINVerified)
					assert.Equal(t, clientOK, in.ClientVerified)
					assert.Equal(t, dateOK, in.DateTimeRecorded)
					assert.Equal(t, vinOK && clientOK && dateOK, in.AllDataPresent)
					assert.Equal(t, "clerk", in.RecordedBy)
					assert.Equal(t, now, in.RecordedAt)
				})
			}
		}
	}
}

func TestComputeIntegrity_Boundaries(t *testing.T) {
	now := time.Now()
	assert.False(t, ComputeIntegrity("123456789", ClientInfo{}, now, "").VINVerified)
	assert.True(t, ComputeIntegrity("1234567890", ClientInfo{}, now, "").VINVerified)
	assert.False(t, ComputeIntegrity("", ClientInfo{Name: "Ana"}, now, "").ClientVerified)
	assert.False(t, ComputeIntegrity("", ClientInfo{Phone: "555"}, now, "").ClientVerified)
	assert.False(t, ComputeIntegrity("", ClientInfo{Name: "  ", Phone: "555"}, now, "").ClientVerified)
	assert.True(t, ComputeIntegrity("", ClientInfo{SaleDate: &now}, now, "").DateTimeRecorded)
	assert.True(t, ComputeIntegrity("", ClientInfo{ReservationDate: &now}, now, "").DateTimeRecorded)
}

func TestClientCarLink_Evaluate(t *testing.T) {
	now := time.Now().UTC()
	link := ClientCarLink{
		CarID:        "c1",
		SecondaryKey: "1HGCM82633A004352",
		Client:       ClientInfo{Name: "Ana", Phone: "555", SaleDate: &now},
		Integrity:    Integrity{RecordedBy: "clerk", RecordedAt: now},
	}
	in := link.Evaluate()
	assert.True(t, in.AllDataPresent)
	assert.Equal(t, "clerk", in.RecordedBy)

	link.Client.Phone = ""
	assert.False(t, link.Evaluate().AllDataPresent)
}

func TestClientCarLink_VehicleFields(t *testing.T) {
	sale := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	link := ClientCarLink{
		CarID:        "c1",
		SecondaryKey: "1HGCM82633A004352",
		Status:       StatusSold,
		Location:     StoreShowroom1,
		Client:       ClientInfo{Name: "Ana", Phone: "555", SaleDate: &sale, Price: 12500},
	}

	f := link.VehicleFields()
	assert.Equal(t, StatusSold, f[FieldStatus])
	assert.Equal(t, "Ana", f[FieldClientName])
	assert.Equal(t, "555", f[FieldClientPhone])
	assert.Equal(t, "2026-01-02T03:04:05Z", f[FieldSaleDate])
	assert.Equal(t, "", f[FieldDeliveryDate])
	assert.Equal(t, 12500.0, f[FieldSalePrice])
	assert.Equal(t, StoreShowroom1, f[FieldLocation])
	assert.Equal(t, "1HGCM82633A004352", f[FieldVIN])
}

func TestResetFields(t *testing.T) {
	f := ResetFields()
	assert.Equal(t, StatusInStock, f[FieldStatus])
	for _, name := range ClientFields {
		assert.Equal(t, "", f[name], name)
	}
}
