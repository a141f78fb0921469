package audit

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/carsync/internal/memstore"
	"github.com/mesh-intelligence/carsync/pkg/types"
)

func date(t time.Time) *time.Time { return &t }

func TestRecordLinkRecomputesIntegrity(t *testing.T) {
	ctx := context.Background()
	repo := memstore.Open()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	l := New(repo, nil, WithClock(func() time.Time { return now }))

	link := types.ClientCarLink{
		CarID:        "c1",
		SecondaryKey: "1HGCM82633A004352",
		Status:       types.StatusSold,
		Client:       types.ClientInfo{Name: "Ana", Phone: "555", SaleDate: date(now)},
		Integrity:    types.Integrity{RecordedBy: "clerk"},
	}
	require.NoError(t, l.RecordLink(ctx, types.ActionLink, link))

	entries, err := l.Entries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	e := entries[0]
	assert.NotEmpty(t, e.ID)
	assert.Equal(t, types.ActionLink, e.Action)
	assert.Equal(t, "c1", e.CarID)
	assert.Equal(t, "clerk", e.RecordedBy)
	assert.True(t, now.Equal(e.Timestamp))
	assert.True(t, e.Integrity.AllDataPresent, "stale stored flags are not trusted")
}

func TestIntegrityReport(t *testing.T) {
	ctx := context.Background()
	repo := memstore.Open()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	tick := 0
	l := New(repo, nil, WithClock(func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}))

	links := []types.ClientCarLink{
		{CarID: "full", SecondaryKey: "1HGCM82633A004352", Client: types.ClientInfo{Name: "A", Phone: "1", SaleDate: date(base)}},
		{CarID: "short-vin", SecondaryKey: "SHORT", Client: types.ClientInfo{Name: "B", Phone: "2", DeliveryDate: date(base)}},
		{CarID: "no-client", SecondaryKey: "1HGCM82633A004353", Client: types.ClientInfo{ReservationDate: date(base)}},
		{CarID: "no-date", SecondaryKey: "1HGCM82633A004354", Client: types.ClientInfo{Name: "C", Phone: "3"}},
	}
	for _, link := range links {
		require.NoError(t, repo.SaveClientLink(ctx, link))
	}
	for n := 0; n < 12; n++ {
		require.NoError(t, l.RecordLink(ctx, types.ActionLink, types.ClientCarLink{CarID: fmt.Sprintf("car-%02d", n)}))
	}

	r, err := l.IntegrityReport(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, r.Total)
	assert.Equal(t, 1, r.Complete)
	assert.Equal(t, 3, r.Incomplete)
	assert.Equal(t, 3, r.WithVIN)
	assert.Equal(t, 3, r.WithClient)
	assert.Equal(t, 3, r.WithDateTime)

	require.Len(t, r.Recent, RecentEntries)
	assert.Equal(t, "car-11", r.Recent[0].CarID, "newest first")
	assert.Equal(t, "car-02", r.Recent[RecentEntries-1].CarID)
}

func TestIntegrityReportEmpty(t *testing.T) {
	r, err := New(memstore.Open(), nil).IntegrityReport(context.Background())
	require.NoError(t, err)
	assert.Zero(t, r.Total)
	assert.Empty(t, r.Recent)
}

func TestRecentSyncs(t *testing.T) {
	ctx := context.Background()
	repo := memstore.Open()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for n := 0; n < 5; n++ {
		require.NoError(t, repo.AppendSyncLog(ctx, types.SyncLogEntry{
			ID:        fmt.Sprintf("s%d", n),
			Timestamp: base.Add(time.Duration(n) * time.Second),
			Success:   true,
		}))
	}
	l := New(repo, nil)

	tests := []struct {
		name string
		n    int
		want []string
	}{
		{name: "fewer than log", n: 2, want: []string{"s4", "s3"}},
		{name: "more than log", n: 9, want: []string{"s4", "s3", "s2", "s1", "s0"}},
		{name: "all", n: 0, want: []string{"s4", "s3", "s2", "s1", "s0"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := l.RecentSyncs(ctx, tt.n)
			require.NoError(t, err)
			ids := make([]string, len(got))
			for i, e := range got {
				ids[i] = e.ID
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestRecentSyncsEqualTimestampsKeepAppendOrder(t *testing.T) {
	ctx := context.Background()
	repo := memstore.Open()
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, repo.AppendSyncLog(ctx, types.SyncLogEntry{ID: id, Timestamp: at}))
	}
	got, err := New(repo, nil).RecentSyncs(ctx, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "c", got[0].ID)
	assert.Equal(t, "b", got[1].ID)
}
