// Package audit keeps the integrity log of client link changes and reports
// on data completeness and recent syncs. It is advisory: nothing here ever
// rejects a write.
package audit

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/exp/slog"

	"github.com/mesh-intelligence/carsync/internal/logger"
	"github.com/mesh-intelligence/carsync/pkg/types"
)

// RecentEntries is the number of integrity log entries in a Report.
const RecentEntries = 10

// Repository is the slice of types.Repository the audit log needs.
type Repository interface {
	types.SyncLogStore
	types.IntegrityLogStore
	ClientLinks(ctx context.Context) ([]types.ClientCarLink, error)
}

// Report summarizes the completeness of the current client links.
type Report struct {
	Total        int                       `json:"total"`
	Complete     int                       `json:"complete"`
	Incomplete   int                       `json:"incomplete"`
	WithVIN      int                       `json:"with_vin"`
	WithClient   int                       `json:"with_client"`
	WithDateTime int                       `json:"with_date_time"`
	Recent       []types.IntegrityLogEntry `json:"recent"`
}

// Log appends and reads the audit collections.
type Log struct {
	repo Repository
	log  *slog.Logger
	now  func() time.Time
}

// Option configures a Log.
type Option func(*Log)

// WithClock replaces the log clock.
func WithClock(now func() time.Time) Option {
	return func(l *Log) { l.now = now }
}

// New creates a Log over repo.
func New(repo Repository, log *slog.Logger, opts ...Option) *Log {
	l := &Log{
		repo: repo,
		log:  logger.OrDiscard(log).With(slog.String("component", "audit")),
		now:  func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// RecordLink appends an integrity entry for a link, unlink or backfill of
// link. The flags are recomputed from the link's fields.
func (l *Log) RecordLink(ctx context.Context, action string, link types.ClientCarLink) error {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	entry := types.IntegrityLogEntry{
		ID:          id.String(),
		Timestamp:   l.now(),
		Action:      action,
		CarID:       link.CarID,
		VIN:         link.SecondaryKey,
		Status:      link.Status,
		ClientName:  link.Client.Name,
		ClientPhone: link.Client.Phone,
		RecordedBy:  link.Integrity.RecordedBy,
		Integrity:   link.Evaluate(),
	}
	if err := l.repo.AppendIntegrityLog(ctx, entry); err != nil {
		return err
	}
	l.log.Debug("integrity entry recorded",
		slog.String("action", action),
		slog.String("car", link.CarID),
		slog.Bool("all_data_present", entry.Integrity.AllDataPresent),
	)
	return nil
}

// IntegrityReport counts current links by completeness and returns the
// newest integrity log entries first.
func (l *Log) IntegrityReport(ctx context.Context) (Report, error) {
	links, err := l.repo.ClientLinks(ctx)
	if err != nil {
		return Report{}, err
	}
	entries, err := l.repo.IntegrityLog(ctx)
	if err != nil {
		return Report{}, err
	}

	r := Report{Total: len(links)}
	for _, link := range links {
		in := link.Evaluate()
		if in.AllDataPresent {
			r.Complete++
		} else {
			r.Incomplete++
		}
		if in.VINVerified {
			r.WithVIN++
		}
		if in.ClientVerified {
			r.WithClient++
		}
		if in.DateTimeRecorded {
			r.WithDateTime++
		}
	}
	r.Recent = newest(entries, RecentEntries, func(e types.IntegrityLogEntry) time.Time { return e.Timestamp })
	return r, nil
}

// Entries returns the whole integrity log, oldest first.
func (l *Log) Entries(ctx context.Context) ([]types.IntegrityLogEntry, error) {
	return l.repo.IntegrityLog(ctx)
}

// RecentSyncs returns the n newest sync log entries, newest first. A
// non-positive n returns the whole log.
func (l *Log) RecentSyncs(ctx context.Context, n int) ([]types.SyncLogEntry, error) {
	entries, err := l.repo.SyncLog(ctx)
	if err != nil {
		return nil, err
	}
	if n <= 0 {
		n = len(entries)
	}
	return newest(entries, n, func(e types.SyncLogEntry) time.Time { return e.Timestamp }), nil
}

// newest returns up to n entries of an append-ordered log, newest first.
// Entries with equal timestamps keep reverse append order.
func newest[T any](entries []T, n int, at func(T) time.Time) []T {
	out := make([]T, len(entries))
	for i, e := range entries {
		out[len(entries)-1-i] = e
	}
	sort.SliceStable(out, func(a, b int) bool { return at(out[a]).After(at(out[b])) })
	if len(out) > n {
		out = out[:n]
	}
	return out
}
