package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/montanaflynn/stats"
	"golang.org/x/sync/singleflight"

	"pandemic-dashboard/internal/chart"
	"pandemic-dashboard/internal/models"
	"pandemic-dashboard/internal/observability"
	"pandemic-dashboard/internal/pagination"
)

var ErrRecordNotFound = errors.New("record not found")

const defaultReloadTimeout = 30 * time.Second

const (
	SourceNone     = "none"
	SourceBackend  = "backend"
	SourceSnapshot = "snapshot"
)

// Store is the remote side of the dashboard: the statistics backend.
type Store interface {
	List(ctx context.Context) ([]models.Record, error)
	Create(ctx context.Context, r models.Record) (models.MutationResult, error)
	Update(ctx context.Context, r models.Record) (models.MutationResult, error)
	Delete(ctx context.Context, key models.Key) (models.MutationResult, error)
}

// Mutation reports a server-confirmed change after it has been applied to
// the local result set.
type Mutation struct {
	Message string
	Key     models.Key
	Record  models.Record
	Removed int
}

// Dashboard owns the in-memory result set. Every read and every page
// computation goes through it; it is the only writer.
type Dashboard struct {
	mu       sync.RWMutex
	records  []models.Record
	loadedAt time.Time
	source   string

	pageSize      int
	store         Store
	snapshots     *SnapshotCache
	logger        *slog.Logger
	reloads       singleflight.Group
	reloadTimeout time.Duration
	reloadCnt     atomic.Int64
}

type Option func(*Dashboard)

func WithSnapshots(c *SnapshotCache) Option {
	return func(d *Dashboard) {
		d.snapshots = c
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(d *Dashboard) {
		d.logger = logger
	}
}

// WithReloadTimeout bounds a shared reload fetch, which no single caller
// can cancel.
func WithReloadTimeout(timeout time.Duration) Option {
	return func(d *Dashboard) {
		if timeout > 0 {
			d.reloadTimeout = timeout
		}
	}
}

func NewDashboard(store Store, pageSize int, opts ...Option) *Dashboard {
	d := &Dashboard{
		records:       []models.Record{},
		source:        SourceNone,
		pageSize:      pageSize,
		store:         store,
		logger:        slog.Default(),
		reloadTimeout: defaultReloadTimeout,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Dashboard) PageSize() int {
	return d.pageSize
}

// SetRecords replaces the result set wholesale.
func (d *Dashboard) SetRecords(records []models.Record) {
	d.replace(records, SourceBackend)
}

func (d *Dashboard) replace(records []models.Record, source string) {
	cp := slices.Clone(records)
	if cp == nil {
		cp = []models.Record{}
	}

	d.mu.Lock()
	d.records = cp
	d.loadedAt = time.Now()
	d.source = source
	d.mu.Unlock()
}

// Reload fetches the full result set and replaces the local copy. Callers
// arriving while a fetch is in flight share its result. The fetch keeps the
// first caller's context values but not its cancellation, so one caller
// giving up returns early without failing the others.
func (d *Dashboard) Reload(ctx context.Context) error {
	ch := d.reloads.DoChan("reload", func() (any, error) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.reloadTimeout)
		defer cancel()

		ctx, span := observability.StartSpan(ctx, "dashboard.reload")
		defer span.Finish(d.logger)

		records, err := d.store.List(ctx)
		if err != nil {
			span.SetError(err)
			return nil, fmt.Errorf("fetch records: %w", err)
		}
		span.SetTag("records", fmt.Sprint(len(records)))

		d.replace(records, SourceBackend)
		d.reloadCnt.Add(1)

		if d.snapshots != nil {
			if err := d.snapshots.Save(records); err != nil {
				d.logger.WarnContext(ctx, "failed to save snapshot", "error", err)
			}
		}
		return nil, nil
	})

	select {
	case res := <-ch:
		if res.Shared {
			d.logger.DebugContext(ctx, "reload shared with in-flight fetch")
		}
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// LoadInitial performs the first fetch. When the backend is unreachable the
// last snapshot, if any, stands in until the next successful reload.
func (d *Dashboard) LoadInitial(ctx context.Context) error {
	err := d.Reload(ctx)
	if err == nil {
		return nil
	}
	if d.snapshots == nil {
		return err
	}

	snap, snapErr := d.snapshots.Load()
	if snapErr != nil {
		return errors.Join(err, fmt.Errorf("load snapshot: %w", snapErr))
	}

	d.replace(snap.Records, SourceSnapshot)
	d.logger.Warn("backend unavailable, serving snapshot",
		"error", err,
		"records", len(snap.Records),
		"saved_at", snap.SavedAt,
	)
	return nil
}

func (d *Dashboard) filtered(f models.Filter) []models.Record {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if f.IsZero() {
		return slices.Clone(d.records)
	}
	out := make([]models.Record, 0, len(d.records))
	for _, r := range d.records {
		if f.Match(r) {
			out = append(out, r)
		}
	}
	return out
}

func (d *Dashboard) Records(f models.Filter) []models.Record {
	return d.filtered(f)
}

func (d *Dashboard) Page(n int, f models.Filter) pagination.View[models.Record] {
	return pagination.DisplayPage(d.filtered(f), n, d.pageSize)
}

// PageOf returns the page that holds key under filter f, or false when the
// key is absent or filtered out.
func (d *Dashboard) PageOf(key models.Key, f models.Filter) (int, bool) {
	idx := slices.IndexFunc(d.filtered(f), func(r models.Record) bool {
		return r.Key() == key
	})
	if idx < 0 {
		return 0, false
	}
	return pagination.PageOf(idx, d.pageSize), true
}

func (d *Dashboard) TotalPages(f models.Filter) int {
	return pagination.TotalPages(len(d.filtered(f)), d.pageSize)
}

func (d *Dashboard) Lookup(key models.Key) (models.Record, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, r := range d.records {
		if r.Key() == key {
			return r, true
		}
	}
	return models.Record{}, false
}

func (d *Dashboard) TimeSeriesChart(f models.Filter) chart.Dataset {
	return chart.FromTimeSeries(chart.TimeSeries(d.filtered(f)))
}

func (d *Dashboard) MortalityChart(page int, f models.Filter) chart.Dataset {
	return chart.FromCategories("Mortality rate (%)", chart.MortalityByRow(d.Page(page, f).Items))
}

func (d *Dashboard) Summary(f models.Filter) models.Summary {
	records := d.filtered(f)
	s := models.Summary{Records: len(records)}

	var mortality, recovery stats.Float64Data
	for _, r := range records {
		s.TotalCases += r.Cases
		s.TotalDeaths += r.Deaths
		s.TotalRecovered += r.Recovered
		s.TotalActive += r.Active
		if r.MortalityRate != nil {
			mortality = append(mortality, *r.MortalityRate)
		}
		if r.RecoveryRate != nil {
			recovery = append(recovery, *r.RecoveryRate)
		}
	}

	if mean, err := stats.Mean(mortality); err == nil {
		s.MeanMortalityRate = &mean
	}
	if median, err := stats.Median(recovery); err == nil {
		s.MedianRecoveryRate = &median
	}
	return s
}

// Create sends r to the backend and, once confirmed, upserts it locally:
// the backend resolves a key conflict by overwriting, so do we.
func (d *Dashboard) Create(ctx context.Context, r models.Record) (Mutation, error) {
	res, err := d.store.Create(ctx, r)
	if err != nil {
		return Mutation{}, fmt.Errorf("create %s/%s: %w", r.Country, r.Date, err)
	}

	d.mu.Lock()
	replaced := replaceAll(d.records, r)
	if replaced == 0 {
		d.records = append(d.records, r)
	}
	d.mu.Unlock()

	return Mutation{Message: res.Message, Key: r.Key(), Record: r}, nil
}

// Update overlays patch on the local record and PUTs the complete result.
func (d *Dashboard) Update(ctx context.Context, key models.Key, patch models.Patch) (Mutation, error) {
	current, ok := d.Lookup(key)
	if !ok {
		return Mutation{}, fmt.Errorf("update %s/%s: %w", key.Country, key.Date, ErrRecordNotFound)
	}
	updated := patch.Apply(current)

	res, err := d.store.Update(ctx, updated)
	if err != nil {
		return Mutation{}, fmt.Errorf("update %s/%s: %w", key.Country, key.Date, err)
	}

	d.mu.Lock()
	replaced := replaceAll(d.records, updated)
	if replaced == 0 {
		// removed by a concurrent reload after our lookup; the backend has it
		d.records = append(d.records, updated)
	}
	d.mu.Unlock()

	return Mutation{Message: res.Message, Key: key, Record: updated}, nil
}

// Delete removes every local record carrying key once the backend confirms.
func (d *Dashboard) Delete(ctx context.Context, key models.Key) (Mutation, error) {
	res, err := d.store.Delete(ctx, key)
	if err != nil {
		return Mutation{}, fmt.Errorf("delete %s/%s: %w", key.Country, key.Date, err)
	}

	d.mu.Lock()
	before := len(d.records)
	d.records = slices.DeleteFunc(d.records, func(r models.Record) bool {
		return r.Key() == key
	})
	removed := before - len(d.records)
	d.mu.Unlock()

	return Mutation{Message: res.Message, Key: key, Removed: removed}, nil
}

func replaceAll(records []models.Record, r models.Record) int {
	n := 0
	for i := range records {
		if records[i].Key() == r.Key() {
			records[i] = r
			n++
		}
	}
	return n
}

// FlushSnapshot writes the current result set to the snapshot cache, so
// confirmed mutations survive a restart. A set that was never loaded is not
// written.
func (d *Dashboard) FlushSnapshot() error {
	if d.snapshots == nil {
		return nil
	}

	d.mu.RLock()
	source := d.source
	records := slices.Clone(d.records)
	d.mu.RUnlock()

	if source == SourceNone {
		return nil
	}
	d.logger.Info("flushing snapshot", "records", len(records))
	return d.snapshots.Save(records)
}

// Stats is exposed for monitoring.
func (d *Dashboard) Stats() map[string]any {
	d.mu.RLock()
	defer d.mu.RUnlock()

	countries := make(map[string]struct{})
	for _, r := range d.records {
		countries[r.Country] = struct{}{}
	}

	return map[string]any{
		"record_count": len(d.records),
		"countries":    len(countries),
		"page_size":    d.pageSize,
		"total_pages":  pagination.TotalPages(len(d.records), d.pageSize),
		"loaded_at":    d.loadedAt,
		"source":       d.source,
		"reloads":      d.reloadCnt.Load(),
	}
}
