package feeds

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kidandcat/communityconnect/internal/aging"
	"github.com/kidandcat/communityconnect/internal/incident"
	"github.com/kidandcat/communityconnect/internal/metrics"
	"github.com/kidandcat/communityconnect/internal/regions"
)

// PostLoader returns community posts created at or after since as
// incidents.
type PostLoader func(ctx context.Context, since time.Time) ([]incident.Incident, error)

type Options struct {
	// Schedule is a cron spec for background refreshes.
	Schedule string
	// Timeout bounds one source fetch.
	Timeout        time.Duration
	UserPostWindow time.Duration
	Regions        *regions.Table
	Policy         *aging.Policy
	Metrics        *metrics.Metrics
	Logger         *zap.Logger
	Posts          PostLoader
	// OnNew receives agency incidents that appeared since the previous
	// successful refresh of their source.
	OnNew func(ctx context.Context, incs []incident.Incident)
	Now   func() time.Time
}

// SourceStatus describes the health of one agency source.
type SourceStatus struct {
	Source      incident.Source `json:"source"`
	Count       int             `json:"count"`
	Skipped     int             `json:"skipped"`
	LastAttempt time.Time       `json:"last_attempt,omitempty"`
	LastSuccess time.Time       `json:"last_success,omitempty"`
	LastError   string          `json:"last_error,omitempty"`
	// Stale is set when the most recent attempt failed and an older
	// snapshot is being served.
	Stale bool `json:"stale"`
}

type snapshot struct {
	incidents []incident.Incident
	ids       map[string]struct{}
	loaded    bool
	status    SourceStatus
}

type Aggregator struct {
	feeds  []Fetcher
	opts   Options
	logger *zap.Logger
	policy atomic.Pointer[aging.Policy]

	mu        sync.RWMutex
	snapshots map[incident.Source]*snapshot
}

func New(feeds []Fetcher, opts Options) *Aggregator {
	if opts.Schedule == "" {
		opts.Schedule = "@every 2m"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.UserPostWindow <= 0 {
		opts.UserPostWindow = 7 * 24 * time.Hour
	}
	if opts.Regions == nil {
		opts.Regions = regions.Default()
	}
	if opts.Policy == nil {
		opts.Policy = aging.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	a := &Aggregator{
		feeds:     feeds,
		opts:      opts,
		logger:    logger.Named("feeds"),
		snapshots: make(map[incident.Source]*snapshot, len(feeds)),
	}
	a.policy.Store(opts.Policy)
	for _, f := range feeds {
		a.snapshots[f.Source()] = &snapshot{status: SourceStatus{Source: f.Source()}}
	}
	return a
}

// Policy returns the aging policy in effect.
func (a *Aggregator) Policy() *aging.Policy { return a.policy.Load() }

// SetPolicy swaps the aging policy, e.g. after a config reload.
func (a *Aggregator) SetPolicy(p *aging.Policy) {
	if p != nil {
		a.policy.Store(p)
	}
}

// Regions returns the region table used to label incidents.
func (a *Aggregator) Regions() *regions.Table { return a.opts.Regions }

// Refresh fetches every source concurrently. A failing source keeps its
// previous snapshot; the returned error joins the failures.
func (a *Aggregator) Refresh(ctx context.Context) error {
	var (
		mu    sync.Mutex
		errs  []error
		fresh []incident.Incident
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, f := range a.feeds {
		g.Go(func() error {
			added, err := a.refreshOne(gctx, f)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
			}
			fresh = append(fresh, added...)
			// Never fail the group: one source must not cancel the others.
			return nil
		})
	}
	_ = g.Wait()

	if len(fresh) > 0 && a.opts.OnNew != nil {
		a.opts.OnNew(ctx, fresh)
	}
	return errors.Join(errs...)
}

func (a *Aggregator) refreshOne(ctx context.Context, f Fetcher) ([]incident.Incident, error) {
	src := f.Source()
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, a.opts.Timeout)
	defer cancel()

	batch, err := f.Fetch(ctx)
	a.observe(src, start, err)

	attempt := a.opts.Now().UTC()
	a.mu.Lock()
	defer a.mu.Unlock()
	snap := a.snapshots[src]
	snap.status.LastAttempt = attempt

	if err != nil {
		snap.status.LastError = err.Error()
		snap.status.Stale = snap.loaded
		a.logger.Warn("feed refresh failed",
			zap.String("source", string(src)),
			zap.Bool("serving_stale", snap.loaded),
			zap.Error(err))
		return nil, fmt.Errorf("%s: %w", src, err)
	}

	ids := make(map[string]struct{}, len(batch.Incidents))
	incs := make([]incident.Incident, 0, len(batch.Incidents))
	var added []incident.Incident
	for _, inc := range batch.Incidents {
		if _, dup := ids[inc.ID]; dup {
			continue
		}
		ids[inc.ID] = struct{}{}
		if r := a.opts.Regions.Resolve(inc.Suburb, inc.Address+" "+inc.Title, inc.Location); r != nil {
			inc.Region = r.Slug
		}
		incs = append(incs, inc)
		if _, seen := snap.ids[inc.ID]; snap.loaded && !seen {
			added = append(added, inc)
		}
	}

	snap.incidents = incs
	snap.ids = ids
	snap.loaded = true
	snap.status.Count = len(incs)
	snap.status.Skipped = batch.Skipped
	snap.status.LastSuccess = attempt
	snap.status.LastError = ""
	snap.status.Stale = false

	if m := a.opts.Metrics; m != nil {
		m.FeedIncidents.WithLabelValues(string(src)).Set(float64(len(incs)))
		m.FeedSkipped.WithLabelValues(string(src)).Add(float64(batch.Skipped))
	}
	a.logger.Debug("feed refreshed",
		zap.String("source", string(src)),
		zap.Int("incidents", len(incs)),
		zap.Int("skipped", batch.Skipped),
		zap.Int("new", len(added)))
	return added, nil
}

func (a *Aggregator) observe(src incident.Source, start time.Time, err error) {
	m := a.opts.Metrics
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.FeedRefreshes.WithLabelValues(string(src), result).Inc()
	m.FeedRefreshTime.WithLabelValues(string(src)).Observe(time.Since(start).Seconds())
}

// Run refreshes once, then on the configured schedule until ctx is done.
func (a *Aggregator) Run(ctx context.Context) error {
	c := cron.New()
	_, err := c.AddFunc(a.opts.Schedule, func() {
		if err := a.Refresh(ctx); err != nil {
			a.logger.Debug("scheduled refresh incomplete", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("schedule feed refresh: %w", err)
	}

	if err := a.Refresh(ctx); err != nil {
		a.logger.Warn("initial feed refresh incomplete", zap.Error(err))
	}

	c.Start()
	a.logger.Info("feed refresh scheduled", zap.String("schedule", a.opts.Schedule))
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

// Snapshot returns a copy of the current agency incidents.
func (a *Aggregator) Snapshot() []incident.Incident {
	a.mu.RLock()
	defer a.mu.RUnlock()
	var out []incident.Incident
	for _, f := range a.feeds {
		out = append(out, a.snapshots[f.Source()].incidents...)
	}
	return out
}

// Status reports every agency source in registration order.
func (a *Aggregator) Status() []SourceStatus {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]SourceStatus, 0, len(a.feeds))
	for _, f := range a.feeds {
		out = append(out, a.snapshots[f.Source()].status)
	}
	return out
}

// Incidents merges the agency snapshots with recent community posts.
func (a *Aggregator) Incidents(ctx context.Context) ([]incident.Incident, error) {
	all := a.Snapshot()
	if a.opts.Posts == nil {
		return all, nil
	}
	posts, err := a.opts.Posts(ctx, a.opts.Now().Add(-a.opts.UserPostWindow))
	if err != nil {
		return nil, fmt.Errorf("load posts: %w", err)
	}
	return append(all, posts...), nil
}
