// Package notify matches new incidents against user notification
// preferences and delivers the matches in-app and over live connections.
package notify

import (
	"context"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/kidandcat/communityconnect/internal/db"
	"github.com/kidandcat/communityconnect/internal/geo"
	"github.com/kidandcat/communityconnect/internal/incident"
	"github.com/kidandcat/communityconnect/internal/live"
	"github.com/kidandcat/communityconnect/internal/metrics"
	"github.com/kidandcat/communityconnect/internal/regions"
	"github.com/kidandcat/communityconnect/internal/render"
)

// Publisher is the part of the live hub the notifier needs.
type Publisher interface {
	Connected(userID int64) bool
	SendToUser(userID int64, ev live.Event) int
	Broadcast(ev live.Event) int
}

type Notifier struct {
	regions *regions.Table
	live    Publisher
	metrics *metrics.Metrics
	logger  *zap.Logger
}

func New(table *regions.Table, pub Publisher, m *metrics.Metrics, logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{regions: table, live: pub, metrics: m, logger: logger.Named("notify")}
}

// Matches reports whether inc should be delivered to sub.
func (n *Notifier) Matches(sub db.Subscriber, inc *incident.Incident) bool {
	p := sub.Prefs
	if !p.Enabled {
		return false
	}
	if inc.Source == incident.SourceUser && inc.AuthorID == sub.User.ID {
		return false
	}
	if len(p.Categories) > 0 && !slices.ContainsFunc(p.Categories, func(c string) bool {
		return incident.NormalizeCategory(c) == inc.Category
	}) {
		return false
	}
	if inc.Severity.Rank() < incident.NormalizeSeverity(p.MinSeverity).Rank() {
		return false
	}

	wanted := p.Regions
	if len(wanted) == 0 && sub.User.HomeRegion != "" {
		wanted = []string{sub.User.HomeRegion}
	}
	if len(wanted) > 0 && !slices.ContainsFunc(wanted, func(slug string) bool {
		return n.inRegion(slug, inc)
	}) {
		return false
	}

	if p.RadiusKm > 0 {
		if sub.User.HomeLat == nil || sub.User.HomeLng == nil || !inc.Location.Valid() {
			return false
		}
		home := geo.Point{Lat: *sub.User.HomeLat, Lng: *sub.User.HomeLng}
		if geo.Haversine(home, inc.Location) > p.RadiusKm {
			return false
		}
	}
	return true
}

func (n *Notifier) inRegion(slug string, inc *incident.Incident) bool {
	if inc.Region == slug {
		return true
	}
	r := n.regions.Get(slug)
	if r == nil {
		return false
	}
	return n.regions.Match(r, inc.Suburb, inc.Address+" "+inc.Title, inc.Location)
}

// Dispatch broadcasts each incident to live clients and records a
// notification for every subscriber that matches and can be reached.
// It returns the number of notifications created.
func (n *Notifier) Dispatch(ctx context.Context, incs []incident.Incident) (int, error) {
	if len(incs) == 0 {
		return 0, nil
	}
	for i := range incs {
		n.live.Broadcast(live.Event{Type: live.EventIncident, Data: incs[i]})
	}

	subs, err := db.ListSubscribers(ctx)
	if err != nil {
		return 0, fmt.Errorf("list subscribers: %w", err)
	}

	created := 0
	for _, sub := range subs {
		if !sub.HasPush && !n.live.Connected(sub.User.ID) {
			continue
		}
		for i := range incs {
			inc := &incs[i]
			if !n.Matches(sub, inc) {
				continue
			}
			title, body := message(inc)
			nt, ok, err := db.CreateNotification(ctx, sub.User.ID, inc.ID, title, body)
			if err != nil {
				return created, err
			}
			if !ok {
				continue
			}
			created++
			if n.metrics != nil {
				n.metrics.NotificationsSent.Inc()
			}
			n.live.SendToUser(sub.User.ID, live.Event{Type: live.EventNotification, Data: nt})
		}
	}

	if created > 0 {
		n.logger.Info("notifications created", zap.Int("incidents", len(incs)), zap.Int("notifications", created))
	}
	return created, nil
}

// Handle is the aggregator callback; errors are logged.
func (n *Notifier) Handle(ctx context.Context, incs []incident.Incident) {
	if _, err := n.Dispatch(ctx, incs); err != nil {
		n.logger.Error("dispatch notifications", zap.Error(err))
	}
}

func message(inc *incident.Incident) (title, body string) {
	title = render.Truncate(render.PlainText(inc.Title), 80)
	where := inc.Suburb
	if where == "" {
		where = inc.Address
	}
	body = string(inc.Severity)
	if where != "" {
		body += " · " + where
	}
	if d := render.Truncate(render.PlainText(inc.Description), 140); d != "" {
		body += "\n" + d
	}
	return title, body
}
