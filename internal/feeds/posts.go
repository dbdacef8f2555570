package feeds

import (
	"context"
	"strconv"
	"time"

	"github.com/kidandcat/communityconnect/internal/db"
	"github.com/kidandcat/communityconnect/internal/geo"
	"github.com/kidandcat/communityconnect/internal/incident"
	"github.com/kidandcat/communityconnect/internal/regions"
)

// FromPost converts a community post into a unified incident. The region
// is resolved from the post's suburb and location when it was not stored.
func FromPost(p *db.Post, table *regions.Table) incident.Incident {
	inc := incident.Incident{
		ID:          incident.MakeID(incident.SourceUser, strconv.FormatInt(p.ID, 10)),
		Source:      incident.SourceUser,
		SourceID:    strconv.FormatInt(p.ID, 10),
		Title:       p.Title,
		Description: p.Description,
		Category:    incident.NormalizeCategory(p.Category),
		Severity:    incident.NormalizeSeverity(p.Severity),
		Status:      p.Status,
		Location:    geo.Point{Lat: p.Lat, Lng: p.Lng},
		Address:     p.LocationText,
		Suburb:      p.Suburb,
		Region:      p.Region,
		PublishedAt: p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
		Active:      p.Status == db.PostActive,
		URL:         "/posts/" + strconv.FormatInt(p.ID, 10),
		AuthorID:    p.UserID,
	}
	if inc.Region == "" && table != nil {
		if r := table.Resolve(p.Suburb, p.LocationText, inc.Location); r != nil {
			inc.Region = r.Slug
		}
	}
	return inc
}

// DBPosts loads recent posts from storage.
func DBPosts(table *regions.Table) PostLoader {
	return func(ctx context.Context, since time.Time) ([]incident.Incident, error) {
		posts, err := db.ListRecentPosts(ctx, since, 0)
		if err != nil {
			return nil, err
		}
		out := make([]incident.Incident, 0, len(posts))
		for _, p := range posts {
			out = append(out, FromPost(p, table))
		}
		return out, nil
	}
}
