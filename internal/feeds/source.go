// Package feeds fetches the agency incident feeds, keeps the last good
// snapshot of each and answers filtered queries over them merged with
// community posts.
package feeds

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/kidandcat/communityconnect/internal/incident"
)

// maxFeedBytes caps a feed download.
const maxFeedBytes = 32 << 20

// Batch is one parsed feed download.
type Batch struct {
	Incidents []incident.Incident
	// Skipped counts features dropped for bad properties or geometry.
	Skipped int
}

// Fetcher produces the current incidents of one source.
type Fetcher interface {
	Source() incident.Source
	Fetch(ctx context.Context) (Batch, error)
}

// HTTPFeed downloads a GeoJSON document and parses it.
type HTTPFeed struct {
	source incident.Source
	url    string
	apiKey string
	client *http.Client
	parse  func([]byte) (Batch, error)
}

// NewTrafficFeed reads QLD Traffic events. The API key, when set, is sent
// as the apikey query parameter.
func NewTrafficFeed(feedURL, apiKey string, client *http.Client) *HTTPFeed {
	return &HTTPFeed{source: incident.SourceTraffic, url: feedURL, apiKey: apiKey, client: client, parse: ParseTraffic}
}

// NewEmergencyFeed reads QFES current incidents.
func NewEmergencyFeed(feedURL string, client *http.Client) *HTTPFeed {
	return &HTTPFeed{source: incident.SourceEmergency, url: feedURL, client: client, parse: ParseEmergency}
}

func (f *HTTPFeed) Source() incident.Source { return f.source }

func (f *HTTPFeed) Fetch(ctx context.Context) (Batch, error) {
	u, err := url.Parse(f.url)
	if err != nil {
		return Batch{}, fmt.Errorf("parse feed url: %w", err)
	}
	if f.apiKey != "" {
		q := u.Query()
		q.Set("apikey", f.apiKey)
		u.RawQuery = q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return Batch{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/geo+json, application/json")
	req.Header.Set("User-Agent", "communityconnect/1.0")

	client := f.client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return Batch{}, fmt.Errorf("fetch %s feed: %w", f.source, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Batch{}, fmt.Errorf("fetch %s feed: status %d", f.source, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBytes))
	if err != nil {
		return Batch{}, fmt.Errorf("read %s feed: %w", f.source, err)
	}
	return f.parse(data)
}
