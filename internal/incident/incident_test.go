package incident

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseCategory(t *testing.T) {
	tests := []struct {
		in   string
		want Category
		ok   bool
	}{
		{"traffic", CategoryTraffic, true},
		{" Fire ", CategoryFire, true},
		{"lost-found", CategoryLostFound, true},
		{"Lost & Found", CategoryLostFound, true},
		{"volcano", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseCategory(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
	assert.Equal(t, CategoryOther, NormalizeCategory("volcano"))
}

func TestSeverityOrdering(t *testing.T) {
	assert.Less(t, SeverityLow.Rank(), SeverityMedium.Rank())
	assert.Less(t, SeverityHigh.Rank(), SeverityCritical.Rank())
	assert.Equal(t, SeverityMedium.Rank(), Severity("bogus").Rank())
	assert.Equal(t, SeverityCritical, MaxSeverity(SeverityCritical, SeverityLow))
	assert.Equal(t, SeverityHigh, MaxSeverity(SeverityMedium, SeverityHigh))
	assert.Equal(t, SeverityMedium, NormalizeSeverity("unknown"))
}

func TestReferenceTime(t *testing.T) {
	published := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	updated := published.Add(3 * time.Hour)

	live := Incident{Source: SourceTraffic, Active: true, PublishedAt: published, UpdatedAt: updated}
	assert.Equal(t, updated, live.ReferenceTime())

	closed := Incident{Source: SourceTraffic, PublishedAt: published, UpdatedAt: updated}
	assert.Equal(t, published, closed.ReferenceTime())

	post := Incident{Source: SourceUser, Active: true, PublishedAt: published, UpdatedAt: updated}
	assert.Equal(t, published, post.ReferenceTime())

	noPublish := Incident{Source: SourceEmergency, UpdatedAt: updated}
	assert.Equal(t, updated, noPublish.ReferenceTime())
}
