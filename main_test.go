package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kidandcat/communityconnect/internal/config"
	"github.com/kidandcat/communityconnect/internal/feeds"
	"github.com/kidandcat/communityconnect/internal/incident"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := rootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRegionsLookup(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"suburb", []string{"regions", "lookup", "Burleigh", "Heads"}, "gold-coast"},
		{"address text", []string{"regions", "lookup", "Corner of Queen St, Brisbane City"}, "brisbane"},
		{"point", []string{"regions", "lookup", "--at", "-16.92,145.77"}, "cairns"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, tt.args...)
			require.NoError(t, err)
			assert.Contains(t, out, tt.want)
		})
	}

	_, err := execute(t, "regions", "lookup")
	assert.Error(t, err)
	_, err = execute(t, "regions", "lookup", "--at", "north")
	assert.Error(t, err)
}

func TestRegionsList(t *testing.T) {
	out, err := execute(t, "regions")
	require.NoError(t, err)
	assert.Contains(t, out, "SLUG")
	assert.Contains(t, out, "brisbane")
	assert.Contains(t, out, "gold-coast")
}

func TestMigrate(t *testing.T) {
	t.Setenv("CC_LOG_LEVEL", "error")
	_, err := execute(t, "migrate", "--data-dir", t.TempDir())
	require.NoError(t, err)
}

func TestParseLatLng(t *testing.T) {
	p, err := parseLatLng(" -27.47, 153.02 ")
	require.NoError(t, err)
	assert.InDelta(t, -27.47, p.Lat, 1e-9)
	assert.InDelta(t, 153.02, p.Lng, 1e-9)

	for _, bad := range []string{"", "-27.47", "x,1", "1,y", "95,10"} {
		_, err := parseLatLng(bad)
		assert.Error(t, err, bad)
	}
}

func TestReloadAging(t *testing.T) {
	agg := feeds.New(nil, feeds.Options{})
	apply := reloadAging(agg, zap.NewNop())
	lifetime := func() time.Duration {
		return agg.Policy().Lifetime(incident.CategoryTraffic, incident.SeverityMedium)
	}
	require.Equal(t, 4*time.Hour, lifetime())

	cfg := config.DefaultConfig()
	cfg.Aging.Hours = map[string]float64{"traffic": 9}
	apply(cfg)
	assert.Equal(t, 9*time.Hour, lifetime())

	// a bad override keeps the policy in force
	cfg.Aging.Hours = map[string]float64{"traffic": -1}
	apply(cfg)
	assert.Equal(t, 9*time.Hour, lifetime())
}
