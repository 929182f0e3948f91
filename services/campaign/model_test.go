package campaign

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGeoMultiplier(t *testing.T) {
	require.Equal(t, 1.0, GeoMultiplier("Worldwide"))
	require.Equal(t, 1.0, GeoMultiplier(""))
	require.Equal(t, 1.3, GeoMultiplier("France"))
	require.Equal(t, 1.3, GeoMultiplier("Japan"))
}

func TestCostPerAction(t *testing.T) {
	// worldwide campaigns pay the raw reward
	require.Equal(t, int64(2), CostPerAction(2, "Worldwide"))
	require.Equal(t, int64(5), CostPerAction(5, "Worldwide"))

	// geo targeting rounds the premium up
	require.Equal(t, int64(3), CostPerAction(2, "France"))
	require.Equal(t, int64(7), CostPerAction(5, "France"))
	require.Equal(t, int64(2), CostPerAction(1, "France"))
}

func TestRemaining(t *testing.T) {
	c := &Campaign{TotalRequested: 50, CompletedCount: 10}
	require.Equal(t, int64(40), c.Remaining())

	c.CompletedCount = 50
	require.Equal(t, int64(0), c.Remaining())

	c.CompletedCount = 60
	require.Equal(t, int64(0), c.Remaining())
}
