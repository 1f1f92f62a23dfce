package suggestions

import (
	"encoding/json"
	"testing"

	"github.com/motionfleet/fleetzones/internal/models"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/require"
)

func TestToFeatureCollection(t *testing.T) {
	r := &models.SuggestionReport{
		CampaignID: "c1",
		Suggestions: []models.ZoneSuggestion{{
			Name: "Optimized Zone 1", CenterLat: 12.975, CenterLng: 77.595, RadiusMeters: 300,
			EstimatedImpressions: 2250, DataPoints: 15, Confidence: 19,
		}},
		AnalyzedPoints: 30,
		TotalClusters:  1,
	}

	fc := ToFeatureCollection(r)
	require.Len(t, fc.Features, 1)
	require.Equal(t, orb.Point{77.595, 12.975}, fc.Features[0].Geometry)
	require.Equal(t, "Optimized Zone 1", fc.Features[0].Properties["name"])
	require.Equal(t, 300, fc.Features[0].Properties["radius_meters"])

	b, err := json.Marshal(fc)
	require.NoError(t, err)
	var raw map[string]any
	require.NoError(t, json.Unmarshal(b, &raw))
	require.Equal(t, "FeatureCollection", raw["type"])
	require.Equal(t, float64(30), raw["analyzed_points"])
	require.NotContains(t, raw, "message")
}
