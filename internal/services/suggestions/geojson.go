package suggestions

import (
	"github.com/motionfleet/fleetzones/internal/geo"
	"github.com/motionfleet/fleetzones/internal/models"
	"github.com/paulmach/orb/geojson"
)

// ToFeatureCollection renders suggestions as point features for map layers.
func ToFeatureCollection(r *models.SuggestionReport) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, s := range r.Suggestions {
		f := geojson.NewFeature(geo.Point(s.CenterLat, s.CenterLng))
		f.Properties["name"] = s.Name
		f.Properties["radius_meters"] = s.RadiusMeters
		f.Properties["estimated_impressions"] = s.EstimatedImpressions
		f.Properties["avg_speed"] = s.AvgSpeed
		f.Properties["data_points"] = s.DataPoints
		f.Properties["confidence"] = s.Confidence
		fc.Append(f)
	}
	fc.ExtraMembers = geojson.Properties{
		"campaign_id":     r.CampaignID,
		"analyzed_points": r.AnalyzedPoints,
		"total_clusters":  r.TotalClusters,
	}
	if r.Message != "" {
		fc.ExtraMembers["message"] = r.Message
	}
	return fc
}
