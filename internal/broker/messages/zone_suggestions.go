package messages

import "time"

type ZoneSuggestionsComputed struct {
	CampaignID     string           `json:"campaign_id"`
	ComputedAt     time.Time        `json:"computed_at"`
	DaysBack       int              `json:"days_back"`
	AnalyzedPoints int              `json:"analyzed_points"`
	TotalClusters  int              `json:"total_clusters"`
	Suggestions    []ZoneSuggestion `json:"suggestions"`
}

type ZoneSuggestion struct {
	Name                 string  `json:"name"`
	CenterLat            float64 `json:"center_lat"`
	CenterLng            float64 `json:"center_lng"`
	RadiusMeters         int     `json:"radius_meters"`
	EstimatedImpressions int64   `json:"estimated_impressions"`
	AvgSpeed             float64 `json:"avg_speed"`
	DataPoints           int     `json:"data_points"`
	Confidence           int     `json:"confidence"`
}
