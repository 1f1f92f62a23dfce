package models

type ZoneSuggestion struct {
	Name                 string
	CenterLat            float64
	CenterLng            float64
	RadiusMeters         int
	EstimatedImpressions int64
	AvgSpeed             float64
	DataPoints           int
	Confidence           int
}

type SuggestionReport struct {
	CampaignID     string
	Suggestions    []ZoneSuggestion
	AnalyzedPoints int
	TotalClusters  int
	// Message is set only for the empty-data outcomes.
	Message string
}
