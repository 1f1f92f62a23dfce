package suggestions

import "math"

// DefaultFallbackFactor is the speed factor used when a sample has no speed.
const DefaultFallbackFactor = 15

// Scorer holds the heuristics of the engine. None of them is a physical
// measurement; swap the implementation to tune them.
type Scorer interface {
	// Impressions is the per-sample impression proxy. speed is nil when the
	// sample did not report one.
	Impressions(speed *float64) float64
	// Radius picks a suggested radius in meters from the cluster support.
	Radius(points int) int
	// Confidence is a score in [0,100].
	Confidence(points int, impressions int64) int
}

// DefaultScorer: slower traffic is assumed to be more visible.
type DefaultScorer struct {
	// FallbackFactor replaces max(1, 30-speed) for samples without speed.
	// Zero means DefaultFallbackFactor.
	FallbackFactor float64
}

// Impressions: скорость 0 это реальное измерение (стоящая машина, 300 за
// точку), а не отсутствие скорости; фолбэк только для nil.
func (s DefaultScorer) Impressions(speed *float64) float64 {
	if speed == nil {
		f := s.FallbackFactor
		if f <= 0 {
			f = DefaultFallbackFactor
		}
		return f * 10
	}
	return math.Max(1, 30-*speed) * 10
}

func (DefaultScorer) Radius(points int) int {
	switch {
	case points < 20:
		return 300
	case points < 50:
		return 500
	case points < 100:
		return 750
	default:
		return 1000
	}
}

func (DefaultScorer) Confidence(points int, impressions int64) int {
	pointScore := clamp01(float64(points)/100) * 50
	impressionScore := clamp01(float64(impressions)/10000) * 50
	return int(math.Round(pointScore + impressionScore))
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	return math.Min(v, 1)
}
