package prediction

import (
	"math"

	"race-prediction-api/models"
)

const (
	// FallbackVersion tags payloads produced by the local rule.
	FallbackVersion = "v3-fallback"

	fallbackConfidence = 0.35
	fallbackPaceFloor  = 2.5
	raceDayTaperFactor = 0.985
)

// Fallback is the deterministic local rule substituted whenever the predictor
// service is unreachable or over budget. Pure function of (pace, mode); times
// are whole seconds with ties rounded half-up.
func Fallback(avgPace float64, mode Mode) models.Prediction {
	paceEff := math.Max(fallbackPaceFloor, avgPace)
	if mode == ModeRaceDay {
		paceEff *= raceDayTaperFactor
	}

	times := models.RaceTimes{
		FiveK:        fallbackTime(paceEff, DistFiveK),
		TenK:         fallbackTime(paceEff, DistTenK),
		HalfMarathon: fallbackTime(paceEff, DistHalfMarathon),
		TwentyFiveK:  fallbackTime(paceEff, DistTwentyFiveK),
		Marathon:     fallbackTime(paceEff, DistMarathon),
	}

	return models.Prediction{
		PredictedMarathonTime: times.Marathon,
		PredictedTimes:        times,
		Confidence:            fallbackConfidence,
		ModelSource:           models.SourceFallbackRule,
		ModelVersion:          FallbackVersion,
	}
}

func fallbackTime(paceMinPerKM, distanceKM float64) float64 {
	return roundHalfUp(paceMinPerKM * distanceKM * 60)
}

// roundHalfUp pins the .5 tie convention to half-up for positive values.
func roundHalfUp(x float64) float64 {
	return math.Floor(x + 0.5)
}

func roundTo(x float64, places int) float64 {
	shift := math.Pow(10, float64(places))
	return roundHalfUp(x*shift) / shift
}
