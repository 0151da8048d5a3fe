package prediction

import (
	"time"

	"race-prediction-api/models"
)

// Mode selects between present-fitness and tapered race-day projections.
type Mode string

const (
	ModeCurrent Mode = "current"
	ModeRaceDay Mode = "race_day"
)

// Canonical race distances in km, in curve order.
const (
	DistFiveK        = 5.0
	DistTenK         = 10.0
	DistHalfMarathon = 21.0975
	DistTwentyFiveK  = 25.0
	DistMarathon     = 42.195
)

// RunSample is one historical run as shipped to the predictor.
type RunSample struct {
	DistanceKM      float64    `json:"distance_km"`
	DurationSeconds float64    `json:"duration_seconds"`
	AvgPace         float64    `json:"avg_pace"`
	ElevationGain   float64    `json:"elevation_gain"`
	Date            *time.Time `json:"date,omitempty"`
}

// Request is the predict call payload. UserHistory holds the caller's own
// recent runs (newest first, at most 60); CohortHistory holds similar runs of
// other users (at most 120).
type Request struct {
	DistanceKM      float64     `json:"distance_km"`
	DurationSeconds float64     `json:"duration_seconds"`
	AvgPace         float64     `json:"avg_pace"`
	ElevationGain   float64     `json:"elevation_gain"`
	UserID          string      `json:"user_id,omitempty"`
	Mode            Mode        `json:"mode"`
	UserHistory     []RunSample `json:"user_history"`
	CohortHistory   []RunSample `json:"cohort_history"`
}

// Response is a single-mode prediction result.
type Response struct {
	PredictedMarathonTime     float64            `json:"predicted_marathon_time"`
	PredictedTimes            models.RaceTimes   `json:"predicted_times"`
	PredictionStd             models.RaceTimes   `json:"prediction_std"`
	ReadinessAdjustmentFactor float64            `json:"readiness_adjustment_factor"`
	Confidence                float64            `json:"confidence"`
	ModelSource               models.ModelSource `json:"model_source"`
	ModelVersion              string             `json:"model_version"`
}

// TrainRequest carries a training corpus for the global model.
type TrainRequest struct {
	Algorithm string      `json:"algorithm"`
	Runs      []RunSample `json:"runs"`
}

type TrainResponse struct {
	Status       string `json:"status"`
	Algorithm    string `json:"algorithm"`
	Mode         string `json:"mode"`
	Samples      int    `json:"samples"`
	ModelVersion string `json:"model_version"`
}
