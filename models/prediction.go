package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// ModelSource identifies which signal produced a prediction payload.
type ModelSource string

const (
	SourceGlobal       ModelSource = "global"
	SourceCohortBlend  ModelSource = "cohort-blend"
	SourcePersonalized ModelSource = "personalized"
	SourceFallbackRule ModelSource = "fallback-rule"
)

// RaceTimes holds projected finish times in seconds for the canonical
// race distances.
type RaceTimes struct {
	FiveK        float64 `json:"five_k"`
	TenK         float64 `json:"ten_k"`
	HalfMarathon float64 `json:"half_marathon"`
	TwentyFiveK  float64 `json:"twenty_five_k"`
	Marathon     float64 `json:"marathon"`
}

// Prediction is the payload embedded in a Run. It is overwritten in place on
// refresh, never versioned. Fields guaranteed for every source: PredictedTimes,
// Confidence, ModelSource, ModelVersion. PredictionStd and the readiness factor
// are only present for model-backed sources (global, cohort-blend,
// personalized); the local fallback rule carries neither.
type Prediction struct {
	PredictedMarathonTime     float64     `json:"predicted_marathon_time"`
	PredictedTimes            RaceTimes   `json:"predicted_times"`
	PredictionStd             *RaceTimes  `json:"prediction_std,omitempty"`
	ReadinessAdjustmentFactor *float64    `json:"readiness_adjustment_factor,omitempty"`
	Confidence                float64     `json:"confidence"`
	ModelSource               ModelSource `json:"model_source"`
	ModelVersion              string      `json:"model_version"`

	// RaceDay nests the tapered-mode result inside the current-mode payload.
	RaceDay *Prediction `json:"race_day,omitempty"`
}

func (p Prediction) Value() (driver.Value, error) {
	return json.Marshal(p)
}

func (p *Prediction) Scan(value interface{}) error {
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, p)
	case string:
		return json.Unmarshal([]byte(v), p)
	case nil:
		return nil
	default:
		return fmt.Errorf("unsupported prediction column type %T", value)
	}
}
