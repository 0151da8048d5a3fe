package services

import (
	"race-prediction-api/models"
	"race-prediction-api/prediction"

	"gorm.io/gorm"
)

const (
	// MaxUserHistory and MaxCohortHistory bound the predictor payload.
	MaxUserHistory   = 60
	MaxCohortHistory = 120

	// Cohort neighborhood: pace within ±1 min/km and distance within ±7 km
	// of the trigger run, both bounds inclusive.
	cohortPaceWindow     = 1.0
	cohortDistanceWindow = 7.0
)

// HistoryService assembles the run histories shipped with predict calls.
type HistoryService struct {
	db *gorm.DB
}

func NewHistoryService(db *gorm.DB) *HistoryService {
	return &HistoryService{db: db}
}

// UserHistory returns the caller's most recent runs, newest first.
func (s *HistoryService) UserHistory(userID string) ([]prediction.RunSample, error) {
	var runs []models.Run
	err := s.db.Where("user_id = ?", userID).
		Order("start_time DESC").
		Limit(MaxUserHistory).
		Find(&runs).Error
	if err != nil {
		return nil, err
	}
	return toSamples(runs), nil
}

// CohortHistory returns other users' runs in the similarity neighborhood of
// the trigger run.
func (s *HistoryService) CohortHistory(userID string, trigger models.Run) ([]prediction.RunSample, error) {
	var runs []models.Run
	err := s.db.Where("user_id <> ?", userID).
		Where("avg_pace >= ? AND avg_pace <= ?", trigger.AvgPace-cohortPaceWindow, trigger.AvgPace+cohortPaceWindow).
		Where("distance_km >= ? AND distance_km <= ?", trigger.DistanceKM-cohortDistanceWindow, trigger.DistanceKM+cohortDistanceWindow).
		Order("start_time DESC").
		Limit(MaxCohortHistory).
		Find(&runs).Error
	if err != nil {
		return nil, err
	}
	return toSamples(runs), nil
}

func toSamples(runs []models.Run) []prediction.RunSample {
	samples := make([]prediction.RunSample, 0, len(runs))
	for _, run := range runs {
		date := run.StartTime.UTC()
		samples = append(samples, prediction.RunSample{
			DistanceKM:      run.DistanceKM,
			DurationSeconds: float64(run.DurationSeconds),
			AvgPace:         run.AvgPace,
			ElevationGain:   run.ElevationGain,
			Date:            &date,
		})
	}
	return samples
}
