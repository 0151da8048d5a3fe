package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"race-prediction-api/config"
	"race-prediction-api/models"
	"race-prediction-api/prediction"

	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
)

// Trainer periodically refits the sidecar's global model from the newest runs
// across all users.
type Trainer struct {
	db      *gorm.DB
	client  *PredictorClient
	cron    *cron.Cron
	maxRuns int
}

func NewTrainer(db *gorm.DB, client *PredictorClient, cfg config.TrainerConfig) *Trainer {
	return &Trainer{
		db:      db,
		client:  client,
		cron:    cron.New(),
		maxRuns: cfg.MaxRuns,
	}
}

func (t *Trainer) Start(schedule string) error {
	if _, err := t.cron.AddFunc(schedule, t.RunOnce); err != nil {
		return fmt.Errorf("invalid trainer schedule %q: %w", schedule, err)
	}
	t.cron.Start()
	log.Printf("trainer scheduled: %s", schedule)
	return nil
}

func (t *Trainer) Stop() {
	t.cron.Stop()
}

// RunOnce collects the training corpus and posts it to the sidecar. Failures
// are logged and retried on the next scheduled run, nothing else.
func (t *Trainer) RunOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	resp, err := t.Train(ctx)
	if err != nil {
		log.Printf("trainer: %v", err)
		return
	}
	log.Printf("trainer: retrained model %s on %d runs (%s)", resp.ModelVersion, resp.Samples, resp.Mode)
}

// Train posts the newest runs across all users as a training corpus and
// returns the sidecar's result.
func (t *Trainer) Train(ctx context.Context) (prediction.TrainResponse, error) {
	var runs []models.Run
	err := t.db.Order("start_time DESC").Limit(t.maxRuns).Find(&runs).Error
	if err != nil {
		return prediction.TrainResponse{}, fmt.Errorf("failed to load runs: %w", err)
	}
	if len(runs) == 0 {
		return prediction.TrainResponse{}, fmt.Errorf("no runs to train on")
	}

	resp, err := t.client.Train(ctx, prediction.TrainRequest{
		Algorithm: "gradient_boosting",
		Runs:      toSamples(runs),
	})
	if err != nil {
		return prediction.TrainResponse{}, fmt.Errorf("train call failed: %w", err)
	}
	return resp, nil
}
