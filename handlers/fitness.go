package handlers

import (
	"context"
	"net/http"
	"time"

	"race-prediction-api/middleware"
	"race-prediction-api/models"
	"race-prediction-api/services"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type FitnessHandler struct {
	db        *gorm.DB
	cache     *services.CacheService
	predictor *services.PredictorClient
	history   *services.HistoryService
	trainer   *services.Trainer
	runs      *RunsHandler
}

func NewFitnessHandler(db *gorm.DB, cache *services.CacheService, predictor *services.PredictorClient,
	history *services.HistoryService, trainer *services.Trainer, runs *RunsHandler) *FitnessHandler {
	return &FitnessHandler{db: db, cache: cache, predictor: predictor, history: history, trainer: trainer, runs: runs}
}

type FitnessResponse struct {
	RunID      string             `json:"run_id"`
	RunTitle   string             `json:"run_title"`
	StartTime  time.Time          `json:"start_time"`
	Prediction *models.Prediction `json:"prediction"`
}

type SkippedRun struct {
	RunID  string `json:"run_id"`
	Reason string `json:"reason"`
}

type RefreshResponse struct {
	Updated int          `json:"updated"`
	Skipped []SkippedRun `json:"skipped"`
}

// Get returns the prediction payload of the caller's newest predicted run.
func (h *FitnessHandler) Get(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var run models.Run
	err := h.db.Where("user_id = ? AND prediction IS NOT NULL", userID).
		Order("start_time DESC").
		First(&run).Error
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no predictions yet"})
		return
	}

	c.JSON(http.StatusOK, FitnessResponse{
		RunID:      run.ID,
		RunTitle:   run.Title,
		StartTime:  run.StartTime,
		Prediction: run.Prediction,
	})
}

// Refresh re-predicts the caller's entire run set newest first, sequentially,
// with the two mode calls of each run issued in parallel. A failed run is
// skipped and reported; there are no retries and no rollback of runs already
// updated. Only the per-run history payload is capped, never the batch.
func (h *FitnessHandler) Refresh(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var runs []models.Run
	err := h.db.Where("user_id = ?", userID).
		Order("start_time DESC").
		Find(&runs).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "database query failed"})
		return
	}

	result := RefreshResponse{Skipped: []SkippedRun{}}
	for _, run := range runs {
		req, err := h.runs.buildPredictRequest(userID, run)
		if err != nil {
			result.Skipped = append(result.Skipped, SkippedRun{RunID: run.ID, Reason: "failed to assemble run history"})
			continue
		}

		payload, err := h.predictor.PredictPair(c.Request.Context(), req)
		if err != nil {
			result.Skipped = append(result.Skipped, SkippedRun{RunID: run.ID, Reason: err.Error()})
			continue
		}

		err = h.db.Model(&models.Run{}).
			Where("id = ?", run.ID).
			Update("prediction", &payload).Error
		if err != nil {
			result.Skipped = append(result.Skipped, SkippedRun{RunID: run.ID, Reason: "failed to save prediction"})
			continue
		}
		result.Updated++
	}

	go h.cache.DeletePrefix(context.Background(), "runs:"+userID)

	c.JSON(http.StatusOK, result)
}

// Train triggers an immediate global-model retrain on the sidecar.
func (h *FitnessHandler) Train(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 60*time.Second)
	defer cancel()

	resp, err := h.trainer.Train(ctx)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, resp)
}
