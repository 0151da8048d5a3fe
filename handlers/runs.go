package handlers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"race-prediction-api/middleware"
	"race-prediction-api/models"
	"race-prediction-api/prediction"
	"race-prediction-api/services"
	"race-prediction-api/track"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// maxTrackUploadBytes caps a single GPX/FIT upload.
const maxTrackUploadBytes = 25 << 20

const listCacheTTL = 30 * time.Second

type RunsHandler struct {
	db        *gorm.DB
	cache     *services.CacheService
	store     services.BlobStore
	predictor *services.PredictorClient
	history   *services.HistoryService
}

func NewRunsHandler(db *gorm.DB, cache *services.CacheService, store services.BlobStore,
	predictor *services.PredictorClient, history *services.HistoryService) *RunsHandler {
	return &RunsHandler{db: db, cache: cache, store: store, predictor: predictor, history: history}
}

// LiveEvent is the payload published on the live channel after an upload.
type LiveEvent struct {
	Type       string  `json:"type"`
	UserID     string  `json:"user_id"`
	RunID      string  `json:"run_id"`
	Title      string  `json:"title"`
	DistanceKM float64 `json:"distance_km"`
	AvgPace    float64 `json:"avg_pace"`
}

func (h *RunsHandler) Upload(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing track file"})
		return
	}
	if fileHeader.Size > maxTrackUploadBytes {
		c.JSON(http.StatusBadRequest, gin.H{"error": "track file too large"})
		return
	}

	ext := strings.ToLower(filepath.Ext(fileHeader.Filename))
	if ext != ".gpx" && ext != ".fit" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported file type, expected .gpx or .fit"})
		return
	}

	f, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read upload"})
		return
	}
	defer f.Close()

	raw, err := io.ReadAll(f)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read upload"})
		return
	}

	var points []track.Point
	if ext == ".gpx" {
		points, err = track.ParseGPX(bytes.NewReader(raw))
	} else {
		points, err = track.ParseFIT(raw)
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to parse track file"})
		return
	}

	stats, err := track.Reduce(points)
	if err != nil {
		if errors.Is(err, track.ErrInsufficientPoints) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to process track"})
		return
	}

	run := models.Run{
		ID:              uuid.NewString(),
		UserID:          userID,
		Title:           c.PostForm("title"),
		StartTime:       resolveStartTime(c.PostForm("start_time"), points),
		DistanceKM:      stats.DistanceKM,
		DurationSeconds: stats.DurationSeconds,
		AvgPace:         stats.AvgPace,
		ElevationGain:   stats.ElevationGain,
		Points:          toTrackPoints(points),
	}
	if run.Title == "" {
		run.Title = "Run " + run.StartTime.UTC().Format("2006-01-02")
	}
	run.TrackPath = fmt.Sprintf("users/%s/tracks/%s%s", userID, run.ID, ext)

	if err := h.store.Put(run.TrackPath, bytes.NewReader(raw)); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store track file"})
		return
	}

	req, err := h.buildPredictRequest(userID, run)
	if err != nil {
		// no row will reference the blob
		h.store.Delete(run.TrackPath)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to assemble run history"})
		return
	}
	payload := h.predictor.PredictBoth(c.Request.Context(), req)
	run.Prediction = &payload

	if err := h.db.Create(&run).Error; err != nil {
		// keep storage consistent with the missing row
		h.store.Delete(run.TrackPath)
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("failed to save run: %v", err)})
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		h.cache.Publish(ctx, services.LiveChannel, LiveEvent{
			Type:       "run_created",
			UserID:     run.UserID,
			RunID:      run.ID,
			Title:      run.Title,
			DistanceKM: run.DistanceKM,
			AvgPace:    run.AvgPace,
		})
		h.invalidate(ctx, userID)
	}()

	c.JSON(http.StatusCreated, run)
}

func (h *RunsHandler) List(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	p := ParsePagination(c)

	beforeStr := ""
	if p.Before != nil {
		beforeStr = p.Before.Format(time.RFC3339Nano)
	}
	cacheKey := fmt.Sprintf("runs:%s:%d:%s", userID, p.Limit, beforeStr)

	var cached CursorResponse
	if err := h.cache.Get(c.Request.Context(), cacheKey, &cached); err == nil && cached.Data != nil {
		c.JSON(http.StatusOK, cached)
		return
	}

	query := h.db.Model(&models.Run{}).
		Where("user_id = ?", userID).
		Order("start_time DESC").
		Limit(p.Limit + 1)
	if p.Before != nil {
		query = query.Where("start_time < ?", *p.Before)
	}

	var rows []models.Run
	if err := query.Find(&rows).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "database query failed"})
		return
	}

	hasMore := len(rows) > p.Limit
	if hasMore {
		rows = rows[:p.Limit]
	}

	var nextCursor string
	if hasMore && len(rows) > 0 {
		nextCursor = rows[len(rows)-1].StartTime.Format(time.RFC3339Nano)
	}

	resp := CursorResponse{Data: rows, NextCursor: nextCursor, HasMore: hasMore}
	go h.cache.Set(context.Background(), cacheKey, resp, listCacheTTL)

	c.JSON(http.StatusOK, resp)
}

func (h *RunsHandler) Get(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var run models.Run
	err := h.db.Where("id = ? AND user_id = ?", c.Param("id"), userID).First(&run).Error
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}
	c.JSON(http.StatusOK, run)
}

func (h *RunsHandler) Delete(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var run models.Run
	err := h.db.Where("id = ? AND user_id = ?", c.Param("id"), userID).First(&run).Error
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}

	// blob before row
	if run.TrackPath != "" {
		if err := h.store.Delete(run.TrackPath); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete track file"})
			return
		}
	}
	if err := h.db.Delete(&run).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete run"})
		return
	}

	go h.invalidate(context.Background(), userID)

	c.JSON(http.StatusOK, gin.H{"message": "run deleted"})
}

func (h *RunsHandler) invalidate(ctx context.Context, userID string) {
	h.cache.DeletePrefix(ctx, "runs:"+userID)
	h.cache.Delete(ctx, "stats:"+userID)
}

// buildPredictRequest assembles the predict payload for one run: its reduced
// metrics plus the caller's own history and a cohort of similar runs by other
// users.
func (h *RunsHandler) buildPredictRequest(userID string, run models.Run) (prediction.Request, error) {
	userHistory, err := h.history.UserHistory(userID)
	if err != nil {
		return prediction.Request{}, err
	}
	cohort, err := h.history.CohortHistory(userID, run)
	if err != nil {
		return prediction.Request{}, err
	}
	return prediction.Request{
		DistanceKM:      run.DistanceKM,
		DurationSeconds: float64(run.DurationSeconds),
		AvgPace:         run.AvgPace,
		ElevationGain:   run.ElevationGain,
		UserID:          userID,
		UserHistory:     userHistory,
		CohortHistory:   cohort,
	}, nil
}

// resolveStartTime prefers the client-supplied value, then the first track
// timestamp, then now.
func resolveStartTime(formValue string, points []track.Point) time.Time {
	if formValue != "" {
		if t, err := time.Parse(time.RFC3339, formValue); err == nil {
			return t.UTC()
		}
	}
	for _, p := range points {
		if p.Time != nil {
			return p.Time.UTC()
		}
	}
	return time.Now().UTC()
}

func toTrackPoints(points []track.Point) models.TrackPointList {
	list := make(models.TrackPointList, 0, len(points))
	for _, p := range points {
		list = append(list, models.TrackPoint{Lat: p.Lat, Lon: p.Lon, Ele: p.Ele, Time: p.Time})
	}
	return list
}
