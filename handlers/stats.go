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

const statsCacheTTL = 60 * time.Second

type StatsHandler struct {
	db    *gorm.DB
	cache *services.CacheService
}

func NewStatsHandler(db *gorm.DB, cache *services.CacheService) *StatsHandler {
	return &StatsHandler{db: db, cache: cache}
}

// Get returns weekly/monthly/all-time totals plus streak for the caller.
func (h *StatsHandler) Get(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	cacheKey := "stats:" + userID
	var cached services.RunStats
	if err := h.cache.Get(c.Request.Context(), cacheKey, &cached); err == nil && cached.AllTime.Count > 0 {
		c.JSON(http.StatusOK, cached)
		return
	}

	var runs []models.Run
	if err := h.db.Where("user_id = ?", userID).Find(&runs).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "database query failed"})
		return
	}

	stats := services.ComputeStats(runs, time.Now())
	go h.cache.Set(context.Background(), cacheKey, stats, statsCacheTTL)

	c.JSON(http.StatusOK, stats)
}
