package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"race-prediction-api/prediction"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	predictionsServed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vantage_predictor_predictions_total",
		Help: "Total number of predictions served, by model source.",
	}, []string{"source"})
	trainingsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vantage_predictor_trainings_total",
		Help: "Total number of completed training runs.",
	})
	trainingsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vantage_predictor_trainings_failed_total",
		Help: "Total number of failed training runs.",
	})
	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "vantage_predictor_request_duration_seconds",
		Help:    "Duration of predictor requests.",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 2.5},
	}, []string{"endpoint"})
)

func main() {
	port := getEnvInt("PREDICTOR_PORT", 8090)
	metaPath := getEnv("META_PATH", "model_meta.json")

	meta, err := prediction.LoadMeta(metaPath)
	if err != nil {
		log.Fatalf("failed to load model meta: %v", err)
	}
	engine := prediction.NewEngine(meta)

	router := newRouter(engine, meta)

	addr := fmt.Sprintf(":%d", port)
	log.Printf("predictor listening on %s (model %s)", addr, meta.Version())
	if err := router.Run(addr); err != nil {
		log.Fatalf("predictor server failed: %v", err)
	}
}

func newRouter(engine *prediction.Engine, meta *prediction.Meta) *gin.Engine {
	router := gin.Default()

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":        "UP",
			"model_version": meta.Version(),
		})
	})

	router.POST("/predict", func(c *gin.Context) {
		start := time.Now()
		defer func() {
			requestDuration.WithLabelValues("predict").Observe(time.Since(start).Seconds())
		}()

		var req prediction.Request
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if req.Mode == "" {
			req.Mode = prediction.ModeCurrent
		}
		if req.Mode != prediction.ModeCurrent && req.Mode != prediction.ModeRaceDay {
			c.JSON(http.StatusBadRequest, gin.H{"error": "mode must be current or race_day"})
			return
		}
		if req.DistanceKM <= 0 || req.DurationSeconds <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "distance_km and duration_seconds must be positive"})
			return
		}

		resp := engine.Predict(req)
		predictionsServed.WithLabelValues(string(resp.ModelSource)).Inc()
		c.JSON(http.StatusOK, resp)
	})

	router.POST("/train", func(c *gin.Context) {
		start := time.Now()
		defer func() {
			requestDuration.WithLabelValues("train").Observe(time.Since(start).Seconds())
		}()

		var req prediction.TrainRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		resp, err := engine.Train(req)
		if err != nil {
			trainingsFailed.Inc()
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		trainingsTotal.Inc()
		log.Printf("trained model %s: %s on %d samples", resp.ModelVersion, resp.Mode, resp.Samples)
		c.JSON(http.StatusOK, resp)
	})

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return router
}

func getEnv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("invalid %s=%q, using default %d", key, value, fallback)
		return fallback
	}
	return n
}
