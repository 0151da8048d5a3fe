package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io/fs"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"race-prediction-api/config"
	"race-prediction-api/middleware"
	"race-prediction-api/models"
	"race-prediction-api/prediction"
	"race-prediction-api/services"

	"github.com/gin-gonic/gin"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testGPX = `<?xml version="1.0" encoding="UTF-8"?>
<gpx version="1.1" creator="test">
  <trk><trkseg>
    <trkpt lat="0.0" lon="0.0"><ele>10.0</ele><time>2025-06-15T08:00:00Z</time></trkpt>
    <trkpt lat="0.0" lon="0.05"><ele>12.0</ele><time>2025-06-15T08:30:00Z</time></trkpt>
    <trkpt lat="0.0" lon="0.1"><ele>11.0</ele><time>2025-06-15T09:00:00Z</time></trkpt>
  </trkseg></trk>
</gpx>`

type testAPI struct {
	router     *gin.Engine
	db         *gorm.DB
	storageDir string
}

// fakePredictor mimics the sidecar: a fixed personalized payload per mode.
func fakePredictor(t *testing.T, statusCode int) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/predict", func(w http.ResponseWriter, r *http.Request) {
		if statusCode != http.StatusOK {
			w.WriteHeader(statusCode)
			return
		}
		var req prediction.Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		marathon := 11700.0
		if req.Mode == prediction.ModeRaceDay {
			marathon = 11400.0
		}
		json.NewEncoder(w).Encode(prediction.Response{
			PredictedMarathonTime: marathon,
			PredictedTimes: models.RaceTimes{
				FiveK: 1200, TenK: 2500, HalfMarathon: 5500, TwentyFiveK: 6600, Marathon: marathon,
			},
			PredictionStd:             models.RaceTimes{FiveK: 30, TenK: 60, HalfMarathon: 120, TwentyFiveK: 150, Marathon: 240},
			ReadinessAdjustmentFactor: 1.01,
			Confidence:                0.8,
			ModelSource:               models.SourcePersonalized,
			ModelVersion:              "v3-clean-physiology.r1",
		})
	})
	mux.HandleFunc("/train", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(prediction.TrainResponse{
			Status: "trained", Mode: "real-runs", Samples: 3, ModelVersion: "v3-clean-physiology.r2",
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func setupTestAPI(t *testing.T, predictorURL string) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&models.User{}, &models.Run{}, &models.Certificate{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	cache := services.NewDisabledCache()
	storageDir := t.TempDir()
	store, err := services.NewDiskStore(config.StorageConfig{Dir: storageDir})
	if err != nil {
		t.Fatalf("failed to create disk store: %v", err)
	}
	authService := services.NewAuthService(config.JWTConfig{Secret: "test-secret-key", ExpiryHours: 1})
	predictor := services.NewPredictorClient(config.PredictorConfig{BaseURL: predictorURL, TimeoutSeconds: 2})
	history := services.NewHistoryService(db)
	trainer := services.NewTrainer(db, predictor, config.TrainerConfig{MaxRuns: 100})

	authHandler := NewAuthHandler(db, authService)
	runsHandler := NewRunsHandler(db, cache, store, predictor, history)
	statsHandler := NewStatsHandler(db, cache)
	fitnessHandler := NewFitnessHandler(db, cache, predictor, history, trainer, runsHandler)
	certsHandler := NewCertificatesHandler(db, store)
	profileHandler := NewProfileHandler(db, cache, store)

	router := gin.New()
	auth := router.Group("/api/auth")
	auth.POST("/register", authHandler.Register)
	auth.POST("/login", authHandler.Login)

	api := router.Group("/api", middleware.RequireAuth(authService))
	api.POST("/runs", runsHandler.Upload)
	api.GET("/runs", runsHandler.List)
	api.GET("/runs/:id", runsHandler.Get)
	api.DELETE("/runs/:id", runsHandler.Delete)
	api.GET("/stats", statsHandler.Get)
	api.GET("/fitness", fitnessHandler.Get)
	api.POST("/fitness/refresh", fitnessHandler.Refresh)
	api.POST("/fitness/train", fitnessHandler.Train)
	api.GET("/certificates", certsHandler.List)
	api.POST("/certificates", certsHandler.Add)
	api.DELETE("/certificates/:id", certsHandler.Delete)
	api.GET("/profile", profileHandler.Get)
	api.PUT("/profile", profileHandler.Update)
	api.DELETE("/account", profileHandler.DeleteAccount)

	return &testAPI{router: router, db: db, storageDir: storageDir}
}

func (a *testAPI) do(t *testing.T, method, path, token string, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	if body == nil {
		body = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func (a *testAPI) registerUser(t *testing.T, email string) string {
	t.Helper()
	body, _ := json.Marshal(map[string]string{
		"email": email, "password": "longenough1", "display_name": "Test Runner",
	})
	w := a.do(t, http.MethodPost, "/api/auth/register", "", bytes.NewBuffer(body), "application/json")
	if w.Code != http.StatusCreated {
		t.Fatalf("register returned %d: %s", w.Code, w.Body.String())
	}
	var resp AuthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode register response: %v", err)
	}
	return resp.Token
}

func gpxUpload(t *testing.T, title string) (*bytes.Buffer, string) {
	t.Helper()
	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)
	fw, err := mw.CreateFormFile("file", "morning.gpx")
	if err != nil {
		t.Fatalf("failed to build multipart: %v", err)
	}
	fw.Write([]byte(testGPX))
	mw.WriteField("title", title)
	mw.Close()
	return buf, mw.FormDataContentType()
}

func TestRegisterAndLogin(t *testing.T) {
	api := setupTestAPI(t, fakePredictor(t, http.StatusOK).URL)

	token := api.registerUser(t, "runner@vantage.run")
	if token == "" {
		t.Fatal("register returned empty token")
	}

	// duplicate email
	body, _ := json.Marshal(map[string]string{"email": "runner@vantage.run", "password": "longenough1"})
	w := api.do(t, http.MethodPost, "/api/auth/register", "", bytes.NewBuffer(body), "application/json")
	if w.Code != http.StatusConflict {
		t.Errorf("duplicate register returned %d, want 409", w.Code)
	}

	body, _ = json.Marshal(map[string]string{"email": "runner@vantage.run", "password": "longenough1"})
	w = api.do(t, http.MethodPost, "/api/auth/login", "", bytes.NewBuffer(body), "application/json")
	if w.Code != http.StatusOK {
		t.Errorf("login returned %d, want 200", w.Code)
	}

	body, _ = json.Marshal(map[string]string{"email": "runner@vantage.run", "password": "wrongpassword"})
	w = api.do(t, http.MethodPost, "/api/auth/login", "", bytes.NewBuffer(body), "application/json")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("bad login returned %d, want 401", w.Code)
	}
}

func TestRequireAuth(t *testing.T) {
	api := setupTestAPI(t, fakePredictor(t, http.StatusOK).URL)

	w := api.do(t, http.MethodGet, "/api/runs", "", nil, "")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("unauthenticated list returned %d, want 401", w.Code)
	}

	w = api.do(t, http.MethodGet, "/api/runs", "not-a-token", nil, "")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("bad token list returned %d, want 401", w.Code)
	}
}

func TestUploadRunFlow(t *testing.T) {
	api := setupTestAPI(t, fakePredictor(t, http.StatusOK).URL)
	token := api.registerUser(t, "runner@vantage.run")

	buf, contentType := gpxUpload(t, "Morning Run")
	w := api.do(t, http.MethodPost, "/api/runs", token, buf, contentType)
	if w.Code != http.StatusCreated {
		t.Fatalf("upload returned %d: %s", w.Code, w.Body.String())
	}

	var run models.Run
	if err := json.Unmarshal(w.Body.Bytes(), &run); err != nil {
		t.Fatalf("failed to decode run: %v", err)
	}
	if run.Title != "Morning Run" {
		t.Errorf("title = %q, want Morning Run", run.Title)
	}
	if run.DistanceKM <= 11 || run.DistanceKM >= 11.3 {
		t.Errorf("distance = %v, want ~11.12 km for 0.1 degree at the equator", run.DistanceKM)
	}
	if run.DurationSeconds != 3600 {
		t.Errorf("duration = %d, want 3600", run.DurationSeconds)
	}
	if run.Prediction == nil {
		t.Fatal("uploaded run carries no prediction")
	}
	if run.Prediction.ModelSource != models.SourcePersonalized {
		t.Errorf("model source = %s, want personalized", run.Prediction.ModelSource)
	}
	if run.Prediction.RaceDay == nil {
		t.Error("prediction payload missing nested race_day result")
	}

	// list
	w = api.do(t, http.MethodGet, "/api/runs", token, nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("list returned %d", w.Code)
	}
	var page CursorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &page); err != nil {
		t.Fatalf("failed to decode page: %v", err)
	}
	if page.HasMore {
		t.Error("single run should not report has_more")
	}

	// get
	w = api.do(t, http.MethodGet, "/api/runs/"+run.ID, token, nil, "")
	if w.Code != http.StatusOK {
		t.Errorf("get returned %d", w.Code)
	}

	// delete, then gone
	w = api.do(t, http.MethodDelete, "/api/runs/"+run.ID, token, nil, "")
	if w.Code != http.StatusOK {
		t.Errorf("delete returned %d", w.Code)
	}
	w = api.do(t, http.MethodGet, "/api/runs/"+run.ID, token, nil, "")
	if w.Code != http.StatusNotFound {
		t.Errorf("get after delete returned %d, want 404", w.Code)
	}
}

func TestUploadFallbackWhenPredictorDown(t *testing.T) {
	api := setupTestAPI(t, fakePredictor(t, http.StatusInternalServerError).URL)
	token := api.registerUser(t, "runner@vantage.run")

	buf, contentType := gpxUpload(t, "Solo Run")
	w := api.do(t, http.MethodPost, "/api/runs", token, buf, contentType)
	if w.Code != http.StatusCreated {
		t.Fatalf("upload returned %d: %s", w.Code, w.Body.String())
	}

	var run models.Run
	if err := json.Unmarshal(w.Body.Bytes(), &run); err != nil {
		t.Fatalf("failed to decode run: %v", err)
	}
	if run.Prediction == nil || run.Prediction.ModelSource != models.SourceFallbackRule {
		t.Fatalf("prediction = %+v, want fallback-rule payload", run.Prediction)
	}
	if run.Prediction.RaceDay == nil || run.Prediction.RaceDay.ModelSource != models.SourceFallbackRule {
		t.Error("race_day must be the fallback as well, both modes replaced together")
	}
}

func TestUploadRejectsUnsupportedExtension(t *testing.T) {
	api := setupTestAPI(t, fakePredictor(t, http.StatusOK).URL)
	token := api.registerUser(t, "runner@vantage.run")

	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)
	fw, _ := mw.CreateFormFile("file", "notes.txt")
	fw.Write([]byte("not a track"))
	mw.Close()

	w := api.do(t, http.MethodPost, "/api/runs", token, buf, mw.FormDataContentType())
	if w.Code != http.StatusBadRequest {
		t.Errorf("txt upload returned %d, want 400", w.Code)
	}
}

func TestUploadCleansUpBlobOnHistoryFailure(t *testing.T) {
	api := setupTestAPI(t, fakePredictor(t, http.StatusOK).URL)
	token := api.registerUser(t, "runner@vantage.run")

	// make the history query fail after the blob write
	if err := api.db.Migrator().DropTable(&models.Run{}); err != nil {
		t.Fatalf("failed to drop runs table: %v", err)
	}

	buf, contentType := gpxUpload(t, "Doomed Run")
	w := api.do(t, http.MethodPost, "/api/runs", token, buf, contentType)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("upload returned %d, want 500", w.Code)
	}

	var blobs []string
	filepath.WalkDir(api.storageDir, func(path string, d fs.DirEntry, err error) error {
		if err == nil && !d.IsDir() {
			blobs = append(blobs, path)
		}
		return nil
	})
	if len(blobs) != 0 {
		t.Errorf("orphaned blobs left behind: %v", blobs)
	}
}

func TestRunOwnership(t *testing.T) {
	api := setupTestAPI(t, fakePredictor(t, http.StatusOK).URL)
	tokenA := api.registerUser(t, "alice@vantage.run")
	tokenB := api.registerUser(t, "bob@vantage.run")

	buf, contentType := gpxUpload(t, "Alice Run")
	w := api.do(t, http.MethodPost, "/api/runs", tokenA, buf, contentType)
	if w.Code != http.StatusCreated {
		t.Fatalf("upload returned %d", w.Code)
	}
	var run models.Run
	json.Unmarshal(w.Body.Bytes(), &run)

	w = api.do(t, http.MethodGet, "/api/runs/"+run.ID, tokenB, nil, "")
	if w.Code != http.StatusNotFound {
		t.Errorf("cross-user get returned %d, want 404", w.Code)
	}
	w = api.do(t, http.MethodDelete, "/api/runs/"+run.ID, tokenB, nil, "")
	if w.Code != http.StatusNotFound {
		t.Errorf("cross-user delete returned %d, want 404", w.Code)
	}
}

func TestRefreshReportsSkips(t *testing.T) {
	api := setupTestAPI(t, fakePredictor(t, http.StatusOK).URL)
	token := api.registerUser(t, "runner@vantage.run")

	buf, contentType := gpxUpload(t, "Run One")
	if w := api.do(t, http.MethodPost, "/api/runs", token, buf, contentType); w.Code != http.StatusCreated {
		t.Fatalf("upload returned %d", w.Code)
	}

	w := api.do(t, http.MethodPost, "/api/fitness/refresh", token, nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("refresh returned %d: %s", w.Code, w.Body.String())
	}
	var result RefreshResponse
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to decode refresh result: %v", err)
	}
	if result.Updated != 1 || len(result.Skipped) != 0 {
		t.Errorf("refresh = %+v, want 1 updated, 0 skipped", result)
	}
}

func TestRefreshSkipsOnPredictorFailure(t *testing.T) {
	api := setupTestAPI(t, fakePredictor(t, http.StatusBadGateway).URL)
	token := api.registerUser(t, "runner@vantage.run")

	var user models.User
	api.db.Where("email = ?", "runner@vantage.run").First(&user)
	api.db.Create(&models.Run{
		UserID: user.ID, DistanceKM: 10, DurationSeconds: 3000, AvgPace: 5.0,
	})

	w := api.do(t, http.MethodPost, "/api/fitness/refresh", token, nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("refresh returned %d", w.Code)
	}
	var result RefreshResponse
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to decode refresh result: %v", err)
	}
	if result.Updated != 0 || len(result.Skipped) != 1 {
		t.Fatalf("refresh = %+v, want 0 updated, 1 skipped", result)
	}
	if result.Skipped[0].Reason == "" {
		t.Error("skip reason must be reported, not swallowed")
	}
}

func TestRefreshCoversEntireRunSet(t *testing.T) {
	api := setupTestAPI(t, fakePredictor(t, http.StatusOK).URL)
	token := api.registerUser(t, "runner@vantage.run")

	var user models.User
	api.db.Where("email = ?", "runner@vantage.run").First(&user)

	// more runs than a single history payload may carry
	total := services.MaxUserHistory + 5
	base := time.Date(2025, 1, 1, 7, 0, 0, 0, time.UTC)
	for i := 0; i < total; i++ {
		run := models.Run{
			UserID:          user.ID,
			Title:           fmt.Sprintf("Run %d", i),
			StartTime:       base.Add(time.Duration(i) * 24 * time.Hour),
			DistanceKM:      10,
			DurationSeconds: 3000,
			AvgPace:         5.0,
		}
		if err := api.db.Create(&run).Error; err != nil {
			t.Fatalf("failed to seed run %d: %v", i, err)
		}
	}

	w := api.do(t, http.MethodPost, "/api/fitness/refresh", token, nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("refresh returned %d: %s", w.Code, w.Body.String())
	}
	var result RefreshResponse
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to decode refresh result: %v", err)
	}
	if result.Updated != total || len(result.Skipped) != 0 {
		t.Fatalf("refresh = %+v, want %d updated, 0 skipped", result, total)
	}

	var unpredicted int64
	api.db.Model(&models.Run{}).Where("user_id = ? AND prediction IS NULL", user.ID).Count(&unpredicted)
	if unpredicted != 0 {
		t.Errorf("%d runs left without a prediction; the oldest runs must be covered too", unpredicted)
	}
}

func TestTrainTrigger(t *testing.T) {
	api := setupTestAPI(t, fakePredictor(t, http.StatusOK).URL)
	token := api.registerUser(t, "runner@vantage.run")

	// nothing to train on yet
	w := api.do(t, http.MethodPost, "/api/fitness/train", token, nil, "")
	if w.Code != http.StatusBadGateway {
		t.Errorf("train with no runs returned %d, want 502", w.Code)
	}

	buf, contentType := gpxUpload(t, "Run One")
	if w := api.do(t, http.MethodPost, "/api/runs", token, buf, contentType); w.Code != http.StatusCreated {
		t.Fatalf("upload returned %d", w.Code)
	}

	w = api.do(t, http.MethodPost, "/api/fitness/train", token, nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("train returned %d: %s", w.Code, w.Body.String())
	}
	var resp prediction.TrainResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode train response: %v", err)
	}
	if resp.Samples != 3 {
		t.Errorf("samples = %d, want 3", resp.Samples)
	}
	if resp.ModelVersion != "v3-clean-physiology.r2" {
		t.Errorf("model version = %q, want v3-clean-physiology.r2", resp.ModelVersion)
	}
}

func TestCertificateLabelValidation(t *testing.T) {
	api := setupTestAPI(t, fakePredictor(t, http.StatusOK).URL)
	token := api.registerUser(t, "runner@vantage.run")

	form := func(label string) (*bytes.Buffer, string) {
		buf := &bytes.Buffer{}
		mw := multipart.NewWriter(buf)
		mw.WriteField("event_title", "City Marathon")
		mw.WriteField("distance_label", label)
		mw.WriteField("official_time_seconds", "12400")
		mw.WriteField("event_date", "2025-05-04")
		mw.Close()
		return buf, mw.FormDataContentType()
	}

	buf, contentType := form("Ultra")
	w := api.do(t, http.MethodPost, "/api/certificates", token, buf, contentType)
	if w.Code != http.StatusBadRequest {
		t.Errorf("invalid label returned %d, want 400", w.Code)
	}

	buf, contentType = form("Marathon")
	w = api.do(t, http.MethodPost, "/api/certificates", token, buf, contentType)
	if w.Code != http.StatusCreated {
		t.Fatalf("valid certificate returned %d: %s", w.Code, w.Body.String())
	}
	var cert models.Certificate
	if err := json.Unmarshal(w.Body.Bytes(), &cert); err != nil {
		t.Fatalf("failed to decode certificate: %v", err)
	}
	if cert.DistanceLabel != "Marathon" || cert.OfficialTimeSeconds != 12400 {
		t.Errorf("certificate = %+v", cert)
	}

	w = api.do(t, http.MethodDelete, "/api/certificates/"+cert.ID, token, nil, "")
	if w.Code != http.StatusOK {
		t.Errorf("delete certificate returned %d", w.Code)
	}
}

func TestDeleteAccountIdempotent(t *testing.T) {
	api := setupTestAPI(t, fakePredictor(t, http.StatusOK).URL)
	token := api.registerUser(t, "runner@vantage.run")

	buf, contentType := gpxUpload(t, "Run One")
	if w := api.do(t, http.MethodPost, "/api/runs", token, buf, contentType); w.Code != http.StatusCreated {
		t.Fatalf("upload returned %d", w.Code)
	}

	certBuf := &bytes.Buffer{}
	mw := multipart.NewWriter(certBuf)
	mw.WriteField("event_title", "Spring 10K")
	mw.WriteField("distance_label", "10K")
	mw.WriteField("official_time_seconds", "2500")
	mw.WriteField("event_date", "2025-04-12")
	mw.Close()
	if w := api.do(t, http.MethodPost, "/api/certificates", token, certBuf, mw.FormDataContentType()); w.Code != http.StatusCreated {
		t.Fatalf("certificate create returned %d", w.Code)
	}

	w := api.do(t, http.MethodDelete, "/api/account", token, nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("first account delete returned %d: %s", w.Code, w.Body.String())
	}

	var runCount, certCount, userCount int64
	api.db.Model(&models.Run{}).Count(&runCount)
	api.db.Model(&models.Certificate{}).Count(&certCount)
	api.db.Model(&models.User{}).Count(&userCount)
	if runCount != 0 || certCount != 0 || userCount != 0 {
		t.Errorf("residual rows after cascade: runs=%d certs=%d users=%d", runCount, certCount, userCount)
	}

	w = api.do(t, http.MethodDelete, "/api/account", token, nil, "")
	if w.Code != http.StatusNotFound {
		t.Errorf("second account delete returned %d, want 404", w.Code)
	}
}

func TestDeleteAccountSurfacesPersistenceError(t *testing.T) {
	api := setupTestAPI(t, fakePredictor(t, http.StatusOK).URL)
	token := api.registerUser(t, "runner@vantage.run")

	if err := api.db.Migrator().DropTable(&models.Certificate{}); err != nil {
		t.Fatalf("failed to drop certificates table: %v", err)
	}

	w := api.do(t, http.MethodDelete, "/api/account", token, nil, "")
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("account delete returned %d, want 500", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, "failed to delete certificates:") {
		t.Errorf("error body %q does not name the failed step", body)
	}
	if !strings.Contains(body, "no such table") {
		t.Errorf("error body %q drops the underlying cause", body)
	}
}

func TestProfileUpdate(t *testing.T) {
	api := setupTestAPI(t, fakePredictor(t, http.StatusOK).URL)
	token := api.registerUser(t, "runner@vantage.run")

	body, _ := json.Marshal(map[string]string{"display_name": "Speedy", "unit_preference": "imperial"})
	w := api.do(t, http.MethodPut, "/api/profile", token, bytes.NewBuffer(body), "application/json")
	if w.Code != http.StatusOK {
		t.Fatalf("update returned %d: %s", w.Code, w.Body.String())
	}

	w = api.do(t, http.MethodGet, "/api/profile", token, nil, "")
	var user models.User
	if err := json.Unmarshal(w.Body.Bytes(), &user); err != nil {
		t.Fatalf("failed to decode profile: %v", err)
	}
	if user.DisplayName != "Speedy" || user.UnitPreference != "imperial" {
		t.Errorf("profile = %+v", user)
	}

	body, _ = json.Marshal(map[string]string{"unit_preference": "furlongs"})
	w = api.do(t, http.MethodPut, "/api/profile", token, bytes.NewBuffer(body), "application/json")
	if w.Code != http.StatusBadRequest {
		t.Errorf("invalid unit preference returned %d, want 400", w.Code)
	}
}

func TestStatsEndpoint(t *testing.T) {
	api := setupTestAPI(t, fakePredictor(t, http.StatusOK).URL)
	token := api.registerUser(t, "runner@vantage.run")

	buf, contentType := gpxUpload(t, "Run One")
	if w := api.do(t, http.MethodPost, "/api/runs", token, buf, contentType); w.Code != http.StatusCreated {
		t.Fatalf("upload returned %d", w.Code)
	}

	w := api.do(t, http.MethodGet, "/api/stats", token, nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("stats returned %d", w.Code)
	}
	var stats services.RunStats
	if err := json.Unmarshal(w.Body.Bytes(), &stats); err != nil {
		t.Fatalf("failed to decode stats: %v", err)
	}
	if stats.AllTime.Count != 1 {
		t.Errorf("all-time count = %d, want 1", stats.AllTime.Count)
	}
	if stats.LongestRunKM <= 0 {
		t.Errorf("longest run = %v, want > 0", stats.LongestRunKM)
	}
}

func TestFitnessEndpoint(t *testing.T) {
	api := setupTestAPI(t, fakePredictor(t, http.StatusOK).URL)
	token := api.registerUser(t, "runner@vantage.run")

	w := api.do(t, http.MethodGet, "/api/fitness", token, nil, "")
	if w.Code != http.StatusNotFound {
		t.Errorf("fitness with no runs returned %d, want 404", w.Code)
	}

	buf, contentType := gpxUpload(t, "Run One")
	if w := api.do(t, http.MethodPost, "/api/runs", token, buf, contentType); w.Code != http.StatusCreated {
		t.Fatalf("upload returned %d", w.Code)
	}

	w = api.do(t, http.MethodGet, "/api/fitness", token, nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("fitness returned %d: %s", w.Code, w.Body.String())
	}
	var fitness FitnessResponse
	if err := json.Unmarshal(w.Body.Bytes(), &fitness); err != nil {
		t.Fatalf("failed to decode fitness: %v", err)
	}
	if fitness.Prediction == nil {
		t.Fatal("fitness carries no prediction")
	}
	if fitness.Prediction.ModelSource != models.SourcePersonalized {
		t.Errorf("model source = %s, want personalized", fitness.Prediction.ModelSource)
	}
}
