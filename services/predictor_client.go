package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"race-prediction-api/config"
	"race-prediction-api/models"
	"race-prediction-api/prediction"
)

// PredictorClient talks to the ML sidecar. Every predict is a pair of
// current/race_day calls sharing a single timeout budget; if either fails the
// local fallback rule replaces both, so the stored payload is never a mix of
// model and rule output.
type PredictorClient struct {
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
}

func NewPredictorClient(cfg config.PredictorConfig) *PredictorClient {
	return &PredictorClient{
		baseURL:    cfg.BaseURL,
		timeout:    time.Duration(cfg.TimeoutSeconds) * time.Second,
		httpClient: &http.Client{},
	}
}

// PredictBoth returns the current-mode payload with the race_day result
// nested inside it. Upstream failure is masked, never surfaced.
func (c *PredictorClient) PredictBoth(ctx context.Context, req prediction.Request) models.Prediction {
	payload, err := c.PredictPair(ctx, req)
	if err != nil {
		log.Printf("predictor unavailable: %v; substituting fallback", err)
		current := prediction.Fallback(req.AvgPace, prediction.ModeCurrent)
		raceDay := prediction.Fallback(req.AvgPace, prediction.ModeRaceDay)
		current.RaceDay = &raceDay
		return current
	}
	return payload
}

// PredictPair issues the current and race_day calls in parallel under one
// shared timeout and surfaces the first failure. Both modes are replaced
// together by the caller on error, never mixed.
func (c *PredictorClient) PredictPair(ctx context.Context, req prediction.Request) (models.Prediction, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	modes := []prediction.Mode{prediction.ModeCurrent, prediction.ModeRaceDay}
	responses := make([]prediction.Response, len(modes))
	errs := make([]error, len(modes))

	var wg sync.WaitGroup
	for i, mode := range modes {
		wg.Add(1)
		go func(i int, mode prediction.Mode) {
			defer wg.Done()
			modeReq := req
			modeReq.Mode = mode
			responses[i], errs[i] = c.predict(ctx, modeReq)
		}(i, mode)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			return models.Prediction{}, fmt.Errorf("%s call failed: %w", modes[i], err)
		}
	}

	current := toPayload(responses[0])
	raceDay := toPayload(responses[1])
	current.RaceDay = &raceDay
	return current, nil
}

func (c *PredictorClient) predict(ctx context.Context, req prediction.Request) (prediction.Response, error) {
	var resp prediction.Response
	if err := c.post(ctx, "/predict", req, &resp); err != nil {
		return prediction.Response{}, err
	}
	return resp, nil
}

// Train ships a training corpus to the sidecar and returns the new model
// version.
func (c *PredictorClient) Train(ctx context.Context, req prediction.TrainRequest) (prediction.TrainResponse, error) {
	var resp prediction.TrainResponse
	if err := c.post(ctx, "/train", req, &resp); err != nil {
		return prediction.TrainResponse{}, err
	}
	return resp, nil
}

func (c *PredictorClient) post(ctx context.Context, path string, body, dest interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return err
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return fmt.Errorf("predictor returned status %d", httpResp.StatusCode)
	}
	if err := json.NewDecoder(httpResp.Body).Decode(dest); err != nil {
		return fmt.Errorf("failed to decode predictor response: %w", err)
	}
	return nil
}

func toPayload(resp prediction.Response) models.Prediction {
	std := resp.PredictionStd
	factor := resp.ReadinessAdjustmentFactor
	return models.Prediction{
		PredictedMarathonTime:     resp.PredictedMarathonTime,
		PredictedTimes:            resp.PredictedTimes,
		PredictionStd:             &std,
		ReadinessAdjustmentFactor: &factor,
		Confidence:                resp.Confidence,
		ModelSource:               resp.ModelSource,
		ModelVersion:              resp.ModelVersion,
	}
}
