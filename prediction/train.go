package prediction

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

const minTrainingRuns = 10

// Train refits the global Riegel exponent from a run corpus. With fewer than
// ten usable runs the exponent resets to the synthetic bootstrap default; the
// training revision advances either way.
func (e *Engine) Train(req TrainRequest) (TrainResponse, error) {
	algorithm := req.Algorithm
	if algorithm == "" {
		algorithm = "gradient_boosting"
	}

	var logD, logT []float64
	for _, run := range req.Runs {
		if !validSample(run) {
			continue
		}
		logD = append(logD, math.Log(run.DistanceKM))
		logT = append(logT, math.Log(run.DurationSeconds))
	}

	mode := "synthetic-bootstrap"
	exponent := defaultGlobalExponent
	if len(logD) >= minTrainingRuns {
		mode = "real-runs"
		exponent = fitExponent(logD, logT, algorithm)
	}

	if err := e.meta.RecordTraining(exponent, len(req.Runs)); err != nil {
		return TrainResponse{}, err
	}

	return TrainResponse{
		Status:       "retrained",
		Algorithm:    algorithm,
		Mode:         mode,
		Samples:      len(req.Runs),
		ModelVersion: e.meta.Version(),
	}, nil
}

// fitExponent fits log(time) on log(distance). The "linear" algorithm uses a
// plain least-squares fit; everything else gets the robust Huber fit.
func fitExponent(logD, logT []float64, algorithm string) float64 {
	var slope float64
	if algorithm == "linear" {
		_, slope = stat.LinearRegression(logD, logT, nil, false)
	} else {
		var ok bool
		_, slope, ok = huberFit(logD, logT, nil)
		if !ok {
			return defaultGlobalExponent
		}
	}

	if math.IsNaN(slope) || math.IsInf(slope, 0) {
		return defaultGlobalExponent
	}
	return clamp(slope, 1.0, 1.25)
}
