package prediction

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// huberFit performs a robust weighted linear fit of y on x via iteratively
// reweighted least squares with the Huber loss. Sample weights multiply the
// robustness weights. Returns ok=false when the data admits no fit.
func huberFit(x, y, weights []float64) (intercept, slope float64, ok bool) {
	n := len(x)
	if n < 2 || len(y) != n {
		return 0, 0, false
	}
	if weights == nil {
		weights = make([]float64, n)
		for i := range weights {
			weights[i] = 1
		}
	}

	const (
		delta      = 1.345
		iterations = 30
		tolerance  = 1e-9
	)

	w := append([]float64(nil), weights...)
	intercept, slope = stat.LinearRegression(x, y, w, false)

	residuals := make([]float64, n)
	for iter := 0; iter < iterations; iter++ {
		for i := range x {
			residuals[i] = y[i] - (intercept + slope*x[i])
		}

		scale := medianAbs(residuals) / 0.6745
		if scale < tolerance {
			break
		}

		for i := range w {
			r := math.Abs(residuals[i]) / scale
			robust := 1.0
			if r > delta {
				robust = delta / r
			}
			w[i] = weights[i] * robust
		}

		newIntercept, newSlope := stat.LinearRegression(x, y, w, false)
		if math.IsNaN(newIntercept) || math.IsNaN(newSlope) {
			return intercept, slope, !math.IsNaN(slope)
		}
		if math.Abs(newIntercept-intercept) < tolerance && math.Abs(newSlope-slope) < tolerance {
			intercept, slope = newIntercept, newSlope
			break
		}
		intercept, slope = newIntercept, newSlope
	}

	if math.IsNaN(intercept) || math.IsNaN(slope) {
		return 0, 0, false
	}
	return intercept, slope, true
}

func medianAbs(values []float64) float64 {
	abs := make([]float64, len(values))
	for i, v := range values {
		abs[i] = math.Abs(v)
	}
	return median(abs)
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j] < sorted[j-1]; j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

// weightedR2 is the weighted coefficient of determination; nil when undefined.
func weightedR2(yTrue, yPred, weights []float64) *float64 {
	if len(yTrue) == 0 {
		return nil
	}
	var wSum float64
	for _, w := range weights {
		wSum += w
	}
	if wSum <= 0 {
		return nil
	}

	mean := stat.Mean(yTrue, weights)
	var ssRes, ssTot float64
	for i := range yTrue {
		ssRes += weights[i] * (yTrue[i] - yPred[i]) * (yTrue[i] - yPred[i])
		ssTot += weights[i] * (yTrue[i] - mean) * (yTrue[i] - mean)
	}
	if ssTot <= 0 {
		return nil
	}
	r2 := 1 - ssRes/ssTot
	return &r2
}

func clamp(x, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, x))
}
