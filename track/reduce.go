package track

import (
	"errors"
	"math"
	"time"
)

// ErrInsufficientPoints is returned for tracks with fewer than two samples.
var ErrInsufficientPoints = errors.New("track needs at least 2 points")

// Point is one GPS sample. Time is nil when the source carried no usable
// timestamp for it.
type Point struct {
	Lat  float64
	Lon  float64
	Ele  float64
	Time *time.Time
}

// Stats are the reduced outputs of a track, rounded for persistence:
// distance 3 decimals, pace 2, elevation 1.
type Stats struct {
	DistanceKM      float64
	DurationSeconds int
	AvgPace         float64
	ElevationGain   float64
}

const earthRadiusKM = 6371.0

// Reduce folds an ordered point sequence into distance, duration, pace and
// elevation gain. When the first or last sample has no timestamp the duration
// is the documented heuristic round(distance_km * 360) seconds, not a
// measurement.
func Reduce(points []Point) (Stats, error) {
	if len(points) < 2 {
		return Stats{}, ErrInsufficientPoints
	}

	var distance, elevation float64
	for i := 1; i < len(points); i++ {
		distance += haversineKM(points[i-1].Lat, points[i-1].Lon, points[i].Lat, points[i].Lon)
		if delta := points[i].Ele - points[i-1].Ele; delta > 0 {
			elevation += delta
		}
	}

	first := points[0].Time
	last := points[len(points)-1].Time

	var duration int
	if first != nil && last != nil {
		duration = int(roundHalfUp(last.Sub(*first).Seconds()))
		if duration < 1 {
			duration = 1
		}
	} else {
		duration = int(roundHalfUp(distance * 360))
		if duration < 1 {
			duration = 1
		}
	}

	pace := (float64(duration) / 60) / math.Max(distance, 0.01)

	return Stats{
		DistanceKM:      roundTo(distance, 3),
		DurationSeconds: duration,
		AvgPace:         roundTo(pace, 2),
		ElevationGain:   roundTo(elevation, 1),
	}, nil
}

func haversineKM(lat1, lon1, lat2, lon2 float64) float64 {
	toRad := math.Pi / 180
	dLat := (lat2 - lat1) * toRad
	dLon := (lon2 - lon1) * toRad

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*toRad)*math.Cos(lat2*toRad)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKM * math.Asin(math.Sqrt(a))
}

// roundHalfUp pins the .5 convention to half-up for positive values.
func roundHalfUp(x float64) float64 {
	return math.Floor(x + 0.5)
}

func roundTo(x float64, places int) float64 {
	shift := math.Pow(10, float64(places))
	return roundHalfUp(x*shift) / shift
}
