package track

import (
	"math"
	"strings"
	"testing"
	"time"
)

func ts(sec int) *time.Time {
	t := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC).Add(time.Duration(sec) * time.Second)
	return &t
}

func TestReduceDeterministic(t *testing.T) {
	// One degree of longitude at the equator, one hour apart.
	points := []Point{
		{Lat: 0, Lon: 0, Time: ts(0)},
		{Lat: 0, Lon: 1, Time: ts(3600)},
	}

	first, err := Reduce(points)
	if err != nil {
		t.Fatalf("Reduce failed: %v", err)
	}
	second, err := Reduce(points)
	if err != nil {
		t.Fatalf("Reduce failed: %v", err)
	}
	if first != second {
		t.Errorf("Reduce not deterministic: %+v vs %+v", first, second)
	}

	if math.Abs(first.DistanceKM-111.19) > 0.05 {
		t.Errorf("DistanceKM = %v, want ~111.19", first.DistanceKM)
	}
	if first.DurationSeconds != 3600 {
		t.Errorf("DurationSeconds = %d, want 3600", first.DurationSeconds)
	}
	if math.Abs(first.AvgPace-0.54) > 0.01 {
		t.Errorf("AvgPace = %v, want ~0.54", first.AvgPace)
	}
}

func TestReduceInsufficientPoints(t *testing.T) {
	for _, points := range [][]Point{nil, {}, {{Lat: 1, Lon: 1}}} {
		if _, err := Reduce(points); err != ErrInsufficientPoints {
			t.Errorf("Reduce(%d points) err = %v, want ErrInsufficientPoints", len(points), err)
		}
	}
}

func TestReduceSyntheticDuration(t *testing.T) {
	// ~10 km of equator longitude, no timestamps: duration must be
	// round(distance_km*360), derived from the unrounded distance.
	points := []Point{
		{Lat: 0, Lon: 0},
		{Lat: 0, Lon: 10.0 / 111.19492664455873},
	}

	stats, err := Reduce(points)
	if err != nil {
		t.Fatalf("Reduce failed: %v", err)
	}
	if stats.DurationSeconds != 3600 {
		t.Errorf("DurationSeconds = %d, want 3600", stats.DurationSeconds)
	}
}

func TestReduceDurationFloor(t *testing.T) {
	same := ts(0)
	points := []Point{
		{Lat: 0, Lon: 0, Time: same},
		{Lat: 0, Lon: 0.001, Time: same},
	}

	stats, err := Reduce(points)
	if err != nil {
		t.Fatalf("Reduce failed: %v", err)
	}
	if stats.DurationSeconds != 1 {
		t.Errorf("DurationSeconds = %d, want floor of 1", stats.DurationSeconds)
	}
}

func TestReduceElevationGainIgnoresDescents(t *testing.T) {
	points := []Point{
		{Lat: 0, Lon: 0, Ele: 100, Time: ts(0)},
		{Lat: 0, Lon: 0.01, Ele: 150.25, Time: ts(300)},
		{Lat: 0, Lon: 0.02, Ele: 80, Time: ts(600)},
		{Lat: 0, Lon: 0.03, Ele: 90.5, Time: ts(900)},
	}

	stats, err := Reduce(points)
	if err != nil {
		t.Fatalf("Reduce failed: %v", err)
	}
	// +50.25 then +10.5, the 70.25 descent is ignored; rounded to 1 decimal.
	if stats.ElevationGain != 60.8 {
		t.Errorf("ElevationGain = %v, want 60.8", stats.ElevationGain)
	}
}

func TestReduceTinyDistancePaceClamp(t *testing.T) {
	points := []Point{
		{Lat: 0, Lon: 0, Time: ts(0)},
		{Lat: 0, Lon: 0.00001, Time: ts(60)},
	}

	stats, err := Reduce(points)
	if err != nil {
		t.Fatalf("Reduce failed: %v", err)
	}
	// Distance far below the 0.01 km clamp: pace = (60/60)/0.01 = 100.
	if stats.AvgPace != 100 {
		t.Errorf("AvgPace = %v, want 100", stats.AvgPace)
	}
}

func TestParseGPX(t *testing.T) {
	const doc = `<?xml version="1.0" encoding="UTF-8"?>
<gpx version="1.1" creator="test">
  <trk><name>Morning Run</name><trkseg>
    <trkpt lat="60.01" lon="24.95"><ele>12.5</ele><time>2025-06-01T08:00:00Z</time></trkpt>
    <trkpt lat="60.02" lon="24.96"><ele>14.0</ele><time>2025-06-01T08:05:00Z</time></trkpt>
    <trkpt lat="60.03" lon="24.97"></trkpt>
  </trkseg></trk>
</gpx>`

	points, err := ParseGPX(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("ParseGPX failed: %v", err)
	}
	if len(points) != 3 {
		t.Fatalf("got %d points, want 3", len(points))
	}
	if points[0].Lat != 60.01 || points[0].Lon != 24.95 {
		t.Errorf("point 0 = %+v", points[0])
	}
	if points[0].Ele != 12.5 {
		t.Errorf("point 0 ele = %v, want 12.5", points[0].Ele)
	}
	if points[0].Time == nil || points[0].Time.Hour() != 8 {
		t.Errorf("point 0 time = %v", points[0].Time)
	}
	if points[2].Time != nil {
		t.Error("point without timestamp should have nil Time")
	}
}

func TestParseGPXInvalid(t *testing.T) {
	if _, err := ParseGPX(strings.NewReader("not xml at all")); err == nil {
		t.Error("expected error for invalid GPX")
	}
}

func TestRoundHalfUp(t *testing.T) {
	cases := []struct {
		in   float64
		want float64
	}{
		{12658.5, 12659},
		{12658.49, 12658},
		{0.5, 1},
		{2.5, 3},
	}
	for _, c := range cases {
		if got := roundHalfUp(c.in); got != c.want {
			t.Errorf("roundHalfUp(%v) = %v, want %v", c.in, got, c.want)
		}
	}
}
