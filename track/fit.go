package track

import (
	"bytes"
	"fmt"
	"math"

	"github.com/tormoder/fit"
)

// ParseFIT decodes the record messages of a FIT activity file into a point
// sequence. Records without a position fix are skipped.
func ParseFIT(data []byte) ([]Point, error) {
	fitFile, err := fit.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode FIT file: %w", err)
	}

	activity, err := fitFile.Activity()
	if err != nil {
		return nil, fmt.Errorf("failed to get activity from FIT: %w", err)
	}

	var points []Point
	for _, rec := range activity.Records {
		lat := rec.PositionLat.Degrees()
		lon := rec.PositionLong.Degrees()
		if math.IsNaN(lat) || math.IsNaN(lon) {
			continue
		}

		p := Point{Lat: lat, Lon: lon}
		if ele := rec.GetAltitudeScaled(); !math.IsNaN(ele) {
			p.Ele = ele
		}
		if !rec.Timestamp.IsZero() {
			ts := rec.Timestamp.UTC()
			p.Time = &ts
		}
		points = append(points, p)
	}
	return points, nil
}
