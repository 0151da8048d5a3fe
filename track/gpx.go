package track

import (
	"encoding/xml"
	"fmt"
	"io"
	"time"
)

type gpxDoc struct {
	XMLName xml.Name   `xml:"gpx"`
	Tracks  []gpxTrack `xml:"trk"`
}

type gpxTrack struct {
	Name     string       `xml:"name"`
	Segments []gpxSegment `xml:"trkseg"`
}

type gpxSegment struct {
	Points []gpxPoint `xml:"trkpt"`
}

type gpxPoint struct {
	Lat  float64  `xml:"lat,attr"`
	Lon  float64  `xml:"lon,attr"`
	Ele  *float64 `xml:"ele"`
	Time string   `xml:"time"`
}

// ParseGPX decodes all track segments of a GPX document into a flat point
// sequence. Unparseable timestamps are dropped, which pushes the reducer onto
// its synthetic-duration path.
func ParseGPX(r io.Reader) ([]Point, error) {
	var doc gpxDoc
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("invalid gpx: %w", err)
	}

	var points []Point
	for _, trk := range doc.Tracks {
		for _, seg := range trk.Segments {
			for _, pt := range seg.Points {
				p := Point{Lat: pt.Lat, Lon: pt.Lon}
				if pt.Ele != nil {
					p.Ele = *pt.Ele
				}
				if pt.Time != "" {
					if ts, err := time.Parse(time.RFC3339, pt.Time); err == nil {
						utc := ts.UTC()
						p.Time = &utc
					}
				}
				points = append(points, p)
			}
		}
	}
	return points, nil
}
