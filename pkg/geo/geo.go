// Package geo checks that an inspector is at the school they are reporting on.
package geo

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/paulmach/orb"
	orbgeo "github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"

	"p9e.in/qareports/models"
)

// MaxDistanceMeters is how far from a school's coordinates a position may
// be and still count as on site when the school has no geofence.
const MaxDistanceMeters = 500.0

// Verification is the advisory result of a location check. CanProceed is
// always true; the result is shown to the inspector, never enforced.
type Verification struct {
	Verified       bool     `json:"verified"`
	DistanceMeters *float64 `json:"distanceM,omitempty"`
	WithinGeofence *bool    `json:"withinGeofence,omitempty"`
	Message        string   `json:"message"`
	CanProceed     bool     `json:"canProceed"`
}

// Coordinate is the point format older geofences were stored in.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// ValidateCoordinate checks latitude and longitude ranges.
func ValidateCoordinate(c Coordinate) error {
	if c.Lat < -90 || c.Lat > 90 {
		return fmt.Errorf("latitude %.6f is out of valid range [-90, 90]", c.Lat)
	}
	if c.Lng < -180 || c.Lng > 180 {
		return fmt.Errorf("longitude %.6f is out of valid range [-180, 180]", c.Lng)
	}
	return nil
}

type legacyGeofence struct {
	Coordinates []Coordinate `json:"coordinates"`
}

// ParseGeofence reads a school boundary. It accepts a GeoJSON Polygon or
// MultiPolygon, a Feature or FeatureCollection holding them, or a plain
// {"coordinates":[{"lat":..,"lng":..}]} ring.
func ParseGeofence(raw []byte) (orb.MultiPolygon, error) {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, fmt.Errorf("invalid geofence JSON format: %w", err)
	}

	var g orb.Geometry
	switch probe.Type {
	case "":
		return parseLegacy(raw)
	case "Feature":
		f, err := geojson.UnmarshalFeature(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid geofence feature: %w", err)
		}
		g = f.Geometry
	case "FeatureCollection":
		fc, err := geojson.UnmarshalFeatureCollection(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid geofence feature collection: %w", err)
		}
		var mp orb.MultiPolygon
		for _, f := range fc.Features {
			polys, err := polygons(f.Geometry)
			if err != nil {
				return nil, err
			}
			mp = append(mp, polys...)
		}
		return checkPolygons(mp)
	default:
		geom, err := geojson.UnmarshalGeometry(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid geofence geometry: %w", err)
		}
		g = geom.Geometry()
	}

	mp, err := polygons(g)
	if err != nil {
		return nil, err
	}
	return checkPolygons(mp)
}

func polygons(g orb.Geometry) (orb.MultiPolygon, error) {
	switch v := g.(type) {
	case orb.Polygon:
		return orb.MultiPolygon{v}, nil
	case orb.MultiPolygon:
		return v, nil
	case nil:
		return nil, errors.New("geofence has no geometry")
	default:
		return nil, fmt.Errorf("geofence must be a polygon, got %s", g.GeoJSONType())
	}
}

func parseLegacy(raw []byte) (orb.MultiPolygon, error) {
	var fence legacyGeofence
	if err := json.Unmarshal(raw, &fence); err != nil {
		return nil, fmt.Errorf("invalid geofence JSON format: %w", err)
	}
	ring := make(orb.Ring, 0, len(fence.Coordinates)+1)
	for i, c := range fence.Coordinates {
		if err := ValidateCoordinate(c); err != nil {
			return nil, fmt.Errorf("invalid coordinate at index %d: %w", i, err)
		}
		ring = append(ring, orb.Point{c.Lng, c.Lat})
	}
	if len(ring) > 0 && !ring.Closed() {
		ring = append(ring, ring[0])
	}
	return checkPolygons(orb.MultiPolygon{orb.Polygon{ring}})
}

func checkPolygons(mp orb.MultiPolygon) (orb.MultiPolygon, error) {
	if len(mp) == 0 {
		return nil, errors.New("geofence has no polygons")
	}
	for _, p := range mp {
		// A closed triangle is four points.
		if len(p) == 0 || len(p[0]) < 4 {
			return nil, errors.New("geofence must have at least 3 coordinates to form a polygon")
		}
		for _, pt := range p[0] {
			if err := ValidateCoordinate(Coordinate{Lat: pt.Lat(), Lng: pt.Lon()}); err != nil {
				return nil, err
			}
		}
	}
	return mp, nil
}

// Verify checks a device position against a school's geofence, falling
// back to the distance from the school's coordinates.
func Verify(school *models.School, lat, lng float64) (Verification, error) {
	if err := ValidateCoordinate(Coordinate{Lat: lat, Lng: lng}); err != nil {
		return Verification{}, models.NewValidationError("location", "%v", err)
	}
	point := orb.Point{lng, lat}
	v := Verification{CanProceed: true}

	hasCoords := school.Latitude != nil && school.Longitude != nil
	if hasCoords {
		d := orbgeo.DistanceHaversine(point, orb.Point{*school.Longitude, *school.Latitude})
		v.DistanceMeters = &d
	}

	if len(school.Geofence) > 0 && string(school.Geofence) != "null" {
		fence, err := ParseGeofence(school.Geofence)
		if err != nil {
			return Verification{}, fmt.Errorf("school %s geofence: %w", school.ID, err)
		}
		inside := planar.MultiPolygonContains(fence, point)
		v.WithinGeofence = &inside
		v.Verified = inside
		if inside {
			v.Message = fmt.Sprintf("Location verified inside the %s boundary", school.Name)
		} else {
			v.Message = fmt.Sprintf("You appear to be outside the %s boundary", school.Name)
		}
		return v, nil
	}

	if !hasCoords {
		v.Message = "School location is not configured; location could not be verified"
		return v, nil
	}

	v.Verified = *v.DistanceMeters <= MaxDistanceMeters
	if v.Verified {
		v.Message = fmt.Sprintf("Location verified (%.0fm from %s)", *v.DistanceMeters, school.Name)
	} else {
		v.Message = fmt.Sprintf("You appear to be %.0fm from %s", *v.DistanceMeters, school.Name)
	}
	return v, nil
}
