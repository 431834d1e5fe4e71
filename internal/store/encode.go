package store

import (
	"encoding/binary"
	"encoding/json"

	"github.com/twpayne/go-geom"
	gjson "github.com/twpayne/go-geom/encoding/geojson"
	"github.com/twpayne/go-geom/encoding/wkb"
	"github.com/twpayne/go-polyline"

	"runaway_tracker/internal/models"
)

const srid = 4326

// EncodePolyline returns the route as a Google encoded polyline.
func EncodePolyline(route []models.RoutePoint) string {
	if len(route) == 0 {
		return ""
	}
	coords := make([][]float64, len(route))
	for i, p := range route {
		coords[i] = []float64{p.Latitude, p.Longitude}
	}
	return string(polyline.EncodeCoords(coords))
}

// DecodePolyline returns [lat, lng] pairs.
func DecodePolyline(encoded string) ([][]float64, error) {
	coords, _, err := polyline.DecodeCoords([]byte(encoded))
	return coords, err
}

// RouteLineString builds a lng/lat LineString. A one-point route is repeated
// so the geometry stays a valid line.
func RouteLineString(route []models.RoutePoint) (*geom.LineString, error) {
	coords := make([]geom.Coord, 0, len(route)+1)
	for _, p := range route {
		coords = append(coords, geom.Coord{p.Longitude, p.Latitude})
	}
	if len(coords) == 1 {
		coords = append(coords, coords[0])
	}
	ls, err := geom.NewLineString(geom.XY).SetCoords(coords)
	if err != nil {
		return nil, err
	}
	return ls.SetSRID(srid), nil
}

// EncodeWKB converts a route into the WKB bytes stored on the activity.
func EncodeWKB(route []models.RoutePoint) ([]byte, error) {
	if len(route) == 0 {
		return nil, nil
	}
	ls, err := RouteLineString(route)
	if err != nil {
		return nil, err
	}
	return wkb.Marshal(ls, binary.LittleEndian)
}

// WKBToGeoJSON converts stored WKB into a GeoJSON geometry.
func WKBToGeoJSON(wkbBytes []byte) (json.RawMessage, error) {
	if len(wkbBytes) == 0 {
		return nil, nil
	}
	g, err := wkb.Unmarshal(wkbBytes)
	if err != nil {
		return nil, err
	}
	b, err := gjson.Marshal(g)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(b), nil
}
