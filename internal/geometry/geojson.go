package geometry

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/couchcryptid/climate-data-etl/internal/domain"
	"github.com/twpayne/go-geos"
)

// Feature is one row of the boundary dataset: an attribute table entry plus a
// parsed geometry. Geom is nil when the source geometry was JSON null.
type Feature struct {
	Properties map[string]any
	Geom       *geos.Geom
}

type rawFeature struct {
	Type       string          `json:"type"`
	Properties map[string]any  `json:"properties"`
	Geometry   json.RawMessage `json:"geometry"`
}

type rawFeatureCollection struct {
	Type     string       `json:"type"`
	Features []rawFeature `json:"features"`
}

// ReadFeatureCollection parses a GeoJSON FeatureCollection file into features
// with GEOS geometries. Null geometries are preserved as nil so the sanitizer
// can count and drop them explicitly.
func ReadFeatureCollection(ctx *geos.Context, path string) ([]Feature, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", domain.ErrInput, path, err)
	}
	return ParseFeatureCollection(ctx, data)
}

// ParseFeatureCollection parses GeoJSON FeatureCollection bytes.
func ParseFeatureCollection(ctx *geos.Context, data []byte) ([]Feature, error) {
	var fc rawFeatureCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("%w: parsing feature collection: %v", domain.ErrInput, err)
	}
	if fc.Type != "FeatureCollection" {
		return nil, fmt.Errorf("%w: expected FeatureCollection, got %q", domain.ErrInput, fc.Type)
	}

	features := make([]Feature, 0, len(fc.Features))
	for i, rf := range fc.Features {
		f := Feature{Properties: rf.Properties}
		if f.Properties == nil {
			f.Properties = map[string]any{}
		}
		if len(rf.Geometry) > 0 && string(rf.Geometry) != "null" {
			g, err := ctx.NewGeomFromGeoJSON(string(rf.Geometry))
			if err != nil {
				return nil, fmt.Errorf("%w: feature %d: %v", domain.ErrInput, i, err)
			}
			f.Geom = g
		}
		features = append(features, f)
	}
	return features, nil
}

// columns returns the sorted union of attribute names across features, used
// for the descriptive name-column resolution error.
func columns(features []Feature) []string {
	set := map[string]struct{}{}
	for _, f := range features {
		for k := range f.Properties {
			set[k] = struct{}{}
		}
	}
	cols := make([]string, 0, len(set))
	for k := range set {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}
