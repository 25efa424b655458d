package geometry

import (
	"fmt"
	"strings"

	"github.com/couchcryptid/climate-data-etl/internal/domain"
	"github.com/ctessum/geom/proj"
	"github.com/twpayne/go-geos"
)

// nameColumnPriority is the conventional country-name attribute names, in
// resolution order. An unresolved name column is a fatal input error: the
// alternative, guessing a column, silently mislabels every output row.
var nameColumnPriority = []string{"ADMIN", "NAME", "name", "COUNTRY", "country", "NAME_0", "ADMIN_0"}

// quadSegments controls arc approximation for metric buffering.
const quadSegments = 8

// Options tunes geometry sanitization.
type Options struct {
	// NameColumn overrides name-column auto-detection when set and present.
	NameColumn string
	// OutputCRS is the CRS of the returned geometries (and of the grid).
	OutputCRS string
	// MetricCRS is an equal-area CRS in meters used for repair and buffering.
	MetricCRS string
	// BufferMeters grows every geometry so sub-cell islands and narrow shapes
	// still cover at least one grid cell center. Zero disables buffering.
	BufferMeters float64
	// MakeValid enables full GEOS validity repair after the zero-width
	// buffer pass.
	MakeValid bool
}

// Sanitize cleans a raw boundary feature set: drops null/empty rows, resolves
// the country-name column, repairs self-intersections in the metric CRS,
// optionally buffers, and reprojects to the output CRS. It returns the
// cleaned rows and the resolved name column. Any stage that empties the set
// fails rather than returning a silently degraded result.
func Sanitize(ctx *geos.Context, features []Feature, opts Options) ([]Feature, string, error) {
	rows := dropEmpty(features)
	if len(rows) == 0 {
		return nil, "", fmt.Errorf("%w: no non-empty geometries in input", domain.ErrInput)
	}

	nameCol, err := resolveNameColumn(rows, opts.NameColumn)
	if err != nil {
		return nil, "", err
	}

	for i, f := range rows {
		tid := f.Geom.TypeID()
		if tid != geos.TypeIDPolygon && tid != geos.TypeIDMultiPolygon {
			return nil, "", fmt.Errorf("%w: feature %d (%v): non-polygon geometry type %d",
				domain.ErrInput, i, f.Properties[nameCol], tid)
		}
	}

	toMetric, toOutput, err := newTransformPair(opts.OutputCRS, opts.MetricCRS)
	if err != nil {
		return nil, "", err
	}

	cleaned := make([]Feature, 0, len(rows))
	for i, f := range rows {
		g, err := transformGeom(ctx, f.Geom, toMetric)
		if err != nil {
			return nil, "", fmt.Errorf("%w: reprojecting feature %d to %s: %v",
				domain.ErrInput, i, opts.MetricCRS, err)
		}

		// Zero-width buffer dissolves minor self-intersections.
		g = g.Buffer(0, quadSegments)
		if opts.MakeValid && !g.IsValid() {
			g = g.MakeValid()
		}
		if g == nil || g.IsEmpty() {
			continue
		}

		if opts.BufferMeters > 0 {
			g = g.Buffer(opts.BufferMeters, quadSegments)
		}

		g, err = transformGeom(ctx, g, toOutput)
		if err != nil {
			return nil, "", fmt.Errorf("%w: reprojecting feature %d to %s: %v",
				domain.ErrInput, i, opts.OutputCRS, err)
		}
		if g == nil || g.IsEmpty() {
			continue
		}
		cleaned = append(cleaned, Feature{Properties: f.Properties, Geom: g})
	}

	if len(cleaned) == 0 {
		return nil, "", fmt.Errorf("%w: all geometries became empty during sanitization", domain.ErrInput)
	}
	return cleaned, nameCol, nil
}

func dropEmpty(features []Feature) []Feature {
	kept := make([]Feature, 0, len(features))
	for _, f := range features {
		if f.Geom == nil || f.Geom.IsEmpty() {
			continue
		}
		kept = append(kept, f)
	}
	return kept
}

// resolveNameColumn picks the attribute holding country names: the override
// when given and present, else the first match from the priority list.
func resolveNameColumn(features []Feature, override string) (string, error) {
	available := columns(features)
	present := make(map[string]bool, len(available))
	for _, c := range available {
		present[c] = true
	}

	if override != "" {
		if present[override] {
			return override, nil
		}
		return "", fmt.Errorf("%w: name column %q not found; available columns: %s",
			domain.ErrInput, override, strings.Join(available, ", "))
	}
	for _, c := range nameColumnPriority {
		if present[c] {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: no country-name column among %s; available columns: %s",
		domain.ErrInput, strings.Join(nameColumnPriority, "/"), strings.Join(available, ", "))
}

// transformGeom reprojects a polygonal GEOS geometry coordinate by
// coordinate.
func transformGeom(ctx *geos.Context, g *geos.Geom, t proj.Transformer) (*geos.Geom, error) {
	switch g.TypeID() {
	case geos.TypeIDPolygon:
		return transformPolygon(ctx, g, t)
	case geos.TypeIDMultiPolygon:
		parts := make([]*geos.Geom, 0, g.NumGeometries())
		for i := 0; i < g.NumGeometries(); i++ {
			p, err := transformPolygon(ctx, g.Geometry(i), t)
			if err != nil {
				return nil, err
			}
			if p.IsEmpty() {
				continue
			}
			parts = append(parts, p)
		}
		return ctx.NewCollection(geos.TypeIDMultiPolygon, parts), nil
	default:
		return nil, fmt.Errorf("cannot reproject geometry type %d", g.TypeID())
	}
}

func transformPolygon(ctx *geos.Context, poly *geos.Geom, t proj.Transformer) (*geos.Geom, error) {
	if poly.IsEmpty() {
		return ctx.NewPolygon(nil), nil
	}
	rings := make([][][]float64, 0, poly.NumInteriorRings()+1)
	ring, err := transformRing(poly.ExteriorRing(), t)
	if err != nil {
		return nil, err
	}
	rings = append(rings, ring)
	for i := 0; i < poly.NumInteriorRings(); i++ {
		ring, err := transformRing(poly.InteriorRing(i), t)
		if err != nil {
			return nil, err
		}
		rings = append(rings, ring)
	}
	return ctx.NewPolygon(rings), nil
}

func transformRing(ring *geos.Geom, t proj.Transformer) ([][]float64, error) {
	coords := ring.CoordSeq().ToCoords()
	out := make([][]float64, len(coords))
	for i, c := range coords {
		x, y, err := t(c[0], c[1])
		if err != nil {
			return nil, err
		}
		out[i] = []float64{x, y}
	}
	return out, nil
}
