package geometry

import (
	"fmt"
	"math"

	"github.com/couchcryptid/climate-data-etl/internal/domain"
	"github.com/twpayne/go-geos"
)

// Shape is the geometry capability set the aggregation core consumes. The
// masker and fallback resolver depend only on this interface, never on the
// underlying geometry engine.
type Shape interface {
	Empty() bool
	ContainsPoint(lon, lat float64) bool
	RepresentativePoint() (lon, lat float64, err error)
	Centroid() (lon, lat float64, err error)
	Bounds() (minLon, minLat, maxLon, maxLat float64)
}

// Region is one named, sanitized country geometry.
type Region struct {
	name string
	ctx  *geos.Context
	geom *geos.Geom

	minX, minY, maxX, maxY float64
}

var _ Shape = (*Region)(nil)

// RegionSet is an ordered sequence of regions. Iteration order mirrors the
// sanitized input rows exactly: the position of a region is the mask channel
// index other components use to map results back to country names. Repeated
// names are preserved, never deduplicated.
type RegionSet struct {
	regions []*Region
}

// BuildRegions converts sanitized rows into a RegionSet using the resolved
// name column. It fails on empty input.
func BuildRegions(ctx *geos.Context, rows []Feature, nameCol string) (*RegionSet, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: cannot build regions from zero rows", domain.ErrInput)
	}
	regions := make([]*Region, len(rows))
	for i, f := range rows {
		name, ok := f.Properties[nameCol].(string)
		if !ok {
			return nil, fmt.Errorf("%w: row %d: column %q is not a string (got %T)",
				domain.ErrInput, i, nameCol, f.Properties[nameCol])
		}
		r := &Region{name: name, ctx: ctx, geom: f.Geom}
		r.computeBounds()
		regions[i] = r
	}
	return &RegionSet{regions: regions}, nil
}

// Len reports the number of regions; always equal to the sanitized row count.
func (s *RegionSet) Len() int { return len(s.regions) }

// At returns the region at mask channel index i.
func (s *RegionSet) At(i int) *Region { return s.regions[i] }

// Names returns region names in channel order.
func (s *RegionSet) Names() []string {
	names := make([]string, len(s.regions))
	for i, r := range s.regions {
		names[i] = r.name
	}
	return names
}

// Name returns the country name of the region.
func (r *Region) Name() string { return r.name }

// Empty reports whether the region has no usable geometry.
func (r *Region) Empty() bool { return r.geom == nil || r.geom.IsEmpty() }

// ContainsPoint reports whether the geographic point lies within the region
// polygon.
func (r *Region) ContainsPoint(lon, lat float64) bool {
	if r.Empty() {
		return false
	}
	return r.geom.Contains(r.ctx.NewPoint([]float64{lon, lat}))
}

// RepresentativePoint returns a point guaranteed to lie inside the polygon,
// unlike a centroid, which can fall outside concave or multi-part shapes.
func (r *Region) RepresentativePoint() (lon, lat float64, err error) {
	if r.Empty() {
		return 0, 0, fmt.Errorf("region %q has no geometry", r.name)
	}
	p := r.geom.PointOnSurface()
	return p.X(), p.Y(), nil
}

// Centroid returns the geometric centroid of the region.
func (r *Region) Centroid() (lon, lat float64, err error) {
	if r.Empty() {
		return 0, 0, fmt.Errorf("region %q has no geometry", r.name)
	}
	p := r.geom.Centroid()
	return p.X(), p.Y(), nil
}

// Bounds returns the geographic bounding box of the region.
func (r *Region) Bounds() (minLon, minLat, maxLon, maxLat float64) {
	return r.minX, r.minY, r.maxX, r.maxY
}

func (r *Region) computeBounds() {
	r.minX, r.minY = math.Inf(1), math.Inf(1)
	r.maxX, r.maxY = math.Inf(-1), math.Inf(-1)
	if r.Empty() {
		return
	}
	r.boundsOf(r.geom)
}

func (r *Region) boundsOf(g *geos.Geom) {
	switch g.TypeID() {
	case geos.TypeIDPolygon:
		if g.IsEmpty() {
			return
		}
		for _, c := range g.ExteriorRing().CoordSeq().ToCoords() {
			r.minX = math.Min(r.minX, c[0])
			r.minY = math.Min(r.minY, c[1])
			r.maxX = math.Max(r.maxX, c[0])
			r.maxY = math.Max(r.maxY, c[1])
		}
	default:
		for i := 0; i < g.NumGeometries(); i++ {
			r.boundsOf(g.Geometry(i))
		}
	}
}
