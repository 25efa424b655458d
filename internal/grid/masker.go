package grid

import (
	"fmt"
	"math"

	"github.com/couchcryptid/climate-data-etl/internal/domain"
	"github.com/couchcryptid/climate-data-etl/internal/geometry"
	"github.com/ctessum/geom"
	"github.com/ctessum/geom/index/rtree"
	"github.com/ctessum/sparse"
	"gonum.org/v1/gonum/floats"
)

// Masker reduces a grid field to one annual value per covered region. Regions
// are rasterized in fixed-size batches so the coverage tensor for a batch,
// not the whole region set, bounds peak memory. Batching never changes
// results: each region is reduced independently.
type Masker struct {
	// BatchSize bounds how many regions are rasterized at once.
	BatchSize int
	// AreaWeighted weights each latitude row by cos(latitude) to approximate
	// true cell area on the sphere.
	AreaWeighted bool
}

// cellPoint is one grid cell center in the spatial index.
type cellPoint struct {
	geom.Point
	row, col int
}

// AnnualMeans computes (country, year, value) rows for every region that
// covers at least one grid cell. A cell belongs to a region when its center
// point lies within the region polygon; overlapping regions each claim the
// cell independently. Returned alongside, in channel order, are the names of
// regions lacking a record for at least one of the field's years — whether
// the region covers no cell center at all or its member cells held only fill
// values — so the fallback resolver can attempt every gap.
func (m *Masker) AnnualMeans(field *Field, regions *geometry.RegionSet) ([]domain.AggregateRecord, []string, error) {
	if err := field.Validate(); err != nil {
		return nil, nil, err
	}
	if regions.Len() == 0 {
		return nil, nil, fmt.Errorf("%w: empty region set", domain.ErrInput)
	}
	batchSize := m.BatchSize
	if batchSize <= 0 {
		batchSize = regions.Len()
	}

	cells := rtree.NewTree(25, 50)
	for i, lat := range field.Lats {
		for j, lon := range field.Lons {
			cells.Insert(&cellPoint{Point: geom.Point{X: lon, Y: lat}, row: i, col: j})
		}
	}

	weights := make([]float64, len(field.Lats))
	for i, lat := range field.Lats {
		if m.AreaWeighted {
			weights[i] = math.Cos(lat * math.Pi / 180)
		} else {
			weights[i] = 1
		}
	}

	var records []domain.AggregateRecord
	yearsCovered := make([]int, regions.Len())
	stepsByYear := field.stepsByYear()
	years := field.Years()

	for start := 0; start < regions.Len(); start += batchSize {
		end := start + batchSize
		if end > regions.Len() {
			end = regions.Len()
		}
		mask := m.maskBatch(field, regions, cells, start, end)

		for r := start; r < end; r++ {
			members := memberCells(mask, r-start, len(field.Lats), len(field.Lons))
			if len(members) == 0 {
				continue
			}
			name := regions.At(r).Name()
			for _, year := range years {
				value, ok := annualMean(field, members, weights, stepsByYear[year])
				if !ok {
					continue
				}
				yearsCovered[r]++
				records = append(records, domain.AggregateRecord{
					Country: name,
					Year:    year,
					TempC:   value,
				})
			}
		}
	}

	// Coverage is judged by emitted output, not mask membership: a region
	// whose cells carried only fill values for a year still needs fallback.
	var missing []string
	for r := 0; r < regions.Len(); r++ {
		if yearsCovered[r] < len(years) {
			missing = append(missing, regions.At(r).Name())
		}
	}
	return records, missing, nil
}

// maskBatch fills a (regions, lat, lon) membership tensor for one batch.
// Regions are evaluated independently: no exclusivity between overlapping
// regions, and cells outside every region simply stay zero.
func (m *Masker) maskBatch(field *Field, regions *geometry.RegionSet, cells *rtree.Rtree, start, end int) *sparse.DenseArray {
	mask := sparse.ZerosDense(end-start, len(field.Lats), len(field.Lons))
	for r := start; r < end; r++ {
		region := regions.At(r)
		if region.Empty() {
			continue
		}
		minLon, minLat, maxLon, maxLat := region.Bounds()
		bounds := &geom.Bounds{
			Min: geom.Point{X: minLon, Y: minLat},
			Max: geom.Point{X: maxLon, Y: maxLat},
		}
		for _, item := range cells.SearchIntersect(bounds) {
			cell := item.(*cellPoint)
			if region.ContainsPoint(cell.X, cell.Y) {
				mask.Set(1, r-start, cell.row, cell.col)
			}
		}
	}
	return mask
}

// memberCells extracts the covered cell indices for one mask channel, in
// row-major order so floating-point reduction order is reproducible.
func memberCells(mask *sparse.DenseArray, channel, nlat, nlon int) [][2]int {
	var members [][2]int
	for i := 0; i < nlat; i++ {
		for j := 0; j < nlon; j++ {
			if mask.Get(channel, i, j) != 0 {
				members = append(members, [2]int{i, j})
			}
		}
	}
	return members
}

// annualMean averages the region's weighted spatial means arithmetically
// across the year's time steps. Steps with no finite member cells contribute
// nothing; ok is false when the whole year had none.
func annualMean(field *Field, members [][2]int, weights []float64, steps []int) (float64, bool) {
	var sum float64
	var n int
	vals := make([]float64, 0, len(members))
	ws := make([]float64, 0, len(members))
	for _, t := range steps {
		vals = vals[:0]
		ws = ws[:0]
		for _, ij := range members {
			v := field.Value(t, ij[0], ij[1])
			if math.IsNaN(v) {
				continue
			}
			vals = append(vals, v)
			ws = append(ws, weights[ij[0]])
		}
		if len(vals) == 0 {
			continue
		}
		wsum := floats.Sum(ws)
		if wsum == 0 {
			continue
		}
		sum += floats.Dot(ws, vals) / wsum
		n++
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}
