package grid

import (
	"math"
	"sort"

	"github.com/couchcryptid/climate-data-etl/internal/domain"
	"github.com/couchcryptid/climate-data-etl/internal/geometry"
)

// Resolver assigns a nearest grid cell to regions too small to cover any
// cell center, within a hard distance cap. Every resolution attempt emits an
// audit entry so downstream consumers can tell estimated values from direct
// coverage.
type Resolver struct {
	// MaxDistanceKm is the farthest an anchor point may sit from its nearest
	// cell center before the region is left without a value. Exactly at the
	// cap still resolves.
	MaxDistanceKm float64
	// UseRepresentativePoint anchors on a point guaranteed inside the
	// polygon instead of the centroid, which can fall outside concave or
	// multi-part shapes.
	UseRepresentativePoint bool
}

// result holds one region's fallback outcome.
type result struct {
	records []domain.AggregateRecord
	audits  []domain.FallbackAuditEntry
}

// Resolve produces fallback records for the named regions. Names are deduped
// and processed in sorted order; the first region in channel order carrying a
// name supplies its geometry. Records come back flagged so merge precedence
// and the output contract can distinguish them.
func (rs *Resolver) Resolve(field *Field, regions *geometry.RegionSet, missing []string) ([]domain.AggregateRecord, []domain.FallbackAuditEntry, error) {
	if len(missing) == 0 {
		return nil, nil, nil
	}
	byName := make(map[string]*geometry.Region, regions.Len())
	for i := 0; i < regions.Len(); i++ {
		r := regions.At(i)
		if _, ok := byName[r.Name()]; !ok {
			byName[r.Name()] = r
		}
	}

	names := dedupeSorted(missing)
	years := field.Years()
	stepsByYear := field.stepsByYear()

	var records []domain.AggregateRecord
	var audits []domain.FallbackAuditEntry
	for _, name := range names {
		res := rs.resolveOne(field, byName[name], name, years, stepsByYear)
		records = append(records, res.records...)
		audits = append(audits, res.audits...)
	}
	return records, audits, nil
}

func (rs *Resolver) resolveOne(field *Field, region *geometry.Region, name string, years []int, stepsByYear map[int][]int) result {
	if region == nil || region.Empty() {
		return result{audits: auditAllYears(name, years, domain.StatusNoGeometry, 0, 0, 0)}
	}

	var lon, lat float64
	var err error
	if rs.UseRepresentativePoint {
		lon, lat, err = region.RepresentativePoint()
	} else {
		lon, lat, err = region.Centroid()
	}
	if err != nil {
		return result{audits: auditAllYears(name, years, domain.StatusNoGeometry, 0, 0, 0)}
	}

	row, col, distKm := nearestCell(field, lat, lon)
	if distKm > rs.MaxDistanceKm {
		status := domain.StatusNoCellWithin(rs.MaxDistanceKm)
		return result{audits: auditAllYears(name, years, status, distKm, field.Lats[row], field.Lons[col])}
	}

	var res result
	for _, year := range years {
		value, ok := cellAnnualMean(field, row, col, stepsByYear[year])
		if !ok {
			res.audits = append(res.audits, domain.FallbackAuditEntry{
				Country:    name,
				Year:       year,
				Status:     domain.StatusNoData,
				DistanceKm: distKm,
				NearestLat: field.Lats[row],
				NearestLon: field.Lons[col],
			})
			continue
		}
		res.records = append(res.records, domain.AggregateRecord{
			Country:  name,
			Year:     year,
			TempC:    value,
			Fallback: true,
		})
		res.audits = append(res.audits, domain.FallbackAuditEntry{
			Country:    name,
			Year:       year,
			Status:     domain.StatusFallbackUsed,
			DistanceKm: distKm,
			NearestLat: field.Lats[row],
			NearestLon: field.Lons[col],
		})
	}
	return res
}

// nearestCell scans every cell center and keeps the closest by great-circle
// distance. Ties keep the earlier cell in row-major order, so the choice is
// independent of scan strategy.
func nearestCell(field *Field, lat, lon float64) (row, col int, distKm float64) {
	best := math.Inf(1)
	for i, cellLat := range field.Lats {
		for j, cellLon := range field.Lons {
			d := domain.Haversine(lat, lon, cellLat, cellLon)
			if d < best {
				best = d
				row, col = i, j
			}
		}
	}
	return row, col, best
}

// cellAnnualMean averages one cell's series over the year's steps, skipping
// NaN fill values.
func cellAnnualMean(field *Field, row, col int, steps []int) (float64, bool) {
	var sum float64
	var n int
	for _, t := range steps {
		v := field.Value(t, row, col)
		if math.IsNaN(v) {
			continue
		}
		sum += v
		n++
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

func auditAllYears(name string, years []int, status string, distKm, lat, lon float64) []domain.FallbackAuditEntry {
	audits := make([]domain.FallbackAuditEntry, 0, len(years))
	for _, year := range years {
		audits = append(audits, domain.FallbackAuditEntry{
			Country:    name,
			Year:       year,
			Status:     status,
			DistanceKm: distKm,
			NearestLat: lat,
			NearestLon: lon,
		})
	}
	return audits
}

func dedupeSorted(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
