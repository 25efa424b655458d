package grid

import (
	"math"
	"testing"
	"time"

	"github.com/couchcryptid/climate-data-etl/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geos"
)

func TestResolverAssignsNearestCell(t *testing.T) {
	ctx := geos.NewContext()
	field := testField(t, []float64{10, 20}, []float64{30, 40},
		[]time.Time{ts(2020, time.January), ts(2020, time.July)},
		[]float64{1, 2, 3, 4}, []float64{5, 6, 7, 8},
	)
	// Islet centered near (30.1, 10.1); nearest cell is (10, 30).
	regions := testRegions(t, ctx, namedRing{"Islet", square(30.05, 10.05, 30.15, 10.15)})

	rs := &Resolver{MaxDistanceKm: 25, UseRepresentativePoint: true}
	records, audits, err := rs.Resolve(field, regions, []string{"Islet"})
	require.NoError(t, err)
	require.Len(t, records, 1)

	assert.Equal(t, "Islet", records[0].Country)
	assert.Equal(t, 2020, records[0].Year)
	assert.InDelta(t, 3, records[0].TempC, 1e-12) // mean of cell (10,30) series {1,5}
	assert.True(t, records[0].Fallback)

	require.Len(t, audits, 1)
	assert.Equal(t, domain.StatusFallbackUsed, audits[0].Status)
	assert.Greater(t, audits[0].DistanceKm, 0.0)
	assert.LessOrEqual(t, audits[0].DistanceKm, 25.0)
	assert.Equal(t, 10.0, audits[0].NearestLat)
	assert.Equal(t, 30.0, audits[0].NearestLon)
}

func TestResolverRejectsBeyondCap(t *testing.T) {
	ctx := geos.NewContext()
	field := testField(t, []float64{10}, []float64{30},
		[]time.Time{ts(2020, time.January)},
		[]float64{1},
	)
	// Anchor roughly 5 degrees from the only cell, far past any sane cap.
	regions := testRegions(t, ctx, namedRing{"Remote", square(34.9, 14.9, 35.1, 15.1)})

	rs := &Resolver{MaxDistanceKm: 25, UseRepresentativePoint: true}
	records, audits, err := rs.Resolve(field, regions, []string{"Remote"})
	require.NoError(t, err)
	assert.Empty(t, records)
	require.Len(t, audits, 1)
	assert.Equal(t, "no_cell_within_25km", audits[0].Status)
	assert.Greater(t, audits[0].DistanceKm, 25.0)
}

func TestResolverAcceptsExactlyAtCap(t *testing.T) {
	ctx := geos.NewContext()
	field := testField(t, []float64{0}, []float64{0},
		[]time.Time{ts(2020, time.January)},
		[]float64{9},
	)
	regions := testRegions(t, ctx, namedRing{"Edge", square(0.049, -0.001, 0.051, 0.001)})
	aLon, aLat, err := regions.At(0).Centroid()
	require.NoError(t, err)
	capKm := domain.Haversine(aLat, aLon, 0, 0)

	rs := &Resolver{MaxDistanceKm: capKm, UseRepresentativePoint: false}
	var records []domain.AggregateRecord
	var audits []domain.FallbackAuditEntry
	records, audits, err = rs.Resolve(field, regions, []string{"Edge"})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.InDelta(t, 9, records[0].TempC, 1e-12)
	require.Len(t, audits, 1)
	assert.Equal(t, domain.StatusFallbackUsed, audits[0].Status)
}

func TestResolverTieBreakKeepsEarlierCell(t *testing.T) {
	ctx := geos.NewContext()
	// Anchor at lon 1 is equidistant from cells at lon 0 and lon 2.
	field := testField(t, []float64{0}, []float64{0, 2},
		[]time.Time{ts(2020, time.January)},
		[]float64{-1, 1},
	)
	regions := testRegions(t, ctx, namedRing{"Mid", square(0.999, -0.001, 1.001, 0.001)})

	rs := &Resolver{MaxDistanceKm: 200, UseRepresentativePoint: false}
	records, audits, err := rs.Resolve(field, regions, []string{"Mid"})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.InDelta(t, -1, records[0].TempC, 1e-12)
	assert.Equal(t, 0.0, audits[0].NearestLon)
}

func TestResolverNoGeometry(t *testing.T) {
	ctx := geos.NewContext()
	field := testField(t, []float64{10}, []float64{30},
		[]time.Time{ts(2020, time.January), ts(2021, time.January)},
		[]float64{1}, []float64{2},
	)
	regions := testRegions(t, ctx, namedRing{name: "Ghost"})

	rs := &Resolver{MaxDistanceKm: 25, UseRepresentativePoint: true}
	records, audits, err := rs.Resolve(field, regions, []string{"Ghost"})
	require.NoError(t, err)
	assert.Empty(t, records)
	require.Len(t, audits, 2)
	for _, a := range audits {
		assert.Equal(t, domain.StatusNoGeometry, a.Status)
	}
	assert.Equal(t, 2020, audits[0].Year)
	assert.Equal(t, 2021, audits[1].Year)
}

func TestResolverDedupesAndSortsNames(t *testing.T) {
	ctx := geos.NewContext()
	field := testField(t, []float64{10}, []float64{30},
		[]time.Time{ts(2020, time.January)},
		[]float64{1},
	)
	regions := testRegions(t, ctx,
		namedRing{"Zeta", square(29.99, 9.99, 30.01, 10.01)},
		namedRing{"Alpha", square(29.99, 9.99, 30.01, 10.01)},
	)

	rs := &Resolver{MaxDistanceKm: 25, UseRepresentativePoint: true}
	records, _, err := rs.Resolve(field, regions, []string{"Zeta", "Alpha", "Zeta"})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "Alpha", records[0].Country)
	assert.Equal(t, "Zeta", records[1].Country)
}

func TestResolverMultiYearSeries(t *testing.T) {
	ctx := geos.NewContext()
	field := testField(t, []float64{10}, []float64{30},
		[]time.Time{ts(2020, time.January), ts(2020, time.July), ts(2021, time.March)},
		[]float64{2}, []float64{4}, []float64{math.NaN()},
	)
	regions := testRegions(t, ctx, namedRing{"Islet", square(30.05, 10.05, 30.15, 10.15)})

	rs := &Resolver{MaxDistanceKm: 25, UseRepresentativePoint: true}
	records, audits, err := rs.Resolve(field, regions, []string{"Islet"})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 2020, records[0].Year)
	assert.InDelta(t, 3, records[0].TempC, 1e-12)

	// The fill-value-only 2021 yields no record but still leaves an audit
	// trail, so every attempted year is accounted for.
	require.Len(t, audits, 2)
	assert.Equal(t, 2020, audits[0].Year)
	assert.Equal(t, domain.StatusFallbackUsed, audits[0].Status)
	assert.Equal(t, 2021, audits[1].Year)
	assert.Equal(t, domain.StatusNoData, audits[1].Status)
	assert.Equal(t, audits[0].DistanceKm, audits[1].DistanceKm)
}

func TestResolverNearestCellAllFillValues(t *testing.T) {
	ctx := geos.NewContext()
	field := testField(t, []float64{10}, []float64{30},
		[]time.Time{ts(2020, time.January), ts(2020, time.July)},
		[]float64{math.NaN()}, []float64{math.NaN()},
	)
	regions := testRegions(t, ctx, namedRing{"Islet", square(30.05, 10.05, 30.15, 10.15)})

	rs := &Resolver{MaxDistanceKm: 25, UseRepresentativePoint: true}
	records, audits, err := rs.Resolve(field, regions, []string{"Islet"})
	require.NoError(t, err)
	assert.Empty(t, records)
	require.Len(t, audits, 1)
	assert.Equal(t, "Islet", audits[0].Country)
	assert.Equal(t, 2020, audits[0].Year)
	assert.Equal(t, domain.StatusNoData, audits[0].Status)
	assert.Greater(t, audits[0].DistanceKm, 0.0)
	assert.Equal(t, 10.0, audits[0].NearestLat)
	assert.Equal(t, 30.0, audits[0].NearestLon)
}
