package domain_test

import (
	"math"
	"testing"

	"github.com/couchcryptid/climate-data-etl/internal/domain"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

func TestMerge_DirectBeatsFallback(t *testing.T) {
	direct := []domain.AggregateRecord{
		{Country: "Fiji", Year: 2021, TempC: 24.1},
	}
	fallback := []domain.AggregateRecord{
		{Country: "Fiji", Year: 2021, TempC: 23.0, Fallback: true},
		{Country: "Nauru", Year: 2021, TempC: 27.9, Fallback: true},
	}

	got := domain.Merge(direct, fallback)

	want := []domain.AggregateRecord{
		{Country: "Fiji", Year: 2021, TempC: 24.1},
		{Country: "Nauru", Year: 2021, TempC: 27.9, Fallback: true},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("merged records mismatch (-want +got):\n%s", diff)
	}
}

func TestMerge_SortsByCountryThenYear(t *testing.T) {
	direct := []domain.AggregateRecord{
		{Country: "Chile", Year: 2022, TempC: 9.1},
		{Country: "Chile", Year: 2021, TempC: 8.9},
		{Country: "Angola", Year: 2022, TempC: 22.3},
	}

	got := domain.Merge(direct, nil)

	assert.Equal(t, "Angola", got[0].Country)
	assert.Equal(t, 2021, got[1].Year)
	assert.Equal(t, 2022, got[2].Year)
}

func TestMerge_DuplicateDirectKeepsFirst(t *testing.T) {
	direct := []domain.AggregateRecord{
		{Country: "Cyprus", Year: 2021, TempC: 19.0},
		{Country: "Cyprus", Year: 2021, TempC: 99.0},
	}

	got := domain.Merge(direct, nil)

	assert.Len(t, got, 1)
	assert.Equal(t, 19.0, got[0].TempC)
}

func TestHaversine_OneDegreeLongitudeAtEquator(t *testing.T) {
	d := domain.Haversine(0, 0, 0, 1)
	assert.InDelta(t, 111.19, d, 0.05)
}

func TestHaversine_ZeroDistance(t *testing.T) {
	assert.Zero(t, domain.Haversine(45.5, -73.6, 45.5, -73.6))
}

func TestHaversine_Antipodal(t *testing.T) {
	d := domain.Haversine(0, 0, 0, 180)
	assert.InDelta(t, math.Pi*domain.EarthRadiusKm, d, 0.5)
}

func TestStatusNoCellWithin(t *testing.T) {
	assert.Equal(t, "no_cell_within_25km", domain.StatusNoCellWithin(25))
	assert.Equal(t, "no_cell_within_12.5km", domain.StatusNoCellWithin(12.5))
}
