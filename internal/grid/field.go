// Package grid reads gridded climate fields and reduces them to per-country
// annual means, either by area-weighted masking or by nearest-cell fallback.
package grid

import (
	"fmt"
	"sort"
	"time"

	"github.com/couchcryptid/climate-data-etl/internal/domain"
	"github.com/ctessum/sparse"
)

// recognizedTimeNames are the axis names accepted as the time dimension.
// Anything else is a fatal input error: picking an arbitrary axis would
// silently corrupt every downstream value.
var recognizedTimeNames = []string{"time", "valid_time", "Time"}

const kelvinOffset = 273.15

// Field is a scalar variable over (time, latitude, longitude), fully resident
// in memory. Values are Celsius once ConvertKelvinToCelsius has run.
type Field struct {
	Var   string
	Lats  []float64
	Lons  []float64
	Times []time.Time

	// Data is a dense (time, lat, lon) tensor. NaN marks missing cells.
	Data *sparse.DenseArray
}

// Validate checks that axis lengths and the data shape agree.
func (f *Field) Validate() error {
	if len(f.Lats) == 0 || len(f.Lons) == 0 {
		return fmt.Errorf("%w: field %q has an empty spatial axis", domain.ErrInput, f.Var)
	}
	if len(f.Times) == 0 {
		return fmt.Errorf("%w: field %q has no time steps", domain.ErrInput, f.Var)
	}
	want := []int{len(f.Times), len(f.Lats), len(f.Lons)}
	got := f.Data.Shape
	if len(got) != 3 || got[0] != want[0] || got[1] != want[1] || got[2] != want[2] {
		return fmt.Errorf("%w: field %q shape %v does not match axes %v", domain.ErrInput, f.Var, got, want)
	}
	return nil
}

// Value returns the cell value at time step t, latitude index i, longitude
// index j.
func (f *Field) Value(t, i, j int) float64 {
	return f.Data.Get(t, i, j)
}

// ConvertKelvinToCelsius shifts every cell in place. Ingested grids are
// Kelvin; all persisted aggregates are Celsius.
func (f *Field) ConvertKelvinToCelsius() {
	for i, v := range f.Data.Elements {
		f.Data.Elements[i] = v - kelvinOffset
	}
}

// Years returns the distinct calendar years present on the time axis,
// ascending.
func (f *Field) Years() []int {
	set := map[int]struct{}{}
	for _, t := range f.Times {
		set[t.UTC().Year()] = struct{}{}
	}
	years := make([]int, 0, len(set))
	for y := range set {
		years = append(years, y)
	}
	sort.Ints(years)
	return years
}

// stepsByYear groups time-axis indices by calendar year.
func (f *Field) stepsByYear() map[int][]int {
	steps := map[int][]int{}
	for idx, t := range f.Times {
		y := t.UTC().Year()
		steps[y] = append(steps[y], idx)
	}
	return steps
}

// resolveTimeAxis returns the first recognized time axis name present in
// names, or an error listing what was available.
func resolveTimeAxis(names []string) (string, error) {
	present := make(map[string]bool, len(names))
	for _, n := range names {
		present[n] = true
	}
	for _, candidate := range recognizedTimeNames {
		if present[candidate] {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w: no recognized time axis among %v (recognized: %v)",
		domain.ErrInput, names, recognizedTimeNames)
}
