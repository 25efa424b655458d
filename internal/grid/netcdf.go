package grid

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/couchcryptid/climate-data-etl/internal/domain"
	"github.com/ctessum/sparse"
	"github.com/fhs/go-netcdf/netcdf"
)

// NetCDFSource opens one grid file per requested year. It implements the
// pipeline's GridSource.
type NetCDFSource struct {
	PathForYear func(year int) string
	Var         string
	LatName     string
	LonName     string
}

// OpenYear reads the year's grid file fully into memory, converts Kelvin to
// Celsius, and closes the file.
func (s *NetCDFSource) OpenYear(year int) (*Field, error) {
	f, err := ReadFile(s.PathForYear(year), s.Var, s.LatName, s.LonName)
	if err != nil {
		return nil, fmt.Errorf("grid year %d: %w", year, err)
	}
	f.ConvertKelvinToCelsius()
	return f, nil
}

// ReadFile loads a (time, lat, lon) NetCDF variable with its coordinate
// axes, applying scale_factor/add_offset packing and mapping fill values to
// NaN. Values are returned in the file's native units (Kelvin for ERA5).
func ReadFile(path, varName, latName, lonName string) (*Field, error) {
	ds, err := netcdf.OpenFile(path, netcdf.NOWRITE)
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %v", domain.ErrInput, path, err)
	}
	defer ds.Close()

	lats, err := readAxis(ds, latName)
	if err != nil {
		return nil, err
	}
	lons, err := readAxis(ds, lonName)
	if err != nil {
		return nil, err
	}

	v, err := ds.Var(varName)
	if err != nil {
		return nil, fmt.Errorf("%w: variable %q not found in %s: %v", domain.ErrInput, varName, path, err)
	}
	dims, err := v.Dims()
	if err != nil {
		return nil, fmt.Errorf("%w: reading dimensions of %q: %v", domain.ErrInput, varName, err)
	}
	dimNames := make([]string, len(dims))
	for i, d := range dims {
		name, err := d.Name()
		if err != nil {
			return nil, fmt.Errorf("%w: reading dimension name: %v", domain.ErrInput, err)
		}
		dimNames[i] = name
	}
	if len(dimNames) != 3 {
		return nil, fmt.Errorf("%w: variable %q has dimensions %v, want (time, lat, lon)",
			domain.ErrInput, varName, dimNames)
	}

	timeName, err := resolveTimeAxis(dimNames)
	if err != nil {
		return nil, err
	}
	if dimNames[0] != timeName || dimNames[1] != latName || dimNames[2] != lonName {
		return nil, fmt.Errorf("%w: variable %q has dimensions %v, want (%s, %s, %s)",
			domain.ErrInput, varName, dimNames, timeName, latName, lonName)
	}

	times, err := readTimeAxis(ds, timeName)
	if err != nil {
		return nil, err
	}

	total := len(times) * len(lats) * len(lons)
	raw := make([]float64, total)
	if err := v.ReadFloat64s(raw); err != nil {
		return nil, fmt.Errorf("%w: reading %q values: %v", domain.ErrInput, varName, err)
	}
	applyPacking(v, raw)

	data := sparse.ZerosDense(len(times), len(lats), len(lons))
	copy(data.Elements, raw)

	f := &Field{Var: varName, Lats: lats, Lons: lons, Times: times, Data: data}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return f, nil
}

func readAxis(ds netcdf.Dataset, name string) ([]float64, error) {
	v, err := ds.Var(name)
	if err != nil {
		return nil, fmt.Errorf("%w: axis %q not found: %v", domain.ErrInput, name, err)
	}
	lens, err := v.LenDims()
	if err != nil || len(lens) != 1 {
		return nil, fmt.Errorf("%w: axis %q is not one-dimensional", domain.ErrInput, name)
	}
	vals := make([]float64, lens[0])
	if err := v.ReadFloat64s(vals); err != nil {
		return nil, fmt.Errorf("%w: reading axis %q: %v", domain.ErrInput, name, err)
	}
	return vals, nil
}

func readTimeAxis(ds netcdf.Dataset, name string) ([]time.Time, error) {
	v, err := ds.Var(name)
	if err != nil {
		return nil, fmt.Errorf("%w: time axis %q not found: %v", domain.ErrInput, name, err)
	}
	lens, err := v.LenDims()
	if err != nil || len(lens) != 1 {
		return nil, fmt.Errorf("%w: time axis %q is not one-dimensional", domain.ErrInput, name)
	}
	vals := make([]float64, lens[0])
	if err := v.ReadFloat64s(vals); err != nil {
		return nil, fmt.Errorf("%w: reading time axis %q: %v", domain.ErrInput, name, err)
	}
	units, err := readStringAttr(v, "units")
	if err != nil {
		return nil, fmt.Errorf("%w: time axis %q has no readable units attribute: %v", domain.ErrInput, name, err)
	}
	times, err := decodeCFTimes(vals, units)
	if err != nil {
		return nil, fmt.Errorf("%w: time axis %q: %v", domain.ErrInput, name, err)
	}
	return times, nil
}

// applyPacking applies CF scale_factor/add_offset and replaces fill values
// with NaN. All attributes are optional.
func applyPacking(v netcdf.Var, vals []float64) {
	scale, hasScale := readFloatAttr(v, "scale_factor")
	offset, hasOffset := readFloatAttr(v, "add_offset")
	fill, hasFill := readFloatAttr(v, "_FillValue")
	missing, hasMissing := readFloatAttr(v, "missing_value")

	for i, x := range vals {
		if hasFill && x == fill {
			vals[i] = math.NaN()
			continue
		}
		if hasMissing && x == missing {
			vals[i] = math.NaN()
			continue
		}
		if hasScale {
			x *= scale
		}
		if hasOffset {
			x += offset
		}
		vals[i] = x
	}
}

func readFloatAttr(v netcdf.Var, name string) (float64, bool) {
	a := v.Attr(name)
	if _, err := a.Len(); err != nil {
		return 0, false
	}
	buf := make([]float64, 1)
	if err := a.ReadFloat64s(buf); err != nil {
		return 0, false
	}
	return buf[0], true
}

func readStringAttr(v netcdf.Var, name string) (string, error) {
	a := v.Attr(name)
	n, err := a.Len()
	if err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if err := a.ReadBytes(buf); err != nil {
		return "", err
	}
	return strings.TrimRight(string(buf), "\x00"), nil
}

// decodeCFTimes interprets CF-convention time values like
// "hours since 1900-01-01 00:00:00.0".
func decodeCFTimes(vals []float64, units string) ([]time.Time, error) {
	unit, epochStr, ok := strings.Cut(units, " since ")
	if !ok {
		return nil, fmt.Errorf("unsupported time units %q", units)
	}

	var perUnit time.Duration
	switch strings.ToLower(strings.TrimSpace(unit)) {
	case "seconds", "second":
		perUnit = time.Second
	case "minutes", "minute":
		perUnit = time.Minute
	case "hours", "hour":
		perUnit = time.Hour
	case "days", "day":
		perUnit = 24 * time.Hour
	default:
		return nil, fmt.Errorf("unsupported time unit %q", unit)
	}

	epochStr = strings.TrimSpace(epochStr)
	var epoch time.Time
	var err error
	for _, layout := range []string{
		"2006-01-02 15:04:05.0",
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05Z",
		"2006-01-02",
	} {
		if epoch, err = time.Parse(layout, epochStr); err == nil {
			break
		}
	}
	if err != nil {
		return nil, fmt.Errorf("unsupported time epoch %q", epochStr)
	}

	times := make([]time.Time, len(vals))
	for i, v := range vals {
		times[i] = epoch.Add(time.Duration(v * float64(perUnit))).UTC()
	}
	return times, nil
}
