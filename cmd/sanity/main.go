// Command sanity runs a quick developer check of the geometry and masking
// stages against real inputs: it sanitizes the boundary file, builds regions,
// masks one or two years of grid data, and reports coverage versus fallback
// usage. Exit codes: 0 ok, 1 unresolved countries remain, 2 fatal input
// problem.
//
// Usage:
//
//	COUNTRIES_GEOJSON=... GRID_DIR=... go run ./cmd/sanity -years 2022-2023
package main

import (
	"flag"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/twpayne/go-geos"

	"github.com/couchcryptid/climate-data-etl/internal/config"
	"github.com/couchcryptid/climate-data-etl/internal/domain"
	"github.com/couchcryptid/climate-data-etl/internal/geometry"
	"github.com/couchcryptid/climate-data-etl/internal/grid"
)

func main() {
	yearsFlag := flag.String("years", "", `year range to check, e.g. "2022-2023" (default: last config year)`)
	sampleCountries := flag.Int("sample-countries", 0, "limit number of countries processed for speed (0 = all)")
	maxFallbackKm := flag.Float64("max-fallback-km", 0, "override fallback threshold (0 = config value)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: config: %v\n", err)
		os.Exit(2)
	}

	years := cfg.Years()
	if *yearsFlag != "" {
		years, err = parseYearRange(*yearsFlag)
		if err != nil {
			fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
			os.Exit(2)
		}
	} else {
		years = years[len(years)-1:]
	}
	capKm := cfg.FallbackMaxKm
	if *maxFallbackKm > 0 {
		capKm = *maxFallbackKm
	}

	fmt.Println("== Geometry Sanity Check ==")
	regions, ok := checkGeometry(cfg, *sampleCountries)
	if !ok {
		os.Exit(2)
	}

	fmt.Println("\n== Grid Masking Sanity Check ==")
	unresolved, ok := checkMasking(cfg, regions, years, capKm)
	if !ok {
		os.Exit(2)
	}
	if unresolved > 0 {
		fmt.Printf("\nWARNING: %d countries remain unresolved after fallback.\n", unresolved)
		os.Exit(1)
	}

	fmt.Println("\nOK: geometry sanitation and grid masking look good.")
}

func checkGeometry(cfg *config.Config, sample int) (*geometry.RegionSet, bool) {
	ctx := geos.NewContext()

	if _, err := os.Stat(cfg.CountriesGeoJSON); err != nil {
		fmt.Printf("ERROR: boundary file not found at %s\n", cfg.CountriesGeoJSON)
		return nil, false
	}
	features, err := geometry.ReadFeatureCollection(ctx, cfg.CountriesGeoJSON)
	if err != nil {
		fmt.Printf("ERROR: failed to load boundaries: %v\n", err)
		return nil, false
	}
	fmt.Printf("Raw rows: %d\n", len(features))

	cleaned, nameCol, err := geometry.Sanitize(ctx, features, geometry.Options{
		NameColumn:   cfg.NameColumn,
		OutputCRS:    cfg.OutputCRS,
		MetricCRS:    cfg.MetricCRS,
		BufferMeters: cfg.BufferMeters,
		MakeValid:    cfg.MakeValid,
	})
	if err != nil {
		fmt.Printf("ERROR: geometry sanitization failed: %v\n", err)
		return nil, false
	}
	if sample > 0 && sample < len(cleaned) {
		cleaned = cleaned[:sample]
		fmt.Printf("Limited to %d countries for speed\n", sample)
	}
	fmt.Printf("Cleaned rows: %d, name column: %s\n", len(cleaned), nameCol)

	regions, err := geometry.BuildRegions(ctx, cleaned, nameCol)
	if err != nil {
		fmt.Printf("ERROR: regions build failed: %v\n", err)
		return nil, false
	}
	if regions.Len() != len(cleaned) {
		fmt.Printf("ERROR: regions count mismatch: expected %d, got %d\n", len(cleaned), regions.Len())
		return nil, false
	}

	names := regions.Names()
	n := len(names)
	if n > 5 {
		n = 5
	}
	fmt.Printf("Regions created: %d, sample names: %s\n", regions.Len(), strings.Join(names[:n], ", "))
	return regions, true
}

func checkMasking(cfg *config.Config, regions *geometry.RegionSet, years []int, capKm float64) (unresolved int, ok bool) {
	source := &grid.NetCDFSource{
		PathForYear: cfg.GridPath,
		Var:         cfg.GridVar,
		LatName:     cfg.LatName,
		LonName:     cfg.LonName,
	}
	masker := &grid.Masker{BatchSize: cfg.RegionBatchSize, AreaWeighted: cfg.AreaWeighting}
	resolver := &grid.Resolver{MaxDistanceKm: capKm, UseRepresentativePoint: cfg.UseRepresentativePoint}

	okYears := 0
	for _, year := range years {
		path := cfg.GridPath(year)
		if _, err := os.Stat(path); err != nil {
			fmt.Printf("WARNING: missing grid file for %d: %s\n", year, path)
			continue
		}
		field, err := source.OpenYear(year)
		if err != nil {
			fmt.Printf("ERROR: opening %d: %v\n", year, err)
			continue
		}
		fmt.Printf("\nYear %d: %d steps on a %dx%d grid\n",
			year, len(field.Times), len(field.Lats), len(field.Lons))
		reportValueRange(field)

		direct, missing, err := masker.AnnualMeans(field, regions)
		if err != nil {
			fmt.Printf("ERROR: masking %d: %v\n", year, err)
			continue
		}
		fallback, audits, err := resolver.Resolve(field, regions, missing)
		if err != nil {
			fmt.Printf("ERROR: fallback %d: %v\n", year, err)
			continue
		}
		merged := domain.Merge(direct, fallback)

		yearUnresolved := countUnresolved(audits)
		unresolved += yearUnresolved
		fmt.Printf("Coverage: %d direct, %d fallback, %d unresolved\n",
			len(direct), len(fallback), yearUnresolved)
		reportSample(merged)
		okYears++
	}

	if okYears == 0 {
		fmt.Println("ERROR: no year could be checked.")
		return 0, false
	}
	return unresolved, true
}

func reportValueRange(field *grid.Field) {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range field.Data.Elements {
		if math.IsNaN(v) {
			continue
		}
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	fmt.Printf("Temperature range: %.1f to %.1f C\n", lo, hi)
	if lo > 150 {
		fmt.Println("WARNING: values look like raw Kelvin")
	} else if lo < -60 || hi > 60 {
		fmt.Println("WARNING: values outside the plausible -60..60 C range")
	}
}

func reportSample(records []domain.AggregateRecord) {
	n := len(records)
	if n > 5 {
		n = 5
	}
	parts := make([]string, n)
	for i := 0; i < n; i++ {
		parts[i] = fmt.Sprintf("%s=%.2f", records[i].Country, records[i].TempC)
	}
	fmt.Printf("Sample: %s\n", strings.Join(parts, ", "))
}

func countUnresolved(audits []domain.FallbackAuditEntry) int {
	seen := map[string]bool{}
	for _, a := range audits {
		if a.Status != domain.StatusFallbackUsed {
			seen[a.Country] = true
		}
	}
	return len(seen)
}

func parseYearRange(s string) ([]int, error) {
	parts := strings.SplitN(s, "-", 2)
	lo, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return nil, fmt.Errorf("bad year range %q", s)
	}
	hi := lo
	if len(parts) == 2 {
		hi, err = strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil || hi < lo {
			return nil, fmt.Errorf("bad year range %q", s)
		}
	}
	years := make([]int, 0, hi-lo+1)
	for y := lo; y <= hi; y++ {
		years = append(years, y)
	}
	return years, nil
}
