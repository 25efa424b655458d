package domain

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
)

// Sentinel errors classifying failures per the propagation policy: Input and
// Persistence errors are fatal for the run (or the year's write), everything
// per-country is recorded in the audit log instead of returned.
var (
	// ErrInput marks structural problems with inputs (unresolvable name
	// column, invalid geometry collection, unrecognized grid axis) that would
	// silently corrupt all results if ignored.
	ErrInput = errors.New("invalid input")

	// ErrPersistence marks failures writing or validating a partition.
	ErrPersistence = errors.New("persistence failure")
)

// AggregateRecord is one aggregated value for one country and calendar year.
// (Country, Year) is the uniqueness key of the final output.
type AggregateRecord struct {
	Country string  `json:"country"`
	Year    int     `json:"year"`
	TempC   float64 `json:"temp_c"`

	// Fallback is true when the value came from the nearest-cell fallback
	// rather than direct grid coverage. It never reaches the partition file;
	// it only drives merge precedence.
	Fallback bool `json:"-"`
}

// Fallback audit statuses. The threshold status embeds the configured cap so
// the audit file is self-describing.
const (
	StatusFallbackUsed = "fallback_used"
	StatusNoGeometry   = "no_geometry"
	// StatusNoData marks a year whose nearest cell held only fill values, so
	// a cell was found but no value could be adopted.
	StatusNoData = "no_data"
)

// StatusNoCellWithin formats the over-cap status for the given threshold,
// e.g. no_cell_within_25km.
func StatusNoCellWithin(capKm float64) string {
	return fmt.Sprintf("no_cell_within_%skm", strconv.FormatFloat(capKm, 'f', -1, 64))
}

// FallbackAuditEntry records one fallback attempt for one country in one
// processed year, success or failure.
type FallbackAuditEntry struct {
	Country    string
	Year       int
	Status     string
	DistanceKm float64 // 0 when status is no_geometry
	NearestLat float64
	NearestLon float64
}

// Merge combines direct-coverage and fallback records for one year,
// deduplicating on (country, year) with direct records taking precedence.
// The result is sorted by (country, year).
func Merge(direct, fallback []AggregateRecord) []AggregateRecord {
	type key struct {
		country string
		year    int
	}
	seen := make(map[key]struct{}, len(direct))
	merged := make([]AggregateRecord, 0, len(direct)+len(fallback))
	for _, r := range direct {
		k := key{r.Country, r.Year}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		merged = append(merged, r)
	}
	for _, r := range fallback {
		k := key{r.Country, r.Year}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		merged = append(merged, r)
	}
	Sort(merged)
	return merged
}

// Sort orders records by (country, year), the persisted row order.
func Sort(records []AggregateRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].Country != records[j].Country {
			return records[i].Country < records[j].Country
		}
		return records[i].Year < records[j].Year
	})
}
