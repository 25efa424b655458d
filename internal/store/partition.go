// Package store persists aggregation output as year-partitioned CSV files
// plus a run-level fallback audit. Writes are atomic per partition: data
// lands in a temp file in the target directory and is renamed into place, so
// readers never observe a half-written part file.
package store

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/couchcryptid/climate-data-etl/internal/domain"
)

// Header is the exact output schema. Column order is part of the contract.
var Header = []string{"country", "year", "temp_c"}

// AuditHeader is the fallback audit schema.
var AuditHeader = []string{"country", "year", "status", "distance_km", "nearest_lat", "nearest_lon"}

const partFileName = "part.csv"

// PartitionStore writes and reads year=YYYY partitions under a root
// directory.
type PartitionStore struct {
	Dir string
}

// WriteYear persists one year's records as Dir/year=YYYY/part.csv. Records
// are sorted and floats formatted deterministically, so rewriting the same
// records yields a byte-identical file. Records for other years are rejected
// rather than silently misfiled.
func (s *PartitionStore) WriteYear(year int, records []domain.AggregateRecord) error {
	for _, r := range records {
		if r.Year != year {
			return fmt.Errorf("%w: record for %s year %d in partition %d",
				domain.ErrPersistence, r.Country, r.Year, year)
		}
	}
	sorted := make([]domain.AggregateRecord, len(records))
	copy(sorted, records)
	domain.Sort(sorted)

	dir := s.partitionDir(year)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: creating %s: %v", domain.ErrPersistence, dir, err)
	}

	rows := make([][]string, 0, len(sorted)+1)
	rows = append(rows, Header)
	for _, r := range sorted {
		rows = append(rows, []string{
			r.Country,
			strconv.Itoa(r.Year),
			formatFloat(r.TempC),
		})
	}
	return writeAtomic(filepath.Join(dir, partFileName), rows)
}

// ReadYear loads one partition back into records.
func (s *PartitionStore) ReadYear(year int) ([]domain.AggregateRecord, error) {
	path := filepath.Join(s.partitionDir(year), partFileName)
	rows, err := readCSV(path)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 || !equalRow(rows[0], Header) {
		return nil, fmt.Errorf("%w: %s: missing or malformed header", domain.ErrPersistence, path)
	}
	records := make([]domain.AggregateRecord, 0, len(rows)-1)
	for i, row := range rows[1:] {
		if len(row) != len(Header) {
			return nil, fmt.Errorf("%w: %s row %d: want %d columns, got %d",
				domain.ErrPersistence, path, i+2, len(Header), len(row))
		}
		y, err := strconv.Atoi(row[1])
		if err != nil {
			return nil, fmt.Errorf("%w: %s row %d: bad year %q", domain.ErrPersistence, path, i+2, row[1])
		}
		v, err := strconv.ParseFloat(row[2], 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %s row %d: bad temp_c %q", domain.ErrPersistence, path, i+2, row[2])
		}
		records = append(records, domain.AggregateRecord{Country: row[0], Year: y, TempC: v})
	}
	return records, nil
}

// Years lists the years that have a partition on disk, ascending.
func (s *PartitionStore) Years() ([]int, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: listing %s: %v", domain.ErrPersistence, s.Dir, err)
	}
	var years []int
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		var y int
		if _, err := fmt.Sscanf(e.Name(), "year=%d", &y); err != nil {
			continue
		}
		if _, err := os.Stat(filepath.Join(s.Dir, e.Name(), partFileName)); err != nil {
			continue
		}
		years = append(years, y)
	}
	sort.Ints(years)
	return years, nil
}

// PartitionPath returns the part file path for a year without touching disk.
func (s *PartitionStore) PartitionPath(year int) string {
	return filepath.Join(s.partitionDir(year), partFileName)
}

func (s *PartitionStore) partitionDir(year int) string {
	return filepath.Join(s.Dir, fmt.Sprintf("year=%d", year))
}

// AuditLog appends fallback audit entries to a single run-level CSV. Reset
// before the first Append of a run; rows from an earlier run at the same path
// must not survive a rerun.
type AuditLog struct {
	Path string
}

// Reset removes any audit file left by a previous run.
func (l *AuditLog) Reset() error {
	if err := os.Remove(l.Path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: resetting audit log %s: %v", domain.ErrPersistence, l.Path, err)
	}
	return nil
}

// Append adds entries to the audit file, writing the header first when the
// file does not exist yet.
func (l *AuditLog) Append(entries []domain.FallbackAuditEntry) error {
	if len(entries) == 0 {
		return nil
	}
	_, statErr := os.Stat(l.Path)
	newFile := os.IsNotExist(statErr)

	f, err := os.OpenFile(l.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("%w: opening audit log %s: %v", domain.ErrPersistence, l.Path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if newFile {
		if err := w.Write(AuditHeader); err != nil {
			return fmt.Errorf("%w: writing audit header: %v", domain.ErrPersistence, err)
		}
	}
	for _, e := range entries {
		row := []string{
			e.Country,
			strconv.Itoa(e.Year),
			e.Status,
			formatFloat(e.DistanceKm),
			formatFloat(e.NearestLat),
			formatFloat(e.NearestLon),
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("%w: writing audit row: %v", domain.ErrPersistence, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("%w: flushing audit log: %v", domain.ErrPersistence, err)
	}
	return f.Sync()
}

// formatFloat renders floats with the shortest round-tripping representation,
// keeping rewrites of identical values byte-identical.
func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// writeAtomic writes rows to a temp file next to path and renames it into
// place.
func writeAtomic(path string, rows [][]string) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("%w: creating %s: %v", domain.ErrPersistence, tmp, err)
	}
	w := csv.NewWriter(f)
	if err := w.WriteAll(rows); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("%w: writing %s: %v", domain.ErrPersistence, tmp, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("%w: syncing %s: %v", domain.ErrPersistence, tmp, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("%w: closing %s: %v", domain.ErrPersistence, tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("%w: renaming %s: %v", domain.ErrPersistence, tmp, err)
	}
	return nil
}

func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %v", domain.ErrPersistence, path, err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: parsing %s: %v", domain.ErrPersistence, path, err)
	}
	return rows, nil
}

func equalRow(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
