// Command publish merges year partitions into a single CSV for downstream
// consumers. Rows are sorted by country and year, deduplicated keeping the
// first occurrence, written atomically, and marked with a _SUCCESS file.
//
// Usage:
//
//	go run ./cmd/publish \
//	  -partitions data/processed/annual_temp \
//	  -out data/publish/annual_temp.csv \
//	  -min-year 2000 -max-year 2023
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/couchcryptid/climate-data-etl/internal/domain"
	"github.com/couchcryptid/climate-data-etl/internal/store"
)

func main() {
	partitionsDir := flag.String("partitions", "data/processed/annual_temp", "directory holding year=YYYY partitions")
	outPath := flag.String("out", "data/publish/annual_temp.csv", "merged CSV destination")
	minYear := flag.Int("min-year", 0, "minimum year to include (0 = no lower bound)")
	maxYear := flag.Int("max-year", 0, "maximum year to include (0 = no upper bound)")
	noMarker := flag.Bool("no-success-marker", false, "do not write the _SUCCESS marker")
	flag.Parse()

	if err := run(*partitionsDir, *outPath, *minYear, *maxYear, !*noMarker); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}
}

func run(partitionsDir, outPath string, minYear, maxYear int, writeMarker bool) error {
	partitions := &store.PartitionStore{Dir: partitionsDir}
	years, err := partitions.Years()
	if err != nil {
		return err
	}
	if len(years) == 0 {
		return fmt.Errorf("no partitions found under %s", partitionsDir)
	}

	var all []domain.AggregateRecord
	var included []int
	for _, y := range years {
		if minYear != 0 && y < minYear {
			continue
		}
		if maxYear != 0 && y > maxYear {
			continue
		}
		records, err := partitions.ReadYear(y)
		if err != nil {
			return err
		}
		all = append(all, records...)
		included = append(included, y)
	}
	if len(all) == 0 {
		return fmt.Errorf("no rows to publish after filtering")
	}

	domain.Sort(all)
	all = dedupe(all)

	if err := writeMerged(outPath, all); err != nil {
		return err
	}

	if writeMarker {
		marker := filepath.Join(filepath.Dir(outPath), "_SUCCESS")
		if err := os.WriteFile(marker, []byte("ok\n"), 0o644); err != nil {
			return fmt.Errorf("writing success marker: %w", err)
		}
	}

	countries := map[string]struct{}{}
	for _, r := range all {
		countries[r.Country] = struct{}{}
	}
	fmt.Printf("Published CSV to %s | Years: %d..%d | Countries: %d | Rows: %d | Partitions: %d\n",
		outPath, included[0], included[len(included)-1], len(countries), len(all), len(included))
	return nil
}

// dedupe drops repeated (country, year) rows, keeping the first. Input must
// already be sorted.
func dedupe(records []domain.AggregateRecord) []domain.AggregateRecord {
	out := records[:0]
	for i, r := range records {
		if i > 0 && r.Country == records[i-1].Country && r.Year == records[i-1].Year {
			continue
		}
		out = append(out, r)
	}
	return out
}

func writeMerged(path string, records []domain.AggregateRecord) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}

	w := csv.NewWriter(f)
	rows := make([][]string, 0, len(records)+1)
	rows = append(rows, store.Header)
	for _, r := range records {
		rows = append(rows, []string{
			r.Country,
			strconv.Itoa(r.Year),
			strconv.FormatFloat(r.TempC, 'g', -1, 64),
		})
	}
	if err := w.WriteAll(rows); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}
