// Command validate performs integrity checks on aggregation output: the
// year=YYYY partition layout, the exact CSV schema, row ordering and
// uniqueness, value plausibility, and the fallback audit file. It exits
// non-zero when any check fails, for CI integration.
//
// Usage:
//
//	go run ./cmd/validate -partitions data/processed/annual_temp
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/couchcryptid/climate-data-etl/internal/domain"
	"github.com/couchcryptid/climate-data-etl/internal/store"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	partitionsDir := flag.String("partitions", "data/processed/annual_temp", "directory holding year=YYYY partitions")
	auditPath := flag.String("audit", "", "fallback audit file (default <partitions>/fallback_audit.csv)")
	flag.Parse()

	audit := *auditPath
	if audit == "" {
		audit = filepath.Join(*partitionsDir, "fallback_audit.csv")
	}
	os.Exit(run(*partitionsDir, audit))
}

func run(partitionsDir, auditPath string) int {
	fmt.Println("=== Aggregation Output Validation ===")
	fmt.Println()

	partitions := &store.PartitionStore{Dir: partitionsDir}
	years, err := partitions.Years()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: list partitions: %v\n", err)
		return 1
	}
	if len(years) == 0 {
		fmt.Fprintf(os.Stderr, "FATAL: no partitions under %s\n", partitionsDir)
		return 1
	}

	phases := []*phase{
		validateLayout(partitionsDir, years),
		validateSchema(partitions, years),
		validateRows(partitions, years),
		validateAudit(auditPath),
	}

	fmt.Println()
	allPassed := true
	totalRows := 0
	for _, y := range years {
		if records, err := partitions.ReadYear(y); err == nil {
			totalRows += len(records)
		}
	}
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Partitions: %d (years %d..%d), rows: %d\n",
		len(years), years[0], years[len(years)-1], totalRows)

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

// validateLayout checks partition directories hold exactly one part file and
// no leftover temp files.
func validateLayout(dir string, years []int) *phase {
	p := &phase{name: "Partition layout"}
	for _, y := range years {
		partDir := filepath.Join(dir, fmt.Sprintf("year=%d", y))
		entries, err := os.ReadDir(partDir)
		if err != nil {
			p.errorf("%s: %v", partDir, err)
			continue
		}
		for _, e := range entries {
			switch {
			case e.Name() == "part.csv":
			case strings.HasSuffix(e.Name(), ".tmp"):
				p.errorf("%s: leftover temp file %s", partDir, e.Name())
			default:
				p.errorf("%s: unexpected entry %s", partDir, e.Name())
			}
		}
	}
	return p
}

// validateSchema checks every partition carries the exact header.
func validateSchema(partitions *store.PartitionStore, years []int) *phase {
	p := &phase{name: "Schema exactness"}
	for _, y := range years {
		f, err := os.Open(partitions.PartitionPath(y))
		if err != nil {
			p.errorf("year %d: %v", y, err)
			continue
		}
		header, err := csv.NewReader(f).Read()
		f.Close()
		if err != nil {
			p.errorf("year %d: reading header: %v", y, err)
			continue
		}
		if strings.Join(header, ",") != strings.Join(store.Header, ",") {
			p.errorf("year %d: header %v, want %v", y, header, store.Header)
		}
	}
	return p
}

// validateRows checks ordering, uniqueness, year consistency, and value
// plausibility.
func validateRows(partitions *store.PartitionStore, years []int) *phase {
	p := &phase{name: "Row ordering and values"}
	for _, y := range years {
		records, err := partitions.ReadYear(y)
		if err != nil {
			p.errorf("year %d: %v", y, err)
			continue
		}
		seen := map[string]bool{}
		for i, r := range records {
			if r.Year != y {
				p.errorf("year %d row %d: year column %d does not match partition", y, i, r.Year)
			}
			if r.Country == "" {
				p.errorf("year %d row %d: empty country", y, i)
			}
			if seen[r.Country] {
				p.errorf("year %d: duplicate country %q", y, r.Country)
			}
			seen[r.Country] = true
			if i > 0 && records[i-1].Country > r.Country {
				p.errorf("year %d row %d: countries not sorted (%q after %q)",
					y, i, r.Country, records[i-1].Country)
			}
			if math.IsNaN(r.TempC) || math.IsInf(r.TempC, 0) {
				p.errorf("year %d %s: non-finite temp_c", y, r.Country)
			} else if r.TempC < -90 || r.TempC > 60 {
				p.errorf("year %d %s: implausible temp_c %.2f", y, r.Country, r.TempC)
			}
		}
	}
	return p
}

// validateAudit checks the fallback audit file, when present, is well formed.
func validateAudit(path string) *phase {
	p := &phase{name: "Fallback audit"}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			// No fallback occurred; nothing to check.
			return p
		}
		p.errorf("%s: %v", path, err)
		return p
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		p.errorf("%s: %v", path, err)
		return p
	}
	if len(rows) == 0 || strings.Join(rows[0], ",") != strings.Join(store.AuditHeader, ",") {
		p.errorf("%s: missing or malformed header", path)
		return p
	}
	for i, row := range rows[1:] {
		if len(row) != len(store.AuditHeader) {
			p.errorf("row %d: want %d columns, got %d", i+2, len(store.AuditHeader), len(row))
			continue
		}
		if row[0] == "" {
			p.errorf("row %d: empty country", i+2)
		}
		if _, err := strconv.Atoi(row[1]); err != nil {
			p.errorf("row %d: bad year %q", i+2, row[1])
		}
		status := row[2]
		if status != domain.StatusFallbackUsed && status != domain.StatusNoGeometry &&
			status != domain.StatusNoData && !strings.HasPrefix(status, "no_cell_within_") {
			p.errorf("row %d: unrecognized status %q", i+2, status)
		}
		dist, err := strconv.ParseFloat(row[3], 64)
		if err != nil || dist < 0 || math.IsNaN(dist) {
			p.errorf("row %d: bad distance_km %q", i+2, row[3])
		}
		for col, name := range map[int]string{4: "nearest_lat", 5: "nearest_lon"} {
			if _, err := strconv.ParseFloat(row[col], 64); err != nil {
				p.errorf("row %d: bad %s %q", i+2, name, row[col])
			}
		}
	}
	return p
}
