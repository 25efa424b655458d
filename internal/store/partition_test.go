package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/couchcryptid/climate-data-etl/internal/domain"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteYearRoundTrip(t *testing.T) {
	s := &PartitionStore{Dir: t.TempDir()}
	records := []domain.AggregateRecord{
		{Country: "Chile", Year: 2020, TempC: 9.25},
		{Country: "Angola", Year: 2020, TempC: 22.5, Fallback: true},
	}
	require.NoError(t, s.WriteYear(2020, records))

	got, err := s.ReadYear(2020)
	require.NoError(t, err)
	want := []domain.AggregateRecord{
		{Country: "Angola", Year: 2020, TempC: 22.5},
		{Country: "Chile", Year: 2020, TempC: 9.25},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestWriteYearIsByteIdenticalOnRewrite(t *testing.T) {
	s := &PartitionStore{Dir: t.TempDir()}
	records := []domain.AggregateRecord{
		{Country: "Bhutan", Year: 2021, TempC: 7.123456789012345},
		{Country: "Andorra", Year: 2021, TempC: -0.5},
	}
	require.NoError(t, s.WriteYear(2021, records))
	first, err := os.ReadFile(s.PartitionPath(2021))
	require.NoError(t, err)

	// Same records in a different order must produce the same bytes.
	require.NoError(t, s.WriteYear(2021, []domain.AggregateRecord{records[1], records[0]}))
	second, err := os.ReadFile(s.PartitionPath(2021))
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestWriteYearRejectsForeignYears(t *testing.T) {
	s := &PartitionStore{Dir: t.TempDir()}
	err := s.WriteYear(2020, []domain.AggregateRecord{{Country: "Chile", Year: 2021, TempC: 1}})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrPersistence)
}

func TestWriteYearLeavesNoTempFile(t *testing.T) {
	s := &PartitionStore{Dir: t.TempDir()}
	require.NoError(t, s.WriteYear(2020, []domain.AggregateRecord{{Country: "Chile", Year: 2020, TempC: 1}}))

	entries, err := os.ReadDir(filepath.Join(s.Dir, "year=2020"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "part.csv", entries[0].Name())
}

func TestWriteYearEmptyPartition(t *testing.T) {
	s := &PartitionStore{Dir: t.TempDir()}
	require.NoError(t, s.WriteYear(2020, nil))
	got, err := s.ReadYear(2020)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestYearsListsPartitionsAscending(t *testing.T) {
	s := &PartitionStore{Dir: t.TempDir()}
	for _, y := range []int{2022, 2019, 2020} {
		require.NoError(t, s.WriteYear(y, []domain.AggregateRecord{{Country: "Chile", Year: y, TempC: 1}}))
	}
	// A stray directory without a part file is skipped.
	require.NoError(t, os.MkdirAll(filepath.Join(s.Dir, "year=2025"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(s.Dir, "scratch"), 0o755))

	years, err := s.Years()
	require.NoError(t, err)
	assert.Equal(t, []int{2019, 2020, 2022}, years)
}

func TestYearsMissingDir(t *testing.T) {
	s := &PartitionStore{Dir: filepath.Join(t.TempDir(), "absent")}
	years, err := s.Years()
	require.NoError(t, err)
	assert.Empty(t, years)
}

func TestReadYearMissingPartition(t *testing.T) {
	s := &PartitionStore{Dir: t.TempDir()}
	_, err := s.ReadYear(1999)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrPersistence)
}

func TestReadYearRejectsBadHeader(t *testing.T) {
	s := &PartitionStore{Dir: t.TempDir()}
	dir := filepath.Join(s.Dir, "year=2020")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "part.csv"), []byte("name,yr,val\nChile,2020,1\n"), 0o644))

	_, err := s.ReadYear(2020)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrPersistence)
}

func TestAuditLogAppend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fallback_audit.csv")
	l := &AuditLog{Path: path}

	require.NoError(t, l.Append([]domain.FallbackAuditEntry{
		{Country: "Malta", Year: 2020, Status: domain.StatusFallbackUsed, DistanceKm: 12.5, NearestLat: 36, NearestLon: 14.5},
	}))
	require.NoError(t, l.Append([]domain.FallbackAuditEntry{
		{Country: "Nauru", Year: 2020, Status: domain.StatusNoGeometry},
	}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	want := "country,year,status,distance_km,nearest_lat,nearest_lon\n" +
		"Malta,2020,fallback_used,12.5,36,14.5\n" +
		"Nauru,2020,no_geometry,0,0,0\n"
	assert.Equal(t, want, string(data))
}

func TestAuditLogAppendNothing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fallback_audit.csv")
	l := &AuditLog{Path: path}
	require.NoError(t, l.Append(nil))
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestAuditLogResetDropsPreviousRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fallback_audit.csv")
	l := &AuditLog{Path: path}

	require.NoError(t, l.Append([]domain.FallbackAuditEntry{
		{Country: "Malta", Year: 2019, Status: domain.StatusFallbackUsed, DistanceKm: 12.5, NearestLat: 36, NearestLon: 14.5},
	}))
	require.NoError(t, l.Reset())
	require.NoError(t, l.Append([]domain.FallbackAuditEntry{
		{Country: "Nauru", Year: 2020, Status: domain.StatusNoGeometry},
	}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	want := "country,year,status,distance_km,nearest_lat,nearest_lon\n" +
		"Nauru,2020,no_geometry,0,0,0\n"
	assert.Equal(t, want, string(data))
}

func TestAuditLogResetWithoutFile(t *testing.T) {
	l := &AuditLog{Path: filepath.Join(t.TempDir(), "fallback_audit.csv")}
	require.NoError(t, l.Reset())
}
