package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	// Input locations. Grid files are one NetCDF file per year, named by
	// GridFileTemplate (a fmt template receiving the year).
	CountriesGeoJSON string
	GridDir          string
	GridFileTemplate string

	// Output locations. Partitions land under OutputDir/year=YYYY/part.csv;
	// the fallback audit is one file per run at OutputDir/fallback_audit.csv.
	OutputDir string

	StartYear int
	EndYear   int

	// Grid variable and axis names. The time axis is auto-detected from a
	// recognized set and is deliberately not configurable.
	GridVar string
	LatName string
	LonName string

	// Geometry sanitization.
	NameColumn   string // empty means auto-detect from the priority list
	OutputCRS    string
	MetricCRS    string
	BufferMeters float64
	MakeValid    bool

	// Masking and fallback tuning.
	AreaWeighting          bool
	RegionBatchSize        int
	FallbackMaxKm          float64
	UseRepresentativePoint bool

	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Optional Kafka publishing of merged records after each partition write.
	KafkaEnabled bool
	KafkaBrokers []string
	KafkaTopic   string
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	startYear, endYear, err := parseYears(envOrDefault("YEARS", "2000-2023"))
	if err != nil {
		return nil, err
	}

	shutdownTimeout, err := parseDuration("SHUTDOWN_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}

	bufferMeters, err := parseFloat("BUFFER_METERS", "15000")
	if err != nil {
		return nil, err
	}
	if bufferMeters < 0 {
		return nil, errors.New("BUFFER_METERS must not be negative")
	}

	fallbackMaxKm, err := parseFloat("FALLBACK_MAX_KM", "25")
	if err != nil {
		return nil, err
	}
	if fallbackMaxKm <= 0 {
		return nil, errors.New("FALLBACK_MAX_KM must be positive")
	}

	batchSize, err := parsePositiveInt("REGION_BATCH_SIZE", "50")
	if err != nil {
		return nil, err
	}

	kafkaBrokers := parseBrokers(os.Getenv("KAFKA_BROKERS"))

	cfg := &Config{
		CountriesGeoJSON: envOrDefault("COUNTRIES_GEOJSON", "data/shapefiles/countries.geojson"),
		GridDir:          envOrDefault("GRID_DIR", "data/raw/era5"),
		GridFileTemplate: envOrDefault("GRID_FILE_TEMPLATE", "era5_t2m_%d.nc"),
		OutputDir:        envOrDefault("OUTPUT_DIR", "data/processed/annual_temp"),

		StartYear: startYear,
		EndYear:   endYear,

		GridVar: envOrDefault("GRID_VAR", "t2m"),
		LatName: envOrDefault("LAT_NAME", "latitude"),
		LonName: envOrDefault("LON_NAME", "longitude"),

		NameColumn:   os.Getenv("COUNTRY_COL"),
		OutputCRS:    envOrDefault("OUTPUT_CRS", "EPSG:4326"),
		MetricCRS:    envOrDefault("METRIC_CRS", "EPSG:6933"),
		BufferMeters: bufferMeters,
		MakeValid:    envOrDefault("MAKE_VALID", "true") == "true",

		AreaWeighting:          envOrDefault("AREA_WEIGHTING", "true") == "true",
		RegionBatchSize:        batchSize,
		FallbackMaxKm:          fallbackMaxKm,
		UseRepresentativePoint: envOrDefault("USE_REPRESENTATIVE_POINT", "true") == "true",

		HTTPAddr:        envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
		LogFormat:       envOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		KafkaEnabled: envOrDefault("KAFKA_ENABLED", "false") == "true",
		KafkaBrokers: kafkaBrokers,
		KafkaTopic:   envOrDefault("KAFKA_TOPIC", "annual-country-temperature"),
	}

	if cfg.CountriesGeoJSON == "" {
		return nil, errors.New("COUNTRIES_GEOJSON is required")
	}
	if cfg.GridDir == "" {
		return nil, errors.New("GRID_DIR is required")
	}
	if !strings.Contains(cfg.GridFileTemplate, "%d") {
		return nil, errors.New("GRID_FILE_TEMPLATE must contain a %d year placeholder")
	}
	if cfg.OutputDir == "" {
		return nil, errors.New("OUTPUT_DIR is required")
	}
	if cfg.GridVar == "" {
		return nil, errors.New("GRID_VAR is required")
	}
	if cfg.KafkaEnabled && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_ENABLED is true but KAFKA_BROKERS is not set")
	}
	if cfg.KafkaEnabled && cfg.KafkaTopic == "" {
		return nil, errors.New("KAFKA_ENABLED is true but KAFKA_TOPIC is not set")
	}

	return cfg, nil
}

// GridPath returns the grid file path for one year.
func (c *Config) GridPath(year int) string {
	return filepath.Join(c.GridDir, fmt.Sprintf(c.GridFileTemplate, year))
}

// Years returns the configured processing years in ascending order.
func (c *Config) Years() []int {
	years := make([]int, 0, c.EndYear-c.StartYear+1)
	for y := c.StartYear; y <= c.EndYear; y++ {
		years = append(years, y)
	}
	return years
}

// parseYears accepts a range like "2000-2023" or a single year "2021".
func parseYears(s string) (int, int, error) {
	lo, hi, ok := strings.Cut(s, "-")
	if !ok {
		hi = lo
	}
	start, err := strconv.Atoi(strings.TrimSpace(lo))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid YEARS %q", s)
	}
	end, err := strconv.Atoi(strings.TrimSpace(hi))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid YEARS %q", s)
	}
	if end < start {
		return 0, 0, fmt.Errorf("invalid YEARS %q: end before start", s)
	}
	return start, end, nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseBrokers(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	brokers := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			brokers = append(brokers, p)
		}
	}
	return brokers
}

func parseDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(envOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parseFloat(key, def string) (float64, error) {
	f, err := strconv.ParseFloat(envOrDefault(key, def), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return f, nil
}

func parsePositiveInt(key, def string) (int, error) {
	n, err := strconv.Atoi(envOrDefault(key, def))
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s: must be a positive integer", key)
	}
	return n, nil
}
