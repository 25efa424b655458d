package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "data/shapefiles/countries.geojson", cfg.CountriesGeoJSON)
	assert.Equal(t, "data/raw/era5", cfg.GridDir)
	assert.Equal(t, "era5_t2m_%d.nc", cfg.GridFileTemplate)
	assert.Equal(t, "data/processed/annual_temp", cfg.OutputDir)
	assert.Equal(t, 2000, cfg.StartYear)
	assert.Equal(t, 2023, cfg.EndYear)
	assert.Equal(t, "t2m", cfg.GridVar)
	assert.Equal(t, "latitude", cfg.LatName)
	assert.Equal(t, "longitude", cfg.LonName)
	assert.Empty(t, cfg.NameColumn)
	assert.Equal(t, "EPSG:4326", cfg.OutputCRS)
	assert.Equal(t, "EPSG:6933", cfg.MetricCRS)
	assert.Equal(t, 15000.0, cfg.BufferMeters)
	assert.True(t, cfg.MakeValid)
	assert.True(t, cfg.AreaWeighting)
	assert.Equal(t, 50, cfg.RegionBatchSize)
	assert.Equal(t, 25.0, cfg.FallbackMaxKm)
	assert.True(t, cfg.UseRepresentativePoint)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.False(t, cfg.KafkaEnabled)
	assert.Empty(t, cfg.KafkaBrokers)
}

func TestLoad_CustomEnv(t *testing.T) {
	t.Setenv("COUNTRIES_GEOJSON", "/srv/geo/countries.geojson")
	t.Setenv("GRID_DIR", "/srv/era5")
	t.Setenv("GRID_FILE_TEMPLATE", "temp_%d.nc")
	t.Setenv("OUTPUT_DIR", "/srv/out")
	t.Setenv("YEARS", "2019-2021")
	t.Setenv("GRID_VAR", "tas")
	t.Setenv("LAT_NAME", "lat")
	t.Setenv("LON_NAME", "lon")
	t.Setenv("COUNTRY_COL", "ADMIN")
	t.Setenv("BUFFER_METERS", "5000")
	t.Setenv("MAKE_VALID", "false")
	t.Setenv("AREA_WEIGHTING", "false")
	t.Setenv("REGION_BATCH_SIZE", "10")
	t.Setenv("FALLBACK_MAX_KM", "40")
	t.Setenv("USE_REPRESENTATIVE_POINT", "false")
	t.Setenv("KAFKA_ENABLED", "true")
	t.Setenv("KAFKA_BROKERS", "broker1:9092, broker2:9092")
	t.Setenv("KAFKA_TOPIC", "annual-temp")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/srv/geo/countries.geojson", cfg.CountriesGeoJSON)
	assert.Equal(t, "/srv/era5", cfg.GridDir)
	assert.Equal(t, 2019, cfg.StartYear)
	assert.Equal(t, 2021, cfg.EndYear)
	assert.Equal(t, "tas", cfg.GridVar)
	assert.Equal(t, "ADMIN", cfg.NameColumn)
	assert.Equal(t, 5000.0, cfg.BufferMeters)
	assert.False(t, cfg.MakeValid)
	assert.False(t, cfg.AreaWeighting)
	assert.Equal(t, 10, cfg.RegionBatchSize)
	assert.Equal(t, 40.0, cfg.FallbackMaxKm)
	assert.False(t, cfg.UseRepresentativePoint)
	assert.True(t, cfg.KafkaEnabled)
	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "annual-temp", cfg.KafkaTopic)
}

func TestLoad_SingleYear(t *testing.T) {
	t.Setenv("YEARS", "2021")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []int{2021}, cfg.Years())
}

func TestLoad_InvalidYears(t *testing.T) {
	for _, v := range []string{"abc", "2023-2000", "2000-", ""} {
		if v != "" {
			t.Setenv("YEARS", v)
			_, err := Load()
			require.Error(t, err, "YEARS=%q", v)
		}
	}
}

func TestLoad_InvalidBatchSize(t *testing.T) {
	t.Setenv("REGION_BATCH_SIZE", "0")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "REGION_BATCH_SIZE")
}

func TestLoad_NegativeBuffer(t *testing.T) {
	t.Setenv("BUFFER_METERS", "-1")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BUFFER_METERS")
}

func TestLoad_TemplateWithoutYearPlaceholder(t *testing.T) {
	t.Setenv("GRID_FILE_TEMPLATE", "era5.nc")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GRID_FILE_TEMPLATE")
}

func TestLoad_KafkaEnabledWithoutBrokers(t *testing.T) {
	t.Setenv("KAFKA_ENABLED", "true")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "KAFKA_BROKERS")
}

func TestGridPath(t *testing.T) {
	t.Setenv("GRID_DIR", "/data/era5")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "/data/era5/era5_t2m_2007.nc", cfg.GridPath(2007))
}
