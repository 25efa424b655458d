package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/jonboulle/clockwork"
	"github.com/twpayne/go-geos"

	httpadapter "github.com/couchcryptid/climate-data-etl/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/climate-data-etl/internal/adapter/kafka"
	"github.com/couchcryptid/climate-data-etl/internal/config"
	"github.com/couchcryptid/climate-data-etl/internal/geometry"
	"github.com/couchcryptid/climate-data-etl/internal/grid"
	"github.com/couchcryptid/climate-data-etl/internal/observability"
	"github.com/couchcryptid/climate-data-etl/internal/pipeline"
	"github.com/couchcryptid/climate-data-etl/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	geosCtx := geos.NewContext()

	features, err := geometry.ReadFeatureCollection(geosCtx, cfg.CountriesGeoJSON)
	if err != nil {
		logger.Error("reading country boundaries failed", "path", cfg.CountriesGeoJSON, "error", err)
		os.Exit(1)
	}
	cleaned, nameCol, err := geometry.Sanitize(geosCtx, features, geometry.Options{
		NameColumn:   cfg.NameColumn,
		OutputCRS:    cfg.OutputCRS,
		MetricCRS:    cfg.MetricCRS,
		BufferMeters: cfg.BufferMeters,
		MakeValid:    cfg.MakeValid,
	})
	if err != nil {
		logger.Error("sanitizing country boundaries failed", "error", err)
		os.Exit(1)
	}
	regions, err := geometry.BuildRegions(geosCtx, cleaned, nameCol)
	if err != nil {
		logger.Error("building regions failed", "error", err)
		os.Exit(1)
	}
	logger.Info("country boundaries loaded",
		"raw", len(features), "sanitized", regions.Len(), "name_column", nameCol)

	source := &grid.NetCDFSource{
		PathForYear: cfg.GridPath,
		Var:         cfg.GridVar,
		LatName:     cfg.LatName,
		LonName:     cfg.LonName,
	}

	partitions := &store.PartitionStore{Dir: cfg.OutputDir}
	audit := &store.AuditLog{Path: filepath.Join(cfg.OutputDir, "fallback_audit.csv")}

	// Kafka publishing is feature-flagged via KAFKA_ENABLED.
	var publisher pipeline.Publisher
	var kafkaWriter *kafkaadapter.Writer
	if cfg.KafkaEnabled {
		kafkaWriter = kafkaadapter.NewWriter(cfg, logger)
		publisher = kafkaWriter
		logger.Info("kafka publishing enabled", "topic", cfg.KafkaTopic)
	} else {
		logger.Info("kafka publishing disabled")
	}

	p := pipeline.New(
		source,
		regions,
		&grid.Masker{BatchSize: cfg.RegionBatchSize, AreaWeighted: cfg.AreaWeighting},
		&grid.Resolver{MaxDistanceKm: cfg.FallbackMaxKm, UseRepresentativePoint: cfg.UseRepresentativePoint},
		partitions,
		audit,
		publisher,
		cfg.Years(),
		logger,
		metrics,
		clockwork.NewRealClock(),
	)

	srv := httpadapter.NewServer(cfg.HTTPAddr, p, p, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	runErr := p.Run(ctx)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		logger.Error("aggregation run error", "error", runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if kafkaWriter != nil {
		if err := kafkaWriter.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}

	if runErr != nil {
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}
