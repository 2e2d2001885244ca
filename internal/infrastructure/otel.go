package infrastructure

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.28.0"
)

const (
	ServiceName = "mm-core"
	MeterName   = "mmcore"
)

// OTelProviders holds the metric provider and meter handed to the metric
// consumers. Metrics export through the Prometheus registry scraped at
// /metrics.
type OTelProviders struct {
	MeterProvider *sdkmetric.MeterProvider
	Meter         metric.Meter
	Logger        *slog.Logger
}

// InitializeOTel sets up the OpenTelemetry meter provider backed by the
// Prometheus exporter.
func InitializeOTel(version string, logger *slog.Logger) (*OTelProviders, error) {
	if logger == nil {
		logger = GetLogger()
	}

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(ServiceName),
		semconv.ServiceVersion(version),
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exporter),
	)
	otel.SetMeterProvider(mp)

	logger.Info("metrics initialized",
		slog.String("exporter", "prometheus"),
	)

	return &OTelProviders{
		MeterProvider: mp,
		Meter:         mp.Meter(MeterName, metric.WithInstrumentationVersion(version)),
		Logger:        logger,
	}, nil
}

// Shutdown flushes and stops the meter provider
func (p *OTelProviders) Shutdown(ctx context.Context) error {
	if p.MeterProvider == nil {
		return nil
	}
	return p.MeterProvider.Shutdown(ctx)
}
