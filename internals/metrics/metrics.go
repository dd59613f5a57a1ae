// Package metrics exposes the daemon's OpenTelemetry instruments through a
// Prometheus scrape handler. Record* calls are no-ops until Init has run.
package metrics

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	otelglobal "go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

const meterName = "github.com/Oudwins/taskforge"

var (
	initOnce sync.Once
	initErr  error

	taskOps           metric.Int64Counter
	webhookDeliveries metric.Int64Counter
	webhookDuration   metric.Float64Histogram
	provisioning      metric.Int64Counter
	prRefresh         metric.Int64Counter
	cleanupReclaimed  metric.Int64Counter
)

// InitMeterProvider installs a global MeterProvider backed by a fresh
// Prometheus registry and returns the handler serving it.
func InitMeterProvider(ctx context.Context, serviceName string) (http.Handler, error) {
	if serviceName == "" {
		serviceName = "forged"
	}
	reg := prometheus.NewRegistry()
	exporter, err := otelprom.New(otelprom.WithRegisterer(reg))
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(serviceName)))
	if err != nil {
		return nil, err
	}
	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
		sdkmetric.WithResource(res),
	)
	otelglobal.SetMeterProvider(provider)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true}), nil
}

func Meter() metric.Meter {
	return otelglobal.Meter(meterName)
}

// Init creates the instruments. Only the first call does any work.
func Init() error {
	initOnce.Do(func() {
		m := Meter()
		if taskOps, initErr = m.Int64Counter("forge_task_operations_total", metric.WithDescription("Task state machine operations")); initErr != nil {
			return
		}
		if webhookDeliveries, initErr = m.Int64Counter("forge_webhook_deliveries_total", metric.WithDescription("Webhook delivery attempts by outcome")); initErr != nil {
			return
		}
		if webhookDuration, initErr = m.Float64Histogram("forge_webhook_delivery_duration_seconds", metric.WithDescription("Webhook POST duration in seconds")); initErr != nil {
			return
		}
		if provisioning, initErr = m.Int64Counter("forge_provisioning_total", metric.WithDescription("Workspace provisioning runs")); initErr != nil {
			return
		}
		if prRefresh, initErr = m.Int64Counter("forge_pr_refresh_total", metric.WithDescription("PR status refreshes")); initErr != nil {
			return
		}
		cleanupReclaimed, initErr = m.Int64Counter("forge_cleanup_reclaimed_total", metric.WithDescription("Workspaces reclaimed by the cleanup sweep"))
	})
	return initErr
}

func RecordTaskOp(ctx context.Context, op string) {
	if taskOps == nil {
		return
	}
	taskOps.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", op)))
}

// RecordDelivery records one POST attempt. outcome is success, retrying or
// failed.
func RecordDelivery(ctx context.Context, outcome string, duration time.Duration) {
	if webhookDeliveries != nil {
		webhookDeliveries.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	}
	if webhookDuration != nil && duration > 0 {
		webhookDuration.Record(ctx, duration.Seconds())
	}
}

func RecordProvisioning(ctx context.Context, mode string, outcome string) {
	if provisioning == nil {
		return
	}
	provisioning.Add(ctx, 1, metric.WithAttributes(
		attribute.String("mode", mode),
		attribute.String("outcome", outcome),
	))
}

func RecordPRRefresh(ctx context.Context, changed bool) {
	if prRefresh == nil {
		return
	}
	prRefresh.Add(ctx, 1, metric.WithAttributes(attribute.Bool("changed", changed)))
}

func RecordCleanup(ctx context.Context, reclaimed int) {
	if cleanupReclaimed == nil || reclaimed == 0 {
		return
	}
	cleanupReclaimed.Add(ctx, int64(reclaimed))
}
