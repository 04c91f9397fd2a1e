package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"xmlbar/internal/config"
	"xmlbar/internal/metrics"
	"xmlbar/internal/metrics/datadog"
	"xmlbar/internal/metrics/prompush"
)

// closer is implemented by backends that flush in the background.
type closer interface {
	Close() error
}

// Seams for tests.
var (
	newDatadogBackend = func(ctx context.Context, opts datadog.Options) (metrics.Backend, error) {
		return datadog.NewBackend(ctx, opts)
	}
	newPushBackend = func(url, job string, groupings map[string]string) (metrics.Backend, error) {
		return prompush.NewBackend(url, job, groupings)
	}
	setMetricsBackend = metrics.SetBackend
)

// initMetrics installs the configured backend and returns a cleanup that
// flushes it. The cleanup is never nil.
//
// Construction failures are not fatal: they are logged and metrics stay
// disabled.
func initMetrics(ctx context.Context, mc config.MetricsConfig, logger *zap.Logger) (func(), error) {
	noop := func() {}

	switch mc.Backend {
	case "", "none":
		logger.Debug("metrics disabled")
		return noop, nil

	case "pushgateway":
		if mc.PushgatewayURL == "" {
			return noop, fmt.Errorf("pushgateway backend needs a URL")
		}
		b, err := newPushBackend(mc.PushgatewayURL, mc.Job, nil)
		if err != nil {
			logger.Warn("metrics: pushgateway backend unavailable; metrics disabled", zap.Error(err))
			return noop, nil
		}
		logger.Info("metrics enabled", zap.String("backend", mc.Backend), zap.String("url", mc.PushgatewayURL), zap.String("job", mc.Job))
		setMetricsBackend(b)
		return func() {
			if err := b.Flush(); err != nil {
				logger.Warn("metrics: push failed", zap.Error(err))
			}
			setMetricsBackend(nil)
		}, nil

	case "datadog":
		b, err := newDatadogBackend(ctx, datadog.Options{
			JobName:    mc.Job,
			Tags:       mc.Tags,
			FlushEvery: 60 * time.Second,
		})
		if err != nil {
			logger.Warn("metrics: datadog backend unavailable; metrics disabled", zap.Error(err))
			return noop, nil
		}
		logger.Info("metrics enabled", zap.String("backend", mc.Backend), zap.String("job", mc.Job), zap.Strings("tags", mc.Tags))
		setMetricsBackend(b)
		return func() {
			// Close stops the flush loop and submits what is left.
			var err error
			if c, ok := b.(closer); ok {
				err = c.Close()
			} else {
				err = b.Flush()
			}
			if err != nil {
				logger.Warn("metrics: datadog close failed", zap.Error(err))
			}
			setMetricsBackend(nil)
		}, nil

	default:
		logger.Warn("metrics: unknown backend; metrics disabled", zap.String("backend", mc.Backend))
		return noop, nil
	}
}
