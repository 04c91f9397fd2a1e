package config

import (
	"fmt"
	"strings"

	"xmlbar/internal/extract"
	"xmlbar/internal/output"
	"xmlbar/internal/storage"
)

// Severity of a validation issue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is one validation finding. Path names the setting, using the long
// flag name.
type Issue struct {
	Severity Severity
	Path     string
	Message  string
}

// HasErrors reports whether any issue is an error.
func HasErrors(issues []Issue) bool {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Validate checks cfg without touching the filesystem.
func Validate(cfg Config) []Issue {
	var out []Issue
	errf := func(path, format string, a ...any) {
		out = append(out, Issue{SeverityError, path, fmt.Sprintf(format, a...)})
	}
	warnf := func(path, format string, a ...any) {
		out = append(out, Issue{SeverityWarning, path, fmt.Sprintf(format, a...)})
	}

	if strings.TrimSpace(cfg.Input) == "" {
		errf("input", "input is required")
	}

	if cfg.Debug.Enabled() {
		if cfg.Template == "" && strings.TrimSpace(cfg.Debug.Root) == "" {
			errf("root", "selector mode needs a template or --root")
		}
		if cfg.Debug.Limit < 0 {
			errf("limit", "must be >= 0, got %d", cfg.Debug.Limit)
		}
		return out
	}

	if strings.TrimSpace(cfg.Template) == "" {
		errf("template", "template is required")
	}

	if cfg.Delimiter == "" {
		errf("delimiter", "must not be empty")
	} else if strings.ContainsAny(cfg.Delimiter, "\r\n") {
		errf("delimiter", "must not contain a line break")
	}

	if cfg.Workers < 0 {
		errf("workers", "must be >= 0, got %d", cfg.Workers)
	}
	if cfg.ChunkSize <= 0 {
		errf("chunk-size", "must be > 0, got %d", cfg.ChunkSize)
	}
	if cfg.QueueDepth < 0 {
		errf("queue-depth", "must be >= 0, got %d", cfg.QueueDepth)
	}
	if cfg.Ordered && !cfg.Parallel {
		warnf("ordered", "has no effect without --parallel; sequential runs are already ordered")
	}

	if _, err := extract.ParseWholePolicy(cfg.WholePolicy); err != nil {
		errf("whole-policy", "%v", err)
	}
	if cfg.Whole && cfg.Raw {
		warnf("raw", "ignored in whole-fragment mode")
	}
	if cfg.Whole && cfg.LinePerField {
		warnf("line-per-field", "ignored in whole-fragment mode")
	}
	if _, err := output.ParseFormat(cfg.Format); err != nil {
		errf("format", "%v", err)
	}

	switch cfg.OnError {
	case OnErrorSkip, OnErrorAbort:
	default:
		errf("on-error", "must be skip or abort, got %q", cfg.OnError)
	}

	switch cfg.Sink.Kind {
	case SinkFile, "":
		if strings.TrimSpace(cfg.Output) == "" {
			errf("output", "output is required")
		}
	case SinkSQLite, SinkPostgres, SinkMSSQL:
		if strings.TrimSpace(cfg.Sink.DSN) == "" {
			errf("dsn", "required for sink %s (flag or XMLBAR_DSN)", cfg.Sink.Kind)
		}
		if err := storage.ValidateTableName(cfg.Sink.Table); err != nil {
			errf("table", "%v", err)
		}
		if cfg.Sink.BatchSize <= 0 {
			errf("batch-size", "must be > 0, got %d", cfg.Sink.BatchSize)
		}
		if cfg.Output != "" {
			warnf("output", "ignored for sink %s", cfg.Sink.Kind)
		}
	default:
		errf("sink", "unknown sink %q (want file|sqlite|postgres|mssql)", cfg.Sink.Kind)
	}

	switch cfg.Metrics.Backend {
	case "", "none", "datadog":
	case "pushgateway":
		if cfg.Metrics.PushgatewayURL == "" {
			errf("pushgateway-url", "required for the pushgateway backend")
		}
	default:
		warnf("metrics-backend", "unknown backend %q; metrics disabled", cfg.Metrics.Backend)
	}

	return out
}
