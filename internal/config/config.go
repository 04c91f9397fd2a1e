// Package config holds the run configuration shared by the CLIs and the
// pipeline, together with its environment overlay and validation.
package config

import (
	"errors"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
)

// OnError selects what happens to a record that fails extraction.
type OnError string

const (
	// OnErrorSkip logs and counts the failing record, then continues.
	OnErrorSkip OnError = "skip"
	// OnErrorAbort stops the run at the first failing record.
	OnErrorAbort OnError = "abort"
)

// Sink kinds. Anything other than SinkFile is a storage backend kind.
const (
	SinkFile     = "file"
	SinkSQLite   = "sqlite"
	SinkPostgres = "postgres"
	SinkMSSQL    = "mssql"
)

// Config is one extraction run.
type Config struct {
	Input    string // file, directory, "-" or http(s) URL
	Template string
	Output   string // path or "-"

	Delimiter string
	Wrapper   string

	Parallel   bool
	Ordered    bool
	Workers    int // 0 = physical cores
	ChunkSize  int
	QueueDepth int // 0 = sized from host memory

	Whole        bool
	WholePolicy  string
	Raw          bool
	LinePerField bool
	Format       string

	OnError OnError

	Sink    SinkConfig
	Metrics MetricsConfig
	Debug   DebugConfig
}

// SinkConfig selects where units go.
type SinkConfig struct {
	Kind      string
	DSN       string
	Table     string
	BatchSize int
}

// MetricsConfig selects the metrics backend.
type MetricsConfig struct {
	Backend        string // none|datadog|pushgateway
	PushgatewayURL string
	Job            string
	Tags           []string
}

// DebugConfig drives the selector debugging mode. It is active when Selector
// is set.
type DebugConfig struct {
	Selector string
	Text     bool
	Limit    int
	Root     string // record tag when no template is given
}

// Enabled reports whether the run is a selector debug run.
func (d DebugConfig) Enabled() bool { return strings.TrimSpace(d.Selector) != "" }

// Default returns the defaults used by xml2bar.
func Default() Config {
	return Config{
		Delimiter:   "|",
		Parallel:    true,
		ChunkSize:   100,
		WholePolicy: "any",
		Format:      "envelope",
		OnError:     OnErrorSkip,
		Sink: SinkConfig{
			Kind:      SinkFile,
			Table:     "xmlbar_units",
			BatchSize: 500,
		},
		Metrics: MetricsConfig{Job: "xmlbar"},
		Debug:   DebugConfig{Limit: 10},
	}
}

// ApplyEnv fills settings left empty by flags from the environment:
// METRICS_BACKEND, PUSHGATEWAY_URL, METRICS_TAGS (comma separated) and
// XMLBAR_DSN. An unset backend becomes "none".
func ApplyEnv(cfg *Config, getenv func(string) string) {
	if cfg.Metrics.Backend == "" {
		cfg.Metrics.Backend = strings.TrimSpace(getenv("METRICS_BACKEND"))
	}
	if cfg.Metrics.Backend == "" {
		cfg.Metrics.Backend = "none"
	}
	if cfg.Metrics.PushgatewayURL == "" {
		cfg.Metrics.PushgatewayURL = strings.TrimSpace(getenv("PUSHGATEWAY_URL"))
	}
	if len(cfg.Metrics.Tags) == 0 {
		for _, t := range strings.Split(getenv("METRICS_TAGS"), ",") {
			if t = strings.TrimSpace(t); t != "" {
				cfg.Metrics.Tags = append(cfg.Metrics.Tags, t)
			}
		}
	}
	if cfg.Sink.DSN == "" {
		cfg.Sink.DSN = strings.TrimSpace(getenv("XMLBAR_DSN"))
	}
}

// LoadDotEnv loads KEY=VALUE files into the process environment without
// overriding variables that are already set. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return err
		}
	}
	return nil
}
