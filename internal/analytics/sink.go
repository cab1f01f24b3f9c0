package analytics

import (
	"context"
	"errors"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/strobe-loadgen/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/strobe-loadgen/pkg/metrics"
)

// Sink records a finished run.
type Sink interface {
	Name() string
	Record(ctx context.Context, s Summary) error
}

// LogSink writes the summary as one structured log line.
type LogSink struct {
	Logger *slog.Logger
}

func (LogSink) Name() string { return "log" }

func (l LogSink) Record(ctx context.Context, s Summary) error {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	level := slog.LevelInfo
	if !s.Complete() {
		level = slog.LevelWarn
	}
	logger.Log(ctx, level, "run summary",
		"run_id", s.RunID,
		"schema", s.Schema,
		"target", s.Target,
		"expected_records", s.ExpectedRecords,
		"expected_batches", s.ExpectedBatches,
		"ok", s.OK,
		"err", s.Err,
		"records", s.Records,
		"acknowledged", s.Acknowledged,
		"elapsed_ms", s.ElapsedMs,
		"docs_per_sec", s.DocsPerSec,
		"interrupted", s.Interrupted,
	)
	return nil
}

// MultiSink fans a summary out to every sink. A failing sink is logged and
// counted; the others still run and Record reports the joined errors.
type MultiSink struct {
	sinks   []Sink
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewMultiSink(m *metrics.Metrics, sinks ...Sink) *MultiSink {
	return &MultiSink{
		sinks:   sinks,
		metrics: m,
		logger:  logger.WithComponent("run-summary"),
	}
}

func (m *MultiSink) Name() string { return "multi" }

func (m *MultiSink) Len() int { return len(m.sinks) }

func (m *MultiSink) Record(ctx context.Context, s Summary) error {
	var errs []error
	for _, sink := range m.sinks {
		if err := sink.Record(ctx, s); err != nil {
			m.logger.Error("run summary sink failed",
				"sink", sink.Name(),
				"run_id", s.RunID,
				"error", err,
			)
			if m.metrics != nil {
				m.metrics.RunSummariesFailed.WithLabelValues(sink.Name()).Inc()
			}
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
