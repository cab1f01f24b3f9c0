// Package pipeline drives a synthetic record stream to the index: one
// producer batches records into a bounded queue and a fixed pool of workers,
// each with its own transport session, uploads them with bounded retry.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/Adithya-Monish-Kumar-K/strobe-loadgen/internal/synth"
	apperrors "github.com/Adithya-Monish-Kumar-K/strobe-loadgen/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/strobe-loadgen/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/strobe-loadgen/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/strobe-loadgen/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/strobe-loadgen/pkg/transport"
)

type Config struct {
	Total           int
	BatchSize       int
	Workers         int
	ChannelCapacity int
	Schema          Schema
	MaxRetries      int
	Backoff         resilience.Backoff
	RequestTimeout  time.Duration
	ReportEvery     int
	// RecordsPerSecond caps the producer; zero means unlimited.
	RecordsPerSecond float64
}

func (c Config) validate() error {
	switch {
	case c.Total < 0:
		return apperrors.Invalidf("total must be >= 0, got %d", c.Total)
	case c.BatchSize < 1:
		return apperrors.Invalidf("batch size must be >= 1, got %d", c.BatchSize)
	case c.Workers < 1:
		return apperrors.Invalidf("workers must be >= 1, got %d", c.Workers)
	case c.ChannelCapacity < 1:
		return apperrors.Invalidf("channel capacity must be >= 1, got %d", c.ChannelCapacity)
	case c.MaxRetries < 0:
		return apperrors.Invalidf("max retries must be >= 0, got %d", c.MaxRetries)
	case c.RecordsPerSecond < 0:
		return apperrors.Invalidf("records per second must be >= 0, got %v", c.RecordsPerSecond)
	}
	return nil
}

type Option func(*Pipeline)

// WithMetrics records into m instead of a private registry.
func WithMetrics(m *metrics.Metrics) Option { return func(p *Pipeline) { p.metrics = m } }

// WithClock replaces time.Now for elapsed-time accounting.
func WithClock(now func() time.Time) Option { return func(p *Pipeline) { p.now = now } }

// WithSleeper replaces the backoff sleep.
func WithSleeper(s resilience.Sleeper) Option { return func(p *Pipeline) { p.sleep = s } }

// WithReporter replaces the progress reporter.
func WithReporter(r Reporter) Option { return func(p *Pipeline) { p.reporter = r } }

type Pipeline struct {
	cfg      Config
	synth    *synth.Synthesizer
	factory  transport.Factory
	metrics  *metrics.Metrics
	now      func() time.Time
	sleep    resilience.Sleeper
	reporter Reporter
}

func New(cfg Config, s *synth.Synthesizer, factory transport.Factory, opts ...Option) (*Pipeline, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.Schema == "" {
		cfg.Schema = SchemaBin
	}
	if cfg.Backoff == nil {
		cfg.Backoff = resilience.Linear(500 * time.Millisecond)
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	p := &Pipeline{cfg: cfg, synth: s, factory: factory, now: time.Now, sleep: resilience.Sleep}
	for _, opt := range opts {
		opt(p)
	}
	if p.metrics == nil {
		p.metrics = metrics.NewUnregistered()
	}
	return p, nil
}

// Result is the outcome of a run. Interrupted is set when ctx ended the run
// before every batch resolved.
type Result struct {
	Snapshot
	ExpectedRecords int
	ExpectedBatches int
	Interrupted     bool
}

// Run produces every batch and waits for all workers to observe end-of-stream.
// Dropped batches are not errors; Run fails only when sessions cannot be
// opened.
func (p *Pipeline) Run(ctx context.Context) (Result, error) {
	log := logger.FromContext(ctx).With("component", "pipeline")

	sessions := make([]transport.Session, 0, p.cfg.Workers)
	defer func() {
		for _, s := range sessions {
			s.Close()
		}
	}()
	for i := 0; i < p.cfg.Workers; i++ {
		s, err := p.factory()
		if err != nil {
			return Result{}, fmt.Errorf("opening session for worker %d: %w", i, err)
		}
		sessions = append(sessions, s)
	}

	reporter := p.reporter
	if reporter == nil {
		reporter = LogReporter(log)
	}
	stats := NewStats(p.cfg.Total, p.cfg.ReportEvery, p.now, reporter)
	queue := NewQueue(p.cfg.ChannelCapacity)
	batcher := NewBatcher(p.synth, p.cfg.Schema, p.cfg.BatchSize, p.cfg.Total)
	expected := Batches(p.cfg.Total, p.cfg.BatchSize)

	log.Info("run starting",
		"schema", p.cfg.Schema,
		"total", p.cfg.Total,
		"batch_size", p.cfg.BatchSize,
		"batches", expected,
		"workers", p.cfg.Workers,
		"channel_capacity", queue.Cap(),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer queue.Close()
		return p.produce(gctx, batcher, queue, stats)
	})
	for i, s := range sessions {
		w := &worker{
			session: s,
			queue:   queue,
			stats:   stats,
			metrics: p.metrics,
			schema:  p.cfg.Schema,
			retry: resilience.RetryConfig{
				MaxRetries: p.cfg.MaxRetries,
				Backoff:    p.cfg.Backoff,
				Sleep:      p.sleep,
				Logger:     log,
			},
			timeout: p.cfg.RequestTimeout,
			now:     p.now,
			logger:  log.With("worker", i),
		}
		g.Go(func() error { return w.run(gctx) })
	}

	err := g.Wait()
	res := Result{Snapshot: stats.Snapshot(), ExpectedRecords: p.cfg.Total, ExpectedBatches: expected}
	if err != nil {
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			return res, err
		}
		res.Interrupted = true
	}
	if ctx.Err() != nil {
		res.Interrupted = true
	}
	log.Info("run finished",
		"ok", res.OK,
		"err", res.Err,
		"records", res.Records,
		"bytes", res.Bytes,
		"acknowledged", res.Acknowledged,
		"elapsed", res.Elapsed,
		"docs_per_sec", res.Rate,
		"interrupted", res.Interrupted,
	)
	return res, nil
}

func (p *Pipeline) produce(ctx context.Context, b *Batcher, q *Queue, stats *Stats) error {
	var limiter *rate.Limiter
	if p.cfg.RecordsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(p.cfg.RecordsPerSecond), p.cfg.BatchSize)
	}
	for {
		batch, ok := b.Next()
		if !ok {
			return nil
		}
		if limiter != nil {
			if err := limiter.WaitN(ctx, batch.Count); err != nil {
				return fmt.Errorf("rate limiter: %w", err)
			}
		}
		stats.Submit()
		if err := q.Put(ctx, batch); err != nil {
			return fmt.Errorf("enqueue batch %d: %w", batch.Seq, err)
		}
		p.metrics.QueueDepth.Set(float64(q.Len()))
	}
}
