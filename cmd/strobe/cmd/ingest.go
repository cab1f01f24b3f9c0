package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/Adithya-Monish-Kumar-K/strobe-loadgen/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/strobe-loadgen/internal/ingestion/capture"
	"github.com/Adithya-Monish-Kumar-K/strobe-loadgen/internal/ingestion/pipeline"
	"github.com/Adithya-Monish-Kumar-K/strobe-loadgen/internal/searcher/client"
	"github.com/Adithya-Monish-Kumar-K/strobe-loadgen/internal/synth"
	"github.com/Adithya-Monish-Kumar-K/strobe-loadgen/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/strobe-loadgen/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/strobe-loadgen/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/strobe-loadgen/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/strobe-loadgen/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/strobe-loadgen/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/strobe-loadgen/pkg/transport"
)

// ErrInterrupted is returned when a signal stops ingest before every batch
// was produced.
var ErrInterrupted = errors.New("run interrupted")

const sinkTimeout = 10 * time.Second

type ingestOptions struct {
	total       int
	batchSize   int
	workers     int
	seed        int64
	autoIDs     bool
	schema      string
	maxRetries  int
	backoff     time.Duration
	strategy    string
	rate        float64
	vocabulary  string
	capture     string
	compression string
	text        string
}

func ingestCmd(a *app) *cobra.Command {
	o := &ingestOptions{}
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Upload a synthetic corpus in concurrent batches.",
		Long: `Generates a reproducible synthetic corpus and uploads it to /ingest.bin
(or /ingest.pack with --schema pack) using a pool of workers. With --capture
batches are written to a local file instead of the network. With --text a
single record is sent and the server's acknowledged count is printed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.load(cmd)
			if err != nil {
				return err
			}
			o.apply(cmd.Flags(), cfg)
			if err := cfg.Validate(); err != nil {
				return err
			}
			if cmd.Flags().Changed("text") {
				return ingestOne(cmd.Context(), cmd.OutOrStdout(), cfg, o.text)
			}
			return runIngest(cmd.Context(), cmd.OutOrStdout(), cfg)
		},
	}
	f := cmd.Flags()
	f.IntVar(&o.total, "total", 0, "records to upload")
	f.IntVar(&o.batchSize, "batch-size", 0, "records per batch")
	f.IntVar(&o.workers, "workers", 0, "concurrent upload workers")
	f.Int64Var(&o.seed, "seed", 0, "random seed for the synthetic corpus")
	f.BoolVar(&o.autoIDs, "auto-ids", false, "let the server assign document ids")
	f.StringVar(&o.schema, "schema", "", "record schema: bin or pack")
	f.IntVar(&o.maxRetries, "max-retries", 0, "retries per batch before it is dropped")
	f.DurationVar(&o.backoff, "retry-backoff", 0, "base retry delay")
	f.StringVar(&o.strategy, "retry-strategy", "", "linear or exponential")
	f.Float64Var(&o.rate, "max-rps", 0, "cap on records per second (0 = unlimited)")
	f.StringVar(&o.vocabulary, "vocabulary", "", "word list file (one word per line)")
	f.StringVar(&o.capture, "capture", "", "write batches to this file instead of the network")
	f.StringVar(&o.compression, "capture-compression", "", "capture block compression: none, lz4 or zstd")
	f.StringVar(&o.text, "text", "", "ingest a single record with this text")
	return cmd
}

func (o *ingestOptions) apply(f *pflag.FlagSet, cfg *config.Config) {
	in := &cfg.Ingest
	if f.Changed("total") {
		in.Total = o.total
	}
	if f.Changed("batch-size") {
		in.BatchSize = o.batchSize
	}
	if f.Changed("workers") {
		in.Workers = o.workers
	}
	if f.Changed("seed") {
		in.Seed = o.seed
	}
	if f.Changed("auto-ids") {
		in.AutoIDs = o.autoIDs
	}
	if f.Changed("schema") {
		in.Schema = o.schema
	}
	if f.Changed("max-retries") {
		in.MaxRetries = o.maxRetries
	}
	if f.Changed("retry-backoff") {
		in.RetryBackoff = o.backoff
	}
	if f.Changed("retry-strategy") {
		in.RetryStrategy = o.strategy
	}
	if f.Changed("max-rps") {
		in.MaxRecordsPerSecond = o.rate
	}
	if f.Changed("vocabulary") {
		in.VocabularyFile = o.vocabulary
	}
	if f.Changed("capture") {
		in.CapturePath = o.capture
	}
	if f.Changed("capture-compression") {
		in.CaptureCompression = o.compression
	}
}

func ingestOne(ctx context.Context, out io.Writer, cfg *config.Config, text string) error {
	session, err := openSession(cfg)
	if err != nil {
		return err
	}
	defer session.Close()
	c := client.New(session, client.WithTimeout(cfg.Target.RequestTimeout))
	n, err := c.IngestText(ctx, text)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "ingested %d\n", n)
	return nil
}

func loadVocabulary(path string, seed int64) (synth.Vocabulary, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening vocabulary: %w", err)
	}
	defer f.Close()
	words, err := synth.ReadWords(f)
	if err != nil {
		return nil, err
	}
	wl, err := synth.NewWordList(words, seed)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return wl, nil
}

func backoffFor(in config.IngestConfig) resilience.Backoff {
	if in.RetryStrategy == "exponential" {
		return resilience.Exponential(resilience.ExponentialConfig{InitialDelay: in.RetryBackoff})
	}
	return resilience.Linear(in.RetryBackoff)
}

func runIngest(ctx context.Context, out io.Writer, cfg *config.Config) error {
	runID := uuid.NewString()
	ctx = logger.WithRunID(ctx, runID)
	log := logger.FromContext(ctx).With("component", "ingest")
	in := cfg.Ingest

	schema, err := pipeline.ParseSchema(in.Schema)
	if err != nil {
		return err
	}
	vocab, err := loadVocabulary(in.VocabularyFile, in.Seed)
	if err != nil {
		return err
	}
	gen := synth.New(synth.Config{
		Seed:    in.Seed,
		Years:   synth.Years{Min: in.YearMin, Max: in.YearMax},
		AutoIDs: in.AutoIDs,
	}, vocab)

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	if cfg.Metrics.Enabled {
		shutdown := metrics.StartServer(cfg.Metrics.Port, reg)
		defer func() {
			sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			shutdown(sctx)
		}()
	}

	var factory transport.Factory
	target := cfg.Target.BaseURL
	if in.CapturePath != "" {
		comp, err := capture.ParseCompression(in.CaptureCompression)
		if err != nil {
			return err
		}
		w, err := capture.Create(in.CapturePath, comp)
		if err != nil {
			return err
		}
		defer func() {
			if err := w.Close(); err != nil {
				log.Error("closing capture file", "path", in.CapturePath, "error", err)
			}
		}()
		factory = w.Factory()
		target = "file://" + in.CapturePath
	} else {
		opts, err := transportOptions(cfg, in.Workers)
		if err != nil {
			return err
		}
		factory = transport.HTTPFactory(opts)
	}

	p, err := pipeline.New(pipeline.Config{
		Total:            in.Total,
		BatchSize:        in.BatchSize,
		Workers:          in.Workers,
		ChannelCapacity:  in.ChannelCapacity,
		Schema:           schema,
		MaxRetries:       in.MaxRetries,
		Backoff:          backoffFor(in),
		RequestTimeout:   cfg.Target.RequestTimeout,
		ReportEvery:      in.ReportEvery,
		RecordsPerSecond: in.MaxRecordsPerSecond,
	}, gen, factory, pipeline.WithMetrics(m))
	if err != nil {
		return err
	}

	res, err := p.Run(ctx)
	if err != nil {
		return err
	}

	summary := analytics.NewSummary(runID, schema, target, res, time.Now())
	sinks := openSinks(ctx, cfg, m, log)
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sinkTimeout)
	defer cancel()
	sinks.Record(sctx, summary)
	sinks.close()

	printSummary(out, summary)
	if res.Interrupted {
		return ErrInterrupted
	}
	return nil
}

// runSinks is a MultiSink with the clients it must release.
type runSinks struct {
	*analytics.MultiSink
	closers []io.Closer
}

func (r runSinks) close() {
	for _, c := range r.closers {
		c.Close()
	}
}

// openSinks builds the enabled summary sinks. A sink that cannot be opened is
// logged and left out.
func openSinks(ctx context.Context, cfg *config.Config, m *metrics.Metrics, log *slog.Logger) runSinks {
	sinks := []analytics.Sink{analytics.LogSink{Logger: log}}
	var closers []io.Closer

	if cfg.Postgres.Enabled {
		db, err := postgres.New(ctx, cfg.Postgres)
		if err == nil {
			store := analytics.NewStore(db)
			if err = store.EnsureSchema(ctx); err == nil {
				sinks = append(sinks, store)
				closers = append(closers, db)
			} else {
				db.Close()
			}
		}
		if err != nil {
			log.Error("run summary store unavailable", "error", err)
			m.RunSummariesFailed.WithLabelValues("postgres").Inc()
		}
	}

	if cfg.Kafka.Enabled {
		producer, err := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.RunSummaries)
		if err != nil {
			log.Error("run summary publisher unavailable", "error", err)
			m.RunSummariesFailed.WithLabelValues("kafka").Inc()
		} else {
			sinks = append(sinks, analytics.NewKafkaSink(producer))
			closers = append(closers, producer)
		}
	}
	return runSinks{MultiSink: analytics.NewMultiSink(m, sinks...), closers: closers}
}

func printSummary(w io.Writer, s analytics.Summary) {
	fmt.Fprintf(w, "run          %s\n", s.RunID)
	fmt.Fprintf(w, "target       %s (%s)\n", s.Target, s.Schema)
	fmt.Fprintf(w, "records      %d / %d\n", s.Records, s.ExpectedRecords)
	fmt.Fprintf(w, "batches      ok=%d err=%d / %d attempts=%d\n", s.OK, s.Err, s.ExpectedBatches, s.Attempts)
	fmt.Fprintf(w, "acknowledged %d\n", s.Acknowledged)
	fmt.Fprintf(w, "elapsed      %s\n", time.Duration(s.ElapsedMs)*time.Millisecond)
	fmt.Fprintf(w, "rate         %.0f docs/s\n", s.DocsPerSec)
	fmt.Fprintf(w, "latency      p50=%.1fms p99=%.1fms\n", s.P50Ms, s.P99Ms)
	if s.Interrupted {
		fmt.Fprintln(w, "status       interrupted")
	} else if s.Err > 0 {
		fmt.Fprintln(w, "status       completed with drops")
	} else {
		fmt.Fprintln(w, "status       complete")
	}
}
