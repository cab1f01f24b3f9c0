package pipeline

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/strobe-loadgen/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/strobe-loadgen/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/strobe-loadgen/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/strobe-loadgen/pkg/transport"
)

// worker drains the queue through its own session until end-of-stream.
type worker struct {
	session transport.Session
	queue   *Queue
	stats   *Stats
	metrics *metrics.Metrics
	schema  Schema
	retry   resilience.RetryConfig
	timeout time.Duration
	now     func() time.Time
	logger  *slog.Logger
}

func (w *worker) run(ctx context.Context) error {
	w.metrics.ActiveWorkers.Inc()
	defer w.metrics.ActiveWorkers.Dec()
	for {
		b, ok := w.queue.Get(ctx)
		if !ok {
			w.logger.Debug("worker exiting")
			return nil
		}
		w.metrics.QueueDepth.Set(float64(w.queue.Len()))
		w.deliver(ctx, b)
	}
}

// deliver runs one batch through ATTEMPT until SUCCESS or DROPPED. Drops are
// logged and counted; they never stop the worker.
func (w *worker) deliver(ctx context.Context, b Batch) {
	acked := -1
	attempts, err := resilience.Retry(ctx, "upload", w.retry, func(ctx context.Context, attempt int) error {
		return resilience.WithTimeout(ctx, w.timeout, "post "+w.schema.Path(), func(ctx context.Context) error {
			start := w.now()
			resp, err := w.session.Post(ctx, w.schema.Path(), b.Payload)
			elapsed := w.now().Sub(start)
			w.stats.ObserveLatency(elapsed)
			if err != nil {
				w.metrics.UploadLatency.WithLabelValues("error").Observe(elapsed.Seconds())
				return err
			}
			w.metrics.UploadLatency.WithLabelValues(strconv.Itoa(resp.StatusCode)).Observe(elapsed.Seconds())
			if !apperrors.IsSuccess(resp.StatusCode) {
				return apperrors.NewStatus(resp.StatusCode, resp.Body)
			}
			acked = resp.Ingested
			return nil
		})
	})

	w.metrics.AttemptsPerBatch.Observe(float64(attempts))
	if attempts > 1 {
		w.metrics.RetriesTotal.Add(float64(attempts - 1))
	}
	if err != nil {
		w.stats.RecordDrop(attempts)
		w.metrics.BatchesTotal.WithLabelValues(string(w.schema), "dropped").Inc()
		w.logger.Error("batch dropped", "seq", b.Seq, "records", b.Count, "attempts", attempts, "error", err)
		return
	}

	w.stats.RecordSuccess(b, attempts, acked)
	w.metrics.BatchesTotal.WithLabelValues(string(w.schema), "ok").Inc()
	w.metrics.BytesTotal.Add(float64(len(b.Payload)))
	w.metrics.RecordsTotal.Add(float64(b.Count))
	if acked > 0 {
		w.metrics.AcknowledgedTotal.Add(float64(acked))
	}
	w.logger.Debug("batch delivered", "seq", b.Seq, "records", b.Count, "bytes", len(b.Payload), "attempts", attempts, "ingested", acked)
}
