package pipeline

import (
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Progress is emitted after every reportEvery-th successful batch.
type Progress struct {
	OK      int64
	Err     int64
	Records int64
	Total   int64
	Percent float64
	Rate    float64
	Elapsed time.Duration
}

// Reporter receives progress. It runs on the worker that crossed the
// threshold and must not block for long.
type Reporter func(Progress)

// LogReporter reports progress at Info on logger.
func LogReporter(logger *slog.Logger) Reporter {
	return func(p Progress) {
		logger.Info("progress",
			"percent", p.Percent,
			"ok", p.OK,
			"err", p.Err,
			"records", p.Records,
			"docs_per_sec", p.Rate,
		)
	}
}

// Stats aggregates counters shared by every worker. All counters are atomic;
// only the latency sample needs the mutex.
type Stats struct {
	total       int64
	reportEvery int64
	now         func() time.Time
	start       time.Time
	report      Reporter

	submitted    atomic.Int64
	batches      atomic.Int64
	bytes        atomic.Int64
	records      atomic.Int64
	ok           atomic.Int64
	errCount     atomic.Int64
	attempts     atomic.Int64
	acknowledged atomic.Int64

	latenciesMu sync.Mutex
	latencies   []time.Duration
}

func NewStats(total int, reportEvery int, now func() time.Time, report Reporter) *Stats {
	if now == nil {
		now = time.Now
	}
	if reportEvery < 1 {
		reportEvery = 10
	}
	return &Stats{
		total:       int64(total),
		reportEvery: int64(reportEvery),
		now:         now,
		start:       now(),
		report:      report,
	}
}

// Submit counts a batch handed to the queue. It is called before Put so that
// ok+err never exceeds submitted.
func (s *Stats) Submit() { s.submitted.Add(1) }

// RecordSuccess accounts a delivered batch. acked is the server's X-Ingested
// count, or negative when the header was absent.
func (s *Stats) RecordSuccess(b Batch, attempts int, acked int) {
	s.batches.Add(1)
	s.bytes.Add(int64(len(b.Payload)))
	s.records.Add(int64(b.Count))
	s.attempts.Add(int64(attempts))
	if acked > 0 {
		s.acknowledged.Add(int64(acked))
	}
	n := s.ok.Add(1)
	if s.report != nil && n%s.reportEvery == 0 {
		s.report(s.progress())
	}
}

// RecordDrop accounts a batch given up after its retry budget.
func (s *Stats) RecordDrop(attempts int) {
	s.attempts.Add(int64(attempts))
	s.errCount.Add(1)
}

// ObserveLatency samples the duration of one upload attempt.
func (s *Stats) ObserveLatency(d time.Duration) {
	s.latenciesMu.Lock()
	s.latencies = append(s.latencies, d)
	s.latenciesMu.Unlock()
}

func (s *Stats) progress() Progress {
	elapsed := s.now().Sub(s.start)
	records := s.records.Load()
	p := Progress{
		OK:      s.ok.Load(),
		Err:     s.errCount.Load(),
		Records: records,
		Total:   s.total,
		Elapsed: elapsed,
	}
	if s.total > 0 {
		p.Percent = 100 * float64(records) / float64(s.total)
	}
	if sec := elapsed.Seconds(); sec > 0 {
		p.Rate = float64(records) / sec
	}
	return p
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	Submitted    int64
	Batches      int64
	Bytes        int64
	Records      int64
	OK           int64
	Err          int64
	Attempts     int64
	Acknowledged int64
	Elapsed      time.Duration
	Rate         float64
	P50          time.Duration
	P99          time.Duration
}

func (s *Stats) Snapshot() Snapshot {
	p := s.progress()
	snap := Snapshot{
		Submitted:    s.submitted.Load(),
		Batches:      s.batches.Load(),
		Bytes:        s.bytes.Load(),
		Records:      p.Records,
		OK:           p.OK,
		Err:          p.Err,
		Attempts:     s.attempts.Load(),
		Acknowledged: s.acknowledged.Load(),
		Elapsed:      p.Elapsed,
		Rate:         p.Rate,
	}

	s.latenciesMu.Lock()
	latencies := make([]time.Duration, len(s.latencies))
	copy(latencies, s.latencies)
	s.latenciesMu.Unlock()
	if len(latencies) > 0 {
		sort.Slice(latencies, func(i, j int) bool {
			return latencies[i] < latencies[j]
		})
		snap.P50 = percentile(latencies, 50)
		snap.P99 = percentile(latencies, 99)
	}
	return snap
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	idx := int(float64(len(sorted)-1) * p / 100)
	return sorted[idx]
}
