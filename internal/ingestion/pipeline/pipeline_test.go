package pipeline

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/strobe-loadgen/internal/synth"
	"github.com/Adithya-Monish-Kumar-K/strobe-loadgen/internal/wire"
	apperrors "github.com/Adithya-Monish-Kumar-K/strobe-loadgen/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/strobe-loadgen/pkg/transport"
)

func noSleep(ctx context.Context, d time.Duration) error { return ctx.Err() }

func newSynth(seed int64) *synth.Synthesizer {
	return synth.New(synth.Config{Seed: seed, Years: synth.Years{Min: 1960, Max: 2025}}, nil)
}

// indexServer decodes every ingest batch and records the ids it saw.
type indexServer struct {
	mu   sync.Mutex
	seen map[uint32]int
	hits atomic.Int64
	// failFirst fails the first n attempts for every batch.
	failFirst int
	attempts  map[uint32]int
}

func newIndexServer(failFirst int) *indexServer {
	return &indexServer{seen: map[uint32]int{}, attempts: map[uint32]int{}, failFirst: failFirst}
}

func (s *indexServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.hits.Add(1)
	body, _ := io.ReadAll(r.Body)
	var ids []uint32
	switch r.URL.Path {
	case wire.PathIngestBin:
		recs, err := wire.DecodeRecords(body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		for _, rec := range recs {
			ids = append(ids, rec.DocID)
		}
	case wire.PathIngestPack:
		recs, err := wire.DecodeMetaRecords(body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		for _, rec := range recs {
			ids = append(ids, rec.DocID)
		}
	default:
		http.NotFound(w, r)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(ids) > 0 {
		s.attempts[ids[0]]++
		if s.attempts[ids[0]] <= s.failFirst {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
	}
	for _, id := range ids {
		s.seen[id]++
	}
	w.Header().Set(wire.IngestedHeader, strconv.Itoa(len(ids)))
	w.WriteHeader(http.StatusAccepted)
}

func runAgainst(t *testing.T, h http.Handler, cfg Config, opts ...Option) Result {
	t.Helper()
	srv := httptest.NewServer(h)
	defer srv.Close()

	p, err := New(cfg, newSynth(1337), transport.HTTPFactory(transport.Options{BaseURL: srv.URL}),
		append([]Option{WithSleeper(noSleep)}, opts...)...)
	if err != nil {
		t.Fatal(err)
	}
	done := make(chan struct{})
	var res Result
	go func() {
		defer close(done)
		res, err = p.Run(context.Background())
	}()
	select {
	case <-done:
	case <-time.After(30 * time.Second):
		t.Fatal("pipeline did not finish; a worker is blocked")
	}
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	return res
}

func TestPipelineDeliversEveryRecordOnce(t *testing.T) {
	srv := newIndexServer(0)
	res := runAgainst(t, srv, Config{
		Total:           10_003,
		BatchSize:       1000,
		Workers:         4,
		ChannelCapacity: 2,
		MaxRetries:      5,
	})

	if res.ExpectedBatches != 11 || res.ExpectedRecords != 10_003 || res.Submitted != 11 || res.OK != 11 || res.Err != 0 {
		t.Errorf("unexpected totals: %+v", res)
	}
	if res.Records != 10_003 || res.Acknowledged != 10_003 || res.Attempts != 11 {
		t.Errorf("records=%d acknowledged=%d attempts=%d", res.Records, res.Acknowledged, res.Attempts)
	}
	if len(srv.seen) != 10_003 {
		t.Fatalf("server saw %d distinct ids", len(srv.seen))
	}
	for id := uint32(0); id < 10_003; id++ {
		if srv.seen[id] != 1 {
			t.Fatalf("id %d delivered %d times", id, srv.seen[id])
		}
	}
	if res.Interrupted {
		t.Error("run should not be interrupted")
	}
}

func TestPipelineRetriesTransientFailures(t *testing.T) {
	srv := newIndexServer(2)
	res := runAgainst(t, srv, Config{
		Total:           50,
		BatchSize:       10,
		Workers:         3,
		ChannelCapacity: 1,
		MaxRetries:      5,
	})
	if res.OK != 5 || res.Err != 0 {
		t.Errorf("ok=%d err=%d, want 5/0", res.OK, res.Err)
	}
	if res.Attempts != 15 {
		t.Errorf("attempts = %d, want 15", res.Attempts)
	}
	if len(srv.seen) != 50 {
		t.Errorf("server saw %d ids", len(srv.seen))
	}
}

func TestPipelineDropsAfterRetryBudget(t *testing.T) {
	var hits atomic.Int64
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	})
	res := runAgainst(t, h, Config{
		Total:           40,
		BatchSize:       10,
		Workers:         2,
		ChannelCapacity: 4,
		MaxRetries:      3,
	})
	if res.OK != 0 || res.Err != 4 || res.OK+res.Err != res.Submitted {
		t.Errorf("ok=%d err=%d submitted=%d", res.OK, res.Err, res.Submitted)
	}
	if got := hits.Load(); got != 16 {
		t.Errorf("server got %d attempts, want 4 batches × 4 attempts", got)
	}
	if res.Records != 0 || res.Bytes != 0 {
		t.Errorf("dropped batches must not count as delivered: %+v", res.Snapshot)
	}
}

func TestPipelineRateCapThrottlesProducer(t *testing.T) {
	srv := newIndexServer(0)
	start := time.Now()
	res := runAgainst(t, srv, Config{
		Total:            400,
		BatchSize:        100,
		Workers:          2,
		ChannelCapacity:  4,
		RecordsPerSecond: 1000,
	})
	// one burst of 100 is free, the remaining 300 records take ~300ms
	if elapsed := time.Since(start); elapsed < 250*time.Millisecond {
		t.Errorf("rate cap not applied: run took %v", elapsed)
	}
	if res.OK != 4 || res.Records != 400 {
		t.Errorf("unexpected totals: %+v", res)
	}
}

func TestPipelineMoreWorkersThanBatches(t *testing.T) {
	srv := newIndexServer(0)
	res := runAgainst(t, srv, Config{
		Total:           15,
		BatchSize:       10,
		Workers:         8,
		ChannelCapacity: 32,
	})
	if res.OK != 2 || res.Records != 15 {
		t.Errorf("unexpected result: %+v", res)
	}
}

func TestPipelineZeroTotal(t *testing.T) {
	srv := newIndexServer(0)
	res := runAgainst(t, srv, Config{Total: 0, BatchSize: 10, Workers: 3, ChannelCapacity: 1})
	if res.Submitted != 0 || srv.hits.Load() != 0 {
		t.Errorf("expected no traffic, got %+v and %d hits", res, srv.hits.Load())
	}
}

func TestPipelinePackSchema(t *testing.T) {
	srv := newIndexServer(0)
	res := runAgainst(t, srv, Config{
		Total:           25,
		BatchSize:       10,
		Workers:         2,
		ChannelCapacity: 2,
		Schema:          SchemaPack,
	})
	if res.OK != 3 || len(srv.seen) != 25 {
		t.Errorf("ok=%d seen=%d", res.OK, len(srv.seen))
	}
}

func TestPipelineReportsEveryTenthSuccess(t *testing.T) {
	var mu sync.Mutex
	var reports []Progress
	srv := newIndexServer(0)
	res := runAgainst(t, srv, Config{
		Total:           250,
		BatchSize:       10,
		Workers:         3,
		ChannelCapacity: 4,
		ReportEvery:     10,
	}, WithReporter(func(p Progress) {
		mu.Lock()
		reports = append(reports, p)
		mu.Unlock()
	}))
	if res.OK != 25 {
		t.Fatalf("ok = %d", res.OK)
	}
	if len(reports) != 2 {
		t.Fatalf("got %d progress reports, want 2", len(reports))
	}
	seen := map[int64]bool{}
	for _, p := range reports {
		seen[p.OK] = true
		if p.Total != 250 {
			t.Errorf("total = %d", p.Total)
		}
	}
	if !seen[10] || !seen[20] {
		t.Errorf("reports at ok=%v, want 10 and 20", seen)
	}
}

// scriptedSession answers from a per-call function without any network.
type scriptedSession struct {
	post   func(attempt int) (*transport.Response, error)
	calls  int
	closed bool
}

func (s *scriptedSession) Post(ctx context.Context, path string, body []byte) (*transport.Response, error) {
	s.calls++
	return s.post(s.calls)
}

func (s *scriptedSession) Close() error {
	s.closed = true
	return nil
}

func TestPipelineLinearBackoffAndSessionClose(t *testing.T) {
	sess := &scriptedSession{post: func(call int) (*transport.Response, error) {
		if call <= 2 {
			return nil, apperrors.Transport("post", errors.New("connection refused"))
		}
		return &transport.Response{StatusCode: 200, Ingested: -1}, nil
	}}
	var mu sync.Mutex
	var delays []time.Duration
	sleep := func(ctx context.Context, d time.Duration) error {
		mu.Lock()
		delays = append(delays, d)
		mu.Unlock()
		return nil
	}
	p, err := New(Config{Total: 5, BatchSize: 5, Workers: 1, ChannelCapacity: 1, MaxRetries: 5},
		newSynth(1), func() (transport.Session, error) { return sess, nil }, WithSleeper(sleep))
	if err != nil {
		t.Fatal(err)
	}
	res, err := p.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.OK != 1 || res.Attempts != 3 || res.Acknowledged != 0 {
		t.Errorf("unexpected result: %+v", res.Snapshot)
	}
	if len(delays) != 2 || delays[0] != 500*time.Millisecond || delays[1] != time.Second {
		t.Errorf("delays = %v, want [500ms 1s]", delays)
	}
	if !sess.closed {
		t.Error("session not closed after run")
	}
}

func TestPipelineFactoryFailure(t *testing.T) {
	p, err := New(Config{Total: 5, BatchSize: 5, Workers: 2, ChannelCapacity: 1}, newSynth(1),
		func() (transport.Session, error) { return nil, errors.New("no route") })
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p.Run(context.Background()); err == nil {
		t.Error("expected error when sessions cannot be opened")
	}
}

func TestPipelineCancellation(t *testing.T) {
	block := make(chan struct{})
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	})
	srv := httptest.NewServer(h)
	defer srv.Close()
	defer close(block)

	p, err := New(Config{Total: 1000, BatchSize: 10, Workers: 2, ChannelCapacity: 2},
		newSynth(1), transport.HTTPFactory(transport.Options{BaseURL: srv.URL}), WithSleeper(noSleep))
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	res, err := p.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.Interrupted {
		t.Error("expected interrupted run")
	}
	if res.OK+res.Err > res.Submitted {
		t.Errorf("ok+err=%d exceeds submitted=%d", res.OK+res.Err, res.Submitted)
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	bad := []Config{
		{Total: -1, BatchSize: 1, Workers: 1, ChannelCapacity: 1},
		{Total: 1, BatchSize: 0, Workers: 1, ChannelCapacity: 1},
		{Total: 1, BatchSize: 1, Workers: 0, ChannelCapacity: 1},
		{Total: 1, BatchSize: 1, Workers: 1, ChannelCapacity: 0},
		{Total: 1, BatchSize: 1, Workers: 1, ChannelCapacity: 1, MaxRetries: -1},
	}
	for _, cfg := range bad {
		if _, err := New(cfg, newSynth(1), nil); !errors.Is(err, apperrors.ErrInvalidConfig) {
			t.Errorf("%+v: expected ErrInvalidConfig, got %v", cfg, err)
		}
	}
}

func TestPipelineRetriesTimedOutRequest(t *testing.T) {
	var hits atomic.Int32
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		if hits.Add(1) == 1 {
			select {
			case <-time.After(300 * time.Millisecond):
			case <-r.Context().Done():
				return
			}
		}
		w.Header().Set(wire.IngestedHeader, "10")
		w.WriteHeader(http.StatusAccepted)
	})

	res := runAgainst(t, h, Config{
		Total:           10,
		BatchSize:       10,
		Workers:         1,
		ChannelCapacity: 1,
		MaxRetries:      2,
		RequestTimeout:  50 * time.Millisecond,
	})
	if res.OK != 1 || res.Err != 0 {
		t.Errorf("ok=%d err=%d, want 1 and 0", res.OK, res.Err)
	}
	if res.Attempts != 2 {
		t.Errorf("attempts = %d, want 2", res.Attempts)
	}
	if got := hits.Load(); got != 2 {
		t.Errorf("server saw %d requests, want 2", got)
	}
	if res.Records != 10 {
		t.Errorf("records = %d, want 10", res.Records)
	}
}
