// Package analytics records the outcome of ingestion runs. A Summary is built
// once per run and handed to every configured Sink.
package analytics

import (
	"time"

	"github.com/Adithya-Monish-Kumar-K/strobe-loadgen/internal/ingestion/pipeline"
)

type Summary struct {
	RunID           string    `json:"run_id"`
	Schema          string    `json:"schema"`
	Target          string    `json:"target"`
	ExpectedRecords int       `json:"expected_records"`
	ExpectedBatches int       `json:"expected_batches"`
	Submitted       int64     `json:"submitted"`
	OK              int64     `json:"ok"`
	Err             int64     `json:"err"`
	Records         int64     `json:"records"`
	Bytes           int64     `json:"bytes"`
	Attempts        int64     `json:"attempts"`
	Acknowledged    int64     `json:"acknowledged"`
	ElapsedMs       int64     `json:"elapsed_ms"`
	DocsPerSec      float64   `json:"docs_per_sec"`
	P50Ms           float64   `json:"p50_ms"`
	P99Ms           float64   `json:"p99_ms"`
	Interrupted     bool      `json:"interrupted"`
	FinishedAt      time.Time `json:"finished_at"`
}

// NewSummary flattens a pipeline result.
func NewSummary(runID string, schema pipeline.Schema, target string, res pipeline.Result, finished time.Time) Summary {
	return Summary{
		RunID:           runID,
		Schema:          string(schema),
		Target:          target,
		ExpectedRecords: res.ExpectedRecords,
		ExpectedBatches: res.ExpectedBatches,
		Submitted:       res.Submitted,
		OK:              res.OK,
		Err:             res.Err,
		Records:         res.Records,
		Bytes:           res.Bytes,
		Attempts:        res.Attempts,
		Acknowledged:    res.Acknowledged,
		ElapsedMs:       res.Elapsed.Milliseconds(),
		DocsPerSec:      res.Rate,
		P50Ms:           millis(res.P50),
		P99Ms:           millis(res.P99),
		Interrupted:     res.Interrupted,
		FinishedAt:      finished.UTC(),
	}
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// Complete reports whether every expected record was delivered.
func (s Summary) Complete() bool {
	return !s.Interrupted && s.Err == 0 && s.Records == int64(s.ExpectedRecords)
}
