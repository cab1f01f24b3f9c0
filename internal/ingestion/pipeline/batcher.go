package pipeline

import (
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/strobe-loadgen/internal/synth"
	"github.com/Adithya-Monish-Kumar-K/strobe-loadgen/internal/wire"
)

// Schema selects the record layout and the endpoint it is posted to.
type Schema string

const (
	SchemaBin  Schema = "bin"
	SchemaPack Schema = "pack"
)

// ParseSchema accepts "bin" or "pack". Empty means bin.
func ParseSchema(s string) (Schema, error) {
	switch Schema(s) {
	case "", SchemaBin:
		return SchemaBin, nil
	case SchemaPack:
		return SchemaPack, nil
	}
	return "", fmt.Errorf("unknown record schema %q (want bin or pack)", s)
}

// Path returns the ingest endpoint for the schema.
func (s Schema) Path() string {
	if s == SchemaPack {
		return wire.PathIngestPack
	}
	return wire.PathIngestBin
}

// Batch is one serialized upload. Count is only used for local accounting;
// the payload is self-describing.
type Batch struct {
	Seq     int
	Count   int
	Payload []byte
}

// Batcher cuts the synthetic stream into batches of at most size records
// until total records have been produced.
type Batcher struct {
	synth    *synth.Synthesizer
	schema   Schema
	size     int
	total    int
	produced int
	seq      int
}

func NewBatcher(s *synth.Synthesizer, schema Schema, size, total int) *Batcher {
	if size < 1 {
		size = 1
	}
	return &Batcher{synth: s, schema: schema, size: size, total: total}
}

// Next returns the next batch, or false once the total is reached. The last
// batch holds whatever remains.
func (b *Batcher) Next() (Batch, bool) {
	remaining := b.total - b.produced
	if remaining <= 0 {
		return Batch{}, false
	}
	n := min(b.size, remaining)
	var payload []byte
	if b.schema == SchemaPack {
		payload = wire.EncodeMetaRecords(b.synth.GenerateMeta(n))
	} else {
		payload = wire.EncodeRecords(b.synth.Generate(n))
	}
	b.produced += n
	batch := Batch{Seq: b.seq, Count: n, Payload: payload}
	b.seq++
	return batch, true
}

// Batches returns how many batches a run of total records produces.
func Batches(total, size int) int {
	if total <= 0 {
		return 0
	}
	if size < 1 {
		size = 1
	}
	return (total + size - 1) / size
}
