// Package synth generates a reproducible stream of synthetic documents for
// load tests. Generation is pure CPU work and never blocks.
package synth

import (
	"math/rand"

	"github.com/Adithya-Monish-Kumar-K/strobe-loadgen/internal/wire"
)

// Config seeds a Synthesizer.
type Config struct {
	Seed    int64
	Years   Years
	AutoIDs bool
}

// Synthesizer hands out records in order. With the same seed, vocabulary and
// sequence of Generate calls it reproduces an identical stream.
type Synthesizer struct {
	rng     *rand.Rand
	vocab   Vocabulary
	years   Years
	autoIDs bool
	next    uint32
}

// New creates a Synthesizer. A nil vocabulary selects the built-in Catalog.
func New(cfg Config, vocab Vocabulary) *Synthesizer {
	if vocab == nil {
		vocab = Catalog{}
	}
	return &Synthesizer{
		rng:     rand.New(rand.NewSource(cfg.Seed)),
		vocab:   vocab,
		years:   cfg.Years,
		autoIDs: cfg.AutoIDs,
	}
}

// Produced returns how many records have been generated so far.
func (s *Synthesizer) Produced() int { return int(s.next) }

func (s *Synthesizer) nextID() uint32 {
	id := s.next
	s.next++
	if s.autoIDs {
		return wire.AutoID
	}
	return id
}

// Generate returns the next n text records. Ids run sequentially from 0, or
// are all wire.AutoID in auto-id mode. Stopping at the configured total is
// the caller's job.
func (s *Synthesizer) Generate(n int) []wire.Record {
	out := make([]wire.Record, n)
	for i := range out {
		id := s.nextID()
		out[i] = wire.Record{DocID: id, Text: s.vocab.Text(s.rng, s.years)}
	}
	return out
}

// GenerateMeta returns the next n metadata records.
func (s *Synthesizer) GenerateMeta(n int) []wire.MetaRecord {
	out := make([]wire.MetaRecord, n)
	for i := range out {
		id := s.nextID()
		rec := s.vocab.Meta(s.rng, s.years)
		rec.DocID = id
		out[i] = rec
	}
	return out
}
