package capture

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/Adithya-Monish-Kumar-K/strobe-loadgen/internal/ingestion/pipeline"
	"github.com/Adithya-Monish-Kumar-K/strobe-loadgen/internal/synth"
	"github.com/Adithya-Monish-Kumar-K/strobe-loadgen/internal/wire"
	apperrors "github.com/Adithya-Monish-Kumar-K/strobe-loadgen/pkg/errors"
)

func TestCapturedFrameRoundTrip(t *testing.T) {
	for _, comp := range []Compression{CompressionNone, CompressionLZ4, CompressionZSTD} {
		t.Run(comp.String(), func(t *testing.T) {
			var buf bytes.Buffer
			w, err := NewWriter(&buf, comp)
			if err != nil {
				t.Fatal(err)
			}
			sess, _ := w.Factory()()
			payload := wire.EncodeRecords([]wire.Record{{DocID: 42, Text: "dj phantom"}})
			resp, err := sess.Post(context.Background(), wire.PathIngestBin, payload)
			if err != nil {
				t.Fatal(err)
			}
			if resp.StatusCode != http.StatusAccepted || resp.Ingested != 1 {
				t.Fatalf("unexpected response %+v", resp)
			}
			if err := w.Close(); err != nil {
				t.Fatal(err)
			}

			r, err := NewReader(&buf)
			if err != nil {
				t.Fatal(err)
			}
			if r.Compression() != comp {
				t.Errorf("compression = %s", r.Compression())
			}
			b, err := r.Next()
			if err != nil {
				t.Fatal(err)
			}
			recs, err := b.Records()
			if err != nil {
				t.Fatal(err)
			}
			want := []wire.Record{{DocID: 42, Text: "dj phantom"}}
			if diff := cmp.Diff(want, recs); diff != "" {
				t.Errorf("records mismatch (-want +got):\n%s", diff)
			}
			if _, err := r.Next(); err != io.EOF {
				t.Errorf("expected io.EOF, got %v", err)
			}
		})
	}
}

func TestCompressionShrinksRepetitiveBlocks(t *testing.T) {
	raw := []byte(strings.Repeat("neon city dreams ", 500))
	for _, comp := range []Compression{CompressionLZ4, CompressionZSTD} {
		var buf bytes.Buffer
		w, _ := NewWriter(&buf, comp)
		if err := w.WriteBlock(KindRecords, raw); err != nil {
			t.Fatal(err)
		}
		w.Close()
		if buf.Len() >= len(raw) {
			t.Errorf("%s: file is %d bytes for %d raw", comp, buf.Len(), len(raw))
		}
		r, _ := NewReader(&buf)
		b, err := r.Next()
		if err != nil {
			t.Fatal(err)
		}
		if b.StoredLen == 0 || !bytes.Equal(b.Payload, raw) {
			t.Errorf("%s: stored=%d, payload intact=%v", comp, b.StoredLen, bytes.Equal(b.Payload, raw))
		}
	}
}

func TestCapturePipelineRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.scap")
	w, err := Create(path, CompressionZSTD)
	if err != nil {
		t.Fatal(err)
	}
	s := synth.New(synth.Config{Seed: 1337, Years: synth.Years{Min: 1960, Max: 2025}}, nil)
	p, err := pipeline.New(pipeline.Config{
		Total:           1234,
		BatchSize:       100,
		Workers:         4,
		ChannelCapacity: 3,
	}, s, w.Factory())
	if err != nil {
		t.Fatal(err)
	}
	res, err := p.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if res.OK != 13 || res.Acknowledged != 1234 {
		t.Fatalf("ok=%d acknowledged=%d", res.OK, res.Acknowledged)
	}

	r, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	seen := make(map[uint32]bool)
	blocks := 0
	for {
		b, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		blocks++
		recs, err := b.Records()
		if err != nil {
			t.Fatal(err)
		}
		for _, rec := range recs {
			if seen[rec.DocID] {
				t.Fatalf("id %d captured twice", rec.DocID)
			}
			seen[rec.DocID] = true
		}
	}
	if blocks != 13 || len(seen) != 1234 {
		t.Errorf("blocks=%d ids=%d", blocks, len(seen))
	}
}

func TestSessionRejectsBadPayloads(t *testing.T) {
	var buf bytes.Buffer
	w, _ := NewWriter(&buf, CompressionNone)
	sess, _ := w.Factory()()
	resp, err := sess.Post(context.Background(), wire.PathIngestBin, []byte{1, 2, 3})
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
	resp, _ = sess.Post(context.Background(), "/nope", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
	if n, _ := w.Blocks(); n != 0 {
		t.Errorf("rejected posts wrote %d blocks", n)
	}
}

func TestReaderRejectsCorruptFiles(t *testing.T) {
	tests := map[string][]byte{
		"short":       []byte("SC"),
		"magic":       []byte("XCAP\x01\x00"),
		"version":     []byte("SCAP\x09\x00"),
		"compression": []byte("SCAP\x01\x07"),
	}
	for name, data := range tests {
		if _, err := NewReader(bytes.NewReader(data)); !errors.Is(err, apperrors.ErrDecode) {
			t.Errorf("%s: expected decode error, got %v", name, err)
		}
	}

	r, err := NewReader(bytes.NewReader([]byte("SCAP\x01\x00\x01\x10\x00\x00\x00\x00\x00\x00\x00abc")))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := r.Next(); !errors.Is(err, apperrors.ErrDecode) {
		t.Errorf("truncated block: expected decode error, got %v", err)
	}
}

func TestParseCompression(t *testing.T) {
	for in, want := range map[string]Compression{"": CompressionNone, "none": CompressionNone, "LZ4": CompressionLZ4, "zstd": CompressionZSTD} {
		got, err := ParseCompression(in)
		if err != nil || got != want {
			t.Errorf("ParseCompression(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseCompression("gzip"); err == nil {
		t.Error("expected error for gzip")
	}
}
