package wire

import (
	"bytes"
	"encoding/hex"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	apperrors "github.com/Adithya-Monish-Kumar-K/strobe-loadgen/pkg/errors"
)

func TestRecordFrameLayout(t *testing.T) {
	got := Record{DocID: 42, Text: "dj phantom"}.AppendTo(nil)
	want := []byte{
		0x2a, 0x00, 0x00, 0x00, // doc_id
		0x0a, 0x00, 0x00, 0x00, // text_len
		'd', 'j', ' ', 'p', 'h', 'a', 'n', 't', 'o', 'm',
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("frame mismatch\n got %x\nwant %x", got, want)
	}

	records, err := DecodeRecords(got)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(records) != 1 || records[0].DocID != 42 || records[0].Text != "dj phantom" {
		t.Errorf("unexpected records: %+v", records)
	}
}

func TestRecordsRoundTrip(t *testing.T) {
	in := []Record{
		{DocID: 0, Text: "Neon City Rising — DJ Phoenix (1999)"},
		{DocID: 1, Text: ""},
		{DocID: AutoID, Text: "ünïcödé text"},
	}
	payload := EncodeRecords(in)

	wantLen := 0
	for _, r := range in {
		wantLen += 8 + len(r.Text)
	}
	if len(payload) != wantLen {
		t.Errorf("payload length = %d, want %d", len(payload), wantLen)
	}

	out, err := DecodeRecords(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if diff := cmp.Diff(in, out); diff != "" {
		t.Errorf("round trip mismatch (-in +out):\n%s", diff)
	}
}

func TestDecodeRecordsRejectsTruncatedFrames(t *testing.T) {
	payload := EncodeRecords([]Record{{DocID: 7, Text: "hello"}})
	for _, cut := range []int{3, 8, len(payload) - 1} {
		_, err := DecodeRecords(payload[:cut])
		if !errors.Is(err, apperrors.ErrDecode) {
			t.Errorf("cut at %d: expected decode error, got %v", cut, err)
		}
	}
}

func TestMetaRecordsRoundTrip(t *testing.T) {
	in := []MetaRecord{
		{DocID: 3, Search: "neon city dj phoenix techno", Title: "Neon City", Author: "DJ Phoenix", Genres: "techno acid", URL: "https://example.com/neon", URI: "disco://neon/city"},
		{DocID: AutoID},
	}
	payload := EncodeMetaRecords(in)
	if len(payload) != in[0].FrameSize()+in[1].FrameSize() {
		t.Errorf("payload length %d does not match frame sizes", len(payload))
	}
	if in[1].FrameSize() != MetaHeaderSize {
		t.Errorf("empty meta record frame = %d, want %d", in[1].FrameSize(), MetaHeaderSize)
	}
	out, err := DecodeMetaRecords(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if diff := cmp.Diff(in, out); diff != "" {
		t.Errorf("round trip mismatch (-in +out):\n%s", diff)
	}
}

func TestMetaRecordTruncatesLongFields(t *testing.T) {
	long := strings.Repeat("a", 70000)
	rec := MetaRecord{DocID: 1, Title: long}
	out, err := DecodeMetaRecords(rec.AppendTo(nil))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out[0].Title) != 65535 {
		t.Errorf("title length = %d, want 65535", len(out[0].Title))
	}
}

func TestQueryRequestLayout(t *testing.T) {
	q := QueryRequest{K: 5, Flags: FlagFuzzyJaccard, Signature: []uint64{1, 2, 3, 0x8000000000000000}}
	b, err := q.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if len(b) != 36 {
		t.Fatalf("256-bit query length = %d, want 36", len(b))
	}
	wantPrefix := []byte{0x05, 0x00, 0x01, 0x00, 0x01, 0, 0, 0, 0, 0, 0, 0}
	if !bytes.HasPrefix(b, wantPrefix) {
		t.Errorf("prefix = %x, want %x", b[:len(wantPrefix)], wantPrefix)
	}
	if b[35] != 0x80 {
		t.Errorf("last byte = %#x, want 0x80", b[35])
	}

	wide := QueryRequest{K: 8, Signature: make([]uint64, Words4096)}
	wb, err := wide.Encode()
	if err != nil {
		t.Fatalf("encode 4096: %v", err)
	}
	if len(wb) != 4+512 {
		t.Errorf("4096-bit query length = %d, want 516", len(wb))
	}
}

func TestQueryRequestRoundTrip(t *testing.T) {
	tests := []QueryRequest{
		{K: 5, Signature: []uint64{0xdeadbeef, 0, 42, 7}},
		{K: 8, Flags: FlagFuzzyJaccard | FlagWithMeta, Signature: []uint64{1, 2, 3, 4}, Text: "hypnoitc"},
		{K: 65535, Signature: make([]uint64, Words4096)},
	}
	for _, in := range tests {
		b, err := in.Encode()
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		out, err := DecodeQueryRequest(b, len(in.Signature))
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if diff := cmp.Diff(in, out); diff != "" {
			t.Errorf("round trip mismatch (-in +out):\n%s", diff)
		}
	}
}

func TestQueryRequestRejectsBadWidth(t *testing.T) {
	if _, err := (QueryRequest{Signature: make([]uint64, 8)}).Encode(); err == nil {
		t.Error("expected error for 8-word signature")
	}
}

func TestQueryRequestRejectsWideTrailer(t *testing.T) {
	q := QueryRequest{K: 3, Signature: make([]uint64, Words4096), Text: "dj phantom"}
	if _, err := q.Encode(); !errors.Is(err, apperrors.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
	q.Text = ""
	b, err := q.Encode()
	if err != nil {
		t.Fatal(err)
	}
	if len(b) != queryHeaderSize+8*Words4096 {
		t.Errorf("encoded %d bytes, want %d", len(b), queryHeaderSize+8*Words4096)
	}
}

func TestDecodeQueryResponseCapturedBytes(t *testing.T) {
	body, _ := hex.DecodeString("04000000" + "01000000" + "0000803F" + "02000000" + "00000040")
	resp, err := DecodeQueryResponse(body, false)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.HitCount != 4 {
		t.Errorf("hit_count = %d, want 4", resp.HitCount)
	}
	want := []Hit{{DocID: 1, Score: 1.0}, {DocID: 2, Score: 2.0}}
	if diff := cmp.Diff(want, resp.Hits); diff != "" {
		t.Errorf("hits mismatch (-want +got):\n%s", diff)
	}
	if !resp.Truncated {
		t.Error("expected Truncated when fewer than hit_count pairs are present")
	}
}

func TestDecodeQueryResponseShortBody(t *testing.T) {
	for _, body := range [][]byte{nil, {}, {0x01, 0x00, 0x00}} {
		_, err := DecodeQueryResponse(body, false)
		if !errors.Is(err, apperrors.ErrDecode) {
			t.Errorf("body %x: expected decode error, got %v", body, err)
		}
	}
}

func TestQueryResponseRoundTrip(t *testing.T) {
	hits := []Hit{
		{DocID: 10, Score: 0.75},
		{DocID: 11, Score: 0.5},
	}
	resp, err := DecodeQueryResponse(EncodeQueryResponse(hits, false), false)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.HitCount != 2 || resp.Truncated {
		t.Errorf("unexpected header: %+v", resp)
	}
	if diff := cmp.Diff(hits, resp.Hits); diff != "" {
		t.Errorf("hits mismatch (-want +got):\n%s", diff)
	}

	withMeta := []Hit{
		{DocID: 1, Score: 3.5, Meta: &HitMeta{Title: "Neon City", Author: "DJ Phoenix", Genres: "techno", URL: "https://example.com/x", URI: "disco://x/y"}},
		{DocID: 2, Score: 1.25, Meta: &HitMeta{}},
	}
	resp, err = DecodeQueryResponse(EncodeQueryResponse(withMeta, true), true)
	if err != nil {
		t.Fatalf("decode with meta: %v", err)
	}
	if diff := cmp.Diff(withMeta, resp.Hits); diff != "" {
		t.Errorf("meta hits mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeQueryResponseEmpty(t *testing.T) {
	resp, err := DecodeQueryResponse([]byte{0, 0, 0, 0}, false)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.HitCount != 0 || len(resp.Hits) != 0 || resp.Truncated {
		t.Errorf("unexpected response: %+v", resp)
	}
}
