package wire

import (
	"encoding/binary"
	"math"

	apperrors "github.com/Adithya-Monish-Kumar-K/strobe-loadgen/pkg/errors"
)

// Query flags.
const (
	// FlagFuzzyJaccard asks the server to re-rank candidates by estimated
	// Jaccard overlap. Without it matching is exact/popcount only.
	FlagFuzzyJaccard uint16 = 1 << 0
	// FlagWithMeta asks the server to append stored metadata to every hit.
	FlagWithMeta uint16 = 1 << 1
)

const (
	queryHeaderSize = 4
	hitSize         = 8
	hitMetaFields   = 5
)

// Supported signature word counts.
const (
	Words256  = 4
	Words4096 = 64
)

// QueryRequest is the body of POST /search.
type QueryRequest struct {
	K         uint16
	Flags     uint16
	Signature []uint64
	// Text is an optional raw query trailer used by the server for prefix and
	// exact scoring. Empty means no trailer is sent. Only 256-bit requests
	// carry one.
	Text string
}

// Fuzzy reports whether Jaccard re-ranking was requested.
func (q QueryRequest) Fuzzy() bool { return q.Flags&FlagFuzzyJaccard != 0 }

// WithMeta reports whether hits carry metadata.
func (q QueryRequest) WithMeta() bool { return q.Flags&FlagWithMeta != 0 }

// Encode serialises the request: k, flags, signature words and the optional
// [u16 len][text] trailer. A trailer on a 4096-bit request is rejected.
func (q QueryRequest) Encode() ([]byte, error) {
	if n := len(q.Signature); n != Words256 && n != Words4096 {
		return nil, apperrors.Decodef("signature has %d words, want %d or %d", n, Words256, Words4096)
	}
	if q.Text != "" && len(q.Signature) == Words4096 {
		return nil, apperrors.Invalidf("text trailer is only sent with %d-word signatures", Words256)
	}
	size := queryHeaderSize + 8*len(q.Signature)
	text := q.Text
	if len(text) > math.MaxUint16 {
		text = text[:math.MaxUint16]
	}
	if text != "" {
		size += 2 + len(text)
	}
	buf := make([]byte, 0, size)
	buf = binary.LittleEndian.AppendUint16(buf, q.K)
	buf = binary.LittleEndian.AppendUint16(buf, q.Flags)
	for _, w := range q.Signature {
		buf = binary.LittleEndian.AppendUint64(buf, w)
	}
	if text != "" {
		buf = binary.LittleEndian.AppendUint16(buf, uint16(len(text)))
		buf = append(buf, text...)
	}
	return buf, nil
}

// DecodeQueryRequest parses a request carrying words signature words.
func DecodeQueryRequest(b []byte, words int) (QueryRequest, error) {
	fixed := queryHeaderSize + 8*words
	if len(b) < fixed {
		return QueryRequest{}, apperrors.Decodef("query is %d bytes, need %d", len(b), fixed)
	}
	q := QueryRequest{
		K:         binary.LittleEndian.Uint16(b[0:]),
		Flags:     binary.LittleEndian.Uint16(b[2:]),
		Signature: make([]uint64, words),
	}
	for i := range q.Signature {
		q.Signature[i] = binary.LittleEndian.Uint64(b[queryHeaderSize+8*i:])
	}
	rest := b[fixed:]
	switch {
	case len(rest) == 0:
		return q, nil
	case len(rest) < 2:
		return q, apperrors.Decodef("query trailer is %d bytes, need 2 for length", len(rest))
	}
	n := int(binary.LittleEndian.Uint16(rest))
	if len(rest)-2 < n {
		return q, apperrors.Decodef("query trailer declares %d bytes, %d present", n, len(rest)-2)
	}
	q.Text = string(rest[2 : 2+n])
	return q, nil
}

// HitMeta is the stored metadata returned with a hit under FlagWithMeta.
type HitMeta struct {
	Title  string
	Author string
	Genres string
	URL    string
	URI    string
}

// Hit is one ranked result.
type Hit struct {
	DocID uint32
	Score float32
	Meta  *HitMeta
}

// QueryResponse is the decoded body of a /search reply. HitCount is the
// server's authoritative count; Hits holds the complete entries actually
// present, which may be fewer when Truncated is set.
type QueryResponse struct {
	HitCount  uint32
	Hits      []Hit
	Truncated bool
}

// DecodeQueryResponse parses a /search reply. A body shorter than four bytes
// is malformed. withMeta must match the FlagWithMeta bit of the request.
func DecodeQueryResponse(body []byte, withMeta bool) (*QueryResponse, error) {
	if len(body) < queryHeaderSize {
		return nil, apperrors.Decodef("response is %d bytes, need at least %d", len(body), queryHeaderSize)
	}
	resp := &QueryResponse{HitCount: binary.LittleEndian.Uint32(body)}
	// Cap the preallocation by what the body can actually hold.
	capHint := min(int(resp.HitCount), (len(body)-queryHeaderSize)/hitSize)
	resp.Hits = make([]Hit, 0, capHint)
	off := queryHeaderSize
	for i := uint32(0); i < resp.HitCount; i++ {
		if len(body)-off < hitSize {
			resp.Truncated = true
			break
		}
		h := Hit{
			DocID: binary.LittleEndian.Uint32(body[off:]),
			Score: math.Float32frombits(binary.LittleEndian.Uint32(body[off+4:])),
		}
		next := off + hitSize
		if withMeta {
			meta, n, ok := decodeHitMeta(body[next:])
			if !ok {
				resp.Truncated = true
				break
			}
			h.Meta = meta
			next += n
		}
		resp.Hits = append(resp.Hits, h)
		off = next
	}
	return resp, nil
}

func decodeHitMeta(b []byte) (*HitMeta, int, bool) {
	const header = 2 * hitMetaFields
	if len(b) < header {
		return nil, 0, false
	}
	var lens [hitMetaFields]int
	need := header
	for i := range lens {
		lens[i] = int(binary.LittleEndian.Uint16(b[2*i:]))
		need += lens[i]
	}
	if len(b) < need {
		return nil, 0, false
	}
	var vals [hitMetaFields]string
	off := header
	for i, n := range lens {
		vals[i] = string(b[off : off+n])
		off += n
	}
	return &HitMeta{Title: vals[0], Author: vals[1], Genres: vals[2], URL: vals[3], URI: vals[4]}, need, true
}

// EncodeQueryResponse serialises hits the way the server does. Meta is written
// for every hit when withMeta is set; a nil Meta is written as empty fields.
func EncodeQueryResponse(hits []Hit, withMeta bool) []byte {
	buf := make([]byte, 0, queryHeaderSize+len(hits)*hitSize)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(hits)))
	for _, h := range hits {
		buf = binary.LittleEndian.AppendUint32(buf, h.DocID)
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(h.Score))
		if !withMeta {
			continue
		}
		var m HitMeta
		if h.Meta != nil {
			m = *h.Meta
		}
		fields := [hitMetaFields]string{m.Title, m.Author, m.Genres, m.URL, m.URI}
		for _, f := range fields {
			buf = binary.LittleEndian.AppendUint16(buf, uint16(min(len(f), math.MaxUint16)))
		}
		for _, f := range fields {
			buf = append(buf, f[:min(len(f), math.MaxUint16)]...)
		}
	}
	return buf
}
