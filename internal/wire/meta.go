package wire

import (
	"encoding/binary"
	"math"

	apperrors "github.com/Adithya-Monish-Kumar-K/strobe-loadgen/pkg/errors"
)

// MetaHeaderSize is doc_id plus six u16 field lengths.
const MetaHeaderSize = 4 + 6*2

// MetaRecord is one entry of an /ingest.pack batch. Search is the indexed
// text; the remaining fields are stored and returned with hits.
type MetaRecord struct {
	DocID  uint32
	Search string
	Title  string
	Author string
	Genres string
	URL    string
	URI    string
}

func (m MetaRecord) fields() [6]string {
	return [6]string{m.Search, m.Title, m.Author, m.Genres, m.URL, m.URI}
}

// FrameSize returns the encoded size of m after field truncation.
func (m MetaRecord) FrameSize() int {
	size := MetaHeaderSize
	for _, f := range m.fields() {
		size += min(len(f), math.MaxUint16)
	}
	return size
}

// AppendTo appends the encoded record to dst. Fields longer than 65535 bytes
// are truncated to fit their u16 length prefix.
func (m MetaRecord) AppendTo(dst []byte) []byte {
	fields := m.fields()
	dst = binary.LittleEndian.AppendUint32(dst, m.DocID)
	for _, f := range fields {
		dst = binary.LittleEndian.AppendUint16(dst, uint16(min(len(f), math.MaxUint16)))
	}
	for _, f := range fields {
		dst = append(dst, f[:min(len(f), math.MaxUint16)]...)
	}
	return dst
}

// EncodeMetaRecords concatenates metadata records into one batch payload.
func EncodeMetaRecords(records []MetaRecord) []byte {
	size := 0
	for _, r := range records {
		size += r.FrameSize()
	}
	buf := make([]byte, 0, size)
	for _, r := range records {
		buf = r.AppendTo(buf)
	}
	return buf
}

// DecodeMetaRecords parses an /ingest.pack payload.
func DecodeMetaRecords(payload []byte) ([]MetaRecord, error) {
	var out []MetaRecord
	off := 0
	for off < len(payload) {
		if len(payload)-off < MetaHeaderSize {
			return out, apperrors.Decodef("meta record %d: %d trailing bytes, need %d for header", len(out), len(payload)-off, MetaHeaderSize)
		}
		id := binary.LittleEndian.Uint32(payload[off:])
		var lens [6]int
		need := 0
		for i := range lens {
			lens[i] = int(binary.LittleEndian.Uint16(payload[off+4+2*i:]))
			need += lens[i]
		}
		off += MetaHeaderSize
		if need > len(payload)-off {
			return out, apperrors.Decodef("meta record %d: fields need %d bytes, %d remaining", len(out), need, len(payload)-off)
		}
		var vals [6]string
		for i, n := range lens {
			vals[i] = string(payload[off : off+n])
			off += n
		}
		out = append(out, MetaRecord{
			DocID:  id,
			Search: vals[0],
			Title:  vals[1],
			Author: vals[2],
			Genres: vals[3],
			URL:    vals[4],
			URI:    vals[5],
		})
	}
	return out, nil
}
