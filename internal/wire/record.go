// Package wire implements the little-endian binary frames exchanged with the
// document index: ingest records, metadata records, query requests and ranked
// responses. Every layout is contiguous with no padding.
package wire

import (
	"encoding/binary"

	apperrors "github.com/Adithya-Monish-Kumar-K/strobe-loadgen/pkg/errors"
)

// AutoID asks the server to assign the document id.
const AutoID uint32 = 0xFFFFFFFF

// RecordHeaderSize is the fixed prefix of an ingest record: doc_id + text_len.
const RecordHeaderSize = 8

// Record is one entry of an /ingest.bin batch.
type Record struct {
	DocID uint32
	Text  string
}

// FrameSize returns the encoded size of r.
func (r Record) FrameSize() int {
	return RecordHeaderSize + len(r.Text)
}

// AppendTo appends the encoded record to dst.
func (r Record) AppendTo(dst []byte) []byte {
	dst = binary.LittleEndian.AppendUint32(dst, r.DocID)
	dst = binary.LittleEndian.AppendUint32(dst, uint32(len(r.Text)))
	return append(dst, r.Text...)
}

// EncodeRecords concatenates records into one batch payload.
func EncodeRecords(records []Record) []byte {
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

// DecodeRecords parses a batch payload. Unlike the server, which stops at the
// first incomplete frame, it reports trailing garbage as a decode error so a
// payload's length can be checked against its declared frame sizes.
func DecodeRecords(payload []byte) ([]Record, error) {
	var out []Record
	off := 0
	for off < len(payload) {
		if len(payload)-off < RecordHeaderSize {
			return out, apperrors.Decodef("record %d: %d trailing bytes, need %d for header", len(out), len(payload)-off, RecordHeaderSize)
		}
		id := binary.LittleEndian.Uint32(payload[off:])
		n := int(binary.LittleEndian.Uint32(payload[off+4:]))
		off += RecordHeaderSize
		if n > len(payload)-off {
			return out, apperrors.Decodef("record %d: text_len %d exceeds remaining %d bytes", len(out), n, len(payload)-off)
		}
		out = append(out, Record{DocID: id, Text: string(payload[off : off+n])})
		off += n
	}
	return out, nil
}
