// Package capture records upload batches to a local file instead of a remote
// index, and reads such files back. A capture file is
//
//	"SCAP" | u8 version | u8 compression | block*
//	block = u8 kind | u32 raw_len | u32 stored_len | stored bytes
//
// all little-endian. stored_len 0 means the block is stored uncompressed and
// raw_len bytes follow.
package capture

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/strobe-loadgen/internal/wire"
	"github.com/Adithya-Monish-Kumar-K/strobe-loadgen/pkg/transport"
)

const (
	magic         = "SCAP"
	version uint8 = 1

	fileHeaderSize  = 6
	blockHeaderSize = 9
)

// Kind identifies what a block holds.
type Kind uint8

const (
	KindRecords Kind = 1
	KindMeta    Kind = 2
	KindQuery   Kind = 3
)

func (k Kind) String() string {
	switch k {
	case KindRecords:
		return "records"
	case KindMeta:
		return "meta"
	case KindQuery:
		return "query"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

func kindForPath(path string) (Kind, bool) {
	switch path {
	case wire.PathIngestBin:
		return KindRecords, true
	case wire.PathIngestPack:
		return KindMeta, true
	case wire.PathSearch:
		return KindQuery, true
	}
	return 0, false
}

// Writer appends blocks to an underlying stream. It is safe for concurrent use.
type Writer struct {
	mu     sync.Mutex
	bw     *bufio.Writer
	closer io.Closer
	comp   Compression
	blocks int
	bytes  int64
}

// NewWriter writes the file header to w.
func NewWriter(w io.Writer, comp Compression) (*Writer, error) {
	bw := bufio.NewWriterSize(w, 1<<20)
	hdr := make([]byte, 0, fileHeaderSize)
	hdr = append(hdr, magic...)
	hdr = append(hdr, version, byte(comp))
	if _, err := bw.Write(hdr); err != nil {
		return nil, fmt.Errorf("writing capture header: %w", err)
	}
	cw := &Writer{bw: bw, comp: comp, bytes: fileHeaderSize}
	if c, ok := w.(io.Closer); ok {
		cw.closer = c
	}
	return cw, nil
}

// Create opens path for writing, truncating any existing file.
func Create(path string, comp Compression) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating capture file: %w", err)
	}
	w, err := NewWriter(f, comp)
	if err != nil {
		f.Close()
		return nil, err
	}
	return w, nil
}

// WriteBlock compresses raw when that helps and appends one block.
func (w *Writer) WriteBlock(kind Kind, raw []byte) error {
	stored, err := compress(raw, w.comp)
	if err != nil {
		return err
	}
	hdr := make([]byte, 0, blockHeaderSize)
	hdr = append(hdr, byte(kind))
	hdr = binary.LittleEndian.AppendUint32(hdr, uint32(len(raw)))
	hdr = binary.LittleEndian.AppendUint32(hdr, uint32(len(stored)))
	body := stored
	if body == nil {
		body = raw
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.bw.Write(hdr); err != nil {
		return fmt.Errorf("writing block header: %w", err)
	}
	if _, err := w.bw.Write(body); err != nil {
		return fmt.Errorf("writing block: %w", err)
	}
	w.blocks++
	w.bytes += int64(blockHeaderSize + len(body))
	return nil
}

// Blocks returns the number of blocks written and the file size so far.
func (w *Writer) Blocks() (int, int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.blocks, w.bytes
}

// Close flushes buffered blocks and closes the underlying file, if any.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.bw.Flush(); err != nil {
		return fmt.Errorf("flushing capture file: %w", err)
	}
	if w.closer != nil {
		return w.closer.Close()
	}
	return nil
}

// Factory hands every worker a session writing to w.
func (w *Writer) Factory() transport.Factory {
	return func() (transport.Session, error) {
		return &session{w: w}, nil
	}
}

// session answers like the index would: 202 with X-Ingested for valid
// batches, 400 for payloads that do not decode.
type session struct {
	w *Writer
}

func (s *session) Post(ctx context.Context, path string, body []byte) (*transport.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	kind, ok := kindForPath(path)
	if !ok {
		return &transport.Response{StatusCode: http.StatusNotFound, Ingested: -1}, nil
	}
	n, err := countFrames(kind, body)
	if err != nil {
		return &transport.Response{StatusCode: http.StatusBadRequest, Ingested: -1, Body: []byte(err.Error())}, nil
	}
	if err := s.w.WriteBlock(kind, body); err != nil {
		return nil, err
	}
	return &transport.Response{StatusCode: http.StatusAccepted, Ingested: n}, nil
}

func (s *session) Close() error { return nil }

func countFrames(kind Kind, body []byte) (int, error) {
	switch kind {
	case KindRecords:
		recs, err := wire.DecodeRecords(body)
		return len(recs), err
	case KindMeta:
		recs, err := wire.DecodeMetaRecords(body)
		return len(recs), err
	default:
		return -1, nil
	}
}
