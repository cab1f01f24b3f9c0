package capture

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/Adithya-Monish-Kumar-K/strobe-loadgen/internal/wire"
	apperrors "github.com/Adithya-Monish-Kumar-K/strobe-loadgen/pkg/errors"
)

// Block is one decompressed capture block.
type Block struct {
	Kind    Kind
	Payload []byte
	// StoredLen is the on-disk size; zero when stored uncompressed.
	StoredLen int
}

// Records decodes a KindRecords block.
func (b Block) Records() ([]wire.Record, error) {
	if b.Kind != KindRecords {
		return nil, apperrors.Decodef("block holds %s, not records", b.Kind)
	}
	return wire.DecodeRecords(b.Payload)
}

// MetaRecords decodes a KindMeta block.
func (b Block) MetaRecords() ([]wire.MetaRecord, error) {
	if b.Kind != KindMeta {
		return nil, apperrors.Decodef("block holds %s, not meta records", b.Kind)
	}
	return wire.DecodeMetaRecords(b.Payload)
}

type Reader struct {
	br     *bufio.Reader
	closer io.Closer
	comp   Compression
}

// NewReader validates the file header.
func NewReader(r io.Reader) (*Reader, error) {
	br := bufio.NewReader(r)
	var hdr [fileHeaderSize]byte
	if _, err := io.ReadFull(br, hdr[:]); err != nil {
		return nil, apperrors.Decodef("capture header: %v", err)
	}
	if string(hdr[:4]) != magic {
		return nil, apperrors.Decodef("not a capture file (magic %q)", hdr[:4])
	}
	if hdr[4] != version {
		return nil, apperrors.Decodef("unsupported capture version %d", hdr[4])
	}
	comp := Compression(hdr[5])
	if comp > CompressionZSTD {
		return nil, apperrors.Decodef("unknown compression %d", hdr[5])
	}
	rd := &Reader{br: br, comp: comp}
	if c, ok := r.(io.Closer); ok {
		rd.closer = c
	}
	return rd, nil
}

// Open opens a capture file for reading.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening capture file: %w", err)
	}
	r, err := NewReader(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return r, nil
}

// Compression reports the codec from the header.
func (r *Reader) Compression() Compression { return r.comp }

// Next returns the next block, or io.EOF after the last one.
func (r *Reader) Next() (Block, error) {
	var hdr [blockHeaderSize]byte
	if _, err := io.ReadFull(r.br, hdr[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return Block{}, io.EOF
		}
		return Block{}, apperrors.Decodef("block header: %v", err)
	}
	kind := Kind(hdr[0])
	rawLen := int(binary.LittleEndian.Uint32(hdr[1:]))
	storedLen := int(binary.LittleEndian.Uint32(hdr[5:]))

	n := rawLen
	if storedLen > 0 {
		n = storedLen
	}
	data := make([]byte, n)
	if _, err := io.ReadFull(r.br, data); err != nil {
		return Block{}, apperrors.Decodef("%s block body: %v", kind, err)
	}
	if storedLen == 0 {
		return Block{Kind: kind, Payload: data}, nil
	}
	raw, err := decompress(data, rawLen, r.comp)
	if err != nil {
		return Block{}, err
	}
	return Block{Kind: kind, Payload: raw, StoredLen: storedLen}, nil
}

func (r *Reader) Close() error {
	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}
