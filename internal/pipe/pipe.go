// Package pipe implements the pipable WIM stream record format (spec §6):
// a small header (magic, uncompressed size, SHA-1 digest, flags) followed
// by the (possibly chunk-compressed) stream bytes, repeated for every blob
// in on-disk order. It is used both by the sequential/FROM_PIPE extraction
// strategy (reading) and by the round-trip test harness (writing).
package pipe

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/joseph-zeronsoftn/wimlib/internal/wimtypes"
)

// Magic is the 4-byte tag ("PWMS") that begins every pipable stream
// header.
var Magic = [4]byte{'P', 'W', 'M', 'S'}

// HeaderFlag is the flags word in a pipable stream header.
type HeaderFlag uint32

// FlagCompressed indicates the following bytes are chunk-compressed with
// the archive's active compressor rather than stored raw.
const FlagCompressed HeaderFlag = 1 << 0

// Header is one pipable stream record header, as it appears on the wire:
// magic (4 bytes), uncompressed size (u64 LE), SHA-1 digest (20 bytes),
// flags (u32 LE).
type Header struct {
	UncompressedSize uint64
	Hash             wimtypes.SHA1Hash
	Flags            HeaderFlag
}

const headerWireSize = 4 + 8 + 20 + 4

// ErrBadMagic is returned by ReadHeader when the stream does not begin
// with the pipable magic tag.
var ErrBadMagic = errors.New("pipe: bad stream header magic")

// ReadHeader reads and validates one stream record header from r.
func ReadHeader(r io.Reader) (Header, error) {
	var buf [headerWireSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return Header{}, err
	}
	if !bytes.Equal(buf[0:4], Magic[:]) {
		return Header{}, ErrBadMagic
	}
	var h Header
	h.UncompressedSize = binary.LittleEndian.Uint64(buf[4:12])
	copy(h.Hash[:], buf[12:32])
	h.Flags = HeaderFlag(binary.LittleEndian.Uint32(buf[32:36]))
	return h, nil
}

// WriteHeader writes one stream record header to w.
func WriteHeader(w io.Writer, h Header) error {
	var buf [headerWireSize]byte
	copy(buf[0:4], Magic[:])
	binary.LittleEndian.PutUint64(buf[4:12], h.UncompressedSize)
	copy(buf[12:32], h.Hash[:])
	binary.LittleEndian.PutUint32(buf[32:36], uint32(h.Flags))
	_, err := w.Write(buf[:])
	return err
}

// Writer sequentially emits pipable stream records: a header followed by
// the stream's raw (uncompressed) bytes. Used by the round-trip test
// harness to build a synthetic pipable archive.
type Writer struct {
	w io.Writer
}

// NewWriter returns a Writer that appends records to w.
func NewWriter(w io.Writer) *Writer { return &Writer{w: w} }

// WriteStream writes one uncompressed stream record.
func (pw *Writer) WriteStream(hash wimtypes.SHA1Hash, data []byte) error {
	h := Header{UncompressedSize: uint64(len(data)), Hash: hash}
	if err := WriteHeader(pw.w, h); err != nil {
		return fmt.Errorf("pipe: write header: %w", err)
	}
	_, err := pw.w.Write(data)
	return err
}

// Reader sequentially consumes pipable stream records from a non-seekable
// source, used by the FROM_PIPE extraction strategy (spec §4.6.B, §4.8).
type Reader struct {
	r io.Reader
}

// NewReader returns a Reader over r.
func NewReader(r io.Reader) *Reader { return &Reader{r: r} }

// Next reads the next record's header. io.EOF signals a clean end of
// stream.
func (pr *Reader) Next() (Header, error) {
	return ReadHeader(pr.r)
}

// CopyStream copies exactly n raw bytes of the current record's payload to
// w (or discards them if w is nil), as required when skipping an
// unreferenced blob record (spec §4.6.B).
func (pr *Reader) CopyStream(w io.Writer, n int64) error {
	if w == nil {
		_, err := io.CopyN(io.Discard, pr.r, n)
		return err
	}
	_, err := io.CopyN(w, pr.r, n)
	return err
}
