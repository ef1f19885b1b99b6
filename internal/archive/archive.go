// Package archive defines the external collaborators the extraction engine
// consumes but does not implement itself: an opened Archive handle (header
// parsing, image/XML lookup, blob table, raw stream reads) and a
// Decompressor for the three WIM chunk codecs. This package only fixes the
// contract the engine core is written against; the one implementation in
// this repository is the in-memory testarchive.Memory.
package archive

import (
	"io"

	"github.com/joseph-zeronsoftn/wimlib/internal/wimtypes"
)

// Decompressor reverses one WIM chunk codec (XPRESS, LZX or LZMS). The
// core never implements these; it is handed one by the caller and only
// ever calls Decompress.
type Decompressor interface {
	Decompress(compressed []byte, uncompressedSize int) ([]byte, error)
}

// RPFixInfo carries the archive header's reparse-point-fixup flag and the
// volume prefix that absolute reparse targets were recorded against, so
// the Finalizer can rewrite them onto the real extraction root (spec
// §4.7, §4.8).
type RPFixInfo struct {
	HeaderRPFixSet bool
	VolumePrefix   string // e.g. `\??\C:`, recorded at capture time
}

// Archive is the handle the driver is given at extraction start. It hides
// header parsing, compression, and on-disk layout from the rest of the
// engine.
type Archive interface {
	// Image returns the 1-based image's metadata and populated tree.
	// Implementations load and cache the tree lazily.
	Image(index int) (*wimtypes.Image, error)

	// ImageCount returns the total number of images in the archive.
	ImageCount() int

	// Decompressor returns the codec active for this archive, or nil if
	// the archive is uncompressed.
	Decompressor() Decompressor

	// OpenBlob returns a reader over one blob's uncompressed bytes. The
	// returned ReadCloser must be closed by the caller. Only valid for
	// LocationInArchive/LocationInFileOnDisk/LocationInMemory blobs;
	// LocationNonexistent is a caller error.
	OpenBlob(b *wimtypes.Blob) (io.ReadCloser, error)

	// Seekable reports whether the underlying archive source supports
	// random access. When false, FROM_PIPE-style sequential extraction
	// is mandatory (spec §4.6.B, §4.8).
	Seekable() bool

	// RPFix returns the archive's reparse-point-fixup metadata.
	RPFix() RPFixInfo
}
