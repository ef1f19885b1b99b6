// Package backend defines the abstract filesystem-writer interface (spec
// §4.4) that every extraction pass delegates to. A Backend is a capability
// bundle (Design Notes §9) — a set of operations plus a feature bitset
// — not an inheritance hierarchy; concrete variants (posix, win32,
// ntfslib, bundle) implement it independently and implement every method,
// returning an error from any operation they cannot perform.
package backend

import (
	"time"

	"github.com/joseph-zeronsoftn/wimlib/internal/archive"
	"github.com/joseph-zeronsoftn/wimlib/internal/wimtypes"
)

// Feature is one bit in a Backend's advertised capability set, matching
// the categories the Feature Matrix (C2) tallies (spec §4.2).
type Feature uint32

const (
	FeatureArchiveAttr Feature = 1 << iota
	FeatureHiddenAttr
	FeatureSystemAttr
	FeatureCompressedAttr
	FeatureEncryptedAttr
	FeatureNotContentIndexedAttr
	FeatureSparseAttr
	FeatureNamedDataStreams
	FeatureHardLinks
	FeatureReparsePoints
	FeatureSymlinkReparsePoints
	FeatureOtherReparsePoints
	FeatureSecurityDescriptors
	FeatureShortNames
	FeatureUnixData
)

// Has reports whether all bits in mask are set.
func (f Feature) Has(mask Feature) bool { return f&mask == mask }

// Capabilities describes the path-handling quirks and feature bitset a
// Backend advertises (spec §4.4).
type Capabilities struct {
	PathMax                         int
	PathPrefix                      string
	PathSeparator                   byte
	RequiresTargetInPaths           bool
	RequiresRealtargetInPaths       bool
	RealpathWorksOnNonexistingFiles bool
	SupportsCaseSensitiveFilenames  bool
	TargetIsRoot                    bool
	RootDirectoryIsSpecial          bool
	Features                        Feature
}

// Backend is the abstract set of filesystem-writer operations the
// extraction passes invoke (spec §4.4). Every method must be implemented;
// an operation a backend does not support returns an error, except the
// lifecycle and creation calls that every backend must support to be
// useful at all.
type Backend interface {
	Capabilities() Capabilities

	// Lifecycle.
	StartExtract(target string) error
	FinishExtract() error
	AbortExtract() error

	// Creation. Required.
	CreateDirectory(path string) error
	CreateFile(path string) error

	// CreateHardlink is not called by the skeleton pass when
	// FeatureHardLinks is unset.
	CreateHardlink(oldPath, newPath string) error
	// CreateSymlink returns an error on backends that express symlinks
	// only as reparse data.
	CreateSymlink(target, linkPath string) error

	// Stream writes. Required for unnamed; named/encrypted may return an
	// error.
	ExtractUnnamedStream(path string, blob *wimtypes.Blob, a archive.Archive) error
	ExtractNamedStream(path, streamName string, blob *wimtypes.Blob, a archive.Archive) error
	ExtractEncryptedStream(path string, blob *wimtypes.Blob, a archive.Archive) error

	// Metadata. All may return an error for unsupported operations except
	// SetFileAttributes.
	SetFileAttributes(path string, attr wimtypes.InodeAttr) error
	SetShortName(path, shortName string) error
	SetReparseData(path string, tag wimtypes.ReparseTag, data []byte) error
	SetSecurityDescriptor(path string, desc wimtypes.SecurityDescriptor, strict bool) error
	SetUnixData(path string, uid, gid uint32, mode uint32) error
	SetTimestamps(path string, creation, modify, access time.Time) error
}
