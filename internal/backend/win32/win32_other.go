//go:build !windows

// Package win32 on non-Windows hosts exposes a Backend that fails at
// StartExtract: the real implementation (win32_windows.go) needs Win32
// backup-semantics APIs that do not exist here. Keeping the type present
// lets code that refers to win32.New compile on every host and fail at
// run time with a clear error instead of a compile error. (cmd/wimextract
// does not currently offer a win32 backend selection.)
package win32

import (
	"fmt"
	"time"

	"github.com/joseph-zeronsoftn/wimlib/internal/archive"
	"github.com/joseph-zeronsoftn/wimlib/internal/backend"
	"github.com/joseph-zeronsoftn/wimlib/internal/wimtypes"
)

// Backend is a non-functional stand-in used when cross-compiling for a
// non-Windows target.
type Backend struct{}

// New returns the non-functional stand-in Backend.
func New() *Backend { return &Backend{} }

var errUnsupportedHost = fmt.Errorf("win32 backend: not available on this host OS")

func (b *Backend) Capabilities() backend.Capabilities { return backend.Capabilities{} }
func (b *Backend) StartExtract(target string) error   { return errUnsupportedHost }
func (b *Backend) FinishExtract() error                { return nil }
func (b *Backend) AbortExtract() error                 { return nil }
func (b *Backend) CreateDirectory(path string) error    { return errUnsupportedHost }
func (b *Backend) CreateFile(path string) error         { return errUnsupportedHost }
func (b *Backend) CreateHardlink(oldPath, newPath string) error { return errUnsupportedHost }
func (b *Backend) CreateSymlink(target, linkPath string) error  { return errUnsupportedHost }
func (b *Backend) ExtractUnnamedStream(path string, blob *wimtypes.Blob, a archive.Archive) error {
	return errUnsupportedHost
}
func (b *Backend) ExtractNamedStream(path, streamName string, blob *wimtypes.Blob, a archive.Archive) error {
	return errUnsupportedHost
}
func (b *Backend) ExtractEncryptedStream(path string, blob *wimtypes.Blob, a archive.Archive) error {
	return errUnsupportedHost
}
func (b *Backend) SetFileAttributes(path string, attr wimtypes.InodeAttr) error { return errUnsupportedHost }
func (b *Backend) SetShortName(path, shortName string) error                   { return errUnsupportedHost }
func (b *Backend) SetReparseData(path string, tag wimtypes.ReparseTag, data []byte) error {
	return errUnsupportedHost
}
func (b *Backend) SetSecurityDescriptor(path string, desc wimtypes.SecurityDescriptor, strict bool) error {
	return errUnsupportedHost
}
func (b *Backend) SetUnixData(path string, uid, gid uint32, mode uint32) error { return errUnsupportedHost }
func (b *Backend) SetTimestamps(path string, creation, modify, access time.Time) error {
	return errUnsupportedHost
}
