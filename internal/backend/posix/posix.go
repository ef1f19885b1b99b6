// Package posix implements the Backend interface (spec §4.4) over a plain
// POSIX filesystem using os and golang.org/x/sys/unix, grounded in the
// teacher's materializeFSEntries (src/holo-build/common/build.go): mkdir
// -p semantics, symlink/hardlink creation, and owner/mode application via a
// direct syscall so fakeroot-style uid/gid interception still works (the
// teacher does the analogous thing through cgo's chown(2) to bypass
// os.Chown's direct syscall path).
package posix

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sys/unix"

	"github.com/joseph-zeronsoftn/wimlib/internal/archive"
	"github.com/joseph-zeronsoftn/wimlib/internal/backend"
	"github.com/joseph-zeronsoftn/wimlib/internal/wimtypes"
)

// Backend writes extracted files directly onto a POSIX filesystem.
type Backend struct {
	target string
}

// New returns a POSIX Backend.
func New() *Backend { return &Backend{} }

// Capabilities implements backend.Backend.
func (b *Backend) Capabilities() backend.Capabilities {
	return backend.Capabilities{
		PathMax:                         4096,
		PathSeparator:                   '/',
		SupportsCaseSensitiveFilenames:  true,
		RealpathWorksOnNonexistingFiles: false,
		Features: backend.FeatureArchiveAttr | backend.FeatureHiddenAttr |
			backend.FeatureSystemAttr | backend.FeatureHardLinks |
			backend.FeatureSymlinkReparsePoints | backend.FeatureUnixData,
	}
}

func (b *Backend) StartExtract(target string) error {
	b.target = target
	return os.MkdirAll(target, 0755)
}

func (b *Backend) FinishExtract() error { return nil }
func (b *Backend) AbortExtract() error  { return nil }

func (b *Backend) CreateDirectory(path string) error {
	return os.MkdirAll(path, 0755)
}

func (b *Backend) CreateFile(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	return f.Close()
}

func (b *Backend) CreateHardlink(oldPath, newPath string) error {
	return os.Link(oldPath, newPath)
}

func (b *Backend) CreateSymlink(target, linkPath string) error {
	return os.Symlink(target, linkPath)
}

func (b *Backend) ExtractUnnamedStream(path string, blob *wimtypes.Blob, a archive.Archive) error {
	return writeBlob(path, blob, a)
}

// ExtractNamedStream is nil-equivalent: plain POSIX filesystems have no
// ADS concept, so named streams are never extracted and are warned about
// by the Feature Matrix (spec §4.2).
func (b *Backend) ExtractNamedStream(path, streamName string, blob *wimtypes.Blob, a archive.Archive) error {
	return fmt.Errorf("posix backend: named data streams unsupported")
}

func (b *Backend) ExtractEncryptedStream(path string, blob *wimtypes.Blob, a archive.Archive) error {
	return fmt.Errorf("posix backend: encrypted streams unsupported")
}

func (b *Backend) SetFileAttributes(path string, attr wimtypes.InodeAttr) error {
	// Only the writable bit has a POSIX analogue.
	if attr&wimtypes.AttrReadonly != 0 {
		info, err := os.Lstat(path)
		if err != nil {
			return err
		}
		return os.Chmod(path, info.Mode()&^0222)
	}
	return nil
}

func (b *Backend) SetShortName(path, shortName string) error {
	return fmt.Errorf("posix backend: short names unsupported")
}

func (b *Backend) SetReparseData(path string, tag wimtypes.ReparseTag, data []byte) error {
	return fmt.Errorf("posix backend: raw reparse data unsupported (symlinks handled via CreateSymlink)")
}

func (b *Backend) SetSecurityDescriptor(path string, desc wimtypes.SecurityDescriptor, strict bool) error {
	return fmt.Errorf("posix backend: security descriptors unsupported")
}

func (b *Backend) SetUnixData(path string, uid, gid uint32, mode uint32) error {
	if err := unix.Lchown(path, int(uid), int(gid)); err != nil {
		return err
	}
	if mode != 0 {
		// chmod follows symlinks on most platforms; skip for symlinks.
		if fi, err := os.Lstat(path); err == nil && fi.Mode()&os.ModeSymlink == 0 {
			return os.Chmod(path, os.FileMode(mode&0777))
		}
	}
	return nil
}

func (b *Backend) SetTimestamps(path string, creation, modify, access time.Time) error {
	return os.Chtimes(path, access, modify)
}

// writeBlob opens blob's bytes through a and copies them to path,
// truncating/creating as needed.
func writeBlob(path string, blob *wimtypes.Blob, a archive.Archive) error {
	if blob == nil {
		// Zero-length stream: touch the file, no bytes to write.
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
		if err != nil {
			return err
		}
		return f.Close()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	r, err := a.OpenBlob(blob)
	if err != nil {
		return err
	}
	defer r.Close()

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = io.Copy(f, r)
	return err
}

// WriteBlobTo is the exported form of writeBlob: it copies blob's bytes
// to the host file at path. No other package in this module calls it.
func WriteBlobTo(path string, blob *wimtypes.Blob, a archive.Archive) error {
	return writeBlob(path, blob, a)
}
