// Package features implements the Feature Matrix (spec §4.2, component
// C2): it tallies per-image required feature categories, compares them to
// the backend's advertised capabilities, and reports warnings or a hard
// UNSUPPORTED error depending on the active STRICT_* flags.
package features

import (
	"github.com/joseph-zeronsoftn/wimlib/internal/backend"
	"github.com/joseph-zeronsoftn/wimlib/internal/engine/diag"
	"github.com/joseph-zeronsoftn/wimlib/internal/wimtypes"
	"github.com/joseph-zeronsoftn/wimlib/internal/xflags"
)

// Tally counts how many non-skipped dentries/inodes require each feature
// category.
type Tally struct {
	Archive              int
	Hidden               int
	System               int
	Compressed           int
	Encrypted            int
	NotContentIndexed    int
	Sparse               int
	NamedDataStreams     int
	HardLinks            int
	ReparsePoints        int
	SymlinkReparsePoints int
	OtherReparsePoints   int
	SecurityDescriptors  int
	ShortNames           int
	UnixData             int
}

// Count walks tree and tallies required features across non-skipped
// dentries. Attribute, security-descriptor and short-name tallies count
// every dentry, so hardlinks to one inode are counted once per link; the
// hard-link, named-stream and reparse-point tallies visit each inode once
// via its Visited scratch flag (mirrors the Blob Reference Planner's
// visit-once rule, spec §4.3).
func Count(tree *wimtypes.Tree) Tally {
	var t Tally
	for i := range tree.Inodes {
		tree.Inodes[i].Visited = false
	}
	_ = tree.Walk(func(idx int) error {
		d := &tree.Dentries[idx]
		if d.Skipped {
			return nil
		}
		inode := &tree.Inodes[d.InodeIdx]

		if inode.Attr&wimtypes.AttrArchive != 0 {
			t.Archive++
		}
		if inode.Attr&wimtypes.AttrHidden != 0 {
			t.Hidden++
		}
		if inode.Attr&wimtypes.AttrSystem != 0 {
			t.System++
		}
		if inode.Attr&wimtypes.AttrCompressed != 0 {
			t.Compressed++
		}
		if inode.Attr&wimtypes.AttrEncrypted != 0 {
			t.Encrypted++
		}
		if inode.Attr&wimtypes.AttrNotContentIndexed != 0 {
			t.NotContentIndexed++
		}
		if inode.Attr&wimtypes.AttrSparseFile != 0 {
			t.Sparse++
		}
		if inode.SecurityID != wimtypes.NoIndex {
			t.SecurityDescriptors++
		}
		if d.ShortName != "" {
			t.ShortNames++
		}

		if inode.Visited {
			return nil // hardlink to an already-counted inode
		}
		inode.Visited = true

		if inode.LinkCount > 1 {
			t.HardLinks++
		}
		if len(inode.Streams) > 1 {
			t.NamedDataStreams++
		}
		if inode.IsReparsePoint() {
			t.ReparsePoints++
			if inode.IsSymlink() {
				t.SymlinkReparsePoints++
			} else {
				t.OtherReparsePoints++
			}
		}
		return nil
	})
	return t
}

// Check compares tally against caps and reports warnings (always) or a
// hard UNSUPPORTED error (under STRICT_* flags, or when linked-extraction
// or UNIX-data support is categorically missing, spec §4.2).
func Check(tally Tally, caps backend.Capabilities, flags xflags.Flags, d *diag.Collector) error {
	type check struct {
		need    int
		has     bool
		kind    diag.Kind
		strict  xflags.Flags
		label   string
		hardErr bool // categorical requirement regardless of STRICT_* flags
	}

	checks := []check{
		{tally.NamedDataStreams, caps.Features.Has(backend.FeatureNamedDataStreams), diag.KindUnsupportedNamedStream, 0, "named data streams", false},
		{tally.HardLinks, caps.Features.Has(backend.FeatureHardLinks), diag.KindUnsupportedHardlink, 0, "hard links", flags.Has(xflags.HARDLINK)},
		// Symlink-tagged and other reparse points are gated on separate
		// capability bits: a backend may materialize symlinks directly
		// (posix's CreateSymlink) without supporting raw reparse data at
		// all, so these two must not share FeatureReparsePoints.
		{tally.SymlinkReparsePoints, caps.Features.Has(backend.FeatureSymlinkReparsePoints), diag.KindUnsupportedReparsePoint, 0, "symlink reparse points", flags.Has(xflags.SYMLINK)},
		{tally.OtherReparsePoints, caps.Features.Has(backend.FeatureOtherReparsePoints), diag.KindUnsupportedReparsePoint, 0, "non-symlink reparse points", false},
		{tally.SecurityDescriptors, caps.Features.Has(backend.FeatureSecurityDescriptors), diag.KindUnsupportedSecurityDescriptor, xflags.STRICT_ACLS, "security descriptors", false},
		{tally.ShortNames, caps.Features.Has(backend.FeatureShortNames), diag.KindUnsupportedShortName, xflags.STRICT_SHORT_NAMES, "short names", false},
	}

	for _, c := range checks {
		if c.need == 0 || c.has {
			continue
		}
		if c.hardErr || (c.strict != 0 && flags.Has(c.strict)) {
			return xflags.NewError(xflags.UNSUPPORTED, c.label+" required but unsupported by backend")
		}
		d.Warn(c.kind, "", "%d dentries/inodes require %s, which this backend does not support", c.need, c.label)
	}

	if flags.Has(xflags.UNIX_DATA) && !caps.Features.Has(backend.FeatureUnixData) {
		return xflags.NewError(xflags.UNSUPPORTED, "UNIX data requested but unsupported by backend")
	}

	// Open Question 1 (spec §9, resolved in DESIGN.md): warn using each
	// category's own tally rather than reusing the not-content-indexed
	// count for the sparse-file warning.
	if tally.Sparse > 0 && !caps.Features.Has(backend.FeatureSparseAttr) {
		d.Warn(diag.KindUnsupportedAttribute, "", "%d dentries have the sparse attribute, which this backend does not preserve", tally.Sparse)
	}
	if tally.NotContentIndexed > 0 && !caps.Features.Has(backend.FeatureNotContentIndexedAttr) {
		d.Warn(diag.KindUnsupportedAttribute, "", "%d dentries have the not-content-indexed attribute, which this backend does not preserve", tally.NotContentIndexed)
	}

	return nil
}
