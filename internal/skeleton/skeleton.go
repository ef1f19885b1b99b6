// Package skeleton implements the Skeleton Builder (spec §4.5, component
// C5): the first extraction pass, which creates the directory structure,
// empty files, empty named streams, attributes, short names and hardlink
// tracking, walking the tree in preorder.
//
// Spec §4.5.1's multi-image linked extraction (subsequent images in a
// multi-image extraction getting relative symlinks/hardlinks to the
// first image's copies) is not implemented here: see DESIGN.md for why
// this is scoped as a Non-goal of the engine's single-image Driver.
package skeleton

import (
	"path"

	"github.com/joseph-zeronsoftn/wimlib/internal/backend"
	"github.com/joseph-zeronsoftn/wimlib/internal/engine/diag"
	"github.com/joseph-zeronsoftn/wimlib/internal/wimtypes"
	"github.com/joseph-zeronsoftn/wimlib/internal/xflags"
)

// Builder runs the skeleton pass over a tree.
type Builder struct {
	be          backend.Backend
	caps        backend.Capabilities
	flags       xflags.Flags
	diag        *diag.Collector
	target      string
	rootCreated bool
}

// New returns a Builder. rootAlreadyCreated tells it to bypass creating
// the extraction root itself, since the driver creates it once up front.
func New(be backend.Backend, flags xflags.Flags, d *diag.Collector, target string, rootAlreadyCreated bool) *Builder {
	return &Builder{
		be: be, caps: be.Capabilities(), flags: flags, diag: d,
		target: target, rootCreated: rootAlreadyCreated,
	}
}

// Build walks tree in preorder and materializes its skeleton.
func (b *Builder) Build(tree *wimtypes.Tree) error {
	paths := make(map[int]string, len(tree.Dentries))
	paths[tree.RootIdx] = b.target

	return tree.Walk(func(idx int) error {
		return b.BuildOne(tree, idx, paths)
	})
}

// BuildOne materializes the skeleton entry for a single dentry, recording
// its full extraction path into paths. Callers walk the tree in preorder
// (so a dentry's parent path is always already recorded) — Build does
// this internally; the single-pass extraction strategy calls BuildOne
// itself, interleaved with immediate content streaming (spec §4.6.A).
func (b *Builder) BuildOne(tree *wimtypes.Tree, idx int, paths map[int]string) error {
	d := &tree.Dentries[idx]
	if d.Skipped {
		return nil
	}

	var fullPath string
	if idx == tree.RootIdx {
		fullPath = b.target
	} else {
		fullPath = path.Join(paths[d.ParentIdx], d.ExtractionName)
	}
	paths[idx] = fullPath

	if idx == tree.RootIdx && b.rootCreated {
		return nil
	}

	inode := &tree.Inodes[d.InodeIdx]

	// Step 1: an already-materialized inode (another dentry earlier in
	// this same image's preorder walk already holds its content) short-
	// circuits the rest of the pass.
	if existing := inode.ExtractedFilePath; existing != "" {
		if err := b.be.CreateHardlink(existing, fullPath); err != nil {
			b.diag.Warn(diag.KindUnsupportedHardlink, fullPath, "hardlink unsupported, extracting independent copy: %v", err)
		} else {
			d.WasHardlinked = true
			return nil
		}
	}

	// Step 2/3: on a backend with raw reparse-point support, a symlink is
	// expressed as a reparse point set later by the Finalizer (spec §4.7),
	// so here it only gets its plain-file placeholder, same as any other
	// non-directory inode. On a backend without it (posix), the symlink is
	// created directly from the inode's reparse target.
	if inode.IsDirectory() {
		if err := b.be.CreateDirectory(fullPath); err != nil {
			return err
		}
	} else if inode.IsSymlink() && !b.caps.Features.Has(backend.FeatureReparsePoints) {
		if err := b.be.CreateSymlink(string(inode.ReparseData), fullPath); err != nil {
			if b.flags.Has(xflags.STRICT_SYMLINKS) {
				return err
			}
			b.diag.Warn(diag.KindSymlinkFailure, fullPath, "symlink not created: %v", err)
			return nil
		}
	} else if err := b.be.CreateFile(fullPath); err != nil {
		return err
	}

	// Step 4: zero-length named streams.
	if b.caps.Features.Has(backend.FeatureNamedDataStreams) {
		for _, stream := range inode.Streams[1:] {
			if stream.BlobIdx == wimtypes.NoIndex {
				if err := b.be.ExtractNamedStream(fullPath, stream.Name, nil, nil); err != nil {
					b.diag.Warn(diag.KindUnsupportedNamedStream, fullPath, "empty named stream %q: %v", stream.Name, err)
				}
			}
		}
	}

	// Step 5: attributes.
	if err := b.be.SetFileAttributes(fullPath, inode.Attr); err != nil {
		b.diag.Warn(diag.KindUnsupportedAttribute, fullPath, "set attributes failed: %v", err)
	}

	// Step 6: short name, warning-only unless STRICT_SHORT_NAMES.
	if d.ShortName != "" {
		if err := b.be.SetShortName(fullPath, d.ShortName); err != nil {
			if b.flags.Has(xflags.STRICT_SHORT_NAMES) {
				return err
			}
			b.diag.Warn(diag.KindUnsupportedShortName, fullPath, "set short name failed: %v", err)
		}
	}

	// Step 7: remember this path for later hardlinks to the same inode,
	// when link-count > 1 and hardlinks are supported (spec §4.5 step 7).
	if inode.LinkCount > 1 && b.caps.Features.Has(backend.FeatureHardLinks) {
		inode.ExtractedFilePath = fullPath
	}

	return nil
}
