// Package testarchive provides a minimal, fully in-memory archive.Archive
// implementation used by the round-trip property tests (spec §8: build a
// tree, extract it, verify the result matches) and by cmd/wimextract's own
// demo archive format, since real WIM container parsing is an explicit
// Non-goal/external-collaborator concern (spec.md "Out of scope") that
// this repo never implements.
package testarchive

import (
	"bytes"
	"crypto/sha1"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/joseph-zeronsoftn/wimlib/internal/archive"
	"github.com/joseph-zeronsoftn/wimlib/internal/pipe"
	"github.com/joseph-zeronsoftn/wimlib/internal/wimtypes"
)

// Memory is an archive.Archive backed entirely by in-process data: every
// blob's bytes live in the tree's own Blob.Memory field. Useful for unit
// tests and as the format cmd/wimextract reads when no real archive
// collaborator is wired in.
type Memory struct {
	Images  []*wimtypes.Image
	rpfix   archive.RPFixInfo
	seekable bool
}

// NewMemory returns a seekable Memory archive over images.
func NewMemory(images ...*wimtypes.Image) *Memory {
	return &Memory{Images: images, seekable: true}
}

// NonSeekable returns a copy of m that reports itself as non-seekable, to
// exercise the FROM_PIPE/sequential strategies (spec §4.6.B, §4.8).
func (m *Memory) NonSeekable() *Memory {
	return &Memory{Images: m.Images, rpfix: m.rpfix, seekable: false}
}

// WithRPFix attaches reparse-point-fixup metadata, mirroring an archive
// header that recorded a capture-time volume prefix.
func (m *Memory) WithRPFix(info archive.RPFixInfo) *Memory {
	m.rpfix = info
	return m
}

func (m *Memory) Image(index int) (*wimtypes.Image, error) {
	if index < 1 || index > len(m.Images) {
		return nil, fmt.Errorf("testarchive: image index %d out of range", index)
	}
	return m.Images[index-1], nil
}

func (m *Memory) ImageCount() int { return len(m.Images) }

func (m *Memory) Decompressor() archive.Decompressor { return nil }

func (m *Memory) Seekable() bool { return m.seekable }

func (m *Memory) RPFix() archive.RPFixInfo { return m.rpfix }

func (m *Memory) OpenBlob(b *wimtypes.Blob) (io.ReadCloser, error) {
	if !m.seekable {
		return nil, fmt.Errorf("testarchive: archive is non-seekable, blobs must be consumed via the pipe reader")
	}
	switch b.Location {
	case wimtypes.LocationInMemory:
		return io.NopCloser(bytes.NewReader(b.Memory)), nil
	case wimtypes.LocationNonexistent:
		return nil, fmt.Errorf("testarchive: blob has no content")
	default:
		return nil, fmt.Errorf("testarchive: unsupported blob location %v", b.Location)
	}
}

// HashBytes computes the SHA1Hash a real archive's blob table would carry
// for content, the same digest CreateBlob uses to content-address blobs.
func HashBytes(content []byte) wimtypes.SHA1Hash {
	return wimtypes.SHA1Hash(sha1.Sum(content))
}

// CreateBlob adds content as a new in-memory blob to tree (or returns the
// index of an existing blob with the same content, since blobs are
// content-addressed, spec §2).
func CreateBlob(tree *wimtypes.Tree, content []byte) int {
	return tree.AddBlob(wimtypes.Blob{
		Hash:             HashBytes(content),
		UncompressedSize: int64(len(content)),
		Location:         wimtypes.LocationInMemory,
		Memory:           content,
	})
}

// WritePipeStream serializes every blob referenced by tree as a pipable
// stream record sequence (spec §6), in the order given, for feeding the
// FROM_PIPE extraction strategy in tests.
func WritePipeStream(w io.Writer, tree *wimtypes.Tree, order []int) error {
	pw := pipe.NewWriter(w)
	for _, blobIdx := range order {
		b := &tree.Blobs[blobIdx]
		if err := pw.WriteStream(b.Hash, b.Memory); err != nil {
			return err
		}
	}
	return nil
}

// NewPipeReader wraps buf's contents as a pipe.Reader ready for
// Driver.Extract's FROM_PIPE strategy.
func NewPipeReader(buf *bytes.Buffer) *pipe.Reader {
	return pipe.NewReader(buf)
}

// manifestEntry is one line of an on-disk fixture's manifest.json, the
// flat entry list cmd/wimextract reads in place of a real WIM header/
// directory-entry table (spec.md "Out of scope"). Shaped after the
// cpio/ar entry fields internal/backend/bundle already models, since
// both are "flat list of path + kind + content" formats.
type manifestEntry struct {
	Path       string `json:"path"`
	Kind       string `json:"type"` // "file", "dir", or "symlink"
	ContentFile string `json:"content_file,omitempty"`
	Target     string `json:"target,omitempty"`  // symlink target
	LinkTo     string `json:"link_to,omitempty"` // path of an earlier entry to hardlink
	Hidden     bool   `json:"hidden,omitempty"`
	Readonly   bool   `json:"readonly,omitempty"`
}

type manifest struct {
	Name    string          `json:"name"`
	Entries []manifestEntry `json:"entries"`
}

// OpenDir loads a fixture directory containing a manifest.json (a flat
// list of path/type/content entries) plus the content files it
// references, and returns it as a seekable, one-image Memory archive.
// This is the concrete archive format cmd/wimextract reads: the real
// WIM container/header parsing spec.md lists under "Out of scope
// (external collaborators)" is never implemented by this repo, so the
// CLI needs *some* genuine on-disk format to demonstrate the engine
// against, and this fixture format is it.
func OpenDir(dir string) (*Memory, error) {
	manifestPath := filepath.Join(dir, "manifest.json")
	raw, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, fmt.Errorf("testarchive: %w", err)
	}
	var mf manifest
	if err := json.Unmarshal(raw, &mf); err != nil {
		return nil, fmt.Errorf("testarchive: parsing %s: %w", manifestPath, err)
	}

	tree := wimtypes.NewTree()
	dentryByPath := map[string]int{"": tree.RootIdx, "/": tree.RootIdx}

	var ensureDir func(p string) int
	ensureDir = func(p string) int {
		if idx, ok := dentryByPath[p]; ok {
			return idx
		}
		parent := ensureDir(parentOf(p))
		inodeIdx := tree.AddInode(wimtypes.Inode{
			Attr:       wimtypes.AttrDirectory,
			SecurityID: wimtypes.NoIndex,
			LinkCount:  1,
		})
		idx := tree.AddDentry(wimtypes.Dentry{
			FileName:  filepath.Base(p),
			ParentIdx: parent,
			InodeIdx:  inodeIdx,
		})
		tree.Dentries[parent].Children = append(tree.Dentries[parent].Children, idx)
		dentryByPath[p] = idx
		return idx
	}

	for _, e := range mf.Entries {
		p := strings.Trim(filepath.ToSlash(e.Path), "/")
		parent := ensureDir(parentOf(p))

		switch e.Kind {
		case "dir":
			ensureDir(p)
			continue
		case "file":
			var blobIdx = wimtypes.NoIndex
			if e.ContentFile != "" {
				content, err := os.ReadFile(filepath.Join(dir, e.ContentFile))
				if err != nil {
					return nil, fmt.Errorf("testarchive: entry %q: %w", e.Path, err)
				}
				blobIdx = CreateBlob(tree, content)
			}
			attr := wimtypes.InodeAttr(0)
			if e.Hidden {
				attr |= wimtypes.AttrHidden
			}
			if e.Readonly {
				attr |= wimtypes.AttrReadonly
			}
			inodeIdx := tree.AddInode(wimtypes.Inode{
				Attr:       attr,
				SecurityID: wimtypes.NoIndex,
				LinkCount:  1,
				Streams:    []wimtypes.NamedStream{{BlobIdx: blobIdx}},
			})
			idx := tree.AddDentry(wimtypes.Dentry{
				FileName:  filepath.Base(p),
				ParentIdx: parent,
				InodeIdx:  inodeIdx,
			})
			tree.Dentries[parent].Children = append(tree.Dentries[parent].Children, idx)
			dentryByPath[p] = idx
		case "symlink":
			inodeIdx := tree.AddInode(wimtypes.Inode{
				Attr:        wimtypes.AttrReparsePoint,
				ReparseTag:  wimtypes.ReparseTagSymlink,
				ReparseData: []byte(e.Target),
				SecurityID:  wimtypes.NoIndex,
				LinkCount:   1,
			})
			idx := tree.AddDentry(wimtypes.Dentry{
				FileName:  filepath.Base(p),
				ParentIdx: parent,
				InodeIdx:  inodeIdx,
			})
			tree.Dentries[parent].Children = append(tree.Dentries[parent].Children, idx)
			dentryByPath[p] = idx
		default:
			return nil, fmt.Errorf("testarchive: entry %q has unknown type %q", e.Path, e.Kind)
		}

		if e.LinkTo != "" {
			target := strings.Trim(filepath.ToSlash(e.LinkTo), "/")
			targetIdx, ok := dentryByPath[target]
			if !ok {
				return nil, fmt.Errorf("testarchive: entry %q links to unknown path %q", e.Path, e.LinkTo)
			}
			newIdx := dentryByPath[p]
			tree.Dentries[newIdx].InodeIdx = tree.Dentries[targetIdx].InodeIdx
			tree.Inodes[tree.Dentries[targetIdx].InodeIdx].LinkCount++
		}
	}

	image := &wimtypes.Image{Index: 1, Name: mf.Name, Tree: tree}
	return NewMemory(image), nil
}

// parentOf returns the slash-separated parent of a manifest path, ""
// for a top-level entry.
func parentOf(p string) string {
	if i := strings.LastIndex(p, "/"); i >= 0 {
		return p[:i]
	}
	return ""
}
