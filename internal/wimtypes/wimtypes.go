// Package wimtypes holds the arena-based in-memory representation of a WIM
// image: dentries, inodes, streams and blob descriptors, addressed by
// integer index rather than pointer so that scratch fields used only during
// extraction can live in parallel slices and be reset in bulk.
package wimtypes

import "time"

// NoIndex marks an absent arena reference (the zero value is a valid index,
// so we can't use 0 as "none").
const NoIndex = -1

// FiletimeToTime converts a Windows FILETIME tick count (100ns units since
// 1601-01-01 UTC) to a time.Time, mirroring the syscall.Filetime handling in
// backuptar-style WIM readers.
func FiletimeToTime(ticks int64) time.Time {
	const epochDiff = 116444736000000000 // 1601-01-01 to 1970-01-01, in 100ns ticks
	unixNano := (ticks - epochDiff) * 100
	return time.Unix(0, unixNano).UTC()
}

// TimeToFiletime is the inverse of FiletimeToTime.
func TimeToFiletime(t time.Time) int64 {
	const epochDiff = 116444736000000000
	return t.UTC().UnixNano()/100 + epochDiff
}

// SHA1Hash is a content digest identifying a Blob.
type SHA1Hash [20]byte

// InodeAttr is the Windows FILE_ATTRIBUTE_* bitmask carried by an Inode.
type InodeAttr uint32

const (
	AttrReadonly           InodeAttr = 1 << 0
	AttrHidden             InodeAttr = 1 << 1
	AttrSystem             InodeAttr = 1 << 2
	AttrDirectory          InodeAttr = 1 << 4
	AttrArchive            InodeAttr = 1 << 5
	AttrReparsePoint       InodeAttr = 1 << 10
	AttrCompressed         InodeAttr = 1 << 11
	AttrNotContentIndexed  InodeAttr = 1 << 13
	AttrEncrypted          InodeAttr = 1 << 14
	AttrSparseFile         InodeAttr = 1 << 9
)

// ReparseTag identifies the kind of reparse point on a REPARSE_POINT inode.
type ReparseTag uint32

const (
	ReparseTagNone       ReparseTag = 0
	ReparseTagSymlink    ReparseTag = 0xA000000C
	ReparseTagMountPoint ReparseTag = 0xA0000003
)

// BlobLocationKind says where a Blob's bytes actually live.
type BlobLocationKind int

const (
	LocationNonexistent BlobLocationKind = iota
	LocationInArchive
	LocationInFileOnDisk
	LocationInMemory
)

// ArchiveLocation describes where in the archive a blob's compressed bytes
// begin, for offset-sorted sequential extraction and for solid-resource
// chunk decoding.
type ArchiveLocation struct {
	Offset         int64
	CompressedSize int64
	Solid          bool
	// SolidOffset/SolidSize locate this blob's bytes within a shared
	// solid resource chunk when Solid is true.
	SolidOffset int64
	SolidSize   int64
}

// CompressionType names the codec a blob's archive bytes are compressed
// with; the core never implements these, only asks a Decompressor to
// reverse them.
type CompressionType int

const (
	CompressionNone CompressionType = iota
	CompressionXpress
	CompressionLZX
	CompressionLZMS
)

// dentryRefsInline is the size of the inline back-reference buffer on a
// Blob before it spills to a heap-grown slice (Design Notes §9).
const dentryRefsInline = 4

// DentryRef identifies one (dentry, stream-name) pair that references a
// blob, used to fan a blob's bytes out to every path that needs them.
type DentryRef struct {
	DentryIdx  int
	StreamName string // "" for the unnamed stream
}

// Blob is a content-addressed entry in the archive's blob table.
type Blob struct {
	Hash             SHA1Hash
	UncompressedSize int64
	Location         BlobLocationKind
	Archive          ArchiveLocation
	DiskPath         string // valid when Location == LocationInFileOnDisk
	Memory           []byte // valid when Location == LocationInMemory
	Compression      CompressionType

	// Scratch fields, reset at the start (and unconditionally at the end,
	// success or failure) of every extraction.
	OutRefcnt    int
	inlineRefs   [dentryRefsInline]DentryRef
	spillRefs    []DentryRef
	InExtractionList bool
	ExtractedFile    string // first materialized path, for hardlinking
}

// ResetScratch clears every extraction-scratch field on the blob so the
// archive remains reusable for a subsequent extraction call.
func (b *Blob) ResetScratch() {
	b.OutRefcnt = 0
	b.inlineRefs = [dentryRefsInline]DentryRef{}
	b.spillRefs = nil
	b.InExtractionList = false
	b.ExtractedFile = ""
}

// AddRef appends a dentry back-reference to the blob, spilling from the
// inline array to a doubling heap-grown slice past dentryRefsInline
// entries.
func (b *Blob) AddRef(ref DentryRef) {
	if b.OutRefcnt < dentryRefsInline {
		b.inlineRefs[b.OutRefcnt] = ref
	} else {
		si := b.OutRefcnt - dentryRefsInline
		if si == len(b.spillRefs) {
			newCap := 2 * (len(b.spillRefs) + 1)
			grown := make([]DentryRef, len(b.spillRefs), newCap)
			copy(grown, b.spillRefs)
			b.spillRefs = grown
		}
		b.spillRefs = append(b.spillRefs, ref)
	}
	b.OutRefcnt++
}

// Refs returns every back-reference recorded so far, inline then spilled.
func (b *Blob) Refs() []DentryRef {
	n := b.OutRefcnt
	if n == 0 {
		return nil
	}
	out := make([]DentryRef, 0, n)
	inlineN := n
	if inlineN > dentryRefsInline {
		inlineN = dentryRefsInline
	}
	out = append(out, b.inlineRefs[:inlineN]...)
	if n > dentryRefsInline {
		out = append(out, b.spillRefs[:n-dentryRefsInline]...)
	}
	return out
}

// NamedStream is one alternate data stream (or the unnamed stream, when
// Name == "") attached to an Inode.
type NamedStream struct {
	Name    string // "" denotes the unnamed/default stream
	BlobIdx int    // NoIndex if the stream has no content (e.g. a zero-length ADS)
}

// SecurityDescriptor is a raw self-relative security descriptor blob,
// indexed by Inode.SecurityID into the archive's security descriptor
// table.
type SecurityDescriptor []byte

// UnixData is the POSIX ownership/mode tuple an archive may carry per
// inode (the `UNIX_DATA` extraction flag, spec §6), captured separately
// from the Windows security descriptor table since the two metadata
// kinds are written independently by an archiving tool.
type UnixData struct {
	UID, GID uint32
	Mode     uint32
	Rdev     uint32
}

// Inode is a shared file object; every Dentry pointing at the same InodeIdx
// is a hardlink to it.
type Inode struct {
	Attr         InodeAttr
	ReparseTag   ReparseTag
	ReparseData  []byte
	SecurityID   int // index into the security descriptor table, or -1
	UnixData     *UnixData // nil if the archive carries no UNIX data for this inode
	CreationTime int64
	LastWrite    int64
	LastAccess   int64
	LinkCount    int

	Streams []NamedStream // Streams[0] is always the unnamed stream

	// Scratch fields.
	Visited           bool
	ExtractedFilePath string
}

// UnnamedBlobIdx returns the BlobIdx of the inode's default stream, or
// NoIndex if it has none.
func (n *Inode) UnnamedBlobIdx() int {
	if len(n.Streams) == 0 {
		return NoIndex
	}
	return n.Streams[0].BlobIdx
}

// IsDirectory reports whether the inode is a directory.
func (n *Inode) IsDirectory() bool { return n.Attr&AttrDirectory != 0 }

// IsReparsePoint reports whether the inode carries reparse data.
func (n *Inode) IsReparsePoint() bool { return n.Attr&AttrReparsePoint != 0 }

// IsSymlink reports whether the inode's reparse tag identifies a symlink
// or mount point (both are expressed as a POSIX symlink when supported).
func (n *Inode) IsSymlink() bool {
	return n.IsReparsePoint() && (n.ReparseTag == ReparseTagSymlink || n.ReparseTag == ReparseTagMountPoint)
}

// Dentry is one name binding in the tree: a UTF-16LE filename bound to an
// inode, owned exclusively by its parent (the root is owned by the Image).
type Dentry struct {
	FileName  string // decoded from UTF-16LE by the Archive collaborator
	ShortName string // DOS 8.3 name, "" if none
	ParentIdx int
	Children  []int
	InodeIdx  int

	// Scratch fields, reset after every extraction.
	Skipped        bool
	WasHardlinked  bool
	ExtractionName string
	TmpFlag        bool
}

// ResetScratch clears every extraction-scratch field on the dentry.
func (d *Dentry) ResetScratch() {
	d.Skipped = false
	d.WasHardlinked = false
	d.ExtractionName = ""
	d.TmpFlag = false
}

// Tree is the arena holding one image's dentries and inodes.
type Tree struct {
	Dentries []Dentry
	Inodes   []Inode
	Blobs    []Blob
	RootIdx  int
}

// NewTree returns an empty arena with an allocated root directory dentry
// and inode, ready for a collaborator to populate via AddDentry/AddInode.
func NewTree() *Tree {
	t := &Tree{}
	rootInode := t.AddInode(Inode{Attr: AttrDirectory, SecurityID: NoIndex, LinkCount: 1})
	t.RootIdx = t.AddDentry(Dentry{ParentIdx: NoIndex, InodeIdx: rootInode})
	return t
}

// AddDentry appends a dentry to the arena and returns its index.
func (t *Tree) AddDentry(d Dentry) int {
	t.Dentries = append(t.Dentries, d)
	return len(t.Dentries) - 1
}

// AddInode appends an inode to the arena and returns its index.
func (t *Tree) AddInode(n Inode) int {
	t.Inodes = append(t.Inodes, n)
	return len(t.Inodes) - 1
}

// AddBlob appends a blob descriptor (or returns the index of an existing
// one with the same hash, since blobs are content-addressed) to the arena.
func (t *Tree) AddBlob(b Blob) int {
	for i := range t.Blobs {
		if t.Blobs[i].Hash == b.Hash {
			return i
		}
	}
	t.Blobs = append(t.Blobs, b)
	return len(t.Blobs) - 1
}

// ResetScratch clears every extraction-scratch field across the whole
// tree, as required at both ABORT and DONE so the Archive remains reusable
// (spec §5, §8's "idempotent planning" property).
func (t *Tree) ResetScratch() {
	for i := range t.Dentries {
		t.Dentries[i].ResetScratch()
	}
	for i := range t.Inodes {
		t.Inodes[i].Visited = false
		t.Inodes[i].ExtractedFilePath = ""
	}
	for i := range t.Blobs {
		t.Blobs[i].ResetScratch()
	}
}

// Walk visits every dentry in preorder (parent before children), calling
// fn(idx) for each. It composes with error propagation: a non-nil error
// from fn aborts the walk and is returned.
func (t *Tree) Walk(fn func(idx int) error) error {
	var rec func(idx int) error
	rec = func(idx int) error {
		if err := fn(idx); err != nil {
			return err
		}
		for _, c := range t.Dentries[idx].Children {
			if err := rec(c); err != nil {
				return err
			}
		}
		return nil
	}
	return rec(t.RootIdx)
}

// WalkPostorder visits every dentry in post-order (children before
// parent), used by the Finalizer so directory timestamps are set after
// their children (spec §4.7, §5 ordering guarantees).
func (t *Tree) WalkPostorder(fn func(idx int) error) error {
	var rec func(idx int) error
	rec = func(idx int) error {
		for _, c := range t.Dentries[idx].Children {
			if err := rec(c); err != nil {
				return err
			}
		}
		return fn(idx)
	}
	return rec(t.RootIdx)
}

// Image is the root of one filesystem tree plus its archive-level
// metadata.
type Image struct {
	Index      int // 1-based
	Name       string
	TotalBytes int64
	Boot       bool
	XML        string

	Tree               *Tree
	SecurityDescriptors []SecurityDescriptor
}
