package wimtypes

import "testing"

func TestFiletimeRoundTrip(t *testing.T) {
	cases := []int64{
		116444736000000000, // 1970-01-01
		130000000000000000,
	}
	for _, ticks := range cases {
		got := TimeToFiletime(FiletimeToTime(ticks))
		if got != ticks {
			t.Errorf("round trip %d: got %d", ticks, got)
		}
	}
}

func TestBlobAddRefSpillsPastInline(t *testing.T) {
	var b Blob
	for i := 0; i < dentryRefsInline+3; i++ {
		b.AddRef(DentryRef{DentryIdx: i})
	}
	refs := b.Refs()
	if len(refs) != dentryRefsInline+3 {
		t.Fatalf("got %d refs, want %d", len(refs), dentryRefsInline+3)
	}
	for i, r := range refs {
		if r.DentryIdx != i {
			t.Errorf("ref %d: got DentryIdx %d", i, r.DentryIdx)
		}
	}
}

func TestBlobResetScratch(t *testing.T) {
	var b Blob
	b.AddRef(DentryRef{DentryIdx: 1})
	b.InExtractionList = true
	b.ExtractedFile = "/foo"
	b.ResetScratch()
	if b.OutRefcnt != 0 || len(b.Refs()) != 0 || b.InExtractionList || b.ExtractedFile != "" {
		t.Errorf("ResetScratch left stale state: %+v", b)
	}
}

func TestTreeAddBlobContentAddressed(t *testing.T) {
	tree := NewTree()
	h := SHA1Hash{1, 2, 3}
	i1 := tree.AddBlob(Blob{Hash: h, UncompressedSize: 10})
	i2 := tree.AddBlob(Blob{Hash: h, UncompressedSize: 10})
	if i1 != i2 {
		t.Errorf("AddBlob with duplicate hash: got different indices %d, %d", i1, i2)
	}
	if len(tree.Blobs) != 1 {
		t.Errorf("got %d blobs, want 1", len(tree.Blobs))
	}
}

func TestTreeWalkPreorder(t *testing.T) {
	tree := NewTree()
	childInode := tree.AddInode(Inode{SecurityID: NoIndex, LinkCount: 1})
	child := tree.AddDentry(Dentry{FileName: "a", ParentIdx: tree.RootIdx, InodeIdx: childInode})
	tree.Dentries[tree.RootIdx].Children = append(tree.Dentries[tree.RootIdx].Children, child)

	grandchildInode := tree.AddInode(Inode{SecurityID: NoIndex, LinkCount: 1})
	grandchild := tree.AddDentry(Dentry{FileName: "b", ParentIdx: child, InodeIdx: grandchildInode})
	tree.Dentries[child].Children = append(tree.Dentries[child].Children, grandchild)

	var order []int
	if err := tree.Walk(func(idx int) error {
		order = append(order, idx)
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	want := []int{tree.RootIdx, child, grandchild}
	if len(order) != len(want) {
		t.Fatalf("got order %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("order[%d] = %d, want %d", i, order[i], want[i])
		}
	}
}

func TestTreeWalkPostorderVisitsChildrenFirst(t *testing.T) {
	tree := NewTree()
	childInode := tree.AddInode(Inode{SecurityID: NoIndex, LinkCount: 1})
	child := tree.AddDentry(Dentry{FileName: "a", ParentIdx: tree.RootIdx, InodeIdx: childInode})
	tree.Dentries[tree.RootIdx].Children = append(tree.Dentries[tree.RootIdx].Children, child)

	var order []int
	if err := tree.WalkPostorder(func(idx int) error {
		order = append(order, idx)
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	if len(order) != 2 || order[0] != child || order[1] != tree.RootIdx {
		t.Errorf("got order %v, want child before root", order)
	}
}

func TestInodeIsSymlink(t *testing.T) {
	n := Inode{Attr: AttrReparsePoint, ReparseTag: ReparseTagSymlink}
	if !n.IsSymlink() {
		t.Error("expected symlink")
	}
	n.ReparseTag = ReparseTagMountPoint
	if !n.IsSymlink() {
		t.Error("expected mount point to count as symlink")
	}
	n.Attr = 0
	if n.IsSymlink() {
		t.Error("non-reparse-point inode should not be a symlink")
	}
}
