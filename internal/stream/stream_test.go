package stream

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/joseph-zeronsoftn/wimlib/internal/backend/posix"
	"github.com/joseph-zeronsoftn/wimlib/internal/engine/diag"
	"github.com/joseph-zeronsoftn/wimlib/internal/testarchive"
	"github.com/joseph-zeronsoftn/wimlib/internal/wimtypes"
	"github.com/joseph-zeronsoftn/wimlib/internal/xflags"
)

func TestProgressFiresAtThresholds(t *testing.T) {
	var calls []int64
	cb := func(p xflags.Progress) error {
		calls = append(calls, p.CompletedBytes)
		return nil
	}
	prog := NewProgress(128, cb)
	for i := 0; i < 128; i++ {
		if err := prog.add(1); err != nil {
			t.Fatal(err)
		}
	}
	if len(calls) == 0 {
		t.Fatal("expected at least one progress callback")
	}
	if calls[len(calls)-1] != 128 {
		t.Errorf("got final completed=%d, want 128", calls[len(calls)-1])
	}
}

func TestProgressZeroTotalNeverFires(t *testing.T) {
	fired := false
	prog := NewProgress(0, func(xflags.Progress) error { fired = true; return nil })
	if err := prog.add(10); err != nil {
		t.Fatal(err)
	}
	if fired {
		t.Error("expected no progress callback when TotalBytes is 0")
	}
}

func setupSinglePassTree(t *testing.T) (*wimtypes.Tree, int, *testarchive.Memory, string) {
	t.Helper()
	tree := wimtypes.NewTree()
	content := []byte("single pass content")
	blobIdx := testarchive.CreateBlob(tree, content)
	inodeIdx := tree.AddInode(wimtypes.Inode{
		SecurityID: wimtypes.NoIndex,
		LinkCount:  1,
		Streams:    []wimtypes.NamedStream{{BlobIdx: blobIdx}},
	})
	idx := tree.AddDentry(wimtypes.Dentry{FileName: "file.txt", ParentIdx: tree.RootIdx, InodeIdx: inodeIdx})
	tree.Dentries[tree.RootIdx].Children = append(tree.Dentries[tree.RootIdx].Children, idx)

	image := &wimtypes.Image{Index: 1, Tree: tree}
	a := testarchive.NewMemory(image)
	return tree, idx, a, string(content)
}

func TestSinglePassWritesBlobContent(t *testing.T) {
	tree, idx, a, content := setupSinglePassTree(t)
	target := t.TempDir()

	be := posix.New()
	if err := be.StartExtract(target); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(target, "file.txt")
	if err := be.CreateFile(path); err != nil {
		t.Fatal(err)
	}

	e := New(be, a, diag.NewCollector(nil))
	prog := NewProgress(int64(len(content)), nil)
	if err := e.SinglePass(tree, idx, path, prog); err != nil {
		t.Fatal(err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != content {
		t.Errorf("got %q, want %q", got, content)
	}
	if prog.CompletedBytes != int64(len(content)) {
		t.Errorf("got CompletedBytes=%d, want %d", prog.CompletedBytes, len(content))
	}
}

func TestSinglePassSkipsSkippedAndHardlinkedDentries(t *testing.T) {
	tree, idx, a, _ := setupSinglePassTree(t)
	tree.Dentries[idx].Skipped = true

	be := posix.New()
	target := t.TempDir()
	_ = be.StartExtract(target)

	e := New(be, a, diag.NewCollector(nil))
	prog := NewProgress(100, nil)
	if err := e.SinglePass(tree, idx, filepath.Join(target, "file.txt"), prog); err != nil {
		t.Fatal(err)
	}
	if prog.CompletedBytes != 0 {
		t.Errorf("expected skipped dentry to write nothing, got %d bytes", prog.CompletedBytes)
	}

	tree.Dentries[idx].Skipped = false
	tree.Dentries[idx].WasHardlinked = true
	if err := e.SinglePass(tree, idx, filepath.Join(target, "file.txt"), prog); err != nil {
		t.Fatal(err)
	}
	if prog.CompletedBytes != 0 {
		t.Errorf("expected hardlinked dentry to write nothing, got %d bytes", prog.CompletedBytes)
	}
}

func TestBuildPathsSkipsSkippedDentries(t *testing.T) {
	tree := wimtypes.NewTree()
	inodeIdx := tree.AddInode(wimtypes.Inode{SecurityID: wimtypes.NoIndex, LinkCount: 1})
	idx := tree.AddDentry(wimtypes.Dentry{FileName: "a", ExtractionName: "a", ParentIdx: tree.RootIdx, InodeIdx: inodeIdx})
	tree.Dentries[tree.RootIdx].Children = append(tree.Dentries[tree.RootIdx].Children, idx)
	tree.Dentries[idx].Skipped = true

	paths := BuildPaths(tree, "/target")
	if _, ok := paths[idx]; ok {
		t.Error("expected skipped dentry to be excluded from the path map")
	}
	if paths[tree.RootIdx] != "/target" {
		t.Errorf("got root path %q", paths[tree.RootIdx])
	}
}
