package testarchive

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/joseph-zeronsoftn/wimlib/internal/wimtypes"
)

func TestCreateBlobIsContentAddressed(t *testing.T) {
	tree := wimtypes.NewTree()
	i1 := CreateBlob(tree, []byte("same"))
	i2 := CreateBlob(tree, []byte("same"))
	if i1 != i2 {
		t.Errorf("got distinct blob indices %d, %d for identical content", i1, i2)
	}
	if len(tree.Blobs) != 1 {
		t.Errorf("got %d blobs, want 1", len(tree.Blobs))
	}
}

func TestMemoryOpenBlobReturnsContent(t *testing.T) {
	tree := wimtypes.NewTree()
	idx := CreateBlob(tree, []byte("hello"))
	image := &wimtypes.Image{Index: 1, Tree: tree}
	m := NewMemory(image)

	r, err := m.OpenBlob(&tree.Blobs[idx])
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	var buf bytes.Buffer
	buf.ReadFrom(r)
	if buf.String() != "hello" {
		t.Errorf("got %q", buf.String())
	}
}

func TestNonSeekableRejectsOpenBlob(t *testing.T) {
	tree := wimtypes.NewTree()
	idx := CreateBlob(tree, []byte("hello"))
	image := &wimtypes.Image{Index: 1, Tree: tree}
	m := NewMemory(image).NonSeekable()

	if _, err := m.OpenBlob(&tree.Blobs[idx]); err == nil {
		t.Error("expected OpenBlob to fail on a non-seekable archive")
	}
}

func TestWritePipeStreamThenNewPipeReaderRoundTrips(t *testing.T) {
	tree := wimtypes.NewTree()
	idx := CreateBlob(tree, []byte("streamed content"))

	var buf bytes.Buffer
	if err := WritePipeStream(&buf, tree, []int{idx}); err != nil {
		t.Fatal(err)
	}
	pr := NewPipeReader(&buf)
	rec, err := pr.Next()
	if err != nil {
		t.Fatal(err)
	}
	if rec.Hash != tree.Blobs[idx].Hash {
		t.Error("expected round-tripped record hash to match the blob's hash")
	}
}

func TestOpenDirBuildsTreeFromManifest(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "content.txt"), []byte("body"), 0644); err != nil {
		t.Fatal(err)
	}
	mf := manifest{
		Name: "demo",
		Entries: []manifestEntry{
			{Path: "sub", Kind: "dir"},
			{Path: "sub/file.txt", Kind: "file", ContentFile: "content.txt"},
			{Path: "sub/link.txt", Kind: "file", LinkTo: "sub/file.txt"},
			{Path: "sub/target.txt", Kind: "file", ContentFile: "content.txt"},
			{Path: "rel-link", Kind: "symlink", Target: "sub/file.txt"},
		},
	}
	raw, err := json.Marshal(mf)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "manifest.json"), raw, 0644); err != nil {
		t.Fatal(err)
	}

	m, err := OpenDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	image, err := m.Image(1)
	if err != nil {
		t.Fatal(err)
	}
	if image.Name != "demo" {
		t.Errorf("got image name %q", image.Name)
	}

	var found []string
	_ = image.Tree.Walk(func(idx int) error {
		found = append(found, image.Tree.Dentries[idx].FileName)
		return nil
	})
	if len(found) != 6 { // root + sub + file.txt + link.txt + target.txt + rel-link
		t.Errorf("got %d dentries, want 6: %v", len(found), found)
	}
}

func TestOpenDirMissingManifestErrors(t *testing.T) {
	if _, err := OpenDir(t.TempDir()); err == nil {
		t.Error("expected an error for a directory with no manifest.json")
	}
}
