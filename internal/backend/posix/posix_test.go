package posix

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/joseph-zeronsoftn/wimlib/internal/backend"
	"github.com/joseph-zeronsoftn/wimlib/internal/testarchive"
	"github.com/joseph-zeronsoftn/wimlib/internal/wimtypes"
)

func TestCreateDirectoryAndFile(t *testing.T) {
	target := t.TempDir()
	b := New()
	if err := b.StartExtract(target); err != nil {
		t.Fatal(err)
	}
	dir := filepath.Join(target, "sub")
	if err := b.CreateDirectory(dir); err != nil {
		t.Fatal(err)
	}
	file := filepath.Join(dir, "file.txt")
	if err := b.CreateFile(file); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(file); err != nil {
		t.Fatalf("expected file to exist: %v", err)
	}
}

func TestCreateHardlinkAndSymlink(t *testing.T) {
	target := t.TempDir()
	b := New()
	_ = b.StartExtract(target)

	original := filepath.Join(target, "original")
	if err := b.CreateFile(original); err != nil {
		t.Fatal(err)
	}
	hardlink := filepath.Join(target, "hardlink")
	if err := b.CreateHardlink(original, hardlink); err != nil {
		t.Fatal(err)
	}
	info1, _ := os.Stat(original)
	info2, _ := os.Stat(hardlink)
	if !os.SameFile(info1, info2) {
		t.Error("expected hardlink to share the same inode")
	}

	symlink := filepath.Join(target, "symlink")
	if err := b.CreateSymlink("original", symlink); err != nil {
		t.Fatal(err)
	}
	got, err := os.Readlink(symlink)
	if err != nil || got != "original" {
		t.Errorf("got symlink target %q, err %v", got, err)
	}
}

func TestExtractUnnamedStreamWritesBlobContent(t *testing.T) {
	target := t.TempDir()
	b := New()
	_ = b.StartExtract(target)

	content := []byte("hello world")
	a := testarchive.NewMemory()
	blob := wimtypes.Blob{
		Hash:             testarchive.HashBytes(content),
		UncompressedSize: int64(len(content)),
		Location:         wimtypes.LocationInMemory,
		Memory:           content,
	}

	path := filepath.Join(target, "file.txt")
	if err := b.ExtractUnnamedStream(path, &blob, a); err != nil {
		t.Fatal(err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(content) {
		t.Errorf("got content %q, want %q", got, content)
	}
}

func TestExtractUnnamedStreamNilBlobTouchesEmptyFile(t *testing.T) {
	target := t.TempDir()
	b := New()
	_ = b.StartExtract(target)

	path := filepath.Join(target, "empty.txt")
	a := testarchive.NewMemory()
	if err := b.ExtractUnnamedStream(path, nil, a); err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() != 0 {
		t.Errorf("got size %d, want 0", info.Size())
	}
}

func TestNamedStreamsUnsupported(t *testing.T) {
	b := New()
	if err := b.ExtractNamedStream("/x", "ads", nil, nil); err == nil {
		t.Error("expected posix backend to reject named streams")
	}
}

func TestCapabilitiesAdvertiseHardlinksAndSymlinks(t *testing.T) {
	caps := New().Capabilities()
	if !caps.Features.Has(backend.FeatureHardLinks) {
		t.Error("expected FeatureHardLinks")
	}
	if !caps.Features.Has(backend.FeatureSymlinkReparsePoints) {
		t.Error("expected FeatureSymlinkReparsePoints")
	}
	if !caps.SupportsCaseSensitiveFilenames {
		t.Error("expected case-sensitive filenames")
	}
	if caps.PathSeparator != '/' {
		t.Errorf("got separator %q, want '/'", caps.PathSeparator)
	}
}
